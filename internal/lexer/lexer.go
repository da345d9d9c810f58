package lexer

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lockstep-sim/lockstep/internal/source"
	"github.com/lockstep-sim/lockstep/internal/units"
)

// Tokenize scans a full program into tokens, ending with an EOF token.
// The registry supplies the unit vocabulary for @suffix resolution.
// Errors are terminal: no token stream is returned alongside one.
func Tokenize(text string, reg *units.Registry) ([]Token, error) {
	lx := &lexer{src: text, reg: reg, line: 1, col: 1}
	var out []Token
	for {
		tok, err := lx.next()
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
		if tok.Kind == EOF {
			return out, nil
		}
	}
}

type lexer struct {
	src  string
	reg  *units.Registry
	off  int
	line int
	col  int
}

func (lx *lexer) pos() source.Pos {
	return source.Pos{Offset: lx.off, Line: lx.line, Col: lx.col}
}

// peek returns the current rune without consuming it, or -1 at EOF.
func (lx *lexer) peek() rune {
	if lx.off >= len(lx.src) {
		return -1
	}
	r, _ := utf8.DecodeRuneInString(lx.src[lx.off:])
	return r
}

func (lx *lexer) peekAt(i int) rune {
	off := lx.off + i
	if off >= len(lx.src) {
		return -1
	}
	r, _ := utf8.DecodeRuneInString(lx.src[off:])
	return r
}

func (lx *lexer) advance() rune {
	r, size := utf8.DecodeRuneInString(lx.src[lx.off:])
	lx.off += size
	if r == '\n' {
		lx.line++
		lx.col = 1
	} else {
		lx.col++
	}
	return r
}

func (lx *lexer) errorf(start source.Pos, format string, args ...any) error {
	return &Error{
		Message: fmt.Sprintf(format, args...),
		Span:    source.NewSpan(start, lx.pos()),
	}
}

func (lx *lexer) next() (Token, error) {
	lx.skipSpace()
	start := lx.pos()

	r := lx.peek()
	if r == -1 {
		return Token{Kind: EOF, Span: source.NewSpan(start, start)}, nil
	}

	switch {
	case isIdentStart(r):
		return lx.lexIdent(start), nil
	case unicode.IsDigit(r):
		return lx.lexNumber(start)
	}

	switch r {
	case '"':
		return lx.lexString(start)
	case ':':
		lx.advance()
		if isIdentStart(lx.peek()) {
			name := lx.readIdent()
			return lx.tok(Atom, name, start), nil
		}
		return lx.tok(Colon, ":", start), nil
	case '$':
		lx.advance()
		if !isIdentStart(lx.peek()) {
			return Token{}, lx.errorf(start, "expected resource name after $")
		}
		name := lx.readIdent()
		return lx.tok(Resource, name, start), nil
	case '@':
		lx.advance()
		if !isIdentStart(lx.peek()) {
			return Token{}, lx.errorf(start, "expected unit name after @")
		}
		suffix := lx.readIdent()
		unit, err := lx.reg.ResolveSuffix(suffix)
		if err != nil {
			return Token{}, lx.errorf(start, "%s", err)
		}
		return lx.tok(UnitName, unit.Name, start), nil
	case '{':
		lx.advance()
		return lx.tok(LBrace, "{", start), nil
	case '}':
		lx.advance()
		return lx.tok(RBrace, "}", start), nil
	case '(':
		lx.advance()
		return lx.tok(LParen, "(", start), nil
	case ')':
		lx.advance()
		return lx.tok(RParen, ")", start), nil
	case '[':
		lx.advance()
		return lx.tok(LBracket, "[", start), nil
	case ']':
		lx.advance()
		return lx.tok(RBracket, "]", start), nil
	case ',':
		lx.advance()
		return lx.tok(Comma, ",", start), nil
	case '.':
		lx.advance()
		return lx.tok(Terminator, ".", start), nil
	case '!':
		lx.advance()
		if lx.peek() == '=' {
			lx.advance()
			return lx.tok(NotEq, "!=", start), nil
		}
		return lx.tok(Terminator, "!", start), nil
	case '+':
		lx.advance()
		if lx.arrowFollows() {
			lx.advance()
			lx.advance()
			return lx.tok(PlusAssign, "+<-", start), nil
		}
		return lx.tok(Plus, "+", start), nil
	case '-':
		lx.advance()
		if lx.arrowFollows() {
			lx.advance()
			lx.advance()
			return lx.tok(MinusAssign, "-<-", start), nil
		}
		return lx.tok(Minus, "-", start), nil
	case '*':
		lx.advance()
		if lx.arrowFollows() {
			lx.advance()
			lx.advance()
			return lx.tok(StarAssign, "*<-", start), nil
		}
		return lx.tok(Star, "*", start), nil
	case '/':
		lx.advance()
		if lx.peek() == '/' {
			lx.skipLineComment()
			return lx.next()
		}
		if lx.arrowFollows() {
			lx.advance()
			lx.advance()
			return lx.tok(SlashAssign, "/<-", start), nil
		}
		return lx.tok(Slash, "/", start), nil
	case '<':
		lx.advance()
		switch lx.peek() {
		case '-':
			lx.advance()
			return lx.tok(Assign, "<-", start), nil
		case '=':
			lx.advance()
			return lx.tok(Le, "<=", start), nil
		}
		return lx.tok(Lt, "<", start), nil
	case '>':
		lx.advance()
		if lx.peek() == '=' {
			lx.advance()
			return lx.tok(Ge, ">=", start), nil
		}
		return lx.tok(Gt, ">", start), nil
	case '=':
		lx.advance()
		if lx.peek() == '=' {
			lx.advance()
			return lx.tok(EqEq, "==", start), nil
		}
		return Token{}, lx.errorf(start, "unexpected = (assignment is <-)")
	case '|':
		lx.advance()
		if lx.peek() == '>' {
			lx.advance()
			return lx.tok(Pipe, "|>", start), nil
		}
		return Token{}, lx.errorf(start, "unexpected | (pipe is |>)")
	}

	lx.advance()
	return Token{}, lx.errorf(start, "unexpected character %q", r)
}

// arrowFollows reports whether the next two runes are "<-", i.e. the
// current operator is a compound-update arrow like +<-.
func (lx *lexer) arrowFollows() bool {
	return lx.peekAt(0) == '<' && lx.peekAt(1) == '-'
}

func (lx *lexer) tok(kind Kind, text string, start source.Pos) Token {
	return Token{Kind: kind, Text: text, Span: source.NewSpan(start, lx.pos())}
}

func (lx *lexer) skipSpace() {
	for {
		r := lx.peek()
		if r == ' ' || r == '\t' || r == '\r' || r == '\n' {
			lx.advance()
			continue
		}
		return
	}
}

func (lx *lexer) skipLineComment() {
	for {
		r := lx.peek()
		if r == -1 || r == '\n' {
			return
		}
		lx.advance()
	}
}

func (lx *lexer) readIdent() string {
	startOff := lx.off
	for isIdentPart(lx.peek()) {
		lx.advance()
	}
	return lx.src[startOff:lx.off]
}

func (lx *lexer) lexIdent(start source.Pos) Token {
	name := lx.readIdent()
	if keywords[name] {
		return lx.tok(Keyword, name, start)
	}
	return lx.tok(Ident, name, start)
}

// lexNumber scans an integer or decimal literal. A '.' is part of the
// number only when a digit follows; otherwise it is the statement
// terminator, so "x <- 1." parses as the number 1 then the period.
func (lx *lexer) lexNumber(start source.Pos) (Token, error) {
	startOff := lx.off
	for unicode.IsDigit(lx.peek()) {
		lx.advance()
	}
	if lx.peek() == '.' && unicode.IsDigit(lx.peekAt(1)) {
		lx.advance()
		for unicode.IsDigit(lx.peek()) {
			lx.advance()
		}
	}
	text := lx.src[startOff:lx.off]
	return lx.tok(Number, text, start), nil
}

// lexString scans a quoted literal decoding the closed escape set
// \n \t \r \" \\. Anything else after a backslash is a lex error.
func (lx *lexer) lexString(start source.Pos) (Token, error) {
	lx.advance() // opening quote
	var b strings.Builder
	for {
		r := lx.peek()
		switch r {
		case -1, '\n':
			return Token{}, lx.errorf(start, "unterminated string")
		case '"':
			lx.advance()
			return lx.tok(String, b.String(), start), nil
		case '\\':
			lx.advance()
			esc := lx.peek()
			switch esc {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			default:
				return Token{}, lx.errorf(start, "unknown escape \\%c", esc)
			}
			lx.advance()
		default:
			b.WriteRune(lx.advance())
		}
	}
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
