// Package lexer turns program text into a token stream.
//
// The lexer owns two pieces of language policy: string escape decoding
// and minimal unit-suffix resolution. A literal like 1@m resolves
// against the unit registry's vocabulary to 1@meters when the suffix is
// an unambiguous prefix; ambiguous or unknown suffixes are lex errors
// naming the candidates.
package lexer

import (
	"fmt"

	"github.com/lockstep-sim/lockstep/internal/source"
)

// Kind identifies a token class.
type Kind int

const (
	EOF Kind = iota

	Ident
	Keyword  // closed keyword set, see keywords map
	Number   // decimal literal, fixed-point parseable
	String   // decoded string literal
	Atom     // :name, Text holds name without the colon
	Resource // $name, Text holds name without the dollar
	UnitName // @suffix, Text holds the RESOLVED full unit name

	Terminator // "." or "!" statement particle

	LBrace
	RBrace
	LParen
	RParen
	LBracket
	RBracket
	Comma
	Colon

	Assign      // <-
	PlusAssign  // +<-
	MinusAssign // -<-
	StarAssign  // *<-
	SlashAssign // /<-

	Plus
	Minus
	Star
	Slash
	Pipe // |>

	EqEq  // ==
	NotEq // !=
	Lt
	Gt
	Le
	Ge
)

var kindNames = map[Kind]string{
	EOF:         "end of input",
	Ident:       "identifier",
	Keyword:     "keyword",
	Number:      "number",
	String:      "string",
	Atom:        "atom",
	Resource:    "resource",
	UnitName:    "unit suffix",
	Terminator:  "statement terminator",
	LBrace:      "{",
	RBrace:      "}",
	LParen:      "(",
	RParen:      ")",
	LBracket:    "[",
	RBracket:    "]",
	Comma:       ",",
	Colon:       ":",
	Assign:      "<-",
	PlusAssign:  "+<-",
	MinusAssign: "-<-",
	StarAssign:  "*<-",
	SlashAssign: "/<-",
	Plus:        "+",
	Minus:       "-",
	Star:        "*",
	Slash:       "/",
	Pipe:        "|>",
	EqEq:        "==",
	NotEq:       "!=",
	Lt:          "<",
	Gt:          ">",
	Le:          "<=",
	Ge:          ">=",
}

// String names the kind for diagnostics.
func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// keywords is the closed keyword set. Deprecated spellings (if, else,
// assert, loop, times) lex as keywords too; the canonicalizer collapses
// them and emits the deprecation notice.
var keywords = map[string]bool{
	"when":      true,
	"otherwise": true,
	"if":        true,
	"else":      true,
	"repeat":    true,
	"loop":      true,
	"times":     true,
	"expect":    true,
	"assert":    true,
	"notify":    true,
	"enforce":   true,
	"and":       true,
	"or":        true,
	"not":       true,
	"yes":       true,
	"no":        true,
	"nothing":   true,
}

// Token is one lexical token with its source span.
type Token struct {
	Kind Kind
	Text string
	Span source.Span
}

// Is reports whether the token is the given keyword.
func (t Token) Is(kw string) bool {
	return t.Kind == Keyword && t.Text == kw
}

// Error is a terminal lexical error. Machine code E_LEX.
type Error struct {
	Message string
	Span    source.Span
}

func (e *Error) Error() string {
	return fmt.Sprintf("E_LEX at %s: %s", e.Span, e.Message)
}
