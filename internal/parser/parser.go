package parser

import (
	"fmt"

	"github.com/lockstep-sim/lockstep/internal/builtin"
	"github.com/lockstep-sim/lockstep/internal/fixed"
	"github.com/lockstep-sim/lockstep/internal/lexer"
	"github.com/lockstep-sim/lockstep/internal/source"
	"github.com/lockstep-sim/lockstep/internal/units"
)

// Parse consumes a token stream into a desugared Program. The registry
// supplies unit dimensions and scales for unit-tagged literals.
// Syntax errors are terminal; no partial program is returned.
func Parse(tokens []lexer.Token, reg *units.Registry) (*Program, error) {
	p := &parser{tokens: tokens, reg: reg}
	prog := &Program{}
	for !p.at(lexer.EOF) {
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		prog.Stmts = append(prog.Stmts, stmt)
	}
	prog.Notices = p.notices
	return prog, nil
}

// ParseText lexes and parses in one step.
func ParseText(text string, reg *units.Registry) (*Program, error) {
	tokens, err := lexer.Tokenize(text, reg)
	if err != nil {
		return nil, err
	}
	return Parse(tokens, reg)
}

type parser struct {
	tokens  []lexer.Token
	pos     int
	reg     *units.Registry
	notices []Notice
}

func (p *parser) cur() lexer.Token { return p.tokens[p.pos] }

func (p *parser) peek() lexer.Token {
	if p.pos+1 < len(p.tokens) {
		return p.tokens[p.pos+1]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *parser) at(k lexer.Kind) bool { return p.cur().Kind == k }

func (p *parser) advance() lexer.Token {
	t := p.cur()
	if t.Kind != lexer.EOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(k lexer.Kind) (lexer.Token, error) {
	if !p.at(k) {
		return lexer.Token{}, p.errorf(p.cur().Span, "expected %s, found %s", k, p.describe(p.cur()))
	}
	return p.advance(), nil
}

func (p *parser) describe(t lexer.Token) string {
	switch t.Kind {
	case lexer.EOF:
		return "end of input"
	case lexer.Ident, lexer.Keyword:
		return fmt.Sprintf("%q", t.Text)
	default:
		return t.Kind.String()
	}
}

func (p *parser) errorf(span source.Span, format string, args ...any) error {
	return &Error{Message: fmt.Sprintf(format, args...), Span: span}
}

func (p *parser) deprecated(span source.Span, old, approved string) {
	p.notices = append(p.notices, Notice{
		Message: fmt.Sprintf("deprecated spelling %q: canonical form uses %q", old, approved),
		Span:    span,
	})
}

// terminator consumes the statement particle and returns its mood.
func (p *parser) terminator() (Mood, error) {
	t, err := p.expect(lexer.Terminator)
	if err != nil {
		return MoodPlain, err
	}
	if t.Text == "!" {
		return MoodEmphatic, nil
	}
	return MoodPlain, nil
}

func (p *parser) parseStmt() (Stmt, error) {
	t := p.cur()
	switch {
	case t.Is("when") || t.Is("if"):
		return p.parseWhen()
	case t.Is("repeat") || t.Is("loop"):
		return p.parseRepeat()
	case t.Is("expect") || t.Is("assert"):
		return p.parseExpect()
	case t.Kind == lexer.Resource:
		return p.parseAssign()
	case t.Kind == lexer.Ident:
		if p.peek().Kind == lexer.LParen {
			return p.parseCallStmt()
		}
		return p.parseAssign()
	default:
		return nil, p.errorf(t.Span, "expected a statement, found %s", p.describe(t))
	}
}

// parseWhen handles "when cond { } otherwise { }" and collapses the
// deprecated if/else vocabulary to it.
func (p *parser) parseWhen() (Stmt, error) {
	kw := p.advance()
	if kw.Text == "if" {
		p.deprecated(kw.Span, "if", "when")
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	then, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	stmt := &When{Cond: cond, Then: then, Span: kw.Span}
	if p.cur().Is("otherwise") || p.cur().Is("else") {
		alt := p.advance()
		if alt.Text == "else" {
			p.deprecated(alt.Span, "else", "otherwise")
		}
		stmt.Otherwise, err = p.parseBlock()
		if err != nil {
			return nil, err
		}
	}
	stmt.Span = source.Cover(kw.Span, p.tokens[p.pos-1].Span)
	return stmt, nil
}

// parseRepeat handles "repeat n { }" and the deprecated
// "loop n times { }" spelling.
func (p *parser) parseRepeat() (Stmt, error) {
	kw := p.advance()
	loopForm := kw.Text == "loop"
	if loopForm {
		p.deprecated(kw.Span, "loop ... times", "repeat")
	}
	count, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if loopForm {
		if !p.cur().Is("times") {
			return nil, p.errorf(p.cur().Span, "expected \"times\" after loop count")
		}
		p.advance()
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	return &Repeat{Count: count, Body: body, Span: source.Cover(kw.Span, p.tokens[p.pos-1].Span)}, nil
}

// parseExpect handles contracts. The mode is part of the declaration:
// "expect cond notify "msg"." or "expect cond enforce "msg".". The
// deprecated "assert" spelling collapses to a notify contract.
func (p *parser) parseExpect() (Stmt, error) {
	kw := p.advance()
	assertForm := kw.Text == "assert"
	if assertForm {
		p.deprecated(kw.Span, "assert", "expect ... notify")
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}

	mode := ModeNotify
	if !assertForm {
		switch {
		case p.cur().Is("notify"):
			p.advance()
		case p.cur().Is("enforce"):
			mode = ModeEnforce
			p.advance()
		default:
			return nil, p.errorf(p.cur().Span, "contract requires a mode: notify or enforce")
		}
	}

	var message string
	if p.at(lexer.String) {
		message = p.advance().Text
	}
	mood, err := p.terminator()
	if err != nil {
		return nil, err
	}
	return &Expect{
		Cond:    cond,
		Mode:    mode,
		Message: message,
		Mood:    mood,
		Span:    source.Cover(kw.Span, p.tokens[p.pos-1].Span),
	}, nil
}

// parseAssign handles "x <- e." and "$r <- e." plus the compound-update
// sugar forms, which expand to a plain assignment of a binary
// expression over the target.
func (p *parser) parseAssign() (Stmt, error) {
	target := p.advance()
	isResource := target.Kind == lexer.Resource
	if !isResource && target.Kind != lexer.Ident {
		return nil, p.errorf(target.Span, "expected assignment target, found %s", p.describe(target))
	}

	var compound BinOp
	hasCompound := false
	switch p.cur().Kind {
	case lexer.Assign:
		p.advance()
	case lexer.PlusAssign:
		compound, hasCompound = OpAdd, true
		p.advance()
	case lexer.MinusAssign:
		compound, hasCompound = OpSub, true
		p.advance()
	case lexer.StarAssign:
		compound, hasCompound = OpMul, true
		p.advance()
	case lexer.SlashAssign:
		compound, hasCompound = OpDiv, true
		p.advance()
	default:
		return nil, p.errorf(p.cur().Span, "expected <- after %q", target.Text)
	}

	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if hasCompound {
		var read Expr
		if isResource {
			read = &ResourceRef{Name: target.Text, Span: target.Span}
		} else {
			read = &Ident{Name: target.Text, Span: target.Span}
		}
		expr = &Binary{Op: compound, L: read, R: expr, Span: source.Cover(target.Span, expr.ExprSpan())}
	}
	mood, err := p.terminator()
	if err != nil {
		return nil, err
	}
	return &Assign{
		Resource: isResource,
		Name:     target.Text,
		Expr:     expr,
		Mood:     mood,
		Span:     source.Cover(target.Span, p.tokens[p.pos-1].Span),
	}, nil
}

func (p *parser) parseCallStmt() (Stmt, error) {
	call, err := p.parseCall(p.advance())
	if err != nil {
		return nil, err
	}
	mood, err := p.terminator()
	if err != nil {
		return nil, err
	}
	return &CallStmt{Call: call, Mood: mood, Span: source.Cover(call.Span, p.tokens[p.pos-1].Span)}, nil
}

func (p *parser) parseBlock() ([]Stmt, error) {
	if _, err := p.expect(lexer.LBrace); err != nil {
		return nil, err
	}
	var stmts []Stmt
	for !p.at(lexer.RBrace) {
		if p.at(lexer.EOF) {
			return nil, p.errorf(p.cur().Span, "unterminated block")
		}
		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	p.advance()
	return stmts, nil
}

// Expression grammar, lowest precedence first:
//
//	pipe: or ( "|>" callTarget )*
//	or:   and ( "or" and )*
//	and:  eq ( "and" eq )*
//	eq:   cmp ( ("=="|"!=") cmp )*
//	cmp:  add ( ("<"|">"|"<="|">=") add )*
//	add:  mul ( ("+"|"-") mul )*
//	mul:  unary ( ("*"|"/") unary )*
//	unary: ("-"|"not") unary | postfix
//	postfix: primary ( "[" expr "]" )*
func (p *parser) parseExpr() (Expr, error) {
	return p.parsePipe()
}

// parsePipe expands "a |> f(p: 1) |> g" into nested calls: the piped
// value binds to the callee's first declared pin.
func (p *parser) parsePipe() (Expr, error) {
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	for p.at(lexer.Pipe) {
		p.advance()
		name, err := p.expect(lexer.Ident)
		if err != nil {
			return nil, err
		}
		var call *Call
		if p.at(lexer.LParen) {
			call, err = p.parseCall(name)
			if err != nil {
				return nil, err
			}
		} else {
			call, err = p.newCall(name, nil)
			if err != nil {
				return nil, err
			}
		}
		spec := builtin.Lookup(call.ID)
		if len(spec.Pins) == 0 {
			return nil, p.errorf(name.Span, "cannot pipe into %q: it takes no pins", call.Name)
		}
		first := spec.Pins[0].Name
		if call.hasPin(first) {
			return nil, p.errorf(name.Span, "cannot pipe into %q: pin %q already bound", call.Name, first)
		}
		call.Args = append([]Arg{{Pin: first, Expr: expr}}, call.Args...)
		call.Span = source.Cover(expr.ExprSpan(), call.Span)
		expr = call
	}
	return expr, nil
}

func (p *parser) parseOr() (Expr, error) {
	expr, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.cur().Is("or") {
		p.advance()
		rhs, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		expr = &Binary{Op: OpOr, L: expr, R: rhs, Span: source.Cover(expr.ExprSpan(), rhs.ExprSpan())}
	}
	return expr, nil
}

func (p *parser) parseAnd() (Expr, error) {
	expr, err := p.parseEq()
	if err != nil {
		return nil, err
	}
	for p.cur().Is("and") {
		p.advance()
		rhs, err := p.parseEq()
		if err != nil {
			return nil, err
		}
		expr = &Binary{Op: OpAnd, L: expr, R: rhs, Span: source.Cover(expr.ExprSpan(), rhs.ExprSpan())}
	}
	return expr, nil
}

func (p *parser) parseEq() (Expr, error) {
	expr, err := p.parseCmp()
	if err != nil {
		return nil, err
	}
	for {
		var op BinOp
		switch p.cur().Kind {
		case lexer.EqEq:
			op = OpEq
		case lexer.NotEq:
			op = OpNe
		default:
			return expr, nil
		}
		p.advance()
		rhs, err := p.parseCmp()
		if err != nil {
			return nil, err
		}
		expr = &Binary{Op: op, L: expr, R: rhs, Span: source.Cover(expr.ExprSpan(), rhs.ExprSpan())}
	}
}

func (p *parser) parseCmp() (Expr, error) {
	expr, err := p.parseAdd()
	if err != nil {
		return nil, err
	}
	for {
		var op BinOp
		switch p.cur().Kind {
		case lexer.Lt:
			op = OpLt
		case lexer.Gt:
			op = OpGt
		case lexer.Le:
			op = OpLe
		case lexer.Ge:
			op = OpGe
		default:
			return expr, nil
		}
		p.advance()
		rhs, err := p.parseAdd()
		if err != nil {
			return nil, err
		}
		expr = &Binary{Op: op, L: expr, R: rhs, Span: source.Cover(expr.ExprSpan(), rhs.ExprSpan())}
	}
}

func (p *parser) parseAdd() (Expr, error) {
	expr, err := p.parseMul()
	if err != nil {
		return nil, err
	}
	for {
		var op BinOp
		switch p.cur().Kind {
		case lexer.Plus:
			op = OpAdd
		case lexer.Minus:
			op = OpSub
		default:
			return expr, nil
		}
		p.advance()
		rhs, err := p.parseMul()
		if err != nil {
			return nil, err
		}
		expr = &Binary{Op: op, L: expr, R: rhs, Span: source.Cover(expr.ExprSpan(), rhs.ExprSpan())}
	}
}

func (p *parser) parseMul() (Expr, error) {
	expr, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op BinOp
		switch p.cur().Kind {
		case lexer.Star:
			op = OpMul
		case lexer.Slash:
			op = OpDiv
		default:
			return expr, nil
		}
		p.advance()
		rhs, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		expr = &Binary{Op: op, L: expr, R: rhs, Span: source.Cover(expr.ExprSpan(), rhs.ExprSpan())}
	}
}

func (p *parser) parseUnary() (Expr, error) {
	switch {
	case p.at(lexer.Minus):
		t := p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: OpNeg, X: x, Span: source.Cover(t.Span, x.ExprSpan())}, nil
	case p.cur().Is("not"):
		t := p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: OpNot, X: x, Span: source.Cover(t.Span, x.ExprSpan())}, nil
	}
	return p.parsePostfix()
}

// parsePostfix expands the indexing sugar xs[i] to at(of: xs, index: i).
func (p *parser) parsePostfix() (Expr, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.at(lexer.LBracket) {
		p.advance()
		index, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		end, err := p.expect(lexer.RBracket)
		if err != nil {
			return nil, err
		}
		expr = &Call{
			ID:   builtin.At,
			Name: "at",
			Args: []Arg{{Pin: "of", Expr: expr}, {Pin: "index", Expr: index}},
			Span: source.Cover(expr.ExprSpan(), end.Span),
		}
	}
	return expr, nil
}

func (p *parser) parsePrimary() (Expr, error) {
	t := p.cur()
	switch t.Kind {
	case lexer.Number:
		p.advance()
		return p.finishNumber(t)
	case lexer.String:
		p.advance()
		return &TextLit{S: t.Text, Span: t.Span}, nil
	case lexer.Atom:
		p.advance()
		return &AtomLit{Name: t.Text, Span: t.Span}, nil
	case lexer.Resource:
		p.advance()
		return &ResourceRef{Name: t.Text, Span: t.Span}, nil
	case lexer.Ident:
		p.advance()
		if p.at(lexer.LParen) {
			return p.parseCall(t)
		}
		return &Ident{Name: t.Text, Span: t.Span}, nil
	case lexer.Keyword:
		switch t.Text {
		case "yes":
			p.advance()
			return &BoolLit{B: true, Span: t.Span}, nil
		case "no":
			p.advance()
			return &BoolLit{B: false, Span: t.Span}, nil
		case "nothing":
			p.advance()
			return &NothingLit{Span: t.Span}, nil
		}
	case lexer.LParen:
		p.advance()
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.RParen); err != nil {
			return nil, err
		}
		return expr, nil
	case lexer.LBracket:
		return p.parseListLit()
	case lexer.LBrace:
		return p.parsePairsLit()
	}
	return nil, p.errorf(t.Span, "expected an expression, found %s", p.describe(t))
}

// finishNumber builds a number literal, attaching a unit tag when an
// @suffix follows. The magnitude converts to the canonical unit here,
// at load time, so the interpreter only ever sees canonical magnitudes.
func (p *parser) finishNumber(t lexer.Token) (Expr, error) {
	f, err := fixed.Parse(t.Text)
	if err != nil {
		return nil, p.errorf(t.Span, "%s", err)
	}
	if !p.at(lexer.UnitName) {
		return &NumberLit{F: f, Span: t.Span}, nil
	}
	ut := p.advance()
	unit, ok := p.reg.Lookup(ut.Text)
	if !ok {
		// Lexer already resolved the name against the same registry.
		return nil, p.errorf(ut.Span, "unknown unit %q", ut.Text)
	}
	canonical, err := f.Mul(unit.Scale)
	if err != nil {
		return nil, p.errorf(source.Cover(t.Span, ut.Span), "unit literal overflows: %s", err)
	}
	return &UnitLit{F: canonical, Dim: unit.Dim, Span: source.Cover(t.Span, ut.Span)}, nil
}

func (p *parser) parseListLit() (Expr, error) {
	open := p.advance()
	lit := &ListLit{}
	for !p.at(lexer.RBracket) {
		if len(lit.Elems) > 0 {
			if _, err := p.expect(lexer.Comma); err != nil {
				return nil, err
			}
		}
		elem, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		lit.Elems = append(lit.Elems, elem)
	}
	end := p.advance()
	lit.Span = source.Cover(open.Span, end.Span)
	return lit, nil
}

func (p *parser) parsePairsLit() (Expr, error) {
	open := p.advance()
	lit := &PairsLit{}
	seen := map[string]bool{}
	for !p.at(lexer.RBrace) {
		if len(lit.Keys) > 0 {
			if _, err := p.expect(lexer.Comma); err != nil {
				return nil, err
			}
		}
		key, err := p.expect(lexer.Ident)
		if err != nil {
			return nil, err
		}
		if seen[key.Text] {
			return nil, p.errorf(key.Span, "duplicate pair key %q", key.Text)
		}
		seen[key.Text] = true
		if _, err := p.expect(lexer.Colon); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		lit.Keys = append(lit.Keys, key.Text)
		lit.Vals = append(lit.Vals, val)
	}
	end := p.advance()
	lit.Span = source.Cover(open.Span, end.Span)
	return lit, nil
}

// newCall resolves a builtin name. Unknown names are load-time errors;
// arity and type mismatches are runtime faults per the dispatch table.
func (p *parser) newCall(name lexer.Token, args []Arg) (*Call, error) {
	spec, ok := builtin.Resolve(name.Text)
	if !ok {
		return nil, p.errorf(name.Span, "unknown operation %q", name.Text)
	}
	return &Call{ID: spec.ID, Name: spec.Name, Args: args, Span: name.Span}, nil
}

func (c *Call) hasPin(name string) bool {
	for _, a := range c.Args {
		if a.Pin == name {
			return true
		}
	}
	return false
}

// parseCall parses the pin bundle after a callee name. Pins may be
// named ("at: 3") or positional; positional pins bind in the builtin
// table's declaration order. Extra positional pins beyond the table are
// load-time errors because they cannot be named; arity shortfalls stay
// runtime faults.
func (p *parser) parseCall(name lexer.Token) (*Call, error) {
	call, err := p.newCall(name, nil)
	if err != nil {
		return nil, err
	}
	spec := builtin.Lookup(call.ID)

	if _, err := p.expect(lexer.LParen); err != nil {
		return nil, err
	}
	positional := 0
	for !p.at(lexer.RParen) {
		if len(call.Args) > 0 {
			if _, err := p.expect(lexer.Comma); err != nil {
				return nil, err
			}
		}

		// Named pin: ident ':' expr. Positional otherwise.
		if p.at(lexer.Ident) && p.peek().Kind == lexer.Colon {
			pin := p.advance()
			p.advance() // colon
			if spec.Pin(pin.Text) < 0 {
				return nil, p.errorf(pin.Span, "operation %q has no pin %q", call.Name, pin.Text)
			}
			if call.hasPin(pin.Text) {
				return nil, p.errorf(pin.Span, "pin %q bound twice in call to %q", pin.Text, call.Name)
			}
			expr, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, Arg{Pin: pin.Text, Expr: expr})
			continue
		}

		if positional >= len(spec.Pins) {
			return nil, p.errorf(p.cur().Span, "too many pins in call to %q", call.Name)
		}
		pinName := spec.Pins[positional].Name
		if call.hasPin(pinName) {
			return nil, p.errorf(p.cur().Span, "pin %q bound twice in call to %q", pinName, call.Name)
		}
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, Arg{Pin: pinName, Expr: expr})
		positional++
	}
	end := p.advance()
	call.Span = source.Cover(name.Span, end.Span)
	return call, nil
}
