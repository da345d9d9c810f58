// Package canon renders a parsed program into its one canonical text.
//
// Canonical text is the basis for golden-file testing and program
// identity: two sources that canonicalize identically behave
// identically given the same snapshot sequence. The renderer is total
// over the AST the parser produces; an AST shape it does not recognize
// raises a structured diagnostic naming the offending pattern rather
// than guessing.
//
// Rendering rules:
//   - statement particle is always "." (mood lives on the AST only)
//   - block indentation is two spaces per depth
//   - call pins render alphabetically by pin name
//   - pair-set keys render in canonical key order
//   - unit literals render in the canonical unit of their dimension
//   - deprecated vocabulary never appears (the parser collapsed it)
//
// Normalize is idempotent: parsing the output and normalizing again
// reproduces it byte for byte.
package canon

import (
	"fmt"
	"slices"
	"strings"

	"github.com/lockstep-sim/lockstep/internal/parser"
	"github.com/lockstep-sim/lockstep/internal/source"
	"github.com/lockstep-sim/lockstep/internal/units"
	"github.com/lockstep-sim/lockstep/internal/value"
)

// Diagnostic is a structured canonicalization failure. Machine code
// E_CANON.
type Diagnostic struct {
	Pattern string
	Span    source.Span
}

func (d *Diagnostic) Error() string {
	return fmt.Sprintf("E_CANON at %s: cannot canonicalize %s", d.Span, d.Pattern)
}

// Normalize renders the canonical text of a program. The registry
// provides canonical unit names for unit literals.
func Normalize(prog *parser.Program, reg *units.Registry) (string, error) {
	r := &renderer{reg: reg}
	for _, stmt := range prog.Stmts {
		if err := r.stmt(stmt, 0); err != nil {
			return "", err
		}
	}
	return r.b.String(), nil
}

type renderer struct {
	b   strings.Builder
	reg *units.Registry
}

func (r *renderer) indent(depth int) {
	for i := 0; i < depth; i++ {
		r.b.WriteString("  ")
	}
}

func (r *renderer) stmt(s parser.Stmt, depth int) error {
	r.indent(depth)
	switch st := s.(type) {
	case *parser.Assign:
		if st.Resource {
			r.b.WriteByte('$')
		}
		r.b.WriteString(st.Name)
		r.b.WriteString(" <- ")
		if err := r.expr(st.Expr, 0); err != nil {
			return err
		}
		r.b.WriteString(".\n")

	case *parser.When:
		r.b.WriteString("when ")
		if err := r.expr(st.Cond, 0); err != nil {
			return err
		}
		r.b.WriteString(" {\n")
		for _, inner := range st.Then {
			if err := r.stmt(inner, depth+1); err != nil {
				return err
			}
		}
		r.indent(depth)
		if st.Otherwise == nil {
			r.b.WriteString("}\n")
			return nil
		}
		r.b.WriteString("} otherwise {\n")
		for _, inner := range st.Otherwise {
			if err := r.stmt(inner, depth+1); err != nil {
				return err
			}
		}
		r.indent(depth)
		r.b.WriteString("}\n")

	case *parser.Repeat:
		r.b.WriteString("repeat ")
		if err := r.expr(st.Count, 0); err != nil {
			return err
		}
		r.b.WriteString(" {\n")
		for _, inner := range st.Body {
			if err := r.stmt(inner, depth+1); err != nil {
				return err
			}
		}
		r.indent(depth)
		r.b.WriteString("}\n")

	case *parser.Expect:
		r.b.WriteString("expect ")
		if err := r.expr(st.Cond, 0); err != nil {
			return err
		}
		r.b.WriteByte(' ')
		r.b.WriteString(st.Mode.String())
		if st.Message != "" {
			r.b.WriteByte(' ')
			r.writeString(st.Message)
		}
		r.b.WriteString(".\n")

	case *parser.CallStmt:
		if err := r.call(st.Call); err != nil {
			return err
		}
		r.b.WriteString(".\n")

	default:
		return &Diagnostic{Pattern: fmt.Sprintf("statement form %T", s), Span: s.StmtSpan()}
	}
	return nil
}

// Operator precedence levels for minimal parenthesization. Matches the
// parser's grammar.
const (
	precOr = iota + 1
	precAnd
	precEq
	precCmp
	precAdd
	precMul
	precUnary
)

func binPrec(op parser.BinOp) int {
	switch op {
	case parser.OpOr:
		return precOr
	case parser.OpAnd:
		return precAnd
	case parser.OpEq, parser.OpNe:
		return precEq
	case parser.OpLt, parser.OpGt, parser.OpLe, parser.OpGe:
		return precCmp
	case parser.OpAdd, parser.OpSub:
		return precAdd
	default:
		return precMul
	}
}

// expr renders an expression, parenthesizing when the child binds more
// loosely than its context requires.
func (r *renderer) expr(e parser.Expr, minPrec int) error {
	switch ex := e.(type) {
	case *parser.NumberLit:
		r.b.WriteString(ex.F.String())

	case *parser.UnitLit:
		u, ok := r.reg.CanonicalUnit(ex.Dim)
		if !ok {
			return &Diagnostic{Pattern: fmt.Sprintf("unit literal with unregistered dimension %s", ex.Dim), Span: ex.Span}
		}
		r.b.WriteString(ex.F.String())
		r.b.WriteByte('@')
		r.b.WriteString(u.Name)

	case *parser.TextLit:
		r.writeString(ex.S)

	case *parser.AtomLit:
		r.b.WriteByte(':')
		r.b.WriteString(ex.Name)

	case *parser.BoolLit:
		if ex.B {
			r.b.WriteString("yes")
		} else {
			r.b.WriteString("no")
		}

	case *parser.NothingLit:
		r.b.WriteString("nothing")

	case *parser.Ident:
		r.b.WriteString(ex.Name)

	case *parser.ResourceRef:
		r.b.WriteByte('$')
		r.b.WriteString(ex.Name)

	case *parser.ListLit:
		r.b.WriteByte('[')
		for i, elem := range ex.Elems {
			if i > 0 {
				r.b.WriteString(", ")
			}
			if err := r.expr(elem, 0); err != nil {
				return err
			}
		}
		r.b.WriteByte(']')

	case *parser.PairsLit:
		r.b.WriteByte('{')
		for i, idx := range sortedPairOrder(ex.Keys) {
			if i > 0 {
				r.b.WriteString(", ")
			}
			r.b.WriteString(ex.Keys[idx])
			r.b.WriteString(": ")
			if err := r.expr(ex.Vals[idx], 0); err != nil {
				return err
			}
		}
		r.b.WriteByte('}')

	case *parser.Unary:
		if minPrec > precUnary {
			r.b.WriteByte('(')
		}
		if ex.Op == parser.OpNot {
			r.b.WriteString("not ")
		} else {
			r.b.WriteByte('-')
		}
		if err := r.expr(ex.X, precUnary); err != nil {
			return err
		}
		if minPrec > precUnary {
			r.b.WriteByte(')')
		}

	case *parser.Binary:
		prec := binPrec(ex.Op)
		if prec < minPrec {
			r.b.WriteByte('(')
		}
		if err := r.expr(ex.L, prec); err != nil {
			return err
		}
		r.b.WriteByte(' ')
		r.b.WriteString(ex.Op.Text())
		r.b.WriteByte(' ')
		// Left-associative grammar: an equal-precedence right child
		// needs parens to round-trip (a - (b - c)).
		if err := r.expr(ex.R, prec+1); err != nil {
			return err
		}
		if prec < minPrec {
			r.b.WriteByte(')')
		}

	case *parser.Call:
		if err := r.call(ex); err != nil {
			return err
		}

	default:
		return &Diagnostic{Pattern: fmt.Sprintf("expression form %T", e), Span: e.ExprSpan()}
	}
	return nil
}

// call renders a builtin call with pins in alphabetical order.
func (r *renderer) call(c *parser.Call) error {
	r.b.WriteString(c.Name)
	r.b.WriteByte('(')
	args := make([]parser.Arg, len(c.Args))
	copy(args, c.Args)
	slices.SortFunc(args, func(a, b parser.Arg) int {
		return strings.Compare(a.Pin, b.Pin)
	})
	for i, a := range args {
		if i > 0 {
			r.b.WriteString(", ")
		}
		r.b.WriteString(a.Pin)
		r.b.WriteString(": ")
		if err := r.expr(a.Expr, 0); err != nil {
			return err
		}
	}
	r.b.WriteByte(')')
	return nil
}

// writeString renders a string literal using exactly the language's
// escape set, so canonical text re-lexes to the same value.
func (r *renderer) writeString(s string) {
	r.b.WriteByte('"')
	for _, c := range s {
		switch c {
		case '\n':
			r.b.WriteString(`\n`)
		case '\t':
			r.b.WriteString(`\t`)
		case '\r':
			r.b.WriteString(`\r`)
		case '"':
			r.b.WriteString(`\"`)
		case '\\':
			r.b.WriteString(`\\`)
		default:
			r.b.WriteRune(c)
		}
	}
	r.b.WriteByte('"')
}

// sortedPairOrder returns indices of keys in canonical key order.
func sortedPairOrder(keys []string) []int {
	order := make([]int, len(keys))
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int {
		return value.CompareKeys(keys[a], keys[b])
	})
	return order
}
