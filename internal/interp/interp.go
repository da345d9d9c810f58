// Package interp walks a canonical program and evaluates one tick.
//
// The interpreter is cooperative and non-preemptible: statements run in
// program order, there is no intra-tick concurrency, and the only
// non-determinism it can observe is the InputSnapshot it was handed.
// It never mutates the World — every intended mutation becomes a Patch
// in the ordered output list, and runtime faults become Signals.
// Committing a tick is the caller applying that list in order.
package interp

import (
	"fmt"

	"github.com/lockstep-sim/lockstep/internal/fixed"
	"github.com/lockstep-sim/lockstep/internal/parser"
	"github.com/lockstep-sim/lockstep/internal/snapshot"
	"github.com/lockstep-sim/lockstep/internal/units"
	"github.com/lockstep-sim/lockstep/internal/value"
	"github.com/lockstep-sim/lockstep/internal/world"
)

// DefaultMaxSteps bounds statements executed per tick so a runaway
// repeat cannot stall the tick loop.
const DefaultMaxSteps = 100_000

// Interpreter evaluates programs. Construct once and share; it holds
// only immutable configuration.
type Interpreter struct {
	reg      *units.Registry
	maxSteps int
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithMaxSteps overrides the per-tick statement budget.
func WithMaxSteps(n int) Option {
	return func(in *Interpreter) { in.maxSteps = n }
}

// New creates an Interpreter over the given unit registry.
func New(reg *units.Registry, opts ...Option) *Interpreter {
	in := &Interpreter{reg: reg, maxSteps: DefaultMaxSteps}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// TickResult is the output of one tick evaluation: the ordered patch
// list plus the fault signals raised along the way. Draws records how
// many random draws the tick consumed; it is part of the deterministic
// trace surface.
type TickResult struct {
	Patches []world.Patch
	Faults  []world.Signal
	Draws   int64
}

// Tick evaluates the whole program once against a read-only world view
// and the tick's snapshot. The returned error is terminal (step quota
// exceeded or a corrupted AST); ordinary runtime faults are in
// TickResult.Faults and never abort the tick.
func (in *Interpreter) Tick(prog *parser.Program, w *world.World, snap snapshot.Snapshot) (TickResult, error) {
	r := &run{
		in:         in,
		world:      w,
		snap:       snap,
		rng:        newRNG(snap.Seed),
		locals:     make(map[string]value.Value),
		resources:  make(map[string]value.Value),
		components: make(map[componentKey]value.Value),
		removed:    make(map[componentKey]bool),
	}
	_, err := r.execBlock(prog.Stmts)
	if err != nil {
		return TickResult{}, err
	}
	return TickResult{Patches: r.patches, Faults: r.faults, Draws: r.rng.draws}, nil
}

type componentKey struct {
	entity value.Handle
	tag    string
}

// run is the per-tick evaluation state. The resource and component
// maps overlay the world so statements observe earlier writes from the
// same tick; the world itself stays untouched.
type run struct {
	in    *Interpreter
	world *world.World
	snap  snapshot.Snapshot
	rng   *rng

	locals     map[string]value.Value
	resources  map[string]value.Value
	components map[componentKey]value.Value
	removed    map[componentKey]bool

	patches []world.Patch
	faults  []world.Signal

	steps      int
	inContract bool
}

// raise records a fault signal. Faults are ordinary data; execution
// continues at the caller's discretion.
func (r *run) raise(f *fault) {
	r.faults = append(r.faults, f.signal())
}

// execBlock runs statements in order. blocked=true means an enforce
// contract fired and the remainder of this block was withheld.
func (r *run) execBlock(stmts []parser.Stmt) (blocked bool, err error) {
	for _, stmt := range stmts {
		stop, err := r.exec(stmt)
		if err != nil {
			return false, err
		}
		if stop {
			return true, nil
		}
	}
	return false, nil
}

func (r *run) exec(stmt parser.Stmt) (blocked bool, err error) {
	r.steps++
	if r.steps > r.in.maxSteps {
		return false, fmt.Errorf("interp: step budget of %d exceeded at %s", r.in.maxSteps, stmt.StmtSpan())
	}

	switch st := stmt.(type) {
	case *parser.Assign:
		v, flt := r.eval(st.Expr)
		if flt != nil {
			// Void the assignment: prior value retained.
			r.raise(flt)
			return false, nil
		}
		if st.Resource {
			r.resources[st.Name] = v
			r.patches = append(r.patches, world.SetResource(st.Name, v))
		} else {
			r.locals[st.Name] = v
		}
		return false, nil

	case *parser.When:
		cond, flt := r.eval(st.Cond)
		if flt != nil {
			r.raise(flt)
			return false, nil
		}
		b, ok := value.Truthy(cond)
		if !ok {
			r.raise(typeMismatch(st.Cond.ExprSpan(), "condition is %s, want bool", cond.Kind()))
			return false, nil
		}
		// An enforce violation blocks only its own block: absorb the
		// flag here so statements after the when still run.
		if b {
			_, err := r.execBlock(st.Then)
			return false, err
		}
		_, err := r.execBlock(st.Otherwise)
		return false, err

	case *parser.Repeat:
		count, flt := r.eval(st.Count)
		if flt != nil {
			r.raise(flt)
			return false, nil
		}
		n, ok := wholeNumber(count)
		if !ok || n < 0 {
			r.raise(typeMismatch(st.Count.ExprSpan(), "repeat count must be a non-negative whole number, got %s", value.Render(count)))
			return false, nil
		}
		for i := int64(0); i < n; i++ {
			blocked, err := r.execBlock(st.Body)
			if err != nil {
				return false, err
			}
			if blocked {
				// Remaining iterations are withheld, but the loop's
				// own enclosing block continues.
				break
			}
		}
		return false, nil

	case *parser.Expect:
		return r.execExpect(st)

	case *parser.CallStmt:
		_, flt := r.evalCall(st.Call)
		if flt != nil {
			r.raise(flt)
		}
		return false, nil

	default:
		return false, fmt.Errorf("interp: unknown statement form %T", stmt)
	}
}

// execExpect evaluates a contract guard. Randomness is rejected inside
// the guard; a violated guard notifies or, in enforce mode, blocks the
// remainder of the enclosing block.
func (r *run) execExpect(st *parser.Expect) (blocked bool, err error) {
	r.inContract = true
	cond, flt := r.eval(st.Cond)
	r.inContract = false
	if flt != nil {
		r.raise(flt)
		return false, nil
	}
	b, ok := value.Truthy(cond)
	if !ok {
		r.raise(typeMismatch(st.Cond.ExprSpan(), "contract guard is %s, want bool", cond.Kind()))
		return false, nil
	}
	if b {
		return false, nil
	}

	f := newFault(world.SignalContractViolation, st.Span, "contract violated: %s", st.Message)
	f.payload = value.Pairs{"mode": value.Text(st.Mode.String())}
	r.raise(f)
	return st.Mode == parser.ModeEnforce, nil
}

// readResource observes a resource through the tick overlay. An absent
// resource reads as zero: resource slots are counters and gauges by
// default, and the first `$n <- $n + 1.` of a fresh world must work.
func (r *run) readResource(name string) value.Value {
	if v, ok := r.resources[name]; ok {
		return v
	}
	if v, ok := r.world.Resource(name); ok {
		return v
	}
	return value.Num(0)
}

// readComponent observes a component slot through the tick overlay.
func (r *run) readComponent(entity value.Handle, tag string) (value.Value, bool) {
	key := componentKey{entity: entity, tag: tag}
	if r.removed[key] {
		return nil, false
	}
	if v, ok := r.components[key]; ok {
		return v, true
	}
	return r.world.Component(entity, tag)
}

func (r *run) eval(e parser.Expr) (value.Value, *fault) {
	switch ex := e.(type) {
	case *parser.NumberLit:
		return value.Number{F: ex.F}, nil
	case *parser.UnitLit:
		return value.Unit{F: ex.F, Dim: ex.Dim}, nil
	case *parser.TextLit:
		return value.Text(ex.S), nil
	case *parser.AtomLit:
		return value.Atom(ex.Name), nil
	case *parser.BoolLit:
		return value.Bool(ex.B), nil
	case *parser.NothingLit:
		return value.Nothing{}, nil
	case *parser.Ident:
		v, ok := r.locals[ex.Name]
		if !ok {
			return nil, typeMismatch(ex.Span, "unknown variable %q", ex.Name)
		}
		return v, nil
	case *parser.ResourceRef:
		return r.readResource(ex.Name), nil
	case *parser.ListLit:
		out := make(value.List, len(ex.Elems))
		for i, elem := range ex.Elems {
			v, flt := r.eval(elem)
			if flt != nil {
				return nil, flt
			}
			out[i] = v
		}
		return out, nil
	case *parser.PairsLit:
		out := make(value.Pairs, len(ex.Keys))
		for i, key := range ex.Keys {
			v, flt := r.eval(ex.Vals[i])
			if flt != nil {
				return nil, flt
			}
			out[key] = v
		}
		return out, nil
	case *parser.Unary:
		return r.evalUnary(ex)
	case *parser.Binary:
		return r.evalBinary(ex)
	case *parser.Call:
		return r.evalCall(ex)
	default:
		return nil, typeMismatch(e.ExprSpan(), "unknown expression form %T", e)
	}
}

func (r *run) evalUnary(ex *parser.Unary) (value.Value, *fault) {
	x, flt := r.eval(ex.X)
	if flt != nil {
		return nil, flt
	}
	switch ex.Op {
	case parser.OpNot:
		b, ok := x.(value.Bool)
		if !ok {
			return nil, typeMismatch(ex.Span, "not applies to bool, got %s", x.Kind())
		}
		return value.Bool(!b), nil
	case parser.OpNeg:
		switch v := x.(type) {
		case value.Number:
			f, err := v.F.Neg()
			if err != nil {
				return nil, arithmeticFault(ex.Span, "negation overflow")
			}
			return value.Number{F: f}, nil
		case value.Unit:
			f, err := v.F.Neg()
			if err != nil {
				return nil, arithmeticFault(ex.Span, "negation overflow")
			}
			return value.Unit{F: f, Dim: v.Dim}, nil
		default:
			return nil, typeMismatch(ex.Span, "negation applies to numbers, got %s", x.Kind())
		}
	}
	return nil, typeMismatch(ex.Span, "unknown unary operator")
}

func (r *run) evalBinary(ex *parser.Binary) (value.Value, *fault) {
	// Short-circuit logic first.
	if ex.Op == parser.OpAnd || ex.Op == parser.OpOr {
		return r.evalLogic(ex)
	}
	l, flt := r.eval(ex.L)
	if flt != nil {
		return nil, flt
	}
	rv, flt := r.eval(ex.R)
	if flt != nil {
		return nil, flt
	}
	switch ex.Op {
	case parser.OpEq:
		return value.Bool(value.Equal(l, rv)), nil
	case parser.OpNe:
		return value.Bool(!value.Equal(l, rv)), nil
	case parser.OpLt, parser.OpGt, parser.OpLe, parser.OpGe:
		return r.compare(ex, l, rv)
	default:
		return r.arith(ex, l, rv)
	}
}

func (r *run) evalLogic(ex *parser.Binary) (value.Value, *fault) {
	l, flt := r.eval(ex.L)
	if flt != nil {
		return nil, flt
	}
	lb, ok := l.(value.Bool)
	if !ok {
		return nil, typeMismatch(ex.L.ExprSpan(), "%s applies to bool, got %s", ex.Op.Text(), l.Kind())
	}
	if ex.Op == parser.OpAnd && !bool(lb) {
		return value.Bool(false), nil
	}
	if ex.Op == parser.OpOr && bool(lb) {
		return value.Bool(true), nil
	}
	rv, flt := r.eval(ex.R)
	if flt != nil {
		return nil, flt
	}
	rb, ok := rv.(value.Bool)
	if !ok {
		return nil, typeMismatch(ex.R.ExprSpan(), "%s applies to bool, got %s", ex.Op.Text(), rv.Kind())
	}
	return rb, nil
}

// numeric splits a value into magnitude and dimension. Plain numbers
// are scalar-dimensioned.
func numeric(v value.Value) (f fixed.F64, dim units.Dim, ok bool) {
	switch tv := v.(type) {
	case value.Number:
		return tv.F, units.Scalar, true
	case value.Unit:
		return tv.F, tv.Dim, true
	default:
		return 0, units.Scalar, false
	}
}

// compare orders two numeric values of equal dimension.
func (r *run) compare(ex *parser.Binary, l, rv value.Value) (value.Value, *fault) {
	lf, ld, ok := numeric(l)
	if !ok {
		return nil, typeMismatch(ex.L.ExprSpan(), "%s applies to numbers, got %s", ex.Op.Text(), l.Kind())
	}
	rf, rd, ok := numeric(rv)
	if !ok {
		return nil, typeMismatch(ex.R.ExprSpan(), "%s applies to numbers, got %s", ex.Op.Text(), rv.Kind())
	}
	if ld != rd {
		return nil, dimensionFault(ex.Span, "cannot compare %s with %s", ld, rd)
	}
	c := lf.Cmp(rf)
	switch ex.Op {
	case parser.OpLt:
		return value.Bool(c < 0), nil
	case parser.OpGt:
		return value.Bool(c > 0), nil
	case parser.OpLe:
		return value.Bool(c <= 0), nil
	default:
		return value.Bool(c >= 0), nil
	}
}

// arith evaluates +, -, *, / under the dimension rules: addition and
// subtraction require equal dimensions; multiplication and division
// combine them. A scalar result collapses back to a plain number.
func (r *run) arith(ex *parser.Binary, l, rv value.Value) (value.Value, *fault) {
	lf, ld, ok := numeric(l)
	if !ok {
		return nil, typeMismatch(ex.L.ExprSpan(), "%s applies to numbers, got %s", ex.Op.Text(), l.Kind())
	}
	rf, rd, ok := numeric(rv)
	if !ok {
		return nil, typeMismatch(ex.R.ExprSpan(), "%s applies to numbers, got %s", ex.Op.Text(), rv.Kind())
	}

	var dim units.Dim
	switch ex.Op {
	case parser.OpAdd, parser.OpSub:
		if ld != rd {
			return nil, dimensionFault(ex.Span, "cannot %s %s and %s",
				map[parser.BinOp]string{parser.OpAdd: "add", parser.OpSub: "subtract"}[ex.Op], ld, rd)
		}
		dim = ld
	case parser.OpMul:
		dim = ld.Mul(rd)
	case parser.OpDiv:
		dim = ld.Div(rd)
	}

	var f fixed.F64
	var err error
	switch ex.Op {
	case parser.OpAdd:
		f, err = lf.Add(rf)
	case parser.OpSub:
		f, err = lf.Sub(rf)
	case parser.OpMul:
		f, err = lf.Mul(rf)
	case parser.OpDiv:
		f, err = lf.Div(rf)
	}
	if err != nil {
		return nil, arithmeticFault(ex.Span, "%s", err)
	}
	if dim.IsScalar() {
		return value.Number{F: f}, nil
	}
	return value.Unit{F: f, Dim: dim}, nil
}

// wholeNumber extracts an integer from a Number with no fraction.
func wholeNumber(v value.Value) (int64, bool) {
	n, ok := v.(value.Number)
	if !ok {
		return 0, false
	}
	if n.F != n.F.Floor() {
		return 0, false
	}
	return n.F.Int(), true
}
