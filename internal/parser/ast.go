// Package parser turns a token stream into the program AST.
//
// Sugar forms are expanded during parsing, so the AST is already in
// normal shape: if/else becomes when/otherwise, assert becomes a notify
// contract, indexing becomes an at() call, pipe chains become nested
// calls, and compound updates become plain assignments. Deprecated
// vocabulary is collapsed with a non-terminal Notice, never silently.
// The canonicalizer is therefore a pure renderer and the interpreter
// never sees sugar.
package parser

import (
	"fmt"

	"github.com/lockstep-sim/lockstep/internal/builtin"
	"github.com/lockstep-sim/lockstep/internal/fixed"
	"github.com/lockstep-sim/lockstep/internal/source"
	"github.com/lockstep-sim/lockstep/internal/units"
)

// Program is the parsed, desugared form of one source file. Immutable
// after Parse returns.
type Program struct {
	Stmts   []Stmt
	Notices []Notice
}

// Notice is a non-terminal diagnostic attached at parse time, e.g. a
// deprecated spelling that was collapsed to its approved form.
type Notice struct {
	Message string
	Span    source.Span
}

// Mood is the statement mood inferred from the trailing particle.
// Canonical text always renders the plain particle; mood survives on
// the AST for tooling.
type Mood int

const (
	MoodPlain    Mood = iota // "."
	MoodEmphatic             // "!"
)

// ContractMode selects how a violated contract behaves. Declared per
// contract, never globally.
type ContractMode int

const (
	// ModeNotify logs the violation and continues.
	ModeNotify ContractMode = iota
	// ModeEnforce blocks the guarded effect.
	ModeEnforce
)

func (m ContractMode) String() string {
	if m == ModeEnforce {
		return "enforce"
	}
	return "notify"
}

// Stmt is a statement node.
type Stmt interface {
	stmt()
	StmtSpan() source.Span
}

// Assign writes a local variable or a world resource.
type Assign struct {
	Resource bool // target is $name
	Name     string
	Expr     Expr
	Mood     Mood
	Span     source.Span
}

// When is the conditional statement. Otherwise may be nil.
type When struct {
	Cond      Expr
	Then      []Stmt
	Otherwise []Stmt
	Span      source.Span
}

// Repeat runs its body a fixed number of times.
type Repeat struct {
	Count Expr
	Body  []Stmt
	Span  source.Span
}

// Expect is a contract: a boolean guard with a per-declaration mode.
type Expect struct {
	Cond    Expr
	Mode    ContractMode
	Message string
	Mood    Mood
	Span    source.Span
}

// CallStmt is a builtin call in statement position.
type CallStmt struct {
	Call *Call
	Mood Mood
	Span source.Span
}

func (*Assign) stmt()   {}
func (*When) stmt()     {}
func (*Repeat) stmt()   {}
func (*Expect) stmt()   {}
func (*CallStmt) stmt() {}

func (s *Assign) StmtSpan() source.Span   { return s.Span }
func (s *When) StmtSpan() source.Span     { return s.Span }
func (s *Repeat) StmtSpan() source.Span   { return s.Span }
func (s *Expect) StmtSpan() source.Span   { return s.Span }
func (s *CallStmt) StmtSpan() source.Span { return s.Span }

// Expr is an expression node.
type Expr interface {
	expr()
	ExprSpan() source.Span
}

// NumberLit is a dimensionless fixed-point literal.
type NumberLit struct {
	F    fixed.F64
	Span source.Span
}

// UnitLit is a unit-tagged literal. F is already converted to the
// canonical unit of Dim, so 2@kilometers stores 2000 with dim length.
type UnitLit struct {
	F    fixed.F64
	Dim  units.Dim
	Span source.Span
}

// TextLit is a string literal (escapes already decoded).
type TextLit struct {
	S    string
	Span source.Span
}

// AtomLit is a :name literal.
type AtomLit struct {
	Name string
	Span source.Span
}

// BoolLit is yes/no.
type BoolLit struct {
	B    bool
	Span source.Span
}

// NothingLit is the literal nothing.
type NothingLit struct {
	Span source.Span
}

// Ident reads a local variable.
type Ident struct {
	Name string
	Span source.Span
}

// ResourceRef reads a world resource, written $name.
type ResourceRef struct {
	Name string
	Span source.Span
}

// ListLit is [a, b, c].
type ListLit struct {
	Elems []Expr
	Span  source.Span
}

// PairsLit is {k: v, ...}. Keys and Vals are parallel slices in source
// order; the canonicalizer renders them sorted.
type PairsLit struct {
	Keys []string
	Vals []Expr
	Span source.Span
}

// UnaryOp is a prefix operator.
type UnaryOp int

const (
	OpNeg UnaryOp = iota
	OpNot
)

// Unary applies a prefix operator.
type Unary struct {
	Op   UnaryOp
	X    Expr
	Span source.Span
}

// BinOp is a binary operator.
type BinOp int

const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpDiv
	OpEq
	OpNe
	OpLt
	OpGt
	OpLe
	OpGe
	OpAnd
	OpOr
)

var binOpText = map[BinOp]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/",
	OpEq: "==", OpNe: "!=", OpLt: "<", OpGt: ">", OpLe: "<=", OpGe: ">=",
	OpAnd: "and", OpOr: "or",
}

// Text returns the operator's surface spelling.
func (op BinOp) Text() string { return binOpText[op] }

// Binary applies a binary operator.
type Binary struct {
	Op   BinOp
	L, R Expr
	Span source.Span
}

// Arg is one bound pin of a call. Pin is always the full pin name from
// the builtin table by the time parsing finishes.
type Arg struct {
	Pin  string
	Expr Expr
}

// Call invokes a builtin, resolved to its ID at parse time.
type Call struct {
	ID   builtin.ID
	Name string
	Args []Arg
	Span source.Span
}

func (*NumberLit) expr()   {}
func (*UnitLit) expr()     {}
func (*TextLit) expr()     {}
func (*AtomLit) expr()     {}
func (*BoolLit) expr()     {}
func (*NothingLit) expr()  {}
func (*Ident) expr()       {}
func (*ResourceRef) expr() {}
func (*ListLit) expr()     {}
func (*PairsLit) expr()    {}
func (*Unary) expr()       {}
func (*Binary) expr()      {}
func (*Call) expr()        {}

func (e *NumberLit) ExprSpan() source.Span   { return e.Span }
func (e *UnitLit) ExprSpan() source.Span     { return e.Span }
func (e *TextLit) ExprSpan() source.Span     { return e.Span }
func (e *AtomLit) ExprSpan() source.Span     { return e.Span }
func (e *BoolLit) ExprSpan() source.Span     { return e.Span }
func (e *NothingLit) ExprSpan() source.Span  { return e.Span }
func (e *Ident) ExprSpan() source.Span       { return e.Span }
func (e *ResourceRef) ExprSpan() source.Span { return e.Span }
func (e *ListLit) ExprSpan() source.Span     { return e.Span }
func (e *PairsLit) ExprSpan() source.Span    { return e.Span }
func (e *Unary) ExprSpan() source.Span       { return e.Span }
func (e *Binary) ExprSpan() source.Span      { return e.Span }
func (e *Call) ExprSpan() source.Span        { return e.Span }

// Error is a terminal syntax error. Machine code E_PARSE.
type Error struct {
	Message string
	Span    source.Span
}

func (e *Error) Error() string {
	return fmt.Sprintf("E_PARSE at %s: %s", e.Span, e.Message)
}
