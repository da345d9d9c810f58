// Package source carries positions and spans for diagnostics.
//
// Every token, AST node, and fault that can point back at program text
// carries a Span. Spans are half-open byte ranges with line/column data
// for human-readable rendering.
package source

import "fmt"

// Pos is a position within a program source.
// Offset is a byte offset; Line and Col are 1-based.
type Pos struct {
	Offset int `json:"offset"`
	Line   int `json:"line"`
	Col    int `json:"col"`
}

// Span is a half-open range [Start, End) within a program source.
type Span struct {
	Start Pos `json:"start"`
	End   Pos `json:"end"`
}

// NewSpan builds a span from two positions.
func NewSpan(start, end Pos) Span {
	return Span{Start: start, End: end}
}

// String renders a span as "line:col" or "line:col-line:col".
func (s Span) String() string {
	if s.Start.Line == s.End.Line {
		return fmt.Sprintf("%d:%d-%d", s.Start.Line, s.Start.Col, s.End.Col)
	}
	return fmt.Sprintf("%d:%d-%d:%d", s.Start.Line, s.Start.Col, s.End.Line, s.End.Col)
}

// IsZero reports whether the span carries no position information.
func (s Span) IsZero() bool {
	return s == Span{}
}

// Cover returns the smallest span containing both a and b.
// A zero span on either side yields the other unchanged.
func Cover(a, b Span) Span {
	if a.IsZero() {
		return b
	}
	if b.IsZero() {
		return a
	}
	out := a
	if b.Start.Offset < a.Start.Offset {
		out.Start = b.Start
	}
	if b.End.Offset > a.End.Offset {
		out.End = b.End
	}
	return out
}
