package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func span(startOff, startLine, startCol, endOff, endLine, endCol int) Span {
	return NewSpan(
		Pos{Offset: startOff, Line: startLine, Col: startCol},
		Pos{Offset: endOff, Line: endLine, Col: endCol},
	)
}

func TestSpanString(t *testing.T) {
	assert.Equal(t, "1:5-9", span(4, 1, 5, 8, 1, 9).String())
	assert.Equal(t, "1:5-3:2", span(4, 1, 5, 30, 3, 2).String())
}

func TestCover(t *testing.T) {
	a := span(4, 1, 5, 8, 1, 9)
	b := span(12, 2, 1, 20, 2, 9)

	got := Cover(a, b)
	assert.Equal(t, a.Start, got.Start)
	assert.Equal(t, b.End, got.End)

	// Order does not matter.
	assert.Equal(t, got, Cover(b, a))

	// Zero spans yield the other side unchanged.
	assert.Equal(t, a, Cover(a, Span{}))
	assert.Equal(t, a, Cover(Span{}, a))
	assert.True(t, Cover(Span{}, Span{}).IsZero())
}
