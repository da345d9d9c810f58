// Package value defines the runtime value union and its canonical byte
// serialization.
//
// Value is a sealed interface: only the types in this file implement
// it. There is deliberately no float variant — real numbers use the
// fixed-point core — and no null distinct from Nothing, so every value
// the interpreter can produce has exactly one canonical encoding.
package value

import (
	"slices"
	"unicode/utf16"

	"github.com/lockstep-sim/lockstep/internal/fixed"
	"github.com/lockstep-sim/lockstep/internal/units"
)

// Value is the sealed runtime value union.
type Value interface {
	value()
	// Kind names the variant for diagnostics ("number", "text", ...).
	Kind() string
}

// Nothing is the absent value.
type Nothing struct{}

func (Nothing) value()       {}
func (Nothing) Kind() string { return "nothing" }

// Number is a dimensionless fixed-point number.
type Number struct {
	F fixed.F64
}

func (Number) value()       {}
func (Number) Kind() string { return "number" }

// Unit is a fixed-point number tagged with a dimension. The magnitude
// is always stored in the canonical unit of its dimension.
type Unit struct {
	F   fixed.F64
	Dim units.Dim
}

func (Unit) value()       {}
func (Unit) Kind() string { return "unit" }

// Text is a string value.
type Text string

func (Text) value()       {}
func (Text) Kind() string { return "text" }

// Bool is a boolean value.
type Bool bool

func (Bool) value()       {}
func (Bool) Kind() string { return "bool" }

// Atom is an interned symbolic constant, written :name in source.
type Atom string

func (Atom) value()       {}
func (Atom) Kind() string { return "atom" }

// List is an ordered sequence of values.
type List []Value

func (List) value()       {}
func (List) Kind() string { return "list" }

// Pairs is a string-keyed map of values. Use SortedKeys for
// deterministic iteration.
type Pairs map[string]Value

func (Pairs) value()       {}
func (Pairs) Kind() string { return "pairs" }

// Handle references a world entity by id.
type Handle string

func (Handle) value()       {}
func (Handle) Kind() string { return "handle" }

// Num builds a Number.
func Num(f fixed.F64) Number { return Number{F: f} }

// NumInt builds a Number from a small whole constant. Test helper.
func NumInt(n int64) Number { return Number{F: fixed.MustInt(n)} }

// SortedKeys returns keys ordered by UTF-16 code units, matching the
// canonical serialization's key order. Go's native string order is
// UTF-8 byte order, which differs for supplementary-plane runes.
func (p Pairs) SortedKeys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, CompareKeys)
	return keys
}

// CompareKeys compares strings by UTF-16 code units.
func CompareKeys(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	default:
		return 0
	}
}

// Equal reports deep structural equality. Numbers and units compare by
// magnitude and dimension; lists elementwise; pairs by key set and
// values.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case Nothing:
		_, ok := b.(Nothing)
		return ok
	case Number:
		bv, ok := b.(Number)
		return ok && av.F == bv.F
	case Unit:
		bv, ok := b.(Unit)
		return ok && av.F == bv.F && av.Dim == bv.Dim
	case Text:
		bv, ok := b.(Text)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Atom:
		bv, ok := b.(Atom)
		return ok && av == bv
	case Handle:
		bv, ok := b.(Handle)
		return ok && av == bv
	case List:
		bv, ok := b.(List)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	case Pairs:
		bv, ok := b.(Pairs)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			ov, ok := bv[k]
			if !ok || !Equal(v, ov) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Truthy maps a value to a branch decision: Bool is itself, Nothing is
// false, everything else is a type error handled by the caller.
func Truthy(v Value) (bool, bool) {
	switch tv := v.(type) {
	case Bool:
		return bool(tv), true
	case Nothing:
		return false, true
	default:
		return false, false
	}
}
