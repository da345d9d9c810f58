// Package fixed implements the 64-bit scaled-integer numeric core.
//
// All real arithmetic in the engine runs on F64 values: an int64 scaled
// by 10^4, giving four decimal digits of fraction. There are no floats
// anywhere on the evaluation path, so results are bit-identical across
// platforms and Go versions.
//
// Arithmetic never panics. Overflow and division by zero are reported as
// explicit outcomes so the interpreter can void the pending commit and
// emit a fault signal instead of crashing the tick.
package fixed

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Scale is the fixed-point denominator. One F64 unit is 1/Scale.
const Scale = 10_000

// fracDigits is the number of decimal digits covered by Scale.
const fracDigits = 4

// F64 is a real number represented as value * Scale.
type F64 int64

// Common constants.
const (
	Zero F64 = 0
	One  F64 = Scale
)

// ErrOverflow reports that an operation left the representable range.
var ErrOverflow = errors.New("fixed: overflow")

// ErrDivZero reports division by zero.
var ErrDivZero = errors.New("fixed: division by zero")

// FromInt converts a whole number. Saturation is not silent: values
// outside the representable range return ErrOverflow.
func FromInt(n int64) (F64, error) {
	if n > math.MaxInt64/Scale || n < math.MinInt64/Scale {
		return 0, ErrOverflow
	}
	return F64(n * Scale), nil
}

// MustInt is FromInt for values known to be in range. Panics otherwise;
// use only with constants and in tests.
func MustInt(n int64) F64 {
	f, err := FromInt(n)
	if err != nil {
		panic(err)
	}
	return f
}

// Raw builds an F64 from an already-scaled integer.
func Raw(scaled int64) F64 { return F64(scaled) }

// Raw returns the underlying scaled integer.
func (f F64) Raw() int64 { return int64(f) }

// Int returns the whole part, truncated toward zero.
func (f F64) Int() int64 { return int64(f) / Scale }

// Add returns f+g, or ErrOverflow.
func (f F64) Add(g F64) (F64, error) {
	sum := int64(f) + int64(g)
	// Overflow iff operands share a sign the sum does not.
	if (int64(f) > 0 && int64(g) > 0 && sum < 0) || (int64(f) < 0 && int64(g) < 0 && sum > 0) {
		return 0, ErrOverflow
	}
	return F64(sum), nil
}

// Sub returns f-g, or ErrOverflow.
func (f F64) Sub(g F64) (F64, error) {
	if g == F64(math.MinInt64) {
		return 0, ErrOverflow
	}
	return f.Add(-g)
}

// Mul returns f*g with truncation toward zero, or ErrOverflow.
// The intermediate product uses 128-bit arithmetic via math/bits-free
// big-step decomposition so no precision is lost before rescaling.
func (f F64) Mul(g F64) (F64, error) {
	a, b := int64(f), int64(g)
	if a == 0 || b == 0 {
		return 0, nil
	}
	neg := (a < 0) != (b < 0)
	ua, ub := absU64(a), absU64(b)

	// 128-bit multiply: split into 32-bit halves.
	hi, lo := mul64(ua, ub)
	if hi >= Scale {
		return 0, ErrOverflow
	}
	// Divide the 128-bit product by Scale.
	q, rem := div128(hi, lo, Scale)
	_ = rem // truncate toward zero
	if q > math.MaxInt64 {
		return 0, ErrOverflow
	}
	if neg {
		return F64(-int64(q)), nil
	}
	return F64(int64(q)), nil
}

// Div returns f/g with truncation toward zero, ErrDivZero when g is
// zero, or ErrOverflow when the quotient leaves the range.
func (f F64) Div(g F64) (F64, error) {
	if g == 0 {
		return 0, ErrDivZero
	}
	a, b := int64(f), int64(g)
	if a == 0 {
		return 0, nil
	}
	neg := (a < 0) != (b < 0)
	ua, ub := absU64(a), absU64(b)

	// (a * Scale) / b in 128 bits.
	hi, lo := mul64(ua, Scale)
	if hi >= ub {
		return 0, ErrOverflow
	}
	q, _ := div128(hi, lo, ub)
	if q > math.MaxInt64 {
		return 0, ErrOverflow
	}
	if neg {
		return F64(-int64(q)), nil
	}
	return F64(int64(q)), nil
}

// Neg returns -f, or ErrOverflow for the minimum value.
func (f F64) Neg() (F64, error) {
	if f == F64(math.MinInt64) {
		return 0, ErrOverflow
	}
	return -f, nil
}

// Abs returns |f|, or ErrOverflow for the minimum value.
func (f F64) Abs() (F64, error) {
	if f < 0 {
		return f.Neg()
	}
	return f, nil
}

// Floor rounds toward negative infinity to a whole number.
func (f F64) Floor() F64 {
	r := int64(f) % Scale
	if r == 0 {
		return f
	}
	if f < 0 {
		return F64(int64(f) - r - Scale)
	}
	return F64(int64(f) - r)
}

// Cmp compares f and g: -1, 0, or 1.
func (f F64) Cmp(g F64) int {
	switch {
	case f < g:
		return -1
	case f > g:
		return 1
	default:
		return 0
	}
}

// String renders the value as a decimal with the minimum number of
// fraction digits, e.g. "3", "-0.5", "2.0001". This rendering is the
// one canonical text uses, so it must stay stable.
func (f F64) String() string {
	n := int64(f)
	neg := n < 0
	var whole, frac uint64
	if neg {
		u := absU64(n)
		whole, frac = u/Scale, u%Scale
	} else {
		whole, frac = uint64(n)/Scale, uint64(n)%Scale
	}

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteString(strconv.FormatUint(whole, 10))
	if frac != 0 {
		digits := fmt.Sprintf("%0*d", fracDigits, frac)
		digits = strings.TrimRight(digits, "0")
		b.WriteByte('.')
		b.WriteString(digits)
	}
	return b.String()
}

// Parse reads a decimal literal ("12", "0.25", "-3.5") into an F64.
// More than four fraction digits is an error rather than a silent
// truncation: the surface language has no values the type cannot hold.
func Parse(s string) (F64, error) {
	if s == "" {
		return 0, fmt.Errorf("fixed: empty literal")
	}
	neg := false
	rest := s
	if rest[0] == '+' || rest[0] == '-' {
		neg = rest[0] == '-'
		rest = rest[1:]
	}
	if rest == "" {
		return 0, fmt.Errorf("fixed: malformed literal %q", s)
	}

	wholeStr, fracStr := rest, ""
	if i := strings.IndexByte(rest, '.'); i >= 0 {
		wholeStr, fracStr = rest[:i], rest[i+1:]
		if wholeStr == "" || fracStr == "" {
			return 0, fmt.Errorf("fixed: malformed literal %q", s)
		}
	}
	if len(fracStr) > fracDigits {
		return 0, fmt.Errorf("fixed: literal %q exceeds %d fraction digits", s, fracDigits)
	}

	whole, err := strconv.ParseUint(wholeStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("fixed: malformed literal %q", s)
	}
	var frac uint64
	if fracStr != "" {
		frac, err = strconv.ParseUint(fracStr, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("fixed: malformed literal %q", s)
		}
		for i := len(fracStr); i < fracDigits; i++ {
			frac *= 10
		}
	}

	if whole > math.MaxInt64/Scale {
		return 0, ErrOverflow
	}
	scaled := int64(whole)*Scale + int64(frac)
	if scaled < 0 {
		return 0, ErrOverflow
	}
	if neg {
		scaled = -scaled
	}
	return F64(scaled), nil
}

// MustParse is Parse for literals known to be valid. Test helper.
func MustParse(s string) F64 {
	f, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return f
}

// absU64 returns |n| as uint64, correct for math.MinInt64.
func absU64(n int64) uint64 {
	if n < 0 {
		return uint64(-(n + 1)) + 1
	}
	return uint64(n)
}

// mul64 returns the 128-bit product hi:lo of a*b.
func mul64(a, b uint64) (hi, lo uint64) {
	const mask = 1<<32 - 1
	aLo, aHi := a&mask, a>>32
	bLo, bHi := b&mask, b>>32

	t := aLo * bLo
	lo = t & mask
	carry := t >> 32

	t = aHi*bLo + carry
	mid := t & mask
	carry = t >> 32

	t = aLo*bHi + mid
	lo |= (t & mask) << 32
	hi = aHi*bHi + carry + (t >> 32)
	return hi, lo
}

// div128 divides the 128-bit value hi:lo by d, returning quotient and
// remainder. Caller guarantees hi < d so the quotient fits in 64 bits.
func div128(hi, lo, d uint64) (q, r uint64) {
	if hi == 0 {
		return lo / d, lo % d
	}
	// Long division bit by bit. d > hi >= 1 so q fits.
	r = hi
	for i := 63; i >= 0; i-- {
		bit := (lo >> uint(i)) & 1
		carry := r >> 63
		r = r<<1 | bit
		if carry == 1 || r >= d {
			r -= d
			q |= 1 << uint(i)
		}
	}
	return q, r
}
