// Package units holds the static unit and dimension registry consulted
// during arithmetic checks.
//
// The registry is immutable configuration: it is compiled once at
// process start from an embedded CUE document and passed by reference
// into the lexer (suffix vocabulary) and the interpreter (dimension
// checks). Nothing mutates it afterwards.
package units

import "strings"

// Base dimension indices for Dim exponent vectors.
const (
	DimLength = iota
	DimTime
	DimMass
	DimAngle
	DimCount
	numBaseDims
)

var baseDimNames = [numBaseDims]string{"length", "time", "mass", "angle", "count"}

// Dim is an exponent vector over the base dimensions. Two values may be
// added or compared only when their Dims are equal; multiplication and
// division add and subtract exponents.
type Dim [numBaseDims]int8

// Scalar is the dimensionless Dim.
var Scalar = Dim{}

// IsScalar reports whether d is dimensionless.
func (d Dim) IsScalar() bool { return d == Scalar }

// Mul returns the dimension of a product.
func (d Dim) Mul(o Dim) Dim {
	var out Dim
	for i := range d {
		out[i] = d[i] + o[i]
	}
	return out
}

// Div returns the dimension of a quotient.
func (d Dim) Div(o Dim) Dim {
	var out Dim
	for i := range d {
		out[i] = d[i] - o[i]
	}
	return out
}

// String renders a dimension as "length", "length/time",
// "length^2*mass" or "1" for the scalar dimension. Used in fault
// messages.
func (d Dim) String() string {
	var num, den []string
	for i, exp := range d {
		switch {
		case exp == 1:
			num = append(num, baseDimNames[i])
		case exp > 1:
			num = append(num, baseDimNames[i]+"^"+itoa(int(exp)))
		case exp == -1:
			den = append(den, baseDimNames[i])
		case exp < -1:
			den = append(den, baseDimNames[i]+"^"+itoa(-int(exp)))
		}
	}
	switch {
	case len(num) == 0 && len(den) == 0:
		return "1"
	case len(den) == 0:
		return strings.Join(num, "*")
	case len(num) == 0:
		return "1/" + strings.Join(den, "*")
	default:
		return strings.Join(num, "*") + "/" + strings.Join(den, "*")
	}
}

func itoa(n int) string {
	// Exponents are tiny; avoid strconv for a three-line helper.
	if n < 10 {
		return string(rune('0' + n))
	}
	return string(rune('0'+n/10)) + string(rune('0'+n%10))
}
