package value

import (
	"fmt"
	"strconv"
	"strings"
)

// Render gives the human textual form of a value, used by the text()
// builtin and state dumps. Deterministic (pairs render in canonical key
// order) but not a canonical encoding; use MarshalCanonical for
// hashing.
func Render(v Value) string {
	switch tv := v.(type) {
	case Number:
		return tv.F.String()
	case Unit:
		return tv.F.String() + "@" + tv.Dim.String()
	case Text:
		return string(tv)
	case Bool:
		if tv {
			return "yes"
		}
		return "no"
	case Atom:
		return ":" + string(tv)
	case Handle:
		return string(tv)
	case Nothing:
		return "nothing"
	case List:
		parts := make([]string, len(tv))
		for i, e := range tv {
			parts[i] = renderQuoted(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case Pairs:
		parts := make([]string, 0, len(tv))
		for _, k := range tv.SortedKeys() {
			parts = append(parts, k+": "+renderQuoted(tv[k]))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// renderQuoted is Render except text keeps its quotes, so container
// renderings stay unambiguous.
func renderQuoted(v Value) string {
	if t, ok := v.(Text); ok {
		return strconv.Quote(string(t))
	}
	return Render(v)
}
