package units

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/lockstep-sim/lockstep/internal/fixed"
)

//go:embed units.cue
var unitsCUE string

// Unit is one entry in the registry: a named unit, its dimension, and
// its scale expressed in the canonical unit of that dimension. Values
// are stored internally in canonical units, so "2@kilometers" becomes
// 2000 with dimension length.
type Unit struct {
	Name  string
	Dim   Dim
	Scale fixed.F64
}

// Registry is the immutable unit table. Construct with Load (or
// NewRegistry in tests) and share by reference; it is safe for
// concurrent readers.
type Registry struct {
	byName map[string]Unit
	names  []string // sorted, for deterministic iteration and prefix resolution
}

// Load compiles the embedded CUE unit document into a Registry.
// Called once at process start.
func Load() (*Registry, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(unitsCUE, cue.Filename("units.cue"))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("units: compile registry document: %w", err)
	}
	return compileRegistry(v)
}

// MustLoad is Load for the embedded document, which is validated by
// tests; panics on error.
func MustLoad() *Registry {
	r, err := Load()
	if err != nil {
		panic(err)
	}
	return r
}

// compileRegistry walks the CUE value's "units" struct into a Registry.
func compileRegistry(v cue.Value) (*Registry, error) {
	unitsVal := v.LookupPath(cue.ParsePath("units"))
	if !unitsVal.Exists() {
		return nil, fmt.Errorf("units: registry document missing \"units\" field")
	}

	table := make(map[string]Unit)
	iter, err := unitsVal.Fields()
	if err != nil {
		return nil, fmt.Errorf("units: iterate units: %w", err)
	}
	for iter.Next() {
		name := iter.Selector().Unquoted()
		u, err := compileUnit(name, iter.Value())
		if err != nil {
			return nil, err
		}
		table[name] = u
	}
	if len(table) == 0 {
		return nil, fmt.Errorf("units: registry document defines no units")
	}
	return NewRegistry(table)
}

// compileUnit parses one unit entry: a dim exponent struct and a
// decimal scale string.
func compileUnit(name string, v cue.Value) (Unit, error) {
	var dim Dim
	dimVal := v.LookupPath(cue.ParsePath("dim"))
	if !dimVal.Exists() {
		return Unit{}, fmt.Errorf("units: unit %q missing dim", name)
	}
	for i, dn := range baseDimNames {
		expVal := dimVal.LookupPath(cue.ParsePath(dn))
		if !expVal.Exists() {
			continue
		}
		exp, err := expVal.Int64()
		if err != nil {
			return Unit{}, fmt.Errorf("units: unit %q dim %s: %w", name, dn, err)
		}
		if exp < -8 || exp > 8 {
			return Unit{}, fmt.Errorf("units: unit %q dim %s exponent %d out of range", name, dn, exp)
		}
		dim[i] = int8(exp)
	}

	scaleVal := v.LookupPath(cue.ParsePath("scale"))
	if !scaleVal.Exists() {
		return Unit{}, fmt.Errorf("units: unit %q missing scale", name)
	}
	scaleStr, err := scaleVal.String()
	if err != nil {
		return Unit{}, fmt.Errorf("units: unit %q scale: %w", name, err)
	}
	scale, err := fixed.Parse(scaleStr)
	if err != nil {
		return Unit{}, fmt.Errorf("units: unit %q scale %q: %w", name, scaleStr, err)
	}
	if scale <= 0 {
		return Unit{}, fmt.Errorf("units: unit %q scale must be positive, got %s", name, scale)
	}

	return Unit{Name: name, Dim: dim, Scale: scale}, nil
}

// NewRegistry builds a Registry from an explicit table. Exposed for
// tests that want a tiny vocabulary.
func NewRegistry(table map[string]Unit) (*Registry, error) {
	byName := make(map[string]Unit, len(table))
	names := make([]string, 0, len(table))
	for name, u := range table {
		if name == "" {
			return nil, fmt.Errorf("units: empty unit name")
		}
		u.Name = name
		byName[name] = u
		names = append(names, name)
	}
	sort.Strings(names)
	return &Registry{byName: byName, names: names}, nil
}

// CanonicalUnit returns the scale-one unit for a dimension, the one
// canonical text renders. The embedded registry defines exactly one
// per dimension it covers; lookup scans sorted names so ties (which the
// registry does not contain) would still resolve deterministically.
func (r *Registry) CanonicalUnit(d Dim) (Unit, bool) {
	for _, name := range r.names {
		u := r.byName[name]
		if u.Dim == d && u.Scale == fixed.One {
			return u, true
		}
	}
	return Unit{}, false
}

// Lookup returns the unit for an exact name.
func (r *Registry) Lookup(name string) (Unit, bool) {
	u, ok := r.byName[name]
	return u, ok
}

// Names returns all unit names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// ResolveSuffix resolves a possibly-abbreviated unit suffix to its full
// name. An exact name always wins; otherwise the suffix must be a
// prefix of exactly one unit name. Ambiguous prefixes list the
// candidates so the lex diagnostic can name them.
func (r *Registry) ResolveSuffix(suffix string) (Unit, error) {
	if u, ok := r.byName[suffix]; ok {
		return u, nil
	}
	var matches []string
	for _, name := range r.names {
		if strings.HasPrefix(name, suffix) {
			matches = append(matches, name)
		}
	}
	switch len(matches) {
	case 0:
		return Unit{}, fmt.Errorf("unknown unit %q", suffix)
	case 1:
		return r.byName[matches[0]], nil
	default:
		return Unit{}, fmt.Errorf("ambiguous unit %q: matches %s", suffix, strings.Join(matches, ", "))
	}
}
