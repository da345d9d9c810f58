// Package builtin defines the closed set of built-in operations and
// their static arity/type table.
//
// Call sites resolve a builtin name to an ID at parse time, so the
// interpreter's hot path dispatches on a small integer, never on a
// string. The table is the single source of truth for pin names, pin
// order (for positional binding), pin types, and defaults.
package builtin

import (
	"fmt"
)

// ID identifies a builtin. The zero value is invalid.
type ID int

const (
	Invalid ID = iota

	At
	Len
	Push
	Keys
	Abs
	Min
	Max
	Floor
	Clamp
	Rand
	RandRange
	KeyDown
	KeyName
	PointerX
	PointerY
	NetEvents
	NetSender
	NetPayload
	Spawn
	SetPart
	DropPart
	Part
	HasPart
	Emit
	Text
	Magnitude
	UnitOf
)

// PinKind constrains what a pin accepts. Numeric admits both plain
// numbers and unit-tagged values; Any skips the static check and defers
// to the builtin body.
type PinKind int

const (
	Any PinKind = iota
	NumberPin
	Numeric
	TextPin
	BoolPin
	ListPin
	PairsPin
	HandlePin
	AtomPin
)

var pinKindNames = map[PinKind]string{
	Any:       "any",
	NumberPin: "number",
	Numeric:   "number or unit",
	TextPin:   "text",
	BoolPin:   "bool",
	ListPin:   "list",
	PairsPin:  "pairs",
	HandlePin: "handle",
	AtomPin:   "atom",
}

// String names the pin kind for diagnostics.
func (k PinKind) String() string { return pinKindNames[k] }

// Pin is one typed parameter of a builtin.
type Pin struct {
	Name string
	Kind PinKind
}

// Spec is one row of the static dispatch table.
type Spec struct {
	ID   ID
	Name string
	// Pins in declaration order; positional call arguments bind in
	// this order. Canonical text renders pins alphabetically.
	Pins []Pin
	// Impure marks builtins that read the input snapshot or draw
	// randomness; these are rejected inside contract guards.
	Impure bool
}

// table holds every builtin in a fixed order. Indexed lookups go
// through byID/byName built in init.
var table = []Spec{
	{ID: At, Name: "at", Pins: []Pin{{"of", ListPin}, {"index", NumberPin}}},
	{ID: Len, Name: "len", Pins: []Pin{{"of", Any}}},
	{ID: Push, Name: "push", Pins: []Pin{{"onto", ListPin}, {"item", Any}}},
	{ID: Keys, Name: "keys", Pins: []Pin{{"of", PairsPin}}},
	{ID: Abs, Name: "abs", Pins: []Pin{{"of", Numeric}}},
	{ID: Min, Name: "min", Pins: []Pin{{"a", Numeric}, {"b", Numeric}}},
	{ID: Max, Name: "max", Pins: []Pin{{"a", Numeric}, {"b", Numeric}}},
	{ID: Floor, Name: "floor", Pins: []Pin{{"of", Numeric}}},
	{ID: Clamp, Name: "clamp", Pins: []Pin{{"of", Numeric}, {"lo", Numeric}, {"hi", Numeric}}},
	{ID: Rand, Name: "rand", Impure: true},
	{ID: RandRange, Name: "rand_range", Pins: []Pin{{"lo", NumberPin}, {"hi", NumberPin}}, Impure: true},
	{ID: KeyDown, Name: "key_down", Pins: []Pin{{"key", TextPin}}, Impure: true},
	{ID: KeyName, Name: "key_name", Impure: true},
	{ID: PointerX, Name: "pointer_x", Impure: true},
	{ID: PointerY, Name: "pointer_y", Impure: true},
	{ID: NetEvents, Name: "net_events", Impure: true},
	{ID: NetSender, Name: "net_sender", Pins: []Pin{{"event", PairsPin}}},
	{ID: NetPayload, Name: "net_payload", Pins: []Pin{{"event", PairsPin}}},
	{ID: Spawn, Name: "spawn"},
	{ID: SetPart, Name: "set_part", Pins: []Pin{{"on", HandlePin}, {"tag", AtomPin}, {"value", Any}}},
	{ID: DropPart, Name: "drop_part", Pins: []Pin{{"on", HandlePin}, {"tag", AtomPin}}},
	{ID: Part, Name: "part", Pins: []Pin{{"on", HandlePin}, {"tag", AtomPin}}},
	{ID: HasPart, Name: "has_part", Pins: []Pin{{"on", HandlePin}, {"tag", AtomPin}}},
	{ID: Emit, Name: "emit", Pins: []Pin{{"kind", AtomPin}, {"payload", Any}}},
	{ID: Text, Name: "text", Pins: []Pin{{"of", Any}}},
	{ID: Magnitude, Name: "magnitude", Pins: []Pin{{"of", Numeric}}},
	{ID: UnitOf, Name: "unit_of", Pins: []Pin{{"of", Numeric}}},
}

var (
	byID   map[ID]*Spec
	byName map[string]*Spec
)

func init() {
	byID = make(map[ID]*Spec, len(table))
	byName = make(map[string]*Spec, len(table))
	for i := range table {
		s := &table[i]
		if _, dup := byID[s.ID]; dup {
			panic(fmt.Sprintf("builtin: duplicate id %d", s.ID))
		}
		if _, dup := byName[s.Name]; dup {
			panic(fmt.Sprintf("builtin: duplicate name %q", s.Name))
		}
		byID[s.ID] = s
		byName[s.Name] = s
	}
}

// Resolve maps a call-site name to its spec. Unknown names are
// load-time errors at the caller.
func Resolve(name string) (*Spec, bool) {
	s, ok := byName[name]
	return s, ok
}

// Lookup returns the spec for an ID. Panics on an invalid ID, which can
// only come from a corrupted AST.
func Lookup(id ID) *Spec {
	s, ok := byID[id]
	if !ok {
		panic(fmt.Sprintf("builtin: unknown id %d", id))
	}
	return s
}

// Pin returns the named pin's index in declaration order, or -1.
func (s *Spec) Pin(name string) int {
	for i, p := range s.Pins {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// All returns the table in declaration order. Used by tests to verify
// table integrity.
func All() []Spec {
	out := make([]Spec, len(table))
	copy(out, table)
	return out
}
