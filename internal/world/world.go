package world

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/lockstep-sim/lockstep/internal/value"
)

// componentKey addresses one component slot.
type componentKey struct {
	Entity value.Handle
	Tag    string
}

// World is the versioned simulation state: component slots keyed by
// (entity, tag) plus named resources. A World is mutated only through
// Commit, which applies a whole patch list and returns the successor;
// holders of the old pointer keep an unchanged view.
type World struct {
	components map[componentKey]value.Value
	resources  map[string]value.Value

	// signals is the append-only signal history. It is not part of
	// visible state and never feeds the state hash.
	signals []Signal
}

// EntitySeqResource is the reserved resource holding the spawn
// counter. Keeping it in a plain resource slot means spawn ids are part
// of hashed visible state and survive replay and branching with no side
// channel.
const EntitySeqResource = "entity_seq"

// New creates an empty world.
func New() *World {
	return &World{
		components: make(map[componentKey]value.Value),
		resources:  make(map[string]value.Value),
	}
}

// clone deep-copies the maps; component and resource values are
// immutable once stored, so value sharing is safe.
func (w *World) clone() *World {
	next := &World{
		components: make(map[componentKey]value.Value, len(w.components)),
		resources:  make(map[string]value.Value, len(w.resources)),
		signals:    slices.Clone(w.signals),
	}
	for k, v := range w.components {
		next.components[k] = v
	}
	for k, v := range w.resources {
		next.resources[k] = v
	}
	return next
}

// Resource reads a named resource slot.
func (w *World) Resource(name string) (value.Value, bool) {
	v, ok := w.resources[name]
	return v, ok
}

// Component reads the (entity, tag) slot.
func (w *World) Component(entity value.Handle, tag string) (value.Value, bool) {
	v, ok := w.components[componentKey{Entity: entity, Tag: tag}]
	return v, ok
}

// EntityID renders the deterministic handle for the nth spawned entity
// (zero-based): e1, e2, ...
func EntityID(n int64) value.Handle {
	return value.Handle("e" + strconv.FormatInt(n+1, 10))
}

// Signals returns the signal history accumulated by commits.
func (w *World) Signals() []Signal {
	return slices.Clone(w.signals)
}

// Commit applies patches in list order against w and returns the
// successor world plus the signals this patch list emitted. The input
// world is not modified. A malformed patch is terminal: the producer is
// broken and the world cannot be trusted.
func Commit(w *World, patches []Patch) (*World, []Signal, error) {
	next := w.clone()
	var emitted []Signal
	for i, p := range patches {
		if err := p.Validate(); err != nil {
			return nil, nil, fmt.Errorf("world: patch %d: %w", i, err)
		}
		switch p.Kind {
		case PatchSetResource:
			next.resources[p.Resource] = p.Value
		case PatchSetComponent:
			next.components[componentKey{Entity: p.Entity, Tag: p.Tag}] = p.Value
		case PatchRemoveComponent:
			delete(next.components, componentKey{Entity: p.Entity, Tag: p.Tag})
		case PatchEmitSignal:
			emitted = append(emitted, *p.Signal)
		}
	}
	next.signals = append(next.signals, emitted...)
	return next, emitted, nil
}

// StateHash computes the content-addressable fingerprint of all
// visible state: the sorted (resource, value) pairs and the sorted
// (entity, tag, value) triples, serialized through the canonical value
// codec and digested under the state domain. Insertion order can never
// influence the result.
func StateHash(w *World) (string, error) {
	resources := make(value.Pairs, len(w.resources))
	for k, v := range w.resources {
		resources[k] = v
	}
	components := make(value.Pairs, len(w.components))
	for k, v := range w.components {
		// Entity ids and tags are identifier-shaped, so the joined
		// key is unambiguous.
		components[string(k.Entity)+"/"+k.Tag] = v
	}
	root := value.Pairs{
		"components": components,
		"resources":  resources,
	}
	canonical, err := value.MarshalCanonical(root)
	if err != nil {
		return "", fmt.Errorf("world: serialize state: %w", err)
	}
	return value.HashWithDomain(value.DomainState, canonical), nil
}

// Dump renders visible state sorted by key, for debugging and the CLI's
// text output. Not a canonical encoding.
func (w *World) Dump() string {
	var b strings.Builder
	resNames := make([]string, 0, len(w.resources))
	for name := range w.resources {
		resNames = append(resNames, name)
	}
	slices.Sort(resNames)
	for _, name := range resNames {
		fmt.Fprintf(&b, "$%s = %s\n", name, value.Render(w.resources[name]))
	}
	keys := make([]componentKey, 0, len(w.components))
	for k := range w.components {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b componentKey) int {
		if c := strings.Compare(string(a.Entity), string(b.Entity)); c != 0 {
			return c
		}
		return strings.Compare(a.Tag, b.Tag)
	})
	for _, k := range keys {
		fmt.Fprintf(&b, "%s.%s = %s\n", k.Entity, k.Tag, value.Render(w.components[k]))
	}
	return b.String()
}
