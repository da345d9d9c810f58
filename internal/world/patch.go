// Package world holds the versioned simulation state and the Patch
// vocabulary that is the only way to change it.
//
// The interpreter never writes a World directly: every mutation it
// wants becomes a Patch in an ordered list, and committing a tick is
// exactly applying that list in order. This keeps "what happened" a
// serializable artifact that replay, branching, and independent
// verification can all consume.
package world

import (
	"fmt"

	"github.com/lockstep-sim/lockstep/internal/value"
)

// PatchKind identifies the patch variant.
type PatchKind string

const (
	// PatchSetResource replaces a named resource slot.
	PatchSetResource PatchKind = "set_resource"
	// PatchSetComponent sets the (entity, tag) component slot.
	PatchSetComponent PatchKind = "set_component"
	// PatchRemoveComponent clears the (entity, tag) component slot.
	PatchRemoveComponent PatchKind = "remove_component"
	// PatchEmitSignal appends to signal history without touching
	// visible state.
	PatchEmitSignal PatchKind = "emit_signal"
)

// Patch is one explicit state mutation. Exactly the fields its Kind
// needs are set.
type Patch struct {
	Kind PatchKind

	Resource string       // PatchSetResource
	Entity   value.Handle // component patches
	Tag      string       // component patches
	Value    value.Value  // set variants

	Signal *Signal // PatchEmitSignal
}

// SetResource builds a resource replacement patch.
func SetResource(name string, v value.Value) Patch {
	return Patch{Kind: PatchSetResource, Resource: name, Value: v}
}

// SetComponent builds a component set patch.
func SetComponent(entity value.Handle, tag string, v value.Value) Patch {
	return Patch{Kind: PatchSetComponent, Entity: entity, Tag: tag, Value: v}
}

// RemoveComponent builds a component removal patch.
func RemoveComponent(entity value.Handle, tag string) Patch {
	return Patch{Kind: PatchRemoveComponent, Entity: entity, Tag: tag}
}

// EmitSignal builds a signal emission patch.
func EmitSignal(sig Signal) Patch {
	return Patch{Kind: PatchEmitSignal, Signal: &sig}
}

// Validate checks the patch's shape before application. A malformed
// patch is a programming error in the producer, not program semantics,
// so Commit treats it as terminal.
func (p Patch) Validate() error {
	switch p.Kind {
	case PatchSetResource:
		if p.Resource == "" || p.Value == nil {
			return fmt.Errorf("world: set_resource patch missing resource or value")
		}
	case PatchSetComponent:
		if p.Entity == "" || p.Tag == "" || p.Value == nil {
			return fmt.Errorf("world: set_component patch missing entity, tag, or value")
		}
	case PatchRemoveComponent:
		if p.Entity == "" || p.Tag == "" {
			return fmt.Errorf("world: remove_component patch missing entity or tag")
		}
	case PatchEmitSignal:
		if p.Signal == nil {
			return fmt.Errorf("world: emit_signal patch missing signal")
		}
	default:
		return fmt.Errorf("world: unknown patch kind %q", p.Kind)
	}
	return nil
}
