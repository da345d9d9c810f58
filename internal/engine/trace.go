package engine

import (
	"fmt"

	"github.com/lockstep-sim/lockstep/internal/value"
	"github.com/lockstep-sim/lockstep/internal/world"
)

// renderPatch gives one human line per patch for full-tier traces.
func renderPatch(p world.Patch) string {
	switch p.Kind {
	case world.PatchSetResource:
		return fmt.Sprintf("set_resource $%s = %s", p.Resource, value.Render(p.Value))
	case world.PatchSetComponent:
		return fmt.Sprintf("set_component %s.%s = %s", p.Entity, p.Tag, value.Render(p.Value))
	case world.PatchRemoveComponent:
		return fmt.Sprintf("remove_component %s.%s", p.Entity, p.Tag)
	case world.PatchEmitSignal:
		return fmt.Sprintf("emit_signal %s", p.Signal.Kind)
	default:
		return fmt.Sprintf("unknown patch %q", p.Kind)
	}
}
