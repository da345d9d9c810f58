package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lockstep-sim/lockstep/internal/journal"
	"github.com/lockstep-sim/lockstep/internal/parser"
	"github.com/lockstep-sim/lockstep/internal/snapshot"
	"github.com/lockstep-sim/lockstep/internal/units"
)

// ReplayMismatch reports the first tick where a replayed execution
// diverged from the recorded one. Machine code E_REPLAY_MISMATCH.
type ReplayMismatch struct {
	Tick int64
	Want string
	Got  string
}

func (e *ReplayMismatch) Error() string {
	return fmt.Sprintf("E_REPLAY_MISMATCH at tick %d: recorded %s, recomputed %s", e.Tick, e.Want, e.Got)
}

// Replay re-runs logged snapshots through a fresh engine, asserting
// that every tick reproduces its recorded state hash. Replay and live
// execution share the same TickWith path; there is no replay mode.
// The first divergence is terminal.
func Replay(ctx context.Context, prog *parser.Program, reg *units.Registry, frames []journal.Frame, opts ...Option) (*Engine, error) {
	e := New(prog, reg, opts...)
	for _, f := range frames {
		got, err := e.TickWith(ctx, f.Snapshot)
		if err != nil {
			return nil, err
		}
		if got.StateHash != f.StateHash {
			return nil, &ReplayMismatch{Tick: f.Tick, Want: f.StateHash, Got: got.StateHash}
		}
	}
	slog.Debug("replay verified", "ticks", len(frames))
	return e, nil
}

// Branch forks an alternate timeline: it replays the recorded frames
// before atTick to rebuild the world, then runs atTick with the
// injected snapshot instead of the recorded one. The returned engine
// carries a journal branched from the parent log, so the frames before
// the divergence are the parent's own; the parent log is never touched.
func Branch(ctx context.Context, prog *parser.Program, reg *units.Registry, parent *journal.Log, atTick int64, injected snapshot.Snapshot, opts ...Option) (*Engine, error) {
	if atTick < 0 || atTick >= int64(parent.Len()) {
		return nil, fmt.Errorf("engine: branch point %d outside recorded range of %d ticks", atTick, parent.Len())
	}
	branched, err := parent.Branch(atTick)
	if err != nil {
		return nil, err
	}

	e, err := Replay(ctx, prog, reg, parent.Frames()[:atTick], opts...)
	if err != nil {
		return nil, err
	}
	// Replay rebuilt the world and recomputed the prefix frames; swap
	// in the branched log so the prefix stays the parent's storage.
	e.journal = branched
	if _, err := e.TickWith(ctx, injected); err != nil {
		return nil, err
	}
	return e, nil
}
