// Package engine owns the tick loop: one goroutine, one World, one
// Journal.
//
// CRITICAL: all World mutation happens inside the loop's goroutine.
// The only concurrent input is the netsync collector, which hands over
// a fully materialized event batch at the tick boundary. Cancellation
// is coarse: a run stops between ticks, never mid-commit, so the World
// is never observed half-applied.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lockstep-sim/lockstep/internal/interp"
	"github.com/lockstep-sim/lockstep/internal/journal"
	"github.com/lockstep-sim/lockstep/internal/netsync"
	"github.com/lockstep-sim/lockstep/internal/parser"
	"github.com/lockstep-sim/lockstep/internal/snapshot"
	"github.com/lockstep-sim/lockstep/internal/units"
	"github.com/lockstep-sim/lockstep/internal/world"
)

// InputSource supplies this replica's local device input for each
// tick. Implementations must be deterministic functions of the tick
// for reproducible runs; live device sources are inherently not, which
// is exactly what the journal records away.
type InputSource interface {
	LocalInput(tick int64) snapshot.LocalInput
}

// SeededInputs is the zero-device input source: no keys, no pointer,
// per-tick seed derived from a base seed. The derivation is part of
// recorded behavior, so it must not change.
type SeededInputs struct {
	Base uint64
}

func (s SeededInputs) LocalInput(tick int64) snapshot.LocalInput {
	return snapshot.LocalInput{Seed: s.Base + uint64(tick)}
}

// Engine drives a program tick by tick.
type Engine struct {
	log       *slog.Logger
	prog      *parser.Program
	interp    *interp.Interpreter
	world     *world.World
	journal   *journal.Log
	clock     *TickClock
	collector *netsync.Collector
	inputs    InputSource
	tier      journal.TraceTier

	store   *journal.Store
	session string
}

// Option configures an Engine.
type Option func(*Engine)

// WithCollector attaches a live event collector drained each tick.
func WithCollector(c *netsync.Collector) Option {
	return func(e *Engine) { e.collector = c }
}

// WithInputs overrides the local input source.
func WithInputs(src InputSource) Option {
	return func(e *Engine) { e.inputs = src }
}

// WithTraceTier selects how much detail frames retain.
func WithTraceTier(t journal.TraceTier) Option {
	return func(e *Engine) { e.tier = t }
}

// WithStore mirrors every appended frame into a durable journal store
// under the given session.
func WithStore(s *journal.Store, sessionID string) Option {
	return func(e *Engine) { e.store, e.session = s, sessionID }
}

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// New creates an engine over a parsed program and a fresh world.
func New(prog *parser.Program, reg *units.Registry, opts ...Option) *Engine {
	e := &Engine{
		log:     slog.Default(),
		prog:    prog,
		interp:  interp.New(reg),
		world:   world.New(),
		journal: journal.NewLog(),
		clock:   NewTickClock(),
		inputs:  SeededInputs{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AttachStore starts mirroring frames appended from now on. Used when
// branching: the durable branch session already holds its copied
// prefix, so only post-divergence frames should be written through.
func (e *Engine) AttachStore(s *journal.Store, sessionID string) {
	e.store, e.session = s, sessionID
}

// World returns the current state. Callers must treat it as read-only;
// the next tick replaces it wholesale.
func (e *Engine) World() *world.World { return e.world }

// Journal returns the engine's log.
func (e *Engine) Journal() *journal.Log { return e.journal }

// Clock returns the engine's tick clock.
func (e *Engine) Clock() *TickClock { return e.clock }

// Tick runs exactly one tick: drain collected events, merge the
// snapshot, interpret, commit, hash, append the frame.
func (e *Engine) Tick(ctx context.Context) (journal.Frame, error) {
	tick := e.clock.Current()

	var events []snapshot.NetEvent
	if e.collector != nil {
		events = e.collector.Drain(tick)
	}
	snap := snapshot.Merge(tick, e.inputs.LocalInput(tick), events)
	return e.TickWith(ctx, snap)
}

// TickWith runs one tick against an explicit snapshot. Replay and
// branching use this entry to feed logged or injected snapshots
// through the identical path live execution takes.
func (e *Engine) TickWith(ctx context.Context, snap snapshot.Snapshot) (journal.Frame, error) {
	if err := ctx.Err(); err != nil {
		return journal.Frame{}, err
	}
	tick := e.clock.Current()

	res, err := e.interp.Tick(e.prog, e.world, snap)
	if err != nil {
		return journal.Frame{}, fmt.Errorf("engine: tick %d: %w", tick, err)
	}

	// Fault signals join the patch list so commit records them in
	// signal history alongside program emits.
	patches := res.Patches
	for _, f := range res.Faults {
		patches = append(patches, world.EmitSignal(f))
	}

	next, signals, err := world.Commit(e.world, patches)
	if err != nil {
		return journal.Frame{}, fmt.Errorf("engine: tick %d: %w", tick, err)
	}
	hash, err := world.StateHash(next)
	if err != nil {
		return journal.Frame{}, fmt.Errorf("engine: tick %d: %w", tick, err)
	}

	frame := journal.Frame{
		Tick:      tick,
		Snapshot:  snap,
		StateHash: hash,
		Trace:     buildTrace(e.tier, patches, signals),
	}
	if err := e.journal.Append(frame); err != nil {
		return journal.Frame{}, err
	}
	if e.store != nil {
		if err := e.store.WriteFrame(ctx, e.session, frame); err != nil {
			return journal.Frame{}, err
		}
	}

	e.world = next
	e.clock.Next()

	e.log.Info("tick complete",
		"tick", tick,
		"state_hash", hash,
		"patches", len(patches),
		"signals", len(signals),
		"net_events", len(snap.NetEvents),
		"rng_draws", res.Draws)
	return frame, nil
}

// Run executes up to ticks ticks, stopping early only on context
// cancellation between ticks.
func (e *Engine) Run(ctx context.Context, ticks int64) error {
	for i := int64(0); i < ticks; i++ {
		if _, err := e.Tick(ctx); err != nil {
			return err
		}
	}
	return nil
}

// buildTrace materializes the frame trace for the selected tier.
func buildTrace(tier journal.TraceTier, patches []world.Patch, signals []world.Signal) journal.Trace {
	tr := journal.Trace{Tier: tier}
	if tier == journal.TraceOff {
		return tr
	}
	tr.PatchCount = len(patches)
	tr.SignalCount = len(signals)
	if tier == journal.TraceFull {
		for _, p := range patches {
			tr.Lines = append(tr.Lines, renderPatch(p))
		}
		sorted := append([]world.Signal(nil), signals...)
		world.SortSignals(sorted)
		for _, s := range sorted {
			tr.Lines = append(tr.Lines, s.String())
		}
	}
	return tr
}
