// Package journal is the append-only record of an execution: one
// immutable frame per tick holding the input snapshot that drove the
// tick and the state hash it produced.
//
// A Log is an index over a shared arena of frames. Branching copies
// the index prefix and shares the arena, so an alternate timeline
// costs one slice copy and never mutates its parent. Frames are
// content-addressed: each carries a hash over its canonical encoding,
// which is what the durable store keys rows by and what tamper
// detection recomputes.
package journal

import (
	"fmt"
	"strconv"

	"github.com/lockstep-sim/lockstep/internal/snapshot"
	"github.com/lockstep-sim/lockstep/internal/value"
)

// TraceTier selects how much per-tick detail a frame retains beyond
// the snapshot and hash. The tier never feeds the frame hash, so logs
// recorded at different tiers stay hash-compatible.
type TraceTier int

const (
	TraceOff TraceTier = iota
	TraceSummary
	TraceFull
)

var traceTierNames = map[TraceTier]string{
	TraceOff:     "off",
	TraceSummary: "summary",
	TraceFull:    "full",
}

func (t TraceTier) String() string { return traceTierNames[t] }

// ParseTraceTier reads a tier name from config or flags.
func ParseTraceTier(s string) (TraceTier, error) {
	for tier, name := range traceTierNames {
		if name == s {
			return tier, nil
		}
	}
	return TraceOff, fmt.Errorf("journal: unknown trace tier %q (want off, summary, or full)", s)
}

// Trace is the optional per-tick detail. Summary keeps the counts;
// Full keeps a rendered line per patch and signal.
type Trace struct {
	Tier        TraceTier
	PatchCount  int
	SignalCount int
	Lines       []string
}

// Frame is one tick's record. Immutable once appended.
type Frame struct {
	Tick      int64
	Snapshot  snapshot.Snapshot
	StateHash string
	Trace     Trace
}

// canonical builds the hashed view of the frame: tick, the snapshot
// document, and the resulting state hash. Trace detail is deliberately
// outside it.
func (f Frame) canonical() value.Value {
	return value.Pairs{
		"tick":       value.Text(strconv.FormatInt(f.Tick, 10)),
		"snapshot":   f.Snapshot.Canonical(),
		"state_hash": value.Text(f.StateHash),
	}
}

// Hash returns the frame's content address.
func (f Frame) Hash() (string, error) {
	data, err := value.MarshalCanonical(f.canonical())
	if err != nil {
		return "", fmt.Errorf("journal: serialize frame %d: %w", f.Tick, err)
	}
	return value.HashWithDomain(value.DomainFrame, data), nil
}

// arena is the shared frame storage. Append-only; logs hold indices
// into it and never remove entries, so branches can share it freely.
type arena struct {
	frames []Frame
}

// Log is one timeline: a dense tick-ordered view over the arena.
type Log struct {
	arena *arena
	index []int
}

// NewLog creates an empty log with its own arena.
func NewLog() *Log {
	return &Log{arena: &arena{}}
}

// Len returns the number of recorded ticks.
func (l *Log) Len() int { return len(l.index) }

// Append records the next frame. Ticks are dense from zero; a gap or
// repeat means the producer lost track of time and is terminal.
func (l *Log) Append(f Frame) error {
	if f.Tick != int64(len(l.index)) {
		return fmt.Errorf("journal: appending tick %d, log is at tick %d", f.Tick, len(l.index))
	}
	l.arena.frames = append(l.arena.frames, f)
	l.index = append(l.index, len(l.arena.frames)-1)
	return nil
}

// Frame returns the frame recorded for a tick.
func (l *Log) Frame(tick int64) (Frame, bool) {
	if tick < 0 || tick >= int64(len(l.index)) {
		return Frame{}, false
	}
	return l.arena.frames[l.index[tick]], true
}

// Frames returns the timeline in tick order.
func (l *Log) Frames() []Frame {
	out := make([]Frame, len(l.index))
	for i, idx := range l.index {
		out[i] = l.arena.frames[idx]
	}
	return out
}

// Branch forks an alternate timeline that shares every frame before
// atTick and is open for new appends from there. The parent log is
// untouched; only the index prefix is copied.
func (l *Log) Branch(atTick int64) (*Log, error) {
	if atTick < 0 || atTick > int64(len(l.index)) {
		return nil, fmt.Errorf("journal: branch point %d outside log of %d ticks", atTick, len(l.index))
	}
	index := make([]int, atTick)
	copy(index, l.index[:atTick])
	return &Log{arena: l.arena, index: index}, nil
}

// Verify recomputes every frame hash against the stored one. The
// durable store runs it over each session it loads.
func Verify(frames []Frame, hashes []string) error {
	if len(frames) != len(hashes) {
		return fmt.Errorf("journal: %d frames against %d hashes", len(frames), len(hashes))
	}
	for i, f := range frames {
		h, err := f.Hash()
		if err != nil {
			return err
		}
		if h != hashes[i] {
			return &TamperError{Tick: f.Tick, Want: hashes[i], Got: h}
		}
	}
	return nil
}

// TamperError reports a frame whose recomputed hash differs from the
// recorded one. Machine code E_TAMPERED_FRAME.
type TamperError struct {
	Tick int64
	Want string
	Got  string
}

func (e *TamperError) Error() string {
	return fmt.Sprintf("E_TAMPERED_FRAME at tick %d: recorded %s, recomputed %s", e.Tick, e.Want, e.Got)
}
