package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"

	"github.com/lockstep-sim/lockstep/internal/engine"
	"github.com/lockstep-sim/lockstep/internal/fixed"
	"github.com/lockstep-sim/lockstep/internal/journal"
	"github.com/lockstep-sim/lockstep/internal/parser"
	"github.com/lockstep-sim/lockstep/internal/units"
	"github.com/lockstep-sim/lockstep/internal/value"
	"github.com/lockstep-sim/lockstep/internal/world"
)

// TickOutcome records what one scripted tick did.
type TickOutcome struct {
	Tick        int64
	PatchCount  int
	SignalKinds []string
	StateHash   string
}

// Result is a completed scenario run.
type Result struct {
	Scenario *Scenario
	World    *world.World
	Frames   []journal.Frame
	Ticks    []TickOutcome
}

// Run executes the scenario through a real engine, one scripted tick
// at a time.
func Run(ctx context.Context, s *Scenario) (*Result, error) {
	reg := units.MustLoad()
	prog, err := parser.ParseText(s.Program, reg)
	if err != nil {
		return nil, fmt.Errorf("harness: scenario %q: %w", s.Name, err)
	}

	e := engine.New(prog, reg,
		engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		engine.WithTraceTier(journal.TraceSummary))

	res := &Result{Scenario: s}
	signalsSeen := 0
	for i, step := range s.Ticks {
		tick := int64(i)
		snap, err := step.snapshotFor(tick)
		if err != nil {
			return nil, fmt.Errorf("harness: scenario %q tick %d: %w", s.Name, tick, err)
		}
		frame, err := e.TickWith(ctx, snap)
		if err != nil {
			return nil, fmt.Errorf("harness: scenario %q tick %d: %w", s.Name, tick, err)
		}

		history := e.World().Signals()
		kinds := make([]string, 0, len(history)-signalsSeen)
		for _, sig := range history[signalsSeen:] {
			kinds = append(kinds, string(sig.Kind))
		}
		sort.Strings(kinds)
		signalsSeen = len(history)

		res.Ticks = append(res.Ticks, TickOutcome{
			Tick:        tick,
			PatchCount:  frame.Trace.PatchCount,
			SignalKinds: kinds,
			StateHash:   frame.StateHash,
		})
	}
	res.World = e.World()
	res.Frames = e.Journal().Frames()
	return res, nil
}

// Check evaluates the scenario's expectations against the result.
func (r *Result) Check() error {
	exp := r.Scenario.Expect

	for name, want := range exp.Resources {
		v, ok := r.World.Resource(name)
		if !ok {
			return fmt.Errorf("harness: scenario %q: resource $%s not set", r.Scenario.Name, name)
		}
		if got := value.Render(v); got != want {
			return fmt.Errorf("harness: scenario %q: $%s = %s, want %s", r.Scenario.Name, name, got, want)
		}
	}

	if exp.Signals != nil {
		var got []string
		for _, t := range r.Ticks {
			got = append(got, t.SignalKinds...)
		}
		sort.Strings(got)
		want := append([]string(nil), exp.Signals...)
		sort.Strings(want)
		if !equalStrings(got, want) {
			return fmt.Errorf("harness: scenario %q: signals %v, want %v", r.Scenario.Name, got, want)
		}
	}

	if exp.DistinctHashes {
		seen := map[string]int64{}
		for _, t := range r.Ticks {
			if prev, dup := seen[t.StateHash]; dup {
				return fmt.Errorf("harness: scenario %q: tick %d repeated tick %d's state hash", r.Scenario.Name, t.Tick, prev)
			}
			seen[t.StateHash] = t.Tick
		}
	}
	return nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// payloadFromYAML converts a scenario's YAML payload into the value
// union. YAML integers and decimal strings go through the fixed-point
// parser; floats are accepted only when exactly representable.
func payloadFromYAML(doc map[string]any) (value.Pairs, error) {
	if doc == nil {
		return value.Pairs{}, nil
	}
	out := make(value.Pairs, len(doc))
	for k, raw := range doc {
		v, err := valueFromYAML(raw)
		if err != nil {
			return nil, fmt.Errorf("harness: payload key %q: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

func valueFromYAML(raw any) (value.Value, error) {
	switch d := raw.(type) {
	case nil:
		return value.Nothing{}, nil
	case bool:
		return value.Bool(d), nil
	case string:
		return value.Text(d), nil
	case int:
		f, err := fixed.FromInt(int64(d))
		if err != nil {
			return nil, err
		}
		return value.Number{F: f}, nil
	case int64:
		f, err := fixed.FromInt(d)
		if err != nil {
			return nil, err
		}
		return value.Number{F: f}, nil
	case float64:
		f, err := fixed.Parse(strconv.FormatFloat(d, 'f', -1, 64))
		if err != nil {
			return nil, err
		}
		return value.Number{F: f}, nil
	case []any:
		out := make(value.List, len(d))
		for i, elem := range d {
			v, err := valueFromYAML(elem)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case map[string]any:
		out := make(value.Pairs, len(d))
		for k, elem := range d {
			v, err := valueFromYAML(elem)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported payload element %T", raw)
	}
}
