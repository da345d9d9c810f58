// Package harness runs YAML-defined scenarios end to end: program in,
// scripted per-tick inputs through the real engine, assertions and
// golden reports out.
//
// Scenarios drive the same engine path production uses; nothing is
// stubbed. Reports deliberately contain no state hashes, so goldens
// stay readable and assert behavior rather than digest bytes.
package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/lockstep-sim/lockstep/internal/fixed"
	"github.com/lockstep-sim/lockstep/internal/snapshot"
)

// Scenario is one YAML test case.
type Scenario struct {
	// Name uniquely identifies the scenario; the golden file shares it.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description,omitempty"`

	// Program is the surface-language source to run.
	Program string `yaml:"program"`

	// Ticks scripts the input for each tick in order. An empty list
	// runs nothing.
	Ticks []TickStep `yaml:"ticks"`

	// Expect holds the scenario's assertions, checked after the run.
	Expect Expectations `yaml:"expect,omitempty"`
}

// TickStep scripts one tick's input snapshot.
type TickStep struct {
	Seed     uint64      `yaml:"seed,omitempty"`
	Keys     []string    `yaml:"keys,omitempty"`
	LastKey  string      `yaml:"last_key,omitempty"`
	PointerX string      `yaml:"pointer_x,omitempty"`
	PointerY string      `yaml:"pointer_y,omitempty"`
	Events   []EventStep `yaml:"events,omitempty"`
}

// EventStep is one scripted network event. OrderKey defaults to the
// tick the step belongs to.
type EventStep struct {
	Sender   string         `yaml:"sender"`
	Seq      int64          `yaml:"seq"`
	OrderKey *int64         `yaml:"order_key,omitempty"`
	Payload  map[string]any `yaml:"payload,omitempty"`
}

// Expectations are the scenario's final assertions. All fields are
// optional; empty expectations make the golden report the only check.
type Expectations struct {
	// Resources maps resource names to their rendered final values.
	Resources map[string]string `yaml:"resources,omitempty"`

	// Signals lists expected signal kinds over the whole run, sorted.
	// Nil skips the check; an empty list asserts no signals.
	Signals []string `yaml:"signals,omitempty"`

	// DistinctHashes asserts every tick produced a new state hash.
	DistinctHashes bool `yaml:"distinct_hashes,omitempty"`
}

// Load reads one scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("harness: read scenario: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("harness: parse scenario %s: %w", path, err)
	}
	if s.Name == "" {
		return nil, fmt.Errorf("harness: scenario %s has no name", path)
	}
	if s.Program == "" {
		return nil, fmt.Errorf("harness: scenario %q has no program", s.Name)
	}
	return &s, nil
}

// LoadDir reads every *.yaml scenario in a directory, sorted by file
// name for stable test ordering.
func LoadDir(dir string) ([]*Scenario, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	scenarios := make([]*Scenario, 0, len(matches))
	for _, path := range matches {
		s, err := Load(path)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// snapshotFor materializes the scripted input for one tick.
func (ts TickStep) snapshotFor(tick int64) (snapshot.Snapshot, error) {
	local := snapshot.LocalInput{Seed: ts.Seed, LastKey: ts.LastKey}
	for _, key := range ts.Keys {
		bit, ok := snapshot.KeyBit(key)
		if !ok {
			return snapshot.Snapshot{}, fmt.Errorf("harness: unknown key %q", key)
		}
		local.KeyMask |= 1 << bit
	}
	var err error
	if ts.PointerX != "" {
		if local.PointerX, err = fixed.Parse(ts.PointerX); err != nil {
			return snapshot.Snapshot{}, fmt.Errorf("harness: pointer_x: %w", err)
		}
	}
	if ts.PointerY != "" {
		if local.PointerY, err = fixed.Parse(ts.PointerY); err != nil {
			return snapshot.Snapshot{}, fmt.Errorf("harness: pointer_y: %w", err)
		}
	}

	events := make([]snapshot.NetEvent, 0, len(ts.Events))
	for _, es := range ts.Events {
		payload, err := payloadFromYAML(es.Payload)
		if err != nil {
			return snapshot.Snapshot{}, err
		}
		orderKey := tick
		if es.OrderKey != nil {
			orderKey = *es.OrderKey
		}
		events = append(events, snapshot.NetEvent{
			Sender:   es.Sender,
			Seq:      es.Seq,
			OrderKey: orderKey,
			Payload:  payload,
		})
	}
	return snapshot.Merge(tick, local, events), nil
}
