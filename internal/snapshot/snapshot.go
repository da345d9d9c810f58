// Package snapshot defines the per-tick input capture and the
// synchronizer that gives multi-source events one deterministic order.
//
// An InputSnapshot is the interpreter's only source of
// non-determinism: keys, pointer, rng seed, and the tick's network
// events, frozen before the tick starts. Snapshots are immutable once
// built and serialize canonically so a logged snapshot replays byte
// for byte.
package snapshot

import (
	"fmt"
	"strconv"

	"github.com/lockstep-sim/lockstep/internal/fixed"
	"github.com/lockstep-sim/lockstep/internal/value"
)

// Version is the snapshot document version tag.
const Version = "input_snapshot.v1"

// NetEvent is one event from an external producer. OrderKey is the
// tick the event belongs to; Seq is the producer's own sequence
// number, which, together with Sender, totally orders events within a
// tick.
type NetEvent struct {
	Sender   string
	Seq      int64
	OrderKey int64
	Payload  value.Pairs
}

// LocalInput captures this replica's own device state for one tick.
type LocalInput struct {
	KeyMask  uint64
	LastKey  string
	PointerX fixed.F64
	PointerY fixed.F64
	Seed     uint64
}

// Snapshot is the immutable per-tick input bundle.
type Snapshot struct {
	KeyMask  uint64
	LastKey  string
	PointerX fixed.F64
	PointerY fixed.F64
	Seed     uint64
	// NetEvents in merged deterministic order.
	NetEvents []NetEvent
}

// Empty returns a snapshot with no input and the given seed.
func Empty(seed uint64) Snapshot {
	return Snapshot{Seed: seed}
}

// Canonical converts the snapshot to its canonical value form. Wide
// integers (masks, seeds, sequence numbers) render as decimal text so
// the encoding has no integer-width edge cases; pointer coordinates
// stay fixed-point numbers.
func (s Snapshot) Canonical() value.Value {
	events := make(value.List, len(s.NetEvents))
	for i, ev := range s.NetEvents {
		payload := ev.Payload
		if payload == nil {
			payload = value.Pairs{}
		}
		events[i] = value.Pairs{
			"sender":    value.Text(ev.Sender),
			"seq":       value.Text(strconv.FormatInt(ev.Seq, 10)),
			"order_key": value.Text(strconv.FormatInt(ev.OrderKey, 10)),
			"payload":   payload,
		}
	}
	return value.Pairs{
		"version":    value.Text(Version),
		"key_mask":   value.Text(strconv.FormatUint(s.KeyMask, 10)),
		"last_key":   value.Text(s.LastKey),
		"pointer_x":  value.Number{F: s.PointerX},
		"pointer_y":  value.Number{F: s.PointerY},
		"rng_seed":   value.Text(strconv.FormatUint(s.Seed, 10)),
		"net_events": events,
	}
}

// MarshalCanonical serializes the snapshot into its one canonical byte
// form, the form that both frame hashing and the journal store use.
func (s Snapshot) MarshalCanonical() ([]byte, error) {
	return value.MarshalCanonical(s.Canonical())
}

// Unmarshal parses a canonical snapshot document, validating the
// version tag.
func Unmarshal(data []byte) (Snapshot, error) {
	v, err := value.UnmarshalCanonical(data)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot: %w", err)
	}
	root, ok := v.(value.Pairs)
	if !ok {
		return Snapshot{}, fmt.Errorf("snapshot: document is %s, want pairs", v.Kind())
	}
	if ver, _ := root["version"].(value.Text); string(ver) != Version {
		return Snapshot{}, fmt.Errorf("snapshot: unsupported version %q", string(ver))
	}

	var s Snapshot
	if s.KeyMask, err = textUint(root, "key_mask"); err != nil {
		return Snapshot{}, err
	}
	if lk, ok := root["last_key"].(value.Text); ok {
		s.LastKey = string(lk)
	}
	if px, ok := root["pointer_x"].(value.Number); ok {
		s.PointerX = px.F
	}
	if py, ok := root["pointer_y"].(value.Number); ok {
		s.PointerY = py.F
	}
	if s.Seed, err = textUint(root, "rng_seed"); err != nil {
		return Snapshot{}, err
	}

	rawEvents, ok := root["net_events"].(value.List)
	if !ok {
		return Snapshot{}, fmt.Errorf("snapshot: net_events missing or not a list")
	}
	for i, raw := range rawEvents {
		ev, ok := raw.(value.Pairs)
		if !ok {
			return Snapshot{}, fmt.Errorf("snapshot: net_events[%d] is %s, want pairs", i, raw.Kind())
		}
		sender, _ := ev["sender"].(value.Text)
		seq, err := textInt(ev, "seq")
		if err != nil {
			return Snapshot{}, fmt.Errorf("snapshot: net_events[%d]: %w", i, err)
		}
		orderKey, err := textInt(ev, "order_key")
		if err != nil {
			return Snapshot{}, fmt.Errorf("snapshot: net_events[%d]: %w", i, err)
		}
		payload, _ := ev["payload"].(value.Pairs)
		s.NetEvents = append(s.NetEvents, NetEvent{
			Sender:   string(sender),
			Seq:      seq,
			OrderKey: orderKey,
			Payload:  payload,
		})
	}
	return s, nil
}

func textUint(p value.Pairs, key string) (uint64, error) {
	t, ok := p[key].(value.Text)
	if !ok {
		return 0, fmt.Errorf("snapshot: %s missing or not text", key)
	}
	n, err := strconv.ParseUint(string(t), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("snapshot: %s: %w", key, err)
	}
	return n, nil
}

func textInt(p value.Pairs, key string) (int64, error) {
	t, ok := p[key].(value.Text)
	if !ok {
		return 0, fmt.Errorf("snapshot: %s missing or not text", key)
	}
	n, err := strconv.ParseInt(string(t), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("snapshot: %s: %w", key, err)
	}
	return n, nil
}
