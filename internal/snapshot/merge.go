package snapshot

import (
	"slices"
	"strings"

	"github.com/lockstep-sim/lockstep/internal/value"
)

// Merge freezes one tick's inputs into a Snapshot. Events are filtered
// to the owning tick (OrderKey == tick), sorted by (sender, seq), and
// deduplicated — arrival order never influences the result, so
// replicas receiving the same multiset of events in any permutation
// produce identical snapshots.
//
// Duplicate policy: when two events share (sender, seq), the one whose
// canonical payload hash is lexicographically smallest wins. A
// retransmitted identical event collapses to itself; a sender that
// (incorrectly) reuses a sequence number for different payloads still
// resolves the same way on every replica.
func Merge(tick int64, local LocalInput, events []NetEvent) Snapshot {
	owned := make([]NetEvent, 0, len(events))
	for _, ev := range events {
		if ev.OrderKey == tick {
			owned = append(owned, ev)
		}
	}

	slices.SortStableFunc(owned, func(a, b NetEvent) int {
		if c := strings.Compare(a.Sender, b.Sender); c != 0 {
			return c
		}
		if a.Seq != b.Seq {
			if a.Seq < b.Seq {
				return -1
			}
			return 1
		}
		return strings.Compare(payloadHash(a), payloadHash(b))
	})

	merged := owned[:0]
	for i, ev := range owned {
		if i > 0 {
			prev := merged[len(merged)-1]
			if prev.Sender == ev.Sender && prev.Seq == ev.Seq {
				// Sorted by payload hash above, so the kept event is
				// already the winner under the duplicate policy.
				continue
			}
		}
		merged = append(merged, ev)
	}

	return Snapshot{
		KeyMask:   local.KeyMask,
		LastKey:   local.LastKey,
		PointerX:  local.PointerX,
		PointerY:  local.PointerY,
		Seed:      local.Seed,
		NetEvents: slices.Clone(merged),
	}
}

// payloadHash digests an event payload for duplicate resolution. A
// payload that cannot hash (impossible for values built from the
// sealed union) sorts as the empty string.
func payloadHash(ev NetEvent) string {
	payload := value.Value(ev.Payload)
	if ev.Payload == nil {
		payload = value.Pairs{}
	}
	h, err := value.HashValue(value.DomainEvent, payload)
	if err != nil {
		return ""
	}
	return h
}
