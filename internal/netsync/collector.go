// Package netsync collects NetEvents from remote producers over
// WebSocket connections.
//
// This is the only concurrency boundary in the system: connection
// goroutines append to a mutex-guarded buffer, and the tick loop
// drains a fully materialized batch at the tick boundary. Nothing
// downstream of Drain ever sees a partially received event, and
// arrival order is irrelevant — the snapshot merge imposes the
// deterministic order.
package netsync

import (
	"log/slog"
	"sync"

	"github.com/lockstep-sim/lockstep/internal/snapshot"
)

// Collector buffers events until the tick boundary.
type Collector struct {
	log *slog.Logger

	mu     sync.Mutex
	events []snapshot.NetEvent
}

// NewCollector creates an empty collector logging through log.
func NewCollector(log *slog.Logger) *Collector {
	if log == nil {
		log = slog.Default()
	}
	return &Collector{log: log}
}

// Offer buffers one event. Safe for concurrent use; called by
// connection handlers as events arrive.
func (c *Collector) Offer(ev snapshot.NetEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

// Pending reports the buffered event count. Diagnostic only.
func (c *Collector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

// Drain removes and returns the events owned by tick. Events for
// later ticks stay buffered; events for past ticks arrived too late to
// be deterministic and are dropped with a log line.
func (c *Collector) Drain(tick int64) []snapshot.NetEvent {
	c.mu.Lock()
	defer c.mu.Unlock()

	var batch []snapshot.NetEvent
	kept := c.events[:0]
	for _, ev := range c.events {
		switch {
		case ev.OrderKey == tick:
			batch = append(batch, ev)
		case ev.OrderKey > tick:
			kept = append(kept, ev)
		default:
			c.log.Warn("dropping late net event",
				"sender", ev.Sender, "seq", ev.Seq,
				"order_key", ev.OrderKey, "tick", tick)
		}
	}
	c.events = kept
	return batch
}
