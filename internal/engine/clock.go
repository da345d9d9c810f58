package engine

import "sync/atomic"

// TickClock is the monotonic logical tick counter. Wall time never
// orders anything in the engine; every frame is stamped from this
// clock, so replay reproduces the exact sequence.
//
// Thread-safety: atomic, though the single-writer tick loop is the
// only expected caller of Next.
type TickClock struct {
	tick atomic.Int64
}

// NewTickClock creates a clock at tick 0.
func NewTickClock() *TickClock {
	return &TickClock{}
}

// Current returns the tick about to run.
func (c *TickClock) Current() int64 {
	return c.tick.Load()
}

// Next advances past the completed tick and returns the new position.
func (c *TickClock) Next() int64 {
	return c.tick.Add(1)
}
