package interp

// rng is the deterministic per-tick random source: splitmix64 seeded
// from the snapshot seed, advanced by an explicit draw counter. The
// same seed and the same program always produce the same draw
// sequence, so randomness stays inside the deterministic envelope.
type rng struct {
	state uint64
	draws int64
}

func newRNG(seed uint64) *rng {
	return &rng{state: seed}
}

// next returns the next 64-bit draw and advances the counter.
func (r *rng) next() uint64 {
	r.draws++
	r.state += 0x9e3779b97f4a7c15
	z := r.state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
