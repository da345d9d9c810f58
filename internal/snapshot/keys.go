package snapshot

// Key bitmask layout. Bits 0-25 are the letters a-z, 26-35 the digits
// 0-9, and the named keys follow. The layout is part of the snapshot
// document contract and must not be reordered.
var namedKeyBits = map[string]uint{
	"space":  36,
	"enter":  37,
	"shift":  38,
	"up":     39,
	"down":   40,
	"left":   41,
	"right":  42,
	"escape": 43,
	"tab":    44,
}

// KeyBit maps a key name to its bit index in the snapshot key mask.
func KeyBit(name string) (uint, bool) {
	if len(name) == 1 {
		c := name[0]
		switch {
		case c >= 'a' && c <= 'z':
			return uint(c - 'a'), true
		case c >= '0' && c <= '9':
			return 26 + uint(c-'0'), true
		}
	}
	bit, ok := namedKeyBits[name]
	return bit, ok
}

// KeyDown reports whether the named key is held in this snapshot.
// Unknown key names are simply not down.
func (s Snapshot) KeyDown(name string) bool {
	bit, ok := KeyBit(name)
	if !ok {
		return false
	}
	return s.KeyMask&(1<<bit) != 0
}
