package sim

import "math/bits"

// Hasher accumulates an xxhash32-derived state hash incrementally, the way
// spec 4.6 describes "fold in" one value at a time (ID count, then each
// active ID, then each field) rather than hashing a pre-built byte buffer.
// Fold applies one xxHash32 processing round per 32-bit lane; Sum applies
// xxHash32's final avalanche mix.
type Hasher struct {
	acc uint32
}

// NewHasher starts an accumulator from the given seed (spec 4.6: "start
// with 0" for the state hash; spec 4.10 seeds partition draws from
// 0x12345678 via the same combine primitive).
func NewHasher(seed uint32) Hasher {
	return Hasher{acc: seed}
}

// Fold mixes one 32-bit value into the running hash.
func (h Hasher) Fold(v uint32) Hasher {
	acc := h.acc + v*xxPrime2
	acc = bits.RotateLeft32(acc, 13)
	acc *= xxPrime1
	return Hasher{acc: acc}
}

// Sum applies the xxHash32 avalanche finalizer and returns the 32-bit hash.
func (h Hasher) Sum() uint32 {
	acc := h.acc
	acc ^= acc >> 15
	acc *= xxPrime2
	acc ^= acc >> 13
	acc *= xxPrime3
	acc ^= acc >> 16
	return acc
}

// xxhash32Combine folds a single 32-bit value into seed and returns the
// finalized 32-bit hash, matching spec 4.10's
// "xxhash32_combine(xxhash32_combine(0x12345678, frame), p)" usage where
// each combine call's output feeds the next as a seed.
func xxhash32Combine(seed, value uint32) uint32 {
	return NewHasher(seed).Fold(value).Sum()
}
