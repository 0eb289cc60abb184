package sim

// RNG is a 64-bit xorshift generator split into two 32-bit words for
// save/load (spec 3: "64-bit state split into two 32-bit words"). It must
// only ever be advanced by code paths that run identically on every peer;
// callbacks that run on a subset of peers must save/restore it (spec 5's
// RNG discipline), see NetworkDriver.withRNGGuard.
type RNG struct {
	s0, s1 uint32
}

// NewRNG seeds the generator with a fixed avalanche (spec 3: "xorshift
// variant with fixed avalanche on seeding"), using the MurmurHash3 fmix64
// finalizer to spread a single 32-bit seed across both words.
func NewRNG(seed uint32) *RNG {
	x := uint64(seed)
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33

	r := &RNG{s0: uint32(x), s1: uint32(x >> 32)}
	if r.s0 == 0 && r.s1 == 0 {
		r.s1 = 1
	}
	return r
}

// RNGState is the serializable two-word state (spec 4.7: "rng_state").
type RNGState struct {
	S0, S1 uint32
}

// SaveState returns the current two-word state.
func (r *RNG) SaveState() RNGState {
	return RNGState{S0: r.s0, S1: r.s1}
}

// LoadState restores a previously saved two-word state.
func (r *RNG) LoadState(s RNGState) {
	r.s0, r.s1 = s.S0, s.S1
	if r.s0 == 0 && r.s1 == 0 {
		r.s1 = 1
	}
}

// NextUint32 advances the generator one step and returns the next 32-bit
// value.
func (r *RNG) NextUint32() uint32 {
	x := uint64(r.s1)<<32 | uint64(r.s0)
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	r.s0 = uint32(x)
	r.s1 = uint32(x >> 32)
	return r.s1
}

// NextFloat returns a deterministic value in [0, 1).
func (r *RNG) NextFloat() float64 {
	return float64(r.NextUint32()) / float64(1<<32)
}

// NextRange returns a deterministic integer in [lo, hi).
func (r *RNG) NextRange(lo, hi int32) int32 {
	if hi <= lo {
		return lo
	}
	span := uint32(hi - lo)
	return lo + int32(r.NextUint32()%span)
}
