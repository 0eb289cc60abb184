package sim

// EntityID packs a 20-bit slot index and a 12-bit generation counter into
// a 32-bit value (spec 3). Bit 30 (LocalEntityBit) additionally marks
// entities allocated from the local (never-serialized) pool — see
// allocator.go and DESIGN.md's "Open Question decisions" #1 for how the
// resulting overlap with the generation subfield is resolved.
type EntityID uint32

// InvalidEntityID is never returned by an allocator.
const InvalidEntityID EntityID = 0xFFFFFFFF

func makeEntityID(index uint32, generation uint16, local bool) EntityID {
	id := (uint32(generation) << IndexBits) | (index & IndexMask)
	if local {
		id |= LocalEntityBit
	}
	return EntityID(id)
}

// Index returns the 20-bit slot index.
func (e EntityID) Index() uint32 {
	return uint32(e) & IndexMask
}

// Generation returns the raw 12-bit generation subfield, including the
// local-pool's forced bit 10 when IsLocal is true.
func (e EntityID) Generation() uint16 {
	return uint16((uint32(e) >> IndexBits) & (1<<GenerationBits - 1))
}

// IsLocal reports whether e was allocated from the local (unserialized)
// pool.
func (e EntityID) IsLocal() bool {
	return uint32(e)&LocalEntityBit != 0
}
