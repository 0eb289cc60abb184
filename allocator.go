package sim

import "sort"

// IDAllocator hands out generational EntityIDs from a fixed-size index
// space (spec 4.2). A free slot's generation is bumped before it returns
// to the free list, and the free list is kept in ascending sorted order so
// that encode order (and therefore allocate order) is identical across
// peers regardless of map/set iteration.
//
// Two independent instances are used by World: one for networked entities,
// one (with local=true) for entities that are never serialized — see
// DESIGN.md's Open Question decision #1 for how the local instance keeps
// its own stored/decoded generation invariant consistent despite the
// LocalEntityBit/generation-subfield bit overlap baked into spec.md.
type IDAllocator struct {
	local       bool
	maxEntities uint32
	nextIndex   uint32
	freeList    []uint32 // ascending sorted slot indices
	generations []uint16 // len == nextIndex, generation per ever-used slot
}

// NewIDAllocator constructs an allocator for up to maxEntities slots.
func NewIDAllocator(maxEntities int, local bool) *IDAllocator {
	return &IDAllocator{
		local:       local,
		maxEntities: uint32(maxEntities),
	}
}

func (a *IDAllocator) normalizeGeneration(g uint16) uint16 {
	g &= 1<<GenerationBits - 1
	if a.local {
		g |= 1 << 10 // force the LocalEntityBit-overlapping bit, see DESIGN.md
	}
	return g
}

// Allocate returns a fresh EntityID, preferring the head of the free list
// and only bumping nextIndex when it is empty (spec 4.2: O(1) amortized).
func (a *IDAllocator) Allocate() (EntityID, error) {
	if len(a.freeList) > 0 {
		idx := a.freeList[0]
		a.freeList = a.freeList[1:]
		return makeEntityID(idx, a.generations[idx], a.local), nil
	}

	if a.nextIndex >= a.maxEntities {
		return InvalidEntityID, newErr(KindResourceExhaustion, "IDAllocator.Allocate", nil)
	}

	idx := a.nextIndex
	a.nextIndex++
	a.generations = append(a.generations, a.normalizeGeneration(0))
	return makeEntityID(idx, a.generations[idx], a.local), nil
}

// Free bumps the slot's generation (mod 4096) and reinserts the index into
// the sorted free list via binary search (spec 4.2: O(log n)).
func (a *IDAllocator) Free(e EntityID) error {
	idx := e.Index()
	if idx >= a.nextIndex {
		return newErr(KindInvalidAccess, "IDAllocator.Free", nil)
	}

	pos := sort.Search(len(a.freeList), func(i int) bool { return a.freeList[i] >= idx })
	if pos < len(a.freeList) && a.freeList[pos] == idx {
		return nil // already free: tolerated as a no-op (double destroy)
	}

	a.generations[idx] = a.normalizeGeneration(a.generations[idx] + 1)

	a.freeList = append(a.freeList, 0)
	copy(a.freeList[pos+1:], a.freeList[pos:])
	a.freeList[pos] = idx
	return nil
}

// AllocateSpecific is used during snapshot restore: it removes idx from the
// free list if present, bumps nextIndex if needed, and forces the slot's
// generation to match e (spec 4.2). It is idempotent for an already-active
// slot with the same generation.
func (a *IDAllocator) AllocateSpecific(e EntityID) error {
	idx := e.Index()
	if idx >= a.maxEntities {
		return newErr(KindResourceExhaustion, "IDAllocator.AllocateSpecific", nil)
	}

	for a.nextIndex <= idx {
		a.generations = append(a.generations, a.normalizeGeneration(0))
		a.nextIndex++
	}

	a.generations[idx] = a.normalizeGeneration(e.Generation())

	pos := sort.Search(len(a.freeList), func(i int) bool { return a.freeList[i] >= idx })
	if pos < len(a.freeList) && a.freeList[pos] == idx {
		a.freeList = append(a.freeList[:pos], a.freeList[pos+1:]...)
	}
	return nil
}

// IsValid reports whether e currently names an active slot: index within
// range and its stored generation matches the decoded generation.
func (a *IDAllocator) IsValid(e EntityID) bool {
	idx := e.Index()
	if idx >= a.nextIndex {
		return false
	}
	return a.generations[idx] == e.Generation()
}

// AllocatorState is the serializable allocator snapshot (spec 4.2: "carries
// (next_index, free_list[], generations[0..next_index])").
type AllocatorState struct {
	NextIndex   uint32
	FreeList    []uint32
	Generations []uint16
}

// SaveState returns a deep copy of the allocator's state.
func (a *IDAllocator) SaveState() AllocatorState {
	free := make([]uint32, len(a.freeList))
	copy(free, a.freeList)
	gens := make([]uint16, len(a.generations))
	copy(gens, a.generations)
	return AllocatorState{NextIndex: a.nextIndex, FreeList: free, Generations: gens}
}

// LoadState restores the allocator from a previously saved state.
func (a *IDAllocator) LoadState(s AllocatorState) {
	a.nextIndex = s.NextIndex
	a.freeList = append([]uint32(nil), s.FreeList...)
	a.generations = append([]uint16(nil), s.Generations...)
}

// RebuildFreeList recomputes the free list as {0..nextIndex} \ active,
// used by snapshot decode step 7 ("Recompute the allocator's free-list").
func (a *IDAllocator) RebuildFreeList(active map[uint32]bool) {
	free := make([]uint32, 0, a.nextIndex)
	for i := uint32(0); i < a.nextIndex; i++ {
		if !active[i] {
			free = append(free, i)
		}
	}
	a.freeList = free
}
