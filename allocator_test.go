package sim

import "testing"

func TestAllocatorAllocateIncrementsIndex(t *testing.T) {
	a := NewIDAllocator(10, false)
	id0, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	id1, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if id0.Index() != 0 || id1.Index() != 1 {
		t.Fatalf("expected indices 0,1; got %d,%d", id0.Index(), id1.Index())
	}
}

func TestAllocatorFreeBumpsGeneration(t *testing.T) {
	a := NewIDAllocator(10, false)
	id, _ := a.Allocate()
	gen0 := id.Generation()
	if err := a.Free(id); err != nil {
		t.Fatalf("Free: %v", err)
	}
	reused, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if reused.Index() != id.Index() {
		t.Fatalf("expected slot reuse at index %d, got %d", id.Index(), reused.Index())
	}
	if reused.Generation() == gen0 {
		t.Fatalf("generation was not bumped on reuse")
	}
}

func TestAllocatorStaleIDInvalidAfterFree(t *testing.T) {
	a := NewIDAllocator(10, false)
	id, _ := a.Allocate()
	if !a.IsValid(id) {
		t.Fatalf("freshly allocated id reported invalid")
	}
	_ = a.Free(id)
	if a.IsValid(id) {
		t.Fatalf("stale id reported valid after free")
	}
}

func TestAllocatorDoubleFreeIsNoOp(t *testing.T) {
	a := NewIDAllocator(10, false)
	id, _ := a.Allocate()
	if err := a.Free(id); err != nil {
		t.Fatalf("first Free: %v", err)
	}
	if err := a.Free(id); err != nil {
		t.Fatalf("second Free should be a no-op, got: %v", err)
	}
}

func TestAllocatorExhaustion(t *testing.T) {
	a := NewIDAllocator(2, false)
	if _, err := a.Allocate(); err != nil {
		t.Fatalf("Allocate 1: %v", err)
	}
	if _, err := a.Allocate(); err != nil {
		t.Fatalf("Allocate 2: %v", err)
	}
	if _, err := a.Allocate(); err == nil {
		t.Fatalf("expected resource exhaustion error, got nil")
	}
}

func TestAllocatorFreeListStaysSorted(t *testing.T) {
	a := NewIDAllocator(10, false)
	var ids []EntityID
	for i := 0; i < 5; i++ {
		id, _ := a.Allocate()
		ids = append(ids, id)
	}
	// Free out of order; the next three allocations must come back in
	// ascending index order regardless of free order.
	_ = a.Free(ids[3])
	_ = a.Free(ids[1])
	_ = a.Free(ids[4])

	var reused []uint32
	for i := 0; i < 3; i++ {
		id, _ := a.Allocate()
		reused = append(reused, id.Index())
	}
	want := []uint32{1, 3, 4}
	for i, w := range want {
		if reused[i] != w {
			t.Fatalf("reuse order = %v, want %v", reused, want)
		}
	}
}

func TestAllocatorAllocateSpecificIdempotent(t *testing.T) {
	a := NewIDAllocator(10, false)
	id := makeEntityID(3, 1, false)
	if err := a.AllocateSpecific(id); err != nil {
		t.Fatalf("AllocateSpecific: %v", err)
	}
	if !a.IsValid(id) {
		t.Fatalf("id not valid after AllocateSpecific")
	}
	if err := a.AllocateSpecific(id); err != nil {
		t.Fatalf("second AllocateSpecific: %v", err)
	}
	if !a.IsValid(id) {
		t.Fatalf("id not valid after idempotent AllocateSpecific")
	}
}

func TestAllocatorSaveLoadState(t *testing.T) {
	a := NewIDAllocator(10, false)
	id0, _ := a.Allocate()
	id1, _ := a.Allocate()
	_ = a.Free(id0)
	state := a.SaveState()

	b := NewIDAllocator(10, false)
	b.LoadState(state)
	if !b.IsValid(id1) {
		t.Fatalf("restored allocator lost a valid id")
	}
	if b.IsValid(id0) {
		t.Fatalf("restored allocator kept a freed id valid")
	}
}

func TestAllocatorRebuildFreeList(t *testing.T) {
	a := NewIDAllocator(5, false)
	var ids []EntityID
	for i := 0; i < 5; i++ {
		id, _ := a.Allocate()
		ids = append(ids, id)
	}
	active := map[uint32]bool{0: true, 2: true, 4: true}
	a.RebuildFreeList(active)

	next, err := a.Allocate()
	if err != nil {
		t.Fatalf("Allocate after rebuild: %v", err)
	}
	if next.Index() != 1 {
		t.Fatalf("expected rebuilt free list to hand back index 1 first, got %d", next.Index())
	}
}

func TestAllocatorLocalGenerationForcesBit(t *testing.T) {
	a := NewIDAllocator(10, true)
	id, _ := a.Allocate()
	if id.Generation()&(1<<10) == 0 {
		t.Fatalf("local allocator did not force the overlapping generation bit")
	}
}
