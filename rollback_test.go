package sim

import "testing"

func fakeSnapshot(frame int64) *Snapshot {
	return &Snapshot{Frame: frame}
}

func TestRollbackBufferSaveAndGet(t *testing.T) {
	b := NewRollbackBuffer(3)
	b.Save(fakeSnapshot(1))
	b.Save(fakeSnapshot(2))
	if got, ok := b.Get(1); !ok || got.Frame != 1 {
		t.Fatalf("Get(1) = (%+v,%v), want frame 1", got, ok)
	}
	if _, ok := b.Get(99); ok {
		t.Fatalf("Get(99) unexpectedly found a snapshot")
	}
}

func TestRollbackBufferEvictsOldest(t *testing.T) {
	b := NewRollbackBuffer(2)
	b.Save(fakeSnapshot(1))
	b.Save(fakeSnapshot(2))
	b.Save(fakeSnapshot(3))
	if _, ok := b.Get(1); ok {
		t.Fatalf("frame 1 should have been evicted once the window filled")
	}
	if b.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", b.Len())
	}
}

func TestRollbackBufferOldestAndLatest(t *testing.T) {
	b := NewRollbackBuffer(5)
	b.Save(fakeSnapshot(10))
	b.Save(fakeSnapshot(11))
	b.Save(fakeSnapshot(12))
	if oldest, ok := b.OldestFrame(); !ok || oldest != 10 {
		t.Fatalf("OldestFrame() = (%d,%v), want (10,true)", oldest, ok)
	}
	if latest, ok := b.LatestFrame(); !ok || latest != 12 {
		t.Fatalf("LatestFrame() = (%d,%v), want (12,true)", latest, ok)
	}
}

func TestRollbackBufferDefaultDepth(t *testing.T) {
	b := NewRollbackBuffer(0)
	for f := int64(0); f < DefaultRollbackFrames+10; f++ {
		b.Save(fakeSnapshot(f))
	}
	if b.Len() != DefaultRollbackFrames {
		t.Fatalf("Len() = %d, want %d", b.Len(), DefaultRollbackFrames)
	}
}

func TestRollbackBufferEmpty(t *testing.T) {
	b := NewRollbackBuffer(4)
	if _, ok := b.OldestFrame(); ok {
		t.Fatalf("OldestFrame() on empty buffer reported found")
	}
	if _, ok := b.LatestFrame(); ok {
		t.Fatalf("LatestFrame() on empty buffer reported found")
	}
}
