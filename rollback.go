package sim

import "sort"

// RollbackBuffer keeps the most recent snapshots by frame number, bounded
// to maxFrames entries (spec 4.8: "a bounded ring of the last N frames'
// snapshots, default 60, for backstep/resync use"). Frames older than the
// window are evicted as new ones are saved.
type RollbackBuffer struct {
	maxFrames int
	byFrame   map[int64]*Snapshot
	order     []int64 // ascending frame numbers currently held
}

// DefaultRollbackFrames is the default ring depth (spec 4.8).
const DefaultRollbackFrames = 60

// NewRollbackBuffer constructs a ring bounded to maxFrames entries. A
// non-positive maxFrames falls back to DefaultRollbackFrames.
func NewRollbackBuffer(maxFrames int) *RollbackBuffer {
	if maxFrames <= 0 {
		maxFrames = DefaultRollbackFrames
	}
	return &RollbackBuffer{maxFrames: maxFrames, byFrame: make(map[int64]*Snapshot)}
}

// Save records snap under its own Frame, then evicts every held entry with
// frame < frame-maxFrames+1 (spec 4.8's literal eviction rule, not just a
// held-count cap — the two agree for monotonically increasing saves but
// diverge for sparse/out-of-order frames, where a held-count cap could
// keep an old outlier frame around past the window).
func (b *RollbackBuffer) Save(snap *Snapshot) {
	frame := snap.Frame
	if _, exists := b.byFrame[frame]; !exists {
		pos := sort.Search(len(b.order), func(i int) bool { return b.order[i] >= frame })
		b.order = append(b.order, 0)
		copy(b.order[pos+1:], b.order[pos:])
		b.order[pos] = frame
	}
	b.byFrame[frame] = snap

	threshold := frame - int64(b.maxFrames) + 1
	kept := b.order[:0]
	for _, f := range b.order {
		if f < threshold {
			delete(b.byFrame, f)
			continue
		}
		kept = append(kept, f)
	}
	b.order = kept
}

// Get returns the snapshot saved for frame, if still held.
func (b *RollbackBuffer) Get(frame int64) (*Snapshot, bool) {
	snap, ok := b.byFrame[frame]
	return snap, ok
}

// OldestFrame returns the earliest frame still held, or (0, false) if
// empty.
func (b *RollbackBuffer) OldestFrame() (int64, bool) {
	if len(b.order) == 0 {
		return 0, false
	}
	return b.order[0], true
}

// LatestFrame returns the highest frame still held, or (0, false) if
// empty.
func (b *RollbackBuffer) LatestFrame() (int64, bool) {
	if len(b.order) == 0 {
		return 0, false
	}
	return b.order[len(b.order)-1], true
}

// Len reports how many frames are currently held.
func (b *RollbackBuffer) Len() int { return len(b.order) }
