package sim

import (
	"sort"
	"testing"

	"pgregory.net/rapid"
)

// Property tests for the invariants spec.md section 8 calls out by name.
// Mirrors the teacher's plain-testing.T style; rapid supplies the random
// input generation the teacher itself has no equivalent for (see
// SPEC_FULL.md's "Test tooling" note — grounded on the pack's
// erigon/go-ethereum manifests, which lean on rapid for consensus-state
// invariant checking).

// TestPropertyDeterminism: two independently constructed worlds fed an
// identical ordered input stream converge on the same state hash every
// tick (spec 8, property 1).
func TestPropertyDeterminism(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		dxs := rapid.SliceOfN(rapid.Int64Range(-5, 5), 1, 6).Draw(t, "dxs")

		run := func() uint32 {
			w := newTestWorld(false)
			id, _ := w.Spawn("player", false, nil)
			w.Scheduler.Add(PhaseUpdate, "move", 0, func(world *World) error {
				acc, err := world.Accessor(id, "pos")
				if err != nil {
					return err
				}
				for _, dx := range dxs {
					acc.SetFP("x", acc.FP("x")+FP(dx))
				}
				return nil
			})
			var hash uint32
			for f := int64(0); f < 10; f++ {
				if err := w.Tick(f, nil); err != nil {
					t.Fatalf("Tick: %v", err)
				}
				hash = w.ComputeStateHash()
			}
			return hash
		}

		if run() != run() {
			t.Fatalf("identical input streams produced divergent state hashes")
		}
	})
}

// TestPropertyHashStability: state_hash(world) == state_hash(decode(encode(world)))
// (spec 8, property 2).
func TestPropertyHashStability(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 8).Draw(t, "n")
		w := newTestWorld(false)
		for i := 0; i < n; i++ {
			x := rapid.Int32Range(-1000, 1000).Draw(t, "x")
			id, err := w.Spawn("player", false, []ComponentFieldDefault{
				{Component: "pos", Field: "x", Value: I32Value(FP(x))},
			})
			if err != nil {
				t.Fatalf("Spawn: %v", err)
			}
			_ = id
		}
		before := w.ComputeStateHash()

		snap := EncodeSnapshot(w, w.CurrentFrame(), 0, true)
		order := w.Components.SortedNames()
		blob, err := EncodeBinary(snap, order)
		if err != nil {
			t.Fatalf("EncodeBinary: %v", err)
		}
		decoded, _, err := DecodeBinary(blob, w.Components, NewDiscardLogger())
		if err != nil {
			t.Fatalf("DecodeBinary: %v", err)
		}
		w2 := newTestWorld(false)
		if err := LoadSparseSnapshot(w2, decoded); err != nil {
			t.Fatalf("LoadSparseSnapshot: %v", err)
		}
		after := w2.ComputeStateHash()
		if before != after {
			t.Fatalf("hash changed across encode/decode round-trip: %d vs %d", before, after)
		}
	})
}

// TestPropertyAllocatorNoCollision: IDs returned by Allocate after any
// sequence of allocate/free calls never collide with a currently-active
// ID, and every currently-active ID stays valid (spec 8, property 4).
func TestPropertyAllocatorNoCollision(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := NewIDAllocator(32, false)
		active := map[EntityID]bool{}
		var activeList []EntityID

		ops := rapid.SliceOfN(rapid.IntRange(0, 1), 1, 40).Draw(t, "ops")
		for _, op := range ops {
			if op == 0 || len(activeList) == 0 {
				id, err := a.Allocate()
				if err != nil {
					continue // exhaustion is an acceptable terminal state
				}
				if active[id] {
					t.Fatalf("Allocate returned an already-active id %v", id)
				}
				active[id] = true
				activeList = append(activeList, id)
			} else {
				i := rapid.IntRange(0, len(activeList)-1).Draw(t, "victim")
				id := activeList[i]
				if err := a.Free(id); err != nil {
					t.Fatalf("Free: %v", err)
				}
				delete(active, id)
				activeList = append(activeList[:i], activeList[i+1:]...)
			}
			for id := range active {
				if !a.IsValid(id) {
					t.Fatalf("active id %v reported invalid", id)
				}
			}
		}
	})
}

// TestPropertyPartitionCoverage: the union of ClientPartitions(c) over all
// clients equals [0, numPartitions) whenever sendersPerPartition >= 1
// (spec 8, property 5).
func TestPropertyPartitionCoverage(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		nClients := rapid.IntRange(1, 6).Draw(t, "nClients")
		clients := make([]string, nClients)
		reliability := map[string]int{}
		for i := range clients {
			clients[i] = string(rune('a' + i))
			reliability[clients[i]] = rapid.IntRange(0, 100).Draw(t, "reliability")
		}
		numPartitions := rapid.IntRange(1, 10).Draw(t, "numPartitions")
		frame := rapid.Int64Range(0, 1000).Draw(t, "frame")
		sendersPerPartition := rapid.IntRange(1, 3).Draw(t, "senders")

		assignment := PlanPartitionSenders(clients, reliability, frame, numPartitions, sendersPerPartition)

		covered := map[int]bool{}
		for _, c := range clients {
			for _, p := range ClientPartitions(assignment, c) {
				covered[p] = true
			}
		}
		if len(covered) != numPartitions {
			t.Fatalf("covered %d of %d partitions", len(covered), numPartitions)
		}
	})
}

// TestPropertyQueryOrdering: every query iterator yields IDs in strictly
// ascending order (spec 8, property 8).
func TestPropertyQueryOrdering(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		w := newTestWorld(false)
		n := rapid.IntRange(0, 20).Draw(t, "n")
		for i := 0; i < n; i++ {
			if _, err := w.Spawn("player", false, nil); err != nil {
				t.Fatalf("Spawn: %v", err)
			}
		}
		ids := w.Query.ByType("player")
		if !sort.SliceIsSorted(ids, func(i, j int) bool { return ids[i] < ids[j] }) {
			t.Fatalf("ByType returned unsorted ids: %v", ids)
		}
		ids2 := w.Query.ByComponents("pos")
		if !sort.SliceIsSorted(ids2, func(i, j int) bool { return ids2[i] < ids2[j] }) {
			t.Fatalf("ByComponents returned unsorted ids: %v", ids2)
		}
	})
}

// TestPropertyFixedPointRoundTrip: to_float(to_fixed(x)) ~= x within 2^-16,
// and fp_mul is commutative up to bit equality (spec 8, property 9).
func TestPropertyFixedPointRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		x := rapid.Float64Range(-1000, 1000).Draw(t, "x")
		fx := ToFixed(x)
		if diff := fx.Float() - x; diff > 1.0/65536.0*2 || diff < -1.0/65536.0*2 {
			t.Fatalf("round trip drifted too far: to_float(to_fixed(%v)) = %v", x, fx.Float())
		}

		a := ToFixed(rapid.Float64Range(-100, 100).Draw(t, "a"))
		b := ToFixed(rapid.Float64Range(-100, 100).Draw(t, "b"))
		if FPMul(a, b) != FPMul(b, a) {
			t.Fatalf("fp_mul not commutative: %v*%v != %v*%v", a, b, b, a)
		}
	})
}

// TestPropertyDeltaComposition: apply_delta(prev, delta(prev, curr)) ≡ curr
// in entity identity (spec 8, property 6).
func TestPropertyDeltaComposition(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		w := newTestWorld(false)
		nBase := rapid.IntRange(0, 5).Draw(t, "nBase")
		var baseIDs []EntityID
		for i := 0; i < nBase; i++ {
			id, _ := w.Spawn("player", false, nil)
			baseIDs = append(baseIDs, id)
		}
		prev := EncodeSnapshot(w, w.CurrentFrame(), 0, true)

		nNew := rapid.IntRange(0, 4).Draw(t, "nNew")
		for i := 0; i < nNew; i++ {
			w.Spawn("player", false, nil)
		}
		nDel := rapid.IntRange(0, len(baseIDs)).Draw(t, "nDel")
		for i := 0; i < nDel; i++ {
			_ = w.Destroy(baseIDs[i])
		}
		curr := EncodeSnapshot(w, w.CurrentFrame(), 0, true)

		d := ComputeDelta(prev, curr, 0, 0)

		w2 := newTestWorld(false)
		if err := LoadSparseSnapshot(w2, prev); err != nil {
			t.Fatalf("LoadSparseSnapshot(prev): %v", err)
		}
		if err := ApplyDelta(w2, d); err != nil {
			t.Fatalf("ApplyDelta: %v", err)
		}

		want := map[EntityID]bool{}
		for _, id := range w.Query.ByType("player") {
			want[id] = true
		}
		got := map[EntityID]bool{}
		for _, id := range w2.Query.ByType("player") {
			got[id] = true
		}
		if len(want) != len(got) {
			t.Fatalf("entity set size mismatch after delta apply: want %d, got %d", len(want), len(got))
		}
		for id := range want {
			if !got[id] {
				t.Fatalf("entity %v present in curr but missing after delta apply", id)
			}
		}
	})
}

// TestPropertyRollback: saving and reloading a mid-stream snapshot then
// replaying the remaining ticks reproduces the original terminal hash
// (spec 8, property 7).
func TestPropertyRollback(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		dx := rapid.Int32Range(-3, 3).Draw(t, "dx")

		w := newTestWorld(false)
		id, _ := w.Spawn("player", false, nil)
		w.Scheduler.Add(PhaseUpdate, "move", 0, func(world *World) error {
			acc, err := world.Accessor(id, "pos")
			if err != nil {
				return err
			}
			acc.SetFP("x", acc.FP("x")+FP(dx))
			return nil
		})

		rb := NewRollbackBuffer(60)
		var midSnap *Snapshot
		const mid, final = int64(5), int64(10)
		for f := int64(0); f <= final; f++ {
			if err := w.Tick(f, nil); err != nil {
				t.Fatalf("Tick: %v", err)
			}
			snap := EncodeSnapshot(w, f, 0, true)
			rb.Save(snap)
			if f == mid {
				midSnap = snap
			}
		}
		want := w.ComputeStateHash()

		w2 := newTestWorld(false)
		if err := LoadSparseSnapshot(w2, midSnap); err != nil {
			t.Fatalf("LoadSparseSnapshot: %v", err)
		}
		w2.Scheduler.Add(PhaseUpdate, "move", 0, func(world *World) error {
			acc, err := world.Accessor(id, "pos")
			if err != nil {
				return err
			}
			acc.SetFP("x", acc.FP("x")+FP(dx))
			return nil
		})
		for f := mid + 1; f <= final; f++ {
			if err := w2.Tick(f, nil); err != nil {
				t.Fatalf("Tick after reload: %v", err)
			}
		}
		got := w2.ComputeStateHash()
		if want != got {
			t.Fatalf("hash after rollback+replay = %d, want %d", got, want)
		}
	})
}
