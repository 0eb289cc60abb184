package sim

import "testing"

func newTestQueryEngine(active map[EntityID]bool) *QueryEngine {
	return NewQueryEngine(func(id EntityID) bool { return active[id] })
}

func TestQueryByTypeAscendingOrder(t *testing.T) {
	active := map[EntityID]bool{3: true, 1: true, 2: true}
	q := newTestQueryEngine(active)
	q.IndexSpawn(&Entity{ID: 3, TypeName: "npc"})
	q.IndexSpawn(&Entity{ID: 1, TypeName: "npc"})
	q.IndexSpawn(&Entity{ID: 2, TypeName: "npc"})

	got := q.ByType("npc")
	want := []EntityID{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("ByType returned %v, want %v", got, want)
	}
	for i, w := range want {
		if got[i] != w {
			t.Fatalf("ByType()[%d] = %d, want %d", i, got[i], w)
		}
	}
}

func TestQueryByComponentsIntersection(t *testing.T) {
	active := map[EntityID]bool{1: true, 2: true, 3: true}
	q := newTestQueryEngine(active)
	q.IndexSpawn(&Entity{ID: 1, TypeName: "a", Components: []string{"pos", "vel"}})
	q.IndexSpawn(&Entity{ID: 2, TypeName: "a", Components: []string{"pos"}})
	q.IndexSpawn(&Entity{ID: 3, TypeName: "a", Components: []string{"pos", "vel"}})

	got := q.ByComponents("pos", "vel")
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("ByComponents(pos,vel) = %v, want [1 3]", got)
	}
}

func TestQuerySkipsDestroyedMidIteration(t *testing.T) {
	active := map[EntityID]bool{1: true, 2: true, 3: true}
	q := newTestQueryEngine(active)
	e1 := &Entity{ID: 1, TypeName: "a"}
	e2 := &Entity{ID: 2, TypeName: "a"}
	e3 := &Entity{ID: 3, TypeName: "a"}
	q.IndexSpawn(e1)
	q.IndexSpawn(e2)
	q.IndexSpawn(e3)

	it := q.NewIterator(q.ByType("a"))
	delete(active, 2)
	q.IndexDestroy(e2)

	var seen []EntityID
	for {
		id, ok := it.Next()
		if !ok {
			break
		}
		seen = append(seen, id)
	}
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 3 {
		t.Fatalf("iterator did not skip destroyed entity: %v", seen)
	}
}

func TestQueryClientIDIndex(t *testing.T) {
	q := newTestQueryEngine(map[EntityID]bool{5: true})
	q.SetClientID("p1", 5)
	id, ok := q.ByClientID("p1")
	if !ok || id != 5 {
		t.Fatalf("ByClientID(p1) = (%d,%v), want (5,true)", id, ok)
	}

	e := &Entity{ID: 5, TypeName: "player"}
	q.IndexSpawn(e)
	q.IndexDestroy(e)
	if _, ok := q.ByClientID("p1"); ok {
		t.Fatalf("client-id index retained a destroyed entity")
	}
}

func TestQueryByTypeAndComponents(t *testing.T) {
	q := newTestQueryEngine(map[EntityID]bool{1: true, 2: true})
	q.IndexSpawn(&Entity{ID: 1, TypeName: "player", Components: []string{"pos"}})
	q.IndexSpawn(&Entity{ID: 2, TypeName: "npc", Components: []string{"pos"}})

	got := q.ByTypeAndComponents("player", "pos")
	if len(got) != 1 || got[0] != 1 {
		t.Fatalf("ByTypeAndComponents(player,pos) = %v, want [1]", got)
	}
}
