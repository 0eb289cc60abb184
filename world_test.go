package sim

import "testing"

// newTestWorld builds a minimal world with one synced "pos" component and a
// "player" entity type that attaches it, shared by every test file in this
// package that needs a runnable World.
func newTestWorld(isClient bool) *World {
	components := NewComponentRegistry(NewDiscardLogger())
	components.Register("pos", []FieldSchema{
		{Name: "x", Repr: FieldI32},
		{Name: "y", Repr: FieldI32},
	}, true)

	defs := NewEntityDefinitionRegistry()
	defs.Register(&EntityDefinition{
		Name:       "player",
		Components: []string{"pos"},
	})

	cfg := DefaultSimulationConfig()
	cfg.MaxEntities = 64
	return NewWorld(cfg, components, defs, isClient, 1, NewDiscardLogger())
}

func TestWorldSpawnAttachesComponents(t *testing.T) {
	w := newTestWorld(false)
	id, err := w.Spawn("player", false, nil)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	e, ok := w.Entity(id)
	if !ok {
		t.Fatalf("spawned entity not found")
	}
	if !e.HasComponent("pos") {
		t.Fatalf("spawned entity missing pos component")
	}
}

func TestWorldSpawnOverridesApplyAfterDefaults(t *testing.T) {
	w := newTestWorld(false)
	id, err := w.Spawn("player", false, []ComponentFieldDefault{
		{Component: "pos", Field: "x", Value: I32Value(ToFixed(5))},
	})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	acc, err := w.Accessor(id, "pos")
	if err != nil {
		t.Fatalf("Accessor: %v", err)
	}
	if got := acc.Float("x"); got != 5 {
		t.Fatalf("x = %v, want 5", got)
	}
}

func TestWorldDestroyIsIdempotent(t *testing.T) {
	w := newTestWorld(false)
	id, _ := w.Spawn("player", false, nil)
	if err := w.Destroy(id); err != nil {
		t.Fatalf("first Destroy: %v", err)
	}
	if err := w.Destroy(id); err != nil {
		t.Fatalf("second Destroy should be a no-op: %v", err)
	}
	if _, ok := w.Entity(id); ok {
		t.Fatalf("destroyed entity still reachable")
	}
}

func TestWorldTickClearsInputAfterPhases(t *testing.T) {
	w := newTestWorld(false)
	id, _ := w.Spawn("player", false, nil)
	w.SetEntityClientID(id, "p1")

	var sawInput bool
	w.Scheduler.Add(PhaseUpdate, "observe", 0, func(world *World) error {
		e, _ := world.Entity(id)
		if e.Input != nil {
			sawInput = true
		}
		return nil
	})

	in := &Input{Seq: 1, Frame: 0, ClientID: "p1", Data: map[string]Value{"type": "move"}}
	if err := w.Tick(0, []*Input{in}); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if !sawInput {
		t.Fatalf("system did not observe input during the tick it was delivered")
	}
	e, _ := w.Entity(id)
	if e.Input != nil {
		t.Fatalf("input was not cleared after Tick")
	}
}

func TestWorldComputeStateHashDeterministic(t *testing.T) {
	w1 := newTestWorld(false)
	w2 := newTestWorld(false)
	id1, _ := w1.Spawn("player", false, nil)
	id2, _ := w2.Spawn("player", false, nil)
	if id1 != id2 {
		t.Fatalf("identical spawn sequences produced different ids: %d vs %d", id1, id2)
	}
	if w1.ComputeStateHash() != w2.ComputeStateHash() {
		t.Fatalf("identical worlds produced different state hashes")
	}
}

func TestWorldComputeStateHashChangesOnFieldMutation(t *testing.T) {
	w := newTestWorld(false)
	id, _ := w.Spawn("player", false, nil)
	before := w.ComputeStateHash()
	acc, _ := w.Accessor(id, "pos")
	_ = acc.SetFloat("x", 99)
	after := w.ComputeStateHash()
	if before == after {
		t.Fatalf("state hash did not change after a field mutation")
	}
}

func TestWorldLocalEntitiesExcludedFromHash(t *testing.T) {
	w := newTestWorld(false)
	before := w.ComputeStateHash()
	if _, err := w.Spawn("player", true, nil); err != nil {
		t.Fatalf("Spawn local: %v", err)
	}
	after := w.ComputeStateHash()
	if before != after {
		t.Fatalf("spawning a local entity changed the state hash")
	}
}

func TestWorldClearResetsEntitiesButKeepsRegistries(t *testing.T) {
	w := newTestWorld(false)
	w.Spawn("player", false, nil)
	w.Clear()
	if len(w.entities) != 0 {
		t.Fatalf("Clear left entities behind")
	}
	if _, ok := w.EntityDefs.Get("player"); !ok {
		t.Fatalf("Clear dropped the entity definition registry")
	}
}
