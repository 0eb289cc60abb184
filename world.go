package sim

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
)

// World owns entity lifecycle, the tick driver, state hashing, and sparse
// snapshot encode/decode (spec 2/4.6). It is the top-level arena every
// other subsystem's indices/handles point into — no reference cycles, per
// spec 9's "cyclic references" design note.
type World struct {
	cfg SimulationConfig
	log zerolog.Logger

	Components  *ComponentRegistry
	EntityDefs  *EntityDefinitionRegistry
	Query       *QueryEngine
	Scheduler   *Scheduler
	Strings     *StringRegistry
	RNG         *RNG
	Inputs      *InputRegistry

	storages map[string]*ComponentStorage

	netAlloc   *IDAllocator
	localAlloc *IDAllocator
	entities   map[EntityID]*Entity

	isClient     bool
	currentFrame int64

	metrics TickMetrics
}

// NewWorld constructs a world. Column storage is allocated here for every
// component registered at this point; a component registered afterwards
// gets no storage in this world. Entity definitions are looked up when
// used, so they only need to be registered before their first spawn.
func NewWorld(cfg SimulationConfig, components *ComponentRegistry, entityDefs *EntityDefinitionRegistry, isClient bool, rngSeed uint32, log zerolog.Logger) *World {
	w := &World{
		cfg:        cfg,
		log:        log,
		Components: components,
		EntityDefs: entityDefs,
		Scheduler:  NewScheduler(),
		Strings:    NewStringRegistry(),
		RNG:        NewRNG(rngSeed),
		Inputs:     NewInputRegistry(),
		storages:   make(map[string]*ComponentStorage),
		netAlloc:   NewIDAllocator(cfg.MaxEntities, false),
		localAlloc: NewIDAllocator(cfg.MaxEntities, true),
		entities:   make(map[EntityID]*Entity),
		isClient:   isClient,
	}
	w.Query = NewQueryEngine(func(id EntityID) bool {
		_, ok := w.entities[id]
		return ok
	})
	for _, name := range components.SortedNames() {
		ct, _ := components.Get(name)
		w.storages[name] = newComponentStorage(ct, cfg.MaxEntities*2)
	}
	return w
}

// slot maps an EntityID to its component-storage array index. Local and
// networked entities are allocated independently starting at index 0 each
// (spec 4.2/9), so without disambiguation their storage slots would alias;
// this offsets local entities into the upper half of a doubled-size column
// array instead (see DESIGN.md's allocator/storage-sizing note).
func (w *World) slot(id EntityID) uint32 {
	if id.IsLocal() {
		return uint32(w.cfg.MaxEntities) + id.Index()
	}
	return id.Index()
}

func (w *World) allocatorFor(local bool) *IDAllocator {
	if local {
		return w.localAlloc
	}
	return w.netAlloc
}

// Spawn creates an entity of the named type: allocates an ID, marks every
// declared component present, writes field defaults, then applies
// overrides (spec: "spawn ... marks components present, writes defaults
// then property overrides"). local=true draws from the unserialized pool.
func (w *World) Spawn(typeName string, local bool, overrides []ComponentFieldDefault) (EntityID, error) {
	def, ok := w.EntityDefs.Get(typeName)
	if !ok {
		return InvalidEntityID, newErr(KindInvalidAccess, "World.Spawn", fmt.Errorf("unknown entity type %q", typeName))
	}
	id, err := w.allocatorFor(local).Allocate()
	if err != nil {
		panicFault(KindResourceExhaustion, "World.Spawn", err)
	}
	w.attachEntity(id, def, overrides)
	return id, nil
}

// SpawnWithID spawns with a caller-chosen ID, used by snapshot restore
// (spec 4.2 AllocateSpecific, spec 4.7 step 3).
func (w *World) SpawnWithID(typeName string, id EntityID, overrides []ComponentFieldDefault) error {
	def, ok := w.EntityDefs.Get(typeName)
	if !ok {
		return newErr(KindInvalidAccess, "World.SpawnWithID", fmt.Errorf("unknown entity type %q", typeName))
	}
	if err := w.allocatorFor(id.IsLocal()).AllocateSpecific(id); err != nil {
		return err
	}
	w.attachEntity(id, def, overrides)
	return nil
}

func (w *World) attachEntity(id EntityID, def *EntityDefinition, overrides []ComponentFieldDefault) {
	slot := w.slot(id)
	comps := append([]string(nil), def.Components...)
	for _, c := range comps {
		if storage, ok := w.storages[c]; ok {
			storage.Attach(slot)
		}
	}
	for _, d := range def.Defaults {
		if storage, ok := w.storages[d.Component]; ok {
			_ = storage.Set(slot, d.Field, d.Value)
		}
	}
	for _, o := range overrides {
		if storage, ok := w.storages[o.Component]; ok {
			_ = storage.Set(slot, o.Field, o.Value)
		}
	}
	e := &Entity{ID: id, TypeName: def.Name, Components: comps}
	w.entities[id] = e
	w.Query.IndexSpawn(e)
}

// Destroy removes an entity immediately (spec: "no deferred queue"). A
// second destroy of the same ID is tolerated as a no-op (spec 7).
func (w *World) Destroy(id EntityID) error {
	e, ok := w.entities[id]
	if !ok {
		return nil
	}
	slot := w.slot(id)
	for _, c := range e.Components {
		if storage, ok := w.storages[c]; ok {
			storage.Detach(slot)
		}
	}
	w.Query.IndexDestroy(e)
	delete(w.entities, id)
	return w.allocatorFor(id.IsLocal()).Free(id)
}

// SetEntityClientID registers eid in the client-id index (spec 4.6).
func (w *World) SetEntityClientID(eid EntityID, clientID string) {
	w.Query.SetClientID(clientID, eid)
}

// Accessor returns a field accessor bound to id for the named component,
// or an invalid-access error if id lacks that component.
func (w *World) Accessor(id EntityID, component string) (*Accessor, error) {
	e, ok := w.entities[id]
	if !ok || !e.HasComponent(component) {
		return nil, newErr(KindInvalidAccess, "World.Accessor", fmt.Errorf("entity %d lacks component %q", uint32(id), component))
	}
	storage, ok := w.storages[component]
	if !ok {
		return nil, newErr(KindInvalidAccess, "World.Accessor", fmt.Errorf("unknown component %q", component))
	}
	return &Accessor{storage: storage, index: w.slot(id)}, nil
}

// Entity returns the live Entity for id, if active.
func (w *World) Entity(id EntityID) (*Entity, bool) {
	e, ok := w.entities[id]
	return e, ok
}

// SetInput routes data to clientID's entity input slot and the input
// registry via O(1) clientId lookup (spec 4.6 step 1).
func (w *World) SetInput(clientID string, in *Input) {
	w.Inputs.Set(clientID, in)
	if id, ok := w.Query.ByClientID(clientID); ok {
		if e, ok := w.entities[id]; ok {
			e.Input = in
		}
	}
}

// CurrentFrame returns the frame most recently passed to Tick.
func (w *World) CurrentFrame() int64 { return w.currentFrame }

// Tick applies ordered inputs, runs the simulation phases (plus render on
// client), and clears the per-tick input buffer (spec 4.6). Inputs must
// already be sorted by ascending seq by the caller (network.go does this
// for steady-state delivery).
func (w *World) Tick(frame int64, inputs []*Input) (err error) {
	defer recoverFault(&err)

	w.currentFrame = frame
	for _, in := range inputs {
		w.SetInput(in.ClientID, in)
	}

	for _, phase := range []Phase{PhaseInput, PhaseUpdate, PhasePrePhysics, PhasePhysics, PhasePostPhysics} {
		if perr := w.Scheduler.Run(phase, w); perr != nil {
			return perr
		}
	}
	if w.isClient {
		if perr := w.Scheduler.Run(PhaseRender, w); perr != nil {
			return perr
		}
	}

	for _, e := range w.entities {
		e.Input = nil
	}
	w.Inputs.Clear()
	w.metrics.Frame = frame
	w.metrics.Entities = len(w.entities)
	return nil
}

// ComputeStateHash folds the number of syncable active IDs, then in
// ascending ID order each syncable entity's ID and its sync components'
// fields in name-sorted order (spec 4.6). Entity-level sync_fields
// whitelists additionally narrow which fields participate, per spec 9's
// "both must be honored by ... the state hasher".
func (w *World) ComputeStateHash() uint32 {
	ids := make([]EntityID, 0, len(w.entities))
	for id, e := range w.entities {
		if id.IsLocal() {
			continue
		}
		def, ok := w.EntityDefs.Get(e.TypeName)
		if ok && def.SyncNone() {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	h := NewHasher(0)
	h = h.Fold(uint32(len(ids)))

	for _, id := range ids {
		e := w.entities[id]
		def, _ := w.EntityDefs.Get(e.TypeName)
		h = h.Fold(uint32(id))
		for _, c := range e.Components {
			ct, ok := w.Components.Get(c)
			if !ok || !ct.Sync {
				continue
			}
			storage := w.storages[c]
			slot := w.slot(id)
			for _, fname := range ct.sortedFieldNames {
				if def != nil && !def.FieldIsSynced(c, fname) {
					continue
				}
				v, err := storage.Get(slot, fname)
				if err != nil {
					continue
				}
				h = h.Fold(v.rawBits())
			}
		}
	}
	return h.Sum()
}

// TickMetrics is a read-only diagnostic snapshot of the last tick: never
// hashed, never serialized, purely observational (SPEC_FULL's
// supplemented-features section, modeled on vamplite's PerformanceMetrics).
type TickMetrics struct {
	Frame    int64
	Entities int
}

// Metrics returns the most recent tick's diagnostic counters.
func (w *World) Metrics() TickMetrics { return w.metrics }

// Clear drops every entity and resets indices without touching the
// component/entity-definition registries (spec 4.7 decode step 1: "Clear
// the world ... do not reset component registry").
func (w *World) Clear() {
	for id := range w.entities {
		e := w.entities[id]
		slot := w.slot(id)
		for _, c := range e.Components {
			if storage, ok := w.storages[c]; ok {
				storage.Detach(slot)
			}
		}
	}
	w.entities = make(map[EntityID]*Entity)
	w.Query = NewQueryEngine(func(id EntityID) bool {
		_, ok := w.entities[id]
		return ok
	})
	w.netAlloc = NewIDAllocator(w.cfg.MaxEntities, false)
	w.localAlloc = NewIDAllocator(w.cfg.MaxEntities, true)
}
