package sim

import "sort"

// QueryEngine maintains type, component, and clientId indices over active
// entities and produces ascending-ID iteration everywhere (spec 4.4:
// "unordered set iteration is a determinism hazard").
type QueryEngine struct {
	byType      map[string]map[EntityID]struct{}
	byComponent map[string]map[EntityID]struct{}
	byClient    map[string]EntityID
	isActive    func(EntityID) bool
}

// NewQueryEngine constructs an empty engine. isActive is consulted by
// iterators to skip entities destroyed mid-iteration (spec 4.4: "Iterators
// are lazy over a snapshot of the match list taken at call time; destroyed
// entities encountered mid-iteration are skipped").
func NewQueryEngine(isActive func(EntityID) bool) *QueryEngine {
	return &QueryEngine{
		byType:      make(map[string]map[EntityID]struct{}),
		byComponent: make(map[string]map[EntityID]struct{}),
		byClient:    make(map[string]EntityID),
		isActive:    isActive,
	}
}

func addTo(index map[string]map[EntityID]struct{}, key string, id EntityID) {
	set, ok := index[key]
	if !ok {
		set = make(map[EntityID]struct{})
		index[key] = set
	}
	set[id] = struct{}{}
}

func removeFrom(index map[string]map[EntityID]struct{}, key string, id EntityID) {
	if set, ok := index[key]; ok {
		delete(set, id)
	}
}

// IndexSpawn registers a newly spawned entity's type and components.
func (q *QueryEngine) IndexSpawn(e *Entity) {
	addTo(q.byType, e.TypeName, e.ID)
	for _, c := range e.Components {
		addTo(q.byComponent, c, e.ID)
	}
}

// IndexDestroy removes a destroyed entity from every index, including the
// client-id index if present.
func (q *QueryEngine) IndexDestroy(e *Entity) {
	removeFrom(q.byType, e.TypeName, e.ID)
	for _, c := range e.Components {
		removeFrom(q.byComponent, c, e.ID)
	}
	for cid, id := range q.byClient {
		if id == e.ID {
			delete(q.byClient, cid)
		}
	}
}

// SetClientID maps clientID to e (spec 3: "the client-id index maps
// Player.clientId(e) -> e").
func (q *QueryEngine) SetClientID(clientID string, e EntityID) {
	q.byClient[clientID] = e
}

// ByClientID returns the entity mapped to clientID, if any (spec 4.4:
// O(1)).
func (q *QueryEngine) ByClientID(clientID string) (EntityID, bool) {
	id, ok := q.byClient[clientID]
	return id, ok
}

func sortedIDs(set map[EntityID]struct{}) []EntityID {
	out := make([]EntityID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ByType returns every active ID of the given type, ascending (spec 4.4).
func (q *QueryEngine) ByType(name string) []EntityID {
	return q.filterActive(sortedIDs(q.byType[name]))
}

// ByComponents returns the ascending intersection of entities carrying
// every named component, selecting the smallest candidate set first and
// filtering by presence (spec 4.4).
func (q *QueryEngine) ByComponents(components ...string) []EntityID {
	if len(components) == 0 {
		return nil
	}
	smallest := components[0]
	for _, c := range components[1:] {
		if len(q.byComponent[c]) < len(q.byComponent[smallest]) {
			smallest = c
		}
	}
	candidates := sortedIDs(q.byComponent[smallest])
	out := candidates[:0:0]
	for _, id := range candidates {
		ok := true
		for _, c := range components {
			if _, present := q.byComponent[c][id]; !present {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, id)
		}
	}
	return q.filterActive(out)
}

// ByTypeAndComponents is ByComponents further restricted to a single type.
func (q *QueryEngine) ByTypeAndComponents(typeName string, components ...string) []EntityID {
	typeSet := q.byType[typeName]
	candidates := q.ByComponents(components...)
	out := candidates[:0:0]
	for _, id := range candidates {
		if _, ok := typeSet[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

func (q *QueryEngine) filterActive(ids []EntityID) []EntityID {
	if q.isActive == nil {
		return ids
	}
	out := ids[:0:0]
	for _, id := range ids {
		if q.isActive(id) {
			out = append(out, id)
		}
	}
	return out
}

// Iterator lazily walks a snapshot of IDs taken at construction time,
// skipping any that are no longer active (spec 4.4).
type Iterator struct {
	ids      []EntityID
	pos      int
	isActive func(EntityID) bool
}

// NewIterator snapshots ids for lazy, skip-on-destroy iteration.
func (q *QueryEngine) NewIterator(ids []EntityID) *Iterator {
	snap := make([]EntityID, len(ids))
	copy(snap, ids)
	return &Iterator{ids: snap, isActive: q.isActive}
}

// Next returns the next still-active ID, or (InvalidEntityID, false) when
// exhausted.
func (it *Iterator) Next() (EntityID, bool) {
	for it.pos < len(it.ids) {
		id := it.ids[it.pos]
		it.pos++
		if it.isActive == nil || it.isActive(id) {
			return id, true
		}
	}
	return InvalidEntityID, false
}
