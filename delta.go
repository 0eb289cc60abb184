package sim

import (
	"fmt"
	"sort"
)

// CreatedEntity is one newly-appeared entity in a Delta: identity plus its
// full set of sync field values grouped by component (spec 4.9: "created
// is the full set of new entities (ID, type, optional clientId, all sync
// field values grouped by component)"). Field names travel with each
// value rather than relying on positional alignment with a component's
// full schema, since an entity-level sync_fields whitelist may only carry
// a subset of a component's declared fields.
type CreatedEntity struct {
	ID         EntityID
	TypeName   string
	ClientID   string
	Components map[string][]ComponentFieldDefault // component -> (component, field, value) entries
}

// Delta is the difference between two consecutive sparse snapshots,
// limited to entity creation/deletion (spec 4.9). Per-field mutations are
// carried by the periodic full-state hash + majority-hash path instead.
type Delta struct {
	Frame      int64
	BaseHash   uint32
	ResultHash uint32
	Created    []CreatedEntity
	Deleted    []EntityID
}

// ComputeDelta builds the delta between prev and curr, both sparse
// snapshots of the same world at consecutive sync points. Creations are
// sorted by ID; deletions are sorted numerically (spec 4.9).
func ComputeDelta(prev, curr *Snapshot, baseHash, resultHash uint32) *Delta {
	prevIDs := make(map[EntityID]bool, len(prev.Entities))
	for _, e := range prev.Entities {
		prevIDs[e.ID] = true
	}
	currIDs := make(map[EntityID]bool, len(curr.Entities))
	for _, e := range curr.Entities {
		currIDs[e.ID] = true
	}

	d := &Delta{Frame: curr.Frame, BaseHash: baseHash, ResultHash: resultHash}

	for i, e := range curr.Entities {
		if prevIDs[e.ID] {
			continue
		}
		ts := curr.Schemas[e.TypeIdx]
		ce := CreatedEntity{
			ID:         e.ID,
			TypeName:   curr.Types[e.TypeIdx],
			ClientID:   e.ClientID,
			Components: make(map[string][]ComponentFieldDefault),
		}
		for fi, fr := range ts.Fields {
			if fi >= len(curr.Values[i]) {
				break
			}
			ce.Components[fr.Component] = append(ce.Components[fr.Component], ComponentFieldDefault{
				Component: fr.Component,
				Field:     fr.Field,
				Value:     curr.Values[i][fi],
			})
		}
		d.Created = append(d.Created, ce)
	}
	sort.Slice(d.Created, func(i, j int) bool { return d.Created[i].ID < d.Created[j].ID })

	for _, e := range prev.Entities {
		if !currIDs[e.ID] {
			d.Deleted = append(d.Deleted, e.ID)
		}
	}
	sort.Slice(d.Deleted, func(i, j int) bool { return d.Deleted[i] < d.Deleted[j] })

	return d
}

// NumPartitions computes the partition count for a delta (spec 4.9):
// clamp(ceil(entityCount/30), 1, max(1, 2*clientCount)).
func NumPartitions(entityCount, clientCount int) int {
	n := (entityCount + TargetEntitiesPerPartition - 1) / TargetEntitiesPerPartition
	if n < 1 {
		n = 1
	}
	upper := 2 * clientCount
	if upper < 1 {
		upper = 1
	}
	if n > upper {
		n = upper
	}
	return n
}

// PartitionDelta slices d into numPartitions shards by eid % numPartitions
// (spec 4.9: "partitioning is independent of field mutations"). Created
// and Deleted entries in each shard keep their sorted order.
func PartitionDelta(d *Delta, numPartitions int) []*Delta {
	if numPartitions < 1 {
		numPartitions = 1
	}
	parts := make([]*Delta, numPartitions)
	for p := range parts {
		parts[p] = &Delta{Frame: d.Frame, BaseHash: d.BaseHash, ResultHash: d.ResultHash}
	}
	for _, ce := range d.Created {
		p := int(uint32(ce.ID) % uint32(numPartitions))
		parts[p].Created = append(parts[p].Created, ce)
	}
	for _, id := range d.Deleted {
		p := int(uint32(id) % uint32(numPartitions))
		parts[p].Deleted = append(parts[p].Deleted, id)
	}
	return parts
}

// AssembleDelta reassembles a full delta from a set of partition shards:
// verifies every shard shares the same frame, then concatenates and
// sorts creates and deletes (spec 4.9).
func AssembleDelta(parts []*Delta) (*Delta, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("delta: no partitions to assemble")
	}
	frame := parts[0].Frame
	out := &Delta{Frame: frame, BaseHash: parts[0].BaseHash, ResultHash: parts[0].ResultHash}
	for _, p := range parts {
		if p.Frame != frame {
			return nil, fmt.Errorf("delta: partition frame mismatch: %d vs %d", p.Frame, frame)
		}
		out.Created = append(out.Created, p.Created...)
		out.Deleted = append(out.Deleted, p.Deleted...)
	}
	sort.Slice(out.Created, func(i, j int) bool { return out.Created[i].ID < out.Created[j].ID })
	sort.Slice(out.Deleted, func(i, j int) bool { return out.Deleted[i] < out.Deleted[j] })
	return out, nil
}

// ApplyDelta applies d to w: spawns every created entity with its decoded
// field values (via spawn_with_id, per spec 4.7's restore discipline),
// then destroys every deleted entity.
func ApplyDelta(w *World, d *Delta) error {
	for _, ce := range d.Created {
		if err := w.SpawnWithID(ce.TypeName, ce.ID, nil); err != nil {
			logSnapshotDecodeIssue(w.log, ce.ID, ce.TypeName, err)
			continue
		}
		slot := w.slot(ce.ID)
		for comp, fields := range ce.Components {
			storage, ok := w.storages[comp]
			if !ok {
				continue
			}
			for _, cfd := range fields {
				_ = storage.Set(slot, cfd.Field, cfd.Value)
			}
		}
		if ce.ClientID != "" {
			w.SetEntityClientID(ce.ID, ce.ClientID)
		}
	}
	for _, id := range d.Deleted {
		if err := w.Destroy(id); err != nil {
			return err
		}
	}
	return nil
}
