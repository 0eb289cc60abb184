package sim

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"
)

// FieldRef names one (component, field) pair within a type's flattened
// sync schema.
type FieldRef struct {
	Component string
	Field     string
}

// TypeSchema is one entity type's synced fields, flattened across every
// synced component it carries, in attached-component order then
// declared-field order (spec 4.7: "schema: [[(comp_name, [field_name,
// ...]), ...]]" — collapsed to a single ordered list here since encode and
// decode only ever need the flattened form).
type TypeSchema struct {
	EntityType string
	Fields     []FieldRef
}

// componentFieldRange returns the contiguous [start, end) span within
// ts.Fields occupied by component, or (-1, -1) if ts carries no fields
// from that component. Fields from a single component are always
// contiguous because buildSchema walks components in order and never
// revisits one.
func componentFieldRange(ts TypeSchema, component string) (start, end int) {
	start, end = -1, -1
	for i, fr := range ts.Fields {
		if fr.Component == component {
			if start < 0 {
				start = i
			}
			end = i + 1
		}
	}
	return
}

// EntityMeta describes one encoded entity (spec 4.7: "entities: [(eid,
// type_index, value_vector), ...]").
type EntityMeta struct {
	ID       EntityID
	TypeIdx  int
	ClientID string // "" if the entity has no Player-style client binding
}

// Snapshot is the logical sparse/type-indexed snapshot layout of spec 4.7.
type Snapshot struct {
	Frame     int64
	Seq       int64
	PostTick  bool
	Types     []string
	Schemas   []TypeSchema // one per Types entry
	Entities  []EntityMeta
	Values    [][]FieldValue // Values[i] holds Entities[i]'s fields, positionally matching Schemas[Entities[i].TypeIdx].Fields
	Allocator struct {
		Net   AllocatorState
		Local AllocatorState
	}
	Strings StringRegistryState
	RNG     RNGState
	Inputs  map[string]*Input
}

// EncodeSnapshot produces the sparse, type-indexed snapshot for every
// active, non-local, non-sync-none entity (spec 4.7).
//
// Encoding is stable: entities in sorted ID order, components in their
// attached order, fields in the type's declared order (spec 4.7).
func EncodeSnapshot(w *World, frame, seq int64, postTick bool) *Snapshot {
	snap := &Snapshot{Frame: frame, Seq: seq, PostTick: postTick}

	ids := make([]EntityID, 0, len(w.entities))
	for id := range w.entities {
		if id.IsLocal() {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	typeIndex := make(map[string]int)

	for _, id := range ids {
		e := w.entities[id]
		def, ok := w.EntityDefs.Get(e.TypeName)
		if !ok || def.SyncNone() {
			continue
		}

		ti, seen := typeIndex[e.TypeName]
		if !seen {
			ti = len(snap.Types)
			typeIndex[e.TypeName] = ti
			snap.Types = append(snap.Types, e.TypeName)
			snap.Schemas = append(snap.Schemas, buildSchema(w, def))
		}

		vals := make([]FieldValue, 0, len(snap.Schemas[ti].Fields))
		for _, c := range e.Components {
			ct, ok := w.Components.Get(c)
			if !ok || !ct.Sync {
				continue
			}
			storage := w.storages[c]
			slot := w.slot(id)
			for _, f := range ct.Fields {
				if !def.FieldIsSynced(c, f.Name) {
					continue
				}
				v, err := storage.Get(slot, f.Name)
				if err != nil {
					logSnapshotDecodeIssue(w.log, id, e.TypeName, err)
					continue
				}
				vals = append(vals, v)
			}
		}

		meta := EntityMeta{ID: id, TypeIdx: ti}
		if cid, ok := clientIDFor(w, id); ok {
			meta.ClientID = cid
		}
		snap.Entities = append(snap.Entities, meta)
		snap.Values = append(snap.Values, vals)
	}

	snap.Allocator.Net = w.netAlloc.SaveState()
	snap.Allocator.Local = w.localAlloc.SaveState()
	snap.Strings = w.Strings.SaveState()
	snap.RNG = w.RNG.SaveState()
	snap.Inputs = cloneInputs(w.Inputs.latest)
	return snap
}

func buildSchema(w *World, def *EntityDefinition) TypeSchema {
	var refs []FieldRef
	for _, c := range def.Components {
		ct, ok := w.Components.Get(c)
		if !ok || !ct.Sync {
			continue
		}
		for _, f := range ct.Fields {
			if def.FieldIsSynced(c, f.Name) {
				refs = append(refs, FieldRef{Component: c, Field: f.Name})
			}
		}
	}
	return TypeSchema{EntityType: def.Name, Fields: refs}
}

func clientIDFor(w *World, id EntityID) (string, bool) {
	for cid, eid := range w.Query.byClient {
		if eid == id {
			return cid, true
		}
	}
	return "", false
}

func cloneInputs(m map[string]*Input) map[string]*Input {
	out := make(map[string]*Input, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// snapshotMeta is the JSON metadata header (spec 6: "UTF-8 JSON with
// fields {frame, seq, entityMeta, allocator, strings, rng,
// componentNames}").
type snapshotMeta struct {
	Frame          int64               `json:"frame"`
	Seq            int64               `json:"seq"`
	PostTick       bool                `json:"postTick"`
	Types          []string            `json:"types"`
	Schemas        []TypeSchema        `json:"schema"`
	EntityMeta     []entityMetaJSON    `json:"entityMeta"`
	Allocator      allocatorJSON       `json:"allocator"`
	Strings        StringRegistryState `json:"strings"`
	RNG            RNGState            `json:"rng"`
	ComponentNames []string            `json:"componentNames"`
	Inputs         map[string]*Input   `json:"inputs"`
}

type entityMetaJSON struct {
	EID      uint32 `json:"eid"`
	Type     int    `json:"type"`
	ClientID string `json:"clientId,omitempty"`
}

type allocatorJSON struct {
	Net   AllocatorState `json:"net"`
	Local AllocatorState `json:"local"`
}

// EncodeBinary packs a Snapshot into the canonical wire framing (spec 6):
// u32 LE meta length, UTF-8 JSON meta, then concatenated per-component
// column blocks in registry order, matching the teacher's
// debug_snapshot.go magic+version-header idiom generalized to a
// length-prefixed JSON header instead of a fixed magic (this format
// carries a variable schema per snapshot, unlike the teacher's single
// fixed CPU-register layout). Column blocks are grouped by component,
// then by type (in Types order), then by entity (in Entities order), so
// decode can replay the identical traversal without needing to know
// column widths up front.
func EncodeBinary(snap *Snapshot, componentOrder []string) ([]byte, error) {
	meta := snapshotMeta{
		Frame:          snap.Frame,
		Seq:            snap.Seq,
		PostTick:       snap.PostTick,
		Types:          snap.Types,
		Schemas:        snap.Schemas,
		Allocator:      allocatorJSON{Net: snap.Allocator.Net, Local: snap.Allocator.Local},
		Strings:        snap.Strings,
		RNG:            snap.RNG,
		ComponentNames: componentOrder,
		Inputs:         snap.Inputs,
	}
	for _, e := range snap.Entities {
		meta.EntityMeta = append(meta.EntityMeta, entityMetaJSON{EID: uint32(e.ID), Type: e.TypeIdx, ClientID: e.ClientID})
	}

	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal meta: %w", err)
	}

	buf := make([]byte, 4, 4+len(metaBytes)+1024)
	binary.LittleEndian.PutUint32(buf, uint32(len(metaBytes)))
	buf = append(buf, metaBytes...)

	for _, compName := range componentOrder {
		for typeIdx, ts := range snap.Schemas {
			start, end := componentFieldRange(ts, compName)
			if start < 0 {
				continue
			}
			for i, ent := range snap.Entities {
				if ent.TypeIdx != typeIdx {
					continue
				}
				for col := start; col < end; col++ {
					if col >= len(snap.Values[i]) {
						continue
					}
					buf = append(buf, encodeColumnValue(snap.Values[i][col])...)
				}
			}
		}
	}
	return buf, nil
}

func encodeColumnValue(v FieldValue) []byte {
	switch v.Repr {
	case FieldI32:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(int32(v.I32)))
		return b[:]
	case FieldU8:
		return []byte{v.U8}
	case FieldBool:
		if v.Bool {
			return []byte{1}
		}
		return []byte{0}
	case FieldF32:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], f32Bits(v.F32))
		return b[:]
	default:
		return nil
	}
}

// DecodeBinary parses the canonical wire framing back into a Snapshot plus
// the component order used for the column blocks. Field reprs (and
// therefore widths) are resolved against components, the live registry
// both peers constructed identically from the same component declarations
// (spec 5: "all component ... types declared before connect"). It accepts
// only the raw binary framing, not the legacy JSON-of-binary-as-object
// re-encoding (DESIGN.md decision #3); callers that might receive the
// legacy shape should call NormalizeLegacyJSON first.
func DecodeBinary(data []byte, components *ComponentRegistry, log zerolog.Logger) (*Snapshot, []string, error) {
	if len(data) < 4 {
		return nil, nil, newErr(KindSnapshotDecode, "DecodeBinary", fmt.Errorf("truncated length prefix"))
	}
	metaLen := binary.LittleEndian.Uint32(data[0:4])
	if uint32(len(data)) < 4+metaLen {
		return nil, nil, newErr(KindSnapshotDecode, "DecodeBinary", fmt.Errorf("truncated meta"))
	}
	var meta snapshotMeta
	if err := json.Unmarshal(data[4:4+metaLen], &meta); err != nil {
		return nil, nil, newErr(KindSnapshotDecode, "DecodeBinary", err)
	}

	snap := &Snapshot{
		Frame:    meta.Frame,
		Seq:      meta.Seq,
		PostTick: meta.PostTick,
		Types:    meta.Types,
		Schemas:  meta.Schemas,
		Strings:  meta.Strings,
		RNG:      meta.RNG,
		Inputs:   meta.Inputs,
	}
	snap.Allocator.Net = meta.Allocator.Net
	snap.Allocator.Local = meta.Allocator.Local

	for _, em := range meta.EntityMeta {
		snap.Entities = append(snap.Entities, EntityMeta{ID: EntityID(em.EID), TypeIdx: em.Type, ClientID: em.ClientID})
	}

	values := make([][]FieldValue, len(snap.Entities))
	for i, ent := range snap.Entities {
		if ent.TypeIdx >= 0 && ent.TypeIdx < len(snap.Schemas) {
			values[i] = make([]FieldValue, len(snap.Schemas[ent.TypeIdx].Fields))
		}
	}

	body := data[4+metaLen:]
	offset := 0
	for _, compName := range meta.ComponentNames {
		ct, ok := components.Get(compName)
		if !ok {
			return nil, nil, newErr(KindSnapshotDecode, "DecodeBinary", fmt.Errorf("unknown component %q in wire meta", compName))
		}
		for typeIdx, ts := range snap.Schemas {
			start, end := componentFieldRange(ts, compName)
			if start < 0 {
				continue
			}
			for i, ent := range snap.Entities {
				if ent.TypeIdx != typeIdx {
					continue
				}
				for col := start; col < end; col++ {
					fname := ts.Fields[col].Field
					fi := ct.FieldIndex(fname)
					repr := FieldI32
					if fi >= 0 {
						repr = ct.Fields[fi].Repr
					}
					width := repr.byteWidth()
					if offset+width > len(body) {
						return nil, nil, newErr(KindSnapshotDecode, "DecodeBinary", fmt.Errorf("truncated column data for %s.%s", compName, fname))
					}
					fv, err := decodeColumnValue(body[offset:offset+width], repr)
					if err != nil {
						logSnapshotDecodeIssue(log, ent.ID, compName, err)
						offset += width
						continue
					}
					if col < len(values[i]) {
						values[i][col] = fv
					}
					offset += width
				}
			}
		}
	}
	snap.Values = values
	return snap, meta.ComponentNames, nil
}

func decodeColumnValue(b []byte, repr FieldRepr) (FieldValue, error) {
	switch repr {
	case FieldI32:
		return I32Value(FP(int32(binary.LittleEndian.Uint32(b)))), nil
	case FieldF32:
		return F32Value(math.Float32frombits(binary.LittleEndian.Uint32(b))), nil
	case FieldU8:
		return U8Value(b[0]), nil
	case FieldBool:
		return BoolValue(b[0] != 0), nil
	default:
		return FieldValue{}, fmt.Errorf("unsupported field repr %s", repr)
	}
}

// NormalizeLegacyJSON detects the legacy "binary blob re-serialized as an
// object with integer-string keys" shape (spec 4.11 resync step 1) and
// converts it back into a plain byte slice; if data is not in that shape
// it is returned unchanged.
func NormalizeLegacyJSON(data []byte) ([]byte, error) {
	trimmed := data
	for len(trimmed) > 0 && (trimmed[0] == ' ' || trimmed[0] == '\n' || trimmed[0] == '\t' || trimmed[0] == '\r') {
		trimmed = trimmed[1:]
	}
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return data, nil
	}

	var obj map[string]byte
	if err := json.Unmarshal(data, &obj); err != nil {
		return data, nil // not the legacy shape either; let the caller fail on the real decode
	}
	out := make([]byte, len(obj))
	for k, v := range obj {
		idx, err := parseNonNegativeInt(k)
		if err != nil || idx < 0 || idx >= len(out) {
			return nil, newErr(KindSnapshotDecode, "NormalizeLegacyJSON", fmt.Errorf("bad integer-string key %q", k))
		}
		out[idx] = v
	}
	return out, nil
}

func parseNonNegativeInt(s string) (int, error) {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("not a digit: %q", s)
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}

// LoadSparseSnapshot decodes snap into w following spec 4.7's seven-step
// restore sequence.
func LoadSparseSnapshot(w *World, snap *Snapshot) error {
	// Step 1: clear the world (component registry untouched).
	w.Clear()

	// Step 2: restore string registry and RNG.
	w.Strings.LoadState(snap.Strings)
	w.RNG.LoadState(snap.RNG)

	// Restore the allocators' serialized (next_index, free_list,
	// generations) before re-spawning active entities, so that free
	// slots vacated before the snapshot was taken keep their bumped
	// generation and next_index reflects the true high-water mark
	// rather than just the restored active set (spec 4.2/4.7: the
	// allocator state is carried precisely so a peer that destroyed an
	// entity before snapshotting agrees on that slot's next generation
	// with a peer restoring from the snapshot).
	w.netAlloc.LoadState(snap.Allocator.Net)
	w.localAlloc.LoadState(snap.Allocator.Local)

	active := make(map[uint32]bool)
	activeLocal := make(map[uint32]bool)

	for i, em := range snap.Entities {
		if em.TypeIdx < 0 || em.TypeIdx >= len(snap.Types) {
			logSnapshotDecodeIssue(w.log, em.ID, "?", fmt.Errorf("type index %d out of range", em.TypeIdx))
			continue
		}
		typeName := snap.Types[em.TypeIdx]
		def, ok := w.EntityDefs.Get(typeName)
		if !ok {
			logSnapshotDecodeIssue(w.log, em.ID, typeName, fmt.Errorf("unknown entity type"))
			continue
		}

		// Step 3: spawn_with_id using the registered entity definition
		// (defaults come from the definition, not the snapshot — spec
		// scenario E).
		if err := w.SpawnWithID(typeName, em.ID, nil); err != nil {
			logSnapshotDecodeIssue(w.log, em.ID, typeName, err)
			continue
		}

		// Step 4: copy decoded field columns by sorted ID.
		if err := applyDecodedFields(w, em.ID, snap.Schemas[em.TypeIdx], snap.Values[i]); err != nil {
			logSnapshotDecodeIssue(w.log, em.ID, typeName, err)
		}

		// Step 5: reconstruct the client-id index for Player-bearing
		// entities.
		if em.ClientID != "" {
			w.SetEntityClientID(em.ID, em.ClientID)
		}

		if em.ID.IsLocal() {
			activeLocal[em.ID.Index()] = true
		} else {
			active[em.ID.Index()] = true
		}

		// Step 6: invoke the entity type's on_restore hook.
		if def.OnRestore != nil {
			if e, ok := w.entities[em.ID]; ok {
				def.OnRestore(w, e)
			}
		}
	}

	// Step 7: recompute each allocator's free-list.
	w.netAlloc.RebuildFreeList(active)
	w.localAlloc.RebuildFreeList(activeLocal)

	if snap.Inputs != nil {
		for cid, in := range snap.Inputs {
			w.Inputs.Set(cid, in)
		}
	}
	return nil
}

func applyDecodedFields(w *World, id EntityID, schema TypeSchema, values []FieldValue) error {
	slot := w.slot(id)
	for i, fr := range schema.Fields {
		if i >= len(values) {
			break
		}
		storage, ok := w.storages[fr.Component]
		if !ok {
			continue
		}
		if err := storage.Set(slot, fr.Field, values[i]); err != nil {
			return err
		}
	}
	return nil
}
