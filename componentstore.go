package sim

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
)

// ComponentRegistry is the process-wide (per-Simulation — spec 9 forbids
// real global/static mutation so multiple simulations can coexist) name to
// ComponentType table. Snapshot/hash code iterates it in name-sorted order
// (DESIGN.md Open Question decision #4) so two peers that register
// identical components in different call order still converge.
type ComponentRegistry struct {
	byName map[string]*ComponentType
	log    zerolog.Logger
}

// NewComponentRegistry constructs an empty registry.
func NewComponentRegistry(log zerolog.Logger) *ComponentRegistry {
	return &ComponentRegistry{byName: make(map[string]*ComponentType), log: log}
}

// Register declares a component type once at startup. A duplicate name is
// a protocol violation (spec 7): fatal, since it indicates a programmer
// error that would otherwise silently desync every peer differently.
func (r *ComponentRegistry) Register(name string, fields []FieldSchema, sync bool) *ComponentType {
	if _, exists := r.byName[name]; exists {
		panicFault(KindProtocolViolation, "ComponentRegistry.Register", fmt.Errorf("duplicate component %q", name))
	}
	for _, f := range fields {
		if f.Repr == FieldF32 && sync {
			logNonDeterministicField(r.log, name, f.Name)
		}
	}
	ct := newComponentType(name, fields, sync)
	r.byName[name] = ct
	return ct
}

// Get looks up a component type by name.
func (r *ComponentRegistry) Get(name string) (*ComponentType, bool) {
	ct, ok := r.byName[name]
	return ct, ok
}

// SortedNames returns every registered component name in sorted order.
func (r *ComponentRegistry) SortedNames() []string {
	names := make([]string, 0, len(r.byName))
	for n := range r.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// column is one field's storage: a fixed-width typed array with one element
// per storage slot. World allocates 2*MaxEntities slots so local entities
// get their own upper half (see World.slot).
type column struct {
	repr FieldRepr
	i32  []FP
	u8   []uint8
	b    []bool
	f32  []float32
}

func newColumn(repr FieldRepr, size int, def FieldValue) column {
	c := column{repr: repr}
	switch repr {
	case FieldI32:
		c.i32 = make([]FP, size)
		for i := range c.i32 {
			c.i32[i] = def.I32
		}
	case FieldU8:
		c.u8 = make([]uint8, size)
		for i := range c.u8 {
			c.u8[i] = def.U8
		}
	case FieldBool:
		c.b = make([]bool, size)
		for i := range c.b {
			c.b[i] = def.Bool
		}
	case FieldF32:
		c.f32 = make([]float32, size)
		for i := range c.f32 {
			c.f32[i] = def.F32
		}
	}
	return c
}

func (c *column) get(idx uint32) FieldValue {
	switch c.repr {
	case FieldI32:
		return I32Value(c.i32[idx])
	case FieldU8:
		return U8Value(c.u8[idx])
	case FieldBool:
		return BoolValue(c.b[idx])
	case FieldF32:
		return F32Value(c.f32[idx])
	default:
		return FieldValue{}
	}
}

func (c *column) set(idx uint32, v FieldValue) {
	switch c.repr {
	case FieldI32:
		c.i32[idx] = v.I32
	case FieldU8:
		c.u8[idx] = v.U8
	case FieldBool:
		c.b[idx] = v.Bool
	case FieldF32:
		c.f32[idx] = v.F32
	}
}

func (c *column) reset(idx uint32, def FieldValue) { c.set(idx, def) }

// ComponentStorage is the per-component-type column store: presence
// bitmask plus one column per declared field (spec 3/4.3).
type ComponentStorage struct {
	Type     *ComponentType
	presence []uint32 // ceil(size/32) words
	cols     []column
	size     int
}

func newComponentStorage(ct *ComponentType, maxEntities int) *ComponentStorage {
	cs := &ComponentStorage{
		Type:     ct,
		presence: make([]uint32, (maxEntities+31)/32),
		cols:     make([]column, len(ct.Fields)),
		size:     maxEntities,
	}
	for i, f := range ct.Fields {
		cs.cols[i] = newColumn(f.Repr, maxEntities, f.Default)
	}
	return cs
}

// Has reports whether idx's presence bit is set.
func (cs *ComponentStorage) Has(idx uint32) bool {
	return cs.presence[idx/32]&(1<<(idx%32)) != 0
}

func (cs *ComponentStorage) setPresence(idx uint32, present bool) {
	word, bit := idx/32, idx%32
	if present {
		cs.presence[word] |= 1 << bit
	} else {
		cs.presence[word] &^= 1 << bit
	}
}

// Attach marks idx present and writes field defaults (spec: "spawn ...
// marks components present, writes defaults then property overrides").
func (cs *ComponentStorage) Attach(idx uint32) {
	cs.setPresence(idx, true)
	for i, f := range cs.Type.Fields {
		cs.cols[i].reset(idx, f.Default)
	}
}

// Detach clears idx's presence bit (spec: "destroy ... clears presence
// bits").
func (cs *ComponentStorage) Detach(idx uint32) {
	cs.setPresence(idx, false)
}

// Get reads a field's raw value for idx. Returns an invalid-access error if
// idx is not present — the field schema guarantees Get is only meaningful
// when Has(idx) is true.
func (cs *ComponentStorage) Get(idx uint32, field string) (FieldValue, error) {
	if !cs.Has(idx) {
		return FieldValue{}, newErr(KindInvalidAccess, "ComponentStorage.Get", fmt.Errorf("%s: entity lacks component", field))
	}
	fi := cs.Type.FieldIndex(field)
	if fi < 0 {
		return FieldValue{}, newErr(KindInvalidAccess, "ComponentStorage.Get", fmt.Errorf("unknown field %q", field))
	}
	return cs.cols[fi].get(idx), nil
}

// Set writes a field's raw value for idx.
func (cs *ComponentStorage) Set(idx uint32, field string, v FieldValue) error {
	if !cs.Has(idx) {
		return newErr(KindInvalidAccess, "ComponentStorage.Set", fmt.Errorf("%s: entity lacks component", field))
	}
	fi := cs.Type.FieldIndex(field)
	if fi < 0 {
		return newErr(KindInvalidAccess, "ComponentStorage.Set", fmt.Errorf("unknown field %q", field))
	}
	cs.cols[fi].set(idx, v)
	return nil
}

// Accessor is a reusable handle bound to an entity's slot index (spec 4.3:
// "Accessors are bound to an entity's index at retrieval; re-binding by
// rewriting the index field is permitted"). Reading an i32 field through it
// auto-scales to a float (spec 9's dynamic-dispatch note); the underlying
// storage keeps the raw fixed-point integer.
type Accessor struct {
	storage *ComponentStorage
	index   uint32
}

// Rebind repoints the accessor at a different entity's slot without
// allocating, enabling accessor pooling.
func (a *Accessor) Rebind(index uint32) { a.index = index }

// Float reads an i32 field as a float64 (value / FPOne).
func (a *Accessor) Float(field string) float64 {
	v, err := a.storage.Get(a.index, field)
	if err != nil {
		return 0
	}
	return v.I32.Float()
}

// SetFloat writes an i32 field from a float64 (value * FPOne).
func (a *Accessor) SetFloat(field string, v float64) error {
	return a.storage.Set(a.index, field, I32Value(ToFixed(v)))
}

// FP reads an i32 field as a raw FP value.
func (a *Accessor) FP(field string) FP {
	v, _ := a.storage.Get(a.index, field)
	return v.I32
}

// SetFP writes an i32 field from a raw FP value.
func (a *Accessor) SetFP(field string, v FP) error {
	return a.storage.Set(a.index, field, I32Value(v))
}

// U8 reads a u8 field.
func (a *Accessor) U8(field string) uint8 {
	v, _ := a.storage.Get(a.index, field)
	return v.U8
}

// SetU8 writes a u8 field.
func (a *Accessor) SetU8(field string, v uint8) error {
	return a.storage.Set(a.index, field, U8Value(v))
}

// Bool reads a bool field.
func (a *Accessor) Bool(field string) bool {
	v, _ := a.storage.Get(a.index, field)
	return v.Bool
}

// SetBool writes a bool field.
func (a *Accessor) SetBool(field string, v bool) error {
	return a.storage.Set(a.index, field, BoolValue(v))
}
