package sim

import (
	"math"
	"sort"
)

func f32Bits(v float32) uint32 { return math.Float32bits(v) }

// FieldRepr is the wire/storage representation of a component field (spec
// 3: "repr ∈ {i32 (fixed-point), u8, bool, f32}").
type FieldRepr int

const (
	FieldI32 FieldRepr = iota // fixed-point FP, stored raw
	FieldU8
	FieldBool
	FieldF32 // explicitly non-deterministic; logged, never forbidden
)

func (r FieldRepr) String() string {
	switch r {
	case FieldI32:
		return "i32"
	case FieldU8:
		return "u8"
	case FieldBool:
		return "bool"
	case FieldF32:
		return "f32"
	default:
		return "unknown"
	}
}

// byteWidth returns the native typed-array width used by the binary
// snapshot framing (spec 6: "entityCount elements of the field's native
// typed-array width").
func (r FieldRepr) byteWidth() int {
	switch r {
	case FieldI32:
		return 4
	case FieldU8, FieldBool:
		return 1
	case FieldF32:
		return 4
	default:
		return 0
	}
}

// FieldValue is a tagged union default/literal value for a component
// field, matching whichever FieldRepr the field declares.
type FieldValue struct {
	Repr FieldRepr
	I32  FP
	U8   uint8
	Bool bool
	F32  float32
}

func I32Value(v FP) FieldValue      { return FieldValue{Repr: FieldI32, I32: v} }
func U8Value(v uint8) FieldValue    { return FieldValue{Repr: FieldU8, U8: v} }
func BoolValue(v bool) FieldValue   { return FieldValue{Repr: FieldBool, Bool: v} }
func F32Value(v float32) FieldValue { return FieldValue{Repr: FieldF32, F32: v} }

// rawBits returns the field's raw 32-bit representation for hashing (spec
// 4.6: "fold in each field's raw integer value").
func (v FieldValue) rawBits() uint32 {
	switch v.Repr {
	case FieldI32:
		return uint32(int32(v.I32))
	case FieldU8:
		return uint32(v.U8)
	case FieldBool:
		if v.Bool {
			return 1
		}
		return 0
	case FieldF32:
		return f32Bits(v.F32)
	default:
		return 0
	}
}

// FieldSchema is one (name, repr, default) entry in a component's schema
// (spec 3).
type FieldSchema struct {
	Name    string
	Repr    FieldRepr
	Default FieldValue
}

// ComponentType is a registered component declaration: a unique name, an
// ordered field schema, and a sync flag (spec 3). Sync=false means "never
// in snapshots/hash" — a per-component opt-out distinct from an entity
// definition's sync_fields whitelist (DESIGN.md / spec 9 "syncable toggles
// are structural").
type ComponentType struct {
	Name       string
	Fields     []FieldSchema
	Sync       bool
	fieldIndex map[string]int
	// sortedFieldNames caches the name-sorted field order the state hash
	// iterates (spec 4.6: "name-sorted field order").
	sortedFieldNames []string
}

func newComponentType(name string, fields []FieldSchema, sync bool) *ComponentType {
	ct := &ComponentType{Name: name, Fields: fields, Sync: sync, fieldIndex: make(map[string]int, len(fields))}
	names := make([]string, len(fields))
	for i, f := range fields {
		ct.fieldIndex[f.Name] = i
		names[i] = f.Name
	}
	sort.Strings(names)
	ct.sortedFieldNames = names
	return ct
}

// FieldIndex returns the declared-order index of a field, or -1.
func (c *ComponentType) FieldIndex(name string) int {
	if i, ok := c.fieldIndex[name]; ok {
		return i
	}
	return -1
}
