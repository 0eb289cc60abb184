package sim

// RenderScratch holds the interpolation-only fields spec 3 says are "never
// hashed or serialized": prevX/prevY for the last simulated position and
// interpX/interpY for the renderer's smoothed draw position. World never
// reads these; they exist purely for an external renderer to mutate.
type RenderScratch struct {
	PrevX, PrevY   FP
	InterpX, InterpY FP
}

// Entity is the observable per-entity state: its ID, type name, the
// ordered set of attached component types, a per-tick input slot cleared
// at end of tick, and render scratch that never participates in hash or
// snapshot (spec 3).
type Entity struct {
	ID         EntityID
	TypeName   string
	Components []string // ordered, as attached
	Input      *Input   // cleared at end of tick; nil if none this tick
	Render     RenderScratch
}

// HasComponent reports whether name is in the entity's attached list.
func (e *Entity) HasComponent(name string) bool {
	for _, c := range e.Components {
		if c == name {
			return true
		}
	}
	return false
}

// ComponentFieldDefault overrides a single field's default for one
// component within an entity definition.
type ComponentFieldDefault struct {
	Component string
	Field     string
	Value     FieldValue
}

// EntityDefinition is a registered template: name, ordered component list,
// optional per-field default overrides, an optional sync_fields whitelist
// (empty means "don't serialize this entity at all" — spec 3/4.7), and an
// optional on_restore hook invoked once per entity after snapshot decode
// (spec 4.7 step 6).
type EntityDefinition struct {
	Name        string
	Components  []string
	Defaults    []ComponentFieldDefault
	SyncFields  map[string][]string // component -> whitelisted field names; nil = no whitelist (sync everything sync-flagged)
	HasSyncAll  bool                // true when SyncFields is nil (no entity-level restriction)
	OnRestore   func(w *World, e *Entity)
}

// SyncNone reports whether this definition excludes all entities of this
// type from snapshot/hash entirely (spec 4.7: "empty sync_fields list").
func (d *EntityDefinition) SyncNone() bool {
	return d.SyncFields != nil && len(d.SyncFields) == 0
}

// FieldIsSynced reports whether a given component/field pair should be
// included in snapshot/hash output for this entity type.
func (d *EntityDefinition) FieldIsSynced(component, field string) bool {
	if d.SyncFields == nil {
		return true
	}
	fields, ok := d.SyncFields[component]
	if !ok {
		return false
	}
	for _, f := range fields {
		if f == field {
			return true
		}
	}
	return false
}

// EntityDefinitionRegistry holds every registered entity template, keyed
// by name, declared once at startup alongside components (spec 5: "all
// component and entity types declared before connect").
type EntityDefinitionRegistry struct {
	byName map[string]*EntityDefinition
}

// NewEntityDefinitionRegistry constructs an empty registry.
func NewEntityDefinitionRegistry() *EntityDefinitionRegistry {
	return &EntityDefinitionRegistry{byName: make(map[string]*EntityDefinition)}
}

// Register declares an entity template. A duplicate name is a protocol
// violation, matching ComponentRegistry.Register's fatal-on-duplicate rule.
func (r *EntityDefinitionRegistry) Register(def *EntityDefinition) *EntityDefinition {
	if _, exists := r.byName[def.Name]; exists {
		panicFault(KindProtocolViolation, "EntityDefinitionRegistry.Register", errDuplicateEntityDef(def.Name))
	}
	def.HasSyncAll = def.SyncFields == nil
	r.byName[def.Name] = def
	return def
}

// Get looks up an entity definition by name.
func (r *EntityDefinitionRegistry) Get(name string) (*EntityDefinition, bool) {
	d, ok := r.byName[name]
	return d, ok
}

func errDuplicateEntityDef(name string) error {
	return &duplicateEntityDefError{name: name}
}

type duplicateEntityDefError struct{ name string }

func (e *duplicateEntityDefError) Error() string {
	return "duplicate entity definition: " + e.name
}
