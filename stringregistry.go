package sim

// StringRegistry interns strings per namespace so snapshots can carry
// small integer handles instead of repeating strings (spec 2: "String
// Registry ... namespaced string interning with snapshot-safe state").
// Interning only ever appends (spec 5: "string interning appends
// monotonically"), so handles are stable for the registry's lifetime and
// safe to snapshot/restore.
type StringRegistry struct {
	namespaces map[string]*internNamespace
}

type internNamespace struct {
	byString map[string]int32
	byHandle []string
}

// NewStringRegistry constructs an empty registry.
func NewStringRegistry() *StringRegistry {
	return &StringRegistry{namespaces: make(map[string]*internNamespace)}
}

func (r *StringRegistry) ns(namespace string) *internNamespace {
	n, ok := r.namespaces[namespace]
	if !ok {
		n = &internNamespace{byString: make(map[string]int32)}
		r.namespaces[namespace] = n
	}
	return n
}

// Intern returns s's handle within namespace, assigning a new one (the
// next append index) if s has not been seen in that namespace before.
func (r *StringRegistry) Intern(namespace, s string) int32 {
	n := r.ns(namespace)
	if h, ok := n.byString[s]; ok {
		return h
	}
	h := int32(len(n.byHandle))
	n.byHandle = append(n.byHandle, s)
	n.byString[s] = h
	return h
}

// Lookup resolves a handle back to its string within namespace.
func (r *StringRegistry) Lookup(namespace string, handle int32) (string, bool) {
	n, ok := r.namespaces[namespace]
	if !ok || handle < 0 || int(handle) >= len(n.byHandle) {
		return "", false
	}
	return n.byHandle[handle], true
}

// StringRegistryState is the serializable snapshot of every namespace's
// interned strings, in assignment (append) order, so replaying Intern
// calls on restore reproduces identical handles.
type StringRegistryState struct {
	Namespaces map[string][]string
}

// SaveState returns a deep copy of every namespace's interned strings.
func (r *StringRegistry) SaveState() StringRegistryState {
	out := make(map[string][]string, len(r.namespaces))
	for name, n := range r.namespaces {
		cp := make([]string, len(n.byHandle))
		copy(cp, n.byHandle)
		out[name] = cp
	}
	return StringRegistryState{Namespaces: out}
}

// LoadState replaces the registry's contents, preserving handle order.
func (r *StringRegistry) LoadState(s StringRegistryState) {
	r.namespaces = make(map[string]*internNamespace, len(s.Namespaces))
	for name, strs := range s.Namespaces {
		n := &internNamespace{byString: make(map[string]int32, len(strs)), byHandle: append([]string(nil), strs...)}
		for h, str := range strs {
			n.byString[str] = int32(h)
		}
		r.namespaces[name] = n
	}
}
