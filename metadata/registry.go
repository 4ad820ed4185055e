// Package metadata is the runtime store of per-type construction, parsing and
// property access metadata.
//
// Entries are produced at build time by `aotkit generate` and installed once
// at startup by the generated Populate routine. Request handling code looks
// them up concurrently and never needs reflect.Value on the hot path.
package metadata

import (
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// Parser converts a single raw string into a value of the parser's type.
type Parser func(s string) (any, bool)

// Binder converts the raw values of one input key into a value assignable to
// a property.
type Binder func(values []string) (any, bool)

// Property is a reflection-free accessor for one settable field.
// Set is nil for init-only properties; those are only applied through
// Entry.InitFactory. Bind is nil when the declared type is structured.
type Property struct {
	Name     string
	Key      string
	Type     reflect.Type
	InitOnly bool
	Required bool
	Get      func(obj any) any
	Set      func(obj, value any)
	Bind     Binder
}

// Entry is the metadata payload stored for one type.
type Entry struct {
	// Factory returns a pointer to a new, structurally valid instance.
	Factory func() any
	// InitFactory is like Factory but applies init-only values first.
	InitFactory func(values map[string]any) any
	// Parser converts a raw string into a value of the type.
	Parser     Parser
	Properties []Property
}

// Lookup returns every property whose Name or Key matches name, ignoring case.
// A name can match more than once when an embedded struct field is shadowed.
func (e Entry) Lookup(name string) []Property {
	var out []Property
	for _, p := range e.Properties {
		if strings.EqualFold(p.Name, name) || strings.EqualFold(p.Key, name) {
			out = append(out, p)
		}
	}
	return out
}

// Registry is a type-keyed store with first-registration-wins semantics.
// Reads may run concurrently with each other and with writers; writers are
// serialized.
type Registry struct {
	mu      sync.RWMutex
	entries map[reflect.Type]Entry
	logger  *slog.Logger
}

// NewRegistry returns an empty registry. A nil logger discards output.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		entries: make(map[reflect.Type]Entry),
		logger:  logger,
	}
}

// TryAdd stores e for t unless an entry already exists. It reports whether
// the entry was inserted; an existing entry is left untouched.
func (r *Registry) TryAdd(t reflect.Type, e Entry) bool {
	if t == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[t]; exists {
		r.logger.Debug("metadata already registered", "type", t.String())
		return false
	}
	r.entries[t] = e
	return true
}

// TryGet returns the entry for t. It never panics.
func (r *Registry) TryGet(t reflect.Type) (Entry, bool) {
	if r == nil || t == nil {
		return Entry{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[t]
	return e, ok
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Types returns the registered type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for t := range r.entries {
		names = append(names, TypeName(t))
	}
	sort.Strings(names)
	return names
}

// Add is TryAdd keyed by the static type T.
func Add[T any](r *Registry, e Entry) bool {
	return r.TryAdd(reflect.TypeFor[T](), e)
}

// Get is TryGet keyed by the static type T.
func Get[T any](r *Registry) (Entry, bool) {
	return r.TryGet(reflect.TypeFor[T]())
}

// TypeName returns the fully qualified name of t, e.g.
// "github.com/acme/orders.Order". Unnamed types use their reflect string.
func TypeName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	if t.Name() != "" && t.PkgPath() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}
