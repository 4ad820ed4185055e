// Package bind fills request DTOs from string key/value input, such as query
// strings or form posts, using the accessors held in a metadata.Registry.
package bind

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/Alia5/aotkit/aoterr"
	"github.com/Alia5/aotkit/metadata"
)

var (
	// ErrInvalidValue is wrapped by errors for values that fail to parse.
	ErrInvalidValue = errors.New("invalid value")
	// ErrMissingRequired is wrapped by errors for absent required keys.
	ErrMissingRequired = errors.New("missing required value")
)

// Binder binds input values to registered types.
type Binder struct {
	reg    *metadata.Registry
	strict bool
	logger *slog.Logger
}

// New returns a Binder reading from reg. In strict mode types without
// registered metadata are a configuration error; otherwise their metadata is
// built by reflection.
func New(reg *metadata.Registry, strict bool, logger *slog.Logger) *Binder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Binder{reg: reg, strict: strict, logger: logger}
}

func (b *Binder) entry(t reflect.Type) (metadata.Entry, error) {
	if e, ok := b.reg.TryGet(t); ok {
		return e, nil
	}
	name := metadata.TypeName(t)
	if b.strict {
		return metadata.Entry{}, aoterr.NewConfigError(name, "no metadata registered for request type")
	}
	e, ok := metadata.Reflect(t)
	if !ok {
		return metadata.Entry{}, fmt.Errorf("bind %s: type cannot be bound", name)
	}
	b.logger.Warn("request metadata built by reflection", "type", name)
	return e, nil
}

// Bind creates a new instance of t and fills it from values. Keys match a
// property's key or field name, ignoring case. When embedding produced
// several properties with the same key, each of them is set. The result is a
// pointer to t.
func (b *Binder) Bind(t reflect.Type, values map[string][]string) (any, error) {
	e, err := b.entry(t)
	if err != nil {
		return nil, err
	}
	if e.Factory == nil && e.InitFactory == nil {
		return nil, aoterr.NewConfigError(metadata.TypeName(t), "metadata has no object factory")
	}

	folded := make(map[string][]string, len(values))
	for k, v := range values {
		folded[strings.ToLower(k)] = append(folded[strings.ToLower(k)], v...)
	}
	lookup := func(p metadata.Property) ([]string, bool) {
		if v, ok := folded[strings.ToLower(p.Key)]; ok {
			return v, true
		}
		v, ok := folded[strings.ToLower(p.Name)]
		return v, ok
	}

	var errs []error
	parse := func(p metadata.Property) (any, bool) {
		raw, ok := lookup(p)
		if !ok || len(raw) == 0 {
			if p.Required {
				errs = append(errs, fmt.Errorf("%s: %w", p.Key, ErrMissingRequired))
			}
			return nil, false
		}
		if p.Bind == nil {
			return nil, false
		}
		v, ok := p.Bind(raw)
		if !ok {
			errs = append(errs, fmt.Errorf("%s %q: %w", p.Key, raw[0], ErrInvalidValue))
			return nil, false
		}
		return v, true
	}

	var obj any
	if e.InitFactory != nil {
		initValues := make(map[string]any)
		for _, p := range e.Properties {
			if !p.InitOnly {
				continue
			}
			if v, ok := parse(p); ok {
				initValues[p.Name] = v
			}
		}
		obj = e.InitFactory(initValues)
	} else {
		obj = e.Factory()
	}

	for _, p := range e.Properties {
		if p.InitOnly || p.Set == nil {
			continue
		}
		if v, ok := parse(p); ok {
			p.Set(obj, v)
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("bind %s: %w", metadata.TypeName(t), errors.Join(errs...))
	}
	return obj, nil
}

// Into binds values into a new T.
func Into[T any](b *Binder, values map[string][]string) (*T, error) {
	obj, err := b.Bind(reflect.TypeFor[T](), values)
	if err != nil {
		return nil, err
	}
	out, ok := obj.(*T)
	if !ok {
		return nil, fmt.Errorf("bind %s: factory produced %T", metadata.TypeName(reflect.TypeFor[T]()), obj)
	}
	return out, nil
}
