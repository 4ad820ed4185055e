package metadata

import (
	"encoding"
	"net/url"
	"reflect"
	"strings"
)

var textUnmarshalerType = reflect.TypeFor[encoding.TextUnmarshaler]()

// Reflect builds an Entry for t with reflect.Value based accessors.
//
// This is the slow, non-AOT path used when generated metadata is missing and
// strict mode is off. It follows the same property rules as the generator so
// both paths bind identically.
func Reflect(t reflect.Type) (Entry, bool) {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return Entry{}, false
	}
	switch t.Kind() {
	case reflect.Interface, reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Invalid:
		return Entry{}, false
	}

	e := Entry{
		Factory: func() any { return reflect.New(t).Interface() },
		Parser:  reflectParser(t),
	}
	if t.Kind() != reflect.Struct {
		return e, true
	}

	e.Properties = reflectProperties(t, nil)
	var initOnly []Property
	for _, p := range e.Properties {
		if p.InitOnly {
			initOnly = append(initOnly, p)
		}
	}
	if len(initOnly) > 0 {
		e.InitFactory = func(values map[string]any) any {
			obj := reflect.New(t).Interface()
			for _, p := range initOnly {
				if v, ok := values[p.Name]; ok {
					p.Set(obj, v)
				}
			}
			return obj
		}
		for i := range e.Properties {
			if e.Properties[i].InitOnly {
				e.Properties[i].Set = nil
			}
		}
	}
	return e, true
}

// opaqueStructs are never expanded when embedded, matching the generator's
// default blacklist.
var opaqueStructs = map[reflect.Type]bool{
	reflect.TypeFor[url.URL](): true,
}

type reflectField struct {
	Property
	// head is the selector name relative to the struct being walked.
	head string
}

func reflectProperties(t reflect.Type, prefix []int) []Property {
	fields := reflectFields(t, prefix)
	props := make([]Property, len(fields))
	for i, f := range fields {
		props[i] = f.Property
	}
	return props
}

func reflectFields(t reflect.Type, prefix []int) []reflectField {
	var props []reflectField
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		index := append(append([]int(nil), prefix...), i)
		if f.Anonymous && f.Type.Kind() == reflect.Struct && !opaqueStructs[f.Type] {
			for _, p := range reflectFields(f.Type, index) {
				if f.IsExported() {
					p.head = f.Name
				} else if sf, ok := t.FieldByName(p.head); !ok || sf.Index[0] != i {
					continue
				}
				props = append(props, p)
			}
			continue
		}
		if !f.IsExported() {
			continue
		}
		tag := ParseFieldTag(f.Tag)
		if tag.Skip() {
			continue
		}
		key := tag.Key
		if key == "" {
			key = f.Name
		}
		props = append(props, reflectField{head: f.Name, Property: Property{
			Name:     f.Name,
			Key:      key,
			Type:     f.Type,
			InitOnly: tag.InitOnly,
			Required: tag.Required,
			Get: func(obj any) any {
				return reflect.ValueOf(obj).Elem().FieldByIndex(index).Interface()
			},
			Set: func(obj, value any) {
				fv := reflect.ValueOf(obj).Elem().FieldByIndex(index)
				v := reflect.ValueOf(value)
				if v.Type() != fv.Type() && v.Type().ConvertibleTo(fv.Type()) {
					v = v.Convert(fv.Type())
				}
				fv.Set(v)
			},
			Bind: reflectBinder(f.Type),
		}})
	}
	return props
}

func reflectBinder(t reflect.Type) Binder {
	switch {
	case t.Kind() == reflect.Slice && t.Elem().Kind() != reflect.Uint8:
		elem := reflectParser(t.Elem())
		if elem == nil {
			return nil
		}
		return func(values []string) (any, bool) {
			out := reflect.MakeSlice(t, 0, len(values))
			for _, raw := range values {
				for _, s := range strings.Split(raw, ",") {
					v, ok := elem(s)
					if !ok {
						return nil, false
					}
					out = reflect.Append(out, reflect.ValueOf(v))
				}
			}
			return out.Interface(), true
		}
	case t.Kind() == reflect.Pointer:
		elem := reflectParser(t.Elem())
		if elem == nil {
			return nil
		}
		return One(func(s string) (any, bool) {
			v, ok := elem(s)
			if !ok {
				return nil, false
			}
			p := reflect.New(t.Elem())
			p.Elem().Set(reflect.ValueOf(v))
			return p.Interface(), true
		})
	}
	p := reflectParser(t)
	if p == nil {
		return nil
	}
	return One(p)
}

// reflectParser returns a parser yielding values of exactly type t.
func reflectParser(t reflect.Type) Parser {
	if reflect.PointerTo(t).Implements(textUnmarshalerType) {
		return func(s string) (any, bool) {
			p := reflect.New(t)
			if err := p.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s)); err != nil {
				return nil, false
			}
			return p.Elem().Interface(), true
		}
	}
	var base Parser
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		base = ParseSigned[int64]
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		base = ParseUnsigned[uint64]
	case reflect.Float32, reflect.Float64:
		base = ParseFloat[float64]
	case reflect.Bool:
		base = ParseBool[bool]
	case reflect.String:
		base = ParseString[string]
	default:
		return nil
	}
	return func(s string) (any, bool) {
		v, ok := base(s)
		if !ok {
			return nil, false
		}
		if overflows(t, v) {
			return nil, false
		}
		return reflect.ValueOf(v).Convert(t).Interface(), true
	}
}

func overflows(t reflect.Type, v any) bool {
	switch x := v.(type) {
	case int64:
		return t.OverflowInt(x)
	case uint64:
		return t.OverflowUint(x)
	case float64:
		return t.OverflowFloat(x)
	}
	return false
}
