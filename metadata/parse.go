package metadata

import (
	"encoding"
	"strconv"
	"strings"
)

// The helpers below are instantiated by generated code, so every parser is a
// closed function fixed at compile time.

// ParseSigned parses a base-10 signed integer into T.
func ParseSigned[T ~int | ~int8 | ~int16 | ~int32 | ~int64](s string) (any, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return nil, false
	}
	v := T(n)
	if int64(v) != n {
		return nil, false
	}
	return v, true
}

// ParseUnsigned parses a base-10 unsigned integer into T.
func ParseUnsigned[T ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr](s string) (any, bool) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return nil, false
	}
	v := T(n)
	if uint64(v) != n {
		return nil, false
	}
	return v, true
}

// ParseFloat parses a decimal floating point number into T.
func ParseFloat[T ~float32 | ~float64](s string) (any, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil, false
	}
	return T(f), true
}

// ParseBool accepts the values strconv.ParseBool accepts.
func ParseBool[T ~bool](s string) (any, bool) {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return nil, false
	}
	return T(b), true
}

// ParseString converts s without validation.
func ParseString[T ~string](s string) (any, bool) {
	return T(s), true
}

// ParseText parses through the type's encoding.TextUnmarshaler implementation.
func ParseText[T any, PT interface {
	*T
	encoding.TextUnmarshaler
}](s string) (any, bool) {
	var v T
	if err := PT(&v).UnmarshalText([]byte(s)); err != nil {
		return nil, false
	}
	return v, true
}

// ParseWith adapts a conventional Parse<Type>(string) (T, error) function.
func ParseWith[T any](fn func(string) (T, error)) Parser {
	return func(s string) (any, bool) {
		v, err := fn(s)
		if err != nil {
			return nil, false
		}
		return v, true
	}
}

// ParsePointerWith adapts a Parse<Type>(string) (*T, error) function; the
// parsed value is stored as T.
func ParsePointerWith[T any](fn func(string) (*T, error)) Parser {
	return func(s string) (any, bool) {
		v, err := fn(s)
		if err != nil || v == nil {
			return nil, false
		}
		return *v, true
	}
}

// TryParseWith adapts a TryParse<Type>(string) (T, bool) function.
func TryParseWith[T any](fn func(string) (T, bool)) Parser {
	return func(s string) (any, bool) {
		v, ok := fn(s)
		if !ok {
			return nil, false
		}
		return v, true
	}
}

// Pointer wraps a parser of T so that it yields *T.
func Pointer[T any](p Parser) Parser {
	return func(s string) (any, bool) {
		v, ok := p(s)
		if !ok {
			return nil, false
		}
		t, ok := v.(T)
		if !ok {
			return nil, false
		}
		return &t, true
	}
}

// One binds the first value of a key.
func One(p Parser) Binder {
	return func(values []string) (any, bool) {
		if len(values) == 0 {
			return nil, false
		}
		return p(values[0])
	}
}

// Many binds every value of a key into a []T. Comma separated values are
// split as well, so "a,b" and repeated keys behave alike.
func Many[T any](p Parser) Binder {
	return func(values []string) (any, bool) {
		out := make([]T, 0, len(values))
		for _, raw := range values {
			for _, s := range strings.Split(raw, ",") {
				v, ok := p(s)
				if !ok {
					return nil, false
				}
				t, ok := v.(T)
				if !ok {
					return nil, false
				}
				out = append(out, t)
			}
		}
		return out, true
	}
}
