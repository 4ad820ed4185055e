// Package aoterr holds the error types shared by the runtime registries.
//
// A misconfigured ahead-of-time build fails with one of these types at the
// first affected dispatch, naming the type whose generated mapping is missing.
package aoterr

import (
	"errors"
	"fmt"
)

// ErrNotRegistered is returned when a type has no registration at all,
// neither generated nor discovered.
var ErrNotRegistered = errors.New("type is not registered")

// ConfigError reports a missing or disallowed mapping. It is raised in
// strict mode instead of falling back to reflection.
type ConfigError struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("aot configuration error for %s: %s; ensure `aotkit generate` ran for this package and its Populate func is passed to Runtime.Populate", e.Type, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError builds a ConfigError for the given type name.
func NewConfigError(typeName string, format string, args ...any) *ConfigError {
	return &ConfigError{Type: typeName, Reason: fmt.Sprintf(format, args...)}
}

// TypeMismatchError reports a handler that cannot serve the command it was
// bound to.
type TypeMismatchError struct {
	Command string `json:"command"`
	Handler string `json:"handler"`
	Detail  string `json:"detail,omitempty"`
}

func (e *TypeMismatchError) Error() string {
	msg := fmt.Sprintf("handler %s is not assignable to the handler interface of command %s", e.Handler, e.Command)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// IsConfigError reports whether err wraps a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
