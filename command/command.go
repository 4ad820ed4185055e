// Package command routes command values to their handlers through an ordered
// middleware chain.
//
// Bindings are installed at startup by generated code (Register), keyed by the
// command's exact type. In strict mode every dispatch must be served by a
// pre-built executor; anything that would need reflection fails with an
// *aoterr.ConfigError instead.
package command

import (
	"context"
	"errors"
	"reflect"
	"sync"
)

// Handler executes commands of type C and produces R.
type Handler[C any, R any] interface {
	Execute(ctx context.Context, cmd C) (R, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc[C any, R any] func(ctx context.Context, cmd C) (R, error)

// Execute calls f.
func (f HandlerFunc[C, R]) Execute(ctx context.Context, cmd C) (R, error) {
	return f(ctx, cmd)
}

// Next continues the chain with the next middleware, or the handler when the
// chain is exhausted.
type Next func(ctx context.Context) (any, error)

// Middleware wraps the rest of the chain. It may call next any number of
// times, including zero to short-circuit.
type Middleware interface {
	Execute(ctx context.Context, cmd any, next Next) (any, error)
}

// MiddlewareFunc adapts a function to Middleware.
type MiddlewareFunc func(ctx context.Context, cmd any, next Next) (any, error)

// Execute calls f.
func (f MiddlewareFunc) Execute(ctx context.Context, cmd any, next Next) (any, error) {
	return f(ctx, cmd, next)
}

// MiddlewareFactory creates the middleware instance used by one dispatch.
type MiddlewareFactory func() Middleware

// ErrServiceNotFound is returned by Services when no provider exists.
var ErrServiceNotFound = errors.New("service not found")

// Services is the dependency injection collaborator used to construct
// handlers that have no generated factory.
type Services interface {
	Resolve(t reflect.Type) (any, error)
}

// ServiceMap is a minimal Services implementation backed by a map of
// providers.
type ServiceMap struct {
	mu        sync.RWMutex
	providers map[reflect.Type]func() (any, error)
}

// NewServiceMap returns an empty ServiceMap.
func NewServiceMap() *ServiceMap {
	return &ServiceMap{providers: make(map[reflect.Type]func() (any, error))}
}

// Provide registers a provider for t, replacing any previous one.
func (m *ServiceMap) Provide(t reflect.Type, provider func() (any, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[t] = provider
}

// Resolve invokes the provider registered for t.
func (m *ServiceMap) Resolve(t reflect.Type) (any, error) {
	m.mu.RLock()
	p, ok := m.providers[t]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrServiceNotFound
	}
	return p()
}

// Provide registers a typed provider for T.
func Provide[T any](m *ServiceMap, provider func() (T, error)) {
	m.Provide(reflect.TypeFor[T](), func() (any, error) { return provider() })
}
