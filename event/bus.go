// Package event forwards published events to the subscribers of their exact
// runtime type.
//
// Generated code installs one publisher table per package through
// Bus.Install. Events whose type is missing from every installed table can
// still reach their subscribers through Publish, unless the bus is strict.
package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Alia5/aotkit/aoterr"
	"github.com/Alia5/aotkit/metadata"
)

const tracerName = "github.com/Alia5/aotkit/event"

// WaitMode controls how long a publish waits for its subscribers.
type WaitMode int

const (
	// WaitForAll runs every subscriber and returns the first error once all
	// of them finished.
	WaitForAll WaitMode = iota
	// WaitForAny returns as soon as one subscriber finished, with its error.
	WaitForAny
	// WaitForNone starts the subscribers and returns immediately. Their
	// errors are logged.
	WaitForNone
)

func (m WaitMode) String() string {
	switch m {
	case WaitForAll:
		return "all"
	case WaitForAny:
		return "any"
	case WaitForNone:
		return "none"
	}
	return fmt.Sprintf("WaitMode(%d)", int(m))
}

// ErrAlreadyInstalled is returned by Install when a table with the same name
// is already present.
var ErrAlreadyInstalled = errors.New("event publishers already installed")

// Handler receives events of type E.
type Handler[E any] interface {
	Handle(ctx context.Context, ev E) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc[E any] func(ctx context.Context, ev E) error

// Handle calls f.
func (f HandlerFunc[E]) Handle(ctx context.Context, ev E) error { return f(ctx, ev) }

// PublishFunc forwards one event to the subscribers of a single event type.
type PublishFunc func(ctx context.Context, ev any, mode WaitMode) error

// Resolver returns the publisher for an exact event type, or nil.
type Resolver func(t reflect.Type) PublishFunc

// Options configures a Bus.
type Options struct {
	// Strict makes Publish fail for event types no installed table covers.
	Strict         bool
	Logger         *slog.Logger
	TracerProvider trace.TracerProvider
}

type installed struct {
	name    string
	resolve Resolver
}

// dispatcher is implemented by every subscriber set regardless of its event
// type, so the fallback path can reach it without generics.
type dispatcher interface {
	dispatch(ctx context.Context, ev any, mode WaitMode) error
}

// Bus holds subscribers and the installed publisher tables.
type Bus struct {
	mu        sync.RWMutex
	subs      map[reflect.Type]dispatcher
	resolvers []installed

	strict bool
	logger *slog.Logger
	tracer trace.Tracer
}

// NewBus returns an empty bus.
func NewBus(opts Options) *Bus {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Bus{
		subs:   make(map[reflect.Type]dispatcher),
		strict: opts.Strict,
		logger: logger,
		tracer: tp.Tracer(tracerName),
	}
}

// Install adds a publisher table under name. Each name can be installed once;
// a second call returns ErrAlreadyInstalled and leaves the bus unchanged.
func (b *Bus) Install(name string, resolve Resolver) error {
	if resolve == nil {
		return errors.New("event: nil resolver")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range b.resolvers {
		if r.name == name {
			return fmt.Errorf("%s: %w", name, ErrAlreadyInstalled)
		}
	}
	b.resolvers = append(b.resolvers, installed{name: name, resolve: resolve})
	b.logger.Debug("event publishers installed", "table", name)
	return nil
}

func (b *Bus) lookup(t reflect.Type) PublishFunc {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, r := range b.resolvers {
		if fn := r.resolve(t); fn != nil {
			return fn
		}
	}
	return nil
}

// TryPublish forwards ev through the installed publisher for its exact
// runtime type. handled is false when no table covers the type; that is a
// normal outcome, not an error.
func (b *Bus) TryPublish(ctx context.Context, ev any, mode WaitMode) (handled bool, err error) {
	if ev == nil {
		return false, nil
	}
	fn := b.lookup(reflect.TypeOf(ev))
	if fn == nil {
		return false, nil
	}
	ctx, span := b.startSpan(ctx, ev, mode)
	defer func() { endSpan(span, err) }()
	return true, fn(ctx, ev, mode)
}

// Publish is TryPublish with a fallback to the subscriber set of the exact
// runtime type. In strict mode the fallback is an *aoterr.ConfigError.
func (b *Bus) Publish(ctx context.Context, ev any, mode WaitMode) (err error) {
	if ev == nil {
		return errors.New("event is nil")
	}
	handled, err := b.TryPublish(ctx, ev, mode)
	if handled {
		return err
	}

	t := reflect.TypeOf(ev)
	name := metadata.TypeName(t)
	if b.strict {
		return aoterr.NewConfigError(name, "no generated publisher for event")
	}

	b.mu.RLock()
	d, ok := b.subs[t]
	b.mu.RUnlock()
	if !ok {
		b.logger.Debug("event has no subscribers", "event", name)
		return nil
	}
	b.logger.Warn("event published without a generated publisher", "event", name)

	ctx, span := b.startSpan(ctx, ev, mode)
	defer func() { endSpan(span, err) }()
	return d.dispatch(ctx, ev, mode)
}

// Subscribers returns the number of subscribers registered for t.
func (b *Bus) Subscribers(t reflect.Type) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if s, ok := b.subs[t].(interface{ len() int }); ok {
		return s.len()
	}
	return 0
}

func (b *Bus) startSpan(ctx context.Context, ev any, mode WaitMode) (context.Context, trace.Span) {
	return b.tracer.Start(ctx, "event.Publish", trace.WithAttributes(
		attribute.String("aot.event", metadata.TypeName(reflect.TypeOf(ev))),
		attribute.String("aot.wait_mode", mode.String()),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

type handlerSet[E any] struct {
	handlers []Handler[E]
	logger   *slog.Logger
}

func (s *handlerSet[E]) len() int { return len(s.handlers) }

func (s *handlerSet[E]) dispatch(ctx context.Context, ev any, mode WaitMode) error {
	e, ok := ev.(E)
	if !ok {
		return fmt.Errorf("publisher for %s received %T", metadata.TypeName(reflect.TypeFor[E]()), ev)
	}
	return fanOut(ctx, s.handlers, e, mode, s.logger)
}

// Subscribe adds h to the subscribers of E.
func Subscribe[E any](b *Bus, h Handler[E]) {
	t := reflect.TypeFor[E]()
	b.mu.Lock()
	defer b.mu.Unlock()
	var handlers []Handler[E]
	if cur, ok := b.subs[t].(*handlerSet[E]); ok {
		handlers = cur.handlers
	}
	// Copy on write: publishers iterate their snapshot without the lock.
	next := make([]Handler[E], len(handlers), len(handlers)+1)
	copy(next, handlers)
	b.subs[t] = &handlerSet[E]{handlers: append(next, h), logger: b.logger}
}

// SubscribeFunc adds fn to the subscribers of E.
func SubscribeFunc[E any](b *Bus, fn func(ctx context.Context, ev E) error) {
	Subscribe[E](b, HandlerFunc[E](fn))
}

// PublisherFor returns the closed publisher for E. Generated tables hold one
// per discovered event type.
func PublisherFor[E any](b *Bus) PublishFunc {
	t := reflect.TypeFor[E]()
	return func(ctx context.Context, ev any, mode WaitMode) error {
		e, ok := ev.(E)
		if !ok {
			return fmt.Errorf("publisher for %s received %T", metadata.TypeName(t), ev)
		}
		b.mu.RLock()
		set, _ := b.subs[t].(*handlerSet[E])
		b.mu.RUnlock()
		if set == nil {
			return nil
		}
		return fanOut(ctx, set.handlers, e, mode, b.logger)
	}
}

// Publish publishes ev on b. Calls to it are how the generator discovers
// event types that have no subscriber in the scanned packages.
func Publish[E any](ctx context.Context, b *Bus, ev E, mode WaitMode) error {
	return b.Publish(ctx, ev, mode)
}

func fanOut[E any](ctx context.Context, handlers []Handler[E], ev E, mode WaitMode, logger *slog.Logger) error {
	switch len(handlers) {
	case 0:
		return nil
	case 1:
		if mode != WaitForNone {
			return handlers[0].Handle(ctx, ev)
		}
	}

	switch mode {
	case WaitForAny:
		done := make(chan error, len(handlers))
		for _, h := range handlers {
			go func() { done <- h.Handle(ctx, ev) }()
		}
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	case WaitForNone:
		detached := context.WithoutCancel(ctx)
		for _, h := range handlers {
			go func() {
				if err := h.Handle(detached, ev); err != nil {
					logger.Error("event subscriber failed", "event", metadata.TypeName(reflect.TypeFor[E]()), "error", err)
				}
			}()
		}
		return nil
	default:
		var g errgroup.Group
		for _, h := range handlers {
			g.Go(func() error { return h.Handle(ctx, ev) })
		}
		return g.Wait()
	}
}
