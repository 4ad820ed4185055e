package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Alia5/aotkit/aoterr"
	"github.com/Alia5/aotkit/metadata"
)

const tracerName = "github.com/Alia5/aotkit/command"

// Definition binds one command type to its handler.
type Definition struct {
	CommandType reflect.Type
	HandlerType reflect.Type
	// NewHandler constructs a handler without reflection. Generated
	// registrations always set it.
	NewHandler func() any

	handler  any
	executor atomic.Pointer[executorSlot]
}

type executorSlot struct{ exec Executor }

// Executor returns the cached executor, or nil when none was built yet.
func (d *Definition) Executor() Executor {
	if s := d.executor.Load(); s != nil {
		return s.exec
	}
	return nil
}

// cacheExecutor installs e unless another executor won the race, and returns
// the executor that ended up in the slot.
func (d *Definition) cacheExecutor(e Executor) Executor {
	if d.executor.CompareAndSwap(nil, &executorSlot{exec: e}) {
		return e
	}
	return d.executor.Load().exec
}

// OpenDefinition describes a generic command family such as Page[T] handled
// by a generic handler such as PageHandler[T].
//
// Instantiate maps a closed command type to the closed handler type. It is a
// finite switch produced by the generator; go cannot build instantiations at
// run time.
type OpenDefinition struct {
	Origin        string
	HandlerOrigin string
	Instantiate   func(cmd reflect.Type) (reflect.Type, bool)
}

// Options configures a Registry.
type Options struct {
	// Strict forbids every fallback that needs reflection.
	Strict bool
	// TestMode lets RegisterFake replace discovered registrations.
	TestMode bool
	// Services constructs handlers that have no generated factory.
	Services Services
	// Middleware is captured once; the factories run per dispatch, in order.
	Middleware     []MiddlewareFactory
	Logger         *slog.Logger
	TracerProvider trace.TracerProvider
}

// Registry maps command types to handler definitions.
type Registry struct {
	mu   sync.RWMutex
	defs map[reflect.Type]*Definition
	open map[string]*OpenDefinition

	middleware []MiddlewareFactory
	services   Services
	strict     bool
	testMode   bool
	logger     *slog.Logger
	tracer     trace.Tracer
}

// NewRegistry returns an empty registry configured by opts.
func NewRegistry(opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Registry{
		defs:       make(map[reflect.Type]*Definition),
		open:       make(map[string]*OpenDefinition),
		middleware: append([]MiddlewareFactory(nil), opts.Middleware...),
		services:   opts.Services,
		strict:     opts.Strict,
		testMode:   opts.TestMode,
		logger:     logger,
		tracer:     tp.Tracer(tracerName),
	}
}

// Strict reports whether reflective fallbacks are disabled.
func (r *Registry) Strict() bool { return r.strict }

// TestMode reports whether fakes override discovered registrations.
func (r *Registry) TestMode() bool { return r.testMode }

func (r *Registry) add(def *Definition, override bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.CommandType]; exists && !override {
		return false
	}
	r.defs[def.CommandType] = def
	return true
}

// Register installs the generated binding of C to its handler with a pre-built
// executor. It reports false when C is already registered.
func Register[C any, R any](r *Registry, handlerType reflect.Type, newHandler func() Handler[C, R]) bool {
	def := &Definition{
		CommandType: reflect.TypeFor[C](),
		HandlerType: handlerType,
	}
	if newHandler != nil {
		def.NewHandler = func() any { return newHandler() }
	}
	def.cacheExecutor(NewExecutor[C, R]())
	return r.add(def, false)
}

// RegisterType installs a binding discovered without a generated executor.
// Dispatching it needs the reflective executor, so it fails in strict mode.
func (r *Registry) RegisterType(cmdType, handlerType reflect.Type) bool {
	return r.add(&Definition{CommandType: cmdType, HandlerType: handlerType}, false)
}

// RegisterOpen installs a generic command family.
func (r *Registry) RegisterOpen(def OpenDefinition) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.open[def.Origin]; exists {
		return false
	}
	d := def
	r.open[def.Origin] = &d
	return true
}

// RegisterFake binds C to a fixed handler instance, bypassing discovery. In
// test mode it replaces any existing binding; otherwise it only fills a gap.
func RegisterFake[C any, R any](r *Registry, h Handler[C, R]) bool {
	def := &Definition{
		CommandType: reflect.TypeFor[C](),
		HandlerType: reflect.TypeOf(h),
		handler:     h,
	}
	def.cacheExecutor(NewExecutor[C, R]())
	return r.add(def, r.testMode)
}

// Lookup returns the definition registered for t.
func (r *Registry) Lookup(t reflect.Type) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[t]
	return def, ok
}

// Commands returns the names of all registered command types, sorted.
func (r *Registry) Commands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.defs))
	for t := range r.defs {
		out = append(out, metadata.TypeName(t))
	}
	sort.Strings(out)
	return out
}

// Resolve finds the definition and executor for command type t.
func (r *Registry) Resolve(t reflect.Type) (*Definition, Executor, error) {
	name := metadata.TypeName(t)
	def, ok := r.Lookup(t)
	if !ok {
		var err error
		def, err = r.resolveOpen(t)
		if err != nil {
			return nil, nil, err
		}
	}

	exec := def.Executor()
	if exec == nil {
		if r.strict {
			return nil, nil, aoterr.NewConfigError(name, "no pre-generated executor for handler %s", metadata.TypeName(def.HandlerType))
		}
		if err := verifyHandler(t, def.HandlerType); err != nil {
			return nil, nil, err
		}
		r.logger.Warn("command executor built by reflection", "command", name, "handler", metadata.TypeName(def.HandlerType))
		exec = def.cacheExecutor(reflectExecutor{})
	}

	if r.strict && def.handler == nil && def.NewHandler == nil && r.services == nil {
		return nil, nil, aoterr.NewConfigError(name, "no handler factory for %s and no service provider configured", metadata.TypeName(def.HandlerType))
	}
	return def, exec, nil
}

func (r *Registry) resolveOpen(t reflect.Type) (*Definition, error) {
	name := metadata.TypeName(t)
	origin := genericOrigin(t)
	var (
		od *OpenDefinition
		ok bool
	)
	if origin != "" {
		r.mu.RLock()
		od, ok = r.open[origin]
		r.mu.RUnlock()
	}
	if !ok {
		if r.strict {
			ce := aoterr.NewConfigError(name, "no pre-generated registration")
			ce.Err = aoterr.ErrNotRegistered
			return nil, ce
		}
		return nil, fmt.Errorf("command %s: %w", name, aoterr.ErrNotRegistered)
	}
	if r.strict {
		return nil, aoterr.NewConfigError(name, "generic handler %s cannot be bound at run time in strict mode; a closed registration must be generated", od.HandlerOrigin)
	}
	if od.Instantiate == nil {
		return nil, aoterr.NewConfigError(name, "generic family %s has no instantiation table", origin)
	}
	handlerType, ok := od.Instantiate(t)
	if !ok {
		return nil, aoterr.NewConfigError(name, "no instantiation of %s was generated for this command", od.HandlerOrigin)
	}
	if err := verifyHandler(t, handlerType); err != nil {
		return nil, err
	}

	def := &Definition{CommandType: t, HandlerType: handlerType}
	def.cacheExecutor(reflectExecutor{})
	if !r.add(def, false) {
		// Lost the race; use the winner.
		if winner, ok := r.Lookup(t); ok {
			def = winner
		}
	}
	r.logger.Debug("generic command bound", "command", name, "handler", metadata.TypeName(handlerType))
	return def, nil
}

func (r *Registry) handlerFor(def *Definition) (any, error) {
	if def.handler != nil {
		return def.handler, nil
	}
	if def.NewHandler != nil {
		return def.NewHandler(), nil
	}
	if r.services != nil {
		h, err := r.services.Resolve(def.HandlerType)
		if err == nil {
			return h, nil
		}
		if !errors.Is(err, ErrServiceNotFound) {
			return nil, fmt.Errorf("resolve handler %s: %w", metadata.TypeName(def.HandlerType), err)
		}
	}
	if r.strict {
		return nil, aoterr.NewConfigError(metadata.TypeName(def.CommandType), "handler %s could not be constructed", metadata.TypeName(def.HandlerType))
	}
	t := def.HandlerType
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return reflect.New(t).Interface(), nil
}

// Execute dispatches cmd by its exact runtime type. Errors from middleware
// and handlers are returned unchanged.
func (r *Registry) Execute(ctx context.Context, cmd any) (res any, err error) {
	if cmd == nil {
		return nil, errors.New("command is nil")
	}
	t := reflect.TypeOf(cmd)
	name := metadata.TypeName(t)

	ctx, span := r.tracer.Start(ctx, "command.Execute", trace.WithAttributes(attribute.String("aot.command", name)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	def, exec, err := r.Resolve(t)
	if err != nil {
		r.logger.Error("command dispatch failed", "command", name, "error", err)
		return nil, err
	}

	chain := make([]Middleware, 0, len(r.middleware))
	for _, f := range r.middleware {
		chain = append(chain, f())
	}
	return exec.Execute(ctx, cmd, func() (any, error) { return r.handlerFor(def) }, chain)
}

// Execute dispatches cmd and converts the result to R.
func Execute[R any](ctx context.Context, r *Registry, cmd any) (R, error) {
	var zero R
	res, err := r.Execute(ctx, cmd)
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	out, ok := res.(R)
	if !ok {
		return zero, fmt.Errorf("command %T produced %T, not %s", cmd, res, reflect.TypeFor[R]())
	}
	return out, nil
}

// genericOrigin returns "pkg/path.Name" for an instantiated generic type
// "pkg/path.Name[...]", or "" for any other type.
func genericOrigin(t reflect.Type) string {
	name := t.Name()
	i := strings.IndexByte(name, '[')
	if i <= 0 || t.PkgPath() == "" {
		return ""
	}
	return t.PkgPath() + "." + name[:i]
}
