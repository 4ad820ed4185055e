// Package aot owns the metadata, command and event registries of one process.
//
// A host builds a Runtime once at startup, passes every generated Populate
// function to Runtime.Populate, and then shares the Runtime with request
// handling code:
//
//	rt := aot.New(aot.Options{Strict: true, Logger: logger})
//	rt.Populate(orders.Populate, billing.Populate)
package aot

import (
	"log/slog"
	"reflect"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/Alia5/aotkit/command"
	"github.com/Alia5/aotkit/event"
	"github.com/Alia5/aotkit/metadata"
)

// PopulateFunc is the signature of generated population routines.
type PopulateFunc func(rt *Runtime)

// Options configures a Runtime.
type Options struct {
	// Strict turns every reflective fallback into an *aoterr.ConfigError.
	Strict bool
	// TestMode lets command.RegisterFake replace generated registrations.
	TestMode       bool
	Logger         *slog.Logger
	Services       command.Services
	Middleware     []command.MiddlewareFactory
	TracerProvider trace.TracerProvider
}

// Runtime groups the three registries.
type Runtime struct {
	metadata *metadata.Registry
	commands *command.Registry
	events   *event.Bus

	strict bool
	logger *slog.Logger

	mu        sync.Mutex
	populated map[uintptr]bool
}

// New constructs an empty Runtime.
func New(opts Options) *Runtime {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runtime{
		metadata: metadata.NewRegistry(logger),
		commands: command.NewRegistry(command.Options{
			Strict:         opts.Strict,
			TestMode:       opts.TestMode,
			Services:       opts.Services,
			Middleware:     opts.Middleware,
			Logger:         logger,
			TracerProvider: opts.TracerProvider,
		}),
		events: event.NewBus(event.Options{
			Strict:         opts.Strict,
			Logger:         logger,
			TracerProvider: opts.TracerProvider,
		}),
		strict:    opts.Strict,
		logger:    logger,
		populated: make(map[uintptr]bool),
	}
}

// Populate runs each fn once. Calls are serialized; a function that already
// ran is skipped.
func (rt *Runtime) Populate(fns ...PopulateFunc) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for _, fn := range fns {
		if fn == nil {
			continue
		}
		key := reflect.ValueOf(fn).Pointer()
		if rt.populated[key] {
			continue
		}
		fn(rt)
		rt.populated[key] = true
	}
	rt.logger.Info("aot runtime populated",
		"types", rt.metadata.Len(),
		"commands", len(rt.commands.Commands()),
		"strict", rt.strict)
}

// Metadata returns the metadata registry.
func (rt *Runtime) Metadata() *metadata.Registry { return rt.metadata }

// Commands returns the command registry.
func (rt *Runtime) Commands() *command.Registry { return rt.commands }

// Events returns the event bus.
func (rt *Runtime) Events() *event.Bus { return rt.events }

// Strict reports whether reflective fallbacks are disabled.
func (rt *Runtime) Strict() bool { return rt.strict }

// Logger returns the runtime's logger.
func (rt *Runtime) Logger() *slog.Logger { return rt.logger }
