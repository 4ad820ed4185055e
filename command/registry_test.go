package command_test

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Alia5/aotkit/aoterr"
	"github.com/Alia5/aotkit/command"
	htesting "github.com/Alia5/aotkit/internal/testing"
)

type Ping struct{ Msg string }

type PingHandler struct{}

func (h *PingHandler) Execute(_ context.Context, p Ping) (string, error) {
	return "pong: " + p.Msg, nil
}

type Other struct{}

type OtherHandler struct{}

func (h *OtherHandler) Execute(_ context.Context, _ Other) (int, error) { return 1, nil }

type Box[T any] struct{ Value T }

type BoxHandler[T any] struct{}

func (h *BoxHandler[T]) Execute(_ context.Context, b Box[T]) (T, error) { return b.Value, nil }

func newPingFactory() command.Handler[Ping, string] { return new(PingHandler) }

func TestMiddlewareRunsInRegistrationOrder(t *testing.T) {
	log := &htesting.CallLog{}
	r := command.NewRegistry(command.Options{
		Strict: true,
		Middleware: []command.MiddlewareFactory{
			htesting.RecordingMiddleware(log, "first", false),
			htesting.RecordingMiddleware(log, "second", false),
		},
	})
	command.RegisterFake[Ping, string](r, htesting.CreateFakeHandler[Ping, string](t, log, "handler", "ok", nil))

	res, err := r.Execute(context.Background(), Ping{})
	require.NoError(t, err)
	assert.Equal(t, "ok", res)
	assert.Equal(t, []string{"first", "second", "handler"}, log.Calls())
}

func TestMiddlewareCanShortCircuit(t *testing.T) {
	log := &htesting.CallLog{}
	r := command.NewRegistry(command.Options{
		Middleware: []command.MiddlewareFactory{
			htesting.RecordingMiddleware(log, "first", false),
			htesting.RecordingMiddleware(log, "stop", true),
			htesting.RecordingMiddleware(log, "never", false),
		},
	})
	command.RegisterFake[Ping, string](r, htesting.CreateFakeHandler[Ping, string](t, log, "handler", "ok", nil))

	res, err := r.Execute(context.Background(), Ping{})
	require.NoError(t, err)
	assert.Nil(t, res)
	assert.Equal(t, []string{"first", "stop"}, log.Calls())
}

func TestMiddlewareCanRerunHandler(t *testing.T) {
	log := &htesting.CallLog{}
	attempts := 0
	retry := func() command.Middleware {
		return command.MiddlewareFunc(func(ctx context.Context, _ any, next command.Next) (any, error) {
			attempts++
			if _, err := next(ctx); err != nil {
				return nil, err
			}
			return next(ctx)
		})
	}
	r := command.NewRegistry(command.Options{
		Strict:     true,
		Middleware: []command.MiddlewareFactory{retry},
	})
	command.RegisterFake[Ping, string](r, htesting.CreateFakeHandler[Ping, string](t, log, "handler", "ok", nil))

	res, err := r.Execute(context.Background(), Ping{})
	require.NoError(t, err)
	assert.Equal(t, "ok", res)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, []string{"handler", "handler"}, log.Calls())
}

func TestHandlerErrorsPassThrough(t *testing.T) {
	boom := errors.New("boom")
	r := command.NewRegistry(command.Options{Strict: true})
	command.RegisterFake[Ping, string](r, htesting.CreateFakeHandler[Ping, string](t, nil, "", "", boom))

	_, err := r.Execute(context.Background(), Ping{})
	assert.Same(t, boom, err)
}

func TestGeneratedRegistrationInStrictMode(t *testing.T) {
	r := command.NewRegistry(command.Options{Strict: true})
	require.True(t, command.Register[Ping, string](r, reflect.TypeFor[*PingHandler](), newPingFactory))
	assert.False(t, command.Register[Ping, string](r, reflect.TypeFor[*PingHandler](), newPingFactory))

	got, err := command.Execute[string](context.Background(), r, Ping{Msg: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "pong: hi", got)
	assert.Equal(t, []string{"github.com/Alia5/aotkit/command_test.Ping"}, r.Commands())
}

func TestDiscoveredOnlyRegistration(t *testing.T) {
	t.Run("non-strict falls back to reflection", func(t *testing.T) {
		r := command.NewRegistry(command.Options{})
		r.RegisterType(reflect.TypeFor[Ping](), reflect.TypeFor[*PingHandler]())

		got, err := command.Execute[string](context.Background(), r, Ping{Msg: "x"})
		require.NoError(t, err)
		assert.Equal(t, "pong: x", got)

		def, ok := r.Lookup(reflect.TypeFor[Ping]())
		require.True(t, ok)
		first := def.Executor()
		require.NotNil(t, first)
		_, err = r.Execute(context.Background(), Ping{})
		require.NoError(t, err)
		assert.Equal(t, first, def.Executor(), "the executor is built once")
	})

	t.Run("strict fails with a configuration error", func(t *testing.T) {
		r := command.NewRegistry(command.Options{Strict: true})
		r.RegisterType(reflect.TypeFor[Ping](), reflect.TypeFor[*PingHandler]())

		_, err := r.Execute(context.Background(), Ping{})
		var ce *aoterr.ConfigError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "github.com/Alia5/aotkit/command_test.Ping", ce.Type)
	})
}

func TestMismatchedHandler(t *testing.T) {
	r := command.NewRegistry(command.Options{})
	r.RegisterType(reflect.TypeFor[Ping](), reflect.TypeFor[*OtherHandler]())

	_, err := r.Execute(context.Background(), Ping{})
	var tm *aoterr.TypeMismatchError
	require.ErrorAs(t, err, &tm)
	assert.Contains(t, tm.Handler, "OtherHandler")
}

func TestUnregisteredCommand(t *testing.T) {
	r := command.NewRegistry(command.Options{})
	_, err := r.Execute(context.Background(), Other{})
	assert.ErrorIs(t, err, aoterr.ErrNotRegistered)

	assert.False(t, aoterr.IsConfigError(err))

	_, err = r.Execute(context.Background(), nil)
	assert.Error(t, err)

	strict := command.NewRegistry(command.Options{Strict: true})
	_, err = strict.Execute(context.Background(), Other{})
	require.Error(t, err)
	assert.True(t, aoterr.IsConfigError(err))
	assert.ErrorIs(t, err, aoterr.ErrNotRegistered)
	assert.Contains(t, err.Error(), "Other")
	assert.Contains(t, err.Error(), "aotkit generate")
}

func TestRegisterFakeRespectsTestMode(t *testing.T) {
	fake := htesting.CreateFakeHandler[Ping, string](t, nil, "", "fake", nil)

	r := command.NewRegistry(command.Options{TestMode: true})
	command.Register[Ping, string](r, reflect.TypeFor[*PingHandler](), newPingFactory)
	assert.True(t, command.RegisterFake[Ping, string](r, fake))
	got, err := command.Execute[string](context.Background(), r, Ping{})
	require.NoError(t, err)
	assert.Equal(t, "fake", got)

	r = command.NewRegistry(command.Options{})
	command.Register[Ping, string](r, reflect.TypeFor[*PingHandler](), newPingFactory)
	assert.False(t, command.RegisterFake[Ping, string](r, fake))
	got, err = command.Execute[string](context.Background(), r, Ping{})
	require.NoError(t, err)
	assert.Equal(t, "pong: ", got)
}

func TestServicesConstructHandlers(t *testing.T) {
	services := command.NewServiceMap()
	calls := 0
	command.Provide(services, func() (*PingHandler, error) {
		calls++
		return &PingHandler{}, nil
	})

	r := command.NewRegistry(command.Options{Strict: true, Services: services})
	command.Register[Ping, string](r, reflect.TypeFor[*PingHandler](), nil)
	_, err := r.Execute(context.Background(), Ping{})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	r = command.NewRegistry(command.Options{Strict: true})
	command.Register[Ping, string](r, reflect.TypeFor[*PingHandler](), nil)
	_, err = r.Execute(context.Background(), Ping{})
	assert.True(t, aoterr.IsConfigError(err))

	failing := command.NewServiceMap()
	command.Provide(failing, func() (*PingHandler, error) { return nil, errors.New("no db") })
	r = command.NewRegistry(command.Options{Services: failing})
	command.Register[Ping, string](r, reflect.TypeFor[*PingHandler](), nil)
	_, err = r.Execute(context.Background(), Ping{})
	assert.ErrorContains(t, err, "no db")
}

func boxFamily() command.OpenDefinition {
	return command.OpenDefinition{
		Origin:        "github.com/Alia5/aotkit/command_test.Box",
		HandlerOrigin: "github.com/Alia5/aotkit/command_test.BoxHandler",
		Instantiate: func(t reflect.Type) (reflect.Type, bool) {
			switch t {
			case reflect.TypeFor[Box[int]]():
				return reflect.TypeFor[*BoxHandler[int]](), true
			}
			return nil, false
		},
	}
}

func TestOpenGenericCommands(t *testing.T) {
	t.Run("non-strict binds generated instantiations", func(t *testing.T) {
		r := command.NewRegistry(command.Options{})
		require.True(t, r.RegisterOpen(boxFamily()))
		assert.False(t, r.RegisterOpen(boxFamily()))

		got, err := command.Execute[int](context.Background(), r, Box[int]{Value: 7})
		require.NoError(t, err)
		assert.Equal(t, 7, got)

		_, err = r.Execute(context.Background(), Box[string]{})
		assert.True(t, aoterr.IsConfigError(err))
	})

	t.Run("strict refuses run time binding", func(t *testing.T) {
		r := command.NewRegistry(command.Options{Strict: true})
		r.RegisterOpen(boxFamily())
		_, err := r.Execute(context.Background(), Box[int]{Value: 7})
		assert.True(t, aoterr.IsConfigError(err))
	})

	t.Run("strict uses closed registrations", func(t *testing.T) {
		r := command.NewRegistry(command.Options{Strict: true})
		r.RegisterOpen(boxFamily())
		command.Register[Box[int], int](r, reflect.TypeFor[*BoxHandler[int]](), func() command.Handler[Box[int], int] {
			return new(BoxHandler[int])
		})
		got, err := command.Execute[int](context.Background(), r, Box[int]{Value: 3})
		require.NoError(t, err)
		assert.Equal(t, 3, got)
	})
}

func TestExecuteResultTypeMismatch(t *testing.T) {
	r := command.NewRegistry(command.Options{})
	command.Register[Ping, string](r, reflect.TypeFor[*PingHandler](), newPingFactory)
	_, err := command.Execute[int](context.Background(), r, Ping{})
	assert.Error(t, err)
}

func TestConcurrentDispatch(t *testing.T) {
	r := command.NewRegistry(command.Options{})
	r.RegisterType(reflect.TypeFor[Ping](), reflect.TypeFor[*PingHandler]())
	r.RegisterOpen(boxFamily())

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Execute(context.Background(), Ping{})
			assert.NoError(t, err)
			_, err = r.Execute(context.Background(), Box[int]{Value: i})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

func TestDispatchSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	r := command.NewRegistry(command.Options{TracerProvider: tp})
	command.Register[Ping, string](r, reflect.TypeFor[*PingHandler](), newPingFactory)

	_, err := r.Execute(context.Background(), Ping{})
	require.NoError(t, err)
	_, err = r.Execute(context.Background(), Other{})
	require.Error(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "command.Execute", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), attribute.String("aot.command", "github.com/Alia5/aotkit/command_test.Ping"))
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
}

func TestLoggingMiddleware(t *testing.T) {
	r := command.NewRegistry(command.Options{
		Middleware: []command.MiddlewareFactory{command.Logging(nil)},
	})
	command.Register[Ping, string](r, reflect.TypeFor[*PingHandler](), newPingFactory)
	_, err := r.Execute(context.Background(), Ping{})
	require.NoError(t, err)
}
