package command

import (
	"context"
	"fmt"
	"reflect"

	"github.com/Alia5/aotkit/aoterr"
	"github.com/Alia5/aotkit/metadata"
)

// Executor runs one command through a middleware chain and its handler.
// handler runs each time the chain reaches its end: never when a middleware
// short-circuits, and again when a middleware calls next more than once.
type Executor interface {
	Execute(ctx context.Context, cmd any, handler func() (any, error), chain []Middleware) (any, error)
}

type typedExecutor[C any, R any] struct{}

// NewExecutor returns the closed executor for commands C producing R. The
// handler is invoked through Handler[C, R] without reflection.
func NewExecutor[C any, R any]() Executor {
	return typedExecutor[C, R]{}
}

func (typedExecutor[C, R]) Execute(ctx context.Context, cmd any, handler func() (any, error), chain []Middleware) (any, error) {
	c, ok := cmd.(C)
	if !ok {
		return nil, fmt.Errorf("executor for %s received %T", metadata.TypeName(reflect.TypeFor[C]()), cmd)
	}
	return run(ctx, cmd, chain, func(ctx context.Context) (any, error) {
		h, err := handler()
		if err != nil {
			return nil, err
		}
		typed, ok := h.(Handler[C, R])
		if !ok {
			return nil, &aoterr.TypeMismatchError{
				Command: metadata.TypeName(reflect.TypeFor[C]()),
				Handler: fmt.Sprintf("%T", h),
			}
		}
		return typed.Execute(ctx, c)
	})
}

// reflectExecutor calls the handler's Execute method through reflect.Value.
// It is only built when strict mode is off.
type reflectExecutor struct{}

func (reflectExecutor) Execute(ctx context.Context, cmd any, handler func() (any, error), chain []Middleware) (any, error) {
	return run(ctx, cmd, chain, func(ctx context.Context) (any, error) {
		h, err := handler()
		if err != nil {
			return nil, err
		}
		m := reflect.ValueOf(h).MethodByName("Execute")
		if !m.IsValid() {
			return nil, &aoterr.TypeMismatchError{
				Command: metadata.TypeName(reflect.TypeOf(cmd)),
				Handler: fmt.Sprintf("%T", h),
				Detail:  "missing Execute method",
			}
		}
		out := m.Call([]reflect.Value{reflect.ValueOf(ctx), reflect.ValueOf(cmd)})
		err, _ = out[1].Interface().(error)
		return out[0].Interface(), err
	})
}

// run composes the chain right to left so that chain[0] runs first and the
// terminal step runs last.
func run(ctx context.Context, cmd any, chain []Middleware, terminal Next) (any, error) {
	var step func(i int) Next
	step = func(i int) Next {
		if i == len(chain) {
			return terminal
		}
		return func(ctx context.Context) (any, error) {
			return chain[i].Execute(ctx, cmd, step(i+1))
		}
	}
	return step(0)(ctx)
}

var (
	contextType = reflect.TypeFor[context.Context]()
	errorType   = reflect.TypeFor[error]()
)

// verifyHandler checks that handlerType has
// Execute(context.Context, cmdType) (R, error).
func verifyHandler(cmdType, handlerType reflect.Type) error {
	mismatch := func(detail string) error {
		return &aoterr.TypeMismatchError{
			Command: metadata.TypeName(cmdType),
			Handler: metadata.TypeName(handlerType),
			Detail:  detail,
		}
	}
	if handlerType == nil {
		return mismatch("no handler type")
	}
	m, ok := handlerType.MethodByName("Execute")
	if !ok && handlerType.Kind() != reflect.Pointer {
		m, ok = reflect.PointerTo(handlerType).MethodByName("Execute")
	}
	if !ok {
		return mismatch("missing Execute method")
	}
	// m.Type includes the receiver.
	mt := m.Type
	if mt.NumIn() != 3 || mt.NumOut() != 2 {
		return mismatch(fmt.Sprintf("Execute has signature %s", mt))
	}
	if mt.In(1) != contextType {
		return mismatch("first Execute parameter must be context.Context")
	}
	if mt.In(2) != cmdType {
		return mismatch(fmt.Sprintf("Execute accepts %s", metadata.TypeName(mt.In(2))))
	}
	if mt.Out(1) != errorType {
		return mismatch("second Execute result must be error")
	}
	return nil
}
