package aot_test

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/aotkit/aot"
	"github.com/Alia5/aotkit/aoterr"
	"github.com/Alia5/aotkit/command"
	"github.com/Alia5/aotkit/event"
	"github.com/Alia5/aotkit/metadata"
)

type Greet struct{ Name string }

type GreetHandler struct{}

func (GreetHandler) Execute(_ context.Context, cmd Greet) (string, error) {
	return "hello " + cmd.Name, nil
}

type Greeted struct{ Name string }

var calls int

func populate(rt *aot.Runtime) {
	calls++
	metadata.Add[Greet](rt.Metadata(), metadata.Entry{Factory: func() any { return new(Greet) }})
	command.Register[Greet, string](rt.Commands(), reflect.TypeFor[GreetHandler](), func() command.Handler[Greet, string] {
		return GreetHandler{}
	})
	pub := event.PublisherFor[Greeted](rt.Events())
	_ = rt.Events().Install("aot_test", func(t reflect.Type) event.PublishFunc {
		if t == reflect.TypeFor[Greeted]() {
			return pub
		}
		return nil
	})
}

func TestPopulateRunsOnce(t *testing.T) {
	calls = 0
	rt := aot.New(aot.Options{Strict: true})
	rt.Populate(populate, nil)
	rt.Populate(populate)
	assert.Equal(t, 1, calls)

	assert.True(t, rt.Strict())
	assert.NotNil(t, rt.Logger())
	assert.Equal(t, 1, rt.Metadata().Len())

	res, err := command.Execute[string](context.Background(), rt.Commands(), Greet{Name: "ada"})
	require.NoError(t, err)
	assert.Equal(t, "hello ada", res)

	var got []string
	event.SubscribeFunc(rt.Events(), func(_ context.Context, ev Greeted) error {
		got = append(got, ev.Name)
		return nil
	})
	require.NoError(t, rt.Events().Publish(context.Background(), Greeted{Name: "ada"}, event.WaitForAll))
	assert.Equal(t, []string{"ada"}, got)
}

func TestStrictRuntimeWithoutPopulate(t *testing.T) {
	rt := aot.New(aot.Options{Strict: true})

	_, err := rt.Commands().Execute(context.Background(), Greet{})
	assert.True(t, aoterr.IsConfigError(err))
	assert.ErrorIs(t, err, aoterr.ErrNotRegistered)

	err = rt.Events().Publish(context.Background(), Greeted{}, event.WaitForAll)
	assert.True(t, aoterr.IsConfigError(err))
}

func TestSeparateRuntimesAreIndependent(t *testing.T) {
	calls = 0
	a := aot.New(aot.Options{})
	b := aot.New(aot.Options{})
	a.Populate(populate)
	b.Populate(populate)
	assert.Equal(t, 2, calls)
}
