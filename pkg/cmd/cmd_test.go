package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type described interface {
	Describe() string
}

type helloCmd struct{ Func }

func (h *helloCmd) Describe() string { return "hello!" }

func newHello(calls *[]string) *helloCmd {
	return &helloCmd{Func{CmdName: "hello", Desc: "says hello", RunFunc: func(context.Context, *Invocation) error {
		*calls = append(*calls, "run")
		return nil
	}}}
}

func tag(name string, calls *[]string) Middleware {
	return func(c Command) Command {
		return Wrap(c, func(ctx context.Context, inv *Invocation) error {
			*calls = append(*calls, name)
			return c.Run(ctx, inv)
		})
	}
}

func TestRegistryAppliesMiddlewareInOrder(t *testing.T) {
	var calls []string
	r := NewRegistry()
	require.NoError(t, r.Register(newHello(&calls), tag("inner", &calls), tag("outer", &calls)))

	c, ok := r.Get("hello")
	require.True(t, ok)
	assert.Equal(t, "hello", c.Name())
	assert.Equal(t, "says hello", c.Description())

	require.NoError(t, c.Run(context.Background(), &Invocation{}))
	assert.Equal(t, []string{"outer", "inner", "run"}, calls)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	var calls []string
	r := NewRegistry()
	require.NoError(t, r.Register(newHello(&calls)))
	assert.Error(t, r.Register(newHello(&calls)))

	_, ok := r.Get("missing")
	assert.False(t, ok)
}

func TestAllIsSorted(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"say", "leave", "voice-status"} {
		require.NoError(t, r.Register(&Func{CmdName: name}))
	}
	var names []string
	for _, c := range r.All() {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{"leave", "say", "voice-status"}, names)
}

func TestRootAndAsSeeThroughWrappers(t *testing.T) {
	var calls []string
	inner := newHello(&calls)
	wrapped := Apply(inner, tag("a", &calls), tag("b", &calls))

	assert.Same(t, inner, Root(wrapped))

	d, ok := As[described](wrapped)
	require.True(t, ok)
	assert.Equal(t, "hello!", d.Describe())

	_, ok = As[interface{ Missing() }](wrapped)
	assert.False(t, ok)
}
