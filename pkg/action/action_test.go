package action_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/monoco-dev/fabric/pkg/action"
	"github.com/monoco-dev/fabric/pkg/eventbus"
)

func TestInvoke_SkipsWhenGuardFalse(t *testing.T) {
	a := &action.ConditionalAction{
		ActionName: "noop",
		Condition:  func(ctx context.Context, e eventbus.Event) (bool, error) { return false, nil },
		Body:       func(ctx context.Context, e eventbus.Event) (any, error) { return nil, nil },
	}

	res := action.Invoke(context.Background(), a, eventbus.Event{}, nil)

	require.True(t, res.Success)
	require.Equal(t, action.StatusSkipped, res.Status)
	require.Equal(t, "Conditions not met", res.Metadata["reason"])
}

func TestInvoke_WrapsExecuteErrorAsFailure(t *testing.T) {
	a := &action.ConditionalAction{
		ActionName: "boom",
		Body: func(ctx context.Context, e eventbus.Event) (any, error) {
			return nil, errors.New("kaboom")
		},
	}

	res := action.Invoke(context.Background(), a, eventbus.Event{}, nil)

	require.False(t, res.Success)
	require.Equal(t, action.StatusFailed, res.Status)
	require.Equal(t, "kaboom", res.Error)
}

func TestInvoke_WrapsPanicAsFailure(t *testing.T) {
	a := &action.ConditionalAction{
		ActionName: "panics",
		Condition:  func(ctx context.Context, e eventbus.Event) (bool, error) { return true, nil },
		Body: func(ctx context.Context, e eventbus.Event) (any, error) {
			panic("surprise")
		},
	}

	res := action.Invoke(context.Background(), a, eventbus.Event{}, nil)

	require.False(t, res.Success)
	require.Equal(t, action.StatusFailed, res.Status)
	require.NotNil(t, res.StartedAt)
}

func TestInvoke_SuccessWrapsNonResultOutput(t *testing.T) {
	a := &action.ConditionalAction{
		ActionName: "echo",
		Condition:  func(ctx context.Context, e eventbus.Event) (bool, error) { return true, nil },
		Body:       func(ctx context.Context, e eventbus.Event) (any, error) { return "hello", nil },
	}

	res := action.Invoke(context.Background(), a, eventbus.Event{}, nil)

	require.True(t, res.Success)
	require.Equal(t, action.StatusSuccess, res.Status)
	require.Equal(t, "hello", res.Output)
}

func TestChain_ShortCircuitsOnFailure(t *testing.T) {
	first := &action.ConditionalAction{
		ActionName: "first",
		Body: func(ctx context.Context, e eventbus.Event) (any, error) {
			return nil, errors.New("first failed")
		},
	}
	second := &action.ConditionalAction{
		ActionName: "second",
		Body:       func(ctx context.Context, e eventbus.Event) (any, error) { return "never runs", nil },
	}

	chain := action.NewChain("test-chain", nil).Add(first).Add(second)
	results := chain.Execute(context.Background(), eventbus.Event{})

	require.Len(t, results, 2)
	require.False(t, results[0].Success)
	require.Equal(t, action.StatusSkipped, results[1].Status)
	require.Equal(t, "Previous action in chain failed", results[1].Metadata["reason"])
}

func TestChain_PassesOutputForwardViaChainContext(t *testing.T) {
	producer := &action.ConditionalAction{
		ActionName: "producer",
		Body:       func(ctx context.Context, e eventbus.Event) (any, error) { return "value-1", nil },
	}
	consumer := &action.ConditionalAction{
		ActionName: "consumer",
		Body: func(ctx context.Context, e eventbus.Event) (any, error) {
			return "consumed", nil
		},
	}

	chain := action.NewChain("forward", nil).Add(producer).Add(consumer)
	results := chain.Execute(context.Background(), eventbus.Event{})

	require.Len(t, results, 2)
	require.True(t, results[0].Success)
	require.True(t, results[1].Success)

	chainCtx, _ := results[1].Metadata["chain_context"].(map[string]any)
	require.Equal(t, "value-1", chainCtx["producer_output"])
}

func TestRegistry_RegisterGetUnregister(t *testing.T) {
	reg := action.NewRegistry()
	a := &action.ConditionalAction{ActionName: "a1"}

	reg.Register(a)
	got, ok := reg.Get("a1")
	require.True(t, ok)
	require.Equal(t, "a1", got.Name())

	reg.Unregister("a1")
	_, ok = reg.Get("a1")
	require.False(t, ok)
}
