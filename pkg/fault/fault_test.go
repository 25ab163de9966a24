package fault_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monoco-dev/fabric/pkg/fault"
)

func TestNew(t *testing.T) {
	assert.NotNil(t, fault.New(false))
	assert.NotNil(t, fault.New(true))
}

func TestBus_FailFast(t *testing.T) {
	table := []struct {
		name           string
		failFast       bool
		first          error
		second         error
		expectFailure  assert.ErrorAssertionFunc
		expectRecovLen int
	}{
		{
			name:           "no errors",
			expectFailure:  assert.NoError,
			expectRecovLen: 0,
		},
		{
			name:           "single recoverable, not failFast",
			first:          assert.AnError,
			expectFailure:  assert.NoError,
			expectRecovLen: 1,
		},
		{
			name:           "single recoverable, failFast promotes it",
			failFast:       true,
			first:          assert.AnError,
			expectFailure:  assert.Error,
			expectRecovLen: 1,
		},
		{
			name:           "two recoverable, failFast promotes only the first",
			failFast:       true,
			first:          assert.AnError,
			second:         assert.AnError,
			expectFailure:  assert.Error,
			expectRecovLen: 2,
		},
	}

	for _, test := range table {
		t.Run(test.name, func(t *testing.T) {
			ctx := context.Background()
			b := fault.New(test.failFast)

			b.AddRecoverable(ctx, test.first)
			b.AddRecoverable(ctx, test.second)

			test.expectFailure(t, b.Failure())
			assert.Len(t, b.Recovered(), test.expectRecovLen)
		})
	}
}

func TestBus_AddRecoverable_NilIsNoop(t *testing.T) {
	b := fault.New(true)
	b.AddRecoverable(context.Background(), nil)

	assert.NoError(t, b.Failure())
	assert.Empty(t, b.Recovered())
}

func TestBus_Fail_DoesNotOverwrite(t *testing.T) {
	b := fault.New(false)

	first := assert.AnError
	b.Fail(first)
	b.Fail(assert.AnError)

	require.ErrorIs(t, b.Failure(), first)
	assert.Len(t, b.Recovered(), 1)
}

func TestLocalBus_ScopesFailureToCaller(t *testing.T) {
	b := fault.New(true)
	local := b.Local()

	ctx := context.Background()
	local.AddRecoverable(ctx, assert.AnError)

	require.Error(t, local.Failure())
	require.Error(t, b.Failure())
}

func TestBus_Errors_Snapshot(t *testing.T) {
	b := fault.New(false)
	ctx := context.Background()

	b.AddRecoverable(ctx, assert.AnError)
	b.AddRecoverable(ctx, assert.AnError)

	snap := b.Errors()
	assert.Nil(t, snap.Failure)
	assert.Len(t, snap.Recovered, 2)
	assert.False(t, snap.FailFast)
}
