package state_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/monoco-dev/fabric/internal/clock"
	"github.com/monoco-dev/fabric/pkg/courier/state"
	"github.com/monoco-dev/fabric/pkg/mailbox"
	"github.com/monoco-dev/fabric/pkg/metrics"
)

func TestMessageStateManager_CompleteArchivesMessage(t *testing.T) {
	root := t.TempDir()
	store := mailbox.New(root)

	_, err := store.CreateInboundMessage(mailbox.Message{ID: "msg-1", Provider: "slack"}, time.Now())
	require.NoError(t, err)

	locks := state.NewLockManager(filepath.Join(root, ".state", "locks.json"), clock.NewFake(time.Now()))
	mgr := state.NewMessageStateManager(locks, store)
	require.NoError(t, mgr.Initialize())

	_, err = locks.Claim("msg-1", "agent-a", time.Minute)
	require.NoError(t, err)

	path, err := mgr.Complete("msg-1", "agent-a")
	require.NoError(t, err)
	require.Contains(t, path, "archive")
}

func TestMessageStateManager_CompleteReportsMetrics(t *testing.T) {
	root := t.TempDir()
	store := mailbox.New(root)

	_, err := store.CreateInboundMessage(mailbox.Message{ID: "msg-1", Provider: "slack"}, time.Now())
	require.NoError(t, err)

	locks := state.NewLockManager(filepath.Join(root, ".state", "locks.json"), clock.NewFake(time.Now()))
	mgr := state.NewMessageStateManager(locks, store)
	m := metrics.New()
	mgr.WithMetrics(m)
	require.NoError(t, mgr.Initialize())

	_, err = locks.Claim("msg-1", "agent-a", time.Minute)
	require.NoError(t, err)

	_, err = mgr.Complete("msg-1", "agent-a")
	require.NoError(t, err)

	require.Equal(t, float64(1), testutil.ToFloat64(m.CourierMessages.WithLabelValues("completed")))
}

func TestMessageStateManager_FailExhaustedMovesToDeadletter(t *testing.T) {
	root := t.TempDir()
	store := mailbox.New(root)

	_, err := store.CreateInboundMessage(mailbox.Message{ID: "msg-1", Provider: "slack"}, time.Now())
	require.NoError(t, err)

	locks := state.NewLockManager(filepath.Join(root, ".state", "locks.json"), clock.NewFake(time.Now()))
	mgr := state.NewMessageStateManager(locks, store)
	require.NoError(t, mgr.Initialize())

	for i := 0; i < state.MaxRetryAttempts; i++ {
		_, err := locks.Claim("msg-1", "agent-a", time.Minute)
		require.NoError(t, err)

		_, _, deadletterPath, err := mgr.Fail("msg-1", "agent-a", "boom", true)
		require.NoError(t, err)

		if i == state.MaxRetryAttempts-1 {
			require.Contains(t, deadletterPath, ".deadletter")
		} else {
			require.Empty(t, deadletterPath)
		}
	}
}
