package courier_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/monoco-dev/fabric/pkg/courier"
)

func TestDaemon_InitializeCreatesMailboxLayout(t *testing.T) {
	root := t.TempDir()

	d := courier.NewDaemon(courier.DaemonConfig{ProjectRoot: root, Host: "localhost", Port: 0})
	require.NoError(t, d.Initialize())

	for _, sub := range []string{"inbound", "outbound", "archive", ".state", ".deadletter"} {
		require.DirExists(t, filepath.Join(root, ".monoco", "mailbox", sub))
	}

	require.NotNil(t, d.Metrics)
	require.NotNil(t, d.States.Metrics)
	require.NotNil(t, d.API.Metrics)
}

func TestDaemon_RunStopsWhenContextCancelled(t *testing.T) {
	root := t.TempDir()
	os.Setenv("HOME", root)

	d := courier.NewDaemon(courier.DaemonConfig{ProjectRoot: root, Host: "localhost", Port: 0})
	require.NoError(t, d.Initialize())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err := d.Run(ctx)
	require.NoError(t, err)
}
