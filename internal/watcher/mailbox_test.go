package watcher_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/monoco-dev/fabric/internal/watcher"
)

func TestMailboxWatcher_EmitsOnNewInboundMessage(t *testing.T) {
	root := t.TempDir()
	providerDir := filepath.Join(root, "slack")
	require.NoError(t, os.MkdirAll(providerDir, 0o755))

	mw := watcher.NewMailboxWatcher(watcher.WatchConfig{Path: root, PollInterval: 20 * time.Millisecond})

	collector := &eventCollector{}
	mw.RegisterCallback(func(ctx context.Context, e watcher.FileEvent) error {
		collector.add(e)
		return nil
	})

	ctx := context.Background()
	mw.Start(ctx)
	defer mw.Stop()

	content := "---\nid: msg-1\nprovider: slack\nsession:\n  id: sess-1\n---\nhello\n"
	require.NoError(t, os.WriteFile(filepath.Join(providerDir, "msg-1.md"), []byte(content), 0o644))

	waitForCount(t, collector, 1)

	events := collector.snapshot()
	require.Equal(t, "slack", events[0].Metadata["provider"])
	require.Equal(t, "msg-1", events[0].Metadata["message_id"])
	require.Equal(t, "sess-1", events[0].Metadata["session_id"])
	require.Equal(t, "mailbox.inbound_received", watcher.MailboxEventType(events[0]))
}
