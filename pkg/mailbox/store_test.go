package mailbox_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/monoco-dev/fabric/pkg/mailbox"
)

func TestStore_CreateAndListInbound(t *testing.T) {
	store := mailbox.New(t.TempDir())
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	_, err := store.CreateInboundMessage(mailbox.Message{
		ID:        "msg-1",
		Provider:  "slack",
		SessionID: "sess-1",
		Timestamp: now,
		Body:      "hello",
	}, now)
	require.NoError(t, err)

	messages, err := store.ListInbound("")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Equal(t, "msg-1", messages[0].ID)
	require.Equal(t, "slack", messages[0].Provider)
	require.Equal(t, "sess-1", messages[0].SessionID)
}

func TestStore_ListInboundSortsNewestFirst(t *testing.T) {
	store := mailbox.New(t.TempDir())

	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	_, err := store.CreateInboundMessage(mailbox.Message{ID: "a", Provider: "slack", Timestamp: older}, older)
	require.NoError(t, err)
	_, err = store.CreateInboundMessage(mailbox.Message{ID: "b", Provider: "slack", Timestamp: newer}, newer)
	require.NoError(t, err)

	messages, err := store.ListInbound("slack")
	require.NoError(t, err)
	require.Len(t, messages, 2)
	require.Equal(t, "b", messages[0].ID)
	require.Equal(t, "a", messages[1].ID)
}

func TestStore_FindByIDSearchesInboundOutboundArchive(t *testing.T) {
	store := mailbox.New(t.TempDir())
	now := time.Now()

	_, err := store.CreateInboundMessage(mailbox.Message{ID: "msg-1", Provider: "slack"}, now)
	require.NoError(t, err)

	path, err := store.FindByID("msg-1")
	require.NoError(t, err)
	require.FileExists(t, path)

	_, err = store.FindByID("does-not-exist")
	require.Error(t, err)
}

func TestStore_ArchiveMovesFileToArchiveProviderDir(t *testing.T) {
	root := t.TempDir()
	store := mailbox.New(root)
	now := time.Now()

	_, err := store.CreateInboundMessage(mailbox.Message{ID: "msg-1", Provider: "slack"}, now)
	require.NoError(t, err)

	dest, err := store.Archive("msg-1")
	require.NoError(t, err)
	require.Contains(t, dest, filepath.Join("archive", "slack"))

	_, statErr := os.Stat(dest)
	require.NoError(t, statErr)

	found, err := store.FindByID("msg-1")
	require.NoError(t, err)
	require.Equal(t, dest, found)
}

func TestStore_MoveToDeadletter(t *testing.T) {
	root := t.TempDir()
	store := mailbox.New(root)
	now := time.Now()

	_, err := store.CreateInboundMessage(mailbox.Message{ID: "msg-1", Provider: "slack"}, now)
	require.NoError(t, err)

	dest, err := store.MoveToDeadletter("msg-1")
	require.NoError(t, err)
	require.Contains(t, dest, filepath.Join(".deadletter", "slack"))
}

func TestStore_CreateOutboundDraft(t *testing.T) {
	store := mailbox.New(t.TempDir())
	now := time.Now()

	path, err := store.CreateOutboundDraft(mailbox.Draft{Provider: "slack", ContentText: "reply text"}, now)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "reply text")
	require.Contains(t, string(data), "provider: slack")
}
