package action_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/monoco-dev/fabric/pkg/action"
	"github.com/monoco-dev/fabric/pkg/eventbus"
)

func TestSendNotificationAction_FileModeAppendsTemplatedMessage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notifications.log")

	a := &action.SendNotificationAction{
		Mode:            action.NotifyFile,
		MessageTemplate: "issue {issue_id} moved to {new_stage}",
		FilePath:        path,
	}

	event := eventbus.Event{Payload: map[string]any{"issue_id": "ISSUE-7", "new_stage": "doing"}}

	res, err := a.Execute(context.Background(), event)
	require.NoError(t, err)
	require.True(t, res.Success)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "issue ISSUE-7 moved to doing")
}

func TestSendNotificationAction_WebhookSuccessIffStatusBelow400(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := &action.SendNotificationAction{
		Mode:            action.NotifyWebhook,
		MessageTemplate: "hello",
		WebhookURL:      srv.URL,
	}

	res, err := a.Execute(context.Background(), eventbus.Event{})
	require.NoError(t, err)
	require.False(t, res.Success)
}

func TestSendNotificationAction_CanExecuteRequiresTarget(t *testing.T) {
	a := &action.SendNotificationAction{Mode: action.NotifyWebhook}

	ok, err := a.CanExecute(context.Background(), eventbus.Event{})
	require.NoError(t, err)
	require.False(t, ok)
}
