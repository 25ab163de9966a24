package action_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/monoco-dev/fabric/pkg/action"
	"github.com/monoco-dev/fabric/pkg/eventbus"
)

func initRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		require.NoError(t, cmd.Run())
	}

	run("init")
	run("config", "user.email", "bot@example.com")
	run("config", "user.name", "bot")

	return dir
}

func TestGitCommitAction_NoChangesShortCircuits(t *testing.T) {
	dir := initRepo(t)

	a := &action.GitCommitAction{MessageTemplate: "noop", AddAll: true, WorkingDir: dir}

	res, err := a.Execute(context.Background(), eventbus.Event{})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, false, res.Output.(map[string]any)["committed"])
}

func TestGitCommitAction_CommitsWithTemplatedMessage(t *testing.T) {
	dir := initRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file.txt"), []byte("hello"), 0o644))

	a := &action.GitCommitAction{MessageTemplate: "apply changes for {issue_id}", AddAll: true, WorkingDir: dir}
	event := eventbus.Event{Payload: map[string]any{"issue_id": "ISSUE-42"}}

	res, err := a.Execute(context.Background(), event)
	require.NoError(t, err)
	require.True(t, res.Success)

	out := res.Output.(map[string]any)
	require.Equal(t, true, out["committed"])
	require.Equal(t, "apply changes for ISSUE-42", out["message"])
	require.NotEmpty(t, out["commit_hash"])
}

func TestGitPushAction_FailsWithoutRemote(t *testing.T) {
	dir := initRepo(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file.txt"), []byte("hello"), 0o644))

	commit := &action.GitCommitAction{MessageTemplate: "init", AddAll: true, WorkingDir: dir}
	_, err := commit.Execute(context.Background(), eventbus.Event{})
	require.NoError(t, err)

	push := &action.GitPushAction{WorkingDir: dir}
	ok, err := push.CanExecute(context.Background(), eventbus.Event{})
	require.NoError(t, err)
	require.False(t, ok)
}
