package action_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/monoco-dev/fabric/pkg/action"
	"github.com/monoco-dev/fabric/pkg/eventbus"
)

type fakeScheduler struct {
	active        int
	max           int
	scheduledWith []action.Task
	sessionID     string
	err           error
}

func (s *fakeScheduler) Schedule(ctx context.Context, task action.Task) (string, error) {
	s.scheduledWith = append(s.scheduledWith, task)
	if s.err != nil {
		return "", s.err
	}

	return s.sessionID, nil
}

func (s *fakeScheduler) Stats() action.SchedulerStats {
	return action.SchedulerStats{ActiveTasks: s.active, MaxConcurrent: s.max}
}

func TestSpawnAgentAction_SkipsWhenSchedulerAtCapacity(t *testing.T) {
	sched := &fakeScheduler{active: 5, max: 5}
	a := action.NewSpawnAgentAction("Engineer", sched)

	ok, err := a.CanExecute(context.Background(), eventbus.Event{})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSpawnAgentAction_SchedulesTaskAndRecordsSession(t *testing.T) {
	sched := &fakeScheduler{active: 0, max: 5, sessionID: "sess-123"}
	a := action.NewSpawnAgentAction("Engineer", sched)

	event := eventbus.Event{Payload: map[string]any{"issue_id": "ISSUE-1", "issue_title": "Do thing"}}

	res, err := a.Execute(context.Background(), event)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, "sess-123", res.Output.(map[string]any)["session_id"])
	require.Len(t, sched.scheduledWith, 1)
	require.Equal(t, "Engineer", sched.scheduledWith[0].RoleName)
	require.Contains(t, a.SpawnedSessions(), "sess-123")
}

func TestSpawnEngineerAction_OnlyFiresOnDoingStageOpenIssue(t *testing.T) {
	sched := &fakeScheduler{max: 5}
	a := action.NewSpawnEngineerAction(sched)

	wrongStage := eventbus.Event{
		Type:    eventbus.EventIssueStageChanged,
		Payload: map[string]any{"new_stage": "review", "issue_status": "open"},
	}
	ok, err := a.CanExecute(context.Background(), wrongStage)
	require.NoError(t, err)
	require.False(t, ok)

	rightStage := eventbus.Event{
		Type:    eventbus.EventIssueStageChanged,
		Payload: map[string]any{"new_stage": "doing", "issue_status": "open"},
	}
	ok, err = a.CanExecute(context.Background(), rightStage)
	require.NoError(t, err)
	require.True(t, ok)

	wrongType := eventbus.Event{Type: eventbus.EventIssueCreated}
	ok, err = a.CanExecute(context.Background(), wrongType)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSpawnArchitectAction_OnlyFiresOnMemoThreshold(t *testing.T) {
	sched := &fakeScheduler{max: 5}
	a := action.NewSpawnArchitectAction(sched)

	ok, err := a.CanExecute(context.Background(), eventbus.Event{Type: eventbus.EventMemoThreshold})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = a.CanExecute(context.Background(), eventbus.Event{Type: eventbus.EventMemoCreated})
	require.NoError(t, err)
	require.False(t, ok)
}
