package action

import (
	"context"
	"fmt"
	"sync"

	"github.com/monoco-dev/fabric/pkg/eventbus"
)

// RoleTemplate describes the default prompt shape and engine for an
// agent role.
type RoleTemplate struct {
	Description  string
	Trigger      eventbus.EventType
	Goal         string
	SystemPrompt string
	Engine       string
}

// RoleTemplates is the built-in role -> template lookup, seeded from
// the four standard roles. Callers may register additional custom
// roles by adding entries.
var RoleTemplates = map[string]RoleTemplate{
	"Architect": {
		Description:  "System Architect",
		Trigger:      eventbus.EventMemoThreshold,
		Goal:         "Process memo inbox and create issues.",
		SystemPrompt: "You are the Architect. Process the Memo inbox.",
		Engine:       "default",
	},
	"Engineer": {
		Description:  "Software Engineer",
		Trigger:      eventbus.EventIssueStageChanged,
		Goal:         "Implement feature requirements.",
		SystemPrompt: "You are a Software Engineer. Read the issue and implement requirements.",
		Engine:       "default",
	},
	"Reviewer": {
		Description:  "Code Reviewer",
		Trigger:      eventbus.EventPRCreated,
		Goal:         "Review code changes thoroughly.",
		SystemPrompt: "You are a Code Reviewer. Review the code changes thoroughly.",
		Engine:       "default",
	},
	"Coroner": {
		Description:  "Session Autopsy",
		Trigger:      eventbus.EventSessionFailed,
		Goal:         "Analyze failed session and create incident report.",
		SystemPrompt: "You are the Coroner. Analyze the failed session.",
		Engine:       "default",
	},
}

func roleTemplateFor(role string) RoleTemplate {
	if t, ok := RoleTemplates[role]; ok {
		return t
	}

	return RoleTemplates["Engineer"]
}

// SpawnAgentAction schedules an agent session for role, subject to the
// Scheduler reporting spare capacity.
type SpawnAgentAction struct {
	Role              string
	Scheduler         Scheduler
	CustomRoleEngine  string
	DefaultTimeoutSec int

	mu      sync.Mutex
	spawned []string
}

func NewSpawnAgentAction(role string, scheduler Scheduler) *SpawnAgentAction {
	return &SpawnAgentAction{Role: role, Scheduler: scheduler}
}

func (a *SpawnAgentAction) Name() string { return fmt.Sprintf("SpawnAgentAction(%s)", a.Role) }

func (a *SpawnAgentAction) CanExecute(ctx context.Context, event eventbus.Event) (bool, error) {
	stats := a.Scheduler.Stats()
	maxConcurrent := stats.MaxConcurrent

	if maxConcurrent == 0 {
		maxConcurrent = 5
	}

	return stats.ActiveTasks < maxConcurrent, nil
}

func (a *SpawnAgentAction) engine() string {
	if a.CustomRoleEngine != "" {
		return a.CustomRoleEngine
	}

	return roleTemplateFor(a.Role).Engine
}

func (a *SpawnAgentAction) buildPrompt(issueID, issueTitle string) string {
	t := roleTemplateFor(a.Role)

	return fmt.Sprintf("You are a %s.\n\nIssue: %s - %s\n\nGoal: %s\n\n%s\n",
		t.Description, issueID, issueTitle, t.Goal, t.SystemPrompt)
}

func (a *SpawnAgentAction) Execute(ctx context.Context, event eventbus.Event) (Result, error) {
	issueID := event.GetString("issue_id")
	if issueID == "" {
		issueID = "unknown"
	}

	issueTitle := event.GetString("issue_title")
	if issueTitle == "" {
		issueTitle = "Unknown"
	}

	timeout := a.DefaultTimeoutSec
	if timeout == 0 {
		timeout = 1800
	}

	task := Task{
		TaskID:   fmt.Sprintf("%s-%s-%d", toLowerASCII(a.Role), issueID, event.Timestamp.UnixNano()),
		RoleName: a.Role,
		IssueID:  issueID,
		Prompt:   a.buildPrompt(issueID, issueTitle),
		Engine:   a.engine(),
		Timeout:  timeout,
		Metadata: map[string]any{"trigger": string(event.Type), "issue_title": issueTitle},
	}

	sessionID, err := a.Scheduler.Schedule(ctx, task)
	if err != nil {
		return FailureResult(err.Error(), map[string]any{"issue_id": issueID, "role": a.Role}), nil
	}

	a.mu.Lock()
	a.spawned = append(a.spawned, sessionID)
	a.mu.Unlock()

	return SuccessResult(
		map[string]any{"session_id": sessionID, "issue_id": issueID, "role": a.Role},
		map[string]any{"task_id": task.TaskID},
	), nil
}

// SpawnedSessions returns every session id this action has scheduled
// so far.
func (a *SpawnAgentAction) SpawnedSessions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]string, len(a.spawned))
	copy(out, a.spawned)

	return out
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}

	return string(b)
}

// SpawnArchitectAction only fires on a memo-threshold-crossing event.
type SpawnArchitectAction struct{ SpawnAgentAction }

func NewSpawnArchitectAction(scheduler Scheduler) *SpawnArchitectAction {
	return &SpawnArchitectAction{SpawnAgentAction{Role: "Architect", Scheduler: scheduler}}
}

func (a *SpawnArchitectAction) CanExecute(ctx context.Context, event eventbus.Event) (bool, error) {
	if event.Type != eventbus.EventMemoThreshold {
		return false, nil
	}

	return a.SpawnAgentAction.CanExecute(ctx, event)
}

// SpawnEngineerAction only fires when an issue transitions into the
// "doing" stage while still open.
type SpawnEngineerAction struct{ SpawnAgentAction }

func NewSpawnEngineerAction(scheduler Scheduler) *SpawnEngineerAction {
	return &SpawnEngineerAction{SpawnAgentAction{Role: "Engineer", Scheduler: scheduler}}
}

func (a *SpawnEngineerAction) CanExecute(ctx context.Context, event eventbus.Event) (bool, error) {
	if event.Type != eventbus.EventIssueStageChanged {
		return false, nil
	}

	if event.GetString("new_stage") != "doing" || event.GetString("issue_status") != "open" {
		return false, nil
	}

	return a.SpawnAgentAction.CanExecute(ctx, event)
}

// SpawnReviewerAction only fires on a pr.created event.
type SpawnReviewerAction struct{ SpawnAgentAction }

func NewSpawnReviewerAction(scheduler Scheduler) *SpawnReviewerAction {
	return &SpawnReviewerAction{SpawnAgentAction{Role: "Reviewer", Scheduler: scheduler}}
}

func (a *SpawnReviewerAction) CanExecute(ctx context.Context, event eventbus.Event) (bool, error) {
	if event.Type != eventbus.EventPRCreated {
		return false, nil
	}

	return a.SpawnAgentAction.CanExecute(ctx, event)
}
