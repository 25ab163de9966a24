package action

import "context"

// Task describes one unit of agent work to schedule.
type Task struct {
	TaskID   string
	RoleName string
	IssueID  string
	Prompt   string
	Engine   string
	Timeout  int
	Metadata map[string]any
}

// SchedulerStats reports current scheduler load, consulted by
// SpawnAgentAction.CanExecute to enforce a concurrency ceiling.
type SchedulerStats struct {
	ActiveTasks   int
	MaxConcurrent int
}

// Scheduler schedules agent sessions. Implementations own session
// lifecycle; this package only needs enough surface to spawn and ask
// about capacity.
type Scheduler interface {
	Schedule(ctx context.Context, task Task) (sessionID string, err error)
	Stats() SchedulerStats
}
