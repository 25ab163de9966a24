package watcher

import (
	"context"
	"crypto/md5" //nolint:gosec // stable short id, not a security boundary
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

// taskLineRE matches one checkbox list item: indentation, state
// character, content.
var taskLineRE = regexp.MustCompile(`^(\s*)-\s*\[([ xX\-/])\]\s*(.+)$`)

// taskItem is one parsed checkbox line.
type taskItem struct {
	content string
	state   string
	line    int
	level   int
}

func (t taskItem) isCompleted() bool {
	return strings.EqualFold(t.state, "x")
}

// TaskWatcher watches a single checkbox-list file (tasks.md, TODO.md)
// and diffs item state across ticks, keyed by an id hashed from line
// number + content; an item that moves to another line gets a new id
// and is reported as deleted at the old id and created at the new one.
type TaskWatcher struct {
	*PollingWatcher

	cache map[string]taskItem
}

// NewTaskWatcher constructs a TaskWatcher over config.Path.
func NewTaskWatcher(config WatchConfig) *TaskWatcher {
	tw := &TaskWatcher{cache: make(map[string]taskItem)}
	tw.PollingWatcher = NewPollingWatcher("TaskWatcher", config, checkerFunc(tw.checkChanges), nil)

	return tw
}

func (w *TaskWatcher) checkChanges(ctx context.Context, emit func(context.Context, FileEvent) error) error {
	content, err := os.ReadFile(w.Config.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return err
	}

	current := parseTasks(string(content))
	changes := w.detectChanges(current)
	w.cache = current

	if len(changes) == 0 {
		return nil
	}

	completed := 0
	for _, c := range changes {
		if v, _ := c["is_completed"].(bool); v {
			completed++
		}
	}

	return emit(ctx, FileEvent{
		Path:       w.Config.Path,
		ChangeType: ChangeModified,
		Metadata: map[string]any{
			"task_changes":     changes,
			"total_changes":    len(changes),
			"completed_tasks":  completed,
		},
	})
}

func parseTasks(content string) map[string]taskItem {
	tasks := make(map[string]taskItem)

	for i, line := range strings.Split(content, "\n") {
		lineNum := i + 1

		m := taskLineRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		indent, state, body := m[1], m[2], strings.TrimSpace(m[3])

		id := taskID(lineNum, body)
		tasks[id] = taskItem{
			content: body,
			state:   state,
			line:    lineNum,
			level:   len(indent) / 2,
		}
	}

	return tasks
}

func taskID(line int, content string) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%d:%s", line, content))) //nolint:gosec
	return hex.EncodeToString(sum[:])[:24]
}

func (w *TaskWatcher) detectChanges(current map[string]taskItem) []map[string]any {
	var changes []map[string]any

	for _, id := range taskIDsSorted(current, w.cache) {
		cur, curOK := current[id]
		old, oldOK := w.cache[id]

		switch {
		case curOK && !oldOK:
			changes = append(changes, map[string]any{
				"type":    "created",
				"task_id": id,
				"content": cur.content,
				"state":   cur.state,
			})
		case !curOK && oldOK:
			changes = append(changes, map[string]any{
				"type":    "deleted",
				"task_id": id,
				"content": old.content,
			})
		case curOK && oldOK && cur.state != old.state:
			changes = append(changes, map[string]any{
				"type":         "state_changed",
				"task_id":      id,
				"content":      cur.content,
				"old_state":    old.state,
				"new_state":    cur.state,
				"is_completed": cur.isCompleted(),
			})
		}
	}

	return changes
}

func taskIDsSorted(a, b map[string]taskItem) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for id := range a {
		seen[id] = struct{}{}
	}

	for id := range b {
		seen[id] = struct{}{}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

// TaskEventType tasks map onto issue updates; there is no dedicated
// task.* bus event kind.
func TaskEventType(event FileEvent) string {
	return "issue.updated"
}
