package watcher_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/monoco-dev/fabric/internal/watcher"
	"github.com/monoco-dev/fabric/pkg/metrics"
)

// eventCollector is a goroutine-safe sink for watcher callback events.
type eventCollector struct {
	mu     sync.Mutex
	events []watcher.FileEvent
}

func (c *eventCollector) add(e watcher.FileEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = append(c.events, e)
}

func (c *eventCollector) snapshot() []watcher.FileEvent {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]watcher.FileEvent, len(c.events))
	copy(out, c.events)

	return out
}

func (c *eventCollector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.events)
}

func TestWatchConfig_ShouldWatch(t *testing.T) {
	cfg := watcher.WatchConfig{Patterns: []string{"*.md"}, ExcludePatterns: []string{"_*"}}

	require.True(t, cfg.ShouldWatch("/a/issue.md"))
	require.False(t, cfg.ShouldWatch("/a/issue.txt"))
	require.False(t, cfg.ShouldWatch("/a/_draft.md"))
}

func TestIssueWatcher_CreatedThenStageChanged(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ISSUE-1.md")

	writeIssue(t, path, "todo", "backlog")

	iw := watcher.NewIssueWatcher(watcher.WatchConfig{Path: dir, PollInterval: 20 * time.Millisecond}, nil)

	collector := &eventCollector{}
	iw.RegisterCallback(func(ctx context.Context, e watcher.FileEvent) error {
		collector.add(e)
		return nil
	})

	ctx := context.Background()
	iw.Start(ctx)
	defer iw.Stop()

	waitForCount(t, collector, 1)
	events := collector.snapshot()
	require.Equal(t, watcher.ChangeCreated, events[0].ChangeType)

	writeIssue(t, path, "todo", "doing")

	waitForCount(t, collector, 3) // composite MODIFIED + dedicated stage_changed
	events = collector.snapshot()

	var sawStageChange bool
	for _, e := range events[1:] {
		if field, _ := e.Metadata["field"].(string); field == "stage" {
			sawStageChange = true
			require.Equal(t, "backlog", e.Metadata["old_value"])
			require.Equal(t, "doing", e.Metadata["new_value"])
		}
	}
	require.True(t, sawStageChange)
}

func TestIssueWatcher_WithMetricsCountsScansAndChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ISSUE-1.md")

	writeIssue(t, path, "todo", "backlog")

	iw := watcher.NewIssueWatcher(watcher.WatchConfig{Path: dir, PollInterval: 10 * time.Millisecond}, nil)
	m := metrics.New()
	iw.WithMetrics(m)

	collector := &eventCollector{}
	iw.RegisterCallback(func(ctx context.Context, e watcher.FileEvent) error {
		collector.add(e)
		return nil
	})

	ctx := context.Background()
	iw.Start(ctx)
	defer iw.Stop()

	waitForCount(t, collector, 1)

	require.GreaterOrEqual(t, testutil.ToFloat64(m.WatcherScans.WithLabelValues("IssueWatcher")), float64(1))
	require.Equal(t, float64(1), testutil.ToFloat64(m.WatcherChanges.WithLabelValues("IssueWatcher", string(watcher.ChangeCreated))))
}

func TestMemoWatcher_ThresholdCrossing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "inbox.md")

	require.NoError(t, os.WriteFile(path, []byte(memoBody(2)), 0o644))

	mw := watcher.NewMemoWatcher(watcher.WatchConfig{Path: path, PollInterval: 20 * time.Millisecond}, 3)

	collector := &eventCollector{}
	mw.RegisterCallback(func(ctx context.Context, e watcher.FileEvent) error {
		collector.add(e)
		return nil
	})

	ctx := context.Background()
	mw.Start(ctx)
	defer mw.Stop()

	// first tick observes the pre-seeded 2-record inbox (below threshold).
	waitForCount(t, collector, 1)

	require.NoError(t, os.WriteFile(path, []byte(memoBody(4)), 0o644))
	waitForCount(t, collector, 2)

	events := collector.snapshot()
	require.Equal(t, true, events[1].Metadata["threshold_crossed"])
	require.Equal(t, 4, events[1].Metadata["pending_count"])
}

func TestTaskWatcher_StateChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.md")

	require.NoError(t, os.WriteFile(path, []byte("- [ ] write docs\n"), 0o644))

	tw := watcher.NewTaskWatcher(watcher.WatchConfig{Path: path, PollInterval: 20 * time.Millisecond})

	collector := &eventCollector{}
	tw.RegisterCallback(func(ctx context.Context, e watcher.FileEvent) error {
		collector.add(e)
		return nil
	})

	ctx := context.Background()
	tw.Start(ctx)
	defer tw.Stop()

	// first tick observes the pre-seeded unchecked item as newly created.
	waitForCount(t, collector, 1)

	require.NoError(t, os.WriteFile(path, []byte("- [x] write docs\n"), 0o644))
	waitForCount(t, collector, 2)

	events := collector.snapshot()
	changes, _ := events[1].Metadata["task_changes"].([]map[string]any)
	require.Len(t, changes, 1)
	require.Equal(t, "state_changed", changes[0]["type"])
	require.Equal(t, true, changes[0]["is_completed"])
}

func writeIssue(t *testing.T, path, status, stage string) {
	t.Helper()

	content := "---\nid: ISSUE-1\ntitle: Example\nstatus: " + status + "\nstage: " + stage + "\n---\nbody\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func memoBody(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		s += "## [abc" + string(rune('0'+i)) + "] a memo\nbody\n\n"
	}

	return s
}

func waitForCount(t *testing.T, c *eventCollector, n int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.len() >= n {
			return
		}

		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %d events, got %d", n, c.len())
}
