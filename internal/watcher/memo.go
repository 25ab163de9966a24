package watcher

import (
	"bufio"
	"context"
	"os"
	"regexp"
	"strings"
)

// memoHeaderRE matches a memo record's leading "## [hex-uid] ..."
// header line. This intentionally counts header-delimited records
// rather than dash-prefixed list lines: the counting rule here is
// hex-uid-header based, a deliberate point of difference from a
// dash/checkbox-regex approach to the same file.
var memoHeaderRE = regexp.MustCompile(`^##\s+\[[0-9a-fA-F]+\]`)

// MemoWatcher watches a single memo inbox file and emits a threshold
// event the first tick the pending record count transitions from
// below threshold to at-or-above it.
type MemoWatcher struct {
	*PollingWatcher

	Threshold int

	lastCount       int
	thresholdCrossed bool
}

// NewMemoWatcher constructs a MemoWatcher over config.Path, a single
// file (not a directory), crossing threshold (default 5 if <= 0).
func NewMemoWatcher(config WatchConfig, threshold int) *MemoWatcher {
	if threshold <= 0 {
		threshold = 5
	}

	mw := &MemoWatcher{Threshold: threshold}
	mw.PollingWatcher = NewPollingWatcher("MemoWatcher", config, checkerFunc(mw.checkChanges), nil)

	return mw
}

func (w *MemoWatcher) checkChanges(ctx context.Context, emit func(context.Context, FileEvent) error) error {
	content, err := os.ReadFile(w.Config.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return err
	}

	count := countPendingMemos(string(content))
	if count == w.lastCount {
		return nil
	}

	previous := w.lastCount
	crossed := count >= w.Threshold

	defer func() {
		w.lastCount = count
		w.thresholdCrossed = crossed
	}()

	switch {
	case crossed && !w.thresholdCrossed:
		return emit(ctx, FileEvent{
			Path:       w.Config.Path,
			ChangeType: ChangeModified,
			Metadata: map[string]any{
				"pending_count":     count,
				"threshold":         w.Threshold,
				"threshold_crossed": true,
				"previous_count":    previous,
				"event_type":        "threshold_crossed",
			},
		})
	case count > previous:
		return emit(ctx, FileEvent{
			Path:       w.Config.Path,
			ChangeType: ChangeModified,
			Metadata: map[string]any{
				"pending_count":     count,
				"threshold":         w.Threshold,
				"threshold_crossed": false,
				"previous_count":    previous,
				"event_type":        "memos_added",
			},
		})
	case count == 0 && previous > 0:
		// inbox cleared; no dedicated event, logged by callers that care
		return nil
	default:
		return nil
	}
}

// countPendingMemos counts "## [hex-uid] ..." header lines in content.
func countPendingMemos(content string) int {
	count := 0

	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		if memoHeaderRE.MatchString(scanner.Text()) {
			count++
		}
	}

	return count
}

// MemoEventType derives the bus event type for a memo FileEvent.
func MemoEventType(event FileEvent) string {
	if crossed, _ := event.Metadata["threshold_crossed"].(bool); crossed {
		return "memo.threshold"
	}

	return "memo.created"
}
