package automation

import (
	"context"
	"path/filepath"
	"time"

	"github.com/monoco-dev/fabric/internal/watcher"
	"github.com/monoco-dev/fabric/pkg/eventbus"
)

// Watcher is the subset of the polling watcher surface the orchestrator
// drives directly: lifecycle plus the bus-publishing hook. Every
// concrete watcher in internal/watcher satisfies this through its
// embedded *PollingWatcher.
type Watcher interface {
	Start(ctx context.Context)
	Stop()
	SetPublisher(fn func(ctx context.Context, event watcher.FileEvent) error)
}

// WatcherFactory builds the named watcher rooted at projectRoot, polling
// at pollInterval (the zero value lets the watcher framework fall back
// to its own default). Returning (nil, nil) means "this deployment has
// no watcher under this name" (an unmet dependency, not an error)
// rather than a hard failure.
type WatcherFactory func(projectRoot string, pollInterval time.Duration) (Watcher, error)

// WatcherClasses is the name -> constructor registry standing in for
// AutomationOrchestrator.WATCHER_CLASSES: IssueWatcher, MemoWatcher, and
// TaskWatcher are carried over unchanged; MailboxWatcher substitutes for
// the original's DropzoneWatcher, which depended on an ArtifactManager
// this module's watcher layer has no analog for (see DESIGN.md).
func WatcherClasses() map[string]WatcherFactory {
	return map[string]WatcherFactory{
		"IssueWatcher": func(projectRoot string, pollInterval time.Duration) (Watcher, error) {
			cfg := watcher.WatchConfig{
				Path:         filepath.Join(projectRoot, "Issues"),
				Patterns:     []string{"*.md"},
				Recursive:    true,
				PollInterval: pollInterval,
			}

			return watcher.NewIssueWatcher(cfg, nil), nil
		},
		"MemoWatcher": func(projectRoot string, pollInterval time.Duration) (Watcher, error) {
			cfg := watcher.WatchConfig{
				Path:         filepath.Join(projectRoot, "Memos", "inbox.md"),
				Patterns:     []string{"*.md"},
				PollInterval: pollInterval,
			}

			return watcher.NewMemoWatcher(cfg, 0), nil
		},
		"TaskWatcher": func(projectRoot string, pollInterval time.Duration) (Watcher, error) {
			cfg := watcher.WatchConfig{
				Path:         filepath.Join(projectRoot, "tasks.md"),
				Patterns:     []string{"*.md"},
				PollInterval: pollInterval,
			}

			return watcher.NewTaskWatcher(cfg), nil
		},
		"MailboxWatcher": func(projectRoot string, pollInterval time.Duration) (Watcher, error) {
			cfg := watcher.WatchConfig{
				Path:         filepath.Join(projectRoot, ".monoco", "mailbox", "inbound"),
				PollInterval: pollInterval,
			}

			return watcher.NewMailboxWatcher(cfg), nil
		},
	}
}

// eventTypeFunc maps a watcher's raw FileEvent to a bus event-type
// string; one exists per WatcherClasses entry.
type eventTypeFunc func(watcher.FileEvent) string

func eventTypeFuncFor(watcherName string) eventTypeFunc {
	switch watcherName {
	case "IssueWatcher":
		return watcher.IssueEventType
	case "MemoWatcher":
		return watcher.MemoEventType
	case "TaskWatcher":
		return watcher.TaskEventType
	case "MailboxWatcher":
		return watcher.MailboxEventType
	default:
		return nil
	}
}

// isDedicatedFieldEvent reports whether event is the issue watcher's
// dedicated, single-field stage/status event (a top-level "field" key)
// rather than its composite per-tick event (a "field_changes" list).
func isDedicatedFieldEvent(event watcher.FileEvent) bool {
	_, ok := event.Metadata["field"].(string)
	return ok
}

// publisherFor builds the PollingWatcher.SetPublisher hook for
// watcherName: it translates each FileEvent to a bus EventType and
// publishes it, tagging the event with watcherName as Source.
//
// The issue watcher emits two FileEvents per tick for a stage/status
// delta: a composite event carrying the current top-level "stage"/
// "status" values plus the full field_changes list, and a dedicated
// single-field event carrying only "field"/"old_value"/"new_value".
// Trigger conditions (parseCondition) key off a named field's current
// value in the payload, which only the composite event has - so the
// composite is what gets published. After the field_changes fix to
// IssueEventType both events now translate to the same stage/status bus
// type; publishing both would double the bus event, so the dedicated
// one is dropped here. This keeps the bus at exactly one
// stage/status-changed event per delta, with the payload shape
// conditions expect, matching spec.md's "one issue.stage_changed event,
// no issue.updated" testable property.
func publisherFor(watcherName string, bus *eventbus.Bus) func(ctx context.Context, event watcher.FileEvent) error {
	typeFor := eventTypeFuncFor(watcherName)

	return func(ctx context.Context, event watcher.FileEvent) error {
		if typeFor == nil {
			return nil
		}

		if watcherName == "IssueWatcher" && isDedicatedFieldEvent(event) {
			return nil
		}

		raw := typeFor(event)
		if raw == "" {
			return nil
		}

		bus.Publish(ctx, eventbus.Event{
			Type:      eventbus.EventType(raw),
			Payload:   event.Metadata,
			Timestamp: event.Timestamp,
			Source:    watcherName,
		})

		return nil
	}
}
