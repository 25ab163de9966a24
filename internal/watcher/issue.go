package watcher

import (
	"context"
	"sync"

	"github.com/monoco-dev/fabric/internal/frontmatter"
)

// IssueTrackedFields is the default set of front matter fields an
// IssueWatcher diffs across ticks.
var IssueTrackedFields = []string{"status", "stage", "assignee", "criticality", "title"}

// IssueWatcher is a PollingWatcher specialized for Issues/ directories:
// files carry a frontmatter block with id/status/stage/assignee/
// criticality/title, and modifications are reduced to per-field
// changes plus dedicated stage/status-changed events.
type IssueWatcher struct {
	*PollingWatcher

	TrackedFields []string

	mu    sync.Mutex
	cache map[string]map[string]any // issue_id -> tracked field values
}

// NewIssueWatcher constructs an IssueWatcher over config, tracking
// trackedFields (or IssueTrackedFields if nil).
func NewIssueWatcher(config WatchConfig, trackedFields []string) *IssueWatcher {
	if len(config.Patterns) == 0 {
		config.Patterns = []string{"*.md"}
	}

	if trackedFields == nil {
		trackedFields = IssueTrackedFields
	}

	iw := &IssueWatcher{
		TrackedFields: trackedFields,
		cache:         make(map[string]map[string]any),
	}
	iw.PollingWatcher = NewPollingWatcher("IssueWatcher", config, checkerFunc(iw.checkChanges), nil)

	return iw
}

// checkerFunc adapts a plain function to the Checker interface.
type checkerFunc func(ctx context.Context, emit func(context.Context, FileEvent) error) error

func (f checkerFunc) CheckChanges(ctx context.Context, emit func(context.Context, FileEvent) error) error {
	return f(ctx, emit)
}

func (w *IssueWatcher) checkChanges(ctx context.Context, emit func(context.Context, FileEvent) error) error {
	res, err := w.scan(ctx)
	if err != nil {
		return err
	}

	for _, path := range sortedKeys(res.created) {
		if err := w.handleNew(ctx, emit, path, res.created[path]); err != nil {
			return err
		}
	}

	for _, path := range sortedKeys(res.deleted) {
		if err := emit(ctx, FileEvent{
			Path:       path,
			ChangeType: ChangeDeleted,
			Metadata:   map[string]any{"path": path},
		}); err != nil {
			return err
		}
	}

	for _, path := range sortedKeys(res.modified) {
		pair := res.modified[path]
		if err := w.handleModified(ctx, emit, path, pair.old, pair.new); err != nil {
			return err
		}
	}

	return nil
}

func (w *IssueWatcher) handleNew(ctx context.Context, emit func(context.Context, FileEvent) error, path string, st fileState) error {
	meta, _, err := frontmatter.Parse([]byte(st.content))
	if err != nil {
		return nil //nolint:nilerr // unparseable issue file, skip like a missing id would
	}

	issueID, _ := frontmatter.StringField(meta, "id")

	w.mu.Lock()
	w.cache[issueID] = extractFields(meta, w.TrackedFields)
	w.mu.Unlock()

	return emit(ctx, FileEvent{
		Path:       path,
		ChangeType: ChangeCreated,
		NewContent: st.content,
		Metadata: map[string]any{
			"issue_id": issueID,
			"title":    meta["title"],
			"status":   meta["status"],
			"stage":    meta["stage"],
		},
	})
}

func (w *IssueWatcher) handleModified(ctx context.Context, emit func(context.Context, FileEvent) error, path string, oldSt, newSt fileState) error {
	meta, _, err := frontmatter.Parse([]byte(newSt.content))
	if err != nil {
		return nil //nolint:nilerr
	}

	issueID, _ := frontmatter.StringField(meta, "id")
	newFields := extractFields(meta, w.TrackedFields)

	w.mu.Lock()
	oldFields := w.cache[issueID]
	w.cache[issueID] = newFields
	w.mu.Unlock()

	var changes []FieldChange
	for _, field := range w.TrackedFields {
		ov, had := oldFields[field]
		nv := newFields[field]

		if had && ov != nv {
			changes = append(changes, FieldChange{FieldName: field, OldValue: ov, NewValue: nv, ChangeType: ChangeModified})
		}
	}

	fcPayload := make([]map[string]any, 0, len(changes))
	for _, fc := range changes {
		fcPayload = append(fcPayload, map[string]any{
			"field":     fc.FieldName,
			"old_value": fc.OldValue,
			"new_value": fc.NewValue,
		})
	}

	if err := emit(ctx, FileEvent{
		Path:       path,
		ChangeType: ChangeModified,
		OldContent: oldSt.content,
		NewContent: newSt.content,
		Metadata: map[string]any{
			"issue_id":      issueID,
			"title":         meta["title"],
			"status":        meta["status"],
			"stage":         meta["stage"],
			"field_changes": fcPayload,
		},
	}); err != nil {
		return err
	}

	for _, fc := range changes {
		if fc.FieldName != "stage" && fc.FieldName != "status" {
			continue
		}

		if err := emit(ctx, FileEvent{
			Path:       path,
			ChangeType: ChangeModified,
			Metadata: map[string]any{
				"issue_id":  issueID,
				"field":     fc.FieldName,
				"old_value": fc.OldValue,
				"new_value": fc.NewValue,
			},
		}); err != nil {
			return err
		}
	}

	return nil
}

func extractFields(meta map[string]any, fields []string) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := meta[f]; ok {
			out[f] = v
		}
	}

	return out
}

// IssueEventType derives the bus event type for an issue FileEvent:
// CREATED -> issue.created; MODIFIED carrying a "field":"stage" entry
// -> issue.stage_changed; "field":"status" -> issue.status_changed;
// any other MODIFIED -> issue.updated. The composite per-tick event
// carries no top-level "field" key, only a "field_changes" list, so
// that list is inspected too - otherwise the composite event always
// falls through to issue.updated even when it contains a stage/status
// change, duplicating the dedicated stage/status event on the bus.
func IssueEventType(event FileEvent) string {
	switch event.ChangeType {
	case ChangeCreated:
		return "issue.created"
	case ChangeModified:
		if field, ok := event.Metadata["field"].(string); ok {
			switch field {
			case "stage":
				return "issue.stage_changed"
			case "status":
				return "issue.status_changed"
			}
		}

		if field, ok := changedField(event.Metadata["field_changes"]); ok {
			switch field {
			case "stage":
				return "issue.stage_changed"
			case "status":
				return "issue.status_changed"
			}
		}

		return "issue.updated"
	default:
		return ""
	}
}

// changedField reports the first stage/status field name found in a
// field_changes payload, as built by handleModified.
func changedField(fieldChanges any) (string, bool) {
	changes, ok := fieldChanges.([]map[string]any)
	if !ok {
		return "", false
	}

	for _, change := range changes {
		name, _ := change["field"].(string)
		if name == "stage" || name == "status" {
			return name, true
		}
	}

	return "", false
}
