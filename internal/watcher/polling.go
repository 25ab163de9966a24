// Package watcher implements the polling filesystem watcher framework:
// a base scan/diff loop plus semantic-reduction subclasses (issue,
// memo, task, mailbox) that turn raw file changes into domain events.
package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/alcionai/clues"

	"github.com/monoco-dev/fabric/internal/clock"
	"github.com/monoco-dev/fabric/pkg/fault"
	"github.com/monoco-dev/fabric/pkg/logger"
	"github.com/monoco-dev/fabric/pkg/metrics"
)

// ChangeType enumerates the kinds of file system change a watcher can
// observe.
type ChangeType string

const (
	ChangeCreated  ChangeType = "created"
	ChangeModified ChangeType = "modified"
	ChangeDeleted  ChangeType = "deleted"
	ChangeMoved    ChangeType = "moved"
	ChangeRenamed  ChangeType = "renamed"
)

// FieldChange records a before/after pair for one tracked field.
type FieldChange struct {
	FieldName  string
	OldValue   any
	NewValue   any
	ChangeType ChangeType
}

// FileEvent is the base event every watcher emits; semantic watchers
// embed it and attach domain-specific fields via Metadata.
type FileEvent struct {
	Path        string
	ChangeType  ChangeType
	WatcherName string
	OldPath     string
	OldContent  string
	NewContent  string
	Metadata    map[string]any
	Timestamp   time.Time
}

// WatchConfig describes what a watcher observes and how often.
type WatchConfig struct {
	Path            string
	Patterns        []string
	ExcludePatterns []string
	Recursive       bool
	PollInterval    time.Duration
}

func (c WatchConfig) matches(patterns []string, base string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, base); ok {
			return true
		}
	}

	return false
}

// ShouldWatch reports whether path passes the exclude/include glob
// sets. Exclude is checked first so an exclude always wins.
func (c WatchConfig) ShouldWatch(path string) bool {
	base := filepath.Base(path)

	if len(c.ExcludePatterns) > 0 && c.matches(c.ExcludePatterns, base) {
		return false
	}

	patterns := c.Patterns
	if len(patterns) == 0 {
		patterns = []string{"*"}
	}

	return c.matches(patterns, base)
}

// fileState is one tick's recorded view of a watched file.
type fileState struct {
	modTime time.Time
	size    int64
	content string
	hash    string
}

func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Callback receives every FileEvent a watcher emits, before it is
// translated and published onto the event bus.
type Callback func(ctx context.Context, event FileEvent) error

// Checker is implemented by the semantic-reduction subclasses; it
// inspects the current/previous file-state snapshots and emits events
// via emit.
type Checker interface {
	CheckChanges(ctx context.Context, emit func(context.Context, FileEvent) error) error
}

// PollingWatcher is the shared tick/scan/diff loop every concrete
// watcher (issue, memo, task, mailbox) is built on. It owns no
// semantic knowledge of file contents; Checker implementations do.
type PollingWatcher struct {
	Name   string
	Config WatchConfig
	Clock  clock.Clock

	checker Checker

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	callbacks []Callback
	states    map[string]fileState
	publish   publishFunc
	metrics   *metrics.Collectors
}

// NewPollingWatcher constructs a watcher named name over config,
// delegating per-tick semantic work to checker.
func NewPollingWatcher(name string, config WatchConfig, checker Checker, c clock.Clock) *PollingWatcher {
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}

	if c == nil {
		c = clock.New()
	}

	return &PollingWatcher{
		Name:    name,
		Config:  config,
		Clock:   c,
		checker: checker,
		states:  make(map[string]fileState),
	}
}

// WithMetrics attaches a Collectors instance this watcher reports
// scan/change counters to. Passing nil (the default) disables
// reporting entirely.
func (w *PollingWatcher) WithMetrics(m *metrics.Collectors) *PollingWatcher {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.metrics = m

	return w
}

// RegisterCallback appends a local callback invoked on every emit,
// before publication onto an event bus.
func (w *PollingWatcher) RegisterCallback(cb Callback) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.callbacks = append(w.callbacks, cb)
}

// IsRunning reports whether the poll loop is active.
func (w *PollingWatcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.running
}

// Start begins the poll loop in a background goroutine. Start is a
// no-op if already running.
func (w *PollingWatcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.done = make(chan struct{})
	w.mu.Unlock()

	go w.loop(loopCtx)
}

// Stop flips the running flag and cancels the poll loop, blocking
// until the current tick (if any) unwinds. No in-flight callback
// invocation is interrupted; only the next scheduled tick is abandoned.
func (w *PollingWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}

	w.running = false
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if done != nil {
		<-done
	}
}

func (w *PollingWatcher) loop(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.Config.PollInterval)
	defer ticker.Stop()

	for {
		w.mu.Lock()
		m := w.metrics
		w.mu.Unlock()

		if m != nil {
			m.WatcherScans.WithLabelValues(w.Name).Inc()
		}

		if err := w.checker.CheckChanges(ctx, w.Emit); err != nil {
			logger.CtxErr(ctx, err).Errorw("error in poll loop", "watcher", w.Name)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Emit invokes every registered callback (errors isolated via
// pkg/fault) then hands the event to the watcher-specific publish
// hook, if one is installed via SetPublisher.
func (w *PollingWatcher) Emit(ctx context.Context, event FileEvent) error {
	event.WatcherName = w.Name
	if event.Timestamp.IsZero() {
		event.Timestamp = w.Clock.Now()
	}

	w.mu.Lock()
	callbacks := make([]Callback, len(w.callbacks))
	copy(callbacks, w.callbacks)
	m := w.metrics
	w.mu.Unlock()

	if m != nil {
		m.WatcherChanges.WithLabelValues(w.Name, string(event.ChangeType)).Inc()
	}

	errs := fault.New(false)
	for _, cb := range callbacks {
		if err := cb(ctx, event); err != nil {
			errs.AddRecoverable(ctx, err)
		}
	}

	if w.publish != nil {
		if err := w.publish(ctx, event); err != nil {
			errs.AddRecoverable(ctx, err)
		}
	}

	return errs.Failure()
}

// publish, when set via SetPublisher, is invoked after local callbacks
// on every Emit; semantic watchers use it to translate a FileEvent
// into an eventbus.Event and publish it.
type publishFunc func(ctx context.Context, event FileEvent) error

func (w *PollingWatcher) SetPublisher(fn func(ctx context.Context, event FileEvent) error) {
	w.publish = fn
}

// scanResult is the set-diffed outcome of one scan vs. the prior tick.
type scanResult struct {
	created  map[string]fileState
	deleted  map[string]fileState
	modified map[string]struct{ old, new fileState }
}

// scan walks Config.Path, records a fileState per matching regular
// file, diffs against the previous tick's states, and replaces the
// stored snapshot. It never returns a partial scan: an unreadable file
// is skipped, not fatal.
func (w *PollingWatcher) scan(ctx context.Context) (scanResult, error) {
	current := make(map[string]fileState)

	info, err := os.Stat(w.Config.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return w.diff(current), nil
		}

		return scanResult{}, clues.Wrap(err, "stat watch path")
	}

	if !info.IsDir() {
		if st, ok := w.statOne(w.Config.Path); ok {
			current[w.Config.Path] = st
		}

		return w.diff(current), nil
	}

	walk := filepath.WalkDir
	err = walk(w.Config.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil //nolint:nilerr // best-effort scan
		}

		if d.IsDir() {
			if !w.Config.Recursive && path != w.Config.Path {
				return filepath.SkipDir
			}

			return nil
		}

		if !w.Config.ShouldWatch(path) {
			return nil
		}

		if st, ok := w.statOne(path); ok {
			current[path] = st
		}

		return nil
	})
	if err != nil {
		return scanResult{}, clues.Wrap(err, "walk watch path")
	}

	return w.diff(current), nil
}

func (w *PollingWatcher) statOne(path string) (fileState, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return fileState{}, false
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return fileState{}, false
	}

	content := string(b)

	return fileState{
		modTime: info.ModTime(),
		size:    info.Size(),
		content: content,
		hash:    hashContent(content),
	}, true
}

func (w *PollingWatcher) diff(current map[string]fileState) scanResult {
	w.mu.Lock()
	prior := w.states
	w.states = current
	w.mu.Unlock()

	res := scanResult{
		created:  make(map[string]fileState),
		deleted:  make(map[string]fileState),
		modified: make(map[string]struct{ old, new fileState }),
	}

	for path, st := range current {
		if old, ok := prior[path]; ok {
			if old.hash != st.hash {
				res.modified[path] = struct{ old, new fileState }{old, st}
			}
		} else {
			res.created[path] = st
		}
	}

	for path, st := range prior {
		if _, ok := current[path]; !ok {
			res.deleted[path] = st
		}
	}

	return res
}

// sortedKeys returns a deterministic iteration order for scan result
// maps, so emitted events are stable across repeated ticks with the
// same change set (useful for tests and reproducible logs).
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
