package state

import (
	"time"

	"github.com/monoco-dev/fabric/pkg/mailbox"
	"github.com/monoco-dev/fabric/pkg/metrics"
)

// MessageStateManager composes a LockManager with the mailbox store's
// archive/deadletter moves, so callers have one place to call when a
// message finishes processing either way.
type MessageStateManager struct {
	Locks   *LockManager
	Store   *mailbox.Store
	Backoff BackoffConfig
	Metrics *metrics.Collectors
}

// NewMessageStateManager constructs a MessageStateManager over locks
// and store, using the default backoff shape.
func NewMessageStateManager(locks *LockManager, store *mailbox.Store) *MessageStateManager {
	return &MessageStateManager{Locks: locks, Store: store, Backoff: DefaultBackoffConfig}
}

// WithMetrics attaches a Collectors instance this manager reports
// terminal-status and lock-age observations to.
func (m *MessageStateManager) WithMetrics(c *metrics.Collectors) *MessageStateManager {
	m.Metrics = c
	return m
}

// Initialize loads persisted lock state.
func (m *MessageStateManager) Initialize() error {
	return m.Locks.Initialize()
}

// Complete marks messageID completed and archives its file.
func (m *MessageStateManager) Complete(messageID, agentID string) (string, error) {
	if err := m.Locks.Complete(messageID, agentID); err != nil {
		return "", err
	}

	m.observeTerminal(messageID, "completed")

	return m.Store.Archive(messageID)
}

func (m *MessageStateManager) observeTerminal(messageID, status string) {
	if m.Metrics == nil {
		return
	}

	m.Metrics.CourierMessages.WithLabelValues(status).Inc()

	if entry, ok := m.Locks.Get(messageID); ok && entry.ClaimedAt != nil {
		m.Metrics.CourierLockAge.Observe(time.Since(*entry.ClaimedAt).Seconds())
	}
}

// Fail records a processing failure for messageID. When the failure
// exhausts the retry ceiling (or is marked non-retryable), the
// message's file is moved to deadletter; otherwise it's left in place
// for the next claim attempt, and RetryDelay reports how long to wait.
func (m *MessageStateManager) Fail(messageID, agentID, reason string, retryable bool) (entry *LockEntry, delay *int64, deadletterPath string, err error) {
	entry, err = m.Locks.Fail(messageID, agentID, reason, retryable)
	if err != nil {
		return nil, nil, "", err
	}

	if entry.Status == mailbox.StatusFailed {
		m.observeTerminal(messageID, "failed")

		path, archiveErr := m.Store.MoveToDeadletter(messageID)
		if archiveErr != nil {
			return entry, nil, "", archiveErr
		}

		return entry, nil, path, nil
	}

	ms := int64(RetryDelay(m.Backoff, entry.RetryCount-1).Milliseconds())

	return entry, &ms, "", nil
}
