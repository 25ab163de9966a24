// Package state implements the courier's claim-lock and retry/backoff
// logic on top of the mailbox store: who is processing which message,
// and what happens to a message when processing fails.
package state

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/alcionai/clues"

	"github.com/monoco-dev/fabric/internal/atomicfile"
	"github.com/monoco-dev/fabric/internal/clock"
	"github.com/monoco-dev/fabric/pkg/mailbox"
)

const (
	DefaultClaimTimeout = 300 * time.Second
	MaxRetryAttempts    = 5
)

// ErrMessageNotFound is returned when an operation targets a message
// that has no lock entry at all.
var ErrMessageNotFound = clues.New("message not found")

// ErrMessageAlreadyClaimed is returned by Claim when an unexpired
// claim on the message already exists.
var ErrMessageAlreadyClaimed = clues.New("message already claimed")

// ErrMessageNotClaimed is returned by Complete/Fail when the message
// isn't currently in the claimed state.
var ErrMessageNotClaimed = clues.New("message not claimed")

// ErrClaimedByOther is returned by Complete/Fail when agentID doesn't
// match the lock's claimant.
var ErrClaimedByOther = clues.New("message claimed by another agent")

// LockEntry is the on-disk representation of one message's claim
// state.
type LockEntry struct {
	MessageID  string                `json:"message_id"`
	Status     mailbox.MessageStatus `json:"status"`
	ClaimedBy  string                `json:"claimed_by,omitempty"`
	ClaimedAt  *time.Time            `json:"claimed_at,omitempty"`
	ExpiresAt  *time.Time            `json:"expires_at,omitempty"`
	RetryCount int                   `json:"retry_count"`
	FailReason string                `json:"fail_reason,omitempty"`
}

func (e *LockEntry) isExpired(now time.Time) bool {
	if e.ExpiresAt == nil {
		return false
	}

	return now.After(*e.ExpiresAt)
}

// LockManager is a thread-safe, disk-persisted claim-lock store.
type LockManager struct {
	locksPath string
	clock     clock.Clock

	mu    sync.Mutex
	locks map[string]*LockEntry
}

// NewLockManager constructs a LockManager persisting to locksPath. Call
// Initialize before use to load any existing state.
func NewLockManager(locksPath string, c clock.Clock) *LockManager {
	if c == nil {
		c = clock.New()
	}

	return &LockManager{locksPath: locksPath, clock: c, locks: map[string]*LockEntry{}}
}

// Initialize loads persisted locks from disk (tolerating a missing or
// corrupt file by starting empty) and sweeps expired claims.
func (m *LockManager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.locksPath)
	if err != nil {
		if os.IsNotExist(err) {
			m.locks = map[string]*LockEntry{}
			return nil
		}

		return clues.Wrap(err, "reading locks file")
	}

	var loaded map[string]*LockEntry
	if err := json.Unmarshal(data, &loaded); err != nil {
		m.locks = map[string]*LockEntry{}
		return nil //nolint:nilerr // corrupt lock file starts fresh, matching the original's behavior
	}

	m.locks = loaded
	m.cleanupExpiredLocked()

	return nil
}

func (m *LockManager) cleanupExpiredLocked() {
	now := m.clock.Now()

	for _, entry := range m.locks {
		if entry.Status == mailbox.StatusClaimed && entry.isExpired(now) {
			entry.Status = mailbox.StatusNew
			entry.ClaimedBy = ""
			entry.ClaimedAt = nil
			entry.ExpiresAt = nil
		}
	}
}

func (m *LockManager) saveLocked() error {
	data, err := json.MarshalIndent(m.locks, "", "  ")
	if err != nil {
		return clues.Wrap(err, "marshaling locks")
	}

	return atomicfile.WriteFile(m.locksPath, data, 0o644)
}

// Get returns the current lock entry for messageID, if any, after
// sweeping expired claims.
func (m *LockManager) Get(messageID string) (*LockEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cleanupExpiredLocked()

	entry, ok := m.locks[messageID]

	return entry, ok
}

// Claim attempts to claim messageID for agentID, expiring in timeout.
// Fails with ErrMessageAlreadyClaimed if an unexpired claim exists.
func (m *LockManager) Claim(messageID, agentID string, timeout time.Duration) (*LockEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cleanupExpiredLocked()

	if existing, ok := m.locks[messageID]; ok {
		if existing.Status == mailbox.StatusClaimed && !existing.isExpired(m.clock.Now()) {
			return nil, clues.Stack(ErrMessageAlreadyClaimed).With("claimed_by", existing.ClaimedBy)
		}
	}

	now := m.clock.Now()
	expires := now.Add(timeout)

	entry := &LockEntry{
		MessageID: messageID,
		Status:    mailbox.StatusClaimed,
		ClaimedBy: agentID,
		ClaimedAt: &now,
		ExpiresAt: &expires,
	}

	m.locks[messageID] = entry

	if err := m.saveLocked(); err != nil {
		return nil, err
	}

	return entry, nil
}

// Complete marks messageID completed, clearing its retry count.
func (m *LockManager) Complete(messageID, agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.locks[messageID]
	if !ok {
		return clues.Stack(ErrMessageNotFound).With("message_id", messageID)
	}

	if entry.Status != mailbox.StatusClaimed {
		return clues.Stack(ErrMessageNotClaimed).With("message_id", messageID)
	}

	if entry.ClaimedBy != agentID {
		return clues.Stack(ErrClaimedByOther).With("claimed_by", entry.ClaimedBy)
	}

	entry.Status = mailbox.StatusCompleted
	entry.RetryCount = 0

	return m.saveLocked()
}

// Fail records a processing failure for messageID. If retryable and
// the retry ceiling hasn't been hit, the lock resets to "new" so the
// message can be claimed again; otherwise it transitions to "failed"
// (the caller is expected to move the file to deadletter).
func (m *LockManager) Fail(messageID, agentID, reason string, retryable bool) (*LockEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.locks[messageID]
	if !ok {
		return nil, clues.Stack(ErrMessageNotFound).With("message_id", messageID)
	}

	if entry.Status != mailbox.StatusClaimed {
		return nil, clues.Stack(ErrMessageNotClaimed).With("message_id", messageID)
	}

	if entry.ClaimedBy != agentID {
		return nil, clues.Stack(ErrClaimedByOther).With("claimed_by", entry.ClaimedBy)
	}

	entry.FailReason = reason
	entry.RetryCount++

	if retryable && entry.RetryCount < MaxRetryAttempts {
		entry.Status = mailbox.StatusNew
		entry.ClaimedBy = ""
		entry.ClaimedAt = nil
		entry.ExpiresAt = nil
	} else {
		entry.Status = mailbox.StatusFailed
	}

	if err := m.saveLocked(); err != nil {
		return nil, err
	}

	return entry, nil
}

// Status returns messageID's current status, defaulting to "new" for
// an unknown or expired-claim message.
func (m *LockManager) Status(messageID string) mailbox.MessageStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.locks[messageID]
	if !ok {
		return mailbox.StatusNew
	}

	if entry.Status == mailbox.StatusClaimed && entry.isExpired(m.clock.Now()) {
		return mailbox.StatusNew
	}

	return entry.Status
}
