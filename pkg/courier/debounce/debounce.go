// Package debounce merges rapid consecutive inbound messages: each
// arrival buffers under a key until the buffer goes idle for a window
// or a maximum wait elapses, at which point the accumulated batch is
// flushed to a callback.
package debounce

import (
	"sync"
	"time"

	"github.com/monoco-dev/fabric/internal/clock"
	"github.com/monoco-dev/fabric/pkg/mailbox"
)

// Config controls buffering behavior.
type Config struct {
	Window       time.Duration
	MaxWait      time.Duration
	KeyExtractor func(mailbox.Message) string
}

// DefaultConfig matches the original's 5s window / 30s max wait.
var DefaultConfig = Config{Window: 5 * time.Second, MaxWait: 30 * time.Second}

// DefaultKeyExtractor groups by "<session_id>:<thread_key-or-_>"; this
// implementation has no thread_key field on Message so the key is
// always "<session_id>:_", or "unknown:_" when the session id is empty.
func DefaultKeyExtractor(msg mailbox.Message) string {
	if msg.SessionID == "" {
		return "unknown:_"
	}

	return msg.SessionID + ":_"
}

type messageBuffer struct {
	messages     []mailbox.Message
	firstArrival time.Time
	lastArrival  time.Time
}

func (b *messageBuffer) add(msg mailbox.Message, now time.Time) {
	b.messages = append(b.messages, msg)
	if b.firstArrival.IsZero() {
		b.firstArrival = now
	}

	b.lastArrival = now
}

func (b *messageBuffer) shouldFlush(now time.Time, window, maxWait time.Duration) bool {
	if len(b.messages) == 0 {
		return false
	}

	idle := now.Sub(b.lastArrival)
	elapsed := now.Sub(b.firstArrival)

	return idle >= window || elapsed >= maxWait
}

// Handler buffers inbound messages per key and flushes a batch via
// FlushFunc once a buffer has gone idle or hit its max wait.
type Handler struct {
	Config    Config
	FlushFunc func(messages []mailbox.Message)
	clock     clock.Clock

	mu       sync.Mutex
	buffers  map[string]*messageBuffer
	shutdown bool
}

// NewHandler constructs a Handler. c may be nil to use the real clock.
func NewHandler(cfg Config, flush func([]mailbox.Message), c clock.Clock) *Handler {
	if cfg.KeyExtractor == nil {
		cfg.KeyExtractor = DefaultKeyExtractor
	}

	if c == nil {
		c = clock.New()
	}

	return &Handler{Config: cfg, FlushFunc: flush, clock: c, buffers: map[string]*messageBuffer{}}
}

// Add buffers msg, returning the flushed batch if adding it triggered
// an immediate flush, or nil otherwise. Once Shutdown has been called,
// every Add bypasses buffering and returns a single-element batch.
func (h *Handler) Add(msg mailbox.Message) []mailbox.Message {
	h.mu.Lock()

	if h.shutdown {
		h.mu.Unlock()
		return []mailbox.Message{msg}
	}

	key := h.Config.KeyExtractor(msg)

	buf, ok := h.buffers[key]
	if !ok {
		buf = &messageBuffer{}
		h.buffers[key] = buf
	}

	now := h.clock.Now()
	// Idle time is measured against the previous arrival, before this
	// message resets it.
	flushNow := buf.shouldFlush(now, h.Config.Window, h.Config.MaxWait)
	buf.add(msg, now)

	if flushNow || buf.shouldFlush(now, h.Config.Window, h.Config.MaxWait) {
		messages := h.flushKeyLocked(key)
		h.mu.Unlock()
		h.callFlush(messages)

		return messages
	}

	h.mu.Unlock()

	return nil
}

// CheckIdle scans every buffer and flushes any that have gone idle
// past the configured window or exceeded max wait. Intended to be
// driven by an external ticker standing in for the original's
// per-key delayed-task scheduling.
func (h *Handler) CheckIdle() {
	h.mu.Lock()

	now := h.clock.Now()

	var toFlush [][]mailbox.Message

	for key, buf := range h.buffers {
		if buf.shouldFlush(now, h.Config.Window, h.Config.MaxWait) {
			toFlush = append(toFlush, h.flushKeyLocked(key))
		}
	}

	h.mu.Unlock()

	for _, batch := range toFlush {
		h.callFlush(batch)
	}
}

func (h *Handler) flushKeyLocked(key string) []mailbox.Message {
	buf, ok := h.buffers[key]
	if !ok {
		return nil
	}

	delete(h.buffers, key)

	return buf.messages
}

func (h *Handler) callFlush(messages []mailbox.Message) {
	if len(messages) == 0 || h.FlushFunc == nil {
		return
	}

	h.FlushFunc(messages)
}

// FlushAll immediately flushes every pending buffer, returning what
// was flushed per key.
func (h *Handler) FlushAll() map[string][]mailbox.Message {
	h.mu.Lock()

	keys := make([]string, 0, len(h.buffers))
	for k := range h.buffers {
		keys = append(keys, k)
	}

	results := make(map[string][]mailbox.Message, len(keys))

	for _, key := range keys {
		messages := h.flushKeyLocked(key)
		if len(messages) > 0 {
			results[key] = messages
		}
	}

	h.mu.Unlock()

	for _, messages := range results {
		h.callFlush(messages)
	}

	return results
}

// Shutdown marks the handler as shutting down; subsequent Add calls
// bypass buffering entirely.
func (h *Handler) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.shutdown = true
}

// PendingCount returns the total number of buffered messages across
// every key.
func (h *Handler) PendingCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	total := 0
	for _, buf := range h.buffers {
		total += len(buf.messages)
	}

	return total
}

// BufferKeys returns the set of currently active buffer keys.
func (h *Handler) BufferKeys() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	keys := make([]string, 0, len(h.buffers))
	for k := range h.buffers {
		keys = append(keys, k)
	}

	return keys
}
