// Package mailbox implements the filesystem-backed message store: a
// per-provider directory tree of frontmatter-encoded message files
// under inbound/, outbound/, archive/, and .deadletter/.
package mailbox

import "time"

// MessageStatus tracks a message's processing lifecycle, independent
// of which directory currently holds its file.
type MessageStatus string

const (
	StatusNew        MessageStatus = "new"
	StatusClaimed    MessageStatus = "claimed"
	StatusProcessing MessageStatus = "processing"
	StatusCompleted  MessageStatus = "completed"
	StatusFailed     MessageStatus = "failed"
)

// Message is a parsed mailbox file: frontmatter metadata plus body
// text, and the path it was read from.
type Message struct {
	ID        string
	Provider  string
	SessionID string
	Timestamp time.Time
	Metadata  map[string]any
	Body      string
	Path      string
}

// Draft describes a new outbound message to write.
type Draft struct {
	ID          string
	Provider    string
	SessionID   string
	ContentText string
	Metadata    map[string]any
}
