// Package eventbus implements the typed in-process publish/subscribe
// bus that sits between the watcher framework and the action router.
package eventbus

import "time"

// EventType is a closed enum of agent event kinds. Unlike the watcher
// framework's ChangeType, EventType values are domain-meaningful and
// cross watcher boundaries (an issue watcher and a mailbox watcher
// publish onto the same bus using these types).
type EventType string

const (
	EventIssueCreated       EventType = "issue.created"
	EventIssueUpdated       EventType = "issue.updated"
	EventIssueStageChanged  EventType = "issue.stage_changed"
	EventIssueStatusChanged EventType = "issue.status_changed"

	EventMemoCreated   EventType = "memo.created"
	EventMemoThreshold EventType = "memo.threshold"

	EventSessionCompleted EventType = "session.completed"
	EventSessionFailed    EventType = "session.failed"

	EventPRCreated EventType = "pr.created"

	EventIMMessageReceived EventType = "im.message_received"
	EventIMMessageReplied  EventType = "im.message_replied"
	EventIMAgentTrigger    EventType = "im.agent_trigger"
	EventIMSessionStarted  EventType = "im.session_started"
	EventIMSessionClosed   EventType = "im.session_closed"

	EventMailboxInboundReceived EventType = "mailbox.inbound_received"
)

// Event is the bus-level envelope every publisher emits and every
// subscriber receives.
type Event struct {
	Type      EventType
	Payload   map[string]any
	Timestamp time.Time
	Source    string
}

// Get returns payload[key] and whether it was present.
func (e Event) Get(key string) (any, bool) {
	v, ok := e.Payload[key]
	return v, ok
}

// GetString returns payload[key] as a string, or "" if absent or of a
// different type.
func (e Event) GetString(key string) string {
	v, ok := e.Payload[key]
	if !ok {
		return ""
	}

	s, _ := v.(string)
	return s
}
