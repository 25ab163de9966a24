package watcher

import (
	"context"

	"github.com/monoco-dev/fabric/internal/frontmatter"
)

// MailboxWatcher watches a provider-sharded inbound directory
// (mailboxRoot/inbound/<provider>/) for newly created message files
// and emits mailbox.inbound_received with provider/session/message ids
// attached.
type MailboxWatcher struct {
	*PollingWatcher
}

// NewMailboxWatcher constructs a MailboxWatcher rooted at
// config.Path, which should be a mailbox's inbound/ directory.
func NewMailboxWatcher(config WatchConfig) *MailboxWatcher {
	if len(config.Patterns) == 0 {
		config.Patterns = []string{"*.md"}
	}

	config.Recursive = true

	mw := &MailboxWatcher{}
	mw.PollingWatcher = NewPollingWatcher("MailboxWatcher", config, checkerFunc(mw.checkChanges), nil)

	return mw
}

func (w *MailboxWatcher) checkChanges(ctx context.Context, emit func(context.Context, FileEvent) error) error {
	res, err := w.scan(ctx)
	if err != nil {
		return err
	}

	for _, path := range sortedKeys(res.created) {
		st := res.created[path]

		meta, _, err := frontmatter.Parse([]byte(st.content))
		if err != nil {
			continue
		}

		provider, _ := frontmatter.StringField(meta, "provider")
		messageID, _ := frontmatter.StringField(meta, "id")
		sessionID, _ := frontmatter.StringField(meta, "session.id")

		if err := emit(ctx, FileEvent{
			Path:       path,
			ChangeType: ChangeCreated,
			NewContent: st.content,
			Metadata: map[string]any{
				"provider":   provider,
				"message_id": messageID,
				"session_id": sessionID,
			},
		}); err != nil {
			return err
		}
	}

	return nil
}

// MailboxEventType is always mailbox.inbound_received; the watcher
// only reacts to new inbound message files.
func MailboxEventType(event FileEvent) string {
	return "mailbox.inbound_received"
}
