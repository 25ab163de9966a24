package mailbox

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/alcionai/clues"
	"github.com/google/uuid"

	"github.com/monoco-dev/fabric/internal/atomicfile"
	"github.com/monoco-dev/fabric/internal/frontmatter"
	"github.com/monoco-dev/fabric/internal/pathutil"
)

const (
	inboundDir    = "inbound"
	outboundDir   = "outbound"
	archiveDir    = "archive"
	stateDir      = ".state"
	deadletterDir = ".deadletter"
	locksFile     = "locks.json"
)

// Store manages the filesystem layout of a mailbox root:
//
//	inbound/<provider>/    outbound/<provider>/    archive/<provider>/
//	.state/                .deadletter/<provider>/
type Store struct {
	Root string
}

// New returns a Store rooted at root. Directories are created lazily
// as providers are seen, matching the original's per-provider
// mkdir-on-write behavior rather than pre-creating every known
// provider up front.
func New(root string) *Store {
	return &Store{Root: root}
}

func (s *Store) dir(kind, provider string) string {
	return filepath.Join(s.Root, kind, provider)
}

func (s *Store) ensureDir(kind, provider string) (string, error) {
	dir := s.dir(kind, provider)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", clues.Wrap(err, "creating mailbox directory").With("dir", pathutil.LoggableDir(dir))
	}

	return dir, nil
}

// CreateInboundMessage atomically writes msg into inbound/<provider>/,
// returning the path written. The filename is the message id prefixed
// with a UTC timestamp.
func (s *Store) CreateInboundMessage(msg Message, now time.Time) (string, error) {
	dir, err := s.ensureDir(inboundDir, msg.Provider)
	if err != nil {
		return "", err
	}

	filename := messageFilename(now, msg.ID)
	path := filepath.Join(dir, filename)

	raw, err := encodeMessage(msg)
	if err != nil {
		return "", err
	}

	if err := atomicfile.WriteFile(path, raw, 0o644); err != nil {
		return "", clues.Wrap(err, "writing inbound message")
	}

	return path, nil
}

// CreateOutboundDraft writes draft into outbound/<provider>/ and
// returns the path written.
func (s *Store) CreateOutboundDraft(draft Draft, now time.Time) (string, error) {
	dir, err := s.ensureDir(outboundDir, draft.Provider)
	if err != nil {
		return "", err
	}

	id := draft.ID
	if id == "" {
		id = uuid.NewString()
	}

	filename := messageFilename(now, id)
	path := filepath.Join(dir, filename)

	meta := map[string]any{}
	for k, v := range draft.Metadata {
		meta[k] = v
	}

	meta["id"] = id
	meta["provider"] = draft.Provider

	if draft.SessionID != "" {
		meta["session"] = map[string]any{"id": draft.SessionID}
	}

	raw, err := frontmatter.Write(meta, draft.ContentText)
	if err != nil {
		return "", err
	}

	if err := atomicfile.WriteFile(path, raw, 0o644); err != nil {
		return "", clues.Wrap(err, "writing outbound draft")
	}

	return path, nil
}

// ListInbound returns every inbound message across every provider
// directory, or just provider's if provider is non-empty, sorted by
// timestamp descending (newest first).
func (s *Store) ListInbound(provider string) ([]Message, error) {
	providers, err := s.providerDirs(inboundDir, provider)
	if err != nil {
		return nil, err
	}

	var messages []Message

	for _, dir := range providers {
		files, err := filepath.Glob(filepath.Join(dir, "*.md"))
		if err != nil {
			return nil, clues.Wrap(err, "globbing inbound directory")
		}

		for _, f := range files {
			msg, err := s.readMessageFile(f)
			if err != nil {
				continue
			}

			messages = append(messages, msg)
		}
	}

	sort.Slice(messages, func(i, j int) bool { return messages[i].Timestamp.After(messages[j].Timestamp) })

	return messages, nil
}

func (s *Store) providerDirs(kind, provider string) ([]string, error) {
	if provider != "" {
		return []string{s.dir(kind, provider)}, nil
	}

	base := filepath.Join(s.Root, kind)

	entries, err := os.ReadDir(base)
	if os.IsNotExist(err) {
		return nil, nil
	}

	if err != nil {
		return nil, clues.Wrap(err, "reading mailbox directory").With("dir", pathutil.LoggableDir(base))
	}

	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(base, e.Name()))
		}
	}

	return dirs, nil
}

// FindByID searches inbound, then outbound, then archive directories
// for the file whose frontmatter id matches messageID.
func (s *Store) FindByID(messageID string) (string, error) {
	for _, kind := range []string{inboundDir, outboundDir, archiveDir} {
		dirs, err := s.providerDirs(kind, "")
		if err != nil {
			return "", err
		}

		for _, dir := range dirs {
			files, err := filepath.Glob(filepath.Join(dir, "*.md"))
			if err != nil {
				continue
			}

			for _, f := range files {
				meta, _, err := parseFile(f)
				if err != nil {
					continue
				}

				if id, _ := frontmatter.StringField(meta, "id"); id == messageID {
					return f, nil
				}
			}
		}
	}

	return "", clues.New("message not found").With("message_id", messageID)
}

// Archive moves the message identified by messageID from
// inbound/outbound into archive/<provider>/, preserving its filename.
// Artifact files referenced by the message are content-addressed and
// are never moved by this call.
func (s *Store) Archive(messageID string) (string, error) {
	src, err := s.FindByID(messageID)
	if err != nil {
		return "", err
	}

	meta, _, err := parseFile(src)
	if err != nil {
		return "", err
	}

	provider, _ := frontmatter.StringField(meta, "provider")
	if provider == "" {
		provider = "unknown"
	}

	dir, err := s.ensureDir(archiveDir, provider)
	if err != nil {
		return "", err
	}

	dest := filepath.Join(dir, filepath.Base(src))
	if err := os.Rename(src, dest); err != nil {
		return "", clues.Wrap(err, "archiving message")
	}

	return dest, nil
}

// MoveToDeadletter moves the message identified by messageID into
// .deadletter/<provider>/, used when retry/backoff is exhausted.
func (s *Store) MoveToDeadletter(messageID string) (string, error) {
	src, err := s.FindByID(messageID)
	if err != nil {
		return "", err
	}

	meta, _, err := parseFile(src)
	if err != nil {
		return "", err
	}

	provider, _ := frontmatter.StringField(meta, "provider")
	if provider == "" {
		provider = "unknown"
	}

	dir, err := s.ensureDir(deadletterDir, provider)
	if err != nil {
		return "", err
	}

	dest := filepath.Join(dir, filepath.Base(src))
	if err := os.Rename(src, dest); err != nil {
		return "", clues.Wrap(err, "moving message to deadletter")
	}

	return dest, nil
}

// LocksPath returns the path to the state directory's locks file.
func (s *Store) LocksPath() string {
	return filepath.Join(s.Root, stateDir, locksFile)
}

func (s *Store) readMessageFile(path string) (Message, error) {
	meta, body, err := parseFile(path)
	if err != nil {
		return Message{}, err
	}

	return messageFromMetadata(meta, body, path), nil
}

func parseFile(path string) (map[string]any, string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, "", clues.Wrap(err, "reading message file")
	}

	return frontmatter.Parse(raw)
}

func messageFromMetadata(meta map[string]any, body, path string) Message {
	id, _ := frontmatter.StringField(meta, "id")
	provider, _ := frontmatter.StringField(meta, "provider")
	sessionID, _ := frontmatter.StringField(meta, "session.id")

	var ts time.Time
	if s, ok := frontmatter.StringField(meta, "timestamp"); ok {
		if parsed, err := time.Parse(time.RFC3339, s); err == nil {
			ts = parsed
		}
	}

	return Message{
		ID:        id,
		Provider:  provider,
		SessionID: sessionID,
		Timestamp: ts,
		Metadata:  meta,
		Body:      body,
		Path:      path,
	}
}

func encodeMessage(msg Message) ([]byte, error) {
	meta := map[string]any{}
	for k, v := range msg.Metadata {
		meta[k] = v
	}

	meta["id"] = msg.ID
	meta["provider"] = msg.Provider

	if msg.SessionID != "" {
		meta["session"] = map[string]any{"id": msg.SessionID}
	}

	if !msg.Timestamp.IsZero() {
		meta["timestamp"] = msg.Timestamp.UTC().Format(time.RFC3339)
	}

	return frontmatter.Write(meta, msg.Body)
}

func messageFilename(now time.Time, id string) string {
	return now.UTC().Format("20060102T150405") + "_" + id + ".md"
}
