package courier

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/alcionai/clues"

	"github.com/monoco-dev/fabric/internal/atomicfile"
	"github.com/monoco-dev/fabric/internal/pathutil"
)

// ProjectInfo describes a project registered under a webhook slug.
type ProjectInfo struct {
	Slug        string         `json:"slug"`
	RootPath    string         `json:"root_path"`
	MailboxPath string         `json:"mailbox_path"`
	Config      map[string]any `json:"config"`
}

// DingtalkSecret returns the project's configured DingTalk webhook
// secret, or "" if none is set.
func (p ProjectInfo) DingtalkSecret() string {
	if p.Config == nil {
		return ""
	}

	s, _ := p.Config["dingtalk_secret"].(string)

	return s
}

// Registry maps webhook slugs to registered projects, persisted as
// JSON so the CLI and the daemon share one view across process
// restarts.
type Registry struct {
	path string

	mu       sync.RWMutex
	projects map[string]ProjectInfo
}

// NewRegistry constructs a Registry persisted at path. Call Load to
// populate it from disk.
func NewRegistry(path string) *Registry {
	return &Registry{path: path, projects: map[string]ProjectInfo{}}
}

// Load reads the persisted registry file, tolerating a missing file
// by starting empty.
func (r *Registry) Load() error {
	raw, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		return nil
	}

	if err != nil {
		return clues.Wrap(err, "reading project registry").With("path", pathutil.LoggableDir(r.path))
	}

	var projects map[string]ProjectInfo
	if err := json.Unmarshal(raw, &projects); err != nil {
		return clues.Wrap(err, "parsing project registry")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.projects = projects

	return nil
}

// Register records root under slug, deriving its mailbox path as
// <root>/.monoco/mailbox, and persists the registry. If root contains
// a .env file with a DINGTALK_SECRET= line, it's folded into config
// under the "dingtalk_secret" key.
func (r *Registry) Register(slug, root string, config map[string]any) (ProjectInfo, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return ProjectInfo{}, clues.Wrap(err, "resolving project root")
	}

	merged := map[string]any{}
	for k, v := range config {
		merged[k] = v
	}

	if secret := readDingtalkSecret(abs); secret != "" {
		merged["dingtalk_secret"] = secret
	}

	info := ProjectInfo{
		Slug:        slug,
		RootPath:    abs,
		MailboxPath: filepath.Join(abs, ".monoco", "mailbox"),
		Config:      merged,
	}

	r.mu.Lock()
	r.projects[slug] = info
	r.mu.Unlock()

	return info, r.save()
}

// Get returns the project registered under slug.
func (r *Registry) Get(slug string) (ProjectInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.projects[slug]

	return p, ok
}

// List returns every registered project, sorted by slug.
func (r *Registry) List() []ProjectInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ProjectInfo, 0, len(r.projects))
	for _, p := range r.projects {
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })

	return out
}

func (r *Registry) save() error {
	r.mu.RLock()
	raw, err := json.MarshalIndent(r.projects, "", "  ")
	r.mu.RUnlock()

	if err != nil {
		return clues.Wrap(err, "encoding project registry")
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return clues.Wrap(err, "creating registry directory")
	}

	if err := atomicfile.WriteFile(r.path, raw, 0o644); err != nil {
		return clues.Wrap(err, "writing project registry")
	}

	return nil
}

// readDingtalkSecret scans root/.env for a DINGTALK_SECRET= line,
// stripping surrounding quotes. Returns "" if the file or the key is
// absent.
func readDingtalkSecret(root string) string {
	f, err := os.Open(filepath.Join(root, ".env"))
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "DINGTALK_SECRET=") {
			continue
		}

		val := strings.TrimPrefix(line, "DINGTALK_SECRET=")
		val = strings.TrimSpace(val)
		val = strings.Trim(val, `"'`)

		return val
	}

	return ""
}
