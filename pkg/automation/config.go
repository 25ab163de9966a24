// Package automation wires the watcher framework, the event bus, and
// the action router into one configurable pipeline: a declarative
// Config names, per trigger, which watcher feeds which event type into
// which action(s), and Orchestrator turns that into running goroutines
// and router registrations. Grounded on
// monoco/core/automation/{orchestrator,config}.py.
package automation

import (
	"os"

	"github.com/alcionai/clues"
	"gopkg.in/yaml.v3"
)

// ActionSpec names one configured action plus its constructor
// parameters.
type ActionSpec struct {
	Type   string         `yaml:"type"`
	Params map[string]any `yaml:"params,omitempty"`
}

// TriggerSpec configures one watcher->event->action(s) wiring. Field,
// when set, names the tracked field a Condition compares against (the
// issue watcher's stage/status deltas); Condition is a small comparison
// expression evaluated by parseCondition.
type TriggerSpec struct {
	Name      string       `yaml:"name"`
	Watcher   string       `yaml:"watcher"`
	EventType string       `yaml:"event_type"`
	Condition string       `yaml:"condition,omitempty"`
	Field     string       `yaml:"field,omitempty"`
	Actions   []ActionSpec `yaml:"actions,omitempty"`
	Enabled   bool         `yaml:"enabled"`
	Priority  int          `yaml:"priority,omitempty"`
}

// Config is the full declarative automation configuration: a versioned
// list of triggers plus free-form global settings.
type Config struct {
	Version  string         `yaml:"version"`
	Triggers []TriggerSpec  `yaml:"triggers,omitempty"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// EnabledTriggers returns every trigger with Enabled set.
func (c Config) EnabledTriggers() []TriggerSpec {
	out := make([]TriggerSpec, 0, len(c.Triggers))

	for _, t := range c.Triggers {
		if t.Enabled {
			out = append(out, t)
		}
	}

	return out
}

// Trigger returns the trigger named name, if configured.
func (c Config) Trigger(name string) (TriggerSpec, bool) {
	for _, t := range c.Triggers {
		if t.Name == name {
			return t, true
		}
	}

	return TriggerSpec{}, false
}

// ParseConfig decodes a YAML automation config document.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, clues.Wrap(err, "parsing automation config yaml")
	}

	if cfg.Version == "" {
		cfg.Version = "1.0"
	}

	return cfg, nil
}

// LoadConfig reads and parses the automation config file at path. A
// missing file yields DefaultConfig() rather than an error, matching
// the original loader's tolerance for a project with no automation.yaml
// yet.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	if err != nil {
		return Config{}, clues.Wrap(err, "reading automation config")
	}

	return ParseConfig(raw)
}

// DefaultConfig mirrors the original's create_default_config: one
// memo-threshold trigger spawning an Architect, and two issue
// stage-change triggers (entering "doing" spawns an Engineer; entering
// "done" sends a completion notification).
func DefaultConfig() Config {
	return Config{
		Version: "1.0",
		Triggers: []TriggerSpec{
			{
				Name:      "memo_threshold",
				Watcher:   "MemoWatcher",
				EventType: "memo.threshold",
				Condition: "pending_count >= 5",
				Enabled:   true,
				Actions: []ActionSpec{
					{Type: "SpawnAgentAction", Params: map[string]any{"role": "Architect"}},
				},
			},
			{
				Name:      "issue_doing",
				Watcher:   "IssueWatcher",
				EventType: "issue.stage_changed",
				Field:     "stage",
				Condition: "value == 'doing'",
				Enabled:   true,
				Actions: []ActionSpec{
					{Type: "SpawnAgentAction", Params: map[string]any{"role": "Engineer"}},
				},
			},
			{
				Name:      "issue_completed",
				Watcher:   "IssueWatcher",
				EventType: "issue.stage_changed",
				Field:     "stage",
				Condition: "value == 'done'",
				Enabled:   true,
				Actions: []ActionSpec{
					{Type: "SendNotificationAction", Params: map[string]any{
						"mode":             "console",
						"message_template": "Issue {issue_id} completed!",
					}},
				},
			},
		},
		Settings: map[string]any{
			"default_poll_interval": 5.0,
			"max_concurrent_actions": 10,
			"action_timeout":         300,
		},
	}
}
