package automation_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/monoco-dev/fabric/pkg/automation"
)

func TestParseConfig_DefaultsVersion(t *testing.T) {
	cfg, err := automation.ParseConfig([]byte(`
triggers:
  - name: t1
    watcher: IssueWatcher
    event_type: issue.created
    enabled: true
`))
	require.NoError(t, err)
	require.Equal(t, "1.0", cfg.Version)
	require.Len(t, cfg.Triggers, 1)
	require.Equal(t, "t1", cfg.Triggers[0].Name)
}

func TestParseConfig_RejectsInvalidYAML(t *testing.T) {
	_, err := automation.ParseConfig([]byte("{not: valid: yaml"))
	require.Error(t, err)
}

func TestConfig_EnabledTriggers(t *testing.T) {
	cfg := automation.Config{
		Triggers: []automation.TriggerSpec{
			{Name: "on", Enabled: true},
			{Name: "off", Enabled: false},
		},
	}

	enabled := cfg.EnabledTriggers()
	require.Len(t, enabled, 1)
	require.Equal(t, "on", enabled[0].Name)
}

func TestConfig_Trigger(t *testing.T) {
	cfg := automation.Config{
		Triggers: []automation.TriggerSpec{{Name: "t1"}},
	}

	found, ok := cfg.Trigger("t1")
	require.True(t, ok)
	require.Equal(t, "t1", found.Name)

	_, ok = cfg.Trigger("missing")
	require.False(t, ok)
}

func TestLoadConfig_MissingFileYieldsDefault(t *testing.T) {
	cfg, err := automation.LoadConfig(filepath.Join(t.TempDir(), "automation.yaml"))
	require.NoError(t, err)
	require.Equal(t, automation.DefaultConfig(), cfg)
}

func TestLoadConfig_ReadsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "automation.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
version: "1.0"
triggers:
  - name: custom
    watcher: MemoWatcher
    event_type: memo.threshold
    enabled: true
`), 0o644))

	cfg, err := automation.LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Triggers, 1)
	require.Equal(t, "custom", cfg.Triggers[0].Name)
}

func TestDefaultConfig_HasExpectedTriggers(t *testing.T) {
	cfg := automation.DefaultConfig()

	_, ok := cfg.Trigger("memo_threshold")
	require.True(t, ok)

	_, ok = cfg.Trigger("issue_doing")
	require.True(t, ok)

	_, ok = cfg.Trigger("issue_completed")
	require.True(t, ok)
}
