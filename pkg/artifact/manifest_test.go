package artifact_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/monoco-dev/fabric/pkg/artifact"
)

func TestManifest_AppendAndGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.jsonl")

	m, err := artifact.LoadManifest(path)
	require.NoError(t, err)

	now := time.Now().UTC()
	rec := artifact.Metadata{
		ArtifactID:  "a1",
		ContentHash: "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		Status:      artifact.StatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	require.NoError(t, m.Append(rec))

	got, ok := m.Get("a1")
	require.True(t, ok)
	require.Equal(t, rec.ContentHash, got.ContentHash)

	reloaded, err := artifact.LoadManifest(path)
	require.NoError(t, err)

	got2, ok := reloaded.Get("a1")
	require.True(t, ok)
	require.Equal(t, rec.ContentHash, got2.ContentHash)
}

func TestManifest_SkipsCorruptedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{not json}\n{\"artifact_id\":\"a2\",\"status\":\"active\"}\n"), 0o644))

	m, err := artifact.LoadManifest(path)
	require.NoError(t, err)

	require.Equal(t, 1, m.CorruptedLines())

	_, ok := m.Get("a2")
	require.True(t, ok)
}

func TestManifest_HardDeleteRemovesRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.jsonl")
	m, err := artifact.LoadManifest(path)
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, m.Append(artifact.Metadata{
		ArtifactID: "a3", ContentHash: "deadbeef", Status: artifact.StatusActive,
		CreatedAt: now, UpdatedAt: now,
	}))

	hash, err := m.HardDelete("a3")
	require.NoError(t, err)
	require.Equal(t, "deadbeef", hash)

	_, ok := m.GetAny("a3")
	require.False(t, ok)
}

func TestManifest_SweepExpired(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.jsonl")
	m, err := artifact.LoadManifest(path)
	require.NoError(t, err)

	now := time.Now().UTC()
	past := now.Add(-time.Hour)

	require.NoError(t, m.Append(artifact.Metadata{
		ArtifactID: "a4", ContentHash: "h", Status: artifact.StatusActive,
		CreatedAt: now, UpdatedAt: now, ExpiresAt: &past,
	}))

	affected, err := m.SweepExpired(now)
	require.NoError(t, err)
	require.Equal(t, []string{"a4"}, affected)

	rec, ok := m.GetAny("a4")
	require.True(t, ok)
	require.Equal(t, artifact.StatusExpired, rec.Status)
}
