package artifact_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/monoco-dev/fabric/internal/clock"
	"github.com/monoco-dev/fabric/pkg/artifact"
)

func newManager(t *testing.T) (*artifact.Manager, *clock.Fake) {
	t.Helper()

	fc := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	mgr, err := artifact.NewManager(
		filepath.Join(t.TempDir(), "cas"),
		filepath.Join(t.TempDir(), "manifest.jsonl"),
		fc,
	)
	require.NoError(t, err)

	return mgr, fc
}

// Scenario 1 from spec.md §8: dedup.
func TestManager_DedupScenario(t *testing.T) {
	mgr, _ := newManager(t)

	rec1, err := mgr.Store([]byte("hello"), artifact.StoreInput{SourceType: artifact.SourceGenerated})
	require.NoError(t, err)

	rec2, err := mgr.Store([]byte("hello"), artifact.StoreInput{SourceType: artifact.SourceUploaded})
	require.NoError(t, err)

	require.NotEqual(t, rec1.ArtifactID, rec2.ArtifactID)
	require.Equal(t, rec1.ContentHash, rec2.ContentHash)
	require.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", rec1.ContentHash)

	path, err := mgr.GetContentPath(rec1.ArtifactID)
	require.NoError(t, err)

	path2, err := mgr.GetContentPath(rec2.ArtifactID)
	require.NoError(t, err)
	require.Equal(t, path, path2)

	// soft-delete one: blob survives because the other artifact is still live.
	require.NoError(t, mgr.Delete(rec1.ArtifactID, false))
	content, err := mgr.GetContent(rec2.ArtifactID)
	require.NoError(t, err)
	require.Equal(t, "hello", string(content))

	// soft-delete both: blob still survives (soft delete never touches CAS).
	require.NoError(t, mgr.Delete(rec2.ArtifactID, false))

	// hard-delete both: blob is reclaimed only once no live reference remains.
	require.NoError(t, mgr.Delete(rec1.ArtifactID, true))
	require.NoError(t, mgr.Delete(rec2.ArtifactID, true))

	_, err = mgr.Get(rec1.ArtifactID)
	require.Error(t, err)
}

func TestManager_UpdateNeverTouchesContentHash(t *testing.T) {
	mgr, _ := newManager(t)

	rec, err := mgr.Store([]byte("data"), artifact.StoreInput{})
	require.NoError(t, err)

	updated, err := mgr.Update(rec.ArtifactID, func(m *artifact.Metadata) {
		m.Tags = []string{"important"}
	})
	require.NoError(t, err)
	require.Equal(t, rec.ContentHash, updated.ContentHash)
	require.Equal(t, []string{"important"}, updated.Tags)
}

func TestManager_CleanupExpired(t *testing.T) {
	mgr, fc := newManager(t)

	rec, err := mgr.Store([]byte("temp"), artifact.StoreInput{})
	require.NoError(t, err)

	expiry := fc.Now().Add(time.Minute)
	_, err = mgr.Update(rec.ArtifactID, func(m *artifact.Metadata) {
		m.ExpiresAt = &expiry
	})
	require.NoError(t, err)

	fc.Advance(2 * time.Minute)

	affected, err := mgr.CleanupExpired()
	require.NoError(t, err)
	require.Equal(t, []string{rec.ArtifactID}, affected)

	_, err = mgr.Get(rec.ArtifactID)
	require.Error(t, err, "expired artifacts are excluded from Get")
}
