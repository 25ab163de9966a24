package artifact

import (
	"os"
	"path/filepath"
	"time"

	"github.com/alcionai/clues"

	"github.com/monoco-dev/fabric/internal/clock"
)

// Manager composes a CAS with a project-local Manifest, presenting the
// full artifact lifecycle: Store, Get, List, Update, Delete, and
// expiry sweep. Grounded on ArtifactManager in
// monoco/core/artifacts/manager.py; the CAS root may be a shared
// global store while the manifest is always project-local, matching
// the "global artifact store" / "project-local manifest" split in
// spec.md §6.
type Manager struct {
	cas      *CAS
	manifest *Manifest
	clock    clock.Clock
}

// NewManager opens (or creates) a CAS rooted at casRoot and a manifest
// at manifestPath, defaulting to the system clock.
func NewManager(casRoot, manifestPath string, c clock.Clock) (*Manager, error) {
	if c == nil {
		c = clock.New()
	}

	cas, err := NewCAS(casRoot)
	if err != nil {
		return nil, err
	}

	manifest, err := LoadManifest(manifestPath)
	if err != nil {
		return nil, err
	}

	return &Manager{cas: cas, manifest: manifest, clock: c}, nil
}

// StoreInput describes a Store() call's optional fields.
type StoreInput struct {
	SourceType       SourceType
	ContentType      string
	OriginalFilename string
	SourceURL        string
	ParentArtifactID string
	Tags             []string
	Metadata         map[string]any
	ExpiresAt        *time.Time
}

// Store writes b into the CAS (deduplicating by content hash) and
// appends a fresh manifest record. Every call mints a new artifact_id,
// even for bytes already present in the CAS — dedup happens at the
// blob layer, never at the artifact-identity layer.
func (m *Manager) Store(b []byte, in StoreInput) (Metadata, error) {
	hash, _, err := m.cas.Store(b)
	if err != nil {
		return Metadata{}, err
	}

	now := m.clock.Now()

	contentType := in.ContentType
	if contentType == "" {
		if in.OriginalFilename != "" {
			contentType = DetectContentType(in.OriginalFilename)
		} else {
			contentType = "application/octet-stream"
		}
	}

	sourceType := in.SourceType
	if sourceType == "" {
		sourceType = SourceGenerated
	}

	rec := Metadata{
		ArtifactID:       NewArtifactID(),
		ContentHash:      hash,
		SourceType:       sourceType,
		Status:           StatusActive,
		CreatedAt:        now,
		UpdatedAt:        now,
		ExpiresAt:        in.ExpiresAt,
		ContentType:      contentType,
		SizeBytes:        int64(len(b)),
		OriginalFilename: in.OriginalFilename,
		SourceURL:        in.SourceURL,
		ParentArtifactID: in.ParentArtifactID,
		Tags:             in.Tags,
		Metadata:         in.Metadata,
	}

	if err := m.manifest.Append(rec); err != nil {
		return Metadata{}, err
	}

	return rec, nil
}

// StoreFile reads path's bytes and stores them, deriving
// OriginalFilename and ContentType automatically when not overridden.
func (m *Manager) StoreFile(path string, in StoreInput) (Metadata, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, clues.Wrap(err, "reading source file")
	}

	if in.OriginalFilename == "" {
		in.OriginalFilename = filepath.Base(path)
	}

	return m.Store(b, in)
}

// Get returns the active record for id; GetContent returns its bytes.
func (m *Manager) Get(id string) (Metadata, error) {
	rec, ok := m.manifest.Get(id)
	if !ok {
		return Metadata{}, clues.Stack(ErrNotFound).With("artifact_id", id)
	}

	return rec, nil
}

// GetContent returns the active record's bytes.
func (m *Manager) GetContent(id string) ([]byte, error) {
	rec, err := m.Get(id)
	if err != nil {
		return nil, err
	}

	return m.cas.Get(rec.ContentHash)
}

// GetContentPath returns the absolute CAS path for an active record's bytes.
func (m *Manager) GetContentPath(id string) (string, error) {
	rec, err := m.Get(id)
	if err != nil {
		return "", err
	}

	return m.cas.PathOf(rec.ContentHash), nil
}

// List proxies to the manifest's filtered listing.
func (m *Manager) List(filter ListFilter) []Metadata {
	return m.manifest.List(filter)
}

// Update mutates metadata fields only; content is immutable after Store.
func (m *Manager) Update(id string, mutate func(*Metadata)) (Metadata, error) {
	wrapped := func(rec *Metadata) {
		mutate(rec)
		rec.UpdatedAt = m.clock.Now()
	}

	return m.manifest.Update(id, wrapped)
}

// Delete removes an artifact. permanent=false soft-deletes (kept in
// the manifest for audit; the CAS blob is left in place).
// permanent=true additionally removes the manifest record and, if now
// orphaned, the CAS blob.
func (m *Manager) Delete(id string, permanent bool) error {
	if !permanent {
		return m.manifest.SoftDelete(id, m.clock.Now())
	}

	hash, err := m.manifest.HardDelete(id)
	if err != nil {
		return err
	}

	return m.cleanupCASIfOrphaned(hash)
}

// cleanupCASIfOrphaned removes the CAS blob for hash iff no live
// artifact still references it — the orphan-reclaim invariant.
func (m *Manager) cleanupCASIfOrphaned(hash string) error {
	if m.manifest.HasLiveReference(hash) {
		return nil
	}

	return m.cas.Remove(hash)
}

// CleanupExpired sweeps active→expired records whose ExpiresAt has
// passed, returning the affected artifact ids.
func (m *Manager) CleanupExpired() ([]string, error) {
	return m.manifest.SweepExpired(m.clock.Now())
}

// Stats returns manifest-wide aggregate statistics.
func (m *Manager) Stats() Stats {
	return m.manifest.Stats()
}
