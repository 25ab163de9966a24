package artifact

import (
	"bytes"
	"encoding/json"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/alcionai/clues"

	"github.com/monoco-dev/fabric/internal/atomicfile"
)

// Manifest is the append-only JSONL registry of artifact metadata for
// one project. Append-on-create; rewrite-on-mutation. A single mutex
// serializes writers; readers tolerate the rename race inherent to
// atomic rewrite (they see either the pre- or post-rename file, never
// a torn line). Grounded on ArtifactManager's manifest handling.
type Manifest struct {
	path string

	mu    sync.Mutex
	cache map[string]Metadata

	// corruptedLines counts unparseable lines skipped on load, reserved
	// for diagnostics per spec.md §4.B.
	corruptedLines int
}

// LoadManifest reads path (if it exists) into memory, skipping
// unparseable lines and counting them.
func LoadManifest(path string) (*Manifest, error) {
	m := &Manifest{
		path:  path,
		cache: map[string]Metadata{},
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}

		return nil, clues.Wrap(err, "reading manifest")
	}

	for _, line := range bytes.Split(b, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var rec Metadata
		if err := json.Unmarshal(line, &rec); err != nil {
			m.corruptedLines++
			continue
		}

		m.cache[rec.ArtifactID] = rec
	}

	return m, nil
}

// CorruptedLines returns the count of unparseable lines dropped on load.
func (m *Manifest) CorruptedLines() int {
	return m.corruptedLines
}

// Append writes a brand-new record via append-on-create: it never
// rewrites the file, only appends a single JSON line.
func (m *Manifest) Append(rec Metadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	line, err := json.Marshal(rec)
	if err != nil {
		return clues.Wrap(err, "marshaling manifest record")
	}

	if err := atomicfile.AppendLine(m.path, line); err != nil {
		return clues.Wrap(err, "appending manifest record")
	}

	m.cache[rec.ArtifactID] = rec

	return nil
}

// rewriteLocked replaces the entire on-disk manifest with the current
// in-memory cache, used after any mutation (update, hard-delete).
func (m *Manifest) rewriteLocked() error {
	ids := make([]string, 0, len(m.cache))
	for id := range m.cache {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	var buf bytes.Buffer

	for _, id := range ids {
		line, err := json.Marshal(m.cache[id])
		if err != nil {
			return clues.Wrap(err, "marshaling manifest record")
		}

		buf.Write(line)
		buf.WriteByte('\n')
	}

	return atomicfile.WriteFile(m.path, buf.Bytes(), 0o644)
}

// Get returns an active (non-deleted, non-expired) record by id.
func (m *Manifest) Get(id string) (Metadata, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.cache[id]
	if !ok || rec.Status == StatusDeleted || rec.Status == StatusExpired {
		return Metadata{}, false
	}

	return rec, true
}

// GetAny returns a record by id regardless of status.
func (m *Manifest) GetAny(id string) (Metadata, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.cache[id]
	return rec, ok
}

// ListFilter narrows List results.
type ListFilter struct {
	Status         Status
	SourceType     SourceType
	Tags           []string
	IncludeExpired bool
}

// List returns records matching filter, sorted by CreatedAt descending.
func (m *Manifest) List(filter ListFilter) []Metadata {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Metadata, 0, len(m.cache))

	for _, rec := range m.cache {
		if rec.Status == StatusDeleted {
			continue
		}

		if rec.Status == StatusExpired && !filter.IncludeExpired {
			continue
		}

		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}

		if filter.SourceType != "" && rec.SourceType != filter.SourceType {
			continue
		}

		if !tagsSubset(filter.Tags, rec.Tags) {
			continue
		}

		out = append(out, rec)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return out
}

func tagsSubset(want, have []string) bool {
	if len(want) == 0 {
		return true
	}

	haveSet := make(map[string]struct{}, len(have))
	for _, t := range have {
		haveSet[t] = struct{}{}
	}

	for _, t := range want {
		if _, ok := haveSet[t]; !ok {
			return false
		}
	}

	return true
}

// Update mutates metadata fields only (never content/content_hash) and
// rewrites the manifest.
func (m *Manifest) Update(id string, mutate func(*Metadata)) (Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.cache[id]
	if !ok {
		return Metadata{}, clues.Stack(ErrNotFound).With("artifact_id", id)
	}

	hash := rec.ContentHash
	mutate(&rec)
	rec.ContentHash = hash // content_hash is immutable via Update

	m.cache[id] = rec

	if err := m.rewriteLocked(); err != nil {
		return Metadata{}, err
	}

	return rec, nil
}

// SoftDelete marks a record deleted without removing it from the
// manifest (audit trail is preserved).
func (m *Manifest) SoftDelete(id string, now time.Time) error {
	_, err := m.Update(id, func(rec *Metadata) {
		rec.Status = StatusDeleted
		rec.UpdatedAt = now
	})

	return err
}

// HardDelete removes id from the manifest entirely and reports the
// content hash it referenced, so the caller (Manager) can decide
// whether the CAS blob is now orphaned.
func (m *Manifest) HardDelete(id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.cache[id]
	if !ok {
		return "", clues.Stack(ErrNotFound).With("artifact_id", id)
	}

	delete(m.cache, id)

	if err := m.rewriteLocked(); err != nil {
		return "", err
	}

	return rec.ContentHash, nil
}

// HasLiveReference reports whether any non-deleted record still
// references hash — the orphan-reclaim check.
func (m *Manifest) HasLiveReference(hash string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range m.cache {
		if rec.ContentHash == hash && rec.Status != StatusDeleted {
			return true
		}
	}

	return false
}

// SweepExpired transitions every active record whose ExpiresAt has
// passed to Status expired, returning the affected ids.
func (m *Manifest) SweepExpired(now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var affected []string

	for id, rec := range m.cache {
		if rec.Status != StatusActive {
			continue
		}

		if rec.IsExpired(now) {
			rec.Status = StatusExpired
			rec.UpdatedAt = now
			m.cache[id] = rec
			affected = append(affected, id)
		}
	}

	if len(affected) == 0 {
		return nil, nil
	}

	if err := m.rewriteLocked(); err != nil {
		return nil, err
	}

	return affected, nil
}

// Stats summarizes manifest contents for operational visibility.
type Stats struct {
	CountByStatus map[Status]int
	TotalSize     int64
	Count         int
}

// Stats computes counts by status and total byte size across all
// records (including soft-deleted, for audit purposes).
func (m *Manifest) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Stats{CountByStatus: map[Status]int{}}

	for _, rec := range m.cache {
		st.CountByStatus[rec.Status]++
		st.TotalSize += rec.SizeBytes
		st.Count++
	}

	return st
}
