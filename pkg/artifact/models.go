// Package artifact implements the content-addressable artifact store:
// a sharded, deduplicated byte store (the CAS) paired with a JSONL
// manifest registry of artifact metadata. Grounded on
// monoco/core/artifacts/{manager,models}.py.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"path/filepath"
	"regexp"
	"time"

	"github.com/alcionai/clues"
	"github.com/google/uuid"
)

// SourceType classifies how an artifact's bytes came to exist.
type SourceType string

const (
	SourceGenerated SourceType = "generated"
	SourceUploaded  SourceType = "uploaded"
	SourceImported  SourceType = "imported"
	SourceDerived   SourceType = "derived"
)

// Status is an artifact's lifecycle state.
type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
	StatusExpired  Status = "expired"
	StatusDeleted  Status = "deleted"
)

var hexHash64 = regexp.MustCompile(`^[0-9a-f]{64}$`)

// Metadata is one artifact's manifest record.
type Metadata struct {
	ArtifactID       string         `json:"artifact_id"`
	ContentHash      string         `json:"content_hash"`
	SourceType       SourceType     `json:"source_type"`
	Status           Status         `json:"status"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	ExpiresAt        *time.Time     `json:"expires_at,omitempty"`
	ContentType      string         `json:"content_type"`
	SizeBytes        int64          `json:"size_bytes"`
	OriginalFilename string         `json:"original_filename,omitempty"`
	SourceURL        string         `json:"source_url,omitempty"`
	ParentArtifactID string         `json:"parent_artifact_id,omitempty"`
	Tags             []string       `json:"tags,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// IsExpired reports whether the record's expiry has passed as of now.
func (m Metadata) IsExpired(now time.Time) bool {
	return m.ExpiresAt != nil && !m.ExpiresAt.After(now)
}

// CASPathComponents returns the shard prefix pair for the content hash.
func (m Metadata) CASPathComponents() (string, string, string) {
	return shardComponents(m.ContentHash)
}

// shardComponents splits a 64-hex content hash into its two 2-char
// shard prefixes and the hash itself.
func shardComponents(hash string) (string, string, string) {
	if len(hash) < 4 {
		return "", "", hash
	}

	return hash[0:2], hash[2:4], hash
}

// RelativeCASPath returns "<hh>/<hh>/<64-hex>" for the hash.
func RelativeCASPath(hash string) string {
	a, b, h := shardComponents(hash)
	return filepath.Join(a, b, h)
}

// ValidateContentHash enforces the exactly-64-lowercase-hex invariant.
func ValidateContentHash(hash string) error {
	if !hexHash64.MatchString(hash) {
		return clues.New("content_hash must be 64 lowercase hex characters").
			With("content_hash", hash)
	}

	return nil
}

// ComputeContentHash returns the lowercase hex SHA-256 digest of b.
func ComputeContentHash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// ComputeReaderHash streams r through SHA-256, returning the lowercase
// hex digest and the total byte count read, without buffering the
// entire content in memory.
func ComputeReaderHash(r io.Reader) (string, int64, error) {
	h := sha256.New()

	n, err := io.Copy(h, r)
	if err != nil {
		return "", 0, clues.Wrap(err, "hashing content")
	}

	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// NewArtifactID mints an opaque unique handle, distinct per call even
// for identical bytes (dedup happens at the content_hash/CAS level,
// never at the artifact_id level).
func NewArtifactID() string {
	return uuid.NewString()
}

// extensionContentTypes is a minimal extension→MIME lookup, mirroring
// _detect_content_type in the original manager.
var extensionContentTypes = map[string]string{
	".txt":  "text/plain",
	".md":   "text/markdown",
	".json": "application/json",
	".yaml": "application/yaml",
	".yml":  "application/yaml",
	".html": "text/html",
	".csv":  "text/csv",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".pdf":  "application/pdf",
	".zip":  "application/zip",
}

// DetectContentType guesses a MIME type from filename's extension,
// falling back to application/octet-stream.
func DetectContentType(filename string) string {
	ext := filepath.Ext(filename)
	if ct, ok := extensionContentTypes[ext]; ok {
		return ct
	}

	return "application/octet-stream"
}
