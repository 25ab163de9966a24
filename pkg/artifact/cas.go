package artifact

import (
	"os"
	"path/filepath"

	"github.com/alcionai/clues"

	"github.com/monoco-dev/fabric/internal/atomicfile"
)

// CAS is the sharded, deduplicated, content-addressable byte store.
// Operations: Store, PathOf, Exists, Remove. Grounded on
// ArtifactManager._get_cas_path / _store_in_cas / _cleanup_cas_if_orphaned.
type CAS struct {
	root string
}

// NewCAS returns a CAS rooted at root, creating it if necessary.
func NewCAS(root string) (*CAS, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, clues.Stack(ErrDirectoryCreate, clues.Wrap(err, root))
	}

	return &CAS{root: root}, nil
}

// PathOf returns the absolute path a hash's blob would live at,
// whether or not it currently exists.
func (c *CAS) PathOf(hash string) string {
	return filepath.Join(c.root, RelativeCASPath(hash))
}

// Exists reports whether a blob for hash is currently stored.
func (c *CAS) Exists(hash string) bool {
	_, err := os.Stat(c.PathOf(hash))
	return err == nil
}

// Store writes b under its content hash and returns (hash, path). If a
// blob already exists at that hash, the cryptographic collision is
// treated as identical bytes and the write is skipped — this is the
// dedup point.
func (c *CAS) Store(b []byte) (string, string, error) {
	hash := ComputeContentHash(b)
	path := c.PathOf(hash)

	if c.Exists(hash) {
		return hash, path, nil
	}

	if err := atomicfile.WriteFile(path, b, 0o644); err != nil {
		return "", "", clues.Wrap(err, "writing CAS blob").With("content_hash", hash)
	}

	return hash, path, nil
}

// Get reads back the bytes stored at hash.
func (c *CAS) Get(hash string) ([]byte, error) {
	b, err := os.ReadFile(c.PathOf(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, clues.Stack(ErrNotFound, clues.Wrap(err, hash))
		}

		return nil, clues.Wrap(err, "reading CAS blob")
	}

	return b, nil
}

// Remove unlinks the blob at hash and best-effort removes now-empty
// shard directories. Callers are responsible for confirming no live
// artifact references hash before calling Remove (orphan reclaim is
// implemented one layer up, in Manager).
func (c *CAS) Remove(hash string) error {
	path := c.PathOf(hash)

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return clues.Wrap(err, "removing CAS blob")
	}

	shard2 := filepath.Dir(path)
	shard1 := filepath.Dir(shard2)

	_ = removeIfEmpty(shard2)
	_ = removeIfEmpty(shard1)

	return nil
}

func removeIfEmpty(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	if len(entries) > 0 {
		return nil
	}

	return os.Remove(dir)
}
