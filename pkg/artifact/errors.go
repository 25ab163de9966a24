package artifact

import "github.com/alcionai/clues"

// Sentinel error kinds, per spec.md §7: InvalidInput, NotFound,
// Transient, Fatal. Conflict does not apply to this component (a CAS
// hash collision is dedup, not a conflict).
var (
	ErrInvalidInput    = clues.New("invalid artifact input")
	ErrNotFound        = clues.New("artifact not found")
	ErrManifestHeader  = clues.New("manifest file header is corrupted")
	ErrDirectoryCreate = clues.New("failed to create artifact store directories")
)
