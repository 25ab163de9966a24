// Package atomicfile standardizes the "write to a temp file in the
// target directory, then rename over the destination" pattern used by
// the manifest registry, the CAS store, and the mailbox store. No
// component in this module ever writes a destination file in place.
package atomicfile

import (
	"os"
	"path/filepath"

	natomic "github.com/natefinch/atomic"

	"github.com/alcionai/clues"
)

// WriteFile atomically writes data to path: a temp file is created in
// path's directory, written, flushed, and renamed over path. On any
// error the temp file is removed and never left behind.
func WriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return clues.Wrap(err, "creating parent directory")
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return clues.Wrap(err, "creating temp file")
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return clues.Wrap(err, "writing temp file")
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return clues.Wrap(err, "flushing temp file")
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return clues.Wrap(err, "closing temp file")
	}

	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return clues.Wrap(err, "setting permissions")
	}

	if err := natomic.ReplaceFile(tmpName, path); err != nil {
		os.Remove(tmpName)
		return clues.Wrap(err, "renaming into place")
	}

	return nil
}

// AppendLine appends line (with a trailing newline) to path using a
// temp-file-then-append strategy: the line is first staged to a temp
// file, then appended to the destination via an O_APPEND write. This
// mirrors the manifest registry's append-on-create semantics, where
// new records must never be interleaved with an in-progress writer.
func AppendLine(path string, line []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return clues.Wrap(err, "creating parent directory")
	}

	tmp, err := os.CreateTemp(dir, ".append-*")
	if err != nil {
		return clues.Wrap(err, "staging append")
	}

	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	buf := append(append([]byte{}, line...), '\n')

	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		return clues.Wrap(err, "staging append contents")
	}

	if err := tmp.Close(); err != nil {
		return clues.Wrap(err, "closing staged append")
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return clues.Wrap(err, "opening manifest for append")
	}
	defer f.Close()

	if _, err := f.Write(buf); err != nil {
		return clues.Wrap(err, "appending line")
	}

	return f.Sync()
}
