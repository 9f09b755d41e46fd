package output

import (
	"os"
	"path/filepath"
)

// CommitError indicates the atomic write failed; the prior destination
// content is left untouched.
type CommitError struct {
	Path string
	Err  error
}

func (e *CommitError) Error() string {
	return "commit " + e.Path + ": " + e.Err.Error()
}

func (e *CommitError) Unwrap() error { return e.Err }

// Commit writes data to path atomically: a temp file in the same
// directory, flushed durable, then renamed over the destination.
// Readers polling path see either the prior complete content or the
// new complete content, never a partial write.
func Commit(path string, data []byte) error {
	dir := filepath.Dir(path)
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &CommitError{Path: path, Err: err}
	}

	tmp, err := os.CreateTemp(dir, ".anoncal-*.ics")
	if err != nil {
		return &CommitError{Path: path, Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &CommitError{Path: path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &CommitError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &CommitError{Path: path, Err: err}
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return &CommitError{Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return &CommitError{Path: path, Err: err}
	}

	return nil
}
