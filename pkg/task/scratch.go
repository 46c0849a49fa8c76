package task

import (
	"os"
	"path/filepath"
)

// Scratch manages per-job working directories under a single root. Creating
// a directory that already exists is not an error: redelivered dispatch
// messages reuse the staged state from the earlier attempt.
type Scratch struct {
	Root string
}

// EnsureJobDir returns the job's scratch directory, creating it if needed.
func (s Scratch) EnsureJobDir(jobID string) (string, error) {
	dir := filepath.Join(s.Root, jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &TaskError{Op: "EnsureJobDir", JobID: jobID, Err: err}
	}
	return dir, nil
}

// RemoveJobDir deletes the job's scratch directory and everything in it.
func (s Scratch) RemoveJobDir(jobID string) error {
	if err := os.RemoveAll(filepath.Join(s.Root, jobID)); err != nil {
		return &TaskError{Op: "RemoveJobDir", JobID: jobID, Err: err}
	}
	return nil
}
