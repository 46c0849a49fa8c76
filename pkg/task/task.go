// Package task launches analysis runs as local processes and tracks them to
// completion. Launch failures (bad binary, unwritable scratch space) are
// reported immediately; run failures surface later through the Handle.
package task

import (
	"context"
	"fmt"
)

// Spec describes one analysis run.
type Spec struct {
	// JobID identifies the job the run belongs to.
	JobID string

	// InputPath is the staged input file the run operates on.
	InputPath string

	// WorkDir is the per-job scratch directory the run executes in. Output
	// artifacts are expected to appear here.
	WorkDir string
}

// Handle tracks a launched run.
type Handle interface {
	// JobID returns the job the run belongs to.
	JobID() string

	// Wait blocks until the run exits and returns its failure, if any. It
	// must be called exactly once.
	Wait() error
}

// Launcher starts analysis runs. An error from Launch means the run never
// started and the job can be retried or failed without consulting a Handle.
type Launcher interface {
	Launch(ctx context.Context, spec Spec) (Handle, error)
}

// TaskError wraps run failures with context.
type TaskError struct {
	Op    string
	JobID string
	Err   error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s: job %s: %v", e.Op, e.JobID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *TaskError) Unwrap() error {
	return e.Err
}
