package jobrecord

import (
	"errors"
	"fmt"
)

// Sentinel errors for record store operations.
var (
	// ErrNotFound indicates no record exists for the job id.
	ErrNotFound = errors.New("job record not found")

	// ErrAlreadyExists indicates a record with the job id already exists.
	ErrAlreadyExists = errors.New("job record already exists")

	// ErrGuardedField indicates an unconditional update named a field that
	// participates in the status lattice and may only change via Transition.
	ErrGuardedField = errors.New("field may only change via transition")
)

// StoreError wraps store failures with operation context.
type StoreError struct {
	Op    string
	Table string
	JobID string
	Err   error
}

func (e *StoreError) Error() string {
	if e.JobID != "" {
		return fmt.Sprintf("jobrecord %s: %s/%s: %v", e.Op, e.Table, e.JobID, e.Err)
	}
	return fmt.Sprintf("jobrecord %s: %s: %v", e.Op, e.Table, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists returns true if the error indicates a duplicate create.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}
