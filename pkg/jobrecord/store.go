package jobrecord

import "context"

// TransitionResult reports the outcome of a conditional status transition.
//
// A conflict is a normal outcome, not an error: it means another worker
// already advanced the record, and callers must treat the event as handled.
type TransitionResult int

const (
	// TransitionApplied means the record matched the expected status and
	// the change was written.
	TransitionApplied TransitionResult = iota

	// TransitionConflict means the record's current status did not match
	// the expected status and nothing was written.
	TransitionConflict
)

// Applied reports whether the transition mutated the record.
func (r TransitionResult) Applied() bool {
	return r == TransitionApplied
}

// FieldName names a record field eligible for unconditional updates.
//
// Only fields outside the status lattice are listed here; everything else
// must go through Transition.
type FieldName string

const (
	FieldArchiveID       FieldName = "archive_id"
	FieldRetrievalID     FieldName = "retrieval_id"
	FieldExecutionHandle FieldName = "execution_handle"
)

var unconditionalFields = map[FieldName]bool{
	FieldArchiveID:       true,
	FieldRetrievalID:     true,
	FieldExecutionHandle: true,
}

// Store is the durable job record store. It is the only synchronization
// primitive in the system: all cross-worker coordination happens through
// Transition's compare-and-set semantics.
type Store interface {
	// Create inserts a new record. Returns ErrAlreadyExists if a record
	// with the same job id is present.
	Create(ctx context.Context, rec *JobRecord) error

	// Get returns the record for jobID, or ErrNotFound.
	Get(ctx context.Context, jobID string) (*JobRecord, error)

	// QueryByUser returns all records owned by userID via the secondary
	// index. An empty result is not an error.
	QueryByUser(ctx context.Context, userID string) ([]JobRecord, error)

	// Transition atomically applies change iff the record's current
	// status equals expected. A mismatch yields TransitionConflict with a
	// nil error.
	Transition(ctx context.Context, jobID string, expected Status, change Change) (TransitionResult, error)

	// SetFields unconditionally writes fields outside the status lattice.
	// Naming any other field returns ErrGuardedField.
	SetFields(ctx context.Context, jobID string, fields map[FieldName]string) error

	// ClearFields unconditionally removes fields outside the status
	// lattice from the record.
	ClearFields(ctx context.Context, jobID string, names ...FieldName) error
}

// checkFieldNames validates that every field is eligible for unconditional
// updates.
func checkFieldNames(names []FieldName) error {
	for _, n := range names {
		if !unconditionalFields[n] {
			return ErrGuardedField
		}
	}
	return nil
}
