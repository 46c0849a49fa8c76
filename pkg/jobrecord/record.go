// Package jobrecord defines the durable job record and the store that
// coordinates every lifecycle component through conditional writes.
package jobrecord

import "time"

// Status is the lifecycle status of an analysis job.
//
// NOTE: These values are persisted in the record store and are part of the
// stable wire contract.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// statusRank orders statuses along the lattice PENDING < RUNNING < terminal.
var statusRank = map[Status]int{
	StatusPending:   0,
	StatusRunning:   1,
	StatusCompleted: 2,
	StatusFailed:    2,
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Terminal reports whether no further status transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanAdvanceTo reports whether the transition s -> next moves forward along
// the lattice. Transitions never move backward and never leave a terminal
// status.
func (s Status) CanAdvanceTo(next Status) bool {
	if !s.Valid() || !next.Valid() || s.Terminal() {
		return false
	}
	return statusRank[next] > statusRank[s]
}

// Tier is the submitter's service class. It governs whether completed results
// are demoted to cold storage.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// Locator identifies an object in hot storage by store and key.
type Locator struct {
	Bucket string `json:"bucket" dynamodbav:"bucket"`
	Key    string `json:"key" dynamodbav:"key"`
}

// IsZero reports whether the locator is unset.
func (l Locator) IsZero() bool {
	return l.Bucket == "" && l.Key == ""
}

// JobRecord is the single durable record per submitted job. It is created at
// submission, mutated by every lifecycle component via conditional writes,
// and never deleted.
type JobRecord struct {
	JobID         string   `json:"job_id" dynamodbav:"job_id"`
	UserID        string   `json:"user_id" dynamodbav:"user_id"`
	InputFileName string   `json:"input_file_name" dynamodbav:"input_file_name"`
	InputLocator  Locator  `json:"input_locator" dynamodbav:"input_locator"`
	SubmitTier    Tier     `json:"submit_tier" dynamodbav:"submit_tier"`
	SubmitTime    int64    `json:"submit_time" dynamodbav:"submit_time"`
	Status        Status   `json:"job_status" dynamodbav:"job_status"`
	ResultLocator *Locator `json:"result_locator,omitempty" dynamodbav:"result_locator,omitempty"`
	LogLocator    *Locator `json:"log_locator,omitempty" dynamodbav:"log_locator,omitempty"`
	CompleteTime  int64    `json:"complete_time,omitempty" dynamodbav:"complete_time,omitempty"`

	// ArchiveID is present only while the result lives in cold storage.
	ArchiveID string `json:"archive_id,omitempty" dynamodbav:"archive_id,omitempty"`

	// RetrievalID is present only while a cold-to-hot retrieval is in
	// flight. Its presence is the sole witness that a restore is in
	// progress.
	RetrievalID string `json:"retrieval_id,omitempty" dynamodbav:"retrieval_id,omitempty"`

	// ExecutionHandle references the asynchronous archival-trigger
	// workflow. Set on completion for non-premium submitters, cleared by
	// the archival mover once it has run.
	ExecutionHandle string `json:"execution_handle,omitempty" dynamodbav:"execution_handle,omitempty"`
}

// Change is the set of fields a Transition writes atomically with the status.
// Only the completion handler sets the locator and completion fields.
type Change struct {
	Status        Status
	ResultLocator *Locator
	LogLocator    *Locator
	CompleteTime  *time.Time
}
