// Package events defines the typed queue message payloads exchanged between
// lifecycle components. Envelopes are never stored; their only durable effect
// is via conditional writes to the job record.
package events

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tideline/tideline/pkg/jobrecord"
)

// ValidationError reports the required fields missing from a payload.
// A payload failing validation is poison: it can never become valid and is
// dropped without retry.
type ValidationError struct {
	Event  string
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s event missing required fields: %s", e.Event, strings.Join(e.Fields, ", "))
}

// Submission announces a newly submitted job. The tier is the submitter's
// tier at submit time; archival eligibility is re-checked at execution time.
type Submission struct {
	JobID         string         `json:"job_id"`
	UserID        string         `json:"user_id"`
	InputFileName string         `json:"input_file_name"`
	InputBucket   string         `json:"input_bucket"`
	InputKey      string         `json:"input_key"`
	Tier          jobrecord.Tier `json:"tier"`
}

func (s *Submission) Validate() error {
	var missing []string
	if s.JobID == "" {
		missing = append(missing, "job_id")
	}
	if s.UserID == "" {
		missing = append(missing, "user_id")
	}
	if s.InputFileName == "" {
		missing = append(missing, "input_file_name")
	}
	if s.InputBucket == "" {
		missing = append(missing, "input_bucket")
	}
	if s.InputKey == "" {
		missing = append(missing, "input_key")
	}
	if s.Tier == "" {
		missing = append(missing, "tier")
	}
	if len(missing) > 0 {
		return &ValidationError{Event: "submission", Fields: missing}
	}
	return nil
}

// Completion is published after a job reaches a terminal status, for
// downstream notification collaborators.
type Completion struct {
	JobID        string           `json:"job_id"`
	UserID       string           `json:"user_id"`
	CompleteTime int64            `json:"complete_time"`
	Status       jobrecord.Status `json:"status"`
}

func (c *Completion) Validate() error {
	var missing []string
	if c.JobID == "" {
		missing = append(missing, "job_id")
	}
	if c.UserID == "" {
		missing = append(missing, "user_id")
	}
	if c.Status == "" {
		missing = append(missing, "status")
	}
	if len(missing) > 0 {
		return &ValidationError{Event: "completion", Fields: missing}
	}
	return nil
}

// TierUpgrade announces that a user moved to the premium tier.
type TierUpgrade struct {
	UserID string `json:"user_id"`
}

func (u *TierUpgrade) Validate() error {
	if u.UserID == "" {
		return &ValidationError{Event: "tier-upgrade", Fields: []string{"user_id"}}
	}
	return nil
}

// ArchiveTrigger is delivered by the archival-trigger workflow when a
// completed job becomes eligible for demotion to cold storage.
type ArchiveTrigger struct {
	JobID string `json:"job_id"`
}

func (a *ArchiveTrigger) Validate() error {
	if a.JobID == "" {
		return &ValidationError{Event: "archive-trigger", Fields: []string{"job_id"}}
	}
	return nil
}

// RetrievalCompletion is the cold store's callback announcing that an
// archive-retrieval job finished and its output can be fetched.
type RetrievalCompletion struct {
	JobID       string `json:"job_id"`
	RetrievalID string `json:"retrieval_id"`
	ArchiveID   string `json:"archive_id"`
}

func (r *RetrievalCompletion) Validate() error {
	var missing []string
	if r.JobID == "" {
		missing = append(missing, "job_id")
	}
	if r.RetrievalID == "" {
		missing = append(missing, "retrieval_id")
	}
	if r.ArchiveID == "" {
		missing = append(missing, "archive_id")
	}
	if len(missing) > 0 {
		return &ValidationError{Event: "retrieval-completion", Fields: missing}
	}
	return nil
}

// Decode unmarshals a payload into v and validates it. v must be one of the
// event types above.
func Decode(data []byte, v interface{ Validate() error }) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	return v.Validate()
}
