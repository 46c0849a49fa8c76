package jobrecord

import (
	"context"
	"fmt"
	"sync"
)

// MemStore is an in-memory Store with the same conditional-write semantics as
// the DynamoDB implementation. It backs tests and local development; it is
// not durable.
type MemStore struct {
	mu      sync.Mutex
	records map[string]*JobRecord
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string]*JobRecord)}
}

func copyRecord(rec *JobRecord) *JobRecord {
	out := *rec
	if rec.ResultLocator != nil {
		l := *rec.ResultLocator
		out.ResultLocator = &l
	}
	if rec.LogLocator != nil {
		l := *rec.LogLocator
		out.LogLocator = &l
	}
	return &out
}

func (s *MemStore) Create(ctx context.Context, rec *JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.JobID]; ok {
		return &StoreError{Op: "Create", Table: "mem", JobID: rec.JobID, Err: ErrAlreadyExists}
	}
	s.records[rec.JobID] = copyRecord(rec)
	return nil
}

func (s *MemStore) Get(ctx context.Context, jobID string) (*JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[jobID]
	if !ok {
		return nil, &StoreError{Op: "Get", Table: "mem", JobID: jobID, Err: ErrNotFound}
	}
	return copyRecord(rec), nil
}

func (s *MemStore) QueryByUser(ctx context.Context, userID string) ([]JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []JobRecord
	for _, rec := range s.records {
		if rec.UserID == userID {
			out = append(out, *copyRecord(rec))
		}
	}
	return out, nil
}

func (s *MemStore) Transition(ctx context.Context, jobID string, expected Status, change Change) (TransitionResult, error) {
	if !expected.CanAdvanceTo(change.Status) {
		return TransitionConflict, &StoreError{
			Op: "Transition", Table: "mem", JobID: jobID,
			Err: fmt.Errorf("invalid transition %s -> %s", expected, change.Status),
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[jobID]
	if !ok || rec.Status != expected {
		return TransitionConflict, nil
	}

	rec.Status = change.Status
	if change.ResultLocator != nil {
		l := *change.ResultLocator
		rec.ResultLocator = &l
	}
	if change.LogLocator != nil {
		l := *change.LogLocator
		rec.LogLocator = &l
	}
	if change.CompleteTime != nil {
		rec.CompleteTime = change.CompleteTime.Unix()
	}
	return TransitionApplied, nil
}

func (s *MemStore) SetFields(ctx context.Context, jobID string, fields map[FieldName]string) error {
	names := make([]FieldName, 0, len(fields))
	for n := range fields {
		names = append(names, n)
	}
	if err := checkFieldNames(names); err != nil {
		return &StoreError{Op: "SetFields", Table: "mem", JobID: jobID, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[jobID]
	if !ok {
		return &StoreError{Op: "SetFields", Table: "mem", JobID: jobID, Err: ErrNotFound}
	}
	for n, v := range fields {
		switch n {
		case FieldArchiveID:
			rec.ArchiveID = v
		case FieldRetrievalID:
			rec.RetrievalID = v
		case FieldExecutionHandle:
			rec.ExecutionHandle = v
		}
	}
	return nil
}

func (s *MemStore) ClearFields(ctx context.Context, jobID string, names ...FieldName) error {
	if err := checkFieldNames(names); err != nil {
		return &StoreError{Op: "ClearFields", Table: "mem", JobID: jobID, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[jobID]
	if !ok {
		return &StoreError{Op: "ClearFields", Table: "mem", JobID: jobID, Err: ErrNotFound}
	}
	for _, n := range names {
		switch n {
		case FieldArchiveID:
			rec.ArchiveID = ""
		case FieldRetrievalID:
			rec.RetrievalID = ""
		case FieldExecutionHandle:
			rec.ExecutionHandle = ""
		}
	}
	return nil
}
