// Package coldstore implements the archive store used for long-term
// retention of free-tier results.
package coldstore

import (
	"context"
	"errors"
	"fmt"
)

// RetrievalTier is the speed class of a cold-storage retrieval. Expedited is
// faster but capacity-limited; Standard is the fallback.
type RetrievalTier string

const (
	RetrievalExpedited RetrievalTier = "Expedited"
	RetrievalStandard  RetrievalTier = "Standard"
)

// Vault is the cold-storage interface the archival mover and restore
// orchestrator depend on.
type Vault interface {
	// Upload stores data and returns the archive id.
	Upload(ctx context.Context, data []byte, description string) (string, error)

	// InitiateRetrieval starts an asynchronous archive retrieval and
	// returns its retrieval id. ErrInsufficientCapacity signals that the
	// requested tier has no capacity and a slower tier may be tried.
	InitiateRetrieval(ctx context.Context, archiveID, description string, tier RetrievalTier) (string, error)

	// RetrievalOutput fetches the bytes of a finished retrieval.
	RetrievalOutput(ctx context.Context, retrievalID string) ([]byte, error)

	// DeleteArchive removes an archive. Deleting a missing archive is not
	// an error.
	DeleteArchive(ctx context.Context, archiveID string) error
}

// Sentinel errors for cold-store operations.
var (
	// ErrInsufficientCapacity indicates the retrieval tier is out of
	// capacity. Callers fall back to the standard tier exactly once.
	ErrInsufficientCapacity = errors.New("insufficient retrieval capacity")

	// ErrNotFound indicates the archive or retrieval does not exist.
	ErrNotFound = errors.New("archive not found")
)

// VaultError wraps cold-store failures with context.
type VaultError struct {
	Op    string
	Vault string
	Err   error
}

func (e *VaultError) Error() string {
	return fmt.Sprintf("coldstore %s: %s: %v", e.Op, e.Vault, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *VaultError) Unwrap() error {
	return e.Err
}

// IsInsufficientCapacity returns true if the error indicates the retrieval
// tier is out of capacity.
func IsInsufficientCapacity(err error) bool {
	return errors.Is(err, ErrInsufficientCapacity)
}

// IsNotFound returns true if the error indicates a missing archive.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
