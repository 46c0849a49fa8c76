// Package restore brings archived results back to hot storage after a tier
// upgrade. An upgrade fans out one expedited retrieval per archived job, with
// a single standard-tier fallback when expedited capacity is exhausted; the
// vault's completion callback then copies the bytes back and deletes the
// archive.
package restore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tideline/tideline/pkg/coldstore"
	"github.com/tideline/tideline/pkg/events"
	"github.com/tideline/tideline/pkg/jobrecord"
	"github.com/tideline/tideline/pkg/objectstore"
	"github.com/tideline/tideline/pkg/queue"
)

// UpgradeHandler consumes tier-upgrade events and starts a retrieval for
// every archived result the user owns. The retrieval_id on the record is the
// in-flight witness; jobs that already carry one are skipped, so redelivered
// upgrades do not double-retrieve.
type UpgradeHandler struct {
	records jobrecord.Store
	cold    coldstore.Vault
	logger  *zap.Logger
}

var _ queue.Handler = (*UpgradeHandler)(nil)

func NewUpgradeHandler(records jobrecord.Store, cold coldstore.Vault, logger *zap.Logger) *UpgradeHandler {
	return &UpgradeHandler{records: records, cold: cold, logger: logger}
}

func (h *UpgradeHandler) Handle(ctx context.Context, msg queue.Message) (queue.Disposition, error) {
	var upgrade events.TierUpgrade
	if err := events.Decode(msg.Body, &upgrade); err != nil {
		return queue.Ack, err
	}
	logger := h.logger.With(zap.String("user_id", upgrade.UserID))

	recs, err := h.records.QueryByUser(ctx, upgrade.UserID)
	if err != nil {
		return queue.Retry, err
	}

	var retryNeeded bool
	for i := range recs {
		rec := &recs[i]
		if rec.ArchiveID == "" || rec.RetrievalID != "" {
			continue
		}
		if err := h.startRetrieval(ctx, rec, logger); err != nil {
			// Record-store failures are transient; a redelivery resumes
			// with the jobs that already carry a retrieval id skipped.
			logger.Warn("Failed to record retrieval", zap.String("job_id", rec.JobID), zap.Error(err))
			retryNeeded = true
		}
	}
	if retryNeeded {
		return queue.Retry, fmt.Errorf("restore fan-out incomplete for user %s", upgrade.UserID)
	}
	return queue.Ack, nil
}

// startRetrieval initiates one retrieval, falling back to the standard tier
// exactly once when expedited capacity is exhausted. Vault errors other than
// capacity exhaustion are terminal for this job on this delivery.
func (h *UpgradeHandler) startRetrieval(ctx context.Context, rec *jobrecord.JobRecord, logger *zap.Logger) error {
	tier := coldstore.RetrievalExpedited
	retrievalID, err := h.cold.InitiateRetrieval(ctx, rec.ArchiveID, rec.JobID, tier)
	if coldstore.IsInsufficientCapacity(err) {
		tier = coldstore.RetrievalStandard
		retrievalID, err = h.cold.InitiateRetrieval(ctx, rec.ArchiveID, rec.JobID, tier)
	}
	if err != nil {
		logger.Error("Failed to initiate retrieval",
			zap.String("job_id", rec.JobID),
			zap.String("archive_id", rec.ArchiveID),
			zap.Error(err))
		return nil
	}

	err = h.records.SetFields(ctx, rec.JobID, map[jobrecord.FieldName]string{
		jobrecord.FieldRetrievalID: retrievalID,
	})
	if err != nil {
		return err
	}
	logger.Info("Retrieval started",
		zap.String("job_id", rec.JobID),
		zap.String("retrieval_id", retrievalID),
		zap.String("tier", string(tier)))
	return nil
}

// CompletionHandler consumes the vault's retrieval-finished callbacks and
// finishes the restore: copy the bytes back to the recorded result location,
// delete the archive, and clear the cold-storage fields.
type CompletionHandler struct {
	records jobrecord.Store
	hot     objectstore.Store
	cold    coldstore.Vault
	logger  *zap.Logger
}

var _ queue.Handler = (*CompletionHandler)(nil)

func NewCompletionHandler(records jobrecord.Store, hot objectstore.Store, cold coldstore.Vault, logger *zap.Logger) *CompletionHandler {
	return &CompletionHandler{records: records, hot: hot, cold: cold, logger: logger}
}

func (h *CompletionHandler) Handle(ctx context.Context, msg queue.Message) (queue.Disposition, error) {
	var done events.RetrievalCompletion
	if err := events.Decode(msg.Body, &done); err != nil {
		return queue.Ack, err
	}

	rec, err := h.records.Get(ctx, done.JobID)
	if err != nil {
		if jobrecord.IsNotFound(err) {
			return queue.Ack, err
		}
		return queue.Retry, err
	}
	logger := h.logger.With(zap.String("job_id", rec.JobID), zap.String("retrieval_id", done.RetrievalID))

	// The record, not the message, decides whether the restore is still
	// wanted. A cleared or replaced retrieval id means another delivery
	// already finished, or the restore was superseded.
	if rec.RetrievalID != done.RetrievalID {
		logger.Info("Stale retrieval callback", zap.String("current", rec.RetrievalID))
		return queue.Ack, nil
	}
	if rec.ResultLocator == nil {
		return queue.Ack, fmt.Errorf("restore %s: record has no result locator", rec.JobID)
	}

	data, err := h.cold.RetrievalOutput(ctx, done.RetrievalID)
	if err != nil {
		if coldstore.IsNotFound(err) {
			// The retrieval output expired before we fetched it. Clear the
			// in-flight witness so a later upgrade event can start over.
			if cerr := h.records.ClearFields(ctx, rec.JobID, jobrecord.FieldRetrievalID); cerr != nil {
				return queue.Retry, cerr
			}
			return queue.Ack, err
		}
		return queue.Retry, err
	}

	if err := h.hot.Put(ctx, rec.ResultLocator.Bucket, rec.ResultLocator.Key, data); err != nil {
		return queue.Retry, err
	}

	// The hot copy is durable; the archive copy is now redundant. Deleting
	// a missing archive is a no-op, so this step can repeat.
	if err := h.cold.DeleteArchive(ctx, rec.ArchiveID); err != nil {
		return queue.Retry, err
	}

	err = h.records.ClearFields(ctx, rec.JobID, jobrecord.FieldArchiveID, jobrecord.FieldRetrievalID)
	if err != nil {
		return queue.Retry, err
	}
	logger.Info("Result restored to hot storage", zap.String("key", rec.ResultLocator.Key))
	return queue.Ack, nil
}
