// Package archive moves free-tier results from hot storage to the cold vault
// once the retention window has elapsed. The submitter's tier is re-checked
// against the accounts database at move time: an upgrade that landed while
// the countdown ran keeps the result hot.
package archive

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/tideline/tideline/internal/accounts"
	"github.com/tideline/tideline/pkg/coldstore"
	"github.com/tideline/tideline/pkg/events"
	"github.com/tideline/tideline/pkg/jobrecord"
	"github.com/tideline/tideline/pkg/objectstore"
	"github.com/tideline/tideline/pkg/queue"
)

// Handler consumes archive triggers. The move is resumable: each step leaves
// a durable witness (archive_id set, hot object gone, execution_handle
// cleared), so a redelivery picks up where a crashed worker stopped.
type Handler struct {
	records jobrecord.Store
	hot     objectstore.Store
	cold    coldstore.Vault
	tiers   accounts.Resolver
	logger  *zap.Logger
}

var _ queue.Handler = (*Handler)(nil)

func NewHandler(records jobrecord.Store, hot objectstore.Store, cold coldstore.Vault, tiers accounts.Resolver, logger *zap.Logger) *Handler {
	return &Handler{
		records: records,
		hot:     hot,
		cold:    cold,
		tiers:   tiers,
		logger:  logger,
	}
}

func (h *Handler) Handle(ctx context.Context, msg queue.Message) (queue.Disposition, error) {
	var trigger events.ArchiveTrigger
	if err := events.Decode(msg.Body, &trigger); err != nil {
		return queue.Ack, err
	}

	rec, err := h.records.Get(ctx, trigger.JobID)
	if err != nil {
		if jobrecord.IsNotFound(err) {
			// Records are never deleted; a trigger for a missing job can
			// never become actionable.
			return queue.Ack, err
		}
		return queue.Retry, err
	}
	logger := h.logger.With(zap.String("job_id", rec.JobID), zap.String("user_id", rec.UserID))

	if rec.Status != jobrecord.StatusCompleted || rec.ResultLocator == nil {
		logger.Info("No archivable result", zap.String("status", string(rec.Status)))
		return h.finishMove(ctx, rec.JobID)
	}

	tier, err := h.tiers.Resolve(ctx, rec.UserID)
	if err != nil {
		if !errors.Is(err, accounts.ErrUnknownUser) {
			return queue.Retry, err
		}
		logger.Warn("User has no profile; applying free-tier retention")
		tier = jobrecord.TierFree
	}
	if tier == jobrecord.TierPremium {
		logger.Info("User is premium at move time; result stays hot")
		return h.finishMove(ctx, rec.JobID)
	}

	if rec.ArchiveID == "" {
		if disp, err := h.moveToCold(ctx, rec, logger); err != nil {
			return disp, err
		}
	}

	// The hot delete is safe to repeat: the archive copy already exists.
	if err := h.hot.Delete(ctx, rec.ResultLocator.Bucket, rec.ResultLocator.Key); err != nil {
		return queue.Retry, err
	}
	logger.Info("Result moved to cold storage")
	return h.finishMove(ctx, rec.JobID)
}

// moveToCold copies the result into the vault and records the archive id. A
// crash between upload and record write leaks one archive; the redelivered
// trigger uploads again rather than guessing which copy is durable.
func (h *Handler) moveToCold(ctx context.Context, rec *jobrecord.JobRecord, logger *zap.Logger) (queue.Disposition, error) {
	data, err := h.hot.Get(ctx, rec.ResultLocator.Bucket, rec.ResultLocator.Key)
	if err != nil {
		if objectstore.IsNotFound(err) {
			logger.Error("Result object missing with no archive id", zap.String("key", rec.ResultLocator.Key))
			return queue.Ack, err
		}
		return queue.Retry, err
	}

	archiveID, err := h.cold.Upload(ctx, data, rec.ResultLocator.Key)
	if err != nil {
		return queue.Retry, err
	}

	err = h.records.SetFields(ctx, rec.JobID, map[jobrecord.FieldName]string{
		jobrecord.FieldArchiveID: archiveID,
	})
	if err != nil {
		return queue.Retry, err
	}
	rec.ArchiveID = archiveID
	return queue.Ack, nil
}

// finishMove clears the workflow handle so the record no longer references a
// finished execution. Clearing an absent field is a no-op.
func (h *Handler) finishMove(ctx context.Context, jobID string) (queue.Disposition, error) {
	if err := h.records.ClearFields(ctx, jobID, jobrecord.FieldExecutionHandle); err != nil {
		if jobrecord.IsNotFound(err) {
			return queue.Ack, err
		}
		return queue.Retry, err
	}
	return queue.Ack, nil
}
