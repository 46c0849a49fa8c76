// Package finalize settles finished analysis runs: it uploads the result and
// log artifacts, advances the record from RUNNING to its terminal status, and
// kicks off completion notification and the archival countdown.
package finalize

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/tideline/tideline/internal/notify"
	"github.com/tideline/tideline/internal/workflow"
	"github.com/tideline/tideline/pkg/events"
	"github.com/tideline/tideline/pkg/jobrecord"
	"github.com/tideline/tideline/pkg/locator"
	"github.com/tideline/tideline/pkg/objectstore"
	"github.com/tideline/tideline/pkg/task"
)

// Config locates the artifact destination.
type Config struct {
	// ResultsBucket receives result and log artifacts.
	ResultsBucket string

	// KeyPrefix is the leading key segment for artifacts.
	KeyPrefix string
}

// Finalizer settles one run per call. The RUNNING guard on every write makes
// duplicate settles harmless.
type Finalizer struct {
	records jobrecord.Store
	hot     objectstore.Store
	scratch task.Scratch
	notes   notify.Publisher
	starter workflow.Starter
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time
}

func New(records jobrecord.Store, hot objectstore.Store, scratch task.Scratch, notes notify.Publisher, starter workflow.Starter, cfg Config, logger *zap.Logger) *Finalizer {
	return &Finalizer{
		records: records,
		hot:     hot,
		scratch: scratch,
		notes:   notes,
		starter: starter,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Finalize settles the run for jobID. runErr is the run's exit failure, if
// any; a run that exited cleanly but produced no result artifact still fails
// the job.
func (f *Finalizer) Finalize(ctx context.Context, jobID string, runErr error) error {
	rec, err := f.records.Get(ctx, jobID)
	if err != nil {
		return err
	}
	logger := f.logger.With(zap.String("job_id", jobID), zap.String("user_id", rec.UserID))
	if rec.Status != jobrecord.StatusRunning {
		logger.Info("Run already settled", zap.String("status", string(rec.Status)))
		return nil
	}

	dir, err := f.scratch.EnsureJobDir(jobID)
	if err != nil {
		return err
	}
	resultName := locator.ResultFileName(rec.InputFileName)
	resultPath := filepath.Join(dir, resultName)

	if _, serr := os.Stat(resultPath); runErr != nil || serr != nil {
		if runErr != nil {
			logger.Warn("Run failed", zap.Error(runErr))
		} else {
			logger.Warn("Run produced no result artifact", zap.String("path", resultPath))
		}
		return f.settleFailed(ctx, rec, logger)
	}
	return f.settleCompleted(ctx, rec, dir, resultName, logger)
}

func (f *Finalizer) settleFailed(ctx context.Context, rec *jobrecord.JobRecord, logger *zap.Logger) error {
	now := f.now()
	result, err := f.records.Transition(ctx, rec.JobID, jobrecord.StatusRunning, jobrecord.Change{
		Status:       jobrecord.StatusFailed,
		CompleteTime: &now,
	})
	if err != nil {
		return err
	}
	if !result.Applied() {
		logger.Info("Failure settled elsewhere")
		return nil
	}
	f.announce(ctx, rec, jobrecord.StatusFailed, now, logger)
	f.cleanup(rec.JobID, logger)
	return nil
}

func (f *Finalizer) settleCompleted(ctx context.Context, rec *jobrecord.JobRecord, dir, resultName string, logger *zap.Logger) error {
	logName := locator.LogFileName(rec.InputFileName)
	resultLoc := jobrecord.Locator{
		Bucket: f.cfg.ResultsBucket,
		Key:    locator.Key(f.cfg.KeyPrefix, rec.UserID, rec.JobID, resultName),
	}
	logLoc := jobrecord.Locator{
		Bucket: f.cfg.ResultsBucket,
		Key:    locator.Key(f.cfg.KeyPrefix, rec.UserID, rec.JobID, logName),
	}

	if err := f.hot.Upload(ctx, resultLoc.Bucket, resultLoc.Key, filepath.Join(dir, resultName)); err != nil {
		return err
	}
	if err := f.hot.Upload(ctx, logLoc.Bucket, logLoc.Key, filepath.Join(dir, logName)); err != nil {
		return err
	}

	now := f.now()
	result, err := f.records.Transition(ctx, rec.JobID, jobrecord.StatusRunning, jobrecord.Change{
		Status:        jobrecord.StatusCompleted,
		ResultLocator: &resultLoc,
		LogLocator:    &logLoc,
		CompleteTime:  &now,
	})
	if err != nil {
		return err
	}
	if !result.Applied() {
		logger.Info("Completion settled elsewhere")
		return nil
	}

	f.announce(ctx, rec, jobrecord.StatusCompleted, now, logger)

	if rec.SubmitTier != jobrecord.TierPremium {
		f.startArchivalCountdown(ctx, rec.JobID, logger)
	}

	f.cleanup(rec.JobID, logger)
	logger.Info("Job completed", zap.String("result_key", resultLoc.Key))
	return nil
}

// announce publishes the completion event. Delivery is best effort; the
// record transition already happened and is never rolled back.
func (f *Finalizer) announce(ctx context.Context, rec *jobrecord.JobRecord, status jobrecord.Status, at time.Time, logger *zap.Logger) {
	err := f.notes.PublishCompletion(ctx, events.Completion{
		JobID:        rec.JobID,
		UserID:       rec.UserID,
		CompleteTime: at.Unix(),
		Status:       status,
	})
	if err != nil {
		logger.Warn("Failed to publish completion", zap.Error(err))
	}
}

// startArchivalCountdown begins the retention-window workflow and records its
// handle so the mover can clear it once the move runs.
func (f *Finalizer) startArchivalCountdown(ctx context.Context, jobID string, logger *zap.Logger) {
	handle, err := f.starter.Start(ctx, jobID)
	if err != nil {
		logger.Error("Failed to start archival countdown", zap.Error(err))
		return
	}
	err = f.records.SetFields(ctx, jobID, map[jobrecord.FieldName]string{
		jobrecord.FieldExecutionHandle: handle,
	})
	if err != nil {
		logger.Error("Failed to record archival handle", zap.String("handle", handle), zap.Error(err))
	}
}

func (f *Finalizer) cleanup(jobID string, logger *zap.Logger) {
	if err := f.scratch.RemoveJobDir(jobID); err != nil {
		logger.Warn("Failed to remove scratch directory", zap.Error(err))
	}
}
