// Package dispatch consumes submission events and moves jobs from PENDING to
// RUNNING: it stages the input file, launches the analysis run, and hands the
// finished run to the finalizer.
package dispatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tideline/tideline/pkg/events"
	"github.com/tideline/tideline/pkg/jobrecord"
	"github.com/tideline/tideline/pkg/objectstore"
	"github.com/tideline/tideline/pkg/queue"
	"github.com/tideline/tideline/pkg/task"
)

// Finalizer settles a finished run: uploads artifacts, advances the record to
// its terminal status, and triggers downstream collaborators.
type Finalizer interface {
	Finalize(ctx context.Context, jobID string, runErr error) error
}

// Handler consumes submission events. Redeliveries are safe: a job that
// already left PENDING is acknowledged without a second launch.
type Handler struct {
	records   jobrecord.Store
	hot       objectstore.Store
	scratch   task.Scratch
	launcher  task.Launcher
	finalizer Finalizer
	logger    *zap.Logger

	wg  sync.WaitGroup
	now func() time.Time
}

var _ queue.Handler = (*Handler)(nil)

func NewHandler(records jobrecord.Store, hot objectstore.Store, scratch task.Scratch, launcher task.Launcher, finalizer Finalizer, logger *zap.Logger) *Handler {
	return &Handler{
		records:   records,
		hot:       hot,
		scratch:   scratch,
		launcher:  launcher,
		finalizer: finalizer,
		logger:    logger,
		now:       time.Now,
	}
}

func (h *Handler) Handle(ctx context.Context, msg queue.Message) (queue.Disposition, error) {
	var sub events.Submission
	if err := events.Decode(msg.Body, &sub); err != nil {
		// Malformed or incomplete submissions can never become valid.
		return queue.Ack, err
	}
	logger := h.logger.With(zap.String("job_id", sub.JobID), zap.String("user_id", sub.UserID))

	rec, err := h.ensureRecord(ctx, &sub)
	if err != nil {
		return queue.Retry, err
	}
	if rec.Status != jobrecord.StatusPending {
		logger.Info("Job already dispatched", zap.String("status", string(rec.Status)))
		return queue.Ack, nil
	}

	inputPath, disp, err := h.stageInput(ctx, rec, logger)
	if err != nil {
		return disp, err
	}

	// The run and its finalization outlive this delivery; stopping the poll
	// loop must not kill an acknowledged run.
	runCtx := context.WithoutCancel(ctx)
	handle, err := h.launcher.Launch(runCtx, task.Spec{
		JobID:     rec.JobID,
		InputPath: inputPath,
		WorkDir:   filepath.Dir(inputPath),
	})
	if err != nil {
		return queue.Retry, err
	}

	result, err := h.records.Transition(ctx, rec.JobID, jobrecord.StatusPending, jobrecord.Change{
		Status: jobrecord.StatusRunning,
	})
	if err != nil {
		// The record is still PENDING; a redelivery restages and relaunches.
		return queue.Retry, err
	}
	if !result.Applied() {
		logger.Warn("Lost dispatch race after launch; finalizer guards settle it")
	}

	h.wg.Add(1)
	go h.awaitRun(runCtx, handle, logger)

	return queue.Ack, nil
}

// ensureRecord returns the job record, creating it from the submission when
// the event outran the record write.
func (h *Handler) ensureRecord(ctx context.Context, sub *events.Submission) (*jobrecord.JobRecord, error) {
	rec, err := h.records.Get(ctx, sub.JobID)
	if err == nil {
		return rec, nil
	}
	if !jobrecord.IsNotFound(err) {
		return nil, err
	}

	rec = &jobrecord.JobRecord{
		JobID:         sub.JobID,
		UserID:        sub.UserID,
		InputFileName: sub.InputFileName,
		InputLocator:  jobrecord.Locator{Bucket: sub.InputBucket, Key: sub.InputKey},
		SubmitTier:    sub.Tier,
		SubmitTime:    h.now().Unix(),
		Status:        jobrecord.StatusPending,
	}
	if err := h.records.Create(ctx, rec); err != nil {
		if jobrecord.IsAlreadyExists(err) {
			return h.records.Get(ctx, sub.JobID)
		}
		return nil, err
	}
	return rec, nil
}

// stageInput downloads the input object into the job's scratch directory.
// A file left by an earlier delivery is reused as is.
func (h *Handler) stageInput(ctx context.Context, rec *jobrecord.JobRecord, logger *zap.Logger) (string, queue.Disposition, error) {
	dir, err := h.scratch.EnsureJobDir(rec.JobID)
	if err != nil {
		return "", queue.Retry, err
	}
	inputPath := filepath.Join(dir, rec.InputFileName)
	if _, err := os.Stat(inputPath); err == nil {
		logger.Info("Reusing staged input", zap.String("path", inputPath))
		return inputPath, queue.Ack, nil
	}

	err = h.hot.Download(ctx, rec.InputLocator.Bucket, rec.InputLocator.Key, inputPath)
	if err == nil {
		return inputPath, queue.Ack, nil
	}
	if !objectstore.IsNotFound(err) {
		return "", queue.Retry, err
	}

	// The input object is gone; the job can never run.
	result, ferr := h.records.Transition(ctx, rec.JobID, jobrecord.StatusPending, jobrecord.Change{
		Status:       jobrecord.StatusFailed,
		CompleteTime: timePtr(h.now()),
	})
	if ferr != nil {
		return "", queue.Retry, errors.Join(err, ferr)
	}
	if !result.Applied() {
		logger.Info("Job advanced elsewhere while input was missing")
	}
	return "", queue.Ack, err
}

// awaitRun blocks on the run and settles the record through the finalizer.
// The detached context lets an in-flight finalization outlive the poll loop.
func (h *Handler) awaitRun(ctx context.Context, handle task.Handle, logger *zap.Logger) {
	defer h.wg.Done()
	runErr := handle.Wait()
	if err := h.finalizer.Finalize(ctx, handle.JobID(), runErr); err != nil {
		logger.Error("Failed to finalize run", zap.Error(err))
	}
}

// Drain waits for every in-flight run to be finalized.
func (h *Handler) Drain() {
	h.wg.Wait()
}

func timePtr(t time.Time) *time.Time { return &t }
