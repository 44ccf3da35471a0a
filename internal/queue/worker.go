package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"grnd/internal/algorithm"
	"grnd/internal/apperrors"
	"grnd/internal/job"
)

// WorkerConfig holds per-task execution settings.
type WorkerConfig struct {
	ResultsDir string        // root directory task output is written under
	JobTimeout time.Duration // default: 1h
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.JobTimeout <= 0 {
		c.JobTimeout = time.Hour
	}
	return c
}

// Worker executes a single task end to end: it transitions the job to
// running, runs the algorithm with the configured timeout, and records the
// terminal outcome. It is stateless and safe for concurrent use, so one
// Worker is shared by every consumer goroutine.
type Worker struct {
	lifecycle  Lifecycle
	algorithms *algorithm.Registry
	config     WorkerConfig
	logger     *slog.Logger
}

// NewWorker creates a task worker.
func NewWorker(lifecycle Lifecycle, algorithms *algorithm.Registry, cfg WorkerConfig) *Worker {
	return &Worker{
		lifecycle:  lifecycle,
		algorithms: algorithms,
		config:     cfg.withDefaults(),
		logger:     slog.With("component", "worker"),
	}
}

// Process executes one task. Errors that represent a lost race with a cancel
// (conflict on a transition) are absorbed after logging; the returned error
// reports only infrastructure problems the consumer loop may want to act on.
func (w *Worker) Process(ctx context.Context, task job.Task) error {
	logger := w.logger.With("jobId", task.JobID, "algorithm", task.Algorithm)

	// Register the cancel func before flipping to running so a cancel
	// arriving mid-startup can always reach the execution context.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	w.lifecycle.RegisterCancel(task.JobID, cancel)

	if err := w.lifecycle.MarkRunning(ctx, task.JobID); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			logger.Info("Skipping task, job no longer pending", "error", err)
			return nil
		}
		return fmt.Errorf("mark running: %w", err)
	}

	w.appendLog(ctx, task.JobID, fmt.Sprintf("Started %s inference on dataset %s", task.Algorithm, task.DatasetID))

	runner, ok := w.algorithms.Get(task.Algorithm)
	if !ok {
		// Validated at submission; only reachable when service and worker
		// run different algorithm sets.
		w.fail(ctx, task.JobID, apperrors.UnknownAlgorithm(task.Algorithm))
		return nil
	}

	execCtx, cancelTimeout := context.WithTimeout(runCtx, w.config.JobTimeout)
	defer cancelTimeout()

	out, err := runner.Run(execCtx, algorithm.Input{
		JobID:       task.JobID,
		DatasetPath: task.DatasetPath,
		OutputDir:   filepath.Join(w.config.ResultsDir, task.JobID),
		Params:      task.Params,
	})
	if err != nil {
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			err = apperrors.Timeout(task.JobID, int(w.config.JobTimeout.Seconds()))
		}
		w.fail(ctx, task.JobID, err)
		return nil
	}
	if out.Summary == nil {
		out.Summary = &algorithm.Summary{}
	}

	w.appendLog(ctx, task.JobID, fmt.Sprintf("Inference finished, %d edges predicted", out.Summary.EdgesPredicted))

	if err := w.lifecycle.MarkCompleted(ctx, task.JobID, out.Summary.Map(), out.OutputFiles); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			logger.Warn("Discarding completion, job already terminal", "error", err)
			return nil
		}
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

// fail records a failure, absorbing the conflict a cancelled job produces.
func (w *Worker) fail(ctx context.Context, jobID string, execErr error) {
	if err := w.lifecycle.MarkFailed(ctx, jobID, execErr); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			w.logger.Info("Discarding failure, job already terminal", "jobId", jobID, "error", execErr)
			return
		}
		w.logger.Error("Failed to record job failure", "jobId", jobID, "error", err)
	}
}

// appendLog is best-effort; a conflict means the job was cancelled between
// checkpoints and the entry is dropped.
func (w *Worker) appendLog(ctx context.Context, jobID, message string) {
	if err := w.lifecycle.AppendLog(ctx, jobID, message); err != nil && !errors.Is(err, apperrors.ErrConflict) {
		w.logger.Warn("Failed to append job log", "jobId", jobID, "error", err)
	}
}
