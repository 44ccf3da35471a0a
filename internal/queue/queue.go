// Package queue provides the asynchronous task executor: the work queue
// jobs are submitted to and the workers that execute them.
package queue

import (
	"context"
	"errors"

	"grnd/internal/job"
)

// ErrQueueFull is returned when the queue cannot accept another task.
var ErrQueueFull = errors.New("task queue full")

// ErrQueueClosed is returned when submitting to a queue that has shut down.
var ErrQueueClosed = errors.New("task queue closed")

// Queue accepts tasks for asynchronous execution. Implementations must be
// safe for concurrent use.
type Queue interface {
	job.Enqueuer

	// Ready checks whether the queue backend is reachable.
	Ready(ctx context.Context) error

	// Close releases queue resources. For in-process queues the context
	// deadline bounds how long to wait for in-flight tasks to drain.
	Close(ctx context.Context) error
}

// Lifecycle is the slice of the job manager the worker drives. Transitions
// racing a cancel come back as conflict errors; the worker treats those as
// expected no-ops.
type Lifecycle interface {
	MarkRunning(ctx context.Context, jobID string) error
	MarkCompleted(ctx context.Context, jobID string, summary map[string]any, outputFiles []string) error
	MarkFailed(ctx context.Context, jobID string, execErr error) error
	AppendLog(ctx context.Context, jobID, message string) error
	RegisterCancel(jobID string, cancel context.CancelFunc)
}

// MetricsRecorder is an optional interface for recording queue metrics.
type MetricsRecorder interface {
	RecordTaskEnqueued(ctx context.Context)
	RecordTaskDequeued(ctx context.Context)
}
