package queue

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"grnd/internal/job"
)

// Memory queue defaults.
const (
	defaultBufferSize = 256
	defaultWorkers    = 4
)

// MemoryConfig configures the in-process queue.
type MemoryConfig struct {
	BufferSize int // default: 256
	Workers    int // default: 4
}

func (c MemoryConfig) withDefaults() MemoryConfig {
	if c.BufferSize <= 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	return c
}

// MemoryQueue runs tasks in-process: a bounded channel feeds a worker pool.
// A full buffer rejects the submission rather than blocking the API request,
// so the caller can fail the job instead of hanging.
type MemoryQueue struct {
	tasks   chan job.Task
	worker  *Worker
	config  MemoryConfig
	logger  *slog.Logger
	metrics MetricsRecorder

	wg       sync.WaitGroup
	shutdown chan struct{}
	closed   atomic.Bool
}

// NewMemory creates the queue and starts its worker pool.
func NewMemory(cfg MemoryConfig, worker *Worker, metrics MetricsRecorder) *MemoryQueue {
	cfg = cfg.withDefaults()

	q := &MemoryQueue{
		tasks:    make(chan job.Task, cfg.BufferSize),
		worker:   worker,
		config:   cfg,
		logger:   slog.With("component", "queue"),
		metrics:  metrics,
		shutdown: make(chan struct{}),
	}

	q.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go q.consume()
	}

	q.logger.Info("Memory queue started", "workers", cfg.Workers, "buffer", cfg.BufferSize)
	return q
}

// Enqueue submits a task for execution.
func (q *MemoryQueue) Enqueue(ctx context.Context, task job.Task) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	select {
	case q.tasks <- task:
		if q.metrics != nil {
			q.metrics.RecordTaskEnqueued(ctx)
		}
		return nil
	default:
		q.logger.Warn("Task rejected, buffer full", "jobId", task.JobID)
		return ErrQueueFull
	}
}

// Ready reports queue health; the in-process queue is always ready until
// closed.
func (q *MemoryQueue) Ready(ctx context.Context) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	return nil
}

// Close stops accepting tasks and waits for the pool to drain the buffer,
// bounded by the context deadline.
func (q *MemoryQueue) Close(ctx context.Context) error {
	if q.closed.Swap(true) {
		return nil
	}

	q.logger.Info("Memory queue shutting down", "pending", len(q.tasks))
	close(q.shutdown)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("Memory queue shutdown complete")
		return nil
	case <-ctx.Done():
		q.logger.Warn("Memory queue shutdown timed out", "remaining", len(q.tasks))
		return ctx.Err()
	}
}

func (q *MemoryQueue) consume() {
	defer q.wg.Done()

	for {
		select {
		case <-q.shutdown:
			q.drain()
			return
		case task := <-q.tasks:
			q.run(task)
		}
	}
}

// drain executes buffered tasks after the shutdown signal.
func (q *MemoryQueue) drain() {
	for {
		select {
		case task := <-q.tasks:
			q.run(task)
		default:
			return
		}
	}
}

func (q *MemoryQueue) run(task job.Task) {
	if q.metrics != nil {
		q.metrics.RecordTaskDequeued(context.Background())
	}
	if err := q.worker.Process(context.Background(), task); err != nil {
		q.logger.Error("Task execution error", "jobId", task.JobID, "error", err)
	}
}
