package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"grnd/internal/job"
	"grnd/pkg/backoff"
)

// popTimeout bounds each blocking pop so consumers notice shutdown.
const popTimeout = 5 * time.Second

// RedisQueue backs the task executor with a Redis list. The API side pushes
// with LPUSH; workers block on BRPOP, so tasks execute in submission order
// and a task is delivered to exactly one worker. Either side can run without
// the other being up: tasks accumulate in the list.
type RedisQueue struct {
	client  *redis.Client
	key     string
	logger  *slog.Logger
	metrics MetricsRecorder

	wg       sync.WaitGroup
	shutdown chan struct{}
	closed   sync.Once
}

// NewRedis connects to the Redis instance described by url
// (e.g. redis://localhost:6379/0) and uses key as the task list.
func NewRedis(url, key string, metrics MetricsRecorder) (*RedisQueue, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisQueue{
		client:   redis.NewClient(opts),
		key:      key,
		logger:   slog.With("component", "queue"),
		metrics:  metrics,
		shutdown: make(chan struct{}),
	}, nil
}

// Enqueue pushes the task onto the list as JSON.
func (q *RedisQueue) Enqueue(ctx context.Context, task job.Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("push task: %w", err)
	}
	if q.metrics != nil {
		q.metrics.RecordTaskEnqueued(ctx)
	}
	return nil
}

// Ready pings the Redis backend.
func (q *RedisQueue) Ready(ctx context.Context) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Depth returns the number of queued tasks.
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

// StartConsumers launches n goroutines that pop tasks and run them through
// the worker. Consumers stop when ctx is cancelled or Close is called.
func (q *RedisQueue) StartConsumers(ctx context.Context, n int, worker *Worker) {
	if n <= 0 {
		n = defaultWorkers
	}
	q.wg.Add(n)
	for i := 0; i < n; i++ {
		go q.consume(ctx, worker)
	}
	q.logger.Info("Redis consumers started", "workers", n, "key", q.key)
}

func (q *RedisQueue) consume(ctx context.Context, worker *Worker) {
	defer q.wg.Done()

	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.shutdown:
			return
		default:
		}

		res, err := q.client.BRPop(ctx, popTimeout, q.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				attempt = 0
				continue // timed out empty, poll again
			}
			if ctx.Err() != nil {
				return
			}
			attempt++
			wait := backoff.ExponentialJitter(attempt, nil)
			q.logger.Warn("Queue pop failed, backing off", "error", err, "wait", wait)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return
			case <-q.shutdown:
				return
			}
			continue
		}
		attempt = 0

		// BRPop returns [key, value].
		if len(res) != 2 {
			continue
		}
		var task job.Task
		if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
			q.logger.Error("Discarding malformed task", "error", err)
			continue
		}

		if q.metrics != nil {
			q.metrics.RecordTaskDequeued(ctx)
		}
		if err := worker.Process(ctx, task); err != nil {
			q.logger.Error("Task execution error", "jobId", task.JobID, "error", err)
		}
	}
}

// Close stops consumers and closes the connection. In-flight tasks finish;
// queued tasks stay in Redis for the next worker.
func (q *RedisQueue) Close(ctx context.Context) error {
	var err error
	q.closed.Do(func() {
		close(q.shutdown)

		done := make(chan struct{})
		go func() {
			q.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			err = ctx.Err()
		}
		if cerr := q.client.Close(); cerr != nil && err == nil {
			err = cerr
		}
	})
	return err
}
