package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"grnd/internal/algorithm"
	"grnd/internal/job"
	"grnd/internal/testutil"
)

// gateRunner blocks every run until release is closed.
type gateRunner struct {
	release chan struct{}
	started chan struct{}
}

func (r *gateRunner) Run(ctx context.Context, _ algorithm.Input) (*algorithm.Output, error) {
	select {
	case r.started <- struct{}{}:
	default:
	}
	select {
	case <-r.release:
		return &algorithm.Output{}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func memoryTask(n int) job.Task {
	return job.Task{
		JobID:     fmt.Sprintf("job_%012d", n),
		DatasetID: "dataset_0123456789ab",
		Algorithm: algorithm.CLR,
	}
}

func TestMemoryQueueExecutesTasks(t *testing.T) {
	t.Parallel()

	lc := newFakeLifecycle()
	reg := algorithm.NewRegistry()
	reg.Register(algorithm.CLR, &fakeRunner{out: algorithm.Output{}})
	w := NewWorker(lc, reg, WorkerConfig{ResultsDir: t.TempDir()})
	q := NewMemory(MemoryConfig{Workers: 2, BufferSize: 8}, w, nil)
	defer q.Close(context.Background())

	for i := 0; i < 5; i++ {
		if err := q.Enqueue(context.Background(), memoryTask(i)); err != nil {
			t.Fatalf("Enqueue(%d) error = %v", i, err)
		}
	}

	testutil.MustWaitFor(t, func() bool {
		lc.mu.Lock()
		defer lc.mu.Unlock()
		return len(lc.completed) == 5
	}, testutil.WithTimeout(5*time.Second))
}

func TestMemoryQueueRejectsWhenFull(t *testing.T) {
	t.Parallel()

	lc := newFakeLifecycle()
	gate := &gateRunner{release: make(chan struct{}), started: make(chan struct{}, 1)}
	reg := algorithm.NewRegistry()
	reg.Register(algorithm.CLR, gate)
	w := NewWorker(lc, reg, WorkerConfig{ResultsDir: t.TempDir()})
	q := NewMemory(MemoryConfig{Workers: 1, BufferSize: 1}, w, nil)

	// First task occupies the single worker.
	if err := q.Enqueue(context.Background(), memoryTask(0)); err != nil {
		t.Fatalf("Enqueue(0) error = %v", err)
	}
	select {
	case <-gate.started:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never picked up first task")
	}

	// Second task fills the buffer; the third must be rejected, not block.
	if err := q.Enqueue(context.Background(), memoryTask(1)); err != nil {
		t.Fatalf("Enqueue(1) error = %v", err)
	}
	if err := q.Enqueue(context.Background(), memoryTask(2)); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Enqueue(2) error = %v, want ErrQueueFull", err)
	}

	close(gate.release)
	if err := q.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestMemoryQueueCloseDrainsBuffer(t *testing.T) {
	t.Parallel()

	lc := newFakeLifecycle()
	reg := algorithm.NewRegistry()
	reg.Register(algorithm.CLR, &fakeRunner{out: algorithm.Output{}})
	w := NewWorker(lc, reg, WorkerConfig{ResultsDir: t.TempDir()})
	q := NewMemory(MemoryConfig{Workers: 1, BufferSize: 16}, w, nil)

	for i := 0; i < 8; i++ {
		if err := q.Enqueue(context.Background(), memoryTask(i)); err != nil {
			t.Fatalf("Enqueue(%d) error = %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	lc.mu.Lock()
	completed := len(lc.completed)
	lc.mu.Unlock()
	if completed != 8 {
		t.Errorf("completed after drain = %d, want 8", completed)
	}
}

func TestMemoryQueueClosed(t *testing.T) {
	t.Parallel()

	lc := newFakeLifecycle()
	reg := algorithm.NewRegistry()
	reg.Register(algorithm.CLR, &fakeRunner{out: algorithm.Output{}})
	w := NewWorker(lc, reg, WorkerConfig{ResultsDir: t.TempDir()})
	q := NewMemory(MemoryConfig{}, w, nil)

	if err := q.Ready(context.Background()); err != nil {
		t.Errorf("Ready() before close = %v, want nil", err)
	}
	if err := q.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := q.Enqueue(context.Background(), memoryTask(0)); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Enqueue after close error = %v, want ErrQueueClosed", err)
	}
	if err := q.Ready(context.Background()); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Ready after close error = %v, want ErrQueueClosed", err)
	}
	// Second close is a no-op.
	if err := q.Close(context.Background()); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestNewRedisRejectsBadURL(t *testing.T) {
	t.Parallel()

	if _, err := NewRedis("not-a-redis-url", "grnd:tasks", nil); err == nil {
		t.Error("NewRedis() with malformed URL succeeded, want error")
	}
}
