// Package job implements the job lifecycle manager: the authoritative state
// of every inference job and the legal transitions between states.
package job

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"sync"
	"time"

	"grnd/internal/apperrors"
	"grnd/internal/observability"
	"grnd/internal/store"
)

// List pagination bounds.
const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// lockStripes bounds per-job mutex memory; jobs hash onto stripes.
const lockStripes = 64

// AlgorithmCatalog reports the supported algorithm set.
type AlgorithmCatalog interface {
	Supported(name string) bool
	Names() []string
}

// DatasetResolver resolves a dataset reference to its on-disk path.
// Returns apperrors.ErrNotFound when the dataset does not exist.
type DatasetResolver interface {
	Resolve(ctx context.Context, datasetID string) (string, error)
}

// ResultRecord carries everything the result registry needs when a job
// completes successfully.
type ResultRecord struct {
	JobID       string
	DatasetID   string
	Algorithm   string
	OutputFiles []string
	Summary     map[string]any
}

// ResultRecorder records the output of a successfully completed job.
// The manager invokes it exactly once, on the running→completed transition.
type ResultRecorder interface {
	Record(ctx context.Context, rec ResultRecord) error
}

// Enqueuer hands a task to the asynchronous task executor.
type Enqueuer interface {
	Enqueue(ctx context.Context, task Task) error
}

// Manager owns job state and enforces the transition table:
//
//	pending → running | cancelled
//	running → completed | failed | cancelled
//
// One internal exception: Create fails a pending job directly when its task
// cannot be enqueued. External failure callbacks require a running job.
//
// No transition leaves a terminal state. Every mutating operation takes the
// job's stripe lock and the store's per-record lock, re-reads the record,
// verifies legality, and writes the new record atomically. The store lock is
// a file lock, so the API process and standalone workers sharing a store
// directory serialize on it too: a cancel racing a completion resolves to
// "first write wins" in either process and the loser gets a conflict error.
//
// Contract choice: progress updates and log appends on a non-running job
// return a conflict error; they are never silently dropped.
type Manager struct {
	store      *store.Store
	datasets   DatasetResolver
	results    ResultRecorder
	queue      Enqueuer
	algorithms AlgorithmCatalog
	events     *LifecyclePublisher
	metrics    *observability.Metrics

	locks [lockStripes]sync.Mutex

	// cancels maps running job IDs to the cancel func of the worker context.
	cancelMu sync.Mutex
	cancels  map[string]context.CancelFunc
}

// Config holds dependencies for the Manager.
type Config struct {
	Store      *store.Store     // required
	Datasets   DatasetResolver  // required
	Results    ResultRecorder   // required
	Queue      Enqueuer         // required
	Algorithms AlgorithmCatalog // required
	Events     *LifecyclePublisher
	Metrics    *observability.Metrics
}

// NewManager creates a job lifecycle manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Datasets == nil {
		return nil, fmt.Errorf("dataset resolver is required")
	}
	if cfg.Results == nil {
		return nil, fmt.Errorf("result recorder is required")
	}
	if cfg.Queue == nil {
		return nil, fmt.Errorf("queue is required")
	}
	if cfg.Algorithms == nil {
		return nil, fmt.Errorf("algorithm catalog is required")
	}
	return &Manager{
		store:      cfg.Store,
		datasets:   cfg.Datasets,
		results:    cfg.Results,
		queue:      cfg.Queue,
		algorithms: cfg.Algorithms,
		events:     cfg.Events,
		metrics:    cfg.Metrics,
		cancels:    make(map[string]context.CancelFunc),
	}, nil
}

// Create validates the request, persists a pending job record, and enqueues
// the task. It returns as soon as the record is persisted and the task is
// queued; it never waits on execution.
func (m *Manager) Create(ctx context.Context, req *CreateRequest) (*Job, error) {
	if req.DatasetID == "" {
		return nil, apperrors.Validation("datasetId", "dataset ID is required")
	}
	if req.Algorithm == "" {
		return nil, apperrors.Validation("algorithm", "algorithm is required")
	}
	if !m.algorithms.Supported(req.Algorithm) {
		return nil, apperrors.UnknownAlgorithm(req.Algorithm)
	}

	datasetPath, err := m.datasets.Resolve(ctx, req.DatasetID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	jb := &Job{
		ID:        store.NewID("job"),
		DatasetID: req.DatasetID,
		Algorithm: req.Algorithm,
		Params:    req.Params,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if jb.Params == nil {
		jb.Params = map[string]any{}
	}

	if err := m.store.Put(jb.ID, jb); err != nil {
		return nil, apperrors.Persistence("job.create", err)
	}

	logger := slog.With("jobId", jb.ID, "algorithm", jb.Algorithm)

	task := Task{
		JobID:       jb.ID,
		DatasetID:   jb.DatasetID,
		DatasetPath: datasetPath,
		Algorithm:   jb.Algorithm,
		Params:      jb.Params,
	}
	if err := m.queue.Enqueue(ctx, task); err != nil {
		logger.Error("Failed to enqueue job, marking failed", "error", err)
		if failErr := m.markFailed(ctx, jb.ID, fmt.Errorf("enqueue failed: %w", err), StatusPending); failErr != nil {
			logger.Error("Failed to mark unqueued job as failed", "error", failErr)
		}
		return nil, apperrors.Internal("job.enqueue", err)
	}

	if m.metrics != nil {
		m.metrics.RecordJobCreated(ctx, jb.Algorithm)
	}
	m.events.Publish(ctx, EventTypeCreated, jb)
	logger.Info("Job created")

	return jb, nil
}

// Get returns a job by ID.
func (m *Manager) Get(ctx context.Context, jobID string) (*Job, error) {
	var jb Job
	if err := m.store.Get(jobID, &jb); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NotFound("job", jobID)
		}
		return nil, apperrors.Persistence("job.get", err)
	}
	return &jb, nil
}

// List returns jobs ordered by creation time descending, plus the total
// count. Offset is clamped to >= 0 and limit to [1, 1000]; a non-positive
// limit selects the default of 100.
func (m *Manager) List(ctx context.Context, offset, limit int) ([]*Job, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	ids, err := m.store.IDs()
	if err != nil {
		return nil, 0, apperrors.Persistence("job.list", err)
	}

	jobs := make([]*Job, 0, len(ids))
	for _, id := range ids {
		var jb Job
		if err := m.store.Get(id, &jb); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue // deleted between listing and read
			}
			return nil, 0, apperrors.Persistence("job.list", err)
		}
		jobs = append(jobs, &jb)
	}

	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
		}
		return jobs[i].ID > jobs[j].ID
	})

	total := len(jobs)
	if offset >= total {
		return []*Job{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return jobs[offset:end], total, nil
}

// MarkRunning transitions pending→running and sets startedAt. A job that is
// no longer pending (cancelled before pickup, or a duplicate delivery)
// yields a conflict error and the record stays unchanged.
func (m *Manager) MarkRunning(ctx context.Context, jobID string) error {
	return m.mutate(ctx, jobID, func(jb *Job) error {
		if jb.Status.Terminal() {
			slog.Warn("Ignoring stale start for terminal job", "jobId", jobID, "status", jb.Status)
			return apperrors.StaleJob(jobID, string(jb.Status))
		}
		if jb.Status != StatusPending {
			return apperrors.InvalidState(jobID, string(jb.Status), "start")
		}
		now := time.Now().UTC()
		jb.Status = StatusRunning
		jb.StartedAt = &now
		return nil
	}, func(jb *Job) {
		m.events.Publish(ctx, EventTypeStarted, jb)
		slog.Info("Job running", "jobId", jobID)
	})
}

// MarkCompleted transitions running→completed, sets progress to 100 and
// endedAt, then invokes the result recorder exactly once. A late completion
// arriving after cancellation or failure is a warning-logged no-op returning
// a conflict error; the result recorder is not invoked.
func (m *Manager) MarkCompleted(ctx context.Context, jobID string, summary map[string]any, outputFiles []string) error {
	var completed *Job
	err := m.mutate(ctx, jobID, func(jb *Job) error {
		if jb.Status.Terminal() {
			slog.Warn("Ignoring stale completion for terminal job", "jobId", jobID, "status", jb.Status)
			return apperrors.StaleJob(jobID, string(jb.Status))
		}
		if jb.Status != StatusRunning {
			return apperrors.InvalidState(jobID, string(jb.Status), "complete")
		}
		now := time.Now().UTC()
		jb.Status = StatusCompleted
		jb.ProgressPercent = 100
		jb.EndedAt = &now
		return nil
	}, func(jb *Job) {
		completed = jb
	})
	if err != nil {
		return err
	}

	m.clearCancel(jobID)

	if err := m.results.Record(ctx, ResultRecord{
		JobID:       jobID,
		DatasetID:   completed.DatasetID,
		Algorithm:   completed.Algorithm,
		OutputFiles: outputFiles,
		Summary:     summary,
	}); err != nil {
		slog.Error("Failed to record result", "jobId", jobID, "error", err)
		return err
	}

	if m.metrics != nil {
		m.metrics.RecordJobCompleted(ctx, completed.Algorithm, true, durationSeconds(completed))
	}
	m.events.Publish(ctx, EventTypeCompleted, completed)
	slog.Info("Job completed", "jobId", jobID)
	return nil
}

// MarkFailed transitions running→failed with the given error message.
// Timeouts are failures with a distinguishing error kind; the caller passes
// an apperrors.Timeout error and the message is preserved. A late failure
// after cancellation is a warning-logged no-op returning a conflict error,
// and a failure callback for a job that never started is a conflict too.
func (m *Manager) MarkFailed(ctx context.Context, jobID string, execErr error) error {
	return m.markFailed(ctx, jobID, execErr, StatusRunning)
}

// markFailed fails a job currently in the from state. The create path fails
// from pending when the task cannot be enqueued; every external failure
// callback goes through MarkFailed and requires running.
func (m *Manager) markFailed(ctx context.Context, jobID string, execErr error, from Status) error {
	msg := "unknown error"
	if execErr != nil {
		msg = execErr.Error()
	}
	return m.mutate(ctx, jobID, func(jb *Job) error {
		if jb.Status.Terminal() {
			slog.Warn("Ignoring stale failure for terminal job", "jobId", jobID, "status", jb.Status)
			return apperrors.StaleJob(jobID, string(jb.Status))
		}
		if jb.Status != from {
			return apperrors.InvalidState(jobID, string(jb.Status), "fail")
		}
		now := time.Now().UTC()
		jb.Status = StatusFailed
		jb.ErrorMessage = msg
		jb.EndedAt = &now
		return nil
	}, func(jb *Job) {
		m.clearCancel(jobID)
		if m.metrics != nil {
			m.metrics.RecordJobCompleted(ctx, jb.Algorithm, false, durationSeconds(jb))
		}
		m.events.Publish(ctx, EventTypeFailed, jb)
		slog.Warn("Job failed", "jobId", jobID, "error", msg)
	})
}

// Cancel transitions pending→cancelled or running→cancelled and signals the
// worker to stop. Cancellation is cooperative: the record flips immediately,
// the in-flight work stops at its next checkpoint, and any late completion
// or failure callback is ignored. Cancelling an already-cancelled job is an
// idempotent no-op; cancelling a completed or failed job is a conflict.
func (m *Manager) Cancel(ctx context.Context, jobID string) error {
	return m.mutate(ctx, jobID, func(jb *Job) error {
		switch jb.Status {
		case StatusCancelled:
			return errAlreadyCancelled
		case StatusCompleted, StatusFailed:
			return apperrors.InvalidState(jobID, string(jb.Status), "cancel")
		}
		now := time.Now().UTC()
		jb.Status = StatusCancelled
		jb.EndedAt = &now
		return nil
	}, func(jb *Job) {
		m.signalCancel(jobID)
		if m.metrics != nil {
			m.metrics.RecordJobCancelled(ctx, jb.Algorithm)
		}
		m.events.Publish(ctx, EventTypeCancelled, jb)
		slog.Info("Job cancelled", "jobId", jobID)
	})
}

// SetProgress updates progress for a running job. Progress is monotonically
// non-decreasing; a lower value than the current one is rejected.
func (m *Manager) SetProgress(ctx context.Context, jobID string, percent int) error {
	if percent < 0 || percent > 100 {
		return apperrors.Validation("progressPercent", "progress must be between 0 and 100")
	}
	return m.mutate(ctx, jobID, func(jb *Job) error {
		if jb.Status != StatusRunning {
			return apperrors.InvalidState(jobID, string(jb.Status), "update progress of")
		}
		if percent < jb.ProgressPercent {
			return apperrors.Validation("progressPercent",
				fmt.Sprintf("progress cannot decrease from %d to %d", jb.ProgressPercent, percent))
		}
		jb.ProgressPercent = percent
		return nil
	}, nil)
}

// AppendLog appends a timestamped log entry to a running job.
func (m *Manager) AppendLog(ctx context.Context, jobID, message string) error {
	return m.mutate(ctx, jobID, func(jb *Job) error {
		if jb.Status != StatusRunning {
			return apperrors.InvalidState(jobID, string(jb.Status), "append log to")
		}
		jb.Logs = append(jb.Logs, LogEntry{Timestamp: time.Now().UTC(), Message: message})
		return nil
	}, nil)
}

// Delete removes a job record. Running jobs must be cancelled first.
func (m *Manager) Delete(ctx context.Context, jobID string) error {
	lock := m.lockFor(jobID)
	lock.Lock()
	defer lock.Unlock()

	if !m.store.Exists(jobID) {
		return apperrors.NotFound("job", jobID)
	}
	release, err := m.store.Lock(jobID)
	if err != nil {
		return apperrors.Persistence("job.lock", err)
	}
	defer release()

	var jb Job
	if err := m.store.Get(jobID, &jb); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.NotFound("job", jobID)
		}
		return apperrors.Persistence("job.delete", err)
	}
	if jb.Status == StatusRunning {
		return apperrors.InvalidState(jobID, string(jb.Status), "delete")
	}
	if err := m.store.Delete(jobID); err != nil {
		return apperrors.Persistence("job.delete", err)
	}
	slog.Info("Job deleted", "jobId", jobID)
	return nil
}

// RegisterCancel associates a running job with its worker's cancel func so
// Cancel can signal in-flight work. The worker calls this before MarkRunning
// and the manager clears it on any terminal transition.
func (m *Manager) RegisterCancel(jobID string, cancel context.CancelFunc) {
	m.cancelMu.Lock()
	defer m.cancelMu.Unlock()
	m.cancels[jobID] = cancel
}

// errAlreadyCancelled marks the idempotent second cancel inside mutate.
var errAlreadyCancelled = errors.New("already cancelled")

// mutate runs a read-verify-write cycle under the job's stripe lock and the
// store's per-record file lock; the latter serializes the cycle against
// other processes using the same store directory. verify inspects and
// updates the in-memory record; a non-nil error aborts without writing.
// after runs outside persistence but still under both locks.
func (m *Manager) mutate(ctx context.Context, jobID string, verify func(*Job) error, after func(*Job)) error {
	lock := m.lockFor(jobID)
	lock.Lock()
	defer lock.Unlock()

	if !m.store.Exists(jobID) {
		return apperrors.NotFound("job", jobID)
	}
	release, err := m.store.Lock(jobID)
	if err != nil {
		return apperrors.Persistence("job.lock", err)
	}
	defer release()

	var jb Job
	if err := m.store.Get(jobID, &jb); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.NotFound("job", jobID)
		}
		return apperrors.Persistence("job.load", err)
	}

	if err := verify(&jb); err != nil {
		if errors.Is(err, errAlreadyCancelled) {
			slog.Debug("Job already cancelled", "jobId", jobID)
			return nil
		}
		return err
	}

	jb.UpdatedAt = time.Now().UTC()
	if err := m.store.Put(jobID, &jb); err != nil {
		return apperrors.Persistence("job.update", err)
	}

	if after != nil {
		after(&jb)
	}
	return nil
}

func (m *Manager) lockFor(jobID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(jobID))
	return &m.locks[h.Sum32()%lockStripes]
}

func (m *Manager) signalCancel(jobID string) {
	m.cancelMu.Lock()
	cancel := m.cancels[jobID]
	delete(m.cancels, jobID)
	m.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (m *Manager) clearCancel(jobID string) {
	m.cancelMu.Lock()
	delete(m.cancels, jobID)
	m.cancelMu.Unlock()
}

func durationSeconds(jb *Job) float64 {
	if jb.StartedAt == nil || jb.EndedAt == nil {
		return 0
	}
	return jb.EndedAt.Sub(*jb.StartedAt).Seconds()
}
