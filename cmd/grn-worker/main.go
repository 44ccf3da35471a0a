// grn-worker consumes inference tasks from the Redis queue and executes
// them. It shares the job and result metadata directories with grn-service,
// so both processes must see the same DATA_DIR.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"grnd/internal/algorithm"
	"grnd/internal/config"
	"grnd/internal/dispatcher"
	"grnd/internal/job"
	"grnd/internal/observability"
	"grnd/internal/queue"
	"grnd/internal/result"
	"grnd/internal/store"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Worker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.LoadWorkerConfig()
	dispatcherCfg := dispatcher.LoadConfigFromEnv()

	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	eventDispatcher := dispatcher.NewMemory(dispatcherCfg, metrics)
	events := job.NewLifecyclePublisher(eventDispatcher, cfg.WebhookURL, cfg.WebhookKey)

	jobStore, err := store.New(cfg.JobsDir)
	if err != nil {
		return err
	}
	resultStore, err := store.New(filepath.Join(cfg.ResultsDir, "meta"))
	if err != nil {
		return err
	}
	resultsDir := filepath.Join(cfg.ResultsDir, "files")
	results := result.NewRegistry(resultStore, resultsDir)

	algorithms, err := buildRegistry()
	if err != nil {
		return err
	}
	slog.Info("Algorithm registry ready", "algorithms", algorithms.Names())

	taskQueue, err := queue.NewRedis(cfg.RedisURL, cfg.QueueKey, metrics)
	if err != nil {
		return err
	}
	if err := taskQueue.Ready(ctx); err != nil {
		return err
	}
	slog.Info("Connected to Redis", "key", cfg.QueueKey)

	// The worker process never enqueues; tasks carry everything needed to
	// run, so the dataset resolver is only consulted at submission time.
	jobs, err := job.NewManager(job.Config{
		Store:      jobStore,
		Datasets:   taskOnlyResolver{},
		Results:    results,
		Queue:      rejectEnqueuer{},
		Algorithms: algorithms,
		Events:     events,
		Metrics:    metrics,
	})
	if err != nil {
		return err
	}

	worker := queue.NewWorker(jobs, algorithms, queue.WorkerConfig{
		ResultsDir: resultsDir,
		JobTimeout: cfg.JobTimeout,
	})
	taskQueue.StartConsumers(ctx, cfg.Workers, worker)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + cfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Starting metrics server", "port", cfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Metrics server failed", "error", err)
	}

	// Stop pulling new tasks, let in-flight runs reach a checkpoint, then
	// close the queue. Unfinished tasks remain in Redis for other workers.
	cancel()

	queueCtx, queueCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer queueCancel()
	if err := taskQueue.Close(queueCtx); err != nil {
		slog.Warn("Task queue shutdown error", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Metrics server shutdown error", "error", err)
	}

	dispatcherCtx, dispatcherCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer dispatcherCancel()
	if err := eventDispatcher.Close(dispatcherCtx); err != nil {
		slog.Warn("Dispatcher shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
	return nil
}

// buildRegistry selects the runner backend, mirroring grn-service.
func buildRegistry() (*algorithm.Registry, error) {
	switch backend := config.GetEnv("RUNNER_BACKEND", "synthetic"); backend {
	case "docker":
		c, err := algorithm.NewDockerClient()
		if err != nil {
			return nil, err
		}
		image := config.GetEnv("RUNNER_IMAGE", "grnd/inference-runner:latest")
		return algorithm.NewDockerRegistry(c, image), nil
	case "synthetic":
		return algorithm.NewDefaultRegistry(), nil
	default:
		return nil, errors.New("unknown RUNNER_BACKEND: " + backend)
	}
}

// taskOnlyResolver satisfies the manager's resolver dependency in a process
// that never accepts submissions.
type taskOnlyResolver struct{}

func (taskOnlyResolver) Resolve(context.Context, string) (string, error) {
	return "", errors.New("dataset resolution is handled by the API service")
}

// rejectEnqueuer satisfies the manager's queue dependency likewise.
type rejectEnqueuer struct{}

func (rejectEnqueuer) Enqueue(context.Context, job.Task) error {
	return errors.New("task submission is handled by the API service")
}
