// grn-service is the HTTP API server for gene regulatory network inference
// jobs. With the memory queue backend it also executes jobs in-process; with
// the redis backend execution is handed off to grn-worker instances.
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
	"grnd/internal/api"
	"grnd/internal/config"
	"grnd/internal/dataset"
	"grnd/internal/dispatcher"
	"grnd/internal/health"
	"grnd/internal/job"
	"grnd/internal/observability"
	"grnd/internal/queue"
	"grnd/internal/result"
	"grnd/internal/store"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cfg := config.LoadServiceConfig()
	dispatcherCfg := dispatcher.LoadConfigFromEnv()

	// Setup metrics
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	// Webhook dispatcher for lifecycle events
	eventDispatcher := dispatcher.NewMemory(dispatcherCfg, metrics)
	events := job.NewLifecyclePublisher(eventDispatcher, cfg.WebhookURL, cfg.WebhookKey)

	// Metadata stores
	datasetStore, err := store.New(cfg.DatasetsDir)
	if err != nil {
		return err
	}
	jobStore, err := store.New(cfg.JobsDir)
	if err != nil {
		return err
	}
	resultStore, err := store.New(resultMetaDir(cfg.ResultsDir))
	if err != nil {
		return err
	}

	datasets := dataset.NewService(datasetStore)
	results := result.NewRegistry(resultStore, resultFilesDir(cfg.ResultsDir))

	algorithms, err := buildRegistry()
	if err != nil {
		return err
	}
	slog.Info("Algorithm registry ready", "algorithms", algorithms.Names())

	// The manager and queue reference each other: the manager enqueues tasks
	// and the worker drives the manager's transitions. Wire via the deferred
	// enqueuer so construction stays acyclic.
	enqueuer := &deferredEnqueuer{}

	jobs, err := job.NewManager(job.Config{
		Store:      jobStore,
		Datasets:   datasets,
		Results:    results,
		Queue:      enqueuer,
		Algorithms: algorithms,
		Events:     events,
		Metrics:    metrics,
	})
	if err != nil {
		return err
	}

	worker := queue.NewWorker(jobs, algorithms, queue.WorkerConfig{
		ResultsDir: resultFilesDir(cfg.ResultsDir),
		JobTimeout: cfg.JobTimeout,
	})

	var taskQueue queue.Queue
	switch cfg.QueueBackend {
	case config.QueueRedis:
		rq, err := queue.NewRedis(cfg.RedisURL, cfg.QueueKey, metrics)
		if err != nil {
			return err
		}
		taskQueue = rq
		slog.Info("Using redis task queue", "key", cfg.QueueKey)
	default:
		taskQueue = queue.NewMemory(queue.MemoryConfig{Workers: cfg.Workers}, worker, metrics)
		slog.Info("Using in-process task queue", "workers", cfg.Workers)
	}
	enqueuer.set(taskQueue)

	// Health checker over the backends the API depends on
	healthChecker := health.NewChecker(map[string]health.ReadinessProbe{
		"queue": taskQueue,
		"store": health.ProbeFunc(func(ctx context.Context) error {
			_, err := jobStore.Count()
			return err
		}),
	})

	router := api.NewRouter(api.RouterConfig{
		Jobs:          jobs,
		Datasets:      datasets,
		Results:       results,
		Metrics:       metrics,
		HealthChecker: healthChecker,
		APIKey:        cfg.APIKey,
	})

	if cfg.APIKey != "" {
		slog.Info("API authentication enabled")
	} else {
		slog.Warn("API authentication disabled - no API_KEY_FILE configured")
	}

	apiServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

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
		slog.Info("Starting API server", "port", cfg.Port)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	go func() {
		slog.Info("Starting metrics server", "port", cfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// shutdown closes both servers gracefully
	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		shutdown(5 * time.Second)
		return err
	}

	// Phase 1: Mark service as unhealthy for load balancer draining
	healthChecker.SetShuttingDown()

	if cfg.ShutdownDrainWait > 0 {
		slog.Info("Waiting for traffic to drain", "duration", cfg.ShutdownDrainWait)
		time.Sleep(cfg.ShutdownDrainWait)
	}

	// Phase 2: Graceful shutdown - stop accepting new connections, finish
	// in-flight requests
	slog.Info("Starting graceful shutdown")
	shutdown(25 * time.Second)

	// Phase 3: Drain the task queue. For the memory backend this finishes
	// buffered jobs; for redis, pending tasks stay in the list for workers.
	slog.Info("Closing task queue")
	queueCtx, queueCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer queueCancel()
	if err := taskQueue.Close(queueCtx); err != nil {
		slog.Warn("Task queue shutdown error", "error", err)
	}

	// Phase 4: Drain webhook dispatcher
	slog.Info("Draining event dispatcher")
	dispatcherCtx, dispatcherCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer dispatcherCancel()
	if err := eventDispatcher.Close(dispatcherCtx); err != nil {
		slog.Warn("Dispatcher shutdown error", "error", err)
	}

	stats := eventDispatcher.Stats()
	slog.Info("Dispatcher stats",
		"delivered", stats.Delivered,
		"failed", stats.Failed,
		"dropped", stats.Dropped,
	)

	slog.Info("Shutdown complete")
	return nil
}

// buildRegistry selects the runner backend. The synthetic backend needs no
// external services; the docker backend runs each algorithm's container image.
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

func resultMetaDir(resultsDir string) string  { return filepath.Join(resultsDir, "meta") }
func resultFilesDir(resultsDir string) string { return filepath.Join(resultsDir, "files") }

// deferredEnqueuer breaks the manager/queue construction cycle.
type deferredEnqueuer struct {
	q queue.Queue
}

func (d *deferredEnqueuer) set(q queue.Queue) { d.q = q }

func (d *deferredEnqueuer) Enqueue(ctx context.Context, task job.Task) error {
	if d.q == nil {
		return errors.New("task queue not initialized")
	}
	return d.q.Enqueue(ctx, task)
}
