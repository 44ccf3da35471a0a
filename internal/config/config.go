// Package config provides configuration loading from environment variables.
package config

import (
	"path/filepath"
	"time"
)

// Queue backend names.
const (
	QueueMemory = "memory"
	QueueRedis  = "redis"
)

// ServiceConfig holds configuration for the grn-service API server.
type ServiceConfig struct {
	Port              string
	MetricsPort       string
	APIKey            string
	ShutdownDrainWait time.Duration // Time to wait for load balancer to drain (0 to skip)

	DataDir     string // Root data directory
	DatasetsDir string // Dataset metadata and files
	JobsDir     string // Job metadata records
	ResultsDir  string // Result metadata and per-job output files

	QueueBackend string        // "memory" or "redis"
	RedisURL     string        // Redis connection URL for the redis queue
	QueueKey     string        // Redis list key for pending tasks
	Workers      int           // Worker goroutines (memory queue / in-process workers)
	JobTimeout   time.Duration // Maximum runtime per job

	WebhookURL string // Optional lifecycle event webhook destination
	WebhookKey string // Optional HMAC signing key for webhook events
}

// WorkerConfig holds configuration for the standalone grn-worker process.
type WorkerConfig struct {
	MetricsPort string

	DataDir    string
	JobsDir    string
	ResultsDir string

	RedisURL   string
	QueueKey   string
	Workers    int
	JobTimeout time.Duration

	WebhookURL string
	WebhookKey string
}

// LoadServiceConfig loads service configuration from environment variables.
func LoadServiceConfig() *ServiceConfig {
	dataDir := GetEnv("DATA_DIR", "./data")
	return &ServiceConfig{
		Port:              GetEnv("PORT", "8080"),
		MetricsPort:       GetEnv("METRICS_PORT", "9090"),
		APIKey:            GetSecretFile(GetEnv("API_KEY_FILE", "")),
		ShutdownDrainWait: GetDurationEnv("SHUTDOWN_DRAIN_WAIT", 5*time.Second),

		DataDir:     dataDir,
		DatasetsDir: GetEnv("DATASETS_DIR", filepath.Join(dataDir, "datasets")),
		JobsDir:     GetEnv("JOBS_DIR", filepath.Join(dataDir, "jobs")),
		ResultsDir:  GetEnv("RESULTS_DIR", filepath.Join(dataDir, "results")),

		QueueBackend: GetEnv("QUEUE_BACKEND", QueueMemory),
		RedisURL:     GetEnv("REDIS_URL", "redis://localhost:6379/0"),
		QueueKey:     GetEnv("QUEUE_KEY", "grnd:tasks"),
		Workers:      GetIntEnv("WORKERS", 4),
		JobTimeout:   GetDurationEnv("JOB_TIMEOUT", time.Hour),

		WebhookURL: GetEnv("WEBHOOK_URL", ""),
		WebhookKey: GetSecretFile(GetEnv("WEBHOOK_KEY_FILE", "")),
	}
}

// LoadWorkerConfig loads worker configuration from environment variables.
func LoadWorkerConfig() *WorkerConfig {
	dataDir := GetEnv("DATA_DIR", "./data")
	return &WorkerConfig{
		MetricsPort: GetEnv("METRICS_PORT", "9091"),

		DataDir:    dataDir,
		JobsDir:    GetEnv("JOBS_DIR", filepath.Join(dataDir, "jobs")),
		ResultsDir: GetEnv("RESULTS_DIR", filepath.Join(dataDir, "results")),

		RedisURL:   GetEnv("REDIS_URL", "redis://localhost:6379/0"),
		QueueKey:   GetEnv("QUEUE_KEY", "grnd:tasks"),
		Workers:    GetIntEnv("WORKERS", 4),
		JobTimeout: GetDurationEnv("JOB_TIMEOUT", time.Hour),

		WebhookURL: GetEnv("WEBHOOK_URL", ""),
		WebhookKey: GetSecretFile(GetEnv("WEBHOOK_KEY_FILE", "")),
	}
}
