package api

import (
	"net/http"

	"grnd/internal/dataset"
	"grnd/internal/health"
	"grnd/internal/job"
	"grnd/internal/observability"
	"grnd/internal/result"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	Jobs          *job.Manager
	Datasets      *dataset.Service
	Results       *result.Registry
	Metrics       *observability.Metrics
	HealthChecker *health.Checker
	APIKey        string
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.Jobs, cfg.Datasets, cfg.Results, cfg.HealthChecker)

	mux := http.NewServeMux()

	// Health check endpoints (liveness/readiness probes) - no auth required
	mux.HandleFunc("GET /livez", handler.Livez)
	mux.HandleFunc("GET /readyz", handler.Readyz)

	// API endpoints - auth required
	auth := AuthMiddleware(cfg.APIKey)
	handle := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, auth(fn))
	}

	handle("POST /v1/datasets", handler.RegisterDataset)
	handle("GET /v1/datasets", handler.ListDatasets)
	handle("GET /v1/datasets/{datasetId}", handler.GetDataset)
	handle("DELETE /v1/datasets/{datasetId}", handler.DeleteDataset)

	handle("POST /v1/jobs", handler.CreateJob)
	handle("GET /v1/jobs", handler.ListJobs)
	handle("GET /v1/jobs/{jobId}", handler.GetJob)
	handle("DELETE /v1/jobs/{jobId}", handler.CancelJob)
	handle("GET /v1/jobs/{jobId}/logs", handler.GetJobLogs)

	handle("GET /v1/results", handler.ListResults)
	handle("GET /v1/results/{resultId}", handler.GetResult)
	handle("DELETE /v1/results/{resultId}", handler.DeleteResult)
	handle("GET /v1/results/{resultId}/files", handler.GetResultFiles)
	handle("GET /v1/results/{resultId}/files/{filename}", handler.DownloadResultFile)

	// Apply middleware chain (order matters: outermost first)
	var h http.Handler = mux
	h = ContentTypeMiddleware()(h)
	h = CORSMiddleware()(h)
	if cfg.Metrics != nil {
		h = MetricsMiddleware(cfg.Metrics)(h)
	}
	h = LoggingMiddleware()(h)
	h = RecoveryMiddleware()(h)

	return h
}
