// Package api provides the HTTP API handlers and routing for the inference service.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"grnd/internal/apperrors"
	"grnd/internal/dataset"
	"grnd/internal/health"
	"grnd/internal/job"
	"grnd/internal/result"
)

// maxRequestBodySize limits request body to 1MB to prevent memory exhaustion
const maxRequestBodySize = 1 << 20 // 1 MB

// Handler contains HTTP handlers for the inference API
type Handler struct {
	jobs     *job.Manager
	datasets *dataset.Service
	results  *result.Registry
	health   *health.Checker
}

// NewHandler creates a new API handler
func NewHandler(jobs *job.Manager, datasets *dataset.Service, results *result.Registry, healthChecker *health.Checker) *Handler {
	return &Handler{
		jobs:     jobs,
		datasets: datasets,
		results:  results,
		health:   healthChecker,
	}
}

// RegisterDataset handles POST /v1/datasets
func (h *Handler) RegisterDataset(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req dataset.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	ds, err := h.datasets.Register(r.Context(), &req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, ds)
}

// ListDatasets handles GET /v1/datasets
func (h *Handler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := parseListParams(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	datasets, total, err := h.datasets.List(r.Context(), offset, limit)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, &dataset.ListResponse{Total: total, Datasets: datasets})
}

// GetDataset handles GET /v1/datasets/{datasetId}
func (h *Handler) GetDataset(w http.ResponseWriter, r *http.Request) {
	ds, err := h.datasets.Get(r.Context(), r.PathValue("datasetId"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, ds)
}

// DeleteDataset handles DELETE /v1/datasets/{datasetId}
func (h *Handler) DeleteDataset(w http.ResponseWriter, r *http.Request) {
	if err := h.datasets.Delete(r.Context(), r.PathValue("datasetId")); err != nil {
		h.handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CreateJob handles POST /v1/jobs.
// Returns 202: the job record exists and the task is queued, but inference
// runs asynchronously.
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req job.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	jb, err := h.jobs.Create(r.Context(), &req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, jb)
}

// ListJobs handles GET /v1/jobs
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := parseListParams(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	jobs, total, err := h.jobs.List(r.Context(), offset, limit)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, &job.ListResponse{Total: total, Jobs: jobs})
}

// GetJob handles GET /v1/jobs/{jobId}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	jb, err := h.jobs.Get(r.Context(), r.PathValue("jobId"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, jb)
}

// CancelJob handles DELETE /v1/jobs/{jobId}.
// Cancellation is cooperative; the record flips immediately and in-flight
// work stops at its next checkpoint.
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	if err := h.jobs.Cancel(r.Context(), r.PathValue("jobId")); err != nil {
		h.handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetJobLogs handles GET /v1/jobs/{jobId}/logs
func (h *Handler) GetJobLogs(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobId")
	jb, err := h.jobs.Get(r.Context(), jobID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	logs := jb.Logs
	if logs == nil {
		logs = []job.LogEntry{}
	}
	h.writeJSON(w, http.StatusOK, &job.LogsResponse{JobID: jobID, Logs: logs})
}

// ListResults handles GET /v1/results.
// Optional filters: datasetId, algorithm.
func (h *Handler) ListResults(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := parseListParams(r)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	filter := result.Filter{
		DatasetID: r.URL.Query().Get("datasetId"),
		Algorithm: r.URL.Query().Get("algorithm"),
	}
	results, total, err := h.results.List(r.Context(), filter, offset, limit)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, &result.ListResponse{Total: total, Results: results})
}

// GetResult handles GET /v1/results/{resultId}
func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request) {
	res, err := h.results.Get(r.Context(), r.PathValue("resultId"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, res)
}

// DeleteResult handles DELETE /v1/results/{resultId}
func (h *Handler) DeleteResult(w http.ResponseWriter, r *http.Request) {
	if err := h.results.Delete(r.Context(), r.PathValue("resultId")); err != nil {
		h.handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetResultFiles handles GET /v1/results/{resultId}/files
func (h *Handler) GetResultFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.results.Files(r.Context(), r.PathValue("resultId"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, files)
}

// DownloadResultFile handles GET /v1/results/{resultId}/files/{filename}
func (h *Handler) DownloadResultFile(w http.ResponseWriter, r *http.Request) {
	path, err := h.results.FilePath(r.Context(), r.PathValue("resultId"), r.PathValue("filename"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", r.PathValue("filename")))
	http.ServeFile(w, r, path)
}

// Livez handles GET /livez - liveness probe.
// Returns 200 if the process is alive. Does not check dependencies.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	response := h.health.Liveness(r.Context())
	h.writeJSON(w, http.StatusOK, response)
}

// Readyz handles GET /readyz - readiness probe.
// Returns 200 if the service is ready to accept traffic.
// Returns 503 if dependencies (stores, queue) are unavailable.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsHealthy() {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, response)
}

// parseListParams reads offset/limit query parameters.
func parseListParams(r *http.Request) (offset, limit int, err error) {
	q := r.URL.Query()
	if raw := q.Get("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return 0, 0, apperrors.Validation("offset", "offset must be a non-negative integer")
		}
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return 0, 0, apperrors.Validation("limit", "limit must be a non-negative integer")
		}
	}
	return offset, limit, nil
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// handleError handles errors from the service layer with appropriate HTTP status codes.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		slog.Error("Internal error", "error", err, "path", r.URL.Path)
	} else {
		slog.Warn("Client error", "error", err, "path", r.URL.Path, "status", status)
	}
	h.writeError(w, status, err.Error())
}
