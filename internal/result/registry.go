package result

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"grnd/internal/apperrors"
	"grnd/internal/job"
	"grnd/internal/store"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// Registry persists result records and resolves their artifact files under
// <resultsDir>/<jobID>/. At most one result exists per job: the recording
// path checks for an existing record under a mutex and treats a duplicate
// as a conflict.
type Registry struct {
	store      *store.Store
	resultsDir string

	recordMu sync.Mutex
}

// NewRegistry creates a result registry over the given store, serving
// artifact files from resultsDir.
func NewRegistry(s *store.Store, resultsDir string) *Registry {
	return &Registry{store: s, resultsDir: resultsDir}
}

// Record persists the result of a successfully completed job. Called by the
// job lifecycle manager exactly once per completion; a second record for
// the same job is rejected.
func (r *Registry) Record(ctx context.Context, rec job.ResultRecord) error {
	r.recordMu.Lock()
	defer r.recordMu.Unlock()

	if existing, err := r.findByJob(rec.JobID); err != nil {
		return err
	} else if existing != nil {
		return apperrors.Conflict("result", "result already recorded for job "+rec.JobID)
	}

	now := time.Now().UTC()
	res := &Result{
		ID:          store.NewID("result"),
		JobID:       rec.JobID,
		DatasetID:   rec.DatasetID,
		Algorithm:   rec.Algorithm,
		Summary:     rec.Summary,
		OutputFiles: rec.OutputFiles,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if res.Summary == nil {
		res.Summary = map[string]any{}
	}
	if res.OutputFiles == nil {
		res.OutputFiles = []string{}
	}

	if err := r.store.Put(res.ID, res); err != nil {
		return apperrors.Persistence("result.record", err)
	}

	slog.Info("Result recorded", "resultId", res.ID, "jobId", res.JobID, "algorithm", res.Algorithm)
	return nil
}

// Get returns a result by ID.
func (r *Registry) Get(ctx context.Context, resultID string) (*Result, error) {
	var res Result
	if err := r.store.Get(resultID, &res); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NotFound("result", resultID)
		}
		return nil, apperrors.Persistence("result.get", err)
	}
	return &res, nil
}

// GetByJob returns the result recorded for a job.
func (r *Registry) GetByJob(ctx context.Context, jobID string) (*Result, error) {
	res, err := r.findByJob(jobID)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, apperrors.NotFound("result", "for job "+jobID)
	}
	return res, nil
}

// List returns results matching the filter, ordered by creation time
// descending, plus the total matching count.
func (r *Registry) List(ctx context.Context, filter Filter, offset, limit int) ([]*Result, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	ids, err := r.store.IDs()
	if err != nil {
		return nil, 0, apperrors.Persistence("result.list", err)
	}

	results := make([]*Result, 0, len(ids))
	for _, id := range ids {
		var res Result
		if err := r.store.Get(id, &res); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, 0, apperrors.Persistence("result.list", err)
		}
		if filter.DatasetID != "" && res.DatasetID != filter.DatasetID {
			continue
		}
		if filter.Algorithm != "" && res.Algorithm != filter.Algorithm {
			continue
		}
		results = append(results, &res)
	}

	sort.Slice(results, func(i, j int) bool {
		if !results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].CreatedAt.After(results[j].CreatedAt)
		}
		return results[i].ID > results[j].ID
	})

	total := len(results)
	if offset >= total {
		return []*Result{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return results[offset:end], total, nil
}

// Delete removes a result record and the artifact files under its job's
// output directory.
func (r *Registry) Delete(ctx context.Context, resultID string) error {
	res, err := r.Get(ctx, resultID)
	if err != nil {
		return err
	}
	if err := r.store.Delete(resultID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.NotFound("result", resultID)
		}
		return apperrors.Persistence("result.delete", err)
	}
	if err := os.RemoveAll(filepath.Join(r.resultsDir, res.JobID)); err != nil {
		slog.Warn("Failed to remove result files", "resultId", resultID, "jobId", res.JobID, "error", err)
	}
	slog.Info("Result deleted", "resultId", resultID)
	return nil
}

// Files lists the artifact files currently on disk for a result.
func (r *Registry) Files(ctx context.Context, resultID string) (*FilesResponse, error) {
	res, err := r.Get(ctx, resultID)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(r.resultsDir, res.JobID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return &FilesResponse{ResultID: res.ID, JobID: res.JobID, Files: []string{}}, nil
		}
		return nil, apperrors.Persistence("result.files", err)
	}

	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, e.Name())
		}
	}
	return &FilesResponse{ResultID: res.ID, JobID: res.JobID, Files: files}, nil
}

// FilePath resolves one artifact file for download. Rejects names escaping
// the result's directory.
func (r *Registry) FilePath(ctx context.Context, resultID, filename string) (string, error) {
	res, err := r.Get(ctx, resultID)
	if err != nil {
		return "", err
	}

	if filename == "" || filename != filepath.Base(filename) || strings.HasPrefix(filename, ".") {
		return "", apperrors.Validation("filename", "invalid file name")
	}

	path := filepath.Join(r.resultsDir, res.JobID, filename)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", apperrors.NotFound("file", filename)
		}
		return "", apperrors.Persistence("result.file", err)
	}
	return path, nil
}

func (r *Registry) findByJob(jobID string) (*Result, error) {
	ids, err := r.store.IDs()
	if err != nil {
		return nil, apperrors.Persistence("result.lookup", err)
	}
	for _, id := range ids {
		var res Result
		if err := r.store.Get(id, &res); err != nil {
			continue
		}
		if res.JobID == jobID {
			return &res, nil
		}
	}
	return nil, nil
}

var _ job.ResultRecorder = (*Registry)(nil)
