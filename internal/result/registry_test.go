package result

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"grnd/internal/apperrors"
	"grnd/internal/job"
	"grnd/internal/store"
)

func newTestRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("store.New failed: %v", err)
	}
	resultsDir := t.TempDir()
	return NewRegistry(st, resultsDir), resultsDir
}

func record(jobID string) job.ResultRecord {
	return job.ResultRecord{
		JobID:       jobID,
		DatasetID:   "dataset_1",
		Algorithm:   "GRNBoost2",
		OutputFiles: []string{"adjacency_matrix.csv"},
		Summary:     map[string]any{"edges_predicted": 10},
	}
}

func TestRecordAndGetByJob(t *testing.T) {
	t.Parallel()
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	if err := r.Record(ctx, record("job_1")); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	res, err := r.GetByJob(ctx, "job_1")
	if err != nil {
		t.Fatalf("GetByJob failed: %v", err)
	}
	if res.Algorithm != "GRNBoost2" {
		t.Errorf("unexpected result: %+v", res)
	}

	got, err := r.Get(ctx, res.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.JobID != "job_1" {
		t.Errorf("Get returned wrong job: %q", got.JobID)
	}
}

func TestRecord_AtMostOncePerJob(t *testing.T) {
	t.Parallel()
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	if err := r.Record(ctx, record("job_dup")); err != nil {
		t.Fatalf("first Record failed: %v", err)
	}
	if err := r.Record(ctx, record("job_dup")); !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("expected conflict on duplicate record, got %v", err)
	}

	_, total, err := r.List(ctx, Filter{}, 0, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 1 {
		t.Errorf("expected exactly one result, got %d", total)
	}
}

func TestList_Filters(t *testing.T) {
	t.Parallel()
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	recs := []job.ResultRecord{
		{JobID: "job_a", DatasetID: "ds1", Algorithm: "PIDC"},
		{JobID: "job_b", DatasetID: "ds1", Algorithm: "CLR"},
		{JobID: "job_c", DatasetID: "ds2", Algorithm: "PIDC"},
	}
	for _, rec := range recs {
		if err := r.Record(ctx, rec); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	results, total, err := r.List(ctx, Filter{DatasetID: "ds1"}, 0, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 2 || len(results) != 2 {
		t.Errorf("dataset filter: got %d/%d, want 2/2", len(results), total)
	}

	results, total, err = r.List(ctx, Filter{Algorithm: "PIDC"}, 0, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 2 {
		t.Errorf("algorithm filter: total = %d, want 2", total)
	}

	results, total, err = r.List(ctx, Filter{DatasetID: "ds2", Algorithm: "PIDC"}, 0, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 1 || results[0].JobID != "job_c" {
		t.Errorf("combined filter: got %+v", results)
	}
}

func TestFilesAndFilePath(t *testing.T) {
	t.Parallel()
	r, resultsDir := newTestRegistry(t)
	ctx := context.Background()

	if err := r.Record(ctx, record("job_files")); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	res, err := r.GetByJob(ctx, "job_files")
	if err != nil {
		t.Fatalf("GetByJob failed: %v", err)
	}

	jobDir := filepath.Join(resultsDir, "job_files")
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(jobDir, "adjacency_matrix.csv"), []byte("a,b,0.5\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	files, err := r.Files(ctx, res.ID)
	if err != nil {
		t.Fatalf("Files failed: %v", err)
	}
	if len(files.Files) != 1 || files.Files[0] != "adjacency_matrix.csv" {
		t.Errorf("unexpected files: %v", files.Files)
	}

	path, err := r.FilePath(ctx, res.ID, "adjacency_matrix.csv")
	if err != nil {
		t.Fatalf("FilePath failed: %v", err)
	}
	if path != filepath.Join(jobDir, "adjacency_matrix.csv") {
		t.Errorf("unexpected path: %q", path)
	}

	// Path traversal is rejected
	if _, err := r.FilePath(ctx, res.ID, "../escape.csv"); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("expected validation error for traversal, got %v", err)
	}

	// Missing file
	if _, err := r.FilePath(ctx, res.ID, "missing.csv"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Errorf("expected not found for missing file, got %v", err)
	}
}

func TestFiles_NoDirectoryYet(t *testing.T) {
	t.Parallel()
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	if err := r.Record(ctx, record("job_nodir")); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	res, err := r.GetByJob(ctx, "job_nodir")
	if err != nil {
		t.Fatalf("GetByJob failed: %v", err)
	}

	files, err := r.Files(ctx, res.ID)
	if err != nil {
		t.Fatalf("Files failed: %v", err)
	}
	if len(files.Files) != 0 {
		t.Errorf("expected no files, got %v", files.Files)
	}
}
