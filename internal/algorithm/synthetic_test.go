package algorithm

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
)

func TestSynthetic_Run(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	runner := NewSynthetic(GRNBoost2)

	out, err := runner.Run(context.Background(), Input{
		JobID:     "job_abc123",
		OutputDir: dir,
		Params:    map[string]any{"genes": 20},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if out.Summary.EdgesPredicted <= 0 {
		t.Errorf("expected edges, got %d", out.Summary.EdgesPredicted)
	}
	if out.Summary.MeanWeight <= 0 || out.Summary.MeanWeight >= 1 {
		t.Errorf("mean weight out of range: %v", out.Summary.MeanWeight)
	}
	if out.Summary.MinWeight > out.Summary.MaxWeight {
		t.Errorf("min weight %v > max weight %v", out.Summary.MinWeight, out.Summary.MaxWeight)
	}
	if len(out.OutputFiles) != 2 {
		t.Fatalf("expected 2 output files, got %v", out.OutputFiles)
	}

	// Edge list matches reported count
	f, err := os.Open(filepath.Join(dir, adjacencyFile))
	if err != nil {
		t.Fatalf("failed to open adjacency file: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("failed to read adjacency file: %v", err)
	}
	if len(rows)-1 != out.Summary.EdgesPredicted {
		t.Errorf("edge rows = %d, summary reports %d", len(rows)-1, out.Summary.EdgesPredicted)
	}

	if _, err := os.Stat(filepath.Join(dir, metadataFile)); err != nil {
		t.Errorf("metadata file missing: %v", err)
	}
}

func TestSynthetic_Deterministic(t *testing.T) {
	t.Parallel()

	in := Input{JobID: "job_same", Params: map[string]any{"genes": 15}}

	in.OutputDir = t.TempDir()
	first, err := NewSynthetic(CLR).Run(context.Background(), in)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	in.OutputDir = t.TempDir()
	second, err := NewSynthetic(CLR).Run(context.Background(), in)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if first.Summary.EdgesPredicted != second.Summary.EdgesPredicted {
		t.Errorf("same job produced different edge counts: %d vs %d",
			first.Summary.EdgesPredicted, second.Summary.EdgesPredicted)
	}
}

func TestSynthetic_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSynthetic(ARACNE).Run(ctx, Input{
		JobID:     "job_cancel",
		OutputDir: t.TempDir(),
		Params:    map[string]any{"genes": 50},
	})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestSynthetic_GeneCountFromDataset(t *testing.T) {
	t.Parallel()

	dataset := filepath.Join(t.TempDir(), "expr.csv")
	content := "gene,s1,s2\n"
	for i := 0; i < 8; i++ {
		content += "g,1.0,2.0\n"
	}
	if err := os.WriteFile(dataset, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dataset: %v", err)
	}

	runner := NewSynthetic(NES)
	got := runner.geneCount(Input{DatasetPath: dataset})
	if got != 8 {
		t.Errorf("geneCount = %d, want 8", got)
	}

	// Param overrides dataset
	got = runner.geneCount(Input{DatasetPath: dataset, Params: map[string]any{"genes": float64(3)}})
	if got != 3 {
		t.Errorf("geneCount with param = %d, want 3", got)
	}

	// Unreadable dataset falls back to default
	got = runner.geneCount(Input{DatasetPath: "/nonexistent.csv"})
	if got != defaultGenes {
		t.Errorf("geneCount fallback = %d, want %d", got, defaultGenes)
	}
}
