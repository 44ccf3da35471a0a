package algorithm

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math/rand"
	"os"
	"path/filepath"
	"time"
)

// Output file names written by the synthetic runner.
const (
	adjacencyFile = "adjacency_matrix.csv"
	metadataFile  = "metadata.json"
)

// defaultGenes is assumed when the dataset cannot be inspected.
const defaultGenes = 100

// Synthetic produces placeholder inference results with realistic
// statistics: a sparse random edge list seeded from the job ID, so repeated
// runs of the same job are reproducible. It stands in for the real
// algorithm packages the production deployment delegates to.
type Synthetic struct {
	algorithm string
	sparsity  float64 // fraction of possible edges left out
}

// NewSynthetic creates a synthetic runner for the named algorithm.
func NewSynthetic(algorithm string) *Synthetic {
	return &Synthetic{
		algorithm: algorithm,
		sparsity:  0.95,
	}
}

// Run generates the edge list and metadata files under in.OutputDir and
// returns the summary statistics. Checks for cancellation between row
// batches so a cancelled job stops promptly.
func (s *Synthetic) Run(ctx context.Context, in Input) (*Output, error) {
	start := time.Now()

	genes := s.geneCount(in)
	rng := rand.New(rand.NewSource(seed(in.JobID, s.algorithm)))

	if err := os.MkdirAll(in.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	adjPath := filepath.Join(in.OutputDir, adjacencyFile)
	f, err := os.Create(adjPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", adjacencyFile, err)
	}
	defer f.Close()

	w := csv.NewWriter(bufio.NewWriter(f))
	if err := w.Write([]string{"source", "target", "weight"}); err != nil {
		return nil, fmt.Errorf("failed to write edge header: %w", err)
	}

	summary := &Summary{MinWeight: 1.0}
	var totalWeight float64

	for i := 0; i < genes; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j := 0; j < genes; j++ {
			if i == j {
				continue // no self-loops
			}
			if rng.Float64() < s.sparsity {
				continue
			}
			weight := rng.Float64()
			if err := w.Write([]string{
				fmt.Sprintf("g%d", i),
				fmt.Sprintf("g%d", j),
				fmt.Sprintf("%.6f", weight),
			}); err != nil {
				return nil, fmt.Errorf("failed to write edge: %w", err)
			}
			summary.EdgesPredicted++
			totalWeight += weight
			if weight > summary.MaxWeight {
				summary.MaxWeight = weight
			}
			if weight < summary.MinWeight {
				summary.MinWeight = weight
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush edges: %w", err)
	}

	if summary.EdgesPredicted > 0 {
		summary.MeanWeight = totalWeight / float64(summary.EdgesPredicted)
	} else {
		summary.MinWeight = 0
	}
	summary.ExecutionTimeSeconds = time.Since(start).Seconds()

	meta := map[string]any{
		"algorithm": s.algorithm,
		"job_id":    in.JobID,
		"genes":     genes,
		"summary":   summary,
		"note":      "synthetic placeholder results",
	}
	metaData, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(in.OutputDir, metadataFile), metaData, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", metadataFile, err)
	}

	return &Output{
		Summary:     summary,
		OutputFiles: []string{adjacencyFile, metadataFile},
	}, nil
}

// geneCount determines the gene dimension: an explicit "genes" param wins,
// then the dataset's row count, then a default.
func (s *Synthetic) geneCount(in Input) int {
	if v, ok := in.Params["genes"]; ok {
		switch n := v.(type) {
		case int:
			if n > 0 {
				return n
			}
		case float64: // JSON numbers decode as float64
			if n > 0 {
				return int(n)
			}
		}
	}

	if in.DatasetPath != "" {
		if rows, err := countDataRows(in.DatasetPath); err == nil && rows > 0 {
			return rows
		}
	}
	return defaultGenes
}

// countDataRows counts non-header lines in a CSV dataset.
func countDataRows(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	rows := 0
	for scanner.Scan() {
		rows++
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	if rows > 0 {
		rows-- // header
	}
	return rows, nil
}

func seed(jobID, algorithm string) int64 {
	h := fnv.New64a()
	h.Write([]byte(jobID))
	h.Write([]byte{0})
	h.Write([]byte(algorithm))
	return int64(h.Sum64())
}

var _ Runner = (*Synthetic)(nil)
