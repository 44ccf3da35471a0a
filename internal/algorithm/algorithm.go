// Package algorithm provides the registry of GRN inference algorithm runners.
//
// Dispatch is by algorithm name through a registry rather than branching on
// the name at the call site, so adding an algorithm means registering a new
// Runner.
package algorithm

import (
	"context"
	"sort"
	"sync"
)

// Supported algorithm names.
const (
	GRNBoost2   = "GRNBoost2"
	SCENIC      = "SCENIC"
	PIDC        = "PIDC"
	CLR         = "CLR"
	ARACNE      = "ARACNE"
	NES         = "NES"
	Inferelator = "Inferelator"
	PySCENIC    = "pySCENIC"
)

// AllNames lists every algorithm a default registry supports.
func AllNames() []string {
	return []string{GRNBoost2, SCENIC, PIDC, CLR, ARACNE, NES, Inferelator, PySCENIC}
}

// Input carries everything a runner needs for one job.
type Input struct {
	JobID       string
	DatasetPath string
	OutputDir   string // per-job results directory; created by the worker
	Params      map[string]any
}

// Summary holds the statistics reported for a completed inference run.
type Summary struct {
	EdgesPredicted       int     `json:"edges_predicted"`
	MeanWeight           float64 `json:"mean_weight"`
	MaxWeight            float64 `json:"max_weight"`
	MinWeight            float64 `json:"min_weight"`
	ExecutionTimeSeconds float64 `json:"execution_time_seconds"`
}

// Map returns the summary as the generic mapping persisted with results.
func (s *Summary) Map() map[string]any {
	return map[string]any{
		"edges_predicted":        s.EdgesPredicted,
		"mean_weight":            s.MeanWeight,
		"max_weight":             s.MaxWeight,
		"min_weight":             s.MinWeight,
		"execution_time_seconds": s.ExecutionTimeSeconds,
	}
}

// Output is the artifact listing and statistics produced by a runner.
type Output struct {
	Summary     *Summary
	OutputFiles []string // file names relative to Input.OutputDir
}

// Runner executes one inference algorithm. Implementations must honor
// context cancellation: a cancelled or timed-out run returns ctx.Err()
// (possibly wrapped) and may leave partial output files behind.
type Runner interface {
	Run(ctx context.Context, in Input) (*Output, error)
}

// Registry maps algorithm names to runners.
type Registry struct {
	mu      sync.RWMutex
	runners map[string]Runner
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{runners: make(map[string]Runner)}
}

// NewDefaultRegistry creates a registry with a synthetic runner for every
// supported algorithm.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, name := range AllNames() {
		r.Register(name, NewSynthetic(name))
	}
	return r
}

// Register adds or replaces the runner for a name.
func (r *Registry) Register(name string, runner Runner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runners[name] = runner
}

// Get returns the runner for a name.
func (r *Registry) Get(name string) (Runner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	runner, ok := r.runners[name]
	return runner, ok
}

// Supported reports whether a runner is registered for the name.
func (r *Registry) Supported(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.runners[name]
	return ok
}

// Names returns the registered algorithm names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.runners))
	for name := range r.runners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
