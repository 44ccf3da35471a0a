// Package dataset manages the registry of input datasets.
package dataset

import "time"

// Type classifies a registered dataset.
type Type string

const (
	TypeExpression   Type = "expression"
	TypePerturbation Type = "perturbation"
	TypeSynthetic    Type = "synthetic"
	TypeBenchmark    Type = "benchmark"
)

// Valid reports whether the type is one of the known dataset types.
func (t Type) Valid() bool {
	switch t {
	case TypeExpression, TypePerturbation, TypeSynthetic, TypeBenchmark:
		return true
	}
	return false
}

// Dataset is the persisted record for one registered dataset.
type Dataset struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Type        Type           `json:"datasetType"`
	FilePath    string         `json:"filePath"`
	Genes       int            `json:"genes,omitempty"`
	Samples     int            `json:"samples,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	SizeBytes   int64          `json:"sizeBytes,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// RegisterRequest is a request to register a new dataset.
type RegisterRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Type        Type           `json:"datasetType"`
	FilePath    string         `json:"filePath"`
	Genes       int            `json:"genes,omitempty"`
	Samples     int            `json:"samples,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ListResponse is the paginated response for listing datasets.
type ListResponse struct {
	Total    int        `json:"total"`
	Datasets []*Dataset `json:"datasets"`
}
