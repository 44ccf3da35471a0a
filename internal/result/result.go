// Package result records the outputs of completed inference jobs and serves
// their artifact files.
package result

import "time"

// Result is the persisted record for one completed job's output.
type Result struct {
	ID          string         `json:"id"`
	JobID       string         `json:"jobId"`
	DatasetID   string         `json:"datasetId"`
	Algorithm   string         `json:"algorithm"`
	Summary     map[string]any `json:"summary"`
	OutputFiles []string       `json:"outputFiles"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// ListResponse is the paginated response for listing results.
type ListResponse struct {
	Total   int       `json:"total"`
	Results []*Result `json:"results"`
}

// FilesResponse lists the artifact files available for a result.
type FilesResponse struct {
	ResultID string   `json:"resultId"`
	JobID    string   `json:"jobId"`
	Files    []string `json:"files"`
}

// Filter narrows a result listing.
type Filter struct {
	DatasetID string
	Algorithm string
}
