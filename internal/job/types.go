package job

import "time"

// Status is the lifecycle state of a job.
type Status string

// Lifecycle states. A job starts pending, moves to running when a worker
// picks it up, and ends in exactly one of the terminal states.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status accepts no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// LogEntry is one timestamped line in a job's append-only log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// Job is the persisted record for one submitted inference request.
//
// The dataset reference is weak: the dataset may be deleted independently
// and the job record stays readable.
type Job struct {
	ID              string         `json:"id"`
	DatasetID       string         `json:"datasetId"`
	Algorithm       string         `json:"algorithm"`
	Params          map[string]any `json:"params"`
	Status          Status         `json:"status"`
	ProgressPercent int            `json:"progressPercent"`
	StartedAt       *time.Time     `json:"startedAt,omitempty"`
	EndedAt         *time.Time     `json:"endedAt,omitempty"`
	ErrorMessage    string         `json:"errorMessage,omitempty"`
	Logs            []LogEntry     `json:"logs,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// CreateRequest is a request to submit a new inference job.
type CreateRequest struct {
	DatasetID string         `json:"datasetId"`
	Algorithm string         `json:"algorithm"`
	Params    map[string]any `json:"params,omitempty"`
}

// ListResponse is the paginated response for listing jobs.
type ListResponse struct {
	Total int    `json:"total"`
	Jobs  []*Job `json:"jobs"`
}

// LogsResponse is the response for fetching a job's logs.
type LogsResponse struct {
	JobID string     `json:"jobId"`
	Logs  []LogEntry `json:"logs"`
}

// Task is the unit of work handed to the task executor. The dataset path is
// resolved at submission time so workers never consult the dataset registry.
type Task struct {
	JobID       string         `json:"jobId"`
	DatasetID   string         `json:"datasetId"`
	DatasetPath string         `json:"datasetPath"`
	Algorithm   string         `json:"algorithm"`
	Params      map[string]any `json:"params,omitempty"`
}
