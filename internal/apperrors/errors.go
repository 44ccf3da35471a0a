// Package apperrors provides structured application errors with HTTP status mapping.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrValidation  = errors.New("validation error")
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrTimeout     = errors.New("execution timeout")
	ErrPersistence = errors.New("persistence error")
	ErrInternal    = errors.New("internal error")
)

// Error provides structured error with context.
type Error struct {
	Sentinel error  // Wrapped sentinel for errors.Is() classification
	Message  string // Human-readable message
	Field    string // For validation errors (e.g., "algorithm", "datasetId")
	Resource string // For not found/conflict (e.g., "job", "dataset")
	Op       string // Operation that failed (e.g., "store.put")
	Cause    error  // Underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the sentinel error for errors.Is() classification.
func (e *Error) Unwrap() error {
	return e.Sentinel
}

// Validation creates a validation error for a specific field.
func Validation(field, message string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  message,
		Field:    field,
	}
}

// UnknownAlgorithm creates a validation error for an unsupported algorithm name.
func UnknownAlgorithm(name string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  fmt.Sprintf("algorithm %q is not supported", name),
		Field:    "algorithm",
	}
}

// NotFound creates a not found error for a resource.
func NotFound(resource, id string) error {
	return &Error{
		Sentinel: ErrNotFound,
		Message:  fmt.Sprintf("%s %s not found", resource, id),
		Resource: resource,
	}
}

// Conflict creates a conflict error for a resource.
func Conflict(resource, reason string) error {
	return &Error{
		Sentinel: ErrConflict,
		Message:  reason,
		Resource: resource,
	}
}

// InvalidState creates a conflict error for an operation attempted against a
// job whose current state forbids it.
func InvalidState(jobID, state, op string) error {
	return &Error{
		Sentinel: ErrConflict,
		Message:  fmt.Sprintf("cannot %s job %s in state %q", op, jobID, state),
		Resource: "job",
		Op:       op,
	}
}

// StaleJob creates a conflict error for a late or duplicate lifecycle
// callback arriving after a job already reached a terminal state.
func StaleJob(jobID, state string) error {
	return &Error{
		Sentinel: ErrConflict,
		Message:  fmt.Sprintf("job %s is already terminal in state %q", jobID, state),
		Resource: "job",
	}
}

// Timeout creates an execution timeout error for a job.
func Timeout(jobID string, limitSeconds int) error {
	return &Error{
		Sentinel: ErrTimeout,
		Message:  fmt.Sprintf("job %s exceeded timeout of %ds", jobID, limitSeconds),
		Resource: "job",
	}
}

// Persistence creates a persistence error wrapping an underlying store failure.
func Persistence(op string, cause error) error {
	return &Error{
		Sentinel: ErrPersistence,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}

// Internal creates an internal error wrapping an underlying cause.
func Internal(op string, cause error) error {
	return &Error{
		Sentinel: ErrInternal,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Op:       op,
		Cause:    cause,
	}
}
