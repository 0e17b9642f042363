package core

import (
	"errors"
	"fmt"
)

var (
	ErrMissingInput = errors.New("no file uploaded")
	ErrNotFound     = errors.New("not found")

	// ErrJobInterrupted means processing stopped before an outcome was
	// recorded. The job is still PENDING and keeps its upload.
	ErrJobInterrupted = errors.New("job interrupted")
)

// ValidationError rejects a request before anything is forwarded.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// UpstreamError is a failed, rejected or timed out call to the model service.
// StatusCode is 0 when no response was received.
type UpstreamError struct {
	StatusCode int
	Message    string
	Timeout    bool
	Err        error
}

func (e *UpstreamError) Error() string {
	return "error processing image: " + e.Message
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// StorageError is a failure of the object store while handling a request.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
