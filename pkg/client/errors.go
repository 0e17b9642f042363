package client

import (
	"errors"
	"fmt"
)

// ErrNoResponse means the request never produced an HTTP response, for
// example because the server is down or the connection was reset.
var ErrNoResponse = errors.New("no response from server")

// ErrWaitExceeded is returned when a job is still processing after the
// configured maximum wait.
var ErrWaitExceeded = errors.New("timed out waiting for job to finish")

// ServerError is a structured error returned by the backend.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

// ValidationError rejects a file before anything is sent.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// JobFailedError reports a job that finished in the failed state.
type JobFailedError struct {
	JobId   string
	Message string
}

func (e *JobFailedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("job %s failed", e.JobId)
	}
	return fmt.Sprintf("job %s failed: %s", e.JobId, e.Message)
}
