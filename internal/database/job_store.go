package database

import (
	"context"
	"errors"
)

var (
	ErrJobNotFound   = errors.New("job not found")
	ErrJobNotPending = errors.New("job is no longer pending")
)

// JobStore persists job state. CompleteJob and FailJob only transition PENDING
// jobs; a job that already reached a terminal state returns ErrJobNotPending.
type JobStore interface {
	CreateJob(ctx context.Context, job *Job) error

	GetJob(ctx context.Context, id string) (*Job, error)

	CompleteJob(ctx context.Context, id, resultKey, contentType string) error

	FailJob(ctx context.Context, id, message string) error

	// ListJobs returns the most recent jobs first. An empty status matches all.
	ListJobs(ctx context.Context, status string, limit int) ([]Job, error)
}
