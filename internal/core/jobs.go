package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"time"

	"sar-colorizer/internal/database"
	"sar-colorizer/internal/metrics"
	"sar-colorizer/internal/storage"
	"sar-colorizer/pkg/api"
)

const (
	TimedOutMessage = "processing timed out"

	defaultListLimit = 50
	maxListLimit     = 500
)

var jobIdRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

func ValidateJobId(jobId string) error {
	if !jobIdRe.MatchString(jobId) {
		return validationErrorf("invalid job id")
	}
	return nil
}

type JobService struct {
	jobs         database.JobStore
	storage      storage.ObjectStore
	resultBucket string
	timeout      time.Duration
	now          func() time.Time
}

func NewJobService(jobs database.JobStore, storage storage.ObjectStore, resultBucket string, timeout time.Duration) *JobService {
	return &JobService{
		jobs:         jobs,
		storage:      storage,
		resultBucket: resultBucket,
		timeout:      timeout,
		now:          time.Now,
	}
}

func (s *JobService) getJob(ctx context.Context, jobId string) (*database.Job, error) {
	if err := ValidateJobId(jobId); err != nil {
		return nil, err
	}

	job, err := s.jobs.GetJob(ctx, jobId)
	if err != nil {
		if errors.Is(err, database.ErrJobNotFound) {
			return nil, fmt.Errorf("job %s: %w", jobId, ErrNotFound)
		}
		return nil, err
	}

	return s.expireIfStale(ctx, job)
}

// expireIfStale fails a PENDING job that has outlived the processing timeout.
// If a worker finished it concurrently, the stored outcome wins.
func (s *JobService) expireIfStale(ctx context.Context, job *database.Job) (*database.Job, error) {
	if job.Status != database.JobPending || s.timeout <= 0 || s.now().Sub(job.CreationTime) <= s.timeout {
		return job, nil
	}

	err := s.jobs.FailJob(ctx, job.Id, TimedOutMessage)
	switch {
	case err == nil:
		slog.Warn("job timed out", "job_id", job.Id, "age", s.now().Sub(job.CreationTime))
		metrics.JobsTotal.WithLabelValues(database.JobFailed).Inc()
	case errors.Is(err, database.ErrJobNotPending):
	default:
		return nil, err
	}

	return s.jobs.GetJob(ctx, job.Id)
}

func (s *JobService) GetStatus(ctx context.Context, jobId string) (*JobStatus, error) {
	job, err := s.getJob(ctx, jobId)
	if err != nil {
		return nil, err
	}
	return statusOf(job), nil
}

func statusOf(job *database.Job) *JobStatus {
	status := &JobStatus{JobId: job.Id, Status: APIStatus(job.Status)}
	switch job.Status {
	case database.JobCompleted:
		status.ImageURL = ArtifactPath(job.Id)
	case database.JobFailed:
		status.Error = job.Error
	}
	return status
}

// OpenArtifact streams the colorized image stored for a completed job. The
// caller closes the reader.
func (s *JobService) OpenArtifact(ctx context.Context, jobId string) (io.ReadCloser, string, error) {
	job, err := s.getJob(ctx, jobId)
	if err != nil {
		return nil, "", err
	}
	if job.Status != database.JobCompleted || job.ResultKey == "" {
		return nil, "", fmt.Errorf("artifact for job %s: %w", jobId, ErrNotFound)
	}

	reader, err := s.storage.GetObject(ctx, s.resultBucket, job.ResultKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, "", fmt.Errorf("artifact for job %s: %w", jobId, ErrNotFound)
		}
		return nil, "", &StorageError{Op: "read artifact", Err: err}
	}

	contentType := job.ResultContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return reader, contentType, nil
}

// ListJobs returns recent jobs, newest first. status uses the API vocabulary
// (processing, completed, failed); empty matches all.
func (s *JobService) ListJobs(ctx context.Context, status string, limit int) ([]database.Job, error) {
	dbStatus := ""
	if status != "" {
		var ok bool
		if dbStatus, ok = DBStatus(status); !ok {
			return nil, validationErrorf("invalid status %q", status)
		}
	}
	if limit < 0 {
		return nil, validationErrorf("invalid limit %d", limit)
	}
	if limit == 0 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)

	jobs, err := s.jobs.ListJobs(ctx, dbStatus, limit)
	if err != nil {
		return nil, err
	}

	for i := range jobs {
		updated, err := s.expireIfStale(ctx, &jobs[i])
		if err != nil {
			return nil, err
		}
		jobs[i] = *updated
	}

	if dbStatus == database.JobPending {
		pending := jobs[:0]
		for _, job := range jobs {
			if job.Status == database.JobPending {
				pending = append(pending, job)
			}
		}
		jobs = pending
	}
	return jobs, nil
}

func APIStatus(status string) string {
	switch status {
	case database.JobCompleted:
		return api.StatusCompleted
	case database.JobFailed:
		return api.StatusFailed
	default:
		return api.StatusProcessing
	}
}

func DBStatus(status string) (string, bool) {
	switch status {
	case api.StatusProcessing:
		return database.JobPending, true
	case api.StatusCompleted:
		return database.JobCompleted, true
	case api.StatusFailed:
		return database.JobFailed, true
	}
	return "", false
}
