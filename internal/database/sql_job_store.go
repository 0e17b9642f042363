package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

type SQLJobStore struct {
	db *gorm.DB
}

var _ JobStore = (*SQLJobStore)(nil)

func NewSQLJobStore(db *gorm.DB) *SQLJobStore {
	return &SQLJobStore{db: db}
}

func (s *SQLJobStore) CreateJob(ctx context.Context, job *Job) error {
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("error creating job %s: %w", job.Id, err)
	}
	return nil
}

func (s *SQLJobStore) GetJob(ctx context.Context, id string) (*Job, error) {
	var job Job
	if err := s.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("error getting job %s: %w", id, err)
	}
	return &job, nil
}

func (s *SQLJobStore) CompleteJob(ctx context.Context, id, resultKey, contentType string) error {
	return UpdateJobStatus(ctx, s.db, id, terminalUpdates(JobCompleted, resultKey, contentType, ""))
}

func (s *SQLJobStore) FailJob(ctx context.Context, id, message string) error {
	return UpdateJobStatus(ctx, s.db, id, terminalUpdates(JobFailed, "", "", message))
}

func (s *SQLJobStore) ListJobs(ctx context.Context, status string, limit int) ([]Job, error) {
	query := s.db.WithContext(ctx).Order("creation_time DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var jobs []Job
	if err := query.Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("error listing jobs: %w", err)
	}
	return jobs, nil
}
