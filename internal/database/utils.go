package database

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"
)

func terminalUpdates(status, resultKey, contentType, message string) map[string]any {
	updates := map[string]any{
		"status":          status,
		"completion_time": time.Now().UTC(),
	}
	if status == JobCompleted {
		updates["result_key"] = resultKey
		updates["result_content_type"] = contentType
	} else {
		updates["error"] = message
	}
	return updates
}

// UpdateJobStatus moves a pending job to a terminal status. It reports
// ErrJobNotFound or ErrJobNotPending when nothing was updated.
func UpdateJobStatus(ctx context.Context, txn *gorm.DB, jobId string, updates map[string]any) error {
	result := txn.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", jobId, JobPending).
		Updates(updates)
	if result.Error != nil {
		slog.Error("error updating job status", "job_id", jobId, "status", updates["status"], "error", result.Error)
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := txn.WithContext(ctx).Model(&Job{}).Where("id = ?", jobId).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrJobNotFound
	}
	return ErrJobNotPending
}
