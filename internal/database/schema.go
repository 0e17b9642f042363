package database

import (
	"database/sql"
	"time"
)

const (
	JobPending   string = "PENDING"
	JobCompleted string = "COMPLETED"
	JobFailed    string = "FAILED"
)

// Job is one colorization request tracked by the relay. Id doubles as the key
// of the colorized artifact in the results bucket.
type Job struct {
	Id string `gorm:"size:128;primaryKey" json:"id"`

	OriginalName string `json:"originalName"`
	MimeType     string `gorm:"size:100" json:"mimeType"`
	SizeBytes    int64  `json:"sizeBytes"`
	UploadKey    string `json:"uploadKey"`

	Status            string `gorm:"size:20;not null;index" json:"status"`
	ResultKey         string `json:"resultKey"`
	ResultContentType string `gorm:"size:100" json:"resultContentType"`
	Error             string `json:"error"`

	CreationTime   time.Time    `gorm:"index" json:"creationTime"`
	CompletionTime sql.NullTime `json:"completionTime"`
}

func (j *Job) IsTerminal() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}
