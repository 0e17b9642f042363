package api

import "time"

const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// UploadResponse is returned by POST /api/upload in direct mode.
type UploadResponse struct {
	Message           string `json:"message"`
	ColorizedImageUrl string `json:"colorizedImageUrl"`
}

// SubmitResponse is returned by POST /api/upload in poll mode.
type SubmitResponse struct {
	JobId     string `json:"jobId"`
	StatusUrl string `json:"statusUrl"`
}

type JobStatusResponse struct {
	Status   string `json:"status"`
	ImageUrl string `json:"imageUrl,omitempty"`
	Error    string `json:"error,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type Job struct {
	Id             string     `json:"id"`
	OriginalName   string     `json:"originalName"`
	MimeType       string     `json:"mimeType"`
	SizeBytes      int64      `json:"sizeBytes"`
	Status         string     `json:"status"`
	ImageUrl       string     `json:"imageUrl,omitempty"`
	Error          string     `json:"error,omitempty"`
	CreationTime   time.Time  `json:"creationTime"`
	CompletionTime *time.Time `json:"completionTime,omitempty"`
}

type ListJobsParams struct {
	Status string `schema:"status"`
	Limit  int    `schema:"limit"`
}
