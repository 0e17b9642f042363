package core

import (
	"context"
	"io"
	"time"

	"sar-colorizer/internal/modelservice"
)

type UploadInput struct {
	Name     string
	MimeType string
	Body     io.Reader
}

// UploadedFile is a transient copy of an upload in the uploads bucket. It is
// owned by one request or one job and deleted once the forward settles.
type UploadedFile struct {
	OriginalName string
	MimeType     string
	SizeBytes    int64
	StorageKey   string
	ReceivedAt   time.Time
}

// ColorizedResult references the colorized image. URL is either absolute, a
// path on the model service, or /api/processed/<jobId>. When URL is empty the
// image is carried inline in Data.
type ColorizedResult struct {
	Message     string
	URL         string
	JobId       string
	Data        []byte
	ContentType string
}

type JobStatus struct {
	JobId    string
	Status   string
	ImageURL string
	Error    string
}

// ModelService is the subset of the model service client used by the relay.
type ModelService interface {
	Process(ctx context.Context, filename, contentType string, data io.Reader) (*modelservice.Result, error)

	Download(ctx context.Context, ref string) (io.ReadCloser, string, error)
}

var _ ModelService = (*modelservice.Client)(nil)

func ArtifactPath(jobId string) string {
	return "/api/processed/" + jobId
}

func StatusPath(jobId string) string {
	return "/api/status/" + jobId
}
