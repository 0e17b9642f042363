package core

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"sar-colorizer/internal/database"
	"sar-colorizer/internal/imaging"
	"sar-colorizer/internal/messaging"
	"sar-colorizer/internal/metrics"
	"sar-colorizer/internal/modelservice"
	"sar-colorizer/internal/storage"

	"github.com/google/uuid"
)

const bytesPerMB = 1024 * 1024

var extensionRe = regexp.MustCompile(`^[a-z0-9]{1,8}$`)

type RelayConfig struct {
	UploadBucket        string
	ResultBucket        string
	MaxUploadBytes      int64
	VerifyContent       bool
	InlineBinaryResults bool
}

// Relay moves uploads through the model service. Direct uploads are forwarded
// inline by RelayUpload; queued uploads are stored by Submit and forwarded
// later by ProcessJob. Both paths share forward.
type Relay struct {
	storage   storage.ObjectStore
	jobs      database.JobStore
	model     ModelService
	publisher messaging.Publisher
	cfg       RelayConfig
}

func NewRelay(storage storage.ObjectStore, jobs database.JobStore, model ModelService, publisher messaging.Publisher, cfg RelayConfig) *Relay {
	return &Relay{
		storage:   storage,
		jobs:      jobs,
		model:     model,
		publisher: publisher,
		cfg:       cfg,
	}
}

// RelayUpload stores the upload, forwards it to the model service and returns
// a reference to the colorized image. The transient upload is removed on every
// exit path.
func (r *Relay) RelayUpload(ctx context.Context, in UploadInput) (*ColorizedResult, error) {
	file, err := r.storeUpload(ctx, in)
	if err != nil {
		recordUpload(err)
		return nil, err
	}
	defer r.deleteObject(r.cfg.UploadBucket, file.StorageKey)

	result, err := r.forward(ctx, file)
	if err != nil {
		recordUpload(err)
		return nil, err
	}

	if result.URL != "" {
		recordUpload(nil)
		return &ColorizedResult{Message: result.Message, URL: result.URL}, nil
	}

	if r.cfg.InlineBinaryResults {
		recordUpload(nil)
		return &ColorizedResult{Data: result.Data, ContentType: result.ContentType}, nil
	}

	jobId := uuid.NewString()
	if err := r.storeResult(ctx, jobId, bytes.NewReader(result.Data)); err != nil {
		recordUpload(err)
		return nil, err
	}

	now := time.Now().UTC()
	job := &database.Job{
		Id:                jobId,
		OriginalName:      file.OriginalName,
		MimeType:          file.MimeType,
		SizeBytes:         file.SizeBytes,
		Status:            database.JobCompleted,
		ResultKey:         jobId,
		ResultContentType: result.ContentType,
		CreationTime:      now,
		CompletionTime:    sql.NullTime{Time: now, Valid: true},
	}
	if err := r.jobs.CreateJob(ctx, job); err != nil {
		r.deleteObject(r.cfg.ResultBucket, jobId)
		recordUpload(err)
		return nil, fmt.Errorf("error registering result: %w", err)
	}
	metrics.JobsTotal.WithLabelValues(database.JobCompleted).Inc()
	recordUpload(nil)

	return &ColorizedResult{Message: "Image processed successfully", URL: ArtifactPath(jobId), JobId: jobId, ContentType: result.ContentType}, nil
}

// Submit stores the upload, registers a PENDING job and queues it. The job
// owns the transient upload from here on.
func (r *Relay) Submit(ctx context.Context, in UploadInput) (string, error) {
	file, err := r.storeUpload(ctx, in)
	if err != nil {
		recordUpload(err)
		return "", err
	}

	job := &database.Job{
		Id:           uuid.NewString(),
		OriginalName: file.OriginalName,
		MimeType:     file.MimeType,
		SizeBytes:    file.SizeBytes,
		UploadKey:    file.StorageKey,
		Status:       database.JobPending,
		CreationTime: file.ReceivedAt,
	}
	if err := r.jobs.CreateJob(ctx, job); err != nil {
		r.deleteObject(r.cfg.UploadBucket, file.StorageKey)
		recordUpload(err)
		return "", fmt.Errorf("error creating job: %w", err)
	}

	if err := r.publisher.PublishColorizeTask(ctx, messaging.ColorizeTaskPayload{JobId: job.Id}); err != nil {
		slog.Error("error queueing colorize task", "job_id", job.Id, "error", err)
		r.deleteObject(r.cfg.UploadBucket, file.StorageKey)
		if err := r.jobs.FailJob(ctx, job.Id, "unable to queue job"); err != nil {
			slog.Error("error marking job failed", "job_id", job.Id, "error", err)
		}
		recordUpload(err)
		return "", fmt.Errorf("error queueing job: %w", err)
	}

	slog.Info("queued colorize job", "job_id", job.Id, "file", file.OriginalName, "size", file.SizeBytes)
	recordUpload(nil)

	return job.Id, nil
}

// ProcessJob forwards a queued job's upload and records the outcome on the
// job. The colorized image is copied into the results bucket under the job id.
// If ctx ends before an outcome is known the job is left PENDING with its
// upload and ErrJobInterrupted is returned.
func (r *Relay) ProcessJob(ctx context.Context, jobId string) error {
	if err := ctx.Err(); err != nil {
		return interrupted(jobId, err)
	}

	job, err := r.jobs.GetJob(ctx, jobId)
	if err != nil {
		if ctx.Err() != nil {
			return interrupted(jobId, err)
		}
		return fmt.Errorf("error loading job %s: %w", jobId, err)
	}
	if job.Status != database.JobPending {
		slog.Info("skipping job that is no longer pending", "job_id", jobId, "status", job.Status)
		if job.UploadKey != "" {
			r.deleteObject(r.cfg.UploadBucket, job.UploadKey)
		}
		return nil
	}

	file := &UploadedFile{
		OriginalName: job.OriginalName,
		MimeType:     job.MimeType,
		SizeBytes:    job.SizeBytes,
		StorageKey:   job.UploadKey,
		ReceivedAt:   job.CreationTime,
	}

	contentType, err := r.colorizeToResults(ctx, jobId, file)
	if err != nil && ctx.Err() != nil {
		slog.Warn("job interrupted, leaving it pending", "job_id", jobId, "error", err)
		return interrupted(jobId, err)
	}
	r.deleteObject(r.cfg.UploadBucket, file.StorageKey)

	settleCtx, cancel := settleContext(ctx)
	defer cancel()

	if err != nil {
		if failErr := r.jobs.FailJob(settleCtx, jobId, err.Error()); failErr != nil {
			slog.Error("error marking job failed", "job_id", jobId, "error", failErr)
		} else {
			metrics.JobsTotal.WithLabelValues(database.JobFailed).Inc()
		}
		return err
	}

	if err := r.jobs.CompleteJob(settleCtx, jobId, jobId, contentType); err != nil {
		if errors.Is(err, database.ErrJobNotPending) {
			slog.Warn("job finished after it was no longer pending, discarding result", "job_id", jobId)
			r.deleteObject(r.cfg.ResultBucket, jobId)
			return nil
		}
		return fmt.Errorf("error completing job %s: %w", jobId, err)
	}
	metrics.JobsTotal.WithLabelValues(database.JobCompleted).Inc()
	slog.Info("job completed", "job_id", jobId)

	return nil
}

func interrupted(jobId string, err error) error {
	return fmt.Errorf("job %s: %w: %w", jobId, ErrJobInterrupted, err)
}

// settleContext detaches the terminal job write from ctx so an outcome that
// is already known still gets recorded.
func settleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
}

func (r *Relay) colorizeToResults(ctx context.Context, jobId string, file *UploadedFile) (string, error) {
	result, err := r.forward(ctx, file)
	if err != nil {
		return "", err
	}

	if result.URL == "" {
		if err := r.storeResult(ctx, jobId, bytes.NewReader(result.Data)); err != nil {
			return "", err
		}
		return result.ContentType, nil
	}

	body, contentType, err := r.model.Download(ctx, result.URL)
	if err != nil {
		return "", upstreamError(err)
	}
	defer body.Close()

	if contentType == "" || !strings.HasPrefix(contentType, "image/") {
		contentType = imaging.TypeByExtension(result.URL)
	}
	if err := r.storeResult(ctx, jobId, body); err != nil {
		return "", err
	}
	return contentType, nil
}

// RequeuePending republishes PENDING jobs. Used at startup when the queue does
// not survive restarts.
func (r *Relay) RequeuePending(ctx context.Context) (int, error) {
	jobs, err := r.jobs.ListJobs(ctx, database.JobPending, 0)
	if err != nil {
		return 0, err
	}
	for _, job := range jobs {
		if err := r.publisher.PublishColorizeTask(ctx, messaging.ColorizeTaskPayload{JobId: job.Id}); err != nil {
			return 0, fmt.Errorf("error requeueing job %s: %w", job.Id, err)
		}
	}
	return len(jobs), nil
}

// storeUpload writes the upload to the uploads bucket, enforcing the declared
// type, the size limit and optionally decodable content.
func (r *Relay) storeUpload(ctx context.Context, in UploadInput) (*UploadedFile, error) {
	if in.Body == nil {
		return nil, ErrMissingInput
	}

	name := filepath.Base(strings.ReplaceAll(in.Name, "\\", "/"))
	if name == "." || name == "/" {
		name = ""
	}

	mimeType, err := imaging.ResolveType(in.MimeType, name)
	if err != nil {
		return nil, validationErrorf("only image files are allowed: %v", err)
	}

	key := uuid.NewString() + transientExtension(name, mimeType)
	if name == "" {
		name = key
	}

	body := &limitedReader{r: in.Body, remaining: r.cfg.MaxUploadBytes}
	if err := r.storage.PutObject(ctx, r.cfg.UploadBucket, key, body); err != nil {
		if body.exceeded {
			r.deleteObject(r.cfg.UploadBucket, key)
			return nil, validationErrorf("file exceeds the maximum upload size of %d MB", r.cfg.MaxUploadBytes/bytesPerMB)
		}
		return nil, &StorageError{Op: "store upload", Err: err}
	}

	if body.read == 0 {
		r.deleteObject(r.cfg.UploadBucket, key)
		return nil, validationErrorf("uploaded file is empty")
	}

	if r.cfg.VerifyContent {
		if err := r.verifyUpload(ctx, key); err != nil {
			r.deleteObject(r.cfg.UploadBucket, key)
			return nil, err
		}
	}

	metrics.UploadBytes.Observe(float64(body.read))

	return &UploadedFile{
		OriginalName: name,
		MimeType:     mimeType,
		SizeBytes:    body.read,
		StorageKey:   key,
		ReceivedAt:   time.Now().UTC(),
	}, nil
}

func (r *Relay) verifyUpload(ctx context.Context, key string) error {
	reader, err := r.storage.GetObject(ctx, r.cfg.UploadBucket, key)
	if err != nil {
		return &StorageError{Op: "read upload", Err: err}
	}
	defer reader.Close()

	if _, err := imaging.Verify(reader); err != nil {
		return validationErrorf("uploaded file is not a valid image")
	}
	return nil
}

// forward sends a stored upload to the model service. Callers own the
// transient object and delete it once the outcome is settled.
func (r *Relay) forward(ctx context.Context, file *UploadedFile) (*modelservice.Result, error) {
	reader, err := r.storage.GetObject(ctx, r.cfg.UploadBucket, file.StorageKey)
	if err != nil {
		return nil, &StorageError{Op: "read upload", Err: err}
	}
	defer reader.Close()

	result, err := r.model.Process(ctx, file.OriginalName, file.MimeType, reader)
	if err != nil {
		return nil, upstreamError(err)
	}
	return result, nil
}

func (r *Relay) storeResult(ctx context.Context, jobId string, data io.Reader) error {
	if err := r.storage.PutObject(ctx, r.cfg.ResultBucket, jobId, data); err != nil {
		return &StorageError{Op: "store result", Err: err}
	}
	return nil
}

func (r *Relay) deleteObject(bucket, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := r.storage.DeleteObject(ctx, bucket, key); err != nil {
		metrics.CleanupFailures.Inc()
		slog.Warn("error deleting transient object", "bucket", bucket, "key", key, "error", err)
	}
}

func upstreamError(err error) error {
	var callErr *modelservice.Error
	if errors.As(err, &callErr) {
		return &UpstreamError{StatusCode: callErr.StatusCode, Message: callErr.Message, Timeout: callErr.Timeout, Err: err}
	}
	return &UpstreamError{Message: err.Error(), Err: err}
}

func transientExtension(name, mimeType string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if extensionRe.MatchString(ext) {
		return "." + ext
	}
	return imaging.ExtensionForType(mimeType)
}

func recordUpload(err error) {
	outcome := "ok"
	var validationErr *ValidationError
	var upstreamErr *UpstreamError
	var storageErr *StorageError
	switch {
	case err == nil:
	case errors.Is(err, ErrMissingInput), errors.As(err, &validationErr):
		outcome = "invalid"
	case errors.As(err, &upstreamErr):
		outcome = "upstream_error"
	case errors.As(err, &storageErr):
		outcome = "storage_error"
	default:
		outcome = "error"
	}
	metrics.UploadsTotal.WithLabelValues(outcome).Inc()
}

var errUploadTooLarge = errors.New("upload exceeds size limit")

// limitedReader fails once more than remaining bytes have been read, so the
// store aborts the write instead of truncating it.
type limitedReader struct {
	r         io.Reader
	remaining int64
	read      int64
	exceeded  bool
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.exceeded {
		return 0, errUploadTooLarge
	}
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.read += int64(n)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		l.exceeded = true
		return n, errUploadTooLarge
	}
	return n, err
}
