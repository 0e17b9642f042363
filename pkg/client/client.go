package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sar-colorizer/internal/imaging"
	"sar-colorizer/pkg/api"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultMaxUploadBytes = 10 * 1024 * 1024
	DefaultPollInterval   = 2 * time.Second
	DefaultMaxWait        = 5 * time.Minute
)

// File is an image accepted by SelectFile and ready to be submitted.
type File struct {
	Path        string
	Name        string
	ContentType string
	Size        int64
}

// Result references a colorized image. For inline binary responses Data holds
// the image and ImageURL is empty.
type Result struct {
	ImageURL    string
	JobId       string
	Data        []byte
	ContentType string
}

type Client struct {
	http           *resty.Client
	maxUploadBytes int64
	pollInterval   time.Duration
	maxWait        time.Duration
	onStatus       func(status string)
}

type Option func(*Client)

func WithMaxUploadBytes(n int64) Option {
	return func(c *Client) { c.maxUploadBytes = n }
}

func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

func WithMaxWait(d time.Duration) Option {
	return func(c *Client) { c.maxWait = d }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.SetTimeout(d) }
}

// WithStatusCallback is invoked with the job status after every poll.
func WithStatusCallback(fn func(status string)) Option {
	return func(c *Client) { c.onStatus = fn }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		http:           resty.New().SetBaseURL(strings.TrimSuffix(baseURL, "/")),
		maxUploadBytes: DefaultMaxUploadBytes,
		pollInterval:   DefaultPollInterval,
		maxWait:        DefaultMaxWait,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SelectFile checks that path is a non-empty image within the size limit.
func (c *Client) SelectFile(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("cannot read %s: %v", path, err)}
	}
	if !info.Mode().IsRegular() {
		return nil, &ValidationError{Message: fmt.Sprintf("%s is not a regular file", path)}
	}
	if info.Size() == 0 {
		return nil, &ValidationError{Message: "file is empty"}
	}
	if info.Size() > c.maxUploadBytes {
		return nil, &ValidationError{Message: fmt.Sprintf("file is %d bytes, the maximum is %d", info.Size(), c.maxUploadBytes)}
	}

	contentType := imaging.TypeByExtension(path)
	if contentType == "" {
		contentType, err = sniffType(path)
		if err != nil {
			return nil, &ValidationError{Message: fmt.Sprintf("cannot read %s: %v", path, err)}
		}
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, &ValidationError{Message: "only image files are allowed"}
	}

	return &File{
		Path:        path,
		Name:        filepath.Base(path),
		ContentType: contentType,
		Size:        info.Size(),
	}, nil
}

func sniffType(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", err
	}
	mediaType, _, _ := mime.ParseMediaType(http.DetectContentType(head[:n]))
	return mediaType, nil
}

// Submit uploads the file. Direct responses resolve immediately; queued jobs
// are polled until they finish or the maximum wait passes.
func (c *Client) Submit(ctx context.Context, file *File) (*Result, error) {
	f, err := os.Open(file.Path)
	if err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("cannot read %s: %v", file.Path, err)}
	}
	defer f.Close()

	res, err := c.http.R().
		SetContext(ctx).
		SetMultipartField("file", file.Name, file.ContentType, f).
		Post("/api/upload")
	if err != nil {
		return nil, noResponse(ctx, err)
	}
	if !res.IsSuccess() {
		return nil, serverError(res)
	}

	mediaType, _, _ := mime.ParseMediaType(res.Header().Get("Content-Type"))
	if strings.HasPrefix(mediaType, "image/") {
		return &Result{Data: res.Body(), ContentType: mediaType}, nil
	}

	if res.StatusCode() == http.StatusAccepted {
		var submitted api.SubmitResponse
		if err := json.Unmarshal(res.Body(), &submitted); err != nil || submitted.JobId == "" {
			return nil, &ServerError{StatusCode: res.StatusCode(), Message: "response did not include a job id"}
		}
		return c.Wait(ctx, submitted.JobId, submitted.StatusUrl)
	}

	var uploaded api.UploadResponse
	if err := json.Unmarshal(res.Body(), &uploaded); err != nil || uploaded.ColorizedImageUrl == "" {
		return nil, &ServerError{StatusCode: res.StatusCode(), Message: "response did not include an image url"}
	}
	return &Result{ImageURL: uploaded.ColorizedImageUrl}, nil
}

func (c *Client) GetStatus(ctx context.Context, jobId string) (*api.JobStatusResponse, error) {
	return c.getStatus(ctx, "/api/status/"+jobId)
}

func (c *Client) getStatus(ctx context.Context, statusURL string) (*api.JobStatusResponse, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		Get(statusURL)
	if err != nil {
		return nil, noResponse(ctx, err)
	}
	if !res.IsSuccess() {
		return nil, serverError(res)
	}

	var status api.JobStatusResponse
	if err := json.Unmarshal(res.Body(), &status); err != nil {
		return nil, &ServerError{StatusCode: res.StatusCode(), Message: "malformed status response"}
	}
	return &status, nil
}

// Wait polls the job status until it is completed or failed. statusURL may be
// empty, in which case the default status path for jobId is used.
func (c *Client) Wait(ctx context.Context, jobId, statusURL string) (*Result, error) {
	if statusURL == "" {
		statusURL = "/api/status/" + jobId
	}

	ctx, cancel := context.WithTimeout(ctx, c.maxWait)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		status, err := c.getStatus(ctx, statusURL)
		if err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("job %s: %w", jobId, ErrWaitExceeded)
			}
			return nil, err
		}
		if c.onStatus != nil {
			c.onStatus(status.Status)
		}

		switch status.Status {
		case api.StatusCompleted:
			return &Result{ImageURL: status.ImageUrl, JobId: jobId}, nil
		case api.StatusFailed:
			return nil, &JobFailedError{JobId: jobId, Message: status.Error}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("job %s: %w", jobId, ErrWaitExceeded)
			}
			return nil, ctx.Err()
		}
	}
}

// Download writes the image at url to w and returns the number of bytes
// written.
func (c *Client) Download(ctx context.Context, url string, w io.Writer) (int64, error) {
	res, err := c.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return 0, noResponse(ctx, err)
	}
	body := res.RawBody()
	defer body.Close()

	if !res.IsSuccess() {
		data, _ := io.ReadAll(io.LimitReader(body, 4096))
		return 0, &ServerError{StatusCode: res.StatusCode(), Message: errorMessage(data, res.Status())}
	}

	n, err := io.Copy(w, body)
	if err != nil {
		return n, fmt.Errorf("error downloading %s: %w", url, err)
	}
	return n, nil
}

func noResponse(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %v", ErrNoResponse, err)
}

func serverError(res *resty.Response) error {
	return &ServerError{StatusCode: res.StatusCode(), Message: errorMessage(res.Body(), res.Status())}
}

func errorMessage(body []byte, fallback string) string {
	var parsed api.ErrorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != "" {
		return parsed.Error
	}
	if fallback == "" {
		return "unknown error"
	}
	return fallback
}
