package api

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"sar-colorizer/internal/core"
	"sar-colorizer/pkg/api"

	"github.com/go-chi/chi/v5"
)

const (
	uploadField   = "file"
	uploadMessage = "Image processed successfully"

	// Allowance for multipart framing on top of the file size limit.
	multipartOverhead = 1024 * 1024
)

type ServiceConfig struct {
	// Poll queues uploads and answers 202 with a job id.
	Poll           bool
	PublicBaseURL  string
	MaxUploadBytes int64
}

type BackendService struct {
	relay *core.Relay
	jobs  *core.JobService
	cfg   ServiceConfig
}

func NewBackendService(relay *core.Relay, jobs *core.JobService, cfg ServiceConfig) *BackendService {
	return &BackendService{relay: relay, jobs: jobs, cfg: cfg}
}

func (s *BackendService) AddRoutes(r chi.Router) {
	r.Post("/upload", RestHandler(s.Upload))
	r.Get("/status/{job_id}", RestHandler(s.GetStatus))
	r.Get("/processed/{job_id}", RestHandler(s.GetProcessed))
	r.Get("/jobs", RestHandler(s.ListJobs))
}

func (s *BackendService) Upload(r *http.Request) (any, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, s.cfg.MaxUploadBytes+multipartOverhead)

	reader, err := r.MultipartReader()
	if err != nil {
		return nil, CodedErrorf(http.StatusBadRequest, "request must be multipart/form-data with a %q field", uploadField)
	}

	part, err := findFilePart(reader)
	if err != nil {
		return nil, err
	}
	defer part.Close()

	input := core.UploadInput{
		Name:     part.FileName(),
		MimeType: part.Header.Get("Content-Type"),
		Body:     part,
	}

	if s.cfg.Poll {
		jobId, err := s.relay.Submit(r.Context(), input)
		if err != nil {
			return nil, requestError(err)
		}
		return WithStatus(http.StatusAccepted, api.SubmitResponse{
			JobId:     jobId,
			StatusUrl: s.resolveURL(r, core.StatusPath(jobId)),
		}), nil
	}

	result, err := s.relay.RelayUpload(r.Context(), input)
	if err != nil {
		return nil, requestError(err)
	}

	if result.URL == "" {
		return &BinaryResponse{ContentType: result.ContentType, Body: bytes.NewReader(result.Data)}, nil
	}

	return api.UploadResponse{
		Message:           uploadMessage,
		ColorizedImageUrl: s.resolveURL(r, result.URL),
	}, nil
}

// findFilePart advances to the file part of the form. Other fields are
// skipped.
func findFilePart(reader *multipart.Reader) (*multipart.Part, error) {
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return nil, core.ErrMissingInput
		}
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return nil, requestError(err)
			}
			slog.Warn("malformed multipart body", "error", err)
			return nil, CodedErrorf(http.StatusBadRequest, "malformed multipart body")
		}
		if part.FormName() == uploadField && part.FileName() != "" {
			return part, nil
		}
		part.Close()
	}
}

// requestError turns a body read that hit the request size limit into a 400.
func requestError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return CodedErrorf(http.StatusBadRequest, "file exceeds the maximum upload size")
	}
	return err
}

func (s *BackendService) GetStatus(r *http.Request) (any, error) {
	jobId, err := URLParamJobId(r, "job_id")
	if err != nil {
		return nil, err
	}

	status, err := s.jobs.GetStatus(r.Context(), jobId)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "job not found")
		}
		return nil, err
	}

	res := api.JobStatusResponse{Status: status.Status, Error: status.Error}
	if status.ImageURL != "" {
		res.ImageUrl = s.resolveURL(r, status.ImageURL)
	}
	return res, nil
}

func (s *BackendService) GetProcessed(r *http.Request) (any, error) {
	jobId, err := URLParamJobId(r, "job_id")
	if err != nil {
		return nil, err
	}

	reader, contentType, err := s.jobs.OpenArtifact(r.Context(), jobId)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, CodedErrorf(http.StatusNotFound, "file not found")
		}
		return nil, err
	}

	return &BinaryResponse{ContentType: contentType, Body: reader}, nil
}

func (s *BackendService) ListJobs(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.ListJobsParams](r)
	if err != nil {
		return nil, err
	}

	jobs, err := s.jobs.ListJobs(r.Context(), params.Status, params.Limit)
	if err != nil {
		return nil, err
	}

	return convertJobs(jobs, func(ref string) string { return s.resolveURL(r, ref) }), nil
}

// resolveURL makes a result reference absolute. Relative references resolve
// against PUBLIC_BASE_URL, or the scheme and host the request came in on.
func (s *BackendService) resolveURL(r *http.Request, ref string) string {
	parsed, err := url.Parse(ref)
	if err != nil || parsed.IsAbs() {
		return ref
	}

	base := s.requestBase(r)
	if base == nil {
		return ref
	}
	return base.ResolveReference(parsed).String()
}

func (s *BackendService) requestBase(r *http.Request) *url.URL {
	if s.cfg.PublicBaseURL != "" {
		base, err := url.Parse(strings.TrimSuffix(s.cfg.PublicBaseURL, "/") + "/")
		if err == nil {
			return base
		}
		slog.Warn("invalid PUBLIC_BASE_URL, falling back to request host", "url", s.cfg.PublicBaseURL, "error", err)
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	if r.Host == "" {
		return nil
	}
	return &url.URL{Scheme: scheme, Host: r.Host, Path: "/"}
}
