package modelservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"sar-colorizer/internal/metrics"

	"github.com/go-resty/resty/v2"
)

// Error describes a failed call to the model service. StatusCode is 0 when no
// response was received.
type Error struct {
	StatusCode int
	Message    string
	Timeout    bool
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("model service timed out: %s", e.Message)
	case e.StatusCode == 0:
		return fmt.Sprintf("model service unreachable: %s", e.Message)
	default:
		return fmt.Sprintf("model service returned %d: %s", e.StatusCode, e.Message)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Result is what /process produced: either a URL reference or raw image bytes.
type Result struct {
	URL         string
	Message     string
	Data        []byte
	ContentType string
}

type Client struct {
	client      *resty.Client
	baseURL     *url.URL
	processPath string
	timeout     time.Duration
}

func NewClient(baseURL, processPath string, timeout time.Duration) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid model service url %q", baseURL)
	}
	if processPath == "" {
		processPath = "/process"
	}
	if !strings.HasPrefix(processPath, "/") {
		processPath = "/" + processPath
	}

	return &Client{
		client:      resty.New().SetBaseURL(parsed.String()).SetTimeout(timeout),
		baseURL:     parsed,
		processPath: processPath,
		timeout:     timeout,
	}, nil
}

func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

type processResponse struct {
	Message           string          `json:"message"`
	ImageUrl          string          `json:"imageUrl"`
	ColorizedImageUrl string          `json:"colorizedImageUrl"`
	Error             string          `json:"error"`
	Detail            json.RawMessage `json:"detail"`
}

// Process sends the image as multipart field "file" to the process endpoint.
// It never retries. A 200 response carrying only an error field is a failure.
func (c *Client) Process(ctx context.Context, filename, contentType string, data io.Reader) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	res, err := c.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json, image/*").
		SetMultipartField("file", filename, contentType, data).
		Post(c.processPath)

	if err != nil {
		callErr := c.transportError(err)
		observe(start, callErr)
		slog.Error("model service request failed", "path", c.processPath, "error", err)
		return nil, callErr
	}

	result, callErr := parseProcessResponse(res)
	observe(start, callErr)
	if callErr != nil {
		slog.Error("model service returned error", "status_code", res.StatusCode(), "error", callErr.Message)
		return nil, callErr
	}
	return result, nil
}

func parseProcessResponse(res *resty.Response) (*Result, *Error) {
	mediaType, _, _ := mime.ParseMediaType(res.Header().Get("Content-Type"))

	if !res.IsSuccess() {
		return nil, &Error{StatusCode: res.StatusCode(), Message: errorMessage(res)}
	}

	if strings.HasPrefix(mediaType, "image/") {
		if len(res.Body()) == 0 {
			return nil, &Error{StatusCode: res.StatusCode(), Message: "empty image response"}
		}
		return &Result{Data: res.Body(), ContentType: mediaType}, nil
	}

	var body processResponse
	if err := json.Unmarshal(res.Body(), &body); err != nil {
		return nil, &Error{StatusCode: res.StatusCode(), Message: fmt.Sprintf("unexpected %s response", displayType(mediaType)), Err: err}
	}

	imageUrl := body.ImageUrl
	if imageUrl == "" {
		imageUrl = body.ColorizedImageUrl
	}
	if imageUrl != "" {
		return &Result{URL: imageUrl, Message: body.Message}, nil
	}
	if body.Error != "" {
		return nil, &Error{StatusCode: res.StatusCode(), Message: body.Error}
	}
	return nil, &Error{StatusCode: res.StatusCode(), Message: "response did not include an image url"}
}

func errorMessage(res *resty.Response) string {
	var body processResponse
	if err := json.Unmarshal(res.Body(), &body); err == nil {
		if body.Error != "" {
			return body.Error
		}
		if len(body.Detail) > 0 {
			var detail string
			if err := json.Unmarshal(body.Detail, &detail); err == nil {
				return detail
			}
			return string(body.Detail)
		}
		if body.Message != "" {
			return body.Message
		}
	}

	text := strings.TrimSpace(res.String())
	if text == "" {
		return http.StatusText(res.StatusCode())
	}
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

func displayType(mediaType string) string {
	if mediaType == "" {
		return "untyped"
	}
	return mediaType
}

func (c *Client) transportError(err error) *Error {
	var netErr net.Error
	timeout := errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout())
	if timeout {
		return &Error{Timeout: true, Message: fmt.Sprintf("no response within %s", c.timeout), Err: err}
	}
	return &Error{Message: err.Error(), Err: err}
}

func observe(start time.Time, err *Error) {
	status := "ok"
	if err != nil {
		status = "error"
		if err.Timeout {
			status = "timeout"
		}
	}
	metrics.ModelRequestDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
}

// Download fetches an artifact produced by the model service. Relative
// references are resolved against the model service base url. The caller
// closes the returned body.
func (c *Client) Download(ctx context.Context, ref string) (io.ReadCloser, string, error) {
	target, err := c.ResolveURL(ref)
	if err != nil {
		return nil, "", err
	}

	res, err := c.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(target)
	if err != nil {
		return nil, "", c.transportError(err)
	}

	body := res.RawBody()
	if !res.IsSuccess() {
		body.Close()
		return nil, "", &Error{StatusCode: res.StatusCode(), Message: fmt.Sprintf("failed to download %s", ref)}
	}

	contentType, _, _ := mime.ParseMediaType(res.Header().Get("Content-Type"))
	return body, contentType, nil
}

func (c *Client) ResolveURL(ref string) (string, error) {
	parsed, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid artifact url %q: %w", ref, err)
	}
	return c.baseURL.ResolveReference(parsed).String(), nil
}
