package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"sar-colorizer/internal/core"
	"sar-colorizer/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/schema"
)

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

func CodedError(code int, err error) error {
	return &codedError{err: err, code: code}
}

func CodedErrorf(code int, format string, args ...any) error {
	return &codedError{err: fmt.Errorf(format, args...), code: code}
}

// Upstream failures are reported to clients with this prefix.
const upstreamErrorPrefix = "Error processing image: "

// toCodedError maps the core error taxonomy onto HTTP status codes.
func toCodedError(err error) *codedError {
	var cerr *codedError
	if errors.As(err, &cerr) {
		return cerr
	}

	var validationErr *core.ValidationError
	var upstreamErr *core.UpstreamError
	var storageErr *core.StorageError

	switch {
	case errors.Is(err, core.ErrMissingInput):
		return &codedError{err: err, code: http.StatusBadRequest}
	case errors.As(err, &validationErr):
		return &codedError{err: validationErr, code: http.StatusBadRequest}
	case errors.Is(err, core.ErrNotFound):
		return &codedError{err: err, code: http.StatusNotFound}
	case errors.As(err, &upstreamErr):
		return &codedError{err: errors.New(upstreamErrorPrefix + upstreamErr.Message), code: http.StatusBadGateway}
	case errors.As(err, &storageErr):
		return &codedError{err: errors.New("error storing file"), code: http.StatusInternalServerError}
	default:
		return &codedError{err: errors.New("internal server error"), code: http.StatusInternalServerError}
	}
}

func ParseRequestQueryParams[T any](r *http.Request) (T, error) {
	var data T
	if err := r.ParseForm(); err != nil {
		slog.Error("error parsing form", "error", err)
		return data, CodedErrorf(http.StatusBadRequest, "unable to parse request query params")
	}

	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	if err := decoder.Decode(&data, r.Form); err != nil {
		slog.Error("error decoding query params", "error", err)
		return data, CodedErrorf(http.StatusBadRequest, "unable to parse request query params")
	}

	return data, nil
}

// statusResponse overrides the 200 written by RestHandler.
type statusResponse struct {
	code int
	body any
}

func WithStatus(code int, body any) any {
	return &statusResponse{code: code, body: body}
}

// BinaryResponse is written as raw bytes with its content type.
type BinaryResponse struct {
	ContentType string
	Body        io.Reader
}

func RestHandler(handler func(r *http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := handler(r)
		if err != nil {
			WriteError(w, err)
			return
		}

		switch res := res.(type) {
		case nil:
			WriteJsonResponse(w, http.StatusOK, struct{}{})
		case *statusResponse:
			WriteJsonResponse(w, res.code, res.body)
		case *BinaryResponse:
			writeBinaryResponse(w, res)
		default:
			WriteJsonResponse(w, http.StatusOK, res)
		}
	}
}

func WriteError(w http.ResponseWriter, err error) {
	cerr := toCodedError(err)
	if cerr.code >= http.StatusInternalServerError {
		slog.Error("error received in endpoint", "code", cerr.code, "error", err)
	}
	WriteJsonResponse(w, cerr.code, api.ErrorResponse{Error: cerr.Error()})
}

func WriteJsonResponse(w http.ResponseWriter, code int, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		slog.Error("error serializing response body", "error", err)
		http.Error(w, fmt.Sprintf("error serializing response body: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(append(body, '\n')); err != nil {
		slog.Error("error writing response body", "error", err)
	}
}

func writeBinaryResponse(w http.ResponseWriter, res *BinaryResponse) {
	if closer, ok := res.Body.(io.Closer); ok {
		defer closer.Close()
	}

	contentType := res.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, res.Body); err != nil {
		slog.Error("error streaming response body", "error", err)
	}
}

func URLParamJobId(r *http.Request, key string) (string, error) {
	param := chi.URLParam(r, key)

	if len(param) == 0 {
		return "", CodedErrorf(http.StatusBadRequest, "missing {%v} url parameter", key)
	}

	if err := core.ValidateJobId(param); err != nil {
		return "", CodedErrorf(http.StatusBadRequest, "invalid {%v} url parameter: only alphanumeric characters, underscores, and hyphens are allowed", key)
	}

	return param, nil
}
