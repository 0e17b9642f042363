package client_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"sar-colorizer/pkg/api"
	"sar-colorizer/pkg/client"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func TestSelectFile(t *testing.T) {
	c := client.New("http://localhost:5000", client.WithMaxUploadBytes(32))

	file, err := c.SelectFile(writeFile(t, "scene.tif", []byte("tiff-ish")))
	require.NoError(t, err)
	assert.Equal(t, "scene.tif", file.Name)
	assert.Equal(t, "image/tiff", file.ContentType)
	assert.Equal(t, int64(8), file.Size)

	file, err = c.SelectFile(writeFile(t, "noext", pngHeader))
	require.NoError(t, err)
	assert.Equal(t, "image/png", file.ContentType)

	var validationErr *client.ValidationError
	for name, path := range map[string]string{
		"not an image": writeFile(t, "notes.txt", []byte("hello")),
		"empty":        writeFile(t, "empty.png", nil),
		"too large":    writeFile(t, "big.png", bytes.Repeat([]byte{1}, 64)),
		"missing":      filepath.Join(t.TempDir(), "missing.png"),
		"directory":    t.TempDir(),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := c.SelectFile(path)
			assert.ErrorAs(t, err, &validationErr)
		})
	}
}

func TestSubmitDirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/upload", r.URL.Path)
		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		assert.Equal(t, "cat.png", header.Filename)
		assert.Equal(t, "image/png", header.Header.Get("Content-Type"))

		writeJSON(w, http.StatusOK, api.UploadResponse{Message: "Image processed successfully", ColorizedImageUrl: "http://backend/out/abc123.jpg"})
	}))
	defer srv.Close()

	c := client.New(srv.URL)
	file, err := c.SelectFile(writeFile(t, "cat.png", pngHeader))
	require.NoError(t, err)

	res, err := c.Submit(t.Context(), file)
	require.NoError(t, err)
	assert.Equal(t, "http://backend/out/abc123.jpg", res.ImageURL)
	assert.Empty(t, res.JobId)
}

func TestSubmitInlineBinary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngHeader)
	}))
	defer srv.Close()

	c := client.New(srv.URL)
	file, err := c.SelectFile(writeFile(t, "cat.png", pngHeader))
	require.NoError(t, err)

	res, err := c.Submit(t.Context(), file)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, res.Data)
	assert.Equal(t, "image/png", res.ContentType)
}

// jobServer accepts an upload as job-1 and reports the given statuses in
// order, repeating the last one.
func jobServer(t *testing.T, statuses ...api.JobStatusResponse) (*httptest.Server, func() int) {
	var mu sync.Mutex
	polls := 0

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	mux.HandleFunc("POST /api/upload", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusAccepted, api.SubmitResponse{JobId: "job-1", StatusUrl: srv.URL + "/api/status/job-1"})
	})
	mux.HandleFunc("GET /api/status/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "job-1" {
			writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "job not found"})
			return
		}
		mu.Lock()
		i := min(polls, len(statuses)-1)
		polls++
		mu.Unlock()
		writeJSON(w, http.StatusOK, statuses[i])
	})
	t.Cleanup(srv.Close)

	return srv, func() int {
		mu.Lock()
		defer mu.Unlock()
		return polls
	}
}

func TestSubmitPollsUntilCompleted(t *testing.T) {
	srv, polls := jobServer(t,
		api.JobStatusResponse{Status: api.StatusProcessing},
		api.JobStatusResponse{Status: api.StatusProcessing},
		api.JobStatusResponse{Status: api.StatusCompleted, ImageUrl: "http://backend/api/processed/job-1"},
	)

	var seen []string
	c := client.New(srv.URL, client.WithPollInterval(10*time.Millisecond), client.WithStatusCallback(func(status string) {
		seen = append(seen, status)
	}))
	file, err := c.SelectFile(writeFile(t, "cat.png", pngHeader))
	require.NoError(t, err)

	res, err := c.Submit(t.Context(), file)
	require.NoError(t, err)
	assert.Equal(t, "job-1", res.JobId)
	assert.Equal(t, "http://backend/api/processed/job-1", res.ImageURL)
	assert.Equal(t, 3, polls())
	assert.Equal(t, []string{api.StatusProcessing, api.StatusProcessing, api.StatusCompleted}, seen)
}

func TestSubmitJobFailed(t *testing.T) {
	srv, _ := jobServer(t,
		api.JobStatusResponse{Status: api.StatusProcessing},
		api.JobStatusResponse{Status: api.StatusFailed, Error: "processing timed out"},
	)

	c := client.New(srv.URL, client.WithPollInterval(10*time.Millisecond))
	file, err := c.SelectFile(writeFile(t, "cat.png", pngHeader))
	require.NoError(t, err)

	_, err = c.Submit(t.Context(), file)
	var jobErr *client.JobFailedError
	require.ErrorAs(t, err, &jobErr)
	assert.Equal(t, "job-1", jobErr.JobId)
	assert.Equal(t, "processing timed out", jobErr.Message)
}

func TestSubmitMaxWait(t *testing.T) {
	srv, _ := jobServer(t, api.JobStatusResponse{Status: api.StatusProcessing})

	c := client.New(srv.URL, client.WithPollInterval(10*time.Millisecond), client.WithMaxWait(100*time.Millisecond))
	file, err := c.SelectFile(writeFile(t, "cat.png", pngHeader))
	require.NoError(t, err)

	start := time.Now()
	_, err = c.Submit(t.Context(), file)
	assert.ErrorIs(t, err, client.ErrWaitExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSubmitServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadGateway, api.ErrorResponse{Error: "Error processing image: model crashed"})
	}))
	defer srv.Close()

	c := client.New(srv.URL)
	file, err := c.SelectFile(writeFile(t, "cat.png", pngHeader))
	require.NoError(t, err)

	_, err = c.Submit(t.Context(), file)
	var serverErr *client.ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, http.StatusBadGateway, serverErr.StatusCode)
	assert.Equal(t, "Error processing image: model crashed", serverErr.Message)
}

func TestSubmitNoResponse(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c := client.New(srv.URL)
	file, err := c.SelectFile(writeFile(t, "cat.png", pngHeader))
	require.NoError(t, err)

	_, err = c.Submit(t.Context(), file)
	assert.ErrorIs(t, err, client.ErrNoResponse)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = c.Submit(ctx, file)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGetStatusUnknownJob(t *testing.T) {
	srv, _ := jobServer(t, api.JobStatusResponse{Status: api.StatusProcessing})

	c := client.New(srv.URL)
	_, err := c.GetStatus(t.Context(), "job-2")
	var serverErr *client.ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, http.StatusNotFound, serverErr.StatusCode)
	assert.Equal(t, "job not found", serverErr.Message)
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/processed/job-1" {
			writeJSON(w, http.StatusNotFound, api.ErrorResponse{Error: "file not found"})
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngHeader)
	}))
	defer srv.Close()

	c := client.New(srv.URL)

	var buf bytes.Buffer
	n, err := c.Download(t.Context(), srv.URL+"/api/processed/job-1", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len(pngHeader)), n)
	assert.Equal(t, pngHeader, buf.Bytes())

	_, err = c.Download(t.Context(), "/api/processed/job-2", &buf)
	var serverErr *client.ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, "file not found", serverErr.Message)
}
