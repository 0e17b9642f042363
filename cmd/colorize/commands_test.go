package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"sar-colorizer/pkg/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var colorized = []byte("colorized-bytes")

func backend(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	mux.HandleFunc("POST /api/upload", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(api.SubmitResponse{JobId: "job-1", StatusUrl: srv.URL + "/api/status/job-1"})
	})
	mux.HandleFunc("GET /api/status/job-1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(api.JobStatusResponse{Status: api.StatusCompleted, ImageUrl: srv.URL + "/api/processed/job-1"})
	})
	mux.HandleFunc("GET /api/processed/job-1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(colorized)
	})
	t.Cleanup(srv.Close)
	return srv
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestUploadCommandSavesOutput(t *testing.T) {
	srv := backend(t)

	dir := t.TempDir()
	input := filepath.Join(dir, "scene.png")
	require.NoError(t, os.WriteFile(input, []byte("\x89PNG\r\n\x1a\n"), 0o644))
	output := filepath.Join(dir, "out.png")

	out, err := execute(t, "--server", srv.URL, "-q", "upload", input, "-o", output)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/api/processed/job-1\n", out)

	saved, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, colorized, saved)
}

func TestUploadCommandRejectsNonImage(t *testing.T) {
	input := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(input, []byte("hello"), 0o644))

	_, err := execute(t, "--server", "http://127.0.0.1:1", "-q", "upload", input)
	assert.ErrorContains(t, err, "invalid file")
}

func TestStatusCommand(t *testing.T) {
	srv := backend(t)

	out, err := execute(t, "--server", srv.URL, "status", "job-1")
	require.NoError(t, err)
	assert.Contains(t, out, "status: completed")
	assert.Contains(t, out, "/api/processed/job-1")
}
