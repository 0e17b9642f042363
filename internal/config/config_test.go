package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, "http://localhost:8000", cfg.ModelServiceURL)
	assert.Equal(t, "/process", cfg.ModelProcessPath)
	assert.Equal(t, 30*time.Second, cfg.ModelTimeout)
	assert.Equal(t, []string{"/static", "/out"}, cfg.ModelAssetPaths)
	assert.Equal(t, ModeDirect, cfg.ResultMode)
	assert.Equal(t, int64(10*1024*1024), cfg.MaxUploadBytes)
	assert.Equal(t, "uploads", cfg.UploadBucket)
	assert.Equal(t, "colorized", cfg.ResultBucket)
	assert.Equal(t, 5*time.Minute, cfg.JobTimeout)
	assert.False(t, cfg.UsesQueue())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "5002")
	t.Setenv("MODEL_SERVICE_URL", "http://localhost:8082")
	t.Setenv("MODEL_TIMEOUT", "5s")
	t.Setenv("RESULT_MODE", "poll")
	t.Setenv("MODEL_ASSET_PATHS", "/static/, /images")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5002, cfg.Port)
	assert.Equal(t, "http://localhost:8082", cfg.ModelServiceURL)
	assert.Equal(t, 5*time.Second, cfg.ModelTimeout)
	assert.True(t, cfg.UsesQueue())
	assert.Equal(t, []string{"/static", "/images"}, cfg.ModelAssetPaths)
}

func TestValidateRejectsBadValues(t *testing.T) {
	for name, env := range map[string][2]string{
		"mode":        {"RESULT_MODE", "stream"},
		"storage":     {"STORAGE_TYPE", "ftp"},
		"job store":   {"JOB_STORE", "mongo"},
		"upload size": {"MAX_UPLOAD_BYTES", "0"},
		"asset path":  {"MODEL_ASSET_PATHS", "/api/static"},
		"s3 creds":    {"STORAGE_TYPE", "s3"},
	} {
		t.Run(name, func(t *testing.T) {
			t.Setenv(env[0], env[1])
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestValidateRejectsSharedBucket(t *testing.T) {
	t.Setenv("RESULT_BUCKET", "uploads")
	_, err := Load()
	assert.ErrorContains(t, err, "must differ")
}
