package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	ModeDirect = "direct"
	ModePoll   = "poll"

	StorageLocal = "local"
	StorageS3    = "s3"

	JobStoreSQL   = "sql"
	JobStoreRedis = "redis"
)

type Config struct {
	Port          int    `env:"PORT" envDefault:"5000"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`

	ModelServiceURL  string        `env:"MODEL_SERVICE_URL" envDefault:"http://localhost:8000"`
	ModelProcessPath string        `env:"MODEL_PROCESS_PATH" envDefault:"/process"`
	ModelTimeout     time.Duration `env:"MODEL_TIMEOUT" envDefault:"30s"`
	ModelAssetPaths  []string      `env:"MODEL_ASSET_PATHS" envDefault:"/static,/out" envSeparator:","`

	ResultMode          string `env:"RESULT_MODE" envDefault:"direct"`
	InlineBinaryResults bool   `env:"INLINE_BINARY_RESULTS" envDefault:"false"`
	MaxUploadBytes      int64  `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`
	VerifyImageContent  bool   `env:"VERIFY_IMAGE_CONTENT" envDefault:"true"`

	StorageType       string `env:"STORAGE_TYPE" envDefault:"local"`
	StorageRoot       string `env:"STORAGE_ROOT" envDefault:"."`
	UploadBucket      string `env:"UPLOAD_BUCKET" envDefault:"uploads"`
	ResultBucket      string `env:"RESULT_BUCKET" envDefault:"colorized"`
	S3EndpointURL     string `env:"S3_ENDPOINT_URL"`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	S3Region          string `env:"AWS_REGION" envDefault:"us-east-1"`

	JobStore    string        `env:"JOB_STORE" envDefault:"sql"`
	DatabaseURL string        `env:"DATABASE_URL" envDefault:"file::memory:?cache=shared"`
	RedisURL    string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	JobTTL      time.Duration `env:"JOB_TTL" envDefault:"24h"`
	JobTimeout  time.Duration `env:"JOB_TIMEOUT" envDefault:"5m"`

	RabbitMQURL       string `env:"RABBITMQ_URL"`
	WorkerConcurrency int    `env:"WORKER_CONCURRENCY" envDefault:"4"`
}

// Load parses the process environment into a Config and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.ResultMode {
	case ModeDirect, ModePoll:
	default:
		return fmt.Errorf("invalid RESULT_MODE %q: expected %q or %q", c.ResultMode, ModeDirect, ModePoll)
	}

	switch c.StorageType {
	case StorageLocal:
	case StorageS3:
		if c.S3AccessKeyID == "" || c.S3SecretAccessKey == "" {
			return fmt.Errorf("STORAGE_TYPE=s3 requires AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY")
		}
	default:
		return fmt.Errorf("invalid STORAGE_TYPE %q: expected %q or %q", c.StorageType, StorageLocal, StorageS3)
	}

	switch c.JobStore {
	case JobStoreSQL, JobStoreRedis:
	default:
		return fmt.Errorf("invalid JOB_STORE %q: expected %q or %q", c.JobStore, JobStoreSQL, JobStoreRedis)
	}

	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	if c.ModelTimeout <= 0 {
		return fmt.Errorf("MODEL_TIMEOUT must be positive, got %v", c.ModelTimeout)
	}
	if c.UploadBucket == c.ResultBucket {
		return fmt.Errorf("UPLOAD_BUCKET and RESULT_BUCKET must differ, both are %q", c.UploadBucket)
	}

	for i, p := range c.ModelAssetPaths {
		p = strings.TrimSpace(p)
		if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "/api") {
			return fmt.Errorf("invalid MODEL_ASSET_PATHS entry %q: must start with / and not shadow /api", p)
		}
		c.ModelAssetPaths[i] = strings.TrimSuffix(p, "/")
	}

	return nil
}

// UsesQueue reports whether uploads are handed to the task queue instead of relayed inline.
func (c *Config) UsesQueue() bool {
	return c.ResultMode == ModePoll
}
