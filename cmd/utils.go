package cmd

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"sar-colorizer/internal/config"
	"sar-colorizer/internal/core"
	"sar-colorizer/internal/database"
	"sar-colorizer/internal/modelservice"
	"sar-colorizer/internal/storage"

	"github.com/joho/godotenv"
)

func LoadEnvFile() {
	var configPath string

	flag.StringVar(&configPath, "env", "", "path to load env from")
	flag.Parse()

	if configPath == "" {
		log.Printf("no env file specified, using os.Environ only")
		return
	}

	log.Printf("loading env from file %s", configPath)
	err := godotenv.Load(configPath)
	if err != nil {
		log.Fatalf("error loading .env file '%s': %v", configPath, err)
	}
}

func SetupLogging(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// CreateObjectStore opens the configured store and makes sure both buckets exist.
func CreateObjectStore(ctx context.Context, cfg *config.Config) (storage.ObjectStore, error) {
	var store storage.ObjectStore

	switch cfg.StorageType {
	case config.StorageS3:
		s3Store, err := storage.NewS3ObjectStore(storage.S3ClientConfig{
			Endpoint:        cfg.S3EndpointURL,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		store = s3Store
	default:
		localStore, err := storage.NewLocalObjectStore(cfg.StorageRoot)
		if err != nil {
			return nil, err
		}
		store = localStore
	}

	for _, bucket := range []string{cfg.UploadBucket, cfg.ResultBucket} {
		if err := store.CreateBucket(ctx, bucket); err != nil {
			return nil, fmt.Errorf("error creating bucket %s: %w", bucket, err)
		}
	}

	return store, nil
}

// CreateJobStore returns the configured job registry and a function releasing
// its connections.
func CreateJobStore(ctx context.Context, cfg *config.Config) (database.JobStore, func(), error) {
	if cfg.JobStore == config.JobStoreRedis {
		store, err := database.NewRedisJobStore(ctx, cfg.RedisURL, cfg.JobTTL)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}
	return database.NewSQLJobStore(db), closeDB, nil
}

func CreateModelClient(cfg *config.Config) (*modelservice.Client, error) {
	return modelservice.NewClient(cfg.ModelServiceURL, cfg.ModelProcessPath, cfg.ModelTimeout)
}

func RelayConfig(cfg *config.Config) core.RelayConfig {
	return core.RelayConfig{
		UploadBucket:        cfg.UploadBucket,
		ResultBucket:        cfg.ResultBucket,
		MaxUploadBytes:      cfg.MaxUploadBytes,
		VerifyContent:       cfg.VerifyImageContent,
		InlineBinaryResults: cfg.InlineBinaryResults,
	}
}

// TaskTimeout bounds one queued job, which makes up to two model service calls.
func TaskTimeout(cfg *config.Config) time.Duration {
	return 2*cfg.ModelTimeout + 30*time.Second
}
