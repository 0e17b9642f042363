package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"sar-colorizer/cmd"
	"sar-colorizer/internal/api"
	"sar-colorizer/internal/config"
	"sar-colorizer/internal/core"
	"sar-colorizer/internal/messaging"
)

func main() {
	log.Println("Starting API Server...")

	cmd.LoadEnvFile()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cmd.SetupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := cmd.CreateObjectStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	jobs, closeJobs, err := cmd.CreateJobStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize job store: %v", err)
	}
	defer closeJobs()

	model, err := cmd.CreateModelClient(cfg)
	if err != nil {
		log.Fatalf("Failed to create model service client: %v", err)
	}

	var publisher messaging.Publisher
	var queue *messaging.InMemoryQueue
	if cfg.UsesQueue() {
		if cfg.RabbitMQURL != "" {
			rabbit, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL)
			if err != nil {
				log.Fatalf("Failed to connect to RabbitMQ: %v", err)
			}
			defer rabbit.Close()
			publisher = rabbit
		} else {
			queue = messaging.NewInMemoryQueue()
			publisher = queue
		}
	}

	relay := core.NewRelay(store, jobs, model, publisher, cmd.RelayConfig(cfg))
	jobService := core.NewJobService(jobs, store, cfg.ResultBucket, cfg.JobTimeout)

	// Without a broker the queue lives in this process, so jobs are worked here
	// and pending jobs from a previous run are queued again.
	var processor *core.TaskProcessor
	processorDone := make(chan struct{})
	if queue != nil {
		processor = core.NewTaskProcessor(relay, queue, queue, cfg.WorkerConcurrency, cmd.TaskTimeout(cfg))
		go func() {
			defer close(processorDone)
			if err := processor.Start(ctx); err != nil {
				slog.Error("task processor stopped", "error", err)
			}
		}()

		n, err := relay.RequeuePending(ctx)
		if err != nil {
			log.Fatalf("Failed to requeue pending jobs: %v", err)
		}
		if n > 0 {
			slog.Info("requeued pending jobs", "count", n)
		}
	}

	backend := api.NewBackendService(relay, jobService, api.ServiceConfig{
		Poll:           cfg.UsesQueue(),
		PublicBaseURL:  cfg.PublicBaseURL,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	router := api.NewRouter(backend, api.RouterConfig{
		AssetPaths:   cfg.ModelAssetPaths,
		AssetProxy:   api.NewAssetProxy(model.BaseURL(), cfg.ModelTimeout),
		RequestLimit: cfg.ModelTimeout + 30*time.Second,
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		log.Println("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	slog.Info("API server listening", "port", cfg.Port, "mode", cfg.ResultMode, "model_service", cfg.ModelServiceURL)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %d: %v\n", cfg.Port, err)
	}

	if processor != nil {
		<-processorDone
		processor.Stop()
	}

	log.Println("Server stopped.")
}
