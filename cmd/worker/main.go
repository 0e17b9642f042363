package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"sar-colorizer/cmd"
	"sar-colorizer/internal/config"
	"sar-colorizer/internal/core"
	"sar-colorizer/internal/messaging"
)

func main() {
	log.Println("Starting Worker Process...")

	cmd.LoadEnvFile()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	cmd.SetupLogging(cfg.LogLevel)

	if cfg.RabbitMQURL == "" {
		log.Fatalf("RABBITMQ_URL must be set for the worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := cmd.CreateObjectStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Worker: Failed to initialize storage: %v", err)
	}

	jobs, closeJobs, err := cmd.CreateJobStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Worker: Failed to initialize job store: %v", err)
	}
	defer closeJobs()

	model, err := cmd.CreateModelClient(cfg)
	if err != nil {
		log.Fatalf("Worker: Failed to create model service client: %v", err)
	}

	publisher, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}

	receiver, err := messaging.NewRabbitMQReceiver(cfg.RabbitMQURL, cfg.WorkerConcurrency)
	if err != nil {
		log.Fatalf("Worker: Failed to start message consumer: %v", err)
	}

	relay := core.NewRelay(store, jobs, model, publisher, cmd.RelayConfig(cfg))
	processor := core.NewTaskProcessor(relay, publisher, receiver, cfg.WorkerConcurrency, cmd.TaskTimeout(cfg))

	log.Println("Worker started. Waiting for tasks. Press Ctrl+C to exit.")

	// Start returns after the signal once in-flight jobs have finished.
	if err := processor.Start(ctx); err != nil {
		log.Printf("Worker: task processor stopped: %v", err)
	}

	log.Println("In-flight jobs finished, stopping consumers...")
	processor.Stop()

	log.Println("Worker process stopped.")
}
