// Package main provides the pipeline worker entry point for the resale scanner service.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/resale-scanner/internal/adapter"
	"github.com/resale-scanner/internal/config"
	"github.com/resale-scanner/internal/ratelimit"
	"github.com/resale-scanner/internal/service"
	"github.com/resale-scanner/internal/storage"
	"github.com/resale-scanner/internal/worker"
)

func main() {
	fmt.Println("Resale Scanner Pipeline Worker")
	log.Println("Worker starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize database connections
	log.Println("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer postgres.Close()

	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		log.Fatalf("Failed to connect to ClickHouse: %v", err)
	}
	defer clickhouse.Close()

	redis, err := storage.NewRedisStore(&cfg.Database.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redis.Close()

	log.Println("Database connections established")

	// Ensure ClickHouse snapshot schema exists
	{
		schemaCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := clickhouse.EnsureSnapshotSchema(schemaCtx); err != nil {
			cancel()
			log.Fatalf("Failed to ensure snapshot schema: %v", err)
		}
		cancel()
	}

	// Initialize repositories
	productRepo := storage.NewProductRepository(postgres)
	snapshotRepo := storage.NewSnapshotRepository(clickhouse)
	runLogRepo := storage.NewRunLogRepository(postgres)
	settingsRepo := storage.NewSettingsRepository(postgres)
	lease := storage.NewRunLease(redis.Client(), cfg.Pipeline.LeaseTTL)

	// Redis-backed token budget tracking for cross-process coordination
	budget := ratelimit.NewTokenBudget(&ratelimit.TokenBudgetConfig{
		Redis: redis.Client(),
	})
	catalog := adapter.NewCatalogClient(cfg.Catalog, budget)
	log.Println("Catalog client initialized")

	// Initialize services
	writer := service.NewSnapshotWriter(snapshotRepo, productRepo)
	resolveService := service.NewResolveService(productRepo, catalog, runLogRepo, cfg.Pipeline, cfg.Catalog.MaxRefillWait)
	enrichService := service.NewEnrichService(productRepo, catalog, writer, runLogRepo, settingsRepo, cfg.Pipeline)
	runner := service.NewRunner(resolveService, enrichService, settingsRepo, lease)

	// Create and start the pipeline worker
	pipelineWorker, err := worker.NewPipelineWorker(&worker.PipelineWorkerConfig{
		Runner:       runner,
		Interval:     cfg.Pipeline.WorkerInterval,
		ResolveBatch: cfg.Pipeline.BatchSize,
		EnrichBatch:  cfg.Pipeline.BatchSize,
	})
	if err != nil {
		log.Fatalf("Failed to create pipeline worker: %v", err)
	}

	ctx := context.Background()
	if err := pipelineWorker.Start(ctx); err != nil {
		log.Fatalf("Failed to start pipeline worker: %v", err)
	}
	log.Printf("Pipeline worker started (interval: %v, batch: %d)", cfg.Pipeline.WorkerInterval, cfg.Pipeline.BatchSize)

	// Set up graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	<-sigCh
	log.Println("Shutdown signal received, stopping worker...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := pipelineWorker.Stop(shutdownCtx); err != nil {
		log.Printf("Error stopping pipeline worker: %v", err)
	}

	log.Println("Worker stopped. Goodbye!")
}
