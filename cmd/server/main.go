// Package main provides the API server entry point for the resale scanner service.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/resale-scanner/internal/adapter"
	"github.com/resale-scanner/internal/api"
	"github.com/resale-scanner/internal/config"
	"github.com/resale-scanner/internal/logging"
	"github.com/resale-scanner/internal/ratelimit"
	"github.com/resale-scanner/internal/service"
	"github.com/resale-scanner/internal/storage"
)

func main() {
	fmt.Println("Resale Scanner API Server")
	log.Println("Server starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Initialize database connections
	logger.Info("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to ClickHouse")
	}
	defer clickhouse.Close()

	redis, err := storage.NewRedisStore(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	logger.Info("Database connections established")

	// Ensure ClickHouse snapshot schema exists
	{
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := clickhouse.EnsureSnapshotSchema(ctx); err != nil {
			cancel()
			logger.WithError(err).Fatal("Failed to ensure snapshot schema")
		}
		cancel()
	}

	// Initialize repositories
	productRepo := storage.NewProductRepository(postgres)
	snapshotRepo := storage.NewSnapshotRepository(clickhouse)
	runLogRepo := storage.NewRunLogRepository(postgres)
	settingsRepo := storage.NewSettingsRepository(postgres)
	lease := storage.NewRunLease(redis.Client(), cfg.Pipeline.LeaseTTL)

	// Initialize catalog client with Redis-backed budget tracking
	budget := ratelimit.NewTokenBudget(&ratelimit.TokenBudgetConfig{
		Redis: redis.Client(),
	})
	catalog := adapter.NewCatalogClient(cfg.Catalog, budget)

	// Initialize services
	logger.Info("Initializing services...")

	writer := service.NewSnapshotWriter(snapshotRepo, productRepo)
	resolveService := service.NewResolveService(productRepo, catalog, runLogRepo, cfg.Pipeline, cfg.Catalog.MaxRefillWait)
	enrichService := service.NewEnrichService(productRepo, catalog, writer, runLogRepo, settingsRepo, cfg.Pipeline)
	runner := service.NewRunner(resolveService, enrichService, settingsRepo, lease)

	logger.Info("Services initialized")

	// Create server configuration
	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    120 * time.Second, // run endpoints block while a batch executes
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		DefaultBatch:    cfg.Pipeline.BatchSize,
	}

	server := api.NewServer(serverConfig, runner, productRepo, snapshotRepo, runLogRepo, settingsRepo, postgres)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
