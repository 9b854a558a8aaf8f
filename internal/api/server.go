// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/resale-scanner/internal/models"
	"github.com/resale-scanner/internal/service"
	"github.com/resale-scanner/internal/types"
)

// RunnerInterface defines the run-triggering operations the API exposes
type RunnerInterface interface {
	RunResolve(ctx context.Context, opts service.RunOptions, defaultBatch int) (*service.RunResult, error)
	RunEnrich(ctx context.Context, opts service.RunOptions, defaultBatch int) (*service.RunResult, error)
}

// ProductStore defines the product operations the API exposes
type ProductStore interface {
	Create(ctx context.Context, p *models.Product) error
	GetByID(ctx context.Context, id string) (*models.Product, error)
	ListRecommended(ctx context.Context, limit int) ([]*models.Product, error)
	CountByStatus(ctx context.Context) (map[types.ResolutionStatus]int, error)
}

// SnapshotReader lists historical enrichment snapshots
type SnapshotReader interface {
	History(ctx context.Context, productID string, limit int) ([]*models.EnrichmentSnapshot, error)
}

// RunLogReader lists per-record outcomes for a run
type RunLogReader interface {
	ListByRun(ctx context.Context, runID string) ([]*models.RunLog, error)
}

// SettingsWriter defines the settings operations the API exposes
type SettingsWriter interface {
	GetAll(ctx context.Context) (map[string]string, error)
	Set(ctx context.Context, name, value string) error
}

// HealthChecker reports backend reachability
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	runner     RunnerInterface
	products   ProductStore
	snapshots  SnapshotReader
	runLogs    RunLogReader
	settings   SettingsWriter
	postgres   HealthChecker
	config     *ServerConfig
	// defaultBatch is the batch size used when a run request omits one.
	defaultBatch int
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	DefaultBatch    int
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, runner RunnerInterface, products ProductStore, snapshots SnapshotReader, runLogs RunLogReader, settings SettingsWriter, postgres HealthChecker) *Server {
	defaultBatch := config.DefaultBatch
	if defaultBatch <= 0 {
		defaultBatch = 1
	}

	s := &Server{
		router:       mux.NewRouter(),
		runner:       runner,
		products:     products,
		snapshots:    snapshots,
		runLogs:      runLogs,
		settings:     settings,
		postgres:     postgres,
		config:       config,
		defaultBatch: defaultBatch,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Run endpoints
	api.HandleFunc("/runs/resolve", s.handleRunResolve).Methods("POST")
	api.HandleFunc("/runs/enrich", s.handleRunEnrich).Methods("POST")
	api.HandleFunc("/runs/{runId}/logs", s.handleGetRunLogs).Methods("GET")

	// Product endpoints
	api.HandleFunc("/products", s.handleCreateProduct).Methods("POST")
	api.HandleFunc("/products/{id}", s.handleGetProduct).Methods("GET")
	api.HandleFunc("/products/{id}/snapshots", s.handleGetSnapshots).Methods("GET")
	api.HandleFunc("/products", s.handleListRecommended).Methods("GET")

	// Stats and settings endpoints
	api.HandleFunc("/stats", s.handleGetStats).Methods("GET")
	api.HandleFunc("/settings", s.handleGetSettings).Methods("GET")
	api.HandleFunc("/settings", s.handleUpdateSettings).Methods("PUT")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK

	if s.postgres != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.postgres.Ping(ctx); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	respondJSON(w, code, map[string]string{
		"status":  status,
		"service": "resale-scanner",
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	log.Printf("Starting API server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}
