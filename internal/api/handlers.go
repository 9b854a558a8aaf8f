package api

import (
	"context"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	apperrors "github.com/resale-scanner/internal/errors"
	"github.com/resale-scanner/internal/models"
	"github.com/resale-scanner/internal/normalizer"
	"github.com/resale-scanner/internal/service"
)

// runRequest is the optional body for run-triggering endpoints
type runRequest struct {
	BatchSize int `json:"batchSize,omitempty"`
}

// handleRunResolve handles POST /api/runs/resolve - trigger a resolve run
func (s *Server) handleRunResolve(w http.ResponseWriter, r *http.Request) {
	s.triggerRun(w, r, s.runner.RunResolve)
}

// handleRunEnrich handles POST /api/runs/enrich - trigger an enrichment run
func (s *Server) handleRunEnrich(w http.ResponseWriter, r *http.Request) {
	s.triggerRun(w, r, s.runner.RunEnrich)
}

type runFunc func(ctx context.Context, opts service.RunOptions, defaultBatch int) (*service.RunResult, error)

func (s *Server) triggerRun(w http.ResponseWriter, r *http.Request, run runFunc) {
	var req runRequest
	if err := parseJSONBody(r, &req); err != nil && err != io.EOF {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}

	if req.BatchSize < 0 {
		respondServiceError(w, apperrors.NewInvalidParameterError("batchSize", "must be positive"))
		return
	}

	// Manual runs bypass the auto-update kill switch
	opts := service.RunOptions{
		BatchSize: req.BatchSize,
		Forced:    true,
	}

	result, err := run(r.Context(), opts, s.defaultBatch)
	if err != nil {
		log.Printf("[API] run failed: %v", err)
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleGetRunLogs handles GET /api/runs/{runId}/logs - list per-record outcomes
func (s *Server) handleGetRunLogs(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	runID := vars["runId"]
	if runID == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "run id required")
		return
	}

	logs, err := s.runLogs.ListByRun(r.Context(), runID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"runId": runID,
		"logs":  logs,
		"count": len(logs),
	})
}

// handleCreateProduct handles POST /api/products - register a source record
func (s *Server) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceCode   string  `json:"sourceCode"`
		Name         string  `json:"name"`
		Brand        *string `json:"brand,omitempty"`
		Category     *string `json:"category,omitempty"`
		PurchaseCost int     `json:"purchaseCost"`
	}

	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		respondServiceError(w, apperrors.NewInvalidParameterError("name", "required"))
		return
	}
	if req.SourceCode != "" && !normalizer.IsValidJAN(req.SourceCode) {
		respondServiceError(w, apperrors.NewInvalidParameterError("sourceCode", "not a valid JAN code"))
		return
	}
	if req.PurchaseCost < 0 {
		respondServiceError(w, apperrors.NewInvalidParameterError("purchaseCost", "must not be negative"))
		return
	}

	product := &models.Product{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Brand:        req.Brand,
		Category:     req.Category,
		PurchaseCost: req.PurchaseCost,
	}
	if req.SourceCode != "" {
		code := normalizer.NormalizeCode(req.SourceCode)
		product.SourceCode = &code
	}

	if err := s.products.Create(r.Context(), product); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, product)
}

// handleGetSnapshots handles GET /api/products/{id}/snapshots - enrichment history
func (s *Server) handleGetSnapshots(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]
	if id == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "product id required")
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondServiceError(w, apperrors.NewInvalidParameterError("limit", "must be a positive integer"))
			return
		}
		limit = parsed
	}

	snapshots, err := s.snapshots.History(r.Context(), id, limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"productId": id,
		"snapshots": snapshots,
		"count":     len(snapshots),
	})
}

// handleGetStats handles GET /api/stats - product counts by resolution status
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.products.CountByStatus(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	total := 0
	byStatus := make(map[string]int, len(counts))
	for status, n := range counts {
		byStatus[string(status)] = n
		total += n
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"total":    total,
		"byStatus": byStatus,
	})
}

// handleGetProduct handles GET /api/products/{id} - get one product
func (s *Server) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["id"]
	if id == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "product id required")
		return
	}

	product, err := s.products.GetByID(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, product)
}

// handleListRecommended handles GET /api/products?recommended=true - list recommended products
func (s *Server) handleListRecommended(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondServiceError(w, apperrors.NewInvalidParameterError("limit", "must be a positive integer"))
			return
		}
		if parsed > 500 {
			parsed = 500
		}
		limit = parsed
	}

	products, err := s.products.ListRecommended(r.Context(), limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"products": products,
		"count":    len(products),
	})
}

// handleGetSettings handles GET /api/settings - list pipeline settings
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.settings.GetAll(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"settings": settings,
	})
}

// handleUpdateSettings handles PUT /api/settings - update pipeline settings
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Settings map[string]string `json:"settings"`
	}

	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}

	if len(req.Settings) == 0 {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "settings map required")
		return
	}

	for name, value := range req.Settings {
		if err := s.settings.Set(r.Context(), name, value); err != nil {
			respondServiceError(w, err)
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"updated": len(req.Settings),
	})
}
