// Package service orchestrates the resale pipeline: selecting eligible
// records, calling the catalog API, applying state transitions, and writing
// snapshots and the enrichment cache.
package service

import (
	"context"
	"time"

	"github.com/resale-scanner/internal/adapter"
	"github.com/resale-scanner/internal/models"
	"github.com/resale-scanner/internal/profit"
	"github.com/resale-scanner/internal/resolution"
	"github.com/resale-scanner/internal/storage"
	"github.com/resale-scanner/internal/types"
)

// ProductStore is the product persistence surface the services need.
type ProductStore interface {
	SelectForResolve(ctx context.Context, limit int, exclusionWindow time.Duration, now time.Time) ([]*models.Product, error)
	SelectForEnrich(ctx context.Context, limit int, refreshInterval, exclusionWindow time.Duration, now time.Time) ([]*models.Product, error)
	MarkAttempt(ctx context.Context, id string, now time.Time) error
	UpdateResolution(ctx context.Context, id string, state resolution.State, marketplaceID *string, payload []byte) error
	UpdateEnrichmentCache(ctx context.Context, id string, cache storage.EnrichmentCache) error
}

// SnapshotStore appends immutable enrichment snapshots.
type SnapshotStore interface {
	Insert(ctx context.Context, s *models.EnrichmentSnapshot) error
}

// RunLogStore appends per-record run outcomes.
type RunLogStore interface {
	Append(ctx context.Context, entry *models.RunLog) error
}

// SettingsStore reads operator-tunable pipeline settings.
type SettingsStore interface {
	AutoUpdateEnabled(ctx context.Context) (bool, error)
	LoadPolicy(ctx context.Context) (profit.Policy, error)
	// UpdateInterval is the stored enrichment staleness horizon; zero means
	// unset and the configured default applies.
	UpdateInterval(ctx context.Context) (time.Duration, error)
}

// CatalogAPI is the external catalog surface the services call.
type CatalogAPI interface {
	LookupByCode(ctx context.Context, code string) (*adapter.FetchResult, error)
	FetchByID(ctx context.Context, marketplaceID string) (*adapter.FetchResult, error)
}

// LeaseStore grants run-level mutual exclusion.
type LeaseStore interface {
	Acquire(ctx context.Context, kind, runID string) (bool, error)
	Release(ctx context.Context, kind, runID string) error
	// Holder reports the run ID currently holding the lease, empty when free.
	Holder(ctx context.Context, kind string) (string, error)
}

// RecordResult is the outcome for one processed record.
type RecordResult struct {
	ProductID string `json:"productId"`
	// Code is the lookup key the attempt used: the source code for resolve
	// runs, the marketplace id for enrich runs.
	Code      string                 `json:"code,omitempty"`
	Status    types.ResolutionStatus `json:"status"`
	Error     string                 `json:"error,omitempty"`
	Deferred  bool                   `json:"deferred,omitempty"`
}

// RunResult summarizes one pipeline run.
type RunResult struct {
	RunID    string         `json:"runId"`
	Kind     types.RunKind  `json:"kind"`
	Total    int            `json:"total"`
	Updated  int            `json:"updated"`
	Failed   int            `json:"failed"`
	Deferred int            `json:"deferred"`
	Results  []RecordResult `json:"results"`
}

// sleepCtx waits for d or until the context is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
