package service

import (
	"context"
	"log"
	"time"

	"github.com/resale-scanner/internal/config"
	"github.com/resale-scanner/internal/models"
	"github.com/resale-scanner/internal/profit"
	"github.com/resale-scanner/internal/resolution"
	"github.com/resale-scanner/internal/types"
)

// EnrichService refreshes price, rank, and profitability data for resolved
// records. Unlike the resolve flow, a rate limit here never burns a retry or
// a failure count: the record simply comes back on the next run.
type EnrichService struct {
	products ProductStore
	catalog  CatalogAPI
	writer   *SnapshotWriter
	runLogs  RunLogStore
	settings SettingsStore
	policy   resolution.Policy
	cfg      config.PipelineConfig

	now func() time.Time
}

// NewEnrichService creates an enrich service
func NewEnrichService(products ProductStore, catalog CatalogAPI, writer *SnapshotWriter, runLogs RunLogStore, settings SettingsStore, cfg config.PipelineConfig) *EnrichService {
	return &EnrichService{
		products: products,
		catalog:  catalog,
		writer:   writer,
		runLogs:  runLogs,
		settings: settings,
		policy: resolution.Policy{
			FailureThreshold: cfg.FailureThreshold,
			ShortCooldown:    cfg.ShortCooldown,
			LongCooldown:     cfg.LongCooldown,
		},
		cfg: cfg,
		now: time.Now,
	}
}

// ProcessBatch enriches up to limit stale records. The staleness horizon and
// recommendation policy are loaded once per batch so every record in a run is
// judged by the same thresholds.
func (s *EnrichService) ProcessBatch(ctx context.Context, runID string, limit int) ([]RecordResult, error) {
	refresh := s.refreshInterval(ctx)

	products, err := s.products.SelectForEnrich(ctx, limit, refresh, s.cfg.ExclusionWindow, s.now())
	if err != nil {
		return nil, err
	}

	policy, err := s.settings.LoadPolicy(ctx)
	if err != nil {
		log.Printf("[Enrich] WARNING: failed to load policy settings, using defaults: %v", err)
		policy = profit.DefaultPolicy()
	}

	results := make([]RecordResult, 0, len(products))
	for _, p := range products {
		results = append(results, s.processOne(ctx, runID, p, policy))
	}

	return results, nil
}

// refreshInterval resolves the staleness horizon: the stored
// update_interval_hours setting when present, the configured default
// otherwise.
func (s *EnrichService) refreshInterval(ctx context.Context) time.Duration {
	stored, err := s.settings.UpdateInterval(ctx)
	if err != nil {
		log.Printf("[Enrich] WARNING: failed to load update interval setting, using default: %v", err)
		return s.cfg.RefreshInterval
	}
	if stored <= 0 {
		return s.cfg.RefreshInterval
	}
	return stored
}

func (s *EnrichService) processOne(ctx context.Context, runID string, p *models.Product, policy profit.Policy) RecordResult {
	if err := s.products.MarkAttempt(ctx, p.ID, s.now()); err != nil {
		log.Printf("[Enrich] Failed to claim product %s: %v", p.ID, err)
		return RecordResult{ProductID: p.ID, Code: marketplaceID(p), Status: p.StatusOrPending(), Error: err.Error()}
	}

	result, err := s.catalog.FetchByID(ctx, *p.MarketplaceID)
	if err != nil {
		err = classifyCatalogFailure(err)
		state := s.applyAndStore(ctx, p, types.OutcomeAPIError, err.Error())
		return s.record(ctx, runID, p, state.Status, err.Error(), false)
	}

	switch result.Outcome {
	case types.OutcomeRateLimited:
		// Deferred, not failed: state and failure count stay untouched.
		log.Printf("[Enrich] Rate limited on product %s, deferring to next run (refill in %v)",
			p.ID, result.RefillIn)
		return s.record(ctx, runID, p, p.StatusOrPending(), "", true)

	case types.OutcomeFound:
		obs := result.Products[0]
		observedAt := s.now()

		computed := profit.Compute(profit.Input{
			SellPrice:     derefOrZero(sellPrice(obs)),
			PurchaseCost:  p.PurchaseCost,
			Category:      obs.Category,
			PackageWeight: obs.PackageWeight,
			SalesRank:     derefOrZero(obs.SalesRank),
			SellerCount:   obs.OffersCount,
		}, policy)

		if err := s.writer.Write(ctx, p, obs, result.RawPayload, computed, observedAt); err != nil {
			errMsg := "snapshot write failed: " + err.Error()
			state := s.applyAndStore(ctx, p, types.OutcomeAPIError, errMsg)
			return s.record(ctx, runID, p, state.Status, errMsg, false)
		}

		state := s.applyAndStore(ctx, p, types.OutcomeFound, "")
		log.Printf("[Enrich] Enriched product %s: profit=%d rate=%.1f score=%d recommended=%t",
			p.ID, computed.ProfitAmount, computed.ProfitRate, computed.RecommendationScore, computed.IsRecommended)
		return s.record(ctx, runID, p, state.Status, "", false)

	case types.OutcomeNotFound:
		// The listing disappeared after a successful resolve.
		state := s.applyAndStore(ctx, p, types.OutcomeNotFound, "")
		log.Printf("[Enrich] Listing gone for product %s (%s)", p.ID, *p.MarketplaceID)
		return s.record(ctx, runID, p, state.Status, "", false)

	default:
		errMsg := upstreamErrorMessage(result)
		state := s.applyAndStore(ctx, p, types.OutcomeAPIError, errMsg)
		return s.record(ctx, runID, p, state.Status, errMsg, false)
	}
}

func (s *EnrichService) applyAndStore(ctx context.Context, p *models.Product, outcome types.FetchOutcome, errMsg string) resolution.State {
	current := resolution.State{
		Status:       p.StatusOrPending(),
		FailureCount: p.FailureCount,
		LastError:    p.LastError,
		SkipUntil:    p.SkipUntil,
	}

	next := resolution.Apply(current, outcome, errMsg, s.now(), s.policy)

	if err := s.products.UpdateResolution(ctx, p.ID, next, nil, nil); err != nil {
		log.Printf("[Enrich] WARNING: failed to persist state for product %s: %v", p.ID, err)
		return resolution.MarkTimeout(current, err.Error(), s.now(), s.policy)
	}

	return next
}

func (s *EnrichService) record(ctx context.Context, runID string, p *models.Product, status types.ResolutionStatus, errMsg string, deferred bool) RecordResult {
	entry := &models.RunLog{
		RunID:     runID,
		ProductID: p.ID,
		Kind:      types.RunEnrich,
		Status:    status,
	}
	if errMsg != "" {
		entry.Error = &errMsg
	}
	if err := s.runLogs.Append(ctx, entry); err != nil {
		log.Printf("[Enrich] WARNING: failed to append run log for product %s: %v", p.ID, err)
	}

	return RecordResult{ProductID: p.ID, Code: marketplaceID(p), Status: status, Error: errMsg, Deferred: deferred}
}

func marketplaceID(p *models.Product) string {
	if p.MarketplaceID == nil {
		return ""
	}
	return *p.MarketplaceID
}

func derefOrZero(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
