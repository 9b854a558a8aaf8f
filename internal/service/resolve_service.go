package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/resale-scanner/internal/adapter"
	apperrors "github.com/resale-scanner/internal/errors"
	"github.com/resale-scanner/internal/config"
	"github.com/resale-scanner/internal/models"
	"github.com/resale-scanner/internal/normalizer"
	"github.com/resale-scanner/internal/resolution"
	"github.com/resale-scanner/internal/scoring"
	"github.com/resale-scanner/internal/types"
)

// ResolveService resolves source codes to marketplace ids. One record at a
// time: the catalog call, candidate ranking, and the state transition are a
// unit, and one record's failure never touches its neighbors.
type ResolveService struct {
	products ProductStore
	catalog  CatalogAPI
	runLogs  RunLogStore
	policy   resolution.Policy
	cfg      config.PipelineConfig
	// maxRefillWait caps how long the inline 429 retry sleeps.
	maxRefillWait time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewResolveService creates a resolve service
func NewResolveService(products ProductStore, catalog CatalogAPI, runLogs RunLogStore, cfg config.PipelineConfig, maxRefillWait time.Duration) *ResolveService {
	return &ResolveService{
		products: products,
		catalog:  catalog,
		runLogs:  runLogs,
		policy: resolution.Policy{
			FailureThreshold: cfg.FailureThreshold,
			ShortCooldown:    cfg.ShortCooldown,
			LongCooldown:     cfg.LongCooldown,
		},
		cfg:           cfg,
		maxRefillWait: maxRefillWait,
		now:           time.Now,
		sleep:         sleepCtx,
	}
}

// ProcessBatch resolves up to limit eligible records, returning one result
// per record. Selection failure is the only error that aborts the batch.
func (s *ResolveService) ProcessBatch(ctx context.Context, runID string, limit int) ([]RecordResult, error) {
	products, err := s.products.SelectForResolve(ctx, limit, s.cfg.ExclusionWindow, s.now())
	if err != nil {
		return nil, err
	}

	results := make([]RecordResult, 0, len(products))
	for _, p := range products {
		result := s.processOne(ctx, runID, p)
		results = append(results, result)
	}

	return results, nil
}

func (s *ResolveService) processOne(ctx context.Context, runID string, p *models.Product) RecordResult {
	if err := s.products.MarkAttempt(ctx, p.ID, s.now()); err != nil {
		log.Printf("[Resolve] Failed to claim product %s: %v", p.ID, err)
		return RecordResult{ProductID: p.ID, Code: sourceCode(p), Status: p.StatusOrPending(), Error: err.Error()}
	}

	if p.SourceCode == nil || *p.SourceCode == "" {
		// The selection query filters these out; a racing edit can still
		// surface one.
		state := s.applyAndStore(ctx, p, types.OutcomeAPIError, "record has no source code", nil, nil)
		return s.record(ctx, runID, p, state, "record has no source code")
	}

	result, err := s.lookupWithRetry(ctx, *p.SourceCode)
	if err != nil {
		err = classifyCatalogFailure(err)
		state := s.applyAndStore(ctx, p, types.OutcomeAPIError, err.Error(), nil, nil)
		return s.record(ctx, runID, p, state, err.Error())
	}

	switch result.Outcome {
	case types.OutcomeFound:
		best := s.bestCandidate(p, result.Products)
		state := s.applyAndStore(ctx, p, types.OutcomeFound, "", &best.MarketplaceID, result.RawPayload)
		log.Printf("[Resolve] Resolved product %s to %s", p.ID, best.MarketplaceID)
		return s.record(ctx, runID, p, state, "")

	case types.OutcomeNotFound:
		state := s.applyAndStore(ctx, p, types.OutcomeNotFound, "", nil, nil)
		log.Printf("[Resolve] No catalog listing for product %s", p.ID)
		return s.record(ctx, runID, p, state, "")

	default:
		errMsg := upstreamErrorMessage(result)
		state := s.applyAndStore(ctx, p, types.OutcomeAPIError, errMsg, nil, nil)
		return s.record(ctx, runID, p, state, errMsg)
	}
}

// lookupWithRetry performs the catalog lookup with at most one inline retry
// after a rate limit, sleeping for the upstream's refill hint.
func (s *ResolveService) lookupWithRetry(ctx context.Context, code string) (*adapter.FetchResult, error) {
	result, err := s.catalog.LookupByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if result.Outcome != types.OutcomeRateLimited {
		return result, nil
	}

	wait := result.RefillIn
	if wait > s.maxRefillWait {
		wait = s.maxRefillWait
	}
	log.Printf("[Resolve] Rate limited for code %s, waiting %v before retry", code, wait)
	if err := s.sleep(ctx, wait); err != nil {
		return nil, fmt.Errorf("rate limit wait interrupted: %w", err)
	}

	result, err = s.catalog.LookupByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if result.Outcome == types.OutcomeRateLimited {
		// Second 429 in a row falls through the failure path; the record
		// comes back after its cooldown.
		return nil, apperrors.NewCatalogRateLimitError(result.RefillIn.Milliseconds())
	}

	return result, nil
}

// bestCandidate ranks multi-result lookups by attribute similarity. A single
// result wins by default.
func (s *ResolveService) bestCandidate(p *models.Product, candidates []adapter.Observation) adapter.Observation {
	if len(candidates) == 1 {
		return candidates[0]
	}

	source := scoring.SourceAttrs{
		Title: p.Name,
		Size:  normalizer.ExtractSizeToken(p.Name),
	}
	if p.Brand != nil {
		source.Brand = *p.Brand
	}

	best := candidates[0]
	bestScore := -1
	for _, c := range candidates {
		score := scoring.TotalScore(source, scoring.CandidateAttrs{
			Brand:    c.Brand,
			Title:    c.Title,
			Size:     normalizer.ExtractSizeToken(c.Title),
			Category: c.Category,
		})
		if score > bestScore {
			bestScore = score
			best = c
		}
	}

	log.Printf("[Resolve] Picked %s from %d candidates (score %d)", best.MarketplaceID, len(candidates), bestScore)
	return best
}

// applyAndStore runs the state transition and persists it. A storage write
// timeout leaves the database untouched: the in-process state notes the
// timeout and the record surfaces again after its cooldown.
func (s *ResolveService) applyAndStore(ctx context.Context, p *models.Product, outcome types.FetchOutcome, errMsg string, marketplaceID *string, payload []byte) resolution.State {
	current := resolution.State{
		Status:       p.StatusOrPending(),
		FailureCount: p.FailureCount,
		LastError:    p.LastError,
		SkipUntil:    p.SkipUntil,
	}

	next := resolution.Apply(current, outcome, errMsg, s.now(), s.policy)

	if err := s.products.UpdateResolution(ctx, p.ID, next, marketplaceID, payload); err != nil {
		log.Printf("[Resolve] WARNING: failed to persist state for product %s: %v", p.ID, err)
		return resolution.MarkTimeout(current, err.Error(), s.now(), s.policy)
	}

	return next
}

func (s *ResolveService) record(ctx context.Context, runID string, p *models.Product, state resolution.State, errMsg string) RecordResult {
	entry := &models.RunLog{
		RunID:     runID,
		ProductID: p.ID,
		Kind:      types.RunResolve,
		Status:    state.Status,
	}
	if errMsg != "" {
		entry.Error = &errMsg
	}
	if err := s.runLogs.Append(ctx, entry); err != nil {
		log.Printf("[Resolve] WARNING: failed to append run log for product %s: %v", p.ID, err)
	}

	return RecordResult{ProductID: p.ID, Code: sourceCode(p), Status: state.Status, Error: errMsg}
}

func sourceCode(p *models.Product) string {
	if p.SourceCode == nil {
		return ""
	}
	return *p.SourceCode
}

// upstreamErrorMessage renders a non-2xx catalog response for the stored
// last error, keeping the upstream status and body.
func upstreamErrorMessage(result *adapter.FetchResult) string {
	return apperrors.NewCatalogError(result.StatusCode, result.ErrorBody).Error()
}

// classifyCatalogFailure gives transport timeouts their own error code so
// the stored last error distinguishes them from generic catalog failures.
func classifyCatalogFailure(err error) error {
	if _, ok := apperrors.AsCategorized(err); ok {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return apperrors.NewCatalogTimeoutError()
	}
	return err
}
