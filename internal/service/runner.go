package service

import (
	"context"
	"log"

	"github.com/google/uuid"

	apperrors "github.com/resale-scanner/internal/errors"
	"github.com/resale-scanner/internal/types"
)

// Runner coordinates whole pipeline runs: the kill switch, the cross-process
// run lease, and the batch services.
type Runner struct {
	resolve  *ResolveService
	enrich   *EnrichService
	settings SettingsStore
	lease    LeaseStore
}

// NewRunner creates a runner
func NewRunner(resolve *ResolveService, enrich *EnrichService, settings SettingsStore, lease LeaseStore) *Runner {
	return &Runner{
		resolve:  resolve,
		enrich:   enrich,
		settings: settings,
		lease:    lease,
	}
}

// RunOptions controls one run invocation.
type RunOptions struct {
	// BatchSize overrides the configured batch size when positive.
	BatchSize int
	// Forced bypasses the auto-update kill switch. Manual API runs are
	// forced; scheduled runs are not.
	Forced bool
}

// RunResolve executes one resolve run.
func (r *Runner) RunResolve(ctx context.Context, opts RunOptions, defaultBatch int) (*RunResult, error) {
	return r.run(ctx, types.RunResolve, opts, defaultBatch, func(ctx context.Context, runID string, limit int) ([]RecordResult, error) {
		return r.resolve.ProcessBatch(ctx, runID, limit)
	})
}

// RunEnrich executes one enrich run.
func (r *Runner) RunEnrich(ctx context.Context, opts RunOptions, defaultBatch int) (*RunResult, error) {
	return r.run(ctx, types.RunEnrich, opts, defaultBatch, func(ctx context.Context, runID string, limit int) ([]RecordResult, error) {
		return r.enrich.ProcessBatch(ctx, runID, limit)
	})
}

func (r *Runner) run(ctx context.Context, kind types.RunKind, opts RunOptions, defaultBatch int, batch func(context.Context, string, int) ([]RecordResult, error)) (*RunResult, error) {
	if !opts.Forced {
		enabled, err := r.settings.AutoUpdateEnabled(ctx)
		if err != nil {
			return nil, apperrors.NewInternalError("failed to read auto-update setting", err)
		}
		if !enabled {
			log.Printf("[Runner] Auto-update disabled, skipping %s run", kind)
			return &RunResult{RunID: "", Kind: kind}, nil
		}
	}

	runID := uuid.NewString()

	acquired, err := r.lease.Acquire(ctx, string(kind), runID)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to acquire run lease", err)
	}
	if !acquired {
		holder, holderErr := r.lease.Holder(ctx, string(kind))
		if holderErr != nil {
			log.Printf("[Runner] WARNING: failed to read %s lease holder: %v", kind, holderErr)
		} else if holder != "" {
			log.Printf("[Runner] %s run already in progress, held by run %s", kind, holder)
		}
		return nil, apperrors.NewRunInProgressError(string(kind))
	}
	defer func() {
		if err := r.lease.Release(context.WithoutCancel(ctx), string(kind), runID); err != nil {
			log.Printf("[Runner] WARNING: failed to release %s lease: %v", kind, err)
		}
	}()

	limit := defaultBatch
	if opts.BatchSize > 0 {
		limit = opts.BatchSize
	}

	log.Printf("[Runner] Starting %s run %s (batch %d)", kind, runID, limit)

	results, err := batch(ctx, runID, limit)
	if err != nil {
		return nil, err
	}

	summary := &RunResult{RunID: runID, Kind: kind, Results: results}
	for _, res := range results {
		summary.Total++
		switch {
		case res.Deferred:
			summary.Deferred++
		case res.Error != "" || res.Status == types.StatusNotFound:
			// A terminal not_found carries no error message but the
			// record was not updated, so it counts as a failure.
			summary.Failed++
		default:
			summary.Updated++
		}
	}

	log.Printf("[Runner] Finished %s run %s: total=%d updated=%d failed=%d deferred=%d",
		kind, runID, summary.Total, summary.Updated, summary.Failed, summary.Deferred)

	return summary, nil
}
