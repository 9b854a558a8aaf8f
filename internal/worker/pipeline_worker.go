// Package worker runs the scheduled resolve and enrich cycles.
package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	apperrors "github.com/resale-scanner/internal/errors"
	"github.com/resale-scanner/internal/service"
)

// Runner is the run-triggering surface the worker drives.
type Runner interface {
	RunResolve(ctx context.Context, opts service.RunOptions, defaultBatch int) (*service.RunResult, error)
	RunEnrich(ctx context.Context, opts service.RunOptions, defaultBatch int) (*service.RunResult, error)
}

// PipelineWorker triggers resolve and enrich runs on a fixed interval. Each
// tick is a scheduled (non-forced) run, so the kill switch and the run lease
// both apply.
type PipelineWorker struct {
	runner       Runner
	interval     time.Duration
	resolveBatch int
	enrichBatch  int

	running bool
	mu      sync.Mutex
	stopCh  chan struct{}
	doneCh  chan struct{}

	lastTick time.Time
}

// PipelineWorkerConfig holds configuration for the pipeline worker
type PipelineWorkerConfig struct {
	Runner       Runner
	Interval     time.Duration
	ResolveBatch int
	EnrichBatch  int
}

// NewPipelineWorker creates a pipeline worker
func NewPipelineWorker(cfg *PipelineWorkerConfig) (*PipelineWorker, error) {
	if cfg.Runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}

	interval := cfg.Interval
	if interval == 0 {
		interval = time.Minute
	}

	resolveBatch := cfg.ResolveBatch
	if resolveBatch <= 0 {
		resolveBatch = 1
	}
	enrichBatch := cfg.EnrichBatch
	if enrichBatch <= 0 {
		enrichBatch = 1
	}

	return &PipelineWorker{
		runner:       cfg.Runner,
		interval:     interval,
		resolveBatch: resolveBatch,
		enrichBatch:  enrichBatch,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}, nil
}

// Start begins the worker loop
func (w *PipelineWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("pipeline worker is already running")
	}
	w.running = true
	w.mu.Unlock()

	log.Printf("[PipelineWorker] Starting with interval %v (resolve batch %d, enrich batch %d)",
		w.interval, w.resolveBatch, w.enrichBatch)

	go w.loop(ctx)

	return nil
}

// Stop gracefully stops the worker, waiting for an in-flight tick to finish
func (w *PipelineWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return fmt.Errorf("pipeline worker is not running")
	}
	w.mu.Unlock()

	log.Printf("[PipelineWorker] Stopping")
	close(w.stopCh)

	select {
	case <-w.doneCh:
		log.Printf("[PipelineWorker] Stopped gracefully")
	case <-ctx.Done():
		log.Printf("[PipelineWorker] Stop timed out")
		return ctx.Err()
	case <-time.After(30 * time.Second):
		return fmt.Errorf("stop timeout")
	}

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	return nil
}

// IsRunning reports whether the worker loop is active
func (w *PipelineWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *PipelineWorker) loop(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// First tick immediately so a fresh deploy starts working without
	// waiting a full interval.
	w.tick(ctx)

	for {
		select {
		case <-ticker.C:
			w.tick(ctx)
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *PipelineWorker) tick(ctx context.Context) {
	w.mu.Lock()
	w.lastTick = time.Now()
	w.mu.Unlock()

	if _, err := w.runner.RunResolve(ctx, service.RunOptions{}, w.resolveBatch); err != nil {
		w.logRunError("resolve", err)
	}

	if _, err := w.runner.RunEnrich(ctx, service.RunOptions{}, w.enrichBatch); err != nil {
		w.logRunError("enrich", err)
	}
}

// logRunError downgrades an already-running lease conflict to a debug-level
// note; anything else is a real failure.
func (w *PipelineWorker) logRunError(kind string, err error) {
	if ce, ok := apperrors.AsCategorized(err); ok && ce.Code == "RUN_IN_PROGRESS" {
		log.Printf("[PipelineWorker] Skipping %s tick, previous run still holds the lease", kind)
		return
	}
	log.Printf("[PipelineWorker] ERROR: %s run failed: %v", kind, err)
}
