package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/resale-scanner/internal/errors"
	"github.com/resale-scanner/internal/service"
	"github.com/resale-scanner/internal/types"
)

type fakeRunner struct {
	mu           sync.Mutex
	resolveCalls int
	enrichCalls  int
	resolveBatch int
	enrichBatch  int
	forced       bool
	err          error
}

func (f *fakeRunner) RunResolve(_ context.Context, opts service.RunOptions, defaultBatch int) (*service.RunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolveCalls++
	f.resolveBatch = defaultBatch
	f.forced = opts.Forced
	if f.err != nil {
		return nil, f.err
	}
	return &service.RunResult{RunID: "r", Kind: types.RunResolve}, nil
}

func (f *fakeRunner) RunEnrich(_ context.Context, opts service.RunOptions, defaultBatch int) (*service.RunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enrichCalls++
	f.enrichBatch = defaultBatch
	if f.err != nil {
		return nil, f.err
	}
	return &service.RunResult{RunID: "e", Kind: types.RunEnrich}, nil
}

func (f *fakeRunner) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolveCalls, f.enrichCalls
}

func TestPipelineWorkerRunsBothPhases(t *testing.T) {
	runner := &fakeRunner{}
	w, err := NewPipelineWorker(&PipelineWorkerConfig{
		Runner:       runner,
		Interval:     time.Hour, // only the immediate first tick fires
		ResolveBatch: 3,
		EnrichBatch:  2,
	})
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop(context.Background())

	assert.Eventually(t, func() bool {
		resolves, enriches := runner.counts()
		return resolves == 1 && enriches == 1
	}, time.Second, 10*time.Millisecond)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, 3, runner.resolveBatch)
	assert.Equal(t, 2, runner.enrichBatch)
	// Scheduled ticks never bypass the kill switch.
	assert.False(t, runner.forced)
}

func TestPipelineWorkerStop(t *testing.T) {
	runner := &fakeRunner{}
	w, err := NewPipelineWorker(&PipelineWorkerConfig{Runner: runner, Interval: 10 * time.Millisecond})
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	assert.True(t, w.IsRunning())

	require.NoError(t, w.Stop(context.Background()))
	assert.False(t, w.IsRunning())

	resolvesAfterStop, _ := runner.counts()
	time.Sleep(50 * time.Millisecond)
	resolvesLater, _ := runner.counts()
	assert.Equal(t, resolvesAfterStop, resolvesLater)
}

func TestPipelineWorkerRejectsDoubleStart(t *testing.T) {
	w, err := NewPipelineWorker(&PipelineWorkerConfig{Runner: &fakeRunner{}, Interval: time.Hour})
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop(context.Background())

	assert.Error(t, w.Start(context.Background()))
}

func TestPipelineWorkerSurvivesRunErrors(t *testing.T) {
	runner := &fakeRunner{err: apperrors.NewRunInProgressError("resolve")}
	w, err := NewPipelineWorker(&PipelineWorkerConfig{Runner: runner, Interval: 20 * time.Millisecond})
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop(context.Background())

	// Lease conflicts do not kill the loop; ticks keep coming.
	assert.Eventually(t, func() bool {
		resolves, _ := runner.counts()
		return resolves >= 2
	}, time.Second, 10*time.Millisecond)
}

func TestPipelineWorkerRequiresRunner(t *testing.T) {
	_, err := NewPipelineWorker(&PipelineWorkerConfig{})
	assert.Error(t, err)
}
