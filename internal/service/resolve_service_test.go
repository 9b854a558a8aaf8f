package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resale-scanner/internal/adapter"
	"github.com/resale-scanner/internal/config"
	"github.com/resale-scanner/internal/models"
	"github.com/resale-scanner/internal/types"
)

func testPipelineConfig() config.PipelineConfig {
	return config.PipelineConfig{
		BatchSize:        1,
		FailureThreshold: 3,
		ShortCooldown:    30 * time.Minute,
		LongCooldown:     6 * time.Hour,
		ExclusionWindow:  5 * time.Minute,
		RefreshInterval:  6 * time.Hour,
	}
}

func unresolvedProduct(id string) *models.Product {
	return &models.Product{
		ID:         id,
		SourceCode: strPtr("4901301234567"),
		Name:       "ビオレ 泡ハンドソープ 500ml",
		Brand:      strPtr("花王"),
	}
}

func newTestResolveService(store *fakeProductStore, catalog *fakeCatalog, logs *fakeRunLogs) *ResolveService {
	svc := NewResolveService(store, catalog, logs, testPipelineConfig(), 5*time.Minute)
	svc.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	svc.sleep = func(context.Context, time.Duration) error { return nil }
	return svc
}

func foundResult(products ...adapter.Observation) *adapter.FetchResult {
	return &adapter.FetchResult{
		Outcome:    types.OutcomeFound,
		Products:   products,
		StatusCode: 200,
		RawPayload: []byte(`{"products":[]}`),
	}
}

func TestResolveSuccess(t *testing.T) {
	store := newFakeProductStore(unresolvedProduct("p1"))
	catalog := &fakeCatalog{lookupResults: []*adapter.FetchResult{
		foundResult(adapter.Observation{MarketplaceID: "B001", Title: "ビオレ 泡ハンドソープ 500ml", Brand: "花王"}),
	}}
	logs := &fakeRunLogs{}
	svc := newTestResolveService(store, catalog, logs)

	results, err := svc.ProcessBatch(context.Background(), "run-1", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, types.StatusSuccess, results[0].Status)
	assert.Equal(t, "4901301234567", results[0].Code)
	assert.Empty(t, results[0].Error)

	state := store.resolutions["p1"]
	assert.Equal(t, types.StatusSuccess, state.Status)
	assert.Equal(t, 0, state.FailureCount)
	assert.Nil(t, state.SkipUntil)
	assert.Equal(t, "B001", store.marketplaces["p1"])
	assert.NotEmpty(t, store.payloads["p1"])

	// The attempt was claimed before the catalog call.
	assert.Equal(t, []string{"p1"}, store.attempts)

	require.Len(t, logs.entries, 1)
	assert.Equal(t, types.RunResolve, logs.entries[0].Kind)
	assert.Equal(t, types.StatusSuccess, logs.entries[0].Status)
}

func TestResolvePicksBestCandidate(t *testing.T) {
	store := newFakeProductStore(unresolvedProduct("p1"))
	catalog := &fakeCatalog{lookupResults: []*adapter.FetchResult{
		foundResult(
			adapter.Observation{MarketplaceID: "B-WRONG", Title: "別商品 洗剤 1000g", Brand: "他社"},
			adapter.Observation{MarketplaceID: "B-RIGHT", Title: "ビオレ 泡ハンドソープ 500ml", Brand: "花王", Category: "ビューティー"},
		),
	}}
	svc := newTestResolveService(store, catalog, &fakeRunLogs{})

	_, err := svc.ProcessBatch(context.Background(), "run-1", 1)
	require.NoError(t, err)

	assert.Equal(t, "B-RIGHT", store.marketplaces["p1"])
}

func TestResolveNotFoundIsTerminal(t *testing.T) {
	store := newFakeProductStore(unresolvedProduct("p1"))
	catalog := &fakeCatalog{lookupResults: []*adapter.FetchResult{
		{Outcome: types.OutcomeNotFound, StatusCode: 200},
	}}
	svc := newTestResolveService(store, catalog, &fakeRunLogs{})

	results, err := svc.ProcessBatch(context.Background(), "run-1", 1)
	require.NoError(t, err)

	assert.Equal(t, types.StatusNotFound, results[0].Status)
	assert.True(t, store.resolutions["p1"].Status.Terminal())
	assert.Empty(t, store.marketplaces)
}

func TestResolveRateLimitRetriesOnce(t *testing.T) {
	store := newFakeProductStore(unresolvedProduct("p1"))
	catalog := &fakeCatalog{lookupResults: []*adapter.FetchResult{
		{Outcome: types.OutcomeRateLimited, RefillIn: 10 * time.Second, StatusCode: 429},
		foundResult(adapter.Observation{MarketplaceID: "B001", Title: "ビオレ 泡ハンドソープ 500ml", Brand: "花王"}),
	}}
	svc := newTestResolveService(store, catalog, &fakeRunLogs{})

	var slept time.Duration
	svc.sleep = func(_ context.Context, d time.Duration) error {
		slept = d
		return nil
	}

	results, err := svc.ProcessBatch(context.Background(), "run-1", 1)
	require.NoError(t, err)

	assert.Equal(t, types.StatusSuccess, results[0].Status)
	assert.Equal(t, 2, catalog.lookupCalls)
	assert.Equal(t, 10*time.Second, slept)
}

func TestResolveRateLimitWaitIsCapped(t *testing.T) {
	store := newFakeProductStore(unresolvedProduct("p1"))
	catalog := &fakeCatalog{lookupResults: []*adapter.FetchResult{
		{Outcome: types.OutcomeRateLimited, RefillIn: time.Hour, StatusCode: 429},
		foundResult(adapter.Observation{MarketplaceID: "B001"}),
	}}
	svc := newTestResolveService(store, catalog, &fakeRunLogs{})

	var slept time.Duration
	svc.sleep = func(_ context.Context, d time.Duration) error {
		slept = d
		return nil
	}

	_, err := svc.ProcessBatch(context.Background(), "run-1", 1)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, slept)
}

func TestResolveSecondRateLimitFails(t *testing.T) {
	store := newFakeProductStore(unresolvedProduct("p1"))
	catalog := &fakeCatalog{lookupResults: []*adapter.FetchResult{
		{Outcome: types.OutcomeRateLimited, RefillIn: time.Second, StatusCode: 429},
		{Outcome: types.OutcomeRateLimited, RefillIn: time.Second, StatusCode: 429},
	}}
	svc := newTestResolveService(store, catalog, &fakeRunLogs{})

	results, err := svc.ProcessBatch(context.Background(), "run-1", 1)
	require.NoError(t, err)

	assert.Equal(t, types.StatusAPIError, results[0].Status)
	assert.Contains(t, results[0].Error, "CATALOG_RATE_LIMIT")
	assert.Equal(t, 2, catalog.lookupCalls)
	assert.Equal(t, 1, store.resolutions["p1"].FailureCount)
	assert.NotNil(t, store.resolutions["p1"].SkipUntil)
}

func TestResolveClassifiesTimeout(t *testing.T) {
	store := newFakeProductStore(unresolvedProduct("p1"))
	catalog := &fakeCatalog{lookupErr: context.DeadlineExceeded}
	svc := newTestResolveService(store, catalog, &fakeRunLogs{})

	results, err := svc.ProcessBatch(context.Background(), "run-1", 1)
	require.NoError(t, err)

	assert.Equal(t, types.StatusAPIError, results[0].Status)
	assert.Contains(t, results[0].Error, "CATALOG_TIMEOUT")
}

func TestResolveFailureEscalatesAtThreshold(t *testing.T) {
	p := unresolvedProduct("p1")
	p.FailureCount = 2
	store := newFakeProductStore(p)
	catalog := &fakeCatalog{lookupResults: []*adapter.FetchResult{
		{Outcome: types.OutcomeAPIError, StatusCode: 500, ErrorBody: "internal error"},
	}}
	svc := newTestResolveService(store, catalog, &fakeRunLogs{})

	results, err := svc.ProcessBatch(context.Background(), "run-1", 1)
	require.NoError(t, err)

	assert.Equal(t, types.StatusManualReview, results[0].Status)
	assert.Equal(t, 3, store.resolutions["p1"].FailureCount)
	assert.Contains(t, results[0].Error, "internal error")
}

func TestResolveRecordFailureDoesNotAbortBatch(t *testing.T) {
	store := newFakeProductStore(unresolvedProduct("p1"), unresolvedProduct("p2"))
	catalog := &fakeCatalog{lookupResults: []*adapter.FetchResult{
		{Outcome: types.OutcomeAPIError, StatusCode: 500, ErrorBody: "boom"},
		foundResult(adapter.Observation{MarketplaceID: "B002"}),
	}}
	svc := newTestResolveService(store, catalog, &fakeRunLogs{})

	results, err := svc.ProcessBatch(context.Background(), "run-1", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, types.StatusAPIError, results[0].Status)
	assert.Contains(t, results[0].Error, "catalog API error (500): boom")
	assert.Equal(t, types.StatusSuccess, results[1].Status)
}

func TestResolveSelectionFailureAborts(t *testing.T) {
	store := newFakeProductStore()
	store.selectErr = assert.AnError
	svc := newTestResolveService(store, &fakeCatalog{}, &fakeRunLogs{})

	_, err := svc.ProcessBatch(context.Background(), "run-1", 1)
	assert.Error(t, err)
}

func TestResolveStorageTimeoutKeepsRecordAlive(t *testing.T) {
	store := newFakeProductStore(unresolvedProduct("p1"))
	store.updateResErr = context.DeadlineExceeded
	catalog := &fakeCatalog{lookupResults: []*adapter.FetchResult{
		foundResult(adapter.Observation{MarketplaceID: "B001"}),
	}}
	svc := newTestResolveService(store, catalog, &fakeRunLogs{})

	results, err := svc.ProcessBatch(context.Background(), "run-1", 1)
	require.NoError(t, err)

	// The write never landed, so the reported state is the in-process
	// timeout, not success.
	assert.Equal(t, types.StatusTimeout, results[0].Status)
	assert.Empty(t, store.resolutions)
}
