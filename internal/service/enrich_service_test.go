package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resale-scanner/internal/adapter"
	"github.com/resale-scanner/internal/models"
	"github.com/resale-scanner/internal/types"
)

func resolvedProduct(id string) *models.Product {
	status := types.StatusSuccess
	return &models.Product{
		ID:            id,
		SourceCode:    strPtr("4901301234567"),
		MarketplaceID: strPtr("B001"),
		Name:          "ビオレ 泡ハンドソープ 500ml",
		Brand:         strPtr("花王"),
		PurchaseCost:  1000,
		Status:        &status,
	}
}

func enrichObservation() adapter.Observation {
	return adapter.Observation{
		MarketplaceID:  "B001",
		Title:          "ビオレ 泡ハンドソープ 500ml",
		Brand:          "花王",
		Category:       "ビューティー",
		AmazonPrice:    intPtr(3100),
		LowestNewPrice: intPtr(3000),
		BuyBoxPrice:    intPtr(3200),
		SalesRank:      intPtr(8000),
		OffersCount:    3,
		PackageWeight:  550,
		RankDrops30:    12,
		RankDrops90:    40,
		AmazonIsSeller: true,
	}
}

func newTestEnrichService(store *fakeProductStore, catalog *fakeCatalog, snapshots *fakeSnapshots, logs *fakeRunLogs, settings *fakeSettings) *EnrichService {
	writer := NewSnapshotWriter(snapshots, store)
	svc := NewEnrichService(store, catalog, writer, logs, settings, testPipelineConfig())
	svc.now = func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestEnrichSuccessWritesSnapshotAndCache(t *testing.T) {
	store := newFakeProductStore(resolvedProduct("p1"))
	catalog := &fakeCatalog{fetchResults: []*adapter.FetchResult{{
		Outcome:    types.OutcomeFound,
		Products:   []adapter.Observation{enrichObservation()},
		StatusCode: 200,
		RawPayload: []byte(`{"products":[{}]}`),
	}}}
	snapshots := &fakeSnapshots{}
	logs := &fakeRunLogs{}
	svc := newTestEnrichService(store, catalog, snapshots, logs, newFakeSettings())

	results, err := svc.ProcessBatch(context.Background(), "run-1", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, types.StatusSuccess, results[0].Status)

	// Snapshot captured the observation.
	require.Len(t, snapshots.snapshots, 1)
	snap := snapshots.snapshots[0]
	assert.Equal(t, "p1", snap.ProductID)
	assert.Equal(t, "B001", snap.MarketplaceID)
	require.NotNil(t, snap.BuyBoxPrice)
	assert.Equal(t, 3200, *snap.BuyBoxPrice)
	assert.Equal(t, 12, snap.RankDrops30)
	assert.NotEmpty(t, snap.RawPayload)

	// Cache reflects the profit computation at the lowest new price: 3000
	// sell, 1000 cost, 8% beauty fee (240) + 318 surcharge, 500 shipping.
	cache, ok := store.caches["p1"]
	require.True(t, ok)
	require.NotNil(t, cache.SellPrice)
	assert.Equal(t, 3000, *cache.SellPrice)
	assert.Equal(t, 558, cache.MarketplaceFee)
	assert.Equal(t, 942, cache.ProfitAmount)
	assert.True(t, cache.IsRecommended)

	require.Len(t, logs.entries, 1)
	assert.Equal(t, types.RunEnrich, logs.entries[0].Kind)
}

func TestEnrichSellPricePriority(t *testing.T) {
	t.Run("lowest new wins over buy box and amazon", func(t *testing.T) {
		obs := enrichObservation()
		obs.LowestNewPrice = intPtr(2000)
		obs.BuyBoxPrice = intPtr(3000)
		obs.AmazonPrice = intPtr(2500)

		store := newFakeProductStore(resolvedProduct("p1"))
		catalog := &fakeCatalog{fetchResults: []*adapter.FetchResult{{
			Outcome:  types.OutcomeFound,
			Products: []adapter.Observation{obs},
		}}}
		svc := newTestEnrichService(store, catalog, &fakeSnapshots{}, &fakeRunLogs{}, newFakeSettings())

		_, err := svc.ProcessBatch(context.Background(), "run-1", 1)
		require.NoError(t, err)

		cache := store.caches["p1"]
		require.NotNil(t, cache.SellPrice)
		assert.Equal(t, 2000, *cache.SellPrice)
		// round(2000*0.08+318) = 478; 2000-1000-478-500 = 22.
		assert.Equal(t, 478, cache.MarketplaceFee)
		assert.Equal(t, 22, cache.ProfitAmount)
	})

	t.Run("amazon price backs up a missing lowest new", func(t *testing.T) {
		obs := enrichObservation()
		obs.LowestNewPrice = nil
		obs.BuyBoxPrice = intPtr(3000)
		obs.AmazonPrice = intPtr(2500)

		store := newFakeProductStore(resolvedProduct("p1"))
		catalog := &fakeCatalog{fetchResults: []*adapter.FetchResult{{
			Outcome:  types.OutcomeFound,
			Products: []adapter.Observation{obs},
		}}}
		svc := newTestEnrichService(store, catalog, &fakeSnapshots{}, &fakeRunLogs{}, newFakeSettings())

		_, err := svc.ProcessBatch(context.Background(), "run-1", 1)
		require.NoError(t, err)

		cache := store.caches["p1"]
		require.NotNil(t, cache.SellPrice)
		assert.Equal(t, 2500, *cache.SellPrice)
	})
}

func TestEnrichUpdateIntervalSetting(t *testing.T) {
	newService := func(settings *fakeSettings) (*EnrichService, *fakeProductStore) {
		store := newFakeProductStore(resolvedProduct("p1"))
		catalog := &fakeCatalog{fetchResults: []*adapter.FetchResult{{
			Outcome:  types.OutcomeFound,
			Products: []adapter.Observation{enrichObservation()},
		}}}
		return newTestEnrichService(store, catalog, &fakeSnapshots{}, &fakeRunLogs{}, settings), store
	}

	t.Run("stored interval drives selection", func(t *testing.T) {
		settings := newFakeSettings()
		settings.interval = 12 * time.Hour
		svc, store := newService(settings)

		_, err := svc.ProcessBatch(context.Background(), "run-1", 1)
		require.NoError(t, err)
		assert.Equal(t, 12*time.Hour, store.enrichRefresh)
	})

	t.Run("unset interval falls back to the configured default", func(t *testing.T) {
		svc, store := newService(newFakeSettings())

		_, err := svc.ProcessBatch(context.Background(), "run-1", 1)
		require.NoError(t, err)
		assert.Equal(t, testPipelineConfig().RefreshInterval, store.enrichRefresh)
	})

	t.Run("settings failure falls back to the configured default", func(t *testing.T) {
		settings := newFakeSettings()
		settings.intervalErr = assert.AnError
		svc, store := newService(settings)

		_, err := svc.ProcessBatch(context.Background(), "run-1", 1)
		require.NoError(t, err)
		assert.Equal(t, testPipelineConfig().RefreshInterval, store.enrichRefresh)
	})
}

func TestEnrichRateLimitDefers(t *testing.T) {
	p := resolvedProduct("p1")
	p.FailureCount = 1
	store := newFakeProductStore(p)
	catalog := &fakeCatalog{fetchResults: []*adapter.FetchResult{{
		Outcome:  types.OutcomeRateLimited,
		RefillIn: 30 * time.Second,
	}}}
	svc := newTestEnrichService(store, catalog, &fakeSnapshots{}, &fakeRunLogs{}, newFakeSettings())

	results, err := svc.ProcessBatch(context.Background(), "run-1", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.True(t, results[0].Deferred)
	assert.Empty(t, results[0].Error)
	// No state transition, no retry, failure count untouched.
	assert.Empty(t, store.resolutions)
	assert.Equal(t, 1, catalog.fetchCalls)
}

func TestEnrichSnapshotFailureIsFatalForRecord(t *testing.T) {
	store := newFakeProductStore(resolvedProduct("p1"))
	catalog := &fakeCatalog{fetchResults: []*adapter.FetchResult{{
		Outcome:  types.OutcomeFound,
		Products: []adapter.Observation{enrichObservation()},
	}}}
	snapshots := &fakeSnapshots{err: assert.AnError}
	svc := newTestEnrichService(store, catalog, snapshots, &fakeRunLogs{}, newFakeSettings())

	results, err := svc.ProcessBatch(context.Background(), "run-1", 1)
	require.NoError(t, err)

	assert.Equal(t, types.StatusAPIError, results[0].Status)
	assert.Contains(t, results[0].Error, "snapshot write failed")
	// Cache was never touched without its snapshot.
	assert.Empty(t, store.caches)
}

func TestEnrichCacheFailureIsNonFatal(t *testing.T) {
	store := newFakeProductStore(resolvedProduct("p1"))
	store.updateCacheErr = assert.AnError
	catalog := &fakeCatalog{fetchResults: []*adapter.FetchResult{{
		Outcome:  types.OutcomeFound,
		Products: []adapter.Observation{enrichObservation()},
	}}}
	snapshots := &fakeSnapshots{}
	svc := newTestEnrichService(store, catalog, snapshots, &fakeRunLogs{}, newFakeSettings())

	results, err := svc.ProcessBatch(context.Background(), "run-1", 1)
	require.NoError(t, err)

	// The snapshot is authoritative; the record still succeeds.
	assert.Equal(t, types.StatusSuccess, results[0].Status)
	assert.Empty(t, results[0].Error)
	assert.Len(t, snapshots.snapshots, 1)
}

func TestEnrichListingGoneBecomesNotFound(t *testing.T) {
	store := newFakeProductStore(resolvedProduct("p1"))
	catalog := &fakeCatalog{fetchResults: []*adapter.FetchResult{{
		Outcome:    types.OutcomeNotFound,
		StatusCode: 200,
	}}}
	svc := newTestEnrichService(store, catalog, &fakeSnapshots{}, &fakeRunLogs{}, newFakeSettings())

	results, err := svc.ProcessBatch(context.Background(), "run-1", 1)
	require.NoError(t, err)

	assert.Equal(t, types.StatusNotFound, results[0].Status)
}

func TestEnrichPolicyThresholdGatesRecommendation(t *testing.T) {
	store := newFakeProductStore(resolvedProduct("p1"))
	catalog := &fakeCatalog{fetchResults: []*adapter.FetchResult{{
		Outcome:  types.OutcomeFound,
		Products: []adapter.Observation{enrichObservation()},
	}}}
	settings := newFakeSettings()
	settings.policy.MinProfitRate = 95 // above the 94.2% this scenario yields
	svc := newTestEnrichService(store, catalog, &fakeSnapshots{}, &fakeRunLogs{}, settings)

	_, err := svc.ProcessBatch(context.Background(), "run-1", 1)
	require.NoError(t, err)

	cache := store.caches["p1"]
	assert.False(t, cache.IsRecommended)
}
