package service

import (
	"context"
	"errors"
	"time"

	"github.com/resale-scanner/internal/adapter"
	"github.com/resale-scanner/internal/models"
	"github.com/resale-scanner/internal/profit"
	"github.com/resale-scanner/internal/resolution"
	"github.com/resale-scanner/internal/storage"
)

// fakeProductStore keeps products in memory and records state writes.
type fakeProductStore struct {
	products []*models.Product

	selectErr     error
	markErr       error
	updateResErr  error
	updateCacheErr error

	attempts     []string
	resolutions  map[string]resolution.State
	marketplaces map[string]string
	payloads     map[string][]byte
	caches       map[string]storage.EnrichmentCache

	enrichRefresh time.Duration
}

func newFakeProductStore(products ...*models.Product) *fakeProductStore {
	return &fakeProductStore{
		products:     products,
		resolutions:  make(map[string]resolution.State),
		marketplaces: make(map[string]string),
		payloads:     make(map[string][]byte),
		caches:       make(map[string]storage.EnrichmentCache),
	}
}

func (f *fakeProductStore) SelectForResolve(_ context.Context, limit int, _ time.Duration, _ time.Time) ([]*models.Product, error) {
	if f.selectErr != nil {
		return nil, f.selectErr
	}
	if len(f.products) > limit {
		return f.products[:limit], nil
	}
	return f.products, nil
}

func (f *fakeProductStore) SelectForEnrich(_ context.Context, limit int, refreshInterval, _ time.Duration, _ time.Time) ([]*models.Product, error) {
	f.enrichRefresh = refreshInterval
	return f.SelectForResolve(context.Background(), limit, 0, time.Time{})
}

func (f *fakeProductStore) MarkAttempt(_ context.Context, id string, _ time.Time) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.attempts = append(f.attempts, id)
	return nil
}

func (f *fakeProductStore) UpdateResolution(_ context.Context, id string, state resolution.State, marketplaceID *string, payload []byte) error {
	if f.updateResErr != nil {
		return f.updateResErr
	}
	f.resolutions[id] = state
	if marketplaceID != nil {
		f.marketplaces[id] = *marketplaceID
	}
	if payload != nil {
		f.payloads[id] = payload
	}
	return nil
}

func (f *fakeProductStore) UpdateEnrichmentCache(_ context.Context, id string, cache storage.EnrichmentCache) error {
	if f.updateCacheErr != nil {
		return f.updateCacheErr
	}
	f.caches[id] = cache
	return nil
}

// fakeCatalog replays scripted results per call.
type fakeCatalog struct {
	lookupResults []*adapter.FetchResult
	lookupErr     error
	lookupCalls   int

	fetchResults []*adapter.FetchResult
	fetchErr     error
	fetchCalls   int
}

func (f *fakeCatalog) LookupByCode(_ context.Context, _ string) (*adapter.FetchResult, error) {
	f.lookupCalls++
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	if len(f.lookupResults) == 0 {
		return nil, errors.New("no scripted lookup result")
	}
	result := f.lookupResults[0]
	if len(f.lookupResults) > 1 {
		f.lookupResults = f.lookupResults[1:]
	}
	return result, nil
}

func (f *fakeCatalog) FetchByID(_ context.Context, _ string) (*adapter.FetchResult, error) {
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if len(f.fetchResults) == 0 {
		return nil, errors.New("no scripted fetch result")
	}
	result := f.fetchResults[0]
	if len(f.fetchResults) > 1 {
		f.fetchResults = f.fetchResults[1:]
	}
	return result, nil
}

// fakeRunLogs collects appended entries.
type fakeRunLogs struct {
	entries []*models.RunLog
	err     error
}

func (f *fakeRunLogs) Append(_ context.Context, entry *models.RunLog) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, entry)
	return nil
}

// fakeSnapshots collects inserted snapshots.
type fakeSnapshots struct {
	snapshots []*models.EnrichmentSnapshot
	err       error
}

func (f *fakeSnapshots) Insert(_ context.Context, s *models.EnrichmentSnapshot) error {
	if f.err != nil {
		return f.err
	}
	f.snapshots = append(f.snapshots, s)
	return nil
}

// fakeSettings serves a fixed policy and kill switch value.
type fakeSettings struct {
	enabled     bool
	policy      profit.Policy
	policyErr   error
	interval    time.Duration
	intervalErr error
}

func newFakeSettings() *fakeSettings {
	return &fakeSettings{enabled: true, policy: profit.DefaultPolicy()}
}

func (f *fakeSettings) AutoUpdateEnabled(_ context.Context) (bool, error) {
	return f.enabled, nil
}

func (f *fakeSettings) UpdateInterval(_ context.Context) (time.Duration, error) {
	if f.intervalErr != nil {
		return 0, f.intervalErr
	}
	return f.interval, nil
}

func (f *fakeSettings) LoadPolicy(_ context.Context) (profit.Policy, error) {
	if f.policyErr != nil {
		return profit.DefaultPolicy(), f.policyErr
	}
	return f.policy, nil
}

// fakeLease grants or denies the run lease.
type fakeLease struct {
	denied      bool
	holder      string
	holderReads int
	acquired    []string
	released    []string
}

func (f *fakeLease) Acquire(_ context.Context, kind, runID string) (bool, error) {
	if f.denied {
		return false, nil
	}
	f.acquired = append(f.acquired, kind)
	return true, nil
}

func (f *fakeLease) Release(_ context.Context, kind, _ string) error {
	f.released = append(f.released, kind)
	return nil
}

func (f *fakeLease) Holder(_ context.Context, _ string) (string, error) {
	f.holderReads++
	return f.holder, nil
}

func strPtr(s string) *string { return &s }
func intPtr(v int) *int       { return &v }
