package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/resale-scanner/internal/adapter"
	"github.com/resale-scanner/internal/models"
	"github.com/resale-scanner/internal/profit"
	"github.com/resale-scanner/internal/storage"
)

// SnapshotWriter persists one enrichment observation: the immutable snapshot
// first, then the product-row cache. The snapshot is the authority; a cache
// write failure degrades reads but never fails the enrichment.
type SnapshotWriter struct {
	snapshots SnapshotStore
	products  ProductStore
}

// NewSnapshotWriter creates a snapshot writer
func NewSnapshotWriter(snapshots SnapshotStore, products ProductStore) *SnapshotWriter {
	return &SnapshotWriter{snapshots: snapshots, products: products}
}

// Write appends the snapshot and refreshes the cache. The returned error is
// only non-nil when the snapshot append itself failed.
func (w *SnapshotWriter) Write(ctx context.Context, p *models.Product, obs adapter.Observation, rawPayload []byte, result profit.Result, observedAt time.Time) error {
	snapshot := &models.EnrichmentSnapshot{
		ID:             uuid.NewString(),
		ProductID:      p.ID,
		MarketplaceID:  obs.MarketplaceID,
		ObservedAt:     observedAt,
		AmazonPrice:    obs.AmazonPrice,
		LowestNewPrice: obs.LowestNewPrice,
		UsedPrice:      obs.UsedPrice,
		BuyBoxPrice:    obs.BuyBoxPrice,
		SalesRank:      obs.SalesRank,
		RankDrops30:    obs.RankDrops30,
		RankDrops90:    obs.RankDrops90,
		OffersCount:    obs.OffersCount,
		AmazonIsSeller: obs.AmazonIsSeller,
		RawPayload:     rawPayload,
	}
	if obs.Title != "" {
		snapshot.Title = &obs.Title
	}
	if obs.Brand != "" {
		snapshot.Brand = &obs.Brand
	}
	if obs.Category != "" {
		snapshot.Category = &obs.Category
	}
	if obs.PackageWeight > 0 {
		snapshot.PackageWeight = &obs.PackageWeight
	}

	if err := w.snapshots.Insert(ctx, snapshot); err != nil {
		return err
	}

	cache := storage.EnrichmentCache{
		SellPrice:           sellPrice(obs),
		MarketplaceFee:      result.MarketplaceFee,
		ShippingCost:        result.ShippingCost,
		ProfitAmount:        result.ProfitAmount,
		ProfitRate:          result.ProfitRate,
		ROI:                 result.ROI,
		RecommendationScore: result.RecommendationScore,
		IsRecommended:       result.IsRecommended,
		EnrichedAt:          observedAt,
	}

	if err := w.products.UpdateEnrichmentCache(ctx, p.ID, cache); err != nil {
		log.Printf("[Snapshot] WARNING: cache update failed for product %s, snapshot %s stands: %v",
			p.ID, snapshot.ID, err)
	}

	return nil
}

// sellPrice picks the price the profit calculation sells at: the lowest new
// offer when available, then the Amazon price. The buy box is recorded on the
// snapshot but never drives the profit math.
func sellPrice(obs adapter.Observation) *int {
	if obs.LowestNewPrice != nil {
		return obs.LowestNewPrice
	}
	return obs.AmazonPrice
}
