package models

import "time"

// EnrichmentSnapshot represents one immutable capture of catalog data for a
// record. Snapshots are append-only: created once per successful fetch, never
// mutated, never deleted by the pipeline. The raw payload is retained as an
// opaque blob for audit and replay.
type EnrichmentSnapshot struct {
	ID             string     `json:"id" db:"id"`
	ProductID      string     `json:"productId" db:"product_id"`
	MarketplaceID  string     `json:"marketplaceId" db:"marketplace_id"`
	ObservedAt     time.Time  `json:"observedAt" db:"observed_at"`
	AmazonPrice    *int       `json:"amazonPrice,omitempty" db:"amazon_price"`
	LowestNewPrice *int       `json:"lowestNewPrice,omitempty" db:"lowest_new_price"`
	UsedPrice      *int       `json:"usedPrice,omitempty" db:"used_price"`
	BuyBoxPrice    *int       `json:"buyBoxPrice,omitempty" db:"buy_box_price"`
	SalesRank      *int       `json:"salesRank,omitempty" db:"sales_rank"`
	RankDrops30    int        `json:"rankDrops30" db:"rank_drops_30"`
	RankDrops90    int        `json:"rankDrops90" db:"rank_drops_90"`
	OffersCount    int        `json:"offersCount" db:"offers_count"`
	AmazonIsSeller bool       `json:"amazonIsSeller" db:"amazon_is_seller"`
	Title          *string    `json:"title,omitempty" db:"title"`
	Brand          *string    `json:"brand,omitempty" db:"brand"`
	Category       *string    `json:"category,omitempty" db:"category"`
	PackageWeight  *int       `json:"packageWeight,omitempty" db:"package_weight"`
	RawPayload     []byte     `json:"-" db:"raw_payload"`
}
