package models

import (
	"time"

	"github.com/resale-scanner/internal/types"
)

// Product represents one tracked source record together with its resolution
// state and cached profitability fields. The resolution fields form the
// per-record job control block; the profit fields are a cache recomputed on
// every successful enrichment, with the snapshot store as the authority.
type Product struct {
	ID            string  `json:"id" db:"id"`
	SourceCode    *string `json:"sourceCode,omitempty" db:"source_code"`
	MarketplaceID *string `json:"marketplaceId,omitempty" db:"marketplace_id"`
	Name          string  `json:"name" db:"name"`
	Brand         *string `json:"brand,omitempty" db:"brand"`
	Category      *string `json:"category,omitempty" db:"category"`
	PurchaseCost  int     `json:"purchaseCost" db:"purchase_cost"`

	// Resolution job state (1:1 with the record)
	Status        *types.ResolutionStatus `json:"status,omitempty" db:"status"`
	FailureCount  int                     `json:"failureCount" db:"failure_count"`
	LastError     *string                 `json:"lastError,omitempty" db:"last_error"`
	LastAttemptAt *time.Time              `json:"lastAttemptAt,omitempty" db:"last_attempt_at"`
	SkipUntil     *time.Time              `json:"skipUntil,omitempty" db:"skip_until"`

	// Raw lookup payload stored on resolve success (audit/replay)
	ResolvePayload []byte `json:"-" db:"resolve_payload"`

	// Enrichment cache
	EnrichedAt          *time.Time `json:"enrichedAt,omitempty" db:"enriched_at"`
	SellPrice           *int       `json:"sellPrice,omitempty" db:"sell_price"`
	MarketplaceFee      *int       `json:"marketplaceFee,omitempty" db:"marketplace_fee"`
	ShippingCost        *int       `json:"shippingCost,omitempty" db:"shipping_cost"`
	ProfitAmount        *int       `json:"profitAmount,omitempty" db:"profit_amount"`
	ProfitRate          *float64   `json:"profitRate,omitempty" db:"profit_rate"`
	ROI                 *float64   `json:"roi,omitempty" db:"roi"`
	RecommendationScore *int       `json:"recommendationScore,omitempty" db:"recommendation_score"`
	IsRecommended       bool       `json:"isRecommended" db:"is_recommended"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// StatusOrPending returns the effective status, treating an unset status as
// pending for selection and transition purposes.
func (p *Product) StatusOrPending() types.ResolutionStatus {
	if p.Status == nil {
		return types.StatusPending
	}
	return *p.Status
}
