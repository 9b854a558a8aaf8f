package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/resale-scanner/internal/errors"
	"github.com/resale-scanner/internal/models"
	"github.com/resale-scanner/internal/resolution"
	"github.com/resale-scanner/internal/types"
)

// ProductRepository handles product persistence, including the two selection
// queries that feed the pipeline.
type ProductRepository struct {
	db *PostgresDB
}

// NewProductRepository creates a new product repository
func NewProductRepository(db *PostgresDB) *ProductRepository {
	return &ProductRepository{db: db}
}

const productColumns = `
	id, source_code, marketplace_id, name, brand, category, purchase_cost,
	status, failure_count, last_error, last_attempt_at, skip_until,
	resolve_payload, enriched_at, sell_price, marketplace_fee, shipping_cost,
	profit_amount, profit_rate, roi, recommendation_score, is_recommended,
	created_at, updated_at
`

// Create inserts a new product record
func (r *ProductRepository) Create(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products (
			id, source_code, marketplace_id, name, brand, category, purchase_cost,
			status, failure_count, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
	`

	_, err := r.db.Pool().Exec(ctx, query,
		p.ID,
		p.SourceCode,
		p.MarketplaceID,
		p.Name,
		p.Brand,
		p.Category,
		p.PurchaseCost,
		p.Status,
		p.FailureCount,
	)
	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}

	return nil
}

// GetByID retrieves a product by ID
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	row := r.db.Pool().QueryRow(ctx, query, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewRecordNotFoundError(id)
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	return p, nil
}

// SelectForResolve picks up to limit records eligible for code resolution:
// no marketplace id yet, a source code present, and a status that permits
// another attempt. Records inside a cooldown or attempted within the
// exclusion window are passed over. Oldest attempts come back first, with
// never-attempted records ahead of everything.
func (r *ProductRepository) SelectForResolve(ctx context.Context, limit int, exclusionWindow time.Duration, now time.Time) ([]*models.Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE marketplace_id IS NULL
		  AND source_code IS NOT NULL
		  AND (status IS NULL OR status = ANY($1))
		  AND (skip_until IS NULL OR skip_until <= $2)
		  AND (last_attempt_at IS NULL OR last_attempt_at <= $3)
		ORDER BY last_attempt_at ASC NULLS FIRST
		LIMIT $4
	`

	retryable := []string{
		string(types.StatusPending),
		string(types.StatusAPIError),
		string(types.StatusTimeout),
		string(types.StatusManualReview),
	}

	rows, err := r.db.Pool().Query(ctx, query,
		retryable, now, now.Add(-exclusionWindow), limit)
	if err != nil {
		return nil, apperrors.NewSelectionError(err)
	}
	defer rows.Close()

	return scanProducts(rows)
}

// SelectForEnrich picks up to limit resolved records whose enrichment cache
// is older than the refresh interval. Recommended records refresh first,
// then the stalest.
func (r *ProductRepository) SelectForEnrich(ctx context.Context, limit int, refreshInterval, exclusionWindow time.Duration, now time.Time) ([]*models.Product, error) {
	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE marketplace_id IS NOT NULL
		  AND status = $1
		  AND (enriched_at IS NULL OR enriched_at <= $2)
		  AND (skip_until IS NULL OR skip_until <= $3)
		  AND (last_attempt_at IS NULL OR last_attempt_at <= $4)
		ORDER BY is_recommended DESC, enriched_at ASC NULLS FIRST
		LIMIT $5
	`

	rows, err := r.db.Pool().Query(ctx, query,
		string(types.StatusSuccess),
		now.Add(-refreshInterval),
		now,
		now.Add(-exclusionWindow),
		limit,
	)
	if err != nil {
		return nil, apperrors.NewSelectionError(err)
	}
	defer rows.Close()

	return scanProducts(rows)
}

// MarkAttempt stamps last_attempt_at, claiming the record for the exclusion
// window before the upstream call is made.
func (r *ProductRepository) MarkAttempt(ctx context.Context, id string, now time.Time) error {
	query := `UPDATE products SET last_attempt_at = $2, updated_at = NOW() WHERE id = $1`

	result, err := r.db.Pool().Exec(ctx, query, id, now)
	if err != nil {
		return fmt.Errorf("failed to mark attempt: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.NewRecordNotFoundError(id)
	}

	return nil
}

// UpdateResolution writes the post-transition resolution state. A successful
// resolve additionally stores the marketplace id and the raw lookup payload.
func (r *ProductRepository) UpdateResolution(ctx context.Context, id string, state resolution.State, marketplaceID *string, payload []byte) error {
	query := `
		UPDATE products
		SET status = $2,
		    failure_count = $3,
		    last_error = $4,
		    skip_until = $5,
		    marketplace_id = COALESCE($6, marketplace_id),
		    resolve_payload = COALESCE($7, resolve_payload),
		    updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.Pool().Exec(ctx, query,
		id,
		string(state.Status),
		state.FailureCount,
		state.LastError,
		state.SkipUntil,
		marketplaceID,
		payload,
	)
	if err != nil {
		return fmt.Errorf("failed to update resolution state: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.NewRecordNotFoundError(id)
	}

	return nil
}

// EnrichmentCache is the recomputed profitability slice written back to the
// product row after a successful enrichment.
type EnrichmentCache struct {
	SellPrice           *int
	MarketplaceFee      int
	ShippingCost        int
	ProfitAmount        int
	ProfitRate          float64
	ROI                 float64
	RecommendationScore int
	IsRecommended       bool
	EnrichedAt          time.Time
}

// UpdateEnrichmentCache writes the cached profitability fields. The snapshot
// store remains the authority; this cache exists for cheap reads.
func (r *ProductRepository) UpdateEnrichmentCache(ctx context.Context, id string, cache EnrichmentCache) error {
	query := `
		UPDATE products
		SET enriched_at = $2,
		    sell_price = $3,
		    marketplace_fee = $4,
		    shipping_cost = $5,
		    profit_amount = $6,
		    profit_rate = $7,
		    roi = $8,
		    recommendation_score = $9,
		    is_recommended = $10,
		    updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.Pool().Exec(ctx, query,
		id,
		cache.EnrichedAt,
		cache.SellPrice,
		cache.MarketplaceFee,
		cache.ShippingCost,
		cache.ProfitAmount,
		cache.ProfitRate,
		cache.ROI,
		cache.RecommendationScore,
		cache.IsRecommended,
	)
	if err != nil {
		return fmt.Errorf("failed to update enrichment cache: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperrors.NewRecordNotFoundError(id)
	}

	return nil
}

// CountByStatus returns how many products sit in each resolution status.
// The NULL status bucket is reported as pending.
func (r *ProductRepository) CountByStatus(ctx context.Context) (map[types.ResolutionStatus]int, error) {
	query := `
		SELECT COALESCE(status, $1), COUNT(*)
		FROM products
		GROUP BY COALESCE(status, $1)
	`

	rows, err := r.db.Pool().Query(ctx, query, string(types.StatusPending))
	if err != nil {
		return nil, fmt.Errorf("failed to count products by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[types.ResolutionStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[types.ResolutionStatus(status)] = count
	}

	return counts, rows.Err()
}

// ListRecommended returns recommended products ordered by recommendation
// score, best first.
func (r *ProductRepository) ListRecommended(ctx context.Context, limit int) ([]*models.Product, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT ` + productColumns + `
		FROM products
		WHERE is_recommended = TRUE
		ORDER BY recommendation_score DESC, profit_rate DESC
		LIMIT $1
	`

	rows, err := r.db.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recommended products: %w", err)
	}
	defer rows.Close()

	return scanProducts(rows)
}

func scanProducts(rows pgx.Rows) ([]*models.Product, error) {
	var products []*models.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func scanProduct(row pgx.Row) (*models.Product, error) {
	var p models.Product
	var status *string

	err := row.Scan(
		&p.ID,
		&p.SourceCode,
		&p.MarketplaceID,
		&p.Name,
		&p.Brand,
		&p.Category,
		&p.PurchaseCost,
		&status,
		&p.FailureCount,
		&p.LastError,
		&p.LastAttemptAt,
		&p.SkipUntil,
		&p.ResolvePayload,
		&p.EnrichedAt,
		&p.SellPrice,
		&p.MarketplaceFee,
		&p.ShippingCost,
		&p.ProfitAmount,
		&p.ProfitRate,
		&p.ROI,
		&p.RecommendationScore,
		&p.IsRecommended,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if status != nil {
		s := types.ResolutionStatus(*status)
		p.Status = &s
	}

	return &p, nil
}
