package storage

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/resale-scanner/internal/errors"
	"github.com/resale-scanner/internal/models"
)

// SnapshotRepository handles enrichment snapshot persistence in ClickHouse.
// Snapshots are the authoritative enrichment history; rows are only ever
// appended.
type SnapshotRepository struct {
	db *ClickHouseDB
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db *ClickHouseDB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

const snapshotColumns = `
	id, product_id, marketplace_id, observed_at,
	amazon_price, lowest_new_price, used_price, buy_box_price,
	sales_rank, rank_drops_30, rank_drops_90, offers_count,
	amazon_is_seller, title, brand, category, package_weight, raw_payload
`

// Insert appends a single snapshot row
func (r *SnapshotRepository) Insert(ctx context.Context, s *models.EnrichmentSnapshot) error {
	query := `INSERT INTO enrichment_snapshots (` + snapshotColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	err := r.db.Conn().Exec(ctx, query, snapshotValues(s)...)
	if err != nil {
		return apperrors.NewDatabaseError("snapshot insert", err)
	}

	return nil
}

// snapshotValues flattens a snapshot into driver arguments, matching the
// column order of snapshotColumns.
func snapshotValues(s *models.EnrichmentSnapshot) []interface{} {
	return []interface{}{
		s.ID,
		s.ProductID,
		s.MarketplaceID,
		s.ObservedAt,
		toNullableInt32(s.AmazonPrice),
		toNullableInt32(s.LowestNewPrice),
		toNullableInt32(s.UsedPrice),
		toNullableInt32(s.BuyBoxPrice),
		toNullableInt32(s.SalesRank),
		int32(s.RankDrops30),
		int32(s.RankDrops90),
		int32(s.OffersCount),
		boolToUInt8(s.AmazonIsSeller),
		s.Title,
		s.Brand,
		s.Category,
		toNullableInt32(s.PackageWeight),
		string(s.RawPayload),
	}
}

// History returns the snapshot rows for one product, newest first.
func (r *SnapshotRepository) History(ctx context.Context, productID string, limit int) ([]*models.EnrichmentSnapshot, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT ` + snapshotColumns + `
		FROM enrichment_snapshots
		WHERE product_id = ?
		ORDER BY observed_at DESC
		LIMIT ?
	`

	rows, err := r.db.Conn().Query(ctx, query, productID, limit)
	if err != nil {
		return nil, apperrors.NewDatabaseError("snapshot history query", err)
	}
	defer rows.Close()

	var snapshots []*models.EnrichmentSnapshot
	for rows.Next() {
		var (
			s              models.EnrichmentSnapshot
			observedAt     time.Time
			amazonPrice    *int32
			lowestNewPrice *int32
			usedPrice      *int32
			buyBoxPrice    *int32
			salesRank      *int32
			rankDrops30    int32
			rankDrops90    int32
			offersCount    int32
			amazonIsSeller uint8
			packageWeight  *int32
			rawPayload     string
		)
		err := rows.Scan(
			&s.ID,
			&s.ProductID,
			&s.MarketplaceID,
			&observedAt,
			&amazonPrice,
			&lowestNewPrice,
			&usedPrice,
			&buyBoxPrice,
			&salesRank,
			&rankDrops30,
			&rankDrops90,
			&offersCount,
			&amazonIsSeller,
			&s.Title,
			&s.Brand,
			&s.Category,
			&packageWeight,
			&rawPayload,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}

		s.ObservedAt = observedAt
		s.AmazonPrice = fromNullableInt32(amazonPrice)
		s.LowestNewPrice = fromNullableInt32(lowestNewPrice)
		s.UsedPrice = fromNullableInt32(usedPrice)
		s.BuyBoxPrice = fromNullableInt32(buyBoxPrice)
		s.SalesRank = fromNullableInt32(salesRank)
		s.RankDrops30 = int(rankDrops30)
		s.RankDrops90 = int(rankDrops90)
		s.OffersCount = int(offersCount)
		s.AmazonIsSeller = amazonIsSeller == 1
		s.PackageWeight = fromNullableInt32(packageWeight)
		s.RawPayload = []byte(rawPayload)
		snapshots = append(snapshots, &s)
	}

	return snapshots, rows.Err()
}

func toNullableInt32(v *int) *int32 {
	if v == nil {
		return nil
	}
	converted := int32(*v)
	return &converted
}

func fromNullableInt32(v *int32) *int {
	if v == nil {
		return nil
	}
	converted := int(*v)
	return &converted
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
