package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/resale-scanner/internal/config"
)

// ClickHouseDB wraps the ClickHouse connection holding the append-only
// enrichment snapshot history.
type ClickHouseDB struct {
	conn driver.Conn
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(cfg *config.ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:      10 * time.Second,
		MaxOpenConns:     10,
		MaxIdleConns:     5,
		ConnMaxLifetime:  time.Hour,
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Close closes the ClickHouse connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Conn returns the underlying ClickHouse connection
func (db *ClickHouseDB) Conn() driver.Conn {
	return db.conn
}

// Ping checks if the database is reachable
func (db *ClickHouseDB) Ping(ctx context.Context) error {
	return db.conn.Ping(ctx)
}

// Exec executes a query without returning rows
func (db *ClickHouseDB) Exec(ctx context.Context, query string, args ...interface{}) error {
	return db.conn.Exec(ctx, query, args...)
}

// EnsureSnapshotSchema creates the snapshot table when it does not exist.
// The table is append-only: rewrites and deletes are never issued against it.
func (db *ClickHouseDB) EnsureSnapshotSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS enrichment_snapshots (
			id              UUID,
			product_id      UUID,
			marketplace_id  String,
			observed_at     DateTime64(3, 'UTC'),
			amazon_price    Nullable(Int32),
			lowest_new_price Nullable(Int32),
			used_price      Nullable(Int32),
			buy_box_price   Nullable(Int32),
			sales_rank      Nullable(Int32),
			rank_drops_30   Int32,
			rank_drops_90   Int32,
			offers_count    Int32,
			amazon_is_seller UInt8,
			title           Nullable(String),
			brand           Nullable(String),
			category        Nullable(String),
			package_weight  Nullable(Int32),
			raw_payload     String
		) ENGINE = MergeTree()
		ORDER BY (product_id, observed_at)
		PARTITION BY toYYYYMM(observed_at)
	`
	if err := db.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create snapshot table: %w", err)
	}
	return nil
}
