package storage

import (
	"context"
	"fmt"

	"github.com/resale-scanner/internal/models"
	"github.com/resale-scanner/internal/types"
)

// RunLogRepository appends and reads per-record run outcomes.
type RunLogRepository struct {
	db *PostgresDB
}

// NewRunLogRepository creates a new run log repository
func NewRunLogRepository(db *PostgresDB) *RunLogRepository {
	return &RunLogRepository{db: db}
}

// Append records one processed-record outcome.
func (r *RunLogRepository) Append(ctx context.Context, entry *models.RunLog) error {
	query := `
		INSERT INTO run_logs (run_id, product_id, kind, status, error, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`

	_, err := r.db.Pool().Exec(ctx, query,
		entry.RunID,
		entry.ProductID,
		string(entry.Kind),
		string(entry.Status),
		entry.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to append run log: %w", err)
	}

	return nil
}

// ListByRun returns the log entries for one run in processing order.
func (r *RunLogRepository) ListByRun(ctx context.Context, runID string) ([]*models.RunLog, error) {
	query := `
		SELECT id, run_id, product_id, kind, status, error, created_at
		FROM run_logs
		WHERE run_id = $1
		ORDER BY id ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list run logs: %w", err)
	}
	defer rows.Close()

	var entries []*models.RunLog
	for rows.Next() {
		var entry models.RunLog
		var kind, status string
		err := rows.Scan(
			&entry.ID,
			&entry.RunID,
			&entry.ProductID,
			&kind,
			&status,
			&entry.Error,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run log: %w", err)
		}
		entry.Kind = types.RunKind(kind)
		entry.Status = types.ResolutionStatus(status)
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
