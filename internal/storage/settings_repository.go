package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/resale-scanner/internal/profit"
)

// Setting names recognized in the pipeline_settings table.
const (
	SettingAutoUpdateEnabled = "auto_update_enabled"
	SettingUpdateInterval    = "update_interval_hours"
	SettingMinProfitRate     = "min_profit_rate"
	SettingMaxSalesRank      = "max_sales_rank"
	SettingMaxSellerCount    = "max_seller_count"
	SettingShippingCost      = "shipping_cost"
)

// SettingsRepository reads and writes operator-tunable pipeline settings
// stored as name/value pairs.
type SettingsRepository struct {
	db *PostgresDB
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db *PostgresDB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// GetAll returns every stored setting as a name→value map.
func (r *SettingsRepository) GetAll(ctx context.Context) (map[string]string, error) {
	query := `SELECT setting_name, setting_value FROM pipeline_settings`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		settings[name] = value
	}

	return settings, rows.Err()
}

// Set upserts one setting value.
func (r *SettingsRepository) Set(ctx context.Context, name, value string) error {
	query := `
		INSERT INTO pipeline_settings (setting_name, setting_value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (setting_name)
		DO UPDATE SET setting_value = EXCLUDED.setting_value, updated_at = NOW()
	`

	if _, err := r.db.Pool().Exec(ctx, query, name, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", name, err)
	}

	return nil
}

// AutoUpdateEnabled reports the scheduler kill switch. A missing setting
// means enabled.
func (r *SettingsRepository) AutoUpdateEnabled(ctx context.Context) (bool, error) {
	settings, err := r.GetAll(ctx)
	if err != nil {
		return false, err
	}
	value, ok := settings[SettingAutoUpdateEnabled]
	if !ok {
		return true, nil
	}
	return value == "true", nil
}

// UpdateInterval returns the operator-set enrichment staleness horizon. Zero
// means unset; callers fall back to the configured default.
func (r *SettingsRepository) UpdateInterval(ctx context.Context) (time.Duration, error) {
	settings, err := r.GetAll(ctx)
	if err != nil {
		return 0, err
	}

	v, ok := settings[SettingUpdateInterval]
	if !ok {
		return 0, nil
	}
	hours, err := strconv.Atoi(v)
	if err != nil || hours <= 0 {
		return 0, nil
	}
	return time.Duration(hours) * time.Hour, nil
}

// LoadPolicy assembles the recommendation policy from stored settings,
// falling back to defaults for anything unset or unparseable.
func (r *SettingsRepository) LoadPolicy(ctx context.Context) (profit.Policy, error) {
	policy := profit.DefaultPolicy()

	settings, err := r.GetAll(ctx)
	if err != nil {
		return policy, err
	}

	if v, ok := settings[SettingMinProfitRate]; ok {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			policy.MinProfitRate = parsed
		}
	}
	if v, ok := settings[SettingMaxSalesRank]; ok {
		if parsed, err := strconv.Atoi(v); err == nil {
			policy.MaxSalesRank = parsed
		}
	}
	if v, ok := settings[SettingMaxSellerCount]; ok {
		if parsed, err := strconv.Atoi(v); err == nil {
			policy.MaxSellerCount = parsed
		}
	}
	if v, ok := settings[SettingShippingCost]; ok {
		if parsed, err := strconv.Atoi(v); err == nil {
			policy.ShippingCost = parsed
		}
	}

	return policy, nil
}
