// Package ratelimit tracks the catalog API's token budget in Redis so that
// every process holding the same credential shares one view of how many
// requests remain before the upstream starts returning 429s.
package ratelimit

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default tracker configuration values.
const (
	// DefaultKeyTTL bounds how long a stale budget snapshot survives. The
	// upstream refills continuously, so an old snapshot is worse than none.
	DefaultKeyTTL = 10 * time.Minute

	// DefaultLowWatermark is the tokens-left level below which callers
	// should throttle themselves ahead of an actual 429.
	DefaultLowWatermark = 20
)

// Redis keys for the shared budget snapshot.
const (
	keyTokensLeft = "catalog:budget:tokens_left"
	keyRefillAt   = "catalog:budget:refill_at"
)

// TokenBudget stores the most recent token accounting reported by the
// catalog API. It is advisory: the API remains the authority, and a missing
// or stale snapshot simply means no throttling hint is available.
type TokenBudget struct {
	redis        redis.Cmdable
	keyTTL       time.Duration
	lowWatermark int
	now          func() time.Time
}

// TokenBudgetConfig holds configuration for the budget tracker.
type TokenBudgetConfig struct {
	// Redis is the client used for cross-process coordination. Required.
	Redis redis.Cmdable

	// KeyTTL is how long a recorded snapshot stays valid. Default: 10m.
	KeyTTL time.Duration

	// LowWatermark is the tokens-left level that flags the budget as low.
	// Default: 20.
	LowWatermark int
}

// BudgetSnapshot is the last known state of the upstream token budget.
type BudgetSnapshot struct {
	// TokensLeft is the remaining request budget the API last reported.
	TokensLeft int

	// RefillAt is when the upstream expects the budget to refill.
	RefillAt time.Time

	// Known is false when no snapshot exists or it has expired.
	Known bool
}

// NewTokenBudget creates a tracker with the given configuration.
func NewTokenBudget(cfg *TokenBudgetConfig) *TokenBudget {
	keyTTL := cfg.KeyTTL
	if keyTTL == 0 {
		keyTTL = DefaultKeyTTL
	}
	lowWatermark := cfg.LowWatermark
	if lowWatermark == 0 {
		lowWatermark = DefaultLowWatermark
	}

	return &TokenBudget{
		redis:        cfg.Redis,
		keyTTL:       keyTTL,
		lowWatermark: lowWatermark,
		now:          time.Now,
	}
}

// Record stores the token accounting from one API response. Failures are
// logged and swallowed: budget tracking must never fail a fetch that already
// succeeded.
func (t *TokenBudget) Record(ctx context.Context, tokensLeft int, refillIn time.Duration) {
	refillAt := t.now().Add(refillIn)

	pipe := t.redis.Pipeline()
	pipe.Set(ctx, keyTokensLeft, tokensLeft, t.keyTTL)
	pipe.Set(ctx, keyRefillAt, refillAt.UnixMilli(), t.keyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[TokenBudget] Failed to record budget snapshot: %v", err)
	}
}

// Snapshot returns the last recorded budget state.
func (t *TokenBudget) Snapshot(ctx context.Context) (*BudgetSnapshot, error) {
	pipe := t.redis.Pipeline()
	tokensCmd := pipe.Get(ctx, keyTokensLeft)
	refillCmd := pipe.Get(ctx, keyRefillAt)

	if _, err := pipe.Exec(ctx); err != nil {
		if errors.Is(err, redis.Nil) {
			return &BudgetSnapshot{}, nil
		}
		return nil, err
	}

	tokensLeft, err := tokensCmd.Int()
	if err != nil {
		return &BudgetSnapshot{}, nil
	}
	refillMs, err := refillCmd.Int64()
	if err != nil {
		return &BudgetSnapshot{}, nil
	}

	return &BudgetSnapshot{
		TokensLeft: tokensLeft,
		RefillAt:   time.UnixMilli(refillMs),
		Known:      true,
	}, nil
}

// IsLow reports whether the last known budget sits at or below the low
// watermark. An unknown budget is never low.
func (t *TokenBudget) IsLow(ctx context.Context) (bool, error) {
	snapshot, err := t.Snapshot(ctx)
	if err != nil {
		return false, err
	}
	if !snapshot.Known {
		return false, nil
	}
	return snapshot.TokensLeft <= t.lowWatermark, nil
}

// SuggestedWait returns how long a caller should hold off when the budget is
// exhausted, derived from the recorded refill time. Zero means no wait is
// needed.
func (t *TokenBudget) SuggestedWait(ctx context.Context) (time.Duration, error) {
	snapshot, err := t.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	if !snapshot.Known || snapshot.TokensLeft > 0 {
		return 0, nil
	}

	wait := snapshot.RefillAt.Sub(t.now())
	if wait < 0 {
		wait = 0
	}
	return wait, nil
}
