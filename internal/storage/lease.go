package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RunLease is a Redis-backed mutual exclusion lease for pipeline runs.
// Acquiring the lease marks a run kind as in progress across every process;
// the TTL bounds how long a crashed holder can block the next run.
type RunLease struct {
	redis redis.Cmdable
	ttl   time.Duration
}

// NewRunLease creates a lease manager with the given TTL
func NewRunLease(client redis.Cmdable, ttl time.Duration) *RunLease {
	return &RunLease{redis: client, ttl: ttl}
}

func leaseKey(kind string) string {
	return fmt.Sprintf("run:lease:%s", kind)
}

// Acquire attempts to take the lease for a run kind, storing the holder's
// run ID. Returns false when another run already holds it.
func (l *RunLease) Acquire(ctx context.Context, kind, runID string) (bool, error) {
	ok, err := l.redis.SetNX(ctx, leaseKey(kind), runID, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire run lease: %w", err)
	}
	return ok, nil
}

// Release frees the lease, but only when runID still holds it. A lease that
// expired and was re-acquired by another run is left alone.
func (l *RunLease) Release(ctx context.Context, kind, runID string) error {
	script := redis.NewScript(`
		if redis.call('GET', KEYS[1]) == ARGV[1] then
			return redis.call('DEL', KEYS[1])
		end
		return 0
	`)

	if err := script.Run(ctx, l.redis, []string{leaseKey(kind)}, runID).Err(); err != nil {
		return fmt.Errorf("failed to release run lease: %w", err)
	}
	return nil
}

// Holder returns the run ID currently holding the lease, or empty when free.
func (l *RunLease) Holder(ctx context.Context, kind string) (string, error) {
	holder, err := l.redis.Get(ctx, leaseKey(kind)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read run lease: %w", err)
	}
	return holder, nil
}
