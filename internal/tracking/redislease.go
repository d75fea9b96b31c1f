package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLeaser narrows the cross-process race window on chunk claiming
// ahead of the authoritative Postgres UPDATE ... WHERE status='pending'
// transition, per SPEC_FULL.md §6.1. It is an optimization, not a
// correctness requirement: a Redis outage degrades claimChunk back to
// Postgres-only contention, it never breaks linearizability.
type RedisLeaser struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisLeaser builds a RedisLeaser over client with the given lease
// TTL (how long a batch-level claim round is held before another
// process may attempt the same batch).
func NewRedisLeaser(client *redis.Client, ttl time.Duration) *RedisLeaser {
	return &RedisLeaser{client: client, ttl: ttl, prefix: "enroll-scheduler:claim:"}
}

// TryAcquire attempts to hold the claim lease for batchID, returning
// true if this call won it. A false result means another process
// currently holds the lease for this batch.
func (l *RedisLeaser) TryAcquire(ctx context.Context, batchID string) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key(batchID), "1", l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis claim lease: %w", err)
	}
	return ok, nil
}

// Release drops the lease early, letting another process claim the
// next chunk without waiting out the TTL.
func (l *RedisLeaser) Release(ctx context.Context, batchID string) error {
	if err := l.client.Del(ctx, l.key(batchID)).Err(); err != nil {
		return fmt.Errorf("redis release lease: %w", err)
	}
	return nil
}

func (l *RedisLeaser) key(batchID string) string {
	return l.prefix + batchID
}

// LeasedStore wraps a Store so that ClaimChunk only proceeds to the
// Postgres transition while this process holds the batch's Redis
// lease; on lease contention it returns an empty claim rather than
// erroring, so callers treat it like "nothing pending right now".
type LeasedStore struct {
	Store
	leaser *RedisLeaser
}

// NewLeasedStore wraps inner with lease coordination from leaser.
func NewLeasedStore(inner Store, leaser *RedisLeaser) *LeasedStore {
	return &LeasedStore{Store: inner, leaser: leaser}
}

func (s *LeasedStore) ClaimChunk(ctx context.Context, batchID string, n int) ([]Row, Lease, error) {
	acquired, err := s.leaser.TryAcquire(ctx, batchID)
	if err != nil {
		// Redis is degraded; fall through to Postgres-only contention
		// rather than stalling the pipeline on a non-authoritative lock.
		return s.Store.ClaimChunk(ctx, batchID, n)
	}
	if !acquired {
		return nil, 0, nil
	}
	defer func() { _ = s.leaser.Release(ctx, batchID) }()
	return s.Store.ClaimChunk(ctx, batchID, n)
}
