package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veilcast/veilcast/internal/domain"
)

// statsKey holds the JSON-serialized aggregate statistics snapshot.
const statsKey = "veilcast:stats"

// StatsCache implements domain.StatsCache using a single Redis key with a
// short TTL, so the query surface answers from cache between registry
// mutations.
type StatsCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStatsCache creates a StatsCache backed by the given Client. A zero ttl
// defaults to 30 seconds.
func NewStatsCache(c *Client, ttl time.Duration) *StatsCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &StatsCache{rdb: c.Underlying(), ttl: ttl}
}

// Set stores a statistics snapshot.
func (sc *StatsCache) Set(ctx context.Context, stats domain.EventStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("redis: marshal stats: %w", err)
	}
	if err := sc.rdb.Set(ctx, statsKey, data, sc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set stats: %w", err)
	}
	return nil
}

// Get retrieves the cached snapshot; ErrNotFound on a miss.
func (sc *StatsCache) Get(ctx context.Context) (domain.EventStats, error) {
	data, err := sc.rdb.Get(ctx, statsKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.EventStats{}, fmt.Errorf("redis: stats: %w", domain.ErrNotFound)
		}
		return domain.EventStats{}, fmt.Errorf("redis: get stats: %w", err)
	}

	var stats domain.EventStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return domain.EventStats{}, fmt.Errorf("redis: unmarshal stats: %w", err)
	}
	return stats, nil
}

// Invalidate drops the cached snapshot so the next read rescans the
// registry.
func (sc *StatsCache) Invalidate(ctx context.Context) error {
	if err := sc.rdb.Del(ctx, statsKey).Err(); err != nil {
		return fmt.Errorf("redis: invalidate stats: %w", err)
	}
	return nil
}
