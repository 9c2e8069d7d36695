package domain

import (
	"context"
	"time"
)

// StatsCache provides fast access to the aggregate registry statistics so
// the read-only query surface does not rescan the registry on every call.
type StatsCache interface {
	Set(ctx context.Context, stats EventStats) error
	Get(ctx context.Context) (EventStats, error)
	Invalidate(ctx context.Context) error
}

// RateLimiter enforces a request budget per key over a sliding window.
type RateLimiter interface {
	// Allow reports whether a request for key is permitted under the limit
	// and, if so, counts it against the window.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
