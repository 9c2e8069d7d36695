// Package service provides read-side services layered on top of the ledger
// core, adding caching without touching ledger semantics.
package service

import (
	"context"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/veilcast/veilcast/internal/domain"
	"github.com/veilcast/veilcast/internal/ledger"
)

// StatsService answers aggregate-statistics and history queries, checking
// the cache first and falling back to a registry scan on a miss. Cache
// failures are never surfaced; the ledger scan is always authoritative.
type StatsService struct {
	ledger *ledger.Ledger
	cache  domain.StatsCache
	logger *slog.Logger
}

// NewStatsService creates a StatsService. The cache is optional.
func NewStatsService(l *ledger.Ledger, cache domain.StatsCache, logger *slog.Logger) *StatsService {
	return &StatsService{
		ledger: l,
		cache:  cache,
		logger: logger.With(slog.String("component", "stats_service")),
	}
}

// Stats returns the aggregate registry statistics, cache-first.
func (s *StatsService) Stats(ctx context.Context) domain.EventStats {
	if s.cache != nil {
		stats, err := s.cache.Get(ctx)
		if err == nil {
			return stats
		}
	}

	stats := s.ledger.Stats()

	// Back-fill cache; log but do not fail on cache write errors.
	if s.cache != nil {
		if err := s.cache.Set(ctx, stats); err != nil {
			s.logger.WarnContext(ctx, "stats cache set failed",
				slog.String("error", err.Error()),
			)
		}
	}
	return stats
}

// Invalidate drops the cached snapshot. Called by the emitter whenever a
// ledger mutation changes the counts.
func (s *StatsService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.WarnContext(ctx, "stats cache invalidate failed",
			slog.String("error", err.Error()),
		)
	}
}

// History returns a participant's submission history from the ledger.
func (s *StatsService) History(participant common.Address) []domain.ParticipantRecord {
	return s.ledger.ParticipantHistory(participant)
}
