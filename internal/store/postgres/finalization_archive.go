package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veilcast/veilcast/internal/domain"
)

// FinalizationArchive implements domain.FinalizationArchive using PostgreSQL.
type FinalizationArchive struct {
	pool *pgxpool.Pool
}

// NewFinalizationArchive creates a FinalizationArchive backed by the given
// pool.
func NewFinalizationArchive(pool *pgxpool.Pool) *FinalizationArchive {
	return &FinalizationArchive{pool: pool}
}

// Insert records a completed finalization. Each event finalizes at most
// once, so conflicts indicate a replayed archive write and are ignored.
func (s *FinalizationArchive) Insert(ctx context.Context, rec domain.FinalizationRecord) error {
	const query = `
		INSERT INTO finalizations (
			event_id, request_id, revealed_average,
			reference_price, submission_count, finalized_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		int64(rec.EventID), rec.RequestID, int64(rec.RevealedAverage),
		int64(rec.ReferencePrice), int64(rec.SubmissionCount), rec.FinalizedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert finalization for event %d: %w", rec.EventID, err)
	}
	return nil
}

// GetByEvent retrieves the finalization record for an event.
func (s *FinalizationArchive) GetByEvent(ctx context.Context, eventID uint64) (domain.FinalizationRecord, error) {
	const query = `
		SELECT event_id, request_id, revealed_average,
		       reference_price, submission_count, finalized_at
		FROM finalizations WHERE event_id = $1`

	var (
		rec                 domain.FinalizationRecord
		id, avg, ref, count int64
	)
	err := s.pool.QueryRow(ctx, query, int64(eventID)).Scan(
		&id, &rec.RequestID, &avg, &ref, &count, &rec.FinalizedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.FinalizationRecord{}, fmt.Errorf("postgres: finalization for event %d: %w", eventID, domain.ErrNotFound)
		}
		return domain.FinalizationRecord{}, fmt.Errorf("postgres: get finalization for event %d: %w", eventID, err)
	}
	rec.EventID = uint64(id)
	rec.RevealedAverage = uint32(avg)
	rec.ReferencePrice = uint32(ref)
	rec.SubmissionCount = uint32(count)
	return rec, nil
}
