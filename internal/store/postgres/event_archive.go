package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veilcast/veilcast/internal/domain"
)

// EventArchive implements domain.EventArchive using PostgreSQL.
type EventArchive struct {
	pool *pgxpool.Pool
}

// NewEventArchive creates an EventArchive backed by the given pool.
func NewEventArchive(pool *pgxpool.Pool) *EventArchive {
	return &EventArchive{pool: pool}
}

// Upsert writes the current snapshot of an event.
func (s *EventArchive) Upsert(ctx context.Context, e domain.PredictionEvent) error {
	const query = `
		INSERT INTO prediction_events (
			id, title, asset_class, target_time, end_time, created_at,
			active, finalized, admin_address,
			submission_count, reference_price, revealed_average, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9,
			$10, $11, $12, NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			active           = EXCLUDED.active,
			finalized        = EXCLUDED.finalized,
			submission_count = EXCLUDED.submission_count,
			reference_price  = EXCLUDED.reference_price,
			revealed_average = EXCLUDED.revealed_average,
			updated_at       = NOW()`

	_, err := s.pool.Exec(ctx, query,
		int64(e.ID), e.Title, string(e.AssetClass), e.TargetTime, e.EndTime, e.CreatedAt,
		e.Active, e.Finalized, e.Admin.Hex(),
		int64(e.SubmissionCount), int64(e.ReferencePrice), int64(e.RevealedAverage),
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert event %d: %w", e.ID, err)
	}
	return nil
}

// GetByID retrieves an archived event snapshot.
func (s *EventArchive) GetByID(ctx context.Context, id uint64) (domain.PredictionEvent, error) {
	const query = `
		SELECT id, title, asset_class, target_time, end_time, created_at,
		       active, finalized, admin_address,
		       submission_count, reference_price, revealed_average
		FROM prediction_events WHERE id = $1`

	e, err := scanEvent(s.pool.QueryRow(ctx, query, int64(id)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PredictionEvent{}, fmt.Errorf("postgres: event %d: %w", id, domain.ErrNotFound)
		}
		return domain.PredictionEvent{}, fmt.Errorf("postgres: get event %d: %w", id, err)
	}
	return e, nil
}

// List returns archived events ordered by id.
func (s *EventArchive) List(ctx context.Context, opts domain.ListOpts) ([]domain.PredictionEvent, error) {
	const query = `
		SELECT id, title, asset_class, target_time, end_time, created_at,
		       active, finalized, admin_address,
		       submission_count, reference_price, revealed_average
		FROM prediction_events ORDER BY id LIMIT $1 OFFSET $2`

	rows, err := s.pool.Query(ctx, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	defer rows.Close()

	var out []domain.PredictionEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of archived events.
func (s *EventArchive) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM prediction_events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count events: %w", err)
	}
	return n, nil
}

func scanEvent(row pgx.Row) (domain.PredictionEvent, error) {
	var (
		e                   domain.PredictionEvent
		id, count, ref, avg int64
		class, adminHex     string
	)
	err := row.Scan(
		&id, &e.Title, &class, &e.TargetTime, &e.EndTime, &e.CreatedAt,
		&e.Active, &e.Finalized, &adminHex,
		&count, &ref, &avg,
	)
	if err != nil {
		return domain.PredictionEvent{}, err
	}
	e.ID = uint64(id)
	e.AssetClass = domain.AssetClass(class)
	e.Admin = common.HexToAddress(adminHex)
	e.SubmissionCount = uint32(count)
	e.ReferencePrice = uint32(ref)
	e.RevealedAverage = uint32(avg)
	return e, nil
}
