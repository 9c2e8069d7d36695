package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/veilcast/veilcast/internal/domain"
)

// SubmissionArchive implements domain.SubmissionArchive using PostgreSQL.
// Only receipts are stored; the schema has no column for values.
type SubmissionArchive struct {
	pool *pgxpool.Pool
}

// NewSubmissionArchive creates a SubmissionArchive backed by the given pool.
func NewSubmissionArchive(pool *pgxpool.Pool) *SubmissionArchive {
	return &SubmissionArchive{pool: pool}
}

const insertReceiptQuery = `
	INSERT INTO submission_receipts (event_id, participant, submitted_at)
	VALUES ($1, $2, $3)
	ON CONFLICT (event_id, participant) DO NOTHING`

// Insert records a single submission receipt. Conflicts are ignored: the
// ledger already enforces exactly-once, so a duplicate here is a replayed
// archive write, not a new submission.
func (s *SubmissionArchive) Insert(ctx context.Context, r domain.SubmissionReceipt) error {
	_, err := s.pool.Exec(ctx, insertReceiptQuery, int64(r.EventID), r.Participant.Hex(), r.SubmittedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert receipt event=%d participant=%s: %w",
			r.EventID, r.Participant.Hex(), err)
	}
	return nil
}

// InsertBatch records multiple receipts in one round trip.
func (s *SubmissionArchive) InsertBatch(ctx context.Context, receipts []domain.SubmissionReceipt) error {
	if len(receipts) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range receipts {
		batch.Queue(insertReceiptQuery, int64(r.EventID), r.Participant.Hex(), r.SubmittedAt)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range receipts {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert receipt batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListByParticipant returns a participant's receipts, oldest first.
func (s *SubmissionArchive) ListByParticipant(ctx context.Context, participant common.Address, opts domain.ListOpts) ([]domain.SubmissionReceipt, error) {
	const query = `
		SELECT event_id, participant, submitted_at
		FROM submission_receipts
		WHERE participant = $1
		ORDER BY submitted_at
		LIMIT $2 OFFSET $3`

	rows, err := s.pool.Query(ctx, query, participant.Hex(), opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list receipts for %s: %w", participant.Hex(), err)
	}
	defer rows.Close()

	var out []domain.SubmissionReceipt
	for rows.Next() {
		var (
			r   domain.SubmissionReceipt
			id  int64
			hex string
		)
		if err := rows.Scan(&id, &hex, &r.SubmittedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan receipt: %w", err)
		}
		r.EventID = uint64(id)
		r.Participant = common.HexToAddress(hex)
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountByEvent returns the number of receipts recorded for an event.
func (s *SubmissionArchive) CountByEvent(ctx context.Context, eventID uint64) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM submission_receipts WHERE event_id = $1`, int64(eventID),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count receipts for event %d: %w", eventID, err)
	}
	return n, nil
}
