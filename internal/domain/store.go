package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination for archive list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// EventArchive mirrors ledger events into durable storage. Writes are
// best-effort and happen after the in-memory mutation commits; the archive is
// an audit trail, not the source of truth.
type EventArchive interface {
	Upsert(ctx context.Context, event PredictionEvent) error
	GetByID(ctx context.Context, id uint64) (PredictionEvent, error)
	List(ctx context.Context, opts ListOpts) ([]PredictionEvent, error)
	Count(ctx context.Context) (int64, error)
}

// SubmissionArchive stores submission receipts. Only the participant and
// timestamp are persisted; confidential values never leave the process.
type SubmissionArchive interface {
	Insert(ctx context.Context, receipt SubmissionReceipt) error
	InsertBatch(ctx context.Context, receipts []SubmissionReceipt) error
	ListByParticipant(ctx context.Context, participant common.Address, opts ListOpts) ([]SubmissionReceipt, error)
	CountByEvent(ctx context.Context, eventID uint64) (int64, error)
}

// FinalizationArchive records completed reveals.
type FinalizationArchive interface {
	Insert(ctx context.Context, rec FinalizationRecord) error
	GetByEvent(ctx context.Context, eventID uint64) (FinalizationRecord, error)
}

// FinalizationRecord is the durable trace of one completed finalization.
type FinalizationRecord struct {
	EventID         uint64
	RequestID       string
	RevealedAverage uint32
	ReferencePrice  uint32
	SubmissionCount uint32
	FinalizedAt     time.Time
}
