package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/veilcast/veilcast/internal/domain"
)

// finalizationSnapshot is the JSON layout of an archived reveal. It carries
// only public data: the average is published by finalization, and the
// reference price was set in the open.
type finalizationSnapshot struct {
	EventID         uint64    `json:"event_id"`
	Title           string    `json:"title"`
	AssetClass      string    `json:"asset_class"`
	Admin           string    `json:"admin"`
	TargetTime      time.Time `json:"target_time"`
	EndTime         time.Time `json:"end_time"`
	SubmissionCount uint32    `json:"submission_count"`
	RevealedAverage uint32    `json:"revealed_average"`
	ReferencePrice  uint32    `json:"reference_price"`
	RequestID       string    `json:"request_id"`
	FinalizedAt     time.Time `json:"finalized_at"`
}

// ArchiveImpl implements domain.Archiver: one JSON object per finalized
// event, keyed by event id, uploaded to the configured bucket. Archives are
// written once and never deleted.
type ArchiveImpl struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	prefix string
}

// NewArchiver creates an ArchiveImpl that stores snapshots under prefix.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, prefix string) *ArchiveImpl {
	if prefix == "" {
		prefix = "finalizations"
	}
	return &ArchiveImpl{
		writer: writer,
		reader: reader,
		prefix: prefix,
	}
}

// ArchiveFinalization uploads the audit snapshot for a completed reveal and
// returns the object path.
func (a *ArchiveImpl) ArchiveFinalization(ctx context.Context, rec domain.FinalizationRecord, event domain.PredictionEvent) (string, error) {
	snap := finalizationSnapshot{
		EventID:         event.ID,
		Title:           event.Title,
		AssetClass:      string(event.AssetClass),
		Admin:           event.Admin.Hex(),
		TargetTime:      event.TargetTime,
		EndTime:         event.EndTime,
		SubmissionCount: rec.SubmissionCount,
		RevealedAverage: rec.RevealedAverage,
		ReferencePrice:  rec.ReferencePrice,
		RequestID:       rec.RequestID,
		FinalizedAt:     rec.FinalizedAt,
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("s3blob: marshal finalization snapshot %d: %w", event.ID, err)
	}

	path := a.path(event.ID)
	if err := a.writer.Put(ctx, path, bytes.NewReader(data), "application/json"); err != nil {
		return "", fmt.Errorf("s3blob: archive finalization %d: %w", event.ID, err)
	}
	return path, nil
}

// ReadFinalization fetches the archived snapshot for an event.
func (a *ArchiveImpl) ReadFinalization(ctx context.Context, eventID uint64) ([]byte, error) {
	body, err := a.reader.Get(ctx, a.path(eventID))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("s3blob: read finalization %d: %w", eventID, err)
	}
	return data, nil
}

func (a *ArchiveImpl) path(eventID uint64) string {
	return fmt.Sprintf("%s/event-%d.json", a.prefix, eventID)
}
