package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver persists finalization audit snapshots to object storage and reads
// them back for the archive-retrieval surface.
type Archiver interface {
	ArchiveFinalization(ctx context.Context, rec FinalizationRecord, event PredictionEvent) (path string, err error)
	ReadFinalization(ctx context.Context, eventID uint64) ([]byte, error)
}
