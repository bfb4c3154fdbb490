package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type,omitempty"`
	LastModified time.Time `json:"last_modified"`
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

// ExportResult summarises one snapshot export run.
type ExportResult struct {
	LeaderboardPath string `json:"leaderboard_path"`
	LedgerPath      string `json:"ledger_path,omitempty"`
	Records         int    `json:"records"`
	Entries         int    `json:"entries"`
	// FromSeq is the cursor the run started after; Cursor is the highest
	// ledger Seq exported, and the starting point of the next run.
	FromSeq    int64     `json:"from_seq"`
	Cursor     int64     `json:"cursor"`
	ExportedAt time.Time `json:"exported_at"`
}

// Exporter writes leaderboard and ledger snapshots to cold storage.
type Exporter interface {
	Export(ctx context.Context, after int64) (ExportResult, error)
}
