package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/betengine/internal/domain"
)

const (
	jsonlContentType = "application/x-ndjson"
	// stampLayout is embedded in snapshot keys and sorts lexically.
	stampLayout       = "20060102T150405.000Z"
	leaderboardPrefix = "leaderboard-"
	ledgerPrefix      = "ledger-"
	ledgerPageSize    = 1000
	cursorObject      = "_cursor.json"
)

// ExportSource is the slice of the ledger store the exporter reads.
type ExportSource interface {
	TopRecords(ctx context.Context, limit int) ([]domain.LeaderboardRecord, error)
	ListEntriesAfter(ctx context.Context, after int64, limit int) ([]domain.LedgerEntry, error)
}

// BlobStore is the object store surface the exporter needs.
type BlobStore interface {
	domain.BlobWriter
	domain.BlobReader
	Delete(ctx context.Context, path string) error
}

// Notifier sends an operator notification.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// ExporterConfig configures snapshot layout and upload strategy.
type ExporterConfig struct {
	Prefix string
	// TopN is how many leaderboard records a snapshot holds.
	TopN int
	// MultipartThreshold switches uploads larger than this many bytes to the
	// multipart manager.
	MultipartThreshold int64
	PartSize           int64
	// Retention removes snapshot days older than this; zero keeps everything.
	Retention time.Duration
}

var _ domain.Exporter = (*Exporter)(nil)

// Exporter writes JSONL snapshots of the leaderboard and the points ledger
// to object storage under <prefix>/YYYY/MM/DD/.
type Exporter struct {
	blobs    BlobStore
	source   ExportSource
	audit    domain.AuditStore
	notifier Notifier
	cfg      ExporterConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewExporter creates an Exporter. audit and notifier may be nil.
func NewExporter(blobs BlobStore, source ExportSource, audit domain.AuditStore, notifier Notifier, cfg ExporterConfig, logger *slog.Logger) *Exporter {
	cfg.Prefix = strings.Trim(cfg.Prefix, "/")
	if cfg.Prefix == "" {
		cfg.Prefix = "snapshots"
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 1000
	}
	if cfg.MultipartThreshold <= 0 {
		cfg.MultipartThreshold = 8 * MinPartSize
	}
	return &Exporter{
		blobs:    blobs,
		source:   source,
		audit:    audit,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "exporter")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Export uploads every ledger entry with Seq greater than after, then a
// leaderboard snapshot, then advances the cursor object. The returned Cursor
// is the after value for the next export. A failure before the cursor object
// is written leaves it in place, so the next run repeats the work instead of
// skipping it.
func (e *Exporter) Export(ctx context.Context, after int64) (domain.ExportResult, error) {
	at := e.now().Truncate(time.Millisecond)
	res := domain.ExportResult{FromSeq: after, Cursor: after, ExportedAt: at}

	entries, err := e.entriesAfter(ctx, after)
	if err != nil {
		return res, err
	}
	if len(entries) > 0 {
		buf, err := marshalJSONL(entries)
		if err != nil {
			return res, fmt.Errorf("s3blob: export ledger: %w", err)
		}
		res.LedgerPath = e.key(ledgerPrefix, at)
		if err := e.upload(ctx, res.LedgerPath, buf); err != nil {
			return res, err
		}
		res.Entries = len(entries)
		res.Cursor = entries[len(entries)-1].Seq
	}

	records, err := e.source.TopRecords(ctx, e.cfg.TopN)
	if err != nil {
		return res, fmt.Errorf("s3blob: export leaderboard: %w", err)
	}
	buf, err := marshalJSONL(records)
	if err != nil {
		return res, fmt.Errorf("s3blob: export leaderboard: %w", err)
	}
	res.LeaderboardPath = e.key(leaderboardPrefix, at)
	if err := e.upload(ctx, res.LeaderboardPath, buf); err != nil {
		return res, err
	}
	res.Records = len(records)

	if err := e.writeCursor(ctx, res); err != nil {
		return res, err
	}

	e.logger.InfoContext(ctx, "snapshot exported",
		slog.String("leaderboard", res.LeaderboardPath),
		slog.Int("records", res.Records),
		slog.Int("entries", res.Entries),
		slog.Int64("cursor", res.Cursor),
	)
	e.record(ctx, res)
	return res, nil
}

// entriesAfter pages through the ledger in Seq order.
func (e *Exporter) entriesAfter(ctx context.Context, after int64) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	for {
		page, err := e.source.ListEntriesAfter(ctx, after, ledgerPageSize)
		if err != nil {
			return nil, fmt.Errorf("s3blob: export ledger: %w", err)
		}
		out = append(out, page...)
		if len(page) < ledgerPageSize {
			return out, nil
		}
		after = page[len(page)-1].Seq
	}
}

// exportCursor is the body of the cursor object.
type exportCursor struct {
	Cursor      int64     `json:"cursor"`
	Ledger      string    `json:"ledger,omitempty"`
	Leaderboard string    `json:"leaderboard"`
	ExportedAt  time.Time `json:"exported_at"`
}

func (e *Exporter) cursorKey() string {
	return path.Join(e.cfg.Prefix, cursorObject)
}

func (e *Exporter) writeCursor(ctx context.Context, res domain.ExportResult) error {
	body, err := json.Marshal(exportCursor{
		Cursor:      res.Cursor,
		Ledger:      res.LedgerPath,
		Leaderboard: res.LeaderboardPath,
		ExportedAt:  res.ExportedAt,
	})
	if err != nil {
		return fmt.Errorf("s3blob: encode cursor: %w", err)
	}
	if err := e.blobs.Put(ctx, e.cursorKey(), bytes.NewReader(body), "application/json"); err != nil {
		return fmt.Errorf("s3blob: write cursor: %w", err)
	}
	return nil
}

// LastCursor returns the ledger Seq the previous export ended at, or 0 when
// nothing has been exported yet.
func (e *Exporter) LastCursor(ctx context.Context) (int64, error) {
	body, err := e.blobs.Get(ctx, e.cursorKey())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("s3blob: read cursor: %w", err)
	}
	defer body.Close()

	var cur exportCursor
	if err := json.NewDecoder(body).Decode(&cur); err != nil {
		return 0, fmt.Errorf("s3blob: decode cursor: %w", err)
	}
	return cur.Cursor, nil
}

func (e *Exporter) upload(ctx context.Context, key string, buf []byte) error {
	var err error
	if int64(len(buf)) > e.cfg.MultipartThreshold {
		err = e.blobs.PutMultipart(ctx, key, bytes.NewReader(buf), e.cfg.PartSize)
	} else {
		err = e.blobs.Put(ctx, key, bytes.NewReader(buf), jsonlContentType)
	}
	if err != nil {
		return fmt.Errorf("s3blob: upload %s: %w", key, err)
	}
	return nil
}

func (e *Exporter) record(ctx context.Context, res domain.ExportResult) {
	if e.audit != nil {
		if err := e.audit.Log(ctx, domain.EventExportCompleted, map[string]any{
			"leaderboard": res.LeaderboardPath,
			"ledger":      res.LedgerPath,
			"records":     res.Records,
			"entries":     res.Entries,
			"from_seq":    res.FromSeq,
			"cursor":      res.Cursor,
		}); err != nil {
			e.logger.WarnContext(ctx, "audit export failed", slog.String("error", err.Error()))
		}
	}
	if e.notifier != nil {
		msg := fmt.Sprintf("%d records, %d ledger entries -> %s", res.Records, res.Entries, res.LeaderboardPath)
		if err := e.notifier.Notify(ctx, domain.EventExportCompleted, "Snapshot exported", msg); err != nil {
			e.logger.WarnContext(ctx, "notify export failed", slog.String("error", err.Error()))
		}
	}
}

// key builds <prefix>/YYYY/MM/DD/<kind><stamp>.jsonl.
func (e *Exporter) key(kind string, at time.Time) string {
	return path.Join(e.cfg.Prefix, at.Format("2006/01/02"), kind+at.Format(stampLayout)+".jsonl")
}

// List returns all snapshot objects, newest first. The cursor object is not
// a snapshot and is left out.
func (e *Exporter) List(ctx context.Context) ([]domain.BlobInfo, error) {
	all, err := e.blobs.List(ctx, e.cfg.Prefix+"/")
	if err != nil {
		return nil, fmt.Errorf("s3blob: list snapshots: %w", err)
	}
	cursor := e.cursorKey()
	infos := all[:0]
	for _, info := range all {
		if info.Path != cursor {
			infos = append(infos, info)
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Path > infos[j].Path })
	return infos, nil
}

// Open returns the body of one snapshot. Keys outside the snapshot prefix
// are reported as not found.
func (e *Exporter) Open(ctx context.Context, key string) (domain.BlobInfo, []byte, error) {
	key = strings.TrimPrefix(key, "/")
	if !strings.HasPrefix(key, e.cfg.Prefix+"/") || strings.Contains(key, "..") {
		return domain.BlobInfo{}, nil, fmt.Errorf("s3blob: open %s: %w", key, domain.ErrNotFound)
	}
	body, err := e.blobs.Get(ctx, key)
	if err != nil {
		return domain.BlobInfo{}, nil, err
	}
	defer body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(body); err != nil {
		return domain.BlobInfo{}, nil, fmt.Errorf("s3blob: read %s: %w", key, err)
	}
	info := domain.BlobInfo{Path: key, Size: int64(buf.Len()), ContentType: jsonlContentType}
	return info, buf.Bytes(), nil
}

// Prune deletes snapshots older than the retention window and returns how
// many objects it removed.
func (e *Exporter) Prune(ctx context.Context) (int, error) {
	if e.cfg.Retention <= 0 {
		return 0, nil
	}
	infos, err := e.List(ctx)
	if err != nil {
		return 0, err
	}
	horizon := e.now().Add(-e.cfg.Retention)
	removed := 0
	for _, info := range infos {
		at, ok := snapshotTime(info.Path, leaderboardPrefix)
		if !ok {
			at, ok = snapshotTime(info.Path, ledgerPrefix)
		}
		if !ok || !at.Before(horizon) {
			continue
		}
		if err := e.blobs.Delete(ctx, info.Path); err != nil {
			return removed, fmt.Errorf("s3blob: prune: %w", err)
		}
		removed++
	}
	if removed > 0 {
		e.logger.InfoContext(ctx, "snapshots pruned", slog.Int("removed", removed))
	}
	return removed, nil
}

// Run exports every interval until ctx is cancelled, resuming from the
// cursor object left by the previous run.
func (e *Exporter) Run(ctx context.Context, interval time.Duration) error {
	after, err := e.LastCursor(ctx)
	if err != nil {
		e.logger.WarnContext(ctx, "resume point unavailable, exporting full ledger", slog.String("error", err.Error()))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			res, err := e.Export(ctx, after)
			if err != nil {
				e.logger.ErrorContext(ctx, "export failed", slog.String("error", err.Error()))
				continue
			}
			after = res.Cursor
			if _, err := e.Prune(ctx); err != nil {
				e.logger.WarnContext(ctx, "prune failed", slog.String("error", err.Error()))
			}
		}
	}
}

func snapshotTime(key, kind string) (time.Time, bool) {
	base := path.Base(key)
	if !strings.HasPrefix(base, kind) || !strings.HasSuffix(base, ".jsonl") {
		return time.Time{}, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(base, kind), ".jsonl")
	at, err := time.Parse(stampLayout, stamp)
	if err != nil {
		return time.Time{}, false
	}
	return at, true
}

// marshalJSONL writes one compact JSON document per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
