// Package sqlite is a single-node SQLite backend for the points ledger,
// tracked bets and audit log.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/alanyoungcy/betengine/internal/domain"
)

// Store implements domain.LedgerStore, domain.TrackedBetStore and
// domain.AuditStore.
type Store struct {
	db *sql.DB
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// Open opens the database at path and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite: storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	if err := applyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// --- ledger ---

// ledgerColumns omits seq, which the database assigns on insert.
const ledgerColumns = `id, address, bet_id, usd_amount, timeframe_seconds, direction, won, points_earned, created_at`

const selectLedger = `SELECT seq, ` + ledgerColumns + ` FROM points_ledger`

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (domain.LedgerEntry, error) {
	var (
		e         domain.LedgerEntry
		direction string
		won       int
		created   int64
	)
	if err := row.Scan(&e.Seq, &e.ID, &e.Address, &e.BetID, &e.USDAmount, &e.TimeframeSeconds,
		&direction, &won, &e.PointsEarned, &created); err != nil {
		return domain.LedgerEntry{}, err
	}
	e.Direction = domain.Direction(direction)
	e.Won = won != 0
	e.CreatedAt = fromMillis(created)
	return e, nil
}

// Append inserts the entry and updates the aggregate in one transaction.
func (s *Store) Append(ctx context.Context, e domain.LedgerEntry) (domain.LedgerEntry, bool, error) {
	e.Address = strings.ToLower(e.Address)
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	// Stored at millisecond precision.
	e.CreatedAt = fromMillis(toMillis(e.CreatedAt))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.LedgerEntry{}, false, fmt.Errorf("sqlite: begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO points_ledger (`+ledgerColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Address, e.BetID, e.USDAmount, e.TimeframeSeconds,
		string(e.Direction), boolInt(e.Won), e.PointsEarned, toMillis(e.CreatedAt),
	)
	if err != nil {
		if !isUniqueViolation(err) {
			return domain.LedgerEntry{}, false, fmt.Errorf("sqlite: insert ledger entry: %w", err)
		}
		existing, err := scanEntry(tx.QueryRowContext(ctx,
			selectLedger+` WHERE address = ? AND bet_id = ?`,
			e.Address, e.BetID))
		if err != nil {
			return domain.LedgerEntry{}, false, fmt.Errorf("sqlite: load duplicate entry %s/%s: %w", e.Address, e.BetID, err)
		}
		return existing, false, nil
	}
	if e.Seq, err = res.LastInsertId(); err != nil {
		return domain.LedgerEntry{}, false, fmt.Errorf("sqlite: ledger seq: %w", err)
	}

	wins, losses := 0, 1
	if e.Won {
		wins, losses = 1, 0
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO leaderboard (address, total_points, wins, losses, total_bets, updated_at)
		VALUES (?, ?, ?, ?, 1, ?)
		ON CONFLICT (address) DO UPDATE SET
			total_points = total_points + excluded.total_points,
			wins         = wins + excluded.wins,
			losses       = losses + excluded.losses,
			total_bets   = total_bets + 1,
			updated_at   = max(updated_at, excluded.updated_at)`,
		e.Address, e.PointsEarned, wins, losses, toMillis(e.CreatedAt),
	)
	if err != nil {
		return domain.LedgerEntry{}, false, fmt.Errorf("sqlite: update leaderboard %s: %w", e.Address, err)
	}

	if err := tx.Commit(); err != nil {
		return domain.LedgerEntry{}, false, fmt.Errorf("sqlite: commit append: %w", err)
	}
	return e, true, nil
}

func scanRecord(row scanner) (domain.LeaderboardRecord, error) {
	var (
		r       domain.LeaderboardRecord
		updated int64
	)
	if err := row.Scan(&r.Address, &r.TotalPoints, &r.Wins, &r.Losses, &r.TotalBets, &updated); err != nil {
		return domain.LeaderboardRecord{}, err
	}
	r.UpdatedAt = fromMillis(updated)
	return r, nil
}

// GetRecord returns the aggregate for one address.
func (s *Store) GetRecord(ctx context.Context, address string) (domain.LeaderboardRecord, error) {
	address = strings.ToLower(address)
	r, err := scanRecord(s.db.QueryRowContext(ctx,
		`SELECT address, total_points, wins, losses, total_bets, updated_at FROM leaderboard WHERE address = ?`,
		address))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.LeaderboardRecord{}, fmt.Errorf("sqlite: record %s: %w", address, domain.ErrNotFound)
		}
		return domain.LeaderboardRecord{}, fmt.Errorf("sqlite: get record %s: %w", address, err)
	}
	return r, nil
}

// ListEntries returns an address's entries, newest first.
func (s *Store) ListEntries(ctx context.Context, address string, opts domain.ListOpts) ([]domain.LedgerEntry, error) {
	query := selectLedger + ` WHERE address = ?`
	args := []any{strings.ToLower(address)}
	if opts.Since != nil {
		query += " AND created_at >= ?"
		args = append(args, toMillis(*opts.Since))
	}
	if opts.Until != nil {
		query += " AND created_at <= ?"
		args = append(args, toMillis(*opts.Until))
	}
	query += " ORDER BY created_at DESC, seq DESC"
	query, args = limitOffset(query, args, opts)

	out, err := s.queryEntries(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list entries %s: %w", address, err)
	}
	return out, nil
}

// ListEntriesAfter returns entries with seq greater than after, in seq order.
func (s *Store) ListEntriesAfter(ctx context.Context, after int64, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 1000
	}
	out, err := s.queryEntries(ctx, selectLedger+` WHERE seq > ? ORDER BY seq LIMIT ?`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list entries after %d: %w", after, err)
	}
	return out, nil
}

// TopRecords returns the highest-scoring aggregates.
func (s *Store) TopRecords(ctx context.Context, limit int) ([]domain.LeaderboardRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT address, total_points, wins, losses, total_bets, updated_at
		 FROM leaderboard ORDER BY total_points DESC, address LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: top records: %w", err)
	}
	defer rows.Close()
	var out []domain.LeaderboardRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]domain.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func limitOffset(query string, args []any, opts domain.ListOpts) (string, []any) {
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, opts.Offset)
		}
	} else if opts.Offset > 0 {
		query += " LIMIT -1 OFFSET ?"
		args = append(args, opts.Offset)
	}
	return query, args
}

// --- tracked bets ---

const trackedColumns = `id, address, kind, contract, contract_id, placed_at, settled, settled_at, entry_id, expired, checked_at`

func scanTracked(row scanner) (domain.TrackedBet, error) {
	var (
		b         domain.TrackedBet
		kind      string
		contract  int64
		placed    int64
		settled   int
		settledAt sql.NullInt64
		expired   int
		checked   int64
	)
	if err := row.Scan(&b.ID, &b.Address, &kind, &b.Contract, &contract, &placed,
		&settled, &settledAt, &b.EntryID, &expired, &checked); err != nil {
		return domain.TrackedBet{}, err
	}
	b.Expired = expired != 0
	if checked > 0 {
		t := fromMillis(checked)
		b.CheckedAt = &t
	}
	b.Kind = domain.BetKind(kind)
	b.ContractID = uint64(contract)
	b.PlacedAt = fromMillis(placed)
	b.Settled = settled != 0
	if settledAt.Valid {
		t := fromMillis(settledAt.Int64)
		b.SettledAt = &t
	}
	return b, nil
}

// Track registers a bet. Registering the same id again returns the stored row.
func (s *Store) Track(ctx context.Context, b domain.TrackedBet) (domain.TrackedBet, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tracked_bets (`+trackedColumns+`) VALUES (?, ?, ?, ?, ?, ?, 0, NULL, '', 0, 0)`,
		b.ID, strings.ToLower(b.Address), string(b.Kind), strings.ToLower(b.Contract),
		int64(b.ContractID), toMillis(b.PlacedAt),
	)
	if err != nil && !isUniqueViolation(err) {
		return domain.TrackedBet{}, fmt.Errorf("sqlite: track bet %s: %w", b.ID, err)
	}
	stored, err := scanTracked(s.db.QueryRowContext(ctx,
		`SELECT `+trackedColumns+` FROM tracked_bets WHERE id = ?`, b.ID))
	if err != nil {
		return domain.TrackedBet{}, fmt.Errorf("sqlite: load tracked bet %s: %w", b.ID, err)
	}
	return stored, nil
}

// ListUnsettled returns open bets, least recently checked first. A bet that
// was never checked has checked_at 0 and sorts ahead of all others.
func (s *Store) ListUnsettled(ctx context.Context, limit int) ([]domain.TrackedBet, error) {
	if limit <= 0 {
		limit = 100
	}
	out, err := s.queryTracked(ctx,
		`SELECT `+trackedColumns+` FROM tracked_bets WHERE settled = 0
		 ORDER BY checked_at, placed_at, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list unsettled bets: %w", err)
	}
	return out, nil
}

// ListByAddress returns an address's tracked bets, newest first.
func (s *Store) ListByAddress(ctx context.Context, address string, opts domain.ListOpts) ([]domain.TrackedBet, error) {
	query, args := limitOffset(
		`SELECT `+trackedColumns+` FROM tracked_bets WHERE address = ? ORDER BY placed_at DESC, id`,
		[]any{strings.ToLower(address)}, opts)
	out, err := s.queryTracked(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list tracked bets %s: %w", address, err)
	}
	return out, nil
}

// MarkChecked records that an open bet was examined at at.
func (s *Store) MarkChecked(ctx context.Context, id string, at time.Time) error {
	return s.updateTracked(ctx, "mark checked", id,
		`UPDATE tracked_bets SET checked_at = ? WHERE id = ?`, toMillis(at), id)
}

// MarkSettled flags a bet as settled and links the ledger entry.
func (s *Store) MarkSettled(ctx context.Context, id, entryID string, at time.Time) error {
	return s.updateTracked(ctx, "mark settled", id,
		`UPDATE tracked_bets SET settled = 1, settled_at = ?, checked_at = ?, entry_id = ? WHERE id = ?`,
		toMillis(at), toMillis(at), entryID, id)
}

// MarkExpired closes a bet without a ledger entry.
func (s *Store) MarkExpired(ctx context.Context, id string, at time.Time) error {
	return s.updateTracked(ctx, "mark expired", id,
		`UPDATE tracked_bets SET settled = 1, expired = 1, settled_at = ?, checked_at = ? WHERE id = ?`,
		toMillis(at), toMillis(at), id)
}

func (s *Store) updateTracked(ctx context.Context, op, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: %s %s: %w", op, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("sqlite: %s %s: %w", op, id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) queryTracked(ctx context.Context, query string, args ...any) ([]domain.TrackedBet, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.TrackedBet
	for rows.Next() {
		b, err := scanTracked(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// --- audit ---

// Log appends an audit entry. The detail map is stored as JSON text.
func (s *Store) Log(ctx context.Context, event string, detail map[string]any) error {
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("sqlite: marshal audit detail: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (event, detail, created_at) VALUES (?, ?, ?)`,
		event, string(detailJSON), toMillis(time.Now())); err != nil {
		return fmt.Errorf("sqlite: log audit event %s: %w", event, err)
	}
	return nil
}

// List returns audit entries, newest first. A non-empty event filters to
// that event name.
func (s *Store) List(ctx context.Context, event string, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	query := `SELECT id, event, detail, created_at FROM audit_log WHERE 1=1`
	var args []any
	if event != "" {
		query += " AND event = ?"
		args = append(args, event)
	}
	if opts.Since != nil {
		query += " AND created_at >= ?"
		args = append(args, toMillis(*opts.Since))
	}
	if opts.Until != nil {
		query += " AND created_at <= ?"
		args = append(args, toMillis(*opts.Until))
	}
	query += " ORDER BY created_at DESC, id DESC"
	query, args = limitOffset(query, args, opts)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var (
			e       domain.AuditEntry
			detail  sql.NullString
			created int64
		)
		if err := rows.Scan(&e.ID, &e.Event, &detail, &created); err != nil {
			return nil, fmt.Errorf("sqlite: scan audit entry: %w", err)
		}
		if detail.Valid && detail.String != "" {
			if err := json.Unmarshal([]byte(detail.String), &e.Detail); err != nil {
				return nil, fmt.Errorf("sqlite: unmarshal audit detail: %w", err)
			}
		}
		e.CreatedAt = fromMillis(created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
