package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/betengine/internal/domain"
)

// ledgerColumns excludes seq, which the database assigns.
const (
	ledgerColumns = `id, address, bet_id, usd_amount, timeframe_seconds, direction, won, points_earned, created_at`
	selectLedger  = `SELECT seq, ` + ledgerColumns + ` FROM points_ledger`
	recordColumns = `address, total_points, wins, losses, total_bets, updated_at`
)

// ledgerAppendLock is the transaction advisory lock every Append holds, so
// seq values become visible in the order they were assigned.
const ledgerAppendLock int64 = 0x62657465_6c656467

// LedgerStore implements domain.LedgerStore on PostgreSQL.
type LedgerStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewLedgerStore creates a LedgerStore.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

// normalizeEntry fills defaults and rounds CreatedAt to the microsecond
// precision TIMESTAMPTZ stores, so the returned entry equals the stored one.
func normalizeEntry(e domain.LedgerEntry, now time.Time) domain.LedgerEntry {
	e.Address = strings.ToLower(e.Address)
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.CreatedAt = e.CreatedAt.UTC().Truncate(time.Microsecond)
	return e
}

// Append inserts the entry and folds it into the leaderboard row in the same
// transaction. A duplicate (address, bet_id) returns the existing entry.
func (s *LedgerStore) Append(ctx context.Context, e domain.LedgerEntry) (domain.LedgerEntry, bool, error) {
	e = normalizeEntry(e, s.now())

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.LedgerEntry{}, false, fmt.Errorf("postgres: begin append: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, ledgerAppendLock); err != nil {
		return domain.LedgerEntry{}, false, fmt.Errorf("postgres: lock ledger: %w", err)
	}

	const insert = `
		INSERT INTO points_ledger (` + ledgerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (address, bet_id) DO NOTHING
		RETURNING seq`
	err = tx.QueryRow(ctx, insert,
		e.ID, e.Address, e.BetID, e.USDAmount, e.TimeframeSeconds,
		string(e.Direction), e.Won, e.PointsEarned, e.CreatedAt,
	).Scan(&e.Seq)
	if errors.Is(err, pgx.ErrNoRows) {
		existing, err := scanEntry(tx.QueryRow(ctx,
			selectLedger+` WHERE address = $1 AND bet_id = $2`, e.Address, e.BetID))
		if err != nil {
			return domain.LedgerEntry{}, false, fmt.Errorf("postgres: load duplicate entry %s/%s: %w", e.Address, e.BetID, err)
		}
		return existing, false, nil
	}
	if err != nil {
		return domain.LedgerEntry{}, false, fmt.Errorf("postgres: insert ledger entry: %w", err)
	}

	wins, losses := outcomeCounts(e.Won)
	const upsert = `
		INSERT INTO leaderboard (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, 1, $5)
		ON CONFLICT (address) DO UPDATE SET
			total_points = leaderboard.total_points + EXCLUDED.total_points,
			wins         = leaderboard.wins + EXCLUDED.wins,
			losses       = leaderboard.losses + EXCLUDED.losses,
			total_bets   = leaderboard.total_bets + 1,
			updated_at   = GREATEST(leaderboard.updated_at, EXCLUDED.updated_at)`
	if _, err := tx.Exec(ctx, upsert, e.Address, e.PointsEarned, wins, losses, e.CreatedAt); err != nil {
		return domain.LedgerEntry{}, false, fmt.Errorf("postgres: update leaderboard %s: %w", e.Address, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.LedgerEntry{}, false, fmt.Errorf("postgres: commit append: %w", err)
	}
	return e, true, nil
}

func outcomeCounts(won bool) (wins, losses int64) {
	if won {
		return 1, 0
	}
	return 0, 1
}

// GetRecord returns the aggregate for one address.
func (s *LedgerStore) GetRecord(ctx context.Context, address string) (domain.LeaderboardRecord, error) {
	address = strings.ToLower(address)
	r, err := scanRecord(s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM leaderboard WHERE address = $1`, address))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LeaderboardRecord{}, fmt.Errorf("postgres: record %s: %w", address, domain.ErrNotFound)
		}
		return domain.LeaderboardRecord{}, fmt.Errorf("postgres: get record %s: %w", address, err)
	}
	return r, nil
}

// ListEntries returns an address's entries, newest first.
func (s *LedgerStore) ListEntries(ctx context.Context, address string, opts domain.ListOpts) ([]domain.LedgerEntry, error) {
	query, args := entriesQuery(address, opts)
	entries, err := s.queryEntries(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list entries %s: %w", address, err)
	}
	return entries, nil
}

func entriesQuery(address string, opts domain.ListOpts) (string, []any) {
	return selectFrom(selectLedger).
		where("address = ?", strings.ToLower(address)).
		window("created_at", opts).
		orderBy("created_at DESC, seq DESC").
		page(opts.Limit, opts.Offset).
		build()
}

// ListEntriesAfter returns entries with seq greater than after, in seq order.
func (s *LedgerStore) ListEntriesAfter(ctx context.Context, after int64, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 {
		limit = 1000
	}
	query, args := selectFrom(selectLedger).
		where("seq > ?", after).
		orderBy("seq").
		page(limit, 0).
		build()
	entries, err := s.queryEntries(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list entries after %d: %w", after, err)
	}
	return entries, nil
}

// TopRecords returns the highest-scoring aggregates.
func (s *LedgerStore) TopRecords(ctx context.Context, limit int) ([]domain.LeaderboardRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM leaderboard ORDER BY total_points DESC, address LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: top records: %w", err)
	}
	defer rows.Close()

	var out []domain.LeaderboardRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: top records: %w", err)
	}
	return out, nil
}

func (s *LedgerStore) queryEntries(ctx context.Context, query string, args ...any) ([]domain.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx, query, args...)
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

func scanEntry(row pgx.Row) (domain.LedgerEntry, error) {
	var (
		e         domain.LedgerEntry
		direction string
	)
	if err := row.Scan(
		&e.Seq, &e.ID, &e.Address, &e.BetID, &e.USDAmount, &e.TimeframeSeconds,
		&direction, &e.Won, &e.PointsEarned, &e.CreatedAt,
	); err != nil {
		return domain.LedgerEntry{}, err
	}
	e.Direction = domain.Direction(direction)
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}

func scanRecord(row pgx.Row) (domain.LeaderboardRecord, error) {
	var r domain.LeaderboardRecord
	if err := row.Scan(&r.Address, &r.TotalPoints, &r.Wins, &r.Losses, &r.TotalBets, &r.UpdatedAt); err != nil {
		return domain.LeaderboardRecord{}, err
	}
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}
