package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/betengine/internal/domain"
)

const (
	trackedColumns = `id, address, kind, contract, contract_id, placed_at, settled, settled_at, entry_id, expired, checked_at`
	selectTracked  = `SELECT ` + trackedColumns + ` FROM tracked_bets`
)

// TrackedBetStore implements domain.TrackedBetStore on PostgreSQL.
type TrackedBetStore struct {
	pool *pgxpool.Pool
}

// NewTrackedBetStore creates a TrackedBetStore.
func NewTrackedBetStore(pool *pgxpool.Pool) *TrackedBetStore {
	return &TrackedBetStore{pool: pool}
}

// Track registers a bet. Registering the same id again returns the stored row.
func (s *TrackedBetStore) Track(ctx context.Context, b domain.TrackedBet) (domain.TrackedBet, error) {
	const insert = `
		INSERT INTO tracked_bets (id, address, kind, contract, contract_id, placed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`
	if _, err := s.pool.Exec(ctx, insert,
		b.ID, strings.ToLower(b.Address), string(b.Kind), strings.ToLower(b.Contract),
		int64(b.ContractID), b.PlacedAt.UTC(),
	); err != nil {
		return domain.TrackedBet{}, fmt.Errorf("postgres: track bet %s: %w", b.ID, err)
	}

	stored, err := scanTracked(s.pool.QueryRow(ctx, selectTracked+` WHERE id = $1`, b.ID))
	if err != nil {
		return domain.TrackedBet{}, fmt.Errorf("postgres: load tracked bet %s: %w", b.ID, err)
	}
	return stored, nil
}

// ListUnsettled returns open bets, never-checked first, then the least
// recently checked.
func (s *TrackedBetStore) ListUnsettled(ctx context.Context, limit int) ([]domain.TrackedBet, error) {
	if limit <= 0 {
		limit = 100
	}
	query, args := unsettledQuery(limit)
	out, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list unsettled bets: %w", err)
	}
	return out, nil
}

func unsettledQuery(limit int) (string, []any) {
	return selectFrom(selectTracked).
		where("NOT settled").
		orderBy("checked_at NULLS FIRST, placed_at, id").
		page(limit, 0).
		build()
}

// ListByAddress returns an address's tracked bets, newest first.
func (s *TrackedBetStore) ListByAddress(ctx context.Context, address string, opts domain.ListOpts) ([]domain.TrackedBet, error) {
	query, args := selectFrom(selectTracked).
		where("address = ?", strings.ToLower(address)).
		window("placed_at", opts).
		orderBy("placed_at DESC, id").
		page(opts.Limit, opts.Offset).
		build()
	out, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list tracked bets %s: %w", address, err)
	}
	return out, nil
}

// MarkChecked records that an open bet was examined and is still unresolved.
func (s *TrackedBetStore) MarkChecked(ctx context.Context, id string, at time.Time) error {
	return s.update(ctx, "mark checked", id,
		`UPDATE tracked_bets SET checked_at = $2 WHERE id = $1`, id, at.UTC())
}

// MarkSettled flags a bet as settled and links the ledger entry.
func (s *TrackedBetStore) MarkSettled(ctx context.Context, id, entryID string, at time.Time) error {
	return s.update(ctx, "mark settled", id,
		`UPDATE tracked_bets SET settled = TRUE, settled_at = $2, checked_at = $2, entry_id = $3 WHERE id = $1`,
		id, at.UTC(), entryID)
}

// MarkExpired closes a bet without a ledger entry.
func (s *TrackedBetStore) MarkExpired(ctx context.Context, id string, at time.Time) error {
	return s.update(ctx, "mark expired", id,
		`UPDATE tracked_bets SET settled = TRUE, expired = TRUE, settled_at = $2, checked_at = $2 WHERE id = $1`,
		id, at.UTC())
}

func (s *TrackedBetStore) update(ctx context.Context, op, id, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("postgres: %s %s: %w", op, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: %s %s: %w", op, id, domain.ErrNotFound)
	}
	return nil
}

func (s *TrackedBetStore) query(ctx context.Context, query string, args ...any) ([]domain.TrackedBet, error) {
	rows, err := s.pool.Query(ctx, query, args...)
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

func scanTracked(row pgx.Row) (domain.TrackedBet, error) {
	var (
		b          domain.TrackedBet
		kind       string
		contractID int64
	)
	err := row.Scan(
		&b.ID, &b.Address, &kind, &b.Contract, &contractID, &b.PlacedAt,
		&b.Settled, &b.SettledAt, &b.EntryID, &b.Expired, &b.CheckedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TrackedBet{}, domain.ErrNotFound
		}
		return domain.TrackedBet{}, err
	}
	b.Kind = domain.BetKind(kind)
	b.ContractID = uint64(contractID)
	b.PlacedAt = b.PlacedAt.UTC()
	return b, nil
}
