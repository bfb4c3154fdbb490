package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// LedgerStore persists the points ledger and the leaderboard aggregate.
// Implementations must write the entry and the aggregate atomically so that
// a record's TotalPoints always equals the sum of its entries.
type LedgerStore interface {
	// Append stores the entry and folds it into the address aggregate. If an
	// entry with the same (address, bet id) exists, it returns that entry,
	// created=false, and leaves the aggregate untouched.
	Append(ctx context.Context, entry LedgerEntry) (stored LedgerEntry, created bool, err error)
	GetRecord(ctx context.Context, address string) (LeaderboardRecord, error)
	ListEntries(ctx context.Context, address string, opts ListOpts) ([]LedgerEntry, error)
	// ListEntriesAfter returns entries with Seq greater than after, in Seq
	// order.
	ListEntriesAfter(ctx context.Context, after int64, limit int) ([]LedgerEntry, error)
	TopRecords(ctx context.Context, limit int) ([]LeaderboardRecord, error)
}

// TrackedBetStore persists bets registered for automatic settlement.
type TrackedBetStore interface {
	Track(ctx context.Context, bet TrackedBet) (TrackedBet, error)
	// ListUnsettled returns open bets, never-checked first, then least
	// recently checked, so repeated calls rotate through every open bet.
	ListUnsettled(ctx context.Context, limit int) ([]TrackedBet, error)
	ListByAddress(ctx context.Context, address string, opts ListOpts) ([]TrackedBet, error)
	MarkChecked(ctx context.Context, id string, at time.Time) error
	MarkSettled(ctx context.Context, id string, entryID string, at time.Time) error
	MarkExpired(ctx context.Context, id string, at time.Time) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	// List returns entries newest first; an empty event matches all.
	List(ctx context.Context, event string, opts ListOpts) ([]AuditEntry, error)
}
