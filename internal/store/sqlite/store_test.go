package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/betengine/internal/domain"
)

const addr = "0xabcdef0123456789abcdef0123456789abcdef01"

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "betengine.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func entry(betID string, points int64, won bool, at time.Time) domain.LedgerEntry {
	return domain.LedgerEntry{
		Address:          "0xABCDEF0123456789abcdef0123456789ABCDEF01",
		BetID:            betID,
		USDAmount:        20,
		TimeframeSeconds: 300,
		Direction:        domain.DirectionUp,
		Won:              won,
		PointsEarned:     points,
		CreatedAt:        at,
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(context.Background(), " "); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestOpenIsRepeatable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "again.db")
	for i := 0; i < 2; i++ {
		store, err := Open(context.Background(), path)
		if err != nil {
			t.Fatalf("open #%d: %v", i+1, err)
		}
		_ = store.Close()
	}
}

func TestAppendFoldsIntoRecord(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	base := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	if _, created, err := store.Append(ctx, entry("bet-1", 450, true, base)); err != nil || !created {
		t.Fatalf("append bet-1: created=%v err=%v", created, err)
	}
	if _, created, err := store.Append(ctx, entry("bet-2", 112, false, base.Add(time.Minute))); err != nil || !created {
		t.Fatalf("append bet-2: created=%v err=%v", created, err)
	}

	rec, err := store.GetRecord(ctx, addr)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec.Address != addr {
		t.Fatalf("address = %q, want lower-cased %q", rec.Address, addr)
	}
	if rec.TotalPoints != 562 || rec.Wins != 1 || rec.Losses != 1 || rec.TotalBets != 2 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if !rec.UpdatedAt.Equal(base.Add(time.Minute)) {
		t.Fatalf("updated_at = %v", rec.UpdatedAt)
	}

	entries, err := store.ListEntries(ctx, addr, domain.ListOpts{})
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 2 || entries[0].BetID != "bet-2" {
		t.Fatalf("expected newest first, got %+v", entries)
	}
	if entries[1].Direction != domain.DirectionUp || !entries[1].Won {
		t.Fatalf("unexpected entry %+v", entries[1])
	}
}

func TestAppendDuplicateBetIsIdempotent(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	first, created, err := store.Append(ctx, entry("bet-1", 450, true, now))
	if err != nil || !created {
		t.Fatalf("first append: created=%v err=%v", created, err)
	}
	second, created, err := store.Append(ctx, entry("bet-1", 9999, true, now.Add(time.Hour)))
	if err != nil {
		t.Fatalf("second append: %v", err)
	}
	if created {
		t.Fatal("expected duplicate append to report created=false")
	}
	if second.ID != first.ID || second.PointsEarned != 450 {
		t.Fatalf("expected stored entry back, got %+v", second)
	}

	rec, err := store.GetRecord(ctx, addr)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec.TotalPoints != 450 || rec.TotalBets != 1 {
		t.Fatalf("duplicate changed the aggregate: %+v", rec)
	}
}

func TestConcurrentAppendsKeepAggregateConsistent(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := store.Append(ctx, entry(fmt.Sprintf("bet-%d", i), int64(100+i), i%2 == 0, now))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	rec, err := store.GetRecord(ctx, addr)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	entries, err := store.ListEntries(ctx, addr, domain.ListOpts{})
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	var sum int64
	for _, e := range entries {
		sum += e.PointsEarned
	}
	if rec.TotalPoints != sum || rec.TotalBets != int64(len(entries)) || rec.Wins+rec.Losses != rec.TotalBets {
		t.Fatalf("aggregate %+v does not match %d entries summing to %d", rec, len(entries), sum)
	}
}

func TestGetRecordNotFound(t *testing.T) {
	store := openTempStore(t)
	if _, err := store.GetRecord(context.Background(), addr); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTopRecordsAndEntriesAfter(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	// Entries share a timestamp; the export cursor must not depend on it.
	at := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	var seqs []int64
	for i, a := range []string{"0x01", "0x02", "0x03"} {
		e := entry("bet", int64((i+1)*100), true, at)
		e.Address = a
		stored, _, err := store.Append(ctx, e)
		if err != nil {
			t.Fatalf("append %s: %v", a, err)
		}
		seqs = append(seqs, stored.Seq)
	}
	if seqs[0] <= 0 || seqs[1] <= seqs[0] || seqs[2] <= seqs[1] {
		t.Fatalf("seq not increasing: %v", seqs)
	}

	top, err := store.TopRecords(ctx, 2)
	if err != nil {
		t.Fatalf("top records: %v", err)
	}
	if len(top) != 2 || top[0].Address != "0x03" || top[1].Address != "0x02" {
		t.Fatalf("unexpected top records %+v", top)
	}

	after, err := store.ListEntriesAfter(ctx, seqs[0], 10)
	if err != nil {
		t.Fatalf("entries after: %v", err)
	}
	if len(after) != 2 || after[0].Address != "0x02" || after[0].Seq != seqs[1] {
		t.Fatalf("expected entries after the first in seq order, got %+v", after)
	}
	page, err := store.ListEntriesAfter(ctx, 0, 1)
	if err != nil || len(page) != 1 || page[0].Seq != seqs[0] {
		t.Fatalf("limited page = %+v, %v", page, err)
	}

	// Same bet id under a new address is a separate entry.
	fourth, created, err := store.Append(ctx, entry("bet", 1, true, at))
	if err != nil || !created {
		t.Fatalf("append: created=%v err=%v", created, err)
	}
	dup, created, err := store.Append(ctx, entry("bet", 1, true, at))
	if err != nil || created || dup.Seq != fourth.Seq {
		t.Fatalf("duplicate append: seq=%d created=%v err=%v, want seq %d", dup.Seq, created, err, fourth.Seq)
	}
	all, _ := store.ListEntriesAfter(ctx, 0, 10)
	if len(all) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(all))
	}
}

func TestTrackedBets(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	placed := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	bet := domain.TrackedBet{
		ID:         "prediction:0x33:4:" + addr,
		Address:    addr,
		Kind:       domain.BetKindPrediction,
		Contract:   "0x33",
		ContractID: 4,
		PlacedAt:   placed,
	}
	stored, err := store.Track(ctx, bet)
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if stored.Settled || stored.ContractID != 4 || !stored.PlacedAt.Equal(placed) {
		t.Fatalf("unexpected stored bet %+v", stored)
	}
	if _, err := store.Track(ctx, bet); err != nil {
		t.Fatalf("re-track should be a no-op, got %v", err)
	}

	pending, err := store.ListUnsettled(ctx, 10)
	if err != nil || len(pending) != 1 {
		t.Fatalf("list unsettled: %v, %d rows", err, len(pending))
	}

	at := placed.Add(time.Hour)
	if err := store.MarkSettled(ctx, bet.ID, "entry-1", at); err != nil {
		t.Fatalf("mark settled: %v", err)
	}
	if err := store.MarkSettled(ctx, "missing", "entry-2", at); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown bet, got %v", err)
	}

	pending, err = store.ListUnsettled(ctx, 10)
	if err != nil || len(pending) != 0 {
		t.Fatalf("expected no unsettled bets, got %d (%v)", len(pending), err)
	}
	mine, err := store.ListByAddress(ctx, addr, domain.ListOpts{Limit: 5})
	if err != nil || len(mine) != 1 {
		t.Fatalf("list by address: %v, %d rows", err, len(mine))
	}
	if !mine[0].Settled || mine[0].EntryID != "entry-1" || mine[0].SettledAt == nil || !mine[0].SettledAt.Equal(at) {
		t.Fatalf("unexpected settled bet %+v", mine[0])
	}
}

func TestListUnsettledRotatesByCheckTime(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	placed := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if _, err := store.Track(ctx, domain.TrackedBet{
			ID: fmt.Sprintf("bet-%d", i), Address: addr, Kind: domain.BetKindPrediction,
			Contract: "0x33", ContractID: uint64(i), PlacedAt: placed.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("track: %v", err)
		}
	}

	first, err := store.ListUnsettled(ctx, 2)
	if err != nil || len(first) != 2 || first[0].ID != "bet-0" || first[1].ID != "bet-1" {
		t.Fatalf("first batch = %+v, %v", first, err)
	}
	checked := placed.Add(time.Hour)
	for _, b := range first {
		if err := store.MarkChecked(ctx, b.ID, checked); err != nil {
			t.Fatalf("mark checked: %v", err)
		}
	}

	second, err := store.ListUnsettled(ctx, 2)
	if err != nil || len(second) != 2 || second[0].ID != "bet-2" || second[1].ID != "bet-0" {
		t.Fatalf("second batch should start with the unchecked bet, got %+v, %v", second, err)
	}
	if second[1].CheckedAt == nil || !second[1].CheckedAt.Equal(checked) {
		t.Fatalf("checked_at = %v", second[1].CheckedAt)
	}

	if err := store.MarkExpired(ctx, "bet-2", checked); err != nil {
		t.Fatalf("mark expired: %v", err)
	}
	if err := store.MarkChecked(ctx, "missing", checked); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	open, _ := store.ListUnsettled(ctx, 10)
	if len(open) != 2 {
		t.Fatalf("expired bet still open: %+v", open)
	}
	mine, _ := store.ListByAddress(ctx, addr, domain.ListOpts{})
	for _, b := range mine {
		if b.ID == "bet-2" && (!b.Expired || !b.Settled || b.EntryID != "") {
			t.Fatalf("unexpected expired bet %+v", b)
		}
	}
}

func TestAuditLog(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	if err := store.Log(ctx, "points_awarded", map[string]any{"address": addr, "points": 450}); err != nil {
		t.Fatalf("log: %v", err)
	}
	if err := store.Log(ctx, "export_completed", map[string]any{"cursor": 1}); err != nil {
		t.Fatalf("log: %v", err)
	}
	all, err := store.List(ctx, "", domain.ListOpts{Limit: 10})
	if err != nil || len(all) != 2 || all[0].Event != "export_completed" {
		t.Fatalf("list all = %+v, %v", all, err)
	}
	entries, err := store.List(ctx, "points_awarded", domain.ListOpts{Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 || entries[0].Event != "points_awarded" {
		t.Fatalf("unexpected audit entries %+v", entries)
	}
	if entries[0].Detail["points"] != float64(450) {
		t.Fatalf("detail round trip lost points: %+v", entries[0].Detail)
	}
}
