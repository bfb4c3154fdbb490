package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/betengine/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// memLedger is an in-memory domain.LedgerStore.
type memLedger struct {
	mu      sync.Mutex
	entries []domain.LedgerEntry
	records map[string]domain.LeaderboardRecord
	failErr error
}

func newMemLedger() *memLedger {
	return &memLedger{records: map[string]domain.LeaderboardRecord{}}
}

func (m *memLedger) Append(_ context.Context, e domain.LedgerEntry) (domain.LedgerEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return domain.LedgerEntry{}, false, m.failErr
	}
	for _, existing := range m.entries {
		if existing.Address == e.Address && existing.BetID == e.BetID {
			return existing, false, nil
		}
	}
	e.Seq = int64(len(m.entries) + 1)
	m.entries = append(m.entries, e)
	rec := m.records[e.Address]
	rec.Address = e.Address
	rec.Apply(e)
	m.records[e.Address] = rec
	return e, true, nil
}

func (m *memLedger) GetRecord(_ context.Context, address string) (domain.LeaderboardRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[address]
	if !ok {
		return domain.LeaderboardRecord{}, domain.ErrNotFound
	}
	return rec, nil
}

func (m *memLedger) ListEntries(_ context.Context, address string, _ domain.ListOpts) ([]domain.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.LedgerEntry
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].Address == address {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

func (m *memLedger) ListEntriesAfter(_ context.Context, after int64, limit int) ([]domain.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.LedgerEntry
	for _, e := range m.entries {
		if e.Seq > after {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memLedger) TopRecords(_ context.Context, limit int) ([]domain.LeaderboardRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.LeaderboardRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalPoints != out[j].TotalPoints {
			return out[i].TotalPoints > out[j].TotalPoints
		}
		return out[i].Address < out[j].Address
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// memBoard is an in-memory domain.LeaderboardCache.
type memBoard struct {
	mu      sync.Mutex
	records map[string]domain.LeaderboardRecord
}

func newMemBoard() *memBoard {
	return &memBoard{records: map[string]domain.LeaderboardRecord{}}
}

func (b *memBoard) Put(_ context.Context, rec domain.LeaderboardRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records[rec.Address] = rec
	return nil
}

func (b *memBoard) sorted() []domain.LeaderboardRecord {
	out := make([]domain.LeaderboardRecord, 0, len(b.records))
	for _, r := range b.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalPoints > out[j].TotalPoints })
	return out
}

func (b *memBoard) Top(_ context.Context, limit int) ([]domain.LeaderboardRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.sorted()
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (b *memBoard) Rank(_ context.Context, address string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, r := range b.sorted() {
		if r.Address == address {
			return i + 1, nil
		}
	}
	return 0, domain.ErrNotFound
}

// memBus records publishes and keeps streams in memory.
type memBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	streams   map[string][]domain.StreamMessage
}

func newMemBus() *memBus {
	return &memBus{published: map[string][][]byte{}, streams: map[string][]domain.StreamMessage{}}
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *memBus) Subscribe(ctx context.Context, _ string) (<-chan []byte, error) {
	ch := make(chan []byte)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (b *memBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := fmt.Sprintf("%d-0", len(b.streams[stream])+1)
	b.streams[stream] = append(b.streams[stream], domain.StreamMessage{ID: id, Payload: payload})
	return nil
}

func (b *memBus) StreamRead(_ context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	msgs := b.streams[stream]
	start := 0
	for i, m := range msgs {
		if m.ID == lastID {
			start = i + 1
		}
	}
	out := msgs[start:]
	if len(out) > count {
		out = out[:count]
	}
	return out, nil
}

func (b *memBus) count(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published[channel])
}

type memAudit struct {
	mu     sync.Mutex
	events []string
}

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(_ context.Context, _ string, _ domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type memNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *memNotifier) Notify(_ context.Context, event, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

// memTracked is an in-memory domain.TrackedBetStore.
type memTracked struct {
	mu   sync.Mutex
	bets map[string]domain.TrackedBet
}

func newMemTracked() *memTracked {
	return &memTracked{bets: map[string]domain.TrackedBet{}}
}

func (m *memTracked) Track(_ context.Context, b domain.TrackedBet) (domain.TrackedBet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.bets[b.ID]; ok {
		return existing, nil
	}
	m.bets[b.ID] = b
	return b, nil
}

func (m *memTracked) ListUnsettled(_ context.Context, limit int) ([]domain.TrackedBet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.TrackedBet
	for _, b := range m.bets {
		if !b.Settled {
			out = append(out, b)
		}
	}
	checked := func(b domain.TrackedBet) int64 {
		if b.CheckedAt == nil {
			return 0
		}
		return b.CheckedAt.UnixNano()
	}
	sort.Slice(out, func(i, j int) bool {
		if ci, cj := checked(out[i]), checked(out[j]); ci != cj {
			return ci < cj
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memTracked) ListByAddress(_ context.Context, address string, _ domain.ListOpts) ([]domain.TrackedBet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.TrackedBet
	for _, b := range m.bets {
		if b.Address == address {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memTracked) MarkSettled(_ context.Context, id, entryID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bets[id]
	if !ok {
		return domain.ErrNotFound
	}
	b.Settled = true
	b.EntryID = entryID
	b.SettledAt = &at
	m.bets[id] = b
	return nil
}

func (m *memTracked) MarkChecked(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bets[id]
	if !ok {
		return domain.ErrNotFound
	}
	b.CheckedAt = &at
	m.bets[id] = b
	return nil
}

func (m *memTracked) MarkExpired(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bets[id]
	if !ok {
		return domain.ErrNotFound
	}
	b.Settled = true
	b.Expired = true
	b.SettledAt = &at
	m.bets[id] = b
	return nil
}

func (m *memTracked) get(id string) domain.TrackedBet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bets[id]
}

// heldLock always reports the lock as taken.
type heldLock struct{}

func (heldLock) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

func (heldLock) Hold(context.Context, string, time.Duration) (context.Context, func(), error) {
	return nil, nil, domain.ErrLockHeld
}

// recordingLock grants every Hold and remembers the requested TTLs. When
// lost is set the held context is already cancelled.
type recordingLock struct {
	mu   sync.Mutex
	ttls []time.Duration
	lost bool
}

func (l *recordingLock) Acquire(context.Context, string, time.Duration) (func(), error) {
	return func() {}, nil
}

func (l *recordingLock) Hold(ctx context.Context, _ string, ttl time.Duration) (context.Context, func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ttls = append(l.ttls, ttl)
	held, cancel := context.WithCancel(ctx)
	if l.lost {
		cancel()
	}
	return held, cancel, nil
}
