package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/alanyoungcy/betengine/internal/domain"
)

// testClient connects to the server named by BETENGINE_TEST_REDIS_ADDR and
// flushes the selected database. Tests skip when it is unset.
func testClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("BETENGINE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("BETENGINE_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	c, err := New(ctx, ClientConfig{Addr: addr, DB: 15})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := c.Underlying().FlushDB(ctx).Err(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestOptionsFromURL(t *testing.T) {
	opts, err := options(ClientConfig{URL: "redis://:secret@cache.internal:6380/3", PoolSize: 7})
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.Addr != "cache.internal:6380" || opts.Password != "secret" || opts.DB != 3 || opts.PoolSize != 7 {
		t.Fatalf("unexpected options %+v", opts)
	}
	if _, err := options(ClientConfig{URL: "http://nope"}); err == nil {
		t.Fatal("expected bad scheme error")
	}
}

func TestPriceCacheRoundTrip(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	pc := NewPriceCache(c, time.Minute)

	now := time.Now().UTC().Truncate(time.Second)
	if err := pc.SetQuote(ctx, domain.Quote{Symbol: "eth", ProviderID: "ethereum", PriceUSD: 3120.5, UpdatedAt: now}); err != nil {
		t.Fatalf("set quote: %v", err)
	}
	q, err := pc.GetQuote(ctx, "ETH")
	if err != nil {
		t.Fatalf("get quote: %v", err)
	}
	if q.PriceUSD != 3120.5 || q.ProviderID != "ethereum" || !q.UpdatedAt.Equal(now) {
		t.Fatalf("unexpected quote %+v", q)
	}
	quotes, err := pc.GetQuotes(ctx, []string{"eth", "btc"})
	if err != nil || len(quotes) != 1 {
		t.Fatalf("get quotes: %v %v", quotes, err)
	}

	if _, err := pc.GetHistory(ctx, "BTC:1d"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	candles := []domain.Candle{{Time: now, Open: 1, High: 2, Low: 0.5, Close: 1.5}}
	if err := pc.SetHistory(ctx, "BTC:1d", candles, time.Minute); err != nil {
		t.Fatalf("set history: %v", err)
	}
	got, err := pc.GetHistory(ctx, "BTC:1d")
	if err != nil || len(got) != 1 || got[0].High != 2 {
		t.Fatalf("get history: %v %v", got, err)
	}
}

func TestLeaderboardCacheRanks(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	lc := NewLeaderboardCache(c)

	for _, r := range []domain.LeaderboardRecord{
		{Address: "0xAA", TotalPoints: 100},
		{Address: "0xbb", TotalPoints: 300},
		{Address: "0xcc", TotalPoints: 200},
	} {
		if err := lc.Put(ctx, r); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	top, err := lc.Top(ctx, 2)
	if err != nil || len(top) != 2 || top[0].Address != "0xbb" {
		t.Fatalf("top: %+v %v", top, err)
	}
	rank, err := lc.Rank(ctx, "0xaa")
	if err != nil || rank != 3 {
		t.Fatalf("rank = %d, %v; want 3", rank, err)
	}
	if _, err := lc.Rank(ctx, "0xdd"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRateLimiterWindow(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	rl := NewRateLimiter(c)

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "test", 3, time.Minute)
		if err != nil || !ok {
			t.Fatalf("request %d: allowed=%v err=%v", i+1, ok, err)
		}
	}
	if ok, _ := rl.Allow(ctx, "test", 3, time.Minute); ok {
		t.Fatal("expected fourth request to be denied")
	}

	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	if err := rl.Wait(waitCtx, "test", 3, time.Minute); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline from Wait, got %v", err)
	}
}

func TestLockExclusive(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	lm := NewLockManager(c)

	unlock, err := lm.Acquire(ctx, "job", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := lm.Acquire(ctx, "job", time.Minute); !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}
	unlock()
	unlock()
	again, err := lm.Acquire(ctx, "job", time.Minute)
	if err != nil {
		t.Fatalf("re-acquire: %v", err)
	}
	again()
}

func TestLockHoldRenews(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	lm := NewLockManager(c)

	held, release, err := lm.Hold(ctx, "cycle", 300*time.Millisecond)
	if err != nil {
		t.Fatalf("hold: %v", err)
	}
	time.Sleep(time.Second)
	if held.Err() != nil {
		t.Fatalf("held context ended early: %v", held.Err())
	}
	if _, err := lm.Acquire(ctx, "cycle", time.Minute); !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("lock expired while held: %v", err)
	}
	release()
	if held.Err() == nil {
		t.Fatal("release should cancel the held context")
	}
	again, err := lm.Acquire(ctx, "cycle", time.Minute)
	if err != nil {
		t.Fatalf("re-acquire after release: %v", err)
	}
	again()
}

func TestKeepAliveStopsWhenLockLost(t *testing.T) {
	calls := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		keepAlive(context.Background(), 3*time.Millisecond, func(context.Context) (bool, error) {
			calls++
			return calls < 3, nil
		})
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("keepAlive did not stop after the lock was lost")
	}
	if calls != 3 {
		t.Fatalf("extend calls = %d, want 3", calls)
	}
}

func TestKeepAliveGivesUpAfterTTLOfErrors(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		keepAlive(context.Background(), 30*time.Millisecond, func(context.Context) (bool, error) {
			return false, errors.New("connection refused")
		})
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("keepAlive kept renewing a lock that could have expired")
	}
}

func TestKeepAliveStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		keepAlive(ctx, time.Hour, func(context.Context) (bool, error) { return true, nil })
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("keepAlive ignored cancellation")
	}
}

func TestSignalBusStream(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	sb := NewSignalBus(c, 100)

	for _, p := range []string{"a", "b", "c"} {
		if err := sb.StreamAppend(ctx, "stream:test", []byte(p)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	msgs, err := sb.StreamRead(ctx, "stream:test", "", 2)
	if err != nil || len(msgs) != 2 || string(msgs[0].Payload) != "a" {
		t.Fatalf("read: %+v %v", msgs, err)
	}
	rest, err := sb.StreamRead(ctx, "stream:test", msgs[1].ID, 10)
	if err != nil || len(rest) != 1 || string(rest[0].Payload) != "c" {
		t.Fatalf("read after: %+v %v", rest, err)
	}
}
