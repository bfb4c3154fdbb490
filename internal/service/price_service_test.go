package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/betengine/internal/domain"
)

type fakeProvider struct {
	mu            sync.Mutex
	price         float64
	quoteCalls    int
	ohlcDays      []int
	chartDays     []int
	ticks         []domain.PricePoint
	quoteErr      error
	nativeDays    map[int]time.Duration
	nativeCandles []domain.Candle
}

func (f *fakeProvider) Resolve(symbol string) (string, error) {
	switch strings.ToUpper(symbol) {
	case "BTC":
		return "bitcoin", nil
	case "ETH":
		return "ethereum", nil
	}
	return "", domain.ErrUnsupportedSymbol
}

func (f *fakeProvider) GetQuote(_ context.Context, symbol string) (domain.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quoteCalls++
	if f.quoteErr != nil {
		return domain.Quote{}, f.quoteErr
	}
	return domain.Quote{Symbol: symbol, PriceUSD: f.price, UpdatedAt: time.Now().UTC()}, nil
}

func (f *fakeProvider) GetQuotes(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	out := map[string]domain.Quote{}
	for _, s := range symbols {
		q, err := f.GetQuote(ctx, s)
		if err != nil {
			return nil, err
		}
		out[s] = q
	}
	return out, nil
}

func (f *fakeProvider) MarketChart(_ context.Context, _ string, days int) ([]domain.PricePoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chartDays = append(f.chartDays, days)
	return f.ticks, nil
}

func (f *fakeProvider) OHLC(_ context.Context, _ string, days int) ([]domain.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ohlcDays = append(f.ohlcDays, days)
	return f.nativeCandles, nil
}

func (f *fakeProvider) OHLCGranularity(days int) (time.Duration, bool) {
	width, ok := f.nativeDays[days]
	return width, ok
}

// memPriceCache is an in-memory domain.PriceCache.
type memPriceCache struct {
	mu      sync.Mutex
	quotes  map[string]domain.Quote
	history map[string][]domain.Candle
}

func newMemPriceCache() *memPriceCache {
	return &memPriceCache{quotes: map[string]domain.Quote{}, history: map[string][]domain.Candle{}}
}

func (c *memPriceCache) SetQuote(_ context.Context, q domain.Quote) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quotes[q.Symbol] = q
	return nil
}

func (c *memPriceCache) GetQuote(_ context.Context, symbol string) (domain.Quote, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.quotes[symbol]
	if !ok {
		return domain.Quote{}, domain.ErrNotFound
	}
	return q, nil
}

func (c *memPriceCache) GetQuotes(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	out := map[string]domain.Quote{}
	for _, s := range symbols {
		if q, err := c.GetQuote(ctx, s); err == nil {
			out[s] = q
		}
	}
	return out, nil
}

func (c *memPriceCache) SetHistory(_ context.Context, key string, candles []domain.Candle, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history[key] = candles
	return nil
}

func (c *memPriceCache) GetHistory(_ context.Context, key string) ([]domain.Candle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.history[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return h, nil
}

func TestQuoteUsesFreshCache(t *testing.T) {
	provider := &fakeProvider{price: 100}
	cache := newMemPriceCache()
	svc := NewPriceService(provider, nil, cache, nil, time.Minute, discardLogger())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		q, err := svc.Quote(ctx, "btc")
		if err != nil || q.PriceUSD != 100 {
			t.Fatalf("Quote: %+v %v", q, err)
		}
	}
	if provider.quoteCalls != 1 {
		t.Fatalf("expected one upstream call, got %d", provider.quoteCalls)
	}

	svc.now = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }
	if _, err := svc.Quote(ctx, "BTC"); err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if provider.quoteCalls != 2 {
		t.Fatalf("expected stale cache to refetch, got %d calls", provider.quoteCalls)
	}
}

func TestQuoteErrors(t *testing.T) {
	provider := &fakeProvider{quoteErr: fmt.Errorf("upstream: %w", domain.ErrRateLimited)}
	svc := NewPriceService(provider, nil, nil, nil, 0, discardLogger())

	if _, err := svc.Quote(context.Background(), "DOGE2"); !errors.Is(err, domain.ErrUnsupportedSymbol) {
		t.Fatalf("expected ErrUnsupportedSymbol, got %v", err)
	}
	if _, err := svc.Quote(context.Background(), "ETH"); !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestHistoryNativeWindow(t *testing.T) {
	native := []domain.Candle{{Time: time.Unix(0, 0).UTC(), Open: 1, High: 2, Low: 1, Close: 2}}
	provider := &fakeProvider{nativeDays: map[int]time.Duration{30: 4 * time.Hour}, nativeCandles: native}
	cache := newMemPriceCache()
	svc := NewPriceService(provider, nil, cache, nil, 0, discardLogger())
	ctx := context.Background()

	got, err := svc.History(ctx, "eth", 30*24*time.Hour)
	if err != nil || len(got) != 1 {
		t.Fatalf("History: %v %v", got, err)
	}
	if len(provider.ohlcDays) != 1 || provider.ohlcDays[0] != 30 || len(provider.chartDays) != 0 {
		t.Fatalf("expected native OHLC for 30d, got ohlc=%v chart=%v", provider.ohlcDays, provider.chartDays)
	}

	if _, err := svc.History(ctx, "ETH", 30*24*time.Hour); err != nil {
		t.Fatalf("History (cached): %v", err)
	}
	if len(provider.ohlcDays) != 1 {
		t.Fatalf("expected second call to hit cache, got %d upstream calls", len(provider.ohlcDays))
	}
}

func TestHistorySynthesizesOtherWindows(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	var ticks []domain.PricePoint
	// one tick every 5 minutes for the last 3 hours
	for i := 36; i >= 0; i-- {
		ticks = append(ticks, domain.PricePoint{Time: now.Add(-time.Duration(i) * 5 * time.Minute), Price: float64(100 + i)})
	}
	provider := &fakeProvider{nativeDays: map[int]time.Duration{1: 30 * time.Minute}, ticks: ticks}
	svc := NewPriceService(provider, nil, nil, nil, 0, discardLogger())
	svc.now = func() time.Time { return now }

	got, err := svc.History(context.Background(), "BTC", time.Hour)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(provider.chartDays) != 1 || provider.chartDays[0] != 1 || len(provider.ohlcDays) != 0 {
		t.Fatalf("expected market chart for 1h, got chart=%v ohlc=%v", provider.chartDays, provider.ohlcDays)
	}
	if len(got) != 13 {
		t.Fatalf("expected 13 one-minute candles in the last hour, got %d", len(got))
	}
	for _, c := range got {
		if c.Time.Before(now.Add(-time.Hour)) {
			t.Fatalf("candle %v before window start", c.Time)
		}
	}
}

func TestHistorySkipsNativeCandlesOfOtherWidth(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	var ticks []domain.PricePoint
	for i := 0; i < 7*24; i++ {
		ticks = append(ticks, domain.PricePoint{Time: now.Add(-time.Duration(i) * time.Hour), Price: 100})
	}
	tests := []struct {
		name   string
		window time.Duration
		days   int
		native time.Duration
		bucket time.Duration
	}{
		{"24h reports 15m", 24 * time.Hour, 1, 30 * time.Minute, 15 * time.Minute},
		{"7d reports 1h", 7 * 24 * time.Hour, 7, 4 * time.Hour, time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeProvider{
				nativeDays:    map[int]time.Duration{tt.days: tt.native},
				nativeCandles: []domain.Candle{{Close: 1}},
				ticks:         ticks,
			}
			svc := NewPriceService(provider, nil, nil, nil, 0, discardLogger())
			svc.now = func() time.Time { return now }

			got, err := svc.History(context.Background(), "ETH", tt.window)
			if err != nil {
				t.Fatalf("History: %v", err)
			}
			if len(provider.ohlcDays) != 0 || len(provider.chartDays) != 1 {
				t.Fatalf("expected synthesized candles, got ohlc=%v chart=%v", provider.ohlcDays, provider.chartDays)
			}
			for _, c := range got {
				if !c.Time.Equal(c.Time.Truncate(tt.bucket)) {
					t.Fatalf("candle %v not aligned to %s", c.Time, tt.bucket)
				}
			}
		})
	}
}

func TestHistoryBatch(t *testing.T) {
	provider := &fakeProvider{nativeDays: map[int]time.Duration{1: 15 * time.Minute}, nativeCandles: []domain.Candle{{Close: 1}}}
	svc := NewPriceService(provider, nil, nil, nil, 0, discardLogger())

	out, err := svc.HistoryBatch(context.Background(), []string{"btc", "eth"}, 24*time.Hour)
	if err != nil || len(out) != 2 || len(out["BTC"]) != 1 {
		t.Fatalf("HistoryBatch: %v %v", out, err)
	}
	if _, err := svc.HistoryBatch(context.Background(), []string{"btc", "nope"}, 24*time.Hour); !errors.Is(err, domain.ErrUnsupportedSymbol) {
		t.Fatalf("expected batch failure, got %v", err)
	}
}

func TestRefreshCachesAndPublishes(t *testing.T) {
	provider := &fakeProvider{price: 42}
	cache := newMemPriceCache()
	bus := newMemBus()
	svc := NewPriceService(provider, nil, cache, bus, 0, discardLogger())
	ctx := context.Background()

	quotes, err := svc.Refresh(ctx, []string{"BTC", "ETH"})
	if err != nil || len(quotes) != 2 {
		t.Fatalf("Refresh: %v %v", quotes, err)
	}
	if _, err := cache.GetQuote(ctx, "ETH"); err != nil {
		t.Fatalf("expected cached quote: %v", err)
	}
	svc.Publish(ctx, 1, quotes["BTC"])
	if bus.count(domain.ChannelPrices) != 1 {
		t.Fatal("expected a price event")
	}
}
