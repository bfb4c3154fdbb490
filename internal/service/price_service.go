package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/betengine/internal/candles"
	"github.com/alanyoungcy/betengine/internal/domain"
)

// PriceProvider is the upstream market-data API. *coingecko.Client
// satisfies it.
type PriceProvider interface {
	Resolve(symbol string) (string, error)
	GetQuote(ctx context.Context, symbol string) (domain.Quote, error)
	GetQuotes(ctx context.Context, symbols []string) (map[string]domain.Quote, error)
	MarketChart(ctx context.Context, symbol string, days int) ([]domain.PricePoint, error)
	OHLC(ctx context.Context, symbol string, days int) ([]domain.Candle, error)
	// OHLCGranularity reports the native candle width for a day window.
	OHLCGranularity(days int) (time.Duration, bool)
}

// PairSearcher is the DEX pair API. *dexscreener.Client satisfies it.
type PairSearcher interface {
	Search(ctx context.Context, query string) ([]domain.TokenPair, error)
	TokenPairs(ctx context.Context, address string) ([]domain.TokenPair, error)
}

// PriceService serves quotes, candle history and token search. The cache and
// bus are optional.
type PriceService struct {
	provider PriceProvider
	pairs    PairSearcher
	cache    domain.PriceCache
	bus      domain.SignalBus
	maxAge   time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewPriceService creates a PriceService. Cached quotes older than maxAge are
// refetched.
func NewPriceService(
	provider PriceProvider,
	pairs PairSearcher,
	cache domain.PriceCache,
	bus domain.SignalBus,
	maxAge time.Duration,
	logger *slog.Logger,
) *PriceService {
	if maxAge <= 0 {
		maxAge = time.Minute
	}
	return &PriceService{
		provider: provider,
		pairs:    pairs,
		cache:    cache,
		bus:      bus,
		maxAge:   maxAge,
		logger:   logger.With(slog.String("component", "price_service")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Quote returns the latest price for symbol, from the cache when fresh.
func (s *PriceService) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if _, err := s.provider.Resolve(symbol); err != nil {
		return domain.Quote{}, fmt.Errorf("price_service: quote %s: %w", symbol, err)
	}

	if s.cache != nil {
		q, err := s.cache.GetQuote(ctx, symbol)
		if err == nil && s.now().Sub(q.UpdatedAt) <= s.maxAge {
			return q, nil
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "quote cache read failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		}
	}

	q, err := s.provider.GetQuote(ctx, symbol)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("price_service: quote %s: %w", symbol, err)
	}
	s.store(ctx, q)
	return q, nil
}

// Refresh fetches quotes for symbols in one upstream call, caches them and
// returns them keyed by symbol.
func (s *PriceService) Refresh(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	quotes, err := s.FetchQuotes(ctx, symbols)
	if err != nil {
		return nil, err
	}
	for _, q := range quotes {
		s.store(ctx, q)
	}
	return quotes, nil
}

// FetchQuotes fetches quotes for symbols without touching the cache.
func (s *PriceService) FetchQuotes(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	quotes, err := s.provider.GetQuotes(ctx, symbols)
	if err != nil {
		return nil, fmt.Errorf("price_service: fetch quotes: %w", err)
	}
	return quotes, nil
}

// Apply caches a polled batch of quotes and publishes each one tagged with
// the poll sequence number.
func (s *PriceService) Apply(ctx context.Context, seq uint64, quotes map[string]domain.Quote) {
	for _, q := range quotes {
		s.store(ctx, q)
		s.Publish(ctx, seq, q)
	}
}

func (s *PriceService) store(ctx context.Context, q domain.Quote) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetQuote(ctx, q); err != nil {
		s.logger.WarnContext(ctx, "quote cache write failed",
			slog.String("symbol", q.Symbol),
			slog.String("error", err.Error()),
		)
	}
}

// Publish broadcasts a quote on the prices channel.
func (s *PriceService) Publish(ctx context.Context, seq uint64, q domain.Quote) {
	if s.bus == nil {
		return
	}
	payload, _ := json.Marshal(domain.PriceEvent{Event: domain.EventPriceUpdate, Seq: seq, Quote: q})
	if err := s.bus.Publish(ctx, domain.ChannelPrices, payload); err != nil {
		s.logger.WarnContext(ctx, "publish price event failed",
			slog.String("symbol", q.Symbol),
			slog.String("error", err.Error()),
		)
	}
}

// History returns candles of width candles.BucketFor(window) covering window
// for symbol. The provider's native candles are used only when their width is
// that bucket; everything else is synthesized from raw ticks.
func (s *PriceService) History(ctx context.Context, symbol string, window time.Duration) ([]domain.Candle, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if _, err := s.provider.Resolve(symbol); err != nil {
		return nil, fmt.Errorf("price_service: history %s: %w", symbol, err)
	}
	if window <= 0 || window > candles.MaxWindow {
		return nil, fmt.Errorf("price_service: history %s: window %s out of range", symbol, window)
	}

	bucket := candles.BucketFor(window)
	key := fmt.Sprintf("%s:%s", symbol, window)
	if s.cache != nil {
		if cached, err := s.cache.GetHistory(ctx, key); err == nil {
			return cached, nil
		}
	}

	days := int(math.Ceil(window.Hours() / 24))
	var out []domain.Candle
	if s.nativeFits(window, days, bucket) {
		native, err := s.provider.OHLC(ctx, symbol, days)
		if err != nil {
			return nil, fmt.Errorf("price_service: history %s: %w", symbol, err)
		}
		out = native
	} else {
		ticks, err := s.provider.MarketChart(ctx, symbol, days)
		if err != nil {
			return nil, fmt.Errorf("price_service: history %s: %w", symbol, err)
		}
		out = candles.Since(candles.Synthesize(ticks, bucket), s.now().Add(-window).Truncate(bucket))
	}

	if s.cache != nil && len(out) > 0 {
		if err := s.cache.SetHistory(ctx, key, out, bucket); err != nil {
			s.logger.WarnContext(ctx, "history cache write failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}
	return out, nil
}

func (s *PriceService) nativeFits(window time.Duration, days int, bucket time.Duration) bool {
	if window != time.Duration(days)*24*time.Hour {
		return false
	}
	width, ok := s.provider.OHLCGranularity(days)
	return ok && width == bucket
}

// HistoryBatch fetches history for several symbols concurrently. A failure
// for one symbol fails the batch.
func (s *PriceService) HistoryBatch(ctx context.Context, symbols []string, window time.Duration) (map[string][]domain.Candle, error) {
	results := make([][]domain.Candle, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, sym := range symbols {
		g.Go(func() error {
			c, err := s.History(gctx, sym, window)
			if err != nil {
				return err
			}
			results[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[string][]domain.Candle, len(symbols))
	for i, sym := range symbols {
		out[strings.ToUpper(strings.TrimSpace(sym))] = results[i]
	}
	return out, nil
}

// SearchTokens looks up DEX pairs by free-text query.
func (s *PriceService) SearchTokens(ctx context.Context, query string) ([]domain.TokenPair, error) {
	if s.pairs == nil {
		return nil, nil
	}
	pairs, err := s.pairs.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("price_service: search tokens: %w", err)
	}
	return pairs, nil
}

// TokenPairs returns the DEX pairs for a token contract.
func (s *PriceService) TokenPairs(ctx context.Context, address string) ([]domain.TokenPair, error) {
	if s.pairs == nil {
		return nil, fmt.Errorf("price_service: token pairs: %w", domain.ErrNotFound)
	}
	pairs, err := s.pairs.TokenPairs(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("price_service: token pairs: %w", err)
	}
	return pairs, nil
}
