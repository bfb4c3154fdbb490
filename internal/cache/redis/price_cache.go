package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/betengine/internal/domain"
	"github.com/redis/go-redis/v9"
)

// PriceCache implements domain.PriceCache. Quotes live in hashes at
// "quote:{SYMBOL}" with fields price, change_24h, provider_id and ts (Unix
// nanoseconds). Candle series are JSON strings at "history:{key}".
type PriceCache struct {
	rdb      *redis.Client
	quoteTTL time.Duration
}

// NewPriceCache creates a PriceCache. Quotes expire after quoteTTL so a dead
// poller cannot serve stale prices forever; zero disables expiry.
func NewPriceCache(c *Client, quoteTTL time.Duration) *PriceCache {
	return &PriceCache{rdb: c.Underlying(), quoteTTL: quoteTTL}
}

func quoteKey(symbol string) string {
	return "quote:" + strings.ToUpper(symbol)
}

func historyKey(key string) string {
	return "history:" + key
}

// SetQuote stores the latest quote for a symbol.
func (pc *PriceCache) SetQuote(ctx context.Context, q domain.Quote) error {
	key := quoteKey(q.Symbol)
	fields := map[string]interface{}{
		"price":       strconv.FormatFloat(q.PriceUSD, 'f', -1, 64),
		"change_24h":  strconv.FormatFloat(q.Change24h, 'f', -1, 64),
		"provider_id": q.ProviderID,
		"ts":          strconv.FormatInt(q.UpdatedAt.UnixNano(), 10),
	}
	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if pc.quoteTTL > 0 {
		pipe.Expire(ctx, key, pc.quoteTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set quote %s: %w", q.Symbol, err)
	}
	return nil
}

func decodeQuote(symbol string, vals map[string]string) (domain.Quote, bool) {
	priceStr, ok := vals["price"]
	if !ok {
		return domain.Quote{}, false
	}
	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return domain.Quote{}, false
	}
	q := domain.Quote{
		Symbol:     strings.ToUpper(symbol),
		ProviderID: vals["provider_id"],
		PriceUSD:   price,
	}
	if v, err := strconv.ParseFloat(vals["change_24h"], 64); err == nil {
		q.Change24h = v
	}
	if ts, err := strconv.ParseInt(vals["ts"], 10, 64); err == nil {
		q.UpdatedAt = time.Unix(0, ts).UTC()
	}
	return q, true
}

// GetQuote returns the cached quote or domain.ErrNotFound.
func (pc *PriceCache) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	vals, err := pc.rdb.HGetAll(ctx, quoteKey(symbol)).Result()
	if err != nil {
		return domain.Quote{}, fmt.Errorf("redis: get quote %s: %w", symbol, err)
	}
	q, ok := decodeQuote(symbol, vals)
	if !ok {
		return domain.Quote{}, domain.ErrNotFound
	}
	return q, nil
}

// GetQuotes returns the cached quotes for symbols using a pipeline. Missing
// symbols are omitted from the result.
func (pc *PriceCache) GetQuotes(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	if len(symbols) == 0 {
		return map[string]domain.Quote{}, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(symbols))
	for _, s := range symbols {
		cmds[strings.ToUpper(s)] = pipe.HGetAll(ctx, quoteKey(s))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get quotes pipeline: %w", err)
	}

	out := make(map[string]domain.Quote, len(symbols))
	for symbol, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil {
			continue
		}
		if q, ok := decodeQuote(symbol, vals); ok {
			out[symbol] = q
		}
	}
	return out, nil
}

// SetHistory caches a candle series under key for ttl.
func (pc *PriceCache) SetHistory(ctx context.Context, key string, candles []domain.Candle, ttl time.Duration) error {
	data, err := json.Marshal(candles)
	if err != nil {
		return fmt.Errorf("redis: marshal history %s: %w", key, err)
	}
	if err := pc.rdb.Set(ctx, historyKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set history %s: %w", key, err)
	}
	return nil
}

// GetHistory returns a cached candle series or domain.ErrNotFound.
func (pc *PriceCache) GetHistory(ctx context.Context, key string) ([]domain.Candle, error) {
	data, err := pc.rdb.Get(ctx, historyKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get history %s: %w", key, err)
	}
	var candles []domain.Candle
	if err := json.Unmarshal(data, &candles); err != nil {
		return nil, fmt.Errorf("redis: unmarshal history %s: %w", key, err)
	}
	return candles, nil
}

var _ domain.PriceCache = (*PriceCache)(nil)
