// Package coingecko is a REST client for the CoinGecko market-data API.
package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/betengine/internal/domain"
)

// DefaultBaseURL is the public CoinGecko API root.
const DefaultBaseURL = "https://api.coingecko.com/api/v3"

// OHLCDays are the day windows the native OHLC endpoint accepts.
var OHLCDays = []int{1, 7, 14, 30, 90, 180, 365}

// Limiter throttles outbound requests. *redis.RateLimiter satisfies it.
type Limiter interface {
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}

// Client talks to the CoinGecko API. The public tier is heavily rate limited,
// so callers should pass a Limiter shared by every replica.
type Client struct {
	baseURL    string
	apiKey     string
	symbolIDs  map[string]string
	httpClient *http.Client
	limiter    Limiter
	perMinute  int
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sets the demo API key sent as x-cg-demo-api-key.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithSymbolIDs adds or overrides symbol to coin id mappings.
func WithSymbolIDs(ids map[string]string) Option {
	return func(c *Client) {
		for sym, id := range ids {
			c.symbolIDs[strings.ToUpper(strings.TrimSpace(sym))] = id
		}
	}
}

// WithLimiter throttles requests to perMinute using l.
func WithLimiter(l Limiter, perMinute int) Option {
	return func(c *Client) {
		c.limiter = l
		c.perMinute = perMinute
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a CoinGecko client rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		symbolIDs: make(map[string]string, len(DefaultSymbolIDs)),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for sym, id := range DefaultSymbolIDs {
		c.symbolIDs[sym] = id
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve maps a ticker symbol to its CoinGecko id.
func (c *Client) Resolve(symbol string) (string, error) {
	id, ok := c.symbolIDs[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return "", fmt.Errorf("coingecko: %w: %s", domain.ErrUnsupportedSymbol, symbol)
	}
	return id, nil
}

// Symbols returns every symbol the client can resolve.
func (c *Client) Symbols() []string {
	out := make([]string, 0, len(c.symbolIDs))
	for sym := range c.symbolIDs {
		out = append(out, sym)
	}
	return out
}

// GetQuote returns the current USD price of symbol.
func (c *Client) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	quotes, err := c.GetQuotes(ctx, []string{symbol})
	if err != nil {
		return domain.Quote{}, err
	}
	q, ok := quotes[strings.ToUpper(symbol)]
	if !ok {
		return domain.Quote{}, fmt.Errorf("coingecko: price for %s: %w", symbol, domain.ErrNotFound)
	}
	return q, nil
}

// GetQuotes fetches prices for several symbols in one request. Symbols the
// API does not return are omitted.
func (c *Client) GetQuotes(ctx context.Context, symbols []string) (map[string]domain.Quote, error) {
	idToSymbol := make(map[string]string, len(symbols))
	ids := make([]string, 0, len(symbols))
	for _, s := range symbols {
		id, err := c.Resolve(s)
		if err != nil {
			return nil, err
		}
		if _, dup := idToSymbol[id]; !dup {
			ids = append(ids, id)
		}
		idToSymbol[id] = strings.ToUpper(strings.TrimSpace(s))
	}

	params := url.Values{}
	params.Set("ids", strings.Join(ids, ","))
	params.Set("vs_currencies", "usd")
	params.Set("include_24hr_change", "true")
	params.Set("include_last_updated_at", "true")

	body, err := c.doGet(ctx, "/simple/price?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("coingecko: simple price: %w", err)
	}

	var raw map[string]simplePriceEntry
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("coingecko: decode simple price: %w", err)
	}

	now := time.Now().UTC()
	out := make(map[string]domain.Quote, len(raw))
	for id, e := range raw {
		sym, ok := idToSymbol[id]
		if !ok {
			continue
		}
		updated := now
		if e.UpdatedAt > 0 {
			updated = time.Unix(e.UpdatedAt, 0).UTC()
		}
		out[sym] = domain.Quote{
			Symbol:     sym,
			ProviderID: id,
			PriceUSD:   e.USD,
			Change24h:  e.Change24h,
			UpdatedAt:  updated,
		}
	}
	return out, nil
}

// MarketChart returns raw price ticks covering the last days days.
func (c *Client) MarketChart(ctx context.Context, symbol string, days int) ([]domain.PricePoint, error) {
	id, err := c.Resolve(symbol)
	if err != nil {
		return nil, err
	}
	if days < 1 {
		days = 1
	}
	params := url.Values{}
	params.Set("vs_currency", "usd")
	params.Set("days", strconv.Itoa(days))

	path := fmt.Sprintf("/coins/%s/market_chart?%s", url.PathEscape(id), params.Encode())
	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("coingecko: market chart %s: %w", symbol, err)
	}

	var resp marketChartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("coingecko: decode market chart: %w", err)
	}
	return resp.toPoints(), nil
}

// OHLC returns native candles for one of the supported day windows.
func (c *Client) OHLC(ctx context.Context, symbol string, days int) ([]domain.Candle, error) {
	if !SupportsOHLC(days) {
		return nil, fmt.Errorf("coingecko: ohlc window %d days unsupported", days)
	}
	id, err := c.Resolve(symbol)
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("vs_currency", "usd")
	params.Set("days", strconv.Itoa(days))

	path := fmt.Sprintf("/coins/%s/ohlc?%s", url.PathEscape(id), params.Encode())
	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("coingecko: ohlc %s: %w", symbol, err)
	}
	candles, err := decodeOHLC(body)
	if err != nil {
		return nil, fmt.Errorf("coingecko: %w", err)
	}
	return candles, nil
}

// SupportsOHLC reports whether days is a native OHLC window.
func SupportsOHLC(days int) bool {
	for _, d := range OHLCDays {
		if d == days {
			return true
		}
	}
	return false
}

// OHLCGranularity returns the candle width the OHLC endpoint uses for a day
// window: 30m up to 2 days, 4h up to 30 days, 4d beyond.
func OHLCGranularity(days int) (time.Duration, bool) {
	if !SupportsOHLC(days) {
		return 0, false
	}
	switch {
	case days <= 2:
		return 30 * time.Minute, true
	case days <= 30:
		return 4 * time.Hour, true
	default:
		return 4 * 24 * time.Hour, true
	}
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	if c.limiter != nil && c.perMinute > 0 {
		if err := c.limiter.Wait(ctx, "coingecko", c.perMinute, time.Minute); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	bodyStr := string(body)
	if len(bodyStr) > 256 {
		bodyStr = bodyStr[:256]
	}
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}

// OHLCGranularity is the method form of the package-level function, so
// callers can depend on an interface.
func (c *Client) OHLCGranularity(days int) (time.Duration, bool) {
	return OHLCGranularity(days)
}
