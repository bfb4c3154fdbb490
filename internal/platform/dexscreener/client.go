// Package dexscreener is a REST client for the DexScreener pair API.
package dexscreener

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/betengine/internal/domain"
)

// DefaultBaseURL is the public DexScreener API root.
const DefaultBaseURL = "https://api.dexscreener.com"

// Client searches DEX pairs. The API is unauthenticated.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a DexScreener client rooted at baseURL.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Search returns pairs matching query, most liquid first.
func (c *Client) Search(ctx context.Context, query string) ([]domain.TokenPair, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	params := url.Values{}
	params.Set("q", query)

	pairs, err := c.getPairs(ctx, "/latest/dex/search?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("dexscreener: search %q: %w", query, err)
	}
	return pairs, nil
}

// TokenPairs returns every pair that trades the token at address.
func (c *Client) TokenPairs(ctx context.Context, address string) ([]domain.TokenPair, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, fmt.Errorf("dexscreener: %w", domain.ErrInvalidAddress)
	}
	pairs, err := c.getPairs(ctx, "/latest/dex/tokens/"+url.PathEscape(address))
	if err != nil {
		return nil, fmt.Errorf("dexscreener: token %s: %w", address, err)
	}
	if len(pairs) == 0 {
		return nil, fmt.Errorf("dexscreener: token %s: %w", address, domain.ErrNotFound)
	}
	return pairs, nil
}

func (c *Client) getPairs(ctx context.Context, path string) ([]domain.TokenPair, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, domain.ErrRateLimited
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var pr pairsResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return nil, fmt.Errorf("decode pairs: %w", err)
	}

	out := make([]domain.TokenPair, 0, len(pr.Pairs))
	for _, p := range pr.Pairs {
		out = append(out, p.ToDomain())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LiquidityUSD > out[j].LiquidityUSD
	})
	return out, nil
}
