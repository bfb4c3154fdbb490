package dexscreener

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alanyoungcy/betengine/internal/domain"
)

const searchBody = `{
  "schemaVersion": "1.0.0",
  "pairs": [
    {"chainId":"base","dexId":"aerodrome","url":"https://dexscreener.com/base/0xaaa","pairAddress":"0xaaa",
     "baseToken":{"address":"0xtoken","name":"Pepe","symbol":"PEPE"},"quoteToken":{"address":"0xweth","name":"Wrapped Ether","symbol":"WETH"},
     "priceUsd":"0.0000123","liquidity":{"usd":1000},"volume":{"h24":50}},
    {"chainId":"ethereum","dexId":"uniswap","url":"https://dexscreener.com/ethereum/0xbbb","pairAddress":"0xbbb",
     "baseToken":{"address":"0xtoken2","name":"Pepe","symbol":"PEPE"},"quoteToken":{"address":"0xweth","name":"Wrapped Ether","symbol":"WETH"},
     "priceUsd":"0.0000125","liquidity":{"usd":250000},"volume":{"h24":90000}}
  ]
}`

func TestSearchSortsByLiquidity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/latest/dex/search" || r.URL.Query().Get("q") != "pepe" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		w.Write([]byte(searchBody))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	pairs, err := c.Search(context.Background(), "pepe")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(pairs))
	}
	if pairs[0].PairAddress != "0xbbb" || pairs[0].LiquidityUSD != 250000 {
		t.Fatalf("expected most liquid pair first, got %+v", pairs[0])
	}
	if pairs[1].PriceUSD != 0.0000123 || pairs[1].QuoteSymbol != "WETH" {
		t.Fatalf("unexpected second pair %+v", pairs[1])
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	c := NewClient("http://127.0.0.1:0")
	pairs, err := c.Search(context.Background(), "  ")
	if err != nil || pairs != nil {
		t.Fatalf("expected nil result, got %v, %v", pairs, err)
	}
}

func TestTokenPairsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"schemaVersion":"1.0.0","pairs":null}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.TokenPairs(context.Background(), "0xdead")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
