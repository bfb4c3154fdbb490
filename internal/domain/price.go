package domain

import "time"

// PricePoint is a single price sample.
type PricePoint struct {
	Time  time.Time `json:"time"`
	Price float64   `json:"price"`
}

// Candle is an OHLC bucket.
type Candle struct {
	Time  time.Time `json:"time"`
	Open  float64   `json:"open"`
	High  float64   `json:"high"`
	Low   float64   `json:"low"`
	Close float64   `json:"close"`
}

// Quote is the latest known price for a symbol.
type Quote struct {
	Symbol     string    `json:"symbol"`
	ProviderID string    `json:"provider_id"`
	PriceUSD   float64   `json:"price_usd"`
	Change24h  float64   `json:"change_24h"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TokenPair is a DEX pair returned by pair search.
type TokenPair struct {
	ChainID      string  `json:"chain_id"`
	DexID        string  `json:"dex_id"`
	PairAddress  string  `json:"pair_address"`
	BaseAddress  string  `json:"base_address"`
	BaseSymbol   string  `json:"base_symbol"`
	BaseName     string  `json:"base_name"`
	QuoteSymbol  string  `json:"quote_symbol"`
	PriceUSD     float64 `json:"price_usd"`
	LiquidityUSD float64 `json:"liquidity_usd"`
	Volume24h    float64 `json:"volume_24h"`
	URL          string  `json:"url"`
}
