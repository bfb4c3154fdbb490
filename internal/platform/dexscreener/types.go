package dexscreener

import (
	"strconv"

	"github.com/alanyoungcy/betengine/internal/domain"
)

type apiToken struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

// APIPair is the pair object returned by the search and token endpoints.
type APIPair struct {
	ChainID     string   `json:"chainId"`
	DexID       string   `json:"dexId"`
	URL         string   `json:"url"`
	PairAddress string   `json:"pairAddress"`
	BaseToken   apiToken `json:"baseToken"`
	QuoteToken  apiToken `json:"quoteToken"`
	PriceUSD    string   `json:"priceUsd"`
	Liquidity   *struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	Volume struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
}

type pairsResponse struct {
	Pairs []APIPair `json:"pairs"`
}

// ToDomain converts the API pair into a domain.TokenPair.
func (p APIPair) ToDomain() domain.TokenPair {
	price, _ := strconv.ParseFloat(p.PriceUSD, 64)
	var liq float64
	if p.Liquidity != nil {
		liq = p.Liquidity.USD
	}
	return domain.TokenPair{
		ChainID:      p.ChainID,
		DexID:        p.DexID,
		PairAddress:  p.PairAddress,
		BaseAddress:  p.BaseToken.Address,
		BaseSymbol:   p.BaseToken.Symbol,
		BaseName:     p.BaseToken.Name,
		QuoteSymbol:  p.QuoteToken.Symbol,
		PriceUSD:     price,
		LiquidityUSD: liq,
		Volume24h:    p.Volume.H24,
		URL:          p.URL,
	}
}
