package coingecko

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/betengine/internal/domain"
)

// DefaultSymbolIDs maps ticker symbols to CoinGecko coin ids.
var DefaultSymbolIDs = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"SOL":   "solana",
	"BNB":   "binancecoin",
	"XRP":   "ripple",
	"ADA":   "cardano",
	"DOGE":  "dogecoin",
	"AVAX":  "avalanche-2",
	"MATIC": "matic-network",
	"POL":   "polygon-ecosystem-token",
	"LINK":  "chainlink",
	"ARB":   "arbitrum",
	"OP":    "optimism",
	"SUI":   "sui",
	"TON":   "the-open-network",
	"USDC":  "usd-coin",
	"USDT":  "tether",
}

// simplePriceEntry is one coin in a /simple/price response.
type simplePriceEntry struct {
	USD       float64 `json:"usd"`
	Change24h float64 `json:"usd_24h_change"`
	UpdatedAt int64   `json:"last_updated_at"`
}

// marketChartResponse is the /coins/{id}/market_chart body. Each sample is
// [unix_ms, price].
type marketChartResponse struct {
	Prices [][2]float64 `json:"prices"`
}

func (r marketChartResponse) toPoints() []domain.PricePoint {
	out := make([]domain.PricePoint, 0, len(r.Prices))
	for _, p := range r.Prices {
		out = append(out, domain.PricePoint{
			Time:  time.UnixMilli(int64(p[0])).UTC(),
			Price: p[1],
		})
	}
	return out
}

// ohlcRow is one [unix_ms, open, high, low, close] row from /coins/{id}/ohlc.
type ohlcRow [5]float64

func decodeOHLC(body []byte) ([]domain.Candle, error) {
	var rows []ohlcRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode ohlc: %w", err)
	}
	out := make([]domain.Candle, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.Candle{
			Time:  time.UnixMilli(int64(r[0])).UTC(),
			Open:  r[1],
			High:  r[2],
			Low:   r[3],
			Close: r[4],
		})
	}
	return out, nil
}
