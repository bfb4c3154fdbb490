package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/betengine/internal/candles"
	"github.com/alanyoungcy/betengine/internal/domain"
)

// PriceService is what the price endpoints need from the service layer.
type PriceService interface {
	Quote(ctx context.Context, symbol string) (domain.Quote, error)
	History(ctx context.Context, symbol string, window time.Duration) ([]domain.Candle, error)
	HistoryBatch(ctx context.Context, symbols []string, window time.Duration) (map[string][]domain.Candle, error)
	SearchTokens(ctx context.Context, query string) ([]domain.TokenPair, error)
	TokenPairs(ctx context.Context, address string) ([]domain.TokenPair, error)
}

// maxBatchSymbols bounds one batch history request.
const maxBatchSymbols = 10

// PriceHandler serves quotes, candles and DEX pair lookups.
type PriceHandler struct {
	prices PriceService
	logger *slog.Logger
}

// NewPriceHandler creates a PriceHandler.
func NewPriceHandler(svc PriceService, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{prices: svc, logger: logger}
}

// Quote returns the current price of one symbol.
// GET /api/prices/{symbol}
func (h *PriceHandler) Quote(w http.ResponseWriter, r *http.Request) {
	q, err := h.prices.Quote(r.Context(), r.PathValue("symbol"))
	if err != nil {
		writeDomainError(w, r, h.logger, "quote", err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func parseWindowParam(r *http.Request) (time.Duration, error) {
	raw := r.URL.Query().Get("window")
	if raw == "" {
		raw = "24h"
	}
	return candles.ParseWindow(raw)
}

// History returns candles for one symbol.
// GET /api/prices/{symbol}/history?window=24h
func (h *PriceHandler) History(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindowParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	symbol := strings.ToUpper(r.PathValue("symbol"))
	out, err := h.prices.History(r.Context(), symbol, window)
	if err != nil {
		writeDomainError(w, r, h.logger, "history", err)
		return
	}
	if out == nil {
		out = []domain.Candle{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"symbol":  symbol,
		"window":  window.String(),
		"bucket":  candles.BucketFor(window).String(),
		"candles": out,
	})
}

// HistoryBatch returns candles for several symbols in one call.
// GET /api/prices/history?symbols=BTC,ETH&window=7d
func (h *PriceHandler) HistoryBatch(w http.ResponseWriter, r *http.Request) {
	window, err := parseWindowParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var symbols []string
	for _, s := range strings.Split(r.URL.Query().Get("symbols"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			symbols = append(symbols, strings.ToUpper(s))
		}
	}
	if len(symbols) == 0 || len(symbols) > maxBatchSymbols {
		writeError(w, http.StatusBadRequest, "symbols must list between 1 and 10 symbols")
		return
	}
	out, err := h.prices.HistoryBatch(r.Context(), symbols, window)
	if err != nil {
		writeDomainError(w, r, h.logger, "history batch", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"window": window.String(), "candles": out})
}

// SearchTokens searches DEX pairs by name, symbol or address.
// GET /api/tokens/search?q=pepe
func (h *PriceHandler) SearchTokens(w http.ResponseWriter, r *http.Request) {
	pairs, err := h.prices.SearchTokens(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeDomainError(w, r, h.logger, "search tokens", err)
		return
	}
	if pairs == nil {
		pairs = []domain.TokenPair{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"pairs": pairs})
}

// TokenPairs lists the DEX pairs trading a token contract.
// GET /api/tokens/{address}
func (h *PriceHandler) TokenPairs(w http.ResponseWriter, r *http.Request) {
	pairs, err := h.prices.TokenPairs(r.Context(), r.PathValue("address"))
	if err != nil {
		writeDomainError(w, r, h.logger, "token pairs", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pairs": pairs})
}
