package handler

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/betengine/internal/chain"
	"github.com/alanyoungcy/betengine/internal/domain"
)

// ContractService reads contract state and encodes unsigned calls.
// *chain.Client satisfies it.
type ContractService interface {
	GetMarket(ctx context.Context, id uint64) (domain.Market, error)
	GetWager(ctx context.Context, id uint64) (domain.Wager, error)
	GetPrediction(ctx context.Context, id uint64) (domain.Prediction, error)
	Counts(ctx context.Context) (domain.ContractCounts, error)

	CreateMarket(description string, endUnix int64, minBet *big.Int) (domain.TxRequest, error)
	PlaceMarketBet(marketID uint64, yes bool, value *big.Int) (domain.TxRequest, error)
	ResolveMarket(marketID uint64, outcome bool) (domain.TxRequest, error)
	ClaimMarket(marketID uint64) (domain.TxRequest, error)
	CreateWager(claim, resolver string, stake *big.Int) (domain.TxRequest, error)
	JoinWager(wagerID uint64, stake *big.Int) (domain.TxRequest, error)
	ResolveWager(wagerID uint64, winner string) (domain.TxRequest, error)
	PlacePrediction(predictionID uint64, up bool, value *big.Int) (domain.TxRequest, error)
	ClaimPrediction(predictionID uint64) (domain.TxRequest, error)
}

// ContractHandler serves contract reads and call-data encoding. Encoded
// calls are returned unsigned; the caller's wallet signs and sends them.
type ContractHandler struct {
	contracts ContractService
	logger    *slog.Logger
	now       func() time.Time
}

// NewContractHandler creates a ContractHandler.
func NewContractHandler(contracts ContractService, logger *slog.Logger) *ContractHandler {
	return &ContractHandler{contracts: contracts, logger: logger, now: time.Now}
}

// GetMarket returns one market.
// GET /api/markets/{id}
func (h *ContractHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	readByID(w, r, h.logger, "get market", h.contracts.GetMarket)
}

// GetWager returns one wager.
// GET /api/wagers/{id}
func (h *ContractHandler) GetWager(w http.ResponseWriter, r *http.Request) {
	readByID(w, r, h.logger, "get wager", h.contracts.GetWager)
}

// GetPrediction returns one prediction.
// GET /api/predictions/{id}
func (h *ContractHandler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	readByID(w, r, h.logger, "get prediction", h.contracts.GetPrediction)
}

func readByID[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, get func(context.Context, uint64) (T, error)) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, r, logger, op, err)
		return
	}
	v, err := get(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Counts returns how many markets, wagers and predictions exist.
// GET /api/contracts/counts
func (h *ContractHandler) Counts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.contracts.Counts(r.Context())
	if err != nil {
		writeDomainError(w, r, h.logger, "contract counts", err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (h *ContractHandler) writeTx(w http.ResponseWriter, r *http.Request, op string, tx domain.TxRequest, err error) {
	if err != nil {
		writeDomainError(w, r, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// positiveWei parses a wei amount that must be greater than zero.
func positiveWei(field, raw string) (*big.Int, error) {
	v, err := chain.ParseWei(raw)
	if err != nil {
		return nil, err
	}
	if v.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s must be greater than zero", domain.ErrInvalidBet, field)
	}
	return v, nil
}

type createMarketRequest struct {
	Description string `json:"description"`
	EndTime     int64  `json:"end_time"`
	MinBet      string `json:"min_bet"`
}

// CreateMarket encodes a new market.
// POST /api/tx/markets
func (h *ContractHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	const op = "encode create market"
	var req createMarketRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, h.logger, op, err)
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		writeError(w, http.StatusBadRequest, "description is required")
		return
	}
	if req.EndTime <= h.now().Unix() {
		writeError(w, http.StatusBadRequest, "end_time must be in the future")
		return
	}
	minBet, err := chain.ParseWei(req.MinBet)
	if err != nil {
		writeDomainError(w, r, h.logger, op, err)
		return
	}
	tx, err := h.contracts.CreateMarket(strings.TrimSpace(req.Description), req.EndTime, minBet)
	h.writeTx(w, r, op, tx, err)
}

type sideBetRequest struct {
	Yes   *bool  `json:"yes,omitempty"`
	Up    *bool  `json:"up,omitempty"`
	Value string `json:"value"`
}

// PlaceMarketBet encodes a Yes/No bet.
// POST /api/tx/markets/{id}/bet
func (h *ContractHandler) PlaceMarketBet(w http.ResponseWriter, r *http.Request) {
	const op = "encode market bet"
	id, req, value, ok := h.sideBet(w, r, op)
	if !ok {
		return
	}
	if req.Yes == nil {
		writeError(w, http.StatusBadRequest, "yes is required")
		return
	}
	tx, err := h.contracts.PlaceMarketBet(id, *req.Yes, value)
	h.writeTx(w, r, op, tx, err)
}

// PlacePrediction encodes an Up/Down bet.
// POST /api/tx/predictions/{id}/bet
func (h *ContractHandler) PlacePrediction(w http.ResponseWriter, r *http.Request) {
	const op = "encode prediction bet"
	id, req, value, ok := h.sideBet(w, r, op)
	if !ok {
		return
	}
	if req.Up == nil {
		writeError(w, http.StatusBadRequest, "up is required")
		return
	}
	tx, err := h.contracts.PlacePrediction(id, *req.Up, value)
	h.writeTx(w, r, op, tx, err)
}

func (h *ContractHandler) sideBet(w http.ResponseWriter, r *http.Request, op string) (uint64, sideBetRequest, *big.Int, bool) {
	var req sideBetRequest
	id, err := pathID(r, "id")
	if err == nil {
		err = decodeJSON(w, r, &req)
	}
	var value *big.Int
	if err == nil {
		value, err = positiveWei("value", req.Value)
	}
	if err != nil {
		writeDomainError(w, r, h.logger, op, err)
		return 0, req, nil, false
	}
	return id, req, value, true
}

// ClaimMarket encodes a winnings claim.
// POST /api/tx/markets/{id}/claim
func (h *ContractHandler) ClaimMarket(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, "encode market claim", h.contracts.ClaimMarket)
}

// ClaimPrediction encodes a prediction claim.
// POST /api/tx/predictions/{id}/claim
func (h *ContractHandler) ClaimPrediction(w http.ResponseWriter, r *http.Request) {
	h.byID(w, r, "encode prediction claim", h.contracts.ClaimPrediction)
}

func (h *ContractHandler) byID(w http.ResponseWriter, r *http.Request, op string, encode func(uint64) (domain.TxRequest, error)) {
	id, err := pathID(r, "id")
	if err != nil {
		writeDomainError(w, r, h.logger, op, err)
		return
	}
	tx, err := encode(id)
	h.writeTx(w, r, op, tx, err)
}

// ResolveMarket encodes the creator's resolution.
// POST /api/tx/markets/{id}/resolve
func (h *ContractHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	const op = "encode market resolve"
	var req struct {
		Outcome *bool `json:"outcome"`
	}
	id, err := pathID(r, "id")
	if err == nil {
		err = decodeJSON(w, r, &req)
	}
	if err != nil {
		writeDomainError(w, r, h.logger, op, err)
		return
	}
	if req.Outcome == nil {
		writeError(w, http.StatusBadRequest, "outcome is required")
		return
	}
	tx, err := h.contracts.ResolveMarket(id, *req.Outcome)
	h.writeTx(w, r, op, tx, err)
}

type createWagerRequest struct {
	Claim    string `json:"claim"`
	Resolver string `json:"resolver"`
	Stake    string `json:"stake"`
}

// CreateWager encodes a new wager with the creator's stake attached.
// POST /api/tx/wagers
func (h *ContractHandler) CreateWager(w http.ResponseWriter, r *http.Request) {
	const op = "encode create wager"
	var req createWagerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, h.logger, op, err)
		return
	}
	if strings.TrimSpace(req.Claim) == "" {
		writeError(w, http.StatusBadRequest, "claim is required")
		return
	}
	resolver, err := chain.ParseAddress(req.Resolver)
	if err != nil {
		writeDomainError(w, r, h.logger, op, err)
		return
	}
	stake, err := positiveWei("stake", req.Stake)
	if err != nil {
		writeDomainError(w, r, h.logger, op, err)
		return
	}
	tx, err := h.contracts.CreateWager(strings.TrimSpace(req.Claim), resolver, stake)
	h.writeTx(w, r, op, tx, err)
}

// JoinWager encodes joining a wager at its stake.
// POST /api/tx/wagers/{id}/join
func (h *ContractHandler) JoinWager(w http.ResponseWriter, r *http.Request) {
	const op = "encode join wager"
	var req struct {
		Stake string `json:"stake"`
	}
	id, err := pathID(r, "id")
	if err == nil {
		err = decodeJSON(w, r, &req)
	}
	var stake *big.Int
	if err == nil {
		stake, err = positiveWei("stake", req.Stake)
	}
	if err != nil {
		writeDomainError(w, r, h.logger, op, err)
		return
	}
	tx, err := h.contracts.JoinWager(id, stake)
	h.writeTx(w, r, op, tx, err)
}

// ResolveWager encodes the resolver naming a winner.
// POST /api/tx/wagers/{id}/resolve
func (h *ContractHandler) ResolveWager(w http.ResponseWriter, r *http.Request) {
	const op = "encode wager resolve"
	var req struct {
		Winner string `json:"winner"`
	}
	id, err := pathID(r, "id")
	if err == nil {
		err = decodeJSON(w, r, &req)
	}
	var winner string
	if err == nil {
		winner, err = chain.ParseAddress(req.Winner)
	}
	if err != nil {
		writeDomainError(w, r, h.logger, op, err)
		return
	}
	tx, err := h.contracts.ResolveWager(id, winner)
	h.writeTx(w, r, op, tx, err)
}
