package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/betengine/internal/domain"
	"github.com/alanyoungcy/betengine/internal/service"
)

// BetTracker registers bets for automatic settlement.
type BetTracker interface {
	Track(ctx context.Context, req service.TrackRequest) (domain.TrackedBet, error)
	List(ctx context.Context, address string, opts domain.ListOpts) ([]domain.TrackedBet, error)
}

// BetHandler serves the tracked-bet endpoints.
type BetHandler struct {
	tracker BetTracker
	logger  *slog.Logger
}

// NewBetHandler creates a BetHandler.
func NewBetHandler(tracker BetTracker, logger *slog.Logger) *BetHandler {
	return &BetHandler{tracker: tracker, logger: logger}
}

// Track registers a placed bet.
// POST /api/bets/track
func (h *BetHandler) Track(w http.ResponseWriter, r *http.Request) {
	var req service.TrackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, h.logger, "track bet", err)
		return
	}
	bet, err := h.tracker.Track(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, h.logger, "track bet", err)
		return
	}
	writeJSON(w, http.StatusAccepted, bet)
}

// List returns an address's tracked bets.
// GET /api/bets/{address}
func (h *BetHandler) List(w http.ResponseWriter, r *http.Request) {
	bets, err := h.tracker.List(r.Context(), r.PathValue("address"), parseListOpts(r))
	if err != nil {
		writeDomainError(w, r, h.logger, "list bets", err)
		return
	}
	if bets == nil {
		bets = []domain.TrackedBet{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bets": bets})
}
