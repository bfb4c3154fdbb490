package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/betengine/internal/domain"
	"github.com/alanyoungcy/betengine/internal/points"
	"github.com/alanyoungcy/betengine/internal/service"
)

// PointsService is what the points endpoints need from the service layer.
type PointsService interface {
	Award(ctx context.Context, req service.AwardRequest) (service.AwardResult, error)
	Record(ctx context.Context, address string) (domain.RankedRecord, error)
	Entries(ctx context.Context, address string, opts domain.ListOpts) ([]domain.LedgerEntry, error)
	Leaderboard(ctx context.Context, limit int) ([]domain.RankedRecord, error)
	Events(ctx context.Context, after string, count int) ([]domain.PointsEvent, string, error)
}

// PointsHandler serves the calculator, ledger and leaderboard endpoints.
type PointsHandler struct {
	points PointsService
	logger *slog.Logger
}

// NewPointsHandler creates a PointsHandler.
func NewPointsHandler(svc PointsService, logger *slog.Logger) *PointsHandler {
	return &PointsHandler{points: svc, logger: logger}
}

// Award scores a resolved bet. A new entry answers 201; replaying a bet id
// answers 200 with the stored entry.
// POST /api/points/award
func (h *PointsHandler) Award(w http.ResponseWriter, r *http.Request) {
	var req service.AwardRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, h.logger, "award", err)
		return
	}
	res, err := h.points.Award(r.Context(), req)
	if err != nil {
		writeDomainError(w, r, h.logger, "award", err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

// Calc runs the calculator without recording anything.
// GET /api/points/calc?usd=20&timeframe=300&won=true
func (h *PointsHandler) Calc(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	usd, err := strconv.ParseFloat(q.Get("usd"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "usd must be a number")
		return
	}
	timeframe, err := strconv.ParseInt(q.Get("timeframe"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "timeframe must be an integer number of seconds")
		return
	}
	won := true
	if v := q.Get("won"); v != "" {
		if won, err = strconv.ParseBool(v); err != nil {
			writeError(w, http.StatusBadRequest, "won must be a boolean")
			return
		}
	}
	award, err := points.Calculate(usd, timeframe, won)
	if err != nil {
		writeDomainError(w, r, h.logger, "calculate", err)
		return
	}
	writeJSON(w, http.StatusOK, award)
}

// Record returns one address's aggregate.
// GET /api/points/{address}
func (h *PointsHandler) Record(w http.ResponseWriter, r *http.Request) {
	rec, err := h.points.Record(r.Context(), r.PathValue("address"))
	if err != nil {
		writeDomainError(w, r, h.logger, "get record", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type entriesResponse struct {
	Entries []domain.LedgerEntry `json:"entries"`
	Limit   int                  `json:"limit"`
	Offset  int                  `json:"offset"`
}

// Entries lists an address's ledger, newest first.
// GET /api/points/{address}/entries?limit=50&offset=0
func (h *PointsHandler) Entries(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	entries, err := h.points.Entries(r.Context(), r.PathValue("address"), opts)
	if err != nil {
		writeDomainError(w, r, h.logger, "list entries", err)
		return
	}
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}
	writeJSON(w, http.StatusOK, entriesResponse{Entries: entries, Limit: opts.Limit, Offset: opts.Offset})
}

// Events replays the durable award stream.
// GET /api/points/events?after=0-0&count=100
func (h *PointsHandler) Events(w http.ResponseWriter, r *http.Request) {
	after := r.URL.Query().Get("after")
	events, last, err := h.points.Events(r.Context(), after, queryInt(r, "count", 100))
	if err != nil {
		writeDomainError(w, r, h.logger, "read events", err)
		return
	}
	if events == nil {
		events = []domain.PointsEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "last_id": last})
}

// Leaderboard returns the top records with ranks.
// GET /api/leaderboard?limit=100
func (h *PointsHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	if limit < 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %d", limit))
		return
	}
	records, err := h.points.Leaderboard(r.Context(), limit)
	if err != nil {
		writeDomainError(w, r, h.logger, "leaderboard", err)
		return
	}
	if records == nil {
		records = []domain.RankedRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}
