// Package server exposes the HTTP and WebSocket API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/betengine/internal/domain"
	"github.com/alanyoungcy/betengine/internal/server/handler"
	"github.com/alanyoungcy/betengine/internal/server/middleware"
	"github.com/alanyoungcy/betengine/internal/server/ws"
)

// Config holds the HTTP server settings.
type Config struct {
	Host        string
	Port        int
	CORSOrigins []string
	// APIKey guards mutating routes; empty disables auth.
	APIKey string
	// ReadLimit and WriteLimit are per-client requests per RateWindow.
	ReadLimit  int
	WriteLimit int
	RateWindow time.Duration
}

// Handlers aggregates the route handlers. Hub and Limiter may be nil.
type Handlers struct {
	Health    *handler.HealthHandler
	Status    *handler.StatusHandler
	Points    *handler.PointsHandler
	Prices    *handler.PriceHandler
	Contracts *handler.ContractHandler
	Bets      *handler.BetHandler
	Snapshots *handler.SnapshotHandler
	Hub       *ws.Hub
	Limiter   domain.RateLimiter
}

// Server is the API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in middleware, outermost
// first: CORS, logging, rate limit, auth.
func NewServer(cfg Config, h Handlers, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "http"))
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:           NewHandler(cfg, h, logger),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// NewHandler builds the routed, middleware-wrapped handler.
func NewHandler(cfg Config, h Handlers, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", h.Status.GetStatus)

	mux.HandleFunc("POST /api/points/award", h.Points.Award)
	mux.HandleFunc("GET /api/points/calc", h.Points.Calc)
	mux.HandleFunc("GET /api/points/events", h.Points.Events)
	mux.HandleFunc("GET /api/points/{address}", h.Points.Record)
	mux.HandleFunc("GET /api/points/{address}/entries", h.Points.Entries)
	mux.HandleFunc("GET /api/leaderboard", h.Points.Leaderboard)

	mux.HandleFunc("GET /api/prices/history", h.Prices.HistoryBatch)
	mux.HandleFunc("GET /api/prices/{symbol}", h.Prices.Quote)
	mux.HandleFunc("GET /api/prices/{symbol}/history", h.Prices.History)
	mux.HandleFunc("GET /api/tokens/search", h.Prices.SearchTokens)
	mux.HandleFunc("GET /api/tokens/{address}", h.Prices.TokenPairs)

	mux.HandleFunc("GET /api/markets/{id}", h.Contracts.GetMarket)
	mux.HandleFunc("GET /api/wagers/{id}", h.Contracts.GetWager)
	mux.HandleFunc("GET /api/predictions/{id}", h.Contracts.GetPrediction)
	mux.HandleFunc("GET /api/contracts/counts", h.Contracts.Counts)

	mux.HandleFunc("POST /api/tx/markets", h.Contracts.CreateMarket)
	mux.HandleFunc("POST /api/tx/markets/{id}/bet", h.Contracts.PlaceMarketBet)
	mux.HandleFunc("POST /api/tx/markets/{id}/claim", h.Contracts.ClaimMarket)
	mux.HandleFunc("POST /api/tx/markets/{id}/resolve", h.Contracts.ResolveMarket)
	mux.HandleFunc("POST /api/tx/wagers", h.Contracts.CreateWager)
	mux.HandleFunc("POST /api/tx/wagers/{id}/join", h.Contracts.JoinWager)
	mux.HandleFunc("POST /api/tx/wagers/{id}/resolve", h.Contracts.ResolveWager)
	mux.HandleFunc("POST /api/tx/predictions/{id}/bet", h.Contracts.PlacePrediction)
	mux.HandleFunc("POST /api/tx/predictions/{id}/claim", h.Contracts.ClaimPrediction)

	mux.HandleFunc("POST /api/bets/track", h.Bets.Track)
	mux.HandleFunc("GET /api/bets/{address}", h.Bets.List)

	mux.HandleFunc("GET /api/snapshots", h.Snapshots.List)
	mux.HandleFunc("GET /api/snapshots/{key...}", h.Snapshots.Get)

	if h.Hub != nil {
		mux.HandleFunc("GET /ws", h.Hub.HandleWS)
	}

	var out http.Handler = mux
	out = middleware.Auth(cfg.APIKey)(out)
	out = middleware.RateLimit(h.Limiter, cfg.ReadLimit, cfg.WriteLimit, cfg.RateWindow, logger)(out)
	out = middleware.Logging(logger)(out)
	out = middleware.CORS(cfg.CORSOrigins)(out)
	return out
}

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
