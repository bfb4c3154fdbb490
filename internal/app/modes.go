package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/betengine/internal/domain"
	"github.com/alanyoungcy/betengine/internal/feed"
	"github.com/alanyoungcy/betengine/internal/server"
	"github.com/alanyoungcy/betengine/internal/server/handler"
	"github.com/alanyoungcy/betengine/internal/server/ws"
)

const (
	shutdownTimeout = 5 * time.Second
	warmLimit       = 1000
)

// APIMode serves HTTP and keeps the live price poll running.
func (a *App) APIMode(ctx context.Context, deps *Dependencies, svc *Services) error {
	a.logger.InfoContext(ctx, "starting api mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startPriceWatcher(ctx, g, svc)
	a.startHTTPServer(ctx, g, deps, svc)
	return ignoreCanceled(g.Wait())
}

// TrackerMode settles tracked bets and exports snapshots. It serves no HTTP.
func (a *App) TrackerMode(ctx context.Context, deps *Dependencies, svc *Services) error {
	a.logger.InfoContext(ctx, "starting tracker mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startTracker(ctx, g, deps, svc)
	a.startExporter(ctx, g, svc)
	return ignoreCanceled(g.Wait())
}

// FullMode runs every component in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies, svc *Services) error {
	a.logger.InfoContext(ctx, "starting full mode")
	g, ctx := errgroup.WithContext(ctx)
	a.startPriceWatcher(ctx, g, svc)
	a.startTracker(ctx, g, deps, svc)
	a.startExporter(ctx, g, svc)
	a.startHTTPServer(ctx, g, deps, svc)
	return ignoreCanceled(g.Wait())
}

func (a *App) startPriceWatcher(ctx context.Context, g *errgroup.Group, svc *Services) {
	poller := feed.NewPoller(a.cfg.Prices.MaxInFlight, a.logger)
	watcher := feed.NewPriceWatcher(poller, svc.Prices, a.cfg.Prices.Symbols, a.cfg.Prices.PollInterval.Duration, a.logger)
	g.Go(func() error {
		defer poller.Close()
		return watcher.Run(ctx)
	})
}

func (a *App) startTracker(ctx context.Context, g *errgroup.Group, deps *Dependencies, svc *Services) {
	if !a.cfg.Settlement.Enabled {
		a.logger.InfoContext(ctx, "settlement tracker disabled")
		return
	}
	if !a.cfg.ChainEnabled() {
		a.logger.WarnContext(ctx, "settlement tracker skipped: chain.rpc_url is not set")
		return
	}
	g.Go(func() error {
		return svc.Tracker.Run(ctx)
	})
}

func (a *App) startExporter(ctx context.Context, g *errgroup.Group, svc *Services) {
	if !a.cfg.Export.Enabled || svc.Exporter == nil {
		return
	}
	g.Go(func() error {
		return svc.Exporter.Run(ctx, a.cfg.Export.Interval.Duration)
	})
}

// startHTTPServer adds the API server and the WebSocket hub to g. The server
// is shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svc *Services) {
	if n, err := svc.Points.WarmLeaderboard(ctx, warmLimit); err != nil {
		a.logger.WarnContext(ctx, "leaderboard warm-up failed", slog.String("error", err.Error()))
	} else if n > 0 {
		a.logger.DebugContext(ctx, "leaderboard warmed", slog.Int("records", n))
	}

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.cfg.Server.CORSOrigins, a.logger)
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	var snapshots handler.SnapshotStore
	if svc.Exporter != nil {
		snapshots = svc.Exporter
	}

	srv := server.NewServer(server.Config{
		Host:        a.cfg.Server.Host,
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		ReadLimit:   a.cfg.Server.ReadLimit,
		WriteLimit:  a.cfg.Server.WriteLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health: handler.NewHealthHandler(deps.Checks, a.logger),
		Status: handler.NewStatusHandler(a.cfg.Mode, Version, map[string]bool{
			"chain":      a.cfg.ChainEnabled(),
			"redis":      deps.SignalBus != nil,
			"snapshots":  svc.Exporter != nil,
			"settlement": a.cfg.Settlement.Enabled && a.cfg.ChainEnabled(),
			"notify":     deps.Notifier.Enabled(),
		}, a.startedAt),
		Points:    handler.NewPointsHandler(svc.Points, a.logger),
		Prices:    handler.NewPriceHandler(svc.Prices, a.logger),
		Contracts: handler.NewContractHandler(deps.Chain, a.logger),
		Bets:      handler.NewBetHandler(svc.Tracker, a.logger),
		Snapshots: handler.NewSnapshotHandler(snapshots, a.logger),
		Hub:       hub,
		Limiter:   deps.RateLimiter,
	}, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// ExportOnce writes one snapshot pair, resuming from the export cursor in
// the bucket.
func ExportOnce(ctx context.Context, svc *Services) (domain.ExportResult, error) {
	if svc.Exporter == nil {
		return domain.ExportResult{}, fmt.Errorf("app: export: s3 is not enabled")
	}
	after, err := svc.Exporter.LastCursor(ctx)
	if err != nil {
		return domain.ExportResult{}, fmt.Errorf("app: export: %w", err)
	}
	return svc.Exporter.Export(ctx, after)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
