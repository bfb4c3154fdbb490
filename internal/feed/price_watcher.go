package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/betengine/internal/domain"
)

// QuotePoller fetches and applies quote batches. *service.PriceService
// satisfies it.
type QuotePoller interface {
	FetchQuotes(ctx context.Context, symbols []string) (map[string]domain.Quote, error)
	Apply(ctx context.Context, seq uint64, quotes map[string]domain.Quote)
}

// PriceWatcher keeps live quotes for a fixed symbol set flowing into the
// price cache and onto the prices channel.
type PriceWatcher struct {
	poller   *Poller
	prices   QuotePoller
	symbols  []string
	interval time.Duration
	logger   *slog.Logger
}

// NewPriceWatcher creates a PriceWatcher.
func NewPriceWatcher(poller *Poller, prices QuotePoller, symbols []string, interval time.Duration, logger *slog.Logger) *PriceWatcher {
	return &PriceWatcher{
		poller:   poller,
		prices:   prices,
		symbols:  symbols,
		interval: interval,
		logger:   logger.With(slog.String("component", "price_watcher")),
	}
}

// Run polls until ctx is cancelled, then tears the subscription down.
func (w *PriceWatcher) Run(ctx context.Context) error {
	if len(w.symbols) == 0 {
		w.logger.InfoContext(ctx, "no symbols to watch, exiting")
		return nil
	}
	sub, err := Subscribe(w.poller, "prices", w.interval,
		func(ctx context.Context) (map[string]domain.Quote, error) {
			return w.prices.FetchQuotes(ctx, w.symbols)
		},
		w.prices.Apply,
	)
	if err != nil {
		return err
	}
	defer sub.Cancel()

	w.logger.InfoContext(ctx, "price watcher started",
		slog.Int("symbols", len(w.symbols)),
		slog.Duration("interval", w.interval),
	)
	<-ctx.Done()
	w.logger.InfoContext(ctx, "price watcher stopped",
		slog.Uint64("applied", sub.LastApplied()),
		slog.Uint64("discarded", sub.Discarded()),
	)
	return ctx.Err()
}
