// Package feed runs owned polling subscriptions.
//
// Every subscription is a single goroutine driven by its own ticker. Each
// fetch carries a monotonically increasing sequence number and a result is
// applied only if its sequence is newer than the last applied one, so a slow
// response can never overwrite a fresher one.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/alanyoungcy/betengine/internal/domain"
)

// ErrPollerClosed is returned by Subscribe after Close.
var ErrPollerClosed = errors.New("feed: poller closed")

// DefaultMaxInFlight bounds concurrent fetches per subscription.
const DefaultMaxInFlight = 4

// Poller owns a set of named polling subscriptions.
type Poller struct {
	mu          sync.Mutex
	subs        map[string]*Subscription
	closed      bool
	maxInFlight int64
	logger      *slog.Logger
}

// NewPoller creates a Poller. maxInFlight <= 0 uses DefaultMaxInFlight.
func NewPoller(maxInFlight int, logger *slog.Logger) *Poller {
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	return &Poller{
		subs:        make(map[string]*Subscription),
		maxInFlight: int64(maxInFlight),
		logger:      logger.With(slog.String("component", "poller")),
	}
}

// Subscription is a handle to one running poll loop.
type Subscription struct {
	name      string
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	once      sync.Once
	poller    *Poller
	next      atomic.Uint64
	applied   atomic.Uint64
	discarded atomic.Uint64
	failed    atomic.Uint64
}

// Name returns the subscription name.
func (s *Subscription) Name() string { return s.name }

// LastApplied returns the sequence number of the most recently applied result.
func (s *Subscription) LastApplied() uint64 { return s.applied.Load() }

// Discarded returns how many results arrived out of order and were dropped.
func (s *Subscription) Discarded() uint64 { return s.discarded.Load() }

// Failed returns how many fetches returned an error.
func (s *Subscription) Failed() uint64 { return s.failed.Load() }

// Cancel stops the ticker, cancels in-flight fetches and waits for them to
// return. It is safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.cancel()
		s.wg.Wait()
		s.poller.remove(s)
	})
}

// Subscribe starts polling fetch every interval, beginning immediately. apply
// is called with each result that is newer than every result applied before
// it. Calls to apply are serialized.
func Subscribe[T any](
	p *Poller,
	name string,
	interval time.Duration,
	fetch func(ctx context.Context) (T, error),
	apply func(ctx context.Context, seq uint64, v T),
) (*Subscription, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("feed: subscribe %s: interval must be positive", name)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPollerClosed
	}
	if _, ok := p.subs[name]; ok {
		return nil, fmt.Errorf("feed: subscribe %s: %w", name, domain.ErrAlreadyExists)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := &Subscription{name: name, cancel: cancel, poller: p}
	p.subs[name] = sub

	logger := p.logger.With(slog.String("subscription", name))
	sem := semaphore.NewWeighted(p.maxInFlight)
	var applyMu sync.Mutex

	poll := func() {
		if !sem.TryAcquire(1) {
			logger.Debug("poll skipped, too many fetches in flight")
			return
		}
		seq := sub.next.Add(1)
		sub.wg.Add(1)
		go func() {
			defer sub.wg.Done()
			defer sem.Release(1)

			v, err := fetch(ctx)
			if err != nil {
				if ctx.Err() == nil {
					sub.failed.Add(1)
					logger.Warn("poll fetch failed",
						slog.Uint64("seq", seq),
						slog.String("error", err.Error()),
					)
				}
				return
			}

			applyMu.Lock()
			defer applyMu.Unlock()
			if ctx.Err() != nil {
				return
			}
			if seq <= sub.applied.Load() {
				sub.discarded.Add(1)
				logger.Debug("stale poll result discarded",
					slog.Uint64("seq", seq),
					slog.Uint64("applied", sub.applied.Load()),
				)
				return
			}
			sub.applied.Store(seq)
			apply(ctx, seq, v)
		}()
	}

	sub.wg.Add(1)
	go func() {
		defer sub.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		poll()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				poll()
			}
		}
	}()

	logger.Info("subscription started", slog.Duration("interval", interval))
	return sub, nil
}

func (p *Poller) remove(sub *Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.subs[sub.name] == sub {
		delete(p.subs, sub.name)
	}
}

// Names returns the running subscription names.
func (p *Poller) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.subs))
	for name := range p.subs {
		names = append(names, name)
	}
	return names
}

// Close cancels every subscription and waits for them to stop. Subscribe
// fails after Close.
func (p *Poller) Close() {
	p.mu.Lock()
	p.closed = true
	subs := make([]*Subscription, 0, len(p.subs))
	for _, s := range p.subs {
		subs = append(subs, s)
	}
	p.mu.Unlock()

	for _, s := range subs {
		s.Cancel()
	}
}
