package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/alanyoungcy/betengine/internal/chain"
	"github.com/alanyoungcy/betengine/internal/domain"
)

const settlementLockKey = "settlement_tracker"

// errContractMissing marks a bet whose contract instance does not exist.
var errContractMissing = errors.New("contract instance not found")

// ContractReader reads contract state. *chain.Client satisfies it.
type ContractReader interface {
	GetMarket(ctx context.Context, id uint64) (domain.Market, error)
	GetMarketPosition(ctx context.Context, id uint64, user string) (domain.MarketPosition, error)
	GetWager(ctx context.Context, id uint64) (domain.Wager, error)
	GetPrediction(ctx context.Context, id uint64) (domain.Prediction, error)
	GetPredictionBet(ctx context.Context, id uint64, user string) (domain.PredictionBet, error)
}

// Awarder scores a resolved bet. *PointsService satisfies it.
type Awarder interface {
	Award(ctx context.Context, req AwardRequest) (AwardResult, error)
}

// QuoteSource returns a current USD quote. *PriceService satisfies it.
type QuoteSource interface {
	Quote(ctx context.Context, symbol string) (domain.Quote, error)
}

// TrackRequest registers a bet for automatic settlement.
type TrackRequest struct {
	Address    string         `json:"address"`
	Kind       domain.BetKind `json:"kind"`
	ContractID uint64         `json:"contract_id"`
	PlacedAt   *time.Time     `json:"placed_at,omitempty"`
}

// SettlementConfig configures a SettlementTracker.
type SettlementConfig struct {
	Contracts    chain.Addresses
	NativeSymbol string
	PollInterval time.Duration
	BatchSize    int
	// ExpireAfter closes bets whose contract instance is still missing this
	// long after placement.
	ExpireAfter time.Duration
	// LockTTL is the expiry of the cross-replica lock. The lock is renewed
	// while a cycle runs, so this bounds failover time, not cycle length.
	LockTTL time.Duration
}

// SettlementTracker watches tracked bets until their contract resolves, then
// awards points for them: it polls unsettled bets, reads contract state and
// settles each resolved bet exactly once.
type SettlementTracker struct {
	bets     domain.TrackedBetStore
	reader   ContractReader
	awarder  Awarder
	quotes   QuoteSource
	lock     domain.LockManager
	bus      domain.SignalBus
	notifier Notifier
	cfg      SettlementConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewSettlementTracker creates a SettlementTracker. lock, bus and notifier may
// be nil.
func NewSettlementTracker(
	bets domain.TrackedBetStore,
	reader ContractReader,
	awarder Awarder,
	quotes QuoteSource,
	lock domain.LockManager,
	bus domain.SignalBus,
	notifier Notifier,
	cfg SettlementConfig,
	logger *slog.Logger,
) *SettlementTracker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.NativeSymbol == "" {
		cfg.NativeSymbol = "ETH"
	}
	if cfg.ExpireAfter <= 0 {
		cfg.ExpireAfter = 24 * time.Hour
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = cfg.PollInterval
	}
	return &SettlementTracker{
		bets:     bets,
		reader:   reader,
		awarder:  awarder,
		quotes:   quotes,
		lock:     lock,
		bus:      bus,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "settlement_tracker")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// BetID is the deterministic identifier of a tracked bet. It doubles as the
// ledger idempotency key.
func BetID(kind domain.BetKind, contract string, contractID uint64, address string) string {
	return fmt.Sprintf("%s:%s:%d:%s", kind, strings.ToLower(contract), contractID, strings.ToLower(address))
}

func (t *SettlementTracker) contractFor(kind domain.BetKind) string {
	switch kind {
	case domain.BetKindMarket:
		return t.cfg.Contracts.Market
	case domain.BetKindWager:
		return t.cfg.Contracts.Wager
	case domain.BetKindPrediction:
		return t.cfg.Contracts.Prediction
	}
	return ""
}

// Track registers a bet. Tracking the same bet twice is a no-op that returns
// the stored row.
func (t *SettlementTracker) Track(ctx context.Context, req TrackRequest) (domain.TrackedBet, error) {
	address, err := chain.ParseAddress(req.Address)
	if err != nil {
		return domain.TrackedBet{}, fmt.Errorf("settlement: track: %w", err)
	}
	if !req.Kind.Valid() {
		return domain.TrackedBet{}, fmt.Errorf("settlement: track: %w: kind %q", domain.ErrInvalidBet, req.Kind)
	}
	contract := t.contractFor(req.Kind)
	if contract == "" {
		return domain.TrackedBet{}, fmt.Errorf("settlement: track %s: %w", req.Kind, domain.ErrChainDisabled)
	}

	placed := t.now()
	if req.PlacedAt != nil && !req.PlacedAt.IsZero() {
		placed = req.PlacedAt.UTC()
	}
	bet := domain.TrackedBet{
		ID:         BetID(req.Kind, contract, req.ContractID, address),
		Address:    address,
		Kind:       req.Kind,
		Contract:   strings.ToLower(contract),
		ContractID: req.ContractID,
		PlacedAt:   placed,
	}
	stored, err := t.bets.Track(ctx, bet)
	if err != nil {
		return domain.TrackedBet{}, fmt.Errorf("settlement: track: %w", err)
	}
	t.logger.InfoContext(ctx, "bet tracked",
		slog.String("bet_id", stored.ID),
		slog.String("kind", string(stored.Kind)),
	)
	return stored, nil
}

// List returns an address's tracked bets.
func (t *SettlementTracker) List(ctx context.Context, address string, opts domain.ListOpts) ([]domain.TrackedBet, error) {
	addr, err := chain.ParseAddress(address)
	if err != nil {
		return nil, fmt.Errorf("settlement: list: %w", err)
	}
	bets, err := t.bets.ListByAddress(ctx, addr, opts)
	if err != nil {
		return nil, fmt.Errorf("settlement: list: %w", err)
	}
	return bets, nil
}

// Run polls on the configured interval until ctx is cancelled.
func (t *SettlementTracker) Run(ctx context.Context) error {
	t.logger.InfoContext(ctx, "settlement tracker started", slog.Duration("interval", t.cfg.PollInterval))
	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := t.RunOnce(ctx); err != nil {
				t.logger.ErrorContext(ctx, "settlement cycle failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce examines one batch of open bets, least recently checked first, and
// returns how many were settled. Bets left open are stamped as checked so the
// next batch moves on to others. When another replica holds the lock it
// returns 0 and no error; losing the lock mid-batch stops the batch.
func (t *SettlementTracker) RunOnce(ctx context.Context) (int, error) {
	if t.lock != nil {
		held, release, err := t.lock.Hold(ctx, settlementLockKey, t.cfg.LockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				t.logger.DebugContext(ctx, "settlement lock held elsewhere")
				return 0, nil
			}
			return 0, fmt.Errorf("settlement: acquire lock: %w", err)
		}
		defer release()
		ctx = held
	}

	pending, err := t.bets.ListUnsettled(ctx, t.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("settlement: list unsettled: %w", err)
	}

	settled, expired := 0, 0
	for _, bet := range pending {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}
		ok, err := t.settle(ctx, bet)
		switch {
		case err == nil && ok:
			settled++
			continue
		case errors.Is(err, errContractMissing) && t.now().Sub(bet.PlacedAt) >= t.cfg.ExpireAfter:
			if err := t.bets.MarkExpired(ctx, bet.ID, t.now()); err != nil {
				t.logger.WarnContext(ctx, "expire bet failed",
					slog.String("bet_id", bet.ID),
					slog.String("error", err.Error()),
				)
				break
			}
			t.logger.InfoContext(ctx, "bet expired", slog.String("bet_id", bet.ID))
			expired++
			continue
		case err != nil:
			t.logger.WarnContext(ctx, "settle bet failed",
				slog.String("bet_id", bet.ID),
				slog.String("error", err.Error()),
			)
		}
		if err := t.bets.MarkChecked(ctx, bet.ID, t.now()); err != nil {
			t.logger.WarnContext(ctx, "mark bet checked failed",
				slog.String("bet_id", bet.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if settled > 0 || expired > 0 {
		t.logger.InfoContext(ctx, "settlement cycle complete",
			slog.Int("pending", len(pending)),
			slog.Int("settled", settled),
			slog.Int("expired", expired),
		)
	}
	return settled, nil
}

// outcome is what a resolved contract says about one bettor.
type outcome struct {
	resolved  bool
	won       bool
	stake     *big.Int
	direction domain.Direction
	timeframe int64
}

func (t *SettlementTracker) settle(ctx context.Context, bet domain.TrackedBet) (bool, error) {
	var (
		out outcome
		err error
	)
	switch bet.Kind {
	case domain.BetKindMarket:
		out, err = t.marketOutcome(ctx, bet)
	case domain.BetKindWager:
		out, err = t.wagerOutcome(ctx, bet)
	case domain.BetKindPrediction:
		out, err = t.predictionOutcome(ctx, bet)
	default:
		return false, fmt.Errorf("unknown kind %q", bet.Kind)
	}
	if errors.Is(err, domain.ErrNotFound) {
		return false, fmt.Errorf("%w: %w", errContractMissing, err)
	}
	if err != nil || !out.resolved {
		return false, err
	}

	now := t.now()
	if out.stake == nil || out.stake.Sign() == 0 {
		// Nothing staked by this address; close the bet without an award.
		return true, t.bets.MarkSettled(ctx, bet.ID, "", now)
	}

	q, err := t.quotes.Quote(ctx, t.cfg.NativeSymbol)
	if err != nil {
		return false, fmt.Errorf("native quote: %w", err)
	}
	usd := chain.WeiToEther(out.stake) * q.PriceUSD
	if out.timeframe < 1 {
		out.timeframe = 1
	}

	res, err := t.awarder.Award(ctx, AwardRequest{
		Address:          bet.Address,
		BetID:            bet.ID,
		USDAmount:        usd,
		TimeframeSeconds: out.timeframe,
		Direction:        out.direction,
		Won:              out.won,
	})
	if err != nil {
		return false, fmt.Errorf("award: %w", err)
	}
	if err := t.bets.MarkSettled(ctx, bet.ID, res.Entry.ID, now); err != nil {
		return false, fmt.Errorf("mark settled: %w", err)
	}

	t.logger.InfoContext(ctx, "bet settled",
		slog.String("bet_id", bet.ID),
		slog.Bool("won", out.won),
		slog.Float64("usd", usd),
		slog.Int64("points", res.Entry.PointsEarned),
	)
	t.announce(ctx, domain.SettlementEvent{
		Event:     domain.EventBetSettled,
		BetID:     bet.ID,
		Address:   bet.Address,
		Kind:      bet.Kind,
		Won:       out.won,
		USDAmount: usd,
		Points:    res.Entry.PointsEarned,
		SettledAt: now,
	})
	return true, nil
}

func (t *SettlementTracker) announce(ctx context.Context, evt domain.SettlementEvent) {
	if t.bus != nil {
		payload, _ := json.Marshal(evt)
		if err := t.bus.Publish(ctx, domain.ChannelBetSettled, payload); err != nil {
			t.logger.WarnContext(ctx, "publish settlement failed", slog.String("error", err.Error()))
		}
	}
	if t.notifier != nil {
		result := "lost"
		if evt.Won {
			result = "won"
		}
		msg := fmt.Sprintf("%s %s %s bet %s ($%.2f) for %d points", evt.Address, result, evt.Kind, evt.BetID, evt.USDAmount, evt.Points)
		if err := t.notifier.Notify(ctx, domain.EventBetSettled, "Bet settled", msg); err != nil {
			t.logger.WarnContext(ctx, "notify settlement failed", slog.String("error", err.Error()))
		}
	}
}

func (t *SettlementTracker) marketOutcome(ctx context.Context, bet domain.TrackedBet) (outcome, error) {
	m, err := t.reader.GetMarket(ctx, bet.ContractID)
	if err != nil || !m.Resolved {
		return outcome{}, err
	}
	pos, err := t.reader.GetMarketPosition(ctx, bet.ContractID, bet.Address)
	if err != nil {
		return outcome{}, err
	}
	yes, no := orZero(pos.YesAmount), orZero(pos.NoAmount)

	out := outcome{
		resolved:  true,
		stake:     new(big.Int).Add(yes, no),
		timeframe: int64(m.EndTime.Sub(bet.PlacedAt).Seconds()),
	}
	winning, losing := no, yes
	winDir, loseDir := domain.DirectionNo, domain.DirectionYes
	if m.Outcome {
		winning, losing = yes, no
		winDir, loseDir = domain.DirectionYes, domain.DirectionNo
	}
	out.won = winning.Sign() > 0 && winning.Cmp(losing) >= 0
	out.direction = loseDir
	if winning.Sign() > 0 {
		out.direction = winDir
	}
	return out, nil
}

func (t *SettlementTracker) wagerOutcome(ctx context.Context, bet domain.TrackedBet) (outcome, error) {
	w, err := t.reader.GetWager(ctx, bet.ContractID)
	if err != nil || !w.Resolved {
		return outcome{}, err
	}
	joined := false
	for _, p := range w.Participants {
		if p == bet.Address {
			joined = true
			break
		}
	}
	out := outcome{
		resolved:  true,
		won:       w.Winner == bet.Address,
		direction: domain.DirectionWager,
		// The contract keeps no resolution time, so detection time stands in.
		timeframe: int64(t.now().Sub(bet.PlacedAt).Seconds()),
	}
	if joined {
		out.stake = orZero(w.Stake)
	}
	return out, nil
}

func (t *SettlementTracker) predictionOutcome(ctx context.Context, bet domain.TrackedBet) (outcome, error) {
	p, err := t.reader.GetPrediction(ctx, bet.ContractID)
	if err != nil || !p.Resolved {
		return outcome{}, err
	}
	ub, err := t.reader.GetPredictionBet(ctx, bet.ContractID, bet.Address)
	if err != nil {
		return outcome{}, err
	}
	dir := domain.DirectionDown
	if ub.Up {
		dir = domain.DirectionUp
	}
	return outcome{
		resolved:  true,
		won:       ub.Up == p.UpWon,
		stake:     orZero(ub.Amount),
		direction: dir,
		timeframe: p.TimeframeSeconds,
	}, nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
