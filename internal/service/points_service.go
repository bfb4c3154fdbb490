package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/betengine/internal/chain"
	"github.com/alanyoungcy/betengine/internal/domain"
	"github.com/alanyoungcy/betengine/internal/points"
)

// Notifier forwards operator notifications. *notify.Notifier satisfies it.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// AwardRequest is a resolved bet to score.
type AwardRequest struct {
	Address          string           `json:"address"`
	BetID            string           `json:"bet_id"`
	USDAmount        float64          `json:"usd_amount"`
	TimeframeSeconds int64            `json:"timeframe_seconds"`
	Direction        domain.Direction `json:"direction"`
	Won              bool             `json:"won"`
}

// AwardResult is the stored entry and the address aggregate after the award.
type AwardResult struct {
	Entry     domain.LedgerEntry       `json:"entry"`
	Record    domain.LeaderboardRecord `json:"record"`
	Breakdown points.Award             `json:"breakdown"`
	Created   bool                     `json:"created"`
}

// PointsService scores resolved bets and serves the leaderboard.
type PointsService struct {
	ledger   domain.LedgerStore
	board    domain.LeaderboardCache
	bus      domain.SignalBus
	audit    domain.AuditStore
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewPointsService creates a PointsService. board, bus, audit and notifier
// may be nil.
func NewPointsService(
	ledger domain.LedgerStore,
	board domain.LeaderboardCache,
	bus domain.SignalBus,
	audit domain.AuditStore,
	notifier Notifier,
	logger *slog.Logger,
) *PointsService {
	return &PointsService{
		ledger:   ledger,
		board:    board,
		bus:      bus,
		audit:    audit,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "points_service")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Award scores req, appends it to the ledger and folds it into the address
// aggregate. Repeating a non-empty BetID returns the stored entry with
// Created=false and leaves the aggregate unchanged.
func (s *PointsService) Award(ctx context.Context, req AwardRequest) (AwardResult, error) {
	address, err := chain.ParseAddress(req.Address)
	if err != nil {
		return AwardResult{}, fmt.Errorf("points_service: award: %w", err)
	}
	if req.Direction != "" && !req.Direction.Valid() {
		return AwardResult{}, fmt.Errorf("points_service: award: %w: direction %q", domain.ErrInvalidBet, req.Direction)
	}
	breakdown, err := points.Calculate(req.USDAmount, req.TimeframeSeconds, req.Won)
	if err != nil {
		return AwardResult{}, fmt.Errorf("points_service: award: %w", err)
	}

	betID := strings.TrimSpace(req.BetID)
	if betID == "" {
		betID = uuid.NewString()
	}

	entry := domain.LedgerEntry{
		ID:               uuid.NewString(),
		Address:          address,
		BetID:            betID,
		USDAmount:        req.USDAmount,
		TimeframeSeconds: req.TimeframeSeconds,
		Direction:        req.Direction,
		Won:              req.Won,
		PointsEarned:     breakdown.Points,
		CreatedAt:        s.now(),
	}

	stored, created, err := s.ledger.Append(ctx, entry)
	if err != nil {
		s.logger.ErrorContext(ctx, "ledger append failed",
			slog.String("address", address),
			slog.String("bet_id", betID),
			slog.String("error", err.Error()),
		)
		return AwardResult{}, fmt.Errorf("points_service: append: %w", err)
	}

	record, err := s.ledger.GetRecord(ctx, address)
	if err != nil {
		return AwardResult{}, fmt.Errorf("points_service: load record: %w", err)
	}

	result := AwardResult{Entry: stored, Record: record, Created: created}
	result.Breakdown, _ = points.Calculate(stored.USDAmount, stored.TimeframeSeconds, stored.Won)

	if !created {
		s.logger.InfoContext(ctx, "duplicate award ignored",
			slog.String("address", address),
			slog.String("bet_id", betID),
		)
		return result, nil
	}

	s.logger.InfoContext(ctx, "points awarded",
		slog.String("address", address),
		slog.String("bet_id", betID),
		slog.Int64("points", stored.PointsEarned),
		slog.Bool("won", stored.Won),
		slog.Int64("total_points", record.TotalPoints),
	)
	s.fanOut(ctx, result)
	return result, nil
}

// fanOut pushes a committed award to the cache, bus, audit log and notifier.
// Failures are logged only; the ledger is the source of truth.
func (s *PointsService) fanOut(ctx context.Context, res AwardResult) {
	if s.board != nil {
		if err := s.board.Put(ctx, res.Record); err != nil {
			s.logger.WarnContext(ctx, "leaderboard cache update failed",
				slog.String("address", res.Record.Address),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.bus != nil {
		payload, _ := json.Marshal(domain.PointsEvent{
			Event:  domain.EventPointsAwarded,
			Entry:  res.Entry,
			Record: res.Record,
		})
		if err := s.bus.Publish(ctx, domain.ChannelPoints, payload); err != nil {
			s.logger.WarnContext(ctx, "publish points event failed", slog.String("error", err.Error()))
		}
		if err := s.bus.StreamAppend(ctx, domain.StreamPoints, payload); err != nil {
			s.logger.WarnContext(ctx, "append points stream failed", slog.String("error", err.Error()))
		}
	}

	if s.audit != nil {
		if err := s.audit.Log(ctx, domain.EventPointsAwarded, map[string]any{
			"entry_id": res.Entry.ID,
			"address":  res.Entry.Address,
			"bet_id":   res.Entry.BetID,
			"points":   res.Entry.PointsEarned,
			"won":      res.Entry.Won,
		}); err != nil {
			s.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}

	if s.notifier != nil {
		outcome := "loss"
		if res.Entry.Won {
			outcome = "win"
		}
		msg := fmt.Sprintf("%s earned %d points (%s, $%.2f over %ds). Total: %d",
			res.Entry.Address, res.Entry.PointsEarned, outcome,
			res.Entry.USDAmount, res.Entry.TimeframeSeconds, res.Record.TotalPoints)
		if err := s.notifier.Notify(ctx, domain.EventPointsAwarded, "Points awarded", msg); err != nil {
			s.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
		}
	}
}

// Record returns an address aggregate with its rank when the cache knows it.
func (s *PointsService) Record(ctx context.Context, address string) (domain.RankedRecord, error) {
	addr, err := chain.ParseAddress(address)
	if err != nil {
		return domain.RankedRecord{}, fmt.Errorf("points_service: record: %w", err)
	}
	rec, err := s.ledger.GetRecord(ctx, addr)
	if err != nil {
		return domain.RankedRecord{}, fmt.Errorf("points_service: record: %w", err)
	}
	out := domain.RankedRecord{LeaderboardRecord: rec}
	if s.board != nil {
		rank, err := s.board.Rank(ctx, addr)
		switch {
		case err == nil:
			out.Rank = rank
		case !errors.Is(err, domain.ErrNotFound):
			s.logger.WarnContext(ctx, "leaderboard rank lookup failed",
				slog.String("address", addr),
				slog.String("error", err.Error()),
			)
		}
	}
	return out, nil
}

// Entries returns an address's ledger entries, newest first.
func (s *PointsService) Entries(ctx context.Context, address string, opts domain.ListOpts) ([]domain.LedgerEntry, error) {
	addr, err := chain.ParseAddress(address)
	if err != nil {
		return nil, fmt.Errorf("points_service: entries: %w", err)
	}
	entries, err := s.ledger.ListEntries(ctx, addr, opts)
	if err != nil {
		return nil, fmt.Errorf("points_service: entries: %w", err)
	}
	return entries, nil
}

// Leaderboard returns the top records. It reads the cache first and falls
// back to the store when the cache is empty or unavailable.
func (s *PointsService) Leaderboard(ctx context.Context, limit int) ([]domain.RankedRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var records []domain.LeaderboardRecord
	if s.board != nil {
		cached, err := s.board.Top(ctx, limit)
		if err != nil {
			s.logger.WarnContext(ctx, "leaderboard cache read failed", slog.String("error", err.Error()))
		}
		records = cached
	}
	if len(records) == 0 {
		stored, err := s.ledger.TopRecords(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("points_service: leaderboard: %w", err)
		}
		records = stored
	}

	out := make([]domain.RankedRecord, len(records))
	for i, r := range records {
		out[i] = domain.RankedRecord{Rank: i + 1, LeaderboardRecord: r}
	}
	return out, nil
}

// WarmLeaderboard copies the top records from the store into the cache.
func (s *PointsService) WarmLeaderboard(ctx context.Context, limit int) (int, error) {
	if s.board == nil {
		return 0, nil
	}
	records, err := s.ledger.TopRecords(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("points_service: warm leaderboard: %w", err)
	}
	for _, r := range records {
		if err := s.board.Put(ctx, r); err != nil {
			return 0, fmt.Errorf("points_service: warm leaderboard: %w", err)
		}
	}
	s.logger.InfoContext(ctx, "leaderboard cache warmed", slog.Int("records", len(records)))
	return len(records), nil
}

// Events replays award events from the durable stream after the given id.
func (s *PointsService) Events(ctx context.Context, after string, count int) ([]domain.PointsEvent, string, error) {
	if s.bus == nil {
		return nil, after, nil
	}
	if count <= 0 || count > 500 {
		count = 100
	}
	msgs, err := s.bus.StreamRead(ctx, domain.StreamPoints, after, count)
	if err != nil {
		return nil, after, fmt.Errorf("points_service: events: %w", err)
	}
	out := make([]domain.PointsEvent, 0, len(msgs))
	last := after
	for _, m := range msgs {
		last = m.ID
		var evt domain.PointsEvent
		if err := json.Unmarshal(m.Payload, &evt); err != nil {
			s.logger.WarnContext(ctx, "skipping malformed points event",
				slog.String("id", m.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		out = append(out, evt)
	}
	return out, last, nil
}
