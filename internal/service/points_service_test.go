package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/alanyoungcy/betengine/internal/domain"
)

const (
	alice = "0xAbCdEf0123456789aBcDeF0123456789AbCdEf01"
	bob   = "0x00000000000000000000000000000000000000b0"
)

func newPointsFixture() (*PointsService, *memLedger, *memBoard, *memBus, *memAudit, *memNotifier) {
	ledger := newMemLedger()
	board := newMemBoard()
	bus := newMemBus()
	audit := &memAudit{}
	notifier := &memNotifier{}
	return NewPointsService(ledger, board, bus, audit, notifier, discardLogger()), ledger, board, bus, audit, notifier
}

func TestAwardComputesAndStores(t *testing.T) {
	svc, _, board, bus, audit, notifier := newPointsFixture()
	ctx := context.Background()

	res, err := svc.Award(ctx, AwardRequest{
		Address: alice, BetID: "bet-1", USDAmount: 20, TimeframeSeconds: 300,
		Direction: domain.DirectionUp, Won: true,
	})
	if err != nil {
		t.Fatalf("Award: %v", err)
	}
	if !res.Created || res.Entry.PointsEarned != 450 {
		t.Fatalf("expected 450 new points, got %+v", res)
	}
	if res.Entry.Address != strings.ToLower(alice) {
		t.Fatalf("address not lower-cased: %s", res.Entry.Address)
	}
	if res.Record.TotalPoints != 450 || res.Record.Wins != 1 || res.Record.TotalBets != 1 {
		t.Fatalf("unexpected record %+v", res.Record)
	}
	if res.Breakdown.TimeframeMultiplier != 3 || res.Breakdown.StakeTier != 1.5 {
		t.Fatalf("unexpected breakdown %+v", res.Breakdown)
	}

	if rank, _ := board.Rank(ctx, strings.ToLower(alice)); rank != 1 {
		t.Fatalf("leaderboard cache not updated, rank=%d", rank)
	}
	if bus.count(domain.ChannelPoints) != 1 {
		t.Fatalf("expected one points event")
	}
	if len(audit.events) != 1 || len(notifier.events) != 1 || notifier.events[0] != domain.EventPointsAwarded {
		t.Fatalf("expected audit and notify, got %v %v", audit.events, notifier.events)
	}
}

func TestAwardIsIdempotentPerBetID(t *testing.T) {
	svc, ledger, _, bus, _, _ := newPointsFixture()
	ctx := context.Background()
	req := AwardRequest{Address: alice, BetID: "bet-1", USDAmount: 20, TimeframeSeconds: 300, Won: false}

	first, err := svc.Award(ctx, req)
	if err != nil {
		t.Fatalf("first award: %v", err)
	}
	req.Won = true
	second, err := svc.Award(ctx, req)
	if err != nil {
		t.Fatalf("second award: %v", err)
	}
	if second.Created {
		t.Fatal("expected duplicate award to report Created=false")
	}
	if second.Entry.ID != first.Entry.ID || second.Entry.PointsEarned != 112 {
		t.Fatalf("expected original loss entry back, got %+v", second.Entry)
	}
	if second.Record.TotalPoints != 112 || second.Record.TotalBets != 1 {
		t.Fatalf("duplicate changed the aggregate: %+v", second.Record)
	}
	if len(ledger.entries) != 1 || bus.count(domain.ChannelPoints) != 1 {
		t.Fatalf("duplicate should not append or publish")
	}
}

func TestAwardWithoutBetIDDoubleCounts(t *testing.T) {
	svc, _, _, _, _, _ := newPointsFixture()
	ctx := context.Background()
	req := AwardRequest{Address: alice, USDAmount: 5, TimeframeSeconds: 10, Won: true}

	for i := 0; i < 2; i++ {
		res, err := svc.Award(ctx, req)
		if err != nil || !res.Created {
			t.Fatalf("award %d: created=%v err=%v", i+1, res.Created, err)
		}
	}
	rec, err := svc.Record(ctx, alice)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if rec.TotalPoints != 200 || rec.TotalBets != 2 {
		t.Fatalf("expected two awards of 100, got %+v", rec)
	}
}

func TestAwardValidation(t *testing.T) {
	svc, _, _, _, _, _ := newPointsFixture()
	ctx := context.Background()

	tests := []struct {
		name string
		req  AwardRequest
		want error
	}{
		{"bad address", AwardRequest{Address: "alice", USDAmount: 1, TimeframeSeconds: 1}, domain.ErrInvalidAddress},
		{"negative usd", AwardRequest{Address: alice, USDAmount: -1, TimeframeSeconds: 1}, domain.ErrInvalidBet},
		{"zero timeframe", AwardRequest{Address: alice, USDAmount: 1}, domain.ErrInvalidBet},
		{"bad direction", AwardRequest{Address: alice, USDAmount: 1, TimeframeSeconds: 1, Direction: "sideways"}, domain.ErrInvalidBet},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Award(ctx, tt.req); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestAwardPropagatesStorageError(t *testing.T) {
	svc, ledger, _, _, _, _ := newPointsFixture()
	ledger.failErr = errors.New("disk full")
	_, err := svc.Award(context.Background(), AwardRequest{Address: alice, USDAmount: 1, TimeframeSeconds: 1})
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestLeaderboardRanksAndInvariant(t *testing.T) {
	svc, _, _, _, _, _ := newPointsFixture()
	ctx := context.Background()

	awards := []AwardRequest{
		{Address: alice, BetID: "a1", USDAmount: 20, TimeframeSeconds: 300, Won: true},
		{Address: alice, BetID: "a2", USDAmount: 20, TimeframeSeconds: 300, Won: false},
		{Address: bob, BetID: "b1", USDAmount: 500, TimeframeSeconds: 100000, Won: true},
	}
	for _, a := range awards {
		if _, err := svc.Award(ctx, a); err != nil {
			t.Fatalf("award %s: %v", a.BetID, err)
		}
	}

	top, err := svc.Leaderboard(ctx, 10)
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	if len(top) != 2 || top[0].Address != bob || top[0].Rank != 1 || top[1].Rank != 2 {
		t.Fatalf("unexpected leaderboard %+v", top)
	}

	entries, err := svc.Entries(ctx, alice, domain.ListOpts{})
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	var sum int64
	for _, e := range entries {
		sum += e.PointsEarned
	}
	rec, _ := svc.Record(ctx, alice)
	if rec.TotalPoints != sum || rec.TotalBets != rec.Wins+rec.Losses || rec.Rank != 2 {
		t.Fatalf("record %+v does not match entries sum %d", rec, sum)
	}
}

func TestLeaderboardFallsBackToStore(t *testing.T) {
	ledger := newMemLedger()
	svc := NewPointsService(ledger, nil, nil, nil, nil, discardLogger())
	ctx := context.Background()
	if _, err := svc.Award(ctx, AwardRequest{Address: alice, USDAmount: 1, TimeframeSeconds: 1, Won: true}); err != nil {
		t.Fatalf("Award: %v", err)
	}
	top, err := svc.Leaderboard(ctx, 0)
	if err != nil || len(top) != 1 {
		t.Fatalf("Leaderboard: %+v %v", top, err)
	}
	events, last, err := svc.Events(ctx, "", 10)
	if err != nil || events != nil || last != "" {
		t.Fatalf("Events without bus: %v %q %v", events, last, err)
	}
}

func TestEventsReplay(t *testing.T) {
	svc, _, _, bus, _, _ := newPointsFixture()
	ctx := context.Background()
	for _, id := range []string{"x", "y"} {
		if _, err := svc.Award(ctx, AwardRequest{Address: alice, BetID: id, USDAmount: 1, TimeframeSeconds: 1, Won: true}); err != nil {
			t.Fatalf("Award: %v", err)
		}
	}
	_ = bus.StreamAppend(ctx, domain.StreamPoints, []byte("not json"))

	events, last, err := svc.Events(ctx, "", 10)
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 2 || events[0].Entry.BetID != "x" || last != "3-0" {
		t.Fatalf("unexpected replay %+v last=%s", events, last)
	}

	more, last2, err := svc.Events(ctx, "1-0", 10)
	if err != nil || len(more) != 1 || last2 != "3-0" {
		t.Fatalf("replay after 1-0: %+v %s %v", more, last2, err)
	}
	var raw map[string]any
	if err := json.Unmarshal(bus.published[domain.ChannelPoints][0], &raw); err != nil || raw["event"] != domain.EventPointsAwarded {
		t.Fatalf("published payload %v %v", raw, err)
	}
}
