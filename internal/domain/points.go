package domain

import "time"

// LedgerEntry records one bet outcome and the points it earned.
type LedgerEntry struct {
	// Seq is assigned by the store in commit order and never reused.
	Seq              int64     `json:"seq"`
	ID               string    `json:"id"`
	Address          string    `json:"address"`
	BetID            string    `json:"bet_id"`
	USDAmount        float64   `json:"usd_amount"`
	TimeframeSeconds int64     `json:"timeframe_seconds"`
	Direction        Direction `json:"direction"`
	Won              bool      `json:"won"`
	PointsEarned     int64     `json:"points_earned"`
	CreatedAt        time.Time `json:"created_at"`
}

// LeaderboardRecord is the per-address aggregate derived from the ledger.
type LeaderboardRecord struct {
	Address     string    `json:"address"`
	TotalPoints int64     `json:"total_points"`
	Wins        int64     `json:"wins"`
	Losses      int64     `json:"losses"`
	TotalBets   int64     `json:"total_bets"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Apply folds a ledger entry into the aggregate.
func (r *LeaderboardRecord) Apply(e LedgerEntry) {
	r.TotalPoints += e.PointsEarned
	if e.Won {
		r.Wins++
	} else {
		r.Losses++
	}
	r.TotalBets = r.Wins + r.Losses
	if e.CreatedAt.After(r.UpdatedAt) {
		r.UpdatedAt = e.CreatedAt
	}
}

// RankedRecord is a leaderboard record with its 1-based rank.
type RankedRecord struct {
	Rank int `json:"rank"`
	LeaderboardRecord
}

// TrackedBet is a bet registered for automatic settlement.
type TrackedBet struct {
	ID         string     `json:"id"`
	Address    string     `json:"address"`
	Kind       BetKind    `json:"kind"`
	Contract   string     `json:"contract"`
	ContractID uint64     `json:"contract_id"`
	PlacedAt   time.Time  `json:"placed_at"`
	Settled    bool       `json:"settled"`
	SettledAt  *time.Time `json:"settled_at,omitempty"`
	EntryID    string     `json:"entry_id,omitempty"`
	// Expired bets were closed without an award because their contract
	// instance never appeared on chain.
	Expired   bool       `json:"expired,omitempty"`
	CheckedAt *time.Time `json:"checked_at,omitempty"`
}
