// Package points converts resolved bet outcomes into leaderboard points.
//
// Points scale with two step functions: a timeframe multiplier that rewards
// longer-horizon bets, and a stake tier that rewards larger USD notionals.
// A losing bet earns a quarter of what the same bet would have earned on a
// win.
package points

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/betengine/internal/domain"
)

// BasePoints is the award for a winning bet at multiplier 1 and tier 1.
const BasePoints = 100

// LossDivisor sets the consolation rate for a lost bet (1/4 of win points).
const LossDivisor = 4

type step struct {
	limit float64
	value float64
}

// timeframeSteps are inclusive upper bounds in seconds.
var timeframeSteps = []step{
	{15, 1},
	{30, 1.5},
	{60, 2},
	{300, 3},
	{900, 5},
	{3600, 10},
	{14400, 20},
	{86400, 50},
}

const maxTimeframeMultiplier = 100

// stakeSteps are exclusive upper bounds in USD.
var stakeSteps = []step{
	{10, 1},
	{50, 1.5},
	{100, 2},
}

const maxStakeTier = 3

// TimeframeMultiplier returns the multiplier for a bet lasting seconds.
func TimeframeMultiplier(seconds int64) float64 {
	for _, s := range timeframeSteps {
		if float64(seconds) <= s.limit {
			return s.value
		}
	}
	return maxTimeframeMultiplier
}

// StakeTier returns the multiplier for a stake worth usd dollars.
func StakeTier(usd float64) float64 {
	for _, s := range stakeSteps {
		if usd < s.limit {
			return s.value
		}
	}
	return maxStakeTier
}

// WinPoints is floor(100 * TimeframeMultiplier * StakeTier).
func WinPoints(usd float64, seconds int64) int64 {
	return int64(math.Floor(BasePoints * TimeframeMultiplier(seconds) * StakeTier(usd)))
}

// LossPoints is floor(WinPoints / 4).
func LossPoints(usd float64, seconds int64) int64 {
	return WinPoints(usd, seconds) / LossDivisor
}

// Award is the full breakdown of a point calculation.
type Award struct {
	USDAmount           float64 `json:"usd_amount"`
	TimeframeSeconds    int64   `json:"timeframe_seconds"`
	Won                 bool    `json:"won"`
	TimeframeMultiplier float64 `json:"timeframe_multiplier"`
	StakeTier           float64 `json:"stake_tier"`
	Points              int64   `json:"points"`
}

// Calculate validates the inputs and returns the award for one bet.
// usd must be a finite value >= 0 and seconds must be > 0.
func Calculate(usd float64, seconds int64, won bool) (Award, error) {
	if math.IsNaN(usd) || math.IsInf(usd, 0) || usd < 0 {
		return Award{}, fmt.Errorf("points: usd amount %v: %w", usd, domain.ErrInvalidBet)
	}
	if seconds <= 0 {
		return Award{}, fmt.Errorf("points: timeframe %ds: %w", seconds, domain.ErrInvalidBet)
	}

	a := Award{
		USDAmount:           usd,
		TimeframeSeconds:    seconds,
		Won:                 won,
		TimeframeMultiplier: TimeframeMultiplier(seconds),
		StakeTier:           StakeTier(usd),
	}
	if won {
		a.Points = WinPoints(usd, seconds)
	} else {
		a.Points = LossPoints(usd, seconds)
	}
	return a, nil
}
