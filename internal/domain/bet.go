package domain

import (
	"math/big"
	"time"
)

// Direction is the side a bettor took.
type Direction string

const (
	DirectionYes  Direction = "yes"
	DirectionNo   Direction = "no"
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	// DirectionWager marks a peer-to-peer wager, which has no side.
	DirectionWager Direction = "wager"
)

// Valid reports whether d is one of the known directions.
func (d Direction) Valid() bool {
	switch d {
	case DirectionYes, DirectionNo, DirectionUp, DirectionDown, DirectionWager:
		return true
	}
	return false
}

// BetKind identifies which contract family a bet was placed on.
type BetKind string

const (
	BetKindMarket     BetKind = "market"
	BetKindWager      BetKind = "wager"
	BetKindPrediction BetKind = "prediction"
)

// Valid reports whether k is a known contract family.
func (k BetKind) Valid() bool {
	switch k {
	case BetKindMarket, BetKindWager, BetKindPrediction:
		return true
	}
	return false
}

// Market mirrors a binary yes/no market held by the market contract.
type Market struct {
	ID          uint64    `json:"id"`
	Description string    `json:"description"`
	EndTime     time.Time `json:"end_time"`
	YesPool     *big.Int  `json:"yes_pool"`
	NoPool      *big.Int  `json:"no_pool"`
	MinBet      *big.Int  `json:"min_bet"`
	Resolved    bool      `json:"resolved"`
	// Outcome is only meaningful once Resolved is true; true means Yes won.
	Outcome bool   `json:"outcome"`
	Creator string `json:"creator"`
}

// MarketPosition is one bettor's stake in a market.
type MarketPosition struct {
	YesAmount *big.Int `json:"yes_amount"`
	NoAmount  *big.Int `json:"no_amount"`
	Claimed   bool     `json:"claimed"`
}

// Wager mirrors a peer-to-peer or multi-participant wager.
type Wager struct {
	ID           uint64   `json:"id"`
	Claim        string   `json:"claim"`
	Resolver     string   `json:"resolver"`
	Stake        *big.Int `json:"stake"`
	Participants []string `json:"participants"`
	Resolved     bool     `json:"resolved"`
	Winner       string   `json:"winner"`
}

// Prediction mirrors a timeframe-bound up/down bet on a token price.
type Prediction struct {
	ID               uint64   `json:"id"`
	Symbol           string   `json:"symbol"`
	TimeframeSeconds int64    `json:"timeframe_seconds"`
	StartPrice       *big.Int `json:"start_price"`
	EndPrice         *big.Int `json:"end_price"`
	UpPool           *big.Int `json:"up_pool"`
	DownPool         *big.Int `json:"down_pool"`
	Resolved         bool     `json:"resolved"`
	// UpWon is only meaningful once Resolved is true.
	UpWon bool `json:"up_won"`
}

// PredictionBet is one bettor's stake in a prediction.
type PredictionBet struct {
	Amount  *big.Int `json:"amount"`
	Up      bool     `json:"up"`
	Claimed bool     `json:"claimed"`
}

// ContractCounts reports how many instances each contract holds.
type ContractCounts struct {
	Markets     uint64 `json:"markets"`
	Wagers      uint64 `json:"wagers"`
	Predictions uint64 `json:"predictions"`
}

// TxRequest is an unsigned contract call for a wallet to sign and send.
type TxRequest struct {
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value"`
}
