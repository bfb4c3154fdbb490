package domain

import "time"

// Pub/Sub channels and streams.
const (
	ChannelPrices     = "prices"
	ChannelPoints     = "points"
	ChannelBetSettled = "bet_settled"
	StreamPoints      = "stream:points"
)

// Event names used on the bus, in the audit log and for notifications.
const (
	EventPriceUpdate     = "price_update"
	EventPointsAwarded   = "points_awarded"
	EventBetSettled      = "bet_settled"
	EventExportCompleted = "export_completed"
	EventError           = "error"
)

// PriceEvent is published on ChannelPrices.
type PriceEvent struct {
	Event string `json:"event"`
	Seq   uint64 `json:"seq"`
	Quote Quote  `json:"quote"`
}

// PointsEvent is published on ChannelPoints and appended to StreamPoints.
type PointsEvent struct {
	Event  string            `json:"event"`
	Entry  LedgerEntry       `json:"entry"`
	Record LeaderboardRecord `json:"record"`
}

// SettlementEvent is published on ChannelBetSettled.
type SettlementEvent struct {
	Event     string    `json:"event"`
	BetID     string    `json:"bet_id"`
	Address   string    `json:"address"`
	Kind      BetKind   `json:"kind"`
	Won       bool      `json:"won"`
	USDAmount float64   `json:"usd_amount"`
	Points    int64     `json:"points"`
	SettledAt time.Time `json:"settled_at"`
}
