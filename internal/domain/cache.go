package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest quotes and recent history.
type PriceCache interface {
	SetQuote(ctx context.Context, q Quote) error
	GetQuote(ctx context.Context, symbol string) (Quote, error)
	GetQuotes(ctx context.Context, symbols []string) (map[string]Quote, error)
	SetHistory(ctx context.Context, key string, candles []Candle, ttl time.Duration) error
	GetHistory(ctx context.Context, key string) ([]Candle, error)
}

// LeaderboardCache keeps a ranked view of leaderboard records.
type LeaderboardCache interface {
	Put(ctx context.Context, rec LeaderboardRecord) error
	Top(ctx context.Context, limit int) ([]LeaderboardRecord, error)
	Rank(ctx context.Context, address string) (int, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
	// Hold acquires key and renews it until release is called. The returned
	// context is cancelled once the lock is released or can no longer be
	// renewed.
	Hold(ctx context.Context, key string, ttl time.Duration) (held context.Context, release func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
