package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/alanyoungcy/betengine/internal/domain"
	"github.com/redis/go-redis/v9"
)

const leaderboardKey = "leaderboard"

// LeaderboardCache implements domain.LeaderboardCache. Scores live in the
// "leaderboard" sorted set and full records as JSON at
// "leaderboard:rec:{address}".
type LeaderboardCache struct {
	rdb *redis.Client
}

// NewLeaderboardCache creates a LeaderboardCache backed by the given Client.
func NewLeaderboardCache(c *Client) *LeaderboardCache {
	return &LeaderboardCache{rdb: c.Underlying()}
}

func recordKey(address string) string {
	return "leaderboard:rec:" + strings.ToLower(address)
}

// Put writes the record and its score atomically.
func (lc *LeaderboardCache) Put(ctx context.Context, rec domain.LeaderboardRecord) error {
	rec.Address = strings.ToLower(rec.Address)
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redis: marshal leaderboard record %s: %w", rec.Address, err)
	}
	_, err = lc.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, leaderboardKey, redis.Z{Score: float64(rec.TotalPoints), Member: rec.Address})
		pipe.Set(ctx, recordKey(rec.Address), data, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: put leaderboard record %s: %w", rec.Address, err)
	}
	return nil
}

// Top returns up to limit records, highest score first.
func (lc *LeaderboardCache) Top(ctx context.Context, limit int) ([]domain.LeaderboardRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	addrs, err := lc.rdb.ZRevRange(ctx, leaderboardKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: leaderboard top: %w", err)
	}
	if len(addrs) == 0 {
		return nil, nil
	}

	keys := make([]string, len(addrs))
	for i, a := range addrs {
		keys[i] = recordKey(a)
	}
	vals, err := lc.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: leaderboard records: %w", err)
	}

	out := make([]domain.LeaderboardRecord, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var rec domain.LeaderboardRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			return nil, fmt.Errorf("redis: unmarshal leaderboard record %s: %w", addrs[i], err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Rank returns the 1-based rank of address or domain.ErrNotFound.
func (lc *LeaderboardCache) Rank(ctx context.Context, address string) (int, error) {
	r, err := lc.rdb.ZRevRank(ctx, leaderboardKey, strings.ToLower(address)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("redis: leaderboard rank %s: %w", address, err)
	}
	return int(r) + 1, nil
}

var _ domain.LeaderboardCache = (*LeaderboardCache)(nil)
