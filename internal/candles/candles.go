// Package candles builds OHLC buckets from raw price samples.
package candles

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/betengine/internal/domain"
)

// Synthesize groups points into fixed buckets of size bucket, aligned to the
// Unix epoch, and returns one candle per non-empty bucket in time order. Each
// candle takes the first, max, min and last price of its bucket. Points need
// not be sorted.
func Synthesize(points []domain.PricePoint, bucket time.Duration) []domain.Candle {
	if len(points) == 0 || bucket <= 0 {
		return nil
	}

	sorted := make([]domain.PricePoint, len(points))
	copy(sorted, points)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time.Before(sorted[j].Time)
	})

	var out []domain.Candle
	var cur *domain.Candle
	for _, p := range sorted {
		start := p.Time.Truncate(bucket)
		if cur == nil || !cur.Time.Equal(start) {
			out = append(out, domain.Candle{
				Time:  start,
				Open:  p.Price,
				High:  p.Price,
				Low:   p.Price,
				Close: p.Price,
			})
			cur = &out[len(out)-1]
			continue
		}
		if p.Price > cur.High {
			cur.High = p.Price
		}
		if p.Price < cur.Low {
			cur.Low = p.Price
		}
		cur.Close = p.Price
	}
	return out
}

// MaxWindow is the longest lookback ParseWindow accepts.
const MaxWindow = maxWindowDays * 24 * time.Hour

const maxWindowDays = 365

// ParseWindow accepts Go durations ("90m", "24h") plus day and week
// suffixes ("7d", "2w").
func ParseWindow(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("candles: empty window")
	}
	var d time.Duration
	switch unit := s[len(s)-1]; unit {
	case 'd', 'w':
		n, err := strconv.Atoi(s[:len(s)-1])
		if err != nil {
			return 0, fmt.Errorf("candles: window %q: %w", s, err)
		}
		// Bounded before multiplying so huge counts cannot wrap into range.
		if n <= 0 || n > maxWindowDays {
			return 0, fmt.Errorf("candles: window %q out of range", s)
		}
		d = time.Duration(n) * 24 * time.Hour
		if unit == 'w' {
			d *= 7
		}
	default:
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("candles: window %q: %w", s, err)
		}
		d = parsed
	}
	if d <= 0 || d > MaxWindow {
		return 0, fmt.Errorf("candles: window %q out of range", s)
	}
	return d, nil
}

// BucketFor picks a candle width for a lookback window.
func BucketFor(window time.Duration) time.Duration {
	switch {
	case window <= time.Hour:
		return time.Minute
	case window <= 24*time.Hour:
		return 15 * time.Minute
	case window <= 7*24*time.Hour:
		return time.Hour
	default:
		return 4 * time.Hour
	}
}

// Since drops candles that start before cutoff.
func Since(in []domain.Candle, cutoff time.Time) []domain.Candle {
	i := sort.Search(len(in), func(i int) bool {
		return !in[i].Time.Before(cutoff)
	})
	return in[i:]
}
