package points

import (
	"errors"
	"math"
	"testing"

	"github.com/alanyoungcy/betengine/internal/domain"
)

func TestTimeframeMultiplier(t *testing.T) {
	tests := []struct {
		seconds int64
		want    float64
	}{
		{1, 1},
		{15, 1},
		{16, 1.5},
		{30, 1.5},
		{31, 2},
		{60, 2},
		{61, 3},
		{300, 3},
		{301, 5},
		{900, 5},
		{901, 10},
		{3600, 10},
		{3601, 20},
		{14400, 20},
		{14401, 50},
		{86400, 50},
		{86401, 100},
		{7 * 86400, 100},
	}
	for _, tt := range tests {
		if got := TimeframeMultiplier(tt.seconds); got != tt.want {
			t.Errorf("TimeframeMultiplier(%d) = %v, want %v", tt.seconds, got, tt.want)
		}
	}
}

func TestStakeTier(t *testing.T) {
	tests := []struct {
		usd  float64
		want float64
	}{
		{0, 1},
		{9.99, 1},
		{10, 1.5},
		{49.99, 1.5},
		{50, 2},
		{99.99, 2},
		{100, 3},
		{1e6, 3},
	}
	for _, tt := range tests {
		if got := StakeTier(tt.usd); got != tt.want {
			t.Errorf("StakeTier(%v) = %v, want %v", tt.usd, got, tt.want)
		}
	}
}

func TestWinAndLossPoints(t *testing.T) {
	if got := WinPoints(20, 300); got != 450 {
		t.Fatalf("WinPoints(20, 300) = %d, want 450", got)
	}
	if got := LossPoints(20, 300); got != 112 {
		t.Fatalf("LossPoints(20, 300) = %d, want 112", got)
	}
	// 100 * 1.5 * 1.5 = 225, loss = floor(56.25) = 56
	if got := WinPoints(10, 16); got != 225 {
		t.Fatalf("WinPoints(10, 16) = %d, want 225", got)
	}
	if got := LossPoints(10, 16); got != 56 {
		t.Fatalf("LossPoints(10, 16) = %d, want 56", got)
	}
	if got := WinPoints(500, 86401); got != 30000 {
		t.Fatalf("WinPoints(500, 86401) = %d, want 30000", got)
	}
}

func TestLossIsQuarterOfWin(t *testing.T) {
	amounts := []float64{0, 5, 9.99, 10, 25, 50, 75, 100, 1000}
	timeframes := []int64{1, 15, 16, 45, 120, 600, 1800, 7200, 20000, 90000}
	for _, a := range amounts {
		for _, tf := range timeframes {
			win := WinPoints(a, tf)
			want := int64(math.Floor(100 * TimeframeMultiplier(tf) * StakeTier(a)))
			if win != want {
				t.Errorf("WinPoints(%v, %d) = %d, want %d", a, tf, win, want)
			}
			if loss := LossPoints(a, tf); loss != win/4 {
				t.Errorf("LossPoints(%v, %d) = %d, want %d", a, tf, loss, win/4)
			}
		}
	}
}

func TestCalculate(t *testing.T) {
	a, err := Calculate(20, 300, true)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if a.Points != 450 || a.TimeframeMultiplier != 3 || a.StakeTier != 1.5 {
		t.Fatalf("unexpected award %+v", a)
	}

	a, err = Calculate(20, 300, false)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if a.Points != 112 {
		t.Fatalf("loss points = %d, want 112", a.Points)
	}
}

func TestCalculateRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name    string
		usd     float64
		seconds int64
	}{
		{"negative usd", -1, 60},
		{"nan usd", math.NaN(), 60},
		{"inf usd", math.Inf(1), 60},
		{"zero timeframe", 10, 0},
		{"negative timeframe", 10, -5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Calculate(tc.usd, tc.seconds, true)
			if !errors.Is(err, domain.ErrInvalidBet) {
				t.Fatalf("expected ErrInvalidBet, got %v", err)
			}
		})
	}
}
