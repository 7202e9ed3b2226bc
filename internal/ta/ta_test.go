package ta

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"sentiment-trading-bot/internal/types"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestSMA(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5}

	tests := []struct {
		name string
		n    int
		want float64
	}{
		{"last three", 3, 4},
		{"full window", 5, 3},
		{"fallback to available", 50, 3},
		{"non-positive window uses all", 0, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SMA(closes, tt.n); !approx(got, tt.want) {
				t.Errorf("SMA(%d) = %f, want %f", tt.n, got, tt.want)
			}
		})
	}

	if got := SMA(nil, 20); got != 0 {
		t.Errorf("SMA on empty series = %f, want 0", got)
	}
}

func TestRSI(t *testing.T) {
	t.Run("insufficient data is neutral", func(t *testing.T) {
		closes := make([]float64, 14)
		for i := range closes {
			closes[i] = float64(100 + i)
		}
		if got := RSI(closes, 14); got != 50 {
			t.Errorf("Expected 50 with 14 closes, got %f", got)
		}
	})

	t.Run("no losses is 100", func(t *testing.T) {
		closes := make([]float64, 15)
		for i := range closes {
			closes[i] = float64(100 + i)
		}
		if got := RSI(closes, 14); got != 100 {
			t.Errorf("Expected 100 on a rising series, got %f", got)
		}
	})

	t.Run("only losses is 0", func(t *testing.T) {
		closes := make([]float64, 20)
		for i := range closes {
			closes[i] = float64(200 - i)
		}
		if got := RSI(closes, 14); got != 0 {
			t.Errorf("Expected 0 on a falling series, got %f", got)
		}
	})

	t.Run("equal gains and losses is 50", func(t *testing.T) {
		closes := []float64{100}
		for i := 0; i < 14; i++ {
			if i%2 == 0 {
				closes = append(closes, closes[len(closes)-1]+1)
			} else {
				closes = append(closes, closes[len(closes)-1]-1)
			}
		}
		if got := RSI(closes, 14); !approx(got, 50) {
			t.Errorf("Expected 50, got %f", got)
		}
	})
}

func TestRSIBoundedOnRandomWalks(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for run := 0; run < 200; run++ {
		n := 1 + rng.Intn(120)
		closes := make([]float64, n)
		price := 100.0
		for i := range closes {
			price += rng.NormFloat64() * 3
			closes[i] = price
		}
		got := RSI(closes, 14)
		if got < 0 || got > 100 || math.IsNaN(got) {
			t.Fatalf("run %d: RSI out of range: %f", run, got)
		}
	}
}

func TestEMAAndMACD(t *testing.T) {
	flat := make([]float64, 40)
	for i := range flat {
		flat[i] = 100
	}
	if got := EMA(flat, 12); !approx(got, 100) {
		t.Errorf("EMA of flat series = %f, want 100", got)
	}
	if got := MACD(flat, 12, 26); !approx(got, 0) {
		t.Errorf("MACD of flat series = %f, want 0", got)
	}

	rising := make([]float64, 60)
	for i := range rising {
		rising[i] = 100 + float64(i)
	}
	if got := MACD(rising, 12, 26); got <= 0 {
		t.Errorf("Expected positive MACD on a rising series, got %f", got)
	}

	// Seed is the SMA of the first n closes.
	if got := EMA([]float64{2, 4, 6}, 3); !approx(got, 4) {
		t.Errorf("EMA seeded over exact window = %f, want 4", got)
	}
}

func TestBollinger(t *testing.T) {
	closes := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	mid, up, low := Bollinger(closes, 8, 2)
	if !approx(mid, 5) {
		t.Errorf("middle = %f, want 5", mid)
	}
	// population std dev of the sample is 2
	if !approx(up, 9) || !approx(low, 1) {
		t.Errorf("bands = (%f, %f), want (9, 1)", up, low)
	}
}

func TestComputeSufficientFlag(t *testing.T) {
	p := DefaultPeriods()
	points := func(n int) []types.PricePoint {
		out := make([]types.PricePoint, n)
		start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		for i := range out {
			out[i] = types.PricePoint{Time: start.AddDate(0, 0, i), Close: 100}
		}
		return out
	}

	short := Compute(points(20), p)
	if short.Sufficient {
		t.Error("Expected 20 bars to be insufficient for the 50-bar SMA")
	}
	if short.Bars != 20 || short.SMALong != 100 || short.RSI != 100 {
		t.Errorf("unexpected degraded state: %+v", short)
	}

	full := Compute(points(p.Required()), p)
	if !full.Sufficient {
		t.Errorf("Expected %d bars to be sufficient", p.Required())
	}
	if full.BB.Upper != full.BB.Lower {
		t.Errorf("Expected collapsed bands on a flat series, got %+v", full.BB)
	}

	empty := Compute(nil, p)
	if empty.Sufficient || empty.Close != 0 || empty.RSI != 50 {
		t.Errorf("unexpected state for empty series: %+v", empty)
	}
}
