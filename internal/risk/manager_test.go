package risk

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"testing"
	"time"

	"sentiment-trading-bot/internal/portfolio"
	"sentiment-trading-bot/internal/types"
)

var now = time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)

func signal(symbol string, action types.Action, confidence float64, at time.Time) types.Signal {
	return types.Signal{Symbol: symbol, Action: action, Confidence: confidence, Time: at, ExpiresAt: at.Add(15 * time.Minute)}
}

func testLimits() Limits {
	return Limits{
		MaxPositionSize:    500,
		MaxDailyLoss:       1000,
		MaxOpenPositions:   3,
		StopLossPct:        0.05,
		TakeProfitPct:      0.10,
		AllocationFraction: 1,
		MinTick:            0.01,
	}
}

func TestBuySizingNeverExceedsMaxPositionSize(t *testing.T) {
	m := NewManager(testLimits(), nil)
	p := portfolio.New(1000)

	d := m.Evaluate(context.Background(), signal("AAPL", types.ActionBuy, 0.9, now), p, 100, now)

	if !d.Accepted {
		t.Fatalf("Expected BUY to be accepted, got %s", d.Reason)
	}
	if d.Quantity != 5 {
		t.Errorf("Expected quantity 5, got %d", d.Quantity)
	}
	if math.Abs(d.StopLossPrice-95) > 1e-9 || math.Abs(d.TakeProfitPrice-110) > 1e-9 {
		t.Errorf("Expected stop 95 / target 110, got %f / %f", d.StopLossPrice, d.TakeProfitPrice)
	}
	if p.Cash != 500 {
		t.Errorf("Expected 500 cash left, got %f", p.Cash)
	}
}

func TestBuyScalesWithConfidence(t *testing.T) {
	l := testLimits()
	l.MaxPositionSize = 10000
	m := NewManager(l, nil)
	p := portfolio.New(1000)

	d := m.Evaluate(context.Background(), signal("AAPL", types.ActionBuy, 0.35, now), p, 100, now)
	if !d.Accepted || d.Quantity != 3 {
		t.Errorf("Expected 3 shares from a 350 allocation, got %d (%s)", d.Quantity, d.Reason)
	}
}

func TestStopLossForcesSellOverHold(t *testing.T) {
	m := NewManager(testLimits(), nil)
	p := portfolio.New(1000)
	ctx := context.Background()

	if d := m.Evaluate(ctx, signal("AAPL", types.ActionBuy, 0.9, now), p, 100, now); !d.Accepted {
		t.Fatalf("setup buy rejected: %s", d.Reason)
	}

	later := now.Add(time.Hour)
	d := m.Evaluate(ctx, signal("AAPL", types.ActionHold, 0.9, later), p, 94, later)

	if !d.Accepted || !d.Forced || d.Action != types.ActionSell {
		t.Fatalf("Expected forced SELL, got %+v", d)
	}
	if d.Exit != portfolio.StateStoppedOut || d.Quantity != 5 {
		t.Errorf("Expected full stop-out of 5, got %s x%d", d.Exit, d.Quantity)
	}
	if d.Price != 95 || d.RealizedPnL != -25 || p.DailyLoss != 25 {
		t.Errorf("Expected fill at the 95 stop with -25 booked as daily loss, got %f / %f / %f", d.Price, d.RealizedPnL, p.DailyLoss)
	}
	if p.OpenPositions() != 0 {
		t.Error("Expected position to be closed")
	}
}

func TestGapThroughStopStaysWithinDailyLoss(t *testing.T) {
	l := testLimits()
	l.MaxDailyLoss = 50
	m := NewManager(l, nil)
	p := portfolio.New(1000)
	ctx := context.Background()

	buy := m.Evaluate(ctx, signal("AAPL", types.ActionBuy, 1, now), p, 100, now)
	if !buy.Accepted || buy.Quantity != 5 || buy.StopLossPrice != 95 {
		t.Fatalf("Expected 5 shares with a 95 stop, got %+v", buy)
	}

	later := now.Add(time.Hour)
	d := m.Evaluate(ctx, signal("AAPL", types.ActionHold, 0.5, later), p, 80, later)
	if !d.Accepted || d.Exit != portfolio.StateStoppedOut {
		t.Fatalf("Expected stop-out, got %+v", d)
	}
	if d.Price != 95 || d.RealizedPnL != -25 {
		t.Errorf("Expected the stop level to be booked, got price %.2f pnl %.2f", d.Price, d.RealizedPnL)
	}
	if p.DailyLoss > l.MaxDailyLoss {
		t.Errorf("Daily loss %.2f exceeds limit %.2f", p.DailyLoss, l.MaxDailyLoss)
	}
	if p.Cash != 975 {
		t.Errorf("Expected 975 cash after the stop fill, got %.2f", p.Cash)
	}
}

func TestBuySizingCappedByDailyLossRoom(t *testing.T) {
	l := testLimits()
	l.MaxPositionSize = 10000
	l.MaxDailyLoss = 40
	m := NewManager(l, nil)
	p := portfolio.New(10000)
	ctx := context.Background()

	// A 5% stop on 800 of cost risks exactly the 40 budget.
	d := m.Evaluate(ctx, signal("AAPL", types.ActionBuy, 1, now), p, 100, now)
	if !d.Accepted || d.Quantity != 8 {
		t.Fatalf("Expected 8 shares, got %d (%s)", d.Quantity, d.Reason)
	}

	// The open stop already uses the whole budget.
	d = m.Evaluate(ctx, signal("MSFT", types.ActionBuy, 1, now), p, 50, now)
	if d.Accepted || d.Reason != ReasonZeroQuantity {
		t.Errorf("Expected no room for a second position, got %+v", d)
	}
}

func TestOnPriceUpdateForcesExits(t *testing.T) {
	m := NewManager(testLimits(), nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		price  float64
		exit   portfolio.State
		forced bool
	}{
		{"below stop", 94, portfolio.StateStoppedOut, true},
		{"at stop", 95, portfolio.StateStoppedOut, true},
		{"at target", 110, portfolio.StateTookProfit, true},
		{"inside band", 101, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := portfolio.New(1000)
			m.Evaluate(ctx, signal("AAPL", types.ActionBuy, 0.9, now), p, 100, now)

			d, forced := m.OnPriceUpdate(ctx, "AAPL", p, tt.price, now.Add(time.Minute))
			if forced != tt.forced || d.Exit != tt.exit {
				t.Errorf("OnPriceUpdate(%v) = %+v, %v", tt.price, d, forced)
			}
			if !forced {
				pos, _ := p.Position("AAPL")
				if pos.CurrentPrice != tt.price {
					t.Errorf("Expected position to be marked at %v, got %v", tt.price, pos.CurrentPrice)
				}
			}
		})
	}
}

func TestForcedExitIgnoresSignalExpiry(t *testing.T) {
	m := NewManager(testLimits(), nil)
	p := portfolio.New(1000)
	ctx := context.Background()
	m.Evaluate(ctx, signal("AAPL", types.ActionBuy, 0.9, now), p, 100, now)

	stale := signal("AAPL", types.ActionBuy, 0.9, now)
	d := m.Evaluate(ctx, stale, p, 111, now.Add(time.Hour))
	if !d.Accepted || d.Exit != portfolio.StateTookProfit {
		t.Errorf("Expected take-profit exit despite stale signal, got %+v", d)
	}
}

func TestRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("stale signal", func(t *testing.T) {
		m := NewManager(testLimits(), nil)
		p := portfolio.New(1000)
		d := m.Evaluate(ctx, signal("AAPL", types.ActionBuy, 0.9, now), p, 100, now.Add(15*time.Minute))
		if d.Accepted || d.Reason != ReasonStaleSignal || p.Cash != 1000 {
			t.Errorf("Expected stale rejection without side effects, got %+v", d)
		}
	})

	t.Run("sell without position", func(t *testing.T) {
		m := NewManager(testLimits(), nil)
		d := m.Evaluate(ctx, signal("AAPL", types.ActionSell, 0.9, now), portfolio.New(1000), 100, now)
		if d.Accepted || d.Reason != ReasonNoPosition {
			t.Errorf("Expected no-op rejection, got %+v", d)
		}
	})

	t.Run("hold", func(t *testing.T) {
		m := NewManager(testLimits(), nil)
		d := m.Evaluate(ctx, signal("AAPL", types.ActionHold, 0.9, now), portfolio.New(1000), 100, now)
		if d.Accepted || d.Reason != ReasonHold {
			t.Errorf("Expected hold, got %+v", d)
		}
	})

	t.Run("invalid price", func(t *testing.T) {
		m := NewManager(testLimits(), nil)
		d := m.Evaluate(ctx, signal("AAPL", types.ActionBuy, 0.9, now), portfolio.New(1000), 0, now)
		if d.Accepted || d.Reason != ReasonInvalidPrice {
			t.Errorf("Expected invalid price rejection, got %+v", d)
		}
	})

	t.Run("daily loss reached", func(t *testing.T) {
		m := NewManager(testLimits(), nil)
		p := portfolio.New(1000)
		p.RollDay(m.TradingDay(now))
		p.DailyLoss = 1000
		d := m.Evaluate(ctx, signal("AAPL", types.ActionBuy, 0.9, now), p, 100, now)
		if d.Accepted || d.Reason != ReasonDailyLossLimit {
			t.Errorf("Expected daily loss rejection, got %+v", d)
		}
	})

	t.Run("daily loss resets on a new day", func(t *testing.T) {
		m := NewManager(testLimits(), nil)
		p := portfolio.New(1000)
		p.RollDay(m.TradingDay(now))
		p.DailyLoss = 1000
		tomorrow := now.AddDate(0, 0, 1)
		d := m.Evaluate(ctx, signal("AAPL", types.ActionBuy, 0.9, tomorrow), p, 100, tomorrow)
		if !d.Accepted {
			t.Errorf("Expected buy to be accepted after day roll, got %s", d.Reason)
		}
	})

	t.Run("max open positions", func(t *testing.T) {
		l := testLimits()
		l.MaxOpenPositions = 1
		m := NewManager(l, nil)
		p := portfolio.New(1000)
		m.Evaluate(ctx, signal("AAPL", types.ActionBuy, 0.9, now), p, 100, now)
		d := m.Evaluate(ctx, signal("MSFT", types.ActionBuy, 0.9, now), p, 100, now)
		if d.Accepted || d.Reason != ReasonMaxOpenPositions {
			t.Errorf("Expected max open positions rejection, got %+v", d)
		}
	})

	t.Run("position already at max size", func(t *testing.T) {
		m := NewManager(testLimits(), nil)
		p := portfolio.New(1000)
		m.Evaluate(ctx, signal("AAPL", types.ActionBuy, 0.9, now), p, 100, now)
		d := m.Evaluate(ctx, signal("AAPL", types.ActionBuy, 0.9, now), p, 100, now)
		if d.Accepted || d.Reason != ReasonMaxPositionSize {
			t.Errorf("Expected max position size rejection, got %+v", d)
		}
	})

	t.Run("zero quantity", func(t *testing.T) {
		m := NewManager(testLimits(), nil)
		d := m.Evaluate(ctx, signal("AAPL", types.ActionBuy, 0.01, now), portfolio.New(1000), 100, now)
		if d.Accepted || d.Reason != ReasonZeroQuantity || d.Quantity != 0 {
			t.Errorf("Expected zero-quantity rejection, got %+v", d)
		}
	})
}

func TestSellSignalClosesPosition(t *testing.T) {
	m := NewManager(testLimits(), nil)
	p := portfolio.New(1000)
	ctx := context.Background()
	m.Evaluate(ctx, signal("AAPL", types.ActionBuy, 0.9, now), p, 100, now)

	d := m.Evaluate(ctx, signal("AAPL", types.ActionSell, 0.1, now), p, 104, now)
	if !d.Accepted || d.Forced || d.Exit != portfolio.StateManuallyClosed || d.RealizedPnL != 20 {
		t.Errorf("Expected manual close with +20, got %+v", d)
	}
	if p.DailyLoss != 0 || p.RealizedPnL != 20 {
		t.Errorf("Unexpected accounting: daily=%f realized=%f", p.DailyLoss, p.RealizedPnL)
	}
}

func TestStopsRoundToTick(t *testing.T) {
	l := testLimits()
	l.MinTick = 0.05
	m := NewManager(l, nil)
	p := portfolio.New(1000)

	d := m.Evaluate(context.Background(), signal("AAPL", types.ActionBuy, 0.9, now), p, 123.37, now)
	if !d.Accepted {
		t.Fatal(d.Reason)
	}
	// 117.2015 rounds up to 117.25
	if math.Abs(d.StopLossPrice-117.25) > 1e-9 {
		t.Errorf("Expected stop 117.25, got %f", d.StopLossPrice)
	}
	// 135.707 rounds to 135.70
	if math.Abs(d.TakeProfitPrice-135.70) > 1e-9 {
		t.Errorf("Expected target 135.70, got %f", d.TakeProfitPrice)
	}
}

// TestFuzzedSignalsRespectLimits drives random signals and prices, including
// gaps far through open stops, through the manager.
func TestFuzzedSignalsRespectLimits(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		t.Run(fmt.Sprintf("seed-%d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewSource(seed))
			l := Limits{
				MaxPositionSize:    2000 + rng.Float64()*3000,
				MaxDailyLoss:       100 + rng.Float64()*400,
				MaxOpenPositions:   1 + rng.Intn(4),
				StopLossPct:        0.02 + rng.Float64()*0.08,
				TakeProfitPct:      0.05 + rng.Float64()*0.1,
				AllocationFraction: 0.2 + rng.Float64()*0.8,
			}
			m := NewManager(l, nil)
			p := portfolio.New(10000)
			ctx := context.Background()

			symbols := []string{"A", "B", "C", "D", "E", "F"}
			prices := map[string]float64{}
			for _, s := range symbols {
				prices[s] = 20 + rng.Float64()*200
			}
			actions := []types.Action{types.ActionBuy, types.ActionBuy, types.ActionSell, types.ActionHold}

			clock := now
			for step := 0; step < 2000; step++ {
				clock = clock.Add(time.Duration(1+rng.Intn(90)) * time.Minute)
				sym := symbols[rng.Intn(len(symbols))]
				price := prices[sym] * (1 + rng.NormFloat64()*0.03)
				if price < 1 {
					price = 1
				}
				if rng.Intn(25) == 0 {
					price *= 0.7 + rng.Float64()*0.2
				}
				prices[sym] = price

				sig := signal(sym, actions[rng.Intn(len(actions))], rng.Float64(), clock)
				if rng.Intn(10) == 0 {
					sig.ExpiresAt = clock
				}

				p.RollDay(m.TradingDay(clock))
				lossBefore := p.DailyLoss
				d := m.Evaluate(ctx, sig, p, price, clock)

				if d.Accepted && d.Action == types.ActionBuy && lossBefore >= l.MaxDailyLoss {
					t.Fatalf("step %d: BUY accepted with daily loss %.2f >= %.2f", step, lossBefore, l.MaxDailyLoss)
				}
				if p.DailyLoss > l.MaxDailyLoss+1e-6 {
					t.Fatalf("step %d: daily loss %.6f exceeds limit %.2f", step, p.DailyLoss, l.MaxDailyLoss)
				}
				if p.OpenPositions() > l.MaxOpenPositions {
					t.Fatalf("step %d: %d open positions exceed limit %d", step, p.OpenPositions(), l.MaxOpenPositions)
				}
				if p.Cash < -1e-6 {
					t.Fatalf("step %d: negative cash %.6f", step, p.Cash)
				}
				if d.Accepted && d.Action == types.ActionBuy {
					pos, _ := p.Position(sym)
					if pos.MarketValue() > l.MaxPositionSize+1e-6 {
						t.Fatalf("step %d: %s value %.2f exceeds max position size %.2f", step, sym, pos.MarketValue(), l.MaxPositionSize)
					}
				}
			}
		})
	}
}
