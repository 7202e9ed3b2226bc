package backtest

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"sentiment-trading-bot/internal/types"
)

var start = time.Date(2024, 1, 1, 16, 0, 0, 0, time.UTC)

func series(closes []float64) []types.PricePoint {
	out := make([]types.PricePoint, len(closes))
	for i, c := range closes {
		out[i] = types.PricePoint{
			Time:  start.AddDate(0, 0, i),
			Open:  c,
			High:  c,
			Low:   c,
			Close: c,
		}
	}
	return out
}

func rising(n int) []types.PricePoint {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	return series(closes)
}

func randomWalk(seed int64, n int) []types.PricePoint {
	rng := rand.New(rand.NewSource(seed))
	closes := make([]float64, n)
	price := 100.0
	for i := range closes {
		price *= 1 + rng.NormFloat64()*0.02
		closes[i] = price
	}
	return series(closes)
}

func sentimentFor(prices []types.PricePoint, score func(i int) float64) []types.SentimentObservation {
	out := make([]types.SentimentObservation, len(prices))
	for i, p := range prices {
		out[i] = types.SentimentObservation{
			Symbol:     "TEST",
			Source:     "test",
			Score:      score(i),
			Confidence: 1,
			Time:       p.Time.Add(-time.Hour),
		}
	}
	return out
}

func bullish(int) float64 { return 1 }

func TestRisingSeriesWithBullishSentiment(t *testing.T) {
	prices := rising(80)
	res, err := Run(context.Background(), prices, sentimentFor(prices, bullish), DefaultConfig("TEST"))
	if err != nil {
		t.Fatal(err)
	}

	if res.Stats.TotalReturnPct <= 0 {
		t.Errorf("Expected positive return, got %.4f%%", res.Stats.TotalReturnPct)
	}
	if len(res.Trades) == 0 || res.Trades[0].Action != types.ActionBuy {
		t.Fatalf("Expected the run to open with a BUY, got %+v", res.Trades)
	}
	if len(res.Equity) != len(prices) {
		t.Errorf("Expected one equity point per bar, got %d", len(res.Equity))
	}
	if observed := largestDip(res.Equity); res.Stats.MaxDrawdownPct < observed-1e-9 {
		t.Errorf("Max drawdown %.6f%% understates observed dip %.6f%%", res.Stats.MaxDrawdownPct, observed)
	}
}

func TestDrawdownNotUnderstated(t *testing.T) {
	closes := make([]float64, 90)
	for i := range closes {
		closes[i] = 100 + float64(i)
		if i >= 60 && i < 66 {
			closes[i] = 150 - float64(i-60)*2
		}
	}
	prices := series(closes)
	cfg := DefaultConfig("TEST")
	cfg.Limits.StopLossPct = 0.5

	res, err := Run(context.Background(), prices, sentimentFor(prices, bullish), cfg)
	if err != nil {
		t.Fatal(err)
	}
	observed := largestDip(res.Equity)
	if observed <= 0 {
		t.Fatal("Expected the equity curve to dip")
	}
	if math.Abs(res.Stats.MaxDrawdownPct-observed) > 1e-9 {
		t.Errorf("Max drawdown %.6f%%, observed %.6f%%", res.Stats.MaxDrawdownPct, observed)
	}
}

// largestDip brute-forces the worst peak-to-later-trough decline.
func largestDip(equity []EquityPoint) float64 {
	worst := 0.0
	for i := range equity {
		for j := i + 1; j < len(equity); j++ {
			if d := (equity[i].Value - equity[j].Value) / equity[i].Value * 100; d > worst {
				worst = d
			}
		}
	}
	return worst
}

func TestRunIsDeterministic(t *testing.T) {
	prices := randomWalk(42, 250)
	rng := rand.New(rand.NewSource(43))
	scores := make([]float64, len(prices))
	for i := range scores {
		scores[i] = rng.Float64()
	}
	sents := sentimentFor(prices, func(i int) float64 { return scores[i] })
	cfg := DefaultConfig("TEST")
	cfg.Limits.MaxDailyLoss = 300

	a, err := Run(context.Background(), prices, sents, cfg)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Run(context.Background(), prices, sents, cfg)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(a, b) {
		t.Fatal("Two runs over identical inputs differ")
	}
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	if string(ja) != string(jb) {
		t.Fatal("Serialized results differ")
	}
}

func TestEquityIdentity(t *testing.T) {
	prices := randomWalk(7, 200)
	res, err := Run(context.Background(), prices, sentimentFor(prices, bullish), DefaultConfig("TEST"))
	if err != nil {
		t.Fatal(err)
	}
	for i, e := range res.Equity {
		if e.Cash < -1e-9 || e.Value < e.Cash-1e-9 {
			t.Fatalf("bar %d: cash %.4f exceeds total %.4f", i, e.Cash, e.Value)
		}
	}
	var buys, sells int
	for _, tr := range res.Trades {
		switch tr.Action {
		case types.ActionBuy:
			buys += tr.Quantity
		case types.ActionSell:
			sells += tr.Quantity
		}
	}
	if sells > buys {
		t.Errorf("Sold %d shares but only bought %d", sells, buys)
	}
	sig := res.Stats.Signals
	if got, want := sig.Buy+sig.Sell+sig.Hold, len(prices)-DefaultConfig("TEST").Periods.Required()+1; got != want {
		t.Errorf("Expected %d evaluated signals, got %d", want, got)
	}
}

func TestNoTradesBeforeWarmup(t *testing.T) {
	prices := rising(40)
	res, err := Run(context.Background(), prices, sentimentFor(prices, bullish), DefaultConfig("TEST"))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Trades) != 0 {
		t.Errorf("Expected no trades before %d bars, got %d", DefaultConfig("TEST").Periods.Required(), len(res.Trades))
	}
	if res.Stats.TotalReturn != 0 || res.Stats.Sharpe != 0 {
		t.Errorf("Expected flat stats, got %+v", res.Stats)
	}
}

func TestSentimentIsNotSeenEarly(t *testing.T) {
	prices := rising(80)
	// Bullish news arrives after the last bar; every bar must see neutral.
	late := []types.SentimentObservation{{Symbol: "TEST", Score: 1, Confidence: 1, Time: prices[len(prices)-1].Time.Add(time.Hour)}}

	res, err := Run(context.Background(), prices, late, DefaultConfig("TEST"))
	if err != nil {
		t.Fatal(err)
	}
	with, err := Run(context.Background(), prices, nil, DefaultConfig("TEST"))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(res.Trades, with.Trades) {
		t.Error("Observations after the last bar changed the simulation")
	}
}

func TestSimulationDivergence(t *testing.T) {
	prices := rising(60)
	good := sentimentFor(prices, bullish)

	unsorted := append([]types.SentimentObservation(nil), good...)
	unsorted[3], unsorted[4] = unsorted[4], unsorted[3]

	duplicate := rising(60)
	duplicate[10].Time = duplicate[9].Time

	foreign := append([]types.SentimentObservation(nil), good...)
	foreign[0].Symbol = "OTHER"

	tests := []struct {
		name   string
		prices []types.PricePoint
		sents  []types.SentimentObservation
	}{
		{"empty prices", nil, nil},
		{"repeated bar time", duplicate, good},
		{"unsorted sentiment", prices, unsorted},
		{"foreign symbol", prices, foreign},
		{"zero close", series([]float64{1, 0, 2}), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(context.Background(), tt.prices, tt.sents, DefaultConfig("TEST"))
			if !errors.Is(err, ErrSimulationDivergence) {
				t.Errorf("Expected ErrSimulationDivergence, got %v", err)
			}
		})
	}
}

func TestSentimentCursor(t *testing.T) {
	obs := []types.SentimentObservation{
		{Time: start, Score: 0.1},
		{Time: start.Add(2 * time.Hour), Score: 0.2},
		{Time: start.Add(4 * time.Hour), Score: 0.3},
	}
	c := newSentimentCursor(obs, 3*time.Hour)

	if w := c.advance(start.Add(time.Hour)); len(w) != 1 {
		t.Fatalf("advance(+1h) = %+v", w)
	}
	if w := c.advance(start.Add(4 * time.Hour)); len(w) != 2 || w[0].Score != 0.2 {
		t.Fatalf("Expected stale observation dropped and the 4h one included, got %+v", w)
	}
}

func TestBarAlignedSentiment(t *testing.T) {
	prices := rising(80)
	cfg := DefaultConfig("TEST")
	cfg.BarAligned = true

	aligned, err := Run(context.Background(), prices, sentimentFor(prices, bullish), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(aligned.Trades) == 0 {
		t.Error("Expected bullish aligned sentiment to trade")
	}

	ahead := sentimentFor(prices, bullish)
	ahead[40].Time = prices[40].Time.Add(time.Minute)
	if _, err := Run(context.Background(), prices, ahead, cfg); !errors.Is(err, ErrSimulationDivergence) {
		t.Errorf("Expected a look-ahead observation to fail the run, got %v", err)
	}

	if _, err := Run(context.Background(), prices, sentimentFor(prices[:79], bullish), cfg); !errors.Is(err, ErrSimulationDivergence) {
		t.Errorf("Expected a short aligned series to fail the run, got %v", err)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Run(ctx, rising(60), nil, DefaultConfig("TEST")); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestRunBatchKeepsOrder(t *testing.T) {
	var jobs []Job
	for i := int64(0); i < 6; i++ {
		prices := randomWalk(i, 120)
		cfg := DefaultConfig("TEST")
		cfg.InitialCapital = float64(1000 * (i + 1))
		jobs = append(jobs, Job{Prices: prices, Sentiments: sentimentFor(prices, bullish), Config: cfg})
	}

	results, err := RunBatch(context.Background(), jobs, 3)
	if err != nil {
		t.Fatal(err)
	}
	for i, res := range results {
		if res.InitialCapital != jobs[i].Config.InitialCapital {
			t.Errorf("result %d out of order", i)
		}
		solo, _ := Run(context.Background(), jobs[i].Prices, jobs[i].Sentiments, jobs[i].Config)
		if !reflect.DeepEqual(res, solo) {
			t.Errorf("result %d differs from a standalone run", i)
		}
	}

	jobs[4].Prices = nil
	if _, err := RunBatch(context.Background(), jobs, 2); !errors.Is(err, ErrSimulationDivergence) {
		t.Errorf("Expected batch failure, got %v", err)
	}
}
