package engine

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"sentiment-trading-bot/internal/fusion"
	"sentiment-trading-bot/internal/metrics"
	"sentiment-trading-bot/internal/portfolio"
	"sentiment-trading-bot/internal/risk"
	"sentiment-trading-bot/internal/sentiment"
	"sentiment-trading-bot/internal/ta"
	"sentiment-trading-bot/internal/tradelog"
	"sentiment-trading-bot/internal/types"
)

var start = time.Date(2024, 1, 1, 16, 0, 0, 0, time.UTC)

type fakePrices map[string][]types.PricePoint

func (f fakePrices) RecentCandles(ctx context.Context, symbol string, n int) ([]types.PricePoint, error) {
	pts, ok := f[symbol]
	if !ok {
		return nil, errors.New("unknown symbol")
	}
	if len(pts) > n {
		pts = pts[len(pts)-n:]
	}
	return pts, nil
}

type fakeSentiment struct {
	at time.Time
}

func (f fakeSentiment) Observations(ctx context.Context, symbol string) ([]types.SentimentObservation, error) {
	return []types.SentimentObservation{{
		Symbol:     symbol,
		Source:     "test",
		Score:      1,
		Confidence: 1,
		Time:       f.at.Add(-time.Hour),
	}}, nil
}

type recordingExecutor struct {
	mu     sync.Mutex
	orders []types.Order
	err    error
}

func (r *recordingExecutor) PlaceOrder(ctx context.Context, o types.Order) (types.OrderResp, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, o)
	if r.err != nil {
		return types.OrderResp{}, r.err
	}
	return types.OrderResp{OrderID: "ORD-1", Status: "accepted"}, nil
}

func rising(n int) []types.PricePoint {
	out := make([]types.PricePoint, n)
	for i := range out {
		c := 100 + float64(i)
		out[i] = types.PricePoint{Time: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c}
	}
	return out
}

func limits() risk.Limits {
	return risk.Limits{
		MaxPositionSize:    1000,
		MaxDailyLoss:       500,
		MaxOpenPositions:   3,
		StopLossPct:        0.05,
		TakeProfitPct:      0.10,
		AllocationFraction: 1,
		MinTick:            0.01,
	}
}

type fixture struct {
	eng    *Engine
	ledger *portfolio.Ledger
	exec   *recordingExecutor
	log    *tradelog.Log
	now    time.Time
}

func newFixture(t *testing.T, prices fakePrices) *fixture {
	t.Helper()
	now := start.AddDate(0, 0, 80)
	ledger := portfolio.NewLedger(portfolio.New(10000), "")
	exec := &recordingExecutor{}
	log := tradelog.New(t.TempDir(), time.UTC).WithClock(func() time.Time { return now })

	eng := newEngine(Deps{
		Prices:    prices,
		Sentiment: sentiment.NewService(fakeSentiment{at: now}, sentiment.DefaultServiceConfig()),
		Fuser:     fusion.New(fusion.DefaultConfig()),
		Risk:      risk.NewManager(limits(), time.UTC),
		Ledger:    ledger,
		Executor:  exec,
		TradeLog:  log,
		Metrics:   metrics.New(),
		Periods:   ta.DefaultPeriods(),
		Lookback:  80,
		Clock:     func() time.Time { return now },
	})
	return &fixture{eng: eng, ledger: ledger, exec: exec, log: log, now: now}
}

func TestStepBuysOnBullishSetup(t *testing.T) {
	f := newFixture(t, fakePrices{"AAPL": rising(80)})

	res, err := f.eng.Step(context.Background(), "AAPL")
	if err != nil {
		t.Fatal(err)
	}
	if res.Signal.Action != types.ActionBuy {
		t.Fatalf("Expected BUY, got %s (%s)", res.Signal.Action, res.Signal.Reasoning)
	}
	if !res.Decision.Accepted || res.Decision.Quantity != 5 {
		t.Fatalf("Expected accepted BUY of 5, got %+v", res.Decision)
	}
	if len(res.Orders) != 1 || res.Orders[0].OrderID != "ORD-1" {
		t.Errorf("Unexpected orders: %+v", res.Orders)
	}
	if res.Price != 179 || !res.Time.Equal(start.AddDate(0, 0, 79)) {
		t.Errorf("Unexpected price/time: %.2f %v", res.Price, res.Time)
	}

	order := f.exec.orders[0]
	if order.StopLossPrice <= 0 || order.TakeProfitPrice <= order.StopLossPrice {
		t.Errorf("Order missing stop/target: %+v", order)
	}

	p := f.ledger.Snapshot()
	pos, ok := p.Position("AAPL")
	if !ok || pos.Quantity != 5 {
		t.Fatalf("Expected 5 shares in ledger, got %+v", pos)
	}
	if diff := p.TotalValue() - 10000; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Buying at market must not change total value, got %.4f", p.TotalValue())
	}

	if _, err := os.Stat(f.log.TradesPath(f.now)); err != nil {
		t.Errorf("Expected trade log: %v", err)
	}
	if _, err := os.Stat(f.log.DecisionsPath(f.now)); err != nil {
		t.Errorf("Expected decision log: %v", err)
	}
}

func TestStepCancelledBeforeCommitHasNoSideEffects(t *testing.T) {
	f := newFixture(t, fakePrices{"AAPL": rising(80)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.eng.Step(ctx, "AAPL"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if n := len(f.exec.orders); n != 0 {
		t.Errorf("Expected no orders, got %d", n)
	}
	if p := f.ledger.Snapshot(); len(p.Positions) != 0 || p.Cash != 10000 {
		t.Errorf("Portfolio mutated: %+v", p)
	}
	if _, err := os.Stat(f.log.DecisionsPath(f.now)); !os.IsNotExist(err) {
		t.Errorf("Expected no decision log, got %v", err)
	}
}

func TestStepKeepsCommitWhenExecutorFails(t *testing.T) {
	f := newFixture(t, fakePrices{"AAPL": rising(80)})
	f.exec.err = errors.New("broker unavailable")

	res, err := f.eng.Step(context.Background(), "AAPL")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Decision.Accepted || len(res.Orders) != 0 {
		t.Fatalf("Expected committed decision without orders, got %+v", res)
	}
	if _, ok := f.ledger.Snapshot().Position("AAPL"); !ok {
		t.Error("Expected the position to stay committed")
	}
}

func TestStepForcesStopLossExit(t *testing.T) {
	prices := rising(79)
	prices = append(prices, types.PricePoint{Time: start.AddDate(0, 0, 79), Open: 94, High: 94, Low: 94, Close: 94})
	f := newFixture(t, fakePrices{"AAPL": prices})

	if err := f.ledger.Update(func(p *portfolio.Portfolio) bool {
		pos, err := p.Buy("AAPL", 10, 100, start)
		if err != nil {
			t.Fatal(err)
		}
		pos.StopLossPrice = 95
		pos.TakeProfitPrice = 110
		return true
	}); err != nil {
		t.Fatal(err)
	}

	res, err := f.eng.Step(context.Background(), "AAPL")
	if err != nil {
		t.Fatal(err)
	}
	d := res.Decision
	if !d.Accepted || !d.Forced || d.Exit != string(portfolio.StateStoppedOut) || d.Quantity != 10 {
		t.Fatalf("Expected forced stop-out of 10, got %+v", d)
	}
	if got := f.exec.orders[0].Action; got != types.ActionSell {
		t.Errorf("Expected SELL order, got %s", got)
	}
	p := f.ledger.Snapshot()
	if res.Decision.Price != 95 {
		t.Errorf("Expected the stop-out booked at 95, got %.2f", res.Decision.Price)
	}
	if p.OpenPositions() != 0 || p.DailyLoss != 50 {
		t.Errorf("Expected flat book with daily loss 50, got open=%d loss=%.2f", p.OpenPositions(), p.DailyLoss)
	}
}

func TestStepUnknownSymbol(t *testing.T) {
	f := newFixture(t, fakePrices{})
	if _, err := f.eng.Step(context.Background(), "NOPE"); err == nil {
		t.Fatal("Expected feed error")
	}

	f = newFixture(t, fakePrices{"EMPTY": nil})
	if _, err := f.eng.Step(context.Background(), "EMPTY"); !errors.Is(err, ErrNoPriceData) {
		t.Fatalf("Expected ErrNoPriceData, got %v", err)
	}
}

func TestStepAllKeepsSymbolOrder(t *testing.T) {
	f := newFixture(t, fakePrices{
		"AAPL": rising(80),
		"MSFT": rising(80),
		"TSLA": rising(80),
	})

	symbols := []string{"TSLA", "BAD", "AAPL", "MSFT"}
	results := StepAll(context.Background(), f.eng, symbols, 2)

	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	for i, want := range []string{"TSLA", "AAPL", "MSFT"} {
		if results[i].Symbol != want {
			t.Errorf("results[%d] = %s, want %s", i, results[i].Symbol, want)
		}
	}
	if p := f.ledger.Snapshot(); p.OpenPositions() != 3 {
		t.Errorf("Expected 3 open positions, got %d", p.OpenPositions())
	}
}
