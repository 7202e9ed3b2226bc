package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sentiment-trading-bot/internal/fusion"
	"sentiment-trading-bot/internal/interfaces"
	"sentiment-trading-bot/internal/logger"
	"sentiment-trading-bot/internal/metrics"
	"sentiment-trading-bot/internal/portfolio"
	"sentiment-trading-bot/internal/risk"
	"sentiment-trading-bot/internal/sentiment"
	"sentiment-trading-bot/internal/ta"
	"sentiment-trading-bot/internal/tradelog"
	"sentiment-trading-bot/internal/types"
)

// ErrNoPriceData is returned when the feed has no candles for a symbol.
var ErrNoPriceData = errors.New("no price data")

const orderTimeout = 30 * time.Second

// Deps are the collaborators of one live engine. TradeLog and Metrics are
// optional.
type Deps struct {
	Prices    interfaces.PriceFeed
	Sentiment *sentiment.Service
	Fuser     *fusion.Fuser
	Risk      *risk.Manager
	Ledger    *portfolio.Ledger
	Executor  interfaces.Executor
	TradeLog  *tradelog.Log
	Metrics   *metrics.Registry

	Periods  ta.Periods
	Lookback int
	Clock    func() time.Time
}

// Engine runs the per-symbol pipeline:
// candles -> indicators + sentiment -> fused signal -> risk -> executor.
type Engine struct {
	d Deps
}

var _ interfaces.Engine = (*Engine)(nil)

func newEngine(d Deps) *Engine {
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Lookback <= 0 {
		d.Lookback = d.Periods.Required() * 2
	}
	return &Engine{d: d}
}

func (e *Engine) Step(ctx context.Context, symbol string) (res *types.StepResult, err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		e.d.Metrics.ObserveStep(outcome, time.Since(start))
	}()

	at := e.d.Clock()

	candles, err := e.d.Prices.RecentCandles(ctx, symbol, e.d.Lookback)
	if err != nil {
		return nil, fmt.Errorf("fetch candles for %s: %w", symbol, err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%s: %w", symbol, ErrNoPriceData)
	}
	latest := candles[len(candles)-1]
	price := latest.Close

	tech := ta.Compute(candles, e.d.Periods)
	if !tech.Sufficient {
		logger.Warn(ctx, "Insufficient candle history, indicators degraded",
			"symbol", symbol,
			"received", len(candles),
			"required", e.d.Periods.Required(),
		)
	}
	sent := e.d.Sentiment.State(ctx, symbol, at)
	sig := e.d.Fuser.Fuse(symbol, tech, sent, at)
	level := risk.AssessSignal(sig, risk.MarketContextOf(candles))

	// Nothing has been mutated yet; a cancelled cycle leaves no trace.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var d risk.Decision
	if err := e.d.Ledger.Update(func(p *portfolio.Portfolio) bool {
		d = e.d.Risk.Evaluate(ctx, sig, p, price, at)
		return d.Accepted
	}); err != nil {
		logger.ErrorWithErr(ctx, "Failed to persist portfolio", err, "symbol", symbol)
	}

	logger.Decision(ctx, symbol, string(sig.Action), sig.Confidence, sig.Reasoning,
		"combined_score", sig.CombinedScore,
		"risk_level", level,
		"accepted", d.Accepted,
		"risk_reason", d.Reason,
	)
	e.d.Metrics.Signal(symbol, string(sig.Action))
	e.recordDecision(ctx, sig, tech, price, d, level)

	res = &types.StepResult{
		Symbol:    symbol,
		Signal:    sig,
		Technical: tech,
		Sentiment: sent,
		Price:     price,
		Time:      latest.Time,
		Decision: types.StepDecision{
			Accepted: d.Accepted,
			Quantity: d.Quantity,
			Price:    d.Price,
			Reason:   d.Reason,
			Forced:   d.Forced,
			Exit:     string(d.Exit),
		},
		Orders: []types.OrderResp{},
	}

	if !d.Accepted {
		if d.Reason != risk.ReasonHold {
			e.d.Metrics.Rejected(d.Reason)
		}
		e.publishPortfolio()
		return res, nil
	}

	if resp, ok := e.execute(ctx, sig, d); ok {
		res.Orders = append(res.Orders, resp)
	}
	e.publishPortfolio()
	return res, nil
}

// execute sends an accepted decision to the executor. The portfolio change is
// already final, so the order is placed even if ctx is cancelled meanwhile and
// a failure is recorded rather than rolled back.
func (e *Engine) execute(ctx context.Context, sig types.Signal, d risk.Decision) (types.OrderResp, bool) {
	orderCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), orderTimeout)
	defer cancel()

	e.d.Metrics.Trade(d.Symbol, string(d.Action))
	if d.Forced {
		e.d.Metrics.ForcedExit(string(d.Exit))
	}

	entry := tradelog.Entry{
		Symbol:      d.Symbol,
		Side:        string(d.Action),
		Qty:         d.Quantity,
		Price:       d.Price,
		Reason:      d.Reason,
		Confidence:  sig.Confidence,
		StopLoss:    d.StopLossPrice,
		TakeProfit:  d.TakeProfitPrice,
		RealizedPnL: d.RealizedPnL,
		Forced:      d.Forced,
		Exit:        string(d.Exit),
	}

	resp, err := e.d.Executor.PlaceOrder(orderCtx, d.Order())
	if err != nil {
		logger.ErrorWithErr(ctx, "Order failed after commit", err,
			"symbol", d.Symbol,
			"side", d.Action,
			"qty", d.Quantity,
		)
		e.d.Metrics.OrderError(d.Symbol)
		entry.Status = "FAILED"
		entry.Error = err.Error()
		e.appendTrade(ctx, entry)
		return types.OrderResp{}, false
	}

	logger.Trade(ctx, d.Symbol, string(d.Action), d.Quantity, d.Price, resp.OrderID,
		"reason", d.Reason,
		"forced", d.Forced,
		"realized_pnl", d.RealizedPnL,
	)
	entry.OrderID = resp.OrderID
	entry.Status = resp.Status
	e.appendTrade(ctx, entry)
	return resp, true
}

func (e *Engine) recordDecision(ctx context.Context, sig types.Signal, tech types.TechnicalState, price float64, d risk.Decision, level risk.Level) {
	if e.d.TradeLog == nil {
		return
	}
	err := e.d.TradeLog.AppendDecision(tradelog.DecisionEntry{
		Symbol:         sig.Symbol,
		Action:         string(sig.Action),
		Confidence:     sig.Confidence,
		Price:          price,
		SentimentScore: sig.SentimentScore,
		TechnicalScore: sig.TechnicalScore,
		CombinedScore:  sig.CombinedScore,
		Accepted:       d.Accepted,
		Reason:         d.Reason,
		Risk:           string(level),
		Indicators: map[string]float64{
			"RSI":       tech.RSI,
			"MACD":      tech.MACD,
			"SMA_SHORT": tech.SMAShort,
			"SMA_LONG":  tech.SMALong,
			"BB_UP":     tech.BB.Upper,
			"BB_MID":    tech.BB.Middle,
			"BB_LOW":    tech.BB.Lower,
		},
	})
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to append decision log", err, "symbol", sig.Symbol)
	}
}

func (e *Engine) appendTrade(ctx context.Context, entry tradelog.Entry) {
	if e.d.TradeLog == nil {
		return
	}
	if err := e.d.TradeLog.Append(entry); err != nil {
		logger.ErrorWithErr(ctx, "Failed to append trade log", err, "symbol", entry.Symbol)
	}
}

func (e *Engine) publishPortfolio() {
	if e.d.Metrics == nil {
		return
	}
	p := e.d.Ledger.Snapshot()
	e.d.Metrics.SetPortfolio(p.TotalValue(), p.Cash, p.DailyLoss, p.OpenPositions())
}
