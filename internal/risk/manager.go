package risk

import (
	"context"
	"fmt"
	"math"
	"time"

	"sentiment-trading-bot/internal/logger"
	"sentiment-trading-bot/internal/portfolio"
	"sentiment-trading-bot/internal/types"
)

// Rejection and exit reasons. Rejections are normal control flow.
const (
	ReasonStaleSignal      = "stale signal"
	ReasonHold             = "hold signal"
	ReasonNoPosition       = "no open position"
	ReasonDailyLossLimit   = "daily loss limit reached"
	ReasonMaxOpenPositions = "max open positions reached"
	ReasonMaxPositionSize  = "max position size reached"
	ReasonZeroQuantity     = "position size rounds to zero"
	ReasonInvalidPrice     = "invalid market price"
	ReasonBuySignal        = "buy signal"
	ReasonSellSignal       = "sell signal"
	ReasonStopLoss         = "stop loss hit"
	ReasonTakeProfit       = "take profit hit"
)

// Decision is the outcome of evaluating a signal or a price update. When
// Accepted is true the portfolio has already been mutated.
type Decision struct {
	Accepted        bool            `json:"accepted"`
	Symbol          string          `json:"symbol"`
	Action          types.Action    `json:"action"`
	Quantity        int             `json:"quantity"`
	Price           float64         `json:"price"`
	StopLossPrice   float64         `json:"stop_loss_price,omitempty"`
	TakeProfitPrice float64         `json:"take_profit_price,omitempty"`
	Reason          string          `json:"reason"`
	Forced          bool            `json:"forced,omitempty"`
	Exit            portfolio.State `json:"exit,omitempty"`
	RealizedPnL     float64         `json:"realized_pnl,omitempty"`
}

// Order converts an accepted decision into the executor's order.
func (d Decision) Order() types.Order {
	return types.Order{
		Symbol:          d.Symbol,
		Action:          d.Action,
		Quantity:        d.Quantity,
		StopLossPrice:   d.StopLossPrice,
		TakeProfitPrice: d.TakeProfitPrice,
		Reason:          d.Reason,
	}
}

// Manager gates trades against Limits and maintains stop/target state. It
// keeps no state of its own: everything lives in the Portfolio passed in.
type Manager struct {
	limits Limits
	loc    *time.Location
}

// NewManager uses loc to decide trading-day boundaries; nil means UTC.
func NewManager(limits Limits, loc *time.Location) *Manager {
	if loc == nil {
		loc = time.UTC
	}
	if limits.AllocationFraction <= 0 {
		limits.AllocationFraction = 1
	}
	return &Manager{limits: limits, loc: loc}
}

func (m *Manager) Limits() Limits { return m.limits }

// TradingDay is the calendar date of t in the manager's timezone.
func (m *Manager) TradingDay(t time.Time) string {
	return t.In(m.loc).Format("2006-01-02")
}

// Evaluate applies sig to p at marketPrice. Stop-loss and take-profit exits
// take precedence over whatever the signal says. A stop-out is booked at the
// stop price, a take-profit at marketPrice.
func (m *Manager) Evaluate(ctx context.Context, sig types.Signal, p *portfolio.Portfolio, marketPrice float64, now time.Time) Decision {
	p.RollDay(m.TradingDay(now))

	d := Decision{Symbol: sig.Symbol, Action: sig.Action, Price: marketPrice}
	if marketPrice <= 0 || math.IsNaN(marketPrice) {
		return m.reject(ctx, d, ReasonInvalidPrice)
	}

	if exit, ok := m.checkExit(ctx, sig.Symbol, p, marketPrice); ok {
		return exit
	}

	if sig.Expired(now) {
		logger.Risk(ctx, sig.Symbol, "STALE_SIGNAL",
			"signal_time", sig.Time,
			"expires_at", sig.ExpiresAt,
			"now", now,
		)
		return m.reject(ctx, d, ReasonStaleSignal)
	}

	switch sig.Action {
	case types.ActionBuy:
		return m.evaluateBuy(ctx, sig, p, d, now)
	case types.ActionSell:
		return m.closePosition(ctx, p, d, portfolio.StateManuallyClosed, ReasonSellSignal, false)
	default:
		d.Reason = ReasonHold
		return d
	}
}

// OnPriceUpdate marks the position and forces a full exit when the price has
// crossed its stop or target.
func (m *Manager) OnPriceUpdate(ctx context.Context, symbol string, p *portfolio.Portfolio, price float64, now time.Time) (Decision, bool) {
	p.RollDay(m.TradingDay(now))
	if price <= 0 || math.IsNaN(price) {
		return Decision{}, false
	}
	return m.checkExit(ctx, symbol, p, price)
}

func (m *Manager) checkExit(ctx context.Context, symbol string, p *portfolio.Portfolio, price float64) (Decision, bool) {
	if !p.Mark(symbol, price) {
		return Decision{}, false
	}
	pos, _ := p.Position(symbol)

	d := Decision{Symbol: symbol, Action: types.ActionSell, Price: price, Forced: true}
	switch {
	case pos.StopLossPrice > 0 && price <= pos.StopLossPrice:
		logger.Risk(ctx, symbol, "STOP_LOSS_TRIGGERED",
			"current_price", price,
			"stop_price", pos.StopLossPrice,
			"gap", pos.StopLossPrice-price,
			"position_qty", pos.Quantity,
			"position_avg", pos.AvgEntryPrice,
			"unrealized_pnl", pos.UnrealizedPnL(),
		)
		// The stop is a resting order: it fills at its level even when the
		// price gaps through it, which keeps the loss inside the sized budget.
		d.Price = pos.StopLossPrice
		d.StopLossPrice = pos.StopLossPrice
		return m.closePosition(ctx, p, d, portfolio.StateStoppedOut, ReasonStopLoss, true), true
	case pos.TakeProfitPrice > 0 && price >= pos.TakeProfitPrice:
		logger.Info(ctx, "Take profit triggered",
			"symbol", symbol,
			"current_price", price,
			"target_price", pos.TakeProfitPrice,
			"position_qty", pos.Quantity,
			"unrealized_pnl", pos.UnrealizedPnL(),
		)
		return m.closePosition(ctx, p, d, portfolio.StateTookProfit, ReasonTakeProfit, true), true
	}
	return Decision{}, false
}

// closePosition sells the whole position. Closing is never risk-constrained.
func (m *Manager) closePosition(ctx context.Context, p *portfolio.Portfolio, d Decision, exit portfolio.State, reason string, forced bool) Decision {
	pos, ok := p.Position(d.Symbol)
	if !ok {
		return m.reject(ctx, d, ReasonNoPosition)
	}
	pnl, err := p.Sell(d.Symbol, pos.Quantity, d.Price)
	if err != nil {
		return m.reject(ctx, d, err.Error())
	}

	d.Accepted = true
	d.Action = types.ActionSell
	d.Quantity = pos.Quantity
	d.Reason = reason
	d.Forced = forced
	d.Exit = exit
	d.RealizedPnL = pnl

	logger.Debug(ctx, "Position closed",
		"symbol", d.Symbol,
		"exit", exit,
		"qty", pos.Quantity,
		"avg_price", pos.AvgEntryPrice,
		"exit_price", d.Price,
		"realized_pnl", pnl,
		"daily_loss", p.DailyLoss,
	)
	return d
}

func (m *Manager) evaluateBuy(ctx context.Context, sig types.Signal, p *portfolio.Portfolio, d Decision, now time.Time) Decision {
	l := m.limits
	price := d.Price

	if p.DailyLoss >= l.MaxDailyLoss {
		logger.Risk(ctx, sig.Symbol, "DAILY_LOSS_LIMIT",
			"daily_loss", p.DailyLoss,
			"max_daily_loss", l.MaxDailyLoss,
		)
		return m.reject(ctx, d, ReasonDailyLossLimit)
	}

	existing, holding := p.Position(sig.Symbol)
	if !holding && p.OpenPositions() >= l.MaxOpenPositions {
		return m.reject(ctx, d, ReasonMaxOpenPositions)
	}

	room := l.MaxPositionSize - existing.MarketValue()
	if room < price {
		return m.reject(ctx, d, ReasonMaxPositionSize)
	}

	budget := math.Min(room, math.Min(p.Cash*l.AllocationFraction*clampConfidence(sig.Confidence), p.Cash))

	// Cap the cost basis so that stopping out every open position, this one
	// included, stays within the remaining daily loss budget.
	lossRoom := l.MaxDailyLoss - p.DailyLoss - openRisk(p, sig.Symbol)
	basis := existing.AvgEntryPrice * float64(existing.Quantity)
	budget = math.Min(budget, lossRoom/l.StopLossPct-basis)

	qty := sharesFor(budget, price)
	if qty <= 0 {
		logger.Debug(ctx, "Position size rounds to zero",
			"symbol", sig.Symbol,
			"budget", budget,
			"price", price,
			"cash", p.Cash,
			"loss_room", lossRoom,
		)
		return m.reject(ctx, d, ReasonZeroQuantity)
	}

	pos, err := p.Buy(sig.Symbol, qty, price, now)
	if err != nil {
		return m.reject(ctx, d, err.Error())
	}
	pos.StopLossPrice = m.stopPrice(pos.AvgEntryPrice)
	pos.TakeProfitPrice = m.targetPrice(pos.AvgEntryPrice)

	d.Accepted = true
	d.Quantity = qty
	d.StopLossPrice = pos.StopLossPrice
	d.TakeProfitPrice = pos.TakeProfitPrice
	d.Reason = ReasonBuySignal

	logger.Debug(ctx, "Position updated after BUY",
		"symbol", sig.Symbol,
		"old_qty", existing.Quantity,
		"old_avg", existing.AvgEntryPrice,
		"new_qty", pos.Quantity,
		"new_avg", pos.AvgEntryPrice,
		"stop_price", pos.StopLossPrice,
		"target_price", pos.TakeProfitPrice,
	)
	return d
}

func (m *Manager) reject(ctx context.Context, d Decision, reason string) Decision {
	d.Accepted = false
	d.Quantity = 0
	d.Reason = reason
	logger.Debug(ctx, "Trade rejected by risk manager", "symbol", d.Symbol, "action", d.Action, "reason", reason)
	return d
}

// sharesFor returns the whole number of shares affordable with budget.
func sharesFor(budget, price float64) int {
	if budget <= 0 || price <= 0 {
		return 0
	}
	qty := int(math.Floor(budget/price + 1e-9))
	if qty > 0 && float64(qty)*price > budget+1e-6 {
		qty--
	}
	return qty
}

func clampConfidence(c float64) float64 {
	return math.Max(0, math.Min(1, c))
}

// String renders a decision for logs and tradelog reasons.
func (d Decision) String() string {
	if !d.Accepted {
		return fmt.Sprintf("%s %s rejected: %s", d.Action, d.Symbol, d.Reason)
	}
	return fmt.Sprintf("%s %d %s @ %.2f (%s)", d.Action, d.Quantity, d.Symbol, d.Price, d.Reason)
}
