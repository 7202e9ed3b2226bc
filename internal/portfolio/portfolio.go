package portfolio

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	ErrInvalidQuantity  = errors.New("quantity must be positive")
	ErrInsufficientCash = errors.New("insufficient cash")
	ErrNoPosition       = errors.New("no open position")
	ErrOversell         = errors.New("sell quantity exceeds position")
	ErrInvalidPrice     = errors.New("price must be positive")
)

// State is the lifecycle of a symbol's position:
// FLAT -> OPEN -> (STOPPED_OUT | TOOK_PROFIT | CLOSED) -> FLAT.
type State string

const (
	StateFlat           State = "FLAT"
	StateOpen           State = "OPEN"
	StateStoppedOut     State = "STOPPED_OUT"
	StateTookProfit     State = "TOOK_PROFIT"
	StateManuallyClosed State = "CLOSED"
)

// Position is owned by a Portfolio.
type Position struct {
	Symbol          string    `json:"symbol"`
	Quantity        int       `json:"quantity"`
	AvgEntryPrice   float64   `json:"avg_entry_price"`
	CurrentPrice    float64   `json:"current_price"`
	StopLossPrice   float64   `json:"stop_loss_price"`
	TakeProfitPrice float64   `json:"take_profit_price"`
	OpenedAt        time.Time `json:"opened_at"`
}

func (p Position) MarketValue() float64 {
	return float64(p.Quantity) * p.CurrentPrice
}

func (p Position) UnrealizedPnL() float64 {
	return (p.CurrentPrice - p.AvgEntryPrice) * float64(p.Quantity)
}

// Portfolio is a plain value; callers that share one across goroutines go
// through a Ledger.
type Portfolio struct {
	Cash        float64              `json:"cash"`
	Positions   map[string]*Position `json:"positions"`
	RealizedPnL float64              `json:"realized_pnl"`
	// DailyLoss accumulates realized losses for TradingDay; gains never
	// reduce it.
	DailyLoss  float64 `json:"daily_loss"`
	TradingDay string  `json:"trading_day"`
}

func New(cash float64) *Portfolio {
	return &Portfolio{Cash: cash, Positions: make(map[string]*Position)}
}

// Position returns a copy of the open position for symbol.
func (p *Portfolio) Position(symbol string) (Position, bool) {
	pos, ok := p.Positions[symbol]
	if !ok || pos == nil {
		return Position{}, false
	}
	return *pos, true
}

func (p *Portfolio) OpenPositions() int {
	return len(p.Positions)
}

// Symbols returns the symbols with open positions in sorted order.
func (p *Portfolio) Symbols() []string {
	out := make([]string, 0, len(p.Positions))
	for s := range p.Positions {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// MarketValue sums positions in symbol order so the result is reproducible.
func (p *Portfolio) MarketValue() float64 {
	total := 0.0
	for _, s := range p.Symbols() {
		total += p.Positions[s].MarketValue()
	}
	return total
}

func (p *Portfolio) TotalValue() float64 {
	return p.Cash + p.MarketValue()
}

// Mark updates the current price of an open position.
func (p *Portfolio) Mark(symbol string, price float64) bool {
	pos, ok := p.Positions[symbol]
	if !ok || price <= 0 {
		return false
	}
	pos.CurrentPrice = price
	return true
}

// RollDay resets the daily loss accumulator when day differs from the
// current trading day.
func (p *Portfolio) RollDay(day string) bool {
	if p.TradingDay == day {
		return false
	}
	p.TradingDay = day
	p.DailyLoss = 0
	return true
}

// Buy opens or extends a position, averaging the entry price.
func (p *Portfolio) Buy(symbol string, qty int, price float64, at time.Time) (*Position, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	if price <= 0 {
		return nil, ErrInvalidPrice
	}
	cost := float64(qty) * price
	if cost > p.Cash+1e-9 {
		return nil, fmt.Errorf("%w: need %.2f, have %.2f", ErrInsufficientCash, cost, p.Cash)
	}

	if p.Positions == nil {
		p.Positions = make(map[string]*Position)
	}
	pos := p.Positions[symbol]
	if pos == nil {
		pos = &Position{Symbol: symbol, AvgEntryPrice: price, OpenedAt: at}
		p.Positions[symbol] = pos
	} else {
		total := pos.AvgEntryPrice*float64(pos.Quantity) + cost
		pos.AvgEntryPrice = total / float64(pos.Quantity+qty)
	}
	pos.Quantity += qty
	pos.CurrentPrice = price
	p.Cash -= cost
	return pos, nil
}

// Sell reduces a position and books the realized PnL. The position is removed
// once its quantity reaches zero.
func (p *Portfolio) Sell(symbol string, qty int, price float64) (float64, error) {
	if qty <= 0 {
		return 0, ErrInvalidQuantity
	}
	if price <= 0 {
		return 0, ErrInvalidPrice
	}
	pos := p.Positions[symbol]
	if pos == nil {
		return 0, ErrNoPosition
	}
	if qty > pos.Quantity {
		return 0, fmt.Errorf("%w: have %d, selling %d", ErrOversell, pos.Quantity, qty)
	}

	realized := (price - pos.AvgEntryPrice) * float64(qty)
	pos.Quantity -= qty
	pos.CurrentPrice = price
	p.Cash += float64(qty) * price
	p.RealizedPnL += realized
	if realized < 0 {
		p.DailyLoss -= realized
	}
	if pos.Quantity == 0 {
		delete(p.Positions, symbol)
	}
	return realized, nil
}

// Clone returns a deep copy.
func (p *Portfolio) Clone() *Portfolio {
	c := *p
	c.Positions = make(map[string]*Position, len(p.Positions))
	for s, pos := range p.Positions {
		cp := *pos
		c.Positions[s] = &cp
	}
	return &c
}
