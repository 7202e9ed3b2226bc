package backtest

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"sentiment-trading-bot/internal/types"
)

type SignalCounts struct {
	Buy  int `json:"buy"`
	Sell int `json:"sell"`
	Hold int `json:"hold"`
}

func (c *SignalCounts) add(a types.Action) {
	switch a {
	case types.ActionBuy:
		c.Buy++
	case types.ActionSell:
		c.Sell++
	default:
		c.Hold++
	}
}

// Stats are derived once from the equity curve and trade list. Percentages
// are in percent, not fractions.
type Stats struct {
	FinalValue       float64      `json:"final_value"`
	TotalReturn      float64      `json:"total_return"`
	TotalReturnPct   float64      `json:"total_return_pct"`
	MaxDrawdown      float64      `json:"max_drawdown"`
	MaxDrawdownPct   float64      `json:"max_drawdown_pct"`
	Sharpe           float64      `json:"sharpe"`
	WinRate          float64      `json:"win_rate"`
	ProfitFactor     float64      `json:"profit_factor"`
	GrossProfit      float64      `json:"gross_profit"`
	GrossLoss        float64      `json:"gross_loss"`
	TotalTrades      int          `json:"total_trades"`
	ClosedTrades     int          `json:"closed_trades"`
	WinningTrades    int          `json:"winning_trades"`
	BuyHoldReturnPct float64      `json:"buy_hold_return_pct"`
	Signals          SignalCounts `json:"signals"`
}

func computeStats(equity []EquityPoint, trades []Trade, initial float64, periodsPerYear int) Stats {
	s := Stats{FinalValue: initial, TotalTrades: len(trades)}
	if len(equity) > 0 {
		s.FinalValue = equity[len(equity)-1].Value
	}
	s.TotalReturn = s.FinalValue - initial
	s.TotalReturnPct = pctChange(initial, s.FinalValue)
	s.MaxDrawdown, s.MaxDrawdownPct = maxDrawdown(equity)
	s.Sharpe = sharpe(equity, periodsPerYear)

	for _, t := range trades {
		if t.Action != types.ActionSell {
			continue
		}
		s.ClosedTrades++
		switch {
		case t.RealizedPnL > 0:
			s.WinningTrades++
			s.GrossProfit += t.RealizedPnL
		case t.RealizedPnL < 0:
			s.GrossLoss -= t.RealizedPnL
		}
	}
	if s.ClosedTrades > 0 {
		s.WinRate = float64(s.WinningTrades) / float64(s.ClosedTrades)
	}
	// No losing trades leaves the ratio undefined; report 0.
	if s.GrossLoss > 0 {
		s.ProfitFactor = s.GrossProfit / s.GrossLoss
	}
	return s
}

// maxDrawdown is the largest decline from a running peak, in absolute terms
// and as a percentage of that peak. The two can come from different dips.
func maxDrawdown(equity []EquityPoint) (abs, pct float64) {
	peak := math.Inf(-1)
	for _, e := range equity {
		if e.Value > peak {
			peak = e.Value
			continue
		}
		dd := peak - e.Value
		abs = math.Max(abs, dd)
		if peak > 0 {
			pct = math.Max(pct, dd/peak*100)
		}
	}
	return abs, pct
}

// sharpe annualizes the mean over the sample standard deviation of per-bar
// returns, with a zero risk-free rate.
func sharpe(equity []EquityPoint, periodsPerYear int) float64 {
	if len(equity) < 3 {
		return 0
	}
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Value
		if prev <= 0 {
			continue
		}
		returns = append(returns, equity[i].Value/prev-1)
	}
	if len(returns) < 2 {
		return 0
	}
	mean, std := stat.MeanStdDev(returns, nil)
	if std == 0 || math.IsNaN(std) {
		return 0
	}
	return mean / std * math.Sqrt(float64(periodsPerYear))
}

func pctChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from * 100
}
