package risk

import (
	"fmt"
	"math"
	"time"

	"sentiment-trading-bot/internal/portfolio"
	"sentiment-trading-bot/internal/types"
)

type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// MarketContext is the recent price action around a signal.
type MarketContext struct {
	ChangePct float64 // last bar-to-bar change in percent
	Price     float64
	RangeLow  float64
	RangeHigh float64
}

// AssessSignal grades the risk of acting on sig from its confidence, the
// latest move and where the price sits within its recent range.
func AssessSignal(sig types.Signal, mc MarketContext) Level {
	score := 0

	switch move := math.Abs(mc.ChangePct); {
	case move > 10:
		score += 3
	case move > 5:
		score += 2
	default:
		score++
	}

	switch {
	case sig.Confidence < 0.3:
		score += 3
	case sig.Confidence < 0.6:
		score += 2
	default:
		score++
	}

	if mc.RangeHigh > mc.RangeLow && mc.RangeLow > 0 {
		pos := (mc.Price - mc.RangeLow) / (mc.RangeHigh - mc.RangeLow)
		if pos > 0.9 || pos < 0.1 {
			score += 2
		} else {
			score++
		}
	}

	switch {
	case score >= 7:
		return LevelHigh
	case score >= 4:
		return LevelMedium
	default:
		return LevelLow
	}
}

// MarketContextOf summarises the trailing window of points.
func MarketContextOf(points []types.PricePoint) MarketContext {
	var mc MarketContext
	if len(points) == 0 {
		return mc
	}
	last := points[len(points)-1]
	mc.Price = last.Close
	if len(points) > 1 {
		if prev := points[len(points)-2].Close; prev > 0 {
			mc.ChangePct = (last.Close - prev) / prev * 100
		}
	}
	mc.RangeLow, mc.RangeHigh = math.Inf(1), math.Inf(-1)
	for _, p := range points {
		lo, hi := p.Low, p.High
		if lo <= 0 {
			lo = p.Close
		}
		if hi <= 0 {
			hi = p.Close
		}
		mc.RangeLow = math.Min(mc.RangeLow, lo)
		mc.RangeHigh = math.Max(mc.RangeHigh, hi)
	}
	return mc
}

type Exposure struct {
	Symbol string  `json:"symbol"`
	Value  float64 `json:"value"`
	Weight float64 `json:"weight"`
}

// Assessment is a point-in-time view of portfolio concentration.
type Assessment struct {
	TotalValue       float64    `json:"total_value"`
	CashRatio        float64    `json:"cash_ratio"`
	Exposures        []Exposure `json:"exposures"`
	MaxConcentration float64    `json:"max_concentration"`
	Diversification  float64    `json:"diversification"`
	Concentration    Level      `json:"concentration"`
	Overall          Level      `json:"overall"`
	DailyLossUsed    float64    `json:"daily_loss_used"`
	Warnings         []string   `json:"warnings,omitempty"`
}

// AssessPortfolio measures concentration with a Herfindahl index over
// position weights: diversification is 1 - HHI.
func (m *Manager) AssessPortfolio(p *portfolio.Portfolio) Assessment {
	a := Assessment{TotalValue: p.TotalValue(), Concentration: LevelLow, Overall: LevelMedium, Diversification: 0.5}
	if m.limits.MaxDailyLoss > 0 {
		a.DailyLossUsed = p.DailyLoss / m.limits.MaxDailyLoss
	}
	if a.TotalValue <= 0 {
		return a
	}
	a.CashRatio = p.Cash / a.TotalValue

	symbols := p.Symbols()
	if len(symbols) == 0 {
		return a
	}

	hhi := 0.0
	for _, s := range symbols {
		v := p.Positions[s].MarketValue()
		w := v / a.TotalValue
		a.Exposures = append(a.Exposures, Exposure{Symbol: s, Value: v, Weight: w})
		a.MaxConcentration = math.Max(a.MaxConcentration, w)
		hhi += w * w
	}
	a.Diversification = 1 - hhi

	switch {
	case a.MaxConcentration > 0.3:
		a.Concentration = LevelHigh
		a.Warnings = append(a.Warnings, fmt.Sprintf("largest position is %.0f%% of the portfolio", a.MaxConcentration*100))
	case a.MaxConcentration > 0.15:
		a.Concentration = LevelMedium
	}
	if a.Diversification < 0.3 {
		a.Warnings = append(a.Warnings, "portfolio lacks diversification")
	}
	if a.DailyLossUsed >= 0.8 {
		a.Warnings = append(a.Warnings, fmt.Sprintf("%.0f%% of the daily loss budget used", a.DailyLossUsed*100))
	}

	switch {
	case len(symbols) < 3:
		a.Overall = LevelHigh
		a.Warnings = append(a.Warnings, "fewer than 3 positions")
	case a.MaxConcentration > 0.2 || a.Diversification < 0.4:
		a.Overall = LevelMedium
	default:
		a.Overall = LevelLow
	}
	return a
}

// Report is the portfolio with its risk assessment, as served to operators.
type Report struct {
	Portfolio  *portfolio.Portfolio `json:"portfolio"`
	Assessment Assessment           `json:"assessment"`
}

// Report assesses a snapshot of l as of now. The daily loss is rolled on the
// copy, so yesterday's losses do not count against today.
func (m *Manager) Report(l *portfolio.Ledger, now time.Time) Report {
	snap := l.Snapshot()
	snap.RollDay(m.TradingDay(now))
	return Report{Portfolio: snap, Assessment: m.AssessPortfolio(snap)}
}
