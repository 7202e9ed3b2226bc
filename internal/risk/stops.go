package risk

import (
	"math"

	"sentiment-trading-bot/internal/portfolio"
)

// stopPrice is rounded up to the tick so the stop never sits further than
// StopLossPct below entry.
func (m *Manager) stopPrice(entry float64) float64 {
	return ceilToTick(entry*(1-m.limits.StopLossPct), m.limits.MinTick)
}

func (m *Manager) targetPrice(entry float64) float64 {
	return roundToTick(entry*(1+m.limits.TakeProfitPct), m.limits.MinTick)
}

func roundToTick(x, tick float64) float64 {
	if tick <= 0 {
		return x
	}
	return math.Round(x/tick) * tick
}

func ceilToTick(x, tick float64) float64 {
	if tick <= 0 {
		return x
	}
	return math.Ceil(x/tick-1e-9) * tick
}

// openRisk is the loss booked if every position except skip stopped out at
// its stop level.
func openRisk(p *portfolio.Portfolio, skip string) float64 {
	total := 0.0
	for _, s := range p.Symbols() {
		if s == skip {
			continue
		}
		pos := p.Positions[s]
		if d := (pos.AvgEntryPrice - pos.StopLossPrice) * float64(pos.Quantity); d > 0 {
			total += d
		}
	}
	return total
}
