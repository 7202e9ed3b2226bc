package risk

import (
	"errors"
	"fmt"
)

// Limits are the per-trade and portfolio-level constraints. Percentages are
// fractions: 0.05 means 5%.
type Limits struct {
	MaxPositionSize    float64 // max market value held per symbol
	MaxDailyLoss       float64 // realized loss budget per trading day
	MaxOpenPositions   int
	StopLossPct        float64
	TakeProfitPct      float64
	AllocationFraction float64 // share of cash a full-confidence signal may use
	MinTick            float64 // price increment for stop/target; 0 disables rounding
}

func DefaultLimits() Limits {
	return Limits{
		MaxPositionSize:    10000,
		MaxDailyLoss:       1000,
		MaxOpenPositions:   5,
		StopLossPct:        0.05,
		TakeProfitPct:      0.10,
		AllocationFraction: 1,
	}
}

func (l Limits) Validate() error {
	var errs []error
	if l.MaxPositionSize <= 0 {
		errs = append(errs, fmt.Errorf("max_position_size must be positive, got %.2f", l.MaxPositionSize))
	}
	if l.MaxDailyLoss <= 0 {
		errs = append(errs, fmt.Errorf("max_daily_loss must be positive, got %.2f", l.MaxDailyLoss))
	}
	if l.MaxOpenPositions < 1 {
		errs = append(errs, fmt.Errorf("max_open_positions must be at least 1, got %d", l.MaxOpenPositions))
	}
	if l.StopLossPct <= 0 || l.StopLossPct >= 1 {
		errs = append(errs, fmt.Errorf("stop_loss_pct must be in (0,1), got %.4f", l.StopLossPct))
	}
	if l.TakeProfitPct <= 0 {
		errs = append(errs, fmt.Errorf("take_profit_pct must be positive, got %.4f", l.TakeProfitPct))
	}
	if l.AllocationFraction <= 0 || l.AllocationFraction > 1 {
		errs = append(errs, fmt.Errorf("allocation_fraction must be in (0,1], got %.4f", l.AllocationFraction))
	}
	if l.MinTick < 0 {
		errs = append(errs, fmt.Errorf("min_tick must not be negative, got %.4f", l.MinTick))
	}
	return errors.Join(errs...)
}
