package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sentiment-trading-bot/internal/fusion"
	"sentiment-trading-bot/internal/logger"
	"sentiment-trading-bot/internal/portfolio"
	"sentiment-trading-bot/internal/risk"
	"sentiment-trading-bot/internal/sentiment"
	"sentiment-trading-bot/internal/ta"
	"sentiment-trading-bot/internal/types"
)

// ErrSimulationDivergence marks inputs that would let a bar see data from its
// future. Runs fail fast on it.
var ErrSimulationDivergence = errors.New("simulation divergence")

const DefaultPeriodsPerYear = 252

type Config struct {
	Symbol         string
	InitialCapital float64
	Fusion         fusion.Config
	Periods        ta.Periods
	Limits         risk.Limits
	Location       *time.Location
	PeriodsPerYear int

	// Staleness bounds which sentiment observations count at a bar; zero
	// keeps all of them.
	Staleness time.Duration

	// MinBars is the warm-up before the first trade. Zero means the bars
	// needed for sufficient indicator data.
	MinBars int

	// BarAligned means sentiments hold exactly one observation per bar and
	// observation i scores bar i. An observation stamped after its bar is a
	// look-ahead and fails the run.
	BarAligned bool
}

// DefaultConfig mirrors the live defaults.
func DefaultConfig(symbol string) Config {
	return Config{
		Symbol:         symbol,
		InitialCapital: 10000,
		Fusion:         fusion.DefaultConfig(),
		Periods:        ta.DefaultPeriods(),
		Staleness:      24 * time.Hour,
		Limits:         risk.DefaultLimits(),
		PeriodsPerYear: DefaultPeriodsPerYear,
	}
}

type Trade struct {
	Time            time.Time       `json:"time"`
	Symbol          string          `json:"symbol"`
	Action          types.Action    `json:"action"`
	Quantity        int             `json:"quantity"`
	Price           float64         `json:"price"`
	Confidence      float64         `json:"confidence"`
	StopLossPrice   float64         `json:"stop_loss_price,omitempty"`
	TakeProfitPrice float64         `json:"take_profit_price,omitempty"`
	Reason          string          `json:"reason"`
	Forced          bool            `json:"forced,omitempty"`
	Exit            portfolio.State `json:"exit,omitempty"`
	RealizedPnL     float64         `json:"realized_pnl"`
}

type EquityPoint struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
	Cash  float64   `json:"cash"`
}

// Result is complete once Run returns; nothing recomputes it afterwards.
type Result struct {
	Symbol         string        `json:"symbol"`
	Start          time.Time     `json:"start"`
	End            time.Time     `json:"end"`
	InitialCapital float64       `json:"initial_capital"`
	Equity         []EquityPoint `json:"equity"`
	Trades         []Trade       `json:"trades"`
	Stats          Stats         `json:"stats"`
}

// Run replays fusion and risk bar by bar over prices. At bar t only prices up
// to t and sentiment observations timestamped at or before t are visible, and
// any accepted trade fills at t's close.
func Run(ctx context.Context, prices []types.PricePoint, sentiments []types.SentimentObservation, cfg Config) (*Result, error) {
	cfg = withDefaults(cfg)
	if err := validate(prices, sentiments, cfg.Symbol); err != nil {
		return nil, err
	}
	if cfg.BarAligned {
		if err := validateAligned(prices, sentiments); err != nil {
			return nil, err
		}
	}

	fuser := fusion.New(cfg.Fusion)
	rm := risk.NewManager(cfg.Limits, cfg.Location)
	agg := sentiment.Aggregator{Staleness: cfg.Staleness}
	cursor := newSentimentCursor(sentiments, cfg.Staleness)
	p := portfolio.New(cfg.InitialCapital)

	res := &Result{
		Symbol:         cfg.Symbol,
		Start:          prices[0].Time,
		End:            prices[len(prices)-1].Time,
		InitialCapital: cfg.InitialCapital,
		Equity:         make([]EquityPoint, 0, len(prices)),
		Trades:         []Trade{},
	}
	var counts SignalCounts

	for i, bar := range prices {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var visible []types.SentimentObservation
		if cfg.BarAligned {
			visible = sentiments[i : i+1]
		} else {
			visible = cursor.advance(bar.Time)
		}

		if i+1 >= cfg.MinBars {
			tech := ta.Compute(prices[:i+1], cfg.Periods)
			sent := agg.Aggregate(visible, bar.Time)
			sig := fuser.Fuse(cfg.Symbol, tech, sent, bar.Time)
			counts.add(sig.Action)

			d := rm.Evaluate(ctx, sig, p, bar.Close, bar.Time)
			if d.Accepted {
				res.Trades = append(res.Trades, tradeOf(d, sig, bar.Time))
			}
		}
		p.Mark(cfg.Symbol, bar.Close)

		res.Equity = append(res.Equity, EquityPoint{Time: bar.Time, Value: p.TotalValue(), Cash: p.Cash})
	}

	first := cfg.MinBars - 1
	if first >= len(prices) {
		first = len(prices) - 1
	}
	res.Stats = computeStats(res.Equity, res.Trades, cfg.InitialCapital, cfg.PeriodsPerYear)
	res.Stats.BuyHoldReturnPct = pctChange(prices[first].Close, prices[len(prices)-1].Close)
	res.Stats.Signals = counts

	logger.Info(ctx, "Backtest complete",
		"symbol", cfg.Symbol,
		"bars", len(prices),
		"trades", len(res.Trades),
		"total_return_pct", res.Stats.TotalReturnPct,
		"max_drawdown_pct", res.Stats.MaxDrawdownPct,
		"sharpe", res.Stats.Sharpe,
	)
	return res, nil
}

func withDefaults(cfg Config) Config {
	if cfg.Periods == (ta.Periods{}) {
		cfg.Periods = ta.DefaultPeriods()
	}
	if cfg.PeriodsPerYear <= 0 {
		cfg.PeriodsPerYear = DefaultPeriodsPerYear
	}
	if cfg.MinBars <= 0 {
		cfg.MinBars = cfg.Periods.Required()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return cfg
}

func validate(prices []types.PricePoint, sentiments []types.SentimentObservation, symbol string) error {
	if len(prices) == 0 {
		return fmt.Errorf("%w: empty price series", ErrSimulationDivergence)
	}
	for i, pt := range prices {
		if pt.Time.IsZero() {
			return fmt.Errorf("%w: bar %d has no timestamp", ErrSimulationDivergence, i)
		}
		if pt.Close <= 0 {
			return fmt.Errorf("%w: bar %d has non-positive close %.4f", ErrSimulationDivergence, i, pt.Close)
		}
		if i > 0 && !pt.Time.After(prices[i-1].Time) {
			return fmt.Errorf("%w: bar %d at %s is not after bar %d at %s", ErrSimulationDivergence,
				i, pt.Time.Format(time.RFC3339), i-1, prices[i-1].Time.Format(time.RFC3339))
		}
	}
	for i, o := range sentiments {
		if o.Symbol != "" && o.Symbol != symbol {
			return fmt.Errorf("%w: sentiment observation %d is for %s, not %s", ErrSimulationDivergence, i, o.Symbol, symbol)
		}
		if o.Time.IsZero() {
			return fmt.Errorf("%w: sentiment observation %d has no timestamp", ErrSimulationDivergence, i)
		}
		if i > 0 && o.Time.Before(sentiments[i-1].Time) {
			return fmt.Errorf("%w: sentiment observation %d at %s precedes observation %d at %s", ErrSimulationDivergence,
				i, o.Time.Format(time.RFC3339), i-1, sentiments[i-1].Time.Format(time.RFC3339))
		}
	}
	return nil
}

func validateAligned(prices []types.PricePoint, sentiments []types.SentimentObservation) error {
	if len(sentiments) != len(prices) {
		return fmt.Errorf("%w: bar-aligned sentiment has %d observations for %d bars",
			ErrSimulationDivergence, len(sentiments), len(prices))
	}
	for i, o := range sentiments {
		if o.Time.After(prices[i].Time) {
			return fmt.Errorf("%w: sentiment observation %d at %s is after its bar at %s", ErrSimulationDivergence,
				i, o.Time.Format(time.RFC3339), prices[i].Time.Format(time.RFC3339))
		}
	}
	return nil
}

func tradeOf(d risk.Decision, sig types.Signal, at time.Time) Trade {
	return Trade{
		Time:            at,
		Symbol:          d.Symbol,
		Action:          d.Action,
		Quantity:        d.Quantity,
		Price:           d.Price,
		Confidence:      sig.Confidence,
		StopLossPrice:   d.StopLossPrice,
		TakeProfitPrice: d.TakeProfitPrice,
		Reason:          d.Reason,
		Forced:          d.Forced,
		Exit:            d.Exit,
		RealizedPnL:     d.RealizedPnL,
	}
}
