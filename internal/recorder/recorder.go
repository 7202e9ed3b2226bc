package recorder

import (
	"context"
	"errors"
	"time"

	"sentiment-trading-bot/internal/backtest"
)

var ErrRunNotFound = errors.New("backtest run not found")

// RunSummary is the listing view of a stored backtest.
type RunSummary struct {
	ID             int64     `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	Symbol         string    `json:"symbol"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	InitialCapital float64   `json:"initial_capital"`
	FinalValue     float64   `json:"final_value"`
	TotalReturnPct float64   `json:"total_return_pct"`
	MaxDrawdownPct float64   `json:"max_drawdown_pct"`
	Sharpe         float64   `json:"sharpe"`
	ClosedTrades   int       `json:"closed_trades"`
}

// Recorder persists backtest results for later comparison.
type Recorder interface {
	Save(ctx context.Context, res *backtest.Result) (int64, error)
	Load(ctx context.Context, id int64) (*backtest.Result, error)
	// List returns the most recent runs first; an empty symbol lists all.
	List(ctx context.Context, symbol string, limit int) ([]RunSummary, error)
	Close() error
}
