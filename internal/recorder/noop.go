package recorder

import (
	"context"

	"sentiment-trading-bot/internal/backtest"
)

// NoopRecorder discards everything. Used when no database path is configured.
type NoopRecorder struct{}

var _ Recorder = NoopRecorder{}

func (NoopRecorder) Save(context.Context, *backtest.Result) (int64, error) { return 0, nil }

func (NoopRecorder) Load(context.Context, int64) (*backtest.Result, error) {
	return nil, ErrRunNotFound
}

func (NoopRecorder) List(context.Context, string, int) ([]RunSummary, error) { return nil, nil }

func (NoopRecorder) Close() error { return nil }
