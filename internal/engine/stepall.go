package engine

import (
	"context"

	"golang.org/x/sync/errgroup"

	"sentiment-trading-bot/internal/interfaces"
	"sentiment-trading-bot/internal/logger"
	"sentiment-trading-bot/internal/types"
)

// StepAll evaluates symbols concurrently, at most workers at a time, and
// returns the successful results in symbol order. A failing symbol is logged
// and skipped.
func StepAll(ctx context.Context, eng interfaces.Engine, symbols []string, workers int) []*types.StepResult {
	results := make([]*types.StepResult, len(symbols))

	var g errgroup.Group
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, symbol := range symbols {
		i, symbol := i, symbol
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			res, err := eng.Step(ctx, symbol)
			if err != nil {
				logger.ErrorWithErr(ctx, "Step failed", err, "symbol", symbol)
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	out := results[:0]
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}
