package backtest

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"sentiment-trading-bot/internal/types"
)

// Job is one independent simulation. Each owns its portfolio, so jobs never
// share mutable state.
type Job struct {
	Prices     []types.PricePoint
	Sentiments []types.SentimentObservation
	Config     Config
}

// RunBatch runs jobs with at most workers in flight and returns results in
// job order. The first failure cancels the rest.
func RunBatch(ctx context.Context, jobs []Job, workers int) ([]*Result, error) {
	if workers <= 0 {
		workers = 1
	}
	results := make([]*Result, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			res, err := Run(gctx, job.Prices, job.Sentiments, job.Config)
			if err != nil {
				return fmt.Errorf("backtest %s: %w", job.Config.Symbol, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
