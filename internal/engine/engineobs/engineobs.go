package engineobs

import (
	"context"
	"time"

	"sentiment-trading-bot/internal/interfaces"
	"sentiment-trading-bot/internal/logger"
	"sentiment-trading-bot/internal/trace"
	"sentiment-trading-bot/internal/types"
)

type observableEngine struct {
	engine interfaces.Engine
}

var _ interfaces.Engine = (*observableEngine)(nil)

func Wrap(eng interfaces.Engine) interfaces.Engine {
	return &observableEngine{engine: eng}
}

func (oe *observableEngine) Step(ctx context.Context, symbol string) (*types.StepResult, error) {
	ctx, span := trace.StartSpan(ctx, "engine.Step")
	defer span.End()
	span.SetAttributes(trace.Attributes("symbol", symbol)...)

	start := time.Now()
	logger.DebugSkip(ctx, 1, "Starting evaluation cycle", "symbol", symbol)

	result, err := oe.engine.Step(ctx, symbol)
	if err != nil {
		span.RecordError(err)
		logger.ErrorWithErrSkip(ctx, 1, "Evaluation cycle failed", err,
			"symbol", symbol,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	span.SetAttributes(trace.Attributes(
		"action", string(result.Signal.Action),
		"accepted", result.Decision.Accepted,
	)...)
	logger.InfoSkip(ctx, 1, "Evaluation cycle completed",
		"symbol", symbol,
		"action", result.Signal.Action,
		"confidence", result.Signal.Confidence,
		"accepted", result.Decision.Accepted,
		"qty", result.Decision.Quantity,
		"reason", result.Decision.Reason,
		"orders", len(result.Orders),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}
