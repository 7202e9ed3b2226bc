package executorobs

import (
	"context"

	"sentiment-trading-bot/internal/interfaces"
	"sentiment-trading-bot/internal/logger"
	"sentiment-trading-bot/internal/trace"
	"sentiment-trading-bot/internal/types"
)

// observableExecutor wraps an Executor with logging and tracing
type observableExecutor struct {
	exec     interfaces.Executor
	provider string
}

var _ interfaces.Executor = (*observableExecutor)(nil)

// Wrap wraps an executor with observability middleware
func Wrap(exec interfaces.Executor, provider string) interfaces.Executor {
	return &observableExecutor{exec: exec, provider: provider}
}

// PlaceOrder places an order with observability
func (oe *observableExecutor) PlaceOrder(ctx context.Context, order types.Order) (types.OrderResp, error) {
	ctx, span := trace.StartSpan(ctx, "executor.PlaceOrder")
	defer span.End()
	span.SetAttributes(trace.Attributes(
		"provider", oe.provider,
		"symbol", order.Symbol,
		"side", string(order.Action),
		"qty", order.Quantity,
	)...)

	logger.InfoSkip(ctx, 1, "Placing order",
		"provider", oe.provider,
		"symbol", order.Symbol,
		"side", order.Action,
		"qty", order.Quantity,
		"stop", order.StopLossPrice,
		"target", order.TakeProfitPrice,
	)

	resp, err := oe.exec.PlaceOrder(ctx, order)
	if err != nil {
		span.RecordError(err)
		logger.ErrorWithErrSkip(ctx, 1, "Failed to place order", err,
			"provider", oe.provider,
			"symbol", order.Symbol,
			"side", order.Action,
			"qty", order.Quantity,
		)
		return types.OrderResp{}, err
	}

	logger.InfoSkip(ctx, 1, "Order placed successfully",
		"provider", oe.provider,
		"symbol", order.Symbol,
		"order_id", resp.OrderID,
		"status", resp.Status,
	)
	return resp, nil
}
