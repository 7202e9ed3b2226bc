package interfaces

import (
	"context"

	"sentiment-trading-bot/internal/types"
)

// Executor routes accepted orders to a broker. Fills are not confirmed here.
type Executor interface {
	PlaceOrder(ctx context.Context, order types.Order) (types.OrderResp, error)
}
