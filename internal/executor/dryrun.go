package executor

import (
	"context"
	"fmt"
	"sync/atomic"

	"sentiment-trading-bot/internal/logger"
	"sentiment-trading-bot/internal/types"
)

// DryRun accepts every valid order without contacting a broker. Order ids
// are a per-executor sequence.
type DryRun struct {
	seq atomic.Uint64
}

func NewDryRun() *DryRun { return &DryRun{} }

func (d *DryRun) PlaceOrder(ctx context.Context, o types.Order) (types.OrderResp, error) {
	if err := validateOrder(o); err != nil {
		return types.OrderResp{}, err
	}
	resp := types.OrderResp{
		OrderID: fmt.Sprintf("SIM-%d", d.seq.Add(1)),
		Status:  "SIMULATED",
		Message: "dry-run",
	}
	logger.Debug(ctx, "Simulated order placed", "symbol", o.Symbol, "side", o.Action, "qty", o.Quantity, "order_id", resp.OrderID)
	return resp, nil
}
