package executor

import (
	"context"
	"fmt"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"

	"sentiment-trading-bot/internal/logger"
	"sentiment-trading-bot/internal/types"
)

const alpacaPaperURL = "https://paper-api.alpaca.markets"

// Alpaca places market orders through the Alpaca trading API. With Bracket
// set, a BUY carrying stop and target prices goes out as a bracket order.
type Alpaca struct {
	client  *alpaca.Client
	bracket bool
}

func NewAlpaca(p Params) (*Alpaca, error) {
	if p.APIKey == "" || p.APISecret == "" {
		return nil, fmt.Errorf("alpaca: %w", ErrMissingCredentials)
	}
	baseURL := p.BaseURL
	if baseURL == "" {
		baseURL = alpacaPaperURL
	}
	client := alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    p.APIKey,
		APISecret: p.APISecret,
		BaseURL:   baseURL,
	})
	return &Alpaca{client: client, bracket: p.Bracket}, nil
}

func (a *Alpaca) PlaceOrder(ctx context.Context, o types.Order) (types.OrderResp, error) {
	if err := validateOrder(o); err != nil {
		return types.OrderResp{}, err
	}
	if err := ctx.Err(); err != nil {
		return types.OrderResp{}, err
	}

	req := a.request(o)
	order, err := a.client.PlaceOrder(req)
	if err != nil {
		return types.OrderResp{}, fmt.Errorf("alpaca place order %s %s: %w", o.Action, o.Symbol, err)
	}
	logger.Debug(ctx, "Alpaca order placed",
		"symbol", o.Symbol,
		"side", req.Side,
		"qty", req.Qty.String(),
		"order_class", req.OrderClass,
		"order_id", order.ID,
	)
	return types.OrderResp{OrderID: order.ID, Status: string(order.Status), Message: "ok"}, nil
}

func (a *Alpaca) request(o types.Order) alpaca.PlaceOrderRequest {
	qty := decimal.NewFromInt(int64(o.Quantity))
	req := alpaca.PlaceOrderRequest{
		Symbol:      o.Symbol,
		Qty:         &qty,
		Type:        alpaca.Market,
		TimeInForce: alpaca.Day,
	}
	if o.Action == types.ActionSell {
		req.Side = alpaca.Sell
		req.PositionIntent = alpaca.SellToClose
		return req
	}

	req.Side = alpaca.Buy
	req.PositionIntent = alpaca.BuyToOpen
	if a.bracket && o.StopLossPrice > 0 && o.TakeProfitPrice > 0 {
		stop := decimal.NewFromFloat(o.StopLossPrice).Round(2)
		target := decimal.NewFromFloat(o.TakeProfitPrice).Round(2)
		req.OrderClass = alpaca.Bracket
		req.TakeProfit = &alpaca.TakeProfit{LimitPrice: &target}
		req.StopLoss = &alpaca.StopLoss{StopPrice: &stop}
	}
	return req
}
