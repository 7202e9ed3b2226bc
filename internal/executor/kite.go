package executor

import (
	"context"
	"fmt"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"sentiment-trading-bot/internal/logger"
	"sentiment-trading-bot/internal/types"
)

const kiteOrderTag = "sentibot"

// Kite places delivery (CNC) market orders through Zerodha Kite Connect.
// Kite has no bracket orders for equity delivery, so stops stay with the
// risk manager.
type Kite struct {
	kc       *kiteconnect.Client
	exchange string
}

func NewKite(p Params) (*Kite, error) {
	if p.APIKey == "" || p.AccessToken == "" {
		return nil, fmt.Errorf("kite: %w", ErrMissingCredentials)
	}
	kc := kiteconnect.New(p.APIKey)
	kc.SetAccessToken(p.AccessToken)
	if p.BaseURL != "" {
		kc.SetBaseURI(p.BaseURL)
	}
	exchange := p.Exchange
	if exchange == "" {
		exchange = kiteconnect.ExchangeNSE
	}
	return &Kite{kc: kc, exchange: exchange}, nil
}

func (k *Kite) PlaceOrder(ctx context.Context, o types.Order) (types.OrderResp, error) {
	if err := validateOrder(o); err != nil {
		return types.OrderResp{}, err
	}
	if err := ctx.Err(); err != nil {
		return types.OrderResp{}, err
	}

	side := kiteconnect.TransactionTypeBuy
	if o.Action == types.ActionSell {
		side = kiteconnect.TransactionTypeSell
	}
	params := kiteconnect.OrderParams{
		Exchange:        k.exchange,
		Tradingsymbol:   o.Symbol,
		TransactionType: side,
		Product:         kiteconnect.ProductCNC,
		OrderType:       kiteconnect.OrderTypeMarket,
		Validity:        kiteconnect.ValidityDay,
		Quantity:        o.Quantity,
		Tag:             kiteOrderTag,
	}

	res, err := k.kc.PlaceOrder(kiteconnect.VarietyRegular, params)
	if err != nil {
		return types.OrderResp{}, fmt.Errorf("kite place order %s %s: %w", o.Action, o.Symbol, err)
	}
	logger.Debug(ctx, "Kite order placed", "symbol", o.Symbol, "side", side, "qty", o.Quantity, "order_id", res.OrderID)
	return types.OrderResp{OrderID: res.OrderID, Status: "PLACED", Message: "ok"}, nil
}
