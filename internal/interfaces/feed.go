package interfaces

import (
	"context"

	"sentiment-trading-bot/internal/types"
)

// PriceFeed supplies ordered price history for a symbol.
type PriceFeed interface {
	RecentCandles(ctx context.Context, symbol string, n int) ([]types.PricePoint, error)
}

// SentimentFeed supplies scored observations on the canonical 0..1 scale.
type SentimentFeed interface {
	Observations(ctx context.Context, symbol string) ([]types.SentimentObservation, error)
}
