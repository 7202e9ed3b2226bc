package interfaces

import (
	"context"

	"sentiment-trading-bot/internal/types"
)

// Engine runs one evaluation cycle for a symbol.
type Engine interface {
	Step(ctx context.Context, symbol string) (*types.StepResult, error)
}
