package executor

import (
	"errors"
	"fmt"
	"strings"

	"sentiment-trading-bot/internal/interfaces"
	"sentiment-trading-bot/internal/types"
)

type Provider string

const (
	ProviderDryRun Provider = "DRY_RUN"
	ProviderKite   Provider = "KITE"
	ProviderAlpaca Provider = "ALPACA"
)

var (
	ErrMissingCredentials = errors.New("missing API credentials")
	ErrInvalidOrder       = errors.New("invalid order")
)

func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToUpper(strings.TrimSpace(s))); p {
	case ProviderDryRun, ProviderKite, ProviderAlpaca:
		return p, nil
	case "":
		return ProviderDryRun, nil
	}
	return "", fmt.Errorf("unknown executor provider %q", s)
}

type Params struct {
	Provider    Provider
	Exchange    string
	APIKey      string
	APISecret   string
	AccessToken string
	BaseURL     string
	// Bracket attaches stop and target legs to BUY orders where the broker
	// supports it.
	Bracket bool
}

// New builds the executor for p.Provider.
func New(p Params) (interfaces.Executor, error) {
	switch p.Provider {
	case ProviderDryRun, "":
		return NewDryRun(), nil
	case ProviderKite:
		return NewKite(p)
	case ProviderAlpaca:
		return NewAlpaca(p)
	}
	return nil, fmt.Errorf("unknown executor provider %q", p.Provider)
}

func validateOrder(o types.Order) error {
	if o.Symbol == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidOrder)
	}
	if o.Quantity <= 0 {
		return fmt.Errorf("%w: quantity %d", ErrInvalidOrder, o.Quantity)
	}
	if o.Action != types.ActionBuy && o.Action != types.ActionSell {
		return fmt.Errorf("%w: action %s", ErrInvalidOrder, o.Action)
	}
	return nil
}
