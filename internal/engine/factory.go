package engine

import (
	"sentiment-trading-bot/internal/engine/engineobs"
	"sentiment-trading-bot/internal/fusion"
	"sentiment-trading-bot/internal/interfaces"
	"sentiment-trading-bot/internal/metrics"
	"sentiment-trading-bot/internal/portfolio"
	"sentiment-trading-bot/internal/risk"
	"sentiment-trading-bot/internal/sentiment"
	"sentiment-trading-bot/internal/store"
	"sentiment-trading-bot/internal/tradelog"
)

// New builds an engine with explicit collaborators.
func New(d Deps) interfaces.Engine {
	return newEngine(d)
}

// FromConfig wires an observable engine from the validated configuration.
func FromConfig(cfg *store.Config, prices interfaces.PriceFeed, sent *sentiment.Service, ledger *portfolio.Ledger,
	exec interfaces.Executor, log *tradelog.Log, m *metrics.Registry) interfaces.Engine {
	return engineobs.Wrap(newEngine(Deps{
		Prices:    prices,
		Sentiment: sent,
		Fuser:     fusion.New(cfg.FusionConfig()),
		Risk:      risk.NewManager(cfg.Limits(), cfg.Location()),
		Ledger:    ledger,
		Executor:  exec,
		TradeLog:  log,
		Metrics:   m,
		Periods:   cfg.Periods(),
		Lookback:  cfg.Indicators.Lookback,
	}))
}
