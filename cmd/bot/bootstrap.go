package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"sentiment-trading-bot/internal/eod"
	"sentiment-trading-bot/internal/eod/eodobs"
	"sentiment-trading-bot/internal/executor"
	"sentiment-trading-bot/internal/executor/executorobs"
	"sentiment-trading-bot/internal/feed"
	"sentiment-trading-bot/internal/interfaces"
	"sentiment-trading-bot/internal/logger"
	"sentiment-trading-bot/internal/portfolio"
	"sentiment-trading-bot/internal/recorder"
	"sentiment-trading-bot/internal/sentiment"
	"sentiment-trading-bot/internal/store"
	"sentiment-trading-bot/internal/trace"
	"sentiment-trading-bot/internal/tradelog"
)

// initializeSystem loads .env and sets up logging and tracing.
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

func shutdownSystem() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := trace.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to flush tracer: %v\n", err)
	}
}

func loadConfig(ctx context.Context) (*store.Config, error) {
	cfg, err := store.LoadConfig(configPath)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", configPath)
		return nil, err
	}
	return cfg, nil
}

// initializeExecutor builds the configured executor with observability.
func initializeExecutor(ctx context.Context, cfg *store.Config) (interfaces.Executor, error) {
	params := cfg.ExecutorParams()
	if params.Provider == executor.ProviderDryRun {
		logger.Warn(ctx, "Running with the dry-run executor - orders will be simulated", "mode", cfg.Mode)
	}

	exec, err := executor.New(params)
	if err != nil {
		return nil, fmt.Errorf("initialize %s executor: %w", params.Provider, err)
	}
	return executorobs.Wrap(exec, string(params.Provider)), nil
}

// initializePriceFeed picks the candle source for live evaluation.
func initializePriceFeed(ctx context.Context, cfg *store.Config) (interfaces.PriceFeed, error) {
	if cfg.Data.Source == store.DataSourceKite {
		f, err := feed.NewKiteCandleFeed(cfg.KiteFeed())
		if err != nil {
			return nil, err
		}
		logger.Info(ctx, "Using Kite historical candles", "exchange", cfg.Executor.Exchange, "interval", cfg.Data.Interval)
		return f, nil
	}
	logger.Info(ctx, "Using CSV candles", "dir", cfg.Data.PricesDir)
	return feed.NewCSVPriceFeed(cfg.Data.PricesDir), nil
}

func initializeSentiment(ctx context.Context, cfg *store.Config) *sentiment.Service {
	scfg := cfg.SentimentService()
	if !scfg.Enabled {
		logger.Warn(ctx, "No sentiment file configured - sentiment stays neutral")
		return sentiment.NewService(nil, scfg)
	}
	logger.Info(ctx, "Using CSV sentiment feed", "file", cfg.Sentiment.File, "scale", cfg.Sentiment.Scale)
	return sentiment.NewService(feed.NewCSVSentimentFeed(cfg.Sentiment.File, cfg.SentimentScale()), scfg)
}

func initializeLedger(ctx context.Context, cfg *store.Config) (*portfolio.Ledger, error) {
	ledger, err := portfolio.OpenLedger(cfg.Portfolio.StateFile, cfg.Portfolio.InitialCash)
	if err != nil {
		return nil, fmt.Errorf("open portfolio state: %w", err)
	}
	p := ledger.Snapshot()
	logger.Info(ctx, "Portfolio loaded",
		"state_file", cfg.Portfolio.StateFile,
		"cash", p.Cash,
		"open_positions", p.OpenPositions(),
		"total_value", p.TotalValue(),
	)
	return ledger, nil
}

func initializeTradeLog(cfg *store.Config) (*tradelog.Log, interfaces.EodSummarizer) {
	log := tradelog.New(cfg.Logs.Dir, cfg.Location())
	return log, eodobs.Wrap(eod.NewSummarizer(log))
}

// initializeRecorder opens the backtest database, or a no-op recorder when
// disabled.
func initializeRecorder(ctx context.Context, cfg *store.Config, enabled bool) (recorder.Recorder, error) {
	if !enabled || cfg.Backtest.DBPath == "" {
		return recorder.NoopRecorder{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Backtest.DBPath), 0o755); err != nil {
		return nil, err
	}
	rec, err := recorder.NewSQLiteRecorder(cfg.Backtest.DBPath)
	if err != nil {
		return nil, err
	}
	logger.Debug(ctx, "Backtest recorder ready", "db_path", cfg.Backtest.DBPath)
	return rec, nil
}
