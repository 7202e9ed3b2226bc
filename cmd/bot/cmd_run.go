package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sentiment-trading-bot/internal/engine"
	"sentiment-trading-bot/internal/logger"
	"sentiment-trading-bot/internal/metrics"
	"sentiment-trading-bot/internal/risk"
	"sentiment-trading-bot/internal/scheduler"
)

var runOnce bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Trade the configured universe on the evaluation schedule",
	Long: `Run evaluates every symbol of the universe on schedule.eval_cron, routes
accepted decisions to the configured executor and writes the end-of-day
summary on schedule.eod_cron. Prometheus metrics are served on metrics.addr.

Examples:
  sentibot run
  sentibot run --once          # one evaluation cycle, results as JSON`,
	RunE: runBot,
}

func init() {
	runCmd.Flags().BoolVar(&runOnce, "once", false, "run a single evaluation cycle and exit")
	rootCmd.AddCommand(runCmd)
}

func runBot(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	exec, err := initializeExecutor(ctx, cfg)
	if err != nil {
		return err
	}
	ledger, err := initializeLedger(ctx, cfg)
	if err != nil {
		return err
	}
	sent := initializeSentiment(ctx, cfg)
	tlog, summarizer := initializeTradeLog(cfg)
	reg := metrics.New()

	prices, err := initializePriceFeed(ctx, cfg)
	if err != nil {
		return err
	}
	eng := engine.FromConfig(cfg, prices, sent, ledger, exec, tlog, reg)

	if runOnce {
		results := engine.StepAll(ctx, eng, cfg.Universe, cfg.Backtest.Workers)
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	go sent.Run(ctx, time.Minute)

	serverErr := make(chan error, 1)
	go func() {
		rm := risk.NewManager(cfg.Limits(), cfg.Location())
		router := metrics.NewRouter(reg, func() any { return rm.Report(ledger, time.Now()) })
		serverErr <- metrics.Serve(ctx, cfg.Metrics.Addr, router)
	}()

	sched := scheduler.New(ctx, eng, summarizer, tlog, cfg.Universe, cfg.Location())
	sched.Workers = cfg.Backtest.Workers
	sched.RetentionDays = cfg.Logs.RetentionDays
	if err := sched.RegisterAll(cfg.Schedule.EvalCron, cfg.Schedule.EODCron); err != nil {
		return err
	}
	sched.Start()

	logger.Info(ctx, "Bot started",
		"mode", cfg.Mode,
		"symbols", cfg.Universe,
		"eval_cron", cfg.Schedule.EvalCron,
		"timezone", cfg.Schedule.Timezone,
	)

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			logger.ErrorWithErr(ctx, "Metrics server stopped", err)
		}
		<-ctx.Done()
	}

	logger.Info(context.Background(), "Shutting down")
	sched.Stop()

	path, err := summarizer.SummarizeDay(context.Background(), time.Now())
	if err != nil {
		return fmt.Errorf("final EOD summary: %w", err)
	}
	if path != "" {
		fmt.Fprintln(cmd.OutOrStdout(), "EOD CSV written:", path)
	}
	return nil
}
