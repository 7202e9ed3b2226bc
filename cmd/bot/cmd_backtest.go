package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"sentiment-trading-bot/internal/backtest"
	"sentiment-trading-bot/internal/feed"
	"sentiment-trading-bot/internal/logger"
	"sentiment-trading-bot/internal/types"
)

var (
	btSymbols   []string
	btSentiment string
	btFormat    string
	btOutput    string
	btNoRecord  bool
	btAligned   bool
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay the live decision logic over historical CSV data",
	Long: `Backtest runs the same fusion and risk logic as the live engine over
<data.prices_dir>/<SYMBOL>.csv and the configured sentiment file. Runs are
stored in backtest.db_path unless --no-record is given.

Examples:
  sentibot backtest
  sentibot backtest --symbols AAPL,MSFT --format json --output results.json`,
	RunE: runBacktest,
}

func init() {
	backtestCmd.Flags().StringSliceVar(&btSymbols, "symbols", nil, "symbols to test (default: configured universe)")
	backtestCmd.Flags().StringVar(&btSentiment, "sentiment", "", "sentiment CSV (default: sentiment.file)")
	backtestCmd.Flags().StringVar(&btFormat, "format", "table", "output format: table or json")
	backtestCmd.Flags().StringVar(&btOutput, "output", "", "write output to file instead of stdout")
	backtestCmd.Flags().BoolVar(&btNoRecord, "no-record", false, "do not store runs in the database")
	backtestCmd.Flags().BoolVar(&btAligned, "aligned", false, "sentiment has one row per bar (default: backtest.bar_aligned)")
	rootCmd.AddCommand(backtestCmd)
}

func runBacktest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	symbols := cfg.Universe
	if len(btSymbols) > 0 {
		symbols = make([]string, len(btSymbols))
		for i, s := range btSymbols {
			symbols[i] = strings.ToUpper(strings.TrimSpace(s))
		}
	}
	sentPath := cfg.Sentiment.File
	if btSentiment != "" {
		sentPath = btSentiment
	}

	prices := feed.NewCSVPriceFeed(cfg.Data.PricesDir)
	var sentFeed *feed.CSVSentimentFeed
	if _, err := os.Stat(sentPath); err == nil {
		sentFeed = feed.NewCSVSentimentFeed(sentPath, cfg.SentimentScale())
	} else {
		logger.Warn(ctx, "Sentiment file unavailable - backtesting with neutral sentiment", "file", sentPath)
	}

	jobs := make([]backtest.Job, 0, len(symbols))
	for _, sym := range symbols {
		pts, err := prices.Load(sym)
		if err != nil {
			return err
		}
		var obs []types.SentimentObservation
		if sentFeed != nil {
			if obs, err = sentFeed.For(sym); err != nil {
				return fmt.Errorf("load sentiment for %s: %w", sym, err)
			}
		}
		bcfg := cfg.BacktestConfig(sym)
		if btAligned {
			bcfg.BarAligned = true
		}
		jobs = append(jobs, backtest.Job{Prices: pts, Sentiments: obs, Config: bcfg})
	}

	results, err := backtest.RunBatch(ctx, jobs, cfg.Backtest.Workers)
	if err != nil {
		return err
	}

	rec, err := initializeRecorder(ctx, cfg, !btNoRecord)
	if err != nil {
		return err
	}
	defer rec.Close()
	for _, res := range results {
		id, err := rec.Save(ctx, res)
		if err != nil {
			return fmt.Errorf("record %s backtest: %w", res.Symbol, err)
		}
		if id > 0 {
			logger.Info(ctx, "Backtest recorded", "symbol", res.Symbol, "run_id", id)
		}
	}

	out := cmd.OutOrStdout()
	if btOutput != "" {
		f, err := os.Create(btOutput)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	switch strings.ToLower(btFormat) {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	case "table":
		return printBacktestTable(out, results)
	}
	return errors.New("unknown format " + btFormat)
}

func printBacktestTable(out io.Writer, results []*backtest.Result) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tBARS\tFINAL\tRETURN%\tBUY&HOLD%\tMAXDD%\tSHARPE\tTRADES\tWIN%\tPF\tB/S/H")
	for _, r := range results {
		s := r.Stats
		fmt.Fprintf(w, "%s\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%d\t%.1f\t%.2f\t%d/%d/%d\n",
			r.Symbol, len(r.Equity), s.FinalValue, s.TotalReturnPct, s.BuyHoldReturnPct,
			s.MaxDrawdownPct, s.Sharpe, s.ClosedTrades, s.WinRate*100, s.ProfitFactor,
			s.Signals.Buy, s.Signals.Sell, s.Signals.Hold)
	}
	return w.Flush()
}
