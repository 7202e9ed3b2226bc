package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	runsSymbol string
	runsLimit  int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded backtest runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		rec, err := initializeRecorder(ctx, cfg, true)
		if err != nil {
			return err
		}
		defer rec.Close()

		runs, err := rec.List(ctx, strings.ToUpper(runsSymbol), runsLimit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCREATED\tSYMBOL\tFROM\tTO\tRETURN%\tMAXDD%\tSHARPE\tTRADES")
		for _, r := range runs {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%.2f\t%.2f\t%.2f\t%d\n",
				r.ID, r.CreatedAt.Format("2006-01-02 15:04"), r.Symbol,
				r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"),
				r.TotalReturnPct, r.MaxDrawdownPct, r.Sharpe, r.ClosedTrades)
		}
		return w.Flush()
	},
}

func init() {
	runsCmd.Flags().StringVar(&runsSymbol, "symbol", "", "only list runs for this symbol")
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum number of runs")
	rootCmd.AddCommand(runsCmd)
}
