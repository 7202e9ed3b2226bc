package eod

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"

	"sentiment-trading-bot/internal/interfaces"
	"sentiment-trading-bot/internal/logger"
	"sentiment-trading-bot/internal/tradelog"
)

const totalRow = "TOTAL"

// amount renders with two decimals in the report.
type amount float64

func (a amount) MarshalCSV() (string, error) {
	return strconv.FormatFloat(float64(a), 'f', 2, 64), nil
}

func (a *amount) UnmarshalCSV(s string) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*a = amount(v)
	return nil
}

// Row is one line of the end-of-day CSV. The last row aggregates all symbols
// under the symbol TOTAL.
type Row struct {
	Symbol       string `csv:"symbol"`
	Trades       int    `csv:"trades"`
	BuyQty       int    `csv:"buy_qty"`
	BuyAvg       amount `csv:"buy_avg"`
	SellQty      int    `csv:"sell_qty"`
	SellAvg      amount `csv:"sell_avg"`
	BuyValue     amount `csv:"gross_buy_value"`
	SellValue    amount `csv:"gross_sell_value"`
	RealizedPnL  amount `csv:"realized_pnl"`
	ForcedExits  int    `csv:"forced_exits"`
	FailedOrders int    `csv:"failed_orders"`
}

// Summarizer reads a day's trade log and writes <dir>/eod/<day>.csv.
type Summarizer struct {
	log *tradelog.Log
}

var _ interfaces.EodSummarizer = (*Summarizer)(nil)

func NewSummarizer(log *tradelog.Log) *Summarizer {
	return &Summarizer{log: log}
}

// CSVPath is where the report for the trading day containing t is written.
func (s *Summarizer) CSVPath(t time.Time) string {
	return filepath.Join(s.log.Dir(), "eod", t.In(s.log.Location()).Format("2006-01-02")+".csv")
}

func (s *Summarizer) SummarizeDay(ctx context.Context, t time.Time) (string, error) {
	rows, err := s.aggregate(ctx, s.log.TradesPath(t))
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", nil
	}

	outPath := s.CSVPath(t)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if err := gocsv.MarshalFile(&rows, out); err != nil {
		return "", fmt.Errorf("write eod csv: %w", err)
	}
	return outPath, nil
}

func (s *Summarizer) aggregate(ctx context.Context, inPath string) ([]*Row, error) {
	f, err := os.Open(inPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	aggs := map[string]*Row{}
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var e tradelog.Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			logger.Warn(ctx, "Skipping malformed trade line", "path", inPath, "line", line, "error", err)
			continue
		}
		row := aggs[e.Symbol]
		if row == nil {
			row = &Row{Symbol: e.Symbol}
			aggs[e.Symbol] = row
		}
		row.Trades++
		value := amount(float64(e.Qty) * e.Price)
		switch e.Side {
		case "BUY":
			row.BuyQty += e.Qty
			row.BuyValue += value
		case "SELL":
			row.SellQty += e.Qty
			row.SellValue += value
		}
		row.RealizedPnL += amount(e.RealizedPnL)
		if e.Forced {
			row.ForcedExits++
		}
		if e.Error != "" {
			row.FailedOrders++
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(aggs) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(aggs))
	for k := range aggs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	total := &Row{Symbol: totalRow}
	rows := make([]*Row, 0, len(keys)+1)
	for _, k := range keys {
		r := aggs[k]
		if r.BuyQty > 0 {
			r.BuyAvg = r.BuyValue / amount(r.BuyQty)
		}
		if r.SellQty > 0 {
			r.SellAvg = r.SellValue / amount(r.SellQty)
		}
		total.Trades += r.Trades
		total.BuyQty += r.BuyQty
		total.SellQty += r.SellQty
		total.BuyValue += r.BuyValue
		total.SellValue += r.SellValue
		total.RealizedPnL += r.RealizedPnL
		total.ForcedExits += r.ForcedExits
		total.FailedOrders += r.FailedOrders
		rows = append(rows, r)
	}
	return append(rows, total), nil
}
