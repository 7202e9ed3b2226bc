package eod

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/gocarina/gocsv"

	"sentiment-trading-bot/internal/tradelog"
)

func TestSummarizeDay(t *testing.T) {
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	log := tradelog.New(t.TempDir(), time.UTC).WithClock(func() time.Time { return now })
	for _, e := range []tradelog.Entry{
		{Symbol: "MSFT", Side: "BUY", Qty: 10, Price: 100},
		{Symbol: "MSFT", Side: "SELL", Qty: 10, Price: 95, RealizedPnL: -50, Forced: true, Exit: "STOPPED_OUT"},
		{Symbol: "AAPL", Side: "BUY", Qty: 4, Price: 50},
		{Symbol: "AAPL", Side: "BUY", Qty: 6, Price: 60, Error: "broker down"},
	} {
		if err := log.Append(e); err != nil {
			t.Fatal(err)
		}
	}

	s := NewSummarizer(log)
	path, err := s.SummarizeDay(context.Background(), now)
	if err != nil {
		t.Fatal(err)
	}
	if path != s.CSVPath(now) {
		t.Fatalf("path = %q, want %q", path, s.CSVPath(now))
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	var rows []*Row
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}

	aapl, msft, total := rows[0], rows[1], rows[2]
	if aapl.Symbol != "AAPL" || aapl.BuyQty != 10 || aapl.BuyAvg != 56 || aapl.FailedOrders != 1 {
		t.Errorf("AAPL row = %+v", aapl)
	}
	if msft.Symbol != "MSFT" || msft.RealizedPnL != -50 || msft.ForcedExits != 1 || msft.SellAvg != 95 {
		t.Errorf("MSFT row = %+v", msft)
	}
	if total.Symbol != totalRow || total.Trades != 4 || total.RealizedPnL != -50 || total.BuyValue != 1560 {
		t.Errorf("TOTAL row = %+v", total)
	}
}

func TestSummarizeDayWithoutTrades(t *testing.T) {
	s := NewSummarizer(tradelog.New(t.TempDir(), time.UTC))
	path, err := s.SummarizeDay(context.Background(), time.Now())
	if err != nil || path != "" {
		t.Fatalf("SummarizeDay = %q, %v; want empty, nil", path, err)
	}
}
