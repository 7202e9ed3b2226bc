package feed

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gocarina/gocsv"

	"sentiment-trading-bot/internal/types"
)

type candleRow struct {
	Time   csvTime `csv:"time"`
	Open   float64 `csv:"open"`
	High   float64 `csv:"high"`
	Low    float64 `csv:"low"`
	Close  float64 `csv:"close"`
	Volume float64 `csv:"volume"`
}

// CSVPriceFeed serves candles from <Dir>/<SYMBOL>.csv.
type CSVPriceFeed struct {
	Dir string
}

func NewCSVPriceFeed(dir string) *CSVPriceFeed {
	return &CSVPriceFeed{Dir: dir}
}

func (f *CSVPriceFeed) path(symbol string) string {
	return filepath.Join(f.Dir, strings.ToUpper(symbol)+".csv")
}

// Load returns the whole series for symbol sorted by time.
func (f *CSVPriceFeed) Load(symbol string) ([]types.PricePoint, error) {
	file, err := os.Open(f.path(symbol))
	if err != nil {
		return nil, fmt.Errorf("open prices for %s: %w", symbol, err)
	}
	defer file.Close()

	var rows []*candleRow
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return nil, fmt.Errorf("parse prices for %s: %w", symbol, err)
	}

	points := make([]types.PricePoint, 0, len(rows))
	for _, r := range rows {
		points = append(points, types.PricePoint{
			Time:   r.Time.Time,
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		})
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].Time.Before(points[j].Time) })
	return points, nil
}

// RecentCandles returns at most n of the latest candles.
func (f *CSVPriceFeed) RecentCandles(ctx context.Context, symbol string, n int) ([]types.PricePoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	points, err := f.Load(symbol)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(points) > n {
		points = points[len(points)-n:]
	}
	return points, nil
}
