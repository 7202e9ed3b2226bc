package feed

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/gocarina/gocsv"

	"sentiment-trading-bot/internal/sentiment"
	"sentiment-trading-bot/internal/types"
)

type sentimentRow struct {
	Time       csvTime `csv:"time"`
	Symbol     string  `csv:"symbol"`
	Source     string  `csv:"source"`
	Score      float64 `csv:"score"`
	Confidence float64 `csv:"confidence"`
}

// CSVSentimentFeed reads scored observations for every symbol from one file.
// Scores are normalised to 0..1 according to Scale as they are loaded.
type CSVSentimentFeed struct {
	Path  string
	Scale sentiment.Scale
}

func NewCSVSentimentFeed(path string, scale sentiment.Scale) *CSVSentimentFeed {
	return &CSVSentimentFeed{Path: path, Scale: scale}
}

// LoadAll returns every observation sorted by time. Rows sharing a
// timestamp keep their file order.
func (f *CSVSentimentFeed) LoadAll() ([]types.SentimentObservation, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open sentiment file: %w", err)
	}
	defer file.Close()

	var rows []*sentimentRow
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return nil, fmt.Errorf("parse sentiment file: %w", err)
	}

	obs := make([]types.SentimentObservation, 0, len(rows))
	for _, r := range rows {
		obs = append(obs, types.SentimentObservation{
			Symbol:     strings.ToUpper(strings.TrimSpace(r.Symbol)),
			Source:     r.Source,
			Score:      f.Scale.Normalize(r.Score),
			Confidence: r.Confidence,
			Time:       r.Time.Time,
		})
	}
	sort.SliceStable(obs, func(i, j int) bool { return obs[i].Time.Before(obs[j].Time) })
	return obs, nil
}

// For returns the observations of one symbol, in time order.
func (f *CSVSentimentFeed) For(symbol string) ([]types.SentimentObservation, error) {
	all, err := f.LoadAll()
	if err != nil {
		return nil, err
	}
	return filterSymbol(all, symbol), nil
}

// Observations serves the live sentiment service. A missing file means no
// observations, which aggregates to neutral.
func (f *CSVSentimentFeed) Observations(ctx context.Context, symbol string) ([]types.SentimentObservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(f.Path); os.IsNotExist(err) {
		return nil, nil
	}
	return f.For(symbol)
}

func filterSymbol(all []types.SentimentObservation, symbol string) []types.SentimentObservation {
	symbol = strings.ToUpper(symbol)
	var out []types.SentimentObservation
	for _, o := range all {
		if o.Symbol == symbol {
			out = append(out, o)
		}
	}
	return out
}
