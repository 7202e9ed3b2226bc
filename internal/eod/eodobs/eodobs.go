package eodobs

import (
	"context"
	"time"

	"sentiment-trading-bot/internal/interfaces"
	"sentiment-trading-bot/internal/logger"
	"sentiment-trading-bot/internal/trace"
)

type observableEodSummarizer struct {
	summarizer interfaces.EodSummarizer
}

var _ interfaces.EodSummarizer = (*observableEodSummarizer)(nil)

func Wrap(summarizer interfaces.EodSummarizer) interfaces.EodSummarizer {
	return &observableEodSummarizer{summarizer: summarizer}
}

func (oes *observableEodSummarizer) SummarizeDay(ctx context.Context, t time.Time) (string, error) {
	day := t.Format("2006-01-02")
	ctx, span := trace.StartSpan(ctx, "eod.SummarizeDay")
	span.SetAttributes(trace.Attributes("date", day)...)
	defer span.End()

	csvPath, err := oes.summarizer.SummarizeDay(ctx, t)
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "EOD summary failed", err, "date", day)
		return "", err
	}
	if csvPath == "" {
		logger.InfoSkip(ctx, 1, "No trades for EOD summary", "date", day)
		return "", nil
	}

	logger.InfoSkip(ctx, 1, "EOD summary written", "date", day, "csv_path", csvPath)
	return csvPath, nil
}
