package interfaces

import (
	"context"
	"time"
)

// EodSummarizer writes the end-of-day report for the trading day containing
// t. An empty path with a nil error means there was nothing to report.
type EodSummarizer interface {
	SummarizeDay(ctx context.Context, t time.Time) (csvPath string, err error)
}
