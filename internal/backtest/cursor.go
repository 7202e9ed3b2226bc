package backtest

import (
	"time"

	"sentiment-trading-bot/internal/types"
)

// sentimentCursor walks a chronologically ordered observation series and
// hands out the window visible at each bar. Bars are strictly increasing,
// so the cursor only moves forward.
type sentimentCursor struct {
	obs       []types.SentimentObservation
	staleness time.Duration
	lo, hi    int
}

func newSentimentCursor(obs []types.SentimentObservation, staleness time.Duration) *sentimentCursor {
	return &sentimentCursor{obs: obs, staleness: staleness}
}

// advance moves the cursor to t and returns the observations in
// (t-staleness, t]. Later observations stay unseen until their bar.
func (c *sentimentCursor) advance(t time.Time) []types.SentimentObservation {
	for c.hi < len(c.obs) && !c.obs[c.hi].Time.After(t) {
		c.hi++
	}
	if c.staleness > 0 {
		for c.lo < c.hi && t.Sub(c.obs[c.lo].Time) > c.staleness {
			c.lo++
		}
	}
	return c.obs[c.lo:c.hi]
}
