package sentiment

import (
	"fmt"
	"math"
	"strings"
	"time"

	"sentiment-trading-bot/internal/types"
)

// Neutral is the midpoint of the canonical 0..1 sentiment scale.
const Neutral = 0.5

// Scale names the range a feed reports scores in.
type Scale string

const (
	ScaleUnit   Scale = "unit"   // 0..1
	ScaleSigned Scale = "signed" // -1..1
)

func ParseScale(s string) (Scale, error) {
	switch Scale(strings.ToLower(s)) {
	case ScaleUnit, "":
		return ScaleUnit, nil
	case ScaleSigned:
		return ScaleSigned, nil
	}
	return "", fmt.Errorf("unknown sentiment scale %q", s)
}

// Normalize maps a raw score reported on scale into 0..1.
func (sc Scale) Normalize(score float64) float64 {
	if sc == ScaleSigned {
		return FromSigned(score)
	}
	return clamp01(score)
}

// FromSigned maps a -1..1 score onto 0..1.
func FromSigned(score float64) float64 {
	return clamp01((score + 1) / 2)
}

// Aggregator reduces a symbol's observations to one SentimentState.
type Aggregator struct {
	// Staleness excludes observations older than this; zero keeps everything.
	Staleness time.Duration
}

// Aggregate only considers observations visible at now (Time <= now) and
// not older than the staleness window.
func (a Aggregator) Aggregate(obs []types.SentimentObservation, now time.Time) types.SentimentState {
	var (
		n                 int
		weighted, weights float64
		plain, confSum    float64
	)
	for _, o := range obs {
		if o.Time.After(now) {
			continue
		}
		if a.Staleness > 0 && now.Sub(o.Time) > a.Staleness {
			continue
		}
		score, conf := clamp01(o.Score), clamp01(o.Confidence)
		n++
		weighted += score * conf
		weights += conf
		plain += score
		confSum += conf
	}

	if n == 0 {
		return types.SentimentState{Score: Neutral, Confidence: 0}
	}

	st := types.SentimentState{
		Observations: n,
		Confidence:   math.Min(1, confSum/float64(n)),
	}
	if weights > 0 {
		st.Score = weighted / weights
	} else {
		st.Score = plain / float64(n)
	}
	return st
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
