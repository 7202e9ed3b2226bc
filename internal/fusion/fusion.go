package fusion

import (
	"fmt"
	"strings"
	"time"

	"sentiment-trading-bot/internal/types"
)

const DefaultSignalTTL = 15 * time.Minute

type Weights struct {
	Sentiment float64
	Technical float64
}

// Normalized rescales the weights to sum to 1. Non-positive sums fall back to
// an even split.
func (w Weights) Normalized() Weights {
	s, t := w.Sentiment, w.Technical
	if s < 0 {
		s = 0
	}
	if t < 0 {
		t = 0
	}
	sum := s + t
	if sum <= 0 {
		return Weights{Sentiment: 0.5, Technical: 0.5}
	}
	return Weights{Sentiment: s / sum, Technical: t / sum}
}

type Thresholds struct {
	Buy  float64
	Sell float64
}

type Config struct {
	Weights    Weights
	Thresholds Thresholds
	SignalTTL  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Weights:    Weights{Sentiment: 0.6, Technical: 0.4},
		Thresholds: Thresholds{Buy: 0.65, Sell: 0.35},
		SignalTTL:  DefaultSignalTTL,
	}
}

// Fuser turns technical and sentiment state into a Signal. It holds no
// mutable state and is safe for concurrent use.
type Fuser struct {
	weights    Weights
	thresholds Thresholds
	ttl        time.Duration
}

func New(cfg Config) *Fuser {
	ttl := cfg.SignalTTL
	if ttl <= 0 {
		ttl = DefaultSignalTTL
	}
	return &Fuser{
		weights:    cfg.Weights.Normalized(),
		thresholds: cfg.Thresholds,
		ttl:        ttl,
	}
}

// Decide applies the threshold rule. A score exactly on a threshold is HOLD.
func (f *Fuser) Decide(combined float64) types.Action {
	switch {
	case combined > f.thresholds.Buy:
		return types.ActionBuy
	case combined < f.thresholds.Sell:
		return types.ActionSell
	default:
		return types.ActionHold
	}
}

// Fuse produces the signal for symbol as of at. The result depends only on
// its arguments.
func (f *Fuser) Fuse(symbol string, tech types.TechnicalState, sent types.SentimentState, at time.Time) types.Signal {
	techScore, factors := TechnicalScore(tech)
	sentScore := clamp01(sent.Score)
	w := f.weights

	combined := w.Sentiment*sentScore + w.Technical*techScore
	action := f.Decide(combined)

	certainty := TechnicalCertainty(tech, techScore)
	confidence := clamp01(w.Sentiment*clamp01(sent.Confidence) + w.Technical*certainty)
	if sent.Confidence <= 0 && confidence > certainty {
		confidence = certainty
	}

	return types.Signal{
		Symbol:         symbol,
		Action:         action,
		Confidence:     confidence,
		SentimentScore: sentScore,
		TechnicalScore: techScore,
		CombinedScore:  combined,
		Reasoning:      f.reasoning(tech, sent, factors, techScore, combined, action),
		Time:           at,
		ExpiresAt:      at.Add(f.ttl),
	}
}

func (f *Fuser) reasoning(tech types.TechnicalState, sent types.SentimentState, factors []Factor, techScore, combined float64, action types.Action) string {
	parts := make([]string, 0, 4)

	if sent.Confidence > 0 {
		parts = append(parts, fmt.Sprintf("sentiment %.3f (confidence %.2f, %d obs, weight %.2f)",
			sent.Score, sent.Confidence, sent.Observations, f.weights.Sentiment))
	} else {
		parts = append(parts, fmt.Sprintf("no sentiment data (neutral %.2f, weight %.2f)", sent.Score, f.weights.Sentiment))
	}

	notes := make([]string, 0, len(factors))
	for _, fc := range factors {
		notes = append(notes, fc.Commentary)
	}
	techNote := fmt.Sprintf("technical %.3f (weight %.2f): %s", techScore, f.weights.Technical, strings.Join(notes, ", "))
	if !tech.Sufficient {
		techNote += fmt.Sprintf(" [limited history: %d bars]", tech.Bars)
	}
	parts = append(parts, techNote)

	parts = append(parts, fmt.Sprintf("combined %.3f vs buy>%.2f sell<%.2f", combined, f.thresholds.Buy, f.thresholds.Sell))
	parts = append(parts, "action "+string(action))
	return strings.Join(parts, "; ")
}
