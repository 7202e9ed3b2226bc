package fusion

import (
	"fmt"
	"math"

	"sentiment-trading-bot/internal/types"
)

const (
	rsiOversold   = 30.0
	rsiOverbought = 70.0

	weightRSI       = 0.15
	weightMACD      = 0.15
	weightBollinger = 0.10
	weightTrend     = 0.10

	// macdGain scales MACD relative to price before squashing with tanh, so a
	// MACD of 1% of price contributes ~76% of its weight.
	macdGain = 100.0
)

// Factor is one component of the technical score.
type Factor struct {
	Name         string
	Contribution float64
	Commentary   string
}

func scoreRSI(st types.TechnicalState) Factor {
	f := Factor{Name: "rsi"}
	switch {
	case st.RSI < rsiOversold:
		f.Contribution = weightRSI
		f.Commentary = fmt.Sprintf("RSI %.1f oversold", st.RSI)
	case st.RSI > rsiOverbought:
		f.Contribution = -weightRSI
		f.Commentary = fmt.Sprintf("RSI %.1f overbought", st.RSI)
	default:
		f.Commentary = fmt.Sprintf("RSI %.1f neutral", st.RSI)
	}
	return f
}

func scoreMACD(st types.TechnicalState) Factor {
	f := Factor{Name: "macd"}
	if st.Close <= 0 {
		f.Commentary = "MACD unavailable"
		return f
	}
	f.Contribution = weightMACD * math.Tanh(macdGain*st.MACD/st.Close)
	switch {
	case st.MACD > 0:
		f.Commentary = fmt.Sprintf("MACD %+.4f bullish", st.MACD)
	case st.MACD < 0:
		f.Commentary = fmt.Sprintf("MACD %+.4f bearish", st.MACD)
	default:
		f.Commentary = "MACD flat"
	}
	return f
}

func scoreBollinger(st types.TechnicalState) Factor {
	f := Factor{Name: "bollinger"}
	bb := st.BB
	switch {
	case bb.Upper <= bb.Lower:
		f.Commentary = "bands collapsed"
	case st.Close < bb.Lower:
		f.Contribution = weightBollinger
		f.Commentary = fmt.Sprintf("price %.2f below lower band %.2f", st.Close, bb.Lower)
	case st.Close > bb.Upper:
		f.Contribution = -weightBollinger
		f.Commentary = fmt.Sprintf("price %.2f above upper band %.2f", st.Close, bb.Upper)
	default:
		f.Commentary = fmt.Sprintf("%%B %.2f", (st.Close-bb.Lower)/(bb.Upper-bb.Lower))
	}
	return f
}

func scoreTrend(st types.TechnicalState) Factor {
	f := Factor{Name: "trend"}
	switch {
	case st.Close > st.SMAShort && st.SMAShort > st.SMALong:
		f.Contribution = weightTrend
		f.Commentary = "uptrend (price > SMA short > SMA long)"
	case st.Close < st.SMAShort && st.SMAShort < st.SMALong:
		f.Contribution = -weightTrend
		f.Commentary = "downtrend (price < SMA short < SMA long)"
	default:
		f.Commentary = "no clear trend"
	}
	return f
}

// TechnicalScore maps a TechnicalState to a 0..1 bullishness measure. It starts
// at 0.5 and each factor moves it up or down.
func TechnicalScore(st types.TechnicalState) (float64, []Factor) {
	factors := []Factor{scoreRSI(st), scoreMACD(st), scoreBollinger(st), scoreTrend(st)}
	score := 0.5
	for _, f := range factors {
		score += f.Contribution
	}
	return clamp01(score), factors
}

// TechnicalCertainty measures how decisive the technical picture is: the
// average of RSI distance from 50 and score distance from neutral, in 0..1.
func TechnicalCertainty(st types.TechnicalState, technicalScore float64) float64 {
	rsiDist := math.Abs(st.RSI-50) / 50
	scoreDist := math.Abs(technicalScore-0.5) * 2
	return clamp01((rsiDist + scoreDist) / 2)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
