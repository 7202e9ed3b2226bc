package ta

import "sentiment-trading-bot/internal/types"

// Periods are the indicator lookbacks.
type Periods struct {
	RSI       int
	SMAShort  int
	SMALong   int
	MACDFast  int
	MACDSlow  int
	BBWindow  int
	BBStdDevs float64
}

func DefaultPeriods() Periods {
	return Periods{
		RSI:       14,
		SMAShort:  20,
		SMALong:   50,
		MACDFast:  12,
		MACDSlow:  26,
		BBWindow:  20,
		BBStdDevs: 2,
	}
}

// Required is the number of bars needed before every indicator is computed
// from a full window.
func (p Periods) Required() int {
	n := p.RSI + 1
	for _, v := range []int{p.SMAShort, p.SMALong, p.MACDSlow, p.BBWindow} {
		if v > n {
			n = v
		}
	}
	return n
}

// Compute derives the technical state at the last point of the series.
func Compute(points []types.PricePoint, p Periods) types.TechnicalState {
	closes := Closes(points)

	st := types.TechnicalState{
		Bars:       len(closes),
		Sufficient: len(closes) >= p.Required(),
		RSI:        RSI(closes, p.RSI),
		MACD:       MACD(closes, p.MACDFast, p.MACDSlow),
		SMAShort:   SMA(closes, p.SMAShort),
		SMALong:    SMA(closes, p.SMALong),
	}
	if len(closes) > 0 {
		st.Close = closes[len(closes)-1]
	}
	st.BB.Middle, st.BB.Upper, st.BB.Lower = Bollinger(closes, p.BBWindow, p.BBStdDevs)
	return st
}

func Closes(points []types.PricePoint) []float64 {
	out := make([]float64, len(points))
	for i, pt := range points {
		out[i] = pt.Close
	}
	return out
}
