package ta

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// tail returns the last n values, or all of them when fewer exist.
func tail(vals []float64, n int) []float64 {
	if n <= 0 || n >= len(vals) {
		return vals
	}
	return vals[len(vals)-n:]
}

// SMA is the mean of the last n closes. With fewer than n closes it degrades to
// the mean of everything available; an empty series yields 0.
func SMA(closes []float64, n int) float64 {
	w := tail(closes, n)
	if len(w) == 0 {
		return 0
	}
	return stat.Mean(w, nil)
}

// EMA seeds with the SMA of the first n closes and smooths the remainder with
// k = 2/(n+1). Short series are seeded with the first close.
func EMA(closes []float64, n int) float64 {
	if len(closes) == 0 {
		return 0
	}
	if n <= 1 {
		return closes[len(closes)-1]
	}
	k := 2.0 / float64(n+1)

	start, ema := 1, closes[0]
	if len(closes) >= n {
		start, ema = n, stat.Mean(closes[:n], nil)
	}
	for _, c := range closes[start:] {
		ema = c*k + ema*(1-k)
	}
	return ema
}

// MACD is EMA(fast) - EMA(slow). No signal line.
func MACD(closes []float64, fast, slow int) float64 {
	if len(closes) == 0 {
		return 0
	}
	return EMA(closes, fast) - EMA(closes, slow)
}

// RSI uses simple average gain and loss over the trailing period changes.
// Fewer than period+1 closes yield the neutral 50; no losses yield 100.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period+1 {
		return 50
	}
	gain, loss := 0.0, 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	if loss == 0 {
		return 100
	}
	rs := gain / loss
	rsi := 100 - 100/(1+rs)
	return math.Max(0, math.Min(100, rsi))
}

// StdDev is the population standard deviation of the last n values.
func StdDev(vals []float64, n int) float64 {
	w := tail(vals, n)
	if len(w) < 2 {
		return 0
	}
	return stat.PopStdDev(w, nil)
}

func Bollinger(closes []float64, n int, k float64) (mid, up, low float64) {
	mid = SMA(closes, n)
	sd := StdDev(closes, n)
	return mid, mid + k*sd, mid - k*sd
}
