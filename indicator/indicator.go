// Package indicator computes the small set of oscillators the signal layer
// needs from raw close/high/low arrays. Every function that can fail on
// short history returns an explicit error instead of a sentinel value.
package indicator

import (
	"math"

	"github.com/juanjaure777-art/TRAD/types"
)

// RSI returns the Wilder-smoothed relative strength index of the final bar.
func RSI(closes []float64, period int) (float64, error) {
	if len(closes) < period+1 {
		return 0, types.InsufficientDataError(len(closes), period+1)
	}

	var up, down float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta >= 0 {
			up += delta
		} else {
			down -= delta
		}
	}
	up /= float64(period)
	down /= float64(period)

	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		upVal, downVal := 0.0, 0.0
		if delta > 0 {
			upVal = delta
		} else {
			downVal = -delta
		}
		up = (up*float64(period-1) + upVal) / float64(period)
		down = (down*float64(period-1) + downVal) / float64(period)
	}

	if down == 0 {
		return 100, nil
	}
	rs := up / down
	return 100 - 100/(1+rs), nil
}

// EMA returns the exponential moving average of the final bar.
func EMA(closes []float64, period int) (float64, error) {
	if len(closes) < period {
		return 0, types.InsufficientDataError(len(closes), period)
	}
	mult := 2.0 / float64(period+1)

	// Seed with the SMA of the first window.
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += closes[i]
	}
	ema := sum / float64(period)

	for i := period; i < len(closes); i++ {
		ema = (closes[i]-ema)*mult + ema
	}
	return ema, nil
}

// ATR returns the Wilder average true range of the final bar.
func ATR(highs, lows, closes []float64, period int) (float64, error) {
	n := len(closes)
	if n < period+1 || len(highs) != n || len(lows) != n {
		return 0, types.InsufficientDataError(n, period+1)
	}

	tr := func(i int) float64 {
		hl := highs[i] - lows[i]
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		return math.Max(hl, math.Max(hc, lc))
	}

	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += tr(i)
	}
	atr := sum / float64(period)
	for i := period + 1; i < n; i++ {
		atr = (atr*float64(period-1) + tr(i)) / float64(period)
	}
	return atr, nil
}

// Volatility returns the close-to-close range of the last lookback bars as a
// percentage of the latest close. Used for the gate's market context.
func Volatility(closes []float64, lookback int) (float64, error) {
	if len(closes) < lookback || lookback < 2 {
		return 0, types.InsufficientDataError(len(closes), lookback)
	}
	window := closes[len(closes)-lookback:]
	lo, hi := window[0], window[0]
	for _, c := range window {
		lo = math.Min(lo, c)
		hi = math.Max(hi, c)
	}
	last := window[len(window)-1]
	if last <= 0 {
		return 0, types.ErrDataQuality
	}
	return (hi - lo) / last * 100, nil
}
