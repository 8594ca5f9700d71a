package position

import (
	"github.com/juanjaure777-art/TRAD/config"
	"github.com/juanjaure777-art/TRAD/types"
)

// deadMinHistory is the number of bars required before the activity
// statistics mean anything. The window keeps growing up to its capacity,
// but classification starts here.
const deadMinHistory = 3

// deadWindow keeps a rolling window of recent bars and classifies the
// current cycle's activity. It is transient: after a crash the window
// refills over the next cycles while the persisted counters on the
// Position carry the streak.
type deadWindow struct {
	max     int
	highs   []float64
	lows    []float64
	volumes []float64
}

func newDeadWindow(max int) *deadWindow {
	if max <= 0 {
		max = 15
	}
	return &deadWindow{max: max}
}

func (w *deadWindow) add(c types.Candle) {
	w.highs = append(w.highs, c.High)
	w.lows = append(w.lows, c.Low)
	w.volumes = append(w.volumes, c.Volume)
	if len(w.highs) > w.max {
		w.highs = w.highs[len(w.highs)-w.max:]
		w.lows = w.lows[len(w.lows)-w.max:]
		w.volumes = w.volumes[len(w.volumes)-w.max:]
	}
}

func (w *deadWindow) ready() bool { return len(w.highs) >= deadMinHistory }

// rangePct returns the window's high-low span as a percent of the latest
// close reference.
func (w *deadWindow) rangePct(price float64) float64 {
	if len(w.highs) == 0 || price <= 0 {
		return 0
	}
	hi, lo := w.highs[0], w.lows[0]
	for i := 1; i < len(w.highs); i++ {
		if w.highs[i] > hi {
			hi = w.highs[i]
		}
		if w.lows[i] < lo {
			lo = w.lows[i]
		}
	}
	return (hi - lo) / price * 100
}

// volumeRatio returns the latest volume over the window average.
func (w *deadWindow) volumeRatio() float64 {
	n := len(w.volumes)
	if n == 0 {
		return 1
	}
	sum := 0.0
	for _, v := range w.volumes {
		sum += v
	}
	avg := sum / float64(n)
	if avg <= 0 {
		return 1
	}
	return w.volumes[n-1] / avg
}

// observe feeds one bar and updates the position's dead-trade counters. A
// cycle with the range under the price threshold bumps the price counter,
// otherwise resets it; same for volume against the rolling average. Returns
// true when the streaks say the trade is dead: both counters at the soft
// limit, or either at the hard limit.
func observeDead(w *deadWindow, pos *Position, c types.Candle, cfg config.ExitConfig) bool {
	w.add(c)
	if !w.ready() {
		return false
	}

	if w.rangePct(c.Close) < cfg.DeadPriceThresholdPct {
		pos.DeadPriceCounter++
	} else {
		pos.DeadPriceCounter = 0
	}
	if w.volumeRatio() < cfg.DeadVolumeRatio {
		pos.DeadVolumeCounter++
	} else {
		pos.DeadVolumeCounter = 0
	}

	both := pos.DeadPriceCounter >= cfg.DeadCounterMax && pos.DeadVolumeCounter >= cfg.DeadCounterMax
	either := pos.DeadPriceCounter >= cfg.DeadCounterHard || pos.DeadVolumeCounter >= cfg.DeadCounterHard
	return both || either
}
