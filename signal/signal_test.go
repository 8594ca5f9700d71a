package signal

import (
	"errors"
	"testing"

	"github.com/juanjaure777-art/TRAD/config"
	"github.com/juanjaure777-art/TRAD/testutils"
	"github.com/juanjaure777-art/TRAD/types"
)

func signalCfg() config.SignalConfig {
	return config.SignalConfig{
		RSIPeriod:      7,
		RSIOversold:    25,
		RSIOverbought:  75,
		RSIExitBuffer:  10,
		EMAFastPeriod:  9,
		EMASlowPeriod:  21,
		ConfirmCandles: 2,
	}
}

func exitCfg() config.ExitConfig {
	return config.ExitConfig{
		StopLossPct:     0.02,
		TP1Pct:          0.01,
		TrailingPct:     0.015,
		PartialFraction: 0.5,
	}
}

// series derives opens/highs/lows from a close path: each bar opens at the
// prior close with a 0.3 wick on the body extreme.
func series(closes []float64) types.Series {
	n := len(closes)
	s := types.Series{
		Timeframe: "4h",
		Opens:     make([]float64, n),
		Highs:     make([]float64, n),
		Lows:      make([]float64, n),
		Closes:    append([]float64(nil), closes...),
		Volumes:   make([]float64, n),
	}
	for i := 0; i < n; i++ {
		open := closes[i]
		if i > 0 {
			open = closes[i-1]
		}
		s.Opens[i] = open
		hi, lo := open, closes[i]
		if closes[i] > open {
			hi, lo = closes[i], open
		}
		s.Highs[i] = hi + 0.3
		s.Lows[i] = lo - 0.3
		s.Volumes[i] = 100
	}
	return s
}

// longReversal is an uptrend with a sharp three-bar pullback that drives
// RSI(7) under 25, followed by a two-candle green recovery that crosses RSI
// back over 35 and closes above the pullback's highs. The uptrend keeps
// EMA(9) above EMA(21) throughout.
func longReversal() types.Series {
	closes := make([]float64, 0, 45)
	for i := 0; i < 40; i++ {
		closes = append(closes, 100+0.5*float64(i))
	}
	top := closes[len(closes)-1] // 119.5
	closes = append(closes, top-4, top-8, top-12)
	bottom := closes[len(closes)-1] // 107.5
	closes = append(closes, bottom+0.5, bottom+12.5)
	return series(closes)
}

// shortReversal is the mirror image: downtrend, sharp spike over RSI 75,
// two red candles crossing back under 65.
func shortReversal() types.Series {
	closes := make([]float64, 0, 45)
	for i := 0; i < 40; i++ {
		closes = append(closes, 100-0.5*float64(i))
	}
	bottom := closes[len(closes)-1] // 80.5
	closes = append(closes, bottom+4, bottom+8, bottom+12)
	top := closes[len(closes)-1] // 92.5
	closes = append(closes, top-0.5, top-12.5)
	return series(closes)
}

// vShape dips hard enough for the crossover and confirmation but its EMAs
// are still in downtrend order, so the trend-context filter must veto it.
func vShape() types.Series {
	closes := make([]float64, 0, 23)
	for i := 0; i <= 20; i++ {
		closes = append(closes, 110-float64(i))
	}
	closes = append(closes, 91, 111)
	return series(closes)
}

func newTestGenerator() *Generator {
	return NewGenerator(signalCfg(), exitCfg(), testutils.NewMockLogger())
}

func TestLongReversalSignal(t *testing.T) {
	g := newTestGenerator()
	sig, ok, err := g.Generate(longReversal(), types.Series{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !ok {
		t.Fatal("no signal on textbook long reversal")
	}
	if sig.Side != types.Long {
		t.Fatalf("side = %v, want LONG", sig.Side)
	}
	if sig.Confidence < 50 || sig.Confidence > 100 {
		t.Fatalf("confidence = %v out of range", sig.Confidence)
	}
	if sig.EntryPrice != 120 {
		t.Fatalf("entry = %v, want 120", sig.EntryPrice)
	}
	if sig.StopLoss >= sig.EntryPrice || sig.TakeProfit1 <= sig.EntryPrice {
		t.Fatalf("levels inverted: SL %v TP1 %v entry %v", sig.StopLoss, sig.TakeProfit1, sig.EntryPrice)
	}
	if sig.TimeframeConfirms != 1 {
		t.Fatalf("confirms = %d without higher timeframe, want 1", sig.TimeframeConfirms)
	}
}

func TestShortReversalSignal(t *testing.T) {
	g := newTestGenerator()
	sig, ok, err := g.Generate(shortReversal(), types.Series{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !ok {
		t.Fatal("no signal on textbook short reversal")
	}
	if sig.Side != types.Short {
		t.Fatalf("side = %v, want SHORT", sig.Side)
	}
	if sig.StopLoss <= sig.EntryPrice || sig.TakeProfit1 >= sig.EntryPrice {
		t.Fatalf("short levels inverted: SL %v TP1 %v entry %v", sig.StopLoss, sig.TakeProfit1, sig.EntryPrice)
	}
}

func TestEMAFilterVetoesCounterTrend(t *testing.T) {
	g := newTestGenerator()
	_, ok, err := g.Generate(vShape(), types.Series{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if ok {
		t.Fatal("counter-trend reversal passed the EMA filter")
	}
}

func TestNoSignalWithoutCrossover(t *testing.T) {
	g := newTestGenerator()
	closes := make([]float64, 45)
	for i := range closes {
		closes[i] = 100 + 0.5*float64(i%2) // flat chop, RSI near neutral
	}
	_, ok, err := g.Generate(series(closes), types.Series{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if ok {
		t.Fatal("signal generated without an RSI crossover")
	}
}

func TestConfirmationCandlesRequired(t *testing.T) {
	g := newTestGenerator()
	s := longReversal()
	// Turn the final run into dojis: crossover intact, confirmation gone.
	n := s.Len()
	s.Opens[n-1] = s.Closes[n-1]
	s.Opens[n-2] = s.Closes[n-2]
	_, ok, err := g.Generate(s, types.Series{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if ok {
		t.Fatal("signal generated without candle-color confirmation")
	}
}

func TestHigherTimeframeBonus(t *testing.T) {
	g := newTestGenerator()
	base, ok, err := g.Generate(longReversal(), types.Series{})
	if err != nil || !ok {
		t.Fatalf("baseline signal missing: ok=%v err=%v", ok, err)
	}

	// Higher timeframe deep in the same oversold extreme.
	confirm := make([]float64, 12)
	for i := range confirm {
		confirm[i] = 200 - 5*float64(i)
	}
	boosted, ok, err := g.Generate(longReversal(), series(confirm))
	if err != nil || !ok {
		t.Fatalf("boosted signal missing: ok=%v err=%v", ok, err)
	}
	if boosted.TimeframeConfirms != 2 {
		t.Fatalf("confirms = %d, want 2", boosted.TimeframeConfirms)
	}
	if boosted.Confidence <= base.Confidence && base.Confidence < 100 {
		t.Fatalf("no confidence bonus: base %v boosted %v", base.Confidence, boosted.Confidence)
	}
}

func TestInsufficientHistoryIsError(t *testing.T) {
	g := newTestGenerator()
	_, ok, err := g.Generate(series([]float64{100, 101, 102}), types.Series{})
	if ok {
		t.Fatal("signal from three bars")
	}
	if !errors.Is(err, types.ErrInsufficientData) {
		t.Fatalf("err = %v, want ErrInsufficientData", err)
	}
}
