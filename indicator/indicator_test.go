package indicator

import (
	"errors"
	"testing"

	"github.com/juanjaure777-art/TRAD/types"
)

func TestRSIInsufficientHistory(t *testing.T) {
	_, err := RSI([]float64{1, 2, 3}, 7)
	if !errors.Is(err, types.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestRSIMonotonicRiseSaturates(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	rsi, err := RSI(closes, 7)
	if err != nil {
		t.Fatalf("RSI failed: %v", err)
	}
	if rsi != 100 {
		t.Fatalf("expected RSI 100 on monotonic rise, got %v", rsi)
	}
}

func TestRSIMonotonicFallNearZero(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 200 - float64(i)
	}
	rsi, err := RSI(closes, 7)
	if err != nil {
		t.Fatalf("RSI failed: %v", err)
	}
	if rsi > 1 {
		t.Fatalf("expected RSI near 0 on monotonic fall, got %v", rsi)
	}
}

func TestEMAFlatSeries(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 50
	}
	ema, err := EMA(closes, 21)
	if err != nil {
		t.Fatalf("EMA failed: %v", err)
	}
	if ema != 50 {
		t.Fatalf("expected EMA 50 on flat series, got %v", ema)
	}
}

func TestEMATracksTrend(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	fast, _ := EMA(closes, 9)
	slow, _ := EMA(closes, 21)
	if fast <= slow {
		t.Fatalf("expected fast EMA above slow in an uptrend: fast=%v slow=%v", fast, slow)
	}
}

func TestATRConstantRange(t *testing.T) {
	n := 30
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i := 0; i < n; i++ {
		highs[i] = 101
		lows[i] = 99
		closes[i] = 100
	}
	atr, err := ATR(highs, lows, closes, 14)
	if err != nil {
		t.Fatalf("ATR failed: %v", err)
	}
	if atr < 1.99 || atr > 2.01 {
		t.Fatalf("expected ATR ~2, got %v", atr)
	}
}

func TestVolatilityPct(t *testing.T) {
	closes := []float64{100, 104, 98, 102, 100}
	v, err := Volatility(closes, 5)
	if err != nil {
		t.Fatalf("Volatility failed: %v", err)
	}
	if v < 5.9 || v > 6.1 {
		t.Fatalf("expected ~6%%, got %v", v)
	}
}
