package types

import "time"

// Side is the direction of a position or proposal.
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// Opposite returns the closing direction for the side.
func (s Side) Opposite() Side {
	if s == Long {
		return Short
	}
	return Long
}

// Order is a market order handed to the executor.
type Order struct {
	Symbol string
	Side   Side
	Qty    float64
	Price  float64 // reference price; fills are market
	// meta
	Comment string
}

// Candle is one OHLCV bar.
type Candle struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	Time   time.Time
}

// Series holds parallel OHLCV arrays for one timeframe, most-recent-last.
type Series struct {
	Timeframe string
	Opens     []float64
	Highs     []float64
	Lows      []float64
	Closes    []float64
	Volumes   []float64
}

// Len returns the number of bars in the series.
func (s Series) Len() int { return len(s.Closes) }

// Last returns the most recent bar.
func (s Series) Last() Candle {
	n := s.Len()
	if n == 0 {
		return Candle{}
	}
	return Candle{
		Open:   s.Opens[n-1],
		High:   s.Highs[n-1],
		Low:    s.Lows[n-1],
		Close:  s.Closes[n-1],
		Volume: s.Volumes[n-1],
	}
}

// ExitType identifies which exit rule closed (or partially closed) a
// position. Dashboards and audits match on the exact strings.
type ExitType string

const (
	ExitStopLoss       ExitType = "SL"
	ExitTakeProfit1    ExitType = "TP1"
	ExitTakeProfit2    ExitType = "TP2"
	ExitTrailingStop   ExitType = "TRAILING_STOP"
	ExitDeadTrade      ExitType = "DEAD_TRADE"
	ExitSessionClosing ExitType = "SESSION_CLOSING"
	ExitOffHours       ExitType = "OFF_HOURS"
)

// Signal is a directional trade proposal. Generators return (Signal, false)
// when no entry condition is met; the zero Signal is never acted upon.
type Signal struct {
	Side        Side
	Confidence  float64 // 0-100
	EntryPrice  float64
	StopLoss    float64
	TakeProfit1 float64
	// TakeProfit2 is vestigial: the trailing stop manages the full
	// post-TP1 remainder. Kept for state-file compatibility.
	TakeProfit2 float64
	Rationale   string

	RSI     float64
	EMAFast float64
	EMASlow float64
	// TimeframeConfirms counts the timeframes agreeing with the setup;
	// the entry timeframe always counts as one.
	TimeframeConfirms int
}
