// Package position owns the single open position and its exit state machine.
// A Position moves ENTRY_PENDING → OPEN_FULL → PARTIAL_AFTER_TP1 → CLOSED;
// CLOSED is terminal and a fresh Position is created for the next trade.
package position

import (
	"time"

	"github.com/google/uuid"

	"github.com/juanjaure777-art/TRAD/types"
)

// State is the lifecycle stage of a position.
type State string

const (
	EntryPending    State = "ENTRY_PENDING"
	OpenFull        State = "OPEN_FULL"
	PartialAfterTP1 State = "PARTIAL_AFTER_TP1"
	Closed          State = "CLOSED"
)

// Position is the central mutable entity. It is persisted after every
// mutation; json tags are the state-file schema.
type Position struct {
	ID         string     `json:"id"`
	Symbol     string     `json:"symbol"`
	Side       types.Side `json:"side"`
	EntryPrice float64    `json:"entry_price"`
	// Quantity is the original size; RemainingQty shrinks at TP1.
	Quantity     float64 `json:"quantity"`
	RemainingQty float64 `json:"remaining_qty"`

	StopLoss    float64 `json:"stop_loss"`
	TakeProfit1 float64 `json:"take_profit_1"`
	// TakeProfit2 is vestigial: persisted for compatibility, never evaluated.
	TakeProfit2 float64 `json:"take_profit_2"`
	TP1Closed   bool    `json:"tp1_closed"`
	TP2Closed   bool    `json:"tp2_closed"`

	TrailingActive    bool    `json:"trailing_stop_active"`
	TrailingStop      float64 `json:"trailing_stop_price"`
	MaxFavorablePrice float64 `json:"max_favorable_price"`

	EntryTime time.Time `json:"entry_time"`
	State     State     `json:"state"`

	DeadPriceCounter  int `json:"dead_price_counter"`
	DeadVolumeCounter int `json:"dead_volume_counter"`
}

// New creates a pending position from an approved signal's terms.
func New(symbol string, sig types.Signal, qty float64, now time.Time) *Position {
	return &Position{
		ID:           uuid.NewString(),
		Symbol:       symbol,
		Side:         sig.Side,
		EntryPrice:   sig.EntryPrice,
		Quantity:     qty,
		RemainingQty: qty,
		StopLoss:     sig.StopLoss,
		TakeProfit1:  sig.TakeProfit1,
		TakeProfit2:  sig.TakeProfit2,
		EntryTime:    now,
		State:        EntryPending,
	}
}

// Open marks the entry order as confirmed.
func (p *Position) Open() {
	p.State = OpenFull
	p.MaxFavorablePrice = p.EntryPrice
}

// IsOpen reports whether any quantity is still working.
func (p *Position) IsOpen() bool {
	return p.State == OpenFull || p.State == PartialAfterTP1
}

// PnLPct returns the signed percent move from entry to price, positive when
// favorable to the side.
func (p *Position) PnLPct(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	pct := (price - p.EntryPrice) / p.EntryPrice * 100
	if p.Side == types.Short {
		pct = -pct
	}
	return pct
}

// Favorable reports whether a is at least as favorable as b for the side.
func (p *Position) Favorable(a, b float64) bool {
	if p.Side == types.Long {
		return a >= b
	}
	return a <= b
}

// stopHit reports whether price has crossed level against the position.
func (p *Position) stopHit(price, level float64) bool {
	if level <= 0 {
		return false
	}
	if p.Side == types.Long {
		return price <= level
	}
	return price >= level
}

// Duration returns how long the position has been open.
func (p *Position) Duration(now time.Time) time.Duration {
	return now.Sub(p.EntryTime)
}
