package executor

import (
	"errors"
	"math"
	"sync"

	"github.com/juanjaure777-art/TRAD/types"
)

// Executor is the narrow order surface the core consumes. Every call is
// fire-and-confirm: it returns only after the venue acknowledged, and the
// caller updates in-memory state afterwards.
type Executor interface {
	// Submit places a market order opening or adding to a position.
	Submit(o types.Order) error
	// ClosePosition closes the given fraction (0,1] of the open position
	// at the reference price.
	ClosePosition(symbol string, fraction, price float64) error
	// ModifyStop moves the venue-side protective stop.
	ModifyStop(symbol string, price float64) error
	Equity() float64
	// Position returns the signed quantity (positive = long) and the
	// average entry price.
	Position(symbol string) (qty float64, avgPrice float64)
}

// PaperExecutor is a margin-model paper trader: perfect fills, no slippage,
// equity moves only by realized P&L.
type PaperExecutor struct {
	mu        sync.Mutex
	equity    float64
	positions map[string]float64 // signed qty
	avgPrice  map[string]float64
	stops     map[string]float64
}

// NewPaperExecutor starts a paper account with the given equity.
func NewPaperExecutor(startEquity float64) *PaperExecutor {
	return &PaperExecutor{
		equity:    startEquity,
		positions: make(map[string]float64),
		avgPrice:  make(map[string]float64),
		stops:     make(map[string]float64),
	}
}

// Submit opens or extends a position at the order's reference price.
func (p *PaperExecutor) Submit(o types.Order) error {
	if o.Qty <= 0 || o.Price <= 0 {
		return errors.New("paper executor: invalid order")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	signed := o.Qty
	if o.Side == types.Short {
		signed = -o.Qty
	}
	prevQty := p.positions[o.Symbol]
	newQty := prevQty + signed
	if prevQty != 0 && math.Signbit(prevQty) != math.Signbit(newQty) && newQty != 0 {
		return errors.New("paper executor: flip not supported, close first")
	}
	// Volume-weighted average entry.
	prevAbs, addAbs := math.Abs(prevQty), math.Abs(signed)
	if prevAbs+addAbs > 0 {
		p.avgPrice[o.Symbol] = (p.avgPrice[o.Symbol]*prevAbs + o.Price*addAbs) / (prevAbs + addAbs)
	}
	p.positions[o.Symbol] = newQty
	return nil
}

// ClosePosition realizes P&L on the closed fraction.
func (p *PaperExecutor) ClosePosition(symbol string, fraction, price float64) error {
	if fraction <= 0 || fraction > 1 || price <= 0 {
		return errors.New("paper executor: invalid close")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	qty := p.positions[symbol]
	if qty == 0 {
		return errors.New("paper executor: no open position")
	}
	closed := qty * fraction
	p.equity += (price - p.avgPrice[symbol]) * closed
	remaining := qty - closed
	if math.Abs(remaining) < 1e-12 {
		remaining = 0
		delete(p.avgPrice, symbol)
		delete(p.stops, symbol)
	}
	p.positions[symbol] = remaining
	return nil
}

// ModifyStop records the protective stop level.
func (p *PaperExecutor) ModifyStop(symbol string, price float64) error {
	if price <= 0 {
		return errors.New("paper executor: invalid stop")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops[symbol] = price
	return nil
}

// Equity returns realized equity.
func (p *PaperExecutor) Equity() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.equity
}

// Position returns signed quantity and average entry price.
func (p *PaperExecutor) Position(symbol string) (float64, float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positions[symbol], p.avgPrice[symbol]
}

// Stop returns the recorded protective stop, 0 if none.
func (p *PaperExecutor) Stop(symbol string) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stops[symbol]
}
