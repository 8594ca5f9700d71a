package testutils

import (
	"sync"

	"github.com/juanjaure777-art/TRAD/types"
)

// StopChange records one protective-stop adjustment.
type StopChange struct {
	Symbol string
	Price  float64
}

// CloseCall records one ClosePosition invocation.
type CloseCall struct {
	Symbol   string
	Fraction float64
	Price    float64
}

// MockExecutor implements the Executor interface in-memory and records
// every call for assertions. Any of the Fail* hooks forces the next
// matching call to return that error.
type MockExecutor struct {
	mu sync.Mutex

	EquityValue float64

	Orders []types.Order
	Closes []CloseCall
	Stops  []StopChange

	FailSubmit error
	FailClose  error
	FailStop   error

	positions map[string]float64
	avgPrices map[string]float64
}

// NewMockExecutor returns a mock with the given account equity.
func NewMockExecutor(equity float64) *MockExecutor {
	return &MockExecutor{
		EquityValue: equity,
		positions:   make(map[string]float64),
		avgPrices:   make(map[string]float64),
	}
}

func (m *MockExecutor) Submit(o types.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSubmit != nil {
		return m.FailSubmit
	}
	m.Orders = append(m.Orders, o)
	signed := o.Qty
	if o.Side == types.Short {
		signed = -o.Qty
	}
	m.positions[o.Symbol] += signed
	m.avgPrices[o.Symbol] = o.Price
	return nil
}

func (m *MockExecutor) ClosePosition(symbol string, fraction, price float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailClose != nil {
		return m.FailClose
	}
	m.Closes = append(m.Closes, CloseCall{Symbol: symbol, Fraction: fraction, Price: price})
	m.positions[symbol] -= m.positions[symbol] * fraction
	return nil
}

func (m *MockExecutor) ModifyStop(symbol string, price float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailStop != nil {
		return m.FailStop
	}
	m.Stops = append(m.Stops, StopChange{Symbol: symbol, Price: price})
	return nil
}

func (m *MockExecutor) Equity() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.EquityValue
}

func (m *MockExecutor) Position(symbol string) (float64, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.positions[symbol], m.avgPrices[symbol]
}

// SetPosition seeds a position directly, for reconciliation tests.
func (m *MockExecutor) SetPosition(symbol string, qty, avgPrice float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[symbol] = qty
	m.avgPrices[symbol] = avgPrice
}

// LastStop returns the most recent stop adjustment, zero value if none.
func (m *MockExecutor) LastStop() StopChange {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Stops) == 0 {
		return StopChange{}
	}
	return m.Stops[len(m.Stops)-1]
}
