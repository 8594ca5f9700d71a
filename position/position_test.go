package position

import (
	"testing"
	"time"

	"github.com/juanjaure777-art/TRAD/types"
)

func TestNewPositionPending(t *testing.T) {
	sig := types.Signal{Side: types.Long, EntryPrice: 100, StopLoss: 98, TakeProfit1: 104}
	pos := New("BTCUSDT", sig, 2.5, time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC))
	if pos.ID == "" {
		t.Fatal("missing id")
	}
	if pos.State != EntryPending {
		t.Fatalf("state = %v, want ENTRY_PENDING", pos.State)
	}
	if pos.RemainingQty != pos.Quantity {
		t.Fatal("remaining != original quantity at creation")
	}
	if pos.IsOpen() {
		t.Fatal("pending position reported open")
	}
	pos.Open()
	if !pos.IsOpen() || pos.State != OpenFull {
		t.Fatalf("open failed: %+v", pos)
	}
}

func TestPnLPctSigned(t *testing.T) {
	long := &Position{Side: types.Long, EntryPrice: 100}
	if got := long.PnLPct(103); got != 3 {
		t.Fatalf("long pnl = %v, want 3", got)
	}
	short := &Position{Side: types.Short, EntryPrice: 100}
	if got := short.PnLPct(103); got != -3 {
		t.Fatalf("short pnl = %v, want -3", got)
	}
	if got := short.PnLPct(95); got != 5 {
		t.Fatalf("short pnl = %v, want 5", got)
	}
}

func TestFavorableBySide(t *testing.T) {
	long := &Position{Side: types.Long}
	if !long.Favorable(101, 100) || long.Favorable(99, 100) {
		t.Fatal("long favorable comparison wrong")
	}
	short := &Position{Side: types.Short}
	if !short.Favorable(99, 100) || short.Favorable(101, 100) {
		t.Fatal("short favorable comparison wrong")
	}
}
