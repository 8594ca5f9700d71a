package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/juanjaure777-art/TRAD/position"
	"github.com/juanjaure777-art/TRAD/risk"
	"github.com/juanjaure777-art/TRAD/types"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "state.json"))
}

func TestLoadFreshStart(t *testing.T) {
	s := tempStore(t)
	_, found, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if found {
		t.Fatal("found state before any save")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := tempStore(t)
	sig := types.Signal{Side: types.Long, EntryPrice: 50000, StopLoss: 49500, TakeProfit1: 51000}
	pos := position.New("BTCUSDT", sig, 0.5, time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC))
	pos.Open()
	pos.TP1Closed = true
	pos.TrailingActive = true
	pos.TrailingStop = 50235
	pos.State = position.PartialAfterTP1

	snap := Snapshot{
		Position: pos,
		Risk:     risk.State{DailyPnLPct: -1.8, TradesToday: 2, OpenPositions: 1, Day: "2025-06-02"},
	}
	if err := s.Save(snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, found, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !found {
		t.Fatal("state not found after save")
	}
	if got.Position == nil || got.Position.ID != pos.ID {
		t.Fatalf("position lost: %+v", got.Position)
	}
	if got.Position.State != position.PartialAfterTP1 || !got.Position.TrailingActive {
		t.Fatalf("lifecycle flags lost: %+v", got.Position)
	}
	if got.Risk.DailyPnLPct != -1.8 || got.Risk.TradesToday != 2 {
		t.Fatalf("risk state lost: %+v", got.Risk)
	}
	if got.UpdatedAt.IsZero() {
		t.Fatal("updated_at not stamped")
	}
}

func TestLoadCorruptedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, _, err := New(path).Load()
	if !errors.Is(err, types.ErrStateCorrupted) {
		t.Fatalf("err = %v, want ErrStateCorrupted", err)
	}
}

func TestClear(t *testing.T) {
	s := tempStore(t)
	if err := s.Save(Snapshot{}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, found, _ := s.Load(); found {
		t.Fatal("state survives clear")
	}
	// Clearing again is a no-op.
	if err := s.Clear(); err != nil {
		t.Fatalf("second clear: %v", err)
	}
}
