package bot

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/juanjaure777-art/TRAD/config"
	"github.com/juanjaure777-art/TRAD/gate"
	"github.com/juanjaure777-art/TRAD/position"
	"github.com/juanjaure777-art/TRAD/risk"
	"github.com/juanjaure777-art/TRAD/store"
	"github.com/juanjaure777-art/TRAD/testutils"
	"github.com/juanjaure777-art/TRAD/types"
	"github.com/juanjaure777-art/TRAD/validate"
)

type stubData struct {
	series types.Series
	err    error
}

func (s *stubData) Klines(_ context.Context, _, _ string, _ int) (types.Series, error) {
	return s.series, s.err
}

type stubGen struct {
	sig types.Signal
	ok  bool
	err error
}

func (s *stubGen) Generate(_, _ types.Series) (types.Signal, bool, error) {
	return s.sig, s.ok, s.err
}

type stubApprover struct {
	decision gate.Decision
	calls    int
}

func (s *stubApprover) Decide(_ context.Context, _ types.Signal, _ gate.MarketContext) gate.Decision {
	s.calls++
	return s.decision
}

type stubValidator struct {
	result validate.Result
	err    error
}

func (s *stubValidator) All(_ float64, _ types.Side, _, _ []float64) (validate.Result, error) {
	return s.result, s.err
}

func engineConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Engine: config.EngineConfig{
			Symbol:               "BTCUSDT",
			Timeframe:            "4h",
			IntervalSeconds:      120,
			CandleLimit:          100,
			StateFile:            filepath.Join(t.TempDir(), "state.json"),
			MaxReconcileAttempts: 3,
		},
		Exit: config.ExitConfig{
			StopLossPct:           0.02,
			TP1Pct:                0.04,
			TrailingPct:           0.015,
			BreakevenBufferPct:    0.0005,
			PartialFraction:       0.5,
			DeadWindow:            15,
			DeadPriceThresholdPct: 0.5,
			DeadVolumeRatio:       0.5,
			DeadCounterMax:        3,
			DeadCounterHard:       5,
		},
		Risk: config.RiskConfig{
			MaxRiskPerTrade:   0.015,
			MaxOpenPositions:  1,
			DailyLossLimitPct: 5,
			MaxTradesPerDay:   10,
			QuantityPrecision: 3,
			MinQty:            0.001,
			StepSize:          0.001,
		},
	}
}

func bar(close float64) types.Series {
	return types.Series{
		Timeframe: "4h",
		Opens:     []float64{close},
		Highs:     []float64{close * 1.01},
		Lows:      []float64{close * 0.99},
		Closes:    []float64{close},
		Volumes:   []float64{100},
	}
}

func longSignal() types.Signal {
	return types.Signal{
		Side:              types.Long,
		Confidence:        80,
		EntryPrice:        100,
		StopLoss:          98,
		TakeProfit1:       104,
		EMAFast:           100.5,
		EMASlow:           99.5,
		TimeframeConfirms: 1,
	}
}

func passingTZV() validate.Result {
	return validate.Result{AllPassed: true}
}

type harness struct {
	engine   *Engine
	exec     *testutils.MockExecutor
	data     *stubData
	gen      *stubGen
	approver *stubApprover
	val      *stubValidator
	log      *testutils.MockLogger
	risk     *risk.Manager
	store    *store.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := engineConfig(t)
	log := testutils.NewMockLogger()
	clock := testutils.NewClock(time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC))
	exec := testutils.NewMockExecutor(10000)
	rm := risk.NewManager(cfg.Risk, log, clock.Now)
	st := store.New(cfg.Engine.StateFile)
	data := &stubData{series: bar(100)}
	gen := &stubGen{sig: longSignal(), ok: true}
	approver := &stubApprover{decision: gate.Decision{Approved: true, Confidence: 0.8, Reason: "ok"}}
	val := &stubValidator{result: passingTZV()}

	eng := New(cfg, log, exec, data, gen, approver, val, rm, st, clock.Now)
	return &harness{
		engine: eng, exec: exec, data: data, gen: gen,
		approver: approver, val: val, log: log, risk: rm, store: st,
	}
}

func TestEntryFlow(t *testing.T) {
	h := newHarness(t)
	h.engine.Cycle(context.Background())

	pos := h.engine.Position()
	if pos == nil || !pos.IsOpen() {
		t.Fatal("no position after full approval chain")
	}
	if pos.Side != types.Long || pos.EntryPrice != 100 {
		t.Fatalf("position = %+v", pos)
	}
	if len(h.exec.Orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(h.exec.Orders))
	}
	// Sized by risk: 1.5% of 10000 over a 2% stop distance.
	if got := h.exec.Orders[0].Qty; got != 75 {
		t.Fatalf("qty = %v, want 75", got)
	}
	if h.risk.Snapshot().OpenPositions != 1 {
		t.Fatal("risk manager missed the entry")
	}

	snap, found, err := h.store.Load()
	if err != nil || !found {
		t.Fatalf("state not persisted: found=%v err=%v", found, err)
	}
	if snap.Position == nil || snap.Position.ID != pos.ID {
		t.Fatal("open position not written through")
	}
}

func TestGateRejectionBlocksEntry(t *testing.T) {
	h := newHarness(t)
	h.approver.decision = gate.Decision{Approved: false, Reason: "alignment too low"}
	h.engine.Cycle(context.Background())

	if h.engine.Position() != nil {
		t.Fatal("position opened past a gate rejection")
	}
	if len(h.exec.Orders) != 0 {
		t.Fatal("order submitted past a gate rejection")
	}
}

func TestValidationVetoBlocksBeforeGate(t *testing.T) {
	h := newHarness(t)
	h.val.result = validate.Result{AllPassed: false, Failed: []string{"void"}}
	h.engine.Cycle(context.Background())

	if h.engine.Position() != nil {
		t.Fatal("position opened past a validation veto")
	}
	if h.approver.calls != 0 {
		t.Fatal("gate consulted despite validation veto")
	}
}

func TestRiskBlockEnforced(t *testing.T) {
	h := newHarness(t)
	h.risk.Restore(risk.State{DailyPnLPct: -5, Day: "2025-06-02"})
	h.engine.Cycle(context.Background())

	if h.engine.Position() != nil {
		t.Fatal("position opened at the daily loss limit")
	}
	if !h.log.Contains("entry_blocked_by_risk") {
		t.Fatal("risk block not logged")
	}
}

func TestNoSignalNoAction(t *testing.T) {
	h := newHarness(t)
	h.gen.ok = false
	h.engine.Cycle(context.Background())
	if h.engine.Position() != nil || len(h.exec.Orders) != 0 {
		t.Fatal("acted without a signal")
	}
}

func TestStopLossExitClearsState(t *testing.T) {
	h := newHarness(t)
	h.engine.Cycle(context.Background())
	if h.engine.Position() == nil {
		t.Fatal("entry failed")
	}

	// Next cycle: price through the stop.
	h.data.series = bar(97)
	h.engine.Cycle(context.Background())

	if h.engine.Position() != nil {
		t.Fatal("position survives stop-loss exit")
	}
	rs := h.risk.Snapshot()
	if rs.OpenPositions != 0 {
		t.Fatal("risk manager still counts the position")
	}
	if rs.DailyPnLPct >= 0 {
		t.Fatalf("daily pnl = %v, want negative after SL", rs.DailyPnLPct)
	}
	snap, _, err := h.store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if snap.Position != nil {
		t.Fatal("closed position still in state file")
	}
	if !h.log.Contains("trade_closed") {
		t.Fatal("close event missing")
	}
}

func TestOpenPositionSuppressesNewEntries(t *testing.T) {
	h := newHarness(t)
	h.engine.Cycle(context.Background())
	first := h.engine.Position()
	if first == nil {
		t.Fatal("entry failed")
	}

	// Neutral price: position stays open, no second entry.
	h.data.series = bar(101)
	h.engine.Cycle(context.Background())
	if h.engine.Position() != first {
		t.Fatal("position replaced while open")
	}
	if len(h.exec.Orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(h.exec.Orders))
	}
}

func TestFetchErrorSkipsCycle(t *testing.T) {
	h := newHarness(t)
	h.data.err = errors.New("exchange down")
	h.engine.Cycle(context.Background())
	if h.engine.Position() != nil {
		t.Fatal("position from a failed fetch")
	}
	if !h.log.Contains("fetch_failed") {
		t.Fatal("fetch failure not logged")
	}
}

func TestEntryOrderFailureRollsBack(t *testing.T) {
	h := newHarness(t)
	h.exec.FailSubmit = errors.New("order rejected")
	h.engine.Cycle(context.Background())

	if h.engine.Position() != nil {
		t.Fatal("position kept after order rejection")
	}
	if h.risk.Snapshot().OpenPositions != 0 {
		t.Fatal("risk manager counted a rejected entry")
	}
	snap, _, _ := h.store.Load()
	if snap.Position != nil {
		t.Fatal("rejected entry still in state file")
	}
}

func TestRecoverConfirmedPosition(t *testing.T) {
	h := newHarness(t)
	sig := longSignal()
	pos := position.New("BTCUSDT", sig, 1, time.Date(2025, 6, 2, 11, 0, 0, 0, time.UTC))
	pos.Open()
	if err := h.store.Save(store.Snapshot{Position: pos, Risk: risk.State{Day: "2025-06-02"}}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	h.exec.SetPosition("BTCUSDT", 1, 100)

	if err := h.engine.Recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}
	got := h.engine.Position()
	if got == nil || got.ID != pos.ID {
		t.Fatal("persisted position not recovered")
	}
	if halted, _ := h.engine.Halted(); halted {
		t.Fatal("halted after clean recovery")
	}

	// The recovered position keeps trading: a stop breach closes it.
	h.data.series = bar(97)
	h.engine.Cycle(context.Background())
	if h.engine.Position() != nil {
		t.Fatal("recovered position not managed")
	}
}

// Venue holds a position the state file knows nothing about: it is closed
// immediately and trading continues flat.
func TestRecoverClosesExtraVenuePosition(t *testing.T) {
	h := newHarness(t)
	h.exec.SetPosition("BTCUSDT", 2, 100)
	// No state file: the engine believes it is flat.

	if err := h.engine.Recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if !h.log.Contains("recovery_position_extra") {
		t.Fatal("extra position not reported")
	}
	if len(h.exec.Closes) != 1 || h.exec.Closes[0].Fraction != 1.0 {
		t.Fatalf("closes = %+v, want one full close", h.exec.Closes)
	}
	if h.engine.Position() != nil {
		t.Fatal("unknown venue position adopted")
	}
	if halted, _ := h.engine.Halted(); halted {
		t.Fatal("halted after a successful extra close")
	}
}

// Same scenario with a snapshot that records no open position: the venue
// check still runs and the extra is still closed.
func TestRecoverExtraAfterFlatSnapshot(t *testing.T) {
	h := newHarness(t)
	h.store.Save(store.Snapshot{Risk: risk.State{Day: "2025-06-02"}})
	h.exec.SetPosition("BTCUSDT", -1, 100)

	if err := h.engine.Recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if len(h.exec.Closes) != 1 {
		t.Fatalf("closes = %+v, want the short extra closed", h.exec.Closes)
	}
}

func TestRecoverExtraCloseFailureHalts(t *testing.T) {
	h := newHarness(t)
	h.exec.SetPosition("BTCUSDT", 2, 100)
	h.exec.FailClose = errors.New("venue rejected")

	if err := h.engine.Recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}
	halted, reason := h.engine.Halted()
	if !halted || reason == "" {
		t.Fatalf("halted = %v %q, want halt when the extra cannot be closed", halted, reason)
	}
}

func TestRecoverLostPositionCountsFailure(t *testing.T) {
	h := newHarness(t)
	pos := position.New("BTCUSDT", longSignal(), 1, time.Now())
	pos.Open()
	h.store.Save(store.Snapshot{Position: pos, Risk: risk.State{Day: "2025-06-02"}})
	// Venue reports flat.

	if err := h.engine.Recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if h.engine.Position() != nil {
		t.Fatal("lost position adopted")
	}
	if halted, _ := h.engine.Halted(); halted {
		t.Fatal("halted before reaching the failure limit")
	}
	snap, _, _ := h.store.Load()
	if snap.ReconcileFailures != 1 {
		t.Fatalf("failures = %d, want 1", snap.ReconcileFailures)
	}
}

func TestEmergencyCloseAfterRepeatedFailures(t *testing.T) {
	h := newHarness(t)
	pos := position.New("BTCUSDT", longSignal(), 1, time.Now())
	pos.Open()
	h.store.Save(store.Snapshot{
		Position:          pos,
		Risk:              risk.State{Day: "2025-06-02"},
		ReconcileFailures: 2, // third consecutive failure trips the limit
	})

	if err := h.engine.Recover(context.Background()); err != nil {
		t.Fatalf("recover: %v", err)
	}
	halted, reason := h.engine.Halted()
	if !halted {
		t.Fatal("no halt after repeated reconciliation failures")
	}
	if reason == "" {
		t.Fatal("halt reason empty")
	}
	if !h.log.Contains("emergency_closure") {
		t.Fatal("emergency closure not logged at distinct severity")
	}

	// Halted engine refuses to trade until acknowledged.
	h.engine.Cycle(context.Background())
	if h.engine.Position() != nil {
		t.Fatal("halted engine opened a position")
	}
	if !h.log.Contains("cycle_skipped_halted") {
		t.Fatal("halted cycle not logged")
	}

	h.engine.Acknowledge()
	if halted, _ := h.engine.Halted(); halted {
		t.Fatal("halt survives acknowledgment")
	}
	h.engine.Cycle(context.Background())
	if h.engine.Position() == nil {
		t.Fatal("trading did not resume after acknowledgment")
	}
}
