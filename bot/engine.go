// Package bot sequences one polling cycle: fetch candles, run the
// trend/zones/void gate, generate a proposal, pass it through the approval
// gate and the risk manager, place the entry, and while a position is open
// drive its exit state machine. Cycles are strictly sequential and every
// state mutation is written through to the state file.
package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/juanjaure777-art/TRAD/config"
	"github.com/juanjaure777-art/TRAD/executor"
	"github.com/juanjaure777-art/TRAD/gate"
	"github.com/juanjaure777-art/TRAD/indicator"
	"github.com/juanjaure777-art/TRAD/logger"
	"github.com/juanjaure777-art/TRAD/metrics"
	"github.com/juanjaure777-art/TRAD/position"
	"github.com/juanjaure777-art/TRAD/risk"
	"github.com/juanjaure777-art/TRAD/session"
	"github.com/juanjaure777-art/TRAD/store"
	"github.com/juanjaure777-art/TRAD/types"
	"github.com/juanjaure777-art/TRAD/validate"
)

// MarketData supplies OHLCV history per timeframe.
type MarketData interface {
	Klines(ctx context.Context, symbol, interval string, limit int) (types.Series, error)
}

// Approver is the qualitative entry gate.
type Approver interface {
	Decide(ctx context.Context, sig types.Signal, mc gate.MarketContext) gate.Decision
}

// SignalSource produces directional proposals.
type SignalSource interface {
	Generate(entry, confirm types.Series) (types.Signal, bool, error)
}

// Validator is the trend/zones/void pre-entry gate.
type Validator interface {
	All(price float64, side types.Side, highs, lows []float64) (validate.Result, error)
}

// Engine owns the cycle loop and the single position.
type Engine struct {
	cfg   *config.Config
	log   logger.Logger
	exec  executor.Executor
	data  MarketData
	gen   SignalSource
	gate  Approver
	val   Validator
	risk  *risk.Manager
	store *store.Store
	cal   *session.Calendar // nil when sessions are not enforced
	now   func() time.Time

	cycle          uint64
	pos            *position.Position
	lifecycle      *position.Lifecycle
	reconcileFails int
	halted         bool
	haltReason     string
}

// New wires an engine. A nil validator falls back to the standard
// trend/zones/void gate; a nil now falls back to the wall clock.
func New(cfg *config.Config, log logger.Logger, exec executor.Executor, data MarketData,
	gen SignalSource, approver Approver, val Validator, rm *risk.Manager, st *store.Store,
	now func() time.Time) *Engine {

	if now == nil {
		now = time.Now
	}
	if val == nil {
		val = validate.New(cfg.Validate)
	}
	var cal *session.Calendar
	if cfg.Engine.EnforceSessions {
		cal = &session.Calendar{}
	}
	return &Engine{
		cfg:   cfg,
		log:   log,
		exec:  exec,
		data:  data,
		gen:   gen,
		gate:  approver,
		val:   val,
		risk:  rm,
		store: st,
		cal:   cal,
		now:   now,
	}
}

// Halted reports whether trading is suspended pending acknowledgment.
func (e *Engine) Halted() (bool, string) { return e.halted, e.haltReason }

// Acknowledge clears an emergency halt after manual intervention.
func (e *Engine) Acknowledge() {
	e.halted = false
	e.haltReason = ""
	e.reconcileFails = 0
	e.persist()
	e.log.Warn("halt_acknowledged")
}

// Position exposes the open position for inspection; nil when flat.
func (e *Engine) Position() *position.Position { return e.pos }

// Recover reconciles persisted state against the exchange at startup. A
// persisted open position confirmed by the venue is adopted; one the venue
// does not know is a reconciliation failure; a venue position the state
// file does not know is an extra and is closed on the spot. After the
// configured number of consecutive failures everything is market-closed
// and trading halts.
func (e *Engine) Recover(ctx context.Context) error {
	snap, found, err := e.store.Load()
	if err != nil {
		return fmt.Errorf("bot.Recover: %w", err)
	}
	if !found {
		e.log.Info("recovery_fresh_start")
		e.reconcileExtra()
		e.persist()
		return nil
	}

	e.risk.Restore(snap.Risk)
	e.reconcileFails = snap.ReconcileFailures

	if snap.Position == nil || !snap.Position.IsOpen() {
		e.log.Info("recovery_no_open_position")
		e.reconcileExtra()
		e.persist()
		return nil
	}

	venueQty, _ := e.exec.Position(snap.Position.Symbol)
	if venueQty != 0 {
		e.pos = snap.Position
		e.lifecycle = position.NewLifecycle(e.cfg.Exit, e.exec, e.log, e.cal, e.now)
		e.reconcileFails = 0
		e.persist()
		e.log.Info("recovery_position_recovered",
			logger.String("position", e.pos.ID),
			logger.String("side", string(e.pos.Side)),
			logger.Float64("entry", e.pos.EntryPrice))
		return nil
	}

	// Venue says flat but state says open: lost.
	e.reconcileFails++
	e.log.Error("recovery_position_lost",
		logger.String("position", snap.Position.ID),
		logger.Int("consecutive_failures", e.reconcileFails))
	e.pos = nil

	if e.reconcileFails >= e.cfg.Engine.MaxReconcileAttempts {
		e.emergencyClose("reconciliation failed repeatedly")
	}
	e.persist()
	return nil
}

// reconcileExtra covers the third reconciliation outcome: local state says
// flat but the venue holds a position. An unknown exposure is never adopted
// and never left unmanaged — it is market-closed immediately, and trading
// halts if the close fails.
func (e *Engine) reconcileExtra() {
	symbol := e.cfg.Engine.Symbol
	qty, avg := e.exec.Position(symbol)
	if qty == 0 {
		return
	}
	e.log.Error("recovery_position_extra",
		logger.String("symbol", symbol),
		logger.Float64("qty", qty),
		logger.Float64("avg_price", avg))
	if err := e.exec.ClosePosition(symbol, 1.0, avg); err != nil {
		e.log.Error("recovery_extra_close_failed",
			logger.String("symbol", symbol), logger.Err(err))
		e.halted = true
		e.haltReason = "unknown exchange position could not be closed"
		return
	}
	metrics.OrdersSubmitted.WithLabelValues("emergency_close").Inc()
}

// emergencyClose market-closes anything still open and halts trading until
// an operator acknowledges.
func (e *Engine) emergencyClose(reason string) {
	symbol := e.cfg.Engine.Symbol
	if qty, avg := e.exec.Position(symbol); qty != 0 {
		if err := e.exec.ClosePosition(symbol, 1.0, avg); err != nil {
			e.log.Error("emergency_close_failed",
				logger.String("symbol", symbol), logger.Err(err))
		} else {
			metrics.OrdersSubmitted.WithLabelValues("emergency_close").Inc()
		}
	}
	e.pos = nil
	e.lifecycle = nil
	e.halted = true
	e.haltReason = reason
	e.log.Error("emergency_closure",
		logger.String("reason", reason),
		logger.Bool("trading_halted", true))
}

// Run executes cycles until the context is cancelled. Shutdown leaves any
// open position on the exchange; the next startup reconciles it.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Engine.Interval())
	defer ticker.Stop()

	e.Cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			e.log.Info("engine_stopped",
				logger.Bool("position_open", e.pos != nil && e.pos.IsOpen()))
			return
		case <-ticker.C:
			e.Cycle(ctx)
		}
	}
}

// Cycle runs one fetch-analyze-act pass. Every error is contained here:
// the loop always proceeds to the next cycle.
func (e *Engine) Cycle(ctx context.Context) {
	e.cycle++
	metrics.CyclesTotal.Inc()

	defer func() {
		if r := recover(); r != nil {
			metrics.CycleErrors.WithLabelValues("panic").Inc()
			e.log.Error("cycle_panic",
				logger.Int64("cycle", int64(e.cycle)),
				logger.String("panic", fmt.Sprint(r)))
		}
	}()

	if e.halted {
		e.log.Warn("cycle_skipped_halted",
			logger.Int64("cycle", int64(e.cycle)),
			logger.String("reason", e.haltReason))
		return
	}

	entry, err := e.data.Klines(ctx, e.cfg.Engine.Symbol, e.cfg.Engine.Timeframe, e.cfg.Engine.CandleLimit)
	if err != nil {
		metrics.CycleErrors.WithLabelValues("fetch").Inc()
		e.log.Warn("fetch_failed",
			logger.Int64("cycle", int64(e.cycle)), logger.Err(err))
		return
	}
	if entry.Len() == 0 {
		metrics.CycleErrors.WithLabelValues("fetch").Inc()
		e.log.Warn("fetch_empty", logger.Int64("cycle", int64(e.cycle)))
		return
	}

	metrics.EquityGauge.Set(e.exec.Equity())

	if e.pos != nil && e.pos.IsOpen() {
		e.managePosition(entry)
		return
	}
	e.tryEnter(ctx, entry)
}

// managePosition runs the exit state machine for the open position.
func (e *Engine) managePosition(entry types.Series) {
	res, err := e.lifecycle.Evaluate(e.pos, entry.Last())
	if err != nil {
		metrics.CycleErrors.WithLabelValues("lifecycle").Inc()
		e.log.Error("lifecycle_error",
			logger.Int64("cycle", int64(e.cycle)),
			logger.String("position", e.pos.ID),
			logger.Err(err))
		return
	}
	switch {
	case res.Exited:
		e.risk.RegisterClose(res.RealizedPnLPct)
		e.log.Info("trade_closed",
			logger.Int64("cycle", int64(e.cycle)),
			logger.String("position", e.pos.ID),
			logger.String("exit_type", string(res.ExitType)),
			logger.Float64("pnl_pct", res.RealizedPnLPct),
			logger.Int64("duration_s", int64(e.pos.Duration(e.now())/time.Second)))
		e.pos = nil
		e.lifecycle = nil
		e.persist()
	case res.PartialTP1:
		e.persist()
	case res.Skipped:
		metrics.CycleErrors.WithLabelValues("data_quality").Inc()
	}
}

// tryEnter runs the ordered approval chain and opens a position when every
// link agrees.
func (e *Engine) tryEnter(ctx context.Context, entry types.Series) {
	if e.cal != nil && e.cal.OffHours(e.now()) {
		return
	}

	confirm := types.Series{}
	if tf := e.cfg.Engine.ConfirmTimeframe; tf != "" {
		c, err := e.data.Klines(ctx, e.cfg.Engine.Symbol, tf, e.cfg.Engine.CandleLimit)
		if err != nil {
			// The higher timeframe is a bonus, not a requirement.
			e.log.Warn("confirm_fetch_failed",
				logger.Int64("cycle", int64(e.cycle)), logger.Err(err))
		} else {
			confirm = c
		}
	}

	sig, ok, err := e.gen.Generate(entry, confirm)
	if err != nil {
		metrics.CycleErrors.WithLabelValues("signal").Inc()
		e.log.Warn("signal_error",
			logger.Int64("cycle", int64(e.cycle)), logger.Err(err))
		return
	}
	if !ok {
		return
	}

	tzv, err := e.val.All(sig.EntryPrice, sig.Side, entry.Highs, entry.Lows)
	if err != nil {
		metrics.CycleErrors.WithLabelValues("validate").Inc()
		e.log.Warn("validation_error",
			logger.Int64("cycle", int64(e.cycle)), logger.Err(err))
		return
	}
	e.log.Info("validation_result",
		logger.Int64("cycle", int64(e.cycle)),
		logger.Bool("passed", tzv.AllPassed),
		logger.String("detail", tzv.Reason()))
	if !tzv.AllPassed {
		return
	}

	decision := e.gate.Decide(ctx, sig, e.marketContext(entry, sig))
	if !decision.Approved {
		e.log.Info("entry_rejected_by_gate",
			logger.Int64("cycle", int64(e.cycle)),
			logger.String("reason", decision.Reason),
			logger.Bool("service_failed", decision.ServiceFailed))
		return
	}

	if ok, reason := e.risk.CanOpen(); !ok {
		e.log.Info("entry_blocked_by_risk",
			logger.Int64("cycle", int64(e.cycle)),
			logger.String("reason", reason))
		return
	}

	qty := risk.CalcQty(e.exec.Equity(), e.cfg.Risk.MaxRiskPerTrade,
		e.cfg.Exit.StopLossPct, sig.EntryPrice, e.cfg.Risk)
	if qty <= 0 {
		e.log.Warn("entry_size_zero",
			logger.Int64("cycle", int64(e.cycle)),
			logger.Float64("equity", e.exec.Equity()))
		return
	}

	pos := position.New(e.cfg.Engine.Symbol, sig, qty, e.now())
	e.pos = pos
	e.persist() // ENTRY_PENDING on disk before the order goes out

	order := types.Order{
		Symbol:  pos.Symbol,
		Side:    pos.Side,
		Qty:     qty,
		Price:   sig.EntryPrice,
		Comment: sig.Rationale,
	}
	if err := e.exec.Submit(order); err != nil {
		metrics.CycleErrors.WithLabelValues("executor").Inc()
		e.log.Error("entry_order_failed",
			logger.Int64("cycle", int64(e.cycle)), logger.Err(err))
		e.pos = nil
		e.persist()
		return
	}

	pos.Open()
	e.risk.RegisterEntry()
	e.lifecycle = position.NewLifecycle(e.cfg.Exit, e.exec, e.log, e.cal, e.now)
	e.persist()
	metrics.OrdersSubmitted.WithLabelValues("entry").Inc()
	e.log.Info("entry_executed",
		logger.Int64("cycle", int64(e.cycle)),
		logger.String("position", pos.ID),
		logger.String("side", string(pos.Side)),
		logger.Float64("entry", pos.EntryPrice),
		logger.Float64("qty", qty),
		logger.Float64("stop_loss", pos.StopLoss),
		logger.Float64("take_profit_1", pos.TakeProfit1),
		logger.Float64("confidence", sig.Confidence))
}

// marketContext assembles the qualitative descriptors fed to the gate.
func (e *Engine) marketContext(entry types.Series, sig types.Signal) gate.MarketContext {
	mc := gate.MarketContext{OpenPositions: e.risk.Snapshot().OpenPositions}

	if vol, err := indicator.Volatility(entry.Closes, 20); err == nil {
		switch {
		case vol < 1:
			mc.Volatility = fmt.Sprintf("low (%.2f%%)", vol)
		case vol <= 2.5:
			mc.Volatility = fmt.Sprintf("moderate (%.2f%%)", vol)
		default:
			mc.Volatility = fmt.Sprintf("high (%.2f%%)", vol)
		}
	}

	if sig.EMAFast > sig.EMASlow {
		mc.Momentum = "bullish"
	} else {
		mc.Momentum = "bearish"
	}
	if e.cal != nil && e.cal.OpeningHour(e.now()) {
		mc.Momentum += ", session opening hour"
	}

	total := 1
	if e.cfg.Engine.ConfirmTimeframe != "" {
		total = 2
	}
	mc.AlignmentScore = float64(sig.TimeframeConfirms) / float64(total) * 100
	return mc
}

// persist writes the durable state through to the state file.
func (e *Engine) persist() {
	snap := store.Snapshot{
		Risk:              e.risk.Snapshot(),
		ReconcileFailures: e.reconcileFails,
	}
	if e.pos != nil {
		snap.Position = e.pos
	}
	if err := e.store.Save(snap); err != nil {
		metrics.CycleErrors.WithLabelValues("store").Inc()
		e.log.Error("state_persist_failed", logger.Err(err))
	}
}
