package position

import (
	"math"
	"time"

	"github.com/juanjaure777-art/TRAD/config"
	"github.com/juanjaure777-art/TRAD/executor"
	"github.com/juanjaure777-art/TRAD/logger"
	"github.com/juanjaure777-art/TRAD/metrics"
	"github.com/juanjaure777-art/TRAD/session"
	"github.com/juanjaure777-art/TRAD/types"
)

// Result reports what one lifecycle evaluation did.
type Result struct {
	// Skipped is set when the cycle's price input was unusable; the
	// position is untouched.
	Skipped bool

	Exited         bool
	ExitType       types.ExitType
	ExitPrice      float64
	ClosedFraction float64
	// PartialTP1 marks the pivotal transition: half closed, stop at
	// breakeven, trailing armed.
	PartialTP1     bool
	RealizedPnLPct float64

	// Warning carries the session-closing soft recommendation.
	Warning string
}

// Lifecycle drives the open position through its exit rules. Transitions
// are evaluated in strict priority order, first match wins:
//
//	stop-loss → dead-trade → TP1 → trailing → session warning → off-hours
//
// Loss protection outranks profit-taking, which outranks opportunistic
// holding. The off-hours close sits below the stop-loss on purpose: loss
// protection is never suppressed, even outside trading hours.
type Lifecycle struct {
	cfg      config.ExitConfig
	exec     executor.Executor
	log      logger.Logger
	sessions *session.Calendar // nil disables session rules
	dead     *deadWindow
	now      func() time.Time
}

// NewLifecycle builds a lifecycle for one position's lifetime. Pass a nil
// calendar to disable session-based exits.
func NewLifecycle(cfg config.ExitConfig, exec executor.Executor, log logger.Logger, cal *session.Calendar, now func() time.Time) *Lifecycle {
	if now == nil {
		now = time.Now
	}
	return &Lifecycle{
		cfg:      cfg,
		exec:     exec,
		log:      log,
		sessions: cal,
		dead:     newDeadWindow(cfg.DeadWindow),
		now:      now,
	}
}

// Evaluate runs one cycle of the exit state machine against the latest bar.
// Executor failures leave the position state unchanged; the caller retries
// next cycle.
func (l *Lifecycle) Evaluate(pos *Position, c types.Candle) (Result, error) {
	if !usablePrice(c.Close) {
		l.log.Warn("lifecycle_bad_price",
			logger.String("position", pos.ID),
			logger.Float64("close", c.Close))
		return Result{Skipped: true}, nil
	}
	if !pos.IsOpen() {
		return Result{}, nil
	}

	price := c.Close
	deadNow := observeDead(l.dead, pos, c, l.cfg)

	// 1. Stop-loss. Always first, regardless of state.
	if pos.stopHit(price, pos.StopLoss) {
		return l.closeRemaining(pos, price, types.ExitStopLoss)
	}

	// 2. Dead trade: stalled price and volume, time-based circuit breaker.
	if deadNow {
		return l.closeRemaining(pos, price, types.ExitDeadTrade)
	}

	// 3. Take-profit 1: the pivotal transition.
	if pos.State == OpenFull && pos.Favorable(price, pos.TakeProfit1) {
		return l.takeProfit1(pos, price)
	}

	// 4. Trailing stop: ratchet, then breach check.
	if pos.State == PartialAfterTP1 && pos.TrailingActive {
		l.ratchet(pos, price)
		if pos.stopHit(price, pos.TrailingStop) {
			return l.closeRemaining(pos, price, types.ExitTrailingStop)
		}
	}

	var res Result

	// 5. Session-closing soft warning: recommend, never force.
	if l.sessions != nil {
		if closing, name := l.sessions.ClosingSoon(l.now()); closing {
			res.Warning = "session closing soon: " + name
			l.log.Warn("session_closing_warning",
				logger.String("position", pos.ID),
				logger.String("session", name))
		}

		// 6. Off-hours hard close.
		if l.sessions.OffHours(l.now()) {
			return l.closeRemaining(pos, price, types.ExitOffHours)
		}
	}

	return res, nil
}

// takeProfit1 closes the partial fraction, moves the stop to breakeven and
// arms the trailing stop. From here the remainder is managed purely by the
// trailing mechanism; there is no second fixed tier.
func (l *Lifecycle) takeProfit1(pos *Position, price float64) (Result, error) {
	fraction := l.cfg.PartialFraction
	if err := l.exec.ClosePosition(pos.Symbol, fraction, price); err != nil {
		return Result{}, err
	}

	breakeven := pos.EntryPrice * (1 + l.cfg.BreakevenBufferPct)
	trailing := price * (1 - l.cfg.TrailingPct)
	if pos.Side == types.Short {
		breakeven = pos.EntryPrice * (1 - l.cfg.BreakevenBufferPct)
		trailing = price * (1 + l.cfg.TrailingPct)
	}
	// The venue stop moves first; the local level only follows a confirmed
	// modify. On rejection the original stop stays in force on both sides
	// and the trailing ratchet takes over pushing the venue stop.
	if err := l.exec.ModifyStop(pos.Symbol, breakeven); err != nil {
		l.log.Error("breakeven_stop_rejected",
			logger.String("position", pos.ID), logger.Err(err))
	} else {
		pos.StopLoss = breakeven
	}

	pos.TP1Closed = true
	pos.TrailingActive = true
	pos.TrailingStop = trailing
	pos.MaxFavorablePrice = price
	pos.RemainingQty = pos.RemainingQty * (1 - fraction)
	pos.State = PartialAfterTP1

	pnl := pos.PnLPct(price)
	metrics.ExitsTotal.WithLabelValues(string(types.ExitTakeProfit1)).Inc()
	l.log.Info("tp1_partial_close",
		logger.String("position", pos.ID),
		logger.Float64("price", price),
		logger.Float64("fraction", fraction),
		logger.Float64("breakeven", breakeven),
		logger.Float64("trailing_stop", trailing),
		logger.Float64("pnl_pct", pnl))

	return Result{
		ExitType:       types.ExitTakeProfit1,
		ExitPrice:      price,
		ClosedFraction: fraction,
		PartialTP1:     true,
		RealizedPnLPct: pnl,
	}, nil
}

// ratchet tightens the trailing stop when price makes a new favorable
// extreme. It never loosens. The venue modify precedes the local commit:
// a rejected modify leaves the extreme unrecorded, so the same price
// retries the ratchet on the next cycle.
func (l *Lifecycle) ratchet(pos *Position, price float64) {
	if !pos.Favorable(price, pos.MaxFavorablePrice) {
		return
	}

	candidate := price * (1 - l.cfg.TrailingPct)
	tighter := candidate > pos.TrailingStop
	if pos.Side == types.Short {
		candidate = price * (1 + l.cfg.TrailingPct)
		tighter = candidate < pos.TrailingStop
	}
	if !tighter {
		pos.MaxFavorablePrice = price
		return
	}
	if err := l.exec.ModifyStop(pos.Symbol, candidate); err != nil {
		l.log.Error("trailing_stop_rejected",
			logger.String("position", pos.ID), logger.Err(err))
		return
	}
	pos.MaxFavorablePrice = price
	pos.TrailingStop = candidate
}

// closeRemaining liquidates whatever is left and terminates the position.
func (l *Lifecycle) closeRemaining(pos *Position, price float64, exit types.ExitType) (Result, error) {
	if err := l.exec.ClosePosition(pos.Symbol, 1.0, price); err != nil {
		return Result{}, err
	}
	pos.State = Closed
	pos.RemainingQty = 0

	pnl := pos.PnLPct(price)
	metrics.ExitsTotal.WithLabelValues(string(exit)).Inc()
	l.log.Info("position_closed",
		logger.String("position", pos.ID),
		logger.String("exit_type", string(exit)),
		logger.Float64("price", price),
		logger.Float64("pnl_pct", pnl),
		logger.Int64("duration_s", int64(pos.Duration(l.now())/time.Second)))

	return Result{
		Exited:         true,
		ExitType:       exit,
		ExitPrice:      price,
		ClosedFraction: 1.0,
		RealizedPnLPct: pnl,
	}, nil
}

func usablePrice(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
