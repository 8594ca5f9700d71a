package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/juanjaure777-art/TRAD/config"
	"github.com/juanjaure777-art/TRAD/logger"
	"github.com/juanjaure777-art/TRAD/metrics"
)

// CalcQty sizes a position so that a full stop-loss hit costs at most
// maxRisk of equity, then rounds down to the exchange's step size and
// precision. Returns 0 when the result would violate the minimum order size.
func CalcQty(equity, maxRisk, stopLossPct, price float64, cfg config.RiskConfig) float64 {
	riskAmt := equity * maxRisk
	slDist := price * stopLossPct
	if slDist <= 0 {
		return 0
	}
	qty := riskAmt / slDist

	if cfg.StepSize > 0 {
		qty = math.Floor(qty/cfg.StepSize) * cfg.StepSize
	}
	if cfg.QuantityPrecision >= 0 {
		p := math.Pow(10, float64(cfg.QuantityPrecision))
		qty = math.Floor(qty*p) / p
	}
	if qty < cfg.MinQty {
		return 0
	}
	return qty
}

// State is the persisted slice of the manager, written through after every
// mutation and reloaded at startup.
type State struct {
	DailyPnLPct   float64   `json:"daily_pnl_pct"`
	TradesToday   int       `json:"trades_today"`
	OpenPositions int       `json:"open_positions"`
	LastTradeTime time.Time `json:"last_trade_time"`
	Day           string    `json:"day"` // UTC date the counters belong to
}

// Manager enforces the account-level guardrails: concurrent-position cap,
// daily loss limit, per-trade cooldown and trades-per-day cap. It is
// independent of any single trade's quality — the last gate before an order.
type Manager struct {
	mu  sync.Mutex
	cfg config.RiskConfig
	log logger.Logger
	now func() time.Time

	state State
}

// NewManager builds a manager with a fresh daily window. now is injectable
// for tests; nil means time.Now.
func NewManager(cfg config.RiskConfig, log logger.Logger, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	m := &Manager{cfg: cfg, log: log, now: now}
	m.state.Day = day(now())
	return m
}

func day(t time.Time) string { return t.UTC().Format("2006-01-02") }

// Restore loads persisted state, sanitizing non-finite P&L figures and
// discarding counters that belong to a previous UTC day.
func (m *Manager) Restore(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	today := day(m.now())
	if s.Day != today {
		m.state = State{Day: today}
		metrics.DailyPnLPct.Set(0)
		return
	}
	s.DailyPnLPct = m.sanitize(s.DailyPnLPct)
	m.state = s
	metrics.DailyPnLPct.Set(s.DailyPnLPct)
}

// sanitize clamps non-finite or absurd P&L figures to safe values. A
// corrupted figure must never block (or unblock) trading on its own.
func (m *Manager) sanitize(pnl float64) float64 {
	switch {
	case math.IsNaN(pnl) || math.IsInf(pnl, 0):
		m.log.Warn("risk_pnl_sanitized",
			logger.Float64("raw", pnl),
			logger.String("action", "reset_to_zero"),
		)
		return 0
	case pnl < -100:
		m.log.Warn("risk_pnl_sanitized", logger.Float64("raw", pnl), logger.String("action", "clamp_low"))
		return -100
	case pnl > 1000:
		m.log.Warn("risk_pnl_sanitized", logger.Float64("raw", pnl), logger.String("action", "clamp_high"))
		return 1000
	}
	return pnl
}

// rollover resets the daily counters when the UTC day changes. Caller holds mu.
func (m *Manager) rollover() {
	today := day(m.now())
	if m.state.Day == today {
		return
	}
	open := m.state.OpenPositions // positions survive the day boundary
	last := m.state.LastTradeTime
	m.state = State{Day: today, OpenPositions: open, LastTradeTime: last}
	metrics.DailyPnLPct.Set(0)
	m.log.Info("risk_daily_reset", logger.String("day", today))
}

// CanOpen reports whether a new position may be opened, with a one-line
// reason when it may not. The loss-limit comparison is inclusive: touching
// the ceiling exactly blocks further entries.
func (m *Manager) CanOpen() (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover()

	if m.state.OpenPositions >= m.cfg.MaxOpenPositions {
		return false, fmt.Sprintf("MAX_POSITIONS (%d/%d)", m.state.OpenPositions, m.cfg.MaxOpenPositions)
	}
	if m.state.DailyPnLPct <= -m.cfg.DailyLossLimitPct {
		return false, fmt.Sprintf("DAILY_LOSS_LIMIT (%.2f%% <= -%.2f%%)", m.state.DailyPnLPct, m.cfg.DailyLossLimitPct)
	}
	if m.state.TradesToday >= m.cfg.MaxTradesPerDay {
		return false, fmt.Sprintf("MAX_TRADES_PER_DAY (%d)", m.cfg.MaxTradesPerDay)
	}
	if !m.state.LastTradeTime.IsZero() {
		if elapsed := m.now().Sub(m.state.LastTradeTime); elapsed < m.cfg.Cooldown() {
			return false, fmt.Sprintf("COOLDOWN (%.0fs < %.0fs)", elapsed.Seconds(), m.cfg.Cooldown().Seconds())
		}
	}
	return true, "RISK_CHECK_PASSED"
}

// RegisterEntry records a newly opened position.
func (m *Manager) RegisterEntry() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover()
	m.state.OpenPositions++
	m.state.TradesToday++
	m.state.LastTradeTime = m.now()
	metrics.PositionsOpen.Set(float64(m.state.OpenPositions))
}

// RegisterClose records a fully closed position and folds its realized P&L
// (percent of equity) into the daily figure.
func (m *Manager) RegisterClose(pnlPct float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover()
	if m.state.OpenPositions > 0 {
		m.state.OpenPositions--
	}
	m.state.DailyPnLPct = m.sanitize(m.state.DailyPnLPct + m.sanitize(pnlPct))
	metrics.PositionsOpen.Set(float64(m.state.OpenPositions))
	metrics.DailyPnLPct.Set(m.state.DailyPnLPct)
}

// Snapshot returns a copy of the current state for persistence.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
