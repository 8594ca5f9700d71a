// Package signal turns candle history into directional trade proposals. A
// proposal requires four things to line up: an RSI crossover back out of an
// extreme band, consecutive candles of the matching color closing beyond the
// prior local extreme, EMA ordering consistent with the direction, and
// whatever confirmation the higher timeframe adds on top.
//
// The oscillator condition is a lookback crossover, not an instantaneous
// extreme: entry fires when RSI was beyond the band last cycle and has
// crossed back toward neutral now. An instantaneous-extreme check is
// mutually exclusive with the candle-color confirmation (a falling RSI
// co-occurs with red candles, not overbought ones) and is deliberately not
// offered.
package signal

import (
	"fmt"

	"github.com/evdnx/goti"

	"github.com/juanjaure777-art/TRAD/config"
	"github.com/juanjaure777-art/TRAD/indicator"
	"github.com/juanjaure777-art/TRAD/logger"
	"github.com/juanjaure777-art/TRAD/types"
)

// localExtremeLookback is the number of bars before the confirmation run
// that define the prior local extreme the close must break.
const localExtremeLookback = 5

// Generator produces at most one proposal per cycle.
type Generator struct {
	cfg  config.SignalConfig
	exit config.ExitConfig
	log  logger.Logger

	suiteFactory func() (*goti.IndicatorSuite, error)
}

// NewGenerator wires the oscillator suite used for secondary confirmation.
func NewGenerator(cfg config.SignalConfig, exit config.ExitConfig, log logger.Logger) *Generator {
	return &Generator{
		cfg:  cfg,
		exit: exit,
		log:  log,
		suiteFactory: func() (*goti.IndicatorSuite, error) {
			ic := goti.DefaultConfig()
			ic.RSIOverbought = cfg.RSIOverbought
			ic.RSIOversold = cfg.RSIOversold
			return goti.NewIndicatorSuiteWithConfig(ic)
		},
	}
}

// Generate evaluates the entry timeframe, with the higher timeframe as a
// confirmation bonus. It returns (signal, true) on a proposal and
// (zero, false) when no entry condition is met; only malformed input (too
// little history) is an error.
func (g *Generator) Generate(entry, confirm types.Series) (types.Signal, bool, error) {
	n := entry.Len()
	need := g.cfg.RSIPeriod + g.cfg.ConfirmCandles + localExtremeLookback + 2
	if slow := g.cfg.EMASlowPeriod + 1; slow > need {
		need = slow
	}
	if n < need {
		return types.Signal{}, false, types.InsufficientDataError(n, need)
	}

	rsiNow, err := indicator.RSI(entry.Closes, g.cfg.RSIPeriod)
	if err != nil {
		return types.Signal{}, false, err
	}
	rsiPrev, err := indicator.RSI(entry.Closes[:n-1], g.cfg.RSIPeriod)
	if err != nil {
		return types.Signal{}, false, err
	}

	var side types.Side
	var depth float64
	switch {
	case rsiPrev > g.cfg.RSIOverbought && rsiNow <= g.cfg.RSIOverbought-g.cfg.RSIExitBuffer:
		side = types.Short
		depth = rsiPrev - g.cfg.RSIOverbought
	case rsiPrev < g.cfg.RSIOversold && rsiNow >= g.cfg.RSIOversold+g.cfg.RSIExitBuffer:
		side = types.Long
		depth = g.cfg.RSIOversold - rsiPrev
	default:
		return types.Signal{}, false, nil
	}

	streak := colorStreak(entry, side)
	if streak < g.cfg.ConfirmCandles {
		return types.Signal{}, false, nil
	}
	if !breaksLocalExtreme(entry, side, streak) {
		return types.Signal{}, false, nil
	}

	emaFast, err := indicator.EMA(entry.Closes, g.cfg.EMAFastPeriod)
	if err != nil {
		return types.Signal{}, false, err
	}
	emaSlow, err := indicator.EMA(entry.Closes, g.cfg.EMASlowPeriod)
	if err != nil {
		return types.Signal{}, false, err
	}
	if side == types.Long && emaFast < emaSlow {
		return types.Signal{}, false, nil
	}
	if side == types.Short && emaFast > emaSlow {
		return types.Signal{}, false, nil
	}

	confidence := 50.0
	if bonus := depth * 2; bonus > 25 {
		confidence += 25
	} else {
		confidence += bonus
	}
	if streak > g.cfg.ConfirmCandles {
		confidence += 10
	}
	if g.suiteConfirms(entry, side) {
		confidence += 10
	}

	confirms := 1
	if g.higherTimeframeConfirms(confirm, side) {
		confirms++
		confidence += 10
	}
	if confidence > 100 {
		confidence = 100
	}

	price := entry.Closes[n-1]
	sig := types.Signal{
		Side:              side,
		Confidence:        confidence,
		EntryPrice:        price,
		RSI:               rsiNow,
		EMAFast:           emaFast,
		EMASlow:           emaSlow,
		TimeframeConfirms: confirms,
		Rationale: fmt.Sprintf("RSI crossover %.1f->%.1f, %d confirming candles, %d timeframes",
			rsiPrev, rsiNow, streak, confirms),
	}
	if side == types.Long {
		sig.StopLoss = price * (1 - g.exit.StopLossPct)
		sig.TakeProfit1 = price * (1 + g.exit.TP1Pct)
		if g.exit.TP2Pct > 0 {
			sig.TakeProfit2 = price * (1 + g.exit.TP2Pct)
		}
	} else {
		sig.StopLoss = price * (1 + g.exit.StopLossPct)
		sig.TakeProfit1 = price * (1 - g.exit.TP1Pct)
		if g.exit.TP2Pct > 0 {
			sig.TakeProfit2 = price * (1 - g.exit.TP2Pct)
		}
	}
	return sig, true, nil
}

// colorStreak counts consecutive most-recent candles of the color matching
// the side (green for long, red for short).
func colorStreak(s types.Series, side types.Side) int {
	streak := 0
	for i := s.Len() - 1; i >= 0; i-- {
		green := s.Closes[i] > s.Opens[i]
		if (side == types.Long && !green) || (side == types.Short && green) {
			break
		}
		if s.Closes[i] == s.Opens[i] {
			break
		}
		streak++
	}
	return streak
}

// breaksLocalExtreme requires the latest close beyond the extreme of the
// bars immediately preceding the confirmation run.
func breaksLocalExtreme(s types.Series, side types.Side, streak int) bool {
	n := s.Len()
	end := n - streak
	start := end - localExtremeLookback
	if start < 0 {
		start = 0
	}
	if end <= start {
		return false
	}
	last := s.Closes[n-1]
	if side == types.Long {
		hi := s.Highs[start]
		for i := start + 1; i < end; i++ {
			if s.Highs[i] > hi {
				hi = s.Highs[i]
			}
		}
		return last > hi
	}
	lo := s.Lows[start]
	for i := start + 1; i < end; i++ {
		if s.Lows[i] < lo {
			lo = s.Lows[i]
		}
	}
	return last < lo
}

// suiteConfirms replays the series through the oscillator suite and checks
// its crossover view of the same setup. Any suite error just withholds the
// bonus.
func (g *Generator) suiteConfirms(s types.Series, side types.Side) bool {
	suite, err := g.suiteFactory()
	if err != nil {
		g.log.Warn("suite_build_error", logger.Err(err))
		return false
	}
	for i := 0; i < s.Len(); i++ {
		if err := suite.Add(s.Highs[i], s.Lows[i], s.Closes[i], s.Volumes[i]); err != nil {
			g.log.Warn("suite_add_error", logger.Err(err))
			return false
		}
	}
	if side == types.Long {
		ok, err := suite.GetRSI().IsBullishCrossover()
		return err == nil && ok
	}
	ok, err := suite.GetRSI().IsBearishCrossover()
	return err == nil && ok
}

// higherTimeframeConfirms checks whether the confirmation timeframe's RSI
// sits at (or has just left) the same extreme.
func (g *Generator) higherTimeframeConfirms(confirm types.Series, side types.Side) bool {
	if confirm.Len() < g.cfg.RSIPeriod+1 {
		return false
	}
	rsi, err := indicator.RSI(confirm.Closes, g.cfg.RSIPeriod)
	if err != nil {
		return false
	}
	if side == types.Long {
		return rsi <= g.cfg.RSIOversold+g.cfg.RSIExitBuffer
	}
	return rsi >= g.cfg.RSIOverbought-g.cfg.RSIExitBuffer
}
