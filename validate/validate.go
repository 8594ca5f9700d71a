// Package validate implements the three-part pre-entry gate: trend
// structure, support/resistance zones, and the risk:reward void between the
// entry and the nearest obstacles. Any single failure vetoes the trade
// regardless of how strong the oscillator signal looks — context gates
// patterns, not the reverse.
package validate

import (
	"fmt"
	"math"
	"sort"

	"github.com/juanjaure777-art/TRAD/config"
	"github.com/juanjaure777-art/TRAD/types"
)

// TrendStrength classifies the directional structure of recent bars.
type TrendStrength string

const (
	ClearUp      TrendStrength = "CLEAR_UP"
	ModerateUp   TrendStrength = "MODERATE_UP"
	WeakUp       TrendStrength = "WEAK_UP"
	Unclear      TrendStrength = "UNCLEAR"
	WeakDown     TrendStrength = "WEAK_DOWN"
	ModerateDown TrendStrength = "MODERATE_DOWN"
	ClearDown    TrendStrength = "CLEAR_DOWN"
)

// ZoneClarity grades how well-defined the surrounding levels are.
type ZoneClarity string

const (
	VeryClear   ZoneClarity = "VERY_CLEAR"
	Clear       ZoneClarity = "CLEAR"
	ZoneUnclear ZoneClarity = "UNCLEAR"
	VeryUnclear ZoneClarity = "VERY_UNCLEAR"
)

// VoidRating grades the reward:risk ratio band.
type VoidRating string

const (
	Excellent  VoidRating = "EXCELLENT"
	Good       VoidRating = "GOOD"
	Acceptable VoidRating = "ACCEPTABLE"
	Marginal   VoidRating = "MARGINAL"
	Poor       VoidRating = "POOR"
)

// TrendResult is the outcome of the trend check.
type TrendResult struct {
	Passed     bool
	Strength   TrendStrength
	Confidence float64 // 0-1, dominant directional fraction
	HHPct      float64
	HLPct      float64
}

// ZoneResult is the outcome of the zone check.
type ZoneResult struct {
	Passed            bool
	Clarity           ZoneClarity
	SupportsCount     int
	ResistancesCount  int
	NearestSupport    float64
	NearestResistance float64
}

// VoidResult is the outcome of the risk:reward check.
type VoidResult struct {
	Passed bool
	Ratio  float64
	Rating VoidRating
	Risk   float64
	Reward float64
}

// Result bundles the three checks. AllPassed is their conjunction; Failed
// names the components that vetoed, for the one-line rejection log.
type Result struct {
	Trend     TrendResult
	Zones     ZoneResult
	Void      VoidResult
	AllPassed bool
	Failed    []string
}

// Reason renders the structured rejection for logging.
func (r Result) Reason() string {
	if r.AllPassed {
		return fmt.Sprintf("T:%s Z:%s V:%s(%.2f:1)", r.Trend.Strength, r.Zones.Clarity, r.Void.Rating, r.Void.Ratio)
	}
	return fmt.Sprintf("failed=%v T:%s Z:%s V:%.2f:1", r.Failed, r.Trend.Strength, r.Zones.Clarity, r.Void.Ratio)
}

// Validator evaluates the gate against injected thresholds.
type Validator struct {
	cfg config.ValidateConfig
}

// New returns a validator bound to the supplied thresholds.
func New(cfg config.ValidateConfig) *Validator {
	return &Validator{cfg: cfg}
}

// Trend counts the fraction of recent bars forming higher-highs/higher-lows
// versus lower-highs/lower-lows over the lookback window. UNCLEAR always
// fails; a directional reading passes once its fraction clears the
// confidence floor.
func (v *Validator) Trend(highs, lows []float64) (TrendResult, error) {
	lookback := v.cfg.TrendLookback
	if len(highs) < lookback || len(lows) < lookback {
		return TrendResult{}, types.InsufficientDataError(min(len(highs), len(lows)), lookback)
	}
	h := highs[len(highs)-lookback:]
	l := lows[len(lows)-lookback:]

	var hh, lh, hl, ll int
	for i := 1; i < len(h); i++ {
		if h[i] > h[i-1] {
			hh++
		} else {
			lh++
		}
		if l[i] > l[i-1] {
			hl++
		} else {
			ll++
		}
	}
	total := float64(lookback - 1)
	hhPct := float64(hh) / total
	hlPct := float64(hl) / total

	upFrac := (hhPct + hlPct) / 2
	downFrac := 1 - upFrac

	res := TrendResult{HHPct: hhPct * 100, HLPct: hlPct * 100}
	switch {
	case upFrac >= downFrac:
		res.Confidence = upFrac
		res.Strength = gradeUp(upFrac)
	default:
		res.Confidence = downFrac
		res.Strength = gradeDown(downFrac)
	}
	res.Passed = res.Strength != Unclear && res.Confidence >= v.cfg.ConfidenceFloor
	return res, nil
}

func gradeUp(frac float64) TrendStrength {
	switch {
	case frac >= 0.8:
		return ClearUp
	case frac >= 0.6:
		return ModerateUp
	case frac >= 0.55:
		return WeakUp
	default:
		return Unclear
	}
}

func gradeDown(frac float64) TrendStrength {
	switch {
	case frac >= 0.8:
		return ClearDown
	case frac >= 0.6:
		return ModerateDown
	case frac >= 0.55:
		return WeakDown
	default:
		return Unclear
	}
}

// fibonacci ratios of the active swing range: retracements inside it,
// extensions projected beyond it.
var (
	fibRetracements = []float64{0.382, 0.5, 0.618}
	fibExtensions   = []float64{1.25, 1.5, 1.618, 2.618}
)

// Levels merges historical swing pivots with Fibonacci retracement and
// extension levels computed from the lookback swing range, sorted ascending.
func (v *Validator) Levels(highs, lows []float64) ([]float64, error) {
	lookback := v.cfg.TrendLookback
	if len(highs) < lookback || len(lows) < lookback {
		return nil, types.InsufficientDataError(min(len(highs), len(lows)), lookback)
	}
	h := highs[len(highs)-lookback:]
	l := lows[len(lows)-lookback:]

	var levels []float64

	// Swing pivots: a bar whose high (low) exceeds (undercuts) both
	// neighbors on each side.
	for i := 2; i < len(h)-2; i++ {
		if h[i] > h[i-1] && h[i] > h[i-2] && h[i] > h[i+1] && h[i] > h[i+2] {
			levels = append(levels, h[i])
		}
		if l[i] < l[i-1] && l[i] < l[i-2] && l[i] < l[i+1] && l[i] < l[i+2] {
			levels = append(levels, l[i])
		}
	}

	swingHigh, swingLow := h[0], l[0]
	for i := range h {
		swingHigh = math.Max(swingHigh, h[i])
		swingLow = math.Min(swingLow, l[i])
	}
	span := swingHigh - swingLow
	if span > 0 {
		for _, r := range fibRetracements {
			levels = append(levels, swingLow+span*r)
		}
		for _, e := range fibExtensions {
			levels = append(levels, swingLow+span*e)
		}
		levels = append(levels, swingHigh, swingLow)
	}

	sort.Float64s(levels)
	return dedupe(levels), nil
}

// dedupe collapses levels closer than 0.05% of each other; a pivot that
// coincides with a Fibonacci level is one obstacle, not two.
func dedupe(sorted []float64) []float64 {
	out := sorted[:0]
	for _, lv := range sorted {
		if len(out) == 0 || lv-out[len(out)-1] > out[len(out)-1]*0.0005 {
			out = append(out, lv)
		}
	}
	return out
}

// Zones counts distinct levels within the proximity band above and below the
// current price and grades the clarity of the map.
func (v *Validator) Zones(price float64, highs, lows []float64) (ZoneResult, error) {
	if price <= 0 || math.IsNaN(price) {
		return ZoneResult{}, types.ErrDataQuality
	}
	levels, err := v.Levels(highs, lows)
	if err != nil {
		return ZoneResult{}, err
	}

	band := price * v.cfg.ZoneProximityPct / 100
	res := ZoneResult{}
	for _, lv := range levels {
		switch {
		case lv < price && price-lv <= band:
			res.SupportsCount++
			res.NearestSupport = lv // ascending order: last one below is nearest
		case lv > price && lv-price <= band:
			res.ResistancesCount++
			if res.NearestResistance == 0 {
				res.NearestResistance = lv
			}
		}
	}

	switch {
	case res.SupportsCount >= 3 && res.ResistancesCount >= 3:
		res.Clarity = VeryClear
	case res.SupportsCount >= v.cfg.MinZoneLevels && res.ResistancesCount >= v.cfg.MinZoneLevels:
		res.Clarity = Clear
	case res.SupportsCount > 0 || res.ResistancesCount > 0:
		res.Clarity = ZoneUnclear
	default:
		res.Clarity = VeryUnclear
	}
	res.Passed = res.Clarity == VeryClear || res.Clarity == Clear
	return res, nil
}

// Void measures risk (distance to the stop-side obstacle) against reward
// (distance to the first opposite obstacle). The 2:1 floor is absolute.
func (v *Validator) Void(entry float64, side types.Side, nearestResistance, nearestSupport float64) VoidResult {
	res := VoidResult{Rating: Poor}
	if nearestSupport <= 0 || nearestResistance <= 0 || !(nearestSupport < entry && entry < nearestResistance) {
		// Entry outside its own support/resistance bracket: no measurable void.
		return res
	}

	up := nearestResistance - entry
	down := entry - nearestSupport
	if side == types.Long {
		res.Risk, res.Reward = down, up
	} else {
		res.Risk, res.Reward = up, down
	}
	if res.Risk > 0 {
		res.Ratio = res.Reward / res.Risk
	}

	switch {
	case res.Ratio > 3.0:
		res.Rating = Excellent
	case res.Ratio > 2.5:
		res.Rating = Good
	case res.Ratio >= 2.0:
		res.Rating = Acceptable
	case res.Ratio > 1.5:
		res.Rating = Marginal
	default:
		res.Rating = Poor
	}
	res.Passed = res.Ratio >= v.cfg.MinRiskReward
	return res
}

// All runs trend → zones → void and ANDs the three. A short-circuit on the
// first failure would hide the later components from the rejection log, so
// all three are evaluated and reported.
func (v *Validator) All(price float64, side types.Side, highs, lows []float64) (Result, error) {
	trend, err := v.Trend(highs, lows)
	if err != nil {
		return Result{}, err
	}
	zones, err := v.Zones(price, highs, lows)
	if err != nil {
		return Result{}, err
	}
	void := v.Void(price, side, zones.NearestResistance, zones.NearestSupport)

	res := Result{Trend: trend, Zones: zones, Void: void}
	if !trend.Passed {
		res.Failed = append(res.Failed, "trend")
	}
	if !zones.Passed {
		res.Failed = append(res.Failed, "zones")
	}
	if !void.Passed {
		res.Failed = append(res.Failed, "void")
	}
	res.AllPassed = len(res.Failed) == 0
	return res, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
