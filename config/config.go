package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/juanjaure777-art/TRAD/types"
)

// Config is the full configuration surface of the bot. The core treats these
// as injected constants; loading and validation happen here, once, before
// any trading starts.
type Config struct {
	Engine   EngineConfig   `yaml:"engine"`
	Signal   SignalConfig   `yaml:"signal"`
	Validate ValidateConfig `yaml:"validate"`
	Exit     ExitConfig     `yaml:"exit"`
	Risk     RiskConfig     `yaml:"risk"`
	Gate     GateConfig     `yaml:"gate"`
	Exchange ExchangeConfig `yaml:"exchange"`
}

// EngineConfig controls the polling loop.
type EngineConfig struct {
	Symbol           string `yaml:"symbol"`
	Timeframe        string `yaml:"timeframe"`         // entry timeframe, e.g. "4h"
	ConfirmTimeframe string `yaml:"confirm_timeframe"` // higher timeframe, e.g. "1d"
	IntervalSeconds  int    `yaml:"interval_seconds"`
	CandleLimit      int    `yaml:"candle_limit"`
	StateFile        string `yaml:"state_file"`
	MetricsAddr      string `yaml:"metrics_addr"`
	EnforceSessions  bool   `yaml:"enforce_sessions"`
	// MaxReconcileAttempts bounds startup reconciliation retries before the
	// emergency close-all path fires.
	MaxReconcileAttempts int `yaml:"max_reconcile_attempts"`
}

// SignalConfig tunes the oscillator/price-action entry filter.
type SignalConfig struct {
	RSIPeriod     int     `yaml:"rsi_period"`     // default 7
	RSIOversold   float64 `yaml:"rsi_oversold"`   // default 25
	RSIOverbought float64 `yaml:"rsi_overbought"` // default 75
	// RSIExitBuffer widens the crossover band: a short candidate needs the
	// prior RSI above overbought and the current one at or below
	// overbought-buffer (symmetric for longs).
	RSIExitBuffer  float64 `yaml:"rsi_exit_buffer"` // default 10
	EMAFastPeriod  int     `yaml:"ema_fast_period"` // default 9
	EMASlowPeriod  int     `yaml:"ema_slow_period"` // default 21
	ConfirmCandles int     `yaml:"confirm_candles"` // default 2
}

// ValidateConfig tunes the trend/zones/void pre-entry gate.
type ValidateConfig struct {
	TrendLookback    int     `yaml:"trend_lookback"`     // default 20
	ConfidenceFloor  float64 `yaml:"confidence_floor"`   // default 0.4
	ZoneProximityPct float64 `yaml:"zone_proximity_pct"` // level search band, default 3.0
	MinZoneLevels    int     `yaml:"min_zone_levels"`    // default 2
	MinRiskReward    float64 `yaml:"min_risk_reward"`    // hard floor, default 2.0
}

// ExitConfig tunes the position lifecycle state machine.
type ExitConfig struct {
	StopLossPct float64 `yaml:"stop_loss_pct"` // e.g. 0.02 = 2 %
	TP1Pct      float64 `yaml:"tp1_pct"`       // e.g. 0.01
	// TP2Pct is vestigial: the second fixed tier was retired in favor of
	// the trailing stop managing the full post-TP1 remainder.
	TP2Pct             float64 `yaml:"tp2_pct"`
	TrailingPct        float64 `yaml:"trailing_pct"`         // e.g. 0.015
	BreakevenBufferPct float64 `yaml:"breakeven_buffer_pct"` // default 0.0005
	PartialFraction    float64 `yaml:"partial_fraction"`     // closed at TP1, default 0.5

	DeadWindow            int     `yaml:"dead_window"`              // default 15
	DeadPriceThresholdPct float64 `yaml:"dead_price_threshold_pct"` // default 0.5
	DeadVolumeRatio       float64 `yaml:"dead_volume_ratio"`        // default 0.5
	DeadCounterMax        int     `yaml:"dead_counter_max"`         // default 3
	DeadCounterHard       int     `yaml:"dead_counter_hard"`        // default 5
}

// RiskConfig is the account-level guardrail layer.
type RiskConfig struct {
	MaxRiskPerTrade   float64 `yaml:"max_risk_per_trade"` // e.g. 0.015
	MaxOpenPositions  int     `yaml:"max_open_positions"` // default 1
	DailyLossLimitPct float64 `yaml:"daily_loss_limit_pct"`
	CooldownSeconds   int     `yaml:"cooldown_seconds"`
	MaxTradesPerDay   int     `yaml:"max_trades_per_day"`

	QuantityPrecision int     `yaml:"quantity_precision"`
	MinQty            float64 `yaml:"min_qty"`
	StepSize          float64 `yaml:"step_size"`
}

// GateConfig configures the LLM approval gate.
type GateConfig struct {
	Level          int     `yaml:"level"` // 1=permissive .. 5=maximally selective
	Model          string  `yaml:"model"`
	BaseURL        string  `yaml:"base_url"`
	MaxTokens      int     `yaml:"max_tokens"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	APIKey         string  `yaml:"-"` // from env, never from file
	Temperature    float64 `yaml:"temperature"`
}

// ExchangeConfig holds the exchange adapter settings; keys come from env.
type ExchangeConfig struct {
	UseTestnet bool   `yaml:"use_testnet"`
	APIKey     string `yaml:"-"`
	SecretKey  string `yaml:"-"`
}

// Load reads the YAML file, overlays secrets from the environment (a .env
// file is honored if present) and validates the result. Any validation
// failure is fatal: safety parameters are never silently defaulted.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse %q: %w", path, err)
	}

	cfg.Gate.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	cfg.Exchange.APIKey = os.Getenv("BINANCE_API_KEY")
	cfg.Exchange.SecretKey = os.Getenv("BINANCE_SECRET_KEY")

	if err := cfg.ValidateAll(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GateTimeout returns the bounded timeout for the external approval call.
func (g GateConfig) GateTimeout() time.Duration {
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// Cooldown returns the per-trade cooldown as a duration.
func (r RiskConfig) Cooldown() time.Duration {
	return time.Duration(r.CooldownSeconds) * time.Second
}

// Interval returns the inter-cycle sleep as a duration.
func (e EngineConfig) Interval() time.Duration {
	return time.Duration(e.IntervalSeconds) * time.Second
}

// ValidateAll checks every section and returns the first problem found.
func (c *Config) ValidateAll() error {
	if c.Engine.Symbol == "" {
		return types.ConfigError("engine.symbol", "required")
	}
	if c.Engine.Timeframe == "" {
		return types.ConfigError("engine.timeframe", "required")
	}
	if c.Engine.IntervalSeconds <= 0 {
		return types.ConfigError("engine.interval_seconds", "must be positive")
	}
	if c.Engine.CandleLimit < 50 {
		return types.ConfigError("engine.candle_limit", "must be at least 50")
	}
	if c.Engine.StateFile == "" {
		return types.ConfigError("engine.state_file", "required")
	}
	if c.Engine.MaxReconcileAttempts <= 0 {
		return types.ConfigError("engine.max_reconcile_attempts", "must be positive")
	}
	if err := c.Signal.Validate(); err != nil {
		return err
	}
	if err := c.Validate.Validate(); err != nil {
		return err
	}
	if err := c.Exit.Validate(); err != nil {
		return err
	}
	if err := c.Risk.Validate(); err != nil {
		return err
	}
	return c.Gate.Validate()
}

// Validate checks the signal thresholds.
func (s *SignalConfig) Validate() error {
	if s.RSIPeriod <= 1 {
		return types.ConfigError("signal.rsi_period", "must be > 1")
	}
	if s.RSIOverbought <= s.RSIOversold {
		return types.ConfigError("signal.rsi_overbought", "must exceed rsi_oversold")
	}
	if s.RSIExitBuffer < 0 || s.RSIExitBuffer >= (s.RSIOverbought-s.RSIOversold)/2 {
		return types.ConfigError("signal.rsi_exit_buffer", "out of range")
	}
	if s.EMAFastPeriod <= 0 || s.EMASlowPeriod <= 0 {
		return types.ConfigError("signal.ema_periods", "must be positive")
	}
	if s.EMAFastPeriod >= s.EMASlowPeriod {
		return types.ConfigError("signal.ema_fast_period", "must be shorter than ema_slow_period")
	}
	if s.ConfirmCandles < 1 || s.ConfirmCandles > 3 {
		return types.ConfigError("signal.confirm_candles", "must be 1-3")
	}
	return nil
}

// Validate checks the trend/zones/void thresholds.
func (v *ValidateConfig) Validate() error {
	if v.TrendLookback < 5 {
		return types.ConfigError("validate.trend_lookback", "must be at least 5")
	}
	if v.ConfidenceFloor <= 0 || v.ConfidenceFloor >= 1 {
		return types.ConfigError("validate.confidence_floor", "must be in (0,1)")
	}
	if v.ZoneProximityPct <= 0 {
		return types.ConfigError("validate.zone_proximity_pct", "must be positive")
	}
	if v.MinZoneLevels < 1 {
		return types.ConfigError("validate.min_zone_levels", "must be at least 1")
	}
	if v.MinRiskReward < 2.0 {
		// The 2:1 floor is a hard rule of the methodology, not a tunable.
		return types.ConfigError("validate.min_risk_reward", "must be >= 2.0")
	}
	return nil
}

// Validate checks the exit parameters. A zero stop-loss is rejected: loss
// protection is never optional.
func (e *ExitConfig) Validate() error {
	if e.StopLossPct <= 0 || e.StopLossPct > 0.2 {
		return types.ConfigError("exit.stop_loss_pct", fmt.Sprintf("(%f) must be >0 and <=0.2", e.StopLossPct))
	}
	if e.TP1Pct <= 0 || e.TP1Pct > 1 {
		return types.ConfigError("exit.tp1_pct", "must be in (0,1]")
	}
	if e.TP2Pct < 0 {
		return types.ConfigError("exit.tp2_pct", "cannot be negative")
	}
	if e.TrailingPct <= 0 || e.TrailingPct > 0.2 {
		return types.ConfigError("exit.trailing_pct", "must be in (0,0.2]")
	}
	if e.BreakevenBufferPct < 0 || e.BreakevenBufferPct > 0.01 {
		return types.ConfigError("exit.breakeven_buffer_pct", "must be in [0,0.01]")
	}
	if e.PartialFraction <= 0 || e.PartialFraction >= 1 {
		return types.ConfigError("exit.partial_fraction", "must be in (0,1)")
	}
	if e.DeadWindow < 3 {
		return types.ConfigError("exit.dead_window", "must be at least 3")
	}
	if e.DeadPriceThresholdPct <= 0 {
		return types.ConfigError("exit.dead_price_threshold_pct", "must be positive")
	}
	if e.DeadVolumeRatio <= 0 || e.DeadVolumeRatio >= 1 {
		return types.ConfigError("exit.dead_volume_ratio", "must be in (0,1)")
	}
	if e.DeadCounterMax < 1 || e.DeadCounterHard <= e.DeadCounterMax {
		return types.ConfigError("exit.dead_counters", "hard counter must exceed soft counter")
	}
	return nil
}

// Validate checks the account-level risk limits.
func (r *RiskConfig) Validate() error {
	if r.MaxRiskPerTrade <= 0 || r.MaxRiskPerTrade > 0.5 {
		return types.ConfigError("risk.max_risk_per_trade", fmt.Sprintf("(%f) must be >0 and <=0.5", r.MaxRiskPerTrade))
	}
	if r.MaxOpenPositions < 1 {
		return types.ConfigError("risk.max_open_positions", "must be at least 1")
	}
	if r.DailyLossLimitPct <= 0 {
		return types.ConfigError("risk.daily_loss_limit_pct", "must be positive")
	}
	if r.CooldownSeconds < 0 {
		return types.ConfigError("risk.cooldown_seconds", "cannot be negative")
	}
	if r.MaxTradesPerDay < 1 {
		return types.ConfigError("risk.max_trades_per_day", "must be at least 1")
	}
	if r.QuantityPrecision < 0 {
		return types.ConfigError("risk.quantity_precision", "cannot be negative")
	}
	if r.MinQty < 0 {
		return types.ConfigError("risk.min_qty", "cannot be negative")
	}
	if r.StepSize <= 0 {
		return types.ConfigError("risk.step_size", "must be positive")
	}
	return nil
}

// Validate checks the gate settings. A missing API key is allowed — the gate
// then runs on its deterministic fallback rule — but a bad level is not.
func (g *GateConfig) Validate() error {
	if g.Level < 1 || g.Level > 5 {
		return types.ConfigError("gate.level", "must be 1-5")
	}
	if g.TimeoutSeconds <= 0 {
		return types.ConfigError("gate.timeout_seconds", "must be positive")
	}
	if g.MaxTokens <= 0 {
		return types.ConfigError("gate.max_tokens", "must be positive")
	}
	return nil
}
