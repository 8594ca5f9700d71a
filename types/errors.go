package types

import (
	"errors"
	"fmt"
)

// Error taxonomy. Per-cycle failures are recoverable: the engine logs them
// and proceeds to the next cycle. Only ErrConfiguration aborts startup.
var (
	// ErrInsufficientData: fewer candles than an indicator or validator
	// needs. The cycle's action is skipped, prior state is retained.
	ErrInsufficientData = errors.New("insufficient candle history")

	// ErrDataQuality: missing, NaN or non-positive price input. Treated as
	// "no update this cycle", never as an exit trigger.
	ErrDataQuality = errors.New("data quality")

	// ErrServiceUnavailable: an external call (LLM, exchange) timed out or
	// errored. Fail-closed: the caller treats it as a rejection/no-op.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrStateCorrupted: persisted state carried non-finite figures. The
	// loader clamps to safe defaults and continues.
	ErrStateCorrupted = errors.New("state corrupted")

	// ErrReconciliation: persisted state disagrees with exchange reality
	// after a restart. Retried a bounded number of times before the
	// emergency close-all path fires.
	ErrReconciliation = errors.New("reconciliation failed")

	// ErrConfiguration: a required threshold is missing or out of range.
	// Fatal at startup; safety parameters are never silently defaulted.
	ErrConfiguration = errors.New("invalid configuration")
)

// InsufficientDataError reports how much history was available vs required.
func InsufficientDataError(have, want int) error {
	return fmt.Errorf("%w: have %d candles, need %d", ErrInsufficientData, have, want)
}

// ConfigError wraps a field-level validation failure.
func ConfigError(field, msg string) error {
	return fmt.Errorf("%w: %s: %s", ErrConfiguration, field, msg)
}
