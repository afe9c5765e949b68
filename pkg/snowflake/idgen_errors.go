package snowflake

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig   = errors.New("snowflake: invalid generator config")
	ErrClockRegression = errors.New("snowflake: clock moved backwards")

	// Diagnostics only. NextID never returns these; they are passed to the
	// Sink alongside the matching message.
	ErrSequenceExhausted = errors.New("snowflake: sequence exhausted within millisecond")
	ErrTimestampOverflow = errors.New("snowflake: timestamp exceeds layout")
)

// ConfigError is returned when a generator is constructed with out-of-range
// bit widths, node id or tolerance. It is never returned by NextID.
type ConfigError struct {
	Field  string
	Value  int64
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("snowflake: invalid %s=%d: %s", e.Field, e.Value, e.Reason)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// ClockRegressionError is returned by NextID when the wall clock moved
// backwards further than the active policy tolerates. The generator state is
// left untouched, so retrying once the clock has caught up is safe.
type ClockRegressionError struct {
	NodeID      int64
	Previous    int64 // last emitted timestamp (ms)
	Observed    int64 // timestamp read from the clock (ms)
	DeltaMs     int64
	ToleranceMs int64
}

func (e *ClockRegressionError) Error() string {
	return fmt.Sprintf("snowflake: clock moved backwards by %dms (last=%d, now=%d, tolerance=%dms)",
		e.DeltaMs, e.Previous, e.Observed, e.ToleranceMs)
}

func (e *ClockRegressionError) Is(target error) bool {
	return target == ErrClockRegression
}

func newClockRegressionError(last, now, tolerance int64) *ClockRegressionError {
	return &ClockRegressionError{
		Previous:    last,
		Observed:    now,
		DeltaMs:     last - now,
		ToleranceMs: tolerance,
	}
}
