package snowflake

// BackwardPolicy resolves a clock regression. It is called with the
// generator lock held and now < last. It returns a timestamp >= last, or an
// error which NextID propagates without touching its counters.
type BackwardPolicy interface {
	Resolve(clock Clock, last, now int64) (int64, error)
}

// StrictPolicy refuses every regression.
type StrictPolicy struct{}

func (StrictPolicy) Resolve(_ Clock, last, now int64) (int64, error) {
	return 0, newClockRegressionError(last, now, 0)
}

// TolerantPolicy waits until the clock catches up with last when the step
// back is at most MaxBackwardMs, and refuses larger steps.
type TolerantPolicy struct {
	MaxBackwardMs int64
}

func (p TolerantPolicy) Resolve(clock Clock, last, now int64) (int64, error) {
	if last-now > p.MaxBackwardMs {
		return 0, newClockRegressionError(last, now, p.MaxBackwardMs)
	}
	return waitUntilMillis(clock, last), nil
}

func policyFor(cfg Config) BackwardPolicy {
	if cfg.Policy == PolicyStrict {
		return StrictPolicy{}
	}
	return TolerantPolicy{MaxBackwardMs: cfg.MaxClockBackwardMs}
}
