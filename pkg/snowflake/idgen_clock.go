package snowflake

import (
	"runtime"
	"time"
)

// Clock reports wall-clock milliseconds since the Unix epoch.
type Clock interface {
	NowMillis() int64
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() int64

func (f ClockFunc) NowMillis() int64 { return f() }

type systemClock struct{}

func (systemClock) NowMillis() int64 { return time.Now().UnixMilli() }

// SystemClock reads time.Now.
var SystemClock Clock = systemClock{}

// spinBeforeYield is how many tight clock reads happen before the wait loop
// starts handing the processor back to the scheduler.
const spinBeforeYield = 64

// waitNextMillis blocks until the clock is strictly past last.
func waitNextMillis(clock Clock, last int64) int64 {
	return spinUntil(clock, func(now int64) bool { return now > last })
}

// waitUntilMillis blocks until the clock reaches at least target.
func waitUntilMillis(clock Clock, target int64) int64 {
	return spinUntil(clock, func(now int64) bool { return now >= target })
}

func spinUntil(clock Clock, done func(now int64) bool) int64 {
	spins := 0
	for {
		now := clock.NowMillis()
		if done(now) {
			return now
		}
		if spins < spinBeforeYield {
			spins++
			continue
		}
		runtime.Gosched()
	}
}
