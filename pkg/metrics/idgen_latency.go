// Package metrics provides latency tracking and generator counters.
package metrics

import (
	"sort"
	"sync"
	"time"
)

// LatencyTracker keeps a sliding window of latency samples and computes
// percentiles over it.
type LatencyTracker struct {
	mu         sync.Mutex
	samples    []int64 // microseconds, oldest first
	maxSamples int
}

// NewLatencyTracker creates a new latency tracker.
// windowSize determines how many samples to keep for percentile calculation.
func NewLatencyTracker(windowSize int) *LatencyTracker {
	if windowSize <= 0 {
		windowSize = 1000
	}
	return &LatencyTracker{
		samples:    make([]int64, 0, windowSize),
		maxSamples: windowSize,
	}
}

// Record records a latency measurement.
func (lt *LatencyTracker) Record(d time.Duration) {
	lt.mu.Lock()
	defer lt.mu.Unlock()

	if len(lt.samples) >= lt.maxSamples {
		// Drop the oldest 10% at once to avoid shifting on every call.
		removeCount := lt.maxSamples / 10
		if removeCount < 1 {
			removeCount = 1
		}
		n := copy(lt.samples, lt.samples[removeCount:])
		lt.samples = lt.samples[:n]
	}

	lt.samples = append(lt.samples, d.Microseconds())
}

// Stats returns latency statistics including percentiles.
func (lt *LatencyTracker) Stats() LatencyStats {
	lt.mu.Lock()
	sorted := make([]int64, len(lt.samples))
	copy(sorted, lt.samples)
	lt.mu.Unlock()

	n := len(sorted)
	if n == 0 {
		return LatencyStats{}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum int64
	for _, v := range sorted {
		sum += v
	}

	micros := func(v int64) time.Duration { return time.Duration(v) * time.Microsecond }
	return LatencyStats{
		Count:   int64(n),
		Min:     micros(sorted[0]),
		Max:     micros(sorted[n-1]),
		Avg:     micros(sum / int64(n)),
		P50:     micros(percentile(sorted, 0.50)),
		P90:     micros(percentile(sorted, 0.90)),
		P95:     micros(percentile(sorted, 0.95)),
		P99:     micros(percentile(sorted, 0.99)),
		Samples: n,
	}
}

// percentile expects sorted input.
func percentile(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

// Reset clears all samples.
func (lt *LatencyTracker) Reset() {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	lt.samples = lt.samples[:0]
}

// LatencyStats holds latency statistics.
type LatencyStats struct {
	Count   int64         `json:"count"`
	Min     time.Duration `json:"min"`
	Max     time.Duration `json:"max"`
	Avg     time.Duration `json:"avg"`
	P50     time.Duration `json:"p50"`
	P90     time.Duration `json:"p90"`
	P95     time.Duration `json:"p95"`
	P99     time.Duration `json:"p99"`
	Samples int           `json:"samples"`
}

// ToMap renders the stats in milliseconds for JSON output.
func (s LatencyStats) ToMap() map[string]any {
	ms := func(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }
	return map[string]any{
		"count":       s.Count,
		"min_ms":      ms(s.Min),
		"max_ms":      ms(s.Max),
		"avg_ms":      ms(s.Avg),
		"p50_ms":      ms(s.P50),
		"p90_ms":      ms(s.P90),
		"p95_ms":      ms(s.P95),
		"p99_ms":      ms(s.P99),
		"sample_size": s.Samples,
	}
}

// LatencyRegistry keeps one tracker per operation name.
type LatencyRegistry struct {
	mu       sync.RWMutex
	trackers map[string]*LatencyTracker
	window   int
}

func NewLatencyRegistry(windowSize int) *LatencyRegistry {
	return &LatencyRegistry{
		trackers: make(map[string]*LatencyTracker),
		window:   windowSize,
	}
}

// Record records a latency for the given operation.
func (r *LatencyRegistry) Record(name string, d time.Duration) {
	r.mu.RLock()
	tracker, ok := r.trackers[name]
	r.mu.RUnlock()

	if !ok {
		r.mu.Lock()
		if tracker, ok = r.trackers[name]; !ok {
			tracker = NewLatencyTracker(r.window)
			r.trackers[name] = tracker
		}
		r.mu.Unlock()
	}

	tracker.Record(d)
}

func (r *LatencyRegistry) Stats(name string) LatencyStats {
	r.mu.RLock()
	tracker, ok := r.trackers[name]
	r.mu.RUnlock()

	if !ok {
		return LatencyStats{}
	}
	return tracker.Stats()
}

func (r *LatencyRegistry) AllStats() map[string]LatencyStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]LatencyStats, len(r.trackers))
	for name, tracker := range r.trackers {
		result[name] = tracker.Stats()
	}
	return result
}

func (r *LatencyRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, tracker := range r.trackers {
		tracker.Reset()
	}
}
