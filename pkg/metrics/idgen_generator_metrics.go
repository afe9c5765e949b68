package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// GeneratorMetrics counts generator outcomes. All methods are safe for
// concurrent use.
type GeneratorMetrics struct {
	issued      atomic.Int64
	tolerated   atomic.Int64
	refused     atomic.Int64
	exhaustions atomic.Int64
	overflows   atomic.Int64

	latency *LatencyRegistry

	mu      sync.RWMutex
	perNode map[int64]int64
}

func NewGeneratorMetrics(windowSize int) *GeneratorMetrics {
	return &GeneratorMetrics{
		latency: NewLatencyRegistry(windowSize),
		perNode: make(map[int64]int64),
	}
}

// Issued counts n ids handed out by nodeID.
func (m *GeneratorMetrics) Issued(nodeID int64, n int) {
	m.issued.Add(int64(n))
	m.mu.Lock()
	m.perNode[nodeID] += int64(n)
	m.mu.Unlock()
}

func (m *GeneratorMetrics) RegressionTolerated() { m.tolerated.Add(1) }
func (m *GeneratorMetrics) RegressionRefused()   { m.refused.Add(1) }
func (m *GeneratorMetrics) SequenceExhausted()   { m.exhaustions.Add(1) }
func (m *GeneratorMetrics) TimestampOverflow()   { m.overflows.Add(1) }

// Observe records the duration of op.
func (m *GeneratorMetrics) Observe(op string, d time.Duration) {
	m.latency.Record(op, d)
}

// Latency exposes the per-operation trackers.
func (m *GeneratorMetrics) Latency() *LatencyRegistry { return m.latency }

// GeneratorSnapshot is a point-in-time copy of the counters.
type GeneratorSnapshot struct {
	Issued              int64                     `json:"issued"`
	RegressionTolerated int64                     `json:"regressions_tolerated"`
	RegressionRefused   int64                     `json:"regressions_refused"`
	SequenceExhausted   int64                     `json:"sequence_exhausted"`
	TimestampOverflow   int64                     `json:"timestamp_overflow"`
	PerNode             map[int64]int64           `json:"per_node"`
	Latency             map[string]map[string]any `json:"latency"`
}

func (m *GeneratorMetrics) Snapshot() GeneratorSnapshot {
	m.mu.RLock()
	perNode := make(map[int64]int64, len(m.perNode))
	for k, v := range m.perNode {
		perNode[k] = v
	}
	m.mu.RUnlock()

	latency := make(map[string]map[string]any)
	for name, s := range m.latency.AllStats() {
		latency[name] = s.ToMap()
	}

	return GeneratorSnapshot{
		Issued:              m.issued.Load(),
		RegressionTolerated: m.tolerated.Load(),
		RegressionRefused:   m.refused.Load(),
		SequenceExhausted:   m.exhaustions.Load(),
		TimestampOverflow:   m.overflows.Load(),
		PerNode:             perNode,
		Latency:             latency,
	}
}
