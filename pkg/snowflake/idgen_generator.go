// Package snowflake implements a configurable Snowflake ID generator.
//
// Snowflake ID structure (64 bits, default tolerant layout):
//
//	┌─────────┬─────────────────────┬────────────┬──────────────┐
//	│ 1 bit   │      41 bits        │  10 bits   │   12 bits    │
//	│ sign(0) │ timestamp (ms)      │  node_id   │  sequence    │
//	└─────────┴─────────────────────┴────────────┴──────────────┘
//
// Node id and sequence widths are configurable per generator (see Config);
// the timestamp takes the remaining 63-N-S bits and counts milliseconds since
// Config.Epoch.
//
// Two clock-backward policies are supported:
//   - strict: any regression fails NextID with *ClockRegressionError. Fixed
//     41/10/12 layout anchored at TwitterEpoch.
//   - tolerant: regressions up to MaxClockBackwardMs are waited out, larger
//     ones fail.
//
// Ids from one generator are strictly increasing. Generators with different
// node ids never collide.
package snowflake

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Generator generates unique Snowflake IDs for a single node id.
type Generator struct {
	mu sync.Mutex

	cfg    Config
	layout Layout
	clock  Clock
	policy BackwardPolicy
	sink   Sink

	lastTimestamp  int64
	sequence       int64
	overflowWarned bool
}

// Option customises a Generator.
type Option func(*Generator)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c Clock) Option {
	return func(g *Generator) {
		if c != nil {
			g.clock = c
		}
	}
}

// WithSink sets the diagnostic sink.
func WithSink(s Sink) Option {
	return func(g *Generator) {
		if s != nil {
			g.sink = s
		}
	}
}

// WithBackwardPolicy overrides the policy selected by Config.Policy.
func WithBackwardPolicy(p BackwardPolicy) Option {
	return func(g *Generator) {
		if p != nil {
			g.policy = p
		}
	}
}

// New creates a generator for cfg. It returns a *ConfigError when the bit
// widths or node id are out of range.
func New(cfg Config, opts ...Option) (*Generator, error) {
	cfg = cfg.Normalized()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	layout, err := NewLayout(cfg.NodeIDBits, cfg.SequenceBits)
	if err != nil {
		return nil, err
	}

	g := &Generator{
		cfg:           cfg,
		layout:        layout,
		clock:         SystemClock,
		policy:        policyFor(cfg),
		sink:          nopSink{},
		lastTimestamp: -1,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// NextID generates a new unique Snowflake ID.
func (g *Generator) NextID() (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.NowMillis()

	if now < g.lastTimestamp {
		recovered, err := g.policy.Resolve(g.clock, g.lastTimestamp, now)
		var regErr *ClockRegressionError
		if errors.As(err, &regErr) {
			regErr.NodeID = g.cfg.NodeID
		}
		if err != nil {
			g.sink.Log(LevelError, fmt.Sprintf("node %d: refusing to generate id after clock regression", g.cfg.NodeID), err)
			return 0, err
		}
		g.sink.Log(LevelWarn, fmt.Sprintf("node %d: clock moved backwards %dms, waited until %d",
			g.cfg.NodeID, g.lastTimestamp-now, recovered), g.toleratedRegression(now))
		now = recovered
	}

	if now == g.lastTimestamp {
		// Same millisecond, increment sequence
		g.sequence = (g.sequence + 1) & g.layout.SequenceMask
		if g.sequence == 0 {
			// Sequence exhausted, wait for next millisecond
			now = waitNextMillis(g.clock, g.lastTimestamp)
			g.sink.Log(LevelDebug, fmt.Sprintf("node %d: sequence exhausted at %d", g.cfg.NodeID, g.lastTimestamp), ErrSequenceExhausted)
		}
	} else {
		g.sequence = 0
	}

	g.lastTimestamp = now

	delta := now - g.cfg.Epoch
	if delta > g.layout.MaxTimestampDelta() && !g.overflowWarned {
		// The id still wraps into the sign bit; overflow is reported once,
		// never refused.
		g.overflowWarned = true
		g.sink.Log(LevelWarn, fmt.Sprintf("node %d: timestamp delta %d exceeds %d-bit field",
			g.cfg.NodeID, delta, g.layout.TimestampBits()), ErrTimestampOverflow)
	}

	return g.layout.Compose(delta, g.cfg.NodeID, g.sequence), nil
}

func (g *Generator) toleratedRegression(observed int64) *ClockRegressionError {
	e := newClockRegressionError(g.lastTimestamp, observed, g.cfg.MaxClockBackwardMs)
	e.NodeID = g.cfg.NodeID
	return e
}

// MustNextID generates a new ID and panics on error.
func (g *Generator) MustNextID() int64 {
	id, err := g.NextID()
	if err != nil {
		panic(err)
	}
	return id
}

// Config returns the effective configuration.
func (g *Generator) Config() Config { return g.cfg }

// Layout returns the bit layout used by the generator.
func (g *Generator) Layout() Layout { return g.layout }

// NodeID returns the node id embedded in every id.
func (g *Generator) NodeID() int64 { return g.cfg.NodeID }

// Parse extracts components from an id produced by this generator.
func (g *Generator) Parse(id int64) (timestamp time.Time, nodeID int64, sequence int64) {
	p := g.cfg.decode(g.layout, id)
	return p.Time, p.NodeID, p.Sequence
}

// Parts are the decoded fields of an id.
type Parts struct {
	ID        int64     `json:"id"`
	Time      time.Time `json:"time"`
	Timestamp int64     `json:"timestamp"` // ms since Unix epoch
	Delta     int64     `json:"delta"`     // ms since the generator epoch
	NodeID    int64     `json:"node_id"`
	Sequence  int64     `json:"sequence"`
}

// Decode splits id using the layout and epoch of c.
func (c Config) Decode(id int64) (Parts, error) {
	c = c.Normalized()
	layout, err := NewLayout(c.NodeIDBits, c.SequenceBits)
	if err != nil {
		return Parts{}, err
	}
	return c.decode(layout, id), nil
}

func (c Config) decode(layout Layout, id int64) Parts {
	delta, nodeID, seq := layout.Decompose(id)
	ts := delta + c.Epoch
	return Parts{
		ID:        id,
		Time:      time.UnixMilli(ts).UTC(),
		Timestamp: ts,
		Delta:     delta,
		NodeID:    nodeID,
		Sequence:  seq,
	}
}

// Timestamp extracts the wall-clock time embedded in id for config c.
func Timestamp(id int64, c Config) time.Time {
	c = c.Normalized()
	return time.UnixMilli((id >> c.Layout().TimestampShift) + c.Epoch).UTC()
}
