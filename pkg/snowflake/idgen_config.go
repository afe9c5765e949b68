package snowflake

import (
	"fmt"
	"strings"
)

const (
	// DefaultEpoch is 2021-01-01 00:00:00 UTC.
	DefaultEpoch int64 = 1609459200000
	// TwitterEpoch is the reference instant of the classic layout used by the
	// strict policy: 2010-11-04 01:42:54.657 UTC.
	TwitterEpoch int64 = 1288834974657

	DefaultNodeIDBits         uint8 = 10
	DefaultSequenceBits       uint8 = 12
	DefaultNodeID             int64 = 1
	DefaultMaxClockBackwardMs int64 = 5

	// usableBits excludes the sign bit.
	usableBits = 63
)

// Policy selects how a generator reacts when the clock moves backwards.
type Policy int

const (
	// PolicyTolerant waits out small regressions (up to MaxClockBackwardMs)
	// and fails on larger ones. Uses the configured bit layout.
	PolicyTolerant Policy = iota
	// PolicyStrict fails on any regression and always uses the classic
	// 41/10/12 layout anchored at TwitterEpoch.
	PolicyStrict
)

func (p Policy) String() string {
	switch p {
	case PolicyTolerant:
		return "tolerant"
	case PolicyStrict:
		return "strict"
	default:
		return "unknown"
	}
}

// ParsePolicy parses "tolerant" or "strict" (case-insensitive).
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "tolerant":
		return PolicyTolerant, nil
	case "strict":
		return PolicyStrict, nil
	default:
		return PolicyTolerant, fmt.Errorf("snowflake: unknown policy %q", s)
	}
}

// Config is the immutable configuration of a single generator.
//
// The resulting id layout is
//
//	┌─────────┬──────────────────┬────────────┬──────────────┐
//	│ 1 bit   │ 63-N-S bits      │  N bits    │   S bits     │
//	│ sign(0) │ now - Epoch (ms) │  node id   │  sequence    │
//	└─────────┴──────────────────┴────────────┴──────────────┘
//
// with N = NodeIDBits and S = SequenceBits.
type Config struct {
	Epoch              int64
	NodeIDBits         uint8
	SequenceBits       uint8
	NodeID             int64
	MaxClockBackwardMs int64
	Policy             Policy
}

// DefaultConfig returns the tolerant 10/12 configuration for node 1.
func DefaultConfig() Config {
	return Config{
		Epoch:              DefaultEpoch,
		NodeIDBits:         DefaultNodeIDBits,
		SequenceBits:       DefaultSequenceBits,
		NodeID:             DefaultNodeID,
		MaxClockBackwardMs: DefaultMaxClockBackwardMs,
		Policy:             PolicyTolerant,
	}
}

// StrictConfig returns the classic Twitter layout for the given node.
func StrictConfig(nodeID int64) Config {
	return Config{
		Epoch:        TwitterEpoch,
		NodeIDBits:   10,
		SequenceBits: 12,
		NodeID:       nodeID,
		Policy:       PolicyStrict,
	}
}

// Normalized returns the effective configuration. The strict policy ignores
// caller-supplied epoch and bit widths.
func (c Config) Normalized() Config {
	if c.Policy == PolicyStrict {
		c.Epoch = TwitterEpoch
		c.NodeIDBits = 10
		c.SequenceBits = 12
		c.MaxClockBackwardMs = 0
	}
	return c
}

// Validate checks bit widths, node id and tolerance.
func (c Config) Validate() error {
	if c.Policy != PolicyTolerant && c.Policy != PolicyStrict {
		return &ConfigError{Field: "policy", Value: int64(c.Policy), Reason: "unknown clock-backward policy"}
	}
	if _, err := NewLayout(c.NodeIDBits, c.SequenceBits); err != nil {
		return err
	}
	maxNodeID := int64(1)<<c.NodeIDBits - 1
	if c.NodeID < 0 || c.NodeID > maxNodeID {
		return &ConfigError{
			Field:  "node_id",
			Value:  c.NodeID,
			Reason: fmt.Sprintf("must be between 0 and %d for %d node id bits", maxNodeID, c.NodeIDBits),
		}
	}
	if c.MaxClockBackwardMs < 0 {
		return &ConfigError{Field: "max_clock_backward_ms", Value: c.MaxClockBackwardMs, Reason: "must not be negative"}
	}
	return nil
}

// Layout returns the bit layout of the normalized configuration. The
// configuration must be valid.
func (c Config) Layout() Layout {
	c = c.Normalized()
	l, _ := NewLayout(c.NodeIDBits, c.SequenceBits)
	return l
}
