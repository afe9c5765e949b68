package snowflake

import "fmt"

// Layout holds the shifts and masks derived from a pair of bit widths.
type Layout struct {
	NodeIDBits     uint8
	SequenceBits   uint8
	SequenceMask   int64
	NodeIDMask     int64
	NodeIDShift    uint
	TimestampShift uint
}

// NewLayout computes the layout for the given widths. Both widths and their
// sum must be below 63 so at least one timestamp bit remains.
func NewLayout(nodeIDBits, sequenceBits uint8) (Layout, error) {
	if nodeIDBits >= usableBits {
		return Layout{}, &ConfigError{Field: "node_id_bits", Value: int64(nodeIDBits), Reason: "must be between 0 and 62"}
	}
	if sequenceBits >= usableBits {
		return Layout{}, &ConfigError{Field: "sequence_bits", Value: int64(sequenceBits), Reason: "must be between 0 and 62"}
	}
	if int(nodeIDBits)+int(sequenceBits) >= usableBits {
		return Layout{}, &ConfigError{
			Field:  "node_id_bits+sequence_bits",
			Value:  int64(nodeIDBits) + int64(sequenceBits),
			Reason: "must be below 63 to leave room for the timestamp",
		}
	}

	return Layout{
		NodeIDBits:     nodeIDBits,
		SequenceBits:   sequenceBits,
		SequenceMask:   int64(1)<<sequenceBits - 1,
		NodeIDMask:     int64(1)<<nodeIDBits - 1,
		NodeIDShift:    uint(sequenceBits),
		TimestampShift: uint(sequenceBits) + uint(nodeIDBits),
	}, nil
}

// TimestampBits is the width of the timestamp field.
func (l Layout) TimestampBits() uint8 {
	return usableBits - l.NodeIDBits - l.SequenceBits
}

// MaxTimestampDelta is the largest now-epoch value that fits the timestamp
// field. Larger values spill into the sign bit.
func (l Layout) MaxTimestampDelta() int64 {
	return int64(1)<<l.TimestampBits() - 1
}

// Compose packs the three fields into an id.
func (l Layout) Compose(delta, nodeID, sequence int64) int64 {
	return delta<<l.TimestampShift |
		(nodeID&l.NodeIDMask)<<l.NodeIDShift |
		sequence&l.SequenceMask
}

// Decompose is the inverse of Compose.
func (l Layout) Decompose(id int64) (delta, nodeID, sequence int64) {
	delta = id >> l.TimestampShift
	nodeID = (id >> l.NodeIDShift) & l.NodeIDMask
	sequence = id & l.SequenceMask
	return
}

func (l Layout) String() string {
	return fmt.Sprintf("sign:1 timestamp:%d node:%d sequence:%d", l.TimestampBits(), l.NodeIDBits, l.SequenceBits)
}
