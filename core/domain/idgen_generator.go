package domain

import (
	"strconv"
	"time"

	"idgen_server/pkg/snowflake"
)

// GeneratorInfo describes a live generator.
type GeneratorInfo struct {
	NodeID             int64     `json:"node_id"`
	Epoch              int64     `json:"epoch"`
	Policy             string    `json:"policy"`
	Layout             string    `json:"layout"`
	NodeIDBits         uint8     `json:"node_id_bits"`
	SequenceBits       uint8     `json:"sequence_bits"`
	MaxClockBackwardMs int64     `json:"max_clock_backward_ms"`
	Instance           string    `json:"instance,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// NewGeneratorInfo builds the descriptor for g.
func NewGeneratorInfo(g *snowflake.Generator, instance string, createdAt time.Time) GeneratorInfo {
	cfg := g.Config()
	return GeneratorInfo{
		NodeID:             cfg.NodeID,
		Epoch:              cfg.Epoch,
		Policy:             cfg.Policy.String(),
		Layout:             g.Layout().String(),
		NodeIDBits:         cfg.NodeIDBits,
		SequenceBits:       cfg.SequenceBits,
		MaxClockBackwardMs: cfg.MaxClockBackwardMs,
		Instance:           instance,
		CreatedAt:          createdAt,
	}
}

// IssuedID is a generated id as returned to API clients. IDString keeps
// JavaScript clients from losing precision.
type IssuedID struct {
	ID       int64  `json:"id"`
	IDString string `json:"id_str"`
	NodeID   int64  `json:"node_id"`
}

func NewIssuedID(id, nodeID int64) IssuedID {
	return IssuedID{ID: id, IDString: strconv.FormatInt(id, 10), NodeID: nodeID}
}

// IDBatch is the result of a batch request.
type IDBatch struct {
	NodeID int64    `json:"node_id"`
	IDs    []int64  `json:"ids"`
	IDStrs []string `json:"id_strs"`
}

// DecodedID adds the id as a string to the decoded fields.
type DecodedID struct {
	snowflake.Parts
	IDString string `json:"id_str"`
}
