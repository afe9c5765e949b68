// Package worker consumes the generator event stream.
package worker

import (
	"context"
	"sync"

	"github.com/goccy/go-json"

	"idgen_server/internal/stream"
	"idgen_server/pkg/logger"
)

type regressionPayload struct {
	DeltaMs int64 `json:"delta_ms"`
	Refused bool  `json:"refused"`
}

type createdPayload struct {
	Layout string `json:"layout"`
}

// Conflict is a node id announced by two instances at once.
type Conflict struct {
	NodeID  int64  `json:"node_id"`
	Holder  string `json:"holder"`
	Claimer string `json:"claimer"`
}

// Auditor tracks which instance owns each node id and flags overlaps.
// Two live instances issuing from one node id can produce duplicate ids.
type Auditor struct {
	log *logger.Logger

	mu        sync.Mutex
	owners    map[int64]string
	counts    map[string]int64
	conflicts []Conflict
}

func NewAuditor() *Auditor {
	return &Auditor{
		log:    logger.WithField("component", "auditor"),
		owners: make(map[int64]string),
		counts: make(map[string]int64),
	}
}

// Process handles one event. It matches stream.EventHandler.
func (a *Auditor) Process(_ context.Context, ev *stream.Event) error {
	log := a.log.WithNodeID(ev.NodeID).WithField("instance", ev.Instance)

	a.mu.Lock()
	a.counts[ev.Type]++
	a.mu.Unlock()

	switch ev.Type {
	case stream.EventGeneratorCreated:
		p, err := ParsePayload[createdPayload](ev)
		if err != nil {
			return err
		}
		if c, ok := a.claim(ev.NodeID, ev.Instance); !ok {
			log.WithField("holder", c.Holder).Error("node id %d claimed by two instances", ev.NodeID)
			return nil
		}
		log.Info("generator created with layout %s", p.Layout)

	case stream.EventGeneratorRemoved, stream.EventLeaseLost:
		a.release(ev.NodeID, ev.Instance)
		log.Info("%s", ev.Type)

	case stream.EventClockRegression:
		p, err := ParsePayload[regressionPayload](ev)
		if err != nil {
			return err
		}
		if p.Refused {
			log.Error("clock regression of %dms refused", p.DeltaMs)
		} else {
			log.Warn("clock regression of %dms tolerated", p.DeltaMs)
		}

	default:
		log.Warn("Unknown event type: %s", ev.Type)
	}
	return nil
}

func (a *Auditor) claim(nodeID int64, instance string) (Conflict, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	holder, held := a.owners[nodeID]
	if held && holder != instance {
		c := Conflict{NodeID: nodeID, Holder: holder, Claimer: instance}
		a.conflicts = append(a.conflicts, c)
		return c, false
	}
	a.owners[nodeID] = instance
	return Conflict{}, true
}

func (a *Auditor) release(nodeID int64, instance string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.owners[nodeID] == instance {
		delete(a.owners, nodeID)
	}
}

// Owners returns a copy of the node id to instance map.
func (a *Auditor) Owners() map[int64]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[int64]string, len(a.owners))
	for k, v := range a.owners {
		out[k] = v
	}
	return out
}

func (a *Auditor) Conflicts() []Conflict {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Conflict(nil), a.conflicts...)
}

// Count returns how many events of type were processed.
func (a *Auditor) Count(eventType string) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counts[eventType]
}

func ParsePayload[T any](ev *stream.Event) (*T, error) {
	var payload T
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}
