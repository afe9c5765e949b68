package snowflake

import (
	"sort"
	"sync"
)

// Registry maps node ids to lazily created generators. Each node id gets its
// own generator and lock; the registry lock only guards the map.
type Registry struct {
	mu         sync.RWMutex
	generators map[int64]*Generator
	opts       []Option
}

// NewRegistry creates an empty registry. opts are applied to every generator
// it creates.
func NewRegistry(opts ...Option) *Registry {
	return &Registry{
		generators: make(map[int64]*Generator),
		opts:       opts,
	}
}

// Get returns the generator for nodeID if one exists.
func (r *Registry) Get(nodeID int64) (*Generator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.generators[nodeID]
	return g, ok
}

// GetOrCreate returns the generator for nodeID, creating it from cfg on first
// use. cfg.NodeID is replaced by nodeID. Later calls for the same node id
// return the existing generator and ignore cfg.
func (r *Registry) GetOrCreate(nodeID int64, cfg Config) (*Generator, error) {
	if g, ok := r.Get(nodeID); ok {
		return g, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.generators[nodeID]; ok {
		return g, nil
	}

	cfg.NodeID = nodeID
	g, err := New(cfg, r.opts...)
	if err != nil {
		return nil, err
	}
	r.generators[nodeID] = g
	return g, nil
}

// NextID is GetOrCreate followed by NextID.
func (r *Registry) NextID(nodeID int64, cfg Config) (int64, error) {
	g, err := r.GetOrCreate(nodeID, cfg)
	if err != nil {
		return 0, err
	}
	return g.NextID()
}

// Remove drops the generator for nodeID and reports whether one existed.
// A later GetOrCreate starts from fresh counters.
func (r *Registry) Remove(nodeID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.generators[nodeID]; !ok {
		return false
	}
	delete(r.generators, nodeID)
	return true
}

// Len returns the number of live generators.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.generators)
}

// NodeIDs returns the registered node ids in ascending order.
func (r *Registry) NodeIDs() []int64 {
	r.mu.RLock()
	ids := make([]int64, 0, len(r.generators))
	for id := range r.generators {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
