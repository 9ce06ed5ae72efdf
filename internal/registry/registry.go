package registry

import (
	"sort"
	"sync"

	"modelhost/pkg/types"
)

// Registry holds the set of discoverable model descriptors. Descriptors are
// immutable once registered; re-registration replaces the entry wholesale.
type Registry struct {
	mu   sync.RWMutex
	byID map[string]types.ModelDescriptor
}

func New() *Registry {
	return &Registry{byID: make(map[string]types.ModelDescriptor)}
}

// Register adds or replaces a descriptor.
func (r *Registry) Register(d types.ModelDescriptor) {
	r.mu.Lock()
	r.byID[d.ID] = d
	r.mu.Unlock()
}

// Unregister removes a descriptor; removing a missing id is a no-op.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	delete(r.byID, id)
	r.mu.Unlock()
}

// Get returns the descriptor for id.
func (r *Registry) Get(id string) (types.ModelDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[id]
	return d, ok
}

// List returns a copy of all descriptors sorted by id.
func (r *Registry) List() []types.ModelDescriptor {
	r.mu.RLock()
	out := make([]types.ModelDescriptor, 0, len(r.byID))
	for _, d := range r.byID {
		out = append(out, d)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered descriptors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
