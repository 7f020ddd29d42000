package sale

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry holds the live sales of the process, indexed by their opaque
// identifier. It replaces the original global sale singleton: callers own
// a Registry instance and hand out handles.
type Registry struct {
	mu    sync.RWMutex
	sales map[string]*Sale
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sales: make(map[string]*Sale)}
}

// Create constructs a sale and registers it under the given id.
func (r *Registry) Create(ctx context.Context, id string, params Params, deps Deps) (*Sale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sales[id]; exists {
		return nil, fmt.Errorf("%w: sale %s already registered", ErrInvalidInput, id)
	}
	s, err := New(ctx, id, params, deps)
	if err != nil {
		return nil, err
	}
	r.sales[id] = s
	return s, nil
}

// Get returns the sale for the given id, or false when unknown.
func (r *Registry) Get(id string) (*Sale, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sales[id]
	return s, ok
}

// IDs returns the registered sale identifiers in stable order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sales))
	for id := range r.sales {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered sales.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sales)
}
