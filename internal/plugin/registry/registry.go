// Package registry holds destinations and processors keyed by designation.
package registry

import (
	"fmt"
	"sync"
)

// Designated is anything looked up by a designation.
type Designated interface {
	Designation() string
}

// Registry holds items keyed by designation in registration order.
type Registry[T Designated] struct {
	mu    sync.RWMutex
	order []string
	items map[string]T
}

// New creates an empty registry.
func New[T Designated]() *Registry[T] {
	return &Registry[T]{items: make(map[string]T)}
}

// Register adds an item. A designation can only be registered once.
func (r *Registry[T]) Register(item T) error {
	designation := item.Designation()
	if designation == "" {
		return fmt.Errorf("cannot register %T with an empty designation", item)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[designation]; exists {
		return fmt.Errorf("designation already registered: %s", designation)
	}
	r.items[designation] = item
	r.order = append(r.order, designation)
	return nil
}

// Get retrieves an item by designation.
func (r *Registry[T]) Get(designation string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[designation]
	return item, ok
}

// All returns all registered items in registration order.
func (r *Registry[T]) All() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]T, 0, len(r.order))
	for _, d := range r.order {
		items = append(items, r.items[d])
	}
	return items
}
