package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps provider names to adapter instances. Adapters are selected
// at runtime by the provider field on each resource.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
	}
}

// Register adds an adapter under a provider name. Registering the same name
// twice is an error.
func (r *Registry) Register(name string, adapter Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		return fmt.Errorf("provider name must not be empty")
	}
	if _, exists := r.adapters[name]; exists {
		return fmt.Errorf("provider already registered: %s", name)
	}
	r.adapters[name] = adapter
	return nil
}

// Get returns a registered adapter.
func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("provider not registered: %s", name)
	}
	return a, nil
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
