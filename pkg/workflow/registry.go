package workflow

import (
	"fmt"
	"sort"
	"sync"

	"github.com/goclaw/reactor/pkg/reactor"
)

// Factory creates a step run function from its config block.
type Factory func(config map[string]any) (reactor.RunFunc, error)

// Registry maps step types to handler factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry holding the built-in step types.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	registerBuiltins(r)
	return r
}

// Register adds a factory. Registering a type twice is an error.
func (r *Registry) Register(stepType string, factory Factory) error {
	if stepType == "" {
		return fmt.Errorf("step type cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("step type %q has nil factory", stepType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[stepType]; exists {
		return fmt.Errorf("step type %q already registered", stepType)
	}
	r.factories[stepType] = factory
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(stepType string, factory Factory) {
	if err := r.Register(stepType, factory); err != nil {
		panic(err)
	}
}

// Lookup returns the factory for stepType.
func (r *Registry) Lookup(stepType string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[stepType]
	if !ok {
		return nil, fmt.Errorf("unknown step type: %s", stepType)
	}
	return factory, nil
}

// Types returns the registered step types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
