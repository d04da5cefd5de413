package transfer

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps transfer channel names to completion handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]CompletionFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]CompletionFunc)}
}

// Register installs fn for name. A name can be registered once.
func (r *Registry) Register(name string, fn CompletionFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[name]; ok {
		return fmt.Errorf("transfer: transfer channel %q already registered", name)
	}
	r.handlers[name] = fn
	return nil
}

// Unregister removes the handler of name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	delete(r.handlers, name)
	r.mu.Unlock()
}

// Lookup returns the handler of name.
func (r *Registry) Lookup(name string) (CompletionFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.handlers[name]
	return fn, ok
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}
