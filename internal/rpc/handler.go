package rpc

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Handler binds a working instance to the method table of its class.
type Handler struct {
	class string
	table *MethodTable
	recv  reflect.Value
}

// NewHandler binds instance to class. class is usually an interface the
// instance implements; it may also be the instance's own type.
func NewHandler(class reflect.Type, instance any) (*Handler, error) {
	if instance == nil {
		return nil, fmt.Errorf("rpc: nil instance for %s", class)
	}
	v := reflect.ValueOf(instance)
	if !v.Type().AssignableTo(class) {
		return nil, fmt.Errorf("rpc: %s does not implement %s", v.Type(), class)
	}
	table, err := Introspect(class)
	if err != nil {
		return nil, err
	}

	recv := reflect.New(class).Elem()
	recv.Set(v)
	return &Handler{class: table.Class, table: table, recv: recv}, nil
}

// HandlerFor is NewHandler with the class taken from the type parameter.
func HandlerFor[T any](instance T) (*Handler, error) {
	return NewHandler(reflect.TypeFor[T](), instance)
}

// Class returns the wire class name.
func (h *Handler) Class() string { return h.class }

// Table returns the method table.
func (h *Handler) Table() *MethodTable { return h.table }

// Registry maps class names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]*Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]*Handler)}
}

// Register adds h. A class can be registered once.
func (r *Registry) Register(h *Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[h.class]; ok {
		return fmt.Errorf("rpc: handler for %s already registered", h.class)
	}
	r.handlers[h.class] = h
	return nil
}

// Unregister removes the handler of class.
func (r *Registry) Unregister(class string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, class)
}

// Lookup returns the handler of class.
func (r *Registry) Lookup(class string) (*Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[class]
	return h, ok
}

// Classes returns the registered class names, sorted.
func (r *Registry) Classes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for c := range r.handlers {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
