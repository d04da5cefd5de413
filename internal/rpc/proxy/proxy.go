// Package proxy keeps the generated client implementations of remote
// interfaces. Generated files register a factory in init; callers obtain a
// client with Implement.
package proxy

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/yndnr/nodemesh-go/internal/rpc"
)

// ErrNotRegistered is returned by Implement for an interface without a
// generated client.
var ErrNotRegistered = errors.New("proxy: no implementation registered")

type entry struct {
	class   string
	factory func(*rpc.Sender) any
}

var (
	mu        sync.RWMutex
	factories = make(map[reflect.Type]entry)
)

// Register records factory as the client of interface T. A later
// registration for the same interface replaces the earlier one.
func Register[T any](factory func(*rpc.Sender) T) {
	t := reflect.TypeFor[T]()
	if t.Kind() != reflect.Interface {
		panic(fmt.Sprintf("proxy: %s is not an interface", t))
	}

	mu.Lock()
	defer mu.Unlock()
	factories[t] = entry{
		class:   rpc.ClassName(t),
		factory: func(s *rpc.Sender) any { return factory(s) },
	}
}

// Implement returns a client of T whose calls travel on the channel
// supplier returns at call time.
func Implement[T any](engine *rpc.Engine, supplier rpc.ChannelSupplier) (T, error) {
	var zero T
	t := reflect.TypeFor[T]()

	mu.RLock()
	e, ok := factories[t]
	mu.RUnlock()
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrNotRegistered, t)
	}
	return e.factory(rpc.NewSender(engine, e.class, supplier)).(T), nil
}

// Registered reports whether T has a client.
func Registered[T any]() bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := factories[reflect.TypeFor[T]()]
	return ok
}
