// Package task provides a single-assignment asynchronous result.
//
// A Future completes exactly once, either with a value or with an error.
// Completion callbacks run on their own goroutine, never on the goroutine
// that completed the future, so callers must not rely on affinity.
package task

import (
	"context"
	"errors"
	"sync"
)

// ErrAlreadyCompleted is returned when a future is completed twice.
var ErrAlreadyCompleted = errors.New("task: future already completed")

// Future is the pending result of an asynchronous operation.
type Future[T any] struct {
	once      sync.Once
	done      chan struct{}
	mu        sync.Mutex
	value     T
	err       error
	callbacks []func(T, error)
}

// New returns an uncompleted future.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Completed returns a future already completed with v.
func Completed[T any](v T) *Future[T] {
	f := New[T]()
	_ = f.Complete(v)
	return f
}

// Failed returns a future already failed with err.
func Failed[T any](err error) *Future[T] {
	f := New[T]()
	_ = f.Fail(err)
	return f
}

// Complete resolves the future with v.
func (f *Future[T]) Complete(v T) error {
	return f.finish(v, nil)
}

// Fail resolves the future with err.
func (f *Future[T]) Fail(err error) error {
	var zero T
	return f.finish(zero, err)
}

// Resolve completes with v when err is nil, otherwise fails with err.
func (f *Future[T]) Resolve(v T, err error) error {
	return f.finish(v, err)
}

func (f *Future[T]) finish(v T, err error) error {
	completed := false
	f.once.Do(func() {
		f.mu.Lock()
		f.value, f.err = v, err
		cbs := f.callbacks
		f.callbacks = nil
		close(f.done)
		f.mu.Unlock()

		for _, cb := range cbs {
			go cb(v, err)
		}
		completed = true
	})
	if !completed {
		return ErrAlreadyCompleted
	}
	return nil
}

// Done returns a channel closed once the future is resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// IsDone reports whether the future is resolved.
func (f *Future[T]) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Get blocks until the future resolves or ctx is done.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// OnComplete registers cb to run once the future resolves. If it already
// has, cb is scheduled immediately.
func (f *Future[T]) OnComplete(cb func(T, error)) {
	f.mu.Lock()
	select {
	case <-f.done:
		v, err := f.value, f.err
		f.mu.Unlock()
		go cb(v, err)
		return
	default:
	}
	f.callbacks = append(f.callbacks, cb)
	f.mu.Unlock()
}

// Map returns a future resolved with fn applied to f's value.
func Map[T, R any](f *Future[T], fn func(T) (R, error)) *Future[R] {
	out := New[R]()
	f.OnComplete(func(v T, err error) {
		if err != nil {
			_ = out.Fail(err)
			return
		}
		_ = out.Resolve(fn(v))
	})
	return out
}
