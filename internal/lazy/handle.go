// Package lazy provides shared handles that initialize an expensive resource
// at most once per process, on first use.
package lazy

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// InitFunc builds the resource. It runs detached from the caller's
// cancellation so one abandoned request cannot fail the load for everyone
// else waiting on it.
type InitFunc[T any] func(ctx context.Context) (T, error)

// Observer is notified after every initialization attempt.
type Observer func(name string, duration time.Duration, err error)

// Handle holds a lazily initialized value.
//
// Concurrent first callers share a single InitFunc invocation. A successful
// value is published once and returned without locking afterwards. Failures
// are handed to every waiter of that attempt and are not cached, so the next
// Get tries again.
type Handle[T any] struct {
	name     string
	init     InitFunc[T]
	observer Observer

	group singleflight.Group
	value atomic.Pointer[T]
}

// Option configures a Handle.
type Option[T any] func(*Handle[T])

// WithObserver registers a callback for initialization attempts.
func WithObserver[T any](fn Observer) Option[T] {
	return func(h *Handle[T]) { h.observer = fn }
}

// New creates a handle. Nothing runs until the first Get.
func New[T any](name string, init InitFunc[T], opts ...Option[T]) *Handle[T] {
	h := &Handle[T]{name: name, init: init}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Ready returns a handle that already holds v.
func Ready[T any](name string, v T) *Handle[T] {
	h := &Handle[T]{name: name}
	h.value.Store(&v)
	return h
}

// Name returns the handle name.
func (h *Handle[T]) Name() string {
	return h.name
}

// Get returns the value, initializing it on first use. A caller whose ctx
// ends while initialization is in flight gets ctx.Err(); the initialization
// itself keeps running for the other waiters.
func (h *Handle[T]) Get(ctx context.Context) (T, error) {
	if v := h.value.Load(); v != nil {
		return *v, nil
	}

	ch := h.group.DoChan(h.name, func() (any, error) {
		if v := h.value.Load(); v != nil {
			return *v, nil
		}
		start := time.Now()
		v, err := h.init(context.WithoutCancel(ctx))
		if h.observer != nil {
			h.observer(h.name, time.Since(start), err)
		}
		if err != nil {
			return nil, err
		}
		h.value.Store(&v)
		return v, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		v, _ := res.Val.(T)
		return v, nil
	}
}

// IsReady reports whether the value has been initialized.
func (h *Handle[T]) IsReady() bool {
	return h.value.Load() != nil
}
