// Package poll keeps backend state synchronized: fetch controllers that
// hold {data, loading, error} snapshots, periodic refreshers over an
// injectable clock, a per-component command cooldown gate, and the
// system reset fan-out.
package poll

import (
	"context"
	"log/slog"
	"sync"
)

// FetchFunc loads one resource from the backend.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// State is a point-in-time snapshot of a controller. Err is a display
// message; it can coexist with stale Data from the previous successful
// fetch unless the controller clears on error.
type State[T any] struct {
	Data    T      `json:"data"`
	Loading bool   `json:"loading"`
	Err     string `json:"error,omitempty"`
}

// Controller runs a fetch function and exposes the latest result.
type Controller[T any] struct {
	mu           sync.Mutex
	fetch        FetchFunc[T]
	state        State[T]
	clearOnError bool
	onUpdate     func()
	logger       *slog.Logger
}

// ControllerOption configures a Controller.
type ControllerOption[T any] func(*Controller[T])

// ClearOnError makes a failed fetch zero the held data instead of
// keeping the stale value. Pointer-typed controllers clear to nil,
// slice-typed ones to empty.
func ClearOnError[T any]() ControllerOption[T] {
	return func(c *Controller[T]) { c.clearOnError = true }
}

// OnUpdate registers a callback fired after every applied fetch result.
func OnUpdate[T any](fn func()) ControllerOption[T] {
	return func(c *Controller[T]) { c.onUpdate = fn }
}

// NewController creates a controller around a fetch function.
func NewController[T any](fetch FetchFunc[T], logger *slog.Logger, opts ...ControllerOption[T]) *Controller[T] {
	c := &Controller[T]{fetch: fetch, logger: logger}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start performs the initial fetch.
func (c *Controller[T]) Start(ctx context.Context) {
	c.Refetch(ctx)
}

// Refetch runs the fetch and applies the result. Overlapping calls are
// safe but not serialized; whichever finishes last wins, matching the
// refresh button racing the interval timer. A result arriving after ctx
// is cancelled is discarded.
func (c *Controller[T]) Refetch(ctx context.Context) {
	c.mu.Lock()
	c.state.Loading = true
	c.mu.Unlock()

	data, err := c.fetch(ctx)

	c.mu.Lock()
	c.state.Loading = false
	if ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.state.Err = err.Error()
		if c.clearOnError {
			var zero T
			c.state.Data = zero
		}
		c.mu.Unlock()
		c.logger.Warn("fetch failed", "err", err)
		c.notify()
		return
	}
	c.state.Err = ""
	c.state.Data = data
	c.mu.Unlock()
	c.notify()
}

func (c *Controller[T]) notify() {
	if c.onUpdate != nil {
		c.onUpdate()
	}
}

// Snapshot returns the current state.
func (c *Controller[T]) Snapshot() State[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetData overwrites the held data directly, clearing any error. Used
// when a selection change invalidates the current value without a
// fetch.
func (c *Controller[T]) SetData(data T) {
	c.mu.Lock()
	c.state.Data = data
	c.state.Err = ""
	c.mu.Unlock()
	c.notify()
}
