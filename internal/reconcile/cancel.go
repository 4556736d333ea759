package reconcile

import (
	"context"
	"sync/atomic"
)

// Canceller is polled before each file is applied. Returning true stops the
// run as cancelled with the work done so far persisted.
type Canceller interface {
	Cancelled(ctx context.Context) bool
}

// CancelFunc adapts a function to Canceller.
type CancelFunc func(ctx context.Context) bool

// Cancelled implements Canceller.
func (f CancelFunc) Cancelled(ctx context.Context) bool {
	return f != nil && f(ctx)
}

// StopFlag is a Canceller flipped from another goroutine, typically a
// signal handler.
type StopFlag struct {
	stopped atomic.Bool
}

// Stop requests a cooperative stop.
func (f *StopFlag) Stop() {
	f.stopped.Store(true)
}

// Cancelled implements Canceller.
func (f *StopFlag) Cancelled(context.Context) bool {
	return f.stopped.Load()
}

// AnyCanceller reports cancellation when any of cs does. Nil entries are ignored.
func AnyCanceller(cs ...Canceller) Canceller {
	return CancelFunc(func(ctx context.Context) bool {
		for _, c := range cs {
			if c != nil && c.Cancelled(ctx) {
				return true
			}
		}
		return false
	})
}
