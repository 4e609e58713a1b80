// Package worker fans inbound updates out to handler goroutines.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Handler processes one unit of work.
type Handler[T any] func(ctx context.Context, item T)

// Dispatcher runs one goroutine per item received and tracks them so
// shutdown can wait for in-flight work.
type Dispatcher[T any] struct {
	handle Handler[T]
	logger *slog.Logger

	wg      sync.WaitGroup
	active  atomic.Int64
	handled atomic.Int64
}

// New creates a dispatcher for handle.
func New[T any](handle Handler[T], logger *slog.Logger) *Dispatcher[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher[T]{handle: handle, logger: logger}
}

// Run consumes items until ctx is cancelled or in is closed, then waits for
// every started handler to return. Handlers see ctx, so cancelling it also
// cancels their work.
func (d *Dispatcher[T]) Run(ctx context.Context, in <-chan T) {
	d.logger.Info("dispatcher started")
	defer func() {
		d.logger.Info("dispatcher draining", "in_flight", d.active.Load())
		d.wg.Wait()
		d.logger.Info("dispatcher stopped", "handled", d.handled.Load())
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-in:
			if !ok {
				return
			}
			d.dispatch(ctx, item)
		}
	}
}

// dispatch handles one item on its own goroutine.
func (d *Dispatcher[T]) dispatch(ctx context.Context, item T) {
	d.wg.Add(1)
	d.active.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.active.Add(-1)
		defer d.handled.Add(1)
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("handler panicked", "panic", r)
			}
		}()
		d.handle(ctx, item)
	}()
}
