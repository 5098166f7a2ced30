// Package appthread runs UI-bound work items one at a time, in submission
// order, on a single worker goroutine.
package appthread

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/codescan-io/lintbridge/internal/eventbus"
)

const defaultQueueSize = 64

// Dispatcher is a fire-and-forget executor with a single worker.
type Dispatcher struct {
	queue     chan func()
	lifecycle eventbus.ServiceLifecycle
	running   atomic.Bool
	startOnce sync.Once
}

// New constructs a dispatcher holding at most queueSize pending items.
func New(queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Dispatcher{queue: make(chan func(), queueSize)}
}

// Start launches the worker. Later calls are no-ops.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		d.lifecycle.Start(ctx)
		d.running.Store(true)
		d.lifecycle.Go(d.run)
	})
}

// InvokeLater enqueues fn without blocking. It returns false when the
// dispatcher is not running or its queue is full.
func (d *Dispatcher) InvokeLater(fn func()) bool {
	if fn == nil || !d.running.Load() {
		return false
	}
	select {
	case d.queue <- fn:
		return true
	default:
		log.Printf("[AppThread] queue full, dropping work item")
		return false
	}
}

// Shutdown stops accepting work and waits for the item in progress. Items
// still queued are discarded.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.running.Store(false)
	return d.lifecycle.Shutdown(ctx)
}

func (d *Dispatcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-d.queue:
			d.invoke(fn)
		}
	}
}

func (d *Dispatcher) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[AppThread] recovered panic in work item: %v", r)
		}
	}()
	fn()
}
