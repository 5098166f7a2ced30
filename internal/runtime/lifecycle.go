// Package runtime hosts the daemon's long-running services.
package runtime

import (
	"context"
	"sync"
)

// Service is a unit started and stopped by the ServiceHost.
type Service interface {
	Start(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// Lifecycle signals daemon shutdown to anyone waiting on Done.
type Lifecycle struct {
	once sync.Once
	done chan struct{}
}

// NewLifecycle creates an open lifecycle.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{done: make(chan struct{})}
}

// Done is closed once Shutdown has been called.
func (l *Lifecycle) Done() <-chan struct{} {
	return l.done
}

// Shutdown closes Done. Repeated calls are no-ops.
func (l *Lifecycle) Shutdown() {
	l.once.Do(func() { close(l.done) })
}
