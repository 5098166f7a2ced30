package eventbus

import (
	"context"
	"sync"
)

// Closer is satisfied by subscriptions and anything else closed on shutdown.
type Closer interface {
	Close()
}

// ServiceLifecycle bundles the plumbing shared by long-running services: a
// cancellable context, tracked subscriptions and tracked workers.
type ServiceLifecycle struct {
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	closers []Closer
	wg      sync.WaitGroup
}

// Start derives the service context from ctx.
func (l *ServiceLifecycle) Start(ctx context.Context) {
	l.ctx, l.cancel = context.WithCancel(ctx)
}

// Context returns the active service context.
func (l *ServiceLifecycle) Context() context.Context {
	return l.ctx
}

// AddSubscriptions registers closers to run on Stop.
func (l *ServiceLifecycle) AddSubscriptions(subs ...Closer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, sub := range subs {
		if sub != nil {
			l.closers = append(l.closers, sub)
		}
	}
}

// Go runs worker on a goroutine tracked by Wait.
func (l *ServiceLifecycle) Go(worker func(ctx context.Context)) {
	if worker == nil {
		return
	}
	l.wg.Add(1)
	go func(ctx context.Context) {
		defer l.wg.Done()
		worker(ctx)
	}(l.ctx)
}

// Stop cancels the service context and closes tracked subscriptions.
func (l *ServiceLifecycle) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	l.mu.Lock()
	closers := l.closers
	l.closers = nil
	l.mu.Unlock()
	for _, c := range closers {
		c.Close()
	}
}

// Wait blocks until all workers return or ctx is done.
func (l *ServiceLifecycle) Wait(ctx context.Context) error {
	return WaitForWorkers(ctx, &l.wg)
}

// Shutdown combines Stop and Wait.
func (l *ServiceLifecycle) Shutdown(ctx context.Context) error {
	l.Stop()
	return l.Wait(ctx)
}

// WaitForWorkers waits for wg or returns ctx.Err() when ctx is done first.
func WaitForWorkers(ctx context.Context, wg *sync.WaitGroup) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
