package runtime

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/codescan-io/lintbridge/internal/config/store"
	"github.com/codescan-io/lintbridge/internal/constants"
)

// ServiceFactory builds a fresh service instance for every start or restart.
type ServiceFactory func(ctx context.Context) (Service, error)

// ChangeSource is the part of the configuration store the host watches.
type ChangeSource interface {
	Watch(ctx context.Context, interval time.Duration) (<-chan store.ChangeEvent, error)
}

// ServiceHost starts registered services in order and stops them in reverse.
type ServiceHost struct {
	mu        sync.Mutex
	order     []string
	entries   map[string]*registration
	started   bool
	errs      chan error
	cancel    context.CancelFunc
	parentCtx context.Context
}

// Option tunes a registration.
type Option func(*registration)

type registration struct {
	name            string
	factory         ServiceFactory
	service         Service
	shutdownTimeout time.Duration
	watching        bool
}

// WithShutdownTimeout overrides the per-service shutdown budget.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(reg *registration) {
		reg.shutdownTimeout = timeout
	}
}

// NewServiceHost creates an empty host.
func NewServiceHost() *ServiceHost {
	return &ServiceHost{
		entries: make(map[string]*registration),
		errs:    make(chan error, 1),
	}
}

// Register adds a named service. Registration is closed once the host starts.
func (h *ServiceHost) Register(name string, factory ServiceFactory, opts ...Option) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started {
		return fmt.Errorf("runtime: cannot register service %q after start", name)
	}
	if _, exists := h.entries[name]; exists {
		return fmt.Errorf("runtime: service %q already registered", name)
	}

	reg := &registration{name: name, factory: factory, shutdownTimeout: constants.Duration5Seconds}
	for _, opt := range opts {
		opt(reg)
	}
	h.entries[name] = reg
	h.order = append(h.order, name)
	return nil
}

// RegisterService registers an already constructed service.
func (h *ServiceHost) RegisterService(name string, svc Service, opts ...Option) error {
	return h.Register(name, func(context.Context) (Service, error) { return svc, nil }, opts...)
}

// Names lists registered services in start order.
func (h *ServiceHost) Names() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.order...)
}

// Running reports whether the named service is currently started.
func (h *ServiceHost) Running(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	reg := h.entries[name]
	return reg != nil && reg.service != nil
}

// Start creates and starts every service. A failure rolls back the services
// already started.
func (h *ServiceHost) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return errors.New("runtime: service host already started")
	}
	h.started = true
	h.parentCtx, h.cancel = context.WithCancel(ctx)
	order := append([]string(nil), h.order...)
	h.mu.Unlock()

	started := make([]*registration, 0, len(order))
	for _, name := range order {
		reg := h.registration(name)
		if reg == nil {
			continue
		}
		if err := h.startOne(reg); err != nil {
			h.rollback(started)
			return err
		}
		started = append(started, reg)
	}
	return nil
}

func (h *ServiceHost) startOne(reg *registration) error {
	svc, err := reg.factory(h.parentCtx)
	if err != nil {
		return fmt.Errorf("runtime: create service %q: %w", reg.name, err)
	}
	if err := svc.Start(h.parentCtx); err != nil {
		return fmt.Errorf("runtime: start service %q: %w", reg.name, err)
	}
	h.mu.Lock()
	reg.service = svc
	h.mu.Unlock()
	h.forwardErrors(reg, svc)
	return nil
}

func (h *ServiceHost) stopOne(ctx context.Context, reg *registration) error {
	h.mu.Lock()
	svc := reg.service
	reg.service = nil
	reg.watching = false
	h.mu.Unlock()
	if svc == nil {
		return nil
	}

	timeout := reg.shutdownTimeout
	if timeout <= 0 {
		timeout = constants.Duration5Seconds
	}
	stopCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := svc.Shutdown(stopCtx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("runtime: shutdown service %q: %w", reg.name, err)
	}
	return nil
}

// Stop shuts services down in reverse order and returns the last failure.
func (h *ServiceHost) Stop(ctx context.Context) error {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return nil
	}
	h.started = false
	cancel := h.cancel
	h.cancel = nil
	order := append([]string(nil), h.order...)
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	var stopErr error
	for i := len(order) - 1; i >= 0; i-- {
		reg := h.registration(order[i])
		if reg == nil {
			continue
		}
		if err := h.stopOne(ctx, reg); err != nil {
			stopErr = err
		}
	}
	return stopErr
}

// Restart replaces the named service with a fresh instance.
func (h *ServiceHost) Restart(ctx context.Context, name string) error {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return errors.New("runtime: host not started")
	}
	reg := h.entries[name]
	h.mu.Unlock()
	if reg == nil {
		return fmt.Errorf("runtime: service %q not registered", name)
	}

	if err := h.stopOne(ctx, reg); err != nil {
		return err
	}
	if err := h.startOne(reg); err != nil {
		return err
	}
	log.Printf("[Runtime] service %s restarted", name)
	return nil
}

// Errors delivers fatal errors reported by services.
func (h *ServiceHost) Errors() <-chan error {
	return h.errs
}

// WatchConfig forwards configuration store changes to handler while the
// host runs. The returned function stops watching.
func (h *ServiceHost) WatchConfig(src ChangeSource, interval time.Duration, handler func(store.ChangeEvent)) (func(), error) {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return nil, errors.New("runtime: cannot watch config before host is started")
	}
	parentCtx := h.parentCtx
	h.mu.Unlock()

	watchCtx, cancel := context.WithCancel(parentCtx)
	events, err := src.Watch(watchCtx, interval)
	if err != nil {
		cancel()
		return nil, err
	}

	go func() {
		for {
			select {
			case <-watchCtx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				if handler != nil {
					handler(ev)
				}
			}
		}
	}()
	return cancel, nil
}

func (h *ServiceHost) registration(name string) *registration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entries[name]
}

func (h *ServiceHost) forwardErrors(reg *registration, svc Service) {
	observable, ok := svc.(interface{ Errors() <-chan error })
	if !ok {
		return
	}
	h.mu.Lock()
	if reg.watching {
		h.mu.Unlock()
		return
	}
	reg.watching = true
	h.mu.Unlock()

	go func(name string, ch <-chan error) {
		for err := range ch {
			if err == nil {
				continue
			}
			select {
			case h.errs <- fmt.Errorf("%s service error: %w", name, err):
			default:
			}
		}
	}(reg.name, observable.Errors())
}

func (h *ServiceHost) rollback(started []*registration) {
	ctx, cancel := context.WithTimeout(context.Background(), constants.Duration5Seconds)
	defer cancel()
	for i := len(started) - 1; i >= 0; i-- {
		_ = h.stopOne(ctx, started[i])
	}
}
