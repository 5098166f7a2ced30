package notification

import (
	"context"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/codescan-io/lintbridge/internal/config/store"
	"github.com/codescan-io/lintbridge/internal/constants"
	"github.com/codescan-io/lintbridge/internal/eventbus"
	"github.com/codescan-io/lintbridge/internal/serverapi"
)

// EventSearcher fetches developer events from a server.
type EventSearcher interface {
	SearchEvents(ctx context.Context, conn store.ServerConnection, since map[string]time.Time) ([]serverapi.ServerEvent, error)
}

// ConnectionSource reads the current definition of a connection.
type ConnectionSource interface {
	GetConnection(ctx context.Context, name string) (store.ServerConnection, error)
}

// EventListener receives events for the project keys it was registered with.
type EventListener interface {
	OnEvent(ctx context.Context, conn store.ServerConnection, event serverapi.ServerEvent)
}

// EventListenerFunc adapts a function to EventListener.
type EventListenerFunc func(ctx context.Context, conn store.ServerConnection, event serverapi.ServerEvent)

// OnEvent calls f.
func (f EventListenerFunc) OnEvent(ctx context.Context, conn store.ServerConnection, event serverapi.ServerEvent) {
	f(ctx, conn, event)
}

// Registration describes what a listener wants to hear about.
type Registration struct {
	ConnectionName string
	ProjectKeys    []string
	Time           *ProjectTime
	Listener       EventListener
}

// Handle identifies a live registration. After Feed.Unregister returns, the
// listener behind it is never called again.
type Handle struct {
	id  string
	reg Registration

	mu     sync.Mutex
	closed bool
}

// ID returns the registration identifier.
func (h *Handle) ID() string { return h.id }

// ProjectKeys returns the keys this handle listens to.
func (h *Handle) ProjectKeys() []string { return append([]string(nil), h.reg.ProjectKeys...) }

// Feed polls servers for developer events and fans them out to registered
// listeners.
type Feed struct {
	api   EventSearcher
	conns ConnectionSource

	interval atomic.Int64
	wake     chan struct{}

	mu      sync.Mutex
	handles map[string]*Handle

	lifecycle eventbus.ServiceLifecycle
	polls     atomic.Uint64
}

// NewFeed creates a Feed polling at interval.
func NewFeed(api EventSearcher, conns ConnectionSource, interval time.Duration) *Feed {
	f := &Feed{
		api:     api,
		conns:   conns,
		wake:    make(chan struct{}, 1),
		handles: make(map[string]*Handle),
	}
	f.SetInterval(interval)
	return f
}

// SetInterval changes the poll period, clamped to the allowed minimum.
func (f *Feed) SetInterval(d time.Duration) {
	if d <= 0 {
		d = constants.DefaultNotificationPollInterval
	}
	if d < constants.MinNotificationPollInterval {
		d = constants.MinNotificationPollInterval
	}
	f.interval.Store(int64(d))
	f.kick()
}

// Interval returns the current poll period.
func (f *Feed) Interval() time.Duration {
	return time.Duration(f.interval.Load())
}

// Register adds a listener and returns its handle.
func (f *Feed) Register(reg Registration) *Handle {
	h := &Handle{id: uuid.NewString(), reg: reg}
	f.mu.Lock()
	f.handles[h.id] = h
	f.mu.Unlock()
	return h
}

// Unregister removes h. It waits for an in-flight delivery to h to finish.
func (f *Feed) Unregister(h *Handle) {
	if h == nil {
		return
	}
	f.mu.Lock()
	delete(f.handles, h.id)
	f.mu.Unlock()

	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
}

// Count reports the number of live registrations.
func (f *Feed) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handles)
}

// Polls reports how many poll rounds have completed.
func (f *Feed) Polls() uint64 { return f.polls.Load() }

// Start launches the poll loop.
func (f *Feed) Start(ctx context.Context) {
	f.lifecycle.Start(ctx)
	f.lifecycle.Go(f.run)
}

// Shutdown stops polling and waits for the loop to exit.
func (f *Feed) Shutdown(ctx context.Context) error {
	return f.lifecycle.Shutdown(ctx)
}

// PollNow asks the loop to poll without waiting for the next tick.
func (f *Feed) PollNow() { f.kick() }

func (f *Feed) kick() {
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

func (f *Feed) run(ctx context.Context) {
	timer := time.NewTimer(f.Interval())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-f.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
		f.PollOnce(ctx)
		timer.Reset(f.Interval())
	}
}

// PollOnce runs a single poll round over every registration.
func (f *Feed) PollOnce(ctx context.Context) {
	defer f.polls.Add(1)
	for _, h := range f.snapshot() {
		if ctx.Err() != nil {
			return
		}
		f.pollHandle(ctx, h)
	}
}

func (f *Feed) snapshot() []*Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Handle, 0, len(f.handles))
	for _, h := range f.handles {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (f *Feed) pollHandle(ctx context.Context, h *Handle) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Notifications] recovered panic while polling %s: %v", h.reg.ConnectionName, r)
		}
	}()

	conn, err := f.conns.GetConnection(ctx, h.reg.ConnectionName)
	if err != nil {
		if !store.IsNotFound(err) {
			log.Printf("[Notifications] cannot read connection %s: %v", h.reg.ConnectionName, err)
		}
		return
	}
	if conn.NotificationsDisabled {
		return
	}

	from, err := h.reg.Time.Get(ctx)
	if err != nil {
		log.Printf("[Notifications] cannot read last poll time of %s: %v", h.reg.Time.Project(), err)
		return
	}
	since := make(map[string]time.Time, len(h.reg.ProjectKeys))
	keys := make(map[string]struct{}, len(h.reg.ProjectKeys))
	for _, key := range h.reg.ProjectKeys {
		since[key] = from
		keys[key] = struct{}{}
	}

	reqCtx, cancel := context.WithTimeout(ctx, constants.RemoteRequestTimeout)
	events, err := f.api.SearchEvents(reqCtx, conn, since)
	cancel()
	if err != nil {
		log.Printf("[Notifications] polling %s failed: %v", conn.Name, err)
		return
	}

	newest := from
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	for _, ev := range events {
		if _, ok := keys[ev.ProjectKey]; !ok {
			continue
		}
		if !ev.Time.After(from) {
			continue
		}
		h.reg.Listener.OnEvent(ctx, conn, ev)
		if ev.Time.After(newest) {
			newest = ev.Time
		}
	}
	h.mu.Unlock()

	if newest.After(from) {
		if _, err := h.reg.Time.Advance(ctx, newest); err != nil {
			log.Printf("[Notifications] cannot store last poll time of %s: %v", h.reg.Time.Project(), err)
		}
	}
}
