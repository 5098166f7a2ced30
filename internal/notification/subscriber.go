package notification

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/codescan-io/lintbridge/internal/config/store"
	"github.com/codescan-io/lintbridge/internal/constants"
	"github.com/codescan-io/lintbridge/internal/eventbus"
)

const subscriberQueue = 16

// Binding answers which connection and keys a project is bound to.
type Binding interface {
	ServerConnection(ctx context.Context, project string) (store.ServerConnection, bool, error)
	UniqueProjectKeys(ctx context.Context, project string) ([]string, error)
}

// Capabilities reports whether a server can deliver developer events.
type Capabilities interface {
	IsSupported(ctx context.Context, conn store.ServerConnection) (bool, error)
}

// Registrar is the side of Feed used by subscribers.
type Registrar interface {
	Register(reg Registration) *Handle
	Unregister(h *Handle)
}

// ListenerFactory builds the listener used for a project.
type ListenerFactory interface {
	ListenerFor(project string) EventListener
}

// SubscriberDeps groups what a Subscriber needs.
type SubscriberDeps struct {
	Binding      Binding
	Capabilities Capabilities
	Feed         Registrar
	Times        TimeStore
	Listeners    ListenerFactory
	Bus          *eventbus.Bus
}

// Subscriber keeps one project registered for server events. Register and
// Dispose are serialized; at most one listener is live at a time.
type Subscriber struct {
	project string
	deps    SubscriberDeps
	time    *ProjectTime

	mu       sync.Mutex
	handle   *Handle
	disposed bool

	trigger   chan struct{}
	lifecycle eventbus.ServiceLifecycle
	now       func() time.Time
}

// NewSubscriber creates a subscriber for project.
func NewSubscriber(project string, deps SubscriberDeps) *Subscriber {
	return &Subscriber{
		project: project,
		deps:    deps,
		time:    NewProjectTime(deps.Times, project),
		trigger: make(chan struct{}, 1),
		now:     time.Now,
	}
}

// Project returns the subscribed project name.
func (s *Subscriber) Project() string { return s.project }

// Start listens for configuration changes and schedules a first registration.
// It does nothing once the subscriber is disposed.
func (s *Subscriber) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.lifecycle.Start(ctx)

	if s.deps.Bus != nil {
		global := eventbus.SubscribeTo(s.deps.Bus, eventbus.Config.GlobalApplied,
			eventbus.WithSubscriptionName("notifications_global_"+s.project),
			eventbus.WithSubscriptionBuffer(subscriberQueue))
		conns := eventbus.SubscribeTo(s.deps.Bus, eventbus.Config.ConnectionsChanged,
			eventbus.WithSubscriptionName("notifications_connections_"+s.project),
			eventbus.WithSubscriptionBuffer(subscriberQueue))
		project := eventbus.SubscribeTo(s.deps.Bus, eventbus.Config.ProjectChanged,
			eventbus.WithSubscriptionName("notifications_project_"+s.project),
			eventbus.WithSubscriptionBuffer(subscriberQueue))
		modules := eventbus.SubscribeTo(s.deps.Bus, eventbus.Projects.ModulesChanged,
			eventbus.WithSubscriptionName("notifications_modules_"+s.project),
			eventbus.WithSubscriptionBuffer(subscriberQueue))
		s.lifecycle.AddSubscriptions(global, conns, project, modules)

		s.lifecycle.Go(func(ctx context.Context) {
			eventbus.Consume(ctx, global, nil, func(eventbus.GlobalSettingsAppliedEvent) { s.RegisterAsync() })
		})
		s.lifecycle.Go(func(ctx context.Context) {
			eventbus.Consume(ctx, conns, nil, func(eventbus.ConnectionsChangedEvent) { s.RegisterAsync() })
		})
		s.lifecycle.Go(func(ctx context.Context) {
			eventbus.Consume(ctx, project, nil, func(evt eventbus.ProjectConfigChangedEvent) {
				if evt.Project != s.project {
					return
				}
				s.resetTime(ctx)
				s.RegisterAsync()
			})
		})
		s.lifecycle.Go(func(ctx context.Context) {
			eventbus.Consume(ctx, modules, nil, func(evt eventbus.ModulesChangedEvent) {
				if evt.Project == s.project {
					s.RegisterAsync()
				}
			})
		})
	}

	s.lifecycle.Go(s.run)
	s.RegisterAsync()
}

// RegisterAsync schedules a registration on the subscriber's worker. Bursts
// collapse into a single pending run.
func (s *Subscriber) RegisterAsync() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *Subscriber) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.trigger:
			s.Register(ctx)
		}
	}
}

func (s *Subscriber) resetTime(ctx context.Context) {
	if err := s.time.Reset(ctx, s.now()); err != nil {
		log.Printf("[Notifications] cannot reset last poll time of %s: %v", s.project, err)
	}
}

// Register drops any current listener and registers a new one if the project
// is bound to a connection whose server supports developer events. Failures
// are logged and leave the project unregistered.
func (s *Subscriber) Register(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.unregisterLocked()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Notifications] recovered panic while registering %s: %v", s.project, r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, constants.RemoteRequestTimeout)
	defer cancel()

	conn, ok, err := s.deps.Binding.ServerConnection(ctx, s.project)
	if store.IsNotFound(err) {
		return
	}
	if err != nil {
		log.Printf("[Notifications] Cannot register for server notifications. The server might be unreachable: %v", err)
		return
	}
	if !ok || conn.NotificationsDisabled {
		return
	}

	supported, err := s.deps.Capabilities.IsSupported(ctx, conn)
	if err != nil {
		log.Printf("[Notifications] Cannot register for server notifications. The server might be unreachable: %v", err)
		return
	}
	if !supported {
		return
	}

	keys, err := s.deps.Binding.UniqueProjectKeys(ctx, s.project)
	if err != nil {
		log.Printf("[Notifications] Cannot register for server notifications. The server might be unreachable: %v", err)
		return
	}
	if len(keys) == 0 {
		return
	}

	s.handle = s.deps.Feed.Register(Registration{
		ConnectionName: conn.Name,
		ProjectKeys:    keys,
		Time:           s.time,
		Listener:       s.deps.Listeners.ListenerFor(s.project),
	})
	log.Printf("[Notifications] %s listening on %s for %v", s.project, conn.Name, keys)
}

func (s *Subscriber) unregisterLocked() {
	if s.handle == nil {
		return
	}
	s.deps.Feed.Unregister(s.handle)
	s.handle = nil
}

// Registered reports whether a listener is live.
func (s *Subscriber) Registered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle != nil
}

// Dispose unregisters before returning and stops reacting to changes.
func (s *Subscriber) Dispose(ctx context.Context) error {
	s.mu.Lock()
	s.disposed = true
	s.unregisterLocked()
	s.mu.Unlock()

	if s.lifecycle.Context() == nil {
		return nil
	}
	return s.lifecycle.Shutdown(ctx)
}
