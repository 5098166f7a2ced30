// Package notification keeps open projects subscribed to server developer
// events and turns received events into user alerts.
package notification

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"

	"github.com/codescan-io/lintbridge/internal/config/store"
	"github.com/codescan-io/lintbridge/internal/constants"
	"github.com/codescan-io/lintbridge/internal/eventbus"
)

// ProjectLister lists configured projects.
type ProjectLister interface {
	ListProjects(ctx context.Context) ([]store.Project, error)
}

// Manager owns one Subscriber per open project.
type Manager struct {
	projects ProjectLister
	deps     SubscriberDeps

	// reconcileMu serializes Reconcile and Shutdown end to end.
	reconcileMu sync.Mutex
	closed      bool

	mu          sync.Mutex
	subscribers map[string]*Subscriber
	enabled     bool

	lifecycle eventbus.ServiceLifecycle
}

// NewManager creates a manager; subscribers share deps.
func NewManager(projects ProjectLister, deps SubscriberDeps) *Manager {
	return &Manager{
		projects:    projects,
		deps:        deps,
		subscribers: make(map[string]*Subscriber),
		enabled:     true,
	}
}

// Start subscribes existing open projects and follows project changes.
func (m *Manager) Start(ctx context.Context) error {
	m.lifecycle.Start(ctx)

	if m.deps.Bus != nil {
		lifecycleSub := eventbus.SubscribeTo(m.deps.Bus, eventbus.Projects.Lifecycle,
			eventbus.WithSubscriptionName("notifications_manager_lifecycle"),
			eventbus.WithSubscriptionBuffer(subscriberQueue))
		projectSub := eventbus.SubscribeTo(m.deps.Bus, eventbus.Config.ProjectChanged,
			eventbus.WithSubscriptionName("notifications_manager_projects"),
			eventbus.WithSubscriptionBuffer(subscriberQueue))
		m.lifecycle.AddSubscriptions(lifecycleSub, projectSub)

		m.lifecycle.Go(func(ctx context.Context) {
			eventbus.Consume(ctx, lifecycleSub, nil, func(eventbus.ProjectLifecycleEvent) { m.Reconcile(ctx) })
		})
		m.lifecycle.Go(func(ctx context.Context) {
			eventbus.Consume(ctx, projectSub, nil, func(eventbus.ProjectConfigChangedEvent) { m.Reconcile(ctx) })
		})
	}

	m.Reconcile(ctx)
	return nil
}

// SetEnabled turns notifications on or off for every project. Before Start
// it only records the flag.
func (m *Manager) SetEnabled(ctx context.Context, enabled bool) {
	m.mu.Lock()
	changed := m.enabled != enabled
	m.enabled = enabled
	m.mu.Unlock()
	if changed && m.lifecycle.Context() != nil {
		m.Reconcile(ctx)
	}
}

// Enabled reports the global notification switch.
func (m *Manager) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// Reconcile starts subscribers for newly opened projects and disposes those
// of closed or removed ones. Concurrent calls run one after another, so the
// last call always acts on the latest project list.
func (m *Manager) Reconcile(ctx context.Context) {
	m.reconcileMu.Lock()
	defer m.reconcileMu.Unlock()
	if m.closed {
		return
	}

	queryCtx, cancel := context.WithTimeout(ctx, constants.StoreQueryTimeout)
	projects, err := m.projects.ListProjects(queryCtx)
	cancel()
	if err != nil {
		log.Printf("[Notifications] cannot list projects: %v", err)
		return
	}

	m.mu.Lock()
	open := make(map[string]struct{})
	if m.enabled {
		for _, p := range projects {
			if p.Open {
				open[p.Name] = struct{}{}
			}
		}
	}

	var stale []*Subscriber
	for name, sub := range m.subscribers {
		if _, ok := open[name]; !ok {
			stale = append(stale, sub)
			delete(m.subscribers, name)
		}
	}
	var fresh []*Subscriber
	for name := range open {
		if _, ok := m.subscribers[name]; ok {
			continue
		}
		sub := NewSubscriber(name, m.deps)
		m.subscribers[name] = sub
		fresh = append(fresh, sub)
	}
	m.mu.Unlock()

	for _, sub := range stale {
		if err := sub.Dispose(ctx); err != nil {
			log.Printf("[Notifications] dispose %s: %v", sub.Project(), err)
		}
	}
	serviceCtx := m.lifecycle.Context()
	if serviceCtx == nil {
		serviceCtx = ctx
	}
	for _, sub := range fresh {
		sub.Start(serviceCtx)
	}
}

// Subscriber returns the subscriber of project, if any.
func (m *Manager) Subscriber(project string) (*Subscriber, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subscribers[project]
	return sub, ok
}

// Projects lists the projects currently subscribed.
func (m *Manager) Projects() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.subscribers))
	for name := range m.subscribers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Shutdown disposes every subscriber. Later Reconcile calls do nothing.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.lifecycle.Stop()

	m.reconcileMu.Lock()
	m.closed = true
	m.reconcileMu.Unlock()

	m.mu.Lock()
	subs := make([]*Subscriber, 0, len(m.subscribers))
	for name, sub := range m.subscribers {
		subs = append(subs, sub)
		delete(m.subscribers, name)
	}
	m.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		if err := sub.Dispose(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := m.lifecycle.Wait(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
