package daemon

import (
	"context"
	"log"
	"sync"

	"github.com/codescan-io/lintbridge/internal/config/store"
	"github.com/codescan-io/lintbridge/internal/constants"
	"github.com/codescan-io/lintbridge/internal/eventbus"
)

// configBridge turns configuration store changes into bus events.
type configBridge struct {
	store *store.Store
	bus   *eventbus.Bus

	mu   sync.Mutex
	open map[string]bool
}

func newConfigBridge(s *store.Store, bus *eventbus.Bus) *configBridge {
	return &configBridge{store: s, bus: bus, open: make(map[string]bool)}
}

// seed records which projects are open so later changes can be classified.
func (b *configBridge) seed(ctx context.Context) error {
	projects, err := b.store.ListProjects(ctx)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range projects {
		b.open[p.Name] = p.Open
	}
	return nil
}

func (b *configBridge) handle(ev store.ChangeEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), constants.StoreQueryTimeout)
	defer cancel()

	if ev.ConnectionsChanged {
		eventbus.Publish(ctx, b.bus, eventbus.Config.ConnectionsChanged, eventbus.SourceConfigWatcher, eventbus.ConnectionsChangedEvent{})
	}
	for _, name := range ev.ProjectsChanged {
		b.projectChanged(ctx, name)
	}
	for _, name := range ev.ModulesChanged {
		eventbus.Publish(ctx, b.bus, eventbus.Projects.ModulesChanged, eventbus.SourceConfigWatcher, eventbus.ModulesChangedEvent{Project: name})
	}
}

func (b *configBridge) projectChanged(ctx context.Context, name string) {
	open := false
	project, err := b.store.GetProject(ctx, name)
	switch {
	case err == nil:
		open = project.Open
	case store.IsNotFound(err):
	default:
		log.Printf("[Config] cannot read project %s: %v", name, err)
		return
	}

	b.mu.Lock()
	was := b.open[name]
	if store.IsNotFound(err) {
		delete(b.open, name)
	} else {
		b.open[name] = open
	}
	b.mu.Unlock()

	eventbus.Publish(ctx, b.bus, eventbus.Config.ProjectChanged, eventbus.SourceConfigWatcher, eventbus.ProjectConfigChangedEvent{Project: name})
	if was == open {
		return
	}
	state := eventbus.ProjectClosed
	if open {
		state = eventbus.ProjectOpened
	}
	log.Printf("[Config] project %s %s", name, state)
	eventbus.Publish(ctx, b.bus, eventbus.Projects.Lifecycle, eventbus.SourceConfigWatcher, eventbus.ProjectLifecycleEvent{Project: name, State: state})
}
