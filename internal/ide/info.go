// Package ide holds the identity of the running IDE and answers which
// projects are open.
package ide

import (
	"context"
	"log"
	"sync"

	"github.com/codescan-io/lintbridge/internal/config"
	"github.com/codescan-io/lintbridge/internal/config/store"
	"github.com/codescan-io/lintbridge/internal/constants"
)

// ProjectLister lists configured projects.
type ProjectLister interface {
	ListProjects(ctx context.Context) ([]store.Project, error)
}

// Info combines the configured IDE identity with the project list.
type Info struct {
	projects ProjectLister

	mu       sync.RWMutex
	identity config.IDESettings
}

// NewInfo creates an Info with the given identity.
func NewInfo(identity config.IDESettings, projects ProjectLister) *Info {
	return &Info{identity: identity, projects: projects}
}

// SetIdentity replaces the identity after settings were reloaded.
func (i *Info) SetIdentity(identity config.IDESettings) {
	i.mu.Lock()
	i.identity = identity
	i.mu.Unlock()
}

// Identity returns the current identity.
func (i *Info) Identity() config.IDESettings {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.identity
}

// OpenProjectNames returns the names of open projects in name order. Store
// failures yield an empty list.
func (i *Info) OpenProjectNames() []string {
	ctx, cancel := context.WithTimeout(context.Background(), constants.StoreQueryTimeout)
	defer cancel()
	return i.OpenProjects(ctx)
}

// OpenProjects is OpenProjectNames with a caller supplied context.
func (i *Info) OpenProjects(ctx context.Context) []string {
	if i.projects == nil {
		return nil
	}
	projects, err := i.projects.ListProjects(ctx)
	if err != nil {
		log.Printf("[IDE] failed to list projects: %v", err)
		return nil
	}
	var names []string
	for _, p := range projects {
		if p.Open {
			names = append(names, p.Name)
		}
	}
	return names
}
