// Package binding resolves which server connection and remote project keys a
// local project is bound to.
package binding

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/codescan-io/lintbridge/internal/config/store"
)

// Store is the subset of the configuration store read by the resolver.
type Store interface {
	GetProject(ctx context.Context, name string) (store.Project, error)
	ListProjects(ctx context.Context) ([]store.Project, error)
	GetConnection(ctx context.Context, name string) (store.ServerConnection, error)
	ListConnections(ctx context.Context) ([]store.ServerConnection, error)
	ListModules(ctx context.Context, project string) ([]store.Module, error)
}

// Resolver reads bindings from the store on every call.
type Resolver struct {
	store Store
}

// NewResolver creates a resolver.
func NewResolver(s Store) *Resolver {
	return &Resolver{store: s}
}

// ServerConnection returns the connection the project is bound to. ok is
// false when the project is unbound or its connection no longer exists.
func (r *Resolver) ServerConnection(ctx context.Context, project string) (conn store.ServerConnection, ok bool, err error) {
	p, err := r.store.GetProject(ctx, project)
	if err != nil {
		return store.ServerConnection{}, false, err
	}
	if !p.Bound() {
		return store.ServerConnection{}, false, nil
	}
	conn, err = r.store.GetConnection(ctx, p.ConnectionName)
	if store.IsNotFound(err) {
		return store.ServerConnection{}, false, nil
	}
	if err != nil {
		return store.ServerConnection{}, false, err
	}
	return conn, true, nil
}

// UniqueProjectKeys returns the distinct remote project keys of the project
// and its modules, sorted.
func (r *Resolver) UniqueProjectKeys(ctx context.Context, project string) ([]string, error) {
	p, err := r.store.GetProject(ctx, project)
	if err != nil {
		return nil, err
	}
	modules, err := r.store.ListModules(ctx, project)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	if key := strings.TrimSpace(p.ProjectKey); key != "" {
		seen[key] = struct{}{}
	}
	for _, m := range modules {
		if key := strings.TrimSpace(m.ProjectKey); key != "" {
			seen[key] = struct{}{}
		}
	}

	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// ConnectionForServer returns the connection whose host URL designates
// serverURL.
func (r *Resolver) ConnectionForServer(ctx context.Context, serverURL string) (store.ServerConnection, error) {
	conns, err := r.store.ListConnections(ctx)
	if err != nil {
		return store.ServerConnection{}, err
	}
	want := normalizeURL(serverURL)
	for _, conn := range conns {
		if want != "" && normalizeURL(conn.HostURL) == want {
			return conn, nil
		}
	}
	return store.ServerConnection{}, store.NotFoundError{Entity: "connection for server", Key: serverURL}
}

// OpenProjectForKey returns the first open project, by name, bound to
// connection whose project or module keys include projectKey.
func (r *Resolver) OpenProjectForKey(ctx context.Context, connection, projectKey string) (store.Project, error) {
	projects, err := r.store.ListProjects(ctx)
	if err != nil {
		return store.Project{}, err
	}
	for _, p := range projects {
		if !p.Open || p.ConnectionName != connection {
			continue
		}
		keys, err := r.UniqueProjectKeys(ctx, p.Name)
		if err != nil {
			return store.Project{}, fmt.Errorf("binding: keys of %s: %w", p.Name, err)
		}
		for _, key := range keys {
			if key == projectKey {
				return p, nil
			}
		}
	}
	return store.Project{}, store.NotFoundError{Entity: "open project bound to", Key: projectKey}
}

func normalizeURL(u string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(u), "/"))
}
