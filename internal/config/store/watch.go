package store

import (
	"context"
	"database/sql"
	"sort"
	"time"
)

// ChangeSnapshot captures update markers for configuration tables. Markers
// combine row counts with the newest updated_at so deletions are observed.
type ChangeSnapshot struct {
	Connections string
	Projects    map[string]string
	Modules     map[string]string
}

// ChangeEvent describes modified configuration groups since the last snapshot.
type ChangeEvent struct {
	ConnectionsChanged bool
	// ProjectsChanged lists projects that were added, removed or edited.
	ProjectsChanged []string
	// ModulesChanged lists projects whose module set changed.
	ModulesChanged []string
	Snapshot       ChangeSnapshot
}

// Changed returns true when at least one tracked group changed.
func (e ChangeEvent) Changed() bool {
	return e.ConnectionsChanged || len(e.ProjectsChanged) > 0 || len(e.ModulesChanged) > 0
}

// Watch polls the configuration store for changes and emits events on the returned channel.
// The caller must cancel ctx to terminate the watcher. The provided interval is clamped to
// a minimum of 500ms to avoid excessive polling.
func (s *Store) Watch(ctx context.Context, interval time.Duration) (<-chan ChangeEvent, error) {
	if s == nil {
		return nil, sql.ErrConnDone
	}

	if interval <= 0 {
		interval = time.Second
	}
	if interval < 500*time.Millisecond {
		interval = 500 * time.Millisecond
	}

	out := make(chan ChangeEvent, 1)

	initial, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	go func() {
		defer close(out)

		last := initial
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				next, err := s.snapshot(ctx)
				if err != nil {
					continue
				}

				ev := diffSnapshots(last, next)
				if !ev.Changed() {
					continue
				}
				select {
				case out <- ev:
					last = next
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (s *Store) snapshot(ctx context.Context) (ChangeSnapshot, error) {
	snap := ChangeSnapshot{
		Projects: make(map[string]string),
		Modules:  make(map[string]string),
	}

	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) || '|' || IFNULL(MAX(updated_at), '')
		FROM connections
	`).Scan(&snap.Connections); err != nil {
		return ChangeSnapshot{}, err
	}

	if err := s.collectMarkers(ctx, snap.Projects, `
		SELECT name, updated_at FROM projects
	`); err != nil {
		return ChangeSnapshot{}, err
	}

	if err := s.collectMarkers(ctx, snap.Modules, `
		SELECT project_name, COUNT(*) || '|' || MAX(updated_at)
		FROM modules GROUP BY project_name
	`); err != nil {
		return ChangeSnapshot{}, err
	}

	return snap, nil
}

func (s *Store) collectMarkers(ctx context.Context, dst map[string]string, query string) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key, marker string
		if err := rows.Scan(&key, &marker); err != nil {
			return err
		}
		dst[key] = marker
	}
	return rows.Err()
}

func diffSnapshots(prev, curr ChangeSnapshot) ChangeEvent {
	return ChangeEvent{
		ConnectionsChanged: curr.Connections != prev.Connections,
		ProjectsChanged:    diffMarkers(prev.Projects, curr.Projects),
		ModulesChanged:     diffMarkers(prev.Modules, curr.Modules),
		Snapshot:           curr,
	}
}

func diffMarkers(prev, curr map[string]string) []string {
	var changed []string
	for key, marker := range curr {
		if prev[key] != marker {
			changed = append(changed, key)
		}
	}
	for key := range prev {
		if _, ok := curr[key]; !ok {
			changed = append(changed, key)
		}
	}
	sort.Strings(changed)
	return changed
}
