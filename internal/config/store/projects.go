package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// SaveProject inserts or updates a project and its binding.
func (s *Store) SaveProject(ctx context.Context, project Project) error {
	if err := s.ensureWritable("save project"); err != nil {
		return err
	}
	name := strings.TrimSpace(project.Name)
	if name == "" {
		return fmt.Errorf("config: save project: name is required")
	}

	ts := s.timestamp()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (name, is_open, connection_name, project_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			is_open = excluded.is_open,
			connection_name = excluded.connection_name,
			project_key = excluded.project_key,
			updated_at = excluded.updated_at
	`, name, boolToInt(project.Open), strings.TrimSpace(project.ConnectionName), strings.TrimSpace(project.ProjectKey), ts, ts)
	if err != nil {
		return fmt.Errorf("config: save project %q: %w", name, err)
	}
	return nil
}

// GetProject returns the named project.
func (s *Store) GetProject(ctx context.Context, name string) (Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, is_open, connection_name, project_key, updated_at
		FROM projects WHERE name = ?
	`, name)
	project, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, NotFoundError{Entity: "project", Key: name}
	}
	if err != nil {
		return Project{}, fmt.Errorf("config: get project %q: %w", name, err)
	}
	return project, nil
}

// ListProjects returns all projects ordered by name.
func (s *Store) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, is_open, connection_name, project_key, updated_at
		FROM projects ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("config: list projects: %w", err)
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("config: scan project: %w", err)
		}
		out = append(out, project)
	}
	return out, rows.Err()
}

// SetProjectOpen marks a project as open or closed.
func (s *Store) SetProjectOpen(ctx context.Context, name string, open bool) error {
	if err := s.ensureWritable("set project open"); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE projects SET is_open = ?, updated_at = ? WHERE name = ?
	`, boolToInt(open), s.timestamp(), name)
	if err != nil {
		return fmt.Errorf("config: set project %q open: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NotFoundError{Entity: "project", Key: name}
	}
	return nil
}

// DeleteProject removes a project together with its modules and state.
func (s *Store) DeleteProject(ctx context.Context, name string) error {
	if err := s.ensureWritable("delete project"); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("config: delete project %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NotFoundError{Entity: "project", Key: name}
	}
	return nil
}

// SaveModule inserts or updates a module of an existing project.
func (s *Store) SaveModule(ctx context.Context, module Module) error {
	if err := s.ensureWritable("save module"); err != nil {
		return err
	}
	if strings.TrimSpace(module.Project) == "" || strings.TrimSpace(module.Name) == "" {
		return fmt.Errorf("config: save module: project and name are required")
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM projects WHERE name = ?`, module.Project).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return NotFoundError{Entity: "project", Key: module.Project}
		}
		if err != nil {
			return fmt.Errorf("config: save module: lookup project %q: %w", module.Project, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO modules (project_name, name, project_key, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(project_name, name) DO UPDATE SET
				project_key = excluded.project_key,
				updated_at = excluded.updated_at
		`, module.Project, strings.TrimSpace(module.Name), strings.TrimSpace(module.ProjectKey), s.timestamp())
		if err != nil {
			return fmt.Errorf("config: save module %s/%s: %w", module.Project, module.Name, err)
		}
		return nil
	})
}

// DeleteModule removes a module from a project.
func (s *Store) DeleteModule(ctx context.Context, project, name string) error {
	if err := s.ensureWritable("delete module"); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM modules WHERE project_name = ? AND name = ?`, project, name)
	if err != nil {
		return fmt.Errorf("config: delete module %s/%s: %w", project, name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NotFoundError{Entity: "module", Key: project + "/" + name}
	}
	return nil
}

// ListModules returns the modules of a project ordered by name.
func (s *Store) ListModules(ctx context.Context, project string) ([]Module, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project_name, name, project_key, updated_at
		FROM modules WHERE project_name = ? ORDER BY name
	`, project)
	if err != nil {
		return nil, fmt.Errorf("config: list modules for %q: %w", project, err)
	}
	defer rows.Close()

	var out []Module
	for rows.Next() {
		var (
			module    Module
			updatedAt string
		)
		if err := rows.Scan(&module.Project, &module.Name, &module.ProjectKey, &updatedAt); err != nil {
			return nil, fmt.Errorf("config: scan module: %w", err)
		}
		module.UpdatedAt = parseTimestamp(updatedAt)
		out = append(out, module)
	}
	return out, rows.Err()
}

func scanProject(row rowScanner) (Project, error) {
	var (
		project   Project
		open      int
		updatedAt string
	)
	if err := row.Scan(&project.Name, &open, &project.ConnectionName, &project.ProjectKey, &updatedAt); err != nil {
		return Project{}, err
	}
	project.Open = open != 0
	project.UpdatedAt = parseTimestamp(updatedAt)
	return project, nil
}
