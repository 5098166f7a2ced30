package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SaveConnection inserts or updates a server connection.
func (s *Store) SaveConnection(ctx context.Context, conn ServerConnection) error {
	if err := s.ensureWritable("save connection"); err != nil {
		return err
	}
	name := strings.TrimSpace(conn.Name)
	if name == "" {
		return fmt.Errorf("config: save connection: name is required")
	}
	if strings.TrimSpace(conn.HostURL) == "" {
		return fmt.Errorf("config: save connection %q: host url is required", name)
	}

	ts := s.timestamp()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO connections (name, host_url, token, organization, is_cloud, notifications_disabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			host_url = excluded.host_url,
			token = excluded.token,
			organization = excluded.organization,
			is_cloud = excluded.is_cloud,
			notifications_disabled = excluded.notifications_disabled,
			updated_at = excluded.updated_at
	`, name, strings.TrimSpace(conn.HostURL), conn.Token, conn.Organization,
		boolToInt(conn.IsCloud), boolToInt(conn.NotificationsDisabled), ts, ts)
	if err != nil {
		return fmt.Errorf("config: save connection %q: %w", name, err)
	}
	return nil
}

// GetConnection returns the named connection.
func (s *Store) GetConnection(ctx context.Context, name string) (ServerConnection, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, host_url, token, organization, is_cloud, notifications_disabled, updated_at
		FROM connections WHERE name = ?
	`, name)

	conn, err := scanConnection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ServerConnection{}, NotFoundError{Entity: "connection", Key: name}
	}
	if err != nil {
		return ServerConnection{}, fmt.Errorf("config: get connection %q: %w", name, err)
	}
	return conn, nil
}

// ListConnections returns all connections ordered by name.
func (s *Store) ListConnections(ctx context.Context) ([]ServerConnection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, host_url, token, organization, is_cloud, notifications_disabled, updated_at
		FROM connections ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("config: list connections: %w", err)
	}
	defer rows.Close()

	var out []ServerConnection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("config: scan connection: %w", err)
		}
		out = append(out, conn)
	}
	return out, rows.Err()
}

// DeleteConnection removes the named connection. Projects bound to it keep
// their binding but resolve to no connection afterwards.
func (s *Store) DeleteConnection(ctx context.Context, name string) error {
	if err := s.ensureWritable("delete connection"); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM connections WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("config: delete connection %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NotFoundError{Entity: "connection", Key: name}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (ServerConnection, error) {
	var (
		conn      ServerConnection
		isCloud   int
		disabled  int
		updatedAt string
	)
	if err := row.Scan(&conn.Name, &conn.HostURL, &conn.Token, &conn.Organization, &isCloud, &disabled, &updatedAt); err != nil {
		return ServerConnection{}, err
	}
	conn.IsCloud = isCloud != 0
	conn.NotificationsDisabled = disabled != 0
	conn.UpdatedAt = parseTimestamp(updatedAt)
	return conn, nil
}

func parseTimestamp(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts
}
