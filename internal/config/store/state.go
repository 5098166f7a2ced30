package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// GetLastEventPolling returns the last time server events were polled for the
// project. The first read for a project initialises the value to now.
func (s *Store) GetLastEventPolling(ctx context.Context, project string) (time.Time, error) {
	var nanos int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.now()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO project_state (project_name, last_event_polling, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(project_name) DO UPDATE SET
				last_event_polling = excluded.last_event_polling,
				updated_at = excluded.updated_at
			WHERE project_state.last_event_polling IS NULL
		`, project, now.UnixNano(), now.Format(time.RFC3339Nano)); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, `
			SELECT last_event_polling FROM project_state WHERE project_name = ?
		`, project).Scan(&nanos)
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("config: get last event polling for %q: %w", project, err)
	}
	return time.Unix(0, nanos).UTC(), nil
}

// SetLastEventPolling stores ts unless it is earlier than the stored value.
// It reports whether the value was changed.
func (s *Store) SetLastEventPolling(ctx context.Context, project string, ts time.Time) (bool, error) {
	if err := s.ensureWritable("set last event polling"); err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO project_state (project_name, last_event_polling, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(project_name) DO UPDATE SET
			last_event_polling = excluded.last_event_polling,
			updated_at = excluded.updated_at
		WHERE project_state.last_event_polling IS NULL
			OR project_state.last_event_polling < excluded.last_event_polling
	`, project, ts.UTC().UnixNano(), s.timestamp())
	if err != nil {
		return false, fmt.Errorf("config: set last event polling for %q: %w", project, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ResetLastEventPolling unconditionally sets the polling time to ts.
func (s *Store) ResetLastEventPolling(ctx context.Context, project string, ts time.Time) error {
	if err := s.ensureWritable("reset last event polling"); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO project_state (project_name, last_event_polling, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(project_name) DO UPDATE SET
			last_event_polling = excluded.last_event_polling,
			updated_at = excluded.updated_at
	`, project, ts.UTC().UnixNano(), s.timestamp())
	if err != nil {
		return fmt.Errorf("config: reset last event polling for %q: %w", project, err)
	}
	return nil
}
