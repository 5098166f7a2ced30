package store

import (
	"context"
	"database/sql"
	"fmt"
)

// LoadTelemetry returns persisted usage counters keyed by name.
func (s *Store) LoadTelemetry(ctx context.Context) (map[string]uint64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, value FROM telemetry_counters`)
	if err != nil {
		return nil, fmt.Errorf("config: load telemetry: %w", err)
	}
	defer rows.Close()

	out := make(map[string]uint64)
	for rows.Next() {
		var (
			name  string
			value int64
		)
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("config: scan telemetry: %w", err)
		}
		out[name] = uint64(value)
	}
	return out, rows.Err()
}

// SaveTelemetry overwrites the persisted value of each counter in counters.
func (s *Store) SaveTelemetry(ctx context.Context, counters map[string]uint64) error {
	if err := s.ensureWritable("save telemetry"); err != nil {
		return err
	}
	if len(counters) == 0 {
		return nil
	}
	ts := s.timestamp()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for name, value := range counters {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO telemetry_counters (name, value, updated_at)
				VALUES (?, ?, ?)
				ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
			`, name, int64(value), ts); err != nil {
				return fmt.Errorf("config: save telemetry %q: %w", name, err)
			}
		}
		return nil
	})
}
