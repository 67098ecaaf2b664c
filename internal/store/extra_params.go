package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ExtraParams returns the extra request parameters persisted for update
// checks. These are sent back to the update server by the excluded fetch
// subsystem.
func (s *Store) ExtraParams(ctx context.Context) (map[string]string, error) {
	params := make(map[string]string)
	err := s.do(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `SELECT key, value FROM extra_params`)
		if err != nil {
			return fmt.Errorf("store: load extra params: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var key, value string
			if err := rows.Scan(&key, &value); err != nil {
				return fmt.Errorf("store: scan extra param row: %w", err)
			}
			params[key] = value
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return params, nil
}

// SetExtraParam upserts one extra request parameter. An empty value deletes
// the key.
func (s *Store) SetExtraParam(ctx context.Context, key, value string) error {
	if key == "" {
		return fmt.Errorf("store: set extra param: key is required")
	}

	return s.do(ctx, func(db *sql.DB) error {
		if value == "" {
			if _, err := db.ExecContext(ctx, `DELETE FROM extra_params WHERE key = ?`, key); err != nil {
				return fmt.Errorf("store: delete extra param %q: %w", key, err)
			}
			return nil
		}

		_, err := db.ExecContext(ctx, `
			INSERT INTO extra_params (key, value, updated_at)
			VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(key) DO UPDATE SET
				value = excluded.value,
				updated_at = CURRENT_TIMESTAMP
		`, key, value)
		if err != nil {
			return fmt.Errorf("store: set extra param %q: %w", key, err)
		}
		return nil
	})
}
