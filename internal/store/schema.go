package store

import (
	"context"
	"database/sql"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS updates (
		id TEXT PRIMARY KEY,
		runtime_version TEXT NOT NULL,
		release_channel TEXT NOT NULL DEFAULT 'default',
		launch_asset_url TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_accessed_at TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_updates_runtime_channel
		ON updates(runtime_version, release_channel, created_at)`,
	`CREATE TABLE IF NOT EXISTS assets (
		update_id TEXT NOT NULL,
		name TEXT NOT NULL,
		local_path TEXT NOT NULL,
		PRIMARY KEY (update_id, name),
		FOREIGN KEY (update_id) REFERENCES updates(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS extra_params (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA busy_timeout = %d", defaultBusyTimeout.Milliseconds()),
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
