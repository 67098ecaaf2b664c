package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Update statuses as tracked in the database. Transitions between them are
// owned by the excluded load-and-launch subsystem; this layer only records.
// keepUpdatesPerChannel bounds how many tracked rows survive per
// runtime-version/channel pair when new updates are recorded.
const keepUpdatesPerChannel = 10

const (
	UpdateStatusPending  = "pending"
	UpdateStatusReady    = "ready"
	UpdateStatusLaunched = "launched"
	UpdateStatusFailed   = "failed"
)

// Update is one tracked OTA update row.
type Update struct {
	ID             string
	RuntimeVersion string
	ReleaseChannel string
	LaunchAssetURL string
	Status         string
	CreatedAt      time.Time
}

// RecordUpdate inserts or refreshes a tracked update. A missing ID is
// generated. Returns the stored ID.
func (s *Store) RecordUpdate(ctx context.Context, u Update) (string, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Status == "" {
		u.Status = UpdateStatusPending
	}
	if u.ReleaseChannel == "" {
		u.ReleaseChannel = "default"
	}
	if u.RuntimeVersion == "" {
		return "", fmt.Errorf("store: record update: runtime version is required")
	}

	err := s.do(ctx, func(db *sql.DB) error {
		return s.withTx(ctx, db, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO updates (id, runtime_version, release_channel, launch_asset_url, status)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					launch_asset_url = excluded.launch_asset_url,
					status = excluded.status
			`, u.ID, u.RuntimeVersion, u.ReleaseChannel, u.LaunchAssetURL, u.Status)
			if err != nil {
				return fmt.Errorf("store: record update %s: %w", u.ID, err)
			}

			// Reap stale rows so the table does not grow without bound.
			// The newest keepUpdatesPerChannel rows per runtime/channel
			// survive; launched rows are kept for rollback diagnostics.
			_, err = tx.ExecContext(ctx, `
				DELETE FROM updates
				WHERE runtime_version = ? AND release_channel = ?
					AND status != ?
					AND id NOT IN (
						SELECT id FROM updates
						WHERE runtime_version = ? AND release_channel = ?
						ORDER BY created_at DESC, id DESC
						LIMIT ?
					)
			`, u.RuntimeVersion, u.ReleaseChannel, UpdateStatusLaunched,
				u.RuntimeVersion, u.ReleaseChannel, keepUpdatesPerChannel)
			if err != nil {
				return fmt.Errorf("store: reap stale updates: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return "", err
	}
	return u.ID, nil
}

// LatestUpdate returns the most recently recorded update for the given
// runtime version and channel.
func (s *Store) LatestUpdate(ctx context.Context, runtimeVersion, channel string) (Update, error) {
	var u Update
	err := s.do(ctx, func(db *sql.DB) error {
		row := db.QueryRowContext(ctx, `
			SELECT id, runtime_version, release_channel, launch_asset_url, status, created_at
			FROM updates
			WHERE runtime_version = ? AND release_channel = ?
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		`, runtimeVersion, channel)

		var createdAt string
		if err := row.Scan(&u.ID, &u.RuntimeVersion, &u.ReleaseChannel, &u.LaunchAssetURL, &u.Status, &createdAt); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return NotFoundError{Entity: "update", Key: runtimeVersion + "/" + channel}
			}
			return fmt.Errorf("store: load latest update: %w", err)
		}
		if ts, err := time.Parse("2006-01-02 15:04:05", createdAt); err == nil {
			u.CreatedAt = ts
		}
		return nil
	})
	return u, err
}

// MarkLaunched records that the given update was handed to the launcher.
func (s *Store) MarkLaunched(ctx context.Context, id string) error {
	return s.do(ctx, func(db *sql.DB) error {
		res, err := db.ExecContext(ctx, `
			UPDATE updates
			SET status = ?, last_accessed_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, UpdateStatusLaunched, id)
		if err != nil {
			return fmt.Errorf("store: mark update %s launched: %w", id, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("store: mark update %s launched: %w", id, err)
		}
		if affected == 0 {
			return NotFoundError{Entity: "update", Key: id}
		}
		return nil
	})
}

// PutAsset records the local path of a named asset belonging to an update.
func (s *Store) PutAsset(ctx context.Context, updateID, name, localPath string) error {
	return s.do(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO assets (update_id, name, local_path)
			VALUES (?, ?, ?)
			ON CONFLICT(update_id, name) DO UPDATE SET local_path = excluded.local_path
		`, updateID, name, localPath)
		if err != nil {
			return fmt.Errorf("store: put asset %s/%s: %w", updateID, name, err)
		}
		return nil
	})
}

// AssetMap returns name → local path for every asset of the given update.
func (s *Store) AssetMap(ctx context.Context, updateID string) (map[string]string, error) {
	assets := make(map[string]string)
	err := s.do(ctx, func(db *sql.DB) error {
		rows, err := db.QueryContext(ctx, `SELECT name, local_path FROM assets WHERE update_id = ?`, updateID)
		if err != nil {
			return fmt.Errorf("store: load asset map: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var name, localPath string
			if err := rows.Scan(&name, &localPath); err != nil {
				return fmt.Errorf("store: scan asset row: %w", err)
			}
			assets[name] = localPath
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return assets, nil
}
