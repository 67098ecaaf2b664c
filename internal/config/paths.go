package config

import (
	"os"
	"path/filepath"
)

// StoragePaths contains all on-disk locations used by the update client.
type StoragePaths struct {
	Root     string // Updates storage root directory
	Database string // SQLite update-tracking database path
	Bundles  string // Downloaded update bundles directory
	Logs     string // Logs directory
}

// GetStoragePaths returns the storage layout rooted at base. An empty base
// falls back to the per-user default root.
func GetStoragePaths(base string) StoragePaths {
	if base == "" {
		base = DefaultRoot()
	}

	return StoragePaths{
		Root:     base,
		Database: filepath.Join(base, "updates.db"),
		Bundles:  filepath.Join(base, "bundles"),
		Logs:     filepath.Join(base, "logs"),
	}
}

// DefaultRoot returns the default updates root (~/.updraft/updates). Host
// applications embedding the client normally pass their own private storage
// root instead.
func DefaultRoot() string {
	userHome, _ := os.UserHomeDir()
	return filepath.Join(userHome, ".updraft", "updates")
}

// EnsureStorageDirs creates the storage directory structure rooted at base if
// it does not exist. It is idempotent and safe to call on every launch.
func EnsureStorageDirs(base string) (StoragePaths, error) {
	paths := GetStoragePaths(base)

	dirs := []string{
		paths.Root,
		paths.Bundles,
		paths.Logs,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return paths, err
		}
	}

	return paths, nil
}
