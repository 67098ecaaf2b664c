package store

import (
	"github.com/updraft-ota/updraft/internal/config"
)

// Directory is a handle to the prepared updates storage root. It is only
// obtainable through EnsureDirectory, so holding one implies the layout
// exists on disk.
type Directory struct {
	paths config.StoragePaths
}

// Root returns the updates storage root path.
func (d Directory) Root() string { return d.paths.Root }

// DatabasePath returns the location of the update-tracking database file.
func (d Directory) DatabasePath() string { return d.paths.Database }

// BundlesDir returns the directory holding downloaded update bundles.
func (d Directory) BundlesDir() string { return d.paths.Bundles }

// LogsDir returns the client log directory.
func (d Directory) LogsDir() string { return d.paths.Logs }

// EnsureDirectory creates the updates storage layout rooted at base. It is
// idempotent: an existing directory is not an error, so it is safe to call on
// every launch. Failures are reported as *DirectoryError.
func EnsureDirectory(base string) (Directory, error) {
	paths, err := config.EnsureStorageDirs(base)
	if err != nil {
		return Directory{}, &DirectoryError{Path: paths.Root, Err: err}
	}
	return Directory{paths: paths}, nil
}
