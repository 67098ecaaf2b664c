package store

import (
	"errors"
	"fmt"
)

// DirectoryError indicates the updates storage directory could not be created.
type DirectoryError struct {
	Path string
	Err  error
}

func (e *DirectoryError) Error() string {
	return fmt.Sprintf("store: create updates directory %s: %v", e.Path, e.Err)
}

func (e *DirectoryError) Unwrap() error { return e.Err }

// DatabaseError indicates the update-tracking database could not be opened or
// a statement against it failed on the owner goroutine.
type DatabaseError struct {
	Path string
	Err  error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("store: updates database %s: %v", e.Path, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// NotFoundError indicates a requested record does not exist.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e NotFoundError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("store: %s not found", e.Entity)
	}
	return fmt.Sprintf("store: %s %s not found", e.Entity, e.Key)
}

// IsNotFound returns true when err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

// ErrClosed is returned by operations issued after the store has been closed.
var ErrClosed = errors.New("store: closed")
