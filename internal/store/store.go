package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const defaultBusyTimeout = 5 * time.Second

// Options describes parameters for opening an update-tracking store.
type Options struct {
	Directory Directory
	DBPath    string // Optional override for the database path (primarily for tests)
}

// Store provides access to the update-tracking database. The database handle
// is owned by a dedicated goroutine for the lifetime of the store; every read
// and write is executed there, serialized, so no caller ever touches the
// handle concurrently.
type Store struct {
	dbPath string

	jobs chan job
	quit chan struct{}
	done chan struct{} // closed when the owner goroutine exits

	closeOnce sync.Once
}

type job struct {
	fn    func(db *sql.DB) error
	reply chan error // buffered, owner never blocks on delivery
}

// openDatabaseFn is swapped by tests to simulate open failures and delayed
// completion without a real filesystem fault.
var openDatabaseFn = openDatabase

// Open prepares the update-tracking database inside the given directory. The
// actual open runs on the store's dedicated owner goroutine; Open blocks on a
// one-shot completion signal until that goroutine reports success or failure.
// The signal fires on every outcome — success, failure, or a panic during
// open — so Open always returns. Callers must not invoke Open from a
// goroutine the store itself depends on.
func Open(opts Options) (*Store, error) {
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = opts.Directory.DatabasePath()
	}
	if dbPath == "" {
		return nil, &DatabaseError{Path: dbPath, Err: fmt.Errorf("no database path configured")}
	}

	s := &Store{
		dbPath: dbPath,
		jobs:   make(chan job),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	opened := make(chan error, 1)
	go s.run(opened)

	if err := <-opened; err != nil {
		return nil, err
	}
	return s, nil
}

// run is the owner goroutine: it opens the database, reports the outcome on
// the one-shot opened channel, then serializes all access until Close.
func (s *Store) run(opened chan<- error) {
	defer close(s.done)

	db, err := s.openRecovered()
	// Single send site on a buffered channel: the completion signal is
	// delivered exactly once on every path. openRecovered converts panics
	// into errors, so this line is always reached.
	opened <- err
	if err != nil {
		return
	}
	defer db.Close()

	for {
		select {
		case <-s.quit:
			return
		case j := <-s.jobs:
			j.reply <- s.runJob(db, j.fn)
		}
	}
}

func (s *Store) runJob(db *sql.DB, fn func(*sql.DB) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &DatabaseError{Path: s.dbPath, Err: fmt.Errorf("panic in database job: %v", r)}
		}
	}()
	return fn(db)
}

// do executes fn on the owner goroutine and waits for its result. When ctx
// expires while waiting, the job may still run to completion on the owner
// side; its reply is simply dropped (the reply channel is buffered).
func (s *Store) do(ctx context.Context, fn func(db *sql.DB) error) error {
	j := job{fn: fn, reply: make(chan error, 1)}

	select {
	case s.jobs <- j:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-j.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the owner goroutine and closes the database. It is safe to call
// more than once; operations issued after Close return ErrClosed.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() { close(s.quit) })
	<-s.done
	return nil
}

// Path returns the filesystem path of the backing database.
func (s *Store) Path() string { return s.dbPath }

// openRecovered runs the database open with a panic guard so the completion
// signal cannot be missed even when the open itself blows up.
func (s *Store) openRecovered() (db *sql.DB, err error) {
	defer func() {
		if r := recover(); r != nil {
			if db != nil {
				db.Close()
			}
			db = nil
			err = &DatabaseError{Path: s.dbPath, Err: fmt.Errorf("panic during open: %v", r)}
		}
	}()
	return openDatabaseFn(s.dbPath)
}

func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, &DatabaseError{Path: dbPath, Err: err}
	}

	// The owner goroutine is the only user of this handle.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), defaultBusyTimeout)
	defer cancel()

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, &DatabaseError{Path: dbPath, Err: err}
	}
	if err := applySchema(ctx, db); err != nil {
		db.Close()
		return nil, &DatabaseError{Path: dbPath, Err: err}
	}

	return db, nil
}

func (s *Store) withTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("store: rollback failed after %v: %w", err, rbErr)
		}
		return err
	}

	return tx.Commit()
}
