package controller

import (
	"context"

	"github.com/updraft-ota/updraft/internal/config"
	"github.com/updraft-ota/updraft/internal/store"
)

// Engine is the contract of the externally-owned check/fetch/relaunch
// pipeline. Implementations perform the network and install work; this layer
// only shells them with completion semantics. Retries and backoff belong to
// the engine, never to the controller.
type Engine interface {
	CheckForUpdate(ctx context.Context, cfg config.Config, st *store.Store) (CheckOutcome, error)
	FetchUpdate(ctx context.Context, cfg config.Config, st *store.Store) (FetchOutcome, error)
	Relaunch(ctx context.Context, opts RelaunchOptions) error
}

// Launcher is the externally-owned load-and-launch sequence triggered by
// Start on variants that have one.
type Launcher interface {
	Launch(ctx context.Context) error
}

// LaunchFunc adapts a function to the Launcher interface.
type LaunchFunc func(ctx context.Context) error

func (f LaunchFunc) Launch(ctx context.Context) error { return f(ctx) }

// unconfiguredEngine stands in when the host wires no pipeline. Every
// operation still completes exactly once, through its error path.
type unconfiguredEngine struct{}

func (unconfiguredEngine) CheckForUpdate(context.Context, config.Config, *store.Store) (CheckOutcome, error) {
	return CheckOutcome{}, ErrEngineUnavailable
}

func (unconfiguredEngine) FetchUpdate(context.Context, config.Config, *store.Store) (FetchOutcome, error) {
	return FetchOutcome{}, ErrEngineUnavailable
}

func (unconfiguredEngine) Relaunch(context.Context, RelaunchOptions) error {
	return ErrEngineUnavailable
}
