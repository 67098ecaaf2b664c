package controller

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/updraft-ota/updraft/internal/config"
	"github.com/updraft-ota/updraft/internal/eventbus"
	"github.com/updraft-ota/updraft/internal/store"
)

// Options groups everything needed to construct the process-wide controller.
type Options struct {
	Defaults  config.Defaults
	Overrides config.Overrides
	BaseDir   string // updates storage root; empty selects the per-user default

	Engine   Engine        // optional update pipeline; nil completes ops with ErrEngineUnavailable
	Launcher Launcher      // optional load-and-launch sequence triggered by Start
	Bus      *eventbus.Bus // optional event bus for state and completion events
}

// published wraps the shared instance so the singleton pointer swaps
// atomically from nil to fully-built; a racing reader never observes a
// partially-constructed controller.
type published struct {
	controller Controller
}

var (
	initMu sync.Mutex
	shared atomic.Pointer[published]
)

// InitializeOnce builds the process-wide controller on the first call and
// publishes it as the shared instance. Later calls, including concurrent
// ones, return the already-published instance without re-running the
// bootstrap. Configuration and storage failures never escape: they are
// absorbed into the Disabled variant so the host always receives a usable,
// if inert, controller.
func InitializeOnce(opts Options) Controller {
	if p := shared.Load(); p != nil {
		return p.controller
	}

	initMu.Lock()
	defer initMu.Unlock()

	if p := shared.Load(); p != nil {
		return p.controller
	}

	ctrl := build(opts)
	shared.Store(&published{controller: ctrl})

	log.Printf("[Controller] initialized (state=%s)", ctrl.State())
	opts.Bus.Publish(eventbus.Envelope{
		Topic:   eventbus.TopicState,
		Source:  "controller",
		Payload: ctrl.State().String(),
	})
	return ctrl
}

// build runs the variant decision algorithm. It never fails; every outcome
// maps onto a variant.
func build(opts Options) Controller {
	engine := opts.Engine
	if engine == nil {
		engine = unconfiguredEngine{}
	}

	if !config.CanProduceValid(opts.Defaults, opts.Overrides) {
		missing := config.IsMissingRuntimeVersion(opts.Defaults, opts.Overrides)
		log.Printf("[Controller] configuration invalid (missingRuntimeVersion=%v), updates disabled", missing)
		return newDisabled(nil, missing, opts.Bus)
	}

	cfg, err := config.Resolve(opts.Defaults, opts.Overrides)
	if err != nil {
		// Unreachable after CanProduceValid, but absorb it the same way.
		return newDisabled(nil, config.IsMissingRuntimeVersion(opts.Defaults, opts.Overrides), opts.Bus)
	}

	dir, err := store.EnsureDirectory(opts.BaseDir)
	if err != nil {
		log.Printf("[Controller] storage directory bootstrap failed: %v", err)
		return newDisabled(err, false, opts.Bus)
	}

	st, err := store.Open(store.Options{Directory: dir})
	if err != nil {
		log.Printf("[Controller] updates database open failed: %v", err)
		return newDisabled(err, false, opts.Bus)
	}

	return newEnabled(cfg, dir, st, engine, opts.Launcher, opts.Bus)
}

// InitializeDevLauncher is the alternate entry point for development
// tooling. Unlike InitializeOnce it must be the first initialization in the
// process: constructing it over an existing instance is a host-integration
// bug and panics. Configuration and storage are bootstrapped best-effort,
// each phase's failure captured independently on the DevLauncher variant.
func InitializeDevLauncher(opts Options) Controller {
	initMu.Lock()
	defer initMu.Unlock()

	if shared.Load() != nil {
		panic("controller: InitializeDevLauncher called over an existing shared instance")
	}

	engine := opts.Engine
	if engine == nil {
		engine = unconfiguredEngine{}
	}

	cfg, cfgErr := config.Resolve(opts.Defaults, opts.Overrides)
	if cfgErr != nil {
		log.Printf("[Controller] dev launcher: configuration did not resolve: %v", cfgErr)
	}

	var st *store.Store
	dir, storageErr := store.EnsureDirectory(opts.BaseDir)
	if storageErr == nil {
		st, storageErr = store.Open(store.Options{Directory: dir})
	}
	if storageErr != nil {
		log.Printf("[Controller] dev launcher: storage bootstrap failed: %v", storageErr)
	}

	ctrl := newDevLauncher(cfg, cfgErr, dir, st, storageErr, engine, opts.Launcher, opts.Bus)
	shared.Store(&published{controller: ctrl})

	log.Printf("[Controller] initialized (state=%s)", ctrl.State())
	opts.Bus.Publish(eventbus.Envelope{
		Topic:   eventbus.TopicState,
		Source:  "controller",
		Payload: ctrl.State().String(),
	})
	return ctrl
}

// Shared returns the process-wide controller. Reading it before any
// initialize call has completed is a host-integration defect, not a runtime
// condition: it panics and must not be recovered.
func Shared() Controller {
	p := shared.Load()
	if p == nil {
		panic("controller: Shared called before InitializeOnce")
	}
	return p.controller
}

// IsInitialized reports whether a shared instance has been published.
func IsInitialized() bool {
	return shared.Load() != nil
}

// ResetForTesting tears down the shared instance so tests can exercise the
// one-time construction protocol repeatedly. Must not be called concurrently
// with initialization.
func ResetForTesting() {
	initMu.Lock()
	defer initMu.Unlock()

	if p := shared.Load(); p != nil {
		if closer, ok := p.controller.(interface{ shutdown() }); ok {
			closer.shutdown()
		}
	}
	shared.Store(nil)
}
