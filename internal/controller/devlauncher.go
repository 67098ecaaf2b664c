package controller

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/updraft-ota/updraft/internal/config"
	"github.com/updraft-ota/updraft/internal/eventbus"
	"github.com/updraft-ota/updraft/internal/store"
)

// devLauncherController is the relaxed variant for development tooling. It
// tolerates partial bootstrap: configuration and storage outcomes are
// captured independently so tooling can tell "bad config" from "broken
// storage" instead of one opaque disabled state.
type devLauncherController struct {
	cfg    config.Config
	cfgErr error

	dir        store.Directory
	st         *store.Store // nil when storage bootstrap failed
	storageErr error

	engine   Engine
	launcher Launcher
	bus      *eventbus.Bus

	startOnce sync.Once
	started   atomic.Bool
}

func newDevLauncher(cfg config.Config, cfgErr error, dir store.Directory, st *store.Store, storageErr error, engine Engine, launcher Launcher, bus *eventbus.Bus) *devLauncherController {
	return &devLauncherController{
		cfg:        cfg,
		cfgErr:     cfgErr,
		dir:        dir,
		st:         st,
		storageErr: storageErr,
		engine:     engine,
		launcher:   launcher,
		bus:        bus,
	}
}

// bootstrapErr returns the per-subsystem outcome when any required phase
// failed, or nil when everything the operation needs is available.
func (c *devLauncherController) bootstrapErr(needsConfig, needsStorage bool) error {
	if (needsConfig && c.cfgErr != nil) || (needsStorage && c.storageErr != nil) {
		return &BootstrapError{ConfigErr: c.cfgErr, StorageErr: c.storageErr}
	}
	return nil
}

// Start is best-effort: the launch sequence fires only when storage
// bootstrapped, reflecting whichever subsystems came up.
func (c *devLauncherController) Start() {
	c.startOnce.Do(func() {
		if c.storageErr != nil {
			log.Printf("[Controller] dev launcher start skipped, storage unavailable: %v", c.storageErr)
			return
		}
		c.started.Store(true)
		if c.launcher == nil {
			return
		}
		go func() {
			if err := c.launcher.Launch(context.Background()); err != nil {
				log.Printf("[Controller] dev launcher launch sequence failed: %v", err)
			}
		}()
	})
}

func (c *devLauncherController) IsStarted() bool { return c.started.Load() }

func (c *devLauncherController) State() State { return StateDevLauncher }

func (c *devLauncherController) LaunchAssetURL() (string, bool) {
	if c.cfgErr != nil || c.storageErr != nil {
		return "", false
	}

	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	u, err := c.st.LatestUpdate(ctx, c.cfg.RuntimeVersion(), c.cfg.ReleaseChannel())
	if err != nil || u.LaunchAssetURL == "" {
		return "", false
	}
	return u.LaunchAssetURL, true
}

func (c *devLauncherController) CheckForUpdate(ctx context.Context) <-chan CheckResult {
	out := make(chan CheckResult, 1)
	if err := c.bootstrapErr(true, true); err != nil {
		out <- CheckResult{Err: err}
		return out
	}
	go func() {
		outcome, err := c.engine.CheckForUpdate(ctx, c.cfg, c.st)
		res := CheckResult{Outcome: outcome, Err: err}
		c.bus.Publish(eventbus.Envelope{Topic: eventbus.TopicCheck, Source: "dev-launcher", Payload: res})
		out <- res
	}()
	return out
}

func (c *devLauncherController) FetchUpdate(ctx context.Context) <-chan FetchResult {
	out := make(chan FetchResult, 1)
	if err := c.bootstrapErr(true, true); err != nil {
		out <- FetchResult{Err: err}
		return out
	}
	go func() {
		outcome, err := c.engine.FetchUpdate(ctx, c.cfg, c.st)
		res := FetchResult{Outcome: outcome, Err: err}
		c.bus.Publish(eventbus.Envelope{Topic: eventbus.TopicFetch, Source: "dev-launcher", Payload: res})
		out <- res
	}()
	return out
}

func (c *devLauncherController) RequestRelaunch(ctx context.Context, opts RelaunchOptions) <-chan error {
	out := make(chan error, 1)
	if err := c.bootstrapErr(false, true); err != nil {
		out <- err
		return out
	}
	go func() {
		out <- c.engine.Relaunch(ctx, opts)
	}()
	return out
}

func (c *devLauncherController) ExtraParams(ctx context.Context) <-chan ExtraParamsResult {
	out := make(chan ExtraParamsResult, 1)
	if err := c.bootstrapErr(false, true); err != nil {
		out <- ExtraParamsResult{Err: err}
		return out
	}
	go func() {
		params, err := c.st.ExtraParams(ctx)
		out <- ExtraParamsResult{Params: params, Err: err}
	}()
	return out
}

func (c *devLauncherController) SetExtraParam(ctx context.Context, key, value string) <-chan error {
	out := make(chan error, 1)
	if err := c.bootstrapErr(false, true); err != nil {
		out <- err
		return out
	}
	go func() {
		out <- c.st.SetExtraParam(ctx, key, value)
	}()
	return out
}

func (c *devLauncherController) StateMachineContext(ctx context.Context) <-chan StateContextResult {
	out := make(chan StateContextResult, 1)
	if err := c.bootstrapErr(false, true); err != nil {
		out <- StateContextResult{Err: err}
		return out
	}
	go func() {
		out <- StateContextResult{Context: StateContext{IsStarted: c.started.Load()}}
	}()
	return out
}

func (c *devLauncherController) ConstantsForModule() Constants {
	constants := Constants{
		IsEnabled:     c.cfgErr == nil && c.storageErr == nil,
		IsDevLauncher: true,
	}
	if c.cfgErr == nil {
		constants.RuntimeVersion = c.cfg.RuntimeVersion()
		constants.ReleaseChannel = c.cfg.ReleaseChannel()
		constants.CheckOnLaunch = string(c.cfg.CheckOnLaunch())
	} else {
		constants.ConfigError = c.cfgErr.Error()
	}
	if c.storageErr == nil {
		constants.UpdatesDirectory = c.dir.Root()
	} else {
		constants.StorageError = c.storageErr.Error()
	}
	return constants
}

func (c *devLauncherController) shutdown() {
	if c.st != nil {
		c.st.Close()
	}
}
