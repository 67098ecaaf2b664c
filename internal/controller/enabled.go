package controller

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/updraft-ota/updraft/internal/config"
	"github.com/updraft-ota/updraft/internal/eventbus"
	"github.com/updraft-ota/updraft/internal/store"
)

// snapshotTimeout bounds database lookups made from synchronous accessors
// (LaunchAssetURL, ConstantsForModule).
const snapshotTimeout = 2 * time.Second

// enabledController is the fully-operational variant: configuration
// resolved, storage bootstrapped.
type enabledController struct {
	cfg      config.Config
	dir      store.Directory
	st       *store.Store
	engine   Engine
	launcher Launcher
	bus      *eventbus.Bus

	startOnce sync.Once
	started   atomic.Bool

	mu       sync.Mutex
	stateCtx StateContext
}

func newEnabled(cfg config.Config, dir store.Directory, st *store.Store, engine Engine, launcher Launcher, bus *eventbus.Bus) *enabledController {
	return &enabledController{
		cfg:      cfg,
		dir:      dir,
		st:       st,
		engine:   engine,
		launcher: launcher,
		bus:      bus,
	}
}

func (c *enabledController) Start() {
	c.startOnce.Do(func() {
		c.started.Store(true)
		if c.launcher == nil {
			return
		}
		go func() {
			if err := c.launcher.Launch(context.Background()); err != nil {
				log.Printf("[Controller] launch sequence failed: %v", err)
			}
		}()
	})
}

func (c *enabledController) IsStarted() bool { return c.started.Load() }

func (c *enabledController) State() State { return StateEnabled }

func (c *enabledController) LaunchAssetURL() (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	u, err := c.st.LatestUpdate(ctx, c.cfg.RuntimeVersion(), c.cfg.ReleaseChannel())
	if err != nil {
		if !store.IsNotFound(err) {
			log.Printf("[Controller] launch asset lookup failed: %v", err)
		}
		return "", false
	}
	if u.LaunchAssetURL == "" {
		return "", false
	}
	return u.LaunchAssetURL, true
}

func (c *enabledController) CheckForUpdate(ctx context.Context) <-chan CheckResult {
	out := make(chan CheckResult, 1)
	opID := uuid.NewString()

	c.setChecking(true)
	go func() {
		outcome, err := c.engine.CheckForUpdate(ctx, c.cfg, c.st)
		c.setChecking(false)

		res := CheckResult{Outcome: outcome, Err: err}
		if err != nil {
			log.Printf("[Controller] check %s failed: %v", opID, err)
		}
		c.bus.Publish(eventbus.Envelope{Topic: eventbus.TopicCheck, Source: "controller", Payload: res})
		out <- res
	}()
	return out
}

func (c *enabledController) FetchUpdate(ctx context.Context) <-chan FetchResult {
	out := make(chan FetchResult, 1)
	opID := uuid.NewString()

	c.setDownloading(true)
	go func() {
		outcome, err := c.engine.FetchUpdate(ctx, c.cfg, c.st)
		c.setDownloading(false)

		res := FetchResult{Outcome: outcome, Err: err}
		if err != nil {
			log.Printf("[Controller] fetch %s failed: %v", opID, err)
		} else if outcome.Update != nil {
			c.setLatestUpdateID(outcome.Update.ID)
		}
		c.bus.Publish(eventbus.Envelope{Topic: eventbus.TopicFetch, Source: "controller", Payload: res})
		out <- res
	}()
	return out
}

func (c *enabledController) RequestRelaunch(ctx context.Context, opts RelaunchOptions) <-chan error {
	out := make(chan error, 1)

	c.setRestarting(true)
	go func() {
		err := c.engine.Relaunch(ctx, opts)
		c.setRestarting(false)
		if err != nil {
			log.Printf("[Controller] relaunch failed: %v", err)
		}
		out <- err
	}()
	return out
}

func (c *enabledController) ExtraParams(ctx context.Context) <-chan ExtraParamsResult {
	out := make(chan ExtraParamsResult, 1)
	go func() {
		params, err := c.st.ExtraParams(ctx)
		out <- ExtraParamsResult{Params: params, Err: err}
	}()
	return out
}

func (c *enabledController) SetExtraParam(ctx context.Context, key, value string) <-chan error {
	out := make(chan error, 1)
	go func() {
		out <- c.st.SetExtraParam(ctx, key, value)
	}()
	return out
}

func (c *enabledController) StateMachineContext(ctx context.Context) <-chan StateContextResult {
	out := make(chan StateContextResult, 1)
	go func() {
		out <- StateContextResult{Context: c.snapshotStateContext()}
	}()
	return out
}

func (c *enabledController) ConstantsForModule() Constants {
	constants := Constants{
		IsEnabled:        true,
		RuntimeVersion:   c.cfg.RuntimeVersion(),
		ReleaseChannel:   c.cfg.ReleaseChannel(),
		CheckOnLaunch:    string(c.cfg.CheckOnLaunch()),
		UpdatesDirectory: c.dir.Root(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	if u, err := c.st.LatestUpdate(ctx, c.cfg.RuntimeVersion(), c.cfg.ReleaseChannel()); err == nil {
		if assets, err := c.st.AssetMap(ctx, u.ID); err == nil && len(assets) > 0 {
			constants.AssetMap = assets
		}
	}
	return constants
}

// shutdown releases the store; used by ResetForTesting only.
func (c *enabledController) shutdown() {
	c.st.Close()
}

func (c *enabledController) snapshotStateContext() StateContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.stateCtx
	snap.IsStarted = c.started.Load()
	return snap
}

func (c *enabledController) setChecking(v bool) {
	c.mu.Lock()
	c.stateCtx.IsChecking = v
	if !v {
		c.stateCtx.LastCheckAt = time.Now().UTC()
	}
	c.mu.Unlock()
}

func (c *enabledController) setDownloading(v bool) {
	c.mu.Lock()
	c.stateCtx.IsDownloading = v
	c.mu.Unlock()
}

func (c *enabledController) setRestarting(v bool) {
	c.mu.Lock()
	c.stateCtx.IsRestarting = v
	c.mu.Unlock()
}

func (c *enabledController) setLatestUpdateID(id string) {
	c.mu.Lock()
	c.stateCtx.LatestUpdateID = id
	c.mu.Unlock()
}
