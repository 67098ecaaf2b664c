package controller

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/updraft-ota/updraft/internal/config"
	"github.com/updraft-ota/updraft/internal/store"
)

type fakeEngine struct {
	mu            sync.Mutex
	checkOutcome  CheckOutcome
	checkErr      error
	fetchOutcome  FetchOutcome
	fetchErr      error
	relaunchErr   error
	relaunchCalls int
}

func (e *fakeEngine) CheckForUpdate(context.Context, config.Config, *store.Store) (CheckOutcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.checkOutcome, e.checkErr
}

func (e *fakeEngine) FetchUpdate(context.Context, config.Config, *store.Store) (FetchOutcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fetchOutcome, e.fetchErr
}

func (e *fakeEngine) Relaunch(context.Context, RelaunchOptions) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.relaunchCalls++
	return e.relaunchErr
}

func newEnabledForTest(t *testing.T, engine Engine, launcher Launcher) *enabledController {
	t.Helper()

	cfg, err := config.Resolve(config.Defaults{}, validOverrides())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	dir, err := store.EnsureDirectory(filepath.Join(t.TempDir(), "updates"))
	if err != nil {
		t.Fatalf("EnsureDirectory: %v", err)
	}
	st, err := store.Open(store.Options{Directory: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if engine == nil {
		engine = &fakeEngine{}
	}
	return newEnabled(cfg, dir, st, engine, launcher, nil)
}

func TestEnabledStartTriggersLauncherOnce(t *testing.T) {
	launched := make(chan struct{}, 2)
	ctrl := newEnabledForTest(t, nil, LaunchFunc(func(ctx context.Context) error {
		launched <- struct{}{}
		return nil
	}))

	if ctrl.IsStarted() {
		t.Fatalf("controller started before Start")
	}

	ctrl.Start()
	ctrl.Start()

	if !ctrl.IsStarted() {
		t.Fatalf("IsStarted must be true once Start was invoked")
	}

	select {
	case <-launched:
	case <-time.After(5 * time.Second):
		t.Fatalf("launch sequence never fired")
	}
	select {
	case <-launched:
		t.Fatalf("launch sequence fired twice")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEnabledCheckForUpdateDeliversOutcome(t *testing.T) {
	engine := &fakeEngine{
		checkOutcome: CheckOutcome{
			Available: true,
			Update:    &store.Update{ID: "u1", RuntimeVersion: "1.0", LaunchAssetURL: "bundles/u1/index.bundle"},
		},
	}
	ctrl := newEnabledForTest(t, engine, nil)

	res := waitResult(t, ctrl.CheckForUpdate(context.Background()))
	if res.Err != nil {
		t.Fatalf("check: %v", res.Err)
	}
	if !res.Outcome.Available || res.Outcome.Update.ID != "u1" {
		t.Fatalf("unexpected outcome: %+v", res.Outcome)
	}

	snap := waitResult(t, ctrl.StateMachineContext(context.Background()))
	if snap.Err != nil {
		t.Fatalf("state context: %v", snap.Err)
	}
	if snap.Context.IsChecking {
		t.Fatalf("check completed, IsChecking must be false")
	}
	if snap.Context.LastCheckAt.IsZero() {
		t.Fatalf("LastCheckAt must be stamped after a check")
	}
}

func TestEnabledCheckErrorPathExactlyOnce(t *testing.T) {
	cause := fmt.Errorf("manifest server unreachable")
	engine := &fakeEngine{checkErr: cause}
	ctrl := newEnabledForTest(t, engine, nil)

	ch := ctrl.CheckForUpdate(context.Background())
	res := waitResult(t, ch)
	if !errors.Is(res.Err, cause) {
		t.Fatalf("expected the engine error, got %v", res.Err)
	}

	// Exactly one delivery: the channel must never yield a second value.
	select {
	case extra, ok := <-ch:
		if ok {
			t.Fatalf("second delivery observed: %+v", extra)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEnabledExtraParamsAgainstStore(t *testing.T) {
	ctrl := newEnabledForTest(t, nil, nil)
	ctx := context.Background()

	if err := waitResult(t, ctrl.SetExtraParam(ctx, "channel-hint", "beta")); err != nil {
		t.Fatalf("SetExtraParam: %v", err)
	}

	res := waitResult(t, ctrl.ExtraParams(ctx))
	if res.Err != nil {
		t.Fatalf("ExtraParams: %v", res.Err)
	}
	if res.Params["channel-hint"] != "beta" {
		t.Fatalf("unexpected params: %v", res.Params)
	}
}

func TestEnabledLaunchAssetURL(t *testing.T) {
	ctrl := newEnabledForTest(t, nil, nil)
	ctx := context.Background()

	if url, ok := ctrl.LaunchAssetURL(); ok {
		t.Fatalf("no update recorded yet, got %q", url)
	}

	id, err := ctrl.st.RecordUpdate(ctx, store.Update{
		RuntimeVersion: "1.0",
		LaunchAssetURL: "bundles/u1/index.bundle",
		Status:         store.UpdateStatusReady,
	})
	if err != nil {
		t.Fatalf("RecordUpdate: %v", err)
	}
	if err := ctrl.st.PutAsset(ctx, id, "index.bundle", "bundles/u1/index.bundle"); err != nil {
		t.Fatalf("PutAsset: %v", err)
	}

	url, ok := ctrl.LaunchAssetURL()
	if !ok || url != "bundles/u1/index.bundle" {
		t.Fatalf("launch asset = %q, %v", url, ok)
	}

	constants := ctrl.ConstantsForModule()
	if constants.AssetMap["index.bundle"] != "bundles/u1/index.bundle" {
		t.Fatalf("constants asset map missing entry: %+v", constants.AssetMap)
	}
}

func TestEnabledRelaunch(t *testing.T) {
	engine := &fakeEngine{}
	ctrl := newEnabledForTest(t, engine, nil)

	if err := waitResult(t, ctrl.RequestRelaunch(context.Background(), RelaunchOptions{Reason: "new bundle"})); err != nil {
		t.Fatalf("RequestRelaunch: %v", err)
	}
	engine.mu.Lock()
	calls := engine.relaunchCalls
	engine.mu.Unlock()
	if calls != 1 {
		t.Fatalf("relaunch calls = %d, want 1", calls)
	}
}

func TestUnconfiguredEngineStillCompletes(t *testing.T) {
	ctrl := newEnabledForTest(t, unconfiguredEngine{}, nil)

	res := waitResult(t, ctrl.CheckForUpdate(context.Background()))
	if !errors.Is(res.Err, ErrEngineUnavailable) {
		t.Fatalf("expected ErrEngineUnavailable, got %v", res.Err)
	}
}

func TestDisabledVariantSemantics(t *testing.T) {
	cause := &store.DatabaseError{Path: "updates.db", Err: fmt.Errorf("disk full")}
	ctrl := newDisabled(cause, false, nil)
	ctx := context.Background()

	ctrl.Start()
	if ctrl.IsStarted() {
		t.Fatalf("disabled Start must leave isStarted false")
	}
	if _, ok := ctrl.LaunchAssetURL(); ok {
		t.Fatalf("disabled variant has no launch asset")
	}

	assertDisabled := func(err error) {
		t.Helper()
		if !errors.Is(err, ErrUpdatesDisabled) {
			t.Fatalf("expected the disabled cause, got %v", err)
		}
		var dbErr *store.DatabaseError
		if !errors.As(err, &dbErr) {
			t.Fatalf("causal error must be preserved, got %v", err)
		}
	}

	assertDisabled(waitResult(t, ctrl.CheckForUpdate(ctx)).Err)
	assertDisabled(waitResult(t, ctrl.FetchUpdate(ctx)).Err)
	assertDisabled(waitResult(t, ctrl.ExtraParams(ctx)).Err)
	assertDisabled(waitResult(t, ctrl.SetExtraParam(ctx, "k", "v")))
	assertDisabled(waitResult(t, ctrl.RequestRelaunch(ctx, RelaunchOptions{})))
	assertDisabled(waitResult(t, ctrl.StateMachineContext(ctx)).Err)

	constants := ctrl.ConstantsForModule()
	if constants.IsEnabled {
		t.Fatalf("disabled constants report enabled")
	}
	if constants.DisabledCause == "" {
		t.Fatalf("disabled constants must carry the causal error")
	}
}

func TestDisabledConfigFailureCarriesNoCause(t *testing.T) {
	ctrl := newDisabled(nil, true, nil)

	res := waitResult(t, ctrl.CheckForUpdate(context.Background()))
	var disErr *DisabledError
	if !errors.As(res.Err, &disErr) {
		t.Fatalf("expected *DisabledError, got %v", res.Err)
	}
	if disErr.Cause != nil {
		t.Fatalf("config failures carry no causal error, got %v", disErr.Cause)
	}
	if !disErr.MissingRuntimeVersion {
		t.Fatalf("missing runtime version diagnostic lost")
	}
}

func TestFetchUpdateRecordsLatestID(t *testing.T) {
	engine := &fakeEngine{
		fetchOutcome: FetchOutcome{
			Update:       &store.Update{ID: "u9", RuntimeVersion: "1.0"},
			BytesWritten: 1024,
		},
	}
	ctrl := newEnabledForTest(t, engine, nil)

	res := waitResult(t, ctrl.FetchUpdate(context.Background()))
	if res.Err != nil {
		t.Fatalf("fetch: %v", res.Err)
	}

	snap := waitResult(t, ctrl.StateMachineContext(context.Background()))
	if snap.Context.LatestUpdateID != "u9" {
		t.Fatalf("latest update id = %q, want u9", snap.Context.LatestUpdateID)
	}
	if snap.Context.IsDownloading {
		t.Fatalf("fetch completed, IsDownloading must be false")
	}
}
