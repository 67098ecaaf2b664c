package controller

import (
	"context"
	"time"

	"github.com/updraft-ota/updraft/internal/store"
)

// State is the lifecycle state of the process-wide controller. It transitions
// exactly once, from Uninitialized to one terminal variant, and never
// reverses.
type State int

const (
	StateUninitialized State = iota
	StateEnabled
	StateDisabled
	StateDevLauncher
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateEnabled:
		return "enabled"
	case StateDisabled:
		return "disabled"
	case StateDevLauncher:
		return "dev-launcher"
	}
	return "unknown"
}

// Controller is the capability surface every variant exposes to the hosting
// application. Each asynchronous operation returns a one-shot channel,
// buffered size one, that receives exactly one result — success payload or
// typed error, never both, never zero — on an unspecified goroutine. Callers
// must not block inside whatever consumes the result.
type Controller interface {
	// Start triggers the externally-owned load-and-launch sequence on
	// variants that have one. It is safe to call more than once; only the
	// first call has an effect.
	Start()
	IsStarted() bool
	State() State

	// LaunchAssetURL returns the asset the host shell should boot from,
	// when one is known.
	LaunchAssetURL() (string, bool)

	CheckForUpdate(ctx context.Context) <-chan CheckResult
	FetchUpdate(ctx context.Context) <-chan FetchResult
	RequestRelaunch(ctx context.Context, opts RelaunchOptions) <-chan error
	ExtraParams(ctx context.Context) <-chan ExtraParamsResult
	SetExtraParam(ctx context.Context, key, value string) <-chan error
	StateMachineContext(ctx context.Context) <-chan StateContextResult

	// ConstantsForModule computes a point-in-time snapshot of controller
	// state for host consumption. It is recomputed on every call.
	ConstantsForModule() Constants
}

// CheckOutcome is the payload of a successful update check.
type CheckOutcome struct {
	Available bool
	Update    *store.Update // nil when no update is available
	Reason    string        // server-supplied reason when unavailable
}

// CheckResult delivers a check completion: Outcome XOR Err.
type CheckResult struct {
	Outcome CheckOutcome
	Err     error
}

// FetchOutcome is the payload of a successful update fetch.
type FetchOutcome struct {
	Update       *store.Update
	BytesWritten int64
}

// FetchResult delivers a fetch completion: Outcome XOR Err.
type FetchResult struct {
	Outcome FetchOutcome
	Err     error
}

// RelaunchOptions carries host intent for a relaunch request.
type RelaunchOptions struct {
	Reason string
}

// ExtraParamsResult delivers the persisted extra request parameters.
type ExtraParamsResult struct {
	Params map[string]string
	Err    error
}

// StateContext is a read-only projection of the load-and-launch state
// machine as visible at this layer. The machine's internal transitions are
// owned by the excluded launch subsystem.
type StateContext struct {
	IsStarted      bool      `json:"isStarted"`
	IsChecking     bool      `json:"isChecking"`
	IsDownloading  bool      `json:"isDownloading"`
	IsRestarting   bool      `json:"isRestarting"`
	LastCheckAt    time.Time `json:"lastCheckAt,omitzero"`
	LatestUpdateID string    `json:"latestUpdateId,omitempty"`
}

// StateContextResult delivers a state context snapshot.
type StateContextResult struct {
	Context StateContext
	Err     error
}

// Constants is a point-in-time, read-only projection of controller state for
// host consumption. It is recomputed per query, never cached.
type Constants struct {
	IsEnabled               bool              `json:"isEnabled"`
	IsDevLauncher           bool              `json:"isDevLauncher,omitempty"`
	RuntimeVersion          string            `json:"runtimeVersion,omitempty"`
	ReleaseChannel          string            `json:"releaseChannel,omitempty"`
	CheckOnLaunch           string            `json:"checkOnLaunch,omitempty"`
	UpdatesDirectory        string            `json:"updatesDirectory,omitempty"`
	IsMissingRuntimeVersion bool              `json:"isMissingRuntimeVersion"`
	DisabledCause           string            `json:"disabledCause,omitempty"`
	ConfigError             string            `json:"configError,omitempty"`
	StorageError            string            `json:"storageError,omitempty"`
	AssetMap                map[string]string `json:"assetMap,omitempty"`
}
