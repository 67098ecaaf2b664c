package controller

import (
	"context"

	"github.com/updraft-ota/updraft/internal/eventbus"
)

// disabledController is the inert variant built when configuration never
// resolved or storage bootstrap failed. It holds no directory and no
// database handle; every async operation completes through its error path
// with a fixed "updates disabled" cause. The host never has to special-case
// it.
type disabledController struct {
	cause                 error // causal storage error, nil for config failures
	missingRuntimeVersion bool
	bus                   *eventbus.Bus
}

func newDisabled(cause error, missingRuntimeVersion bool, bus *eventbus.Bus) *disabledController {
	return &disabledController{
		cause:                 cause,
		missingRuntimeVersion: missingRuntimeVersion,
		bus:                   bus,
	}
}

func (c *disabledController) refuse() error {
	return &DisabledError{Cause: c.cause, MissingRuntimeVersion: c.missingRuntimeVersion}
}

func (c *disabledController) Start() {}

func (c *disabledController) IsStarted() bool { return false }

func (c *disabledController) State() State { return StateDisabled }

func (c *disabledController) LaunchAssetURL() (string, bool) { return "", false }

func (c *disabledController) CheckForUpdate(context.Context) <-chan CheckResult {
	out := make(chan CheckResult, 1)
	out <- CheckResult{Err: c.refuse()}
	return out
}

func (c *disabledController) FetchUpdate(context.Context) <-chan FetchResult {
	out := make(chan FetchResult, 1)
	out <- FetchResult{Err: c.refuse()}
	return out
}

func (c *disabledController) RequestRelaunch(context.Context, RelaunchOptions) <-chan error {
	out := make(chan error, 1)
	out <- c.refuse()
	return out
}

func (c *disabledController) ExtraParams(context.Context) <-chan ExtraParamsResult {
	out := make(chan ExtraParamsResult, 1)
	out <- ExtraParamsResult{Err: c.refuse()}
	return out
}

func (c *disabledController) SetExtraParam(context.Context, string, string) <-chan error {
	out := make(chan error, 1)
	out <- c.refuse()
	return out
}

func (c *disabledController) StateMachineContext(context.Context) <-chan StateContextResult {
	out := make(chan StateContextResult, 1)
	out <- StateContextResult{Err: c.refuse()}
	return out
}

func (c *disabledController) ConstantsForModule() Constants {
	constants := Constants{
		IsEnabled:               false,
		IsMissingRuntimeVersion: c.missingRuntimeVersion,
	}
	if c.cause != nil {
		constants.DisabledCause = c.cause.Error()
	}
	return constants
}
