package controller

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUpdatesDisabled is the fixed cause every async operation of the
// Disabled variant completes with. Use errors.Is against it; the captured
// causal error, if any, is reachable through errors.Unwrap.
var ErrUpdatesDisabled = errors.New("controller: updates are disabled")

// ErrEngineUnavailable is returned when no update pipeline was wired in.
var ErrEngineUnavailable = errors.New("controller: update engine not configured")

// DisabledError is delivered on the error path of every Disabled-variant
// operation. Cause carries the storage error that disabled the controller,
// or nil when configuration never resolved.
type DisabledError struct {
	Cause                 error
	MissingRuntimeVersion bool
}

func (e *DisabledError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("controller: updates are disabled: %v", e.Cause)
	}
	if e.MissingRuntimeVersion {
		return "controller: updates are disabled: runtime version is missing"
	}
	return "controller: updates are disabled: configuration is invalid"
}

func (e *DisabledError) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, ErrUpdatesDisabled) match any DisabledError.
func (e *DisabledError) Is(target error) bool { return target == ErrUpdatesDisabled }

// BootstrapError reports per-subsystem bootstrap failure from the
// DevLauncher variant. The two phases are kept distinct so development
// tooling can tell bad configuration from broken storage.
type BootstrapError struct {
	ConfigErr  error
	StorageErr error
}

func (e *BootstrapError) Error() string {
	var parts []string
	if e.ConfigErr != nil {
		parts = append(parts, fmt.Sprintf("config: %v", e.ConfigErr))
	}
	if e.StorageErr != nil {
		parts = append(parts, fmt.Sprintf("storage: %v", e.StorageErr))
	}
	if len(parts) == 0 {
		return "controller: bootstrap incomplete"
	}
	return "controller: bootstrap failed: " + strings.Join(parts, "; ")
}
