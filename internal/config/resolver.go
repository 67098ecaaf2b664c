package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	maputil "github.com/updraft-ota/updraft/internal/util/maps"
	"github.com/updraft-ota/updraft/internal/validate"
	"github.com/updraft-ota/updraft/internal/version"
)

// Override keys accepted from the host application. Configuration arrives
// exclusively through this string-keyed mapping, supplied once at
// initialization.
const (
	KeyUpdateURL         = "updateUrl"
	KeyRuntimeVersion    = "runtimeVersion"
	KeyReleaseChannel    = "releaseChannel"
	KeyRequestHeaders    = "requestHeaders"
	KeyCheckOnLaunch     = "checkOnLaunch"
	KeyLaunchWaitMs      = "launchWaitMs"
	KeyEnabled           = "enabled"
	KeyHasEmbeddedUpdate = "hasEmbeddedUpdate"
)

// Overrides is the host-supplied configuration mapping merged over packaged
// defaults during resolution.
type Overrides map[string]any

// Defaults holds the packaged default settings compiled into the host shell.
type Defaults struct {
	UpdateURL         string
	RuntimeVersion    string
	ReleaseChannel    string
	RequestHeaders    map[string]string
	CheckOnLaunch     string
	LaunchWaitMs      int
	Enabled           *bool // nil means enabled
	HasEmbeddedUpdate bool
}

// CheckOnLaunch controls when the client checks for updates at launch.
type CheckOnLaunch string

const (
	CheckAlways            CheckOnLaunch = "always"
	CheckNever             CheckOnLaunch = "never"
	CheckWifiOnly          CheckOnLaunch = "wifi-only"
	CheckErrorRecoveryOnly CheckOnLaunch = "error-recovery-only"
)

// ParseCheckOnLaunch maps a setting value onto a launch-check policy. An
// empty value selects CheckAlways.
func ParseCheckOnLaunch(value string) (CheckOnLaunch, error) {
	switch CheckOnLaunch(strings.ToLower(strings.TrimSpace(value))) {
	case "":
		return CheckAlways, nil
	case CheckAlways:
		return CheckAlways, nil
	case CheckNever:
		return CheckNever, nil
	case CheckWifiOnly:
		return CheckWifiOnly, nil
	case CheckErrorRecoveryOnly:
		return CheckErrorRecoveryOnly, nil
	}
	return "", fmt.Errorf("unknown policy %q", value)
}

// ResolutionError indicates a mandatory setting was missing or invalid after
// merging overrides over packaged defaults.
type ResolutionError struct {
	Setting string
	Reason  string
}

func (e ResolutionError) Error() string {
	return fmt.Sprintf("config: setting %s: %s", e.Setting, e.Reason)
}

const (
	// DefaultReleaseChannel is used when neither defaults nor overrides
	// name a channel.
	DefaultReleaseChannel = "default"

	// DefaultLaunchWait bounds how long the host shell waits for a fresh
	// update at launch before falling back to the newest local one.
	DefaultLaunchWait = 0 * time.Millisecond
)

// Config is the resolved, immutable configuration for the update client.
// All fields are fixed at resolution time; accessor methods copy mutable
// values on the way out.
type Config struct {
	updateURL         *url.URL
	runtimeVersion    string
	releaseChannel    string
	requestHeaders    map[string]string
	checkOnLaunch     CheckOnLaunch
	launchWait        time.Duration
	hasEmbeddedUpdate bool
}

// UpdateURL returns a copy of the update source URL.
func (c Config) UpdateURL() url.URL { return *c.updateURL }

// RuntimeVersion returns the normalized runtime version identifier.
func (c Config) RuntimeVersion() string { return c.runtimeVersion }

// ReleaseChannel returns the release channel name.
func (c Config) ReleaseChannel() string { return c.releaseChannel }

// RequestHeaders returns a copy of the extra headers sent with update requests.
func (c Config) RequestHeaders() map[string]string {
	return maputil.Clone(c.requestHeaders)
}

// CheckOnLaunch returns the launch-check policy.
func (c Config) CheckOnLaunch() CheckOnLaunch { return c.checkOnLaunch }

// LaunchWait returns how long launch may block waiting for a fresh update.
func (c Config) LaunchWait() time.Duration { return c.launchWait }

// HasEmbeddedUpdate reports whether the host shell ships an embedded bundle.
func (c Config) HasEmbeddedUpdate() bool { return c.hasEmbeddedUpdate }

// Resolve validates and merges host-supplied overrides over packaged
// defaults. It fails with a ResolutionError when a mandatory setting (update
// source URL, runtime version) is absent or invalid after the merge.
func Resolve(defaults Defaults, overrides Overrides) (Config, error) {
	if !resolveEnabled(defaults, overrides) {
		return Config{}, ResolutionError{Setting: KeyEnabled, Reason: "updates are disabled by configuration"}
	}

	rawURL := stringSetting(overrides, KeyUpdateURL, defaults.UpdateURL)
	if rawURL == "" {
		return Config{}, ResolutionError{Setting: KeyUpdateURL, Reason: "mandatory setting is missing"}
	}
	if err := validate.HTTPURL(rawURL); err != nil {
		return Config{}, ResolutionError{Setting: KeyUpdateURL, Reason: err.Error()}
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return Config{}, ResolutionError{Setting: KeyUpdateURL, Reason: fmt.Sprintf("not a valid absolute URL: %q", rawURL)}
	}

	runtimeVersion := version.Normalize(stringSetting(overrides, KeyRuntimeVersion, defaults.RuntimeVersion))
	if runtimeVersion == "" {
		return Config{}, ResolutionError{Setting: KeyRuntimeVersion, Reason: "mandatory setting is missing"}
	}

	checkRaw := stringSetting(overrides, KeyCheckOnLaunch, defaults.CheckOnLaunch)
	checkOnLaunch, err := ParseCheckOnLaunch(checkRaw)
	if err != nil {
		return Config{}, ResolutionError{Setting: KeyCheckOnLaunch, Reason: err.Error()}
	}

	channel := stringSetting(overrides, KeyReleaseChannel, defaults.ReleaseChannel)
	if channel == "" {
		channel = DefaultReleaseChannel
	}
	if !validate.Ident(channel) {
		return Config{}, ResolutionError{Setting: KeyReleaseChannel, Reason: fmt.Sprintf("not a valid channel name: %q", channel)}
	}

	headers := make(map[string]string, len(defaults.RequestHeaders))
	for k, v := range defaults.RequestHeaders {
		headers[k] = v
	}
	overrideHeaders, err := headerSetting(overrides)
	if err != nil {
		return Config{}, ResolutionError{Setting: KeyRequestHeaders, Reason: err.Error()}
	}
	for k, v := range overrideHeaders {
		headers[k] = v
	}

	launchWaitMs, err := intSetting(overrides, KeyLaunchWaitMs, defaults.LaunchWaitMs)
	if err != nil {
		return Config{}, ResolutionError{Setting: KeyLaunchWaitMs, Reason: err.Error()}
	}
	launchWait := DefaultLaunchWait
	if launchWaitMs > 0 {
		launchWait = time.Duration(launchWaitMs) * time.Millisecond
	}

	return Config{
		updateURL:         parsed,
		runtimeVersion:    runtimeVersion,
		releaseChannel:    channel,
		requestHeaders:    headers,
		checkOnLaunch:     checkOnLaunch,
		launchWait:        launchWait,
		hasEmbeddedUpdate: boolSetting(overrides, KeyHasEmbeddedUpdate, defaults.HasEmbeddedUpdate),
	}, nil
}

// CanProduceValid is a pure predicate mirroring Resolve's success condition.
// It lets callers pick a construction path without handling an error.
func CanProduceValid(defaults Defaults, overrides Overrides) bool {
	_, err := Resolve(defaults, overrides)
	return err == nil
}

// IsMissingRuntimeVersion reports whether the merged settings lack a runtime
// version. It is a narrower diagnostic than Resolve and stays usable when
// full resolution fails, so a disabled controller can still report why.
func IsMissingRuntimeVersion(defaults Defaults, overrides Overrides) bool {
	return stringSetting(overrides, KeyRuntimeVersion, defaults.RuntimeVersion) == ""
}

func resolveEnabled(defaults Defaults, overrides Overrides) bool {
	if raw, ok := overrides[KeyEnabled]; ok {
		if enabled, ok := raw.(bool); ok {
			return enabled
		}
	}
	if defaults.Enabled != nil {
		return *defaults.Enabled
	}
	return true
}

func stringSetting(overrides Overrides, key, fallback string) string {
	if raw, ok := overrides[key]; ok {
		if s, ok := raw.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return strings.TrimSpace(fallback)
}

func boolSetting(overrides Overrides, key string, fallback bool) bool {
	if raw, ok := overrides[key]; ok {
		if b, ok := raw.(bool); ok {
			return b
		}
	}
	return fallback
}

func intSetting(overrides Overrides, key string, fallback int) (int, error) {
	raw, ok := overrides[key]
	if !ok {
		return fallback, nil
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64: // JSON numbers decode as float64
		return int(v), nil
	}
	return 0, fmt.Errorf("expected a number, got %T", raw)
}

func headerSetting(overrides Overrides) (map[string]string, error) {
	raw, ok := overrides[KeyRequestHeaders]
	if !ok {
		return nil, nil
	}
	switch v := raw.(type) {
	case map[string]string:
		return maputil.Clone(v), nil
	case map[string]any:
		headers := make(map[string]string, len(v))
		for k, val := range v {
			s, ok := val.(string)
			if !ok {
				return nil, fmt.Errorf("header %s: expected a string value, got %T", k, val)
			}
			headers[k] = s
		}
		return headers, nil
	}
	return nil, fmt.Errorf("expected a string map, got %T", raw)
}
