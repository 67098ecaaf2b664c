package config

import (
	"errors"
	"testing"
	"time"
)

func validOverrides() Overrides {
	return Overrides{
		KeyUpdateURL:      "https://updates.example.com/manifest",
		KeyRuntimeVersion: "1.0",
	}
}

func TestResolveMandatorySettings(t *testing.T) {
	cases := []struct {
		name       string
		defaults   Defaults
		overrides  Overrides
		wantErrKey string
	}{
		{
			name:       "empty overrides and no defaults",
			overrides:  Overrides{},
			wantErrKey: KeyUpdateURL,
		},
		{
			name:       "missing runtime version",
			overrides:  Overrides{KeyUpdateURL: "https://updates.example.com"},
			wantErrKey: KeyRuntimeVersion,
		},
		{
			name:       "invalid URL",
			overrides:  Overrides{KeyUpdateURL: "not a url", KeyRuntimeVersion: "1.0"},
			wantErrKey: KeyUpdateURL,
		},
		{
			name:       "relative URL",
			overrides:  Overrides{KeyUpdateURL: "/manifest", KeyRuntimeVersion: "1.0"},
			wantErrKey: KeyUpdateURL,
		},
		{
			name:       "non-http scheme",
			overrides:  Overrides{KeyUpdateURL: "ftp://updates.example.com", KeyRuntimeVersion: "1.0"},
			wantErrKey: KeyUpdateURL,
		},
		{
			name:       "invalid channel name",
			overrides:  Overrides{KeyUpdateURL: "https://updates.example.com", KeyRuntimeVersion: "1.0", KeyReleaseChannel: "bad channel"},
			wantErrKey: KeyReleaseChannel,
		},
		{
			name:      "valid overrides",
			overrides: validOverrides(),
		},
		{
			name: "defaults fill the gaps",
			defaults: Defaults{
				UpdateURL:      "https://updates.example.com",
				RuntimeVersion: "2.0",
			},
			overrides: Overrides{},
		},
		{
			name:       "disabled by override",
			overrides:  Overrides{KeyUpdateURL: "https://updates.example.com", KeyRuntimeVersion: "1.0", KeyEnabled: false},
			wantErrKey: KeyEnabled,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Resolve(tc.defaults, tc.overrides)
			if tc.wantErrKey == "" {
				if err != nil {
					t.Fatalf("Resolve: %v", err)
				}
				if CanProduceValid(tc.defaults, tc.overrides) != true {
					t.Fatalf("CanProduceValid should mirror Resolve success")
				}
				return
			}

			var resErr ResolutionError
			if !errors.As(err, &resErr) {
				t.Fatalf("expected ResolutionError, got %v", err)
			}
			if resErr.Setting != tc.wantErrKey {
				t.Fatalf("expected failure on %s, got %s", tc.wantErrKey, resErr.Setting)
			}
			if CanProduceValid(tc.defaults, tc.overrides) {
				t.Fatalf("CanProduceValid should mirror Resolve failure")
			}
		})
	}
}

func TestResolveMergesOverridesOverDefaults(t *testing.T) {
	defaults := Defaults{
		UpdateURL:      "https://defaults.example.com",
		RuntimeVersion: "1.0",
		ReleaseChannel: "stable",
		RequestHeaders: map[string]string{"X-Install": "abc", "X-Keep": "yes"},
	}
	overrides := Overrides{
		KeyUpdateURL:      "https://override.example.com/manifest",
		KeyReleaseChannel: "beta",
		KeyRequestHeaders: map[string]any{"X-Install": "def"},
		KeyLaunchWaitMs:   float64(2000),
	}

	cfg, err := Resolve(defaults, overrides)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if got := cfg.UpdateURL(); got.Host != "override.example.com" {
		t.Errorf("update URL host = %q, want override.example.com", got.Host)
	}
	if cfg.RuntimeVersion() != "1.0" {
		t.Errorf("runtime version = %q, want 1.0", cfg.RuntimeVersion())
	}
	if cfg.ReleaseChannel() != "beta" {
		t.Errorf("release channel = %q, want beta", cfg.ReleaseChannel())
	}
	headers := cfg.RequestHeaders()
	if headers["X-Install"] != "def" || headers["X-Keep"] != "yes" {
		t.Errorf("unexpected merged headers: %v", headers)
	}
	if cfg.LaunchWait() != 2*time.Second {
		t.Errorf("launch wait = %v, want 2s", cfg.LaunchWait())
	}
}

func TestConfigImmutability(t *testing.T) {
	overrides := validOverrides()
	overrides[KeyRequestHeaders] = map[string]any{"X-Install": "abc"}

	cfg, err := Resolve(Defaults{}, overrides)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	headers := cfg.RequestHeaders()
	headers["X-Mutated"] = "yes"

	if _, ok := cfg.RequestHeaders()["X-Mutated"]; ok {
		t.Fatalf("mutating the returned header map must not affect the config")
	}
}

func TestIsMissingRuntimeVersion(t *testing.T) {
	if !IsMissingRuntimeVersion(Defaults{}, Overrides{}) {
		t.Errorf("expected missing runtime version with empty inputs")
	}
	if IsMissingRuntimeVersion(Defaults{RuntimeVersion: "1.0"}, Overrides{}) {
		t.Errorf("defaults should satisfy the runtime version")
	}
	if IsMissingRuntimeVersion(Defaults{}, Overrides{KeyRuntimeVersion: "1.0"}) {
		t.Errorf("overrides should satisfy the runtime version")
	}
	// Diagnostic stays usable when full resolution fails for another reason.
	if IsMissingRuntimeVersion(Defaults{}, Overrides{KeyRuntimeVersion: "1.0", KeyUpdateURL: "bad"}) {
		t.Errorf("runtime version diagnostic must be independent of URL validity")
	}
}

func TestParseCheckOnLaunch(t *testing.T) {
	cases := []struct {
		in      string
		want    CheckOnLaunch
		wantErr bool
	}{
		{"", CheckAlways, false},
		{"always", CheckAlways, false},
		{"NEVER", CheckNever, false},
		{"wifi-only", CheckWifiOnly, false},
		{"error-recovery-only", CheckErrorRecoveryOnly, false},
		{"sometimes", "", true},
	}

	for _, tc := range cases {
		got, err := ParseCheckOnLaunch(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseCheckOnLaunch(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseCheckOnLaunch(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseCheckOnLaunch(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
