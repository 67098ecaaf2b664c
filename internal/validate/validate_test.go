package validate

import (
	"strings"
	"testing"
)

func TestHTTPURLValid(t *testing.T) {
	for _, url := range []string{
		"http://localhost:8081/manifest",
		"https://u.example.com/api/manifest",
	} {
		if err := HTTPURL(url); err != nil {
			t.Errorf("HTTPURL(%q) = %v, want nil", url, err)
		}
	}
}

func TestHTTPURLDisallowedSchemes(t *testing.T) {
	for _, url := range []string{
		"file:///etc/passwd",
		"ftp://example.com/file",
		"javascript:alert(1)",
	} {
		err := HTTPURL(url)
		if err == nil {
			t.Fatalf("HTTPURL(%q): expected error, got nil", url)
		}
		if !strings.Contains(err.Error(), "not allowed") {
			t.Errorf("HTTPURL(%q) error = %q, want it to mention disallowed scheme", url, err.Error())
		}
	}
}

func TestHTTPURLMissingScheme(t *testing.T) {
	err := HTTPURL("u.example.com/manifest")
	if err == nil {
		t.Fatal("expected error for URL with no scheme")
	}
	if !strings.Contains(err.Error(), "missing scheme") {
		t.Errorf("error = %q, want it to mention missing scheme", err.Error())
	}
}

func TestHTTPURLMissingHost(t *testing.T) {
	for _, url := range []string{"http://", "https://", "http:///path/only"} {
		err := HTTPURL(url)
		if err == nil {
			t.Fatalf("HTTPURL(%q): expected error for missing host, got nil", url)
		}
		if !strings.Contains(err.Error(), "missing host") {
			t.Errorf("HTTPURL(%q) error = %q, want it to mention missing host", url, err.Error())
		}
	}
}

func TestIdent(t *testing.T) {
	valid := []string{"default", "beta", "release-2.1", "channel_a", "a"}
	for _, s := range valid {
		if !Ident(s) {
			t.Errorf("Ident(%q) = false, want true", s)
		}
	}

	invalid := []string{"", "-leading", ".hidden", "has space", "has/slash", strings.Repeat("x", MaxIdentLen+1)}
	for _, s := range invalid {
		if Ident(s) {
			t.Errorf("Ident(%q) = true, want false", s)
		}
	}
}
