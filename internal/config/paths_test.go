package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetStoragePathsLayout(t *testing.T) {
	base := filepath.Join(t.TempDir(), "updates")
	paths := GetStoragePaths(base)

	if paths.Root != base {
		t.Errorf("root = %q, want %q", paths.Root, base)
	}
	if paths.Database != filepath.Join(base, "updates.db") {
		t.Errorf("unexpected database path %q", paths.Database)
	}
	if paths.Bundles != filepath.Join(base, "bundles") {
		t.Errorf("unexpected bundles path %q", paths.Bundles)
	}
}

func TestGetStoragePathsDefaultRoot(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	paths := GetStoragePaths("")
	if paths.Root != DefaultRoot() {
		t.Errorf("empty base should fall back to the default root, got %q", paths.Root)
	}
}

func TestEnsureStorageDirsIdempotent(t *testing.T) {
	base := filepath.Join(t.TempDir(), "updates")

	for i := 0; i < 2; i++ {
		paths, err := EnsureStorageDirs(base)
		if err != nil {
			t.Fatalf("EnsureStorageDirs (call %d): %v", i+1, err)
		}
		for _, dir := range []string{paths.Root, paths.Bundles, paths.Logs} {
			info, err := os.Stat(dir)
			if err != nil {
				t.Fatalf("stat %s: %v", dir, err)
			}
			if !info.IsDir() {
				t.Fatalf("%s is not a directory", dir)
			}
		}
	}
}
