// Package bootstrap persists the host shell's configuration override mapping
// between runs so a restarted shell can come up with the same update
// configuration without the host re-supplying it.
package bootstrap

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/updraft-ota/updraft/internal/config"
)

// Document is the on-disk representation of saved overrides.
type Document struct {
	Overrides config.Overrides `json:"overrides"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Path returns the default filesystem location of the overrides file.
func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("bootstrap: resolve home directory: %w", err)
	}
	return filepath.Join(home, ".updraft", "overrides.json"), nil
}

// Load returns the stored override mapping. An empty path selects the default
// location. If the file does not exist, (nil, nil) is returned.
func Load(path string) (config.Overrides, error) {
	p, err := resolve(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("bootstrap: read overrides file: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("bootstrap: decode overrides file: %w", err)
	}

	return doc.Overrides, nil
}

// Save persists the override mapping to disk, creating intermediate
// directories as needed.
func Save(path string, overrides config.Overrides) error {
	if overrides == nil {
		return errors.New("bootstrap: overrides mapping is nil")
	}

	p, err := resolve(path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("bootstrap: create directory: %w", err)
	}

	doc := Document{
		Overrides: overrides,
		UpdatedAt: time.Now().UTC(),
	}

	encoded, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("bootstrap: encode overrides: %w", err)
	}

	if err := os.WriteFile(p, encoded, 0o600); err != nil {
		return fmt.Errorf("bootstrap: write overrides file: %w", err)
	}

	return nil
}

// Remove deletes the saved overrides. It is not considered an error when the
// file does not exist.
func Remove(path string) error {
	p, err := resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("bootstrap: remove overrides file: %w", err)
	}
	return nil
}

func resolve(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	return Path()
}
