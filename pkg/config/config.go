// Package config reads and writes JSON option files. Values in a file are
// layered over caller-supplied defaults, so a file only needs the fields it
// changes.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DefaultPath returns ~/.config/picam/<name>.json, creating the directory.
func DefaultPath(name string) (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("unable to determine user config directory: %w", err)
	}
	configDir = filepath.Join(configDir, "picam")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return "", fmt.Errorf("error creating config directory: %w", err)
	}
	return filepath.Join(configDir, name+".json"), nil
}

// Load returns defaults overlaid with the file at path. A missing file is not
// an error; an empty path returns defaults unchanged.
func Load[T any](path string, defaults T) (T, error) {
	if path == "" {
		return defaults, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return defaults, nil
	}
	if err != nil {
		return defaults, fmt.Errorf("error opening config file: %w", err)
	}
	defer f.Close()
	return Decode(f, defaults)
}

// Decode overlays the JSON read from r onto defaults.
func Decode[T any](r io.Reader, defaults T) (T, error) {
	cfg := defaults
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return defaults, fmt.Errorf("error decoding config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to path as indented JSON.
func Save[T any](path string, cfg T) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}
