package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// SaveHandle writes h as JSON to path, replacing any previous content. The
// hvkit CLI uses this to carry a handle across invocations; library callers
// that keep the handle in memory never need it.
func SaveHandle(h *Handle, path string) error {
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode handle for VM %q: %w", h.Name, err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write handle file: %w", err)
	}
	return nil
}

// LoadHandle reads a handle previously written by SaveHandle.
func LoadHandle(path string) (*Handle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read handle file: %w", err)
	}
	var h Handle
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("invalid handle file %s: %w", path, err)
	}
	if h.Name == "" || h.Backend == "" {
		return nil, fmt.Errorf("invalid handle file %s: missing name or backend", path)
	}
	return &h, nil
}
