package hfo

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultStoreName is the logical name of the SSOT database in the pointer
// registry.
const DefaultStoreName = "ssot.db"

// PointerRegistry maps logical store names to paths relative to the
// workspace root. The registry file doubles as the workspace marker.
type PointerRegistry struct {
	Pointers map[string]string `json:"pointers"`
}

// LoadPointers reads the pointer registry at root. A missing registry is
// not an error; callers get an empty registry and the default layout.
func LoadPointers(root string) (*PointerRegistry, error) {
	path := filepath.Join(root, PointerRegistryFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &PointerRegistry{Pointers: map[string]string{}}, nil
		}
		return nil, fmt.Errorf("reading pointer registry: %w", err)
	}

	var reg PointerRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parsing pointer registry: %w", err)
	}
	if reg.Pointers == nil {
		reg.Pointers = map[string]string{}
	}
	return &reg, nil
}

// StorePath resolves the SSOT database path for a workspace root, following
// the pointer registry when it has an entry and falling back to
// <root>/ssot.db.
func StorePath(root string) (string, error) {
	reg, err := LoadPointers(root)
	if err != nil {
		return "", err
	}
	if rel, ok := reg.Pointers[DefaultStoreName]; ok && rel != "" {
		if filepath.IsAbs(rel) {
			return rel, nil
		}
		return filepath.Join(root, rel), nil
	}
	return filepath.Join(root, DefaultStoreName), nil
}
