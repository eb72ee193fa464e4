// Package hfo provides the runtime context shared by every tool in the
// fleet: workspace root discovery, environment configuration, the pointer
// registry, and the generation string used in event-type prefixes.
package hfo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ErrNoWorkspace indicates no HFO workspace was found.
var ErrNoWorkspace = errors.New("not in an HFO workspace")

// PointerRegistryFile is the marker that identifies a workspace root. It
// also maps logical store names to relative paths.
const PointerRegistryFile = "pointers_blessed.json"

// DefaultGeneration is used when HFO_GENERATION is unset. Event types from
// earlier generations remain readable but are exempt from the structural
// signal-metadata gate.
const DefaultGeneration = "gen90"

// Env is the process environment configuration, parsed once at startup.
type Env struct {
	Root       string `env:"HFO_ROOT"`
	Generation string `env:"HFO_GENERATION"`
	OllamaHost string `env:"OLLAMA_HOST" envDefault:"http://127.0.0.1:11434"`
}

var loadDotenvOnce sync.Once

// LoadEnv parses the HFO_* environment variables. A .env file at the
// workspace root (or cwd) is loaded first, best-effort, so provider keys
// and overrides can live outside the shell profile.
func LoadEnv() (Env, error) {
	loadDotenvOnce.Do(func() {
		_ = godotenv.Load()
	})

	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parsing environment: %w", err)
	}
	if e.Generation == "" {
		e.Generation = DefaultGeneration
	}
	return e, nil
}

// FindRoot locates the workspace root. HFO_ROOT wins when set; otherwise
// walk up from startDir looking for pointers_blessed.json.
func FindRoot(startDir string, e Env) (string, error) {
	if e.Root != "" {
		return filepath.Clean(e.Root), nil
	}

	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	current := absDir
	for {
		if _, err := os.Stat(filepath.Join(current, PointerRegistryFile)); err == nil {
			return current, nil
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", ErrNoWorkspace
		}
		current = parent
	}
}
