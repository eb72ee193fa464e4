package hfo

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// ConfigFile is the optional workspace configuration file.
const ConfigFile = "hfo.toml"

// Config holds operator overrides from hfo.toml. Every field is optional;
// zero values mean "use the built-in default".
type Config struct {
	Cadence  CadenceConfig `toml:"cadence"`
	Defense  DefenseConfig `toml:"defense"`
	Warmup   WarmupConfig  `toml:"warmup"`
	LoadErrs []string      `toml:"-"`
}

// CadenceConfig overrides scheduler cadences, in seconds.
type CadenceConfig struct {
	HeartbeatSec  int `toml:"heartbeat_sec"`
	EnrichmentSec int `toml:"enrichment_sec"`
	EmbedSweepSec int `toml:"embed_sweep_sec"`
	ResearchSec   int `toml:"research_sec"`
	GovernanceSec int `toml:"governance_sec"`
	AuditSec      int `toml:"audit_sec"`
	WatchdogSec   int `toml:"watchdog_sec"`
}

// DefenseConfig overrides the defense supervisor's window.
type DefenseConfig struct {
	WindowHours int `toml:"window_hours"`
}

// WarmupConfig overrides the GPU warm-up behavior.
type WarmupConfig struct {
	Model     string `toml:"model"`
	KeepAlive string `toml:"keep_alive"`
}

// LoadConfig reads hfo.toml at root. A missing file yields the zero Config.
// Decode errors are recorded in LoadErrs rather than failing: the wish
// verifier's config_valid check surfaces them and the fleet keeps running
// on defaults.
func LoadConfig(root string) *Config {
	cfg := &Config{}
	path := filepath.Join(root, ConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			cfg.LoadErrs = append(cfg.LoadErrs, fmt.Sprintf("reading %s: %v", ConfigFile, err))
		}
		return cfg
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		cfg.LoadErrs = append(cfg.LoadErrs, fmt.Sprintf("parsing %s: %v", ConfigFile, err))
		return &Config{LoadErrs: cfg.LoadErrs}
	}
	return cfg
}
