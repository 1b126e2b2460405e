// Package roarconfig loads and persists .roar/config.toml, the per-repo
// configuration spec §6 describes: sections output, analyzers, filters,
// cleanup, glaas, registration, hash, reversible, logging, env.
package roarconfig

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/roar-ml/roar/internal/rerr"
)

// Config is the full TOML document roar persists under .roar/config.toml.
type Config struct {
	Output       OutputConfig       `toml:"output"`
	Analyzers    AnalyzersConfig    `toml:"analyzers"`
	Filters      FiltersConfig      `toml:"filters"`
	Cleanup      CleanupConfig      `toml:"cleanup"`
	Glaas        GlaasConfig        `toml:"glaas"`
	Registration RegistrationConfig `toml:"registration"`
	Hash         HashConfig         `toml:"hash"`
	Reversible   ReversibleConfig   `toml:"reversible"`
	Logging      LoggingConfig      `toml:"logging"`
	Env          map[string]string  `toml:"env"`
}

type OutputConfig struct {
	Quiet    bool `toml:"quiet"`
	NoColor  bool `toml:"no_color"`
	JSON     bool `toml:"json"`
}

type AnalyzersConfig struct {
	ExperimentTracking bool `toml:"experiment_tracking"`
}

type FiltersConfig struct {
	Enabled        bool     `toml:"enabled"`
	ExplicitValues []string `toml:"explicit_values"`
	EnvVarNames    []string `toml:"env_var_names"`
	Allowlist      []string `toml:"allowlist_patterns"`
}

type CleanupConfig struct {
	StrictCleanup bool `toml:"strict_cleanup"`
}

type GlaasConfig struct {
	URL            string `toml:"url"`
	SSHKeyPath     string `toml:"ssh_key_path"`
}

type RegistrationConfig struct {
	AutoRegister bool `toml:"auto_register"`
	DryRun       bool `toml:"dry_run"`
}

type HashConfig struct {
	Algorithms []string `toml:"algorithms"`
}

type ReversibleConfig struct {
	Enabled bool `toml:"enabled"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

// Default returns the config `roar init` writes for a new repo.
func Default() Config {
	return Config{
		Hash:    HashConfig{Algorithms: []string{"blake3"}},
		Logging: LoggingConfig{Level: "info"},
		Filters: FiltersConfig{Enabled: true},
		Env:     map[string]string{},
	}
}

// Path is the conventional location of the config file under a .roar
// directory.
func Path(roarDir string) string {
	return filepath.Join(roarDir, "config.toml")
}

// Load reads and parses config.toml.
func Load(roarDir string) (Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(Path(roarDir), &cfg); err != nil {
		return Config{}, rerr.Wrap(rerr.KindPreflight, "read config.toml", err)
	}
	return cfg, nil
}

// Save writes cfg to config.toml, creating roarDir if needed.
func Save(roarDir string, cfg Config) error {
	if err := os.MkdirAll(roarDir, 0o755); err != nil {
		return rerr.Wrap(rerr.KindPreflight, "create .roar directory", err)
	}
	f, err := os.Create(Path(roarDir))
	if err != nil {
		return rerr.Wrap(rerr.KindPreflight, "create config.toml", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return rerr.Wrap(rerr.KindPreflight, "encode config.toml", err)
	}
	return nil
}
