package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Resolved is the effective configuration after the override chain:
// everything the CLI needs, with paths absolute, durations and sizes
// parsed, and defaults filled in.
type Resolved struct {
	ConfigPath string        `json:"config_path"` // config file the values came from (may not exist)
	DataDir    string        `json:"data_dir"`
	DBPath     string        `json:"db_path"`
	VaultDir   string        `json:"vault_dir"`
	Retention  time.Duration `json:"retention"`
	MaxSize    int64         `json:"max_size"` // bytes, 0 = no warning threshold
	Workers    int           `json:"workers"`
	LogLevel   string        `json:"log_level"`
	LogFormat  string        `json:"log_format"`
}

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are treated as fatal errors with "did you
// mean?" suggestions — this strictness is deliberate because silently
// ignoring a typo in a config file leads to hard-to-debug behavior.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values. This supports the zero-config
// first-run experience: foldsafe works without a config file.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the four-layer override chain:
// defaults -> config file -> environment variables -> CLI flags.
// The precedence order ensures CLI flags always win, matching user
// expectations for one-off overrides without editing the config file.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	// 1. Resolve config path: CLI > env > default.
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	// 2. Load config file (returns defaults if no file exists).
	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	// 3. Resolve the data directory; everything else defaults under it.
	dataDir := DefaultDataDir()
	if env.DataDir != "" {
		dataDir = ExpandTilde(env.DataDir)
	}

	r := &Resolved{
		ConfigPath: cfgPath,
		DataDir:    dataDir,
		DBPath:     resolvePath(cfg.Journal.DBPath, dataDir, defaultDBFileName),
		VaultDir:   resolvePath(cfg.Vault.Dir, dataDir, defaultVaultDirName),
		Workers:    cfg.Organize.Workers,
		LogLevel:   cfg.Logging.LogLevel,
		LogFormat:  cfg.Logging.LogFormat,
	}

	// 4. Parse the human-readable values. Validate already checked them
	// when a config file existed; defaults always parse.
	if r.Retention, err = time.ParseDuration(cfg.Vault.Retention); err != nil {
		return nil, fmt.Errorf("vault.retention: %w", err)
	}

	if r.MaxSize, err = ParseSize(cfg.Vault.MaxSize); err != nil {
		return nil, fmt.Errorf("vault.max_size: %w", err)
	}

	// 5. Apply env overrides.
	if env.VaultDir != "" {
		r.VaultDir = ExpandTilde(env.VaultDir)
	}

	if env.LogLevel != "" {
		r.LogLevel = env.LogLevel
	}

	// 6. Apply CLI overrides (pointer fields: nil = not specified).
	if cli.VaultDir != nil {
		r.VaultDir = ExpandTilde(*cli.VaultDir)
	}

	if cli.Workers != nil {
		r.Workers = *cli.Workers
	}

	if cli.LogLevel != "" {
		r.LogLevel = cli.LogLevel
	}

	// 7. Validate the final resolved settings.
	if err := ValidateResolved(r); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return r, nil
}

// resolvePath expands a configured path, or derives the default location
// under the data directory when the config leaves it empty.
func resolvePath(configured, dataDir, defaultName string) string {
	if configured != "" {
		return ExpandTilde(configured)
	}

	if dataDir == "" {
		return ""
	}

	return filepath.Join(dataDir, defaultName)
}
