// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for foldsafe. It supports a four-layer
// override chain: defaults -> config file -> environment -> CLI flags.
package config

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Journal  JournalConfig  `toml:"journal"`
	Vault    VaultConfig    `toml:"vault"`
	Organize OrganizeConfig `toml:"organize"`
	Logging  LoggingConfig  `toml:"logging"`
}

// JournalConfig controls where the history database lives.
type JournalConfig struct {
	// DBPath is the SQLite database file. Empty means
	// <data dir>/journal.db.
	DBPath string `toml:"db_path"`
}

// VaultConfig controls the safe-deletion quarantine.
type VaultConfig struct {
	// Dir is the quarantine directory. Empty means <data dir>/.vault.
	Dir string `toml:"dir"`

	// Retention is how long quarantined files are kept before `vault purge`
	// removes them, as a Go duration string.
	Retention string `toml:"retention"`

	// MaxSize is a human-readable size ("500MB", "2GiB") above which the
	// CLI warns that the vault needs purging. "0" disables the warning.
	MaxSize string `toml:"max_size"`
}

// OrganizeConfig controls session execution.
type OrganizeConfig struct {
	// Workers is the parallelism for independent move batches.
	Workers int `toml:"workers"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to zero value".
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	VaultDir   *string // --vault-dir flag
	Workers    *int    // --workers flag
	LogLevel   string  // derived from --verbose/--quiet (empty = use config)
}
