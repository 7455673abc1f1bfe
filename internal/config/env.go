package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig   = "FOLDSAFE_CONFIG"
	EnvDataDir  = "FOLDSAFE_DATA_DIR"
	EnvVaultDir = "FOLDSAFE_VAULT_DIR"
	EnvLogLevel = "FOLDSAFE_LOG_LEVEL"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // FOLDSAFE_CONFIG: override config file path
	DataDir    string // FOLDSAFE_DATA_DIR: override data directory
	VaultDir   string // FOLDSAFE_VAULT_DIR: override vault directory
	LogLevel   string // FOLDSAFE_LOG_LEVEL: override log level
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. This does not modify the Config; Resolve applies the relevant
// fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		DataDir:    os.Getenv(EnvDataDir),
		VaultDir:   os.Getenv(EnvVaultDir),
		LogLevel:   os.Getenv(EnvLogLevel),
	}
}
