package config

// Default values for configuration options. These represent the "layer 0"
// of the four-layer override chain and are chosen so foldsafe works with
// no config file at all.
const (
	defaultRetention = "720h" // 30 days before purge considers a vault file old
	defaultMaxSize   = "0"    // no vault size warning
	defaultWorkers   = 4
	defaultLogLevel  = "info"
	defaultLogFormat = "auto"
)

// DefaultConfig returns a Config populated with all default values.
// This is used both as the starting point for TOML decoding (so unset
// fields retain defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Vault: VaultConfig{
			Retention: defaultRetention,
			MaxSize:   defaultMaxSize,
		},
		Organize: OrganizeConfig{
			Workers: defaultWorkers,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}
