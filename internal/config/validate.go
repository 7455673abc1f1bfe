package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"
)

// Validation range constants.
const (
	minWorkers = 1
	maxWorkers = 32
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateVault(&cfg.Vault)...)
	errs = append(errs, validateOrganize(&cfg.Organize)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

func validateVault(v *VaultConfig) []error {
	var errs []error

	if v.Retention != "" {
		errs = append(errs, validateDurationNonNeg("vault.retention", v.Retention)...)
	}

	if v.MaxSize != "" && v.MaxSize != "0" {
		if _, err := ParseSize(v.MaxSize); err != nil {
			errs = append(errs, fmt.Errorf("vault.max_size: %w", err))
		}
	}

	return errs
}

func validateOrganize(o *OrganizeConfig) []error {
	if o.Workers < minWorkers || o.Workers > maxWorkers {
		return []error{fmt.Errorf("organize.workers: must be between %d and %d, got %d",
			minWorkers, maxWorkers, o.Workers)}
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	errs = append(errs, validateLogLevel(l.LogLevel)...)
	errs = append(errs, validateLogFormat(l.LogFormat)...)

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogFormat(format string) []error {
	if !validLogFormats[format] {
		return []error{fmt.Errorf("log_format: must be one of auto, text, json; got %q", format)}
	}

	return nil
}

func validateDurationNonNeg(field, value string) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < 0 {
		return []error{fmt.Errorf("%s: must be >= 0, got %s", field, d)}
	}

	return nil
}

// ValidateResolved checks cross-field constraints on the fully resolved
// settings. Unlike Validate, which checks raw config file values, this
// runs after the four-layer override chain (defaults -> file -> env ->
// CLI) has been applied.
func ValidateResolved(r *Resolved) error {
	var errs []error

	// Paths must be absolute after tilde expansion and overrides; relative
	// paths would resolve differently depending on cwd.
	if r.DBPath != "" && !filepath.IsAbs(r.DBPath) {
		errs = append(errs, fmt.Errorf("journal.db_path: must be absolute after expansion, got %q", r.DBPath))
	}

	if r.VaultDir != "" && !filepath.IsAbs(r.VaultDir) {
		errs = append(errs, fmt.Errorf("vault.dir: must be absolute after expansion, got %q", r.VaultDir))
	}

	if r.Workers < minWorkers || r.Workers > maxWorkers {
		errs = append(errs, fmt.Errorf("workers: must be between %d and %d, got %d",
			minWorkers, maxWorkers, r.Workers))
	}

	errs = append(errs, validateLogLevel(r.LogLevel)...)

	return errors.Join(errs...)
}

// ParseLogLevel maps a config log level string to a slog.Level.
func ParseLogLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}
