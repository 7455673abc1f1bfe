package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// configFilePermissions is the standard permission mode for config files.
// Owner read/write, group and others read-only.
const configFilePermissions = 0o644

// configDirPermissions is the standard permission mode for config directories.
const configDirPermissions = 0o755

// configTemplate is the default config file content written by
// `config init`. All settings are present as commented-out defaults so
// users can discover every option without reading docs. This template is
// written once and never regenerated.
const configTemplate = `# foldsafe configuration

[journal]
# SQLite database holding the operation history.
# Default: journal.db under the platform data directory.
# db_path = ""

[vault]
# Quarantine directory for safely deleted files.
# Default: .vault under the platform data directory.
# dir = ""

# How long quarantined files are kept before 'vault purge' removes them.
# retention = "720h"

# Warn when the vault grows beyond this size. "0" disables the warning.
# max_size = "0"

[organize]
# Parallel workers for applying independent file moves.
# workers = 4

[logging]
# Verbosity: debug, info, warn, error
# log_level = "info"

# Output format: auto, text, json
# log_format = "auto"
`

// WriteDefault creates the default config file at path. Refuses to
// overwrite an existing file: user edits are never clobbered.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}

	return atomicWriteFile(path, []byte(configTemplate))
}

// atomicWriteFile writes data to a temporary file in the same directory as
// path, then renames it to the target path. This prevents partial writes
// from corrupting the config file on crash. Parent directories are created
// as needed.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPermissions); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tempPath := f.Name()

	// Clean up the temp file on any error path.
	succeeded := false
	defer func() {
		if !succeeded {
			os.Remove(tempPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()

		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Chmod(tempPath, configFilePermissions); err != nil {
		return fmt.Errorf("setting file permissions: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	succeeded = true

	return nil
}
