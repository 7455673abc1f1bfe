package config

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_DefaultsAreValid(t *testing.T) {
	assert.NoError(t, Validate(DefaultConfig()))
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "negative retention",
			mutate:  func(c *Config) { c.Vault.Retention = "-24h" },
			wantErr: "vault.retention",
		},
		{
			name:    "garbage retention",
			mutate:  func(c *Config) { c.Vault.Retention = "next tuesday" },
			wantErr: "invalid duration",
		},
		{
			name:    "garbage max size",
			mutate:  func(c *Config) { c.Vault.MaxSize = "plenty" },
			wantErr: "vault.max_size",
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Organize.Workers = 0 },
			wantErr: "organize.workers",
		},
		{
			name:    "too many workers",
			mutate:  func(c *Config) { c.Organize.Workers = 64 },
			wantErr: "organize.workers",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.LogLevel = "verbose" },
			wantErr: "log_level",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.LogFormat = "xml" },
			wantErr: "log_format",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateResolved(t *testing.T) {
	valid := func() *Resolved {
		return &Resolved{
			DBPath:   "/data/journal.db",
			VaultDir: "/data/.vault",
			Workers:  4,
			LogLevel: "info",
		}
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, ValidateResolved(valid()))
	})

	t.Run("relative db path", func(t *testing.T) {
		r := valid()
		r.DBPath = "journal.db"

		err := ValidateResolved(r)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "journal.db_path")
	})

	t.Run("relative vault dir", func(t *testing.T) {
		r := valid()
		r.VaultDir = "vault"

		err := ValidateResolved(r)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "vault.dir")
	})

	t.Run("all errors reported", func(t *testing.T) {
		r := valid()
		r.DBPath = "rel.db"
		r.Workers = 0
		r.LogLevel = "shout"

		err := ValidateResolved(r)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "journal.db_path")
		assert.Contains(t, err.Error(), "workers")
		assert.Contains(t, err.Error(), "log_level")
	})
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tc := range tests {
		level, err := ParseLogLevel(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, level)
	}

	_, err := ParseLogLevel("loud")
	assert.Error(t, err)
}
