package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldsafe/foldsafe-go/internal/config"
)

// Global flag reset pattern: newRootCmd() binds flags via StringVar/BoolVar,
// which reset the global flag variables to their zero values. Tests must either:
//   - Set globals AFTER newRootCmd() returns (direct function tests), or
//   - Use cmd.SetArgs() + cmd.Execute() to let Cobra parse flags (integration tests).
//
// Setting a global before newRootCmd() and expecting it to survive is a bug.

// pinEnv points every FOLDSAFE_* variable at a temp directory so tests
// never read the developer's real config or home directory.
func pinEnv(t *testing.T, dir string) {
	t.Helper()

	t.Setenv(config.EnvConfig, filepath.Join(dir, "config.toml"))
	t.Setenv(config.EnvDataDir, dir)
	t.Setenv(config.EnvVaultDir, "")
	t.Setenv(config.EnvLogLevel, "")
}

// newTestRootCmd builds the root command with a background context, the way
// Execute() would, so loadConfig can be called directly in tests.
func newTestRootCmd() *cobra.Command {
	cmd := newRootCmd()
	cmd.SetContext(context.Background())

	return cmd
}

// --- buildLogger tests ---

func TestBuildLogger_NilConfigDefaults(t *testing.T) {
	logger := buildLogger(nil)

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))
}

func TestBuildLogger_Levels(t *testing.T) {
	tests := []struct {
		level    string
		enabled  slog.Level
		disabled slog.Level
	}{
		{"debug", slog.LevelDebug, slog.LevelDebug - 4},
		{"info", slog.LevelInfo, slog.LevelDebug},
		{"warn", slog.LevelWarn, slog.LevelInfo},
		{"error", slog.LevelError, slog.LevelWarn},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := buildLogger(&config.Resolved{LogLevel: tt.level, LogFormat: "text"})

			assert.True(t, logger.Handler().Enabled(context.Background(), tt.enabled))
			assert.False(t, logger.Handler().Enabled(context.Background(), tt.disabled))
		})
	}
}

func TestBuildLogger_Formats(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		logger := buildLogger(&config.Resolved{LogLevel: "info", LogFormat: "json"})

		_, isJSON := logger.Handler().(*slog.JSONHandler)
		assert.True(t, isJSON)
	})

	t.Run("text", func(t *testing.T) {
		logger := buildLogger(&config.Resolved{LogLevel: "info", LogFormat: "text"})

		_, isText := logger.Handler().(*slog.TextHandler)
		assert.True(t, isText)
	})

	t.Run("auto matches terminal detection", func(t *testing.T) {
		logger := buildLogger(&config.Resolved{LogLevel: "info", LogFormat: "auto"})

		// auto picks text on a terminal, JSON when stderr is redirected.
		_, isJSON := logger.Handler().(*slog.JSONHandler)
		assert.Equal(t, !stderrIsTerminal(), isJSON)
	})
}

// --- Cobra structure tests ---

func TestNewRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()

	expected := []string{"organize", "dedupe", "undo", "restore", "history", "vault", "config"}
	for _, name := range expected {
		found := false

		for _, sub := range cmd.Commands() {
			if sub.Name() == name {
				found = true

				break
			}
		}

		assert.True(t, found, "expected subcommand %q not found", name)
	}
}

func TestNewRootCmd_PersistentFlags(t *testing.T) {
	cmd := newRootCmd()

	expectedFlags := []string{"config", "vault-dir", "workers", "json", "verbose", "quiet"}
	for _, name := range expectedFlags {
		flag := cmd.PersistentFlags().Lookup(name)
		assert.NotNil(t, flag, "expected persistent flag %q not found", name)
	}
}

func TestNewRootCmd_MutualExclusivity(t *testing.T) {
	// Cobra enforces mutual exclusivity during Execute(). Uses "config init"
	// because it skips config loading in PersistentPreRunE, so a missing
	// config file cannot mask the flag-group error; the group check fires
	// before RunE, so nothing gets written either.
	cmd := newRootCmd()
	cmd.SetArgs([]string{"--verbose", "--quiet", "config", "init"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "none of the others can be")
}

func TestNewRootCmd_SubcommandStructure(t *testing.T) {
	cmd := newRootCmd()

	groups := map[string][]string{
		"history": {"show", "stats", "clear"},
		"vault":   {"list", "restore", "purge", "watch"},
		"config":  {"show", "init"},
	}

	for parent, subs := range groups {
		parentCmd, _, err := cmd.Find([]string{parent})
		require.NoError(t, err)
		require.Equal(t, parent, parentCmd.Name())

		for _, name := range subs {
			found := false

			for _, sub := range parentCmd.Commands() {
				if sub.Name() == name {
					found = true

					break
				}
			}

			assert.True(t, found, "expected %s subcommand %q not found", parent, name)
		}
	}
}

// --- skipConfigCommands uses CommandPath ---

func TestSkipConfigCommands_UsesCommandPath(t *testing.T) {
	cmd := newRootCmd()

	sub, _, err := cmd.Find([]string{"config", "init"})
	require.NoError(t, err)
	assert.True(t, skipConfigCommands[sub.CommandPath()])

	// Bare names must not match, protecting against future subcommand
	// collisions.
	assert.False(t, skipConfigCommands["init"])

	show, _, err := cmd.Find([]string{"config", "show"})
	require.NoError(t, err)
	assert.False(t, skipConfigCommands[show.CommandPath()])
}

func TestPersistentPreRunE_InitSkipsBrokenConfig(t *testing.T) {
	// Break config resolution on purpose; init must not care, since it
	// exists to bootstrap the config file in the first place.
	tmp := t.TempDir()
	bad := filepath.Join(tmp, "config.toml")
	require.NoError(t, os.WriteFile(bad, []byte("not toml ["), 0o600))

	t.Setenv(config.EnvConfig, bad)
	t.Setenv(config.EnvDataDir, tmp)
	t.Setenv(config.EnvVaultDir, "")
	t.Setenv(config.EnvLogLevel, "")

	cmd := newTestRootCmd()

	initCmd, _, err := cmd.Find([]string{"config", "init"})
	require.NoError(t, err)
	assert.NoError(t, cmd.PersistentPreRunE(initCmd, nil))

	// A regular command fails on the malformed file.
	showCmd, _, err := cmd.Find([]string{"config", "show"})
	require.NoError(t, err)
	assert.Error(t, cmd.PersistentPreRunE(showCmd, nil))
}

// --- loadConfig tests ---

func TestLoadConfig_FileValuesApply(t *testing.T) {
	tmp := t.TempDir()
	cfgFile := filepath.Join(tmp, "config.toml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("[organize]\nworkers = 8\n"), 0o600))

	t.Setenv(config.EnvConfig, cfgFile)
	t.Setenv(config.EnvDataDir, tmp)
	t.Setenv(config.EnvVaultDir, "")
	t.Setenv(config.EnvLogLevel, "")

	cmd := newTestRootCmd()
	require.NoError(t, loadConfig(cmd))

	cc := mustCLIContext(cmd.Context())
	require.NotNil(t, cc.Config)
	assert.Equal(t, 8, cc.Config.Workers)
	assert.Equal(t, filepath.Join(tmp, "journal.db"), cc.Config.DBPath)
	assert.Equal(t, filepath.Join(tmp, ".vault"), cc.Config.VaultDir)
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	tmp := t.TempDir()
	pinEnv(t, tmp)

	cmd := newTestRootCmd()
	require.NoError(t, loadConfig(cmd))

	cc := mustCLIContext(cmd.Context())
	assert.Equal(t, 4, cc.Config.Workers)
	assert.Equal(t, "info", cc.Config.LogLevel)
}

func TestLoadConfig_QuietLowersLogLevel(t *testing.T) {
	tmp := t.TempDir()
	pinEnv(t, tmp)

	cmd := newTestRootCmd()

	flagQuiet = true

	t.Cleanup(func() { flagQuiet = false })

	require.NoError(t, loadConfig(cmd))

	cc := mustCLIContext(cmd.Context())
	assert.Equal(t, "error", cc.Config.LogLevel)
	assert.True(t, cc.Flags.Quiet)
}

func TestLoadConfig_VerboseRaisesLogLevel(t *testing.T) {
	tmp := t.TempDir()
	pinEnv(t, tmp)

	cmd := newTestRootCmd()

	flagVerbose = true

	t.Cleanup(func() { flagVerbose = false })

	require.NoError(t, loadConfig(cmd))

	cc := mustCLIContext(cmd.Context())
	assert.Equal(t, "debug", cc.Config.LogLevel)
}

func TestLoadConfig_InvalidConfigFails(t *testing.T) {
	tmp := t.TempDir()
	cfgFile := filepath.Join(tmp, "config.toml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("[organize]\nworkers = 1000\n"), 0o600))

	t.Setenv(config.EnvConfig, cfgFile)
	t.Setenv(config.EnvDataDir, tmp)
	t.Setenv(config.EnvVaultDir, "")
	t.Setenv(config.EnvLogLevel, "")

	cmd := newTestRootCmd()
	err := loadConfig(cmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workers")
}

// --- mustCLIContext ---

func TestMustCLIContext_PanicsWhenMissing(t *testing.T) {
	assert.Panics(t, func() { mustCLIContext(context.Background()) })
}

func TestMustCLIContext_RoundTrip(t *testing.T) {
	cc := &CLIContext{Flags: CLIFlags{JSON: true}}
	ctx := withCLIContext(context.Background(), cc)

	assert.Same(t, cc, mustCLIContext(ctx))
}
