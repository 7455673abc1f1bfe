package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/foldsafe/foldsafe-go/internal/config"
	"github.com/foldsafe/foldsafe-go/internal/journal"
)

// Shared harness for the command-level tests. Each test executes real CLI
// invocations against a sandboxed FOLDSAFE_* environment, then inspects the
// filesystem and the journal directly. t.Setenv keeps them off the parallel
// schedule, so they never race the signal tests.

// setupCLIEnv pins every FOLDSAFE_* variable to a temp sandbox so commands
// never touch the real home directory. Returns the data directory; the
// journal lands at <dataDir>/journal.db and the vault at <dataDir>/.vault.
func setupCLIEnv(t *testing.T) string {
	t.Helper()

	dataDir := t.TempDir()
	t.Setenv(config.EnvConfig, filepath.Join(dataDir, "config.toml"))
	t.Setenv(config.EnvDataDir, dataDir)
	t.Setenv(config.EnvVaultDir, filepath.Join(dataDir, ".vault"))
	t.Setenv(config.EnvLogLevel, "error")

	return dataDir
}

// execFoldsafe runs one CLI invocation on a fresh command tree. stdin, when
// non-empty, feeds confirmation prompts.
func execFoldsafe(t *testing.T, stdin string, args ...string) error {
	t.Helper()

	cmd := newRootCmd()
	cmd.SetArgs(args)

	if stdin != "" {
		cmd.SetIn(strings.NewReader(stdin))
	}

	return cmd.Execute()
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// journalEntries opens the journal read-only-style and returns all entries
// in insertion order. Commands close their own store before returning, so
// reopening here never contends.
func journalEntries(t *testing.T, dataDir string) []*journal.HistoryEntry {
	t.Helper()

	store, err := journal.NewStore(filepath.Join(dataDir, "journal.db"), discardLogger())
	require.NoError(t, err)

	defer func() { require.NoError(t, store.Close()) }()

	entries, err := store.Entries(context.Background())
	require.NoError(t, err)

	return entries
}

func journalEntry(t *testing.T, dataDir, id string) *journal.HistoryEntry {
	t.Helper()

	store, err := journal.NewStore(filepath.Join(dataDir, "journal.db"), discardLogger())
	require.NoError(t, err)

	defer func() { require.NoError(t, store.Close()) }()

	entry, err := store.Entry(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, entry)

	return entry
}

func vaultItems(t *testing.T, vaultDir string) []journal.VaultItem {
	t.Helper()

	vault, err := journal.NewVault(vaultDir, discardLogger())
	require.NoError(t, err)

	items, err := vault.Items()
	require.NoError(t, err)

	return items
}
