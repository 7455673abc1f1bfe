package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVaultPurgeCommand(t *testing.T) {
	dataDir := setupCLIEnv(t)
	vaultDir := filepath.Join(dataDir, ".vault")

	dir := t.TempDir()
	content := "duplicate payload"
	writeTestFile(t, filepath.Join(dir, "keep.txt"), content)
	writeTestFile(t, filepath.Join(dir, "copy1.txt"), content)
	writeTestFile(t, filepath.Join(dir, "copy2.txt"), content)

	groupsPath := filepath.Join(dataDir, "groups.yaml")
	writeTestFile(t, groupsPath, `groups:
  - keep: keep.txt
    remove:
      - copy1.txt
      - copy2.txt
`)

	require.NoError(t, execFoldsafe(t, "", "--quiet", "dedupe", dir, "--groups", groupsPath))
	require.Len(t, vaultItems(t, vaultDir), 2)

	// Invalid and negative thresholds fail before anything is deleted.
	err := execFoldsafe(t, "", "--quiet", "vault", "purge", "--older-than", "soon", "--yes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "older-than")

	err = execFoldsafe(t, "", "--quiet", "vault", "purge", "--older-than", "-1h", "--yes")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "negative")

	// Nothing is old enough yet.
	require.NoError(t, execFoldsafe(t, "", "--quiet", "vault", "purge", "--older-than", "1h", "--yes"))
	assert.Len(t, vaultItems(t, vaultDir), 2)

	// Declining the prompt cancels the purge.
	require.NoError(t, execFoldsafe(t, "n\n", "--quiet", "vault", "purge", "--older-than", "0s"))
	assert.Len(t, vaultItems(t, vaultDir), 2)

	// A zero threshold purges everything quarantined before now.
	require.NoError(t, execFoldsafe(t, "", "--quiet", "vault", "purge", "--older-than", "0s", "--yes"))
	assert.Empty(t, vaultItems(t, vaultDir))
}

func TestVaultListCommand(t *testing.T) {
	dataDir := setupCLIEnv(t)

	// Empty vault lists cleanly.
	require.NoError(t, execFoldsafe(t, "", "--quiet", "vault", "list"))

	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "keep.txt"), "same")
	writeTestFile(t, filepath.Join(dir, "copy.txt"), "same")

	groupsPath := filepath.Join(dataDir, "groups.yaml")
	writeTestFile(t, groupsPath, `groups:
  - keep: keep.txt
    remove:
      - copy.txt
`)

	require.NoError(t, execFoldsafe(t, "", "--quiet", "dedupe", dir, "--groups", groupsPath))

	require.NoError(t, execFoldsafe(t, "", "--quiet", "vault", "list"))
	require.NoError(t, execFoldsafe(t, "", "--quiet", "--json", "vault", "list"))
}

func TestVaultRestoreWithoutRecord(t *testing.T) {
	dataDir := setupCLIEnv(t)
	vaultDir := filepath.Join(dataDir, ".vault")

	// A file placed in the vault by hand has no journal record.
	writeTestFile(t, filepath.Join(vaultDir, "stray.txt"), "stray")

	err := execFoldsafe(t, "", "--quiet", "vault", "restore", "stray.txt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no journal record")
}

func TestVaultWatchStopsOnCancelledContext(t *testing.T) {
	dataDir := setupCLIEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--quiet", "vault", "watch"})
	require.NoError(t, cmd.ExecuteContext(ctx))

	// The PID file is cleaned up on exit.
	assert.NoFileExists(t, filepath.Join(dataDir, "watch.pid"))
}
