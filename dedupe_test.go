package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldsafe/foldsafe-go/internal/journal"
)

func TestDedupeVaultRestoreWorkflow(t *testing.T) {
	dataDir := setupCLIEnv(t)

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

	assert.FileExists(t, filepath.Join(dir, "keep.txt"))
	assert.NoFileExists(t, filepath.Join(dir, "copy1.txt"))
	assert.NoFileExists(t, filepath.Join(dir, "copy2.txt"))

	entries := journalEntries(t, dataDir)
	require.Len(t, entries, 1)
	assert.Equal(t, journal.StatusDuplicatesCleanup, entries[0].Status)
	assert.Equal(t, 2, entries[0].DuplicatesDeleted)
	assert.Equal(t, int64(2*len(content)), entries[0].RecoveredSpace)
	require.Len(t, entries[0].RestorableItems, 2)

	assert.Len(t, vaultItems(t, filepath.Join(dataDir, ".vault")), 2)

	// Restore one copy by its bare vault name.
	item := entries[0].RestorableItems[0]
	require.NoError(t, execFoldsafe(t, "", "--quiet", "vault", "restore", filepath.Base(item.DeletedPath)))

	assert.FileExists(t, item.OriginalPath)
	assert.Len(t, vaultItems(t, filepath.Join(dataDir, ".vault")), 1)

	// Restoring again reports the occupied original path.
	err := execFoldsafe(t, "", "--quiet", "vault", "restore", filepath.Base(item.DeletedPath))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestDedupePartialFailure(t *testing.T) {
	dataDir := setupCLIEnv(t)

	dir := t.TempDir()
	content := "duplicate payload"
	writeTestFile(t, filepath.Join(dir, "keep.txt"), content)
	writeTestFile(t, filepath.Join(dir, "copy1.txt"), content)
	// ghost.txt is listed for removal but not on disk.

	groupsPath := filepath.Join(dataDir, "groups.yaml")
	writeTestFile(t, groupsPath, `groups:
  - keep: keep.txt
    remove:
      - copy1.txt
      - ghost.txt
`)

	err := execFoldsafe(t, "", "--quiet", "dedupe", dir, "--groups", groupsPath)
	require.Error(t, err)
	assert.ErrorIs(t, err, errPartialFailure)

	// The quarantine that could happen did happen and is recorded.
	entries := journalEntries(t, dataDir)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].DuplicatesDeleted)
	assert.False(t, entries[0].Success)
	assert.Len(t, vaultItems(t, filepath.Join(dataDir, ".vault")), 1)
}

func TestDedupeDryRun(t *testing.T) {
	dataDir := setupCLIEnv(t)

	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "keep.txt"), "same")
	writeTestFile(t, filepath.Join(dir, "copy.txt"), "same")

	groupsPath := filepath.Join(dataDir, "groups.yaml")
	writeTestFile(t, groupsPath, `groups:
  - keep: keep.txt
    remove:
      - copy.txt
`)

	require.NoError(t, execFoldsafe(t, "", "--quiet", "dedupe", dir, "--groups", groupsPath, "--dry-run"))

	assert.FileExists(t, filepath.Join(dir, "copy.txt"))
	assert.NoFileExists(t, filepath.Join(dataDir, "journal.db"))
}
