package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryCommands(t *testing.T) {
	dataDir := setupCLIEnv(t)

	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "a.txt"), "alpha")

	planPath := filepath.Join(dataDir, "plan.yaml")
	writeTestFile(t, planPath, `version: 1
folders:
  docs:
    - a.txt
`)

	require.NoError(t, execFoldsafe(t, "", "--quiet", "organize", dir, "--plan", planPath))

	entries := journalEntries(t, dataDir)
	require.Len(t, entries, 1)
	entryID := entries[0].ID

	require.NoError(t, execFoldsafe(t, "", "--quiet", "history"))
	require.NoError(t, execFoldsafe(t, "", "--quiet", "history", "--dir", dir, "--limit", "1"))
	require.NoError(t, execFoldsafe(t, "", "--quiet", "--json", "history"))
	require.NoError(t, execFoldsafe(t, "", "--quiet", "history", "show", entryID))
	require.NoError(t, execFoldsafe(t, "", "--quiet", "history", "stats"))

	err := execFoldsafe(t, "", "--quiet", "history", "show", "no-such-entry")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no session recorded")

	// Declining the prompt keeps the history.
	require.NoError(t, execFoldsafe(t, "n\n", "--quiet", "history", "clear"))
	assert.Len(t, journalEntries(t, dataDir), 1)

	require.NoError(t, execFoldsafe(t, "", "--quiet", "history", "clear", "--yes"))
	assert.Empty(t, journalEntries(t, dataDir))
}
