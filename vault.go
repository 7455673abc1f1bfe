package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/foldsafe/foldsafe-go/internal/journal"
)

func newVaultCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vault",
		Short: "Inspect and manage the safe-deletion vault",
	}

	cmd.AddCommand(newVaultListCmd())
	cmd.AddCommand(newVaultRestoreCmd())
	cmd.AddCommand(newVaultPurgeCmd())
	cmd.AddCommand(newVaultWatchCmd())

	return cmd
}

func newVaultListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List quarantined files and where they came from",
		Args:  cobra.NoArgs,
		RunE:  runVaultList,
	}
}

func newVaultRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <vault-file>",
		Short: "Move one quarantined file back to its original path",
		Long: `Move a quarantined file back to the path it was deleted from.

Accepts a bare vault file name or a full path. The original path must be
free; foldsafe never overwrites. To reverse a whole dedupe session at
once, use 'foldsafe undo' with its entry ID instead.`,
		Args: cobra.ExactArgs(1),
		RunE: runVaultRestore,
	}
}

func newVaultPurgeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Permanently delete old quarantined files",
		Long: `Permanently delete quarantined files older than the retention period.

This is the only foldsafe command that destroys data. Purged files can no
longer be restored.`,
		Args: cobra.NoArgs,
		RunE: runVaultPurge,
	}

	cmd.Flags().String("older-than", "", "age threshold, e.g. 720h (default: vault.retention from config)")
	cmd.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")

	return cmd
}

func newVaultWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the vault for external tampering",
		Long: `Watch the vault directory and report files added, removed, or modified
outside foldsafe. A removed or modified vault copy can no longer back a
restore, so tampering is worth knowing about early.

Runs until interrupted. A PID file under the data directory ensures only
one watcher runs at a time.`,
		Args: cobra.NoArgs,
		RunE: runVaultWatch,
	}
}

// vaultListItem is the JSON output schema for one vault list row.
type vaultListItem struct {
	Path          string `json:"path"`
	Size          int64  `json:"size"`
	QuarantinedAt int64  `json:"quarantined_at"`
	OriginalPath  string `json:"original_path,omitempty"`
}

func runVaultList(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	sess, done, err := openSession(cc)
	if err != nil {
		return err
	}
	defer done()

	items, err := sess.vault.Items()
	if err != nil {
		return err
	}

	// Vault items carry no origin; the journal does. Join them for display.
	out := make([]vaultListItem, 0, len(items))

	var total int64

	for _, item := range items {
		total += item.Size

		li := vaultListItem{Path: item.Path, Size: item.Size, QuarantinedAt: item.QuarantinedAt}

		rec, recErr := sess.store.RestorableItemByVaultPath(cmd.Context(), item.Path)
		if recErr == nil && rec != nil {
			li.OriginalPath = rec.OriginalPath
		}

		out = append(out, li)
	}

	if cc.Flags.JSON {
		return printJSON(out)
	}

	if len(out) == 0 {
		cc.Statusf("Vault is empty.\n")

		return nil
	}

	headers := []string{"NAME", "SIZE", "QUARANTINED", "ORIGINAL"}
	rows := make([][]string, 0, len(out))

	for _, li := range out {
		original := li.OriginalPath
		if original == "" {
			original = "(no journal record)"
		}

		rows = append(rows, []string{
			filepath.Base(li.Path),
			formatSize(li.Size),
			formatNanos(li.QuarantinedAt),
			original,
		})
	}

	printTable(os.Stdout, headers, rows)
	cc.Statusf("\n%d files, %s total\n", len(out), formatSize(total))

	if pid, running := watcherPID(watchPIDPath(cc.Config.DataDir)); running {
		cc.Statusf("Watcher running (pid %d).\n", pid)
	}

	warnVaultSize(cc, sess.vault)

	return nil
}

func runVaultRestore(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	sess, done, err := openSession(cc)
	if err != nil {
		return err
	}
	defer done()

	// A bare name means a file inside the vault.
	vaultPath := args[0]
	if !strings.ContainsRune(vaultPath, os.PathSeparator) {
		vaultPath = filepath.Join(sess.vault.Dir(), vaultPath)
	}

	rec, err := sess.store.RestorableItemByVaultPath(cmd.Context(), vaultPath)
	if err != nil {
		return err
	}

	if rec == nil {
		return fmt.Errorf("no journal record for %s; only quarantined duplicates can be restored by path", vaultPath)
	}

	if err := sess.vault.Restore(*rec); err != nil {
		if errors.Is(err, journal.ErrFileExistsAtOriginal) {
			return fmt.Errorf("a file already exists at %s; move it aside and re-run", rec.OriginalPath)
		}

		return err
	}

	if cc.Flags.JSON {
		return printJSON(rec)
	}

	cc.Statusf("Restored %s to %s\n", filepath.Base(vaultPath), rec.OriginalPath)

	return nil
}

// vaultPurgeOutput is the JSON output schema for vault purge.
type vaultPurgeOutput struct {
	Removed    int   `json:"removed"`
	FreedBytes int64 `json:"freed_bytes"`
}

func runVaultPurge(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	olderThan, err := cmd.Flags().GetString("older-than")
	if err != nil {
		return err
	}

	yes, err := cmd.Flags().GetBool("yes")
	if err != nil {
		return err
	}

	age := cc.Config.Retention

	if olderThan != "" {
		age, err = time.ParseDuration(olderThan)
		if err != nil {
			return fmt.Errorf("parsing --older-than: %w", err)
		}

		if age < 0 {
			return fmt.Errorf("--older-than must not be negative")
		}
	}

	if !yes {
		ok, err := confirm(cmd, fmt.Sprintf(
			"Permanently delete vault files quarantined more than %s ago?", age))
		if err != nil {
			return err
		}

		if !ok {
			cc.Statusf("Purge cancelled.\n")

			return nil
		}
	}

	sess, done, err := openSession(cc)
	if err != nil {
		return err
	}
	defer done()

	removed, freed, err := sess.vault.Purge(age)
	if err != nil {
		// A partial purge still removed files; report before failing.
		if removed > 0 {
			cc.Statusf("Purged %d files, freed %s\n", removed, formatSize(freed))
		}

		return err
	}

	if cc.Flags.JSON {
		return printJSON(vaultPurgeOutput{Removed: removed, FreedBytes: freed})
	}

	cc.Statusf("Purged %d files, freed %s\n", removed, formatSize(freed))

	return nil
}

func runVaultWatch(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	cleanup, err := writePIDFile(watchPIDPath(cc.Config.DataDir))
	if err != nil {
		return err
	}
	defer cleanup()

	// The watcher needs no journal store; open the vault directly.
	vault, err := journal.NewVault(cc.Config.VaultDir, cc.Logger)
	if err != nil {
		return err
	}

	ctx := shutdownContext(cmd.Context(), cc.Logger)

	events, err := vault.Watch(ctx)
	if err != nil {
		return err
	}

	cc.Statusf("Watching %s (Ctrl-C to stop)\n", vault.Dir())

	// One compact JSON document per line in JSON mode; the stream has no
	// natural end to wrap an array around.
	jsonEnc := json.NewEncoder(os.Stdout)

	for ev := range events {
		if cc.Flags.JSON {
			if err := jsonEnc.Encode(ev); err != nil {
				return err
			}

			continue
		}

		fmt.Printf("%s  %-8s  %s\n", formatTime(time.Now()), ev.Type, filepath.Base(ev.Path))
	}

	cc.Statusf("Watch stopped.\n")

	return nil
}
