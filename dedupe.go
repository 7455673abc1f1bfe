package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/foldsafe/foldsafe-go/internal/organize"
)

func newDedupeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dedupe <directory>",
		Short: "Quarantine duplicate files into the vault",
		Long: `Quarantine the duplicate files listed in a groups file.

Each group names the copy to keep and the copies to remove. Removed files
are never deleted: they move into the vault under a content-addressed name
and can be brought back with 'foldsafe undo' or 'foldsafe vault restore'.
Paths in the groups file may be absolute or relative to the directory.`,
		Args: cobra.ExactArgs(1),
		RunE: runDedupe,
	}

	cmd.Flags().String("groups", "", "duplicate groups file (YAML or JSON)")
	cmd.Flags().Bool("dry-run", false, "preview the quarantine without applying it")
	_ = cmd.MarkFlagRequired("groups")

	return cmd
}

func runDedupe(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	groupsPath, err := cmd.Flags().GetString("groups")
	if err != nil {
		return err
	}

	dryRun, err := cmd.Flags().GetBool("dry-run")
	if err != nil {
		return err
	}

	groups, err := organize.LoadGroups(groupsPath)
	if err != nil {
		return err
	}

	dir, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolving directory: %w", err)
	}

	if dryRun {
		return previewGroups(cc, groups)
	}

	sess, done, err := openSession(cc)
	if err != nil {
		return err
	}
	defer done()

	ctx := shutdownContext(cmd.Context(), cc.Logger)

	entry, err := sess.organizer.CleanupDuplicates(ctx, dir, groups)
	if err != nil {
		return err
	}

	warnVaultSize(cc, sess.vault)

	if cc.Flags.JSON {
		return printJSON(entry)
	}

	cc.Statusf("Quarantined %d duplicates, recovered %s (entry %s)\n",
		entry.DuplicatesDeleted, formatSize(entry.RecoveredSpace), entry.ID)

	if !entry.Success {
		cc.Statusf("%s\n", entry.ErrorMessage)

		return errPartialFailure
	}

	return nil
}

// previewGroups prints the groups a dedupe run would quarantine.
func previewGroups(cc *CLIContext, groups []organize.DuplicateGroup) error {
	if cc.Flags.JSON {
		return printJSON(groups)
	}

	headers := []string{"KEEP", "REMOVE"}
	rows := make([][]string, 0, len(groups))

	removals := 0

	for _, group := range groups {
		rows = append(rows, []string{group.Keep, strings.Join(group.Remove, ", ")})
		removals += len(group.Remove)
	}

	printTable(os.Stdout, headers, rows)
	cc.Statusf("\nDry run: %d files would be quarantined, nothing applied.\n", removals)

	return nil
}
