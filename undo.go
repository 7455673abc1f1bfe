package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foldsafe/foldsafe-go/internal/journal"
)

func newUndoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "undo <entry-id>",
		Short: "Reverse a recorded session",
		Long: `Reverse the session recorded under the given history entry.

Moves and renames are walked in reverse order, each file returning to
where it came from. Folders created by the session are left in place.
For a dedupe session, the quarantined files move back from the vault to
their original paths.

The undo refuses to start when recorded files are missing from disk; pass
--skip-missing to reverse the files still present.`,
		Args: cobra.ExactArgs(1),
		RunE: runUndo,
	}

	cmd.Flags().Bool("skip-missing", false, "skip recorded files that no longer exist")

	return cmd
}

func runUndo(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	skipMissing, err := cmd.Flags().GetBool("skip-missing")
	if err != nil {
		return err
	}

	sess, done, err := openSession(cc)
	if err != nil {
		return err
	}
	defer done()

	ctx := shutdownContext(cmd.Context(), cc.Logger)

	res, err := sess.undo.Undo(ctx, args[0], journal.UndoOptions{SkipMissing: skipMissing})
	if err != nil {
		var missing *journal.PreflightMissingError
		if errors.As(err, &missing) {
			cc.Statusf("Cannot undo: %d recorded files are missing from disk:\n", len(missing.Paths))

			for _, p := range missing.Paths {
				cc.Statusf("  %s\n", p)
			}

			return fmt.Errorf("undo aborted; re-run with --skip-missing to reverse the remaining files")
		}

		return err
	}

	if cc.Flags.JSON {
		return printJSON(res)
	}

	cc.Statusf("Undid entry %s: %s\n", res.EntryID, res.Summary)

	if res.Failed > 0 {
		return errPartialFailure
	}

	return nil
}
