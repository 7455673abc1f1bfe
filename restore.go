package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foldsafe/foldsafe-go/internal/journal"
)

func newRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <entry-id>",
		Short: "Roll a directory back to an earlier recorded state",
		Long: `Roll a directory back to the state it was in when the given entry was
recorded, by reversing every newer session in most-recent-first order.

The command shows what would move before asking for confirmation. Each
reversed session is marked undone immediately, so an interrupted restore
can be re-run and will not repeat finished work.`,
		Args: cobra.ExactArgs(1),
		RunE: runRestore,
	}

	cmd.Flags().Bool("skip-missing", false, "skip recorded files that no longer exist")
	cmd.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")

	return cmd
}

func runRestore(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	skipMissing, err := cmd.Flags().GetBool("skip-missing")
	if err != nil {
		return err
	}

	yes, err := cmd.Flags().GetBool("yes")
	if err != nil {
		return err
	}

	sess, done, err := openSession(cc)
	if err != nil {
		return err
	}
	defer done()

	ctx := shutdownContext(cmd.Context(), cc.Logger)

	pre, err := sess.restore.Preflight(ctx, args[0])
	if err != nil {
		return err
	}

	if pre.Entries == 0 {
		if cc.Flags.JSON {
			return printJSON(pre)
		}

		cc.Statusf("Directory is already at the selected state.\n")

		return nil
	}

	if len(pre.Missing) > 0 && !skipMissing {
		cc.Statusf("%d recorded files are missing from disk:\n", len(pre.Missing))

		for _, p := range pre.Missing {
			cc.Statusf("  %s\n", p)
		}

		return fmt.Errorf("restore aborted; re-run with --skip-missing to restore the remaining files")
	}

	cc.Statusf("Restore will reverse %d sessions and move %d files back.\n", pre.Entries, len(pre.Existing))

	if len(pre.Missing) > 0 {
		cc.Statusf("%d recorded files are missing and will be skipped.\n", len(pre.Missing))
	}

	if !yes {
		ok, err := confirm(cmd, "Proceed with restore?")
		if err != nil {
			return err
		}

		if !ok {
			cc.Statusf("Restore cancelled.\n")

			return nil
		}
	}

	res, err := sess.restore.RestoreToState(ctx, args[0], journal.RestoreOptions{SkipMissing: skipMissing})
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(res)
	}

	cc.Statusf("Restored: %s\n", res.Summary)

	if res.HasIssues {
		return errPartialFailure
	}

	return nil
}
