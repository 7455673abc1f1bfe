package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/foldsafe/foldsafe-go/internal/journal"
	"github.com/foldsafe/foldsafe-go/internal/plan"
)

func newOrganizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "organize <directory>",
		Short: "Apply an organization plan to a directory",
		Long: `Apply an organization plan to a directory.

The plan is a YAML or JSON file describing folders to create, files to
move into them, and renames. Every applied operation is journaled, and the
whole session can be reversed later with 'foldsafe undo'.

Name collisions never overwrite: the incoming file gets the smallest free
numeric suffix (report.pdf becomes report_1.pdf). Use --dry-run to preview
the operations without touching the filesystem.`,
		Args: cobra.ExactArgs(1),
		RunE: runOrganize,
	}

	cmd.Flags().String("plan", "", "plan file (YAML or JSON)")
	cmd.Flags().Bool("dry-run", false, "preview operations without applying them")
	_ = cmd.MarkFlagRequired("plan")

	return cmd
}

func runOrganize(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	planPath, err := cmd.Flags().GetString("plan")
	if err != nil {
		return err
	}

	dryRun, err := cmd.Flags().GetBool("dry-run")
	if err != nil {
		return err
	}

	p, err := plan.Load(planPath)
	if err != nil {
		return err
	}

	dir, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolving directory: %w", err)
	}

	if dryRun {
		return previewOperations(cc, p.Operations(dir))
	}

	sess, done, err := openSession(cc)
	if err != nil {
		return err
	}
	defer done()

	ctx := shutdownContext(cmd.Context(), cc.Logger)

	entry, err := sess.organizer.Organize(ctx, dir, p)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(entry)
	}

	cc.Statusf("Organized %s: %d files into %d folders (entry %s)\n",
		entry.DirectoryPath, entry.FilesOrganized, entry.FoldersCreated, entry.ID)

	if !entry.Success {
		cc.Statusf("%s\n", entry.ErrorMessage)

		return errPartialFailure
	}

	return nil
}

// previewOperations prints what a plan would do without applying it.
func previewOperations(cc *CLIContext, ops []journal.FileOperation) error {
	if cc.Flags.JSON {
		return printJSON(ops)
	}

	headers := []string{"KIND", "SOURCE", "DESTINATION"}
	rows := make([][]string, 0, len(ops))

	for _, op := range ops {
		rows = append(rows, []string{string(op.Kind), op.SourcePath, op.DestinationPath})
	}

	printTable(os.Stdout, headers, rows)
	cc.Statusf("\nDry run: %d operations, nothing applied.\n", len(ops))

	return nil
}
