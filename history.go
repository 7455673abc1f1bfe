package main

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/foldsafe/foldsafe-go/internal/journal"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List and inspect recorded sessions",
		Long: `List recorded sessions, most recent first.

Sessions marked with * had failures; 'history show' displays the details
and the exact operations each one applied.`,
		Args: cobra.NoArgs,
		RunE: runHistoryList,
	}

	cmd.Flags().String("dir", "", "only show sessions for this directory")
	cmd.Flags().Int("limit", 0, "show at most this many sessions (0 = all)")

	cmd.AddCommand(newHistoryShowCmd())
	cmd.AddCommand(newHistoryStatsCmd())
	cmd.AddCommand(newHistoryClearCmd())

	return cmd
}

func newHistoryShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <entry-id>",
		Short: "Display one session in full, including its operations",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistoryShow,
	}
}

func newHistoryStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show lifetime journal statistics",
		Args:  cobra.NoArgs,
		RunE:  runHistoryStats,
	}
}

func newHistoryClearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every recorded session",
		Long: `Delete every recorded session from the journal.

Quarantined files stay in the vault but lose their journal records, so
they can only be recovered by moving them out of the vault by hand.
This cannot be undone.`,
		Args: cobra.NoArgs,
		RunE: runHistoryClear,
	}

	cmd.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")

	return cmd
}

func runHistoryList(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	dir, err := cmd.Flags().GetString("dir")
	if err != nil {
		return err
	}

	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}

	sess, done, err := openSession(cc)
	if err != nil {
		return err
	}
	defer done()

	ctx := cmd.Context()

	var entries []*journal.HistoryEntry

	if dir != "" {
		abs, absErr := filepath.Abs(dir)
		if absErr != nil {
			return fmt.Errorf("resolving directory: %w", absErr)
		}

		entries, err = sess.store.EntriesForDirectory(ctx, journal.NormalizePath(abs))
	} else {
		entries, err = sess.store.Entries(ctx)
	}

	if err != nil {
		return err
	}

	// The store returns insertion order; display newest first.
	slices.Reverse(entries)

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	if cc.Flags.JSON {
		return printJSON(entries)
	}

	if len(entries) == 0 {
		cc.Statusf("No sessions recorded.\n")

		return nil
	}

	printHistoryTable(entries)

	for _, e := range entries {
		if !e.Success {
			cc.Statusf("\n* session had failures; 'foldsafe history show <id>' has the details\n")

			break
		}
	}

	return nil
}

func printHistoryTable(entries []*journal.HistoryEntry) {
	headers := []string{"ID", "WHEN", "DIRECTORY", "STATUS", "FILES", "UNDONE"}
	rows := make([][]string, 0, len(entries))

	for _, e := range entries {
		status := string(e.Status)
		if !e.Success {
			status += "*"
		}

		// Dedupe sessions organize nothing; show the quarantine count instead.
		files := strconv.Itoa(e.FilesOrganized)
		if e.Status == journal.StatusDuplicatesCleanup {
			files = strconv.Itoa(e.DuplicatesDeleted)
		}

		undone := ""
		if e.IsUndone {
			undone = "yes"
		}

		rows = append(rows, []string{
			e.ID,
			formatNanos(e.Timestamp),
			e.DirectoryPath,
			status,
			files,
			undone,
		})
	}

	printTable(os.Stdout, headers, rows)
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	sess, done, err := openSession(cc)
	if err != nil {
		return err
	}
	defer done()

	entry, err := sess.store.Entry(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if entry == nil {
		return fmt.Errorf("no session recorded under %s", args[0])
	}

	if cc.Flags.JSON {
		return printJSON(entry)
	}

	printEntryText(entry)

	return nil
}

func printEntryText(entry *journal.HistoryEntry) {
	fmt.Printf("ID:        %s\n", entry.ID)
	fmt.Printf("When:      %s\n", formatNanos(entry.Timestamp))
	fmt.Printf("Directory: %s\n", entry.DirectoryPath)
	fmt.Printf("Status:    %s\n", entry.Status)
	fmt.Printf("Success:   %t\n", entry.Success)
	fmt.Printf("Undone:    %t\n", entry.IsUndone)

	if entry.ErrorMessage != "" {
		fmt.Printf("Errors:    %s\n", entry.ErrorMessage)
	}

	switch {
	case entry.Status == journal.StatusDuplicatesCleanup:
		fmt.Printf("Deleted:   %d duplicates, %s recovered\n",
			entry.DuplicatesDeleted, formatSize(entry.RecoveredSpace))

		for _, item := range entry.RestorableItems {
			fmt.Printf("  %s <- %s\n", item.OriginalPath, filepath.Base(item.DeletedPath))
		}

	default:
		fmt.Printf("Organized: %d files into %d folders\n",
			entry.FilesOrganized, entry.FoldersCreated)

		if len(entry.Operations) > 0 {
			fmt.Println()

			headers := []string{"KIND", "SOURCE", "DESTINATION"}
			rows := make([][]string, 0, len(entry.Operations))

			for _, op := range entry.Operations {
				rows = append(rows, []string{string(op.Kind), op.SourcePath, op.DestinationPath})
			}

			printTable(os.Stdout, headers, rows)
		}
	}
}

func runHistoryStats(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	sess, done, err := openSession(cc)
	if err != nil {
		return err
	}
	defer done()

	stats, err := sess.store.Stats(cmd.Context())
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(stats)
	}

	fmt.Printf("Sessions:        %d (%d successful)\n", stats.TotalSessions, stats.SuccessfulSessions)
	fmt.Printf("Files organized: %d\n", stats.TotalFilesOrganized)
	fmt.Printf("Folders created: %d\n", stats.TotalFoldersCreated)
	fmt.Printf("Sessions undone: %d\n", stats.TotalReverted)
	fmt.Printf("Space recovered: %s\n", formatSize(stats.TotalRecoveredSpace))

	return nil
}

// historyClearOutput is the JSON output schema for history clear.
type historyClearOutput struct {
	Cleared bool `json:"cleared"`
}

func runHistoryClear(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	yes, err := cmd.Flags().GetBool("yes")
	if err != nil {
		return err
	}

	if !yes {
		ok, err := confirm(cmd, "Delete every recorded session? This cannot be undone.")
		if err != nil {
			return err
		}

		if !ok {
			cc.Statusf("Clear cancelled.\n")

			return nil
		}
	}

	sess, done, err := openSession(cc)
	if err != nil {
		return err
	}
	defer done()

	if err := sess.store.ClearHistory(cmd.Context()); err != nil {
		return err
	}

	if cc.Flags.JSON {
		return printJSON(historyClearOutput{Cleared: true})
	}

	cc.Statusf("History cleared.\n")

	return nil
}
