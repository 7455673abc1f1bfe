package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// RestoreOptions adjusts a restore-to-state run.
type RestoreOptions struct {
	// SkipMissing is passed through to each entry reversal; see
	// UndoOptions.SkipMissing.
	SkipMissing bool
}

// RestorePreflight is the read-only dry run of a restore: every file the
// run would move, split by whether it is still on disk. Callers show this
// before asking the user to confirm.
type RestorePreflight struct {
	Entries  int      `json:"entries"`  // candidate entries that would be reversed
	Existing []string `json:"existing"` // recorded files still present
	Missing  []string `json:"missing"`  // recorded files gone from disk
}

// RestoreResult reports a restore-to-state run. RestoredCount counts
// files moved back, not entries; EntriesReversed counts entries.
type RestoreResult struct {
	TargetID        string `json:"target_id"`
	EntriesReversed int    `json:"entries_reversed"`
	RestoredCount   int    `json:"restored_count"`
	MissingCount    int    `json:"missing_count"`
	HasIssues       bool   `json:"has_issues"`
	Summary         string `json:"summary"`
}

// RestoreEngine rolls a directory back to the state it was in when a
// chosen entry was recorded, by reversing every newer completed entry in
// most-recent-first order. The run is not transactional: each entry is
// reversed and marked on its own, and a failure partway leaves earlier
// reversals in place.
type RestoreEngine struct {
	store  Store
	undo   *UndoEngine
	locks  *DirLocks
	logger *slog.Logger
}

// NewRestoreEngine wires a restore engine. undo performs the per-entry
// reversals; locks must be the same table the undo engine uses, so a
// restore holds the directory for its whole sequence.
func NewRestoreEngine(store Store, undo *UndoEngine, locks *DirLocks, logger *slog.Logger) *RestoreEngine {
	if logger == nil {
		logger = slog.Default()
	}

	return &RestoreEngine{
		store:  store,
		undo:   undo,
		locks:  locks,
		logger: logger,
	}
}

// Candidates returns the entries a restore to the given target would
// reverse: same directory, strictly newer, completed, not yet undone,
// most recent first. The target itself is never a candidate.
func (r *RestoreEngine) Candidates(ctx context.Context, targetID string) ([]*HistoryEntry, error) {
	target, err := r.loadTarget(ctx, targetID)
	if err != nil {
		return nil, err
	}

	return r.store.CandidatesAfter(ctx, target.DirectoryPath, target.Timestamp)
}

// Preflight checks every file the restore would move, before any mutation.
func (r *RestoreEngine) Preflight(ctx context.Context, targetID string) (*RestorePreflight, error) {
	candidates, err := r.Candidates(ctx, targetID)
	if err != nil {
		return nil, err
	}

	pre := &RestorePreflight{Entries: len(candidates)}
	seen := make(map[string]bool)

	for _, entry := range candidates {
		for _, op := range entry.Operations {
			if !op.IsReversible() || seen[op.DestinationPath] {
				continue
			}

			seen[op.DestinationPath] = true

			if _, err := os.Lstat(op.DestinationPath); errors.Is(err, os.ErrNotExist) {
				pre.Missing = append(pre.Missing, op.DestinationPath)
			} else {
				pre.Existing = append(pre.Existing, op.DestinationPath)
			}
		}
	}

	return pre, nil
}

// RestoreToState reverses every candidate newer than the target, most
// recent first. Each successfully reversed entry is marked undone
// immediately, so an interrupted run never repeats finished work. A
// failing entry is reported and the run continues with the older ones;
// only a cancelled context stops the sequence.
//
// With no candidates the run is a no-op success: zero filesystem
// mutations, RestoredCount 0.
func (r *RestoreEngine) RestoreToState(ctx context.Context, targetID string, opts RestoreOptions) (*RestoreResult, error) {
	target, err := r.loadTarget(ctx, targetID)
	if err != nil {
		return nil, err
	}

	release := r.locks.Lock(target.DirectoryPath)
	defer release()

	candidates, err := r.store.CandidatesAfter(ctx, target.DirectoryPath, target.Timestamp)
	if err != nil {
		return nil, err
	}

	result := &RestoreResult{TargetID: target.ID}

	if len(candidates) == 0 {
		result.Summary = "directory already at the selected state"

		r.logger.Info("nothing to restore", "target_id", target.ID, "directory", target.DirectoryPath)

		return result, nil
	}

	r.logger.Info("restoring to state",
		"target_id", target.ID,
		"directory", target.DirectoryPath,
		"entries", len(candidates))

	var issues []string

	for _, entry := range candidates {
		undoRes, err := r.undo.undoEntry(ctx, entry, UndoOptions{SkipMissing: opts.SkipMissing})

		if undoRes != nil {
			result.RestoredCount += undoRes.Reversed
			result.MissingCount += undoRes.Skipped

			if undoRes.Failed > 0 || undoRes.Skipped > 0 {
				result.HasIssues = true
			}

			if undoRes.Failed > 0 {
				issues = append(issues, fmt.Sprintf("entry %s: %s", entry.ID, undoRes.Summary))
			}
		}

		if err != nil {
			result.HasIssues = true

			if ctxErr := ctx.Err(); ctxErr != nil {
				result.Summary = restoreSummary(result, issues)

				return result, fmt.Errorf("restoring to %s: %w", target.ID, ctxErr)
			}

			issues = append(issues, fmt.Sprintf("entry %s: %v", entry.ID, err))
			r.logger.Warn("entry reversal failed during restore",
				"target_id", target.ID, "entry_id", entry.ID, "error", err)

			continue
		}

		result.EntriesReversed++
	}

	result.Summary = restoreSummary(result, issues)

	r.logger.Info("restore finished",
		"target_id", target.ID,
		"entries_reversed", result.EntriesReversed,
		"files_restored", result.RestoredCount,
		"has_issues", result.HasIssues)

	return result, nil
}

func (r *RestoreEngine) loadTarget(ctx context.Context, targetID string) (*HistoryEntry, error) {
	target, err := r.store.Entry(ctx, targetID)
	if err != nil {
		return nil, err
	}

	if target == nil {
		return nil, fmt.Errorf("restoring to %s: %w", targetID, ErrEntryNotFound)
	}

	return target, nil
}

func restoreSummary(result *RestoreResult, issues []string) string {
	s := fmt.Sprintf("reversed %d entries, restored %d files",
		result.EntriesReversed, result.RestoredCount)

	if result.MissingCount > 0 {
		s += fmt.Sprintf(", %d missing", result.MissingCount)
	}

	if len(issues) > 0 {
		s += "; " + strings.Join(issues, "; ")
	}

	return s
}
