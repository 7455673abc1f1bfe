package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// UndoOptions adjusts how an undo handles recorded files that have gone
// missing since the entry was written.
type UndoOptions struct {
	// SkipMissing reverses what is still on disk instead of failing the
	// preflight when recorded destinations are gone.
	SkipMissing bool
}

// UndoResult reports what reversing one entry actually did.
type UndoResult struct {
	EntryID  string `json:"entry_id"`
	Reversed int    `json:"reversed"` // files moved back, or restored from the vault
	Skipped  int    `json:"skipped"`  // recorded files missing from disk
	Failed   int    `json:"failed"`   // reversals attempted and failed
	Summary  string `json:"summary"`
}

// UndoEngine reverses a single history entry: recorded moves and renames go
// back where they came from, vaulted duplicates return to their original
// paths. Folders created during an organize are never removed.
type UndoEngine struct {
	store  Store
	vault  *Vault
	locks  *DirLocks
	logger *slog.Logger
}

// NewUndoEngine wires an undo engine over the given store and vault. locks
// must be the same table other mutators of the journal use. vault may be
// nil when duplicate cleanup is not in play.
func NewUndoEngine(store Store, vault *Vault, locks *DirLocks, logger *slog.Logger) *UndoEngine {
	if logger == nil {
		logger = slog.Default()
	}

	return &UndoEngine{
		store:  store,
		vault:  vault,
		locks:  locks,
		logger: logger,
	}
}

// Undo reverses the entry with the given ID. Entries already undone or
// with a non-undoable status fail fast before any filesystem I/O. The
// entry's IsUndone flag flips only when the reversal is accepted: every
// recorded operation either reversed or was skipped at the caller's
// request.
func (u *UndoEngine) Undo(ctx context.Context, entryID string, opts UndoOptions) (*UndoResult, error) {
	entry, err := u.loadEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}

	release := u.locks.Lock(entry.DirectoryPath)
	defer release()

	// Reload under the lock: another undo may have landed between the
	// first read and lock acquisition.
	entry, err = u.loadEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}

	return u.undoEntry(ctx, entry, opts)
}

func (u *UndoEngine) loadEntry(ctx context.Context, entryID string) (*HistoryEntry, error) {
	entry, err := u.store.Entry(ctx, entryID)
	if err != nil {
		return nil, err
	}

	if entry == nil {
		return nil, fmt.Errorf("undoing %s: %w", entryID, ErrEntryNotFound)
	}

	return entry, nil
}

// undoEntry reverses an already-loaded entry. The caller must hold the
// directory lock; RestoreEngine calls this while holding it across a whole
// rollback sequence.
func (u *UndoEngine) undoEntry(ctx context.Context, entry *HistoryEntry, opts UndoOptions) (*UndoResult, error) {
	if entry.IsUndone {
		return nil, fmt.Errorf("undoing %s: %w", entry.ID, ErrAlreadyUndone)
	}

	if !entry.Undoable() {
		return nil, fmt.Errorf("undoing %s (status %s): %w", entry.ID, entry.Status, ErrNotUndoable)
	}

	u.logger.Info("undoing entry",
		"entry_id", entry.ID,
		"status", entry.Status,
		"directory", entry.DirectoryPath,
		"skip_missing", opts.SkipMissing)

	var (
		result *UndoResult
		err    error
	)

	if entry.Status == StatusDuplicatesCleanup {
		result, err = u.restoreDuplicates(ctx, entry)
	} else {
		result, err = u.reverseOperations(ctx, entry, opts)
	}

	if err != nil {
		return result, err
	}

	if err := u.store.MarkUndone(ctx, entry.ID); err != nil {
		return result, fmt.Errorf("undoing %s: recording undo state: %w", entry.ID, err)
	}

	u.logger.Info("entry undone",
		"entry_id", entry.ID,
		"reversed", result.Reversed,
		"skipped", result.Skipped,
		"failed", result.Failed)

	return result, nil
}

// reverseOperations walks the recorded operations in strict reverse order,
// moving each destination back to its source. CreateFolder operations are
// never reversed.
func (u *UndoEngine) reverseOperations(ctx context.Context, entry *HistoryEntry, opts UndoOptions) (*UndoResult, error) {
	result := &UndoResult{EntryID: entry.ID}

	missing := missingDestinations(entry.Operations)
	if len(missing) > 0 && !opts.SkipMissing {
		paths := make([]string, 0, len(missing))

		for _, op := range entry.Operations {
			if missing[op.DestinationPath] {
				paths = append(paths, op.DestinationPath)
			}
		}

		return nil, &PreflightMissingError{Paths: paths}
	}

	var failures []error

	for i := len(entry.Operations) - 1; i >= 0; i-- {
		op := entry.Operations[i]

		if !op.IsReversible() {
			continue
		}

		if missing[op.DestinationPath] {
			u.logger.Warn("skipping missing file", "entry_id", entry.ID, "path", op.DestinationPath)
			result.Skipped++

			continue
		}

		// A cancel mid-sequence leaves reversals already done in place but
		// does not mark the entry undone.
		if err := ctx.Err(); err != nil {
			result.Summary = undoSummary(result, failures)

			return result, fmt.Errorf("undoing %s: %w", entry.ID, err)
		}

		if err := u.reverseOne(op); err != nil {
			u.logger.Warn("reversal failed", "entry_id", entry.ID, "path", op.DestinationPath, "error", err)
			result.Failed++
			failures = append(failures, err)

			continue
		}

		result.Reversed++
	}

	result.Summary = undoSummary(result, failures)

	if result.Reversed == 0 && result.Failed > 0 {
		return result, fmt.Errorf("undoing %s: every reversal failed: %w",
			entry.ID, errors.Join(failures...))
	}

	return result, nil
}

// reverseOne moves a recorded destination back to its source. An occupied
// source gets a fresh suffixed name, the same rule the forward apply uses;
// nothing is ever overwritten.
func (u *UndoEngine) reverseOne(op FileOperation) error {
	if err := os.MkdirAll(filepath.Dir(op.SourcePath), dirPerm); err != nil {
		return &OperationError{Op: op, Err: err}
	}

	target, err := availablePath(op.SourcePath)
	if err != nil {
		return &OperationError{Op: op, Err: err}
	}

	if target != op.SourcePath {
		u.logger.Debug("original location occupied",
			"source", op.SourcePath, "using", target)
	}

	if err := movePath(op.DestinationPath, target); err != nil {
		return &OperationError{Op: op, Err: err}
	}

	return nil
}

// restoreDuplicates returns every vaulted file of a duplicates-cleanup
// entry to its original path. Vault copies that have since been purged are
// reported and skipped; occupied originals are reported as failures. Both
// leave the rest of the batch unaffected.
func (u *UndoEngine) restoreDuplicates(ctx context.Context, entry *HistoryEntry) (*UndoResult, error) {
	result := &UndoResult{EntryID: entry.ID}

	if u.vault == nil {
		return result, fmt.Errorf("undoing %s: no vault configured for duplicate restore", entry.ID)
	}

	var failures []error

	for _, item := range entry.RestorableItems {
		if err := ctx.Err(); err != nil {
			result.Summary = undoSummary(result, failures)

			return result, fmt.Errorf("undoing %s: %w", entry.ID, err)
		}

		err := u.vault.Restore(item)

		switch {
		case err == nil:
			result.Reversed++
		case errors.Is(err, ErrVaultItemMissing):
			u.logger.Warn("vault copy gone", "entry_id", entry.ID, "vault_path", item.DeletedPath)
			result.Skipped++
			failures = append(failures, err)
		default:
			u.logger.Warn("vault restore failed",
				"entry_id", entry.ID,
				"vault_path", item.DeletedPath,
				"original", item.OriginalPath,
				"error", err)
			result.Failed++
			failures = append(failures, err)
		}
	}

	result.Summary = undoSummary(result, failures)

	if result.Reversed == 0 && result.Failed > 0 {
		return result, fmt.Errorf("undoing %s: every restore failed: %w",
			entry.ID, errors.Join(failures...))
	}

	return result, nil
}

// missingDestinations checks every reversible destination on disk before
// any mutation and reports the absent ones, keyed by path.
func missingDestinations(ops []FileOperation) map[string]bool {
	missing := make(map[string]bool)

	for _, op := range ops {
		if !op.IsReversible() {
			continue
		}

		if _, err := os.Lstat(op.DestinationPath); errors.Is(err, os.ErrNotExist) {
			missing[op.DestinationPath] = true
		}
	}

	return missing
}

func undoSummary(result *UndoResult, failures []error) string {
	parts := []string{fmt.Sprintf("reversed %d", result.Reversed)}

	if result.Skipped > 0 {
		parts = append(parts, fmt.Sprintf("skipped %d missing", result.Skipped))
	}

	if result.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", result.Failed))
	}

	s := strings.Join(parts, ", ")

	if len(failures) > 0 {
		msgs := make([]string, 0, len(failures))
		for _, err := range failures {
			msgs = append(msgs, err.Error())
		}

		s += ": " + strings.Join(msgs, "; ")
	}

	return s
}
