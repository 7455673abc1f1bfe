package journal

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for fail-fast checks. Match with errors.Is.
var (
	// ErrEntryNotFound is returned when an entry ID does not exist.
	ErrEntryNotFound = errors.New("journal: entry not found")

	// ErrAlreadyUndone is returned when reversing an entry whose IsUndone
	// flag is already set. The flag flips exactly once.
	ErrAlreadyUndone = errors.New("journal: entry already undone")

	// ErrNotUndoable is returned when reversing an entry whose status does
	// not support undo (failed, cancelled, skipped, or undo records).
	ErrNotUndoable = errors.New("journal: entry status is not undoable")

	// ErrFileExistsAtOriginal is returned when restoring a quarantined file
	// whose original path is occupied. The vault never overwrites.
	ErrFileExistsAtOriginal = errors.New("journal: a file already exists at the original path")

	// ErrVaultItemMissing is returned when restoring a quarantined file that
	// is no longer present in the vault, typically after a purge.
	ErrVaultItemMissing = errors.New("journal: vault file no longer exists")
)

// PreflightMissingError reports recorded destinations that no longer exist
// on disk. It is returned before any filesystem mutation so callers can
// show the missing paths and ask whether to continue with skipping enabled.
type PreflightMissingError struct {
	Paths []string
}

func (e *PreflightMissingError) Error() string {
	return fmt.Sprintf("journal: %d recorded files missing from disk: %s",
		len(e.Paths), strings.Join(e.Paths, ", "))
}

// OperationError wraps the failure of a single file operation with the
// operation that caused it.
type OperationError struct {
	Op  FileOperation
	Err error // underlying cause, for errors.Is/As
}

func (e *OperationError) Error() string {
	switch e.Op.Kind {
	case KindCreateFolder:
		return fmt.Sprintf("journal: %s %s: %v", e.Op.Kind, e.Op.DestinationPath, e.Err)
	default:
		return fmt.Sprintf("journal: %s %s to %s: %v",
			e.Op.Kind, e.Op.SourcePath, e.Op.DestinationPath, e.Err)
	}
}

func (e *OperationError) Unwrap() error {
	return e.Err
}
