// Package journal implements the reversible file-operation core of
// foldsafe: a typed operation model, a best-effort batch executor, an
// append-only history store backed by SQLite, undo and restore engines,
// and a safe-deletion vault that quarantines files instead of removing
// them. Every mutation the executor applies is recorded so it can be
// walked back later, file by file, without ever overwriting user data.
package journal

import (
	"context"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Kind identifies the type of a file operation.
type Kind string

// Operation kinds as stored in the operations.kind column.
const (
	KindMove         Kind = "move"
	KindRename       Kind = "rename"
	KindCreateFolder Kind = "create_folder"
)

// FileOperation is a single planned or applied filesystem mutation.
// Move and Rename carry both paths. CreateFolder puts the directory to
// create in DestinationPath and leaves SourcePath empty.
type FileOperation struct {
	Kind            Kind   `json:"kind"`
	SourcePath      string `json:"source_path,omitempty"`
	DestinationPath string `json:"destination_path"`
	Timestamp       int64  `json:"timestamp,omitempty"` // applied-at time (Unix nanoseconds), zero until applied
}

// IsReversible reports whether undoing the operation moves a file back.
// Folder creations are kept on undo, so only moves and renames reverse.
func (op FileOperation) IsReversible() bool {
	return op.Kind == KindMove || op.Kind == KindRename
}

// Status classifies the outcome of a recorded session.
type Status string

// Session statuses as stored in the history_entries.status column.
const (
	StatusCompleted         Status = "completed"
	StatusFailed            Status = "failed"
	StatusCancelled         Status = "cancelled"
	StatusSkipped           Status = "skipped"
	StatusUndo              Status = "undo"
	StatusDuplicatesCleanup Status = "duplicates_cleanup"
)

// undoable reports whether an entry with this status may be reversed.
// Failed, cancelled, and skipped sessions changed nothing worth undoing.
func (s Status) undoable() bool {
	return s == StatusCompleted || s == StatusDuplicatesCleanup
}

// RestorableDuplicate links a quarantined file to its original location.
type RestorableDuplicate struct {
	DeletedPath  string `json:"deleted_path"`  // current path inside the vault
	OriginalPath string `json:"original_path"` // path the file was deleted from
}

// HistoryEntry records one organization or cleanup session. Entries are
// append-only: once written, only the IsUndone flag ever changes, and it
// flips from false to true exactly once.
type HistoryEntry struct {
	ID            string `json:"id"`
	DirectoryPath string `json:"directory_path"`
	Timestamp     int64  `json:"timestamp"` // session start (Unix nanoseconds)

	// Session outcome.
	FilesOrganized int    `json:"files_organized"`
	FoldersCreated int    `json:"folders_created"`
	Success        bool   `json:"success"`
	Status         Status `json:"status"`
	IsUndone       bool   `json:"is_undone"`
	ErrorMessage   string `json:"error_message,omitempty"`

	// Operations holds the applied operations in recording order, with
	// DestinationPath reflecting any collision suffix chosen at apply time.
	Operations []FileOperation `json:"operations,omitempty"`

	// Plan is the raw plan the session executed, stored opaquely for
	// display and audit. The journal never parses it.
	Plan []byte `json:"plan,omitempty"`

	// Duplicate-cleanup bookkeeping, populated on StatusDuplicatesCleanup
	// entries only.
	DuplicatesDeleted int                   `json:"duplicates_deleted,omitempty"`
	RecoveredSpace    int64                 `json:"recovered_space,omitempty"` // bytes
	RestorableItems   []RestorableDuplicate `json:"restorable_items,omitempty"`

	CreatedAt int64 `json:"created_at"` // row creation (Unix nanoseconds)
}

// Undoable reports whether the entry can still be reversed.
func (e *HistoryEntry) Undoable() bool {
	return !e.IsUndone && e.Status.undoable()
}

// Stats aggregates lifetime counters over the whole journal. Values are
// folded from the entries on every call, never stored independently, so
// they cannot drift from the entry rows. Undone sessions stay counted;
// TotalReverted tracks them separately.
type Stats struct {
	TotalSessions       int   `json:"total_sessions"`
	SuccessfulSessions  int   `json:"successful_sessions"`
	TotalFilesOrganized int   `json:"total_files_organized"`
	TotalFoldersCreated int   `json:"total_folders_created"`
	TotalReverted       int   `json:"total_reverted"`
	TotalRecoveredSpace int64 `json:"total_recovered_space"` // bytes
}

// Store is the journal persistence interface. Engines and the organizer
// depend on it rather than on the concrete SQLite implementation, so tests
// and alternative backends can substitute their own.
// This follows "accept interfaces, return structs".
type Store interface {
	// AppendEntry persists a new entry together with its operations and
	// restorable items in a single transaction. Assigns entry.ID when empty.
	AppendEntry(ctx context.Context, entry *HistoryEntry) error

	// Entry returns a fully hydrated entry, or (nil, nil) when absent.
	Entry(ctx context.Context, id string) (*HistoryEntry, error)

	// Entries returns all entries in insertion order, oldest first.
	Entries(ctx context.Context) ([]*HistoryEntry, error)

	// EntriesForDirectory returns one directory's entries in insertion order.
	EntriesForDirectory(ctx context.Context, dir string) ([]*HistoryEntry, error)

	// CandidatesAfter returns the completed, not yet undone entries of a
	// directory strictly newer than afterNano, most recent first. This is
	// the reversal set for a restore-to-state run.
	CandidatesAfter(ctx context.Context, dir string, afterNano int64) ([]*HistoryEntry, error)

	// MarkUndone flips IsUndone for an undoable entry, exactly once.
	// Fails with ErrAlreadyUndone or ErrNotUndoable otherwise.
	MarkUndone(ctx context.Context, id string) error

	// RestorableItemByVaultPath looks up a quarantined item by its vault
	// path. Returns (nil, nil) when no entry recorded that path.
	RestorableItemByVaultPath(ctx context.Context, vaultPath string) (*RestorableDuplicate, error)

	// Stats folds the lifetime counters over all entries.
	Stats(ctx context.Context) (Stats, error)

	// ClearHistory removes every entry and its dependent rows. This is the
	// only bulk delete the journal supports.
	ClearHistory(ctx context.Context) error

	Checkpoint() error
	Close() error
}

// --- Timestamp helpers ---
// All persisted timestamps are int64 Unix nanoseconds. Conversion to and
// from time.Time happens at system boundaries only.

// NowNano returns the current time as Unix nanoseconds.
func NowNano() int64 {
	return time.Now().UnixNano()
}

// ToUnixNano converts a time.Time to Unix nanoseconds.
// Returns 0 for the zero time.
func ToUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}

	return t.UnixNano()
}

// NormalizePath returns path in NFC form. macOS reports decomposed (NFD)
// names, so paths are normalized before journaling or comparing; the
// original spelling is still used for filesystem calls.
func NormalizePath(path string) string {
	return norm.NFC.String(path)
}
