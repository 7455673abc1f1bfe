package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// walJournalSizeLimit caps the WAL file at 64 MiB so an idle journal does
// not hold a large log on disk.
const walJournalSizeLimit = 67108864

// SQLiteStore is the journal database. It owns the *sql.DB handle and all
// prepared statements.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger

	// nowFunc is the time source for row timestamps, injectable for tests.
	nowFunc func() time.Time

	entryStmts      entryStatements
	operationStmts  operationStatements
	restorableStmts restorableStatements
	aggregateStmts  aggregateStatements
}

// entryStatements are the prepared statements for history_entries rows.
type entryStatements struct {
	insert         *sql.Stmt
	get            *sql.Stmt
	list           *sql.Stmt
	listForDir     *sql.Stmt
	listCandidates *sql.Stmt
	undoState      *sql.Stmt
	markUndone     *sql.Stmt
}

// operationStatements are the prepared statements for operations rows.
type operationStatements struct {
	insert       *sql.Stmt
	listForEntry *sql.Stmt
}

// restorableStatements are the prepared statements for restorable_items rows.
type restorableStatements struct {
	insert         *sql.Stmt
	listForEntry   *sql.Stmt
	getByVaultPath *sql.Stmt
}

// aggregateStatements are the prepared statements for whole-journal queries.
type aggregateStatements struct {
	stats *sql.Stmt
	clear *sql.Stmt
}

// entryColumns is the shared column list for history_entries selects and
// inserts, kept in one place so scanEntry stays in sync.
const entryColumns = `id, directory_path, timestamp, files_organized, folders_created,
	success, status, is_undone, error_message, plan, duplicates_deleted,
	recovered_space, created_at`

// History entry queries.
const (
	sqlInsertEntry = `INSERT INTO history_entries (` + entryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlGetEntry = `SELECT ` + entryColumns + ` FROM history_entries WHERE id = ?`

	// seq is the autoincrement insertion counter, so this is chronological
	// append order regardless of the entry timestamps.
	sqlListEntries = `SELECT ` + entryColumns + ` FROM history_entries ORDER BY seq`

	sqlListEntriesForDir = `SELECT ` + entryColumns + ` FROM history_entries
		WHERE directory_path = ? ORDER BY seq`

	sqlListCandidates = `SELECT ` + entryColumns + ` FROM history_entries
		WHERE directory_path = ? AND timestamp > ? AND status = 'completed' AND is_undone = 0
		ORDER BY timestamp DESC, seq DESC`

	sqlEntryUndoState = `SELECT status, is_undone FROM history_entries WHERE id = ?`

	// The is_undone guard makes the flip single-shot even under a race:
	// a second writer matches zero rows.
	sqlMarkUndone = `UPDATE history_entries SET is_undone = 1
		WHERE id = ? AND is_undone = 0`
)

// Operation queries.
const (
	sqlInsertOperation = `INSERT INTO operations
		(entry_id, position, kind, source_path, destination_path, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)`

	sqlListOperationsForEntry = `SELECT kind, source_path, destination_path, timestamp
		FROM operations WHERE entry_id = ? ORDER BY position`
)

// Restorable item queries.
const (
	sqlInsertRestorableItem = `INSERT INTO restorable_items
		(vault_path, entry_id, original_path) VALUES (?, ?, ?)`

	sqlListRestorableItemsForEntry = `SELECT vault_path, original_path
		FROM restorable_items WHERE entry_id = ? ORDER BY rowid`

	sqlGetRestorableItemByVaultPath = `SELECT vault_path, original_path
		FROM restorable_items WHERE vault_path = ?`
)

// Whole-journal queries.
const (
	sqlStats = `SELECT COUNT(*),
		COALESCE(SUM(success), 0),
		COALESCE(SUM(files_organized), 0),
		COALESCE(SUM(folders_created), 0),
		COALESCE(SUM(is_undone), 0),
		COALESCE(SUM(recovered_space), 0)
		FROM history_entries`

	sqlClearHistory = `DELETE FROM history_entries`
)

// NewStore opens (or creates) the journal database at dbPath, applies
// pending migrations, and prepares all statements. Use ":memory:" for an
// ephemeral store in tests.
func NewStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	logger.Info("opening journal database", "path", dbPath)

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"+
			"&_pragma=journal_size_limit(%d)",
		dbPath, walJournalSizeLimit)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: opening database %s: %w", dbPath, err)
	}

	// Sole-writer pattern: a single connection serializes appends and
	// reads, so listings and stats never observe a half-committed entry.
	db.SetMaxOpenConns(1)

	ctx := context.Background()

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()

		return nil, err
	}

	store := &SQLiteStore{
		db:      db,
		logger:  logger,
		nowFunc: time.Now,
	}

	if err := store.prepareAllStatements(ctx); err != nil {
		db.Close()

		return nil, fmt.Errorf("journal: preparing statements: %w", err)
	}

	logger.Debug("journal database ready", "path", dbPath)

	return store, nil
}

// stmtDef pairs a destination statement pointer with its SQL for batch
// preparation.
type stmtDef struct {
	dest **sql.Stmt
	sql  string
	name string
}

// prepareAllStatements prepares every statement the store uses up front so
// malformed SQL fails at open time, not first use.
func (s *SQLiteStore) prepareAllStatements(ctx context.Context) error {
	defs := []stmtDef{
		{&s.entryStmts.insert, sqlInsertEntry, "insert entry"},
		{&s.entryStmts.get, sqlGetEntry, "get entry"},
		{&s.entryStmts.list, sqlListEntries, "list entries"},
		{&s.entryStmts.listForDir, sqlListEntriesForDir, "list entries for directory"},
		{&s.entryStmts.listCandidates, sqlListCandidates, "list restore candidates"},
		{&s.entryStmts.undoState, sqlEntryUndoState, "entry undo state"},
		{&s.entryStmts.markUndone, sqlMarkUndone, "mark undone"},
		{&s.operationStmts.insert, sqlInsertOperation, "insert operation"},
		{&s.operationStmts.listForEntry, sqlListOperationsForEntry, "list operations"},
		{&s.restorableStmts.insert, sqlInsertRestorableItem, "insert restorable item"},
		{&s.restorableStmts.listForEntry, sqlListRestorableItemsForEntry, "list restorable items"},
		{&s.restorableStmts.getByVaultPath, sqlGetRestorableItemByVaultPath, "get restorable item"},
		{&s.aggregateStmts.stats, sqlStats, "stats"},
		{&s.aggregateStmts.clear, sqlClearHistory, "clear history"},
	}

	for _, def := range defs {
		stmt, err := s.db.PrepareContext(ctx, def.sql)
		if err != nil {
			return fmt.Errorf("preparing %s: %w", def.name, err)
		}

		*def.dest = stmt
	}

	return nil
}

// AppendEntry writes the entry, its operations, and its restorable items
// in one transaction. A missing ID is assigned here so callers can hand in
// bare entries.
func (s *SQLiteStore) AppendEntry(ctx context.Context, entry *HistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	if entry.Timestamp == 0 {
		entry.Timestamp = ToUnixNano(s.nowFunc())
	}

	entry.CreatedAt = ToUnixNano(s.nowFunc())

	s.logger.Info("appending history entry",
		"id", entry.ID,
		"directory", entry.DirectoryPath,
		"status", entry.Status,
		"operations", len(entry.Operations),
		"restorable_items", len(entry.RestorableItems))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("journal: beginning append transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.StmtContext(ctx, s.entryStmts.insert).ExecContext(ctx,
		entry.ID, entry.DirectoryPath, entry.Timestamp,
		entry.FilesOrganized, entry.FoldersCreated,
		entry.Success, string(entry.Status), entry.IsUndone,
		nullString(entry.ErrorMessage), entry.Plan,
		entry.DuplicatesDeleted, entry.RecoveredSpace, entry.CreatedAt,
	); err != nil {
		return fmt.Errorf("journal: inserting entry %s: %w", entry.ID, err)
	}

	opInsert := tx.StmtContext(ctx, s.operationStmts.insert)
	for i := range entry.Operations {
		op := &entry.Operations[i]

		if _, err := opInsert.ExecContext(ctx,
			entry.ID, i, string(op.Kind),
			nullString(op.SourcePath), nullString(op.DestinationPath),
			op.Timestamp,
		); err != nil {
			return fmt.Errorf("journal: inserting operation %d of entry %s: %w", i, entry.ID, err)
		}
	}

	itemInsert := tx.StmtContext(ctx, s.restorableStmts.insert)
	for i := range entry.RestorableItems {
		item := &entry.RestorableItems[i]

		if _, err := itemInsert.ExecContext(ctx,
			item.DeletedPath, entry.ID, item.OriginalPath,
		); err != nil {
			return fmt.Errorf("journal: inserting restorable item %q of entry %s: %w",
				item.DeletedPath, entry.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("journal: committing entry %s: %w", entry.ID, err)
	}

	return nil
}

// Entry returns the entry with the given ID, fully hydrated with its
// operations and restorable items. Returns (nil, nil) when the ID does not
// exist; lookup misses are routine, not errors.
//
//nolint:nilnil // absent entry is a non-error condition
func (s *SQLiteStore) Entry(ctx context.Context, id string) (*HistoryEntry, error) {
	row := s.entryStmts.get.QueryRowContext(ctx, id)

	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("journal: getting entry %s: %w", id, err)
	}

	if err := s.hydrateEntry(ctx, entry); err != nil {
		return nil, err
	}

	return entry, nil
}

// Entries returns every journal entry in insertion order, oldest first.
func (s *SQLiteStore) Entries(ctx context.Context) ([]*HistoryEntry, error) {
	return s.queryEntries(ctx, s.entryStmts.list)
}

// EntriesForDirectory returns the entries recorded for dir in insertion
// order, oldest first.
func (s *SQLiteStore) EntriesForDirectory(ctx context.Context, dir string) ([]*HistoryEntry, error) {
	return s.queryEntries(ctx, s.entryStmts.listForDir, dir)
}

// CandidatesAfter returns dir's completed, not yet undone entries strictly
// newer than afterNano, most recent first.
func (s *SQLiteStore) CandidatesAfter(ctx context.Context, dir string, afterNano int64) ([]*HistoryEntry, error) {
	return s.queryEntries(ctx, s.entryStmts.listCandidates, dir, afterNano)
}

// queryEntries runs a prepared multi-row entry select and hydrates each
// result.
func (s *SQLiteStore) queryEntries(ctx context.Context, stmt *sql.Stmt, args ...any) ([]*HistoryEntry, error) {
	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: listing entries: %w", err)
	}
	defer rows.Close()

	var entries []*HistoryEntry

	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("journal: scanning entry: %w", err)
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterating entries: %w", err)
	}

	for _, entry := range entries {
		if err := s.hydrateEntry(ctx, entry); err != nil {
			return nil, err
		}
	}

	return entries, nil
}

// scanEntry reads one history_entries row in entryColumns order.
// Works with both *sql.Row and *sql.Rows.
func scanEntry(row interface{ Scan(dest ...any) error }) (*HistoryEntry, error) {
	var (
		entry    HistoryEntry
		status   string
		errMsg   sql.NullString
		planBlob []byte
	)

	err := row.Scan(
		&entry.ID, &entry.DirectoryPath, &entry.Timestamp,
		&entry.FilesOrganized, &entry.FoldersCreated,
		&entry.Success, &status, &entry.IsUndone,
		&errMsg, &planBlob,
		&entry.DuplicatesDeleted, &entry.RecoveredSpace, &entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	entry.Status = Status(status)
	entry.ErrorMessage = errMsg.String
	entry.Plan = planBlob

	return &entry, nil
}

// hydrateEntry attaches the entry's operations and restorable items.
func (s *SQLiteStore) hydrateEntry(ctx context.Context, entry *HistoryEntry) error {
	ops, err := s.operationsForEntry(ctx, entry.ID)
	if err != nil {
		return err
	}

	items, err := s.restorableItemsForEntry(ctx, entry.ID)
	if err != nil {
		return err
	}

	entry.Operations = ops
	entry.RestorableItems = items

	return nil
}

// operationsForEntry loads an entry's operations in recording order.
func (s *SQLiteStore) operationsForEntry(ctx context.Context, entryID string) ([]FileOperation, error) {
	rows, err := s.operationStmts.listForEntry.QueryContext(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("journal: listing operations for entry %s: %w", entryID, err)
	}
	defer rows.Close()

	var ops []FileOperation

	for rows.Next() {
		var (
			op   FileOperation
			kind string
			src  sql.NullString
			dest sql.NullString
		)

		if err := rows.Scan(&kind, &src, &dest, &op.Timestamp); err != nil {
			return nil, fmt.Errorf("journal: scanning operation of entry %s: %w", entryID, err)
		}

		op.Kind = Kind(kind)
		op.SourcePath = src.String
		op.DestinationPath = dest.String

		ops = append(ops, op)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterating operations of entry %s: %w", entryID, err)
	}

	return ops, nil
}

// restorableItemsForEntry loads an entry's quarantined items in recording
// order.
func (s *SQLiteStore) restorableItemsForEntry(ctx context.Context, entryID string) ([]RestorableDuplicate, error) {
	rows, err := s.restorableStmts.listForEntry.QueryContext(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("journal: listing restorable items for entry %s: %w", entryID, err)
	}
	defer rows.Close()

	var items []RestorableDuplicate

	for rows.Next() {
		var item RestorableDuplicate

		if err := rows.Scan(&item.DeletedPath, &item.OriginalPath); err != nil {
			return nil, fmt.Errorf("journal: scanning restorable item of entry %s: %w", entryID, err)
		}

		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterating restorable items of entry %s: %w", entryID, err)
	}

	return items, nil
}

// MarkUndone flips the entry's IsUndone flag from false to true. The state
// is read first to return the precise sentinel, then the guarded UPDATE
// enforces single-shot semantics even if another writer flipped the flag
// in between.
func (s *SQLiteStore) MarkUndone(ctx context.Context, id string) error {
	var (
		status   string
		isUndone bool
	)

	err := s.entryStmts.undoState.QueryRowContext(ctx, id).Scan(&status, &isUndone)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("journal: marking %s undone: %w", id, ErrEntryNotFound)
	}

	if err != nil {
		return fmt.Errorf("journal: reading undo state of %s: %w", id, err)
	}

	if isUndone {
		return fmt.Errorf("journal: marking %s undone: %w", id, ErrAlreadyUndone)
	}

	if !Status(status).undoable() {
		return fmt.Errorf("journal: marking %s (status %s) undone: %w", id, status, ErrNotUndoable)
	}

	result, err := s.entryStmts.markUndone.ExecContext(ctx, id)
	if err != nil {
		return fmt.Errorf("journal: marking %s undone: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("journal: rows affected for %s: %w", id, err)
	}

	if affected == 0 {
		return fmt.Errorf("journal: marking %s undone: %w", id, ErrAlreadyUndone)
	}

	s.logger.Info("entry marked undone", "id", id)

	return nil
}

// RestorableItemByVaultPath resolves a vault file back to the duplicate
// record that quarantined it. Returns (nil, nil) when no entry recorded
// that path; vault files can outlive a cleared history.
//
//nolint:nilnil // absent item is a non-error condition
func (s *SQLiteStore) RestorableItemByVaultPath(ctx context.Context, vaultPath string) (*RestorableDuplicate, error) {
	var item RestorableDuplicate

	err := s.restorableStmts.getByVaultPath.QueryRowContext(ctx, vaultPath).
		Scan(&item.DeletedPath, &item.OriginalPath)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("journal: getting restorable item %s: %w", vaultPath, err)
	}

	return &item, nil
}

// Stats folds the lifetime counters over all entries in a single aggregate
// query. Undone sessions remain in every counter; reversing an entry never
// shrinks history, it only increments TotalReverted.
func (s *SQLiteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats

	err := s.aggregateStmts.stats.QueryRowContext(ctx).Scan(
		&st.TotalSessions, &st.SuccessfulSessions,
		&st.TotalFilesOrganized, &st.TotalFoldersCreated,
		&st.TotalReverted, &st.TotalRecoveredSpace,
	)
	if err != nil {
		return Stats{}, fmt.Errorf("journal: computing stats: %w", err)
	}

	return st, nil
}

// ClearHistory deletes every entry; operations and restorable items go
// with them via cascade. Vault files on disk are untouched.
func (s *SQLiteStore) ClearHistory(ctx context.Context) error {
	result, err := s.aggregateStmts.clear.ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("journal: clearing history: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("journal: rows affected by clear: %w", err)
	}

	s.logger.Info("history cleared", "entries_removed", affected)

	return nil
}

// Checkpoint forces a WAL checkpoint, flushing pending pages into the main
// database file. Called before backups and on shutdown.
func (s *SQLiteStore) Checkpoint() error {
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("journal: checkpointing: %w", err)
	}

	return nil
}

// Close finalizes all prepared statements and closes the database.
func (s *SQLiteStore) Close() error {
	var errs []string

	s.closeStatements(&errs)

	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Sprintf("closing database: %v", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("journal: close: %s", strings.Join(errs, "; "))
	}

	return nil
}

// closeStatements closes every prepared statement, collecting failures.
func (s *SQLiteStore) closeStatements(errs *[]string) {
	stmts := []*sql.Stmt{
		s.entryStmts.insert, s.entryStmts.get, s.entryStmts.list,
		s.entryStmts.listForDir, s.entryStmts.listCandidates,
		s.entryStmts.undoState, s.entryStmts.markUndone,
		s.operationStmts.insert, s.operationStmts.listForEntry,
		s.restorableStmts.insert, s.restorableStmts.listForEntry,
		s.restorableStmts.getByVaultPath,
		s.aggregateStmts.stats, s.aggregateStmts.clear,
	}

	for _, stmt := range stmts {
		if stmt == nil {
			continue
		}

		if err := stmt.Close(); err != nil {
			*errs = append(*errs, fmt.Sprintf("closing statement: %v", err))
		}
	}
}

// ---------------------------------------------------------------------------
// SQL null helpers

// nullString converts an empty string to NULL for nullable text columns.
func nullString(s string) any {
	if s == "" {
		return nil
	}

	return s
}

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)
