// Package organize drives whole sessions against one directory: apply an
// organization plan through the executor, or quarantine duplicate files
// through the vault, then record what happened as a journal entry. The
// journal is the source of truth; this package makes sure every mutation
// batch ends up in it, including partial and cancelled ones.
package organize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/foldsafe/foldsafe-go/internal/journal"
	"github.com/foldsafe/foldsafe-go/internal/plan"
)

// Organizer runs organization and duplicate-cleanup sessions.
type Organizer struct {
	store  journal.Store
	exec   *journal.Executor
	vault  *journal.Vault
	locks  *journal.DirLocks
	logger *slog.Logger

	nowFunc func() int64
}

// New creates an Organizer. The locks table must be the same instance the
// undo and restore engines use, so sessions and reversals on one directory
// serialize. vault may be nil when duplicate cleanup is not configured.
func New(
	store journal.Store,
	exec *journal.Executor,
	vault *journal.Vault,
	locks *journal.DirLocks,
	logger *slog.Logger,
) *Organizer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Organizer{
		store:   store,
		exec:    exec,
		vault:   vault,
		locks:   locks,
		logger:  logger,
		nowFunc: journal.NowNano,
	}
}

// Organize applies a plan to dir and journals the session. The batch is
// best-effort: partial failure still produces a completed entry whose
// ErrorMessage notes what failed, so the operations that did apply remain
// undoable. The entry is returned with its store-assigned ID.
func (o *Organizer) Organize(ctx context.Context, dir string, p *plan.Plan) (*journal.HistoryEntry, error) {
	dir, err := checkDir(dir)
	if err != nil {
		return nil, err
	}

	o.logger.Info("organizing directory", "dir", dir, "plan", p.Summary())

	release := o.locks.Lock(dir)
	defer release()

	started := o.nowFunc()
	result := o.exec.Apply(ctx, p.Operations(dir))

	entry := &journal.HistoryEntry{
		DirectoryPath:  dir,
		Timestamp:      started,
		FilesOrganized: result.FilesMoved(),
		FoldersCreated: result.FoldersCreated(),
		Operations:     result.SucceededOperations(),
		Plan:           p.Raw(),
	}

	o.classify(ctx, entry, result)

	if err := o.append(ctx, entry); err != nil {
		return nil, err
	}

	o.logger.Info("session recorded",
		"entry_id", entry.ID,
		"status", string(entry.Status),
		"files_organized", entry.FilesOrganized,
		"folders_created", entry.FoldersCreated,
		"failed", len(result.Failed))

	return entry, nil
}

// classify sets the entry's status from the apply outcome. Anything that
// moved at least one file stays a completed (undoable) entry; only a batch
// with zero successes records as failed, or cancelled when the context
// died before anything applied.
func (o *Organizer) classify(ctx context.Context, entry *journal.HistoryEntry, result *journal.ApplyResult) {
	switch {
	case len(result.Failed) == 0:
		entry.Status = journal.StatusCompleted
		entry.Success = true

	case len(result.Succeeded) > 0:
		entry.Status = journal.StatusCompleted
		entry.Success = false
		entry.ErrorMessage = fmt.Sprintf("completed, %d of %d operations failed: %s",
			len(result.Failed), len(result.Succeeded)+len(result.Failed), result.ErrorSummary())

	case ctx.Err() != nil:
		entry.Status = journal.StatusCancelled
		entry.Success = false
		entry.ErrorMessage = result.ErrorSummary()

	default:
		entry.Status = journal.StatusFailed
		entry.Success = false
		entry.ErrorMessage = result.ErrorSummary()
	}
}

// DuplicateGroup names one set of identical files: the copy to keep and
// the copies to quarantine. Paths may be absolute or relative to the
// session directory.
type DuplicateGroup struct {
	Keep   string   `yaml:"keep" json:"keep"`
	Remove []string `yaml:"remove" json:"remove"`
}

// CleanupDuplicates quarantines the removable copies of each group into
// the vault and journals a duplicates-cleanup entry carrying the
// restorable items and the bytes recovered. Groups are processed
// best-effort; a failing file never aborts the rest.
func (o *Organizer) CleanupDuplicates(
	ctx context.Context, dir string, groups []DuplicateGroup,
) (*journal.HistoryEntry, error) {
	if o.vault == nil {
		return nil, errors.New("organize: no vault configured")
	}

	if len(groups) == 0 {
		return nil, errors.New("organize: no duplicate groups")
	}

	dir, err := checkDir(dir)
	if err != nil {
		return nil, err
	}

	o.logger.Info("cleaning up duplicates", "dir", dir, "groups", len(groups))

	release := o.locks.Lock(dir)
	defer release()

	started := o.nowFunc()

	// Sizes must be read before the moves; afterwards the originals are gone.
	sizes := removalSizes(dir, groups)

	var (
		items    []journal.RestorableDuplicate
		failures []error
	)

	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			failures = append(failures, err)

			break
		}

		records, err := o.vault.DeleteSafely(ctx, absolute(dir, group.Remove), absolute1(dir, group.Keep))
		items = append(items, records...)

		if err != nil {
			failures = append(failures, err)
		}
	}

	var recovered int64
	for _, item := range items {
		recovered += sizes[item.OriginalPath]
	}

	entry := &journal.HistoryEntry{
		DirectoryPath:     dir,
		Timestamp:         started,
		Success:           len(failures) == 0,
		Status:            journal.StatusDuplicatesCleanup,
		ErrorMessage:      joinErrors(failures),
		DuplicatesDeleted: len(items),
		RecoveredSpace:    recovered,
		RestorableItems:   items,
	}

	if err := o.append(ctx, entry); err != nil {
		return nil, err
	}

	o.logger.Info("duplicates cleaned up",
		"entry_id", entry.ID,
		"quarantined", len(items),
		"recovered_bytes", recovered,
		"failures", len(failures))

	return entry, nil
}

// append journals the entry. The context is detached from cancellation:
// operations already applied to the filesystem must be recorded even when
// the session was aborted, or the moves would be orphaned with no way to
// undo them.
func (o *Organizer) append(ctx context.Context, entry *journal.HistoryEntry) error {
	if err := o.store.AppendEntry(context.WithoutCancel(ctx), entry); err != nil {
		return fmt.Errorf("recording session for %s: %w", entry.DirectoryPath, err)
	}

	return nil
}

// checkDir validates the session directory and returns its canonical
// journaled form.
func checkDir(dir string) (string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("organize: %w", err)
	}

	if !info.IsDir() {
		return "", fmt.Errorf("organize: %s is not a directory", dir)
	}

	return journal.NormalizePath(filepath.Clean(dir)), nil
}

// removalSizes maps each removable file's journaled path to its size.
// Files that cannot be stat'd are left out; their removal will fail and
// be reported by the vault.
func removalSizes(dir string, groups []DuplicateGroup) map[string]int64 {
	sizes := make(map[string]int64)

	for _, group := range groups {
		for _, path := range absolute(dir, group.Remove) {
			info, err := os.Lstat(path)
			if err != nil {
				continue
			}

			sizes[journal.NormalizePath(path)] = info.Size()
		}
	}

	return sizes
}

// absolute resolves group paths against the session directory. Absolute
// paths pass through so externally generated duplicate reports work as-is.
func absolute(dir string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, absolute1(dir, p))
	}

	return out
}

func absolute1(dir, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}

	return filepath.Join(dir, path)
}

// joinErrors flattens collected failures into an entry error message.
func joinErrors(errs []error) string {
	if len(errs) == 0 {
		return ""
	}

	return errors.Join(errs...).Error()
}
