package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	gosync "sync"

	"golang.org/x/sync/errgroup"
)

// maxCollisionSuffix bounds the numeric suffix probed during destination
// collision avoidance. A directory with ten thousand identically named
// files is beyond plausible; past that the operation fails rather than
// looping forever.
const maxCollisionSuffix = 10000

// defaultApplyWorkers is the parallelism for independent move batches when
// the caller does not configure one.
const defaultApplyWorkers = 4

// OperationResult is the outcome of one applied operation. For moves and
// renames FinalDestination is the path actually used after collision
// resolution, which may differ from the planned DestinationPath.
type OperationResult struct {
	Op               FileOperation
	FinalDestination string
	Err              error
}

// ApplyResult partitions a batch into succeeded and failed operations.
// Partial failure is the normal case for bulk file work, so failures are
// data here, never a returned error.
type ApplyResult struct {
	Succeeded []OperationResult
	Failed    []OperationResult
}

// SucceededOperations returns the applied operations in batch order, with
// DestinationPath rewritten to the final collision-resolved location and
// Timestamp set to the apply time. This is what a history entry records.
func (r *ApplyResult) SucceededOperations() []FileOperation {
	ops := make([]FileOperation, 0, len(r.Succeeded))
	for _, res := range r.Succeeded {
		ops = append(ops, res.Op)
	}

	return ops
}

// FilesMoved counts succeeded move and rename operations.
func (r *ApplyResult) FilesMoved() int {
	n := 0

	for _, res := range r.Succeeded {
		if res.Op.IsReversible() {
			n++
		}
	}

	return n
}

// FoldersCreated counts succeeded folder creations.
func (r *ApplyResult) FoldersCreated() int {
	n := 0

	for _, res := range r.Succeeded {
		if res.Op.Kind == KindCreateFolder {
			n++
		}
	}

	return n
}

// ErrorSummary joins the failed operations into one human-readable line.
// Empty when nothing failed.
func (r *ApplyResult) ErrorSummary() string {
	if len(r.Failed) == 0 {
		return ""
	}

	parts := make([]string, 0, len(r.Failed))
	for _, res := range r.Failed {
		parts = append(parts, res.Err.Error())
	}

	return strings.Join(parts, "; ")
}

// Executor applies batches of file operations to the real filesystem with
// best-effort semantics: every operation is attempted, failures are
// collected per item, and an occupied destination is resolved by probing
// numeric suffixes instead of overwriting.
type Executor struct {
	workers int
	logger  *slog.Logger

	// nowFunc stamps applied operations, injectable for tests.
	nowFunc func() int64
}

// NewExecutor creates an Executor running up to workers moves in parallel.
// workers <= 0 selects the default.
func NewExecutor(workers int, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}

	if workers <= 0 {
		workers = defaultApplyWorkers
	}

	return &Executor{
		workers: workers,
		logger:  logger,
		nowFunc: NowNano,
	}
}

// Apply executes the batch in two phases: folder creations first, strictly
// in batch order, then moves and renames. Moves are grouped by destination
// directory and the groups run in parallel; operations inside one group
// stay sequential so suffix probing within a directory is deterministic
// and race-free.
//
// One operation's failure never aborts its siblings. The returned result
// partitions the batch; only a context error is worth aborting for, and
// even then the operations already applied stay applied.
func (e *Executor) Apply(ctx context.Context, ops []FileOperation) *ApplyResult {
	e.logger.Info("applying operation batch", "operations", len(ops), "workers", e.workers)

	result := &ApplyResult{}

	folderOps, moveOps := splitByPhase(ops)

	// Phase 1: folders, sequential. Moves may target these directories.
	var resultMu gosync.Mutex

	for i, op := range folderOps {
		if err := ctx.Err(); err != nil {
			e.failRemaining(result, folderOps[i:], err)
			e.failRemaining(result, moveOps, err)

			return result
		}

		e.applyOne(op, result, &resultMu)
	}

	// Phase 2: moves and renames, parallel across destination directories.
	e.applyMoves(ctx, moveOps, result)

	e.logger.Info("batch applied",
		"succeeded", len(result.Succeeded),
		"failed", len(result.Failed))

	return result
}

// splitByPhase partitions a batch into folder creations and move/rename
// operations, preserving relative order inside each phase.
func splitByPhase(ops []FileOperation) (folders, moves []FileOperation) {
	for _, op := range ops {
		if op.Kind == KindCreateFolder {
			folders = append(folders, op)
		} else {
			moves = append(moves, op)
		}
	}

	return folders, moves
}

// applyMoves dispatches move groups through a bounded errgroup. Grouping
// key is the destination directory: two moves into the same directory must
// not probe suffixes concurrently.
func (e *Executor) applyMoves(ctx context.Context, ops []FileOperation, result *ApplyResult) {
	if len(ops) == 0 {
		return
	}

	groups, order := groupByDestinationDir(ops)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	var mu gosync.Mutex

	for _, dir := range order {
		group := groups[dir]

		g.Go(func() error {
			for _, op := range group {
				if gctx.Err() != nil {
					mu.Lock()
					result.Failed = append(result.Failed, OperationResult{
						Op:  op,
						Err: &OperationError{Op: op, Err: gctx.Err()},
					})
					mu.Unlock()

					continue
				}

				e.applyOne(op, result, &mu)
			}

			return nil
		})
	}

	// Workers never return errors; partial failures live in the result.
	_ = g.Wait()
}

// groupByDestinationDir buckets operations by the directory they write
// into, returning the buckets plus first-seen order for deterministic
// dispatch.
func groupByDestinationDir(ops []FileOperation) (map[string][]FileOperation, []string) {
	groups := make(map[string][]FileOperation)

	var order []string

	for _, op := range ops {
		dir := filepath.Dir(op.DestinationPath)
		if _, seen := groups[dir]; !seen {
			order = append(order, dir)
		}

		groups[dir] = append(groups[dir], op)
	}

	return groups, order
}

// applyOne executes a single operation and records the outcome under mu.
func (e *Executor) applyOne(op FileOperation, result *ApplyResult, mu *gosync.Mutex) {
	finalDest, err := e.execute(op)

	mu.Lock()
	defer mu.Unlock()

	if err != nil {
		e.logger.Warn("operation failed",
			"kind", op.Kind,
			"source", op.SourcePath,
			"destination", op.DestinationPath,
			"error", err)

		result.Failed = append(result.Failed, OperationResult{
			Op:  op,
			Err: &OperationError{Op: op, Err: err},
		})

		return
	}

	applied := op
	applied.DestinationPath = finalDest
	applied.Timestamp = e.nowFunc()

	result.Succeeded = append(result.Succeeded, OperationResult{
		Op:               applied,
		FinalDestination: finalDest,
	})
}

// execute performs the filesystem mutation for one operation and returns
// the final destination path.
func (e *Executor) execute(op FileOperation) (string, error) {
	switch op.Kind {
	case KindMove, KindRename:
		return e.executeMove(op)
	case KindCreateFolder:
		return e.executeCreateFolder(op)
	default:
		return "", fmt.Errorf("unknown operation kind %q", op.Kind)
	}
}

// executeMove moves or renames a file, creating the destination parent and
// resolving collisions. The source must exist; a vanished source fails the
// operation without touching anything else.
func (e *Executor) executeMove(op FileOperation) (string, error) {
	if _, err := os.Lstat(op.SourcePath); err != nil {
		return "", fmt.Errorf("source missing: %w", err)
	}

	// Moving a file onto itself is a planned no-op, not an error. Checked
	// before collision probing: the source itself occupies the destination,
	// and probing would hand it a pointless suffix.
	if filepath.Clean(op.SourcePath) == filepath.Clean(op.DestinationPath) {
		e.logger.Debug("move is a no-op", "path", op.SourcePath)

		return op.DestinationPath, nil
	}

	if err := os.MkdirAll(filepath.Dir(op.DestinationPath), dirPerm); err != nil {
		return "", fmt.Errorf("creating destination directory: %w", err)
	}

	dest, err := availablePath(op.DestinationPath)
	if err != nil {
		return "", err
	}

	if err := movePath(op.SourcePath, dest); err != nil {
		return "", err
	}

	e.logger.Debug("moved", "source", op.SourcePath, "destination", dest)

	return dest, nil
}

// executeCreateFolder creates a directory tree. An existing directory is
// success: folder creation is idempotent.
func (e *Executor) executeCreateFolder(op FileOperation) (string, error) {
	if err := os.MkdirAll(op.DestinationPath, dirPerm); err != nil {
		return "", fmt.Errorf("creating folder: %w", err)
	}

	e.logger.Debug("folder ready", "path", op.DestinationPath)

	return op.DestinationPath, nil
}

// failRemaining marks every remaining operation failed with cause, used
// when the context dies mid-batch.
func (e *Executor) failRemaining(result *ApplyResult, ops []FileOperation, cause error) {
	for _, op := range ops {
		result.Failed = append(result.Failed, OperationResult{
			Op:  op,
			Err: &OperationError{Op: op, Err: cause},
		})
	}
}

// availablePath returns path if nothing occupies it, otherwise the sibling
// with the smallest free numeric suffix: name_1.ext, name_2.ext, and so
// on. The suffix goes before the extension; dotfiles such as ".env" have
// no extension, so theirs lands at the end (".env_1").
func availablePath(path string) (string, error) {
	if _, err := os.Lstat(path); errors.Is(err, os.ErrNotExist) {
		return path, nil
	}

	stem, ext := stemExt(path)

	for i := 1; i <= maxCollisionSuffix; i++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, i, ext)
		if _, err := os.Lstat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("no free suffix for %s after %d attempts", path, maxCollisionSuffix)
}

// stemExt splits path into stem and extension for suffix insertion.
// A dotfile whose only dot is the leading one (".env") is all stem:
// filepath.Ext would call the whole name an extension, which would put
// the suffix in front of the file name.
func stemExt(path string) (stem, ext string) {
	base := filepath.Base(path)
	dir := path[:len(path)-len(base)]

	if strings.HasPrefix(base, ".") && strings.Count(base, ".") == 1 {
		return dir + base, ""
	}

	ext = filepath.Ext(base)

	return dir + base[:len(base)-len(ext)], ext
}
