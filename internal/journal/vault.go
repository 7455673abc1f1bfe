package journal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// vaultDirPerm keeps the quarantine directory private to the owning user.
const vaultDirPerm = 0o700

// hashPrefixLen is how many hex characters of the content hash go into a
// vault file name.
const hashPrefixLen = 16

// suffixLen is how many characters of the random UUID suffix go into a
// vault file name.
const suffixLen = 8

// VaultItem describes one quarantined file for enumeration.
type VaultItem struct {
	Path          string `json:"path"`           // absolute path inside the vault
	Size          int64  `json:"size"`           // bytes
	QuarantinedAt int64  `json:"quarantined_at"` // Unix nanoseconds
}

// Vault quarantines files slated for deletion instead of removing them.
// Every quarantined file keeps its bytes intact and can be restored to its
// original path on demand. Vault names embed a content hash plus a random
// suffix, so concurrent quarantines never collide and no internal locking
// is needed.
type Vault struct {
	dir    string
	logger *slog.Logger

	// nowFunc stamps quarantine times, injectable for tests.
	nowFunc func() time.Time

	// rescanInterval paces the Watch safety rescan, overridable in tests.
	rescanInterval time.Duration
}

// NewVault opens the vault rooted at dir, creating it 0700 when absent.
func NewVault(dir string, logger *slog.Logger) (*Vault, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if dir == "" {
		return nil, errors.New("journal: vault directory is empty")
	}

	if err := os.MkdirAll(dir, vaultDirPerm); err != nil {
		return nil, fmt.Errorf("journal: creating vault directory %s: %w", dir, err)
	}

	logger.Debug("vault ready", "dir", dir)

	return &Vault{
		dir:            dir,
		logger:         logger,
		nowFunc:        time.Now,
		rescanInterval: defaultRescanInterval,
	}, nil
}

// Dir returns the vault's root directory.
func (v *Vault) Dir() string {
	return v.dir
}

// DeleteSafely quarantines each file instead of deleting it. survivor is
// the file from the same duplicate group that stays in place; it is never
// touched, and passing it among the files to delete is rejected before any
// file moves.
//
// Quarantines already performed stay performed when a later file fails:
// the returned records always cover every file that actually moved, and
// the joined error describes the rest. Callers must persist the records
// regardless of the error.
func (v *Vault) DeleteSafely(ctx context.Context, files []string, survivor string) ([]RestorableDuplicate, error) {
	survivor = NormalizePath(survivor)

	for _, f := range files {
		if NormalizePath(f) == survivor {
			return nil, fmt.Errorf("journal: refusing to vault the surviving file %s", f)
		}
	}

	v.logger.Info("quarantining duplicates", "count", len(files), "survivor", survivor)

	var (
		records []RestorableDuplicate
		errs    []error
	)

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("quarantining %s: %w", f, err))

			continue
		}

		record, err := v.quarantine(f)
		if err != nil {
			v.logger.Warn("quarantine failed", "path", f, "error", err)
			errs = append(errs, err)

			continue
		}

		records = append(records, *record)
	}

	return records, errors.Join(errs...)
}

// quarantine moves one file into the vault under a collision-resistant
// name and returns the record linking the vault copy to its origin.
func (v *Vault) quarantine(path string) (*RestorableDuplicate, error) {
	name, err := v.vaultName(path)
	if err != nil {
		return nil, err
	}

	vaultPath := filepath.Join(v.dir, name)

	if err := movePath(path, vaultPath); err != nil {
		return nil, err
	}

	// Stamp the quarantine time. Rename preserves the file's own mtime,
	// which may be years old; retention in Purge must count from when the
	// file entered the vault, not from when it was last edited.
	now := v.nowFunc()
	if err := os.Chtimes(vaultPath, now, now); err != nil {
		v.logger.Warn("could not stamp quarantine time", "path", vaultPath, "error", err)
	}

	v.logger.Debug("quarantined", "from", path, "to", vaultPath)

	return &RestorableDuplicate{
		DeletedPath:  vaultPath,
		OriginalPath: NormalizePath(path),
	}, nil
}

// vaultName builds the quarantine file name: sixteen hex characters of the
// content hash, a dash, eight random characters, then the original
// extension. The hash ties the name to the bytes; the random suffix keeps
// rapid deletions of identical content from colliding. Wall-clock time
// never appears in the name.
func (v *Vault) vaultName(path string) (string, error) {
	digest, err := hashFile(path)
	if err != nil {
		return "", err
	}

	_, ext := stemExt(path)

	return digest[:hashPrefixLen] + "-" + uuid.NewString()[:suffixLen] + ext, nil
}

// Restore moves a quarantined file back to its original path. The original
// path must be free: an occupied path fails with ErrFileExistsAtOriginal
// and the vault copy stays where it is, so the caller can resolve the
// conflict and retry. The occupied check comes first, so restoring the
// same record twice reports the conflict rather than the missing vault
// copy.
func (v *Vault) Restore(item RestorableDuplicate) error {
	if _, err := os.Lstat(item.OriginalPath); err == nil {
		return fmt.Errorf("journal: restoring to %s: %w", item.OriginalPath, ErrFileExistsAtOriginal)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("journal: statting original path %s: %w", item.OriginalPath, err)
	}

	if _, err := os.Lstat(item.DeletedPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("journal: restoring %s: %w", item.DeletedPath, ErrVaultItemMissing)
		}

		return fmt.Errorf("journal: statting vault file %s: %w", item.DeletedPath, err)
	}

	if err := os.MkdirAll(filepath.Dir(item.OriginalPath), dirPerm); err != nil {
		return fmt.Errorf("journal: recreating parent of %s: %w", item.OriginalPath, err)
	}

	if err := movePath(item.DeletedPath, item.OriginalPath); err != nil {
		return err
	}

	v.logger.Info("restored from vault", "vault_path", item.DeletedPath, "original", item.OriginalPath)

	return nil
}

// Items enumerates the quarantined files, ordered by name.
func (v *Vault) Items() ([]VaultItem, error) {
	entries, err := os.ReadDir(v.dir)
	if err != nil {
		return nil, fmt.Errorf("journal: listing vault %s: %w", v.dir, err)
	}

	var items []VaultItem

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			// Entry vanished between readdir and stat; a purge or restore
			// may be racing us. Skip it.
			v.logger.Debug("vault entry vanished during listing", "name", entry.Name())

			continue
		}

		items = append(items, VaultItem{
			Path:          filepath.Join(v.dir, entry.Name()),
			Size:          info.Size(),
			QuarantinedAt: info.ModTime().UnixNano(),
		})
	}

	return items, nil
}

// Purge permanently deletes quarantined files that entered the vault
// before the cutoff. This is the only way bytes ever leave the vault
// besides Restore. Returns the number of files removed and bytes freed.
func (v *Vault) Purge(olderThan time.Duration) (int, int64, error) {
	items, err := v.Items()
	if err != nil {
		return 0, 0, err
	}

	cutoff := v.nowFunc().Add(-olderThan).UnixNano()

	var (
		removed int
		freed   int64
		errs    []error
	)

	for _, item := range items {
		if item.QuarantinedAt >= cutoff {
			continue
		}

		if err := os.Remove(item.Path); err != nil {
			errs = append(errs, fmt.Errorf("purging %s: %w", item.Path, err))

			continue
		}

		removed++
		freed += item.Size
	}

	v.logger.Info("vault purged", "removed", removed, "bytes_freed", freed)

	return removed, freed, errors.Join(errs...)
}

// hashFile streams a file through SHA-256 and returns the hex digest.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("journal: opening %s for hashing: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("journal: hashing %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
