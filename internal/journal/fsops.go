package journal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
)

// Directory permissions for parents created during moves and restores.
const dirPerm = 0o755

// movePath moves src to dst, preferring an atomic rename and falling back
// to copy-and-remove when the two paths live on different filesystems.
// Callers pick dst so that nothing is overwritten.
func movePath(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}

	if !errors.Is(err, syscall.EXDEV) {
		return fmt.Errorf("journal: renaming %s to %s: %w", src, dst, err)
	}

	if err := copyFile(src, dst); err != nil {
		return err
	}

	if err := os.Remove(src); err != nil {
		// Remove the copy so a retry starts from one file, not two.
		os.Remove(dst)

		return fmt.Errorf("journal: removing %s after copy: %w", src, err)
	}

	return nil
}

// copyFile copies src to dst byte for byte via a temp file in dst's
// directory, syncing before the final rename so a crash never leaves a
// half-written file at dst.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("journal: opening %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("journal: statting %s: %w", src, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".foldsafe-copy-*")
	if err != nil {
		return fmt.Errorf("journal: creating temp file for %s: %w", dst, err)
	}

	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return fmt.Errorf("journal: copying %s to %s: %w", src, dst, err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return fmt.Errorf("journal: syncing %s: %w", tmpName, err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("journal: closing %s: %w", tmpName, err)
	}

	if err := os.Chmod(tmpName, info.Mode().Perm()); err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("journal: setting mode on %s: %w", tmpName, err)
	}

	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)

		return fmt.Errorf("journal: renaming temp file to %s: %w", dst, err)
	}

	return nil
}
