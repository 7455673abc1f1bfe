package journal

import (
	"path/filepath"
	gosync "sync"
)

// DirLocks serializes organize, undo, and restore runs that target the
// same directory, so two concurrent callers cannot interleave moves and
// reversals over one tree. Locks are keyed by cleaned path and created on
// first use; the table only ever grows, which is fine for the handful of
// directories a user organizes.
type DirLocks struct {
	mu    gosync.Mutex
	locks map[string]*gosync.Mutex
}

// NewDirLocks returns an empty lock table.
func NewDirLocks() *DirLocks {
	return &DirLocks{locks: make(map[string]*gosync.Mutex)}
}

// Lock acquires the mutex for dir, blocking until it is free, and returns
// the release function.
func (d *DirLocks) Lock(dir string) func() {
	key := filepath.Clean(dir)

	d.mu.Lock()
	m, ok := d.locks[key]
	if !ok {
		m = &gosync.Mutex{}
		d.locks[key] = m
	}
	d.mu.Unlock()

	m.Lock()

	return m.Unlock
}
