package journal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher tuning. Errors back off exponentially so a sustained kernel-side
// failure (e.g. inotify buffer overflow) cannot spin the loop.
const (
	watchEventBuffer      = 64
	watchErrInitBackoff   = time.Second
	watchErrBackoffMult   = 2
	watchErrMaxBackoff    = time.Minute
	defaultRescanInterval = 5 * time.Minute
)

// VaultEventType classifies an integrity event inside the vault.
type VaultEventType string

const (
	// VaultEventAdded fires for files that appear in the vault outside
	// DeleteSafely. Quarantines from this process show up here too when
	// another process is watching.
	VaultEventAdded VaultEventType = "added"

	// VaultEventRemoved fires when a vault copy disappears. A restorable
	// item whose vault copy is gone can never be restored.
	VaultEventRemoved VaultEventType = "removed"

	// VaultEventModified fires when a vault copy's bytes change. The file
	// name embeds the original content hash, so any write breaks the
	// name-to-content binding.
	VaultEventModified VaultEventType = "modified"
)

// VaultEvent is one integrity observation from Watch.
type VaultEvent struct {
	Type VaultEventType `json:"type"`
	Path string         `json:"path"`
}

// Watch monitors the vault directory for external tampering: removals,
// content changes, and unexpected additions. Events arrive on the returned
// channel until ctx is cancelled, at which point the channel closes.
//
// fsnotify can drop events under load, so a periodic rescan diffs the
// directory against the last known listing and emits anything missed.
func (v *Vault) Watch(ctx context.Context) (<-chan VaultEvent, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("journal: creating vault watcher: %w", err)
	}

	if err := watcher.Add(v.dir); err != nil {
		watcher.Close()

		return nil, fmt.Errorf("journal: watching vault %s: %w", v.dir, err)
	}

	known, err := v.listing()
	if err != nil {
		watcher.Close()

		return nil, err
	}

	events := make(chan VaultEvent, watchEventBuffer)

	go v.watchLoop(ctx, watcher, known, events)

	v.logger.Info("vault watch started", "dir", v.dir, "files", len(known))

	return events, nil
}

// watchLoop is the select loop behind Watch. It owns the known-listing map
// and both channels; nothing else touches them.
func (v *Vault) watchLoop(
	ctx context.Context, watcher *fsnotify.Watcher, known map[string]int64, events chan<- VaultEvent,
) {
	defer watcher.Close()
	defer close(events)

	rescan := time.NewTicker(v.rescanInterval)
	defer rescan.Stop()

	errBackoff := watchErrInitBackoff

	for {
		select {
		case <-ctx.Done():
			return

		case fsEvent, ok := <-watcher.Events:
			if !ok {
				return
			}

			v.handleFsEvent(fsEvent, known, events)

			errBackoff = watchErrInitBackoff

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return
			}

			v.logger.Warn("vault watcher error", "error", watchErr, "backoff", errBackoff)

			if err := sleepCtx(ctx, errBackoff); err != nil {
				return
			}

			errBackoff *= watchErrBackoffMult
			if errBackoff > watchErrMaxBackoff {
				errBackoff = watchErrMaxBackoff
			}

		case <-rescan.C:
			v.rescan(known, events)

			errBackoff = watchErrInitBackoff
		}
	}
}

// handleFsEvent translates one fsnotify event into a vault event and keeps
// the known listing current.
func (v *Vault) handleFsEvent(fsEvent fsnotify.Event, known map[string]int64, events chan<- VaultEvent) {
	// Mode changes carry no integrity signal.
	if fsEvent.Has(fsnotify.Chmod) && !fsEvent.Has(fsnotify.Create) && !fsEvent.Has(fsnotify.Write) {
		return
	}

	path := fsEvent.Name

	switch {
	case fsEvent.Has(fsnotify.Create):
		info, err := os.Lstat(path)
		if err != nil || info.IsDir() {
			return
		}

		known[path] = info.ModTime().UnixNano()
		v.send(events, VaultEvent{Type: VaultEventAdded, Path: path})

	case fsEvent.Has(fsnotify.Write):
		info, err := os.Lstat(path)
		if err != nil || info.IsDir() {
			return
		}

		known[path] = info.ModTime().UnixNano()
		v.send(events, VaultEvent{Type: VaultEventModified, Path: path})

	case fsEvent.Has(fsnotify.Remove) || fsEvent.Has(fsnotify.Rename):
		if _, ok := known[path]; !ok {
			return
		}

		delete(known, path)
		v.send(events, VaultEvent{Type: VaultEventRemoved, Path: path})
	}
}

// rescan diffs the directory against the known listing, catching anything
// fsnotify missed.
func (v *Vault) rescan(known map[string]int64, events chan<- VaultEvent) {
	current, err := v.listing()
	if err != nil {
		v.logger.Warn("vault rescan failed", "error", err)

		return
	}

	for path, mtime := range current {
		prev, ok := known[path]

		switch {
		case !ok:
			v.send(events, VaultEvent{Type: VaultEventAdded, Path: path})
		case prev != mtime:
			v.send(events, VaultEvent{Type: VaultEventModified, Path: path})
		}
	}

	for path := range known {
		if _, ok := current[path]; !ok {
			v.send(events, VaultEvent{Type: VaultEventRemoved, Path: path})
		}
	}

	// Replace contents in place; the map is shared with watchLoop.
	for path := range known {
		delete(known, path)
	}

	for path, mtime := range current {
		known[path] = mtime
	}
}

// listing snapshots the vault as path -> mtime nanos.
func (v *Vault) listing() (map[string]int64, error) {
	items, err := v.Items()
	if err != nil {
		return nil, err
	}

	m := make(map[string]int64, len(items))

	for _, item := range items {
		m[item.Path] = item.QuarantinedAt
	}

	return m, nil
}

// send delivers an event without ever blocking the watch loop. A full
// buffer drops the event; the next rescan re-derives it from the
// directory listing.
func (v *Vault) send(events chan<- VaultEvent, ev VaultEvent) {
	select {
	case events <- ev:
	default:
		v.logger.Warn("vault event buffer full, dropping",
			"type", ev.Type, "path", filepath.Base(ev.Path))
	}
}

// sleepCtx sleeps for d unless ctx is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
