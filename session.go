package main

import (
	"fmt"

	"github.com/foldsafe/foldsafe-go/internal/journal"
	"github.com/foldsafe/foldsafe-go/internal/organize"
)

// session bundles the journal components behind one open/close pair. Every
// command that touches the journal goes through here, so the store, vault,
// executor, and engines are always wired the same way and share one
// directory-lock table.
type session struct {
	store     *journal.SQLiteStore
	vault     *journal.Vault
	organizer *organize.Organizer
	undo      *journal.UndoEngine
	restore   *journal.RestoreEngine
}

// openSession wires the component stack from the resolved configuration.
// The returned close function checkpoints and closes the store; callers
// must defer it.
func openSession(cc *CLIContext) (*session, func(), error) {
	store, err := journal.NewStore(cc.Config.DBPath, cc.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("opening journal: %w", err)
	}

	vault, err := journal.NewVault(cc.Config.VaultDir, cc.Logger)
	if err != nil {
		store.Close()

		return nil, nil, err
	}

	locks := journal.NewDirLocks()
	exec := journal.NewExecutor(cc.Config.Workers, cc.Logger)
	undo := journal.NewUndoEngine(store, vault, locks, cc.Logger)

	s := &session{
		store:     store,
		vault:     vault,
		organizer: organize.New(store, exec, vault, locks, cc.Logger),
		undo:      undo,
		restore:   journal.NewRestoreEngine(store, undo, locks, cc.Logger),
	}

	closeFn := func() {
		if err := store.Close(); err != nil {
			cc.Logger.Warn("closing journal store", "error", err)
		}
	}

	return s, closeFn, nil
}

// vaultUsage sums the sizes of all quarantined files.
func vaultUsage(vault *journal.Vault) (int64, error) {
	items, err := vault.Items()
	if err != nil {
		return 0, err
	}

	var total int64
	for _, item := range items {
		total += item.Size
	}

	return total, nil
}

// warnVaultSize prints a warning when the vault has grown past the
// configured threshold. A zero threshold disables the check.
func warnVaultSize(cc *CLIContext, vault *journal.Vault) {
	if cc.Config.MaxSize <= 0 {
		return
	}

	total, err := vaultUsage(vault)
	if err != nil {
		cc.Logger.Debug("vault size check failed", "error", err)

		return
	}

	if total > cc.Config.MaxSize {
		cc.Statusf("Warning: vault holds %s (threshold %s); run 'foldsafe vault purge' to reclaim space\n",
			formatSize(total), formatSize(cc.Config.MaxSize))
	}
}
