package config

import (
	"fmt"
	"io"
)

// RenderEffective writes the resolved configuration as a human-readable
// annotated summary to w. This powers the "config show" command, giving
// users visibility into the effective values after all four override
// layers (defaults -> file -> env -> CLI) have been applied.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (config file: %s)\n\n", r.ConfigPath)

	ew.printf("[journal]\n")
	ew.printf("  db_path   = %q\n\n", r.DBPath)

	ew.printf("[vault]\n")
	ew.printf("  dir       = %q\n", r.VaultDir)
	ew.printf("  retention = %q\n", r.Retention)

	if r.MaxSize > 0 {
		ew.printf("  max_size  = %d  # bytes\n", r.MaxSize)
	} else {
		ew.printf("  max_size  = \"0\"  # no size warning\n")
	}

	ew.printf("\n[organize]\n")
	ew.printf("  workers   = %d\n\n", r.Workers)

	ew.printf("[logging]\n")
	ew.printf("  log_level  = %q\n", r.LogLevel)
	ew.printf("  log_format = %q\n", r.LogFormat)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops, so callers can chain
// printf calls without checking each one individually.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
