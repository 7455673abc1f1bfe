package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/foldsafe/foldsafe-go/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagVaultDir   string
	flagWorkers    int
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// CLIFlags carries the persistent flag values into command handlers so
// they read them from the CLI context instead of the globals.
type CLIFlags struct {
	ConfigPath string
	JSON       bool
	Verbose    bool
	Quiet      bool
}

// CLIContext bundles what every subcommand needs: parsed flags, the
// resolved configuration, and the logger. PersistentPreRunE installs it on
// the command context; handlers retrieve it with mustCLIContext.
type CLIContext struct {
	Flags  CLIFlags
	Config *config.Resolved
	Logger *slog.Logger
}

// cliContextKey is an unexported context key type, so no other package can
// collide with it.
type cliContextKey struct{}

func withCLIContext(ctx context.Context, cc *CLIContext) context.Context {
	return context.WithValue(ctx, cliContextKey{}, cc)
}

// mustCLIContext returns the CLIContext installed by PersistentPreRunE.
// A missing context is a wiring bug, not a runtime condition, so it panics.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		panic("CLI context not initialized: PersistentPreRunE did not run")
	}

	return cc
}

// skipConfigCommands lists commands that must run before a valid
// configuration can be assumed. config init writes the initial file, so it
// cannot fail on a broken or missing one. Uses CommandPath() for explicit
// matching, safe against future subcommand collisions.
var skipConfigCommands = map[string]bool{
	"foldsafe config init": true,
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "foldsafe",
		Short: "Reversible file organization with a safe-deletion vault",
		Long: `foldsafe applies organization plans to directories and records every move
in a journal, so any session can be undone and a directory rolled back to
an earlier recorded state. Duplicate files slated for deletion are
quarantined in a vault instead of removed, and can be restored at any time.`,
		Version: version,
		// Silence Cobra's default error/usage printing; main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		// PersistentPreRunE resolves configuration before every command and
		// installs the CLI context. Bootstrap commands skip it.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if skipConfigCommands[cmd.CommandPath()] {
				return nil
			}

			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagVaultDir, "vault-dir", "", "vault directory override")
	cmd.PersistentFlags().IntVar(&flagWorkers, "workers", 0, "parallel workers for applying operations")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	// Register subcommands.
	cmd.AddCommand(newOrganizeCmd())
	cmd.AddCommand(newDedupeCmd())
	cmd.AddCommand(newUndoCmd())
	cmd.AddCommand(newRestoreCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newVaultCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the four-layer
// override chain and installs the CLI context on the command.
func loadConfig(cmd *cobra.Command) error {
	cli := config.CLIOverrides{
		ConfigPath: flagConfigPath,
	}

	// Pointer overrides apply only when the user explicitly set the flag,
	// so a zero value never masks the config file.
	if cmd.Flags().Changed("vault-dir") {
		cli.VaultDir = &flagVaultDir
	}

	if cmd.Flags().Changed("workers") {
		cli.Workers = &flagWorkers
	}

	// --verbose and --quiet fold into the override chain as log levels, so
	// `config show` displays the level the process actually runs with.
	if flagVerbose {
		cli.LogLevel = "debug"
	}

	if flagQuiet {
		cli.LogLevel = "error"
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cc := &CLIContext{
		Flags: CLIFlags{
			ConfigPath: flagConfigPath,
			JSON:       flagJSON,
			Verbose:    flagVerbose,
			Quiet:      flagQuiet,
		},
		Config: resolved,
		Logger: buildLogger(resolved),
	}

	cmd.SetContext(withCLIContext(cmd.Context(), cc))

	return nil
}

// buildLogger creates an slog.Logger for the resolved settings. Level and
// format come from the override chain; --verbose and --quiet were already
// folded in by loadConfig. Format "auto" means text on a terminal and JSON
// when stderr is redirected.
func buildLogger(cfg *config.Resolved) *slog.Logger {
	level := slog.LevelInfo
	format := "auto"

	if cfg != nil {
		if parsed, err := config.ParseLogLevel(cfg.LogLevel); err == nil {
			level = parsed
		}

		if cfg.LogFormat != "" {
			format = cfg.LogFormat
		}
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler

	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		if stderrIsTerminal() {
			handler = slog.NewTextHandler(os.Stderr, opts)
		} else {
			handler = slog.NewJSONHandler(os.Stderr, opts)
		}
	}

	return slog.New(handler)
}

// stderrIsTerminal reports whether stderr is attached to a terminal.
func stderrIsTerminal() bool {
	fd := os.Stderr.Fd()

	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// errPartialFailure signals that the command already printed its failure
// details and only the exit code still needs to reflect them.
var errPartialFailure = errors.New("some operations failed")

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
