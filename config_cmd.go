package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/foldsafe/foldsafe-go/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigInitCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file with commented defaults",
		Long: `Write a starter config file with every setting commented out at its
default value. Refuses to overwrite an existing file.`,
		Args: cobra.NoArgs,
		RunE: runConfigInit,
	}
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if cc.Flags.JSON {
		return printJSON(cc.Config)
	}

	return config.RenderEffective(cc.Config, os.Stdout)
}

func runConfigInit(_ *cobra.Command, _ []string) error {
	// config init is a bootstrap command: it skips config resolution, so
	// there is no CLI context here. The path follows the same precedence
	// as the resolver: flag, then environment, then platform default.
	path := flagConfigPath
	if path == "" {
		path = config.ReadEnvOverrides().ConfigPath
	}

	if path == "" {
		path = config.DefaultConfigPath()
	}

	if path == "" {
		return fmt.Errorf("cannot determine the config path; pass --config")
	}

	if err := config.WriteDefault(path); err != nil {
		return err
	}

	statusf(flagQuiet, "Wrote %s\n", path)

	return nil
}
