package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"unsafegraph/internal/config"
	auditerrors "unsafegraph/internal/errors"
)

var configInitForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage unsafegraph configuration",
	Long:  "View and manage the configuration stored in unsafegraph.toml",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration",
	Long: `Write the default configuration as TOML. The file goes next to the
manifest unless a path is given.

Examples:
  unsafegraph config init
  unsafegraph config init ci/unsafegraph.toml --force`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  "Print the configuration after applying the file, environment and flags.",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing configuration file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return auditerrors.New(auditerrors.InternalError, "cannot determine working directory", err, nil)
	}

	path := filepath.Join(configDir(cwd), config.FileName)
	if len(args) == 1 {
		path = args[0]
		if !filepath.IsAbs(path) {
			path = filepath.Join(cwd, path)
		}
	}

	if _, err := os.Stat(path); err == nil && !configInitForce {
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration already exists at %s\n", path)
		fmt.Fprintln(cmd.OutOrStdout(), "Run 'unsafegraph config init --force' to overwrite it.")
		return nil
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return auditerrors.New(auditerrors.InternalError, "cannot write configuration", err, nil)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return toml.NewEncoder(cmd.OutOrStdout()).Encode(cfg)
}
