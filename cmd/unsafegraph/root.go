package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"unsafegraph/internal/config"
	auditerrors "unsafegraph/internal/errors"
	"unsafegraph/internal/slogutil"
	"unsafegraph/internal/version"
)

var (
	configPath string
	verbosity  int
	quiet      bool
)

var rootCmd = &cobra.Command{
	Use:   "unsafegraph",
	Short: "Audit unsafe Rust and every function that reaches it",
	Long: `unsafegraph finds unsafe code in the files one cargo build configuration
compiles, then walks the crate's LLVM call graph to report every function
that can reach unsafe code, directly or through its callees.

Examples:
  unsafegraph audit
  unsafegraph audit --features simd --format human
  unsafegraph scan --include-tests
  unsafegraph graph --graph target/unsafegraph/my_crate.callgraph.dot`,
	Version:       version.Info(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate("unsafegraph version {{.Version}}\n")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Path to unsafegraph.toml (default: next to the manifest)")
	pf.CountVarP(&verbosity, "verbose", "v", "Use verbose output (-vv very verbose)")
	pf.BoolVarP(&quiet, "quiet", "q", false, "No log output")
	pf.String("log-file", "", "Also write debug logs to a rotating file")

	registerBuildFlags(pf)
}

// loadConfig loads the configuration for cmd. Precedence: flag > env >
// file > default.
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, "", auditerrors.New(auditerrors.InternalError, "cannot determine working directory", err, nil)
	}

	cfg, err := config.LoadConfig(configDir(dir), configPath)
	if err != nil {
		return nil, "", auditerrors.New(auditerrors.ConfigInvalid, "cannot load configuration", err, nil)
	}
	if err := applyFlags(cmd.Flags(), cfg); err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", auditerrors.New(auditerrors.ConfigInvalid, "invalid configuration", err, nil)
	}
	return cfg, dir, nil
}

// newLoggerFactory builds loggers writing to stderr. -v/-q override the
// configured levels only when given.
func newLoggerFactory(cmd *cobra.Command, cfg *config.Config) *slogutil.LoggerFactory {
	var cliLevel *slog.Level
	if verbosity > 0 || quiet {
		lvl := slogutil.LevelFromVerbosity(verbosity, quiet)
		cliLevel = &lvl
	}
	return slogutil.NewLoggerFactory(cfg, cliLevel, cmd.ErrOrStderr())
}

func closeLogs(factory *slogutil.LoggerFactory) {
	if err := factory.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing log file: %v\n", err)
	}
}
