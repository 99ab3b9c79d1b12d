package main

import (
	"path/filepath"

	"github.com/spf13/pflag"

	"unsafegraph/internal/config"
	auditerrors "unsafegraph/internal/errors"
)

// registerBuildFlags adds the flags that select and build the audited
// configuration. Values are only read back through applyFlags, so a flag
// the user did not set never overrides the config file.
func registerBuildFlags(fs *pflag.FlagSet) {
	fs.String("manifest-path", "", "Path to Cargo.toml")
	fs.StringSlice("features", nil, "Space or comma separated list of features to activate")
	fs.Bool("all-features", false, "Activate all available features")
	fs.Bool("no-default-features", false, "Do not activate the `default` feature")
	fs.Bool("include-tests", false, "Include test, bench and #[cfg(test)] code")
	fs.StringSlice("target-filter", nil, "Only scan targets of these kinds (lib, bin, bin:name, ...)")
	fs.String("target", "", "Build for the target triple")
	fs.IntP("jobs", "j", 0, "Number of parallel jobs, defaults to # of CPUs")
	fs.String("color", "", "Coloring: auto, always, never")
	fs.Bool("frozen", false, "Require Cargo.lock and cache are up to date")
	fs.Bool("locked", false, "Require Cargo.lock is up to date")
	fs.StringSliceP("unstable-flags", "Z", nil, "Unstable (nightly-only) flags to Cargo")

	fs.String("crate-name", "", "Crate whose call graph is analysed (default: from the manifest)")
	fs.String("graph", "", "Use an existing call-graph artifact instead of building one")
	fs.String("artifact-dir", "", "Directory for call-graph and findings artifacts")
	fs.String("opt", "", "LLVM opt binary")
	fs.Bool("skip-build", false, "Do not build; look up an existing call-graph artifact")
	fs.Bool("clean", false, "Run `cargo clean` before emitting bitcode")

	fs.StringP("format", "f", "", "Output format: text, human, json, yaml, sarif")
	fs.StringP("output", "o", "", "Write the report to a file instead of stdout")
	fs.Bool("witness", true, "Annotate tainted functions with their call path to unsafe code")
	fs.Bool("compress", false, "zstd-compress the findings artifact")
}

// configDir is where unsafegraph.toml is looked up: next to the manifest
// named by --manifest-path, otherwise the working directory.
func configDir(cwd string) string {
	mp, err := rootCmd.PersistentFlags().GetString("manifest-path")
	if err != nil || mp == "" {
		return cwd
	}
	if !filepath.IsAbs(mp) {
		mp = filepath.Join(cwd, mp)
	}
	return filepath.Dir(mp)
}

// applyFlags copies every flag the user set onto cfg.
func applyFlags(fs *pflag.FlagSet, cfg *config.Config) error {
	var firstErr error
	str := func(name string, dst *string) {
		if !fs.Changed(name) || firstErr != nil {
			return
		}
		*dst, firstErr = fs.GetString(name)
	}
	boolean := func(name string, dst *bool) {
		if !fs.Changed(name) || firstErr != nil {
			return
		}
		*dst, firstErr = fs.GetBool(name)
	}
	slice := func(name string, dst *[]string) {
		if !fs.Changed(name) || firstErr != nil {
			return
		}
		*dst, firstErr = fs.GetStringSlice(name)
	}

	str("manifest-path", &cfg.Build.ManifestPath)
	slice("features", &cfg.Build.Features)
	boolean("all-features", &cfg.Build.AllFeatures)
	boolean("no-default-features", &cfg.Build.NoDefaultFeatures)
	boolean("include-tests", &cfg.Build.IncludeTests)
	slice("target-filter", &cfg.Build.TargetFilters)
	str("target", &cfg.Build.Target)
	if fs.Changed("jobs") && firstErr == nil {
		cfg.Build.Jobs, firstErr = fs.GetInt("jobs")
	}
	str("color", &cfg.Build.Color)
	boolean("frozen", &cfg.Build.Frozen)
	boolean("locked", &cfg.Build.Locked)
	slice("unstable-flags", &cfg.Build.UnstableFlags)

	str("crate-name", &cfg.Graph.CrateName)
	str("graph", &cfg.Graph.Artifact)
	str("artifact-dir", &cfg.Graph.ArtifactDir)
	str("opt", &cfg.Graph.OptBinary)
	boolean("skip-build", &cfg.Graph.SkipBuild)
	boolean("clean", &cfg.Graph.Clean)

	str("format", &cfg.Report.Format)
	str("output", &cfg.Report.Output)
	boolean("witness", &cfg.Report.Witness)
	boolean("compress", &cfg.Report.CompressArtifacts)

	str("log-file", &cfg.Logging.File)

	if firstErr != nil {
		return auditerrors.New(auditerrors.ConfigInvalid, "invalid flag value", firstErr, nil)
	}
	return nil
}
