package cargo

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	auditerrors "unsafegraph/internal/errors"
	"unsafegraph/internal/slogutil"
	"unsafegraph/internal/toolchain"
)

// Loader builds a BuildGraph by asking cargo.
type Loader struct {
	tc     *toolchain.Toolchain
	logger *slog.Logger
}

// NewLoader creates a Loader running cargo through tc.
func NewLoader(tc *toolchain.Toolchain, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &Loader{tc: tc, logger: logger}
}

// LoadOptions selects the build configuration to resolve.
type LoadOptions struct {
	Flags toolchain.CargoFlags
	// Dir is the directory cargo runs in.
	Dir string
	// AllTargets also checks tests, benches and examples.
	AllTargets bool
}

// Load resolves the workspace and the build units of one configuration.
func (l *Loader) Load(ctx context.Context, opts LoadOptions) (*BuildGraph, error) {
	manifestPath := opts.Flags.ManifestPath
	if manifestPath == "" {
		manifestPath = filepath.Join(opts.Dir, "Cargo.toml")
	}
	manifest, err := ReadManifest(manifestPath)
	if err != nil {
		return nil, err
	}
	if !manifest.Virtual() {
		if err := manifest.ValidateFeatures(toolchain.SplitFeatures(opts.Flags.Features)); err != nil {
			return nil, err
		}
	}

	l.logger.Debug("Resolving workspace", "manifest", manifestPath)
	out, err := l.tc.Cargo(ctx, opts.Dir, nil, opts.Flags.MetadataArgs()...)
	if err != nil {
		return nil, resolutionFailed("cargo metadata failed", err)
	}
	graph, deps, err := ParseMetadata(out)
	if err != nil {
		return nil, resolutionFailed("cannot read cargo metadata", err)
	}

	extra := []string{"--message-format=json"}
	if opts.AllTargets {
		extra = append(extra, "--all-targets")
	}
	l.logger.Debug("Checking build units", "allTargets", opts.AllTargets)
	out, checkErr := l.tc.Cargo(ctx, opts.Dir, nil, opts.Flags.BuildArgs("check", extra...)...)
	if checkErr != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	msgs, err := ParseMessages(out)
	if err != nil {
		return nil, resolutionFailed("cannot read cargo build messages", err)
	}
	if checkErr != nil {
		if len(msgs.Units) == 0 {
			return nil, resolutionFailed("cargo check failed", checkErr)
		}
		l.logger.Warn("cargo check failed, continuing with partial build units",
			"units", len(msgs.Units), "errors", msgs.Errors)
	}

	graph.Units = assembleUnits(graph, deps, msgs.Units)
	l.logger.Info("Resolved build graph", "packages", len(graph.Packages), "units", len(graph.Units))
	return graph, nil
}

func resolutionFailed(msg string, cause error) error {
	return auditerrors.New(auditerrors.BuildResolutionFailed, msg, cause, nil)
}

func assembleUnits(graph *BuildGraph, deps map[string][]string, units []BuildUnit) []BuildUnit {
	declared := make(map[string][]string)
	out := make([]BuildUnit, 0, len(units))

	for _, u := range units {
		pkg := graph.Packages[u.PackageID]
		if pkg != nil {
			u.PackageName = pkg.Name
			if u.ManifestPath == "" {
				u.ManifestPath = pkg.ManifestPath
			}
			if pkg.Member && !u.BuildScript() {
				files, ok := declared[pkg.ID]
				if !ok {
					files = DeclaredFiles(pkg)
					declared[pkg.ID] = files
				}
				u.DeclaredFiles = files
			}
		}
		u.Dependencies = deps[u.PackageID]
		out = append(out, u)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.PackageID != b.PackageID {
			return a.PackageID < b.PackageID
		}
		if a.TargetName != b.TargetName {
			return a.TargetName < b.TargetName
		}
		return !a.Test && b.Test
	})
	return out
}

// DeclaredFiles lists the .rs files under the source directories of a
// package's targets, skipping nested target directories.
func DeclaredFiles(pkg *Package) []string {
	seen := make(map[string]bool)
	roots := make(map[string]bool)
	for _, t := range pkg.Targets {
		if t.SrcPath == "" || containsKind(t.Kinds, "custom-build") {
			continue
		}
		roots[filepath.Dir(t.SrcPath)] = true
	}

	for root := range roots {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() && path != root && (d.Name() == "target" || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			if !d.IsDir() && strings.HasSuffix(path, ".rs") {
				seen[filepath.Clean(path)] = true
			}
			return nil
		})
	}

	files := make([]string, 0, len(seen))
	for f := range seen {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

func containsKind(kinds []string, kind string) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}
