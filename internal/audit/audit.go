// Package audit runs the unsafe audit pipeline: resolve the files of one
// build configuration, scan them for unsafe markers, load the call graph
// of the compiled crate, match findings onto it and propagate taint to
// every caller.
package audit

import (
	"context"
	"log/slog"
	"path/filepath"

	"unsafegraph/internal/cargo"
	"unsafegraph/internal/config"
	auditerrors "unsafegraph/internal/errors"
	"unsafegraph/internal/scanner"
	"unsafegraph/internal/scanset"
	"unsafegraph/internal/slogutil"
	"unsafegraph/internal/toolchain"
)

// BuildLoader resolves the build-unit graph of a configuration.
type BuildLoader interface {
	Load(ctx context.Context, opts cargo.LoadOptions) (*cargo.BuildGraph, error)
}

// SourceScanner records unsafe markers in a scan set.
type SourceScanner interface {
	Scan(ctx context.Context, set *scanset.ScanSet, roots []scanner.CrateRoot) (*scanner.Result, error)
}

// GraphBuilder produces the call-graph artifact of a crate.
type GraphBuilder interface {
	EmitBitcode(ctx context.Context, opts toolchain.BitcodeOptions) error
	DumpCallGraph(ctx context.Context, bitcode, outDir, crateName string) error
}

// Auditor runs the pipeline for one configuration.
type Auditor struct {
	cfg *config.Config
	dir string

	loader  BuildLoader
	scanner SourceScanner
	builder GraphBuilder

	logger      *slog.Logger
	resolverLog *slog.Logger
	graphLog    *slog.Logger
}

// Option customises an Auditor.
type Option func(*Auditor)

// WithLoader replaces the cargo-backed build loader.
func WithLoader(l BuildLoader) Option {
	return func(a *Auditor) { a.loader = l }
}

// WithScanner replaces the tree-sitter scanner.
func WithScanner(s SourceScanner) Option {
	return func(a *Auditor) { a.scanner = s }
}

// WithGraphBuilder replaces the cargo/opt graph builder.
func WithGraphBuilder(b GraphBuilder) Option {
	return func(a *Auditor) { a.builder = b }
}

// New creates an Auditor for cfg. Relative paths in cfg are resolved
// against dir. factory may be nil, which discards all logging.
func New(cfg *config.Config, dir string, factory *slogutil.LoggerFactory, opts ...Option) *Auditor {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	logger := func(subsystem string) *slog.Logger {
		if factory == nil {
			return slogutil.NewDiscardLogger()
		}
		return factory.Logger(subsystem)
	}

	a := &Auditor{
		cfg:         cfg,
		dir:         dir,
		logger:      logger(slogutil.SubsystemAudit),
		resolverLog: logger(slogutil.SubsystemResolver),
		graphLog:    logger(slogutil.SubsystemGraph),
	}
	for _, o := range opts {
		o(a)
	}

	if a.loader == nil || a.builder == nil {
		tc := toolchain.New(toolchain.NewExecRunner(), cfg.Build.CargoBinary, cfg.Graph.OptBinary, logger(slogutil.SubsystemToolchain))
		if a.loader == nil {
			a.loader = cargo.NewLoader(tc, a.resolverLog)
		}
		if a.builder == nil {
			a.builder = tc
		}
	}
	if a.scanner == nil {
		a.scanner = scanner.New(scanner.Options{
			IncludeTests: cfg.Build.IncludeTests,
			Jobs:         cfg.Build.Jobs,
		}, logger(slogutil.SubsystemScanner))
	}
	return a
}

// Target identifies the package whose compiled crate is analysed.
type Target struct {
	ManifestPath string `json:"manifestPath"`
	PackageName  string `json:"packageName"`
	CrateName    string `json:"crateName"`
	PackageDir   string `json:"packageDir"`
}

func (a *Auditor) abs(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(a.dir, path)
}

func (a *Auditor) manifestPath() string {
	p := a.cfg.Build.ManifestPath
	if p == "" {
		p = "Cargo.toml"
	}
	return a.abs(p)
}

// target reads the manifest to find the crate to analyse. A virtual
// workspace manifest needs an explicit crate name.
func (a *Auditor) target() (Target, error) {
	path := a.manifestPath()
	m, err := cargo.ReadManifest(path)
	if err != nil {
		return Target{}, err
	}

	t := Target{
		ManifestPath: path,
		PackageName:  m.Package.Name,
		CrateName:    m.CrateName(),
		PackageDir:   filepath.Dir(path),
	}
	if a.cfg.Graph.CrateName != "" {
		t.CrateName = cargo.NormalizeCrateName(a.cfg.Graph.CrateName)
		if t.PackageName == "" {
			t.PackageName = a.cfg.Graph.CrateName
		}
	}
	if t.CrateName == "" {
		return Target{}, auditerrors.New(auditerrors.ConfigInvalid,
			"manifest "+path+" is a virtual workspace; select a member with --crate-name", nil, nil)
	}
	return t, nil
}

// flags maps the build configuration onto cargo flags.
func (a *Auditor) flags(manifestPath string) toolchain.CargoFlags {
	b := a.cfg.Build
	return toolchain.CargoFlags{
		ManifestPath:      manifestPath,
		Features:          toolchain.SplitFeatures(b.Features),
		AllFeatures:       b.AllFeatures,
		NoDefaultFeatures: b.NoDefaultFeatures,
		Target:            b.Target,
		Jobs:              b.Jobs,
		Color:             b.Color,
		Frozen:            b.Frozen,
		Locked:            b.Locked,
		Unstable:          b.UnstableFlags,
	}
}

// artifactDir is where the call graph and findings artifact are written.
func (a *Auditor) artifactDir(packageDir, targetDir string) string {
	if a.cfg.Graph.ArtifactDir != "" {
		return a.abs(a.cfg.Graph.ArtifactDir)
	}
	if targetDir == "" {
		targetDir = filepath.Join(packageDir, "target")
	}
	return filepath.Join(targetDir, "unsafegraph")
}

// findingsPath resolves the findings artifact path; relative names live in
// the artifact directory.
func (a *Auditor) findingsPath(packageDir, targetDir string) string {
	name := a.cfg.Report.FindingsArtifact
	if name == "" {
		return ""
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(a.artifactDir(packageDir, targetDir), name)
}
