package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"unsafegraph/internal/callgraph"
	"unsafegraph/internal/cargo"
	"unsafegraph/internal/diagnostics"
	auditerrors "unsafegraph/internal/errors"
	"unsafegraph/internal/report"
	"unsafegraph/internal/scanner"
	"unsafegraph/internal/scanset"
	"unsafegraph/internal/symbols"
	"unsafegraph/internal/taint"
	"unsafegraph/internal/toolchain"
)

// ScanOutcome is the result of the scan phase.
type ScanOutcome struct {
	Target      Target
	Build       *cargo.BuildGraph
	Set         *scanset.ScanSet
	Roots       []scanner.CrateRoot
	Result      *scanner.Result
	Diagnostics diagnostics.List
}

// GraphOutcome is the result of the graph phase.
type GraphOutcome struct {
	Path        string
	Graph       *callgraph.Graph
	Stats       callgraph.Stats
	Matches     *symbols.MatchSet
	Taint       *taint.Set
	Cycles      [][]int
	Diagnostics diagnostics.List
}

// Result is the outcome of a complete run.
type Result struct {
	Scan         *ScanOutcome
	Graph        *GraphOutcome
	Report       *report.Report
	FindingsPath string
}

// Scan resolves the scan set of the configured build and scans it.
func (a *Auditor) Scan(ctx context.Context) (*ScanOutcome, error) {
	t, err := a.target()
	if err != nil {
		return nil, err
	}

	graph, err := a.loader.Load(ctx, cargo.LoadOptions{
		Flags:      a.flags(t.ManifestPath),
		Dir:        t.PackageDir,
		AllTargets: a.cfg.Build.IncludeTests,
	})
	if err != nil {
		return nil, err
	}

	set, diags := scanset.Resolve(graph, scanset.Options{
		IncludeTests:  a.cfg.Build.IncludeTests,
		TargetFilters: a.cfg.Build.TargetFilters,
	})
	diags.Log(a.resolverLog)
	a.resolverLog.Info("Resolved scan set", "files", set.Len(), "digest", set.Digest())

	roots := CrateRoots(graph)
	res, err := a.scanner.Scan(ctx, set, roots)
	if err != nil {
		return nil, err
	}
	diags.Merge(res.Diagnostics)

	return &ScanOutcome{
		Target:      t,
		Build:       graph,
		Set:         set,
		Roots:       roots,
		Result:      res,
		Diagnostics: diags,
	}, nil
}

// CrateRoots maps the units of graph to crate roots. Build scripts are
// left out so files they generate under the target directory are not
// mistaken for package modules. Library roots come first so that a file
// shared by a lib and a bin target is attributed to the library.
func CrateRoots(graph *cargo.BuildGraph) []scanner.CrateRoot {
	type rooted struct {
		root scanner.CrateRoot
		lib  bool
	}
	seen := make(map[string]bool)
	var all []rooted
	for _, u := range graph.Units {
		if u.SrcPath == "" || u.BuildScript() || seen[u.SrcPath] {
			continue
		}
		seen[u.SrcPath] = true
		all = append(all, rooted{
			root: scanner.CrateRoot{
				CrateName: u.CrateName(),
				SrcRoot:   filepath.Dir(u.SrcPath),
				RootFile:  u.SrcPath,
			},
			lib: u.HasKind("lib") || u.HasKind("rlib") || u.HasKind("proc-macro"),
		})
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].lib != all[j].lib {
			return all[i].lib
		}
		return all[i].root.RootFile < all[j].root.RootFile
	})

	roots := make([]scanner.CrateRoot, len(all))
	for i, r := range all {
		roots[i] = r.root
	}
	return roots
}

// Analyze loads the call graph of t, matches findings onto it and
// propagates taint.
func (a *Auditor) Analyze(ctx context.Context, t Target, targetDir string, findings []scanner.Finding) (*GraphOutcome, error) {
	path, err := a.graphPath(ctx, t, targetDir)
	if err != nil {
		return nil, err
	}

	g, stats, err := callgraph.Load(path)
	if err != nil {
		return nil, err
	}
	a.graphLog.Info("Loaded call graph", "path", path, "dialect", stats.Dialect,
		"nodes", stats.Nodes, "edges", stats.Edges)

	out := &GraphOutcome{Path: path, Graph: g, Stats: stats}
	if stats.DanglingEdges > 0 {
		out.Diagnostics.Add(diagnostics.Diagnostic{
			Kind:     diagnostics.KindDanglingEdge,
			Severity: diagnostics.SeverityInfo,
			Path:     path,
			Message:  fmt.Sprintf("%d edges name undeclared nodes and were skipped", stats.DanglingEdges),
		})
	}

	out.Matches = symbols.Match(findings, g)
	for _, f := range out.Matches.Unobserved {
		out.Diagnostics.Add(diagnostics.Diagnostic{
			Kind:     diagnostics.KindUnobserved,
			Code:     auditerrors.UnmatchedFinding,
			Severity: diagnostics.SeverityInfo,
			Path:     f.File,
			Symbol:   f.Path,
			Message:  "unsafe code present but unobserved in the call graph",
		})
	}

	out.Taint = taint.Propagate(g, out.Matches.DirectIDs())
	out.Cycles = taint.Cycles(g, out.Taint)
	out.Diagnostics.Log(a.graphLog)
	a.graphLog.Info("Propagated taint",
		"direct", len(out.Matches.Direct),
		"tainted", out.Taint.Len(),
		"unobserved", len(out.Matches.Unobserved),
		"cycles", len(out.Cycles))
	return out, nil
}

// graphPath returns the call-graph artifact of t: the configured artifact,
// or one located in the artifact directory after building it unless the
// build is skipped.
func (a *Auditor) graphPath(ctx context.Context, t Target, targetDir string) (string, error) {
	if a.cfg.Graph.Artifact != "" {
		return a.abs(a.cfg.Graph.Artifact), nil
	}

	outDir := a.artifactDir(t.PackageDir, targetDir)
	if a.cfg.Graph.SkipBuild {
		return locateAny([]string{outDir, t.PackageDir, filepath.Dir(t.PackageDir)}, t.CrateName)
	}

	if err := a.builder.EmitBitcode(ctx, toolchain.BitcodeOptions{
		Flags: a.flags(t.ManifestPath),
		Dir:   t.PackageDir,
		Clean: a.cfg.Graph.Clean,
	}); err != nil {
		return "", err
	}
	bitcode, err := toolchain.FindBitcode(bitcodeDirs(t.PackageDir, targetDir), a.cfg.Build.Target, t.CrateName)
	if err != nil {
		return "", err
	}
	if err := a.builder.DumpCallGraph(ctx, bitcode, outDir, t.CrateName); err != nil {
		return "", err
	}
	return callgraph.Locate(outDir, t.CrateName)
}

// bitcodeDirs lists the target directories bitcode may land in: the one
// cargo reported, the package's own and its parent workspace's.
func bitcodeDirs(packageDir, targetDir string) []string {
	var dirs []string
	seen := map[string]bool{}
	for _, d := range []string{
		targetDir,
		filepath.Join(packageDir, "target"),
		filepath.Join(filepath.Dir(packageDir), "target"),
	} {
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		dirs = append(dirs, d)
	}
	return dirs
}

func locateAny(dirs []string, crateName string) (string, error) {
	var firstErr error
	for _, dir := range dirs {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			continue
		}
		path, err := callgraph.Locate(dir, crateName)
		if err == nil {
			return path, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		firstErr = auditerrors.Newf(auditerrors.GraphArtifactNotFound, "no call-graph artifact for %s", crateName).
			WithDetails(map[string]interface{}{"searched": dirs})
	}
	return "", firstErr
}

// Run executes the scan and graph phases and builds the report. The
// findings artifact is written between the phases.
func (a *Auditor) Run(ctx context.Context) (*Result, error) {
	scan, err := a.Scan(ctx)
	if err != nil {
		return nil, err
	}

	res := &Result{Scan: scan}
	if res.FindingsPath, err = a.WriteFindings(scan); err != nil {
		return nil, err
	}

	res.Graph, err = a.Analyze(ctx, scan.Target, scan.Build.TargetDir, scan.Result.Findings)
	if err != nil {
		return nil, err
	}

	diags := append(diagnostics.List(nil), scan.Diagnostics...)
	diags.Merge(res.Graph.Diagnostics)
	res.Report = report.Build(report.Input{
		Crate:         scan.Target.CrateName,
		WorkspaceRoot: scan.Build.WorkspaceRoot,
		ScanSetDigest: scan.Set.Digest(),
		Scan:          scan.Result,
		Graph:         res.Graph.Graph,
		GraphPath:     res.Graph.Path,
		GraphStats:    res.Graph.Stats,
		Matches:       res.Graph.Matches,
		Taint:         res.Graph.Taint,
		Cycles:        res.Graph.Cycles,
		Diagnostics:   diags,
	})
	return res, nil
}

// ScanReport builds the per-file report of a scan phase.
func ScanReport(scan *ScanOutcome) *report.Report {
	return report.Build(report.Input{
		Crate:         scan.Target.CrateName,
		WorkspaceRoot: scan.Build.WorkspaceRoot,
		ScanSetDigest: scan.Set.Digest(),
		Scan:          scan.Result,
		Diagnostics:   scan.Diagnostics,
	})
}

// WriteFindings writes the findings artifact of scan, unless disabled by
// an empty artifact name, and returns its path.
func (a *Auditor) WriteFindings(scan *ScanOutcome) (string, error) {
	path := a.findingsPath(scan.Target.PackageDir, scan.Build.TargetDir)
	if path == "" {
		return "", nil
	}
	written, err := report.WriteFindings(path, &report.FindingsArtifact{
		Crate:         scan.Target.CrateName,
		PackageName:   scan.Target.PackageName,
		WorkspaceRoot: scan.Build.WorkspaceRoot,
		TargetDir:     scan.Build.TargetDir,
		ScanSetDigest: scan.Set.Digest(),
		Files:         scan.Result.Files,
		Findings:      scan.Result.Findings,
		Diagnostics:   scan.Diagnostics,
	}, a.cfg.Report.CompressArtifacts)
	if err != nil {
		return "", auditerrors.New(auditerrors.InternalError, "cannot write findings artifact", err, nil)
	}
	a.logger.Info("Wrote findings artifact", "path", written)
	return written, nil
}

// defaultFindings finds the artifact an earlier scan wrote. The scan used
// the target directory cargo reported, so $CARGO_TARGET_DIR, the package's
// target directory and every ancestor's are tried in turn. When none holds
// an artifact the first candidate is returned.
func (a *Auditor) defaultFindings(packageDir string) string {
	var targets []string
	if env := os.Getenv("CARGO_TARGET_DIR"); env != "" {
		targets = append(targets, a.abs(env))
	}
	for dir := packageDir; ; dir = filepath.Dir(dir) {
		targets = append(targets, filepath.Join(dir, "target"))
		if filepath.Dir(dir) == dir {
			break
		}
	}

	var first string
	for _, target := range targets {
		path := a.findingsPath(packageDir, target)
		if path == "" {
			return ""
		}
		if first == "" {
			first = path
		}
		for _, p := range []string{path, path + ".zst"} {
			if info, err := os.Stat(p); err == nil && !info.IsDir() {
				return p
			}
		}
	}
	return first
}

// RunGraph runs the graph phase on a findings artifact from an earlier
// scan. An empty path selects the artifact in the default location.
func (a *Auditor) RunGraph(ctx context.Context, findingsPath string) (*Result, error) {
	packageDir := filepath.Dir(a.manifestPath())
	if findingsPath == "" {
		findingsPath = a.defaultFindings(packageDir)
	}
	artifact, err := report.ReadFindings(a.abs(findingsPath))
	if err != nil {
		return nil, auditerrors.New(auditerrors.ConfigInvalid, "cannot read findings artifact", err, []auditerrors.FixAction{{
			Type:        auditerrors.RunCommand,
			Command:     "unsafegraph scan",
			Safe:        true,
			Description: "Scan the package to produce a findings artifact",
		}})
	}

	t := Target{
		ManifestPath: a.manifestPath(),
		PackageName:  artifact.PackageName,
		CrateName:    artifact.Crate,
		PackageDir:   packageDir,
	}
	if a.cfg.Graph.CrateName != "" {
		t.CrateName = a.cfg.Graph.CrateName
	}

	scan := artifact.Result()
	g, err := a.Analyze(ctx, t, artifact.TargetDir, scan.Findings)
	if err != nil {
		return nil, err
	}

	diags := append(diagnostics.List(nil), artifact.Diagnostics...)
	diags.Merge(g.Diagnostics)
	return &Result{
		Graph:        g,
		FindingsPath: findingsPath,
		Report: report.Build(report.Input{
			Crate:         t.CrateName,
			WorkspaceRoot: artifact.WorkspaceRoot,
			ScanSetDigest: artifact.ScanSetDigest,
			Scan:          scan,
			Graph:         g.Graph,
			GraphPath:     g.Path,
			GraphStats:    g.Stats,
			Matches:       g.Matches,
			Taint:         g.Taint,
			Cycles:        g.Cycles,
			Diagnostics:   diags,
		}),
	}, nil
}
