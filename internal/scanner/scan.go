package scanner

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"regexp"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"unsafegraph/internal/diagnostics"
	auditerrors "unsafegraph/internal/errors"
	"unsafegraph/internal/scanset"
	"unsafegraph/internal/slogutil"
)

// ErrNoCGO is returned when scanning is unavailable due to missing CGO.
var ErrNoCGO = errors.New("unsafe scanning requires CGO (tree-sitter)")

// Options configures a Scanner.
type Options struct {
	// IncludeTests also scans items marked #[test] or #[cfg(test)].
	IncludeTests bool
	// Jobs bounds the number of files parsed concurrently. Zero means one
	// per CPU.
	Jobs int
}

// Scanner parses Rust files and records unsafe markers.
type Scanner struct {
	opts   Options
	logger *slog.Logger
}

// New creates a Scanner.
func New(opts Options, logger *slog.Logger) *Scanner {
	if opts.Jobs <= 0 {
		opts.Jobs = runtime.NumCPU()
	}
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &Scanner{opts: opts, logger: logger}
}

// fileScan is the outcome of scanning one file.
type fileScan struct {
	file     ScannedFile
	findings []Finding
	diags    diagnostics.List
}

// Scan scans every file of set. Files under no crate root, unreadable
// files and files that fail to parse are recorded as not scanned; only
// cancellation aborts the scan. The result does not depend on the order in
// which files complete.
func (s *Scanner) Scan(ctx context.Context, set *scanset.ScanSet, roots []CrateRoot) (*Result, error) {
	if !Available() {
		return nil, ErrNoCGO
	}

	files := set.Files()
	results := make([]fileScan, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Jobs)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = s.scanOne(gctx, path, roots)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{Files: make([]ScannedFile, 0, len(files))}
	for _, r := range results {
		res.Files = append(res.Files, r.file)
		res.Findings = append(res.Findings, r.findings...)
		res.Diagnostics.Merge(r.diags)
	}
	res.Findings = SortFindings(res.Findings)

	s.logger.Info("Scan complete",
		"files", len(res.Files),
		"findings", len(res.Findings),
		"markers", res.MarkerTotal(),
		"neverScanned", res.Diagnostics.Count(diagnostics.KindNeverScanned))
	return res, nil
}

func (s *Scanner) scanOne(ctx context.Context, path string, roots []CrateRoot) fileScan {
	out := fileScan{file: ScannedFile{Path: path}}

	root, mods, ok := rootFor(roots, path)
	if !ok {
		s.logger.Warn("Dependency file was never scanned", "path", path)
		out.diags.Add(diagnostics.Diagnostic{
			Kind:    diagnostics.KindNeverScanned,
			Path:    path,
			Message: "file is outside every package source root (generated code?)",
		})
		return out
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return s.failed(out, path, "cannot read file: "+err.Error())
	}

	scan, err := s.scanSource(ctx, path, src, root, mods)
	if err != nil {
		return s.failed(out, path, err.Error())
	}
	scan.file.Path = path
	scan.file.Scanned = true
	s.logger.Debug("Scanned file", "path", path, "markers", scan.file.MarkerCount)
	return scan
}

func (s *Scanner) failed(out fileScan, path, msg string) fileScan {
	s.logger.Warn("Failed to scan file", "path", path, "error", msg)
	out.diags.Add(diagnostics.Diagnostic{
		Kind:    diagnostics.KindParseError,
		Code:    auditerrors.ParseFailed,
		Path:    path,
		Message: msg,
	})
	out.diags.Add(diagnostics.Diagnostic{
		Kind:    diagnostics.KindNeverScanned,
		Path:    path,
		Message: "file could not be parsed",
	})
	return out
}

// unsafeAttrRe finds `#[unsafe(` and `#![unsafe(` attribute openers. The
// keyword is rewritten to a same-length identifier before parsing so that
// grammars predating unsafe attributes still produce a clean tree.
var unsafeAttrRe = regexp.MustCompile(`#!?\[\s*unsafe\s*\(`)

const unsafeAttrIdent = "__unsf"

func rewriteUnsafeAttributes(src []byte) []byte {
	locs := unsafeAttrRe.FindAllIndex(src, -1)
	if len(locs) == 0 {
		return src
	}
	out := make([]byte, len(src))
	copy(out, src)
	for _, loc := range locs {
		i := loc[0] + strings.Index(string(src[loc[0]:loc[1]]), "unsafe")
		copy(out[i:], unsafeAttrIdent)
	}
	return out
}
