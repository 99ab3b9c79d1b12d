// Package scanset resolves the exact set of Rust source files that take part
// in one build configuration.
package scanset

import (
	"encoding/hex"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"

	"unsafegraph/internal/cargo"
	"unsafegraph/internal/diagnostics"
	auditerrors "unsafegraph/internal/errors"
)

// Options selects which units of a resolved build graph feed the scan set.
// Features are not listed: they already shaped the graph through the cargo
// flags it was loaded with.
type Options struct {
	IncludeTests bool `json:"includeTests,omitempty" yaml:"includeTests,omitempty"`
	// TargetFilters are target kinds (lib, bin, test, ...) or kind:name
	// selectors. Empty selects every non build-script target.
	TargetFilters []string `json:"targetFilters,omitempty" yaml:"targetFilters,omitempty"`
}

// ScanSet is a sorted, deduplicated set of absolute source paths.
type ScanSet struct {
	files []string
	index map[string]bool
}

// New builds a ScanSet from paths, cleaning and deduplicating them.
func New(paths []string) *ScanSet {
	s := &ScanSet{index: make(map[string]bool, len(paths))}
	for _, p := range paths {
		p = filepath.Clean(p)
		if s.index[p] {
			continue
		}
		s.index[p] = true
		s.files = append(s.files, p)
	}
	sort.Strings(s.files)
	return s
}

// Contains reports whether path is in the set.
func (s *ScanSet) Contains(path string) bool {
	return s.index[filepath.Clean(path)]
}

// Files returns the sorted paths. The slice must not be modified.
func (s *ScanSet) Files() []string {
	return s.files
}

// Len returns the number of files.
func (s *ScanSet) Len() int {
	return len(s.files)
}

// Digest is a BLAKE2b-256 hex digest over the sorted paths. Two resolutions
// of the same configuration yield the same digest.
func (s *ScanSet) Digest() string {
	sum := blake2b.Sum256([]byte(strings.Join(s.files, "\n")))
	return hex.EncodeToString(sum[:])
}

// Resolve unions the dep-info records of every selected unit of graph.
// Missing records and files declared by a package but never compiled are
// reported as diagnostics, not errors.
func Resolve(graph *cargo.BuildGraph, opts Options) (*ScanSet, diagnostics.List) {
	var diags diagnostics.List
	var files []string
	var declared []string

	for _, u := range graph.Units {
		if !selected(u, opts) {
			continue
		}

		declared = append(declared, u.DeclaredFiles...)

		if u.DepInfoPath == "" {
			diags.Add(diagnostics.Diagnostic{
				Kind:    diagnostics.KindDependencyInfoMissing,
				Code:    auditerrors.DependencyInfoMissing,
				Symbol:  u.PackageName + "::" + u.TargetName,
				Message: "build unit emitted no dependency info",
			})
			continue
		}
		info, err := ReadDepInfo(u.DepInfoPath)
		if err != nil {
			diags.Add(diagnostics.Diagnostic{
				Kind:    diagnostics.KindDependencyInfoMissing,
				Code:    auditerrors.DependencyInfoMissing,
				Path:    u.DepInfoPath,
				Symbol:  u.PackageName + "::" + u.TargetName,
				Message: "cannot read dependency info: " + err.Error(),
			})
			continue
		}

		for _, f := range info.Files {
			if !strings.HasSuffix(f, ".rs") {
				continue
			}
			if !filepath.IsAbs(f) {
				f = filepath.Join(graph.WorkspaceRoot, f)
			}
			files = append(files, f)
		}
	}

	set := New(files)

	reported := map[string]bool{}
	sort.Strings(declared)
	for _, f := range declared {
		f = filepath.Clean(f)
		if reported[f] || set.Contains(f) {
			continue
		}
		reported[f] = true
		diags.Add(diagnostics.Diagnostic{
			Kind:     diagnostics.KindDeclaredNotScanned,
			Severity: diagnostics.SeverityInfo,
			Path:     f,
			Message:  "file is part of the package but not compiled in this configuration",
		})
	}

	return set, diags
}

func selected(u cargo.BuildUnit, opts Options) bool {
	if u.TestOnly() && !opts.IncludeTests {
		return false
	}
	if len(opts.TargetFilters) == 0 {
		return !u.BuildScript()
	}
	for _, f := range opts.TargetFilters {
		kind, name, hasName := strings.Cut(f, ":")
		if !u.HasKind(kind) {
			continue
		}
		if !hasName || name == u.TargetName || cargo.NormalizeCrateName(name) == u.CrateName() {
			return true
		}
	}
	return false
}
