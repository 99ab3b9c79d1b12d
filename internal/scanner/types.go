// Package scanner records unsafe markers in Rust source files.
package scanner

import (
	"path/filepath"
	"sort"
	"strings"

	"unsafegraph/internal/diagnostics"
)

// Kind is the syntactic form of an unsafe marker.
type Kind string

const (
	KindUnsafeFn        Kind = "unsafe_fn"
	KindUnsafeBlock     Kind = "unsafe_block"
	KindUnsafeImpl      Kind = "unsafe_impl"
	KindUnsafeAttribute Kind = "unsafe_attribute"
)

// Finding is one place unsafe code appears, attributed to the qualified
// path of the enclosing function (or impl type, item or module).
type Finding struct {
	Path string `json:"path" yaml:"path"`
	File string `json:"file" yaml:"file"`
	Kind Kind   `json:"kind" yaml:"kind"`
	Line int    `json:"line" yaml:"line"`
}

// Key identifies a finding for deduplication.
func (f Finding) Key() string {
	return f.Path + "\x00" + f.File + "\x00" + string(f.Kind)
}

// Less orders findings by path, file, kind and line.
func (f Finding) Less(o Finding) bool {
	if f.Path != o.Path {
		return f.Path < o.Path
	}
	if f.File != o.File {
		return f.File < o.File
	}
	if f.Kind != o.Kind {
		return f.Kind < o.Kind
	}
	return f.Line < o.Line
}

// SortFindings sorts findings in place and drops duplicates, keeping the
// first line of each.
func SortFindings(findings []Finding) []Finding {
	sort.Slice(findings, func(i, j int) bool { return findings[i].Less(findings[j]) })
	out := findings[:0]
	seen := make(map[string]bool, len(findings))
	for _, f := range findings {
		if seen[f.Key()] {
			continue
		}
		seen[f.Key()] = true
		out = append(out, f)
	}
	return out
}

// FunctionRecord counts the markers attributed to one qualified path.
type FunctionRecord struct {
	Path    string `json:"path" yaml:"path"`
	Line    int    `json:"line" yaml:"line"`
	Markers int    `json:"markers" yaml:"markers"`
}

// ScannedFile is the scan outcome of one file of the scan set.
type ScannedFile struct {
	Path        string           `json:"path" yaml:"path"`
	MarkerCount int              `json:"markerCount" yaml:"markerCount"`
	Scanned     bool             `json:"scanned" yaml:"scanned"`
	Functions   []FunctionRecord `json:"functions,omitempty" yaml:"functions,omitempty"`
}

// Result is the merged output of a scan.
type Result struct {
	Files       []ScannedFile    `json:"files" yaml:"files"`
	Findings    []Finding        `json:"findings" yaml:"findings"`
	Diagnostics diagnostics.List `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
}

// File returns the scan record for path.
func (r *Result) File(path string) (ScannedFile, bool) {
	path = filepath.Clean(path)
	i := sort.Search(len(r.Files), func(i int) bool { return r.Files[i].Path >= path })
	if i < len(r.Files) && r.Files[i].Path == path {
		return r.Files[i], true
	}
	return ScannedFile{}, false
}

// MarkerTotal sums marker counts over all files.
func (r *Result) MarkerTotal() int {
	n := 0
	for _, f := range r.Files {
		n += f.MarkerCount
	}
	return n
}

// CrateRoot maps the files under SrcRoot to module paths of CrateName.
type CrateRoot struct {
	CrateName string `json:"crateName"`
	SrcRoot   string `json:"srcRoot"`
	RootFile  string `json:"rootFile"`
}

// ModulePath returns the module path of file within the crate, e.g.
// `a/b.rs` -> ["a", "b"]. ok is false when file is outside SrcRoot.
func (c CrateRoot) ModulePath(file string) ([]string, bool) {
	rel, err := filepath.Rel(c.SrcRoot, file)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, false
	}
	if filepath.Clean(file) == filepath.Clean(c.RootFile) {
		return nil, true
	}

	parts := strings.Split(filepath.ToSlash(rel), "/")
	last := strings.TrimSuffix(parts[len(parts)-1], ".rs")
	parts = parts[:len(parts)-1]
	if last != "mod" && last != "lib" && last != "main" {
		parts = append(parts, last)
	} else if (last == "lib" || last == "main") && len(parts) > 0 {
		parts = append(parts, last)
	}
	return parts, true
}

// rootFor returns the most specific crate root containing file.
func rootFor(roots []CrateRoot, file string) (CrateRoot, []string, bool) {
	var best CrateRoot
	var bestMods []string
	found := false
	for _, r := range roots {
		mods, ok := r.ModulePath(file)
		if !ok {
			continue
		}
		exact := filepath.Clean(file) == filepath.Clean(r.RootFile)
		if !found || exact || len(r.SrcRoot) > len(best.SrcRoot) {
			best, bestMods, found = r, mods, true
			if exact {
				break
			}
		}
	}
	return best, bestMods, found
}
