// Package cargo adapts cargo's build metadata into the build-unit graph the
// audit works from.
package cargo

import (
	"sort"
	"strings"
)

// BuildUnit is one compilation of one target of one package in a resolved
// build configuration.
type BuildUnit struct {
	PackageID     string   `json:"packageId"`
	PackageName   string   `json:"packageName"`
	ManifestPath  string   `json:"manifestPath"`
	TargetName    string   `json:"targetName"`
	TargetKinds   []string `json:"targetKinds"`
	Features      []string `json:"features"`
	Test          bool     `json:"test"`
	SrcPath       string   `json:"srcPath"`
	DeclaredFiles []string `json:"declaredFiles,omitempty"`
	DepInfoPath   string   `json:"depInfoPath"`
	Dependencies  []string `json:"dependencies,omitempty"`
}

// CrateName is the target name as rustc sees it.
func (u BuildUnit) CrateName() string {
	return NormalizeCrateName(u.TargetName)
}

// HasKind reports whether the unit's target has the given kind.
func (u BuildUnit) HasKind(kind string) bool {
	for _, k := range u.TargetKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// TestOnly reports whether the unit exists only for testing or benchmarking.
func (u BuildUnit) TestOnly() bool {
	if u.Test {
		return true
	}
	for _, k := range u.TargetKinds {
		if k != "test" && k != "bench" {
			return false
		}
	}
	return len(u.TargetKinds) > 0
}

// BuildScript reports whether the unit compiles a build script.
func (u BuildUnit) BuildScript() bool {
	return u.HasKind("custom-build")
}

// Target is one buildable target of a package.
type Target struct {
	Name    string   `json:"name"`
	Kinds   []string `json:"kind"`
	SrcPath string   `json:"src_path"`
}

// Package is a package of the resolved dependency graph.
type Package struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Version      string              `json:"version"`
	ManifestPath string              `json:"manifest_path"`
	Features     map[string][]string `json:"features"`
	Targets      []Target            `json:"targets"`
	// Member is true for packages of the workspace itself.
	Member bool `json:"-"`
}

// BuildGraph is the resolved build-unit graph of one configuration.
type BuildGraph struct {
	WorkspaceRoot string              `json:"workspaceRoot"`
	TargetDir     string              `json:"targetDir"`
	Units         []BuildUnit         `json:"units"`
	Packages      map[string]*Package `json:"packages"`
}

// Members returns the workspace member packages sorted by name.
func (g *BuildGraph) Members() []*Package {
	var out []*Package
	for _, p := range g.Packages {
		if p.Member {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// PackageByName finds a package by name, preferring workspace members.
func (g *BuildGraph) PackageByName(name string) *Package {
	var found *Package
	for _, p := range g.Packages {
		if p.Name != name && NormalizeCrateName(p.Name) != NormalizeCrateName(name) {
			continue
		}
		if p.Member {
			return p
		}
		if found == nil || p.ID < found.ID {
			found = p
		}
	}
	return found
}

// NormalizeCrateName maps a package or target name to its crate name.
func NormalizeCrateName(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}
