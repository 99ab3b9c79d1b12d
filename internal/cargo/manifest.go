package cargo

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	auditerrors "unsafegraph/internal/errors"
)

// Manifest is the subset of Cargo.toml the audit needs.
type Manifest struct {
	Package struct {
		Name    string `toml:"name"`
		Version string `toml:"version"`
		Edition string `toml:"edition"`
	} `toml:"package"`
	Lib *struct {
		Name string `toml:"name"`
		Path string `toml:"path"`
	} `toml:"lib"`
	Bin []struct {
		Name string `toml:"name"`
		Path string `toml:"path"`
	} `toml:"bin"`
	Features     map[string][]string    `toml:"features"`
	Dependencies map[string]interface{} `toml:"dependencies"`
	Workspace    *struct {
		Members []string `toml:"members"`
	} `toml:"workspace"`

	// Path is the manifest file the values were read from.
	Path string `toml:"-"`
}

// ReadManifest parses a Cargo.toml file.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, auditerrors.New(auditerrors.BuildResolutionFailed, "cannot read manifest "+path, err, nil)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, auditerrors.New(auditerrors.BuildResolutionFailed, "invalid manifest "+path, err, nil)
	}
	m.Path = path
	return &m, nil
}

// Virtual reports whether the manifest declares a workspace without a package.
func (m *Manifest) Virtual() bool {
	return m.Package.Name == ""
}

// CrateName returns the library crate name, or the package name converted
// to a crate name.
func (m *Manifest) CrateName() string {
	if m.Lib != nil && m.Lib.Name != "" {
		return NormalizeCrateName(m.Lib.Name)
	}
	return NormalizeCrateName(m.Package.Name)
}

// LibPath returns the library root file relative to the manifest directory.
func (m *Manifest) LibPath() string {
	if m.Lib != nil && m.Lib.Path != "" {
		return m.Lib.Path
	}
	return filepath.Join("src", "lib.rs")
}

// FeatureNames returns every name usable with --features: declared features
// plus optional dependencies, which act as implicit features.
func (m *Manifest) FeatureNames() []string {
	names := make([]string, 0, len(m.Features))
	for f := range m.Features {
		names = append(names, f)
	}
	for dep, spec := range m.Dependencies {
		table, ok := spec.(map[string]interface{})
		if !ok {
			continue
		}
		if optional, _ := table["optional"].(bool); optional {
			names = append(names, dep)
		}
	}
	sort.Strings(names)
	return names
}

// ValidateFeatures checks requested features against the manifest.
// Features addressed to another package (`dep/feat`) are left to cargo.
func (m *Manifest) ValidateFeatures(requested []string) error {
	known := make(map[string]bool)
	for _, f := range m.FeatureNames() {
		known[f] = true
	}
	known["default"] = true

	var unknown []string
	for _, f := range requested {
		if strings.Contains(f, "/") || known[f] {
			continue
		}
		unknown = append(unknown, f)
	}
	if len(unknown) == 0 {
		return nil
	}
	return auditerrors.New(auditerrors.BuildResolutionFailed,
		fmt.Sprintf("package %s does not have feature(s) %s", m.Package.Name, strings.Join(unknown, ", ")),
		nil, nil,
	).WithDetails(map[string]interface{}{
		"unknown":   unknown,
		"available": m.FeatureNames(),
	})
}
