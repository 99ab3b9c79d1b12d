// Package testutil provides fixtures and golden-file helpers for tests.
package testutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// FixtureContext holds information about a loaded fixture crate.
type FixtureContext struct {
	// Name is the fixture crate directory name, e.g. "unsafe_crate".
	Name string

	// Root is the absolute path to the fixture crate
	Root string

	// ExpectedDir is the path to the expected/ directory
	ExpectedDir string
}

// LoadFixture loads a Rust fixture crate from testdata/fixtures/rust,
// failing the test when it does not exist.
func LoadFixture(t *testing.T, name string) *FixtureContext {
	t.Helper()

	root := filepath.Join(getFixturesRoot(t), "rust", name)
	if _, err := os.Stat(filepath.Join(root, "Cargo.toml")); err != nil {
		t.Fatalf("Fixture crate not found: %s", root)
	}

	return &FixtureContext{
		Name:        name,
		Root:        root,
		ExpectedDir: filepath.Join(root, "expected"),
	}
}

// Path joins elem onto the fixture root.
func (f *FixtureContext) Path(elem ...string) string {
	return filepath.Join(append([]string{f.Root}, elem...)...)
}

// ExpectedPath returns the path to a golden file within the fixture.
// name includes its extension, e.g. "report.txt".
func (f *FixtureContext) ExpectedPath(name string) string {
	return filepath.Join(f.ExpectedDir, name)
}

// getFixturesRoot returns the absolute path to testdata/fixtures/.
func getFixturesRoot(t *testing.T) string {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get caller information")
	}

	// Navigate from internal/testutil to project root
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(thisFile)))
	fixturesRoot := filepath.Join(projectRoot, "testdata", "fixtures")

	if _, err := os.Stat(fixturesRoot); os.IsNotExist(err) {
		t.Fatalf("Fixtures root not found: %s", fixturesRoot)
	}

	return fixturesRoot
}

// CopyFixture copies the fixture crate into a fresh temp directory so a test
// may write build outputs next to it.
func CopyFixture(t *testing.T, f *FixtureContext) *FixtureContext {
	t.Helper()

	dst := filepath.Join(t.TempDir(), f.Name)
	err := filepath.WalkDir(f.Root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(f.Root, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			if d.Name() == "expected" {
				return filepath.SkipDir
			}
			return os.MkdirAll(target, 0o755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
	if err != nil {
		t.Fatalf("Failed to copy fixture: %v", err)
	}

	return &FixtureContext{Name: f.Name, Root: dst, ExpectedDir: f.ExpectedDir}
}
