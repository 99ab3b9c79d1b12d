package cargo

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditerrors "unsafegraph/internal/errors"
	"unsafegraph/internal/toolchain"
)

func TestDepInfoPath(t *testing.T) {
	tests := []struct {
		name      string
		filenames []string
		want      string
	}{
		{"rmeta", []string{"/t/debug/deps/libfoo-abc.rmeta"}, "/t/debug/deps/foo-abc.d"},
		{"rlib first", []string{"/t/debug/deps/libfoo-abc.rlib", "/t/debug/deps/libfoo-abc.rmeta"}, "/t/debug/deps/foo-abc.d"},
		{"executable", []string{"/t/debug/build/foo-1/build_script_build-1"}, "/t/debug/build/foo-1/build_script_build-1.d"},
		{"windows exe", []string{"/t/debug/deps/app-9.exe"}, "/t/debug/deps/app-9.d"},
		{"library named lib", []string{"/t/debug/deps/liblibc-9.rmeta"}, "/t/debug/deps/libc-9.d"},
		{"none", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, filepath.FromSlash(tt.want), DepInfoPath(tt.filenames))
		})
	}
}

func TestPackageNameFromID(t *testing.T) {
	assert.Equal(t, "serde", packageNameFromID("serde 1.0.0 (registry+https://github.com/rust-lang/crates.io-index)"))
	assert.Equal(t, "serde", packageNameFromID("registry+https://github.com/rust-lang/crates.io-index#serde@1.0.0"))
	assert.Equal(t, "foo", packageNameFromID("path+file:///work/foo#0.1.0"))
	assert.Equal(t, "my-pkg", packageNameFromID("path+file:///work/x#my-pkg@0.1.0"))
}

const checkOutput = `{"reason":"compiler-artifact","package_id":"path+file:///w/foo#0.1.0","manifest_path":"/w/foo/Cargo.toml","target":{"kind":["lib"],"name":"foo","src_path":"/w/foo/src/lib.rs"},"profile":{"test":false},"features":["default"],"filenames":["/w/target/debug/deps/libfoo-1.rmeta"],"fresh":false}
   Compiling foo v0.1.0
{"reason":"build-script-executed","package_id":"path+file:///w/foo#0.1.0","out_dir":"/w/target/debug/build/foo-2/out"}
{"reason":"compiler-message","package_id":"path+file:///w/foo#0.1.0","message":{"level":"warning","message":"unused"}}
{"reason":"compiler-artifact","package_id":"path+file:///w/foo#0.1.0","manifest_path":"/w/foo/Cargo.toml","target":{"kind":["lib"],"name":"foo","src_path":"/w/foo/src/lib.rs"},"profile":{"test":true},"features":[],"filenames":["/w/target/debug/deps/libfoo-3.rmeta"],"fresh":false}
{"reason":"build-finished","success":true}
`

func TestParseMessages(t *testing.T) {
	msgs, err := ParseMessages([]byte(checkOutput))
	require.NoError(t, err)

	require.Len(t, msgs.Units, 2)
	u := msgs.Units[0]
	assert.Equal(t, "foo", u.PackageName)
	assert.Equal(t, []string{"lib"}, u.TargetKinds)
	assert.Equal(t, "/w/foo/src/lib.rs", u.SrcPath)
	assert.Equal(t, filepath.FromSlash("/w/target/debug/deps/foo-1.d"), u.DepInfoPath)
	assert.False(t, u.Test)
	assert.True(t, msgs.Units[1].Test)
	assert.True(t, msgs.Units[1].TestOnly())
	assert.Equal(t, "/w/target/debug/build/foo-2/out", msgs.OutDirs["path+file:///w/foo#0.1.0"])
	assert.Equal(t, 0, msgs.Errors)
}

func TestBuildUnit_Kinds(t *testing.T) {
	assert.True(t, BuildUnit{TargetKinds: []string{"test"}}.TestOnly())
	assert.True(t, BuildUnit{TargetKinds: []string{"bench"}}.TestOnly())
	assert.False(t, BuildUnit{TargetKinds: []string{"lib"}}.TestOnly())
	assert.False(t, BuildUnit{}.TestOnly())
	assert.True(t, BuildUnit{TargetKinds: []string{"custom-build"}}.BuildScript())
	assert.Equal(t, "my_crate", BuildUnit{TargetName: "my-crate"}.CrateName())
}

func writeManifest(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "Cargo.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const fooManifest = `[package]
name = "my-crate"
version = "0.1.0"
edition = "2021"

[features]
default = ["std"]
std = []
simd = []

[dependencies]
libc = "0.2"
serde = { version = "1", optional = true }
`

func TestReadManifest(t *testing.T) {
	path := writeManifest(t, t.TempDir(), fooManifest)

	m, err := ReadManifest(path)
	require.NoError(t, err)

	assert.Equal(t, "my-crate", m.Package.Name)
	assert.Equal(t, "my_crate", m.CrateName())
	assert.Equal(t, filepath.Join("src", "lib.rs"), m.LibPath())
	assert.False(t, m.Virtual())
	assert.Equal(t, []string{"default", "serde", "simd", "std"}, m.FeatureNames())
}

func TestManifest_ValidateFeatures(t *testing.T) {
	m, err := ReadManifest(writeManifest(t, t.TempDir(), fooManifest))
	require.NoError(t, err)

	assert.NoError(t, m.ValidateFeatures([]string{"simd", "serde", "default", "serde/derive"}))

	err = m.ValidateFeatures([]string{"simd", "nope"})
	require.Error(t, err)
	assert.Equal(t, auditerrors.BuildResolutionFailed, auditerrors.CodeOf(err))
	assert.Contains(t, err.Error(), "nope")
}

func TestReadManifest_Invalid(t *testing.T) {
	_, err := ReadManifest(writeManifest(t, t.TempDir(), "[package\nname="))
	require.Error(t, err)
	assert.Equal(t, auditerrors.BuildResolutionFailed, auditerrors.CodeOf(err))
}

func TestParseMetadata(t *testing.T) {
	data := `{
  "packages": [
    {"id": "path+file:///w/foo#0.1.0", "name": "foo", "version": "0.1.0", "manifest_path": "/w/foo/Cargo.toml",
     "features": {"std": []}, "targets": [{"name": "foo", "kind": ["lib"], "src_path": "/w/foo/src/lib.rs"}]},
    {"id": "registry+x#libc@0.2.0", "name": "libc", "version": "0.2.0", "manifest_path": "/r/libc/Cargo.toml",
     "features": {}, "targets": [{"name": "libc", "kind": ["lib"], "src_path": "/r/libc/src/lib.rs"}]}
  ],
  "workspace_members": ["path+file:///w/foo#0.1.0"],
  "workspace_root": "/w",
  "target_directory": "/w/target",
  "resolve": {"nodes": [{"id": "path+file:///w/foo#0.1.0", "dependencies": ["registry+x#libc@0.2.0"], "features": []}]}
}`

	g, deps, err := ParseMetadata([]byte(data))
	require.NoError(t, err)

	assert.Equal(t, "/w", g.WorkspaceRoot)
	assert.Equal(t, "/w/target", g.TargetDir)
	require.Len(t, g.Packages, 2)
	require.Len(t, g.Members(), 1)
	assert.Equal(t, "foo", g.Members()[0].Name)
	assert.Equal(t, "libc", g.PackageByName("libc").Name)
	assert.Equal(t, []string{"registry+x#libc@0.2.0"}, deps["path+file:///w/foo#0.1.0"])
}

func TestDeclaredFiles(t *testing.T) {
	dir := t.TempDir()
	for _, f := range []string{"src/lib.rs", "src/a/mod.rs", "src/a/b.rs", "src/notes.txt", "src/target/gen.rs"} {
		p := filepath.Join(dir, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, nil, 0o644))
	}

	pkg := &Package{Targets: []Target{
		{Name: "foo", Kinds: []string{"lib"}, SrcPath: filepath.Join(dir, "src", "lib.rs")},
		{Name: "build-script-build", Kinds: []string{"custom-build"}, SrcPath: filepath.Join(dir, "build.rs")},
	}}

	got := DeclaredFiles(pkg)
	want := []string{
		filepath.Join(dir, "src", "a", "b.rs"),
		filepath.Join(dir, "src", "a", "mod.rs"),
		filepath.Join(dir, "src", "lib.rs"),
	}
	assert.Equal(t, want, got)
}

func metadataFor(dir string) string {
	src := filepath.ToSlash(filepath.Join(dir, "src", "lib.rs"))
	return `{"packages":[{"id":"path+file:///w/foo#0.1.0","name":"my-crate","version":"0.1.0","manifest_path":"` +
		filepath.ToSlash(filepath.Join(dir, "Cargo.toml")) + `","features":{},"targets":[{"name":"my-crate","kind":["lib"],"src_path":"` +
		src + `"}]}],"workspace_members":["path+file:///w/foo#0.1.0"],"workspace_root":"` + filepath.ToSlash(dir) +
		`","target_directory":"` + filepath.ToSlash(filepath.Join(dir, "target")) + `","resolve":{"nodes":[]}}`
}

func TestLoader_Load(t *testing.T) {
	dir := t.TempDir()
	manifest := writeManifest(t, dir, fooManifest)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "lib.rs"), nil, 0o644))

	flags := toolchain.CargoFlags{ManifestPath: manifest}
	runner := toolchain.NewMockRunner()
	runner.SetLookPath("cargo", "/usr/bin/cargo")
	runner.SetCommand("cargo "+strings.Join(flags.MetadataArgs(), " "), metadataFor(dir), "", nil)
	check := `{"reason":"compiler-artifact","package_id":"path+file:///w/foo#0.1.0","target":{"kind":["lib"],"name":"my-crate","src_path":"x"},"profile":{"test":false},"features":[],"filenames":["/t/libmy_crate-1.rmeta"]}`
	runner.SetCommand("cargo "+strings.Join(flags.BuildArgs("check", "--message-format=json"), " "), check, "", nil)

	loader := NewLoader(toolchain.New(runner, "cargo", "opt", nil), nil)
	g, err := loader.Load(context.Background(), LoadOptions{Flags: flags, Dir: dir})
	require.NoError(t, err)

	require.Len(t, g.Units, 1)
	u := g.Units[0]
	assert.Equal(t, "my-crate", u.PackageName)
	assert.Equal(t, filepath.Join(dir, "Cargo.toml"), filepath.FromSlash(u.ManifestPath))
	assert.Equal(t, []string{filepath.Join(dir, "src", "lib.rs")}, u.DeclaredFiles)
}

func TestLoader_UnknownFeatureFails(t *testing.T) {
	dir := t.TempDir()
	manifest := writeManifest(t, dir, fooManifest)

	runner := toolchain.NewMockRunner()
	loader := NewLoader(toolchain.New(runner, "cargo", "opt", nil), nil)

	_, err := loader.Load(context.Background(), LoadOptions{
		Flags: toolchain.CargoFlags{ManifestPath: manifest, Features: []string{"missing"}},
		Dir:   dir,
	})
	require.Error(t, err)
	assert.Equal(t, auditerrors.BuildResolutionFailed, auditerrors.CodeOf(err))
	assert.Empty(t, runner.Calls(), "cargo must not run for an invalid feature request")
}

func TestLoader_MetadataFailure(t *testing.T) {
	dir := t.TempDir()
	manifest := writeManifest(t, dir, fooManifest)

	runner := toolchain.NewMockRunner()
	runner.SetLookPath("cargo", "/usr/bin/cargo")
	loader := NewLoader(toolchain.New(runner, "cargo", "opt", nil), nil)

	_, err := loader.Load(context.Background(), LoadOptions{Flags: toolchain.CargoFlags{ManifestPath: manifest}, Dir: dir})
	require.Error(t, err)
	assert.Equal(t, auditerrors.BuildResolutionFailed, auditerrors.CodeOf(err))
}
