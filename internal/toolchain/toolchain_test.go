package toolchain

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditerrors "unsafegraph/internal/errors"
)

func TestCargoFlags_MetadataArgs(t *testing.T) {
	f := CargoFlags{
		ManifestPath: "crate/Cargo.toml",
		Features:     []string{"std alloc", "simd"},
		Frozen:       true,
		Unstable:     []string{"unstable-options"},
		Jobs:         4,
	}

	args := f.MetadataArgs()
	joined := strings.Join(args, " ")

	assert.True(t, strings.HasPrefix(joined, "metadata --format-version 1"))
	assert.Contains(t, joined, "--features std,alloc,simd")
	assert.Contains(t, joined, "--manifest-path crate/Cargo.toml")
	assert.Contains(t, joined, "--frozen")
	assert.Contains(t, joined, "-Z unstable-options")
	assert.NotContains(t, joined, "--jobs", "cargo metadata does not accept --jobs")
}

func TestCargoFlags_BuildArgs(t *testing.T) {
	f := CargoFlags{AllFeatures: true, Target: "x86_64-unknown-linux-gnu", Jobs: 2, Verbose: 3, Color: "never"}

	args := f.BuildArgs("check", "--message-format=json")

	assert.Equal(t, "check", args[0])
	assert.Equal(t, "--message-format=json", args[1])
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "--all-features")
	assert.Contains(t, joined, "--target x86_64-unknown-linux-gnu")
	assert.Contains(t, joined, "--jobs 2")
	assert.Contains(t, joined, "--color never")
	assert.Equal(t, 2, strings.Count(joined, "--verbose"))
}

func TestSplitFeatures(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SplitFeatures([]string{"a b", "c"}))
	assert.Equal(t, []string{"x", "y"}, SplitFeatures([]string{"x,y"}))
	assert.Nil(t, SplitFeatures([]string{"  "}))
}

func TestEmitBitcode(t *testing.T) {
	runner := NewMockRunner()
	runner.SetLookPath("cargo", "/usr/bin/cargo")
	runner.SetCommand("cargo", "", "", nil)

	tc := New(runner, "", "", nil)
	err := tc.EmitBitcode(context.Background(), BitcodeOptions{Dir: "/work", Clean: true})
	require.NoError(t, err)

	calls := runner.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []string{"clean"}, calls[0].Args)

	rustc := calls[1]
	assert.Equal(t, "rustc", rustc.Args[0])
	assert.Equal(t, []string{"--", "--emit=llvm-bc"}, rustc.Args[len(rustc.Args)-2:])
	assert.Contains(t, rustc.Env, "RUSTFLAGS=-C lto=no -C opt-level=0 -C debuginfo=2")
	assert.Contains(t, rustc.Env, "CARGO_INCREMENTAL=0")
	assert.Equal(t, "/work", rustc.Dir)
}

func TestRun_MissingBinary(t *testing.T) {
	tc := New(NewMockRunner(), "cargo", "opt", nil)

	_, err := tc.Cargo(context.Background(), "", nil, "metadata")
	require.Error(t, err)
	assert.Equal(t, auditerrors.ToolFailed, auditerrors.CodeOf(err))

	var ae *auditerrors.AuditError
	require.ErrorAs(t, err, &ae)
	require.NotEmpty(t, ae.SuggestedFixes)
	assert.Equal(t, auditerrors.InstallTool, ae.SuggestedFixes[0].Type)
}

func TestRun_ExitErrorCarriesStderr(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	tc := New(NewExecRunner(), "sh", "", nil)

	_, err := tc.Cargo(context.Background(), "", nil, "-c", "echo boom >&2; exit 3")
	require.Error(t, err)

	var ae *auditerrors.AuditError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, auditerrors.ToolFailed, ae.Code)
	details, ok := ae.Details.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "boom", details["stderr"])
	assert.Equal(t, 3, details["exitCode"])
}

func TestFindBitcode(t *testing.T) {
	root := t.TempDir()
	parent := filepath.Join(root, "target")
	child := filepath.Join(root, "crate", "target")

	deps := filepath.Join(parent, "debug", "deps")
	require.NoError(t, os.MkdirAll(deps, 0o755))
	old := filepath.Join(deps, "my_crate-aaaa.bc")
	recent := filepath.Join(deps, "my_crate-bbbb.bc")
	require.NoError(t, os.WriteFile(old, nil, 0o644))
	require.NoError(t, os.WriteFile(recent, nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(deps, "other-cccc.bc"), nil, 0o644))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	got, err := FindBitcode([]string{child, parent}, "", "my-crate")
	require.NoError(t, err)
	assert.Equal(t, recent, got)

	_, err = FindBitcode([]string{child}, "", "my-crate")
	require.Error(t, err)
	assert.Equal(t, auditerrors.ToolFailed, auditerrors.CodeOf(err))
}

func TestDumpCallGraph_FallsBackToLegacyFlag(t *testing.T) {
	runner := NewMockRunner()
	runner.SetLookPath("opt", "/usr/bin/opt")
	out := t.TempDir()

	newPM := Command{Name: "opt", Args: []string{"-passes=dot-callgraph", "-callgraph-dot-filename-prefix=" + filepath.Join(out, "my_crate"), "-disable-output", "x.bc"}}
	legacy := Command{Name: "opt", Args: []string{"-dot-callgraph", "-disable-output", "x.bc"}}
	runner.SetCommand(newPM.String(), "", "unknown pass name", &exec.ExitError{})
	runner.SetCommand(legacy.String(), "", "", nil)

	tc := New(runner, "", "", nil)
	require.NoError(t, tc.DumpCallGraph(context.Background(), "x.bc", out, "my-crate"))

	calls := runner.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, legacy.Args, calls[1].Args)
	assert.Equal(t, out, calls[1].Dir)
}
