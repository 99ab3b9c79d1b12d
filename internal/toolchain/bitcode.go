package toolchain

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	auditerrors "unsafegraph/internal/errors"
	"unsafegraph/internal/slogutil"
)

// Flags used when emitting bitcode. Optimisation and LTO are disabled so the
// call graph keeps as many source-level call edges as possible.
const (
	bitcodeRustFlags = "-C lto=no -C opt-level=0 -C debuginfo=2"
	defaultProfile   = "debug"
)

// Toolchain drives cargo and opt.
type Toolchain struct {
	runner Runner
	cargo  string
	opt    string
	logger *slog.Logger
}

// New creates a Toolchain. Empty binary names default to cargo and opt.
func New(runner Runner, cargoBin, optBin string, logger *slog.Logger) *Toolchain {
	if cargoBin == "" {
		cargoBin = "cargo"
	}
	if optBin == "" {
		optBin = "opt"
	}
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}
	return &Toolchain{runner: runner, cargo: cargoBin, opt: optBin, logger: logger}
}

// Cargo runs cargo with args in dir and returns stdout. When cargo exits
// non-zero the partial stdout is returned alongside the error.
func (t *Toolchain) Cargo(ctx context.Context, dir string, env []string, args ...string) ([]byte, error) {
	return t.run(ctx, Command{Name: t.cargo, Args: args, Dir: dir, Env: env})
}

func (t *Toolchain) run(ctx context.Context, c Command) ([]byte, error) {
	if _, err := t.runner.LookPath(c.Name); err != nil {
		return nil, auditerrors.New(auditerrors.ToolFailed, c.Name+" is not installed", err, []auditerrors.FixAction{
			{Type: auditerrors.InstallTool, Tool: c.Name, Description: "Install " + c.Name + " and make sure it is on PATH"},
		})
	}

	t.logger.Debug("Executing command", "cmd", c.String(), "dir", c.Dir)

	stdout, stderr, err := t.runner.Run(ctx, c)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout, auditerrors.New(auditerrors.ToolFailed, c.Name+" failed", err, nil).
				WithDetails(map[string]interface{}{
					"args":     c.Args,
					"exitCode": exitErr.ExitCode(),
					"stderr":   strings.TrimSpace(string(stderr)),
				})
		}
		return nil, auditerrors.New(auditerrors.ToolFailed, "failed to execute "+c.Name, err, nil).
			WithDetails(map[string]interface{}{
				"args":   c.Args,
				"stderr": strings.TrimSpace(string(stderr)),
			})
	}
	return stdout, nil
}

// BitcodeOptions selects the crate whose bitcode is emitted.
type BitcodeOptions struct {
	Flags CargoFlags
	// Dir is the package directory cargo runs in.
	Dir string
	// Clean runs `cargo clean` first so stale bitcode cannot be picked up.
	Clean bool
}

// EmitBitcode builds the package with `--emit=llvm-bc`.
func (t *Toolchain) EmitBitcode(ctx context.Context, opts BitcodeOptions) error {
	if opts.Clean {
		args := []string{"clean"}
		if opts.Flags.ManifestPath != "" {
			args = append(args, "--manifest-path", opts.Flags.ManifestPath)
		}
		if _, err := t.Cargo(ctx, opts.Dir, nil, args...); err != nil {
			return err
		}
	}

	args := opts.Flags.BuildArgs("rustc")
	args = append(args, "--", "--emit=llvm-bc")
	env := []string{
		"RUSTFLAGS=" + bitcodeRustFlags,
		"CARGO_INCREMENTAL=0",
	}

	t.logger.Info("Emitting LLVM bitcode", "dir", opts.Dir)
	_, err := t.Cargo(ctx, opts.Dir, env, args...)
	return err
}

// FindBitcode returns the newest `<crate>-*.bc` under the deps directory of
// each target dir, trying them in order. target is the optional target
// triple the build was made for.
func FindBitcode(targetDirs []string, target, crateName string) (string, error) {
	crate := strings.ReplaceAll(crateName, "-", "_")
	for _, dir := range targetDirs {
		if dir == "" {
			continue
		}
		base := dir
		if target != "" {
			base = filepath.Join(base, target)
		}
		matches, err := filepath.Glob(filepath.Join(base, defaultProfile, "deps", crate+"-*.bc"))
		if err != nil {
			return "", err
		}
		if len(matches) == 0 {
			continue
		}
		return newest(matches), nil
	}
	return "", auditerrors.Newf(auditerrors.ToolFailed, "no bitcode found for crate %s", crateName).
		WithDetails(map[string]interface{}{"searched": targetDirs})
}

func newest(paths []string) string {
	sort.Strings(paths)
	best := paths[0]
	var bestMod int64
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if m := info.ModTime().UnixNano(); m > bestMod {
			best, bestMod = p, m
		}
	}
	return best
}

// DumpCallGraph runs opt's call-graph printer on bitcode, writing
// `<crate>.callgraph.dot` into outDir. Older opt releases only know the
// legacy pass flag, which writes `callgraph.dot` into the working directory.
func (t *Toolchain) DumpCallGraph(ctx context.Context, bitcode, outDir, crateName string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	prefix := filepath.Join(outDir, strings.ReplaceAll(crateName, "-", "_"))

	t.logger.Info("Dumping call graph", "bitcode", bitcode, "out", outDir)

	_, err := t.run(ctx, Command{
		Name: t.opt,
		Args: []string{"-passes=dot-callgraph", "-callgraph-dot-filename-prefix=" + prefix, "-disable-output", bitcode},
		Dir:  outDir,
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}

	t.logger.Debug("New pass manager invocation failed, retrying legacy flag", "error", err)
	_, legacyErr := t.run(ctx, Command{
		Name: t.opt,
		Args: []string{"-dot-callgraph", "-disable-output", bitcode},
		Dir:  outDir,
	})
	if legacyErr != nil {
		return err
	}
	return nil
}
