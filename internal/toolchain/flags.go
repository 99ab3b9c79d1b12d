package toolchain

import (
	"strconv"
	"strings"
)

// CargoFlags are the options forwarded to every cargo invocation.
type CargoFlags struct {
	ManifestPath      string
	Features          []string
	AllFeatures       bool
	NoDefaultFeatures bool
	Target            string
	Jobs              int
	Verbose           int
	Quiet             bool
	Color             string
	Frozen            bool
	Locked            bool
	Unstable          []string
}

// SplitFeatures splits feature lists given as space or comma separated
// strings, the way cargo accepts them.
func SplitFeatures(raw []string) []string {
	var out []string
	for _, r := range raw {
		for _, f := range strings.FieldsFunc(r, func(c rune) bool { return c == ' ' || c == ',' }) {
			out = append(out, f)
		}
	}
	return out
}

// common returns flags accepted by all cargo subcommands used here.
func (f CargoFlags) common() []string {
	var args []string
	if f.ManifestPath != "" {
		args = append(args, "--manifest-path", f.ManifestPath)
	}
	if f.Frozen {
		args = append(args, "--frozen")
	}
	if f.Locked {
		args = append(args, "--locked")
	}
	if f.Color != "" {
		args = append(args, "--color", f.Color)
	}
	if f.Quiet {
		args = append(args, "--quiet")
	}
	for i := 0; i < f.Verbose && i < 2; i++ {
		args = append(args, "--verbose")
	}
	for _, z := range f.Unstable {
		args = append(args, "-Z", z)
	}
	return args
}

func (f CargoFlags) features() []string {
	var args []string
	if feats := SplitFeatures(f.Features); len(feats) > 0 {
		args = append(args, "--features", strings.Join(feats, ","))
	}
	if f.AllFeatures {
		args = append(args, "--all-features")
	}
	if f.NoDefaultFeatures {
		args = append(args, "--no-default-features")
	}
	return args
}

// MetadataArgs returns the arguments for `cargo metadata`.
func (f CargoFlags) MetadataArgs() []string {
	args := []string{"metadata", "--format-version", "1"}
	args = append(args, f.features()...)
	if f.Target != "" {
		args = append(args, "--filter-platform", f.Target)
	}
	return append(args, f.common()...)
}

// BuildArgs returns the arguments for a compiling subcommand such as
// `check` or `rustc`, without any trailing `--` section.
func (f CargoFlags) BuildArgs(subcommand string, extra ...string) []string {
	args := []string{subcommand}
	args = append(args, extra...)
	args = append(args, f.features()...)
	if f.Target != "" {
		args = append(args, "--target", f.Target)
	}
	if f.Jobs > 0 {
		args = append(args, "--jobs", strconv.Itoa(f.Jobs))
	}
	return append(args, f.common()...)
}
