package callgraph

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	auditerrors "unsafegraph/internal/errors"
)

// DefaultArtifact is the file the legacy opt pass writes.
const DefaultArtifact = "callgraph.dot"

var artifactPatterns = []string{"*.dot", "*.dot.zst", "*.cg", "*.cg.zst"}

// Locate selects the call-graph artifact for pkgName in dir. Artifacts named
// after the crate (`<crate>.*` or `<crate>-*`) win, newest first; otherwise
// a lone callgraph.dot is used.
func Locate(dir, pkgName string) (string, error) {
	var candidates []string
	for _, pattern := range artifactPatterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return "", err
		}
		candidates = append(candidates, matches...)
	}

	var named []string
	for _, c := range candidates {
		if namedFor(filepath.Base(c), pkgName) {
			named = append(named, c)
		}
	}
	if len(named) > 0 {
		return newest(named), nil
	}

	fallback := filepath.Join(dir, DefaultArtifact)
	if info, err := os.Stat(fallback); err == nil && !info.IsDir() {
		return fallback, nil
	}

	return "", auditerrors.Newf(auditerrors.GraphArtifactNotFound,
		"no call-graph artifact for package %s in %s", pkgName, dir).
		WithDetails(map[string]interface{}{"dir": dir, "candidates": candidates})
}

// namedFor reports whether base is an artifact of crate pkgName: the crate
// name, with `-` and `_` equivalent, followed by `.` or `-`. `foo` does not
// claim `foo_bar.callgraph.dot`.
func namedFor(base, pkgName string) bool {
	if pkgName == "" || len(base) <= len(pkgName) {
		return false
	}
	norm := func(s string) string { return strings.ReplaceAll(s, "-", "_") }
	if norm(base[:len(pkgName)]) != norm(pkgName) {
		return false
	}
	switch base[len(pkgName)] {
	case '.', '-':
		return true
	}
	return false
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

// Open opens an artifact, transparently decompressing `.zst` files.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".zst") {
		return f, nil
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &zstdFile{Decoder: dec, f: f}, nil
}

type zstdFile struct {
	*zstd.Decoder
	f *os.File
}

func (z *zstdFile) Close() error {
	z.Decoder.Close()
	return z.f.Close()
}

// Load opens and parses the artifact at path.
func Load(path string) (*Graph, Stats, error) {
	rc, err := Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Stats{}, auditerrors.New(auditerrors.GraphArtifactNotFound, "call-graph artifact does not exist: "+path, err, nil)
		}
		return nil, Stats{}, err
	}
	defer func() { _ = rc.Close() }()
	return Parse(rc)
}
