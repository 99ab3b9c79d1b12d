package report

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"unsafegraph/internal/diagnostics"
	"unsafegraph/internal/scanner"
	"unsafegraph/internal/version"
)

// ArtifactVersion is the schema version of the findings artifact.
const ArtifactVersion = 1

// DefaultFindingsArtifact is the artifact file name.
const DefaultFindingsArtifact = "findings.json"

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// FindingsArtifact is the scan phase output handed to a later graph-only
// run, so findings need not be rescanned.
type FindingsArtifact struct {
	Version       int                   `json:"version"`
	Tool          string                `json:"tool"`
	ToolVersion   string                `json:"toolVersion"`
	GeneratedAt   time.Time             `json:"generatedAt"`
	Crate         string                `json:"crate"`
	PackageName   string                `json:"packageName"`
	WorkspaceRoot string                `json:"workspaceRoot"`
	TargetDir     string                `json:"targetDir,omitempty"`
	ScanSetDigest string                `json:"scanSetDigest"`
	Files         []scanner.ScannedFile `json:"files"`
	Findings      []scanner.Finding     `json:"findings"`
	Diagnostics   diagnostics.List      `json:"diagnostics,omitempty"`
}

// Result rebuilds the scan result carried by the artifact.
func (a *FindingsArtifact) Result() *scanner.Result {
	return &scanner.Result{
		Files:       a.Files,
		Findings:    scanner.SortFindings(append([]scanner.Finding(nil), a.Findings...)),
		Diagnostics: a.Diagnostics,
	}
}

// WriteFindings writes a to path, zstd-compressed when compress is set or
// path ends in .zst. A .zst suffix is appended when compressing. The final
// path is returned.
func WriteFindings(path string, a *FindingsArtifact, compress bool) (string, error) {
	if compress && !strings.HasSuffix(path, ".zst") {
		path += ".zst"
	}
	compress = compress || strings.HasSuffix(path, ".zst")

	a.Version = ArtifactVersion
	a.Tool = Tool
	a.ToolVersion = version.Version
	if a.GeneratedAt.IsZero() {
		a.GeneratedAt = time.Now().UTC()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	var w io.Writer = f
	var enc *zstd.Encoder
	if compress {
		enc, err = zstd.NewWriter(f)
		if err != nil {
			return "", err
		}
		w = enc
	}

	je := json.NewEncoder(w)
	je.SetIndent("", "  ")
	if err := je.Encode(a); err != nil {
		return "", fmt.Errorf("encode findings artifact: %w", err)
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return "", err
		}
	}
	return path, f.Close()
}

// ReadFindings reads a findings artifact, decompressing zstd content
// regardless of the file name.
func ReadFindings(path string) (*FindingsArtifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	br := bufio.NewReader(f)
	var r io.Reader = br
	if head, _ := br.Peek(len(zstdMagic)); bytes.Equal(head, zstdMagic) {
		dec, err := zstd.NewReader(br)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		r = dec
	}

	var a FindingsArtifact
	if err := json.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("decode findings artifact %s: %w", path, err)
	}
	if a.Version != ArtifactVersion {
		return nil, fmt.Errorf("findings artifact %s has version %d, want %d", path, a.Version, ArtifactVersion)
	}
	return &a, nil
}
