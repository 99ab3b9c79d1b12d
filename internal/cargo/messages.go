package cargo

import (
	"bufio"
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
)

// artifactMessage is a `compiler-artifact` line of
// `cargo check --message-format=json`.
type artifactMessage struct {
	Reason       string `json:"reason"`
	PackageID    string `json:"package_id"`
	ManifestPath string `json:"manifest_path"`
	Target       struct {
		Name    string   `json:"name"`
		Kind    []string `json:"kind"`
		SrcPath string   `json:"src_path"`
	} `json:"target"`
	Profile struct {
		Test bool `json:"test"`
	} `json:"profile"`
	Features  []string `json:"features"`
	Filenames []string `json:"filenames"`
	// OutDir is set on build-script-executed messages.
	OutDir string `json:"out_dir"`
}

// Messages is the decoded output of a cargo build command.
type Messages struct {
	Units []BuildUnit
	// OutDirs maps package ids to the OUT_DIR of their executed build script.
	OutDirs map[string]string
	// Errors counts compiler error diagnostics.
	Errors int
}

// ParseMessages decodes the JSON message stream of a cargo build command.
// Lines that are not JSON (cargo forwards some tool output verbatim) are
// ignored.
func ParseMessages(data []byte) (*Messages, error) {
	out := &Messages{OutDirs: map[string]string{}}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}

		var msg artifactMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			continue
		}

		switch msg.Reason {
		case "compiler-artifact":
			out.Units = append(out.Units, BuildUnit{
				PackageID:    msg.PackageID,
				PackageName:  packageNameFromID(msg.PackageID),
				ManifestPath: msg.ManifestPath,
				TargetName:   msg.Target.Name,
				TargetKinds:  msg.Target.Kind,
				Features:     msg.Features,
				Test:         msg.Profile.Test,
				SrcPath:      msg.Target.SrcPath,
				DepInfoPath:  DepInfoPath(msg.Filenames),
			})
		case "build-script-executed":
			if msg.OutDir != "" {
				out.OutDirs[msg.PackageID] = msg.OutDir
			}
		case "compiler-message":
			if isErrorMessage(line) {
				out.Errors++
			}
		}
	}
	return out, scanner.Err()
}

func isErrorMessage(line []byte) bool {
	var m struct {
		Message struct {
			Level string `json:"level"`
		} `json:"message"`
	}
	if err := json.Unmarshal(line, &m); err != nil {
		return false
	}
	return m.Message.Level == "error"
}

var artifactExts = map[string]bool{
	".rmeta": true, ".rlib": true, ".so": true, ".dylib": true,
	".dll": true, ".exe": true, ".a": true, ".lib": true,
}

// DepInfoPath derives the dep-info file of a unit from the files it emitted:
// `deps/libfoo-1234.rmeta` has its record in `deps/foo-1234.d`.
func DepInfoPath(filenames []string) string {
	for _, f := range filenames {
		dir, base := filepath.Split(f)
		ext := filepath.Ext(base)
		if artifactExts[ext] {
			base = strings.TrimSuffix(base, ext)
		}
		if ext == ".rmeta" || ext == ".rlib" || ext == ".a" || ext == ".so" || ext == ".dylib" {
			base = strings.TrimPrefix(base, "lib")
		}
		if base == "" {
			continue
		}
		return filepath.Join(dir, base+".d")
	}
	return ""
}

// packageNameFromID extracts the package name from both package id formats:
// `name version (source)` and `source#name@version`.
func packageNameFromID(id string) string {
	if i := strings.IndexByte(id, ' '); i > 0 && !strings.Contains(id[:i], "#") {
		return id[:i]
	}
	if i := strings.LastIndexByte(id, '#'); i >= 0 {
		rest := id[i+1:]
		if j := strings.IndexByte(rest, '@'); j >= 0 {
			return rest[:j]
		}
		// `path+file:///x/foo#0.1.0`: the name is the last path segment
		base := strings.TrimRight(id[:i], "/")
		return base[strings.LastIndexByte(base, '/')+1:]
	}
	return id
}
