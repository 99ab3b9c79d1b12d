package testutil

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

var tempDirRe = regexp.MustCompile(`(?:/tmp/|/var/folders/[^/]+/[^/]+/[^/]+/|C:/Users/[^/]+/AppData/Local/Temp/)[^/\s"]+`)

// NormalizeText replaces the fixture root with `<fixture>` and temp
// directories with `<tempdir>`. On Windows path separators become forward
// slashes.
func NormalizeText(s, fixtureRoot string) string {
	if fixtureRoot != "" {
		s = strings.ReplaceAll(s, fixtureRoot, "<fixture>")
		s = strings.ReplaceAll(s, filepath.ToSlash(fixtureRoot), "<fixture>")
	}
	if filepath.Separator == '\\' {
		s = strings.ReplaceAll(s, "\\", "/")
	}
	return tempDirRe.ReplaceAllString(s, "<tempdir>")
}

var volatileFields = map[string]bool{
	"runId":       true,
	"generatedAt": true,
	"version":     true,
	"duration":    true,
}

// Normalize deep-copies data through JSON and drops volatile fields.
func Normalize(t *testing.T, data any) any {
	t.Helper()

	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("Failed to marshal data for normalization: %v", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("Failed to unmarshal data for normalization: %v", err)
	}
	return dropVolatile(out)
}

func dropVolatile(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, item := range val {
			if volatileFields[k] {
				delete(val, k)
				continue
			}
			val[k] = dropVolatile(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = dropVolatile(item)
		}
		return val
	default:
		return v
	}
}

// MarshalNormalized normalizes data and marshals it to stable JSON bytes
// with sorted keys, 2-space indentation and a trailing newline.
func MarshalNormalized(t *testing.T, fixture *FixtureContext, data any) []byte {
	t.Helper()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Normalize(t, data)); err != nil {
		t.Fatalf("Failed to marshal normalized data: %v", err)
	}
	return []byte(NormalizeText(buf.String(), fixture.Root))
}
