package diagnostics

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestList_AddDefaultsSeverity(t *testing.T) {
	var l List
	l.Add(Diagnostic{Kind: KindParseError, Path: "src/a.rs", Message: "parse failed"})

	require.Len(t, l, 1)
	assert.Equal(t, SeverityWarning, l[0].Severity)
}

func TestList_OfKindAndCount(t *testing.T) {
	var l List
	l.Add(Diagnostic{Kind: KindUnobserved, Symbol: "m::f", Message: "unobserved"})
	l.Add(Diagnostic{Kind: KindNeverScanned, Severity: SeverityInfo, Path: "gen.rs", Message: "never scanned"})
	l.Add(Diagnostic{Kind: KindUnobserved, Symbol: "m::g", Message: "unobserved"})

	assert.Equal(t, 2, l.Count(KindUnobserved))
	assert.Equal(t, 0, l.Count(KindParseError))
	got := l.OfKind(KindUnobserved)
	require.Len(t, got, 2)
	assert.Equal(t, "m::f", got[0].Symbol)
	assert.Equal(t, "m::g", got[1].Symbol)
}

func TestList_Sorted(t *testing.T) {
	l := List{
		{Kind: KindNeverScanned, Severity: SeverityInfo, Path: "b.rs", Message: "x"},
		{Kind: KindParseError, Severity: SeverityWarning, Path: "z.rs", Message: "x"},
		{Kind: KindNeverScanned, Severity: SeverityInfo, Path: "a.rs", Message: "x"},
		{Kind: KindDependencyInfoMissing, Severity: SeverityWarning, Path: "y.d", Message: "x"},
	}

	sorted := l.Sorted()

	assert.Equal(t, "y.d", sorted[0].Path)
	assert.Equal(t, "z.rs", sorted[1].Path)
	assert.Equal(t, "a.rs", sorted[2].Path)
	assert.Equal(t, "b.rs", sorted[3].Path)
	// original untouched
	assert.Equal(t, "b.rs", l[0].Path)
}

func TestList_Merge(t *testing.T) {
	var a, b List
	a.Add(Diagnostic{Kind: KindParseError, Message: "one"})
	b.Add(Diagnostic{Kind: KindParseError, Message: "two"})
	a.Merge(b)
	assert.Len(t, a, 2)
}

func TestList_Log(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	l := List{
		{Kind: KindNeverScanned, Severity: SeverityInfo, Path: "gen.rs", Message: "Dependency file was never scanned"},
		{Kind: KindParseError, Severity: SeverityWarning, Path: "bad.rs", Message: "Failed to parse file"},
	}
	l.Log(logger)

	out := buf.String()
	assert.True(t, strings.Contains(out, "level=INFO"))
	assert.True(t, strings.Contains(out, "level=WARN"))
	assert.True(t, strings.Contains(out, "path=gen.rs"))
}
