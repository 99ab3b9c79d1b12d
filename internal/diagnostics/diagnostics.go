// Package diagnostics collects the soft conditions of an analysis run
// (missing dep-info, parse failures, never-scanned files, unobserved findings)
// so callers can assert on them instead of scraping log output.
package diagnostics

import (
	"log/slog"
	"sort"

	"unsafegraph/internal/errors"
)

// Kind identifies the class of a diagnostic.
type Kind string

const (
	KindDependencyInfoMissing Kind = "dependency-info-missing"
	KindDeclaredNotScanned    Kind = "declared-not-scanned"
	KindNeverScanned          Kind = "never-scanned"
	KindParseError            Kind = "parse-error"
	KindUnobserved            Kind = "unobserved"
	KindDanglingEdge          Kind = "dangling-edge"
)

// Severity is the reporting level of a diagnostic.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

var severityRank = map[Severity]int{
	SeverityWarning: 2,
	SeverityInfo:    1,
}

// Diagnostic is one soft condition observed during analysis.
type Diagnostic struct {
	Kind     Kind             `json:"kind" yaml:"kind"`
	Code     errors.ErrorCode `json:"code,omitempty" yaml:"code,omitempty"`
	Severity Severity         `json:"severity" yaml:"severity"`
	Path     string           `json:"path,omitempty" yaml:"path,omitempty"`
	Symbol   string           `json:"symbol,omitempty" yaml:"symbol,omitempty"`
	Message  string           `json:"message" yaml:"message"`
}

// List is an append-only collection of diagnostics.
type List []Diagnostic

// Add appends a diagnostic.
func (l *List) Add(d Diagnostic) {
	if d.Severity == "" {
		d.Severity = SeverityWarning
	}
	*l = append(*l, d)
}

// Merge appends every diagnostic of other.
func (l *List) Merge(other List) {
	*l = append(*l, other...)
}

// OfKind returns the diagnostics of the given kind, in insertion order.
func (l List) OfKind(kind Kind) List {
	var out List
	for _, d := range l {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

// Count returns how many diagnostics of the given kind were recorded.
func (l List) Count(kind Kind) int {
	n := 0
	for _, d := range l {
		if d.Kind == kind {
			n++
		}
	}
	return n
}

// Sorted returns a copy ordered by severity DESC, kind, path, symbol, message.
func (l List) Sorted() List {
	out := make(List, len(l))
	copy(out, l)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if severityRank[a.Severity] != severityRank[b.Severity] {
			return severityRank[a.Severity] > severityRank[b.Severity]
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		return a.Message < b.Message
	})
	return out
}

// Log emits every diagnostic to logger at a level matching its severity.
func (l List) Log(logger *slog.Logger) {
	for _, d := range l {
		attrs := []any{"kind", string(d.Kind)}
		if d.Path != "" {
			attrs = append(attrs, "path", d.Path)
		}
		if d.Symbol != "" {
			attrs = append(attrs, "symbol", d.Symbol)
		}
		if d.Severity == SeverityInfo {
			logger.Info(d.Message, attrs...)
		} else {
			logger.Warn(d.Message, attrs...)
		}
	}
}
