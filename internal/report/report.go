// Package report renders audit results and reads and writes the findings
// handoff artifact.
package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"

	"unsafegraph/internal/callgraph"
	"unsafegraph/internal/diagnostics"
	"unsafegraph/internal/paths"
	"unsafegraph/internal/scanner"
	"unsafegraph/internal/symbols"
	"unsafegraph/internal/taint"
	"unsafegraph/internal/version"
)

// Tool is the tool name stamped into reports.
const Tool = "unsafegraph"

// Format selects a report renderer.
type Format string

const (
	FormatText  Format = "text"
	FormatHuman Format = "human"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatSARIF Format = "sarif"
)

// TaintedFunction is one member of the taint set.
type TaintedFunction struct {
	// Path is the normalised qualified path of the node.
	Path     string `json:"path" yaml:"path"`
	Label    string `json:"label" yaml:"label"`
	Distance int    `json:"distance" yaml:"distance"`
	Direct   bool   `json:"direct" yaml:"direct"`
	// Witness is a shortest call path from this function to unsafe code,
	// starting with the function itself.
	Witness  []string          `json:"witness,omitempty" yaml:"witness,omitempty"`
	Findings []scanner.Finding `json:"findings,omitempty" yaml:"findings,omitempty"`
}

// GraphInfo describes the call-graph artifact that was analysed.
type GraphInfo struct {
	Path          string `json:"path" yaml:"path"`
	Dialect       string `json:"dialect" yaml:"dialect"`
	Nodes         int    `json:"nodes" yaml:"nodes"`
	Edges         int    `json:"edges" yaml:"edges"`
	DanglingEdges int    `json:"danglingEdges" yaml:"danglingEdges"`
}

// Summary holds the headline counts of a run.
type Summary struct {
	Files        int `json:"files" yaml:"files"`
	NeverScanned int `json:"neverScanned" yaml:"neverScanned"`
	Markers      int `json:"markers" yaml:"markers"`
	Findings     int `json:"findings" yaml:"findings"`
	Direct       int `json:"direct" yaml:"direct"`
	Tainted      int `json:"tainted" yaml:"tainted"`
	Unobserved   int `json:"unobserved" yaml:"unobserved"`
	Cycles       int `json:"cycles" yaml:"cycles"`
}

// Report is the complete, render-ready result of an audit.
type Report struct {
	RunID         string    `json:"runId" yaml:"runId"`
	Tool          string    `json:"tool" yaml:"tool"`
	Version       string    `json:"version" yaml:"version"`
	GeneratedAt   time.Time `json:"generatedAt" yaml:"generatedAt"`
	Crate         string    `json:"crate" yaml:"crate"`
	WorkspaceRoot string    `json:"workspaceRoot" yaml:"workspaceRoot"`
	ScanSetDigest string    `json:"scanSetDigest,omitempty" yaml:"scanSetDigest,omitempty"`
	Graph         GraphInfo `json:"graph" yaml:"graph"`
	Summary       Summary   `json:"summary" yaml:"summary"`

	Files       []scanner.ScannedFile `json:"files" yaml:"files"`
	Findings    []scanner.Finding     `json:"findings" yaml:"findings"`
	Tainted     []TaintedFunction     `json:"tainted" yaml:"tainted"`
	Unobserved  []scanner.Finding     `json:"unobserved" yaml:"unobserved"`
	Cycles      [][]string            `json:"cycles,omitempty" yaml:"cycles,omitempty"`
	Diagnostics diagnostics.List      `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
}

// Input gathers the pipeline outputs a report is built from.
type Input struct {
	Crate         string
	WorkspaceRoot string
	ScanSetDigest string
	Scan          *scanner.Result
	Graph         *callgraph.Graph
	GraphPath     string
	GraphStats    callgraph.Stats
	Matches       *symbols.MatchSet
	Taint         *taint.Set
	Cycles        [][]int
	Diagnostics   diagnostics.List
}

// Build assembles a Report. Tainted functions keep the taint set order:
// nearest to unsafe code first, then by label.
func Build(in Input) *Report {
	r := &Report{
		RunID:         uuid.New().String(),
		Tool:          Tool,
		Version:       version.Version,
		GeneratedAt:   time.Now().UTC(),
		Crate:         in.Crate,
		WorkspaceRoot: in.WorkspaceRoot,
		ScanSetDigest: in.ScanSetDigest,
		Graph: GraphInfo{
			Path:          in.GraphPath,
			Dialect:       string(in.GraphStats.Dialect),
			Nodes:         in.GraphStats.Nodes,
			Edges:         in.GraphStats.Edges,
			DanglingEdges: in.GraphStats.DanglingEdges,
		},
		Files:       []scanner.ScannedFile{},
		Findings:    []scanner.Finding{},
		Tainted:     []TaintedFunction{},
		Unobserved:  []scanner.Finding{},
		Diagnostics: in.Diagnostics.Sorted(),
	}

	if in.Scan != nil {
		r.Files = append(r.Files, in.Scan.Files...)
		r.Findings = append(r.Findings, in.Scan.Findings...)
		r.Summary.Files = len(in.Scan.Files)
		r.Summary.Markers = in.Scan.MarkerTotal()
		for _, f := range in.Scan.Files {
			if !f.Scanned {
				r.Summary.NeverScanned++
			}
		}
	}
	if in.Matches != nil {
		r.Unobserved = append(r.Unobserved, in.Matches.Unobserved...)
	}

	if in.Graph != nil && in.Taint != nil {
		for _, e := range in.Taint.Members() {
			tf := TaintedFunction{
				Path:     displayName(in.Graph.Node(e.ID).Label),
				Label:    in.Graph.Node(e.ID).Label,
				Distance: e.Distance,
				Direct:   e.Direct(),
			}
			for _, label := range in.Taint.WitnessLabels(e.ID) {
				tf.Witness = append(tf.Witness, displayName(label))
			}
			if in.Matches != nil {
				tf.Findings = in.Matches.Direct[e.ID]
			}
			if tf.Direct {
				r.Summary.Direct++
			}
			r.Tainted = append(r.Tainted, tf)
		}
		for _, c := range in.Cycles {
			names := make([]string, len(c))
			for i, id := range c {
				names[i] = displayName(in.Graph.Node(id).Label)
			}
			sort.Strings(names)
			r.Cycles = append(r.Cycles, names)
		}
	}

	r.Summary.Findings = len(r.Findings)
	r.Summary.Tainted = len(r.Tainted)
	r.Summary.Unobserved = len(r.Unobserved)
	r.Summary.Cycles = len(r.Cycles)
	return r
}

// displayName is the normalised label with generic arguments and synthetic
// segments kept, so distinct instantiations stay distinct.
func displayName(label string) string {
	return symbols.Normalize(label).Full
}

// relPath renders a source path relative to the workspace root.
func (r *Report) relPath(path string) string {
	return paths.Display(path, r.WorkspaceRoot)
}

// Options controls rendering.
type Options struct {
	// Witness annotates tainted functions with their call path to unsafe
	// code.
	Witness bool
}

// Write renders r in the given format.
func Write(w io.Writer, r *Report, format Format, opts Options) error {
	switch format {
	case FormatText, "":
		return WriteText(w, r, opts)
	case FormatHuman:
		return WriteHuman(w, r, opts)
	case FormatJSON:
		return WriteJSON(w, r)
	case FormatYAML:
		return WriteYAML(w, r)
	case FormatSARIF:
		return WriteSARIF(w, r)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}
