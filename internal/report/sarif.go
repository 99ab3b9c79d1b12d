package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/owenrumney/go-sarif/v2/sarif"

	"unsafegraph/internal/scanner"
)

const informationURI = "https://github.com/unsafegraph/unsafegraph"

// SARIF rule ids.
const (
	RuleUnsafeCode   = "unsafe-code"
	RuleReachable    = "reaches-unsafe"
	RuleUnobserved   = "unobserved-unsafe"
	RuleNeverScanned = "never-scanned"
)

// WriteSARIF writes r as a SARIF 2.1.0 log. Every finding becomes a result
// located at its marker; functions that only reach unsafe code transitively
// have no source location and carry their call path in the message.
func WriteSARIF(w io.Writer, r *Report) error {
	log, err := sarif.New(sarif.Version210)
	if err != nil {
		return fmt.Errorf("failed to create SARIF report: %w", err)
	}

	run := sarif.NewRunWithInformationURI(Tool, informationURI)
	run.AddRule(RuleUnsafeCode).
		WithDescription("Unsafe code: compiler safety guarantees are suspended here").
		WithDefaultConfiguration(&sarif.ReportingConfiguration{Level: "warning"})
	run.AddRule(RuleReachable).
		WithDescription("Function can reach unsafe code through its callees").
		WithDefaultConfiguration(&sarif.ReportingConfiguration{Level: "note"})
	run.AddRule(RuleUnobserved).
		WithDescription("Unsafe code present but not found in the call graph").
		WithDefaultConfiguration(&sarif.ReportingConfiguration{Level: "note"})
	run.AddRule(RuleNeverScanned).
		WithDescription("Source file used by the build that was never scanned").
		WithDefaultConfiguration(&sarif.ReportingConfiguration{Level: "note"})

	unobserved := make(map[string]bool, len(r.Unobserved))
	for _, f := range r.Unobserved {
		unobserved[f.Key()] = true
	}

	for _, f := range r.Findings {
		run.AddResult(sarif.NewRuleResult(RuleUnsafeCode).
			WithMessage(sarif.NewTextMessage(findingMessage(f))).
			WithLevel("warning").
			WithLocations([]*sarif.Location{r.location(f.File, f.Line)}))

		if unobserved[f.Key()] {
			run.AddResult(sarif.NewRuleResult(RuleUnobserved).
				WithMessage(sarif.NewTextMessage(f.Path + " was not found in the call graph")).
				WithLevel("note").
				WithLocations([]*sarif.Location{r.location(f.File, f.Line)}))
		}
	}

	for _, tf := range r.Tainted {
		if tf.Direct {
			continue
		}
		run.AddResult(sarif.NewRuleResult(RuleReachable).
			WithMessage(sarif.NewTextMessage(fmt.Sprintf("%s reaches unsafe code: %s", tf.Path, strings.Join(tf.Witness, " -> ")))).
			WithLevel("note"))
	}

	for _, f := range r.Files {
		if f.Scanned {
			continue
		}
		run.AddResult(sarif.NewRuleResult(RuleNeverScanned).
			WithMessage(sarif.NewTextMessage("Dependency file was never scanned")).
			WithLevel("note").
			WithLocations([]*sarif.Location{r.location(f.Path, 0)}))
	}

	log.AddRun(run)
	return log.PrettyWrite(w)
}

func (r *Report) location(file string, line int) *sarif.Location {
	phys := sarif.NewPhysicalLocation().
		WithArtifactLocation(sarif.NewArtifactLocation().WithUri(r.relPath(file)))
	if line > 0 {
		phys = phys.WithRegion(sarif.NewRegion().WithStartLine(line))
	}
	return sarif.NewLocation().WithPhysicalLocation(phys)
}

func findingMessage(f scanner.Finding) string {
	switch f.Kind {
	case scanner.KindUnsafeFn:
		return "unsafe fn " + f.Path
	case scanner.KindUnsafeImpl:
		return "unsafe impl for " + f.Path
	case scanner.KindUnsafeAttribute:
		return "unsafe attribute on " + f.Path
	default:
		return "unsafe block in " + f.Path
	}
}
