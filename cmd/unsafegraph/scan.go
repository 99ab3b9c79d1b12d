package main

import (
	"io"

	"github.com/spf13/cobra"

	"unsafegraph/internal/audit"
	"unsafegraph/internal/report"
)

var scanNoArtifact bool

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Count unsafe markers in every file of the build",
	Long: `Resolve the files compiled in the selected build configuration and count
the unsafe markers in each. Files that could not be scanned, such as code
generated outside any package root, are flagged as never scanned.

The findings are written to the findings artifact so a later
"unsafegraph graph" run can reuse them without rescanning.

Examples:
  unsafegraph scan
  unsafegraph scan --include-tests --format json`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&scanNoArtifact, "no-artifact", false, "Do not write the findings artifact")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, dir, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if scanNoArtifact {
		cfg.Report.FindingsArtifact = ""
	}
	factory := newLoggerFactory(cmd, cfg)
	defer closeLogs(factory)

	a := audit.New(cfg, dir, factory)
	out, err := a.Scan(cmd.Context())
	if err != nil {
		return err
	}
	if _, err := a.WriteFindings(out); err != nil {
		return err
	}

	r := audit.ScanReport(out)
	if report.Format(cfg.Report.Format) == report.FormatText {
		return withOutput(cmd, cfg, dir, func(w io.Writer) error {
			return report.WriteFileCounts(w, r)
		})
	}
	return writeReport(cmd, cfg, dir, r)
}
