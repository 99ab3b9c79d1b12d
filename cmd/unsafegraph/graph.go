package main

import (
	"github.com/spf13/cobra"

	"unsafegraph/internal/audit"
)

var graphFailOnTaint bool

var graphCmd = &cobra.Command{
	Use:   "graph [findings-artifact]",
	Short: "Propagate taint from a previous scan",
	Long: `Load the findings written by "unsafegraph scan" and propagate taint over
the crate's call graph without rescanning. The artifact defaults to
findings.json (or findings.json.zst) in the artifact directory.

Examples:
  unsafegraph graph
  unsafegraph graph --skip-build
  unsafegraph graph target/unsafegraph/findings.json --graph callgraph.dot`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGraph,
}

func init() {
	graphCmd.Flags().BoolVar(&graphFailOnTaint, "fail-on-taint", false, "Exit with status 3 when any function is tainted")
	rootCmd.AddCommand(graphCmd)
}

func runGraph(cmd *cobra.Command, args []string) error {
	cfg, dir, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	factory := newLoggerFactory(cmd, cfg)
	defer closeLogs(factory)

	var findings string
	if len(args) == 1 {
		findings = args[0]
	}
	res, err := audit.New(cfg, dir, factory).RunGraph(cmd.Context(), findings)
	if err != nil {
		return err
	}
	if err := writeReport(cmd, cfg, dir, res.Report); err != nil {
		return err
	}
	if graphFailOnTaint && res.Report.Summary.Tainted > 0 {
		return errTainted
	}
	return nil
}
