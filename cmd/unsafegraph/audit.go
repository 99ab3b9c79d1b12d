package main

import (
	"github.com/spf13/cobra"

	"unsafegraph/internal/audit"
	"unsafegraph/internal/slogutil"
)

var auditFailOnTaint bool

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Scan for unsafe code and report every function that reaches it",
	Long: `Resolve the files compiled in the selected build configuration, record
their unsafe markers, build the crate's call graph with cargo and LLVM opt,
and print every function that can reach unsafe code.

Findings absent from the call graph (inlined, never instantiated or
otherwise optimised away) are listed separately as unobserved.

Examples:
  unsafegraph audit
  unsafegraph audit --no-default-features --features alloc
  unsafegraph audit --graph callgraph.dot --format sarif -o unsafe.sarif
  unsafegraph audit --fail-on-taint`,
	Args: cobra.NoArgs,
	RunE: runAudit,
}

func init() {
	auditCmd.Flags().BoolVar(&auditFailOnTaint, "fail-on-taint", false, "Exit with status 3 when any function is tainted")
	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	cfg, dir, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	factory := newLoggerFactory(cmd, cfg)
	defer closeLogs(factory)

	res, err := audit.New(cfg, dir, factory).Run(cmd.Context())
	if err != nil {
		return err
	}
	if err := writeReport(cmd, cfg, dir, res.Report); err != nil {
		return err
	}

	factory.Logger(slogutil.SubsystemAudit).Info("Audit completed",
		"tainted", res.Report.Summary.Tainted,
		"unobserved", res.Report.Summary.Unobserved,
		"findings", res.Report.Summary.Findings)

	if auditFailOnTaint && res.Report.Summary.Tainted > 0 {
		return errTainted
	}
	return nil
}
