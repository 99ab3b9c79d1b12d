package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"unsafegraph/internal/config"
	auditerrors "unsafegraph/internal/errors"
	"unsafegraph/internal/report"
)

// writeReport renders r to the configured output, stdout by default.
func writeReport(cmd *cobra.Command, cfg *config.Config, dir string, r *report.Report) error {
	return withOutput(cmd, cfg, dir, func(w io.Writer) error {
		return report.Write(w, r, report.Format(cfg.Report.Format), report.Options{Witness: cfg.Report.Witness})
	})
}

func withOutput(cmd *cobra.Command, cfg *config.Config, dir string, write func(io.Writer) error) error {
	if cfg.Report.Output == "" || cfg.Report.Output == "-" {
		return write(cmd.OutOrStdout())
	}

	path := cfg.Report.Output
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return auditerrors.New(auditerrors.InternalError, "cannot create output directory", err, nil)
	}
	f, err := os.Create(path)
	if err != nil {
		return auditerrors.New(auditerrors.InternalError, "cannot create output file", err, nil)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
