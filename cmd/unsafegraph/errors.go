package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	auditerrors "unsafegraph/internal/errors"
)

// Exit codes.
const (
	exitOK          = 0
	exitFailure     = 1
	exitUsage       = 2
	exitTainted     = 3
	exitInternal    = 70
	exitInterrupted = 130
)

// errTainted is returned by --fail-on-taint runs that found tainted
// functions. It carries no message of its own.
var errTainted = errors.New("tainted functions found")

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	if errors.Is(err, errTainted) {
		return exitTainted
	}
	if errors.Is(err, context.Canceled) {
		return exitInterrupted
	}
	var ae *auditerrors.AuditError
	if !errors.As(err, &ae) {
		// cobra usage errors: unknown flags, bad arguments
		return exitUsage
	}
	switch ae.Code {
	case auditerrors.ConfigInvalid:
		return exitUsage
	case auditerrors.InternalError:
		return exitInternal
	default:
		return exitFailure
	}
}

// printError writes err and its suggested fixes.
func printError(w io.Writer, err error) {
	if errors.Is(err, errTainted) {
		return
	}
	fmt.Fprintf(w, "error: %v\n", err)

	var ae *auditerrors.AuditError
	if !errors.As(err, &ae) || len(ae.SuggestedFixes) == 0 {
		return
	}
	fmt.Fprintln(w, "\nSuggested fixes:")
	for _, fix := range ae.SuggestedFixes {
		switch {
		case fix.Command != "":
			fmt.Fprintf(w, "  - %s: %s\n", fix.Description, fix.Command)
		case fix.Tool != "":
			fmt.Fprintf(w, "  - %s (%s)\n", fix.Description, fix.Tool)
		default:
			fmt.Fprintf(w, "  - %s\n", fix.Description)
		}
	}
}
