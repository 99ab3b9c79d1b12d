package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// WriteText writes one tainted qualified path per line. With Witness set,
// transitively tainted paths are followed by their call path to unsafe
// code. Unobserved findings follow as `#` comment lines so the main list
// stays line-oriented.
func WriteText(w io.Writer, r *Report, opts Options) error {
	bw := bufio.NewWriter(w)

	// Copies of one function (differing only by hash or LLVM suffix) share
	// a path and print once.
	seen := make(map[string]bool, len(r.Tainted))
	for _, tf := range r.Tainted {
		if seen[tf.Path] {
			continue
		}
		seen[tf.Path] = true
		if opts.Witness && !tf.Direct && len(tf.Witness) > 0 {
			fmt.Fprintf(bw, "%s: %s\n", tf.Path, strings.Join(tf.Witness, " -> "))
			continue
		}
		fmt.Fprintln(bw, tf.Path)
	}

	if len(r.Unobserved) > 0 {
		fmt.Fprintln(bw)
		fmt.Fprintln(bw, "# unobserved: unsafe code present but not found in the call graph")
		for _, f := range r.Unobserved {
			fmt.Fprintf(bw, "# %s (%s at %s:%d)\n", f.Path, f.Kind, r.relPath(f.File), f.Line)
		}
	}

	return bw.Flush()
}

// WriteFileCounts writes the per-file scan report: the unsafe marker count
// and path of every file in the scan set, flagging files never scanned.
func WriteFileCounts(w io.Writer, r *Report) error {
	bw := bufio.NewWriter(w)
	for _, f := range r.Files {
		if !f.Scanned {
			fmt.Fprintf(bw, "%d\t%s (never scanned)\n", f.MarkerCount, r.relPath(f.Path))
			continue
		}
		fmt.Fprintf(bw, "%d\t%s\n", f.MarkerCount, r.relPath(f.Path))
	}
	fmt.Fprintf(bw, "%d\ttotal (%d files, %d never scanned)\n", r.Summary.Markers, r.Summary.Files, r.Summary.NeverScanned)
	return bw.Flush()
}
