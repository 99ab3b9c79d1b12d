package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// WriteHuman renders the per-file scan results, the taint set and the
// unobserved findings as tables.
func WriteHuman(w io.Writer, r *Report, opts Options) error {
	fmt.Fprintf(w, "Unsafe audit of %s\n\n", r.Crate)

	files := newTable(w, []string{"File", "Markers", "Scanned"})
	for _, f := range r.Files {
		scanned := "yes"
		if !f.Scanned {
			scanned = "never"
		}
		files.Append([]string{r.relPath(f.Path), strconv.Itoa(f.MarkerCount), scanned})
	}
	files.SetFooter([]string{
		fmt.Sprintf("Total Files %d", r.Summary.Files),
		strconv.Itoa(r.Summary.Markers),
		fmt.Sprintf("%d never", r.Summary.NeverScanned),
	})
	files.Render()
	fmt.Fprintln(w)

	header := []string{"Function", "Distance"}
	if opts.Witness {
		header = append(header, "Call path")
	}
	tainted := newTable(w, header)
	for _, tf := range r.Tainted {
		distance := strconv.Itoa(tf.Distance)
		if tf.Direct {
			distance = "unsafe"
		}
		row := []string{tf.Path, distance}
		if opts.Witness {
			via := ""
			if !tf.Direct {
				via = strings.Join(tf.Witness[1:], " -> ")
			}
			row = append(row, via)
		}
		tainted.Append(row)
	}
	tainted.Render()

	if len(r.Unobserved) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Unobserved (unsafe code not found in the call graph):")
		unobserved := newTable(w, []string{"Path", "Kind", "Location"})
		for _, f := range r.Unobserved {
			unobserved.Append([]string{f.Path, string(f.Kind), fmt.Sprintf("%s:%d", r.relPath(f.File), f.Line)})
		}
		unobserved.Render()
	}

	if len(r.Cycles) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Recursive cycles through unsafe code:")
		for _, c := range r.Cycles {
			fmt.Fprintf(w, "  %s\n", strings.Join(c, ", "))
		}
	}

	fmt.Fprintf(w, "\n%d tainted (%d direct), %d unobserved, %d findings in %d files\n",
		r.Summary.Tainted, r.Summary.Direct, r.Summary.Unobserved, r.Summary.Findings, r.Summary.Files)
	return nil
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}
