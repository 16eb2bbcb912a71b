package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/signalnine/benchforge/internal/index"
)

// Listing formats.
const (
	FormatTable    = "table"
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// WriteRuns lists indexed runs in the requested format.
func WriteRuns(runs []index.Run, format string, w io.Writer) error {
	switch format {
	case FormatJSON:
		return writeJSON(runs, w)
	case FormatMarkdown:
		return writeMarkdown(runs, w)
	case FormatTable, "":
		if len(runs) == 0 {
			_, err := fmt.Fprintln(w, "No indexed runs found.")
			return err
		}
		return writeTable(runs, w)
	default:
		return fmt.Errorf("unknown format %q (expected table, json or markdown)", format)
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func writeTable(runs []index.Run, w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FINISHED\tSTATUS\tSTAGE\tTARGET\tPROJECT\tRUN ID\tLAUNCH")
	fmt.Fprintln(tw, strings.Repeat("-", 100))
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.FinishedAt, r.Status, r.Stage, r.TargetID, dash(r.ProjectName), r.RunID, dash(r.Launch))
	}
	return tw.Flush()
}

func writeMarkdown(runs []index.Run, w io.Writer) error {
	fmt.Fprintln(w, "| Finished | Status | Stage | Target | Project | Run ID | Launch |")
	fmt.Fprintln(w, "|---|---|---|---|---|---|---|")
	for _, r := range runs {
		fmt.Fprintf(w, "| %s | %s | %s | %s | %s | `%s` | %s |\n",
			r.FinishedAt, r.Status, r.Stage, r.TargetID, dash(r.ProjectName), r.RunID, dash(r.Launch))
	}
	return nil
}

func writeJSON(runs []index.Run, w io.Writer) error {
	if runs == nil {
		runs = []index.Run{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(runs)
}
