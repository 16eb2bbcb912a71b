package compare

import (
	"fmt"
	"io"
	"strings"

	"github.com/signalnine/benchforge/internal/index"
	"github.com/signalnine/benchforge/internal/stats"
	"github.com/signalnine/benchforge/internal/ux"
)

// RenderMarkdown renders the comparison with the identity of both runs.
func RenderMarkdown(baseline, candidate *index.Run, c *Comparison) string {
	var b strings.Builder
	b.WriteString("# Benchmark Compare\n\n")
	writeIdentity(&b, "Baseline", baseline)
	writeIdentity(&b, "Candidate", candidate)

	b.WriteString("## Status\n")
	fmt.Fprintf(&b, "- summary_status: `%s` -> `%s`\n",
		orDefault(c.Baseline.Summary.Status, baseline.Status),
		orDefault(c.Candidate.Summary.Status, candidate.Status))
	fmt.Fprintf(&b, "- pass_rate: `%s` -> `%s`\n",
		stats.FormatPercent(&c.Baseline.Summary.PassRate),
		stats.FormatPercent(&c.Candidate.Summary.PassRate))
	fmt.Fprintf(&b, "- stage: `%s` -> `%s`\n\n", baseline.Stage, candidate.Stage)

	b.WriteString("## Shared Numeric Aggregates\n\n")
	if len(c.Rows) == 0 {
		b.WriteString("No shared numeric aggregates found.\n")
		return b.String()
	}
	b.WriteString("| metric | direction | baseline_mean | candidate_mean | delta | delta_pct | assessment |\n")
	b.WriteString("|---|---|---:|---:|---:|---:|---|\n")
	for _, r := range c.Rows {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s |\n",
			escapeCell(r.DisplayName()),
			DirectionLabel(r.Direction),
			stats.FormatNumber(&r.BaselineMean),
			stats.FormatNumber(&r.CandidateMean),
			stats.FormatNumber(&r.Delta),
			stats.FormatPercent(r.DeltaPct),
			r.Assessment)
	}

	if hl := c.Highlights(); len(hl) > 0 {
		b.WriteString("\n## Highlights\n\n")
		for _, r := range hl {
			b.WriteString("- " + highlightLine(r) + "\n")
		}
	}
	return b.String()
}

// WriteHighlights prints improvements and regressions, colored on a terminal.
func WriteHighlights(w io.Writer, c *Comparison) {
	hl := c.Highlights()
	if len(hl) == 0 {
		return
	}
	p := ux.For(w)
	fmt.Fprintln(w, p.Title("Highlights"))
	for _, r := range hl {
		line := highlightLine(r)
		if r.Assessment == Improvement {
			line = p.Good(line)
		} else {
			line = p.Bad(line)
		}
		fmt.Fprintln(w, "  "+line)
	}
}

func highlightLine(r Row) string {
	return fmt.Sprintf("`%s`: %s (%s, baseline %s, candidate %s)",
		escapeCell(r.DisplayName()), r.Assessment, DirectionLabel(r.Direction),
		stats.FormatNumber(&r.BaselineMean), stats.FormatNumber(&r.CandidateMean))
}

func writeIdentity(b *strings.Builder, title string, r *index.Run) {
	fmt.Fprintf(b, "## %s\n", title)
	fmt.Fprintf(b, "- run_id: `%s`\n", r.RunID)
	fmt.Fprintf(b, "- project: `%s`\n", orDefault(r.ProjectName, "-"))
	fmt.Fprintf(b, "- target: `%s`\n", r.TargetID)
	fmt.Fprintf(b, "- status: `%s`\n", r.Status)
	fmt.Fprintf(b, "- finished_at: `%s`\n", r.FinishedAt)
	fmt.Fprintf(b, "- launch: `%s`\n", orDefault(r.Launch, "-"))
	fmt.Fprintf(b, "- summary: `%s`\n", r.SummaryFile())
	fmt.Fprintf(b, "- report: `%s`\n\n", r.ReportFile())
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
