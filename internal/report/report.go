// Package report renders the per-run Markdown report and run listings.
package report

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/signalnine/benchforge/internal/result"
	"github.com/signalnine/benchforge/internal/stats"
)

// Run is everything report.md describes about one run. Summary is nil when
// the run failed before PARSE.
type Run struct {
	Dir       *result.RunDir
	Timestamp string
	Target    string
	Live      bool
	Launch    string
	Stage     string
	Status    string
	Message   string
	Summary   *result.Summary
}

// noisyLimit caps the noisy metrics listed under stability notes.
const noisyLimit = 5

// Render produces report.md.
func Render(r Run) string {
	status := r.Status
	if r.Summary != nil {
		status = r.Summary.Summary.Status
	}
	launch := r.Launch
	if launch == "" {
		launch = "N/A"
	}

	var b strings.Builder
	b.WriteString("# Benchmark Report\n\n")
	b.WriteString("## Run\n")
	fmt.Fprintf(&b, "- **run_id:** `%s`\n", r.Dir.ID)
	fmt.Fprintf(&b, "- **timestamp:** `%s`\n", r.Timestamp)
	fmt.Fprintf(&b, "- **target:** `%s`\n", r.Target)
	fmt.Fprintf(&b, "- **launch:** `%s`\n", launch)
	fmt.Fprintf(&b, "- **live:** `%t`\n", r.Live)
	fmt.Fprintf(&b, "- **status:** `%s`\n", status)
	fmt.Fprintf(&b, "- **stage:** `%s`\n", r.Stage)
	if r.Message != "" {
		fmt.Fprintf(&b, "- **message:** %s\n", r.Message)
	}

	b.WriteString("\n## Artifacts\n")
	artifact := func(name, path string) {
		fmt.Fprintf(&b, "- `%s`: `%s`\n", name, relative(r.Dir.Path, path))
	}
	artifact(result.BuildLogFile, r.Dir.BuildLog())
	artifact(result.TestLogFile, r.Dir.TestLog())
	artifact(result.ConfigSnapshotFile, r.Dir.ConfigSnapshot())
	artifact(result.EnvFile, r.Dir.Env())
	fmt.Fprintf(&b, "- `%s/`: `%s/`\n", result.BenchDir, relative(r.Dir.Path, r.Dir.Bench()))
	if r.Summary != nil {
		artifact(result.SummaryFile, r.Dir.Summary())
	}
	b.WriteString("\n")

	if r.Summary != nil {
		writeSummary(&b, r.Summary)
	}

	b.WriteString("## Notes\n")
	b.WriteString("- `build.log` / `test.log` include full stdout/stderr for reproducibility.\n")
	b.WriteString("- `bench/` contains per-run stdout/stderr and parsed per-run metrics JSON.\n")
	return b.String()
}

// Write renders the report to the run directory's report.md.
func Write(r Run) error {
	return result.WriteText(r.Dir.Report(), Render(r))
}

func writeSummary(b *strings.Builder, s *result.Summary) {
	t := s.Summary
	passRule := t.PassRule
	if passRule == "" {
		passRule = "None"
	}
	b.WriteString("## Summary\n")
	fmt.Fprintf(b, "- **total_runs:** `%d`\n", t.TotalRuns)
	fmt.Fprintf(b, "- **warmup_runs:** `%d`\n", t.WarmupRuns)
	fmt.Fprintf(b, "- **pass_rule:** `%s`\n", passRule)
	fmt.Fprintf(b, "- **passed:** `%d`\n", t.Passed)
	fmt.Fprintf(b, "- **failed:** `%d`\n", t.Failed)
	fmt.Fprintf(b, "- **pass_rate:** `%s` (min `%s`)\n",
		stats.FormatNumber(stats.Ptr(t.PassRate)), stats.FormatNumber(stats.Ptr(t.MinPassRate)))
	b.WriteString("\n")

	numeric := s.Aggregates.Numeric
	if len(numeric) == 0 {
		return
	}
	names := make([]string, 0, len(numeric))
	for name := range numeric {
		names = append(names, name)
	}
	sort.Strings(names)

	b.WriteString("## Numeric aggregates\n\n")
	b.WriteString("| metric | n | min | mean | max | stdev | cv |\n")
	b.WriteString("|---|---:|---:|---:|---:|---:|---:|\n")
	for _, name := range names {
		st := numeric[name]
		fmt.Fprintf(b, "| %s | %d | %s | %s | %s | %s | %s |\n",
			strings.ReplaceAll(name, "|", `\|`), st.N,
			stats.FormatNumber(stats.Ptr(st.Min)),
			stats.FormatNumber(stats.Ptr(st.Mean)),
			stats.FormatNumber(stats.Ptr(st.Max)),
			stats.FormatNumber(stats.Ptr(st.Stdev)),
			stats.FormatPercent(st.CV))
	}

	b.WriteString("\n## Stability notes\n\n")
	writeStability(b, names, numeric)
	b.WriteString("\n")
}

func writeStability(b *strings.Builder, names []string, numeric map[string]stats.Stats) {
	var veryStable, stable []string
	type noisyMetric struct {
		name string
		cv   float64
	}
	var noisy []noisyMetric
	for _, name := range names {
		cv := numeric[name].CV
		switch stats.Classify(cv) {
		case stats.VeryStable:
			veryStable = append(veryStable, name)
		case stats.Stable:
			stable = append(stable, name)
		case stats.Noisy:
			noisy = append(noisy, noisyMetric{name, *cv})
		}
	}
	if len(veryStable)+len(stable)+len(noisy) == 0 {
		b.WriteString("- No CV values computed (missing metrics or mean == 0).\n")
		return
	}
	if len(veryStable) > 0 {
		fmt.Fprintf(b, "- **Very stable (CV <= 1%%)**: %s\n", codeList(veryStable))
	}
	if len(stable) > 0 {
		fmt.Fprintf(b, "- **Stable-ish (1%% < CV <= 5%%)**: %s\n", codeList(stable))
	}
	if len(noisy) > 0 {
		sort.SliceStable(noisy, func(i, j int) bool {
			if noisy[i].cv != noisy[j].cv {
				return noisy[i].cv > noisy[j].cv
			}
			return noisy[i].name > noisy[j].name
		})
		if len(noisy) > noisyLimit {
			noisy = noisy[:noisyLimit]
		}
		fmt.Fprintf(b, "- **Noisiest (CV > 5%%)** (top %d):\n", noisyLimit)
		for _, n := range noisy {
			cv := n.cv
			fmt.Fprintf(b, "  - `%s`: CV %s\n", n.name, stats.FormatPercent(&cv))
		}
	}
}

func codeList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "`" + n + "`"
	}
	return strings.Join(quoted, ", ")
}

func relative(dir, path string) string {
	rel, err := filepath.Rel(dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(path)
	}
	return "./" + filepath.ToSlash(rel)
}
