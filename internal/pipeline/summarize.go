package pipeline

import (
	"github.com/signalnine/benchforge/internal/parse"
	"github.com/signalnine/benchforge/internal/process"
	"github.com/signalnine/benchforge/internal/result"
	"github.com/signalnine/benchforge/internal/stats"
)

// SummaryInput is the recorded state of a run after RUN.
type SummaryInput struct {
	RunID     string
	Timestamp string
	Target    string
	Project   result.Project
	Launch    string
	LaunchCmd []string
	// Rules is nil when the target has no parse section.
	Rules            *parse.RuleSet
	PassRule         string
	ExpectedExitCode int
	MinPassRate      float64
	Warmups          int
	Runs             []*process.Result
}

// Summarize parses every measured run, aggregates the numeric metrics and
// applies the pass policy. A parse error fails only its own run.
func Summarize(in SummaryInput) *result.Summary {
	var annotations map[string]stats.Annotation
	if in.Rules != nil {
		annotations = stats.Annotations(in.Rules.Rules())
	}

	entries := make([]result.RunEntry, 0, len(in.Runs))
	parsed := make([]map[string]parse.Metric, 0, len(in.Runs))
	totals := result.Totals{
		Timestamp:        in.Timestamp,
		TotalRuns:        len(in.Runs),
		WarmupRuns:       in.Warmups,
		ExpectedExitCode: in.ExpectedExitCode,
		PassRule:         in.PassRule,
		MinPassRate:      in.MinPassRate,
	}

	for _, res := range in.Runs {
		entry := result.RunEntry{
			ExitCode:   res.ExitCode,
			DurationMS: res.DurationMS,
			Metrics:    map[string]result.MetricValue{},
		}
		var metrics map[string]parse.Metric
		if in.Rules != nil {
			m, err := in.Rules.Parse(res.Stdout)
			if err != nil {
				entry.ParseError = err.Error()
			} else {
				metrics = m
				entry.Metrics = result.MetricValues(m)
			}
		}
		parsed = append(parsed, metrics)

		okExit := res.ExitCode == in.ExpectedExitCode
		okParse := entry.ParseError == ""
		okRule := true
		if in.PassRule != "" {
			m, found := metrics[in.PassRule]
			okRule = found && m.Passes()
		}
		if !okExit {
			totals.BadExitCodeRuns++
		}
		if !okParse {
			totals.ParseErrorRuns++
		}
		if okExit && okParse && okRule {
			totals.Passed++
		} else {
			totals.Failed++
		}
		entries = append(entries, entry)
	}

	if totals.TotalRuns > 0 {
		totals.PassRate = float64(totals.Passed) / float64(totals.TotalRuns)
	}
	totals.Status = result.StatusFail
	if totals.PassRate >= in.MinPassRate {
		totals.Status = result.StatusPass
	}

	return &result.Summary{
		Version:    result.SummaryVersion,
		RunID:      in.RunID,
		Project:    in.Project,
		Target:     in.Target,
		Launch:     in.Launch,
		LaunchCmd:  in.LaunchCmd,
		Summary:    totals,
		Runs:       entries,
		Aggregates: result.Aggregates{Numeric: stats.Aggregate(parsed, annotations)},
	}
}

// writeBench writes the per-invocation artifacts under bench/.
func writeBench(dir *result.RunDir, warmups, runs []*process.Result, entries []result.RunEntry) error {
	for i, res := range warmups {
		if err := writeStreams(dir, "warmup", i+1, res); err != nil {
			return err
		}
	}
	for i, res := range runs {
		if err := writeStreams(dir, "run", i+1, res); err != nil {
			return err
		}
		if i < len(entries) {
			rm := result.RunMetrics{Index: i + 1, RunEntry: entries[i]}
			if err := result.WriteJSON(dir.BenchFile("run", i+1, "metrics.json"), rm); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeStreams(dir *result.RunDir, kind string, index int, res *process.Result) error {
	if err := result.WriteText(dir.BenchFile(kind, index, "stdout.txt"), res.Stdout); err != nil {
		return err
	}
	return result.WriteText(dir.BenchFile(kind, index, "stderr.txt"), res.Stderr)
}
