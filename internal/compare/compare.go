// Package compare classifies per-metric deltas between two runs.
package compare

import (
	"math"
	"slices"
	"strings"

	"github.com/signalnine/benchforge/internal/parse"
	"github.com/signalnine/benchforge/internal/result"
)

type Assessment string

const (
	NoChange    Assessment = "no change"
	Improvement Assessment = "improvement"
	Regression  Assessment = "regression"
	Change      Assessment = "change"
)

// Row is the comparison of one shared numeric metric.
type Row struct {
	Name          string
	Units         string
	Direction     parse.Direction
	BaselineMean  float64
	CandidateMean float64
	Delta         float64
	// DeltaPct is Delta/|BaselineMean|, nil when the baseline mean is zero.
	DeltaPct   *float64
	Assessment Assessment
}

// DisplayName is "name (units)", or just the name when units are unknown.
func (r Row) DisplayName() string {
	if r.Units == "" {
		return r.Name
	}
	return r.Name + " (" + r.Units + ")"
}

type Comparison struct {
	Baseline  *result.Summary
	Candidate *result.Summary
	Rows      []Row
}

// Compare matches the numeric aggregates present in both summaries. Metrics
// found on one side only are left out.
func Compare(baseline, candidate *result.Summary) *Comparison {
	c := &Comparison{Baseline: baseline, Candidate: candidate}

	var shared []string
	for name := range baseline.Aggregates.Numeric {
		if _, ok := candidate.Aggregates.Numeric[name]; ok {
			shared = append(shared, name)
		}
	}
	slices.Sort(shared)

	for _, name := range shared {
		base := baseline.Aggregates.Numeric[name]
		cand := candidate.Aggregates.Numeric[name]

		units := metricUnits(candidate, name)
		if units == "" {
			units = metricUnits(baseline, name)
		}

		row := Row{
			Name:          name,
			Units:         units,
			Direction:     direction(baseline, candidate, name, units),
			BaselineMean:  base.Mean,
			CandidateMean: cand.Mean,
			Delta:         cand.Mean - base.Mean,
		}
		if base.Mean != 0 {
			pct := row.Delta / math.Abs(base.Mean)
			row.DeltaPct = &pct
		}
		row.Assessment = assess(row.Direction, base.Mean, cand.Mean)
		c.Rows = append(c.Rows, row)
	}
	return c
}

// Highlights returns the rows assessed as an improvement or a regression.
func (c *Comparison) Highlights() []Row {
	var out []Row
	for _, r := range c.Rows {
		if r.Assessment == Improvement || r.Assessment == Regression {
			out = append(out, r)
		}
	}
	return out
}

func assess(dir parse.Direction, base, cand float64) Assessment {
	switch {
	case cand == base:
		return NoChange
	case dir == parse.DirectionHigher:
		if cand > base {
			return Improvement
		}
		return Regression
	case dir == parse.DirectionLower:
		if cand < base {
			return Improvement
		}
		return Regression
	default:
		return Change
	}
}

// direction prefers an explicit annotation (candidate first), then infers
// from the metric name and units.
func direction(baseline, candidate *result.Summary, name, units string) parse.Direction {
	if d := candidate.Aggregates.Numeric[name].Better; d != parse.DirectionUnset {
		return d
	}
	if d := baseline.Aggregates.Numeric[name].Better; d != parse.DirectionUnset {
		return d
	}
	return InferDirection(name, units)
}

var (
	lowerMarkers  = []string{"latency", "time", "duration", "delay", "p50", "p90", "p95", "p99", "error", "loss"}
	higherMarkers = []string{"throughput", "bandwidth", "gflops", "tflops", "fps", "ops_per_sec", "ops/sec", "qps", "requests_per_sec", "rps", "score"}
	lowerUnits    = []string{"s", "sec", "secs", "second", "seconds", "ms", "us", "ns"}
	higherUnits   = []string{"ops_per_sec", "ops/sec", "qps", "rps", "fps", "gflops", "tflops", "gbps"}
)

// InferDirection guesses from name keywords, then from units. Lower-is-better
// keywords win over higher-is-better ones.
func InferDirection(name, units string) parse.Direction {
	name = strings.ToLower(name)
	for _, m := range lowerMarkers {
		if strings.Contains(name, m) {
			return parse.DirectionLower
		}
	}
	for _, m := range higherMarkers {
		if strings.Contains(name, m) {
			return parse.DirectionHigher
		}
	}
	units = strings.ToLower(strings.TrimSpace(units))
	if slices.Contains(lowerUnits, units) {
		return parse.DirectionLower
	}
	if slices.Contains(higherUnits, units) {
		return parse.DirectionHigher
	}
	return parse.DirectionUnset
}

// DirectionLabel is the human-readable form used in rendered tables.
func DirectionLabel(d parse.Direction) string {
	switch d {
	case parse.DirectionHigher:
		return "higher is better"
	case parse.DirectionLower:
		return "lower is better"
	default:
		return "unknown"
	}
}

// metricUnits looks at the aggregate first, then at any run that carries it.
func metricUnits(s *result.Summary, name string) string {
	if u := strings.TrimSpace(s.Aggregates.Numeric[name].Units); u != "" {
		return s.Aggregates.Numeric[name].Units
	}
	for _, run := range s.Runs {
		if mv, ok := run.Metrics[name]; ok && strings.TrimSpace(mv.Units) != "" {
			return mv.Units
		}
	}
	return ""
}
