// Package stats summarizes repeated numeric metric samples.
package stats

import (
	"math"

	"github.com/signalnine/benchforge/internal/parse"
)

// Stats summarizes one metric across measured runs.
type Stats struct {
	N      int             `json:"n"`
	Min    float64         `json:"min"`
	Max    float64         `json:"max"`
	Mean   float64         `json:"mean"`
	Stdev  float64         `json:"stdev"`
	CV     *float64        `json:"cv"`
	Units  string          `json:"units,omitempty"`
	Better parse.Direction `json:"better,omitempty"`
}

// Annotation is descriptive rule metadata carried onto a metric's Stats.
type Annotation struct {
	Units  string
	Better parse.Direction
}

// Annotations builds the annotation table for a rule set.
func Annotations(rules []parse.Rule) map[string]Annotation {
	out := make(map[string]Annotation, len(rules))
	for _, r := range rules {
		out[r.Name] = Annotation{Units: r.Units, Better: r.Better}
	}
	return out
}

// Aggregate groups numeric values by metric name across runs. Non-numeric
// metrics never produce Stats.
func Aggregate(runs []map[string]parse.Metric, meta map[string]Annotation) map[string]Stats {
	samples := make(map[string][]float64)
	units := make(map[string]string)
	for _, run := range runs {
		for name, m := range run {
			v, ok := m.Numeric()
			if !ok {
				continue
			}
			samples[name] = append(samples[name], v)
			if units[name] == "" && m.Units != "" {
				units[name] = m.Units
			}
		}
	}

	out := make(map[string]Stats, len(samples))
	for name, values := range samples {
		s := Summarize(values)
		ann := meta[name]
		s.Units = ann.Units
		if s.Units == "" {
			s.Units = units[name]
		}
		s.Better = ann.Better
		out[name] = s
	}
	return out
}

// Summarize computes n/min/max/mean/stdev/cv for a non-empty sample.
func Summarize(values []float64) Stats {
	s := Stats{N: len(values)}
	if s.N == 0 {
		return s
	}
	s.Min, s.Max = values[0], values[0]
	var sum float64
	for _, v := range values {
		sum += v
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	s.Mean = sum / float64(s.N)
	if s.N > 1 {
		var sq float64
		for _, v := range values {
			d := v - s.Mean
			sq += d * d
		}
		s.Stdev = math.Sqrt(sq / float64(s.N-1))
	}
	if m := math.Abs(s.Mean); m > 0 {
		cv := s.Stdev / m
		s.CV = &cv
	}
	return s
}

// Stability buckets a coefficient of variation.
type Stability string

const (
	Unclassified Stability = ""
	VeryStable   Stability = "very stable"
	Stable       Stability = "stable"
	Noisy        Stability = "noisy"
)

const (
	VeryStableMaxCV = 0.01
	StableMaxCV     = 0.05
)

// Classify maps a cv to its stability bucket; a nil cv is unclassified.
func Classify(cv *float64) Stability {
	switch {
	case cv == nil:
		return Unclassified
	case *cv <= VeryStableMaxCV:
		return VeryStable
	case *cv <= StableMaxCV:
		return Stable
	default:
		return Noisy
	}
}
