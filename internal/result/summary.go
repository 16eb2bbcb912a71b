// Package result persists run artifacts: the run directory layout, per-run
// metric files, and the summary.json snapshot.
package result

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/signalnine/benchforge/internal/parse"
	"github.com/signalnine/benchforge/internal/stats"
)

const SummaryVersion = 1

// Run statuses.
const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
)

type Summary struct {
	Version    int        `json:"version"`
	RunID      string     `json:"run_id"`
	Project    Project    `json:"project"`
	Target     string     `json:"target"`
	Launch     string     `json:"launch"`
	LaunchCmd  []string   `json:"launch_cmd"`
	Summary    Totals     `json:"summary"`
	Runs       []RunEntry `json:"runs"`
	Aggregates Aggregates `json:"aggregates"`
}

type Project struct {
	Name      string `json:"name,omitempty" yaml:"name,omitempty"`
	Workspace string `json:"workspace" yaml:"workspace"`
}

type Totals struct {
	Timestamp        string  `json:"timestamp"`
	TotalRuns        int     `json:"total_runs"`
	WarmupRuns       int     `json:"warmup_runs"`
	ExpectedExitCode int     `json:"expected_exit_code"`
	PassRule         string  `json:"pass_rule,omitempty"`
	Passed           int     `json:"passed"`
	Failed           int     `json:"failed"`
	PassRate         float64 `json:"pass_rate"`
	MinPassRate      float64 `json:"min_pass_rate"`
	Status           string  `json:"status"`
	BadExitCodeRuns  int     `json:"bad_exit_code_runs"`
	ParseErrorRuns   int     `json:"parse_error_runs"`
}

// RunEntry is one measured invocation. ParseError is empty when parsing
// succeeded or no rules were configured.
type RunEntry struct {
	ExitCode   int                    `json:"exit_code"`
	DurationMS int64                  `json:"duration_ms"`
	Metrics    map[string]MetricValue `json:"metrics"`
	ParseError string                 `json:"parse_error,omitempty"`
}

// RunMetrics is the content of bench/run_NNN.metrics.json.
type RunMetrics struct {
	Index int `json:"index"`
	RunEntry
}

type Aggregates struct {
	Numeric map[string]stats.Stats `json:"numeric"`
}

// MetricValue is the persisted form of a parse.Metric. Integers and floats
// keep their type across a write/read cycle.
type MetricValue struct {
	Value any    `json:"value"`
	Units string `json:"units,omitempty"`
}

// MetricValues converts parsed metrics to their persisted form.
func MetricValues(metrics map[string]parse.Metric) map[string]MetricValue {
	out := make(map[string]MetricValue, len(metrics))
	for name, m := range metrics {
		out[name] = MetricValue{Value: m.Value, Units: m.Units}
	}
	return out
}

// Metric converts back to a parse.Metric.
func (m MetricValue) Metric(name string) parse.Metric {
	return parse.Metric{Name: name, Value: m.Value, Units: m.Units}
}

func (m MetricValue) MarshalJSON() ([]byte, error) {
	value, err := encodeValue(m.Value)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Value json.RawMessage `json:"value"`
		Units string          `json:"units,omitempty"`
	}{value, m.Units})
}

func (m *MetricValue) UnmarshalJSON(data []byte) error {
	var wire struct {
		Value json.RawMessage `json:"value"`
		Units string          `json:"units"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	v, err := decodeValue(wire.Value)
	if err != nil {
		return err
	}
	m.Value, m.Units = v, wire.Units
	return nil
}

// encodeValue always writes floats with a fraction or exponent so they are
// not read back as integers. Non-finite floats become null.
func encodeValue(v any) (json.RawMessage, error) {
	f, ok := v.(float64)
	if !ok {
		return json.Marshal(v)
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return json.RawMessage("null"), nil
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return json.RawMessage(s), nil
}

func decodeValue(raw json.RawMessage) (any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	switch raw[0] {
	case '"':
		var s string
		err := json.Unmarshal(raw, &s)
		return s, err
	case 't', 'f':
		var b bool
		err := json.Unmarshal(raw, &b)
		return b, err
	}
	s := string(raw)
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("decoding metric value %s: %w", s, err)
	}
	return f, nil
}

// ParsedMetrics returns the entry's metrics as parse.Metric values.
func (e RunEntry) ParsedMetrics() map[string]parse.Metric {
	out := make(map[string]parse.Metric, len(e.Metrics))
	for name, mv := range e.Metrics {
		out[name] = mv.Metric(name)
	}
	return out
}

func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func WriteSummary(path string, s *Summary) error {
	return WriteJSON(path, s)
}

func ReadSummary(path string) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading summary: %w", err)
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing summary %s: %w", path, err)
	}
	return &s, nil
}
