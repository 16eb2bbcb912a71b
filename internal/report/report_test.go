package report_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/benchforge/internal/index"
	"github.com/signalnine/benchforge/internal/report"
	"github.com/signalnine/benchforge/internal/result"
	"github.com/signalnine/benchforge/internal/stats"
)

func testDir(t *testing.T) *result.RunDir {
	dir := filepath.Join(t.TempDir(), "run-1")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	return &result.RunDir{ID: "run-1", Path: dir}
}

func TestRenderFailedBeforeParse(t *testing.T) {
	out := report.Render(report.Run{
		Dir:       testDir(t),
		Timestamp: "2026-01-02T03:04:05Z",
		Target:    "vec_add",
		Stage:     "BUILD",
		Status:    "FAIL",
		Message:   "Configure failed. See build.log.",
	})
	assert.Contains(t, out, "# Benchmark Report")
	assert.Contains(t, out, "- **run_id:** `run-1`")
	assert.Contains(t, out, "- **launch:** `N/A`")
	assert.Contains(t, out, "- **status:** `FAIL`")
	assert.Contains(t, out, "- **stage:** `BUILD`")
	assert.Contains(t, out, "- **message:** Configure failed. See build.log.")
	assert.Contains(t, out, "- `build.log`: `./build.log`")
	assert.Contains(t, out, "- `bench/`: `./bench/`")
	assert.NotContains(t, out, "summary.json")
	assert.NotContains(t, out, "## Summary")
}

func TestRenderWithSummary(t *testing.T) {
	cv := func(v float64) *float64 { return &v }
	s := &result.Summary{
		Summary: result.Totals{
			Status:      result.StatusPass,
			TotalRuns:   3,
			WarmupRuns:  1,
			Passed:      3,
			PassRate:    1,
			MinPassRate: 1,
		},
		Aggregates: result.Aggregates{Numeric: map[string]stats.Stats{
			"latency_ms": {N: 3, Min: 1, Max: 3, Mean: 2, Stdev: 1, CV: cv(0.5)},
			"gflops":     {N: 3, Min: 100, Max: 100, Mean: 100, CV: cv(0)},
			"util":       {N: 3, Min: 1, Max: 1.1, Mean: 1, CV: cv(0.03)},
			"zero":       {N: 3},
		}},
	}
	out := report.Render(report.Run{Dir: testDir(t), Target: "vec_add", Stage: "DONE", Status: "OK", Launch: "/ws/bin/vec", Summary: s})

	assert.Contains(t, out, "- **status:** `PASS`")
	assert.Contains(t, out, "- **launch:** `/ws/bin/vec`")
	assert.Contains(t, out, "- `summary.json`: `./summary.json`")
	assert.Contains(t, out, "- **pass_rule:** `None`")
	assert.Contains(t, out, "- **pass_rate:** `1` (min `1`)")
	assert.Contains(t, out, "| metric | n | min | mean | max | stdev | cv |")
	assert.Contains(t, out, "| latency_ms | 3 | 1 | 2 | 3 | 1 | 50% |")
	assert.Contains(t, out, "| zero | 3 | 0 | 0 | 0 | 0 | N/A |")
	assert.Contains(t, out, "- **Very stable (CV <= 1%)**: `gflops`")
	assert.Contains(t, out, "- **Stable-ish (1% < CV <= 5%)**: `util`")
	assert.Contains(t, out, "  - `latency_ms`: CV 50%")
}

func TestRenderNoCV(t *testing.T) {
	s := &result.Summary{Aggregates: result.Aggregates{Numeric: map[string]stats.Stats{"zero": {N: 1}}}}
	out := report.Render(report.Run{Dir: testDir(t), Summary: s})
	assert.Contains(t, out, "No CV values computed")
}

func TestWrite(t *testing.T) {
	dir := testDir(t)
	require.NoError(t, report.Write(report.Run{Dir: dir, Stage: "RUN", Status: "FAIL"}))
	data, err := os.ReadFile(dir.Report())
	require.NoError(t, err)
	assert.Contains(t, string(data), "- **stage:** `RUN`")
}

var runs = []index.Run{
	{RunID: "b", TargetID: "vec_add", Status: "PASS", Stage: "DONE", FinishedAt: "2026-01-02T00:00:00Z", Launch: "/ws/vec"},
	{RunID: "a", TargetID: "smoke", ProjectName: "kernels", Status: "FAIL", Stage: "RUN", FinishedAt: "2026-01-01T00:00:00Z"},
}

func TestWriteRunsTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.WriteRuns(runs, report.FormatTable, &buf))
	out := buf.String()
	assert.Contains(t, out, "RUN ID")
	assert.Contains(t, out, "vec_add")
	assert.Contains(t, out, "kernels")
	assert.Regexp(t, `smoke\s+kernels\s+a\s+-`, out)
}

func TestWriteRunsEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.WriteRuns(nil, report.FormatTable, &buf))
	assert.Equal(t, "No indexed runs found.\n", buf.String())

	buf.Reset()
	require.NoError(t, report.WriteRuns(nil, report.FormatJSON, &buf))
	assert.JSONEq(t, "[]", buf.String())
}

func TestWriteRunsJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.WriteRuns(runs, report.FormatJSON, &buf))
	var got []index.Run
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, runs, got)
}

func TestWriteRunsMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.WriteRuns(runs, report.FormatMarkdown, &buf))
	assert.Contains(t, buf.String(), "| 2026-01-02T00:00:00Z | PASS | DONE | vec_add | - | `b` | /ws/vec |")
}

func TestWriteRunsUnknownFormat(t *testing.T) {
	assert.Error(t, report.WriteRuns(runs, "xml", &bytes.Buffer{}))
}
