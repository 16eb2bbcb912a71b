package result_test

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/benchforge/internal/parse"
	"github.com/signalnine/benchforge/internal/process"
	"github.com/signalnine/benchforge/internal/result"
	"github.com/signalnine/benchforge/internal/stats"
)

func sampleSummary() *result.Summary {
	cv := 0.04
	return &result.Summary{
		Version:   result.SummaryVersion,
		RunID:     "0b9e7c1e-1111-4c1e-9d7a-000000000001",
		Project:   result.Project{Name: "demo", Workspace: "/ws"},
		Target:    "vec_add",
		Launch:    "/ws/build/vec_add",
		LaunchCmd: []string{"/ws/build/vec_add", "--n", "1024"},
		Summary: result.Totals{
			Timestamp:      "2026-10-17T10:00:00",
			TotalRuns:      2,
			WarmupRuns:     1,
			PassRule:       "status",
			Passed:         1,
			Failed:         1,
			PassRate:       0.5,
			MinPassRate:    1,
			Status:         result.StatusFail,
			ParseErrorRuns: 1,
		},
		Runs: []result.RunEntry{
			{
				ExitCode:   0,
				DurationMS: 12,
				Metrics: map[string]result.MetricValue{
					"time_ms": {Value: 3.0, Units: "ms"},
					"iters":   {Value: int64(250)},
					"status":  {Value: "PASS"},
				},
			},
			{
				ExitCode:   0,
				DurationMS: 15,
				Metrics:    map[string]result.MetricValue{},
				ParseError: `missing required metric "status" (pattern did not match)`,
			},
		},
		Aggregates: result.Aggregates{Numeric: map[string]stats.Stats{
			"time_ms": {N: 1, Min: 3, Max: 3, Mean: 3, CV: &cv, Units: "ms", Better: parse.DirectionLower},
		}},
	}
}

func TestSummaryRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), result.SummaryFile)
	want := sampleSummary()
	require.NoError(t, result.WriteSummary(path, want))

	got, err := result.ReadSummary(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.IsType(t, float64(0), got.Runs[0].Metrics["time_ms"].Value)
	assert.IsType(t, int64(0), got.Runs[0].Metrics["iters"].Value)
}

func TestSummaryJSONKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), result.SummaryFile)
	require.NoError(t, result.WriteSummary(path, sampleSummary()))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, key := range []string{
		`"version"`, `"run_id"`, `"project"`, `"target"`, `"launch"`, `"launch_cmd"`,
		`"summary"`, `"runs"`, `"aggregates"`, `"numeric"`, `"pass_rate"`, `"min_pass_rate"`,
		`"bad_exit_code_runs"`, `"parse_error_runs"`, `"duration_ms"`, `"cv"`,
		`"value": 3.0`,
	} {
		assert.Contains(t, string(data), key)
	}
}

func TestNonFiniteMetricValueEncodesAsNull(t *testing.T) {
	data, err := json.Marshal(map[string]result.MetricValue{
		"nan": {Value: math.NaN()},
		"inf": {Value: math.Inf(1), Units: "ms"},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"nan":{"value":null},"inf":{"value":null,"units":"ms"}}`, string(data))
}

func TestReadSummaryErrors(t *testing.T) {
	_, err := result.ReadSummary(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	_, err = result.ReadSummary(bad)
	assert.Error(t, err)
}

func TestCreateRunDir(t *testing.T) {
	root := filepath.Join(t.TempDir(), "runs")
	rd, err := result.CreateRunDir(root)
	require.NoError(t, err)
	assert.Len(t, rd.ID, 36)
	assert.DirExists(t, rd.Path)
	assert.DirExists(t, rd.Bench())
	assert.Equal(t, filepath.Join(rd.Path, "summary.json"), rd.Summary())
	assert.Equal(t, filepath.Join(rd.Path, "bench", "run_007.stdout.txt"), rd.BenchFile("run", 7, "stdout.txt"))

	target, err := os.Readlink(filepath.Join(root, "latest"))
	require.NoError(t, err)
	assert.Equal(t, rd.Path, target)

	other, err := result.CreateRunDir(root)
	require.NoError(t, err)
	assert.NotEqual(t, rd.ID, other.ID)
}

func TestCreateRunDirRetriesOnCollision(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "taken"), 0o755))

	ids := []string{"taken", "taken", "fresh"}
	next := func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}
	rd, err := result.CreateRunDirWithIDs(root, next)
	require.NoError(t, err)
	assert.Equal(t, "fresh", rd.ID)
}

func TestCreateRunDirGivesUp(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "taken"), 0o755))
	calls := 0
	_, err := result.CreateRunDirWithIDs(root, func() string { calls++; return "taken" })
	require.Error(t, err)
	assert.Equal(t, 10, calls)
}

func TestCommandBlock(t *testing.T) {
	block := result.CommandBlock("configure", &process.Result{
		Cmd:        []string{"cmake", "-S", "."},
		Dir:        "/ws",
		ExitCode:   2,
		Stdout:     "hello\n\n",
		Stderr:     "",
		DurationMS: 41,
	})
	lines := strings.Split(block, "\n")
	assert.Equal(t, "=== configure ===", lines[0])
	assert.Equal(t, `cmd: ["cmake","-S","."]`, lines[1])
	assert.Equal(t, "cwd: /ws", lines[2])
	assert.Equal(t, "exit_code: 2", lines[3])
	assert.Equal(t, "duration_ms: 41", lines[4])
	assert.Contains(t, block, "--- stdout ---\nhello\n\n--- stderr ---\n")
}

func TestWriteYAMLAndText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snap.yaml")
	require.NoError(t, result.WriteYAML(path, map[string]any{"version": 1}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "version: 1\n", string(data))

	assert.Equal(t, "run_id: x\ntimestamp: t\n\n", result.LogHeader("x", "t"))
	assert.Equal(t, "SKIPPED (configure failed)\n", result.Skipped("configure failed"))
}
