package toolchain_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/benchforge/internal/config"
	"github.com/signalnine/benchforge/internal/process"
	"github.com/signalnine/benchforge/internal/toolchain"
)

// recorder is a process.Runner that replays scripted exit codes.
type recorder struct {
	specs []process.Spec
	exits map[string]int
	fail  string
}

func (r *recorder) Run(_ context.Context, spec process.Spec) (*process.Result, error) {
	r.specs = append(r.specs, spec)
	key := strings.Join(spec.Cmd, " ")
	if key == r.fail {
		return nil, &process.LaunchError{Cmd: spec.Cmd, Err: errors.New("gone")}
	}
	return &process.Result{Cmd: spec.Cmd, Dir: spec.Dir, ExitCode: r.exits[key]}, nil
}

func newToolchain(r process.Runner, ws string) *toolchain.Toolchain {
	return &toolchain.Toolchain{Runner: r, Workspace: ws, Env: map[string]string{"K": "v"}}
}

func TestConfigureAndBuild(t *testing.T) {
	r := &recorder{}
	tc := newToolchain(r, "/ws")
	res, err := tc.ConfigureAndBuild(context.Background(), config.Build{
		ConfigureCmd: []string{"configure"},
		BuildCmd:     []string{"make"},
	})
	require.NoError(t, err)
	assert.True(t, res.OK())
	require.Len(t, r.specs, 2)
	assert.Equal(t, "/ws", r.specs[0].Dir)
	assert.Equal(t, "v", r.specs[1].Env["K"])
}

func TestConfigureFailureSkipsBuild(t *testing.T) {
	r := &recorder{exits: map[string]int{"configure": 2}}
	res, err := newToolchain(r, "/ws").ConfigureAndBuild(context.Background(), config.Build{
		ConfigureCmd: []string{"configure"},
		BuildCmd:     []string{"make"},
	})
	require.NoError(t, err)
	assert.False(t, res.OK())
	assert.Equal(t, 2, res.Configure.ExitCode)
	assert.Nil(t, res.Build)
	assert.Len(t, r.specs, 1)
}

func TestRunTestsDisabled(t *testing.T) {
	r := &recorder{}
	res, err := newToolchain(r, "/ws").RunTests(context.Background(), config.Test{})
	require.NoError(t, err)
	assert.False(t, res.Ran)
	assert.Equal(t, "test.enabled=false", res.Reason)
	assert.Empty(t, r.specs)
}

func TestRunTestsLaunchError(t *testing.T) {
	r := &recorder{fail: "ctest"}
	_, err := newToolchain(r, "/ws").RunTests(context.Background(), config.Test{Enabled: true, Cmd: []string{"ctest"}})
	var lerr *process.LaunchError
	assert.True(t, errors.As(err, &lerr))
}

func TestRunTargetOrdering(t *testing.T) {
	r := &recorder{exits: map[string]int{"bench --fast": 1}}
	runs, warm := 2, 1
	target := &config.Target{Run: config.Run{Cmd: []string{"bench", "--fast"}, Runs: &runs, WarmupRuns: &warm}}
	res, err := newToolchain(r, "/ws").RunTarget(context.Background(), "t", target)
	require.NoError(t, err)
	assert.Len(t, res.Warmups, 1)
	assert.Len(t, res.Runs, 2)
	assert.Len(t, r.specs, 3)
	assert.Equal(t, 1, res.Runs[1].ExitCode, "non-zero exits do not stop the sequence")
	assert.Equal(t, "bench --fast", res.Launch.Label)
	assert.Equal(t, "/ws", res.Launch.Dir)
}

func TestRunTargetLaunchErrorStops(t *testing.T) {
	r := &recorder{fail: "bench"}
	target := &config.Target{Run: config.Run{Cmd: []string{"bench"}}}
	_, err := newToolchain(r, "/ws").RunTarget(context.Background(), "t", target)
	require.Error(t, err)
	assert.Len(t, r.specs, 1)
}

func TestResolveLaunchCmd(t *testing.T) {
	l, err := toolchain.ResolveLaunch("t", config.Run{Cmd: []string{"echo", "hi"}}, "/ws")
	require.NoError(t, err)
	assert.Equal(t, []string{"echo", "hi"}, l.Cmd)
	assert.Equal(t, "echo hi", l.Label)
	assert.Empty(t, l.Executable)
}

func TestResolveLaunchInvalid(t *testing.T) {
	var lerr *toolchain.LaunchError
	_, err := toolchain.ResolveLaunch("t", config.Run{}, "/ws")
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, "t", lerr.Target)

	_, err = toolchain.ResolveLaunch("t", config.Run{Cmd: []string{"x"}, ExeGlob: "bin/*"}, "/ws")
	assert.True(t, errors.As(err, &lerr))

	_, err = toolchain.ResolveLaunch("t", config.Run{Cmd: []string{"x"}, Args: []string{"-v"}}, "/ws")
	assert.True(t, errors.As(err, &lerr))
}

func TestResolveLaunchGlobNewestWins(t *testing.T) {
	ws := t.TempDir()
	older := touch(t, filepath.Join(ws, "build", "a", "vec_add"), time.Now().Add(-time.Hour))
	newer := touch(t, filepath.Join(ws, "build", "b", "c", "vec_add_v2"), time.Now())
	touch(t, filepath.Join(ws, "build", "other"), time.Now().Add(time.Hour))
	require.NoError(t, os.MkdirAll(filepath.Join(ws, "build", "vec_add_dir"), 0o755))

	l, err := toolchain.ResolveLaunch("vec", config.Run{ExeGlob: "build/**/vec_add*", Args: []string{"-n", "4"}}, ws)
	require.NoError(t, err)
	assert.Equal(t, newer, l.Executable)
	assert.Equal(t, filepath.Dir(newer), l.Dir)
	assert.Equal(t, []string{newer, "-n", "4"}, l.Cmd)
	assert.Equal(t, newer, l.Label)
	assert.NotEqual(t, older, l.Executable)
}

func TestResolveLaunchGlobZeroDirs(t *testing.T) {
	ws := t.TempDir()
	exe := touch(t, filepath.Join(ws, "build", "bench"), time.Now())
	l, err := toolchain.ResolveLaunch("t", config.Run{ExeGlob: "build/**/bench"}, ws)
	require.NoError(t, err)
	assert.Equal(t, exe, l.Executable)
}

func TestResolveLaunchSimpleGlob(t *testing.T) {
	ws := t.TempDir()
	exe := touch(t, filepath.Join(ws, "bin", "bench"), time.Now())
	l, err := toolchain.ResolveLaunch("t", config.Run{ExeGlob: "bin/ben?h"}, ws)
	require.NoError(t, err)
	assert.Equal(t, exe, l.Executable)
}

func TestResolveLaunchNoMatch(t *testing.T) {
	ws := t.TempDir()
	_, err := toolchain.ResolveLaunch("t", config.Run{ExeGlob: "build/**/missing*"}, ws)
	var lerr *toolchain.LaunchError
	require.True(t, errors.As(err, &lerr))
	assert.Contains(t, err.Error(), "no executable matched")
}

func TestResolveLaunchDirectPath(t *testing.T) {
	ws := t.TempDir()
	exe := touch(t, filepath.Join(ws, "bench"), time.Now())
	l, err := toolchain.ResolveLaunch("t", config.Run{ExeGlob: "bench"}, ws)
	require.NoError(t, err)
	assert.Equal(t, exe, l.Executable)

	_, err = toolchain.ResolveLaunch("t", config.Run{ExeGlob: "nope"}, ws)
	assert.ErrorContains(t, err, "executable not found")

	require.NoError(t, os.Mkdir(filepath.Join(ws, "dir"), 0o755))
	_, err = toolchain.ResolveLaunch("t", config.Run{ExeGlob: "dir"}, ws)
	assert.ErrorContains(t, err, "directory")
}

func TestEnvMergesEnvFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bench.env"), []byte("A=file\nB=file\n"), 0o644))
	cfg := &config.Config{
		Path:    filepath.Join(dir, config.DefaultFile),
		Env:     map[string]string{"B": "inline"},
		EnvFile: "bench.env",
	}
	env, err := toolchain.Env(cfg)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"A": "file", "B": "inline"}, env)

	cfg.EnvFile = ""
	env, err = toolchain.Env(cfg)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"B": "inline"}, env)
}

func TestNewRunnerByExecutor(t *testing.T) {
	cfg := &config.Config{}
	assert.IsType(t, process.Local{}, toolchain.NewRunner(cfg))
	cfg.Executor = config.Executor{Kind: config.ExecutorDocker, Image: "ubuntu:24.04"}
	assert.IsType(t, &process.Container{}, toolchain.NewRunner(cfg))
}

func TestLocalEndToEnd(t *testing.T) {
	ws := t.TempDir()
	tc := &toolchain.Toolchain{Runner: process.Local{}, Workspace: ws}
	runs := 2
	res, err := tc.RunTarget(context.Background(), "t", &config.Target{
		Run: config.Run{Cmd: []string{"sh", "-c", "pwd; echo latency_ms=1.5"}, Runs: &runs},
	})
	require.NoError(t, err)
	require.Len(t, res.Runs, 2)
	assert.Contains(t, res.Runs[0].Stdout, "latency_ms=1.5")
}

func touch(t *testing.T, path string, mtime time.Time) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	abs, err := filepath.Abs(path)
	require.NoError(t, err)
	return abs
}
