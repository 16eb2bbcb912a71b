// Package toolchain drives a project's configure, build and test commands and
// launches benchmark targets through a process.Runner.
package toolchain

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/signalnine/benchforge/internal/config"
	"github.com/signalnine/benchforge/internal/process"
)

// Toolchain binds a runner to one workspace and its environment.
type Toolchain struct {
	Runner    process.Runner
	Workspace string
	Env       map[string]string
	Timeout   time.Duration
	Live      bool
	Stdout    io.Writer
	Stderr    io.Writer
}

// New builds a Toolchain for cfg. The runner is chosen by executor.kind and
// env_file is merged under the inline env.
func New(cfg *config.Config, live bool) (*Toolchain, error) {
	env, err := Env(cfg)
	if err != nil {
		return nil, err
	}
	return &Toolchain{
		Runner:    NewRunner(cfg),
		Workspace: cfg.Workspace(),
		Env:       env,
		Timeout:   cfg.Timeout(),
		Live:      live,
	}, nil
}

// NewRunner returns the process.Runner selected by executor.kind.
func NewRunner(cfg *config.Config) process.Runner {
	if cfg.Executor.Kind == config.ExecutorDocker {
		return &process.Container{
			Image:     cfg.Executor.Image,
			Workspace: cfg.Workspace(),
			User:      cfg.Executor.User,
		}
	}
	return process.Local{}
}

// Env is the process environment override set: env_file entries overlaid by
// the inline env mapping.
func Env(cfg *config.Config) (map[string]string, error) {
	path := cfg.EnvFilePath()
	if path == "" {
		out := make(map[string]string, len(cfg.Env))
		for k, v := range cfg.Env {
			out[k] = v
		}
		return out, nil
	}
	return process.LoadEnvFile(path, cfg.Env)
}

func (t *Toolchain) run(ctx context.Context, cmd []string, dir string) (*process.Result, error) {
	return t.Runner.Run(ctx, process.Spec{
		Cmd:     cmd,
		Dir:     dir,
		Env:     t.Env,
		Timeout: t.Timeout,
		Live:    t.Live,
		Stdout:  t.Stdout,
		Stderr:  t.Stderr,
	})
}

// BuildResult holds the configure result and, when configure succeeded, the
// build result.
type BuildResult struct {
	Configure *process.Result
	Build     *process.Result
}

// OK reports whether both steps ran and exited 0.
func (b *BuildResult) OK() bool {
	return b.Configure != nil && b.Configure.ExitCode == 0 &&
		b.Build != nil && b.Build.ExitCode == 0
}

// ConfigureAndBuild runs configure_cmd, then build_cmd only if configure
// exited 0. Both run in the workspace.
func (t *Toolchain) ConfigureAndBuild(ctx context.Context, build config.Build) (*BuildResult, error) {
	configure, err := t.run(ctx, build.ConfigureCmd, t.Workspace)
	if err != nil {
		return nil, fmt.Errorf("configure: %w", err)
	}
	out := &BuildResult{Configure: configure}
	if configure.ExitCode != 0 {
		return out, nil
	}
	b, err := t.run(ctx, build.BuildCmd, t.Workspace)
	if err != nil {
		return out, fmt.Errorf("build: %w", err)
	}
	out.Build = b
	return out, nil
}

// TestResult describes the test stage. Ran is false when tests are disabled.
type TestResult struct {
	Ran    bool
	Reason string
	Result *process.Result
}

// RunTests runs test.cmd in the workspace when tests are enabled.
func (t *Toolchain) RunTests(ctx context.Context, test config.Test) (*TestResult, error) {
	if !test.Enabled {
		return &TestResult{Reason: "test.enabled=false"}, nil
	}
	res, err := t.run(ctx, test.Cmd, t.Workspace)
	if err != nil {
		return nil, fmt.Errorf("test: %w", err)
	}
	return &TestResult{Ran: true, Result: res}, nil
}

// RunResult is the ordered output of a target's invocations.
type RunResult struct {
	Launch  *Launch
	Warmups []*process.Result
	Runs    []*process.Result
}

// RunTarget resolves the target's launch and invokes it.
func (t *Toolchain) RunTarget(ctx context.Context, id string, target *config.Target) (*RunResult, error) {
	launch, err := ResolveLaunch(id, target.Run, t.Workspace)
	if err != nil {
		return nil, err
	}
	return t.Invoke(ctx, launch, target.Run.Warmups(), target.Run.Count())
}

// Invoke performs the warmups followed by the measured runs, strictly in
// order. It stops only at a launch error; non-zero exits are recorded.
func (t *Toolchain) Invoke(ctx context.Context, launch *Launch, warmups, runs int) (*RunResult, error) {
	out := &RunResult{Launch: launch}
	for i := 0; i < warmups; i++ {
		res, err := t.run(ctx, launch.Cmd, launch.Dir)
		if err != nil {
			return out, fmt.Errorf("warmup %d: %w", i+1, err)
		}
		out.Warmups = append(out.Warmups, res)
	}
	for i := 0; i < runs; i++ {
		res, err := t.run(ctx, launch.Cmd, launch.Dir)
		if err != nil {
			return out, fmt.Errorf("run %d: %w", i+1, err)
		}
		out.Runs = append(out.Runs, res)
	}
	return out, nil
}
