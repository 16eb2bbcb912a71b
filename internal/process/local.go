package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"golang.org/x/sync/errgroup"
)

// Local runs commands on the host.
type Local struct{}

func (Local) Run(ctx context.Context, spec Spec) (*Result, error) {
	if len(spec.Cmd) == 0 {
		return nil, &LaunchError{Err: errors.New("empty command")}
	}

	runCtx := ctx
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, spec.Cmd[0], spec.Cmd[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = MergeEnv(os.Environ(), spec.Env)
	cmd.WaitDelay = 2 * time.Second

	res := &Result{Cmd: append([]string(nil), spec.Cmd...), Dir: spec.Dir}
	if res.Dir == "" {
		res.Dir, _ = os.Getwd()
	}
	var stdout, stderr bytes.Buffer

	start := time.Now()
	var err error
	if spec.Live {
		err = runLive(cmd, spec, &stdout, &stderr)
	} else {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		err = cmd.Run()
	}
	res.DurationMS = time.Since(start).Milliseconds()
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	if err == nil {
		return res, nil
	}
	if spec.Timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		res.TimedOut = true
		res.ExitCode = TimeoutExitCode
		return res, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("running %s: %w", spec.Cmd[0], ctx.Err())
	}
	return nil, &LaunchError{Cmd: res.Cmd, Err: err}
}

// runLive drains both pipes concurrently, echoing and capturing, and waits
// for the drainers and the process to finish.
func runLive(cmd *exec.Cmd, spec Spec, stdout, stderr *bytes.Buffer) error {
	outPipe, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	errPipe, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(io.MultiWriter(stdout, spec.stdout()), outPipe)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(io.MultiWriter(stderr, spec.stderr()), errPipe)
		return err
	})
	drainErr := g.Wait()
	if err := cmd.Wait(); err != nil {
		return err
	}
	if drainErr != nil {
		return fmt.Errorf("reading output: %w", drainErr)
	}
	return nil
}
