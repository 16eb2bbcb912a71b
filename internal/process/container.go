package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/moby/moby/api/pkg/stdcopy"
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/mount"
	"github.com/moby/moby/client"
)

// Container runs each command in a fresh container of Image with Workspace
// bind-mounted at the same absolute path, so host paths stay valid inside.
type Container struct {
	Image     string
	Workspace string
	User      string
}

func (c *Container) Run(ctx context.Context, spec Spec) (*Result, error) {
	if len(spec.Cmd) == 0 {
		return nil, &LaunchError{Err: errors.New("empty command")}
	}
	res := &Result{Cmd: append([]string(nil), spec.Cmd...), Dir: spec.Dir}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, &LaunchError{Cmd: res.Cmd, Err: fmt.Errorf("creating docker client: %w", err)}
	}
	defer cli.Close()

	keys := make([]string, 0, len(spec.Env))
	for k := range spec.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	envSlice := make([]string, 0, len(keys))
	for _, k := range keys {
		envSlice = append(envSlice, k+"="+spec.Env[k])
	}

	initTrue := true
	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: c.Workspace,
			Target: c.Workspace,
		}},
		Init: &initTrue,
	}
	containerCfg := &container.Config{
		Image:      c.Image,
		Cmd:        spec.Cmd,
		Env:        envSlice,
		WorkingDir: spec.Dir,
		Labels:     map[string]string{"benchforge": "true"},
	}
	if c.User != "" {
		containerCfg.User = c.User
	}

	createResp, err := cli.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config:     containerCfg,
		HostConfig: hostCfg,
	})
	if err != nil {
		return nil, &LaunchError{Cmd: res.Cmd, Err: fmt.Errorf("creating container: %w", err)}
	}
	containerID := createResp.ID
	defer func() {
		cli.ContainerRemove(context.Background(), containerID, client.ContainerRemoveOptions{Force: true})
	}()

	start := time.Now()
	if _, err := cli.ContainerStart(ctx, containerID, client.ContainerStartOptions{}); err != nil {
		return nil, &LaunchError{Cmd: res.Cmd, Err: fmt.Errorf("starting container: %w", err)}
	}

	waitCtx := ctx
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	waitResult := cli.ContainerWait(waitCtx, containerID, client.ContainerWaitOptions{
		Condition: container.WaitConditionNotRunning,
	})
wait:
	for {
		select {
		case err := <-waitResult.Error:
			if err == nil {
				continue
			}
			cli.ContainerKill(context.Background(), containerID, client.ContainerKillOptions{Signal: "SIGKILL"})
			if ctx.Err() != nil {
				return nil, fmt.Errorf("running %s in container: %w", spec.Cmd[0], ctx.Err())
			}
			if !errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("waiting for container: %w", err)
			}
			res.TimedOut = true
			res.ExitCode = TimeoutExitCode
			break wait
		case status := <-waitResult.Result:
			res.ExitCode = int(status.StatusCode)
			break wait
		}
	}
	res.DurationMS = time.Since(start).Milliseconds()

	var stdout, stderr bytes.Buffer
	logReader, err := cli.ContainerLogs(context.Background(), containerID, client.ContainerLogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		slog.Warn("reading container logs", "container", containerID, "err", err)
	} else {
		if _, err := stdcopy.StdCopy(&stdout, &stderr, logReader); err != nil {
			slog.Warn("decoding container logs", "container", containerID, "err", err)
		}
		logReader.Close()
	}
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	// Container output only becomes available once the container exits.
	if spec.Live {
		io.WriteString(spec.stdout(), res.Stdout)
		io.WriteString(spec.stderr(), res.Stderr)
	}
	return res, nil
}
