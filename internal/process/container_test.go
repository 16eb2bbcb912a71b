package process

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainerRun(t *testing.T) {
	if os.Getenv("BENCHFORGE_DOCKER_TESTS") == "" {
		t.Skip("set BENCHFORGE_DOCKER_TESTS=1 to run Docker tests")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	ws := t.TempDir()
	c := &Container{Image: "alpine:latest", Workspace: ws}
	res, err := c.Run(ctx, Spec{
		Cmd: []string{"sh", "-c", "echo hello > out.txt; echo TIME_MS: 1.5; echo warn >&2; exit 3"},
		Dir: ws,
		Env: map[string]string{"X": "1"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "TIME_MS: 1.5\n", res.Stdout)
	assert.Equal(t, "warn\n", res.Stderr)

	content, err := os.ReadFile(filepath.Join(ws, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(content))
}

func TestContainerTimeout(t *testing.T) {
	if os.Getenv("BENCHFORGE_DOCKER_TESTS") == "" {
		t.Skip("set BENCHFORGE_DOCKER_TESTS=1 to run Docker tests")
	}
	ws := t.TempDir()
	c := &Container{Image: "alpine:latest", Workspace: ws}
	res, err := c.Run(context.Background(), Spec{
		Cmd:     []string{"sleep", "300"},
		Dir:     ws,
		Timeout: 2 * time.Second,
	})
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.Equal(t, TimeoutExitCode, res.ExitCode)
}
