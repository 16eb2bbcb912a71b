// Package process launches external commands and captures their output.
package process

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"
)

// TimeoutExitCode is reported for invocations killed by their timeout.
const TimeoutExitCode = 124

// Spec describes one command invocation.
type Spec struct {
	Cmd     []string
	Dir     string
	Env     map[string]string
	Timeout time.Duration
	// Live echoes output to Stdout/Stderr while it is being captured.
	Live   bool
	Stdout io.Writer
	Stderr io.Writer
}

func (s Spec) stdout() io.Writer {
	if s.Stdout != nil {
		return s.Stdout
	}
	return os.Stdout
}

func (s Spec) stderr() io.Writer {
	if s.Stderr != nil {
		return s.Stderr
	}
	return os.Stderr
}

// Result is the outcome of a command that was started. A non-zero exit code
// is data, not an error.
type Result struct {
	Cmd        []string `json:"cmd"`
	Dir        string   `json:"cwd"`
	ExitCode   int      `json:"exit_code"`
	Stdout     string   `json:"stdout"`
	Stderr     string   `json:"stderr"`
	DurationMS int64    `json:"duration_ms"`
	TimedOut   bool     `json:"timed_out"`
}

// Runner executes a Spec.
type Runner interface {
	Run(ctx context.Context, spec Spec) (*Result, error)
}

// LaunchError means the command could not be started at all.
type LaunchError struct {
	Cmd []string
	Err error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launching %s: %v", strings.Join(e.Cmd, " "), e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// MergeEnv applies overrides on top of a KEY=VALUE environment list.
// Overridden keys keep their position; new keys are appended in sorted order.
func MergeEnv(base []string, overrides map[string]string) []string {
	out := make([]string, 0, len(base)+len(overrides))
	used := make(map[string]bool, len(overrides))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if v, ok := overrides[key]; ok {
			out = append(out, key+"="+v)
			used[key] = true
			continue
		}
		out = append(out, kv)
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		if !used[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+overrides[k])
	}
	return out
}
