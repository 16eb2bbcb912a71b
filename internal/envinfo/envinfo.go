// Package envinfo captures the host environment a run executed in.
package envinfo

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/signalnine/benchforge/internal/gitops"
)

// MaxToolOutput bounds the captured stdout and stderr of each tool probe.
const MaxToolOutput = 20000

// Whitelist is the set of host variables recorded in env.json.
var Whitelist = []string{
	"PATH",
	"CUDA_PATH",
	"CUDA_HOME",
	"CUDA_ROOT",
	"LD_LIBRARY_PATH",
	"DYLD_LIBRARY_PATH",
	"CC",
	"CXX",
	"CUDACXX",
	"NVCC",
}

// Request identifies the run being probed.
type Request struct {
	Timestamp     string
	RunID         string
	Target        string
	Live          bool
	ConfigPath    string
	Workspace     string
	EnvFromConfig map[string]string
}

// Prober produces the env.json payload.
type Prober interface {
	Probe(ctx context.Context, req Request) (map[string]any, error)
}

// Tool is one external command whose output is recorded.
type Tool struct {
	Name string
	Cmd  []string
}

// DefaultTools are probed when System.Tools is nil.
var DefaultTools = []Tool{
	{Name: "nvcc_version", Cmd: []string{"nvcc", "--version"}},
	{Name: "nvidia_smi", Cmd: []string{"nvidia-smi", "--query-gpu=name,driver_version,cuda_version", "--format=csv,noheader"}},
}

// ToolResult is the recorded outcome of a tool probe. Error is set when the
// tool could not be started.
type ToolResult struct {
	Cmd      []string `json:"cmd"`
	OK       bool     `json:"ok"`
	ExitCode *int     `json:"exit_code,omitempty"`
	Stdout   string   `json:"stdout,omitempty"`
	Stderr   string   `json:"stderr,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// GitInfo describes the workspace checkout.
type GitInfo struct {
	Head     string `json:"head,omitempty"`
	Describe string `json:"describe,omitempty"`
	Dirty    *bool  `json:"dirty,omitempty"`
	Error    string `json:"error,omitempty"`
}

// System probes the local host. Tool probes and git run concurrently on a
// bounded pool.
type System struct {
	Tools   []Tool
	Workers int
	Timeout time.Duration
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

func (s *System) tools() []Tool {
	if s.Tools == nil {
		return DefaultTools
	}
	return s.Tools
}

func (s *System) timeout() time.Duration {
	if s.Timeout <= 0 {
		return 10 * time.Second
	}
	return s.Timeout
}

func (s *System) getenv(key string) string {
	if s.Getenv != nil {
		return s.Getenv(key)
	}
	return os.Getenv(key)
}

func (s *System) Probe(ctx context.Context, req Request) (map[string]any, error) {
	whitelist := make(map[string]string)
	for _, key := range Whitelist {
		if v := s.getenv(key); v != "" {
			whitelist[key] = v
		}
	}
	envFromConfig := req.EnvFromConfig
	if envFromConfig == nil {
		envFromConfig = map[string]string{}
	}

	hostname, _ := os.Hostname()
	payload := map[string]any{
		"timestamp":   req.Timestamp,
		"run_id":      req.RunID,
		"target":      req.Target,
		"live":        req.Live,
		"launch":      nil,
		"launch_cmd":  nil,
		"config_path": req.ConfigPath,
		"workspace":   req.Workspace,
		"platform": map[string]any{
			"os":       runtime.GOOS,
			"arch":     runtime.GOARCH,
			"num_cpu":  runtime.NumCPU(),
			"hostname": hostname,
		},
		"go": map[string]any{
			"version": runtime.Version(),
		},
		"env_from_config": envFromConfig,
		"env_whitelist":   whitelist,
		"tools":           s.probeTools(ctx, req.Workspace),
	}
	return payload, ctx.Err()
}

func (s *System) probeTools(ctx context.Context, workspace string) map[string]any {
	var mu sync.Mutex
	out := make(map[string]any)
	set := func(k string, v any) {
		mu.Lock()
		out[k] = v
		mu.Unlock()
	}

	var jobs []job
	for _, tool := range s.tools() {
		jobs = append(jobs, func() {
			set(tool.Name, runTool(ctx, tool.Cmd, workspace, s.timeout()))
		})
	}
	jobs = append(jobs, func() {
		set("git", probeGit(ctx, workspace, s.timeout()))
	})
	runPool(s.Workers, jobs)
	return out
}

func runTool(ctx context.Context, cmdline []string, dir string, timeout time.Duration) ToolResult {
	res := ToolResult{Cmd: cmdline}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, cmdline[0], cmdline[1:]...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	var exitErr *exec.ExitError
	switch {
	case errors.Is(err, exec.ErrNotFound):
		res.Error = "not found"
		return res
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.Error = "timed out after " + timeout.String()
		return res
	case err != nil && !errors.As(err, &exitErr):
		res.Error = err.Error()
		return res
	}

	code := cmd.ProcessState.ExitCode()
	res.ExitCode = &code
	res.OK = code == 0
	res.Stdout = truncate(stdout.String(), "stdout")
	res.Stderr = truncate(stderr.String(), "stderr")
	return res
}

func truncate(s, stream string) string {
	if len(s) <= MaxToolOutput {
		return s
	}
	return s[:MaxToolOutput] + "\n... <" + stream + " truncated> ..."
}

func probeGit(ctx context.Context, workspace string, timeout time.Duration) GitInfo {
	if _, err := exec.LookPath("git"); err != nil {
		return GitInfo{Error: "not found"}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	head, err := gitops.Head(ctx, workspace)
	if err != nil {
		return GitInfo{Error: err.Error()}
	}
	info := GitInfo{Head: head}
	if dirty, err := gitops.Dirty(ctx, workspace); err == nil {
		info.Dirty = &dirty
	}
	if desc, err := gitops.Describe(ctx, workspace); err == nil {
		info.Describe = desc
	}
	return info
}
