package toolchain

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/signalnine/benchforge/internal/config"
)

// LaunchError means a target's launch command could not be determined.
type LaunchError struct {
	Target string
	Msg    string
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("target %q: %s", e.Target, e.Msg)
}

// Launch is the resolved command line for a target.
type Launch struct {
	Cmd []string
	Dir string
	// Label describes the launch in reports: the executable path, or the
	// joined command.
	Label      string
	Executable string
}

// ResolveLaunch turns a target's run section into a concrete command. An
// exe_glob runs with its executable's directory as working dir; a cmd runs
// in the workspace.
func ResolveLaunch(targetID string, run config.Run, workspace string) (*Launch, error) {
	hasGlob := strings.TrimSpace(run.ExeGlob) != ""
	hasCmd := len(run.Cmd) > 0
	if hasGlob == hasCmd {
		return nil, &LaunchError{Target: targetID, Msg: "run must define exactly one of run.exe_glob or run.cmd"}
	}

	if hasCmd {
		if run.Args != nil {
			return nil, &LaunchError{Target: targetID, Msg: "run.args is not allowed when run.cmd is used"}
		}
		return &Launch{
			Cmd:   append([]string(nil), run.Cmd...),
			Dir:   workspace,
			Label: strings.Join(run.Cmd, " "),
		}, nil
	}

	exe, err := findExecutable(workspace, run.ExeGlob)
	if err != nil {
		return nil, &LaunchError{Target: targetID, Msg: err.Error()}
	}
	return &Launch{
		Cmd:        append([]string{exe}, run.Args...),
		Dir:        filepath.Dir(exe),
		Label:      exe,
		Executable: exe,
	}, nil
}

func hasGlobChars(s string) bool {
	return strings.ContainsAny(s, "*?[")
}

func findExecutable(workspace, exeGlob string) (string, error) {
	pattern := exeGlob
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(workspace, pattern)
	}

	if !hasGlobChars(exeGlob) {
		info, err := os.Stat(pattern)
		if err != nil {
			return "", fmt.Errorf("executable not found: %s", pattern)
		}
		if info.IsDir() {
			return "", fmt.Errorf("executable path points to a directory, not a file: %s", pattern)
		}
		return pattern, nil
	}

	matches, err := globFiles(pattern)
	if err != nil {
		return "", fmt.Errorf("matching exe_glob %q: %w", exeGlob, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no executable matched exe_glob: %q (workspace=%s)", exeGlob, workspace)
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].modTime.After(matches[j].modTime)
	})
	return matches[0].path, nil
}

type match struct {
	path    string
	modTime time.Time
}

// globFiles expands pattern to regular files. A "**" segment matches any
// number of directories, including none.
func globFiles(pattern string) ([]match, error) {
	var paths []string
	if before, after, ok := strings.Cut(pattern, "**"); ok {
		root := filepath.Clean(before)
		rest := strings.TrimPrefix(filepath.ToSlash(after), "/")
		found, err := walkMatch(root, rest)
		if err != nil {
			return nil, err
		}
		paths = found
	} else {
		found, err := filepath.Glob(pattern)
		if err != nil {
			return nil, err
		}
		paths = found
	}

	var out []match
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}
		out = append(out, match{path: abs, modTime: info.ModTime()})
	}
	return out, nil
}

func walkMatch(root, rest string) ([]string, error) {
	restParts := 0
	if rest != "" {
		restParts = len(strings.Split(rest, "/"))
	}
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if restParts == 0 {
			out = append(out, path)
			return nil
		}
		if len(parts) < restParts {
			return nil
		}
		tail := strings.Join(parts[len(parts)-restParts:], "/")
		if ok, _ := filepath.Match(rest, tail); ok {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}
