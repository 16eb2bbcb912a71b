package result

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/signalnine/benchforge/internal/process"
)

func WriteText(path, text string) error {
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// WriteYAML writes v as YAML, preserving struct field order.
func WriteYAML(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", path, err)
	}
	return WriteText(path, string(data))
}

// LogHeader starts every stage log.
func LogHeader(runID, timestamp string) string {
	return fmt.Sprintf("run_id: %s\ntimestamp: %s\n\n", runID, timestamp)
}

// Skipped is the marker written for a stage that never ran.
func Skipped(reason string) string {
	return fmt.Sprintf("SKIPPED (%s)\n", reason)
}

// CommandBlock renders one command result for a stage log.
func CommandBlock(title string, r *process.Result) string {
	cmd, _ := json.Marshal(r.Cmd)
	var b strings.Builder
	fmt.Fprintf(&b, "=== %s ===\n", title)
	fmt.Fprintf(&b, "cmd: %s\n", cmd)
	fmt.Fprintf(&b, "cwd: %s\n", r.Dir)
	fmt.Fprintf(&b, "exit_code: %d\n", r.ExitCode)
	fmt.Fprintf(&b, "duration_ms: %d\n", r.DurationMS)
	if r.TimedOut {
		b.WriteString("timed_out: true\n")
	}
	b.WriteString("\n--- stdout ---\n")
	b.WriteString(strings.TrimRight(r.Stdout, " \t\r\n"))
	b.WriteString("\n\n--- stderr ---\n")
	b.WriteString(strings.TrimRight(r.Stderr, " \t\r\n"))
	b.WriteString("\n")
	return b.String()
}
