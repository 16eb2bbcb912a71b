package pipeline

import (
	"fmt"
	"strings"

	"github.com/signalnine/benchforge/internal/result"
)

// Stage is a state of the run machine. DONE is the only successful terminal
// state; a failure freezes the machine at the stage that failed.
type Stage string

const (
	StageBuild Stage = "BUILD"
	StageTest  Stage = "TEST"
	StageRun   Stage = "RUN"
	StageParse Stage = "PARSE"
	StageDone  Stage = "DONE"
)

// next is the successor of s on the success path.
func (s Stage) next() Stage {
	switch s {
	case StageBuild:
		return StageTest
	case StageTest:
		return StageRun
	case StageRun:
		return StageParse
	default:
		return StageDone
	}
}

// Exit codes for failures that carry no process exit code.
const (
	ExitFail      = 1
	ExitError     = 2
	ExitCancelled = 130
)

// StageFailure terminates a run. It names the stage, the command involved
// and the artifact holding its output.
type StageFailure struct {
	Target   string
	Stage    Stage
	Message  string
	Cmd      []string
	Log      string
	ExitCode int
	Err      error
}

func (f *StageFailure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "target %q failed at %s: %s", f.Target, f.Stage, f.Message)
	if len(f.Cmd) > 0 {
		fmt.Fprintf(&b, " (cmd: %s)", strings.Join(f.Cmd, " "))
	}
	if f.Log != "" {
		fmt.Fprintf(&b, " (log: %s)", f.Log)
	}
	return b.String()
}

func (f *StageFailure) Unwrap() error { return f.Err }

// exitOr returns code, or fallback when code is 0.
func exitOr(code, fallback int) int {
	if code == 0 {
		return fallback
	}
	return code
}

// Outcome is what a finished run reports to its caller.
type Outcome struct {
	RunID    string
	RunDir   string
	Target   string
	Status   string
	Stage    Stage
	Message  string
	Launch   string
	ExitCode int
	Summary  *result.Summary
	Failure  *StageFailure
}

// Passed reports whether the run reached DONE with status PASS.
func (o *Outcome) Passed() bool {
	return o.Stage == StageDone && o.Status == result.StatusPass
}
