// Package pipeline executes one benchmark run as an ordered stage machine:
// BUILD, TEST, RUN, PARSE, DONE. Every terminal state, success or failure,
// goes through the same finalize path that writes the stage logs, the
// report and the run index entry.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/signalnine/benchforge/internal/config"
	"github.com/signalnine/benchforge/internal/envinfo"
	"github.com/signalnine/benchforge/internal/index"
	"github.com/signalnine/benchforge/internal/parse"
	"github.com/signalnine/benchforge/internal/process"
	"github.com/signalnine/benchforge/internal/result"
	"github.com/signalnine/benchforge/internal/toolchain"
	"github.com/signalnine/benchforge/internal/ux"
)

// Pipeline runs targets of one configuration.
type Pipeline struct {
	Config    *config.Config
	Toolchain *toolchain.Toolchain
	// Index and Prober are optional.
	Index  index.Index
	Prober envinfo.Prober
	Live   bool
	Stdout io.Writer
	Stderr io.Writer
	// Now defaults to time.Now.
	Now func() time.Time
}

func (p *Pipeline) stdout() io.Writer {
	if p.Stdout != nil {
		return p.Stdout
	}
	return os.Stdout
}

func (p *Pipeline) stderr() io.Writer {
	if p.Stderr != nil {
		return p.Stderr
	}
	return os.Stderr
}

func (p *Pipeline) timestamp() string {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	return now().UTC().Format(time.RFC3339)
}

// run is the mutable state of one pipeline execution.
type run struct {
	p        *Pipeline
	targetID string
	target   *config.Target
	rules    *parse.RuleSet
	dir      *result.RunDir

	startedAt string
	header    string
	env       map[string]any

	launch      *toolchain.Launch
	invocations *toolchain.RunResult
	summary     *result.Summary
	summaryPath string
}

// Run executes targetID. Errors are returned only when no run directory
// could be set up; every later failure is reported in the Outcome.
func (p *Pipeline) Run(ctx context.Context, targetID string) (*Outcome, error) {
	target, err := p.Config.Target(targetID)
	if err != nil {
		return nil, err
	}
	var rules *parse.RuleSet
	if target.Parse != nil {
		list, err := target.Rules()
		if err != nil {
			return nil, fmt.Errorf("target %q: %w", targetID, err)
		}
		if rules, err = parse.Compile(list); err != nil {
			return nil, fmt.Errorf("target %q: %w", targetID, err)
		}
	}

	dir, err := result.CreateRunDir(p.Config.StorageRoot())
	if err != nil {
		return nil, err
	}
	r := &run{
		p:         p,
		targetID:  targetID,
		target:    target,
		rules:     rules,
		dir:       dir,
		startedAt: p.timestamp(),
	}
	r.header = result.LogHeader(dir.ID, r.startedAt)

	out := p.stdout()
	fmt.Fprintf(out, "Run dir: %s\n", dir.Path)
	if !p.Live {
		fmt.Fprintln(out, ux.For(out).Muted("Running pipeline (build -> test -> benchmark)... this may take time. Use '--live' to stream output."))
	}

	stage := StageBuild
	failure := r.prepare(ctx)
	for failure == nil && stage != StageDone {
		if err := ctx.Err(); err != nil {
			failure = &StageFailure{
				Target:   targetID,
				Stage:    stage,
				Message:  fmt.Sprintf("Cancelled before %s: %v", stage, err),
				ExitCode: ExitCancelled,
				Err:      err,
			}
			break
		}
		slog.Debug("stage start", "run_id", dir.ID, "target", targetID, "stage", stage)
		failure = r.step(ctx, stage)
		if failure == nil {
			stage = stage.next()
		}
	}
	return r.finalize(ctx, failure), nil
}

func (r *run) step(ctx context.Context, stage Stage) *StageFailure {
	switch stage {
	case StageBuild:
		return r.build(ctx)
	case StageTest:
		return r.test(ctx)
	case StageRun:
		return r.execute(ctx)
	case StageParse:
		return r.parse()
	default:
		return r.fail(stage, fmt.Sprintf("no handler for stage %s", stage), ExitError, nil)
	}
}

func (r *run) fail(stage Stage, msg string, code int, err error) *StageFailure {
	return &StageFailure{Target: r.targetID, Stage: stage, Message: msg, ExitCode: code, Err: err}
}

// prepare writes the config snapshot and the first env.json.
func (r *run) prepare(ctx context.Context) *StageFailure {
	if err := result.WriteYAML(r.dir.ConfigSnapshot(), r.p.Config); err != nil {
		return r.fail(StageBuild, "Setup error: "+err.Error(), ExitError, err)
	}
	r.env = r.probe(ctx)
	if err := result.WriteJSON(r.dir.Env(), r.env); err != nil {
		return r.fail(StageBuild, "Setup error: "+err.Error(), ExitError, err)
	}
	return nil
}

func (r *run) probe(ctx context.Context) map[string]any {
	req := envinfo.Request{
		Timestamp:     r.startedAt,
		RunID:         r.dir.ID,
		Target:        r.targetID,
		Live:          r.p.Live,
		ConfigPath:    r.p.Config.Path,
		Workspace:     r.p.Config.Workspace(),
		EnvFromConfig: r.p.Config.Env,
	}
	if r.p.Prober != nil {
		env, err := r.p.Prober.Probe(ctx, req)
		if err == nil {
			return env
		}
		r.warn("Environment probe warning: " + err.Error())
	}
	return map[string]any{
		"timestamp":   req.Timestamp,
		"run_id":      req.RunID,
		"target":      req.Target,
		"live":        req.Live,
		"launch":      nil,
		"launch_cmd":  nil,
		"config_path": req.ConfigPath,
		"workspace":   req.Workspace,
	}
}

func (r *run) build(ctx context.Context) *StageFailure {
	tc := r.p.Toolchain
	res, err := tc.ConfigureAndBuild(ctx, r.p.Config.Build)
	if err != nil {
		r.writeBuildLog(res)
		msg := "Build error: " + err.Error()
		r.writeTestLog(result.Skipped("build error"))
		return r.fail(StageBuild, msg, ExitError, err)
	}
	r.writeBuildLog(res)

	errOut := r.p.stderr()
	pr := ux.For(errOut)
	if res.Configure.ExitCode != 0 {
		r.writeTestLog(result.Skipped("configure failed"))
		fmt.Fprintf(errOut, "%s - see %s\n", pr.Bad("CONFIGURE FAILED"), r.dir.BuildLog())
		f := r.fail(StageBuild, "Configure failed. See build.log.", exitOr(res.Configure.ExitCode, ExitFail), nil)
		f.Cmd, f.Log = res.Configure.Cmd, r.dir.BuildLog()
		return f
	}
	if res.Build.ExitCode != 0 {
		r.writeTestLog(result.Skipped("build failed"))
		fmt.Fprintf(errOut, "%s - see %s\n", pr.Bad("BUILD FAILED"), r.dir.BuildLog())
		f := r.fail(StageBuild, "Build failed. See build.log.", exitOr(res.Build.ExitCode, ExitFail), nil)
		f.Cmd, f.Log = res.Build.Cmd, r.dir.BuildLog()
		return f
	}
	return nil
}

// writeBuildLog records configure and build; a build that never ran gets
// a SKIPPED block.
func (r *run) writeBuildLog(res *toolchain.BuildResult) {
	var parts []string
	switch {
	case res == nil || res.Configure == nil:
		parts = append(parts, "=== configure ===\n"+result.Skipped("configure could not start"))
	default:
		parts = append(parts, result.CommandBlock("configure", res.Configure))
	}
	if res != nil && res.Build != nil {
		parts = append(parts, result.CommandBlock("build", res.Build))
	} else if res != nil && res.Configure != nil && res.Configure.ExitCode != 0 {
		parts = append(parts, "=== build ===\n"+result.Skipped("configure failed"))
	} else {
		parts = append(parts, "=== build ===\n"+result.Skipped("build could not start"))
	}
	r.writeLog(r.dir.BuildLog(), r.header+strings.Join(parts, "\n"))
}

func (r *run) writeTestLog(body string) {
	r.writeLog(r.dir.TestLog(), r.header+body)
}

func (r *run) writeLog(path, text string) {
	if err := result.WriteText(path, text); err != nil {
		r.warn("Log write warning: " + err.Error())
	}
}

func (r *run) test(ctx context.Context) *StageFailure {
	res, err := r.p.Toolchain.RunTests(ctx, r.p.Config.Test)
	if err != nil {
		r.writeTestLog("=== test ===\n" + result.Skipped("test could not start"))
		return r.fail(StageTest, "Test error: "+err.Error(), ExitError, err)
	}
	if !res.Ran {
		r.writeTestLog(result.Skipped(res.Reason))
		return nil
	}
	r.writeTestLog(result.CommandBlock("test", res.Result))
	if res.Result.ExitCode != 0 {
		errOut := r.p.stderr()
		fmt.Fprintf(errOut, "%s - see %s\n", ux.For(errOut).Bad("TEST FAILED"), r.dir.TestLog())
		f := r.fail(StageTest, "Tests failed. See test.log.", exitOr(res.Result.ExitCode, ExitFail), nil)
		f.Cmd, f.Log = res.Result.Cmd, r.dir.TestLog()
		return f
	}
	return nil
}

func (r *run) execute(ctx context.Context) *StageFailure {
	tc := r.p.Toolchain
	launch, err := toolchain.ResolveLaunch(r.targetID, r.target.Run, tc.Workspace)
	if err != nil {
		return r.runError(err)
	}
	r.launch = launch

	r.env["launch"] = launch.Label
	r.env["launch_cmd"] = launch.Cmd
	if err := result.WriteJSON(r.dir.Env(), r.env); err != nil {
		r.warn("Environment write warning: " + err.Error())
	}

	expected := r.target.ExpectedExitCode()
	invocations, err := tc.Invoke(ctx, launch, r.target.Run.Warmups(), r.target.Run.Count())
	if err != nil {
		f := r.runError(err)
		f.Cmd = launch.Cmd
		return f
	}
	r.invocations = invocations
	r.reportRuns(expected)
	return nil
}

func (r *run) runError(err error) *StageFailure {
	msg := "Run error: " + err.Error()
	fmt.Fprintln(r.p.stderr(), ux.For(r.p.stderr()).Bad(msg))
	return r.fail(StageRun, msg, ExitError, err)
}

// reportRuns prints the RUN outcome to the console the way a user watching
// the run needs it: bad runs and the output of the last one.
func (r *run) reportRuns(expected int) {
	out, errOut := r.p.stdout(), r.p.stderr()
	inv := r.invocations
	bad := 0
	var lastBad *process.Result
	for _, res := range inv.Runs {
		if res.ExitCode != expected {
			bad++
			lastBad = res
		}
	}

	if bad > 0 {
		pr := ux.For(errOut)
		fmt.Fprintf(errOut, "%s (expected exit=%d)\n", pr.Bad("RUN FAILED"), expected)
		fmt.Fprintf(errOut, "launch=%s\n", r.launch.Label)
		fmt.Fprintf(errOut, "bad_runs=%d/%d\n", bad, len(inv.Runs))
		if r.p.Live {
			fmt.Fprintln(errOut, "(Output was streamed live above.)")
		} else {
			printStreams(errOut, lastBad)
		}
		fmt.Fprintf(errOut, "DONE with failures (launch=%s, runs=%d, warmups=%d)\n", r.launch.Label, len(inv.Runs), len(inv.Warmups))
	} else {
		fmt.Fprintf(out, "%s (launch=%s, runs=%d, warmups=%d)\n", ux.For(out).Good("OK"), r.launch.Label, len(inv.Runs), len(inv.Warmups))
	}
	if !r.p.Live && len(inv.Runs) > 0 {
		printStreams(out, inv.Runs[len(inv.Runs)-1])
	}
}

func printStreams(w io.Writer, res *process.Result) {
	if res == nil {
		return
	}
	if strings.TrimSpace(res.Stdout) != "" {
		fmt.Fprintf(w, "\n--- stdout ---\n%s\n", res.Stdout)
	}
	if strings.TrimSpace(res.Stderr) != "" {
		fmt.Fprintf(w, "\n--- stderr ---\n%s\n", res.Stderr)
	}
}

func (r *run) parse() *StageFailure {
	cfg := r.p.Config
	summary := Summarize(SummaryInput{
		RunID:            r.dir.ID,
		Timestamp:        r.startedAt,
		Target:           r.targetID,
		Project:          result.Project{Name: cfg.Project.Name, Workspace: cfg.Project.Workspace},
		Launch:           r.launch.Label,
		LaunchCmd:        r.launch.Cmd,
		Rules:            r.rules,
		PassRule:         r.target.PassRule(),
		ExpectedExitCode: r.target.ExpectedExitCode(),
		MinPassRate:      cfg.MinPassRate(),
		Warmups:          len(r.invocations.Warmups),
		Runs:             r.invocations.Runs,
	})

	r.summaryPath = r.dir.Summary()
	err := writeBench(r.dir, r.invocations.Warmups, r.invocations.Runs, summary.Runs)
	if err == nil {
		err = result.WriteSummary(r.summaryPath, summary)
	}
	if err != nil {
		msg := "Summary/write error: " + err.Error()
		fmt.Fprintln(r.p.stderr(), ux.For(r.p.stderr()).Bad(msg))
		f := r.fail(StageParse, msg, ExitError, err)
		f.Log = r.summaryPath
		return f
	}
	r.summary = summary
	return nil
}
