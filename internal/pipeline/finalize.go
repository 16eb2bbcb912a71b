package pipeline

import (
	"context"
	"fmt"
	"os"

	"github.com/signalnine/benchforge/internal/index"
	"github.com/signalnine/benchforge/internal/metrics"
	"github.com/signalnine/benchforge/internal/report"
	"github.com/signalnine/benchforge/internal/result"
	"github.com/signalnine/benchforge/internal/ux"
)

// finalize is shared by every terminal transition. Nothing here changes the
// outcome; write problems degrade to warnings.
func (r *run) finalize(ctx context.Context, failure *StageFailure) *Outcome {
	o := &Outcome{
		RunID:  r.dir.ID,
		RunDir: r.dir.Path,
		Target: r.targetID,
	}
	if r.launch != nil {
		o.Launch = r.launch.Label
	}

	if failure != nil {
		o.Stage = failure.Stage
		o.Status = result.StatusFail
		o.Message = failure.Message
		o.ExitCode = failure.ExitCode
		o.Failure = failure
		reason := fmt.Sprintf("%s failed", failure.Stage)
		if failure.ExitCode == ExitCancelled {
			reason = "cancelled"
		}
		r.ensureLog(r.dir.BuildLog(), reason)
		r.ensureLog(r.dir.TestLog(), reason)
	} else {
		o.Stage = StageDone
		o.Summary = r.summary
		o.Status = r.summary.Summary.Status
		o.ExitCode = ExitFail
		if o.Status == result.StatusPass {
			o.ExitCode = 0
		}
	}

	out := r.p.stdout()
	pr := ux.For(out)
	if o.Summary != nil {
		fmt.Fprintf(out, "Summary: %s (pass_rate=%.0f%%)\n", pr.Status(o.Status), o.Summary.Summary.PassRate*100)
		fmt.Fprintf(out, "Summary written: %s\n", r.summaryPath)
		r.exportMetrics()
	}

	if err := report.Write(report.Run{
		Dir:       r.dir,
		Timestamp: r.startedAt,
		Target:    r.targetID,
		Live:      r.p.Live,
		Launch:    o.Launch,
		Stage:     string(o.Stage),
		Status:    o.Status,
		Message:   o.Message,
		Summary:   o.Summary,
	}); err != nil {
		r.warn("Report warning: " + err.Error())
	} else {
		fmt.Fprintf(out, "Report written: %s\n", r.dir.Report())
	}

	r.indexRun(ctx, o)
	return o
}

// ensureLog writes a SKIPPED marker for a stage log that was never produced.
func (r *run) ensureLog(path, reason string) {
	if _, err := os.Stat(path); err == nil {
		return
	}
	r.writeLog(path, r.header+result.Skipped(reason))
}

func (r *run) exportMetrics() {
	path := r.p.Config.MetricsFile()
	if path == "" {
		return
	}
	if err := metrics.Export(path, r.summary); err != nil {
		r.warn("Metrics export warning: " + err.Error())
	}
}

func (r *run) indexRun(ctx context.Context, o *Outcome) {
	if r.p.Index == nil {
		return
	}
	entry := &index.Run{
		RunID:       r.dir.ID,
		ProjectName: r.p.Config.Project.Name,
		TargetID:    r.targetID,
		Status:      o.Status,
		Stage:       string(o.Stage),
		StartedAt:   r.startedAt,
		FinishedAt:  r.p.timestamp(),
		Launch:      o.Launch,
		RunDir:      r.dir.Path,
		SummaryPath: r.summaryPath,
		ReportPath:  r.dir.Report(),
		Live:        r.p.Live,
		Message:     o.Message,
	}
	// A cancelled run is still recorded.
	if err := r.p.Index.Upsert(context.WithoutCancel(ctx), entry); err != nil {
		r.warn("Run index warning: " + err.Error())
	}
}

func (r *run) warn(msg string) {
	errOut := r.p.stderr()
	fmt.Fprintln(errOut, ux.For(errOut).Warn(msg))
}
