package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalnine/benchforge/internal/compare"
	"github.com/signalnine/benchforge/internal/config"
	"github.com/signalnine/benchforge/internal/envinfo"
	"github.com/signalnine/benchforge/internal/index"
	"github.com/signalnine/benchforge/internal/report"
	"github.com/signalnine/benchforge/internal/result"
	"github.com/signalnine/benchforge/internal/ux"
)

func openIndex(cfg *config.Config) (*index.SQLite, error) {
	idx, err := index.Open(cfg.DBPath())
	if err != nil {
		return nil, &ExitError{Code: 2, Err: err}
	}
	return idx, nil
}

func newRunsCmd() *cobra.Command {
	var (
		limit  int
		target string
		status string
		format string
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List indexed runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return exitf(2, "Argument error: --limit must be >= 1")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			idx, err := openIndex(cfg)
			if err != nil {
				return err
			}
			defer idx.Close()

			runs, err := idx.List(cmd.Context(), index.Filter{Target: target, Status: status, Limit: limit})
			if err != nil {
				return &ExitError{Code: 2, Err: err}
			}
			if err := report.WriteRuns(runs, format, cmd.OutOrStdout()); err != nil {
				return &ExitError{Code: 2, Err: err}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to show")
	cmd.Flags().StringVar(&target, "target", "", "filter by target id")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (PASS or FAIL)")
	cmd.Flags().StringVar(&format, "format", report.FormatTable, "output format (table, json, markdown)")
	return cmd
}

// lookupRun fetches an indexed run; a missing run exits with status 2.
func lookupRun(cmd *cobra.Command, idx index.Index, id string) (*index.Run, error) {
	run, err := idx.Get(cmd.Context(), id)
	if err != nil {
		return nil, &ExitError{Code: 2, Err: err}
	}
	if run == nil {
		return nil, exitf(2, "Run not found in index: %s", id)
	}
	return run, nil
}

func newReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report <run-id>",
		Short: "Print the stored Markdown report of an indexed run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			idx, err := openIndex(cfg)
			if err != nil {
				return err
			}
			defer idx.Close()

			run, err := lookupRun(cmd, idx, args[0])
			if err != nil {
				return err
			}
			path := run.ReportFile()
			data, err := os.ReadFile(path)
			if errors.Is(err, fs.ErrNotExist) {
				return exitf(2, "Indexed report file not found: %s", path)
			}
			if err != nil {
				return &ExitError{Code: 2, Err: err}
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(string(data), " \t\r\n"))
			return nil
		},
	}
}

func newCompareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compare <baseline-run-id> <candidate-run-id>",
		Short: "Compare two indexed runs using their stored summaries",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			idx, err := openIndex(cfg)
			if err != nil {
				return err
			}
			defer idx.Close()

			baseline, err := lookupRun(cmd, idx, args[0])
			if err != nil {
				return err
			}
			candidate, err := lookupRun(cmd, idx, args[1])
			if err != nil {
				return err
			}
			baseSummary, err := loadSummary(baseline)
			if err != nil {
				return err
			}
			candSummary, err := loadSummary(candidate)
			if err != nil {
				return err
			}

			c := compare.Compare(baseSummary, candSummary)
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, strings.TrimRight(compare.RenderMarkdown(baseline, candidate, c), "\n"))
			if ux.IsTerminal(out) {
				fmt.Fprintln(out)
				compare.WriteHighlights(out, c)
			}
			return nil
		},
	}
}

func loadSummary(run *index.Run) (*result.Summary, error) {
	path := run.SummaryFile()
	if _, err := os.Stat(path); err != nil {
		return nil, exitf(2, "Indexed summary file not found: %s", path)
	}
	s, err := result.ReadSummary(path)
	if err != nil {
		return nil, &ExitError{Code: 2, Err: err}
	}
	return s, nil
}

func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Print the environment probe recorded with every run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			prober := &envinfo.System{}
			payload, err := prober.Probe(cmd.Context(), envinfo.Request{
				Timestamp:     time.Now().UTC().Format(time.RFC3339),
				ConfigPath:    cfg.Path,
				Workspace:     cfg.Workspace(),
				EnvFromConfig: cfg.Env,
			})
			if err != nil {
				return fmt.Errorf("probing environment: %w", err)
			}
			data, err := json.MarshalIndent(payload, "", "  ")
			if err != nil {
				return fmt.Errorf("encoding probe: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}
