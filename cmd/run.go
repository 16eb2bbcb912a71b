package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/signalnine/benchforge/internal/config"
	"github.com/signalnine/benchforge/internal/envinfo"
	"github.com/signalnine/benchforge/internal/index"
	"github.com/signalnine/benchforge/internal/pipeline"
	"github.com/signalnine/benchforge/internal/process"
	"github.com/signalnine/benchforge/internal/toolchain"
	"github.com/signalnine/benchforge/internal/ux"
)

func newBuildCmd() *cobra.Command {
	var live bool
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Run build.configure_cmd then build.build_cmd",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			tc, err := newToolchain(cmd, cfg, live)
			if err != nil {
				return err
			}
			out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
			if !live {
				fmt.Fprintln(out, ux.For(out).Muted("Running configure/build... this can take a few minutes. Use '--live' to stream output."))
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			res, err := tc.ConfigureAndBuild(ctx, cfg.Build)
			if err != nil {
				return exitf(2, "Build error: %w", err)
			}
			if res.OK() {
				fmt.Fprintf(out, "%s (configure %dms, build %dms)\n", ux.For(out).Good("OK"), res.Configure.DurationMS, res.Build.DurationMS)
				return nil
			}
			pr := ux.For(errOut)
			if res.Configure.ExitCode != 0 {
				fmt.Fprintln(errOut, pr.Bad("CONFIGURE FAILED"))
				reportFailure(errOut, res.Configure, live)
				fmt.Fprintln(errOut, "BUILD SKIPPED (configure failed)")
				return &ExitError{Code: nonZero(res.Configure.ExitCode)}
			}
			fmt.Fprintln(errOut, pr.Bad("BUILD FAILED"))
			reportFailure(errOut, res.Build, live)
			return &ExitError{Code: nonZero(res.Build.ExitCode)}
		},
	}
	cmd.Flags().BoolVar(&live, "live", false, "stream build output instead of capturing it")
	return cmd
}

func newRunCmd() *cobra.Command {
	var live bool
	cmd := &cobra.Command{
		Use:   "run <target>",
		Short: "Build, test, run and summarize a target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if _, err := cfg.Target(args[0]); err != nil {
				return &ExitError{Code: 2, Err: err}
			}
			tc, err := newToolchain(cmd, cfg, live)
			if err != nil {
				return err
			}

			p := &pipeline.Pipeline{
				Config:    cfg,
				Toolchain: tc,
				Prober:    &envinfo.System{},
				Live:      live,
				Stdout:    cmd.OutOrStdout(),
				Stderr:    cmd.ErrOrStderr(),
			}
			idx, err := index.Open(cfg.DBPath())
			if err != nil {
				slog.Warn("run index unavailable", "path", cfg.DBPath(), "err", err)
			} else {
				defer idx.Close()
				p.Index = idx
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()
			outcome, err := p.Run(ctx, args[0])
			if err != nil {
				return &ExitError{Code: 2, Err: err}
			}
			slog.Debug("run finished", "run_id", outcome.RunID, "stage", outcome.Stage, "status", outcome.Status)
			if outcome.ExitCode != 0 {
				return &ExitError{Code: outcome.ExitCode}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&live, "live", false, "stream target output live")
	return cmd
}

func newToolchain(cmd *cobra.Command, cfg *config.Config, live bool) (*toolchain.Toolchain, error) {
	tc, err := toolchain.New(cfg, live)
	if err != nil {
		return nil, exitf(2, "Config error: %w", err)
	}
	tc.Stdout, tc.Stderr = cmd.OutOrStdout(), cmd.ErrOrStderr()
	return tc, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func reportFailure(w io.Writer, res *process.Result, live bool) {
	fmt.Fprintf(w, "exit=%d ms=%d\n", res.ExitCode, res.DurationMS)
	if live {
		fmt.Fprintln(w, "(Output was streamed live above.)")
		return
	}
	if strings.TrimSpace(res.Stdout) != "" {
		fmt.Fprintf(w, "\n--- stdout ---\n%s\n", res.Stdout)
	}
	if strings.TrimSpace(res.Stderr) != "" {
		fmt.Fprintf(w, "\n--- stderr ---\n%s\n", res.Stderr)
	}
}

func nonZero(code int) int {
	if code == 0 {
		return 1
	}
	return code
}
