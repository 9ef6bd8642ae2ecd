/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/PivotLLM/MacroBench/global"
	"github.com/PivotLLM/MacroBench/reporting"
	"github.com/PivotLLM/MacroBench/results"
	"github.com/PivotLLM/MacroBench/runner"
	"github.com/PivotLLM/MacroBench/server"
)

func newRunCommand(a *app) *cobra.Command {
	var (
		req         global.RunRequest
		metricsAddr string
		writeReport bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute every pending (model, website, task) combination",
		Long: `Plans the combinations for the selected websites and models, skips those
that already have a successful result (unless --resume=false) and executes the
rest with a pool of workers. Ctrl-C stops claiming new work; items in progress
finish their current attempt and are saved.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.setup(); err != nil {
				return err
			}
			defer a.close()

			// Dry runs only plan, so the browser runner need not exist yet
			if !req.DryRun {
				if err := a.cfg.ValidateForRun(); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if metricsAddr == "" {
				metricsAddr = a.cfg.MetricsAddr()
			}
			startMetrics(ctx, metricsAddr, a.logger)

			rn := runner.NewFromConfig(a.cfg, a.logger, runner.WithMetrics(runner.DefaultMetrics()))
			res, err := rn.Run(ctx, &req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Run %s: %s\n", res.RunID, res.Message)
			_, _ = fmt.Fprintf(out, "  combinations=%d already_completed=%d queued=%d\n",
				res.TotalCombinations, res.AlreadyCompleted, res.Queued)
			for _, key := range res.PendingKeys {
				_, _ = fmt.Fprintf(out, "  pending %s\n", key)
			}
			if res.Halted {
				_, _ = fmt.Fprintln(out, "  halted after first exhausted item")
			}

			if writeReport && !req.DryRun {
				path, err := saveReport(a, rn.Store(), reporting.FormatMarkdown, nil)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(out, "Report written to %s\n", path)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringSliceVar(&req.Websites, "websites", nil, "Comma-separated website names (default: all)")
	f.StringSliceVar(&req.Models, "models", nil, "Comma-separated model ids (default: all enabled)")
	f.IntVar(&req.TaskLimit, "limit", 0, "Maximum tasks per website (0 = all)")
	f.BoolVar(&req.Resume, "resume", true, "Skip combinations that already succeeded")
	f.IntVar(&req.Workers, "workers", 0, "Concurrent workers (default: runner.workers)")
	f.IntVar(&req.MaxAttempts, "max-attempts", 0, "Attempts per combination (default: runner.max_attempts)")
	f.DurationVar(&req.Timeout, "timeout", 0, "Per-attempt execution timeout, e.g. 30s (default: browser.timeout_seconds)")
	f.BoolVar(&req.DryRun, "dry-run", false, "List pending combinations without executing them")
	f.BoolVar(&req.HaltOnFailure, "halt-on-failure", false, "Stop claiming work after the first combination exhausts its attempts")
	f.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090 (default: metrics_addr)")
	f.BoolVar(&writeReport, "report", false, "Write a markdown report to the reports directory when the run ends")

	return cmd
}

func newReportCommand(a *app) *cobra.Command {
	var (
		format string
		save   bool
		filter reporting.ReportFilter
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarise stored results by model, website, difficulty and category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != reporting.FormatMarkdown && format != reporting.FormatJSON {
				return fmt.Errorf("unknown report format: %s (use md or json)", format)
			}
			if err := a.setup(); err != nil {
				return err
			}
			defer a.close()

			store := results.New(a.cfg.ResultsDir(), a.logger)
			if save {
				path, err := saveReport(a, store, format, &filter)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", path)
				return nil
			}

			stored, err := store.List()
			if err != nil {
				return err
			}
			reporter := reporting.New(a.logger)
			content, err := reporter.Render(reporter.BuildReport(stored, &filter), format)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), content)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&format, "format", reporting.FormatMarkdown, "Output format: md or json")
	f.BoolVar(&save, "save", false, "Write the report to the reports directory instead of stdout")
	f.StringSliceVar(&filter.Models, "models", nil, "Only include these models")
	f.StringSliceVar(&filter.Websites, "websites", nil, "Only include these websites")

	return cmd
}

// saveReport aggregates the stored results and writes a timestamped report
func saveReport(a *app, store *results.Store, format string, filter *reporting.ReportFilter) (string, error) {
	stored, err := store.List()
	if err != nil {
		return "", err
	}
	reporter := reporting.New(a.logger)
	path := filepath.Join(a.cfg.ReportsDir(), reporting.GenerateFilename("macrobench", format))
	if err := reporter.SaveReport(reporter.BuildReport(stored, filter), path, format); err != nil {
		return "", err
	}
	return path, nil
}

func newServeCommand(a *app) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.setup(); err != nil {
				return err
			}
			defer a.close()

			if len(a.cfg.EnabledModels()) == 0 {
				a.logger.Warn("No models are enabled - bench_run will fail until at least one model is enabled")
			}

			if metricsAddr == "" {
				metricsAddr = a.cfg.MetricsAddr()
			}
			startMetrics(cmd.Context(), metricsAddr, a.logger)

			srv, err := server.New(a.cfg, a.logger)
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}
			started := time.Now()
			err = srv.Run()
			a.logger.Infof("Server ran for %s", time.Since(started).Round(time.Second))
			return err
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (default: metrics_addr)")
	return cmd
}
