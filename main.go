/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/PivotLLM/MacroBench/config"
	"github.com/PivotLLM/MacroBench/global"
	"github.com/PivotLLM/MacroBench/logging"
)

// app holds state shared by the subcommands
type app struct {
	configPath string
	cfg        *config.Config
	logger     *logging.Logger
}

func main() {
	// Top-level panic recovery
	defer func() {
		if rec := recover(); rec != nil {
			_, _ = fmt.Fprintf(os.Stderr, "FATAL PANIC: %v\n", rec)
			os.Exit(2)
		}
	}()

	if err := newRootCommand().Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "macrobench",
		Short: "Benchmark LLM-generated browser macros against static websites",
		Long: fmt.Sprintf(`%s v%s

Generates browser macros with each configured model for every (website, task)
pair, executes them in a headless browser runner, validates the resulting page
state and stores one result file per combination. Interrupted runs resume
without redoing completed work.

CONFIGURATION:
    --config PATH, or $%s, or %s/%s.
    A default configuration is written on first use.`,
			global.ProgramName, global.Version,
			global.ConfigEnvVar, global.DefaultBaseDir, global.DefaultConfigFileName),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to configuration file")

	rootCmd.AddCommand(newRunCommand(a))
	rootCmd.AddCommand(newReportCommand(a))
	rootCmd.AddCommand(newServeCommand(a))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// setup loads the configuration and opens the log
func (a *app) setup() error {
	var opts []config.Option
	if a.configPath != "" {
		opts = append(opts, config.WithConfigPath(a.configPath))
	}
	cfg := config.New(opts...)
	if err := cfg.Load(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	var logOpts []logging.Option
	if cfg.LogConsole() {
		logOpts = append(logOpts, logging.WithConsole(os.Stderr))
	}
	logger, err := logging.New(cfg.LogFile(), logOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetLevel(cfg.LogLevel())
	logger.Infof("%s v%s starting", global.ProgramName, global.Version)

	if cfg.IsFirstRun() {
		logger.Infof("First run detected - created default configuration at %s", cfg.ConfigPath())
		_, _ = fmt.Fprintf(os.Stderr, "Created default configuration at %s - edit it to enable models and the browser runner\n", cfg.ConfigPath())
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}

// close flushes and closes the log
func (a *app) close() {
	if a.logger != nil {
		_ = a.logger.Sync()
		_ = a.logger.Close()
	}
}

// startMetrics serves the Prometheus registry on addr until ctx is done
func startMetrics(ctx context.Context, addr string, logger *logging.Logger) {
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Infof("Metrics listening on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Metrics server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s v%s\n", global.ProgramName, global.Version)
		},
	}
}
