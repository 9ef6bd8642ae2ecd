/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/PivotLLM/MacroBench/config"
	"github.com/PivotLLM/MacroBench/global"
	"github.com/PivotLLM/MacroBench/logging"
	"github.com/PivotLLM/MacroBench/reporting"
	"github.com/PivotLLM/MacroBench/runner"
)

// Server exposes the benchmark runner over MCP
type Server struct {
	config    *config.Config
	logger    *logging.Logger
	runner    *runner.Runner
	reporter  *reporting.Reporter
	mcpServer *server.MCPServer

	// background runs started through bench_run are cancelled on shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Server
type Option func(*Server)

// WithRunner uses an existing runner instead of one built from the config
func WithRunner(r *runner.Runner) Option {
	return func(s *Server) {
		s.runner = r
	}
}

// New creates a new server instance
func New(cfg *config.Config, logger *logging.Logger, opts ...Option) (*Server, error) {
	mcpServer := server.NewMCPServer(
		global.ProgramName,
		global.Version,
		server.WithToolCapabilities(true),
		server.WithLogging(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	srv := &Server{
		config:    cfg,
		logger:    logger,
		reporter:  reporting.New(logger),
		mcpServer: mcpServer,
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(srv)
	}
	if srv.runner == nil {
		srv.runner = runner.NewFromConfig(cfg, logger, runner.WithMetrics(runner.DefaultMetrics()))
	}

	if err := srv.registerTools(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return srv, nil
}

// readOnlyTool creates a tool with read-only annotations
// ReadOnly: true, Destructive: false, OpenWorld: false
func (s *Server) readOnlyTool(name string, opts ...mcp.ToolOption) mcp.Tool {
	opts = append(opts, mcp.WithToolAnnotation(mcp.ToolAnnotation{
		ReadOnlyHint:    mcp.ToBoolPtr(true),
		DestructiveHint: mcp.ToBoolPtr(false),
		OpenWorldHint:   mcp.ToBoolPtr(false),
	}))
	return mcp.NewTool(name, opts...)
}

// defaultTool creates a tool with default annotations (non-destructive)
// ReadOnly: false, Destructive: false, OpenWorld: false
func (s *Server) defaultTool(name string, opts ...mcp.ToolOption) mcp.Tool {
	opts = append(opts, mcp.WithToolAnnotation(mcp.ToolAnnotation{
		ReadOnlyHint:    mcp.ToBoolPtr(false),
		DestructiveHint: mcp.ToBoolPtr(false),
		OpenWorldHint:   mcp.ToBoolPtr(false),
	}))
	return mcp.NewTool(name, opts...)
}

// selectionOptions are the run-selection parameters shared by bench_plan and bench_run
func selectionOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("websites",
			mcp.Description("Comma-separated website names (default: all websites)"),
		),
		mcp.WithString("models",
			mcp.Description("Comma-separated model ids (default: all enabled models)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum tasks per website (default: 0 = all)"),
		),
		mcp.WithBoolean("resume",
			mcp.Description("Skip combinations that already have a successful result (default: true)"),
		),
	}
}

// registerTools registers all MCP tools
func (s *Server) registerTools() error {
	s.mcpServer.AddTool(
		s.readOnlyTool(global.ToolHealth,
			mcp.WithDescription("Report server version, enabled models and whether the browser runner is available."),
		), s.handleHealth)

	s.mcpServer.AddTool(
		s.readOnlyTool(global.ToolBenchStatus,
			mcp.WithDescription("Show whether a benchmark run is active, its live queue counters, the last run summary and stored result counts."),
		), s.handleStatus)

	s.mcpServer.AddTool(
		s.readOnlyTool(global.ToolBenchPlan,
			append(selectionOptions(),
				mcp.WithDescription("Resolve a run selection into its combinations and list the pending composite keys without executing anything."),
				mcp.WithNumber("max_keys",
					mcp.Description("Maximum pending keys to list (default: 100)"),
				),
			)...,
		), s.handlePlan)

	s.mcpServer.AddTool(
		s.defaultTool(global.ToolBenchRun,
			append(selectionOptions(),
				mcp.WithDescription("Start a benchmark run in the background. Use bench_status to follow progress. Only one run may be active at a time."),
				mcp.WithNumber("workers",
					mcp.Description("Concurrent workers (default: runner.workers from config)"),
				),
				mcp.WithNumber("max_attempts",
					mcp.Description("Attempts per combination (default: runner.max_attempts from config)"),
				),
				mcp.WithNumber("timeout_seconds",
					mcp.Description("Per-attempt execution timeout in seconds (default: browser.timeout_seconds from config)"),
				),
				mcp.WithBoolean("halt_on_failure",
					mcp.Description("Stop claiming new work after the first combination exhausts its attempts"),
				),
			)...,
		), s.handleRun)

	s.mcpServer.AddTool(
		s.readOnlyTool(global.ToolBenchResults,
			mcp.WithDescription("List stored task results sorted by composite key. Returns a compact summary per result."),
			mcp.WithString("model",
				mcp.Description("Filter by model id (optional)"),
			),
			mcp.WithString("website",
				mcp.Description("Filter by website name (optional)"),
			),
			mcp.WithString("status",
				mcp.Description("Filter by outcome: success or failed (optional)"),
			),
			mcp.WithNumber("offset",
				mcp.Description("Number of results to skip"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of results (default: 50)"),
			),
		), s.handleResults)

	s.mcpServer.AddTool(
		s.readOnlyTool(global.ToolBenchResultGet,
			mcp.WithDescription("Get the full stored result for one composite key (model__website__taskID), including every attempt and validation verdict."),
			mcp.WithString("key",
				mcp.Description("Composite key"),
				mcp.Required(),
			),
			mcp.WithBoolean("include_code",
				mcp.Description("Include generated code for each attempt (default: false)"),
			),
		), s.handleResultGet)

	s.mcpServer.AddTool(
		s.defaultTool(global.ToolBenchReport,
			mcp.WithDescription("Aggregate stored results by model, website, difficulty and validation category."),
			mcp.WithString("format",
				mcp.Description("Output format: md (default) or json"),
			),
			mcp.WithString("model",
				mcp.Description("Comma-separated model ids to include (optional)"),
			),
			mcp.WithString("website",
				mcp.Description("Comma-separated website names to include (optional)"),
			),
			mcp.WithBoolean("save",
				mcp.Description("Also write the report to the reports directory (default: false)"),
			),
		), s.handleReport)

	return nil
}

// Run starts the MCP server with graceful shutdown
func (s *Server) Run() error {
	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		// ServeStdio returns when stdin is closed (EOF) or on error
		errChan <- server.ServeStdio(s.mcpServer)
	}()

	s.logger.Infof("MCP server started successfully")

	select {
	case <-sigChan:
		s.logger.Info("Shutdown signal received")
		s.shutdown()
		s.logger.Info("Server stopped")
		if err := s.logger.Sync(); err != nil {
			s.logger.Warnf("Failed to flush logs on shutdown: %v", err)
		}
		return nil

	case err := <-errChan:
		if err != nil {
			s.logger.Errorf("Server error: %v", err)
			s.shutdown()
			return fmt.Errorf("server error: %w", err)
		}
		s.logger.Info("Connection closed")
		s.waitForRunner()
		s.logger.Info("Server exiting")
		return nil
	}
}

// shutdown stops background runs from claiming more work and waits for in-flight items
func (s *Server) shutdown() {
	s.cancel()
	s.waitForRunner()
}

// waitForRunner waits for an active run to finish its claimed items so their
// results are persisted before the process exits
func (s *Server) waitForRunner() {
	if s.runner.IsRunning() {
		s.logger.Info("Waiting for runner to complete active items...")
		s.runner.Wait()
		s.logger.Info("Runner completed all items")
	}
}
