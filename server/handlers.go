/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/PivotLLM/MacroBench/browser"
	"github.com/PivotLLM/MacroBench/catalog"
	"github.com/PivotLLM/MacroBench/global"
	"github.com/PivotLLM/MacroBench/reporting"
	"github.com/PivotLLM/MacroBench/runner"
)

// Helper function to create JSON tool results safely
func createJSONResult(data interface{}) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(data)
	if err != nil {
		return mcp.NewToolResultError("Failed to create JSON result"), nil
	}
	return result, nil
}

// logToolCall logs an MCP tool invocation at INFO level
func (s *Server) logToolCall(toolName string, params map[string]string) {
	var parts []string
	for k, v := range params {
		if v != "" {
			parts = append(parts, fmt.Sprintf("%s=%s", k, v))
		}
	}
	if len(parts) == 0 {
		s.logger.Infof("Tool %s called", toolName)
		return
	}
	sort.Strings(parts)
	s.logger.Infof("Tool %s called: %s", toolName, strings.Join(parts, ", "))
}

// splitList parses a comma-separated parameter
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// selectionRequest builds a run request from the shared selection parameters
func selectionRequest(request mcp.CallToolRequest) (*global.RunRequest, error) {
	limit := int(mcp.ParseFloat64(request, "limit", 0))
	if limit < 0 {
		return nil, fmt.Errorf("limit must not be negative")
	}
	return &global.RunRequest{
		Websites:  splitList(mcp.ParseString(request, "websites", "")),
		Models:    splitList(mcp.ParseString(request, "models", "")),
		TaskLimit: limit,
		Resume:    mcp.ParseBoolean(request, "resume", true),
	}, nil
}

// System handlers

func (s *Server) handleHealth(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.logToolCall(global.ToolHealth, nil)
	var issues []string

	baseDir := s.config.BaseDir()
	if !global.DirExists(baseDir) {
		issues = append(issues, fmt.Sprintf("base directory does not exist: %s", baseDir))
	}

	var enabled []string
	for _, m := range s.config.EnabledModels() {
		enabled = append(enabled, m.ID)
	}
	if len(enabled) == 0 {
		issues = append(issues, "no models are enabled - edit the config file and set enabled: true for at least one model")
	}

	browserCmd := s.config.Browser().Command
	browserAvailable := browser.New(browserCmd, s.logger).IsAvailable()
	if !browserAvailable {
		issues = append(issues, fmt.Sprintf("browser runner executable not found: %s", browserCmd))
	}

	if s.config.IsFirstRun() {
		issues = append(issues, "this is a first run - configuration was just created, please review and configure")
	}

	healthy := len(issues) == 0
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}

	result := map[string]interface{}{
		"status":            status,
		"healthy":           healthy,
		"program_name":      global.ProgramName,
		"version":           global.Version,
		"base_dir":          baseDir,
		"config_path":       s.config.ConfigPath(),
		"first_run":         s.config.IsFirstRun(),
		"enabled_models":    enabled,
		"browser_available": browserAvailable,
		"running":           s.runner.IsRunning(),
	}
	if len(issues) > 0 {
		result["issues"] = issues
	}

	return createJSONResult(result)
}

// Run handlers

func (s *Server) handleStatus(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.logToolCall(global.ToolBenchStatus, nil)

	result := map[string]interface{}{
		"running": s.runner.IsRunning(),
	}
	if stats, ok := s.runner.QueueStats(); ok {
		result["queue"] = stats
	}
	if last := s.runner.LastResult(); last != nil {
		result["last_run"] = last
	}

	stored, err := s.runner.Store().List()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	succeeded := 0
	for _, r := range stored {
		if r.Success {
			succeeded++
		}
	}
	result["results"] = map[string]int{
		"total":     len(stored),
		"succeeded": succeeded,
		"failed":    len(stored) - succeeded,
	}

	return createJSONResult(result)
}

func (s *Server) handlePlan(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req, err := selectionRequest(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	maxKeys := int(mcp.ParseFloat64(request, "max_keys", 100))

	s.logToolCall(global.ToolBenchPlan, map[string]string{
		"websites": strings.Join(req.Websites, ","),
		"models":   strings.Join(req.Models, ","),
	})

	plan, err := s.runner.Plan(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	keys := plan.PendingKeys()
	truncated := false
	if maxKeys > 0 && len(keys) > maxKeys {
		keys = keys[:maxKeys]
		truncated = true
	}

	var siteNames []string
	for _, w := range plan.Websites {
		siteNames = append(siteNames, w.Name)
	}

	result := map[string]interface{}{
		"models":             plan.Models,
		"websites":           siteNames,
		"total_combinations": len(plan.Combinations),
		"already_completed":  plan.AlreadyCompleted,
		"pending":            len(plan.Pending),
		"pending_keys":       keys,
		"keys_truncated":     truncated,
	}
	if len(plan.LedgerSkipped) > 0 {
		result["unreadable_results"] = plan.LedgerSkipped
	}

	return createJSONResult(result)
}

func (s *Server) handleRun(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req, err := selectionRequest(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	req.Workers = int(mcp.ParseFloat64(request, "workers", 0))
	req.MaxAttempts = int(mcp.ParseFloat64(request, "max_attempts", 0))
	if secs := mcp.ParseFloat64(request, "timeout_seconds", 0); secs > 0 {
		req.Timeout = time.Duration(secs * float64(time.Second))
	}
	req.HaltOnFailure = mcp.ParseBoolean(request, "halt_on_failure", false)

	s.logToolCall(global.ToolBenchRun, map[string]string{
		"websites": strings.Join(req.Websites, ","),
		"models":   strings.Join(req.Models, ","),
	})

	if s.runner.IsRunning() {
		return mcp.NewToolResultError(runner.ErrRunInProgress.Error()), nil
	}

	// Resolve the selection up front so bad input is reported to the caller
	plan, err := s.runner.Plan(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	// The run outlives this request; it is cancelled when the server shuts down
	if err := s.runner.Start(s.ctx, req); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return createJSONResult(map[string]interface{}{
		"started":            true,
		"total_combinations": len(plan.Combinations),
		"already_completed":  plan.AlreadyCompleted,
		"pending":            len(plan.Pending),
		"message":            fmt.Sprintf("Run started with %d pending items. Use %s to follow progress.", len(plan.Pending), global.ToolBenchStatus),
	})
}

// Result handlers

// resultSummary is the compact form returned by bench_results
type resultSummary struct {
	Key            string  `json:"key"`
	Model          string  `json:"model"`
	Website        string  `json:"website"`
	TaskID         string  `json:"task_id"`
	Success        bool    `json:"success"`
	Attempts       int     `json:"attempts"`
	Category       string  `json:"category,omitempty"`
	LastError      string  `json:"last_error,omitempty"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	RunID          string  `json:"run_id,omitempty"`
}

func summarize(r *global.TaskResult) resultSummary {
	sum := resultSummary{
		Key:            r.Key,
		Model:          r.Model,
		Website:        r.Website.Name,
		TaskID:         r.Task.ID,
		Success:        r.Success,
		Attempts:       len(r.Attempts),
		ElapsedSeconds: r.TotalElapsedSeconds,
		RunID:          r.RunID,
	}
	if r.FinalOutcome != nil && r.FinalOutcome.Verdict != nil {
		sum.Category = r.FinalOutcome.Verdict.Category
	}
	if !r.Success && len(r.Attempts) > 0 {
		sum.LastError = r.Attempts[len(r.Attempts)-1].Error
	}
	return sum
}

func (s *Server) handleResults(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	model := mcp.ParseString(request, "model", "")
	website := mcp.ParseString(request, "website", "")
	status := strings.ToLower(mcp.ParseString(request, "status", ""))
	offset := int(mcp.ParseFloat64(request, "offset", 0))
	limit := int(mcp.ParseFloat64(request, "limit", 50))

	s.logToolCall(global.ToolBenchResults, map[string]string{"model": model, "website": website, "status": status})

	if status != "" && status != "success" && status != "failed" {
		return mcp.NewToolResultError("status must be success or failed"), nil
	}
	if offset < 0 {
		offset = 0
	}

	stored, err := s.runner.Store().List()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var matched []resultSummary
	for _, r := range stored {
		if model != "" && r.Model != model {
			continue
		}
		if website != "" && r.Website.Name != website {
			continue
		}
		if status == "success" && !r.Success || status == "failed" && r.Success {
			continue
		}
		matched = append(matched, summarize(r))
	}

	total := len(matched)
	if offset > total {
		offset = total
	}
	page := matched[offset:]
	if limit > 0 && len(page) > limit {
		page = page[:limit]
	}

	return createJSONResult(map[string]interface{}{
		"results":  page,
		"count":    len(page),
		"total":    total,
		"offset":   offset,
		"has_more": offset+len(page) < total,
	})
}

func (s *Server) handleResultGet(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key := mcp.ParseString(request, "key", "")
	includeCode := mcp.ParseBoolean(request, "include_code", false)

	s.logToolCall(global.ToolBenchResultGet, map[string]string{"key": key})

	if key == "" {
		return mcp.NewToolResultError("key parameter is required"), nil
	}
	if _, _, _, err := catalog.ParseKey(key); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.runner.Store().Load(key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return mcp.NewToolResultError(fmt.Sprintf("no result stored for %s", key)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}

	if !includeCode {
		for i := range result.Attempts {
			result.Attempts[i].GeneratedCode = ""
		}
	}

	return createJSONResult(result)
}

// Report handlers

func (s *Server) handleReport(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format := strings.ToLower(mcp.ParseString(request, "format", reporting.FormatMarkdown))
	models := splitList(mcp.ParseString(request, "model", ""))
	sites := splitList(mcp.ParseString(request, "website", ""))
	save := mcp.ParseBoolean(request, "save", false)

	s.logToolCall(global.ToolBenchReport, map[string]string{"format": format})

	if format == "markdown" {
		format = reporting.FormatMarkdown
	}
	if format != reporting.FormatMarkdown && format != reporting.FormatJSON {
		return mcp.NewToolResultError("format must be md or json"), nil
	}

	stored, err := s.runner.Store().List()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	report := s.reporter.BuildReport(stored, &reporting.ReportFilter{Models: models, Websites: sites})
	content, err := s.reporter.Render(report, format)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := map[string]interface{}{
		"format":  format,
		"content": content,
		"total":   report.Summary.Total,
	}
	if save {
		path := filepath.Join(s.config.ReportsDir(), reporting.GenerateFilename("macrobench", format))
		if err := s.reporter.SaveReport(report, path, format); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		result["path"] = path
	}

	return createJSONResult(result)
}
