/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package server

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PivotLLM/MacroBench/browser"
	"github.com/PivotLLM/MacroBench/config"
	"github.com/PivotLLM/MacroBench/global"
	"github.com/PivotLLM/MacroBench/llm"
	"github.com/PivotLLM/MacroBench/logging"
	"github.com/PivotLLM/MacroBench/runner"
)

const (
	pageBefore = `<html><head><title>Form</title></head><body><form><button id="go">Submit</button></form></body></html>`
	pageAfter  = `<html><head><title>Thanks</title></head><body><p>Thanks for submitting</p></body></html>`
)

type stubGenerator struct{}

func (stubGenerator) Generate(_ context.Context, _ llm.GenerateRequest) (string, error) {
	return "document.querySelector('#go').click()", nil
}

type stubExecutor struct {
	block chan struct{}
}

func (e *stubExecutor) Execute(_ context.Context, _ browser.ExecuteRequest) (*global.ExecutionOutcome, error) {
	if e.block != nil {
		<-e.block
	}
	return &global.ExecutionOutcome{
		Success:    true,
		PageBefore: &global.PageState{URL: "file:///forms/index.html", HTML: pageBefore},
		PageAfter:  &global.PageState{URL: "file:///forms/thanks.html", HTML: pageAfter},
	}, nil
}

func setupServer(t *testing.T, exec browser.Executor) *Server {
	t.Helper()
	base := t.TempDir()

	siteDir := filepath.Join(base, "websites", "forms")
	require.NoError(t, os.MkdirAll(siteDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(siteDir, "index.html"), []byte(pageBefore), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(base, "tasks"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "tasks", "forms.json"), []byte(`[
		{"id": "T1", "description": "click submit button", "difficulty": "easy"},
		{"id": "T2", "description": "press the submit button", "difficulty": "medium"}
	]`), 0644))

	configPath := filepath.Join(base, "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{
		"version": 1,
		"base_dir": "`+base+`",
		"models": [
			{"id": "m1", "type": "command", "command": "/bin/echo", "args": ["{{PROMPT}}"], "enabled": true}
		],
		"browser": {"command": "/bin/cat", "timeout_seconds": 5},
		"runner": {"workers": 2, "max_attempts": 2},
		"logging": {"level": "DEBUG"}
	}`), 0644))

	cfg := config.New(config.WithConfigPath(configPath))
	require.NoError(t, cfg.Load())

	logger := logging.NewNop()
	rn := runner.New(cfg, logger, stubGenerator{}, exec)
	srv, err := New(cfg, logger, WithRunner(rn))
	require.NoError(t, err)
	t.Cleanup(srv.cancel)
	return srv
}

func call(args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func decode(t *testing.T, res *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotNil(t, res)
	require.False(t, res.IsError, "unexpected tool error: %v", res.Content)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func errorText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.True(t, res.IsError)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b ,"))
}

func TestHealth(t *testing.T) {
	srv := setupServer(t, &stubExecutor{})
	res, err := srv.handleHealth(context.Background(), call(nil))
	require.NoError(t, err)

	out := decode(t, res)
	assert.Equal(t, "healthy", out["status"])
	assert.Equal(t, global.Version, out["version"])
	assert.Equal(t, []interface{}{"m1"}, out["enabled_models"])
	assert.Equal(t, true, out["browser_available"])
}

func TestPlanRunAndResults(t *testing.T) {
	srv := setupServer(t, &stubExecutor{})
	ctx := context.Background()

	res, err := srv.handlePlan(ctx, call(map[string]interface{}{"websites": "forms"}))
	require.NoError(t, err)
	plan := decode(t, res)
	assert.EqualValues(t, 2, plan["total_combinations"])
	assert.EqualValues(t, 2, plan["pending"])
	assert.Equal(t, []interface{}{"m1__forms__T1", "m1__forms__T2"}, plan["pending_keys"])

	res, err = srv.handleRun(ctx, call(map[string]interface{}{"workers": float64(1)}))
	require.NoError(t, err)
	started := decode(t, res)
	assert.Equal(t, true, started["started"])
	srv.runner.Wait()

	last := srv.runner.LastResult()
	require.NotNil(t, last)
	assert.Equal(t, 2, last.Succeeded)

	res, err = srv.handleStatus(ctx, call(nil))
	require.NoError(t, err)
	status := decode(t, res)
	assert.Equal(t, false, status["running"])
	counts := status["results"].(map[string]interface{})
	assert.EqualValues(t, 2, counts["succeeded"])

	// Resumed plan has nothing left
	res, err = srv.handlePlan(ctx, call(nil))
	require.NoError(t, err)
	plan = decode(t, res)
	assert.EqualValues(t, 2, plan["already_completed"])
	assert.EqualValues(t, 0, plan["pending"])

	res, err = srv.handleResults(ctx, call(map[string]interface{}{"status": "success", "limit": float64(1)}))
	require.NoError(t, err)
	list := decode(t, res)
	assert.EqualValues(t, 2, list["total"])
	assert.EqualValues(t, 1, list["count"])
	assert.Equal(t, true, list["has_more"])

	res, err = srv.handleResults(ctx, call(map[string]interface{}{"status": "failed"}))
	require.NoError(t, err)
	assert.EqualValues(t, 0, decode(t, res)["total"])

	res, err = srv.handleResultGet(ctx, call(map[string]interface{}{"key": "m1__forms__T1"}))
	require.NoError(t, err)
	got := decode(t, res)
	assert.Equal(t, true, got["success"])
	attempts := got["attempts"].([]interface{})
	require.Len(t, attempts, 1)
	assert.Equal(t, "", attempts[0].(map[string]interface{})["generated_code"])

	res, err = srv.handleResultGet(ctx, call(map[string]interface{}{"key": "m1__forms__T1", "include_code": true}))
	require.NoError(t, err)
	attempts = decode(t, res)["attempts"].([]interface{})
	assert.NotEmpty(t, attempts[0].(map[string]interface{})["generated_code"])
}

func TestResultGetErrors(t *testing.T) {
	srv := setupServer(t, &stubExecutor{})
	ctx := context.Background()

	res, err := srv.handleResultGet(ctx, call(nil))
	require.NoError(t, err)
	assert.Contains(t, errorText(t, res), "key parameter is required")

	res, err = srv.handleResultGet(ctx, call(map[string]interface{}{"key": "not-a-key"}))
	require.NoError(t, err)
	assert.Contains(t, errorText(t, res), "invalid composite key")

	res, err = srv.handleResultGet(ctx, call(map[string]interface{}{"key": "m1__forms__T9"}))
	require.NoError(t, err)
	assert.Contains(t, errorText(t, res), "no result stored")
}

func TestResultsRejectsBadStatus(t *testing.T) {
	srv := setupServer(t, &stubExecutor{})
	res, err := srv.handleResults(context.Background(), call(map[string]interface{}{"status": "maybe"}))
	require.NoError(t, err)
	assert.Contains(t, errorText(t, res), "status must be")
}

func TestPlanRejectsUnknownModel(t *testing.T) {
	srv := setupServer(t, &stubExecutor{})
	res, err := srv.handlePlan(context.Background(), call(map[string]interface{}{"models": "nope"}))
	require.NoError(t, err)
	assert.Contains(t, errorText(t, res), "unknown model")
}

func TestRunInProgress(t *testing.T) {
	exec := &stubExecutor{block: make(chan struct{})}
	srv := setupServer(t, exec)
	ctx := context.Background()

	res, err := srv.handleRun(ctx, call(nil))
	require.NoError(t, err)
	decode(t, res)

	res, err = srv.handleRun(ctx, call(nil))
	require.NoError(t, err)
	assert.Contains(t, errorText(t, res), runner.ErrRunInProgress.Error())

	close(exec.block)
	srv.runner.Wait()
	assert.False(t, srv.runner.IsRunning())
}

func TestReport(t *testing.T) {
	srv := setupServer(t, &stubExecutor{})
	ctx := context.Background()

	_, err := srv.runner.Run(ctx, &global.RunRequest{Resume: true})
	require.NoError(t, err)

	res, err := srv.handleReport(ctx, call(nil))
	require.NoError(t, err)
	out := decode(t, res)
	assert.Equal(t, "md", out["format"])
	assert.EqualValues(t, 2, out["total"])
	assert.Contains(t, out["content"], "# MacroBench Report")
	assert.NotContains(t, out, "path")

	res, err = srv.handleReport(ctx, call(map[string]interface{}{"format": "json", "save": true, "model": "m1"}))
	require.NoError(t, err)
	out = decode(t, res)
	path, ok := out["path"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(path, srv.config.ReportsDir()))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))

	res, err = srv.handleReport(ctx, call(map[string]interface{}{"format": "pdf"}))
	require.NoError(t, err)
	assert.Contains(t, errorText(t, res), "format must be")
}
