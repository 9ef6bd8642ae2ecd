/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

// Package browser runs generated macro code against a page through an external
// headless-browser runner command. Each execution is a fresh runner process and
// therefore a fresh browser session.
package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/PivotLLM/MacroBench/global"
	"github.com/PivotLLM/MacroBench/logging"
)

// Executor runs macro code in a browser and reports what happened
type Executor interface {
	Execute(ctx context.Context, req ExecuteRequest) (*global.ExecutionOutcome, error)
}

// ExecuteRequest is one macro execution
type ExecuteRequest struct {
	Key       string
	Code      string
	EntryPath string
	Task      global.Task
	Attempt   int
	Timeout   time.Duration // 0 uses the runner default
}

// runnerRequest is the JSON document written to the runner's stdin
type runnerRequest struct {
	Key          string      `json:"key"`
	Code         string      `json:"code"`
	EntryPath    string      `json:"entry_path"`
	URL          string      `json:"url"`
	Task         global.Task `json:"task"`
	Attempt      int         `json:"attempt"`
	TimeoutMS    int64       `json:"timeout_ms"`
	CustomChecks []string    `json:"custom_checks,omitempty"` // Expressions to evaluate after execution
	ArtifactsDir string      `json:"artifacts_dir,omitempty"`
}

// runnerOutput is the JSON document the runner prints to stdout
type runnerOutput struct {
	Success      *bool             `json:"success"`
	Error        string            `json:"error,omitempty"`
	PageBefore   *global.PageState `json:"page_before,omitempty"`
	PageAfter    *global.PageState `json:"page_after,omitempty"`
	CustomChecks map[string]bool   `json:"custom_checks,omitempty"`
	Artifacts    map[string]string `json:"artifacts,omitempty"`
	Logs         []string          `json:"logs,omitempty"`
}

// Runner executes macros via a configured command
type Runner struct {
	command      string
	args         []string
	env          map[string]string
	timeout      time.Duration
	artifactsDir string
	logger       *logging.Logger
}

// Option configures a Runner
type Option func(*Runner)

// New creates a new Runner for the given command
func New(command string, logger *logging.Logger, opts ...Option) *Runner {
	r := &Runner{
		command: command,
		timeout: global.DefaultExecutionTimeout,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithArgs sets extra arguments passed to the runner command
func WithArgs(args []string) Option {
	return func(r *Runner) {
		r.args = args
	}
}

// WithEnv adds environment variables for the runner command
func WithEnv(env map[string]string) Option {
	return func(r *Runner) {
		r.env = env
	}
}

// WithTimeout sets the default execution timeout
func WithTimeout(timeout time.Duration) Option {
	return func(r *Runner) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithArtifactsDir sets where the runner should place screenshots and traces
func WithArtifactsDir(dir string) Option {
	return func(r *Runner) {
		r.artifactsDir = dir
	}
}

// IsAvailable checks if the runner command can be found
func (r *Runner) IsAvailable() bool {
	_, err := exec.LookPath(r.command)
	return err == nil
}

// Execute runs one macro under a hard timeout. A timeout is reported as a failed
// outcome with error "timeout", not as an error. An error is returned only when
// the runner could not be started at all.
func (r *Runner) Execute(ctx context.Context, req ExecuteRequest) (*global.ExecutionOutcome, error) {
	timeout := r.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}

	input, err := json.Marshal(r.buildRequest(req, timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to encode runner request: %w", err)
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, r.command, r.args...)
	cmd.WaitDelay = time.Second
	cmd.Stdin = bytes.NewReader(input)
	if len(r.env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range r.env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debugf("Browser: executing %s attempt %d (timeout %v)", req.Key, req.Attempt, timeout)

	start := time.Now()
	err = cmd.Run()
	duration := time.Since(start)

	if err != nil {
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			r.logger.Warnf("Browser: %s attempt %d timed out after %v", req.Key, req.Attempt, timeout)
			return &global.ExecutionOutcome{
				Success:  false,
				Error:    global.ErrorTimeout,
				TimedOut: true,
				Logs:     tailLines(stderr.String(), 20),
			}, nil
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}

		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			r.logger.Errorf("Browser: failed to start runner: %v", err)
			return nil, fmt.Errorf("failed to execute browser runner: %w", err)
		}
	}

	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}

	outcome := r.parseOutcome(stdout.String(), stderr.String(), exitCode)

	r.logger.Debugf("Browser: %s attempt %d finished in %v, exit=%d success=%v",
		req.Key, req.Attempt, duration.Round(time.Millisecond), exitCode, outcome.Success)

	return outcome, nil
}

func (r *Runner) buildRequest(req ExecuteRequest, timeout time.Duration) runnerRequest {
	rr := runnerRequest{
		Key:       req.Key,
		Code:      req.Code,
		EntryPath: req.EntryPath,
		URL:       fileURL(req.EntryPath),
		Task:      req.Task,
		Attempt:   req.Attempt,
		TimeoutMS: timeout.Milliseconds(),
	}
	if gt := req.Task.GroundTruth; gt != nil && strings.TrimSpace(gt.CustomValidation) != "" {
		rr.CustomChecks = []string{gt.CustomValidation}
	}
	if r.artifactsDir != "" {
		dir, err := global.ValidatePathWithinDir(r.artifactsDir, filepath.Join(global.KeyFileStem(req.Key), fmt.Sprintf("attempt-%d", req.Attempt)))
		if err != nil {
			r.logger.Warnf("Browser: no artifacts directory for %s: %v", req.Key, err)
		} else {
			rr.ArtifactsDir = dir
		}
	}
	return rr
}

// parseOutcome turns runner output into an outcome. A non-zero exit without a
// JSON document is a failed outcome carrying stderr.
func (r *Runner) parseOutcome(stdout, stderr string, exitCode int) *global.ExecutionOutcome {
	out, err := parseRunnerOutput(stdout)
	if err != nil {
		msg := strings.TrimSpace(stderr)
		if msg == "" {
			msg = fmt.Sprintf("browser runner returned no result (exit code %d)", exitCode)
		}
		return &global.ExecutionOutcome{
			Success: false,
			Error:   msg,
			Logs:    tailLines(stdout, 20),
		}
	}

	outcome := &global.ExecutionOutcome{
		Success:      out.Success != nil && *out.Success && exitCode == 0,
		Error:        out.Error,
		PageBefore:   out.PageBefore,
		PageAfter:    out.PageAfter,
		CustomChecks: out.CustomChecks,
		Artifacts:    out.Artifacts,
		Logs:         out.Logs,
	}
	if out.Success == nil && outcome.Error == "" && exitCode == 0 {
		outcome.Success = true
	}
	if exitCode != 0 && outcome.Error == "" {
		outcome.Error = strings.TrimSpace(stderr)
		if outcome.Error == "" {
			outcome.Error = fmt.Sprintf("browser runner exited with code %d", exitCode)
		}
	}
	return outcome
}

// parseRunnerOutput accepts a single JSON document, or JSON lines where the
// last valid object wins
func parseRunnerOutput(stdout string) (*runnerOutput, error) {
	trimmed := strings.TrimSpace(stdout)
	if trimmed == "" {
		return nil, fmt.Errorf("empty runner output")
	}

	var out runnerOutput
	if err := json.Unmarshal([]byte(trimmed), &out); err == nil {
		return &out, nil
	}

	lines := strings.Split(trimmed, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var candidate runnerOutput
		if err := json.Unmarshal([]byte(line), &candidate); err == nil {
			return &candidate, nil
		}
	}

	return nil, fmt.Errorf("no valid output found")
}

func fileURL(path string) string {
	if path == "" {
		return ""
	}
	return "file://" + filepath.ToSlash(path)
}

func tailLines(s string, n int) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}
