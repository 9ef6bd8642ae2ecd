/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package global

import (
	"fmt"
	"time"
)

//goland:noinspection GoCommentStart
const (
	// Configuration constants
	ConfigEnvVar          = "MACROBENCH_CONFIG"
	DefaultBaseDir        = "~/.macrobench"
	DefaultConfigFileName = "config.json"
	DefaultWebsitesDir    = "websites"
	DefaultTasksDir       = "tasks"
	DefaultResultsDir     = "results"
	DefaultReportsDir     = "reports"
	DefaultEntryFile      = "index.html"

	// KeySeparator joins model, website and task id into a composite key
	KeySeparator = "__"

	// MCP Tool Names
	ToolBenchStatus    = "bench_status"
	ToolBenchPlan      = "bench_plan"
	ToolBenchResults   = "bench_results"
	ToolBenchResultGet = "bench_result_get"
	ToolBenchReport    = "bench_report"
	ToolBenchRun       = "bench_run"
	ToolHealth         = "health"

	// Work item states
	ItemStatePending   = "pending"
	ItemStateClaimed   = "claimed"
	ItemStateSuccess   = "success"
	ItemStateExhausted = "exhausted"

	// Attempt limits (billable generator invocations per work item)
	DefaultMaxAttempts = 2
	MaxAttemptsLimit   = 10

	// Execution timeout for one macro run in the browser
	DefaultExecutionTimeout = 30 * time.Second
	MinExecutionTimeout     = 1 * time.Second
	MaxExecutionTimeout     = 10 * time.Minute

	// Generation timeout for one model call
	DefaultGenerationTimeout = 300 // seconds

	// Runner Default Values
	DefaultWorkers           = 2
	MaxWorkersLimit          = 64
	DefaultRateLimitRequests = 30
	DefaultRateLimitPeriod   = 60

	// Result store limits
	DefaultMaxResultBytes = 10 * 1024 * 1024
	MaxTrimmedErrorLen    = 2000

	// Prompt limits (0 sends the full website source)
	DefaultMaxSourceBytes = 0

	// Log Levels
	LogLevelDebug = "DEBUG"
	LogLevelInfo  = "INFO"
	LogLevelWarn  = "WARN"
	LogLevelError = "ERROR"
	LogLevelFatal = "FATAL"

	// API Key Prefix
	EnvKeyPrefix = "env:"

	// Attempt error strings
	ErrorTimeout          = "timeout"
	ErrorValidationFailed = "rule-based validation failed"
)

// ValidateMaxAttempts validates and normalizes max_attempts.
// If value is 0, returns DefaultMaxAttempts.
func ValidateMaxAttempts(maxAttempts int) (int, error) {
	if maxAttempts == 0 {
		return DefaultMaxAttempts, nil
	}
	if maxAttempts < 1 {
		return 0, fmt.Errorf("max_attempts must be at least 1")
	}
	if maxAttempts > MaxAttemptsLimit {
		return 0, fmt.Errorf("max_attempts must be at most %d", MaxAttemptsLimit)
	}
	return maxAttempts, nil
}

// ValidateExecutionTimeout validates and normalizes the per-attempt execution timeout.
// If timeout is 0, returns DefaultExecutionTimeout.
func ValidateExecutionTimeout(timeout time.Duration) (time.Duration, error) {
	if timeout == 0 {
		return DefaultExecutionTimeout, nil
	}
	if timeout < MinExecutionTimeout {
		return 0, fmt.Errorf("timeout must be at least %v", MinExecutionTimeout)
	}
	if timeout > MaxExecutionTimeout {
		return 0, fmt.Errorf("timeout must be at most %v", MaxExecutionTimeout)
	}
	return timeout, nil
}

// ValidateWorkers validates and normalizes the worker count.
// If value is 0, returns DefaultWorkers.
func ValidateWorkers(workers int) (int, error) {
	if workers == 0 {
		return DefaultWorkers, nil
	}
	if workers < 1 {
		return 0, fmt.Errorf("workers must be at least 1")
	}
	if workers > MaxWorkersLimit {
		return 0, fmt.Errorf("workers must be at most %d", MaxWorkersLimit)
	}
	return workers, nil
}
