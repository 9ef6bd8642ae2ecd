/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package global

import (
	"strings"
	"time"
)

// GroundTruth holds task-authored, deterministic success criteria.
// Every field is optional; an empty descriptor is treated as absent.
type GroundTruth struct {
	ExpectedURLChange       string   `json:"expected_url_change,omitempty" yaml:"expected_url_change,omitempty"`
	ExpectedElementSelector string   `json:"expected_element_selector,omitempty" yaml:"expected_element_selector,omitempty"`
	ExpectedElementText     string   `json:"expected_element_text,omitempty" yaml:"expected_element_text,omitempty"`
	CustomValidation        string   `json:"custom_validation,omitempty" yaml:"custom_validation,omitempty"` // Boolean page expression, evaluated by the browser runner
	SuccessIndicators       []string `json:"success_indicators,omitempty" yaml:"success_indicators,omitempty"`
}

// IsEmpty reports whether the descriptor carries no usable criteria
func (g *GroundTruth) IsEmpty() bool {
	if g == nil {
		return true
	}
	return strings.TrimSpace(g.ExpectedURLChange) == "" &&
		strings.TrimSpace(g.ExpectedElementSelector) == "" &&
		strings.TrimSpace(g.ExpectedElementText) == "" &&
		strings.TrimSpace(g.CustomValidation) == "" &&
		len(g.SuccessIndicators) == 0
}

// Task is an immutable benchmark task descriptor
type Task struct {
	ID             string       `json:"id" yaml:"id"`
	Description    string       `json:"description" yaml:"description"`
	Objective      string       `json:"objective,omitempty" yaml:"objective,omitempty"`
	ExpectedResult string       `json:"expected_result,omitempty" yaml:"expected_result,omitempty"`
	Difficulty     string       `json:"difficulty,omitempty" yaml:"difficulty,omitempty"`
	Category       string       `json:"category,omitempty" yaml:"category,omitempty"`
	Tags           []string     `json:"tags,omitempty" yaml:"tags,omitempty"`
	Notes          string       `json:"notes,omitempty" yaml:"notes,omitempty"`
	GroundTruth    *GroundTruth `json:"ground_truth,omitempty" yaml:"ground_truth,omitempty"`
}

// Website is a static page under test
type Website struct {
	Name      string `json:"name"`
	EntryPath string `json:"entry_path"`    // Absolute path of the entry HTML file
	Dir       string `json:"dir,omitempty"` // Directory holding the site's files
}

// WorkItem is one pending unit of required benchmark execution
type WorkItem struct {
	Key          string  `json:"key"`
	Model        string  `json:"model"`
	Website      Website `json:"website"`
	Task         Task    `json:"task"`
	AttemptsMade int     `json:"attempts_made"`
	MaxAttempts  int     `json:"max_attempts"`
}

// PageState is a snapshot of the page captured by the browser runner
type PageState struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
	HTML  string `json:"html,omitempty"`
	Text  string `json:"text,omitempty"` // Visible text, if the runner extracted it
}

// CheckResult is one named validation predicate and its outcome
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// ValidationVerdict is the validation engine's judgement for one execution attempt
type ValidationVerdict struct {
	Success         bool                   `json:"success"`
	Category        string                 `json:"category,omitempty"`
	Checks          []CheckResult          `json:"checks"`
	Evidence        map[string]interface{} `json:"evidence,omitempty"`
	UsedGroundTruth bool                   `json:"used_ground_truth"`
	UsedFallback    bool                   `json:"used_fallback"`
	Reason          string                 `json:"reason,omitempty"`
}

// ExecutionOutcome is what happened when generated code ran in the browser.
// Success is the runner's own claim; Verdict is the independent judgement.
type ExecutionOutcome struct {
	Success      bool               `json:"success"`
	Error        string             `json:"error,omitempty"`
	TimedOut     bool               `json:"timed_out,omitempty"`
	PageBefore   *PageState         `json:"page_before,omitempty"`
	PageAfter    *PageState         `json:"page_after,omitempty"`
	CustomChecks map[string]bool    `json:"custom_checks,omitempty"`
	Artifacts    map[string]string  `json:"artifacts,omitempty"` // Screenshot paths etc., stored but not interpreted
	Logs         []string           `json:"logs,omitempty"`
	Verdict      *ValidationVerdict `json:"verdict,omitempty"`
}

// AttemptRecord is one generate, execute, validate cycle
type AttemptRecord struct {
	AttemptNumber    int               `json:"attempt_number"`
	Model            string            `json:"model"`
	GeneratedCode    string            `json:"generated_code"`
	ExecutionOutcome *ExecutionOutcome `json:"execution_outcome,omitempty"`
	Success          bool              `json:"success"`
	Error            string            `json:"error,omitempty"`
	ElapsedSeconds   float64           `json:"elapsed_seconds"`
	Timestamp        time.Time         `json:"timestamp"`
}

// PreviousAttempt is the failure context handed to the generator on retries
type PreviousAttempt struct {
	AttemptNumber int    `json:"attempt_number"`
	Code          string `json:"code"`
	Error         string `json:"error"`
}

// TaskResult is the persisted record for one composite key.
// Stored in results/<key>.json
type TaskResult struct {
	RunID               string            `json:"run_id,omitempty"`
	Key                 string            `json:"key"`
	Model               string            `json:"model"`
	Website             Website           `json:"website"`
	Task                Task              `json:"task"`
	Attempts            []AttemptRecord   `json:"attempts"`
	Success             bool              `json:"success"`
	FinalOutcome        *ExecutionOutcome `json:"final_outcome,omitempty"`
	TotalElapsedSeconds float64           `json:"total_elapsed_seconds"`
	Timestamp           time.Time         `json:"timestamp"`
	Trimmed             bool              `json:"trimmed,omitempty"` // Set when the full record could not be persisted
}

// PreviousFailures converts the failed attempts so far into generator context
func (r *TaskResult) PreviousFailures() []PreviousAttempt {
	var prev []PreviousAttempt
	for _, a := range r.Attempts {
		if a.Success {
			continue
		}
		prev = append(prev, PreviousAttempt{
			AttemptNumber: a.AttemptNumber,
			Code:          a.GeneratedCode,
			Error:         a.Error,
		})
	}
	return prev
}

// RunRequest selects what a benchmark run covers
type RunRequest struct {
	Websites      []string      `json:"websites,omitempty"` // Empty means all
	Models        []string      `json:"models,omitempty"`   // Empty means all enabled models
	TaskLimit     int           `json:"task_limit,omitempty"`
	Resume        bool          `json:"resume"`
	Workers       int           `json:"workers,omitempty"`
	MaxAttempts   int           `json:"max_attempts,omitempty"`
	Timeout       time.Duration `json:"timeout,omitempty"`
	DryRun        bool          `json:"dry_run,omitempty"`
	HaltOnFailure bool          `json:"halt_on_failure,omitempty"` // ORed with runner.halt_on_failure
}

// RunResult summarises a benchmark run
type RunResult struct {
	RunID             string    `json:"run_id"`
	TotalCombinations int       `json:"total_combinations"`
	AlreadyCompleted  int       `json:"already_completed"`
	Queued            int       `json:"queued"`
	Executed          int       `json:"executed"`
	Succeeded         int       `json:"succeeded"`
	Failed            int       `json:"failed"`
	SkippedExisting   int       `json:"skipped_existing"`
	ClaimedElsewhere  int       `json:"claimed_elsewhere"`
	Halted            bool      `json:"halted,omitempty"`
	PendingKeys       []string  `json:"pending_keys,omitempty"` // Populated for dry runs
	StartedAt         time.Time `json:"started_at"`
	CompletedAt       time.Time `json:"completed_at"`
	Message           string    `json:"message,omitempty"`
}
