/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/PivotLLM/MacroBench/browser"
	"github.com/PivotLLM/MacroBench/global"
	"github.com/PivotLLM/MacroBench/llm"
	"github.com/PivotLLM/MacroBench/logging"
	"github.com/PivotLLM/MacroBench/validation"
)

// Attempt stages, used as metric labels
const (
	stageGenerate = "generate"
	stageExecute  = "execute"
	stageValidate = "validate"
)

// Controller drives the generate, execute, validate loop for one work item
type Controller struct {
	generator   llm.Generator
	executor    browser.Executor
	validator   validation.Validator
	limiter     *RateLimiter
	metrics     *Metrics
	logger      *logging.Logger
	timeout     time.Duration
	maxAttempts int
}

// NewController creates an attempt controller
func NewController(gen llm.Generator, exec browser.Executor, val validation.Validator, logger *logging.Logger) *Controller {
	return &Controller{
		generator:   gen,
		executor:    exec,
		validator:   val,
		logger:      logger,
		timeout:     global.DefaultExecutionTimeout,
		maxAttempts: global.DefaultMaxAttempts,
	}
}

// Run executes attempts until one succeeds or the item's attempt budget is spent.
// Cancelling ctx stops further attempts but lets the current one finish.
// It never panics and always returns a result.
func (c *Controller) Run(ctx context.Context, item global.WorkItem, source string) *global.TaskResult {
	start := time.Now()
	result := &global.TaskResult{
		Key:     item.Key,
		Model:   item.Model,
		Website: item.Website,
		Task:    item.Task,
	}

	maxAttempts := item.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = c.maxAttempts
	}

	// attempts are not interrupted by cancellation, only by their own timeout
	attemptCtx := context.WithoutCancel(ctx)

	for n := item.AttemptsMade + 1; n <= maxAttempts; n++ {
		rec := c.attempt(attemptCtx, item, n, source, result.PreviousFailures())
		result.Attempts = append(result.Attempts, rec)
		result.FinalOutcome = rec.ExecutionOutcome
		c.metrics.ObserveAttempt(item.Model, rec.Success)

		if rec.Success {
			result.Success = true
			c.logger.Infof("%s: succeeded on attempt %d/%d", item.Key, n, maxAttempts)
			break
		}

		c.logger.Infof("%s: attempt %d/%d failed: %s", item.Key, n, maxAttempts, rec.Error)

		if ctx.Err() != nil && n < maxAttempts {
			c.logger.Warnf("%s: stopping after attempt %d, run interrupted", item.Key, n)
			break
		}
	}

	result.TotalElapsedSeconds = time.Since(start).Seconds()
	result.Timestamp = time.Now()
	return result
}

// attempt runs one cycle. Errors and panics become the record's error.
func (c *Controller) attempt(ctx context.Context, item global.WorkItem, n int, source string, previous []global.PreviousAttempt) (rec global.AttemptRecord) {
	start := time.Now()
	rec = global.AttemptRecord{
		AttemptNumber: n,
		Model:         item.Model,
		Timestamp:     start,
	}

	defer func() {
		if p := recover(); p != nil {
			c.logger.Errorf("%s: attempt %d panicked: %v\n%s", item.Key, n, p, debug.Stack())
			rec.Success = false
			rec.Error = fmt.Sprintf("panic: %v", p)
		}
		rec.ElapsedSeconds = time.Since(start).Seconds()
	}()

	// Generate
	waited, err := c.limiter.Wait(ctx)
	c.metrics.ObserveRateLimitWait(waited)
	if err != nil {
		rec.Error = fmt.Sprintf("generation failed: %v", err)
		return rec
	}

	stageStart := time.Now()
	code, err := c.generator.Generate(ctx, llm.GenerateRequest{
		Task:             item.Task,
		Website:          item.Website.Name,
		WebsiteSource:    source,
		PreviousAttempts: previous,
		Model:            item.Model,
	})
	c.metrics.ObserveStage(stageGenerate, time.Since(stageStart))
	if err == nil && code == "" {
		err = llm.ErrEmptyCode
	}
	if err != nil {
		rec.Error = fmt.Sprintf("generation failed: %v", err)
		return rec
	}
	rec.GeneratedCode = code

	// Execute
	stageStart = time.Now()
	execCtx, cancel := context.WithTimeout(ctx, c.timeout)
	outcome, err := c.executor.Execute(execCtx, browser.ExecuteRequest{
		Key:       item.Key,
		Code:      code,
		EntryPath: item.Website.EntryPath,
		Task:      item.Task,
		Attempt:   n,
		Timeout:   c.timeout,
	})
	timedOut := errors.Is(execCtx.Err(), context.DeadlineExceeded)
	cancel()
	c.metrics.ObserveStage(stageExecute, time.Since(stageStart))

	switch {
	case err != nil && timedOut:
		outcome = &global.ExecutionOutcome{Error: global.ErrorTimeout, TimedOut: true}
	case err != nil:
		rec.Error = fmt.Sprintf("execution failed: %v", err)
		return rec
	case outcome == nil:
		rec.Error = "execution failed: runner returned no outcome"
		return rec
	}
	rec.ExecutionOutcome = outcome

	if outcome.TimedOut {
		rec.Error = global.ErrorTimeout
		return rec
	}
	if outcome.Error != "" {
		rec.Error = outcome.Error
		return rec
	}

	// Validate
	stageStart = time.Now()
	verdict := c.validator.Validate(item.Task, item.Website, outcome)
	c.metrics.ObserveStage(stageValidate, time.Since(stageStart))
	if verdict == nil {
		rec.Error = "validation produced no verdict"
		return rec
	}
	outcome.Verdict = verdict
	c.metrics.ObserveVerdict(verdict.Category, verdict.Success)

	rec.Success = verdict.Success
	if !verdict.Success {
		rec.Error = verdict.Reason
		if rec.Error == "" {
			rec.Error = global.ErrorValidationFailed
		}
	}
	return rec
}
