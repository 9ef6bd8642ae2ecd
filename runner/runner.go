/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

// Package runner plans benchmark runs and executes the pending work with a
// pool of workers, one attempt controller per work item.
package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/PivotLLM/MacroBench/browser"
	"github.com/PivotLLM/MacroBench/catalog"
	"github.com/PivotLLM/MacroBench/config"
	"github.com/PivotLLM/MacroBench/global"
	"github.com/PivotLLM/MacroBench/ledger"
	"github.com/PivotLLM/MacroBench/llm"
	"github.com/PivotLLM/MacroBench/logging"
	"github.com/PivotLLM/MacroBench/queue"
	"github.com/PivotLLM/MacroBench/results"
	"github.com/PivotLLM/MacroBench/tasks"
	"github.com/PivotLLM/MacroBench/templates"
	"github.com/PivotLLM/MacroBench/validation"
	"github.com/PivotLLM/MacroBench/websites"
)

// Item outcomes, used as metric labels
const (
	outcomeSuccess          = "success"
	outcomeFailed           = "failed"
	outcomeSkippedExisting  = "skipped_existing"
	outcomeClaimedElsewhere = "claimed_elsewhere"
)

// ErrRunInProgress is returned when a run is requested while another is active
var ErrRunInProgress = errors.New("a run is already in progress")

// Runner orchestrates benchmark runs
type Runner struct {
	config      *config.Config
	logger      *logging.Logger
	generator   llm.Generator
	executor    browser.Executor
	validator   validation.Validator
	schemas     *templates.Validator
	store       *results.Store
	metrics     *Metrics
	rateLimiter *RateLimiter
	running     atomic.Bool
	activeRuns  sync.WaitGroup // tracks background runs for graceful shutdown
	current     atomic.Pointer[queue.Queue]
	last        atomic.Pointer[global.RunResult]
}

// Option configures a Runner
type Option func(*Runner)

// WithValidator replaces the validation engine
func WithValidator(v validation.Validator) Option {
	return func(r *Runner) {
		r.validator = v
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m *Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithRateLimiter replaces the generation rate limiter
func WithRateLimiter(rl *RateLimiter) Option {
	return func(r *Runner) {
		r.rateLimiter = rl
	}
}

// New creates a runner
func New(cfg *config.Config, logger *logging.Logger, gen llm.Generator, exec browser.Executor, opts ...Option) *Runner {
	rc := cfg.Runner()
	r := &Runner{
		config:      cfg,
		logger:      logger,
		generator:   gen,
		executor:    exec,
		validator:   validation.New(logger),
		schemas:     templates.New(logger),
		store:       results.New(cfg.ResultsDir(), logger, results.WithMaxBytes(rc.MaxResultBytes)),
		rateLimiter: NewRateLimiter(rc.RateLimit.MaxRequests, rc.RateLimit.PeriodSeconds),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewFromConfig creates a runner backed by the configured command models and browser runner
func NewFromConfig(cfg *config.Config, logger *logging.Logger, opts ...Option) *Runner {
	rc := cfg.Runner()
	gen := llm.NewService(cfg.Models(), logger, llm.WithMaxSourceBytes(rc.MaxSourceBytes))

	b := cfg.Browser()
	exec := browser.New(b.Command, logger,
		browser.WithArgs(b.Args),
		browser.WithEnv(b.Env),
		browser.WithTimeout(cfg.ExecutionTimeout()),
		browser.WithArtifactsDir(b.ArtifactsDir),
	)
	return New(cfg, logger, gen, exec, opts...)
}

// Store returns the result store the runner writes to
func (r *Runner) Store() *results.Store {
	return r.store
}

// Plan is the work a run request resolves to
type Plan struct {
	Models           []string
	Websites         []global.Website
	Combinations     []catalog.Combination
	AlreadyCompleted int
	Pending          []global.WorkItem
	LedgerSkipped    []ledger.SkippedFile
	corpus           *websites.Corpus
}

// PendingKeys returns the keys of the pending items in plan order
func (p *Plan) PendingKeys() []string {
	keys := make([]string, len(p.Pending))
	for i, item := range p.Pending {
		keys[i] = item.Key
	}
	return keys
}

// Plan loads websites and tasks, builds the combination catalog and removes
// everything the completion ledger already holds (when resuming)
func (r *Runner) Plan(req *global.RunRequest) (*Plan, error) {
	maxAttempts := req.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = r.config.Runner().MaxAttempts
	}
	maxAttempts, err := global.ValidateMaxAttempts(maxAttempts)
	if err != nil {
		return nil, err
	}

	models, err := r.selectModels(req.Models)
	if err != nil {
		return nil, err
	}

	corpus, err := websites.Load(r.config.WebsitesDir(), r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load websites: %w", err)
	}
	sites, err := corpus.Select(req.Websites)
	if err != nil {
		return nil, err
	}

	loader := tasks.NewLoader(r.config.TasksDir(), r.logger, tasks.WithValidator(r.schemas))
	tasksByWebsite, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}
	if req.TaskLimit > 0 {
		tasksByWebsite = catalog.LimitTasks(tasksByWebsite, req.TaskLimit)
	}

	plan := &Plan{
		Models:       models,
		Websites:     sites,
		Combinations: catalog.Build(tasksByWebsite, sites, models),
		corpus:       corpus,
	}

	combos := plan.Combinations
	if req.Resume {
		done, err := ledger.Build(r.config.ResultsDir(), r.logger, r.schemas)
		if err != nil {
			return nil, fmt.Errorf("failed to scan results: %w", err)
		}
		plan.LedgerSkipped = done.Skipped()

		combos = combos[:0:0]
		for _, c := range plan.Combinations {
			if done.Contains(c.Key) {
				plan.AlreadyCompleted++
				continue
			}
			combos = append(combos, c)
		}
	}
	plan.Pending = catalog.WorkItems(combos, maxAttempts)

	r.logger.Infof("Plan: %d models x %d websites -> %d combinations, %d already completed, %d pending",
		len(models), len(sites), len(plan.Combinations), plan.AlreadyCompleted, len(plan.Pending))
	return plan, nil
}

// selectModels returns the requested models, or every enabled model
func (r *Runner) selectModels(requested []string) ([]string, error) {
	if len(requested) == 0 {
		var ids []string
		for _, m := range r.config.EnabledModels() {
			ids = append(ids, m.ID)
		}
		if len(ids) == 0 {
			return nil, fmt.Errorf("no models are enabled")
		}
		return ids, nil
	}

	var ids []string
	seen := make(map[string]bool)
	for _, id := range requested {
		if id == "" || seen[id] {
			continue
		}
		m := r.config.GetModel(id)
		if m == nil {
			return nil, fmt.Errorf("unknown model: %s", id)
		}
		if !m.Enabled {
			return nil, fmt.Errorf("model %s is not enabled", id)
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

// Run plans and executes a benchmark run, blocking until every claimed item
// has finished. Cancelling ctx stops new claims; in-flight items finish their
// current attempt.
func (r *Runner) Run(ctx context.Context, req *global.RunRequest) (*global.RunResult, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer r.running.Store(false)
	return r.execute(ctx, req)
}

// Start runs in the background and returns once the run has begun.
// Use Wait to block until it ends and LastResult to read its summary.
func (r *Runner) Start(ctx context.Context, req *global.RunRequest) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrRunInProgress
	}
	r.activeRuns.Add(1)
	go func() {
		defer r.activeRuns.Done()
		defer r.running.Store(false)
		if _, err := r.execute(ctx, req); err != nil {
			r.logger.Errorf("Background run failed: %v", err)
		}
	}()
	return nil
}

// Wait blocks until all background runs complete
func (r *Runner) Wait() {
	r.activeRuns.Wait()
}

// IsRunning returns true if a run is in progress
func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

// LastResult returns the summary of the most recently finished run, if any
func (r *Runner) LastResult() *global.RunResult {
	return r.last.Load()
}

// QueueStats returns the live queue counters of the active run
func (r *Runner) QueueStats() (queue.Stats, bool) {
	q := r.current.Load()
	if q == nil {
		return queue.Stats{}, false
	}
	return q.Stats(), true
}

// runSettings are the validated knobs for one run
type runSettings struct {
	workers       int
	timeout       time.Duration
	haltOnFailure bool
}

func (r *Runner) settings(req *global.RunRequest) (runSettings, error) {
	rc := r.config.Runner()

	workers := req.Workers
	if workers == 0 {
		workers = rc.Workers
	}
	workers, err := global.ValidateWorkers(workers)
	if err != nil {
		return runSettings{}, err
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = r.config.ExecutionTimeout()
	}
	timeout, err = global.ValidateExecutionTimeout(timeout)
	if err != nil {
		return runSettings{}, err
	}

	return runSettings{workers: workers, timeout: timeout, haltOnFailure: rc.HaltOnFailure || req.HaltOnFailure}, nil
}

// runCounters accumulates worker results
type runCounters struct {
	mu     sync.Mutex
	result *global.RunResult
}

func (c *runCounters) add(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch outcome {
	case outcomeSuccess:
		c.result.Executed++
		c.result.Succeeded++
	case outcomeFailed:
		c.result.Executed++
		c.result.Failed++
	case outcomeSkippedExisting:
		c.result.SkippedExisting++
	case outcomeClaimedElsewhere:
		c.result.ClaimedElsewhere++
	}
}

func (r *Runner) execute(ctx context.Context, req *global.RunRequest) (*global.RunResult, error) {
	settings, err := r.settings(req)
	if err != nil {
		return nil, err
	}

	plan, err := r.Plan(req)
	if err != nil {
		return nil, err
	}

	result := &global.RunResult{
		RunID:             uuid.NewString(),
		TotalCombinations: len(plan.Combinations),
		AlreadyCompleted:  plan.AlreadyCompleted,
		Queued:            len(plan.Pending),
		StartedAt:         time.Now(),
	}

	if req.DryRun {
		result.PendingKeys = plan.PendingKeys()
		result.CompletedAt = time.Now()
		result.Message = fmt.Sprintf("dry run: %d items would be executed", len(plan.Pending))
		return result, nil
	}

	if len(plan.Pending) == 0 {
		result.CompletedAt = time.Now()
		result.Message = "nothing to do: all combinations are complete"
		r.last.Store(result)
		r.logger.Infof("Run %s: %s", result.RunID, result.Message)
		return result, nil
	}

	controller := NewController(r.generator, r.executor, r.validator, r.logger)
	controller.timeout = settings.timeout
	controller.limiter = r.rateLimiter
	controller.metrics = r.metrics

	q := queue.New(plan.Pending)
	r.current.Store(q)
	defer r.current.Store(nil)
	r.metrics.SetQueueDepth(q.Stats().Pending)

	// Stop claiming once the caller cancels
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			r.logger.Warnf("Run %s interrupted: no new items will be claimed", result.RunID)
			q.Close()
		case <-stop:
		}
	}()

	workers := min(settings.workers, len(plan.Pending))
	r.logger.Infof("Run %s started: %d items, %d workers, max %d attempts, timeout %v",
		result.RunID, len(plan.Pending), workers, plan.Pending[0].MaxAttempts, settings.timeout)

	counters := &runCounters{result: result}
	var halted atomic.Bool

	var g errgroup.Group
	for w := 1; w <= workers; w++ {
		g.Go(func() error {
			for {
				if ctx.Err() != nil {
					return nil
				}
				item, ok := q.Claim()
				if !ok {
					return nil
				}
				r.metrics.SetQueueDepth(q.Stats().Pending)

				outcome := r.processItem(ctx, controller, plan.corpus, result.RunID, item, req.Resume)
				q.Complete(item.Key, outcome == outcomeSuccess || outcome == outcomeSkippedExisting)
				counters.add(outcome)
				r.metrics.ObserveOutcome(item.Model, outcome)

				if outcome == outcomeFailed && settings.haltOnFailure && !halted.Swap(true) {
					r.logger.Warnf("Run %s: halting after %s exhausted its attempts", result.RunID, item.Key)
					q.Close()
				}
			}
		})
	}
	_ = g.Wait()

	r.metrics.SetQueueDepth(q.Stats().Pending)
	result.Halted = halted.Load()
	result.CompletedAt = time.Now()
	result.Message = fmt.Sprintf("executed=%d succeeded=%d failed=%d skipped_existing=%d claimed_elsewhere=%d",
		result.Executed, result.Succeeded, result.Failed, result.SkippedExisting, result.ClaimedElsewhere)
	if remaining := q.Stats().Pending; remaining > 0 {
		result.Message += fmt.Sprintf(", %d not started", remaining)
	}
	r.last.Store(result)

	r.logger.Infof("Run %s completed in %v: %s", result.RunID,
		result.CompletedAt.Sub(result.StartedAt).Round(time.Millisecond), result.Message)
	return result, nil
}

// processItem runs one claimed item and persists its result. When resuming,
// a success written since planning (for example by another process) is not redone.
func (r *Runner) processItem(ctx context.Context, controller *Controller, corpus *websites.Corpus, runID string, item global.WorkItem, resume bool) (outcome string) {
	r.metrics.WorkerStarted()
	defer r.metrics.WorkerFinished()

	defer func() {
		if p := recover(); p != nil {
			r.logger.Errorf("%s: panic while processing item: %v\n%s", item.Key, p, debug.Stack())
			outcome = outcomeFailed
		}
	}()

	if resume && r.store.HasSuccess(item.Key) {
		r.logger.Infof("%s: already has a successful result, skipping", item.Key)
		return outcomeSkippedExisting
	}

	unlock, err := r.store.TryLock(item.Key)
	if err != nil {
		if errors.Is(err, results.ErrClaimedElsewhere) {
			r.logger.Infof("%s: claimed by another process, skipping", item.Key)
			return outcomeClaimedElsewhere
		}
		// Lock failures do not block execution; the result write is still atomic
		r.logger.Warnf("%s: claim lock unavailable: %v", item.Key, err)
		unlock = func() {}
	}
	defer unlock()

	source, err := corpus.Source(item.Website.Name)
	if err != nil {
		r.logger.Warnf("%s: %v", item.Key, err)
	}

	taskResult := controller.Run(ctx, item, source)
	taskResult.RunID = runID

	if path, err := r.store.Save(taskResult); err != nil {
		r.logger.Errorf("%s: failed to save result: %v", item.Key, err)
	} else {
		r.logger.Debugf("%s: result saved to %s", item.Key, path)
	}

	if taskResult.Success {
		return outcomeSuccess
	}
	return outcomeFailed
}
