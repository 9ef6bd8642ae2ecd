/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

// Package validation judges whether an executed macro achieved its task.
// Task-authored ground truth is checked first; the category rule set runs
// whenever ground truth is absent or not satisfied.
package validation

import (
	"strings"

	"github.com/PivotLLM/MacroBench/global"
	"github.com/PivotLLM/MacroBench/logging"
)

const excerptLen = 300

// Validator produces a verdict for one execution attempt
type Validator interface {
	Validate(task global.Task, website global.Website, outcome *global.ExecutionOutcome) *global.ValidationVerdict
}

// Engine is the default Validator
type Engine struct {
	logger *logging.Logger
}

// New creates a validation engine
func New(logger *logging.Logger) *Engine {
	return &Engine{logger: logger}
}

// Validate judges an outcome using the page states captured before and after
// execution. The runner's own success claim is not consulted.
func (e *Engine) Validate(task global.Task, website global.Website, outcome *global.ExecutionOutcome) *global.ValidationVerdict {
	if outcome == nil {
		outcome = &global.ExecutionOutcome{}
	}
	c := &pageChange{
		before:  newPage(outcome.PageBefore),
		after:   newPage(outcome.PageAfter),
		outcome: outcome,
	}

	kind := Classify(task, website)
	verdict := &global.ValidationVerdict{
		Category: kind.String(),
		Evidence: evidence(c),
	}

	var gtDetail string
	if !task.GroundTruth.IsEmpty() {
		checks, passed := groundTruthTier(task.GroundTruth, c)
		verdict.UsedGroundTruth = true
		verdict.Checks = append(verdict.Checks, checks...)
		if passed {
			verdict.Success = true
			e.logger.Debugf("Validation: %s passed on ground truth", task.ID)
			return verdict
		}
		gtDetail = failedDetail(checks)
	}

	checks, passed := RuleSetFor(kind).Evaluate(c)
	verdict.UsedFallback = true
	verdict.Checks = append(verdict.Checks, checks...)
	verdict.Success = passed

	if !passed {
		verdict.Reason = global.ErrorValidationFailed
		if gtDetail != "" {
			verdict.Reason = gtDetail
		}
	}

	e.logger.Debugf("Validation: %s category=%s ground_truth=%v success=%v", task.ID, verdict.Category, verdict.UsedGroundTruth, verdict.Success)
	return verdict
}

func failedDetail(checks []global.CheckResult) string {
	var parts []string
	for _, c := range checks {
		if !c.Passed {
			parts = append(parts, c.Name+": "+c.Detail)
		}
	}
	return "ground truth not satisfied: " + strings.Join(parts, "; ")
}

// evidence is a snapshot an auditor can use to see why a verdict was reached
func evidence(c *pageChange) map[string]interface{} {
	ev := map[string]interface{}{
		"url_before":   c.before.url(),
		"url_after":    c.after.url(),
		"title_before": c.before.title(),
		"title_after":  c.after.title(),
	}
	if !c.after.present {
		ev["page_after_missing"] = true
		return ev
	}
	ev["text_excerpt"] = c.after.excerpt(excerptLen)
	counts := map[string]int{}
	for name, selector := range map[string]string{
		"forms":    formSelector,
		"buttons":  "button, input[type=submit], input[type=button]",
		"links":    "a[href]",
		"results":  resultSelector,
		"active":   activeSelector,
		"messages": messageSelector,
		"content":  contentSelector,
		"cart":     cartItemSelector,
	} {
		counts[name+"_before"] = c.before.count(selector)
		counts[name+"_after"] = c.after.count(selector)
	}
	ev["element_counts"] = counts
	if len(c.outcome.CustomChecks) > 0 {
		ev["custom_checks"] = c.outcome.CustomChecks
	}
	return ev
}
