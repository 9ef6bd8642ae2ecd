/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/PivotLLM/MacroBench/global"
)

const quoted = `['"\x{2018}\x{2019}\x{201C}\x{201D}]([^'"\x{2018}\x{2019}\x{201C}\x{201D}]+)['"\x{2018}\x{2019}\x{201C}\x{201D}]`

type phraseKind int

const (
	phraseURL phraseKind = iota
	phraseText
	phraseElement
	phraseVisible
	phraseTitle
)

// recognised success-indicator phrasings, tried in order
var phrasings = []struct {
	kind    phraseKind
	pattern *regexp.Regexp
}{
	{phraseURL, regexp.MustCompile(`(?i)\burl\s+(?:contains|changes\s+to|includes)\s+` + quoted)},
	{phraseTitle, regexp.MustCompile(`(?i)\btitle\s+(?:contains|is|changes\s+to)\s+` + quoted)},
	{phraseElement, regexp.MustCompile(`(?i)\belement\s+` + quoted + `\s+(?:exists|is\s+present|appears)`)},
	{phraseVisible, regexp.MustCompile(`(?i)` + quoted + `\s+is\s+(?:visible|displayed|shown)`)},
	{phraseText, regexp.MustCompile(`(?i)\b(?:text\s+matches|page\s+contains|shows|displays|text\s+contains)\s+` + quoted)},
}

var anyQuoted = regexp.MustCompile(quoted)

// groundTruthTier runs the task-authored checks. It passes when any check passes.
func groundTruthTier(gt *global.GroundTruth, c *pageChange) ([]global.CheckResult, bool) {
	var checks []global.CheckResult
	add := func(name string, passed bool, detail string) {
		checks = append(checks, global.CheckResult{Name: name, Passed: passed, Detail: detail})
	}

	if want := strings.TrimSpace(gt.ExpectedURLChange); want != "" {
		got := c.after.url()
		add("ground_truth_url", containsFold(got, want), fmt.Sprintf("url %q, expected to contain %q", got, want))
	}

	text := strings.TrimSpace(gt.ExpectedElementText)
	if selector := strings.TrimSpace(gt.ExpectedElementSelector); selector != "" {
		passed, detail := elementText(c.after, selector, text)
		add("ground_truth_element", passed, detail)
	} else if text != "" {
		add("ground_truth_text", containsFold(c.after.text(), text), fmt.Sprintf("visible text search for %q", text))
	}

	if expr := strings.TrimSpace(gt.CustomValidation); expr != "" {
		value, evaluated := lookupCustom(c.outcome, expr)
		detail := "custom validation returned false"
		switch {
		case !evaluated:
			detail = "custom validation was not evaluated by the runner"
		case value:
			detail = "custom validation returned true"
		}
		add("ground_truth_custom", evaluated && value, detail)
	}

	for i, phrase := range gt.SuccessIndicators {
		if strings.TrimSpace(phrase) == "" {
			continue
		}
		passed, detail := indicator(c, phrase)
		add(fmt.Sprintf("ground_truth_indicator_%d", i+1), passed, detail)
	}

	for _, ch := range checks {
		if ch.Passed {
			return checks, true
		}
	}
	return checks, false
}

func elementText(p *page, selector, want string) (bool, string) {
	sel := p.doc.Find(selector)
	if sel.Length() == 0 {
		return false, fmt.Sprintf("no element matches %q", selector)
	}
	if want == "" {
		return true, fmt.Sprintf("%d elements match %q", sel.Length(), selector)
	}
	found := false
	sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		found = containsFold(s.Text(), want)
		return !found
	})
	if found {
		return true, fmt.Sprintf("%q contains %q", selector, want)
	}
	return false, fmt.Sprintf("%q text %q does not contain %q", selector, truncateText(p.selectorText(selector), 120), want)
}

// lookupCustom finds the runner's result for an expression, tolerating whitespace differences
func lookupCustom(outcome *global.ExecutionOutcome, expr string) (value, evaluated bool) {
	if outcome == nil || outcome.CustomChecks == nil {
		return false, false
	}
	if v, ok := outcome.CustomChecks[expr]; ok {
		return v, true
	}
	for k, v := range outcome.CustomChecks {
		if strings.TrimSpace(k) == expr {
			return v, true
		}
	}
	return false, false
}

// indicator matches one free-text success phrase against the after page
func indicator(c *pageChange, phrase string) (bool, string) {
	for _, ph := range phrasings {
		m := ph.pattern.FindStringSubmatch(phrase)
		if m == nil {
			continue
		}
		want := strings.TrimSpace(m[1])
		switch ph.kind {
		case phraseURL:
			return containsFold(c.after.url(), want), fmt.Sprintf("url %q vs %q", c.after.url(), want)
		case phraseTitle:
			return containsFold(c.after.title(), want), fmt.Sprintf("title %q vs %q", c.after.title(), want)
		case phraseElement:
			n := c.after.count(want)
			return n > 0, fmt.Sprintf("%d elements match %q", n, want)
		case phraseVisible:
			if n := c.after.visibleCount(want); n > 0 {
				return true, fmt.Sprintf("%d visible elements match %q", n, want)
			}
			return containsFold(c.after.text(), want), fmt.Sprintf("text search for %q", want)
		case phraseText:
			return containsFold(c.after.text(), want), fmt.Sprintf("text search for %q", want)
		}
	}

	want := strings.TrimSpace(phrase)
	if m := anyQuoted.FindStringSubmatch(phrase); m != nil {
		want = strings.TrimSpace(m[1])
	}
	return containsFold(c.after.text(), want), fmt.Sprintf("text search for %q", want)
}

func truncateText(s string, n int) string {
	if t, cut := global.TruncateBytes(s, n); cut {
		return t + "..."
	}
	return s
}
