/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

// Package reporting aggregates task results into benchmark reports.
package reporting

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
	"time"

	"github.com/PivotLLM/MacroBench/global"
	"github.com/PivotLLM/MacroBench/logging"
)

// Labels used when a result carries no value for a dimension
const (
	unspecified = "unspecified"
	unvalidated = "unvalidated"
)

// Report formats
const (
	FormatMarkdown = "md"
	FormatJSON     = "json"
)

// Reporter generates reports from task results
type Reporter struct {
	logger   *logging.Logger
	markdown string
	maxFail  int
}

// Option configures a Reporter
type Option func(*Reporter)

// WithMarkdownTemplate replaces the markdown report template
func WithMarkdownTemplate(tmpl string) Option {
	return func(r *Reporter) {
		if tmpl != "" {
			r.markdown = tmpl
		}
	}
}

// WithMaxFailures limits how many failures are listed in a report
func WithMaxFailures(n int) Option {
	return func(r *Reporter) {
		r.maxFail = n
	}
}

// New creates a new Reporter
func New(logger *logging.Logger, opts ...Option) *Reporter {
	r := &Reporter{
		logger:   logger,
		markdown: defaultMarkdownTemplate,
		maxFail:  100,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Report is the aggregate view of a set of results
type Report struct {
	GeneratedAt  time.Time      `json:"generated_at"`
	Summary      Group          `json:"summary"`
	ByModel      []Group        `json:"by_model"`
	ByWebsite    []Group        `json:"by_website"`
	ByDifficulty []Group        `json:"by_difficulty"`
	ByCategory   []Group        `json:"by_category"`
	Failures     []FailureEntry `json:"failures,omitempty"`
	Truncated    int            `json:"failures_truncated,omitempty"` // Failures not listed
}

// Group holds the counters for one value of a dimension
type Group struct {
	Name                 string  `json:"name"`
	Total                int     `json:"total"`
	Succeeded            int     `json:"succeeded"`
	Failed               int     `json:"failed"`
	FirstAttemptSuccess  int     `json:"first_attempt_success"`
	SuccessRate          float64 `json:"success_rate"`
	AverageAttempts      float64 `json:"average_attempts"`
	AverageElapsedSecond float64 `json:"average_elapsed_seconds"`

	attempts int
	elapsed  float64
}

// FailureEntry identifies a failed combination and its last error
type FailureEntry struct {
	Key       string `json:"key"`
	Model     string `json:"model"`
	Website   string `json:"website"`
	TaskID    string `json:"task_id"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error"`
}

// ReportFilter selects which results are included. Empty fields match everything.
type ReportFilter struct {
	Models   []string
	Websites []string
}

func (f *ReportFilter) matches(r *global.TaskResult) bool {
	if f == nil {
		return true
	}
	return matchAny(f.Models, r.Model) && matchAny(f.Websites, r.Website.Name)
}

func matchAny(values []string, v string) bool {
	if len(values) == 0 {
		return true
	}
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func (g *Group) add(r *global.TaskResult) {
	g.Total++
	if r.Success {
		g.Succeeded++
		if len(r.Attempts) == 1 {
			g.FirstAttemptSuccess++
		}
	} else {
		g.Failed++
	}
	g.attempts += len(r.Attempts)
	g.elapsed += r.TotalElapsedSeconds
}

func (g *Group) finish() {
	if g.Total == 0 {
		return
	}
	g.SuccessRate = float64(g.Succeeded) / float64(g.Total)
	g.AverageAttempts = float64(g.attempts) / float64(g.Total)
	g.AverageElapsedSecond = g.elapsed / float64(g.Total)
}

// dimension accumulates groups keyed by name
type dimension map[string]*Group

func (d dimension) add(name string, r *global.TaskResult) {
	g, ok := d[name]
	if !ok {
		g = &Group{Name: name}
		d[name] = g
	}
	g.add(r)
}

func (d dimension) sorted() []Group {
	out := make([]Group, 0, len(d))
	for _, g := range d {
		g.finish()
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// category returns the validation category of the final attempt
func category(r *global.TaskResult) string {
	if r.FinalOutcome != nil && r.FinalOutcome.Verdict != nil && r.FinalOutcome.Verdict.Category != "" {
		return r.FinalOutcome.Verdict.Category
	}
	for i := len(r.Attempts) - 1; i >= 0; i-- {
		o := r.Attempts[i].ExecutionOutcome
		if o != nil && o.Verdict != nil && o.Verdict.Category != "" {
			return o.Verdict.Category
		}
	}
	return unvalidated
}

func orUnspecified(s string) string {
	if strings.TrimSpace(s) == "" {
		return unspecified
	}
	return strings.TrimSpace(s)
}

// BuildReport aggregates results by model, website, difficulty and category
func (r *Reporter) BuildReport(results []*global.TaskResult, filter *ReportFilter) *Report {
	report := &Report{
		GeneratedAt: time.Now(),
		Summary:     Group{Name: "all"},
	}

	byModel, byWebsite, byDifficulty, byCategory := dimension{}, dimension{}, dimension{}, dimension{}
	var failures []FailureEntry

	for _, res := range results {
		if res == nil || !filter.matches(res) {
			continue
		}
		report.Summary.add(res)
		byModel.add(orUnspecified(res.Model), res)
		byWebsite.add(orUnspecified(res.Website.Name), res)
		byDifficulty.add(orUnspecified(res.Task.Difficulty), res)
		byCategory.add(category(res), res)

		if !res.Success {
			entry := FailureEntry{
				Key:      res.Key,
				Model:    res.Model,
				Website:  res.Website.Name,
				TaskID:   res.Task.ID,
				Attempts: len(res.Attempts),
			}
			if n := len(res.Attempts); n > 0 {
				entry.LastError = res.Attempts[n-1].Error
			}
			failures = append(failures, entry)
		}
	}

	report.Summary.finish()
	report.ByModel = byModel.sorted()
	report.ByWebsite = byWebsite.sorted()
	report.ByDifficulty = byDifficulty.sorted()
	report.ByCategory = byCategory.sorted()

	sort.Slice(failures, func(i, j int) bool { return failures[i].Key < failures[j].Key })
	if r.maxFail > 0 && len(failures) > r.maxFail {
		report.Truncated = len(failures) - r.maxFail
		failures = failures[:r.maxFail]
	}
	report.Failures = failures

	r.logger.Debugf("Report built: %d results, %d succeeded", report.Summary.Total, report.Summary.Succeeded)
	return report
}

const defaultMarkdownTemplate = `# MacroBench Report

**Generated**: {{.GeneratedAt.Format "2006-01-02 15:04:05"}}

## Summary

| Metric | Value |
|--------|-------|
| Results | {{.Summary.Total}} |
| Succeeded | {{.Summary.Succeeded}} |
| Failed | {{.Summary.Failed}} |
| Success rate | {{pct .Summary.SuccessRate}} |
| First-attempt successes | {{.Summary.FirstAttemptSuccess}} |
| Average attempts | {{printf "%.2f" .Summary.AverageAttempts}} |
{{template "table" (section "By Model" .ByModel)}}{{template "table" (section "By Website" .ByWebsite)}}{{template "table" (section "By Difficulty" .ByDifficulty)}}{{template "table" (section "By Validation Category" .ByCategory)}}
{{- if .Failures}}
## Failures

| Key | Attempts | Last error |
|-----|----------|------------|
{{range .Failures}}| {{.Key}} | {{.Attempts}} | {{cell .LastError}} |
{{end}}{{if .Truncated}}
_{{.Truncated}} more failures not shown._
{{end}}{{end}}
{{- define "table"}}
## {{.Title}}

| Name | Total | Succeeded | Failed | Success rate | First attempt | Avg attempts | Avg seconds |
|------|-------|-----------|--------|--------------|---------------|--------------|-------------|
{{range .Groups}}| {{.Name}} | {{.Total}} | {{.Succeeded}} | {{.Failed}} | {{pct .SuccessRate}} | {{.FirstAttemptSuccess}} | {{printf "%.2f" .AverageAttempts}} | {{printf "%.1f" .AverageElapsedSecond}} |
{{end}}{{end}}`

type tableSection struct {
	Title  string
	Groups []Group
}

// templateFuncs returns custom template functions
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"pct": func(v float64) string {
			return fmt.Sprintf("%.1f%%", v*100)
		},
		"section": func(title string, groups []Group) tableSection {
			return tableSection{Title: title, Groups: groups}
		},
		"cell": func(s string) string {
			s = strings.ReplaceAll(s, "\n", " ")
			s = strings.ReplaceAll(s, "|", "\\|")
			if len(s) > 160 {
				s = s[:160] + "..."
			}
			return s
		},
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
	}
}

// GenerateMarkdown renders a report as markdown
func (r *Reporter) GenerateMarkdown(report *Report) (string, error) {
	t, err := template.New("report").Funcs(templateFuncs()).Parse(r.markdown)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, report); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

// GenerateJSON renders a report as JSON
func (r *Reporter) GenerateJSON(report *Report) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	return string(data), nil
}

// Render renders a report in the given format ("md" or "json")
func (r *Reporter) Render(report *Report, format string) (string, error) {
	switch format {
	case FormatJSON:
		return r.GenerateJSON(report)
	case FormatMarkdown, "markdown", "":
		return r.GenerateMarkdown(report)
	default:
		return "", fmt.Errorf("unknown report format: %s", format)
	}
}

// SaveReport writes a report to outputPath atomically
func (r *Reporter) SaveReport(report *Report, outputPath, format string) error {
	content, err := r.Render(report, format)
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := global.AtomicWrite(outputPath, []byte(content)); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	r.logger.Infof("Report saved to %s (%d bytes)", outputPath, len(content))
	return nil
}

// GenerateFilename generates a timestamped report filename
func GenerateFilename(prefix string, format string) string {
	timestamp := time.Now().Format("2006-01-02-150405")
	ext := FormatMarkdown
	if format == FormatJSON {
		ext = FormatJSON
	}

	if prefix == "" {
		prefix = "report"
	}

	return fmt.Sprintf("%s-%s.%s", prefix, timestamp, ext)
}
