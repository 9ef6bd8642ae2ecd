/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package reporting

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PivotLLM/MacroBench/global"
)

func result(model, site, task, difficulty string, success bool, attempts int, category string) *global.TaskResult {
	r := &global.TaskResult{
		Key:                 model + global.KeySeparator + site + global.KeySeparator + task,
		Model:               model,
		Website:             global.Website{Name: site},
		Task:                global.Task{ID: task, Difficulty: difficulty},
		Success:             success,
		TotalElapsedSeconds: float64(attempts),
	}
	for i := 1; i <= attempts; i++ {
		rec := global.AttemptRecord{AttemptNumber: i, Model: model}
		if i == attempts && success {
			rec.Success = true
		} else {
			rec.Error = "attempt " + string(rune('0'+i)) + " failed"
		}
		r.Attempts = append(r.Attempts, rec)
	}
	if category != "" {
		r.FinalOutcome = &global.ExecutionOutcome{
			Verdict: &global.ValidationVerdict{Success: success, Category: category},
		}
	}
	return r
}

func sampleResults() []*global.TaskResult {
	return []*global.TaskResult{
		result("m1", "shop", "t1", "easy", true, 1, "commerce_cart"),
		result("m1", "shop", "t2", "hard", false, 3, "commerce_search"),
		result("m2", "shop", "t1", "easy", true, 2, "commerce_cart"),
		result("m2", "blog", "t1", "", false, 1, ""),
	}
}

func groupByName(groups []Group, name string) *Group {
	for i := range groups {
		if groups[i].Name == name {
			return &groups[i]
		}
	}
	return nil
}

func TestNew(t *testing.T) {
	r := New(nil)
	require.NotNil(t, r)
	assert.Equal(t, defaultMarkdownTemplate, r.markdown)

	r = New(nil, WithMarkdownTemplate(""), WithMaxFailures(5))
	assert.Equal(t, defaultMarkdownTemplate, r.markdown)
	assert.Equal(t, 5, r.maxFail)
}

func TestBuildReport(t *testing.T) {
	report := New(nil).BuildReport(sampleResults(), nil)

	assert.Equal(t, 4, report.Summary.Total)
	assert.Equal(t, 2, report.Summary.Succeeded)
	assert.Equal(t, 2, report.Summary.Failed)
	assert.Equal(t, 1, report.Summary.FirstAttemptSuccess)
	assert.InDelta(t, 0.5, report.Summary.SuccessRate, 1e-9)
	assert.InDelta(t, 7.0/4.0, report.Summary.AverageAttempts, 1e-9)

	require.Len(t, report.ByModel, 2)
	assert.Equal(t, "m1", report.ByModel[0].Name)
	m2 := groupByName(report.ByModel, "m2")
	require.NotNil(t, m2)
	assert.Equal(t, 2, m2.Total)
	assert.InDelta(t, 1.5, m2.AverageAttempts, 1e-9)

	shop := groupByName(report.ByWebsite, "shop")
	require.NotNil(t, shop)
	assert.Equal(t, 3, shop.Total)
	assert.Equal(t, 2, shop.Succeeded)

	assert.NotNil(t, groupByName(report.ByDifficulty, unspecified))
	easy := groupByName(report.ByDifficulty, "easy")
	require.NotNil(t, easy)
	assert.InDelta(t, 1.0, easy.SuccessRate, 1e-9)

	assert.NotNil(t, groupByName(report.ByCategory, unvalidated))
	cart := groupByName(report.ByCategory, "commerce_cart")
	require.NotNil(t, cart)
	assert.Equal(t, 2, cart.Succeeded)

	require.Len(t, report.Failures, 2)
	assert.Equal(t, "m1__shop__t2", report.Failures[0].Key)
	assert.Equal(t, 3, report.Failures[0].Attempts)
	assert.Equal(t, "attempt 3 failed", report.Failures[0].LastError)
}

func TestBuildReportCategoryFromAttempts(t *testing.T) {
	r := result("m1", "shop", "t1", "easy", false, 2, "")
	r.Attempts[0].ExecutionOutcome = &global.ExecutionOutcome{
		Verdict: &global.ValidationVerdict{Category: "navigation"},
	}
	r.Attempts[1].ExecutionOutcome = &global.ExecutionOutcome{TimedOut: true}

	report := New(nil).BuildReport([]*global.TaskResult{r, nil}, nil)
	require.Len(t, report.ByCategory, 1)
	assert.Equal(t, "navigation", report.ByCategory[0].Name)
}

func TestBuildReportFilter(t *testing.T) {
	report := New(nil).BuildReport(sampleResults(), &ReportFilter{Models: []string{"m2"}, Websites: []string{"shop"}})
	assert.Equal(t, 1, report.Summary.Total)
	require.Len(t, report.ByModel, 1)
	assert.Equal(t, "m2", report.ByModel[0].Name)
}

func TestBuildReportEmpty(t *testing.T) {
	report := New(nil).BuildReport(nil, nil)
	assert.Zero(t, report.Summary.Total)
	assert.Zero(t, report.Summary.SuccessRate)
	assert.Empty(t, report.ByModel)
	assert.Empty(t, report.Failures)

	md, err := New(nil).GenerateMarkdown(report)
	require.NoError(t, err)
	assert.Contains(t, md, "# MacroBench Report")
	assert.NotContains(t, md, "## Failures")
}

func TestFailuresTruncated(t *testing.T) {
	report := New(nil, WithMaxFailures(1)).BuildReport(sampleResults(), nil)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, 1, report.Truncated)

	md, err := New(nil).GenerateMarkdown(report)
	require.NoError(t, err)
	assert.Contains(t, md, "1 more failures not shown")
}

func TestGenerateMarkdown(t *testing.T) {
	r := New(nil)
	results := sampleResults()
	results[1].Attempts[2].Error = "bad | pipe\nnewline"
	md, err := r.GenerateMarkdown(r.BuildReport(results, nil))
	require.NoError(t, err)

	for _, want := range []string{
		"| Success rate | 50.0% |",
		"## By Model",
		"## By Website",
		"## By Difficulty",
		"## By Validation Category",
		"| m1 | 2 | 1 | 1 | 50.0% | 1 | 2.00 |",
		"## Failures",
		`bad \| pipe newline`,
	} {
		assert.Contains(t, md, want)
	}
}

func TestCustomTemplate(t *testing.T) {
	r := New(nil, WithMarkdownTemplate("total={{.Summary.Total}} rate={{pct .Summary.SuccessRate}}"))
	md, err := r.GenerateMarkdown(r.BuildReport(sampleResults(), nil))
	require.NoError(t, err)
	assert.Equal(t, "total=4 rate=50.0%", md)

	bad := New(nil, WithMarkdownTemplate("{{.Nope"))
	_, err = bad.GenerateMarkdown(&Report{})
	assert.Error(t, err)
}

func TestGenerateJSON(t *testing.T) {
	r := New(nil)
	out, err := r.GenerateJSON(r.BuildReport(sampleResults(), nil))
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	summary, ok := decoded["summary"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 4, summary["total"])
	assert.Contains(t, decoded, "by_category")
}

func TestRenderUnknownFormat(t *testing.T) {
	_, err := New(nil).Render(&Report{}, "pdf")
	assert.Error(t, err)
}

func TestSaveReport(t *testing.T) {
	dir := t.TempDir()
	r := New(nil)
	report := r.BuildReport(sampleResults(), nil)

	mdPath := filepath.Join(dir, "nested", "report.md")
	require.NoError(t, r.SaveReport(report, mdPath, FormatMarkdown))
	data, err := os.ReadFile(mdPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "# MacroBench Report"))

	jsonPath := filepath.Join(dir, "report.json")
	require.NoError(t, r.SaveReport(report, jsonPath, FormatJSON))
	data, err = os.ReadFile(jsonPath)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))

	assert.Error(t, r.SaveReport(report, filepath.Join(dir, "x.pdf"), "pdf"))
}

func TestGenerateFilename(t *testing.T) {
	name := GenerateFilename("bench", FormatJSON)
	assert.True(t, strings.HasPrefix(name, "bench-"))
	assert.True(t, strings.HasSuffix(name, ".json"))

	name = GenerateFilename("", FormatMarkdown)
	assert.True(t, strings.HasPrefix(name, "report-"))
	assert.True(t, strings.HasSuffix(name, ".md"))
}
