/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package tasks

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/PivotLLM/MacroBench/global"
)

// column aliases found in task spreadsheets, normalised to lower snake case
var columnAliases = map[string]string{
	"id":                        "id",
	"task_id":                   "id",
	"no":                        "id",
	"description":               "description",
	"task":                      "description",
	"task_description":          "description",
	"objective":                 "objective",
	"goal":                      "objective",
	"expected_result":           "expected_result",
	"expected":                  "expected_result",
	"difficulty":                "difficulty",
	"level":                     "difficulty",
	"category":                  "category",
	"type":                      "category",
	"tags":                      "tags",
	"notes":                     "notes",
	"ground_truth":              "ground_truth",
	"expected_url_change":       "expected_url_change",
	"expected_element_selector": "expected_element_selector",
	"expected_element_text":     "expected_element_text",
	"custom_validation":         "custom_validation",
	"success_indicators":        "success_indicators",
}

var (
	separatorCell = regexp.MustCompile(`^:?-{3,}:?$`)
	nonWordRun    = regexp.MustCompile(`[^a-z0-9]+`)
)

// ParseMarkdownTables extracts tasks from every pipe table in a Markdown document.
// Rows are returned unfiltered; see FilterTasks.
func ParseMarkdownTables(content string) []global.Task {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")

	var tasks []global.Task
	var columns []string
	row := 0

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "|") {
			columns = nil
			continue
		}

		cells := splitRow(line)

		// A header row is any row directly followed by a separator row
		if columns == nil {
			if i+1 < len(lines) && isSeparatorRow(splitRow(strings.TrimSpace(lines[i+1]))) {
				columns = normalizeColumns(cells)
				i++
			}
			continue
		}

		row++
		if t, ok := rowToTask(columns, cells, row); ok {
			tasks = append(tasks, t)
		}
	}

	return tasks
}

func splitRow(line string) []string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "|")
	line = strings.TrimSuffix(line, "|")

	// Escaped pipes stay inside their cell
	const placeholder = "\x00"
	line = strings.ReplaceAll(line, `\|`, placeholder)

	parts := strings.Split(line, "|")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(strings.ReplaceAll(p, placeholder, "|"))
	}
	return parts
}

func isSeparatorRow(cells []string) bool {
	if len(cells) == 0 {
		return false
	}
	for _, c := range cells {
		if !separatorCell.MatchString(c) {
			return false
		}
	}
	return true
}

func normalizeColumns(cells []string) []string {
	cols := make([]string, len(cells))
	for i, c := range cells {
		key := strings.Trim(nonWordRun.ReplaceAllString(strings.ToLower(c), "_"), "_")
		cols[i] = columnAliases[key]
	}
	return cols
}

func rowToTask(columns, cells []string, row int) (global.Task, bool) {
	t := global.Task{}
	gt := &global.GroundTruth{}
	hasValue := false

	for i, col := range columns {
		if col == "" || i >= len(cells) {
			continue
		}
		value := unescapeCell(cells[i])
		if value == "" {
			continue
		}
		hasValue = true

		switch col {
		case "id":
			t.ID = value
		case "description":
			t.Description = value
		case "objective":
			t.Objective = value
		case "expected_result":
			t.ExpectedResult = value
		case "difficulty":
			t.Difficulty = value
		case "category":
			t.Category = value
		case "tags":
			t.Tags = splitList(value, ",")
		case "notes":
			t.Notes = value
		case "ground_truth":
			if err := json.Unmarshal([]byte(value), gt); err != nil {
				// Unparseable cells are kept as a plain indicator phrase
				gt.SuccessIndicators = append(gt.SuccessIndicators, value)
			}
		case "expected_url_change":
			gt.ExpectedURLChange = value
		case "expected_element_selector":
			gt.ExpectedElementSelector = value
		case "expected_element_text":
			gt.ExpectedElementText = value
		case "custom_validation":
			gt.CustomValidation = value
		case "success_indicators":
			gt.SuccessIndicators = append(gt.SuccessIndicators, splitList(value, ";")...)
		}
	}

	if !hasValue {
		return t, false
	}
	if t.ID == "" {
		t.ID = fmt.Sprintf("T%d", row)
	}
	t.GroundTruth = normalizeGroundTruth(gt)
	return t, true
}

// unescapeCell undoes the Markdown escaping converters apply to cell text
func unescapeCell(s string) string {
	s = strings.ReplaceAll(s, "<br>", "\n")
	s = strings.ReplaceAll(s, "<br/>", "\n")
	s = strings.ReplaceAll(s, `\*`, "*")
	s = strings.ReplaceAll(s, `\_`, "_")
	return strings.TrimSpace(s)
}

func splitList(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
