/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

// Package catalog builds the full set of (model, website, task) combinations.
package catalog

import (
	"fmt"
	"strings"

	"github.com/PivotLLM/MacroBench/global"
)

// Combination is one unit of required benchmark work
type Combination struct {
	Key     string
	Model   string
	Website global.Website
	Task    global.Task
}

// Key builds the composite key for a combination
func Key(model, website, taskID string) string {
	return model + global.KeySeparator + website + global.KeySeparator + taskID
}

// ParseKey splits a composite key into its parts.
// Task ids may themselves contain the separator; model and website may not.
func ParseKey(key string) (model, website, taskID string, err error) {
	parts := strings.SplitN(key, global.KeySeparator, 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("invalid composite key: %q", key)
	}
	return parts[0], parts[1], parts[2], nil
}

// Build returns the cartesian product of websites, their tasks and models,
// nested in (website, task, model) order. Websites with no tasks contribute nothing.
// Repeated task ids within one website keep their first occurrence.
func Build(tasksByWebsite map[string][]global.Task, websites []global.Website, models []string) []Combination {
	var out []Combination
	for _, site := range websites {
		seen := make(map[string]bool)
		for _, task := range tasksByWebsite[site.Name] {
			if seen[task.ID] {
				continue
			}
			seen[task.ID] = true
			for _, model := range models {
				out = append(out, Combination{
					Key:     Key(model, site.Name, task.ID),
					Model:   model,
					Website: site,
					Task:    task,
				})
			}
		}
	}
	return out
}

// LimitTasks keeps at most n tasks per website (n <= 0 keeps all)
func LimitTasks(tasksByWebsite map[string][]global.Task, n int) map[string][]global.Task {
	if n <= 0 {
		return tasksByWebsite
	}
	out := make(map[string][]global.Task, len(tasksByWebsite))
	for site, tasks := range tasksByWebsite {
		if len(tasks) > n {
			tasks = tasks[:n]
		}
		out[site] = tasks
	}
	return out
}

// WorkItems converts combinations into fresh work items
func WorkItems(combos []Combination, maxAttempts int) []global.WorkItem {
	items := make([]global.WorkItem, 0, len(combos))
	for _, c := range combos {
		items = append(items, global.WorkItem{
			Key:         c.Key,
			Model:       c.Model,
			Website:     c.Website,
			Task:        c.Task,
			MaxAttempts: maxAttempts,
		})
	}
	return items
}
