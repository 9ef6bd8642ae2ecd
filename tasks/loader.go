/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

// Package tasks loads benchmark task definitions from the tasks directory.
// Each file describes the tasks for one website, named after it:
// <website>.json, <website>.yaml, <website>.md, or a spreadsheet/document
// that is converted to Markdown first.
package tasks

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/tenebris-tech/x2md/convert"
	"gopkg.in/yaml.v3"

	"github.com/PivotLLM/MacroBench/global"
	"github.com/PivotLLM/MacroBench/logging"
	"github.com/PivotLLM/MacroBench/templates"
)

// Supported file extensions
var (
	structuredExts  = map[string]bool{".json": true, ".yaml": true, ".yml": true}
	convertibleExts = map[string]bool{".xlsx": true, ".xls": true, ".csv": true, ".docx": true}
)

// administrative rows in spreadsheets start with one of these words
var adminWords = []string{"totals", "total", "summary", "notes", "note"}

// Loader reads task files from a directory
type Loader struct {
	dir       string
	logger    *logging.Logger
	validator *templates.Validator
	convert   bool
}

// Option configures a Loader
type Option func(*Loader)

// WithValidator checks structured task files against the task file schema
func WithValidator(v *templates.Validator) Option {
	return func(l *Loader) {
		l.validator = v
	}
}

// WithConversion enables or disables spreadsheet conversion (enabled by default)
func WithConversion(enabled bool) Option {
	return func(l *Loader) {
		l.convert = enabled
	}
}

// NewLoader creates a loader for the given tasks directory
func NewLoader(dir string, logger *logging.Logger, opts ...Option) *Loader {
	l := &Loader{
		dir:     dir,
		logger:  logger,
		convert: true,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// taskSource is one file that yields the tasks of one website
type taskSource struct {
	website string
	path    string
}

// Load returns the tasks of every website found in the directory, keyed by website name.
// A file that fails to parse is an error; rows that are merely malformed are dropped.
func (l *Loader) Load() (map[string][]global.Task, error) {
	if !global.DirExists(l.dir) {
		return nil, fmt.Errorf("tasks directory not found: %s", l.dir)
	}

	sources, err := l.discover()
	if err != nil {
		return nil, err
	}

	result := make(map[string][]global.Task)
	for _, src := range sources {
		if _, exists := result[src.website]; exists {
			l.logger.Warnf("Duplicate task file for website %s ignored: %s", src.website, src.path)
			continue
		}
		tasks, err := l.LoadFile(src.path)
		if err != nil {
			return nil, fmt.Errorf("failed to load tasks for %s: %w", src.website, err)
		}
		result[src.website] = tasks
		l.logger.Debugf("Loaded %d tasks for website %s from %s", len(tasks), src.website, filepath.Base(src.path))
	}

	return result, nil
}

// discover lists task files, converting spreadsheets to Markdown first.
// Structured files are preferred over Markdown for the same website.
func (l *Loader) discover() ([]taskSource, error) {
	if l.convert {
		l.convertDocuments()
	}

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read tasks directory: %w", err)
	}

	var structured, markdown []taskSource
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		src := taskSource{
			website: websiteFromFileName(name),
			path:    filepath.Join(l.dir, name),
		}
		switch {
		case structuredExts[ext]:
			structured = append(structured, src)
		case ext == ".md":
			markdown = append(markdown, src)
		}
	}

	sort.Slice(structured, func(i, j int) bool { return structured[i].path < structured[j].path })
	sort.Slice(markdown, func(i, j int) bool { return markdown[i].path < markdown[j].path })
	return append(structured, markdown...), nil
}

// convertDocuments runs x2md over the tasks directory. Existing Markdown is kept.
func (l *Loader) convertDocuments() {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return
	}
	found := false
	for _, entry := range entries {
		if !entry.IsDir() && convertibleExts[strings.ToLower(filepath.Ext(entry.Name()))] {
			found = true
			break
		}
	}
	if !found {
		return
	}

	converter := convert.New(
		convert.WithRecursion(false),
		convert.WithSkipExisting(true),
	)
	result, err := converter.Convert(l.dir)
	if err != nil {
		// Log but don't fail - structured files may still cover every website
		l.logger.Warnf("Task document conversion failed: %v", err)
		return
	}
	l.logger.Infof("Task document conversion: %d converted, %d skipped, %d failed",
		result.Converted, result.Skipped, result.Failed)
}

// websiteFromFileName strips every extension: "shop.xlsx.md" -> "shop"
func websiteFromFileName(name string) string {
	if i := strings.Index(name, "."); i > 0 {
		return name[:i]
	}
	return name
}

// LoadFile parses one task file and returns its filtered tasks
func (l *Loader) LoadFile(path string) ([]global.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read task file: %w", err)
	}

	var tasks []global.Task
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md":
		tasks = ParseMarkdownTables(string(data))
	case ".yaml", ".yml":
		var doc interface{}
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML task file: %w", err)
		}
		// Re-encode so both formats share one schema and one decoder
		if data, err = json.Marshal(doc); err != nil {
			return nil, fmt.Errorf("failed to convert YAML task file: %w", err)
		}
		fallthrough
	default:
		if tasks, err = l.parseStructured(data); err != nil {
			return nil, err
		}
	}

	return FilterTasks(tasks), nil
}

// rawTask mirrors global.Task but tolerates numeric ids
type rawTask struct {
	ID             flexString          `json:"id"`
	Description    string              `json:"description"`
	Objective      string              `json:"objective"`
	ExpectedResult string              `json:"expected_result"`
	Difficulty     flexString          `json:"difficulty"`
	Category       string              `json:"category"`
	Tags           []string            `json:"tags"`
	Notes          string              `json:"notes"`
	GroundTruth    *global.GroundTruth `json:"ground_truth"`
}

type taskFile struct {
	Website string    `json:"website"`
	Tasks   []rawTask `json:"tasks"`
}

func (l *Loader) parseStructured(data []byte) ([]global.Task, error) {
	if l.validator != nil {
		result, err := l.validator.Validate(templates.SchemaTaskFile, data)
		if err != nil {
			return nil, err
		}
		if !result.Valid {
			return nil, fmt.Errorf("task file does not match schema: %s", result.Error())
		}
	}

	var raw []rawTask
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse task file: %w", err)
		}
	} else {
		var file taskFile
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse task file: %w", err)
		}
		raw = file.Tasks
	}

	tasks := make([]global.Task, 0, len(raw))
	for i, r := range raw {
		id := string(r.ID)
		if id == "" {
			id = fmt.Sprintf("T%d", i+1)
		}
		tasks = append(tasks, global.Task{
			ID:             id,
			Description:    r.Description,
			Objective:      r.Objective,
			ExpectedResult: r.ExpectedResult,
			Difficulty:     string(r.Difficulty),
			Category:       r.Category,
			Tags:           r.Tags,
			Notes:          r.Notes,
			GroundTruth:    normalizeGroundTruth(r.GroundTruth),
		})
	}
	return tasks, nil
}

// flexString accepts JSON strings and numbers
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*f = flexString(v)
		return nil
	}
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return fmt.Errorf("expected string or number, got %s", s)
	}
	*f = flexString(s)
	return nil
}

// normalizeGroundTruth drops descriptors that carry no usable criteria
func normalizeGroundTruth(gt *global.GroundTruth) *global.GroundTruth {
	if gt.IsEmpty() {
		return nil
	}
	return gt
}

// FilterTasks drops rows without a description, administrative or summary rows,
// and repeated ids (the first occurrence wins). Order is preserved.
func FilterTasks(tasks []global.Task) []global.Task {
	seen := make(map[string]bool)
	filtered := make([]global.Task, 0, len(tasks))
	for _, t := range tasks {
		t.ID = strings.TrimSpace(t.ID)
		t.Description = strings.TrimSpace(t.Description)
		if t.Description == "" {
			continue
		}
		if isAdministrative(t.ID) || isAdministrative(t.Description) {
			continue
		}
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		filtered = append(filtered, t)
	}
	return filtered
}

// isAdministrative matches "Total", "Summary: 12 tasks", "Note - ...", "# heading"
// but not "Note the price of the first item".
func isAdministrative(s string) bool {
	lower := strings.ToLower(strings.TrimSpace(s))
	if strings.HasPrefix(lower, "#") {
		return true
	}
	for _, word := range adminWords {
		if !strings.HasPrefix(lower, word) {
			continue
		}
		rest := strings.TrimSpace(lower[len(word):])
		if rest == "" || strings.ContainsAny(rest[:1], ":-(") {
			return true
		}
	}
	return false
}
