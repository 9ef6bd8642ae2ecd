/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

// Package ledger records which composite keys already have a successful result.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PivotLLM/MacroBench/logging"
	"github.com/PivotLLM/MacroBench/templates"
)

// SkippedFile is a result file that did not count as completed
type SkippedFile struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
}

// Ledger is the set of completed keys, built once at startup
type Ledger struct {
	completed map[string]bool
	skipped   []SkippedFile
	scanned   int
}

// ledgerEntry is the subset of a result file the ledger reads
type ledgerEntry struct {
	Key     string `json:"key"`
	Success bool   `json:"success"`
}

// Build scans dir for successful result files.
// Unreadable, truncated, schema-invalid and unsuccessful files are skipped, never fatal.
// A missing directory yields an empty ledger.
func Build(dir string, logger *logging.Logger, validator *templates.Validator) (*Ledger, error) {
	l := &Ledger{completed: make(map[string]bool)}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, fmt.Errorf("failed to read results directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		l.scanned++

		key, reason := readEntry(filepath.Join(dir, entry.Name()), validator)
		if reason != "" {
			l.skipped = append(l.skipped, SkippedFile{File: entry.Name(), Reason: reason})
			if reason != reasonNotSuccessful {
				logger.Warnf("Ledger: skipping %s: %s", entry.Name(), reason)
			}
			continue
		}
		l.completed[key] = true
	}

	logger.Infof("Ledger: %d completed of %d result files (%d skipped)", len(l.completed), l.scanned, len(l.skipped))
	return l, nil
}

const reasonNotSuccessful = "not successful"

// readEntry returns the key of a successful result file, or a reason it was skipped
func readEntry(path string, validator *templates.Validator) (string, string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Sprintf("unreadable: %v", err)
	}

	if validator != nil {
		result, err := validator.Validate(templates.SchemaResult, data)
		if err != nil {
			return "", fmt.Sprintf("invalid JSON: %v", err)
		}
		if !result.Valid {
			return "", fmt.Sprintf("schema mismatch: %s", result.Error())
		}
	}

	var e ledgerEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return "", fmt.Sprintf("invalid JSON: %v", err)
	}
	if e.Key == "" {
		return "", "missing key"
	}
	if !e.Success {
		return "", reasonNotSuccessful
	}
	return e.Key, ""
}

// Contains reports whether key has a successful result
func (l *Ledger) Contains(key string) bool {
	return l.completed[key]
}

// Len returns the number of completed keys
func (l *Ledger) Len() int {
	return len(l.completed)
}

// Keys returns completed keys in sorted order
func (l *Ledger) Keys() []string {
	keys := make([]string, 0, len(l.completed))
	for k := range l.completed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Skipped returns files that were not counted, with reasons
func (l *Ledger) Skipped() []SkippedFile {
	return l.skipped
}

// Scanned returns the number of result files examined
func (l *Ledger) Scanned() int {
	return l.scanned
}
