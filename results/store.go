/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

// Package results persists one JSON file per composite key.
package results

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gofrs/flock"

	"github.com/PivotLLM/MacroBench/global"
	"github.com/PivotLLM/MacroBench/logging"
)

// ErrClaimedElsewhere is returned by TryLock when another process holds the key
var ErrClaimedElsewhere = errors.New("work item claimed elsewhere")

const locksDir = ".locks"

// Store reads and writes result files
type Store struct {
	dir      string
	logger   *logging.Logger
	maxBytes int
}

// Option configures a Store
type Option func(*Store)

// WithMaxBytes sets the size above which a trimmed summary is saved instead
func WithMaxBytes(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

// New creates a store rooted at dir. The directory is created on first save.
func New(dir string, logger *logging.Logger, opts ...Option) *Store {
	s := &Store{
		dir:      dir,
		logger:   logger,
		maxBytes: global.DefaultMaxResultBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the result directory
func (s *Store) Dir() string {
	return s.dir
}

// FileName returns the result file name for a composite key.
// Distinct keys always map to distinct names.
func FileName(key string) string {
	return global.KeyFileStem(key) + ".json"
}

// Path returns the result file path for a composite key
func (s *Store) Path(key string) string {
	return filepath.Join(s.dir, FileName(key))
}

func (s *Store) lockPath(key, suffix string) string {
	return filepath.Join(s.dir, locksDir, global.KeyFileStem(key)+suffix)
}

// withLock executes a function with file-level locking on the key's result file
func (s *Store) withLock(key string, fn func() error) error {
	lockPath := s.lockPath(key, ".lock")
	if err := global.EnsureDir(filepath.Dir(lockPath)); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	lock := flock.New(lockPath)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	return fn()
}

// TryLock takes the advisory claim lock for a key without blocking.
// It returns ErrClaimedElsewhere if another holder has it. The returned
// function releases the lock.
func (s *Store) TryLock(key string) (func(), error) {
	lockPath := s.lockPath(key, ".claim")
	if err := global.EnsureDir(filepath.Dir(lockPath)); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}

	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire claim lock: %w", err)
	}
	if !locked {
		return nil, ErrClaimedElsewhere
	}
	return func() { _ = lock.Unlock() }, nil
}

// Save writes the result atomically, overwriting any earlier result for the same key.
// If the record cannot be serialised or exceeds the size limit, a trimmed summary
// is written instead and Trimmed is set on the saved copy.
func (s *Store) Save(result *global.TaskResult) (string, error) {
	if result == nil || result.Key == "" {
		return "", fmt.Errorf("result must have a key")
	}

	path := s.Path(result.Key)
	err := s.withLock(result.Key, func() error {
		data, err := json.MarshalIndent(result, "", "  ")
		switch {
		case err != nil:
			s.logger.Warnf("Result %s could not be serialised, saving trimmed summary: %v", result.Key, err)
			data = nil
		case len(data) > s.maxBytes:
			s.logger.Warnf("Result %s is %d bytes (limit %d), saving trimmed summary", result.Key, len(data), s.maxBytes)
			data = nil
		}

		if data == nil {
			if data, err = json.MarshalIndent(Trim(result), "", "  "); err != nil {
				return fmt.Errorf("failed to marshal trimmed result: %w", err)
			}
		}

		return global.AtomicWrite(path, data)
	})
	if err != nil {
		return "", fmt.Errorf("failed to save result %s: %w", result.Key, err)
	}

	return path, nil
}

// Trim reduces a result to outcome, timing, attempt count and per-attempt status
func Trim(r *global.TaskResult) *global.TaskResult {
	t := &global.TaskResult{
		RunID:               r.RunID,
		Key:                 r.Key,
		Model:               r.Model,
		Website:             r.Website,
		Task:                r.Task,
		Success:             r.Success,
		TotalElapsedSeconds: r.TotalElapsedSeconds,
		Timestamp:           r.Timestamp,
		Trimmed:             true,
		Attempts:            make([]global.AttemptRecord, 0, len(r.Attempts)),
	}

	for _, a := range r.Attempts {
		t.Attempts = append(t.Attempts, global.AttemptRecord{
			AttemptNumber:  a.AttemptNumber,
			Model:          a.Model,
			Success:        a.Success,
			Error:          truncate(a.Error, global.MaxTrimmedErrorLen),
			ElapsedSeconds: a.ElapsedSeconds,
			Timestamp:      a.Timestamp,
		})
	}

	if r.FinalOutcome != nil {
		t.FinalOutcome = &global.ExecutionOutcome{
			Success:  r.FinalOutcome.Success,
			Error:    truncate(r.FinalOutcome.Error, global.MaxTrimmedErrorLen),
			TimedOut: r.FinalOutcome.TimedOut,
		}
		if v := r.FinalOutcome.Verdict; v != nil {
			t.FinalOutcome.Verdict = &global.ValidationVerdict{
				Success:         v.Success,
				Category:        v.Category,
				Checks:          v.Checks,
				UsedGroundTruth: v.UsedGroundTruth,
				UsedFallback:    v.UsedFallback,
				Reason:          truncate(v.Reason, global.MaxTrimmedErrorLen),
			}
		}
	}

	return t
}

func truncate(s string, n int) string {
	if t, cut := global.TruncateBytes(s, n); cut {
		return t + "...[truncated]"
	}
	return s
}

// Load reads the result for a key
func (s *Store) Load(key string) (*global.TaskResult, error) {
	return s.loadFile(s.Path(key))
}

func (s *Store) loadFile(path string) (*global.TaskResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var r global.TaskResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse result %s: %w", filepath.Base(path), err)
	}
	return &r, nil
}

// HasSuccess reports whether a successful result already exists for the key.
// Unreadable files count as not completed.
func (s *Store) HasSuccess(key string) bool {
	r, err := s.Load(key)
	if err != nil {
		return false
	}
	return r.Success && r.Key == key
}

// List returns every readable result sorted by key. Unreadable files are logged and skipped.
func (s *Store) List() ([]*global.TaskResult, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read results directory: %w", err)
	}

	var out []*global.TaskResult
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		r, err := s.loadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			s.logger.Warnf("Skipping unreadable result file %s: %v", entry.Name(), err)
			continue
		}
		out = append(out, r)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
