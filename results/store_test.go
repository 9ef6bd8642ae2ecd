/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package results

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PivotLLM/MacroBench/global"
	"github.com/PivotLLM/MacroBench/logging"
)

func sampleResult(key string, success bool) *global.TaskResult {
	return &global.TaskResult{
		RunID:   "run-1",
		Key:     key,
		Model:   "m",
		Website: global.Website{Name: "shop"},
		Task:    global.Task{ID: "T1", Description: "add to cart"},
		Attempts: []global.AttemptRecord{
			{AttemptNumber: 1, Model: "m", GeneratedCode: "click()", Success: success, Timestamp: time.Now()},
		},
		Success:   success,
		Timestamp: time.Now(),
	}
}

func TestSaveLazilyCreatesDirAndOverwrites(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "results")
	s := New(dir, logging.NewNop())

	path, err := s.Save(sampleResult("m__shop__T1", false))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, FileName("m__shop__T1")), path)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "m__shop__T1-"))
	assert.False(t, s.HasSuccess("m__shop__T1"))

	// Same key, same file
	path2, err := s.Save(sampleResult("m__shop__T1", true))
	require.NoError(t, err)
	assert.Equal(t, path, path2)
	assert.True(t, s.HasSuccess("m__shop__T1"))

	list, err := s.List()
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestFileNameSanitisesKey(t *testing.T) {
	s := New(t.TempDir(), logging.NewNop())
	key := "openai/gpt 4o__shop__T1"

	path, err := s.Save(sampleResult(key, true))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "openai-gpt-4o__shop__T1-"))
	assert.True(t, strings.HasSuffix(path, ".json"))

	// The key inside the file is unchanged
	r, err := s.Load(key)
	require.NoError(t, err)
	assert.Equal(t, key, r.Key)
	assert.True(t, s.HasSuccess(key))
}

func TestKeysDifferingInUnsafeCharactersKeepSeparateFiles(t *testing.T) {
	s := New(t.TempDir(), logging.NewNop())

	p1, err := s.Save(sampleResult("gpt-4o__shop__T 1", true))
	require.NoError(t, err)
	p2, err := s.Save(sampleResult("gpt-4o__shop__T-1", false))
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2)

	assert.True(t, s.HasSuccess("gpt-4o__shop__T 1"))
	assert.False(t, s.HasSuccess("gpt-4o__shop__T-1"))

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "gpt-4o__shop__T 1", list[0].Key)
	assert.Equal(t, "gpt-4o__shop__T-1", list[1].Key)

	// Claims are per key as well
	release, err := s.TryLock("gpt-4o__shop__T 1")
	require.NoError(t, err)
	defer release()
	release2, err := s.TryLock("gpt-4o__shop__T-1")
	require.NoError(t, err)
	release2()
}

func TestSaveTrimsOversizedResult(t *testing.T) {
	s := New(t.TempDir(), logging.NewNop(), WithMaxBytes(2048))

	r := sampleResult("m__shop__T2", false)
	r.Attempts[0].GeneratedCode = strings.Repeat("x", 10000)
	r.Attempts[0].Error = strings.Repeat("e", 5000)
	r.FinalOutcome = &global.ExecutionOutcome{
		Error: "boom",
		Logs:  []string{strings.Repeat("log", 1000)},
	}

	path, err := s.Save(r)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Less(t, info.Size(), int64(10000))

	loaded, err := s.Load("m__shop__T2")
	require.NoError(t, err)
	assert.True(t, loaded.Trimmed)
	require.Len(t, loaded.Attempts, 1)
	assert.Empty(t, loaded.Attempts[0].GeneratedCode)
	assert.Less(t, len(loaded.Attempts[0].Error), 2100)
	require.NotNil(t, loaded.FinalOutcome)
	assert.Equal(t, "boom", loaded.FinalOutcome.Error)
	assert.Empty(t, loaded.FinalOutcome.Logs)

	// The caller's record is untouched
	assert.False(t, r.Trimmed)
}

func TestTrimKeepsValidUTF8(t *testing.T) {
	r := sampleResult("m__shop__T4", false)
	r.Attempts[0].Error = strings.Repeat("日", global.MaxTrimmedErrorLen)

	trimmed := Trim(r)
	msg := trimmed.Attempts[0].Error
	assert.True(t, utf8.ValidString(msg))
	assert.True(t, strings.HasSuffix(msg, "...[truncated]"))
	assert.LessOrEqual(t, len(msg), global.MaxTrimmedErrorLen+len("...[truncated]"))
}

func TestSaveTrimsUnserialisableResult(t *testing.T) {
	s := New(t.TempDir(), logging.NewNop())

	r := sampleResult("m__shop__T3", true)
	r.FinalOutcome = &global.ExecutionOutcome{
		Success: true,
		Verdict: &global.ValidationVerdict{
			Success:  true,
			Category: "navigation",
			Evidence: map[string]interface{}{"score": math.NaN()},
		},
	}

	_, err := s.Save(r)
	require.NoError(t, err)

	loaded, err := s.Load("m__shop__T3")
	require.NoError(t, err)
	assert.True(t, loaded.Trimmed)
	assert.True(t, loaded.Success)
	require.NotNil(t, loaded.FinalOutcome.Verdict)
	assert.Equal(t, "navigation", loaded.FinalOutcome.Verdict.Category)
	assert.Nil(t, loaded.FinalOutcome.Verdict.Evidence)
	assert.True(t, s.HasSuccess("m__shop__T3"))
}

func TestSaveRequiresKey(t *testing.T) {
	s := New(t.TempDir(), logging.NewNop())
	_, err := s.Save(&global.TaskResult{})
	assert.Error(t, err)
	_, err = s.Save(nil)
	assert.Error(t, err)
}

func TestTryLock(t *testing.T) {
	s := New(t.TempDir(), logging.NewNop())

	release, err := s.TryLock("m__shop__T1")
	require.NoError(t, err)

	_, err = s.TryLock("m__shop__T1")
	assert.True(t, errors.Is(err, ErrClaimedElsewhere))

	// A held claim does not block saving the same key
	_, err = s.Save(sampleResult("m__shop__T1", true))
	require.NoError(t, err)

	release()
	release2, err := s.TryLock("m__shop__T1")
	require.NoError(t, err)
	release2()
}

func TestListSkipsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, logging.NewNop())

	_, err := s.Save(sampleResult("b__shop__T1", true))
	require.NoError(t, err)
	_, err = s.Save(sampleResult("a__shop__T1", false))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte(`{"key": "x", `), 0644))

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a__shop__T1", list[0].Key)
	assert.Equal(t, "b__shop__T1", list[1].Key)
}

func TestListMissingDir(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "none"), logging.NewNop())
	list, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.False(t, s.HasSuccess("anything"))
}
