/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package ledger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PivotLLM/MacroBench/global"
	"github.com/PivotLLM/MacroBench/logging"
	"github.com/PivotLLM/MacroBench/results"
	"github.com/PivotLLM/MacroBench/templates"
)

func saveResult(t *testing.T, store *results.Store, key string, success bool) {
	t.Helper()
	_, err := store.Save(&global.TaskResult{
		Key:       key,
		Model:     "m",
		Attempts:  []global.AttemptRecord{{AttemptNumber: 1, Success: success}},
		Success:   success,
		Timestamp: time.Now(),
	})
	require.NoError(t, err)
}

func TestCorruptLedgerTolerance(t *testing.T) {
	dir := t.TempDir()
	store := results.New(dir, logging.NewNop())
	saveResult(t, store, "m__shop__T1", true)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "m__shop__T2.json"), []byte(`{"key": "m__shop__T2", "succ`), 0644))

	l, err := Build(dir, logging.NewNop(), templates.New(nil))
	require.NoError(t, err)

	assert.Equal(t, 1, l.Len())
	assert.True(t, l.Contains("m__shop__T1"))
	assert.False(t, l.Contains("m__shop__T2"))
	assert.Equal(t, 2, l.Scanned())
	require.Len(t, l.Skipped(), 1)
	assert.Equal(t, "m__shop__T2.json", l.Skipped()[0].File)
}

func TestOnlySuccessfulResultsCount(t *testing.T) {
	dir := t.TempDir()
	store := results.New(dir, logging.NewNop())
	saveResult(t, store, "m__shop__T1", true)
	saveResult(t, store, "m__shop__T2", false)
	saveResult(t, store, "m__blog__B1", true)

	l, err := Build(dir, logging.NewNop(), templates.New(nil))
	require.NoError(t, err)

	assert.Equal(t, []string{"m__blog__B1", "m__shop__T1"}, l.Keys())
	require.Len(t, l.Skipped(), 1)
	assert.Equal(t, reasonNotSuccessful, l.Skipped()[0].Reason)
}

func TestSchemaMismatchIsSkipped(t *testing.T) {
	dir := t.TempDir()
	// Valid JSON claiming success but missing required fields
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.json"), []byte(`{"key": "m__shop__T9", "success": true}`), 0644))

	l, err := Build(dir, logging.NewNop(), templates.New(nil))
	require.NoError(t, err)
	assert.Zero(t, l.Len())
	require.Len(t, l.Skipped(), 1)
	assert.Contains(t, l.Skipped()[0].Reason, "schema mismatch")

	// Without a validator the same file is accepted
	l, err = Build(dir, logging.NewNop(), nil)
	require.NoError(t, err)
	assert.True(t, l.Contains("m__shop__T9"))
}

func TestMissingDirectoryIsEmpty(t *testing.T) {
	l, err := Build(filepath.Join(t.TempDir(), "missing"), logging.NewNop(), nil)
	require.NoError(t, err)
	assert.Zero(t, l.Len())
	assert.Empty(t, l.Keys())
}

func TestIgnoresNonJSONAndDirectories(t *testing.T) {
	dir := t.TempDir()
	store := results.New(dir, logging.NewNop())
	saveResult(t, store, "m__shop__T1", true)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub.json"), 0755))

	l, err := Build(dir, logging.NewNop(), templates.New(nil))
	require.NoError(t, err)
	assert.Equal(t, 1, l.Scanned())
	assert.Equal(t, 1, l.Len())
}
