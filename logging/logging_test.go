/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PivotLLM/MacroBench/global"
)

func TestLoggerWritesFileAndConsole(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "bench.log")
	var console bytes.Buffer

	logger, err := New(logPath, WithConsole(&console))
	require.NoError(t, err)

	logger.Infof("hello %s", "world")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[INFO]")
	assert.Contains(t, string(data), "hello world")
	assert.Equal(t, string(data), console.String())
}

func TestLoggerLevelFiltering(t *testing.T) {
	var console bytes.Buffer
	logger, err := New("", WithConsole(&console))
	require.NoError(t, err)

	logger.SetLevel(global.LogLevelWarn)
	logger.Info("dropped")
	logger.Debug("dropped")
	logger.Warn("kept")
	logger.Error("kept too")

	out := console.String()
	assert.NotContains(t, out, "dropped")
	assert.Equal(t, 2, strings.Count(out, "kept"))
}

func TestLoggerWithPrefix(t *testing.T) {
	var console bytes.Buffer
	logger, err := New("", WithConsole(&console))
	require.NoError(t, err)

	worker := logger.With("[worker 3]")
	worker.Info("claimed item")

	assert.Contains(t, console.String(), "[worker 3] claimed item")

	// Level changes on the parent apply to derived loggers
	logger.SetLevel(global.LogLevelError)
	worker.Info("hidden")
	assert.NotContains(t, console.String(), "hidden")
}

func TestNilLoggerIsSafe(t *testing.T) {
	var logger *Logger
	assert.NotPanics(t, func() {
		logger.Infof("nothing %d", 1)
		_ = logger.Close()
	})
}
