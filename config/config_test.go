/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PivotLLM/MacroBench/global"
)

func validModel() Model {
	return Model{
		ID:          "test",
		DisplayName: "Test Model",
		Type:        "command",
		Command:     "/bin/echo",
		Args:        []string{"{{PROMPT}}"},
		Description: "Test model",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		config    *configData
		wantError bool
	}{
		{
			name: "valid config",
			config: &configData{
				Version: 1,
				BaseDir: "/tmp/macrobench",
				Models:  []Model{validModel()},
			},
		},
		{
			name:      "invalid version",
			config:    &configData{Version: 2},
			wantError: true,
		},
		{
			name:      "version too old",
			config:    &configData{Version: 0},
			wantError: true,
		},
		{
			name: "empty models",
			config: &configData{
				Version: 1,
				Models:  []Model{},
			},
			wantError: true,
		},
		{
			name: "duplicate model ids",
			config: &configData{
				Version: 1,
				Models:  []Model{validModel(), validModel()},
			},
			wantError: true,
		},
		{
			name: "model id containing key separator",
			config: &configData{
				Version: 1,
				Models: []Model{func() Model {
					m := validModel()
					m.ID = "bad__id"
					return m
				}()},
			},
			wantError: true,
		},
		{
			name: "unsupported model type",
			config: &configData{
				Version: 1,
				Models: []Model{func() Model {
					m := validModel()
					m.Type = "http"
					return m
				}()},
			},
			wantError: true,
		},
		{
			name: "missing prompt placeholder",
			config: &configData{
				Version: 1,
				Models: []Model{func() Model {
					m := validModel()
					m.Args = []string{"-q"}
					return m
				}()},
			},
			wantError: true,
		},
		{
			name: "stdin model needs no placeholder",
			config: &configData{
				Version: 1,
				Models: []Model{func() Model {
					m := validModel()
					m.Args = nil
					m.Stdin = true
					return m
				}()},
			},
		},
		{
			name: "max attempts out of range",
			config: &configData{
				Version: 1,
				Models:  []Model{validModel()},
				Runner:  Runner{MaxAttempts: global.MaxAttemptsLimit + 1},
			},
			wantError: true,
		},
		{
			name: "negative workers",
			config: &configData{
				Version: 1,
				Models:  []Model{validModel()},
				Runner:  Runner{Workers: -1},
			},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{data: tt.config}
			err := c.validate()
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateDisablesMissingExecutable(t *testing.T) {
	m := validModel()
	m.Enabled = true
	m.Command = "/definitely/not/here/llm"

	c := &Config{data: &configData{Version: 1, Models: []Model{m}}}
	require.NoError(t, c.validate())
	assert.False(t, c.data.Models[0].Enabled)
}

func TestLoadCreatesDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	configPath := filepath.Join(dir, "config.json")

	c := New(WithConfigPath(configPath))
	require.NoError(t, c.Load())

	assert.True(t, c.IsFirstRun())
	assert.Equal(t, filepath.Join(dir, ".macrobench"), c.BaseDir())
	assert.FileExists(t, configPath)
	assert.Equal(t, configPath, c.ConfigPath())
	assert.NotEmpty(t, c.Models())
	assert.Empty(t, c.EnabledModels())
}

func TestLoadResolvesPaths(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base")
	configPath := filepath.Join(dir, "config.json")

	content := `{
  "version": 1,
  "base_dir": "` + base + `",
  "results_dir": "out",
  "models": [
    {"id": "m1", "display_name": "M1", "command": "/bin/echo", "args": ["{{PROMPT}}"]}
  ],
  "browser": {"command": "/bin/cat", "timeout_seconds": 5},
  "logging": {"file": "bench.log", "level": "debug"}
}`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	c := New(WithConfigPath(configPath))
	require.NoError(t, c.Load())

	assert.False(t, c.IsFirstRun())
	assert.Equal(t, base, c.BaseDir())
	assert.Equal(t, filepath.Join(base, "out"), c.ResultsDir())
	assert.Equal(t, filepath.Join(base, global.DefaultWebsitesDir), c.WebsitesDir())
	assert.Equal(t, filepath.Join(base, global.DefaultTasksDir), c.TasksDir())
	assert.Equal(t, filepath.Join(base, "bench.log"), c.LogFile())
	assert.Equal(t, global.LogLevelDebug, c.LogLevel())
	assert.DirExists(t, c.ResultsDir())
	assert.DirExists(t, c.ReportsDir())

	assert.Equal(t, 5*time.Second, c.ExecutionTimeout())
}

func TestLoadYAMLConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")

	content := `version: 1
base_dir: ` + filepath.Join(dir, "base") + `
models:
  - id: m1
    display_name: M1
    command: /bin/echo
    stdin: true
browser:
  command: /bin/cat
runner:
  workers: 4
  max_attempts: 3
  halt_on_failure: true
logging:
  level: WARN
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	c := New(WithConfigPath(configPath))
	require.NoError(t, c.Load())

	r := c.Runner()
	assert.Equal(t, 4, r.Workers)
	assert.Equal(t, 3, r.MaxAttempts)
	assert.True(t, r.HaltOnFailure)
	assert.Equal(t, global.LogLevelWarn, c.LogLevel())
}

func TestLoadToleratesUnknownFields(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")

	content := `{
  "version": 1,
  "base_dir": "` + filepath.Join(dir, "base") + `",
  "legacy_option": true,
  "models": [{"id": "m1", "command": "/bin/echo", "stdin": true}]
}`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	c := New(WithConfigPath(configPath))
	require.NoError(t, c.Load())
	require.NotNil(t, c.GetModel("m1"))
	assert.Equal(t, "m1", c.GetModel("m1").DisplayName)
	assert.Nil(t, c.GetModel("missing"))
}

func TestLoadFromEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	configPath := filepath.Join(dir, "env-config.json")
	t.Setenv(global.ConfigEnvVar, configPath)

	c := New()
	require.NoError(t, c.Load())
	assert.Equal(t, configPath, c.ConfigPath())
}

func TestRunnerDefaults(t *testing.T) {
	c := &Config{data: &configData{}}
	r := c.Runner()

	assert.Equal(t, global.DefaultWorkers, r.Workers)
	assert.Equal(t, global.DefaultMaxAttempts, r.MaxAttempts)
	assert.Equal(t, global.DefaultMaxResultBytes, r.MaxResultBytes)
	assert.Equal(t, global.DefaultRateLimitRequests, r.RateLimit.MaxRequests)
	assert.Equal(t, global.DefaultRateLimitPeriod, r.RateLimit.PeriodSeconds)
	assert.Equal(t, global.DefaultExecutionTimeout, c.ExecutionTimeout())
	assert.Equal(t, global.LogLevelInfo, c.LogLevel())
}

func TestResolveAPIKey(t *testing.T) {
	m := Model{APIKey: "plain-key"}
	key, err := m.ResolveAPIKey()
	require.NoError(t, err)
	assert.Equal(t, "plain-key", key)

	t.Setenv("MACROBENCH_TEST_KEY", "secret")
	m.APIKey = "env:MACROBENCH_TEST_KEY"
	key, err = m.ResolveAPIKey()
	require.NoError(t, err)
	assert.Equal(t, "secret", key)

	m.APIKey = "env:MACROBENCH_TEST_KEY_UNSET"
	_, err = m.ResolveAPIKey()
	assert.ErrorContains(t, err, "MACROBENCH_TEST_KEY_UNSET")
}

func TestValidateForRun(t *testing.T) {
	m := validModel()
	m.Enabled = true

	c := &Config{data: &configData{Version: 1, Models: []Model{m}}}
	assert.ErrorContains(t, c.ValidateForRun(), "browser.command")

	c.data.Browser.Command = "/bin/cat"
	assert.NoError(t, c.ValidateForRun())

	c.data.Models[0].APIKey = "env:MACROBENCH_NEVER_SET_KEY"
	assert.ErrorContains(t, c.ValidateForRun(), "missing credentials")

	c.data.Models[0].Enabled = false
	assert.ErrorContains(t, c.ValidateForRun(), "no models are enabled")
}

func TestModelDefaults(t *testing.T) {
	m := Model{}
	assert.Equal(t, ModelTypeCommand, m.GetType())
	assert.Equal(t, global.DefaultGenerationTimeout, m.GetTimeout())
	assert.NotEmpty(t, m.GetSystemPrompt())

	m.SystemPrompt = "custom"
	assert.Equal(t, "custom", m.GetSystemPrompt())
}
