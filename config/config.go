/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/PivotLLM/MacroBench/global"
)

// defaultConfigJSON is written on first run
const defaultConfigJSON = `{
  "version": 1,
  "base_dir": "~/.macrobench",
  "websites_dir": "websites",
  "tasks_dir": "tasks",
  "results_dir": "results",
  "reports_dir": "reports",
  "models": [
    {
      "id": "example-model",
      "display_name": "Example Model",
      "description": "Command-line model wrapper; edit command and args before enabling",
      "enabled": false,
      "command": "llm",
      "args": ["-m", "gpt-4o-mini"],
      "stdin": true,
      "api_key": "env:OPENAI_API_KEY"
    }
  ],
  "browser": {
    "command": "node",
    "args": ["runner/run-macro.js"],
    "timeout_seconds": 30
  },
  "runner": {
    "workers": 2,
    "max_attempts": 2
  },
  "logging": {
    "file": "macrobench.log",
    "level": "INFO"
  }
}
`

// Config provides access to application configuration
type Config struct {
	configPath  string      // resolved path to config file
	data        *configData // parsed configuration
	firstRun    bool        // true if config was just created
	websitesDir string
	tasksDir    string
	resultsDir  string
	reportsDir  string
}

// configData holds the parsed configuration (internal)
type configData struct {
	Version     int     `json:"version" yaml:"version"`
	BaseDir     string  `json:"base_dir" yaml:"base_dir"`
	WebsitesDir string  `json:"websites_dir,omitempty" yaml:"websites_dir,omitempty"`
	TasksDir    string  `json:"tasks_dir,omitempty" yaml:"tasks_dir,omitempty"`
	ResultsDir  string  `json:"results_dir,omitempty" yaml:"results_dir,omitempty"`
	ReportsDir  string  `json:"reports_dir,omitempty" yaml:"reports_dir,omitempty"`
	Models      []Model `json:"models" yaml:"models"`
	Browser     Browser `json:"browser" yaml:"browser"`
	Runner      Runner  `json:"runner,omitempty" yaml:"runner,omitempty"`
	Logging     Logging `json:"logging" yaml:"logging"`
	MetricsAddr string  `json:"metrics_addr,omitempty" yaml:"metrics_addr,omitempty"`
}

// ModelTypeCommand is the only supported model type
const (
	ModelTypeCommand = "command" // Command-line executable
)

// Model is a code-generating language model reached through a command-line wrapper
type Model struct {
	ID           string `json:"id" yaml:"id"`
	DisplayName  string `json:"display_name" yaml:"display_name"`
	Description  string `json:"description" yaml:"description"`
	Enabled      bool   `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	SystemPrompt string `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`

	// Type specifies the provider type (only "command" supported)
	Type string `json:"type,omitempty" yaml:"type,omitempty"`

	// Command is the path to the executable
	Command string `json:"command,omitempty" yaml:"command,omitempty"`
	// Args is the list of arguments; use {{PROMPT}} as placeholder for the prompt (unless Stdin is true)
	Args []string `json:"args,omitempty" yaml:"args,omitempty"`
	// Stdin: if true, prompt is piped to command's stdin instead of using {{PROMPT}} placeholder
	Stdin bool `json:"stdin,omitempty" yaml:"stdin,omitempty"`

	// APIKey is passed to the command as MACROBENCH_API_KEY; "env:NAME" reads it from the environment
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	// TimeoutSeconds bounds one generation call
	TimeoutSeconds int `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
}

// Browser configures the headless-browser runner command
type Browser struct {
	Command        string            `json:"command" yaml:"command"`
	Args           []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env            map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	ArtifactsDir   string            `json:"artifacts_dir,omitempty" yaml:"artifacts_dir,omitempty"`
}

// Logging represents logging configuration
type Logging struct {
	File    string `json:"file" yaml:"file"`
	Level   string `json:"level" yaml:"level"`
	Console bool   `json:"console,omitempty" yaml:"console,omitempty"`
}

// Runner represents orchestration settings
type Runner struct {
	Workers        int       `json:"workers,omitempty" yaml:"workers,omitempty"`
	MaxAttempts    int       `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
	HaltOnFailure  bool      `json:"halt_on_failure,omitempty" yaml:"halt_on_failure,omitempty"`
	MaxResultBytes int       `json:"max_result_bytes,omitempty" yaml:"max_result_bytes,omitempty"`
	MaxSourceBytes int       `json:"max_source_bytes,omitempty" yaml:"max_source_bytes,omitempty"`
	RateLimit      RateLimit `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
}

// RateLimit bounds generation calls per period
type RateLimit struct {
	MaxRequests   int `json:"max_requests,omitempty" yaml:"max_requests,omitempty"`
	PeriodSeconds int `json:"period_seconds,omitempty" yaml:"period_seconds,omitempty"`
}

// Option is a functional option for configuring Config
type Option func(*Config)

// New creates a new Config instance with optional configuration
func New(opts ...Option) *Config {
	c := &Config{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithConfigPath sets an explicit config file path
func WithConfigPath(path string) Option {
	return func(c *Config) {
		c.configPath = path
	}
}

// Load loads and validates configuration from file.
// If the config file doesn't exist, a default one is created.
func (c *Config) Load() error {
	configPath, err := c.resolveConfigPath()
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}
	c.configPath = configPath

	if !global.FileExists(configPath) {
		c.firstRun = true
		if err := setupDefaultConfig(configPath); err != nil {
			return fmt.Errorf("failed to create default config at %s: %w", configPath, err)
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg, err := parseConfig(configPath, data)
	if err != nil {
		return err
	}
	c.data = cfg

	c.resolveBaseDir()

	if err := c.validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := c.normalizePaths(); err != nil {
		return fmt.Errorf("failed to normalize paths: %w", err)
	}

	return nil
}

// parseConfig decodes JSON or YAML depending on the file extension.
// Unknown JSON fields produce a warning, not an error.
func parseConfig(configPath string, data []byte) (*configData, error) {
	var cfg configData

	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
		return &cfg, nil
	}

	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		if !strings.Contains(err.Error(), "unknown field") {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
		_, _ = fmt.Fprintf(os.Stderr, "Warning: config file %s: %v\n", configPath, err)
		cfg = configData{}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
	}
	return &cfg, nil
}

// setupDefaultConfig writes the default configuration file
func setupDefaultConfig(configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}
	if err := os.WriteFile(configPath, []byte(defaultConfigJSON), 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", configPath, err)
	}
	return nil
}

// resolveConfigPath determines the config file path using precedence rules:
// explicit option, environment variable, then base_dir/config.json
func (c *Config) resolveConfigPath() (string, error) {
	if c.configPath != "" {
		return filepath.Abs(global.ExpandHomePath(c.configPath))
	}
	if envPath := os.Getenv(global.ConfigEnvVar); envPath != "" {
		return filepath.Abs(global.ExpandHomePath(envPath))
	}
	return filepath.Join(global.ExpandHomePath(global.DefaultBaseDir), global.DefaultConfigFileName), nil
}

// resolveBaseDir applies the default base_dir and rejects relative ones
func (c *Config) resolveBaseDir() {
	if c.data.BaseDir == "" {
		c.data.BaseDir = global.ExpandHomePath(global.DefaultBaseDir)
		return
	}

	resolved := global.ExpandHomePath(c.data.BaseDir)
	if !filepath.IsAbs(resolved) {
		_, _ = fmt.Fprintf(os.Stderr, "Warning: base_dir '%s' is not absolute, using default '%s'\n",
			c.data.BaseDir, global.DefaultBaseDir)
		resolved = global.ExpandHomePath(global.DefaultBaseDir)
	}
	c.data.BaseDir = resolved
}

// resolvePath resolves a path relative to base_dir
func (c *Config) resolvePath(path string) string {
	if path == "" {
		return ""
	}
	expanded := global.ExpandHomePath(path)
	if filepath.IsAbs(expanded) {
		return expanded
	}
	return filepath.Join(c.data.BaseDir, expanded)
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.data.Version != 1 {
		if c.data.Version < 1 {
			return fmt.Errorf("config version %d is too old (expected 1)", c.data.Version)
		}
		return fmt.Errorf("config version %d is newer than supported (expected 1)", c.data.Version)
	}

	if len(c.data.Models) == 0 {
		return fmt.Errorf("models cannot be empty - please define at least one model")
	}

	ids := make(map[string]bool)
	for i := range c.data.Models {
		m := &c.data.Models[i]
		if m.ID == "" {
			return fmt.Errorf("model id cannot be empty")
		}
		if strings.Contains(m.ID, global.KeySeparator) {
			return fmt.Errorf("model id %s must not contain %q", m.ID, global.KeySeparator)
		}
		if m.DisplayName == "" {
			m.DisplayName = m.ID
		}
		if ids[m.ID] {
			return fmt.Errorf("duplicate model id: %s", m.ID)
		}
		ids[m.ID] = true

		if m.GetType() != ModelTypeCommand {
			return fmt.Errorf("invalid model type '%s' for model %s (only 'command' is supported)", m.Type, m.ID)
		}
		if m.Command == "" {
			return fmt.Errorf("model command cannot be empty for model %s", m.ID)
		}
		if !m.Stdin && !hasPromptPlaceholder(m.Args) {
			return fmt.Errorf("model args must contain {{PROMPT}} placeholder for model %s (or set stdin: true)", m.ID)
		}

		// Disable enabled models whose executable is missing
		if m.Enabled {
			expanded := global.ExpandHomePath(m.Command)
			if _, err := exec.LookPath(expanded); err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "Warning: model %s: executable not found: %s - disabling\n", m.ID, m.Command)
				m.Enabled = false
			} else {
				m.Command = expanded
			}
		}
	}

	if c.data.Browser.TimeoutSeconds < 0 {
		return fmt.Errorf("browser timeout_seconds cannot be negative")
	}
	if _, err := global.ValidateMaxAttempts(c.data.Runner.MaxAttempts); err != nil {
		return fmt.Errorf("runner: %w", err)
	}
	if _, err := global.ValidateWorkers(c.data.Runner.Workers); err != nil {
		return fmt.Errorf("runner: %w", err)
	}

	return nil
}

func hasPromptPlaceholder(args []string) bool {
	for _, arg := range args {
		if strings.Contains(arg, "{{PROMPT}}") {
			return true
		}
	}
	return false
}

// normalizePaths resolves all paths to absolute paths and creates directories
func (c *Config) normalizePaths() error {
	dirs := []struct {
		value  string
		def    string
		target *string
		name   string
	}{
		{c.data.WebsitesDir, global.DefaultWebsitesDir, &c.websitesDir, "websites"},
		{c.data.TasksDir, global.DefaultTasksDir, &c.tasksDir, "tasks"},
		{c.data.ResultsDir, global.DefaultResultsDir, &c.resultsDir, "results"},
		{c.data.ReportsDir, global.DefaultReportsDir, &c.reportsDir, "reports"},
	}

	for _, d := range dirs {
		value := d.value
		if value == "" {
			value = d.def
		}
		*d.target = c.resolvePath(value)
		if err := os.MkdirAll(*d.target, 0755); err != nil {
			return fmt.Errorf("failed to create %s directory at %s: %w", d.name, *d.target, err)
		}
	}

	if c.data.Logging.File != "" {
		c.data.Logging.File = c.resolvePath(c.data.Logging.File)
	}
	if c.data.Browser.ArtifactsDir != "" {
		c.data.Browser.ArtifactsDir = c.resolvePath(c.data.Browser.ArtifactsDir)
	}

	return nil
}

// ValidateForRun checks what a benchmark run needs beyond a parseable config:
// at least one enabled model with resolvable credentials and a browser runner.
func (c *Config) ValidateForRun() error {
	enabled := c.EnabledModels()
	if len(enabled) == 0 {
		return fmt.Errorf("no models are enabled - enable at least one model in %s", c.configPath)
	}
	for _, m := range enabled {
		if _, err := m.ResolveAPIKey(); err != nil {
			return fmt.Errorf("model %s: %w", m.ID, err)
		}
	}
	if c.data.Browser.Command == "" {
		return fmt.Errorf("browser.command is not configured")
	}
	if _, err := exec.LookPath(global.ExpandHomePath(c.data.Browser.Command)); err != nil {
		return fmt.Errorf("browser runner executable not found: %s", c.data.Browser.Command)
	}
	return nil
}

// Getter methods

// BaseDir returns the resolved base directory (always absolute)
func (c *Config) BaseDir() string {
	return c.data.BaseDir
}

// WebsitesDir returns the resolved websites directory
func (c *Config) WebsitesDir() string {
	return c.websitesDir
}

// TasksDir returns the resolved tasks directory
func (c *Config) TasksDir() string {
	return c.tasksDir
}

// ResultsDir returns the resolved results directory
func (c *Config) ResultsDir() string {
	return c.resultsDir
}

// ReportsDir returns the resolved reports directory
func (c *Config) ReportsDir() string {
	return c.reportsDir
}

// Models returns all configured models
func (c *Config) Models() []Model {
	return c.data.Models
}

// GetModel returns a model by ID, or nil if not found
func (c *Config) GetModel(id string) *Model {
	for i := range c.data.Models {
		if c.data.Models[i].ID == id {
			return &c.data.Models[i]
		}
	}
	return nil
}

// EnabledModels returns only enabled models, in configuration order
func (c *Config) EnabledModels() []Model {
	var enabled []Model
	for _, m := range c.data.Models {
		if m.Enabled {
			enabled = append(enabled, m)
		}
	}
	return enabled
}

// Browser returns the browser runner configuration
func (c *Config) Browser() Browser {
	b := c.data.Browser
	if b.Command != "" {
		b.Command = global.ExpandHomePath(b.Command)
	}
	return b
}

// ExecutionTimeout returns the per-attempt execution timeout
func (c *Config) ExecutionTimeout() time.Duration {
	if c.data.Browser.TimeoutSeconds <= 0 {
		return global.DefaultExecutionTimeout
	}
	return time.Duration(c.data.Browser.TimeoutSeconds) * time.Second
}

// LogFile returns the resolved log file path
func (c *Config) LogFile() string {
	return c.data.Logging.File
}

// LogLevel returns the configured log level
func (c *Config) LogLevel() string {
	if c.data.Logging.Level == "" {
		return global.LogLevelInfo
	}
	return strings.ToUpper(c.data.Logging.Level)
}

// LogConsole reports whether log lines are mirrored to stderr
func (c *Config) LogConsole() bool {
	return c.data.Logging.Console
}

// MetricsAddr returns the listen address for the metrics endpoint (empty = disabled)
func (c *Config) MetricsAddr() string {
	return c.data.MetricsAddr
}

// IsFirstRun returns true if the config file was just created
func (c *Config) IsFirstRun() bool {
	return c.firstRun
}

// ConfigPath returns the path to the loaded config file
func (c *Config) ConfigPath() string {
	return c.configPath
}

// Runner returns the runner configuration with defaults applied
func (c *Config) Runner() Runner {
	r := c.data.Runner
	if r.Workers <= 0 {
		r.Workers = global.DefaultWorkers
	}
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = global.DefaultMaxAttempts
	}
	if r.MaxResultBytes <= 0 {
		r.MaxResultBytes = global.DefaultMaxResultBytes
	}
	if r.MaxSourceBytes < 0 {
		r.MaxSourceBytes = global.DefaultMaxSourceBytes
	}
	if r.RateLimit.MaxRequests <= 0 {
		r.RateLimit.MaxRequests = global.DefaultRateLimitRequests
	}
	if r.RateLimit.PeriodSeconds <= 0 {
		r.RateLimit.PeriodSeconds = global.DefaultRateLimitPeriod
	}
	return r
}

// Model methods

// GetSystemPrompt returns the system prompt for the model, with a default if not specified
func (m *Model) GetSystemPrompt() string {
	if m.SystemPrompt == "" {
		return "You write browser automation code. Reply with a single code block and nothing else."
	}
	return m.SystemPrompt
}

// GetType returns the effective model type (defaults to "command")
func (m *Model) GetType() string {
	if m.Type == "" {
		return ModelTypeCommand
	}
	return m.Type
}

// GetTimeout returns the generation timeout in seconds
func (m *Model) GetTimeout() int {
	if m.TimeoutSeconds <= 0 {
		return global.DefaultGenerationTimeout
	}
	return m.TimeoutSeconds
}

// ResolveAPIKey returns the API key, reading "env:NAME" references from the environment.
// An empty key is allowed (the command may authenticate on its own).
func (m *Model) ResolveAPIKey() (string, error) {
	if !strings.HasPrefix(m.APIKey, global.EnvKeyPrefix) {
		return m.APIKey, nil
	}
	name := strings.TrimPrefix(m.APIKey, global.EnvKeyPrefix)
	value := os.Getenv(name)
	if value == "" {
		return "", fmt.Errorf("missing credentials: environment variable %s is not set", name)
	}
	return value, nil
}
