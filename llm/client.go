/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/PivotLLM/MacroBench/config"
	"github.com/PivotLLM/MacroBench/global"
	"github.com/PivotLLM/MacroBench/logging"
)

// APIKeyEnvVar carries the resolved model API key into the model command's environment
const APIKeyEnvVar = "MACROBENCH_API_KEY"

// ErrTimeout is returned when a model command exceeds its timeout
var ErrTimeout = errors.New("model command timed out")

// Service dispatches prompts to command-line models
type Service struct {
	logger      *logging.Logger
	modelConfig map[string]*config.Model
	order       []string
	prompt      string
	maxSource   int
}

// DispatchResult represents the result of a model dispatch.
// This is returned when the command was invoked (any exit code).
// For infrastructure failures (command not found, permission denied), Dispatch returns (nil, error).
type DispatchResult struct {
	ExitCode     int           `json:"exit_code"`               // Command exit code (0 = success, non-zero = model error)
	Stdout       string        `json:"stdout"`                  // Raw stdout (always captured)
	Stderr       string        `json:"stderr"`                  // Raw stderr (always captured)
	ResponseSize int           `json:"response_size,omitempty"` // Size of stdout in bytes
	Elapsed      time.Duration `json:"-"`
}

// ModelInfo represents information about a configured model
type ModelInfo struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
	PromptInput string `json:"prompt_input"` // "stdin" or "args"
}

// Option configures a Service
type Option func(*Service)

// WithPromptTemplate overrides the generation prompt template
func WithPromptTemplate(tmpl string) Option {
	return func(s *Service) {
		if tmpl != "" {
			s.prompt = tmpl
		}
	}
}

// WithMaxSourceBytes limits how much website source is placed in a prompt.
// Zero or a negative value sends the full source.
func WithMaxSourceBytes(n int) Option {
	return func(s *Service) {
		s.maxSource = max(n, 0)
	}
}

// NewService creates a new model service for the given models
func NewService(models []config.Model, logger *logging.Logger, opts ...Option) *Service {
	s := &Service{
		logger:      logger,
		modelConfig: make(map[string]*config.Model),
		prompt:      defaultPrompt(),
		maxSource:   global.DefaultMaxSourceBytes,
	}

	for i := range models {
		m := models[i]
		s.modelConfig[m.ID] = &m
		s.order = append(s.order, m.ID)
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListModels returns information about all configured models
func (s *Service) ListModels() []ModelInfo {
	var out []ModelInfo
	for _, id := range s.order {
		m := s.modelConfig[id]
		promptInput := "args"
		if m.Stdin {
			promptInput = "stdin"
		}
		out = append(out, ModelInfo{
			ID:          m.ID,
			DisplayName: m.DisplayName,
			Description: m.Description,
			Enabled:     m.Enabled,
			PromptInput: promptInput,
		})
	}
	return out
}

// GetModel returns the configuration for the given ID
func (s *Service) GetModel(id string) *config.Model {
	return s.modelConfig[id]
}

// validateModel resolves an enabled model by ID
func (s *Service) validateModel(id string) (*config.Model, error) {
	if id == "" {
		return nil, fmt.Errorf("model id is required")
	}
	m, exists := s.modelConfig[id]
	if !exists {
		return nil, fmt.Errorf("unknown model ID: %s", id)
	}
	if !m.Enabled {
		return nil, fmt.Errorf("model %s is not enabled - set enabled: true in config to use it", id)
	}
	return m, nil
}

// Dispatch sends a prompt to a model and returns its raw output
func (s *Service) Dispatch(ctx context.Context, modelID, prompt string) (*DispatchResult, error) {
	m, err := s.validateModel(modelID)
	if err != nil {
		return nil, err
	}
	if prompt == "" {
		return nil, fmt.Errorf("prompt is required")
	}

	apiKey, err := m.ResolveAPIKey()
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", modelID, err)
	}

	s.logger.Debugf("Dispatching to model %s (timeout: %ds, prompt %d bytes)", modelID, m.GetTimeout(), len(prompt))
	return s.callCommand(ctx, m, prompt, apiKey)
}

// callCommand executes a command-line model
func (s *Service) callCommand(ctx context.Context, m *config.Model, prompt, apiKey string) (*DispatchResult, error) {
	timeout := m.GetTimeout()

	// Build args - substitute {{PROMPT}} unless using stdin
	var args []string
	if m.Stdin {
		args = m.Args
	} else {
		args = make([]string, len(m.Args))
		for i, arg := range m.Args {
			args[i] = strings.ReplaceAll(arg, "{{PROMPT}}", prompt)
		}
	}

	s.logger.Debugf("Executing command: %s (%d args, stdin: %v)", m.Command, len(args), m.Stdin)

	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, m.Command, args...)
	cmd.WaitDelay = time.Second
	if apiKey != "" {
		cmd.Env = append(os.Environ(), APIKeyEnvVar+"="+apiKey)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if m.Stdin {
		cmd.Stdin = strings.NewReader(prompt)
	}

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}

	output := strings.TrimSpace(stdout.String())
	stderrOutput := strings.TrimSpace(stderr.String())

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			s.logger.Errorf("Model %s timed out after %d seconds", m.ID, timeout)
			return nil, fmt.Errorf("%w after %d seconds", ErrTimeout, timeout)
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}

		// Command ran but returned non-zero: a model error, not infrastructure
		var execErr *exec.ExitError
		if !errors.As(err, &execErr) {
			s.logger.Errorf("Model command infrastructure failure: %v", err)
			return nil, fmt.Errorf("infrastructure failure: %w", err)
		}
	}

	s.logger.Debugf("Model %s exited with code %d in %s, returned %d bytes, stderr %d bytes",
		m.ID, exitCode, elapsed.Round(time.Millisecond), len(output), len(stderrOutput))

	if exitCode != 0 {
		s.logger.Warnf("Model %s exited with non-zero code %d", m.ID, exitCode)
	}

	return &DispatchResult{
		ExitCode:     exitCode,
		Stdout:       output,
		Stderr:       stderrOutput,
		ResponseSize: len(output),
		Elapsed:      elapsed,
	}, nil
}

// TestModel sends a short prompt to verify a model responds
// Returns (true, nil) if the model responds successfully
// Returns (false, nil) if the command ran but failed (exit code != 0)
// Returns (false, error) if an infrastructure error prevents the test
func (s *Service) TestModel(ctx context.Context, modelID string) (bool, error) {
	result, err := s.Dispatch(ctx, modelID, "Respond with only the word OK")
	if err != nil {
		return false, err
	}
	return result.ExitCode == 0, nil
}
