/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package llm

import (
	"context"
	"fmt"

	"github.com/PivotLLM/MacroBench/global"
	"github.com/PivotLLM/MacroBench/templates"
)

// Generator produces macro code for a task
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// GenerateRequest is everything a model needs for one attempt
type GenerateRequest struct {
	Task             global.Task
	Website          string
	WebsiteSource    string
	PreviousAttempts []global.PreviousAttempt
	Model            string
}

// GenerationPromptData is the data passed to the prompt template
type GenerationPromptData struct {
	SystemPrompt     string
	Task             global.Task
	Website          string
	WebsiteSource    string
	SourceTruncated  bool
	SourceLimit      int
	PreviousAttempts []global.PreviousAttempt
}

func defaultPrompt() string {
	return templates.DefaultGenerationPrompt
}

// BuildPrompt renders the generation prompt for a request
func (s *Service) BuildPrompt(req GenerateRequest) (string, error) {
	data := GenerationPromptData{
		Task:             req.Task,
		Website:          req.Website,
		WebsiteSource:    req.WebsiteSource,
		SourceLimit:      s.maxSource,
		PreviousAttempts: req.PreviousAttempts,
	}
	if m := s.modelConfig[req.Model]; m != nil {
		data.SystemPrompt = m.GetSystemPrompt()
	}
	if s.maxSource > 0 {
		data.WebsiteSource, data.SourceTruncated = global.TruncateBytes(data.WebsiteSource, s.maxSource)
	}

	prompt, err := templates.PopulateTemplate(s.prompt, data)
	if err != nil {
		return "", fmt.Errorf("failed to build prompt: %w", err)
	}
	return prompt, nil
}

// Generate asks a model for macro code. A non-zero exit or a response
// without code is an error.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	prompt, err := s.BuildPrompt(req)
	if err != nil {
		return "", err
	}

	result, err := s.Dispatch(ctx, req.Model, prompt)
	if err != nil {
		return "", err
	}

	if result.ExitCode != 0 {
		detail := result.Stderr
		if detail == "" {
			detail = result.Stdout
		}
		return "", fmt.Errorf("model %s exited with code %d: %s", req.Model, result.ExitCode, truncate(detail, 500))
	}

	code, err := ExtractCode(result.Stdout)
	if err != nil {
		return "", fmt.Errorf("model %s: %w", req.Model, err)
	}

	s.logger.Debugf("Model %s generated %d bytes of code for task %s", req.Model, len(code), req.Task.ID)
	return code, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
