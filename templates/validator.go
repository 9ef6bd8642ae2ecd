/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

// Package templates provides JSON schema validation for result and task files
// and template processing for generation prompts.
package templates

import (
	"fmt"
	"strings"
	"sync"

	"github.com/PivotLLM/MacroBench/logging"
	"github.com/xeipuuv/gojsonschema"
)

// Validator validates JSON documents against the built-in schemas or ad-hoc schema strings
type Validator struct {
	logger      *logging.Logger
	mu          sync.Mutex
	schemaCache map[string]*gojsonschema.Schema
}

// ValidationResult represents the result of a validation
type ValidationResult struct {
	Valid     bool     `json:"valid"`
	Errors    []string `json:"errors,omitempty"`     // User-friendly error messages
	RawErrors []string `json:"raw_errors,omitempty"` // Original error messages from validator
}

// Error joins the friendly messages into one line
func (r *ValidationResult) Error() string {
	if r == nil || r.Valid {
		return ""
	}
	return strings.Join(r.Errors, "; ")
}

// New creates a new Validator
func New(logger *logging.Logger) *Validator {
	return &Validator{
		logger:      logger,
		schemaCache: make(map[string]*gojsonschema.Schema),
	}
}

// Validate checks data against one of the built-in schemas (SchemaResult, SchemaTaskFile)
func (v *Validator) Validate(schemaName string, data []byte) (*ValidationResult, error) {
	schema, err := v.schema(schemaName)
	if err != nil {
		return nil, err
	}
	return v.run(schema, data)
}

// ValidateJSON validates JSON data against a schema string
func (v *Validator) ValidateJSON(data []byte, schemaJSON string) (*ValidationResult, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}
	return v.run(schema, data)
}

func (v *Validator) run(schema *gojsonschema.Schema, data []byte) (*ValidationResult, error) {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	validationResult := &ValidationResult{
		Valid: result.Valid(),
	}
	for _, desc := range result.Errors() {
		rawError := desc.String()
		validationResult.RawErrors = append(validationResult.RawErrors, rawError)
		validationResult.Errors = append(validationResult.Errors, formatValidationError(rawError))
	}

	return validationResult, nil
}

// schema compiles a built-in schema once and caches it
func (v *Validator) schema(name string) (*gojsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if s, ok := v.schemaCache[name]; ok {
		return s, nil
	}

	source, ok := builtinSchemas[name]
	if !ok {
		return nil, fmt.Errorf("unknown schema: %s", name)
	}

	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(source))
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema %s: %w", name, err)
	}
	v.schemaCache[name] = s
	v.logger.Debugf("Compiled schema %s", name)
	return s, nil
}

// formatValidationError converts gojsonschema messages to shorter user-facing ones
func formatValidationError(rawError string) string {
	field, msg, found := strings.Cut(rawError, ": ")
	if !found {
		return rawError
	}

	context := strings.TrimPrefix(strings.TrimPrefix(field, "(root)"), ".")

	switch {
	case strings.HasSuffix(msg, " is required"):
		name := strings.TrimSuffix(msg, " is required")
		if context != "" {
			return fmt.Sprintf("Missing required field: %s (in %s)", name, context)
		}
		return fmt.Sprintf("Missing required field: %s", name)

	case strings.HasPrefix(msg, "Additional property "):
		name := strings.TrimSuffix(strings.TrimPrefix(msg, "Additional property "), " is not allowed")
		return fmt.Sprintf("Unexpected field: %s (not allowed by schema)", name)

	case strings.HasPrefix(msg, "Invalid type. "):
		typeInfo := strings.TrimPrefix(msg, "Invalid type. ")
		typeInfo = strings.ReplaceAll(typeInfo, "Expected: ", "expected ")
		typeInfo = strings.ReplaceAll(typeInfo, ", given: ", ", got ")
		if context == "" {
			context = "root object"
		}
		return fmt.Sprintf("Field '%s': %s", context, typeInfo)
	}

	if context == "" {
		return msg
	}
	return fmt.Sprintf("%s: %s", context, msg)
}
