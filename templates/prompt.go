/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package templates

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
)

// DefaultGenerationPrompt is the prompt sent to a model for each attempt.
// Data: GenerationPromptData.
const DefaultGenerationPrompt = `{{.SystemPrompt}}

Write a JavaScript function body that runs inside a browser page to accomplish the task below.
The code receives the live page (document, window) and must not navigate away from the site.
Return only the code, in a single fenced code block, or as JSON {"code": "..."}.

## Task {{.Task.ID}}
Description: {{.Task.Description}}
{{- if .Task.Objective}}
Objective: {{.Task.Objective}}{{end}}
{{- if .Task.ExpectedResult}}
Expected result: {{.Task.ExpectedResult}}{{end}}
{{- if .Task.Difficulty}}
Difficulty: {{.Task.Difficulty}}{{end}}

## Website: {{.Website}}
{{- if .SourceTruncated}}
(Source truncated to {{.SourceLimit}} bytes)
{{- end}}
` + "```html" + `
{{.WebsiteSource}}
` + "```" + `
{{- if .PreviousAttempts}}

## Previous failed attempts
Do not repeat these mistakes.
{{- range .PreviousAttempts}}

### Attempt {{.AttemptNumber}}
Error: {{default "unknown error" .Error}}
` + "```javascript" + `
{{truncate .Code 4000}}
` + "```" + `
{{- end}}
{{- end}}
`

// PopulateTemplate populates a Go template with data
func PopulateTemplate(templateContent string, data interface{}) (string, error) {
	tmpl, err := template.New("template").Funcs(templateFuncs()).Parse(templateContent)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"json": func(v interface{}) string {
			data, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return fmt.Sprintf("error: %v", err)
			}
			return string(data)
		},
		"truncate": func(s string, length int) string {
			if len(s) <= length {
				return s
			}
			return s[:length] + "..."
		},
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"join":  strings.Join,
		"default": func(def, value interface{}) interface{} {
			if value == nil {
				return def
			}
			if s, ok := value.(string); ok && s == "" {
				return def
			}
			return value
		},
	}
}
