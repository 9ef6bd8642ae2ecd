/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package templates

// Built-in schema names
const (
	SchemaResult   = "result"
	SchemaTaskFile = "taskfile"
)

// resultSchema covers the fields the completion ledger depends on.
// Everything else in a result file may evolve freely.
const resultSchema = `{
  "type": "object",
  "required": ["key", "model", "attempts", "success", "timestamp"],
  "properties": {
    "run_id": {"type": "string"},
    "key": {"type": "string", "minLength": 1},
    "model": {"type": "string"},
    "success": {"type": "boolean"},
    "timestamp": {"type": "string"},
    "trimmed": {"type": "boolean"},
    "attempts": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["attempt_number", "success"],
        "properties": {
          "attempt_number": {"type": "integer", "minimum": 1},
          "success": {"type": "boolean"},
          "error": {"type": "string"}
        }
      }
    }
  }
}`

// taskFileSchema accepts either a bare array of tasks or {"tasks": [...]}.
// Description is deliberately optional: rows without one are filtered, not rejected.
const taskFileSchema = `{
  "definitions": {
    "task": {
      "type": "object",
      "properties": {
        "id": {"type": ["string", "integer"]},
        "description": {"type": ["string", "null"]},
        "objective": {"type": ["string", "null"]},
        "expected_result": {"type": ["string", "null"]},
        "difficulty": {"type": ["string", "integer", "null"]},
        "category": {"type": ["string", "null"]},
        "notes": {"type": ["string", "null"]},
        "tags": {"type": ["array", "null"], "items": {"type": "string"}},
        "ground_truth": {
          "type": ["object", "null"],
          "properties": {
            "expected_url_change": {"type": "string"},
            "expected_element_selector": {"type": "string"},
            "expected_element_text": {"type": "string"},
            "custom_validation": {"type": "string"},
            "success_indicators": {"type": "array", "items": {"type": "string"}}
          }
        }
      }
    }
  },
  "oneOf": [
    {"type": "array", "items": {"$ref": "#/definitions/task"}},
    {
      "type": "object",
      "required": ["tasks"],
      "properties": {
        "website": {"type": "string"},
        "tasks": {"type": "array", "items": {"$ref": "#/definitions/task"}}
      }
    }
  ]
}`

var builtinSchemas = map[string]string{
	SchemaResult:   resultSchema,
	SchemaTaskFile: taskFileSchema,
}
