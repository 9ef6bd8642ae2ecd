/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ErrEmptyCode is returned when a model response contains no code
var ErrEmptyCode = errors.New("model returned no code")

// fencedBlock matches ```lang\n...\n``` blocks
var fencedBlock = regexp.MustCompile("(?s)```([A-Za-z0-9_+-]*)[ \t]*\r?\n(.*?)```")

// preferred fence languages, in order
var codeLanguages = map[string]bool{"javascript": true, "js": true, "typescript": true, "ts": true}

// ExtractCode pulls macro code out of a model response. Accepted shapes:
//  1. a client wrapper {"text": "..."} around any of the below
//  2. a JSON envelope {"code": "..."}, repaired if slightly malformed
//  3. fenced code blocks (JavaScript-tagged blocks win)
//  4. the bare response
func ExtractCode(response string) (string, error) {
	response = unwrapText(strings.TrimSpace(response))

	if code, ok := codeFromEnvelope(response); ok {
		return nonEmpty(code)
	}

	if code, ok := codeFromFence(response); ok {
		return nonEmpty(code)
	}

	return nonEmpty(response)
}

func nonEmpty(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", ErrEmptyCode
	}
	return code, nil
}

// unwrapText removes a {"text": "..."} wrapper added by some model clients
func unwrapText(response string) string {
	if !strings.HasPrefix(response, "{") {
		return response
	}
	var generic map[string]interface{}
	if err := json.Unmarshal([]byte(response), &generic); err != nil || len(generic) != 1 {
		return response
	}
	if text, ok := generic["text"].(string); ok {
		return strings.TrimSpace(text)
	}
	return response
}

// codeFromEnvelope reads {"code": "..."}, possibly inside a ```json fence
func codeFromEnvelope(response string) (string, bool) {
	candidate := response
	if m := fencedBlock.FindStringSubmatch(response); m != nil && strings.EqualFold(m[1], "json") {
		candidate = strings.TrimSpace(m[2])
	}
	if !strings.HasPrefix(candidate, "{") || !strings.Contains(candidate, `"code"`) {
		return "", false
	}

	var envelope struct {
		Code *string `json:"code"`
	}
	if err := json.Unmarshal([]byte(candidate), &envelope); err != nil {
		repaired, rerr := jsonrepair.JSONRepair(candidate)
		if rerr != nil {
			return "", false
		}
		if err := json.Unmarshal([]byte(repaired), &envelope); err != nil {
			return "", false
		}
	}
	if envelope.Code == nil {
		return "", false
	}
	return *envelope.Code, true
}

// codeFromFence returns the first code-language block, or else the first block
func codeFromFence(response string) (string, bool) {
	matches := fencedBlock.FindAllStringSubmatch(response, -1)
	if len(matches) == 0 {
		return "", false
	}
	for _, m := range matches {
		if codeLanguages[strings.ToLower(m[1])] {
			return m[2], true
		}
	}
	return matches[0][2], true
}
