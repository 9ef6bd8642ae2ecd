/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package global

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePathWithinDir(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{name: "valid simple path", path: "index.html"},
		{name: "valid nested path", path: "pages/index.html"},
		{name: "path with dot current dir", path: "./index.html"},
		{name: "path traversal with ..", path: "../outside.html", wantErr: true},
		{name: "path traversal nested", path: "pages/../../outside.html", wantErr: true},
		{name: "absolute path rejected", path: "/etc/passwd", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidatePathWithinDir(tmpDir, tt.path)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, filepath.IsAbs(got))
		})
	}
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"gpt-4o__shop__T1", "gpt-4o__shop__T1"},
		{"openai/gpt 4o__shop__T1", "openai-gpt-4o__shop__T1"},
		{"  ..weird::name..  ", "weird-name"},
		{"", "unnamed"},
		{"///", "unnamed"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFileName(tt.in), "input %q", tt.in)
	}
}

func TestKeyFileStem(t *testing.T) {
	keys := []string{"gpt-4o__shop__T 1", "gpt-4o__shop__T-1", "gpt-4o__shop__T/1", "gpt-4o__shop__T:1"}
	seen := map[string]string{}
	for _, key := range keys {
		stem := KeyFileStem(key)
		assert.True(t, strings.HasPrefix(stem, "gpt-4o__shop__T-1-"), stem)
		assert.Len(t, stem, len("gpt-4o__shop__T-1-")+8)
		prev, dup := seen[stem]
		assert.False(t, dup, "%q and %q share %s", prev, key, stem)
		seen[stem] = key
	}
	assert.Equal(t, KeyFileStem("m__shop__T1"), KeyFileStem("m__shop__T1"))
}

func TestGroundTruthIsEmpty(t *testing.T) {
	var nilGT *GroundTruth
	assert.True(t, nilGT.IsEmpty())
	assert.True(t, (&GroundTruth{}).IsEmpty())
	assert.True(t, (&GroundTruth{ExpectedElementText: "   "}).IsEmpty())
	assert.False(t, (&GroundTruth{ExpectedElementText: "only text"}).IsEmpty())
	assert.False(t, (&GroundTruth{ExpectedURLChange: "cart"}).IsEmpty())
	assert.False(t, (&GroundTruth{SuccessIndicators: []string{"shows 'done'"}}).IsEmpty())
}

func TestValidateMaxAttempts(t *testing.T) {
	v, err := ValidateMaxAttempts(0)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxAttempts, v)

	v, err = ValidateMaxAttempts(3)
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	_, err = ValidateMaxAttempts(-1)
	assert.Error(t, err)
	_, err = ValidateMaxAttempts(MaxAttemptsLimit + 1)
	assert.Error(t, err)
}
