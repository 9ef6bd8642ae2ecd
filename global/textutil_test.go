/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package global

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateBytes(t *testing.T) {
	tests := []struct {
		in      string
		n       int
		want    string
		trimmed bool
	}{
		{"hello", 10, "hello", false},
		{"hello", 5, "hello", false},
		{"hello", 3, "hel", true},
		{"héllo", 2, "h", true},
		{"héllo", 3, "hé", true},
		{"日本語", 4, "日", true},
		{"日本語", 0, "", true},
		{"abc", -1, "", true},
	}
	for _, tt := range tests {
		got, trimmed := TruncateBytes(tt.in, tt.n)
		assert.Equal(t, tt.want, got, "%q[:%d]", tt.in, tt.n)
		assert.Equal(t, tt.trimmed, trimmed, "%q[:%d]", tt.in, tt.n)
		assert.True(t, utf8.ValidString(got))
	}
}
