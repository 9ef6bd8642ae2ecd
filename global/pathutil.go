/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package global

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// ValidatePathWithinDir validates that a relative path, when resolved against baseDir,
// stays within baseDir. Returns the absolute resolved path.
func ValidatePathWithinDir(baseDir, relativePath string) (string, error) {
	if filepath.IsAbs(relativePath) {
		return "", fmt.Errorf("absolute paths not allowed: %s", relativePath)
	}

	cleanPath := filepath.Clean(relativePath)

	absBaseDir, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute base directory: %w", err)
	}

	absFilePath, err := filepath.Abs(filepath.Join(absBaseDir, cleanPath))
	if err != nil {
		return "", fmt.Errorf("failed to get absolute file path: %w", err)
	}

	if !IsPathWithin(absBaseDir, absFilePath) {
		return "", fmt.Errorf("path traversal attempt detected: %s", relativePath)
	}

	return absFilePath, nil
}

// IsPathWithin checks if resolvedPath is within or equal to baseDir.
// Both paths should be absolute.
func IsPathWithin(baseDir, resolvedPath string) bool {
	return strings.HasPrefix(resolvedPath, baseDir+string(filepath.Separator)) ||
		resolvedPath == baseDir
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeFileName maps an arbitrary identifier to a portable file name stem.
// Runs of unsafe characters collapse to a single hyphen.
func SanitizeFileName(name string) string {
	s := unsafeFileChars.ReplaceAllString(strings.TrimSpace(name), "-")
	s = strings.Trim(s, "-.")
	if s == "" {
		return "unnamed"
	}
	return s
}

// KeyFileStem maps a composite key to a file name stem that is unique per key.
// The sanitised key keeps it readable; a short hash of the raw key keeps keys
// that differ only in unsafe characters apart.
func KeyFileStem(key string) string {
	sum := sha256.Sum256([]byte(key))
	return SanitizeFileName(key) + "-" + hex.EncodeToString(sum[:4])
}
