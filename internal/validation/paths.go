// Package validation provides filename and path checks for files written
// from device-supplied names.
package validation

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
)

// fallbackName is used when a device-supplied name has nothing usable left.
const fallbackName = "download"

// ValidateFilename validates a filename (not a full path) to prevent path traversal.
// Device listings are untrusted input, so every display name goes through
// this (after SanitizeFilename) before filepath.Join.
//
// Returns an error if the filename:
//   - Is empty
//   - Contains path separators (/ or \)
//   - Is "." or ".."
//   - Contains null bytes
func ValidateFilename(filename string) error {
	if filename == "" {
		return fmt.Errorf("filename cannot be empty")
	}

	if strings.ContainsRune(filename, 0) {
		return fmt.Errorf("filename contains null byte: %q", filename)
	}

	if strings.ContainsRune(filename, '/') || strings.ContainsRune(filename, '\\') {
		return fmt.Errorf("filename cannot contain path separators: %s", filename)
	}

	// Separators are rejected above, so only the literal names matter here.
	// "foo..bar.txt" stays legal.
	if filename == ".." || filename == "." {
		return fmt.Errorf("filename cannot be %q", filename)
	}

	return nil
}

// SanitizeFilename neutralises path-hostile characters in a device display
// name so it can be written on any desktop OS:
//   - path separators and the Windows-reserved set <>:"|?* become "_"
//   - control characters are dropped
//   - leading/trailing spaces and trailing dots are trimmed
//   - "." and ".." (or an empty result) become "download"
//
// The result always passes ValidateFilename.
func SanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r == '/' || r == '\\':
			b.WriteRune('_')
		case strings.ContainsRune(`<>:"|?*`, r):
			b.WriteRune('_')
		case r == 0 || unicode.IsControl(r):
			// dropped
		default:
			b.WriteRune(r)
		}
	}

	out := strings.TrimSpace(b.String())
	out = strings.TrimRight(out, ". ")
	if out == "" || out == "." || out == ".." {
		return fallbackName
	}
	return out
}

// ValidatePathInDirectory validates that a path, when resolved, stays within baseDir.
//
// Both path and baseDir are cleaned and made absolute before comparison.
// Returns an error if the resolved path is not within baseDir.
//
// Example:
//
//	ValidatePathInDirectory("../../etc/passwd", "/tmp/out") // Error: escapes base dir
//	ValidatePathInDirectory("notes.pdf", "/tmp/out")        // OK: within base dir
func ValidatePathInDirectory(path string, baseDir string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if baseDir == "" {
		return fmt.Errorf("base directory cannot be empty")
	}

	cleanPath := filepath.Clean(path)
	cleanBase := filepath.Clean(baseDir)

	var err error
	if !filepath.IsAbs(cleanBase) {
		cleanBase, err = filepath.Abs(cleanBase)
		if err != nil {
			return fmt.Errorf("failed to resolve base directory: %w", err)
		}
	}

	var resolvedPath string
	if filepath.IsAbs(cleanPath) {
		resolvedPath = cleanPath
	} else {
		resolvedPath = filepath.Join(cleanBase, cleanPath)
	}
	resolvedPath = filepath.Clean(resolvedPath)

	relPath, err := filepath.Rel(cleanBase, resolvedPath)
	if err != nil {
		return fmt.Errorf("failed to compute relative path: %w", err)
	}

	if strings.HasPrefix(relPath, ".."+string(filepath.Separator)) || relPath == ".." {
		return fmt.Errorf("path escapes base directory: %s (base: %s)", path, baseDir)
	}

	return nil
}
