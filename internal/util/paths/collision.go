// Package paths provides utilities for local file path handling in downloads.
package paths

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/viforest/viforest/internal/validation"
)

// DownloadTarget is one device entry to be written locally.
type DownloadTarget struct {
	EntryID   string // Device entry identifier
	Name      string // Display name on the device
	LocalPath string // Full local destination path
	Size      int64  // Size reported by the listing
}

// ResolveCollisions ensures all LocalPaths in a batch are unique.
// When several entries map to the same LocalPath (two notebooks with the
// same display name in different apps), each gets its sanitised EntryID
// appended before the extension.
//
// Example: two entries named "notes.pdf" become:
//   - notes_N1.pdf
//   - notes_N2.pdf
//
// Returns the modified list (same slice, modified in place) and count of
// entries that were involved in collisions.
func ResolveCollisions(targets []DownloadTarget) ([]DownloadTarget, int) {
	if len(targets) == 0 {
		return targets, 0
	}

	pathToIndices := make(map[string][]int)
	for i, f := range targets {
		pathToIndices[f.LocalPath] = append(pathToIndices[f.LocalPath], i)
	}

	collisionCount := 0
	for path, indices := range pathToIndices {
		if len(indices) <= 1 {
			continue
		}

		collisionCount += len(indices)
		for _, idx := range indices {
			f := &targets[idx]
			ext := filepath.Ext(path)
			base := path[:len(path)-len(ext)]
			f.LocalPath = fmt.Sprintf("%s_%s%s", base, validation.SanitizeFilename(f.EntryID), ext)
		}
	}

	return targets, collisionCount
}

// NextAvailablePath returns path if nothing exists there, otherwise the first
// free "name (n).ext" variant. Existing local files are never overwritten.
func NextAvailablePath(path string) string {
	if _, err := os.Lstat(path); os.IsNotExist(err) {
		return path
	}

	ext := filepath.Ext(path)
	base := path[:len(path)-len(ext)]
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, n, ext)
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}
