// Package paths normalizes the path conventions used across the index:
// keys are forward-slash relative paths, filesystem access uses native
// separators.
package paths

import (
	"path/filepath"
	"strings"
)

// Join resolves a slash-separated relative key against an absolute root.
func Join(root, relPath string) string {
	return filepath.Join(root, filepath.FromSlash(relPath))
}

// Rel converts an absolute path under root to its slash-separated key.
// Returns false when abs is not under root.
func Rel(root, abs string) (string, bool) {
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	return rel, true
}

// Canonicalize resolves symlinks and returns the absolute form of dir.
func Canonicalize(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	return resolved, nil
}
