// Package security guards the recording directory against path traversal
// when filenames arrive from HTTP clients.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateRecordingName checks a client-supplied recording filename: it must
// be a bare filename (no separators, no traversal) with a .avi extension.
func ValidateRecordingName(name string) error {
	if name == "" {
		return fmt.Errorf("empty recording name")
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("recording name %q contains a path separator", name)
	}
	if name != filepath.Base(filepath.Clean(name)) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid recording name %q", name)
	}
	if ext := filepath.Ext(name); ext != ".avi" {
		return fmt.Errorf("recording name %q must end in .avi, got %q", name, ext)
	}
	return nil
}

// ValidatePathWithinDirectory ensures the resolved path does not escape the
// safe directory. Symlinks inside the safe directory are resolved before the
// containment check so a planted link cannot redirect reads elsewhere.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	absSafeDir, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory path: %w", err)
	}

	canonicalSafeDir := absSafeDir
	if resolved, err := filepath.EvalSymlinks(absSafeDir); err == nil {
		canonicalSafeDir = resolved
	}
	canonicalPath := absPath
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		canonicalPath = resolved
	}

	rel, err := filepath.Rel(canonicalSafeDir, canonicalPath)
	if err != nil {
		return fmt.Errorf("path is outside safe directory: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path traversal detected: %s attempts to escape %s", filePath, safeDir)
	}
	return nil
}
