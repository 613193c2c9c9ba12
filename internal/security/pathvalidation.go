// Package security validates filesystem paths for export operations.
//
// Diagram and report exports accept caller-supplied file names over HTTP and
// from command-line flags. The helpers here confine the resulting writes to
// known directories and strip hostile characters from embedded identifiers
// such as site names.
package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// canonicalPath resolves path to its symlink-free absolute form. When the
// path does not exist yet, the longest existing ancestor is resolved instead
// and the remaining components are rejoined, so a symlinked parent cannot
// smuggle the result outside its apparent directory.
func canonicalPath(path string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}

	// Path does not exist. Walk up until an ancestor resolves, then graft
	// the unresolved tail back onto the canonical ancestor.
	for dir := filepath.Dir(abs); ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			rel, err := filepath.Rel(dir, abs)
			if err != nil {
				return abs, nil
			}
			return filepath.Join(resolved, rel), nil
		}
		if dir == filepath.Dir(dir) {
			// Hit the filesystem root without an existing ancestor.
			return abs, nil
		}
	}
}

// ValidatePathWithinDirectory checks that filePath stays inside safeDir once
// relative components and symlinks are resolved. It returns an error when
// the path escapes, including escapes routed through a symlinked parent
// directory.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	target, err := canonicalPath(filePath)
	if err != nil {
		return err
	}

	absSafe, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory path: %w", err)
	}
	root, err := filepath.EvalSymlinks(absSafe)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory symlinks: %w", err)
	}

	rel, err := filepath.Rel(root, target)
	if err != nil {
		return fmt.Errorf("path is outside safe directory: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path traversal detected: %s attempts to escape %s", filePath, safeDir)
	}
	return nil
}

// ValidateExportPath confines an export write to the process temp directory
// or the current working directory, the two places diagram and report files
// may land. Anything that resolves elsewhere is rejected.
func ValidateExportPath(filePath string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}
	for _, dir := range []string{os.TempDir(), cwd} {
		if ValidatePathWithinDirectory(filePath, dir) == nil {
			return nil
		}
	}
	return fmt.Errorf("export path %s must resolve under the temp or working directory", filePath)
}

// SanitizeFilename reduces an arbitrary identifier, such as a site name, to
// a string safe to embed in an export file name. Characters outside
// [A-Za-z0-9._-] collapse to single underscores and the result is capped at
// 128 bytes. Input that strips to nothing yields "unknown".
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	pendingGap := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
			pendingGap = false
		default:
			if !pendingGap {
				b.WriteByte('_')
				pendingGap = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
