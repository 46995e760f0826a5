// Package security holds path checks for files written on behalf of API
// callers.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ExportPath resolves name to a file directly inside dir. Only the last
// path element of name is used, and the result is checked against dir
// after symlinks are resolved so a link cannot redirect the write.
func ExportPath(dir, name string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("export directory not configured")
	}
	base := filepath.Base(name)
	if name == "" || base == "." || base == ".." || base == string(filepath.Separator) {
		return "", fmt.Errorf("invalid export filename %q", name)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("cannot resolve export directory: %w", err)
	}
	canonicalDir, err := filepath.EvalSymlinks(absDir)
	if err != nil {
		return "", fmt.Errorf("cannot resolve export directory symlinks: %w", err)
	}

	target := filepath.Join(canonicalDir, base)
	// An existing file may itself be a symlink.
	if resolved, err := filepath.EvalSymlinks(target); err == nil {
		target = resolved
	}

	rel, err := filepath.Rel(canonicalDir, target)
	if err != nil {
		return "", fmt.Errorf("path is outside export directory: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("path traversal detected: %s escapes %s", name, dir)
	}
	return target, nil
}

// SanitizeFilename makes a safe filename component from an arbitrary
// string such as a user-entered scan name. Characters other than ASCII
// letters, digits, dot, underscore and dash become a single underscore.
func SanitizeFilename(s string) string {
	const maxLen = 128
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.' || r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore:
			b.WriteRune('_')
			lastUnderscore = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}
