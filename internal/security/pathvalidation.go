// Package security guards the paths built from client-supplied test ids.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// maxNameLen bounds sanitised names so result directories stay short.
const maxNameLen = 128

// SanitizeFilename turns an arbitrary identifier into a safe single path
// element. Characters other than ASCII letters, digits, dot, underscore and
// dash become an underscore; runs of replacements collapse; leading and
// trailing dots and underscores are trimmed. An empty result is "unknown".
func SanitizeFilename(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxNameLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.' || r == '_' || r == '-':
			b.WriteRune(r)
			lastUnderscore = r == '_'
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}

// ValidatePathWithinDirectory rejects filePath if, once cleaned, it escapes
// safeDir. When both paths exist on disk their symlinks are resolved and the
// check repeated, so a link inside safeDir cannot point outside it.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	absSafeDir, err := filepath.Abs(filepath.Clean(safeDir))
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory path: %w", err)
	}
	if err := checkWithin(absPath, absSafeDir, filePath, safeDir); err != nil {
		return err
	}

	canonicalDir, err := filepath.EvalSymlinks(absSafeDir)
	if err != nil {
		// Nothing on disk yet, the lexical check is all we can do.
		return nil
	}
	canonicalPath := absPath
	for p := absPath; ; p = filepath.Dir(p) {
		if resolved, err := filepath.EvalSymlinks(p); err == nil {
			rel, _ := filepath.Rel(p, absPath)
			canonicalPath = filepath.Join(resolved, rel)
			break
		}
		if p == filepath.Dir(p) {
			break
		}
	}
	return checkWithin(canonicalPath, canonicalDir, filePath, safeDir)
}

func checkWithin(path, dir, origPath, origDir string) error {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return fmt.Errorf("path is outside safe directory: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path traversal detected: %s attempts to escape %s", origPath, origDir)
	}
	return nil
}
