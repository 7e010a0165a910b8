// Package staging owns the per-sequence intermediate directories that hold
// preconverted frames.
//
// Directory names are derived from the source directory and pattern, so an
// interrupted run of the same sequence finds its earlier frames and resumes.
// Directories are removed when their job ends; anything left behind by a crash
// is reclaimed by CleanStale once it exceeds the configured age.
package staging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"
)

const keyLength = 12

// Key returns the stable directory name for a source sequence.
func Key(inputDir, pattern string) string {
	abs, err := filepath.Abs(strings.TrimSpace(inputDir))
	if err != nil {
		abs = filepath.Clean(inputDir)
	}
	sum := sha256.Sum256([]byte(abs + "\x00" + strings.TrimSpace(pattern)))
	digest := hex.EncodeToString(sum[:])[:keyLength]
	label := sanitize(pattern)
	if label == "" {
		return digest
	}
	return label + "-" + digest
}

// Dir returns the intermediate directory for a source sequence under root.
func Dir(root, inputDir, pattern string) string {
	return filepath.Join(root, Key(inputDir, pattern))
}

// Prepare creates the intermediate directory, keeping any earlier contents.
func Prepare(root, inputDir, pattern string) (string, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return "", fmt.Errorf("staging directory is not configured")
	}
	dir := Dir(root, inputDir, pattern)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create staging directory %s: %w", dir, err)
	}
	now := timeNow()
	_ = os.Chtimes(dir, now, now)
	return dir, nil
}

// Remove deletes dir, refusing anything that is not a direct child of root.
func Remove(root, dir string) error {
	root = filepath.Clean(strings.TrimSpace(root))
	dir = filepath.Clean(strings.TrimSpace(dir))
	if root == "." || dir == "." || filepath.Dir(dir) != root {
		return fmt.Errorf("refusing to remove %s outside staging root %s", dir, root)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove staging directory %s: %w", dir, err)
	}
	return nil
}

// sanitize keeps the pattern head readable in directory listings.
func sanitize(pattern string) string {
	head := pattern
	if idx := strings.IndexAny(head, "%#"); idx >= 0 {
		head = head[:idx]
	}
	var b strings.Builder
	for _, r := range head {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
		case r == '-' || r == '_' || r == '.':
			b.WriteRune('_')
		}
		if b.Len() >= 32 {
			break
		}
	}
	return strings.Trim(b.String(), "_")
}
