package sequence

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Template is a parsed filename pattern. Padding zero means unpadded ("%d").
type Template struct {
	Head    string
	Tail    string
	Padding int
}

// ParsePattern accepts "name_%04d.exr", "name_%d.exr", or "name_####.exr".
func ParsePattern(pattern string) (Template, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return Template{}, fmt.Errorf("pattern is empty")
	}
	if strings.ContainsRune(pattern, filepath.Separator) {
		return Template{}, fmt.Errorf("pattern %q must be a file name, not a path", pattern)
	}
	if idx := strings.IndexByte(pattern, '%'); idx >= 0 {
		rest := pattern[idx+1:]
		end := strings.IndexByte(rest, 'd')
		if end < 0 {
			return Template{}, fmt.Errorf("pattern %q has no %%d directive", pattern)
		}
		width := rest[:end]
		padding := 0
		if width != "" {
			if !strings.HasPrefix(width, "0") {
				return Template{}, fmt.Errorf("pattern %q must zero-pad its frame number", pattern)
			}
			n, err := strconv.Atoi(width)
			if err != nil || n < 0 || n > 9 {
				return Template{}, fmt.Errorf("pattern %q has invalid width %q", pattern, width)
			}
			padding = n
		}
		tail := rest[end+1:]
		if strings.ContainsRune(tail, '%') {
			return Template{}, fmt.Errorf("pattern %q has more than one directive", pattern)
		}
		return Template{Head: pattern[:idx], Tail: tail, Padding: padding}, nil
	}
	if idx := strings.IndexByte(pattern, '#'); idx >= 0 {
		end := idx
		for end < len(pattern) && pattern[end] == '#' {
			end++
		}
		tail := pattern[end:]
		if strings.ContainsRune(tail, '#') {
			return Template{}, fmt.Errorf("pattern %q has more than one frame token", pattern)
		}
		return Template{Head: pattern[:idx], Tail: tail, Padding: end - idx}, nil
	}
	return Template{}, fmt.Errorf("pattern %q has no frame number token", pattern)
}

// String renders the ffmpeg-compatible printf form.
func (t Template) String() string {
	if t.Padding <= 0 {
		return t.Head + "%d" + t.Tail
	}
	return fmt.Sprintf("%s%%0%dd%s", t.Head, t.Padding, t.Tail)
}

// Frame returns the file name for frame n.
func (t Template) Frame(n int) string {
	if t.Padding <= 0 {
		return t.Head + strconv.Itoa(n) + t.Tail
	}
	return fmt.Sprintf("%s%0*d%s", t.Head, t.Padding, n, t.Tail)
}

// Extension returns the lower-cased extension without the dot.
func (t Template) Extension() string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(t.Tail)), ".")
}

// WithTail returns a copy with the tail replaced, e.g. for intermediates.
func (t Template) WithTail(tail string) Template {
	t.Tail = tail
	return t
}

// FormatFrame expands pattern for frame n.
func FormatFrame(pattern string, n int) (string, error) {
	t, err := ParsePattern(pattern)
	if err != nil {
		return "", err
	}
	return t.Frame(n), nil
}
