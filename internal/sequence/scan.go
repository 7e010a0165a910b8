package sequence

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"framereel/internal/services"
)

// DefaultExtensions lists the still-image formats considered by Scan.
var DefaultExtensions = []string{"png", "jpg", "jpeg", "tiff", "tif", "bmp", "exr", "dpx"}

// Entry is one item of a directory listing.
type Entry struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	IsDir     bool   `json:"is_dir"`
	Size      int64  `json:"size,omitempty"`
	Extension string `json:"extension,omitempty"`
}

// Scan lists image files in dir and assembles them. Only names are returned in
// the result; sequences carry base-name heads relative to dir.
func Scan(dir string, extensions []string) (Result, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Result{}, services.Wrap(services.ErrSequenceNotFound, "scan", "read dir", dir, err)
		}
		return Result{}, fmt.Errorf("read %s: %w", dir, err)
	}
	allowed := extensionSet(extensions)
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !allowed.match(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return Assemble(names), nil
}

// Find returns the sequence in dir whose pattern matches template.
func Find(dir string, template Template, extensions []string) (Sequence, error) {
	result, err := Scan(dir, extensions)
	if err != nil {
		return Sequence{}, err
	}
	for _, seq := range result.Sequences {
		if seq.Head == template.Head && seq.Tail == template.Tail && seq.Padding == template.Padding {
			return seq, nil
		}
	}
	return Sequence{}, services.Wrap(services.ErrSequenceNotFound, "scan", "match pattern", fmt.Sprintf("%s in %s", template, dir), nil)
}

// List returns directories and image files in dir, directories first.
func List(dir string, extensions []string) ([]Entry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	allowed := extensionSet(extensions)
	items := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			items = append(items, Entry{Name: entry.Name(), Path: path, IsDir: true})
			continue
		}
		if !allowed.match(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		items = append(items, Entry{
			Name:      entry.Name(),
			Path:      path,
			Size:      info.Size(),
			Extension: strings.ToLower(filepath.Ext(entry.Name())),
		})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].IsDir != items[j].IsDir {
			return items[i].IsDir
		}
		return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
	})
	return items, nil
}

type extSet map[string]struct{}

func extensionSet(extensions []string) extSet {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	set := make(extSet, len(extensions))
	for _, ext := range extensions {
		ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
		if ext != "" {
			set[ext] = struct{}{}
		}
	}
	return set
}

func (s extSet) match(name string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	_, ok := s[ext]
	return ok
}
