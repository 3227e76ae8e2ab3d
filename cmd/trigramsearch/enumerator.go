package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// dirEnumerator is the CLI's concrete workspace enumerator collaborator:
// a plain filesystem walk filtered by the same glob patterns
// internal/watch uses for exclusion.
type dirEnumerator struct {
	root string
}

func (d *dirEnumerator) Enumerate(exclude []string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(d.root, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(d.root, path)
		if relErr != nil {
			rel = path
		}
		rel = filepath.ToSlash(rel)

		if entry.IsDir() {
			if rel != "." && matchesAny(exclude, rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if matchesAny(exclude, rel) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	return paths, err
}

func matchesAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if matched, _ := doublestar.Match(p, rel); matched {
			return true
		}
		if matched, _ := doublestar.Match(p, rel+"/"); matched {
			return true
		}
		trimmed := strings.TrimSuffix(p, "/**")
		if trimmed != p && (rel == trimmed || strings.HasPrefix(rel, trimmed+"/")) {
			return true
		}
	}
	return false
}
