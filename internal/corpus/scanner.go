// Package corpus enumerates the source documents eligible for indexing.
package corpus

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// Scanner discovers eligible source files in the corpus directory.
// Eligibility is decided purely by file extension; event-layer filtering is
// deliberately left to the scanner so the watcher can stay format-agnostic.
type Scanner struct {
	extensions map[string]struct{}
}

// NewScanner creates a scanner recognizing the given extensions
// (each including the leading dot, e.g. ".pdf").
func NewScanner(extensions []string) *Scanner {
	exts := make(map[string]struct{}, len(extensions))
	for _, e := range extensions {
		exts[strings.ToLower(e)] = struct{}{}
	}
	return &Scanner{extensions: exts}
}

// Scan walks dir recursively and returns the canonical absolute paths of all
// eligible files, sorted lexicographically. An unreadable root directory is
// an error and is propagated; unreadable subtrees are skipped.
func (s *Scanner) Scan(dir string) ([]string, error) {
	absRoot, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve corpus directory: %w", err)
	}

	var paths []string
	walkErr := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == absRoot {
				return fmt.Errorf("read corpus directory: %w", err)
			}
			return nil // skip unreadable entries below the root
		}
		if d.IsDir() {
			return nil
		}
		if !s.Eligible(path) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	// WalkDir visits lexically, but make the ordering contract explicit.
	sort.Strings(paths)
	return paths, nil
}

// Eligible reports whether the path's extension is in the recognized set.
func (s *Scanner) Eligible(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	_, ok := s.extensions[ext]
	return ok
}
