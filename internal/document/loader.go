// Package document turns source files into ordered sequences of page texts.
package document

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Page is one unit of extracted text bound to its source document.
type Page struct {
	// Source is the canonical absolute path of the document.
	Source string
	// Number is the zero-based page number within the document.
	Number int
	// Text is the extracted page text.
	Text string
}

// Loader converts a source file into an ordered sequence of page texts.
type Loader interface {
	Load(path string) ([]Page, error)
}

// MultiLoader dispatches to a format-specific loader by file extension.
type MultiLoader struct {
	loaders map[string]Loader
}

// NewMultiLoader creates a loader covering the built-in formats.
func NewMultiLoader() *MultiLoader {
	return &MultiLoader{
		loaders: map[string]Loader{
			".pdf": &PDFLoader{},
			".txt": &TextLoader{},
			".md":  &TextLoader{},
		},
	}
}

// Load dispatches by extension. Unknown extensions are an error; the corpus
// scanner is expected to have filtered them out already.
func (m *MultiLoader) Load(path string) ([]Page, error) {
	ext := strings.ToLower(filepath.Ext(path))
	loader, ok := m.loaders[ext]
	if !ok {
		return nil, fmt.Errorf("no loader for extension %q (%s)", ext, path)
	}
	return loader.Load(path)
}

var _ Loader = (*MultiLoader)(nil)
