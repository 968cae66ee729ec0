package document

import (
	"fmt"
	"os"
	"strings"
)

// TextLoader loads plain-text documents (.txt, .md) as a single page.
type TextLoader struct{}

var _ Loader = (*TextLoader)(nil)

// Load reads the whole file as page zero. Form feeds act as page
// separators, mirroring how extracted PDF text marks page breaks.
func (l *TextLoader) Load(path string) ([]Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var pages []Page
	for i, part := range strings.Split(string(data), "\f") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pages = append(pages, Page{
			Source: path,
			Number: i,
			Text:   part,
		})
	}
	return pages, nil
}
