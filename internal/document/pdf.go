package document

import (
	"fmt"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
)

// PDFLoader extracts page texts from PDF files.
type PDFLoader struct{}

var _ Loader = (*PDFLoader)(nil)

// Load opens the PDF at path and returns one Page per document page,
// in document order. Pages whose text extraction fails are skipped rather
// than failing the whole document, but page numbering stays positional so
// re-loading an unchanged file yields identical pages.
func (p *PDFLoader) Load(path string) ([]Page, error) {
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	numPages := reader.NumPage()
	pages := make([]Page, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		pages = append(pages, Page{
			Source: path,
			Number: i - 1,
			Text:   text,
		})
	}
	return pages, nil
}
