package chunk

import (
	"strings"
	"unicode/utf8"

	"github.com/corpusd/corpusd/internal/document"
)

// Default splitting parameters, in characters.
const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 80
)

// Splitter cuts page texts into chunks of at most Size characters, with
// consecutive chunks within a page overlapping by Overlap characters.
// Splitting is deterministic: identical page text yields identical chunk
// boundaries on every pass.
type Splitter struct {
	size    int
	overlap int
}

// NewSplitter creates a splitter. Non-positive arguments fall back to the
// defaults; overlap is clamped below size so every step makes progress.
func NewSplitter(size, overlap int) *Splitter {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	if overlap >= size {
		overlap = size / 10
	}
	return &Splitter{size: size, overlap: overlap}
}

// Split converts ordered pages into ordered chunks. Page order is preserved
// end-to-end because identity assignment depends on it.
func (s *Splitter) Split(pages []document.Page) []Chunk {
	var chunks []Chunk
	for _, page := range pages {
		for _, text := range s.splitText(page.Text) {
			chunks = append(chunks, Chunk{
				Source: page.Source,
				Page:   page.Number,
				Text:   text,
			})
		}
	}
	return chunks
}

// splitText cuts a single text into pieces of at most s.size characters,
// preferring paragraph, line, sentence, then word boundaries. Each piece
// after the first begins s.overlap characters before the previous cut.
func (s *Splitter) splitText(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= s.size {
		return []string{text}
	}

	var pieces []string
	start := 0
	for start < len(text) {
		end := start + s.size
		if end >= len(text) {
			if piece := strings.TrimSpace(text[start:]); piece != "" {
				pieces = append(pieces, piece)
			}
			break
		}

		cut := s.breakPoint(text, start, end)
		if piece := strings.TrimSpace(text[start:cut]); piece != "" {
			pieces = append(pieces, piece)
		}

		next := cut - s.overlap
		if next <= start {
			next = cut
		}
		start = next
	}
	return pieces
}

// breakPoint finds where to cut text[start:limit], searching backwards for a
// natural boundary. A boundary in the first half of the window is worse than
// a hard cut, so only the second half is considered. The fallback cut is
// adjusted to a rune boundary.
func (s *Splitter) breakPoint(text string, start, limit int) int {
	window := text[start:limit]
	minIdx := len(window) / 2
	for _, sep := range []string{"\n\n", "\n", ". ", " "} {
		if idx := strings.LastIndex(window, sep); idx >= minIdx {
			return start + idx + len(sep)
		}
	}

	cut := limit
	for cut > start && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return cut
}
