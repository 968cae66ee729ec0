// Package index persists chunk embeddings and metadata. Vectors live in an
// HNSW graph, chunk metadata in SQLite; both are stored under a single
// directory that the rest of the system treats as opaque.
package index

import (
	"errors"
	"fmt"
)

// Entry is the (id, source) pair of one index record, the unit the
// synchronizer diffs against the corpus.
type Entry struct {
	ID     string
	Source string
}

// Result is a single similarity search hit.
type Result struct {
	// ID is the chunk identifier.
	ID string
	// Source is the canonical path of the chunk's document.
	Source string
	// Text is the chunk content.
	Text string
	// Score is the normalized similarity (0-1, higher is closer).
	Score float32
}

// ErrClosed is returned by operations on a closed index.
var ErrClosed = errors.New("index is closed")

// ErrLocked indicates another process holds the index directory lock.
var ErrLocked = errors.New("index directory is locked by another process")

// DimensionMismatchError indicates a vector of unexpected length.
type DimensionMismatchError struct {
	Expected int
	Got      int
}

func (e DimensionMismatchError) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
