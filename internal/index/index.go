package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/flock"

	"github.com/corpusd/corpusd/internal/chunk"
)

// File names inside the index directory.
const (
	metadataFile = "chunks.db"
	vectorFile   = "vectors.hnsw"
	lockFile     = "index.lock"
)

// Index is the persistent chunk index: SQLite metadata plus an HNSW vector
// store, guarded by an advisory file lock so only one process mutates the
// directory at a time.
type Index struct {
	dir     string
	lock    *flock.Flock
	meta    *metadataStore
	vectors *vectorStore
	log     *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Options configures Open.
type Options struct {
	// Logger receives index operation logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// Open opens (creating if needed) the index at dir. It returns ErrLocked if
// another process holds the directory lock.
func Open(dir string, opts Options) (*Index, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, lockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire index lock: %w", err)
	}
	if !locked {
		return nil, ErrLocked
	}

	meta, err := openMetadataStore(filepath.Join(dir, metadataFile))
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	vectors := newVectorStore(0)
	vectorPath := filepath.Join(dir, vectorFile)
	if _, statErr := os.Stat(vectorPath); statErr == nil {
		if err := vectors.load(vectorPath); err != nil {
			_ = meta.close()
			_ = lock.Unlock()
			return nil, fmt.Errorf("load vector store: %w", err)
		}
	}

	idx := &Index{
		dir:     dir,
		lock:    lock,
		meta:    meta,
		vectors: vectors,
		log:     opts.Logger,
	}
	idx.log.Debug("index opened", "dir", dir, "vectors", vectors.count())
	return idx, nil
}

// Close releases the database, saves nothing (mutating operations persist as
// they go), and drops the directory lock.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return nil
	}
	idx.closed = true

	err := idx.meta.close()
	if unlockErr := idx.lock.Unlock(); err == nil {
		err = unlockErr
	}
	return err
}

// IDs returns every chunk id currently in the index.
func (idx *Index) IDs(ctx context.Context) ([]string, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return nil, ErrClosed
	}
	return idx.meta.ids(ctx)
}

// Entries returns every (id, source) pair currently in the index.
func (idx *Index) Entries(ctx context.Context) ([]Entry, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return nil, ErrClosed
	}
	return idx.meta.entries(ctx)
}

// Sources returns the distinct source paths in the index, sorted.
func (idx *Index) Sources(ctx context.Context) ([]string, error) {
	entries, err := idx.Entries(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out []string
	for _, e := range entries {
		if _, ok := seen[e.Source]; !ok {
			seen[e.Source] = struct{}{}
			out = append(out, e.Source)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Add stores chunks with their embeddings. Both stores are updated and the
// vector store is persisted before returning.
func (idx *Index) Add(ctx context.Context, chunks []chunk.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d vs %d", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return ErrClosed
	}

	if err := idx.meta.insert(ctx, chunks); err != nil {
		return err
	}

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	if err := idx.vectors.add(ids, vectors); err != nil {
		return err
	}
	return idx.saveVectors()
}

// DeleteBySource removes every chunk belonging to the given sources.
func (idx *Index) DeleteBySource(ctx context.Context, sources []string) error {
	if len(sources) == 0 {
		return nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return ErrClosed
	}

	var removed int
	for _, source := range sources {
		ids, err := idx.meta.deleteBySource(ctx, source)
		if err != nil {
			return err
		}
		idx.vectors.delete(ids)
		removed += len(ids)
	}
	idx.log.Info("removed chunks", "sources", len(sources), "chunks", removed)
	return idx.saveVectors()
}

// RewriteSource repoints every chunk of oldSource at newSource without
// touching vectors or chunk ids.
func (idx *Index) RewriteSource(ctx context.Context, oldSource, newSource string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return ErrClosed
	}
	return idx.meta.rewriteSource(ctx, oldSource, newSource)
}

// Search returns up to k chunks nearest the query vector, best first.
func (idx *Index) Search(ctx context.Context, query []float32, k int) ([]Result, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return nil, ErrClosed
	}

	ids, scores, err := idx.vectors.search(query, k)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(ids))
	for i, id := range ids {
		c, err := idx.meta.get(ctx, id)
		if err != nil {
			// Vector survived a metadata delete; skip the orphan.
			idx.log.Warn("search hit without metadata row", "id", id)
			continue
		}
		results = append(results, Result{
			ID:     c.ID,
			Source: c.Source,
			Text:   c.Text,
			Score:  scores[i],
		})
	}
	return results, nil
}

// Count returns the number of indexed chunks.
func (idx *Index) Count(ctx context.Context) (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return 0, ErrClosed
	}
	return idx.meta.count(ctx)
}

func (idx *Index) saveVectors() error {
	return idx.vectors.save(filepath.Join(idx.dir, vectorFile))
}

// Reset deletes the index directory contents. The index must not be open.
func Reset(dir string) error {
	lock := flock.New(filepath.Join(dir, lockFile))
	locked, err := lock.TryLock()
	if err == nil && !locked {
		return ErrLocked
	}
	if locked {
		defer func() { _ = lock.Unlock() }()
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read index directory: %w", err)
	}
	for _, entry := range entries {
		if entry.Name() == lockFile {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("remove %s: %w", entry.Name(), err)
		}
	}
	return nil
}
