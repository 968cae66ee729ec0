package index

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/corpusd/corpusd/internal/chunk"
	"github.com/corpusd/corpusd/internal/embed"
)

// DefaultBatchSize is how many chunks are embedded and written per batch.
const DefaultBatchSize = 50

// Writer adds chunks to an index idempotently: chunks whose ids already
// exist are skipped, the rest are embedded and written in fixed-size batches.
type Writer struct {
	idx       *Index
	embedder  embed.Embedder
	batchSize int
	log       *slog.Logger
}

// WriterOptions configures NewWriter.
type WriterOptions struct {
	// BatchSize overrides DefaultBatchSize when positive.
	BatchSize int
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// NewWriter creates a Writer over the given index and embedder.
func NewWriter(idx *Index, embedder embed.Embedder, opts WriterOptions) *Writer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Writer{
		idx:       idx,
		embedder:  embedder,
		batchSize: opts.BatchSize,
		log:       opts.Logger,
	}
}

// AddChunks writes the chunks not already present in the index and returns
// how many were added. A failed batch halts the run; batches already written
// stay in the index, so a rerun picks up where this one stopped.
func (w *Writer) AddChunks(ctx context.Context, chunks []chunk.Chunk) (int, error) {
	existingIDs, err := w.idx.IDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list existing ids: %w", err)
	}
	existing := make(map[string]struct{}, len(existingIDs))
	for _, id := range existingIDs {
		existing[id] = struct{}{}
	}

	var fresh []chunk.Chunk
	for _, c := range chunks {
		if _, ok := existing[c.ID]; !ok {
			fresh = append(fresh, c)
		}
	}

	w.log.Info("adding new chunks", "count", len(fresh), "existing", len(existingIDs))
	if len(fresh) == 0 {
		return 0, nil
	}

	added := 0
	for start := 0; start < len(fresh); start += w.batchSize {
		end := min(start+w.batchSize, len(fresh))
		batch := fresh[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		vectors, err := w.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return added, fmt.Errorf("embed batch at offset %d: %w", start, err)
		}
		if err := w.idx.Add(ctx, batch, vectors); err != nil {
			return added, fmt.Errorf("write batch at offset %d: %w", start, err)
		}
		added += len(batch)
	}
	return added, nil
}
