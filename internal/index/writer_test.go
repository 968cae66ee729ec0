package index

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpusd/corpusd/internal/chunk"
)

// batchRecorder embeds deterministically and records each batch it receives.
type batchRecorder struct {
	batches [][]string
	failOn  int // 1-based batch number to fail on; 0 means never
}

func (b *batchRecorder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := b.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (b *batchRecorder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	b.batches = append(b.batches, texts)
	if b.failOn > 0 && len(b.batches) == b.failOn {
		return nil, errors.New("embedding backend down")
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), 1}
	}
	return out, nil
}

func (b *batchRecorder) ModelName() string { return "recorder" }

func makeChunks(source string, n int) []chunk.Chunk {
	chunks := make([]chunk.Chunk, n)
	for i := range chunks {
		chunks[i] = testChunk(source, 0, i, fmt.Sprintf("chunk content number %d", i))
	}
	return chunks
}

func TestWriter_AddsAllChunks(t *testing.T) {
	idx := openTestIndex(t)
	rec := &batchRecorder{}
	w := NewWriter(idx, rec, WriterOptions{BatchSize: 10})

	added, err := w.AddChunks(context.Background(), makeChunks("data/a.pdf", 25))
	require.NoError(t, err)

	assert.Equal(t, 25, added)
	// 25 chunks at batch size 10 is three embedding calls.
	require.Len(t, rec.batches, 3)
	assert.Len(t, rec.batches[0], 10)
	assert.Len(t, rec.batches[2], 5)

	n, err := idx.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 25, n)
}

func TestWriter_SkipsExistingIDs(t *testing.T) {
	idx := openTestIndex(t)
	rec := &batchRecorder{}
	w := NewWriter(idx, rec, WriterOptions{})

	chunks := makeChunks("data/a.pdf", 5)
	_, err := w.AddChunks(context.Background(), chunks)
	require.NoError(t, err)

	// Same chunks again plus two new ones.
	again := append(chunks, makeChunks("data/b.pdf", 2)...)
	added, err := w.AddChunks(context.Background(), again)
	require.NoError(t, err)

	assert.Equal(t, 2, added)
	n, err := idx.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestWriter_NothingNewEmbedsNothing(t *testing.T) {
	idx := openTestIndex(t)
	rec := &batchRecorder{}
	w := NewWriter(idx, rec, WriterOptions{})

	chunks := makeChunks("data/a.pdf", 3)
	_, err := w.AddChunks(context.Background(), chunks)
	require.NoError(t, err)
	callsAfterFirst := len(rec.batches)

	added, err := w.AddChunks(context.Background(), chunks)
	require.NoError(t, err)

	assert.Zero(t, added)
	assert.Len(t, rec.batches, callsAfterFirst)
}

func TestWriter_FailedBatchHaltsButKeepsEarlierBatches(t *testing.T) {
	idx := openTestIndex(t)
	rec := &batchRecorder{failOn: 2}
	w := NewWriter(idx, rec, WriterOptions{BatchSize: 10})

	added, err := w.AddChunks(context.Background(), makeChunks("data/a.pdf", 25))
	require.Error(t, err)

	// First batch landed before the failure; later batches never ran.
	assert.Equal(t, 10, added)
	assert.Len(t, rec.batches, 2)

	n, err := idx.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	// A rerun with a healthy backend completes the remainder.
	rec.failOn = 0
	added, err = w.AddChunks(context.Background(), makeChunks("data/a.pdf", 25))
	require.NoError(t, err)
	assert.Equal(t, 15, added)
}
