package index

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corpusd/corpusd/internal/chunk"
)

func testChunk(source string, page, seq int, text string) chunk.Chunk {
	return chunk.Chunk{
		Source: source,
		Page:   page,
		Seq:    seq,
		ID:     fmt.Sprintf("%s:%d:%d", source, page, seq),
		Text:   text,
	}
}

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(t.TempDir(), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestIndex_AddAndList(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	chunks := []chunk.Chunk{
		testChunk("data/a.pdf", 0, 0, "alpha"),
		testChunk("data/a.pdf", 0, 1, "beta"),
		testChunk("data/b.pdf", 2, 0, "gamma"),
	}
	vectors := [][]float32{{1, 0}, {0, 1}, {0.5, 0.5}}

	require.NoError(t, idx.Add(ctx, chunks, vectors))

	ids, err := idx.IDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"data/a.pdf:0:0", "data/a.pdf:0:1", "data/b.pdf:2:0"}, ids)

	sources, err := idx.Sources(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"data/a.pdf", "data/b.pdf"}, sources)

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestIndex_Search(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	chunks := []chunk.Chunk{
		testChunk("data/a.pdf", 0, 0, "about cats"),
		testChunk("data/a.pdf", 0, 1, "about dogs"),
	}
	require.NoError(t, idx.Add(ctx, chunks, [][]float32{{1, 0}, {0, 1}}))

	results, err := idx.Search(ctx, []float32{0.9, 0.1}, 1)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, "data/a.pdf:0:0", results[0].ID)
	assert.Equal(t, "about cats", results[0].Text)
	assert.Greater(t, results[0].Score, float32(0.9))
}

func TestIndex_SearchEmpty(t *testing.T) {
	idx := openTestIndex(t)

	results, err := idx.Search(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestIndex_DeleteBySource(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	chunks := []chunk.Chunk{
		testChunk("data/a.pdf", 0, 0, "alpha"),
		testChunk("data/b.pdf", 0, 0, "beta"),
	}
	require.NoError(t, idx.Add(ctx, chunks, [][]float32{{1, 0}, {0, 1}}))

	require.NoError(t, idx.DeleteBySource(ctx, []string{"data/a.pdf"}))

	ids, err := idx.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"data/b.pdf:0:0"}, ids)

	// Deleted vectors must not resurface in search.
	results, err := idx.Search(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "data/a.pdf:0:0", r.ID)
	}
}

func TestIndex_RewriteSource(t *testing.T) {
	idx := openTestIndex(t)
	ctx := context.Background()

	chunks := []chunk.Chunk{testChunk("data/old.pdf", 0, 0, "alpha")}
	require.NoError(t, idx.Add(ctx, chunks, [][]float32{{1, 0}}))

	require.NoError(t, idx.RewriteSource(ctx, "data/old.pdf", "data/new.pdf"))

	entries, err := idx.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "data/new.pdf", entries[0].Source)
	// The id keeps its original path prefix; only the source column moves.
	assert.Equal(t, "data/old.pdf:0:0", entries[0].ID)
}

func TestIndex_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	idx, err := Open(dir, Options{})
	require.NoError(t, err)
	chunks := []chunk.Chunk{testChunk("data/a.pdf", 0, 0, "alpha")}
	require.NoError(t, idx.Add(ctx, chunks, [][]float32{{1, 0}}))
	require.NoError(t, idx.Close())

	reopened, err := Open(dir, Options{})
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	ids, err := reopened.IDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"data/a.pdf:0:0"}, ids)

	results, err := reopened.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "alpha", results[0].Text)
}

func TestIndex_SecondOpenFails(t *testing.T) {
	dir := t.TempDir()

	idx, err := Open(dir, Options{})
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	_, err = Open(dir, Options{})
	assert.ErrorIs(t, err, ErrLocked)
}

func TestIndex_ClosedOperationsFail(t *testing.T) {
	idx, err := Open(t.TempDir(), Options{})
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	_, err = idx.IDs(context.Background())
	assert.ErrorIs(t, err, ErrClosed)

	err = idx.Add(context.Background(), []chunk.Chunk{testChunk("x", 0, 0, "t")}, [][]float32{{1}})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestReset_ClearsDirectory(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	idx, err := Open(dir, Options{})
	require.NoError(t, err)
	chunks := []chunk.Chunk{testChunk("data/a.pdf", 0, 0, "alpha")}
	require.NoError(t, idx.Add(ctx, chunks, [][]float32{{1, 0}}))
	require.NoError(t, idx.Close())

	require.NoError(t, Reset(dir))

	reopened, err := Open(dir, Options{})
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	n, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReset_MissingDirectoryIsNoop(t *testing.T) {
	assert.NoError(t, Reset(t.TempDir()+"/nope"))
}

func TestVectorStore_DimensionMismatch(t *testing.T) {
	s := newVectorStore(0)
	require.NoError(t, s.add([]string{"a"}, [][]float32{{1, 0, 0}}))

	err := s.add([]string{"b"}, [][]float32{{1, 0}})
	var mismatch DimensionMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 3, mismatch.Expected)
	assert.Equal(t, 2, mismatch.Got)
}

func TestVectorStore_ReplaceKeepsSingleLiveVector(t *testing.T) {
	s := newVectorStore(0)
	require.NoError(t, s.add([]string{"a"}, [][]float32{{1, 0}}))
	require.NoError(t, s.add([]string{"a"}, [][]float32{{0, 1}}))

	assert.Equal(t, 1, s.count())

	ids, _, err := s.search([]float32{0, 1}, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)
}
