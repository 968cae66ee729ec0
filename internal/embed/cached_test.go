package embed

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder is a test double that records how many texts it embeds.
type countingEmbedder struct {
	calls atomic.Int32
}

func (f *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	return []float32{float32(len(text))}, nil
}

func (f *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, _ := f.Embed(ctx, text)
		out[i] = vec
	}
	return out, nil
}

func (f *countingEmbedder) ModelName() string { return "counting" }

func TestCachedEmbedder_HitSkipsInner(t *testing.T) {
	inner := &countingEmbedder{}
	c := NewCachedEmbedder(inner, 10)

	first, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)
	second, err := c.Embed(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestCachedEmbedder_BatchOnlyForwardsMisses(t *testing.T) {
	inner := &countingEmbedder{}
	c := NewCachedEmbedder(inner, 10)

	_, err := c.Embed(context.Background(), "a")
	require.NoError(t, err)

	vecs, err := c.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)

	require.Len(t, vecs, 3)
	assert.Equal(t, float32(1), vecs[0][0])
	assert.Equal(t, float32(2), vecs[1][0])
	assert.Equal(t, float32(3), vecs[2][0])
	// "a" was cached; only "bb" and "ccc" reach the inner embedder.
	assert.Equal(t, int32(3), inner.calls.Load())
}
