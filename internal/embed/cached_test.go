package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder wraps the static embedder and counts the texts that
// reach it.
type countingEmbedder struct {
	*StaticEmbedder
	batchTexts int
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.batchTexts += len(texts)
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedder_AvoidsRecomputation(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	c := NewCachedEmbedder(inner, 16)
	defer func() { _ = c.Close() }()

	first, err := c.Embed(context.Background(), "repeated query")
	require.NoError(t, err)
	second, err := c.Embed(context.Background(), "repeated query")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	// Only the first lookup reached the wrapped embedder.
	assert.Equal(t, 1, inner.batchTexts)
}

func TestCachedEmbedder_BatchOnlyMisses(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder()}
	c := NewCachedEmbedder(inner, 16)
	defer func() { _ = c.Close() }()

	_, err := c.Embed(context.Background(), "warm")
	require.NoError(t, err)
	inner.batchTexts = 0

	vecs, err := c.EmbedBatch(context.Background(), []string{"warm", "cold"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)

	// Only the miss reached the inner embedder.
	assert.Equal(t, 1, inner.batchTexts)
}

func TestCachedEmbedder_Delegates(t *testing.T) {
	c := NewCachedEmbedder(NewStaticEmbedder(), 0)
	defer func() { _ = c.Close() }()

	assert.Equal(t, "static", c.ModelName())

	dim, err := c.ProbeDimension(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StaticDimensions, dim)
}
