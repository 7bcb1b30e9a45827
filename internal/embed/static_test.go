package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticEmbedder_Deterministic(t *testing.T) {
	// Given the same text embedded twice
	e := NewStaticEmbedder()
	defer e.Close()

	first, err := e.Embed(context.Background(), "call me ishmael")
	require.NoError(t, err)
	second, err := e.Embed(context.Background(), "call me ishmael")
	require.NoError(t, err)

	// Then the vectors are identical
	assert.Equal(t, first, second)
}

func TestStaticEmbedder_UnitLength(t *testing.T) {
	e := NewStaticEmbedder()
	defer e.Close()

	vec, err := e.Embed(context.Background(), "some years ago, never mind how long precisely")
	require.NoError(t, err)
	require.Len(t, vec, StaticDimensions)

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
}

func TestStaticEmbedder_EmptyTextYieldsZeroVector(t *testing.T) {
	e := NewStaticEmbedder()
	defer e.Close()

	vec, err := e.Embed(context.Background(), "   ")
	require.NoError(t, err)
	require.Len(t, vec, StaticDimensions)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestStaticEmbedder_DifferentTextsDiffer(t *testing.T) {
	e := NewStaticEmbedder()
	defer e.Close()

	a, err := e.Embed(context.Background(), "whaling voyages and the open sea")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "quantum mechanics and wave functions")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestStaticEmbedder_BatchMatchesSingle(t *testing.T) {
	e := NewStaticEmbedder()
	defer e.Close()

	texts := []string{"first chunk of text", "second chunk of text"}
	batch, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	single, err := e.Embed(context.Background(), texts[0])
	require.NoError(t, err)
	assert.Equal(t, single, batch[0])
}

func TestStaticEmbedder_ClosedReturnsError(t *testing.T) {
	e := NewStaticEmbedder()
	require.NoError(t, e.Close())

	_, err := e.Embed(context.Background(), "after close")
	assert.Error(t, err)
	_, err = e.EmbedBatch(context.Background(), []string{"x"})
	assert.Error(t, err)
}

func TestTokenize_DropsStopWords(t *testing.T) {
	tokens := tokenize("the whale and the sea")
	assert.Equal(t, []string{"whale", "sea"}, tokens)
}

func TestExtractNgrams(t *testing.T) {
	assert.Equal(t, []string{"abc", "bcd"}, extractNgrams("abcd", 3))
	assert.Empty(t, extractNgrams("ab", 3))
}
