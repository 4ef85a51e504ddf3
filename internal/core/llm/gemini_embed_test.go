package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiDimensions(t *testing.T) {
	assert.Equal(t, 768, GeminiDimensions("text-embedding-004"))
	assert.Equal(t, 768, GeminiDimensions("models/text-embedding-004"))
	assert.Equal(t, 3072, GeminiDimensions("gemini-embedding-001"))
	assert.Zero(t, GeminiDimensions("text-embedding-3-small"))
}

func TestGeminiDimension(t *testing.T) {
	dim, err := geminiDimension("text-embedding-004", 0)
	require.NoError(t, err)
	assert.Equal(t, 768, dim)

	dim, err = geminiDimension("text-embedding-004", 768)
	require.NoError(t, err)
	assert.Equal(t, 768, dim)

	dim, err = geminiDimension("some-future-model", 512)
	require.NoError(t, err)
	assert.Equal(t, 512, dim)

	_, err = geminiDimension("text-embedding-004", 1024)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "produces 768-dim vectors, configured 1024")
}

func TestNewGeminiEmbedder_FailsBeforeDialWhenDimensionCannotBeProduced(t *testing.T) {
	emb, err := NewGeminiEmbedder(context.Background(), "key", "text-embedding-004", 1024)
	require.Error(t, err)
	assert.Nil(t, emb)
}
