package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/studybuddy/internal/core"
)

func TestOpenAIEmbedder_PreservesInputOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 3, req.Dimensions)
		assert.Equal(t, []string{"a", "b"}, req.Input)

		// Out of order on purpose.
		_, _ = w.Write([]byte(`{"data":[
			{"index":1,"embedding":[2,2,2]},
			{"index":0,"embedding":[1,1,1]}
		]}`))
	}))
	defer srv.Close()

	emb, err := NewOpenAIEmbedder(srv.URL+"/v1/", "key", "m", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, emb.Dimensions())

	vecs, err := emb.EmbedTexts(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{1, 1, 1}, vecs[0])
	assert.Equal(t, []float32{2, 2, 2}, vecs[1])
}

func TestOpenAIEmbedder_ProviderErrorFailsBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer srv.Close()

	emb, err := NewOpenAIEmbedder(srv.URL, "key", "m", 3)
	require.NoError(t, err)

	vecs, err := emb.EmbedTexts(context.Background(), []string{"a", "b"})
	assert.Nil(t, vecs)
	assert.ErrorIs(t, err, core.ErrEmbedding)
}

func TestOpenAIEmbedder_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1]}]}`))
	}))
	defer srv.Close()

	emb, err := NewOpenAIEmbedder(srv.URL, "key", "m", 1)
	require.NoError(t, err)

	_, err = emb.EmbedTexts(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, core.ErrEmbedding)
}

func TestOpenAIEmbedder_EmptyInput(t *testing.T) {
	emb, err := NewOpenAIEmbedder("http://unused", "key", "", 0)
	require.NoError(t, err)

	vecs, err := emb.EmbedTexts(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}

func TestNewOpenAIEmbedder_RequiresKey(t *testing.T) {
	_, err := NewOpenAIEmbedder("", "", "", 0)
	assert.Error(t, err)
}
