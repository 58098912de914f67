package embed

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func embeddingServer(t *testing.T, dims int, calls *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type datum struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		resp := struct {
			Data []datum `json:"data"`
		}{}
		for i := range req.Input {
			vec := make([]float32, dims)
			vec[0] = float32(i + 1)
			resp.Data = append(resp.Data, datum{Embedding: vec, Index: i})
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestOpenAIEmbedder_BatchAndCache(t *testing.T) {
	var calls atomic.Int64
	server := embeddingServer(t, 4, &calls)
	defer server.Close()

	embedder, err := NewEmbedder(Config{
		APIKey:     "test",
		BaseURL:    server.URL,
		Dimensions: 4,
		MaxRetries: 1,
	})
	require.NoError(t, err)

	vectors, err := embedder.EmbedBatch(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	require.Len(t, vectors[0], 4)
	require.EqualValues(t, 1, calls.Load())

	// Second request for the same text is served from the LRU cache
	_, err = embedder.Embed(context.Background(), "one")
	require.NoError(t, err)
	require.EqualValues(t, 1, calls.Load())
}

func TestOpenAIEmbedder_DimensionMismatchFatal(t *testing.T) {
	var calls atomic.Int64
	server := embeddingServer(t, 3, &calls)
	defer server.Close()

	embedder, err := NewEmbedder(Config{
		APIKey:     "test",
		BaseURL:    server.URL,
		Dimensions: 4,
		MaxRetries: 3,
	})
	require.NoError(t, err)

	_, err = embedder.Embed(context.Background(), "text")
	require.ErrorIs(t, err, ErrDimensionMismatch)
	require.EqualValues(t, 1, calls.Load(), "configuration errors must not be retried")
}

func TestLocalEmbedder_Deterministic(t *testing.T) {
	embedder := NewLocalEmbedder(64)
	ctx := context.Background()

	first, err := embedder.Embed(ctx, "retry logic with exponential backoff")
	require.NoError(t, err)
	second, err := embedder.Embed(ctx, "retry logic with exponential backoff")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Len(t, first, embedder.Dimensions())

	var norm float64
	for _, v := range first {
		norm += float64(v) * float64(v)
	}
	require.InDelta(t, 1.0, math.Sqrt(norm), 1e-5, "vectors are L2-normalized")

	other, err := embedder.Embed(ctx, "unrelated paragraph about cooking")
	require.NoError(t, err)
	require.NotEqual(t, first, other)
}
