package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmbedderOptionsOverrideDefaults(t *testing.T) {
	embedder := NewEmbedder("http://localhost:11434", "",
		WithEmbeddingModel("custom-model"),
		WithEmbeddingDimension(42),
	)

	assert.Equal(t, "custom-model", embedder.ModelName())
	assert.Equal(t, 42, embedder.Dimension())
}

// embeddingServer は入力順と逆順の index で応答を返す
func embeddingServer(t *testing.T, dim int) (*httptest.Server, *[]string) {
	t.Helper()
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)

		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			vec := make([]float64, dim)
			vec[0] = float64(i)
			data = append(data, map[string]any{"object": "embedding", "index": i, "embedding": vec})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  req.Model,
			"data":   data,
			"usage":  map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &paths
}

func TestEmbedder_BatchEmbedKeepsInputOrder(t *testing.T) {
	srv, paths := embeddingServer(t, 3)
	embedder := NewEmbedder(srv.URL, "", WithEmbeddingDimension(3))

	vectors, err := embedder.BatchEmbed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)

	require.Len(t, vectors, 3)
	for i, v := range vectors {
		assert.Equal(t, float32(i), v[0])
	}
	assert.Equal(t, []string{"/v1/embeddings"}, *paths)
}

func TestEmbedder_DimensionMismatch(t *testing.T) {
	srv, _ := embeddingServer(t, 2)
	embedder := NewEmbedder(srv.URL, "", WithEmbeddingDimension(768))

	_, err := embedder.Embed(context.Background(), "text")
	assert.ErrorContains(t, err, "dimension mismatch")
}

func TestEmbedder_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"model not found"}}`, http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	_, err := NewEmbedder(srv.URL, "").BatchEmbed(context.Background(), []string{"x"})
	assert.ErrorContains(t, err, "failed to generate embeddings")
}

func TestEmbedder_EmptyInput(t *testing.T) {
	_, err := NewEmbedder("http://localhost:11434", "").BatchEmbed(context.Background(), nil)
	assert.Error(t, err)
}
