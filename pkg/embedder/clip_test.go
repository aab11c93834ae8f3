package embedder_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joliv/mira/pkg/embedder"
)

func newSidecar(t *testing.T, dim int) *httptest.Server {
	t.Helper()

	vector := make([]float32, dim)
	for i := range vector {
		vector[i] = float32(i)
	}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		switch r.URL.Path {
		case "/embed/text":
			if body["text"] == "" {
				http.Error(w, "empty text", http.StatusBadRequest)
				return
			}
		case "/embed/image":
			if _, err := base64.StdEncoding.DecodeString(body["image"]); err != nil {
				http.Error(w, "bad image payload", http.StatusBadRequest)
				return
			}
		default:
			http.NotFound(w, r)
			return
		}

		json.NewEncoder(w).Encode(map[string]any{"embedding": vector})
	}))
}

func TestEmbedText(t *testing.T) {
	server := newSidecar(t, 4)
	defer server.Close()

	clip := embedder.NewCLIPWithConfig(embedder.CLIPConfig{
		BaseURL:   server.URL,
		Dimension: 4,
	})

	vec, err := clip.EmbedText(context.Background(), "machu picchu")
	require.NoError(t, err)
	assert.Len(t, vec, clip.Dimension())
}

func TestEmbedImage(t *testing.T) {
	server := newSidecar(t, 4)
	defer server.Close()

	clip := embedder.NewCLIPWithConfig(embedder.CLIPConfig{
		BaseURL:   server.URL,
		Dimension: 4,
	})

	vec, err := clip.EmbedImage(context.Background(), []byte{0xFF, 0xD8, 0xFF})
	require.NoError(t, err)
	assert.Len(t, vec, 4)
}

func TestEmbedTextEncodingError(t *testing.T) {
	server := newSidecar(t, 4)
	defer server.Close()

	clip := embedder.NewCLIPWithConfig(embedder.CLIPConfig{
		BaseURL:   server.URL,
		Dimension: 4,
	})

	_, err := clip.EmbedText(context.Background(), "")
	assert.ErrorIs(t, err, embedder.ErrEncoding)
}

func TestDimensionMismatchRejected(t *testing.T) {
	server := newSidecar(t, 4)
	defer server.Close()

	clip := embedder.NewCLIPWithConfig(embedder.CLIPConfig{
		BaseURL:   server.URL,
		Dimension: 512,
	})

	_, err := clip.EmbedText(context.Background(), "query")
	assert.Error(t, err)
}

func TestDefaults(t *testing.T) {
	clip := embedder.NewCLIPWithConfig(embedder.CLIPConfig{})
	assert.Equal(t, 512, clip.Dimension())
}
