package engine_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joliv/mira/internal/models"
	"github.com/joliv/mira/pkg/engine"
	"github.com/joliv/mira/pkg/store"
)

const testDim = 4

// fakeEmbedder embeds every query at the origin and maps image bytes to fixed
// vectors, so image distances are chosen per test case.
type fakeEmbedder struct {
	images map[string][]float32
}

func (f *fakeEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	return []float32{0, 0, 0, 0}, nil
}

func (f *fakeEmbedder) EmbedImage(ctx context.Context, image []byte) ([]float32, error) {
	vec, ok := f.images[string(image)]
	if !ok {
		return nil, fmt.Errorf("unknown image %q", image)
	}
	return vec, nil
}

func (f *fakeEmbedder) Dimension() int { return testDim }

type fakeGenerator struct {
	prompt string
	answer string
	err    error
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.answer, f.err
}

// newImageServer serves the request path as the image body, so the embedder
// can key vectors off it.
func newImageServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			http.Error(w, "gone", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(r.URL.Path))
	}))
}

// seedIndex stores chunks whose vectors rank them in insertion order for a
// query at the origin.
func seedIndex(t *testing.T, index *store.MemoryStore, imageURLs []*string) {
	t.Helper()
	for i, url := range imageURLs {
		vec := []float32{float32(i+1) / 10, 0, 0, 0}
		meta := models.Metadata{
			Topic:     fmt.Sprintf("topic-%d", i),
			SourceURL: "https://example.org",
			ImageURL:  url,
		}
		err := index.Add(context.Background(), fmt.Sprintf("chunk-%d", i),
			vec, fmt.Sprintf("document %d", i), meta)
		require.NoError(t, err)
	}
}

func strPtr(s string) *string { return &s }

func TestSearchRanksChunksAndSuggestsClosestImage(t *testing.T) {
	server := newImageServer(t)
	defer server.Close()

	emb := &fakeEmbedder{images: map[string][]float32{
		"/a": {2, 0, 0, 0},
		"/b": {1, 0, 0, 0},
		"/c": {0, 0, 3, 0},
	}}
	index := store.NewMemoryStore(testDim)
	seedIndex(t, index, []*string{
		strPtr(server.URL + "/a"),
		strPtr(server.URL + "/b"),
		strPtr(server.URL + "/c"),
	})

	e := engine.NewWithConfig(engine.EngineConfig{}, emb, index, &fakeGenerator{})

	result, err := e.Search(context.Background(), "anything", 3)
	require.NoError(t, err)

	require.Len(t, result.Matches, 3)
	assert.Equal(t, "chunk-0", result.Matches[0].ID)
	assert.Equal(t, "chunk-1", result.Matches[1].ID)
	assert.Equal(t, "chunk-2", result.Matches[2].ID)

	// /b is closest to the query embedding even though its chunk ranks
	// second; the rerank overrides chunk order for the suggestion only.
	require.NotNil(t, result.SuggestedImage)
	assert.Equal(t, server.URL+"/b", *result.SuggestedImage)
}

func TestSearchTieBreaksOnChunkRank(t *testing.T) {
	server := newImageServer(t)
	defer server.Close()

	// Distances work out to [2, 1, 1, 3]; ranks 1 and 2 tie, so the image
	// of the better-ranked chunk wins.
	emb := &fakeEmbedder{images: map[string][]float32{
		"/a": {2, 0, 0, 0},
		"/b": {1, 0, 0, 0},
		"/c": {0, 1, 0, 0},
		"/d": {3, 0, 0, 0},
	}}
	index := store.NewMemoryStore(testDim)
	seedIndex(t, index, []*string{
		strPtr(server.URL + "/a"),
		strPtr(server.URL + "/b"),
		strPtr(server.URL + "/c"),
		strPtr(server.URL + "/d"),
	})

	e := engine.NewWithConfig(engine.EngineConfig{}, emb, index, &fakeGenerator{})

	result, err := e.Search(context.Background(), "anything", 4)
	require.NoError(t, err)
	require.NotNil(t, result.SuggestedImage)
	assert.Equal(t, server.URL+"/b", *result.SuggestedImage)
}

func TestSearchSkipsMissingAndBrokenImages(t *testing.T) {
	server := newImageServer(t)
	defer server.Close()

	emb := &fakeEmbedder{images: map[string][]float32{
		"/c": {5, 0, 0, 0},
	}}
	index := store.NewMemoryStore(testDim)
	seedIndex(t, index, []*string{
		nil,
		strPtr(server.URL + "/broken"),
		strPtr(server.URL + "/c"),
	})

	e := engine.NewWithConfig(engine.EngineConfig{}, emb, index, &fakeGenerator{})

	result, err := e.Search(context.Background(), "anything", 3)
	require.NoError(t, err)
	require.Len(t, result.Matches, 3)
	require.NotNil(t, result.SuggestedImage)
	assert.Equal(t, server.URL+"/c", *result.SuggestedImage)
}

func TestSearchEmptyIndex(t *testing.T) {
	e := engine.NewWithConfig(engine.EngineConfig{}, &fakeEmbedder{},
		store.NewMemoryStore(testDim), &fakeGenerator{})

	result, err := e.Search(context.Background(), "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, result.Matches)
	assert.Nil(t, result.SuggestedImage)
}

func TestAnswerComposesPrompt(t *testing.T) {
	server := newImageServer(t)
	defer server.Close()

	emb := &fakeEmbedder{images: map[string][]float32{
		"/a": {1, 0, 0, 0},
	}}
	index := store.NewMemoryStore(testDim)
	seedIndex(t, index, []*string{strPtr(server.URL + "/a"), nil})

	gen := &fakeGenerator{answer: "It is an Inca citadel."}
	e := engine.NewWithConfig(engine.EngineConfig{}, emb, index, gen)

	result, err := e.Answer(context.Background(), "What is Machu Picchu?", 2)
	require.NoError(t, err)
	assert.Equal(t, "It is an Inca citadel.", result.Answer)
	assert.Empty(t, result.Error)
	require.NotNil(t, result.SuggestedImage)

	assert.Contains(t, gen.prompt, "document 0\ndocument 1")
	assert.Contains(t, gen.prompt, "![Related image]("+server.URL+"/a)")
	assert.Contains(t, gen.prompt, "Query:\nWhat is Machu Picchu?")
	assert.True(t, strings.HasSuffix(gen.prompt, "Answer:"))
}

func TestAnswerWithoutImageOmitsMarkdown(t *testing.T) {
	index := store.NewMemoryStore(testDim)
	seedIndex(t, index, []*string{nil})

	gen := &fakeGenerator{answer: "plain answer"}
	e := engine.NewWithConfig(engine.EngineConfig{}, &fakeEmbedder{}, index, gen)

	result, err := e.Answer(context.Background(), "query", 1)
	require.NoError(t, err)
	assert.Nil(t, result.SuggestedImage)
	assert.NotContains(t, gen.prompt, "![Related image]")
}

func TestAnswerDegradesOnGenerationFailure(t *testing.T) {
	index := store.NewMemoryStore(testDim)
	seedIndex(t, index, []*string{nil})

	gen := &fakeGenerator{err: errors.New("model not loaded")}
	e := engine.NewWithConfig(engine.EngineConfig{}, &fakeEmbedder{}, index, gen)

	result, err := e.Answer(context.Background(), "query", 1)
	require.NoError(t, err)
	assert.Empty(t, result.Answer)
	assert.Contains(t, result.Error, "model not loaded")
}
