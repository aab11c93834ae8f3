// Package engine answers queries against the vector index: similarity search
// with a post-hoc image rerank, and LLM answer generation on top of it.
package engine

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/joliv/mira/internal/models"
	"github.com/joliv/mira/internal/types"
	"github.com/joliv/mira/pkg/fusion"
)

const maxImageBytes = 20 << 20

const answerTemplate = `Answer the following query using the provided context. You may reference the image if it helps.

Context:
%s
%s
Query:
%s

Answer:`

type EngineConfig struct {
	DefaultK          int
	ImageFetchTimeout time.Duration
	UserAgent         string
}

// Engine runs retrieval and generation against a populated index.
type Engine struct {
	config    EngineConfig
	embedder  types.Embedder
	index     types.VectorIndex
	generator types.Generator
	client    *http.Client
}

func NewWithConfig(config EngineConfig, emb types.Embedder, index types.VectorIndex, gen types.Generator) *Engine {
	if config.DefaultK <= 0 {
		config.DefaultK = 3
	}
	if config.ImageFetchTimeout == 0 {
		config.ImageFetchTimeout = 10 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = "mira/1.0 (multimodal retrieval pipeline)"
	}

	return &Engine{
		config:    config,
		embedder:  emb,
		index:     index,
		generator: gen,
		client:    &http.Client{Timeout: config.ImageFetchTimeout},
	}
}

// Search embeds the query, pulls the k nearest chunks and reranks their
// images directly against the query embedding. Chunk ranking is never
// affected by the rerank; it only picks the suggested image.
func (e *Engine) Search(ctx context.Context, query string, k int) (*models.SearchResponse, error) {
	if k <= 0 {
		k = e.config.DefaultK
	}

	queryVec, err := e.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	matches, err := e.index.Query(ctx, queryVec, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query index: %w", err)
	}

	return &models.SearchResponse{
		Matches:        matches,
		SuggestedImage: e.rerankImages(ctx, queryVec, matches),
	}, nil
}

// Answer runs Search, composes a prompt from the retrieved chunks and asks
// the generator. A generation failure degrades into a payload with the error
// message, not a transport error.
func (e *Engine) Answer(ctx context.Context, query string, k int) (*models.AnswerResponse, error) {
	result, err := e.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}

	prompt := composePrompt(query, result.Matches, result.SuggestedImage)

	answer, err := e.generator.Generate(ctx, prompt)
	if err != nil {
		log.Printf("engine: generation failed: %v", err)
		return &models.AnswerResponse{
			Error:          err.Error(),
			SuggestedImage: result.SuggestedImage,
		}, nil
	}

	return &models.AnswerResponse{
		Answer:         answer,
		SuggestedImage: result.SuggestedImage,
	}, nil
}

func composePrompt(query string, matches []models.Match, image *string) string {
	documents := make([]string, 0, len(matches))
	for _, m := range matches {
		documents = append(documents, m.Document)
	}

	imageBlock := ""
	if image != nil {
		imageBlock = fmt.Sprintf("\nRelated image:\n![Related image](%s)\n", *image)
	}

	return fmt.Sprintf(answerTemplate, strings.Join(documents, "\n"), imageBlock, query)
}

// rerankImages embeds each distinct image of the result set and returns the
// one closest to the query embedding. Fetches run concurrently; any image
// that cannot be fetched or embedded is skipped. Ties resolve to the image
// of the best-ranked chunk.
func (e *Engine) rerankImages(ctx context.Context, queryVec []float32, matches []models.Match) *string {
	type candidate struct {
		url      string
		distance float32
		ok       bool
	}

	candidates := make([]candidate, len(matches))
	seen := make(map[string]bool, len(matches))

	var wg sync.WaitGroup
	for i, m := range matches {
		if m.Metadata.ImageURL == nil || seen[*m.Metadata.ImageURL] {
			continue
		}
		seen[*m.Metadata.ImageURL] = true

		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()

			distance, err := e.imageDistance(ctx, queryVec, url)
			if err != nil {
				log.Printf("engine: skipping image %s: %v", url, err)
				return
			}
			candidates[i] = candidate{url: url, distance: distance, ok: true}
		}(i, *m.Metadata.ImageURL)
	}
	wg.Wait()

	var best *string
	bestDistance := float32(math.Inf(1))
	for i := range candidates {
		if candidates[i].ok && candidates[i].distance < bestDistance {
			bestDistance = candidates[i].distance
			url := candidates[i].url
			best = &url
		}
	}
	return best
}

func (e *Engine) imageDistance(ctx context.Context, queryVec []float32, url string) (float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.config.ImageFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", e.config.UserAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, url)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return 0, err
	}

	imageVec, err := e.embedder.EmbedImage(ctx, data)
	if err != nil {
		return 0, err
	}

	return fusion.EuclideanDistance(queryVec, imageVec), nil
}
