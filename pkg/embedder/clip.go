// Package embedder talks to a CLIP sidecar service that encodes text and
// images into one shared embedding space. Both modalities go through the same
// model, which is what makes elementwise fusion of the vectors meaningful.
package embedder

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrEncoding is returned when the sidecar rejects the input, e.g. bytes that
// do not decode as an image.
var ErrEncoding = errors.New("input could not be encoded")

type CLIPConfig struct {
	BaseURL   string
	Dimension int
	Timeout   time.Duration
}

// CLIP is a REST client to the embedding sidecar. Safe for concurrent use.
type CLIP struct {
	config CLIPConfig
	client *http.Client
}

func NewCLIPWithConfig(config CLIPConfig) *CLIP {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:8090"
	}
	if config.Dimension == 0 {
		config.Dimension = 512
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}

	return &CLIP{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// EmbedText encodes a text snippet. Deterministic for a fixed model and input.
func (c *CLIP) EmbedText(ctx context.Context, text string) ([]float32, error) {
	body := map[string]string{"text": text}
	return c.embed(ctx, c.config.BaseURL+"/embed/text", body)
}

// EmbedImage encodes raw image bytes. The sidecar decodes the image itself;
// undecodable bytes surface as ErrEncoding.
func (c *CLIP) EmbedImage(ctx context.Context, image []byte) ([]float32, error) {
	body := map[string]string{"image": base64.StdEncoding.EncodeToString(image)}
	return c.embed(ctx, c.config.BaseURL+"/embed/image", body)
}

// Dimension is the fixed size of every vector this embedder produces.
func (c *CLIP) Dimension() int {
	return c.config.Dimension
}

func (c *CLIP) embed(ctx context.Context, url string, body any) ([]float32, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: %s", ErrEncoding, bytes.TrimSpace(msg))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding request failed: %s", resp.Status)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode embedding: %w", err)
	}
	if len(out.Embedding) != c.config.Dimension {
		return nil, fmt.Errorf("embedding has dimension %d, want %d", len(out.Embedding), c.config.Dimension)
	}

	return out.Embedding, nil
}
