package types

import (
	"context"

	"github.com/joliv/mira/internal/models"
)

// Embedder produces vectors for both modalities in one shared space. Text and
// image vectors must have identical dimensionality so they can be fused.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
	EmbedImage(ctx context.Context, image []byte) ([]float32, error)
	Dimension() int
}

// VectorIndex is the contract over the external vector store. Query returns
// matches ranked by ascending distance; an empty index yields an empty slice.
type VectorIndex interface {
	Add(ctx context.Context, id string, vector []float32, document string, meta models.Metadata) error
	Query(ctx context.Context, vector []float32, k int) ([]models.Match, error)
	Close()
}

// Source fetches page text and candidate image URLs for a topic.
type Source interface {
	Fetch(ctx context.Context, topic string) (*models.Page, error)
}

// BlobStore persists raw bytes and returns a public URL for them.
type BlobStore interface {
	Put(ctx context.Context, data []byte, contentType, name string) (string, error)
}

// Extractor turns a binary document into plain text.
type Extractor interface {
	ExtractText(data []byte) (string, error)
}

// Generator is the external language model: prompt in, completion out.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
