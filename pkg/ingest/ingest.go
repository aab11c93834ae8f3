// Package ingest populates the vector index, either in bulk from the content
// source or one document at a time through the API.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joliv/mira/internal/models"
	"github.com/joliv/mira/internal/types"
	"github.com/joliv/mira/pkg/fusion"
	"github.com/joliv/mira/pkg/processor"
)

var (
	// ErrEmptyRequest means an interactive add carried neither text nor an
	// image nor a PDF.
	ErrEmptyRequest = errors.New("request must include text, an image or a PDF")
	// ErrNoQualifyingImage means no image URL of a topic passed the
	// extension and trusted-host filter, so the topic is skipped.
	ErrNoQualifyingImage = errors.New("no qualifying image for topic")
)

const maxImageBytes = 20 << 20

type PipelineConfig struct {
	ChunkSize              int
	ChunkOverlap           int
	AllowedImageExtensions []string
	TrustedImageHost       string
	UserAgent              string
	FetchTimeout           time.Duration
}

// Pipeline orchestrates chunking, embedding, fusion and storage.
type Pipeline struct {
	config    PipelineConfig
	processor processor.Processor
	source    types.Source
	embedder  types.Embedder
	index     types.VectorIndex
	blobs     types.BlobStore
	extractor types.Extractor
	client    *http.Client
}

func NewWithConfig(config PipelineConfig, source types.Source, emb types.Embedder,
	index types.VectorIndex, blobs types.BlobStore, extractor types.Extractor) (*Pipeline, error) {

	if len(config.AllowedImageExtensions) == 0 {
		config.AllowedImageExtensions = []string{".jpg", ".jpeg", ".png"}
	}
	if config.TrustedImageHost == "" {
		config.TrustedImageHost = "wikimedia"
	}
	if config.UserAgent == "" {
		config.UserAgent = "mira/1.0 (multimodal retrieval pipeline)"
	}
	if config.FetchTimeout == 0 {
		config.FetchTimeout = 30 * time.Second
	}

	proc, err := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    config.ChunkSize,
		ChunkOverlap: config.ChunkOverlap,
	})
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		config:    config,
		processor: proc,
		source:    source,
		embedder:  emb,
		index:     index,
		blobs:     blobs,
		extractor: extractor,
		client:    &http.Client{Timeout: config.FetchTimeout},
	}, nil
}

// TopicResult records the outcome of one topic during bulk ingestion.
type TopicResult struct {
	Topic  string
	Chunks int
	Failed int
	Err    error
}

// IngestTopics processes each topic independently: a failed topic is logged
// and skipped, never aborting the run. Chunk order within a topic follows the
// chunker; topics run sequentially.
func (p *Pipeline) IngestTopics(ctx context.Context, topics []string, onProgress func(TopicResult)) []TopicResult {
	results := make([]TopicResult, 0, len(topics))
	for _, topic := range topics {
		res := p.ingestTopic(ctx, topic)
		if res.Err != nil {
			log.Printf("ingest: topic %q skipped: %v", topic, res.Err)
		}
		if onProgress != nil {
			onProgress(res)
		}
		results = append(results, res)
	}
	return results
}

func (p *Pipeline) ingestTopic(ctx context.Context, topic string) TopicResult {
	res := TopicResult{Topic: topic}

	page, err := p.source.Fetch(ctx, topic)
	if err != nil {
		res.Err = err
		return res
	}

	chunks := p.processor.Process(page.Text)
	if len(chunks) == 0 {
		res.Err = fmt.Errorf("page %q has no text content", page.Title)
		return res
	}

	imageURL := p.selectImageURL(page.Images)
	if imageURL == "" {
		res.Err = fmt.Errorf("%w: %s", ErrNoQualifyingImage, topic)
		return res
	}

	imageBytes, err := p.fetchImage(ctx, imageURL)
	if err != nil {
		res.Err = fmt.Errorf("failed to download image: %w", err)
		return res
	}

	blobURL, err := p.blobs.Put(ctx, imageBytes, contentTypeForURL(imageURL), "")
	if err != nil {
		res.Err = fmt.Errorf("failed to upload image: %w", err)
		return res
	}

	// One image embedding is shared by every chunk of the topic; only the
	// text side is recomputed per chunk.
	imageVec, err := p.embedder.EmbedImage(ctx, imageBytes)
	if err != nil {
		res.Err = fmt.Errorf("failed to embed image: %w", err)
		return res
	}

	meta := models.Metadata{
		Topic:     page.Title,
		SourceURL: page.URL,
		ImageURL:  &blobURL,
	}

	for _, chunk := range chunks {
		if err := p.addChunk(ctx, chunk, imageVec, meta); err != nil {
			log.Printf("ingest: chunk of %q dropped: %v", topic, err)
			res.Failed++
			continue
		}
		res.Chunks++
	}

	return res
}

func (p *Pipeline) addChunk(ctx context.Context, chunk string, imageVec []float32, meta models.Metadata) error {
	textVec, err := p.embedder.EmbedText(ctx, chunk)
	if err != nil {
		return err
	}

	vec, err := fusion.Fuse(textVec, imageVec)
	if err != nil {
		return err
	}

	return p.index.Add(ctx, uuid.NewString(), vec, chunk, meta)
}

// AddRequest is one interactive add. Exactly one content field is expected;
// when several are set, text wins over image, image over PDF.
type AddRequest struct {
	Text      string
	Image     []byte
	ImageName string
	PDF       []byte
	PDFName   string
	Title     string
	SourceURL string
	Tags      string
}

type AddResult struct {
	ID       string  `json:"id"`
	ImageURL *string `json:"image_url"`
}

// AddDocument stores one document as a single chunk, fusing in an image
// embedding when the content is an image.
func (p *Pipeline) AddDocument(ctx context.Context, req AddRequest) (*AddResult, error) {
	var (
		content  string
		imageVec []float32
		imageURL *string
		pdfName  *string
	)

	switch {
	case req.Text != "":
		content = req.Text

	case len(req.Image) > 0:
		content = "Uploaded image: " + req.ImageName

		vec, err := p.embedder.EmbedImage(ctx, req.Image)
		if err != nil {
			return nil, fmt.Errorf("failed to embed image: %w", err)
		}
		imageVec = vec

		url, err := p.blobs.Put(ctx, req.Image, http.DetectContentType(req.Image), req.ImageName)
		if err != nil {
			return nil, fmt.Errorf("failed to upload image: %w", err)
		}
		imageURL = &url

	case len(req.PDF) > 0:
		text, err := p.extractor.ExtractText(req.PDF)
		if err != nil {
			return nil, fmt.Errorf("failed to extract pdf text: %w", err)
		}
		content = text
		pdfName = &req.PDFName

	default:
		return nil, ErrEmptyRequest
	}

	textVec, err := p.embedder.EmbedText(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}

	vec, err := fusion.Fuse(textVec, imageVec)
	if err != nil {
		return nil, err
	}

	var tags *string
	if req.Tags != "" {
		tags = &req.Tags
	}

	id := uuid.NewString()
	meta := models.Metadata{
		Topic:       req.Title,
		SourceURL:   req.SourceURL,
		ImageURL:    imageURL,
		Tags:        tags,
		PDFFilename: pdfName,
	}

	if err := p.index.Add(ctx, id, vec, content, meta); err != nil {
		return nil, err
	}

	return &AddResult{ID: id, ImageURL: imageURL}, nil
}

// selectImageURL returns the first image with an allowed extension hosted on
// the trusted host. The host check is a substring match on the URL, same as
// the upstream behaviour it mirrors; it is a filter, not a security boundary.
func (p *Pipeline) selectImageURL(urls []string) string {
	for _, u := range urls {
		lower := strings.ToLower(u)
		if !strings.Contains(lower, p.config.TrustedImageHost) {
			continue
		}
		for _, ext := range p.config.AllowedImageExtensions {
			if strings.HasSuffix(lower, ext) {
				return u
			}
		}
	}
	return ""
}

func (p *Pipeline) fetchImage(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.config.UserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, url)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
}

func contentTypeForURL(url string) string {
	if strings.HasSuffix(strings.ToLower(url), ".png") {
		return "image/png"
	}
	return "image/jpeg"
}
