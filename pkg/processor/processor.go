package processor

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidConfig is returned when the chunk window can never advance.
var ErrInvalidConfig = errors.New("chunk size must exceed chunk overlap")

type ProcessorConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

// Processor cleans raw source text and splits it into overlapping
// fixed-size windows for embedding.
type Processor struct {
	config ProcessorConfig
}

var (
	citationPattern = regexp.MustCompile(`\[[^\]]*\]`)
	// Zero-width space and the LTR/RTL marks Wikipedia articles carry.
	zeroWidthReplacer = strings.NewReplacer("\u200b", "", "\u200e", "", "\u200f", "")
)

// NewWithConfig applies the 400/100 defaults only when ChunkSize is unset, so
// an explicit size with ChunkOverlap zero configures non-overlapping windows.
func NewWithConfig(config ProcessorConfig) (Processor, error) {
	if config.ChunkSize == 0 {
		config.ChunkSize = 400
		if config.ChunkOverlap == 0 {
			config.ChunkOverlap = 100
		}
	}
	if config.ChunkOverlap < 0 || config.ChunkOverlap >= config.ChunkSize {
		return Processor{}, ErrInvalidConfig
	}

	return Processor{config: config}, nil
}

func New() Processor {
	p, _ := NewWithConfig(ProcessorConfig{})
	return p
}

// Normalize strips bracketed citation markers, zero-width and direction
// control runes, collapses whitespace runs and trims. It is idempotent.
func (p *Processor) Normalize(text string) string {
	text = citationPattern.ReplaceAllString(text, "")
	text = zeroWidthReplacer.Replace(text)
	text = strings.Join(strings.Fields(text), " ")
	return strings.TrimSpace(text)
}

// Chunk splits normalized text into windows of ChunkSize runes, each window
// starting ChunkSize-ChunkOverlap runes after the previous one. Windows keep
// advancing until the start position passes the end of the text, so trailing
// windows may be shorter and fall inside the previous one. Empty input yields
// no chunks.
func (p *Processor) Chunk(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	stride := p.config.ChunkSize - p.config.ChunkOverlap
	var chunks []string
	for i := 0; i < len(runes); i += stride {
		end := i + p.config.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}

	return chunks
}

// Process is the common normalize-then-chunk path used by ingestion.
func (p *Processor) Process(text string) []string {
	return p.Chunk(p.Normalize(text))
}
