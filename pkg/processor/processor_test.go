package processor_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joliv/mira/pkg/processor"
)

func TestNormalize(t *testing.T) {
	p := processor.New()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "citation markers",
			input: "Machu Picchu[1] is a citadel[note 2] in Peru.",
			want:  "Machu Picchu is a citadel in Peru.",
		},
		{
			name:  "whitespace runs",
			input: "Hello [1] world  \n\nfoo",
			want:  "Hello world foo",
		},
		{
			name:  "zero width runes",
			input: "a\u200bb\u200ec\u200fd",
			want:  "abcd",
		},
		{
			name:  "leading and trailing space",
			input: "   padded   ",
			want:  "padded",
		},
		{
			name:  "empty",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Normalize(tt.input))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	p := processor.New()

	inputs := []string{
		"Machu Picchu[1] is a  citadel.",
		"plain text",
		"  \u200b  ",
	}

	for _, input := range inputs {
		once := p.Normalize(input)
		assert.Equal(t, once, p.Normalize(once))
	}
}

func TestChunkWindows(t *testing.T) {
	p, err := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    10,
		ChunkOverlap: 3,
	})
	require.NoError(t, err)

	text := p.Normalize("Hello [1] world  \n\nfoo")
	require.Equal(t, "Hello world foo", text)

	// Windows start 7 runes apart and keep advancing until the start passes
	// the end, so the last window here is a single trailing rune.
	chunks := p.Chunk(text)
	assert.Equal(t, []string{"Hello worl", "orld foo", "o"}, chunks)

	for i, chunk := range chunks {
		assert.LessOrEqual(t, len([]rune(chunk)), 10)
		start := i * 7
		assert.Equal(t, string([]rune(text)[start:start+len([]rune(chunk))]), chunk)
	}

	// Every character of the input is covered by at least one window.
	last := chunks[len(chunks)-1]
	assert.True(t, strings.HasSuffix(text, last))
}

func TestChunkZeroOverlap(t *testing.T) {
	p, err := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    5,
		ChunkOverlap: 0,
	})
	require.NoError(t, err)

	chunks := p.Chunk("abcdefghijkl")
	assert.Equal(t, []string{"abcde", "fghij", "kl"}, chunks)
}

func TestChunkCoversAllRunes(t *testing.T) {
	tests := []struct {
		size    int
		overlap int
	}{
		{size: 5, overlap: 1},
		{size: 8, overlap: 4},
		{size: 400, overlap: 100},
	}

	text := strings.Repeat("abcdefghij", 12)

	for _, tt := range tests {
		p, err := processor.NewWithConfig(processor.ProcessorConfig{
			ChunkSize:    tt.size,
			ChunkOverlap: tt.overlap,
		})
		require.NoError(t, err)

		chunks := p.Chunk(text)
		require.NotEmpty(t, chunks)

		stride := tt.size - tt.overlap
		covered := make([]bool, len(text))
		for i, chunk := range chunks {
			for j := range []rune(chunk) {
				covered[i*stride+j] = true
			}
		}
		for i, ok := range covered {
			assert.True(t, ok, "rune %d not covered for size=%d overlap=%d", i, tt.size, tt.overlap)
		}
	}
}

func TestChunkShortInput(t *testing.T) {
	p := processor.New()

	chunks := p.Chunk("short")
	require.Len(t, chunks, 1)
	assert.Equal(t, "short", chunks[0])
}

func TestChunkEmptyInput(t *testing.T) {
	p := processor.New()
	assert.Empty(t, p.Chunk(""))
}

func TestInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
	}{
		{name: "overlap equals size", size: 100, overlap: 100},
		{name: "overlap exceeds size", size: 100, overlap: 150},
		{name: "negative overlap", size: 100, overlap: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := processor.NewWithConfig(processor.ProcessorConfig{
				ChunkSize:    tt.size,
				ChunkOverlap: tt.overlap,
			})
			assert.ErrorIs(t, err, processor.ErrInvalidConfig)
		})
	}
}

func TestProcess(t *testing.T) {
	p, err := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    10,
		ChunkOverlap: 3,
	})
	require.NoError(t, err)

	chunks := p.Process("Hello [1] world  \n\nfoo")
	require.NotEmpty(t, chunks)
	assert.Equal(t, "Hello worl", chunks[0])
}
