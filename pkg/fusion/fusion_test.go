package fusion_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joliv/mira/pkg/fusion"
)

func TestFuse(t *testing.T) {
	text := []float32{1, 2, 3}
	image := []float32{3, 4, 5}

	fused, err := fusion.Fuse(text, image)
	require.NoError(t, err)
	assert.Equal(t, []float32{2, 3, 4}, fused)
	assert.Len(t, fused, len(text))
}

func TestFuseWithoutImage(t *testing.T) {
	text := []float32{0.5, -0.5}

	fused, err := fusion.Fuse(text, nil)
	require.NoError(t, err)
	assert.Equal(t, text, fused)
}

func TestFuseDimensionMismatch(t *testing.T) {
	_, err := fusion.Fuse([]float32{1, 2}, []float32{1, 2, 3})
	assert.ErrorIs(t, err, fusion.ErrDimensionMismatch)
}

func TestEuclideanDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{name: "identical", a: []float32{1, 2}, b: []float32{1, 2}, want: 0},
		{name: "unit apart", a: []float32{0, 0}, b: []float32{0, 1}, want: 1},
		{name: "pythagorean", a: []float32{0, 0}, b: []float32{3, 4}, want: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, fusion.EuclideanDistance(tt.a, tt.b), 1e-6)
		})
	}
}

func TestEuclideanDistanceMismatchedLengths(t *testing.T) {
	d := fusion.EuclideanDistance([]float32{1}, []float32{1, 2})
	assert.True(t, math.IsInf(float64(d), 1))
}
