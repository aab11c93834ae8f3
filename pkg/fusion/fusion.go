// Package fusion combines text and image embeddings into one retrievable
// vector so a single index query covers both modalities.
package fusion

import (
	"errors"
	"math"
)

// ErrDimensionMismatch means the two vectors are not from the same embedding
// space. The embedder guarantees equal dimensionality, so hitting this is a
// wiring bug, not a runtime condition to retry.
var ErrDimensionMismatch = errors.New("text and image embedding dimensions differ")

// Fuse returns the elementwise mean of the text and image vectors. A nil
// image vector leaves the text vector untouched.
func Fuse(text, image []float32) ([]float32, error) {
	if image == nil {
		return text, nil
	}
	if len(text) != len(image) {
		return nil, ErrDimensionMismatch
	}

	fused := make([]float32, len(text))
	for i := range text {
		fused[i] = (text[i] + image[i]) / 2
	}
	return fused, nil
}

// EuclideanDistance is the L2 distance used for the image rerank and by the
// in-memory index. Vectors of different lengths are maximally distant.
func EuclideanDistance(a, b []float32) float32 {
	if len(a) != len(b) {
		return float32(math.Inf(1))
	}

	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}
