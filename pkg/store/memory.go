package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/joliv/mira/internal/models"
	"github.com/joliv/mira/pkg/fusion"
)

type record struct {
	id       string
	vector   []float32
	document string
	meta     models.Metadata
}

// MemoryStore is a brute-force L2 index kept in process memory. It backs
// store-less runs and tests; the contract matches the pgvector adapter.
type MemoryStore struct {
	mu      sync.RWMutex
	dim     int
	records []record
}

func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{dim: dimension}
}

func (ms *MemoryStore) Add(ctx context.Context, id string, vector []float32, document string, meta models.Metadata) error {
	if ms.dim != 0 && len(vector) != ms.dim {
		return fmt.Errorf("vector has dimension %d, want %d", len(vector), ms.dim)
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	for _, r := range ms.records {
		if r.id == id {
			return fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}
	}

	stored := make([]float32, len(vector))
	copy(stored, vector)
	ms.records = append(ms.records, record{
		id:       id,
		vector:   stored,
		document: document,
		meta:     meta,
	})
	return nil
}

func (ms *MemoryStore) Query(ctx context.Context, vector []float32, k int) ([]models.Match, error) {
	if k <= 0 {
		k = 3
	}

	ms.mu.RLock()
	defer ms.mu.RUnlock()

	matches := make([]models.Match, 0, len(ms.records))
	for _, r := range ms.records {
		matches = append(matches, models.Match{
			ID:       r.id,
			Document: r.document,
			Metadata: r.meta,
			Distance: fusion.EuclideanDistance(vector, r.vector),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})

	if k > len(matches) {
		k = len(matches)
	}
	return matches[:k], nil
}

func (ms *MemoryStore) Close() {}

// Len reports the number of stored chunks.
func (ms *MemoryStore) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.records)
}
