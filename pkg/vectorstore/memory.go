package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
)

// MemoryStore is a brute-force cosine-distance store. Search is O(n) over
// stored vectors, which is fine for cache-sized collections.
type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	vectors   map[string][]float64
	metadata  map[string]map[string]string
}

// NewMemoryStore creates an empty store for vectors of the given dimension.
func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{
		dimension: dimension,
		vectors:   make(map[string][]float64),
		metadata:  make(map[string]map[string]string),
	}
}

// Add stores a vector under id, replacing any existing entry.
func (s *MemoryStore) Add(ctx context.Context, id string, vector []float32, metadata map[string]string) error {
	if len(vector) != s.dimension {
		return fmt.Errorf("vector dimension %d does not match store dimension %d", len(vector), s.dimension)
	}
	v := make([]float64, len(vector))
	for i, x := range vector {
		v[i] = float64(x)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors[id] = v
	if metadata != nil {
		s.metadata[id] = metadata
	}
	return nil
}

// Search returns up to topK neighbors within maxDistance, nearest first.
func (s *MemoryStore) Search(ctx context.Context, query []float32, topK int, maxDistance float64) ([]SearchResult, error) {
	if len(query) != s.dimension {
		return nil, fmt.Errorf("query dimension %d does not match store dimension %d", len(query), s.dimension)
	}
	q := make([]float64, len(query))
	for i, x := range query {
		q[i] = float64(x)
	}

	s.mu.RLock()
	results := make([]SearchResult, 0, len(s.vectors))
	for id, v := range s.vectors {
		// Unit-norm vectors, so cosine distance is 1 - dot.
		dist := 1 - floats.Dot(q, v)
		if dist > maxDistance {
			continue
		}
		results = append(results, SearchResult{ID: id, Distance: dist, Metadata: s.metadata[id]})
	}
	s.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Delete removes the entry for id. Missing ids are not an error.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.vectors, id)
	delete(s.metadata, id)
	return nil
}

// Clear removes all entries.
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors = make(map[string][]float64)
	s.metadata = make(map[string]map[string]string)
	return nil
}

// Size returns the number of stored vectors.
func (s *MemoryStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors)
}
