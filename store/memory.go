package store

import (
	"context"
	"math"
	"sort"
	"sync"

	"ragchat/types"
)

type memoryEntry struct {
	chunk  types.Chunk
	vector []float32
}

// MemoryStore is a brute-force cosine index held in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	name      string
	dimension int
	order     []string
	entries   map[string]memoryEntry
}

func NewMemoryStore(name string, dimension int) *MemoryStore {
	return &MemoryStore{
		name:      name,
		dimension: dimension,
		entries:   make(map[string]memoryEntry),
	}
}

func (s *MemoryStore) Name() string { return s.name }

func (s *MemoryStore) Init(context.Context) error {
	if s.dimension <= 0 {
		return types.Errorf(types.KindStorage, "memory init", "invalid dimension %d", s.dimension)
	}
	return nil
}

func (s *MemoryStore) Add(_ context.Context, chunks []types.Chunk, embeddings [][]float32) error {
	if err := validateBatch("memory add", chunks, embeddings, s.dimension); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range chunks {
		if _, ok := s.entries[c.ID]; !ok {
			s.order = append(s.order, c.ID)
		}
		vec := make([]float32, len(embeddings[i]))
		copy(vec, embeddings[i])
		s.entries[c.ID] = memoryEntry{chunk: c, vector: vec}
	}
	return nil
}

func (s *MemoryStore) Query(_ context.Context, embedding []float32, k int) ([]types.RetrievalResult, error) {
	if len(embedding) != s.dimension {
		return nil, types.Errorf(types.KindValidation, "memory query", "query dimension %d, want %d", len(embedding), s.dimension)
	}
	if k <= 0 {
		return []types.RetrievalResult{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		id       string
		distance float64
	}
	all := make([]scored, 0, len(s.order))
	for _, id := range s.order {
		all = append(all, scored{id: id, distance: cosineDistance(s.entries[id].vector, embedding)})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].distance < all[j].distance })

	k = min(k, len(all))
	results := make([]types.RetrievalResult, 0, k)
	for i := 0; i < k; i++ {
		c := s.entries[all[i].id].chunk
		results = append(results, types.RetrievalResult{
			ID:       c.ID,
			Content:  c.Text,
			Metadata: c.Metadata(),
			Distance: all[i].distance,
			Rank:     i + 1,
		})
	}
	return results, nil
}

func (s *MemoryStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order), nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = nil
	s.entries = make(map[string]memoryEntry)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// cosineDistance is 1 - cos(a, b); a zero vector is at distance 1 from everything.
func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

var _ VectorStore = (*MemoryStore)(nil)
