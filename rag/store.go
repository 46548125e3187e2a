package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Store persists embedded chunks and answers nearest-neighbour queries.
type Store interface {
	// Upsert adds chunks; a chunk with an existing ID replaces the old one
	// and keeps its original insertion position.
	Upsert(ctx context.Context, chunks ...Chunk) error
	// Query returns at most k chunks ordered by descending similarity, ties
	// in insertion order. A query vector of another dimension than the
	// stored ones fails with ErrDimensionMismatch.
	Query(ctx context.Context, embedding []float64, k int) ([]SearchResult, error)
	Count(ctx context.Context) (int, error)
	// Reset removes every entry.
	Reset(ctx context.Context) error
}

type InMemoryStore struct {
	mu     sync.RWMutex
	chunks []Chunk
	pos    map[string]int
	dim    int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		chunks: []Chunk{},
		pos:    map[string]int{},
	}
}

func (s *InMemoryStore) Upsert(ctx context.Context, chunks ...Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dim
	for _, ch := range chunks {
		if err := CheckEmbedding(ch, dim); err != nil {
			return err
		}
		dim = len(ch.Embedding)
	}
	s.dim = dim

	for _, ch := range chunks {
		if ch.ID == "" {
			ch.ID = ChunkID(ch.Source, ch.Index)
		}
		if i, ok := s.pos[ch.ID]; ok {
			s.chunks[i] = ch
			continue
		}
		s.pos[ch.ID] = len(s.chunks)
		s.chunks = append(s.chunks, ch)
	}
	return nil
}

func (s *InMemoryStore) Query(ctx context.Context, embedding []float64, k int) ([]SearchResult, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dim > 0 && len(embedding) != s.dim {
		return nil, fmt.Errorf("%w: query has %d, store has %d", ErrDimensionMismatch, len(embedding), s.dim)
	}

	results := make([]SearchResult, 0, len(s.chunks))
	for _, ch := range s.chunks {
		results = append(results, SearchResult{
			Chunk: ch,
			Score: Cosine(embedding, ch.Embedding),
		})
	}
	return TopK(results, k), nil
}

func (s *InMemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

func (s *InMemoryStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = []Chunk{}
	s.pos = map[string]int{}
	s.dim = 0
	return nil
}

// CheckEmbedding reports whether ch carries a usable vector. A dim of 0
// accepts any non-empty vector.
func CheckEmbedding(ch Chunk, dim int) error {
	if len(ch.Embedding) == 0 {
		return fmt.Errorf("chunk %s#%d has no embedding", ch.Source, ch.Index)
	}
	if dim > 0 && len(ch.Embedding) != dim {
		return fmt.Errorf("%w: chunk %s#%d has %d, store has %d",
			ErrDimensionMismatch, ch.Source, ch.Index, len(ch.Embedding), dim)
	}
	return nil
}

// Cosine is the cosine similarity of a and b, or 0 when the lengths differ
// or either vector is zero.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// TopK sorts results by descending score, keeping the incoming order for
// equal scores, and truncates to k.
func TopK(results []SearchResult, k int) []SearchResult {
	if k <= 0 {
		return []SearchResult{}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if k > len(results) {
		k = len(results)
	}
	return results[:k]
}
