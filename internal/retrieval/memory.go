package retrieval

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
)

// MemoryStore is a brute-force in-memory vector store ranked by cosine
// distance. Good enough for small self-hosted knowledge bases; swap in an
// external store behind VectorStore when the corpus outgrows it.
type MemoryStore struct {
	mu      sync.RWMutex
	dim     int
	entries []Entry
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Upsert(ctx context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if len(e.Vector) == 0 {
			return errors.New("empty vector")
		}
		if s.dim == 0 {
			s.dim = len(e.Vector)
		}
		if len(e.Vector) != s.dim {
			return errors.New("vector dimension mismatch")
		}
	}
	s.entries = append(s.entries, entries...)
	return nil
}

func (s *MemoryStore) Search(ctx context.Context, vector []float32, topK int) ([]Passage, error) {
	if topK <= 0 {
		topK = 3
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return nil, nil
	}
	if len(vector) != s.dim {
		return nil, errors.New("query vector dimension mismatch")
	}

	out := make([]Passage, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, Passage{
			Text:     e.Text,
			Source:   e.Source,
			Distance: 1 - cosine(vector, e.Vector),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if topK < len(out) {
		out = out[:topK]
	}
	return out, nil
}

// Documents lists the indexed sources in ingestion order.
func (s *MemoryStore) Documents(ctx context.Context) ([]DocumentInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	var order []string
	for _, e := range s.entries {
		if counts[e.Source] == 0 {
			order = append(order, e.Source)
		}
		counts[e.Source]++
	}
	out := make([]DocumentInfo, 0, len(order))
	for _, src := range order {
		out = append(out, DocumentInfo{Source: src, Chunks: counts[src]})
	}
	return out, nil
}

// DeleteSource drops every chunk ingested under the source.
func (s *MemoryStore) DeleteSource(ctx context.Context, source string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0]
	removed := 0
	for _, e := range s.entries {
		if e.Source == source {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	if len(s.entries) == 0 {
		s.dim = 0
	}
	return removed, nil
}

// Len reports the number of indexed chunks.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
