package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store used when no database is configured and in tests.
// Capacity bounds the total number of vectors; zero means unbounded.
type MemoryStore struct {
	mu         sync.RWMutex
	dimension  int
	capacity   int
	total      int
	namespaces map[string][]Record
}

func NewMemoryStore(dimension, capacity int) *MemoryStore {
	return &MemoryStore{
		dimension:  dimension,
		capacity:   capacity,
		namespaces: make(map[string][]Record),
	}
}

func (s *MemoryStore) Upsert(_ context.Context, namespace string, records []Record) error {
	for _, rec := range records {
		if err := checkDimension(s.dimension, rec.Vector); err != nil {
			return fmt.Errorf("record %s: %w", rec.ID, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ns := s.namespaces[namespace]
	if s.capacity > 0 {
		added := make(map[string]bool, len(records))
		for _, rec := range records {
			if indexOf(ns, rec.ID) < 0 {
				added[rec.ID] = true
			}
		}
		if s.total+len(added) > s.capacity {
			return fmt.Errorf("memory store is full (%d vectors)", s.capacity)
		}
	}

	for _, rec := range records {
		rec.Vector = append([]float32(nil), rec.Vector...)
		rec.Metadata = copyMetadata(rec.Metadata)

		if i := indexOf(ns, rec.ID); i >= 0 {
			ns[i] = rec
			continue
		}
		ns = append(ns, rec)
		s.total++
	}
	s.namespaces[namespace] = ns
	return nil
}

func (s *MemoryStore) Query(_ context.Context, q Query) ([]Match, error) {
	if err := checkDimension(s.dimension, q.Vector); err != nil {
		return nil, err
	}
	limit := q.TopK
	if limit <= 0 {
		limit = 5
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]Match, 0, len(s.namespaces[q.Namespace]))
	for _, rec := range s.namespaces[q.Namespace] {
		if !containsAll(rec.Metadata, q.Filter) {
			continue
		}
		matches = append(matches, Match{
			ID:       rec.ID,
			Score:    clampScore(cosine(q.Vector, rec.Vector)),
			Text:     rec.Text,
			Metadata: copyMetadata(rec.Metadata),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{TotalVectors: s.total, Dimension: s.dimension, Namespaces: make(map[string]int, len(s.namespaces))}
	for ns, recs := range s.namespaces {
		stats.Namespaces[ns] = len(recs)
	}
	if s.capacity > 0 {
		stats.Fullness = float64(s.total) / float64(s.capacity)
	}
	return stats, nil
}

// Clear removes every vector in every namespace.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.namespaces = make(map[string][]Record)
	s.total = 0
	return nil
}

func indexOf(recs []Record, id string) int {
	for i, r := range recs {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// containsAll mirrors the jsonb @> check used by PostgresStore for flat filters.
func containsAll(metadata, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := metadata[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func copyMetadata(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var _ Store = (*MemoryStore)(nil)
