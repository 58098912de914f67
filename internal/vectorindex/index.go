package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrDimensionMismatch reports a vector whose dimension differs from the
// vectors already stored. Mixed dimensions indicate a configuration fault.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Match is one similarity search hit.
type Match struct {
	ID    string
	Score float32
}

// Index stores (id, vector, metadata) triples and answers top-k similarity
// queries. Scores are a monotone similarity measure: higher means more
// similar. Ties are broken by insertion order so identical inputs produce
// identical rankings.
type Index interface {
	// Upsert stores or replaces the entry for id.
	Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error

	// Remove deletes the entry for id. Removing an unknown id is a no-op.
	Remove(ctx context.Context, id string) error

	// Search returns up to topK entries ranked by non-increasing similarity,
	// restricted to entries whose metadata matches every filter key/value.
	// Searching an empty index returns an empty result, not an error.
	Search(ctx context.Context, vector []float32, topK int, filters map[string]string) ([]Match, error)

	// Count returns the number of stored entries.
	Count() int
}

type entry struct {
	id       string
	vector   []float32
	metadata map[string]string
	seq      uint64 // insertion rank, stable across upserts of the same id
}

// memoryIndex is a brute-force cosine index. Vectors are expected to be
// L2-normalized so the dot product is the cosine similarity.
type memoryIndex struct {
	mu      sync.RWMutex
	entries map[string]*entry
	nextSeq uint64
	dim     int
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() Index {
	return &memoryIndex{entries: make(map[string]*entry)}
}

func (ix *memoryIndex) Upsert(_ context.Context, id string, vector []float32, metadata map[string]string) error {
	if id == "" {
		return fmt.Errorf("empty id")
	}
	if len(vector) == 0 {
		return fmt.Errorf("empty vector for id %s", id)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.dim == 0 {
		ix.dim = len(vector)
	} else if len(vector) != ix.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), ix.dim)
	}

	if existing, ok := ix.entries[id]; ok {
		// Overwrite preserves the original insertion rank for stable ties
		existing.vector = vector
		existing.metadata = cloneMetadata(metadata)
		return nil
	}

	ix.entries[id] = &entry{
		id:       id,
		vector:   vector,
		metadata: cloneMetadata(metadata),
		seq:      ix.nextSeq,
	}
	ix.nextSeq++
	return nil
}

func (ix *memoryIndex) Remove(_ context.Context, id string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.entries, id)
	return nil
}

func (ix *memoryIndex) Search(_ context.Context, vector []float32, topK int, filters map[string]string) ([]Match, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("top_k must be positive, got %d", topK)
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.entries) == 0 {
		return []Match{}, nil
	}
	if len(vector) != ix.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), ix.dim)
	}

	type scored struct {
		match Match
		seq   uint64
	}

	candidates := make([]scored, 0, len(ix.entries))
	for _, e := range ix.entries {
		if !matchesFilters(e.metadata, filters) {
			continue
		}
		candidates = append(candidates, scored{
			match: Match{ID: e.id, Score: dot(e.vector, vector)},
			seq:   e.seq,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].match.Score != candidates[j].match.Score {
			return candidates[i].match.Score > candidates[j].match.Score
		}
		return candidates[i].seq < candidates[j].seq
	})

	if topK > len(candidates) {
		topK = len(candidates)
	}
	matches := make([]Match, topK)
	for i := 0; i < topK; i++ {
		matches[i] = candidates[i].match
	}
	return matches, nil
}

func (ix *memoryIndex) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

func matchesFilters(metadata, filters map[string]string) bool {
	for key, want := range filters {
		if metadata[key] != want {
			return false
		}
	}
	return true
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func cloneMetadata(src map[string]string) map[string]string {
	if len(src) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(src))
	for key, value := range src {
		out[key] = value
	}
	return out
}
