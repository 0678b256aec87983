// Package index holds previously answered questions for nearest-neighbour lookup.
package index

import (
	"context"
	"fmt"
	"sort"

	"github.com/ekaya-inc/datagenie-engine/pkg/embedding"
	"github.com/ekaya-inc/datagenie-engine/pkg/models"
)

// Index finds the examples closest to an embedding.
type Index interface {
	// Nearest returns at most k hits sorted by similarity descending.
	Nearest(ctx context.Context, vector embedding.Vector, k int) (models.RetrievedContext, error)
	Len() int
}

// Entry is an example with its embedding.
type Entry struct {
	Example models.ContextExample
	Vector  embedding.Vector
}

// MemoryIndex is an immutable brute-force cosine index.
type MemoryIndex struct {
	entries []Entry
	dims    int
}

var _ Index = (*MemoryIndex)(nil)

// NewMemoryIndex builds an index over entries. All vectors must share one
// dimension and example ids must be unique. The entries are copied.
func NewMemoryIndex(entries []Entry) (*MemoryIndex, error) {
	idx := &MemoryIndex{entries: make([]Entry, 0, len(entries))}
	seen := make(map[string]bool, len(entries))

	for _, e := range entries {
		if e.Example.ID == "" {
			return nil, fmt.Errorf("example %q has no id", e.Example.Question)
		}
		if seen[e.Example.ID] {
			return nil, fmt.Errorf("duplicate example id %q", e.Example.ID)
		}
		seen[e.Example.ID] = true

		if len(e.Vector) == 0 {
			return nil, fmt.Errorf("example %q has no vector", e.Example.ID)
		}
		if idx.dims == 0 {
			idx.dims = len(e.Vector)
		} else if len(e.Vector) != idx.dims {
			return nil, fmt.Errorf("example %q: vector has %d dims, index has %d", e.Example.ID, len(e.Vector), idx.dims)
		}

		idx.entries = append(idx.entries, Entry{
			Example: e.Example,
			Vector:  append(embedding.Vector(nil), e.Vector...),
		})
	}
	return idx, nil
}

// Len returns the number of examples.
func (m *MemoryIndex) Len() int { return len(m.entries) }

// Dims returns the vector dimension, 0 for an empty index.
func (m *MemoryIndex) Dims() int { return m.dims }

// Examples returns the indexed examples in insertion order.
func (m *MemoryIndex) Examples() []models.ContextExample {
	out := make([]models.ContextExample, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Example
	}
	return out
}

// Nearest implements Index. Similarity is cosine clamped to [0, 1]; ties are
// broken by example id so results are deterministic.
func (m *MemoryIndex) Nearest(ctx context.Context, vector embedding.Vector, k int) (models.RetrievedContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 || len(m.entries) == 0 {
		return models.RetrievedContext{}, nil
	}
	if len(vector) != m.dims {
		return nil, fmt.Errorf("query vector has %d dims, index has %d", len(vector), m.dims)
	}

	hits := make(models.RetrievedContext, len(m.entries))
	for i, e := range m.entries {
		hits[i] = models.ContextHit{Example: e.Example, Similarity: embedding.Similarity(vector, e.Vector)}
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].Example.ID < hits[j].Example.ID
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Build embeds examples with e and returns a MemoryIndex over them.
func Build(ctx context.Context, e embedding.Embedder, examples []models.ContextExample) (*MemoryIndex, error) {
	if len(examples) == 0 {
		return NewMemoryIndex(nil)
	}
	texts := make([]string, len(examples))
	for i, ex := range examples {
		texts[i] = ex.Question
	}
	vectors, err := embedding.EmbedAll(ctx, e, texts)
	if err != nil {
		return nil, fmt.Errorf("embed examples: %w", err)
	}

	entries := make([]Entry, len(examples))
	for i, ex := range examples {
		entries[i] = Entry{Example: ex, Vector: vectors[i]}
	}
	return NewMemoryIndex(entries)
}
