package anchor

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/hybridrank/internal/vecmath"
	"github.com/dshills/hybridrank/pkg/types"
)

// Polarity marks whether an anchor pulls results toward it or pushes them away
type Polarity string

const (
	Positive Polarity = "positive"
	Negative Polarity = "negative"
)

// Anchor is a named embedding used to steer later searches.
// Anchors are immutable once created.
type Anchor struct {
	ID        string
	Name      string
	Embedding []float32
	CreatedAt time.Time
}

// New creates an anchor from an arbitrary vector
func New(name string, embedding []float32) (Anchor, error) {
	if len(embedding) == 0 {
		return Anchor{}, fmt.Errorf("%w: anchor %q has no embedding", types.ErrEmptyInput, name)
	}
	vector := make([]float32, len(embedding))
	copy(vector, embedding)
	return Anchor{
		ID:        uuid.NewString(),
		Name:      name,
		Embedding: vector,
		CreatedAt: time.Now(),
	}, nil
}

// FromResult promotes a search result to an anchor, resolving its embedding
// from the lookup first and the node's inline embedding second.
func FromResult(name string, result types.FusedResult, embeddingsByID map[int64][]float32) (Anchor, error) {
	if result.Node == nil {
		return Anchor{}, types.ErrMissingNode
	}
	if v, ok := embeddingFor(result, embeddingsByID); ok {
		return New(name, v)
	}
	return Anchor{}, fmt.Errorf("%w: node %d has no embedding", types.ErrEmptyInput, result.Node.ID)
}

// embeddingFor resolves a result's vector from the lookup, then from the node
func embeddingFor(result types.FusedResult, embeddingsByID map[int64][]float32) ([]float32, bool) {
	if result.Node == nil {
		return nil, false
	}
	if v, ok := embeddingsByID[result.Node.ID]; ok && len(v) > 0 {
		return v, true
	}
	if result.Node.HasEmbedding() {
		return result.Node.Embedding, true
	}
	return nil, false
}

// Set groups positive and negative anchors. Methods return new sets.
type Set struct {
	Positive []Anchor
	Negative []Anchor
}

// With returns a copy of the set with the anchor added under polarity
func (s Set) With(polarity Polarity, a Anchor) Set {
	out := s.clone()
	if polarity == Negative {
		out.Negative = append(out.Negative, a)
	} else {
		out.Positive = append(out.Positive, a)
	}
	return out
}

// Without returns a copy of the set with the anchor removed.
// The second return value reports whether anything was removed.
func (s Set) Without(id string) (Set, bool) {
	out := Set{}
	removed := false
	for _, a := range s.Positive {
		if a.ID == id {
			removed = true
			continue
		}
		out.Positive = append(out.Positive, a)
	}
	for _, a := range s.Negative {
		if a.ID == id {
			removed = true
			continue
		}
		out.Negative = append(out.Negative, a)
	}
	return out, removed
}

// IsEmpty reports whether the set holds no anchors
func (s Set) IsEmpty() bool {
	return len(s.Positive) == 0 && len(s.Negative) == 0
}

// PositiveEmbeddings returns the positive anchor vectors in order
func (s Set) PositiveEmbeddings() [][]float32 {
	return embeddings(s.Positive)
}

// NegativeEmbeddings returns the negative anchor vectors in order
func (s Set) NegativeEmbeddings() [][]float32 {
	return embeddings(s.Negative)
}

// Centroid returns the mean of the positive anchors, usable as a query vector
func (s Set) Centroid() ([]float32, error) {
	return vecmath.ComputeCentroid(s.PositiveEmbeddings())
}

func (s Set) clone() Set {
	out := Set{
		Positive: make([]Anchor, len(s.Positive), len(s.Positive)+1),
		Negative: make([]Anchor, len(s.Negative), len(s.Negative)+1),
	}
	copy(out.Positive, s.Positive)
	copy(out.Negative, s.Negative)
	return out
}

func embeddings(anchors []Anchor) [][]float32 {
	if len(anchors) == 0 {
		return nil
	}
	out := make([][]float32, len(anchors))
	for i, a := range anchors {
		out[i] = a.Embedding
	}
	return out
}
