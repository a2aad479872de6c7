// Package session implements the find -> refine -> harvest loop: a session
// keeps the anchors a caller has marked and the results they have kept, and
// feeds the anchors into every subsequent search.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/hybridrank/internal/anchor"
	"github.com/dshills/hybridrank/internal/pipeline"
	"github.com/dshills/hybridrank/pkg/types"
)

// Common errors
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUnknownResult   = errors.New("node is not among the latest results")
	ErrNoEmbedding     = errors.New("node has no embedding")
)

// Runner executes a pipeline request
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// EmbeddingSource resolves stored embeddings by node ID
type EmbeddingSource interface {
	GetEmbeddings(ctx context.Context, nodeIDs []int64) (map[int64][]float32, error)
}

// Session holds one caller's anchors and harvested results. It is safe for
// concurrent use.
type Session struct {
	ID        string
	CreatedAt time.Time

	runner     Runner
	embeddings EmbeddingSource

	mu        sync.Mutex
	anchors   anchor.Set
	latest    map[int64]types.EnrichedResult
	harvested []types.EnrichedResult
	kept      map[int64]struct{}
	updatedAt time.Time
}

// New creates an empty session
func New(runner Runner, embeddings EmbeddingSource) *Session {
	now := time.Now()
	return &Session{
		ID:         uuid.NewString(),
		CreatedAt:  now,
		runner:     runner,
		embeddings: embeddings,
		latest:     make(map[int64]types.EnrichedResult),
		kept:       make(map[int64]struct{}),
		updatedAt:  now,
	}
}

// Find runs the pipeline with the session's current anchors. The results
// become the candidates for Harvest and Mark*.
func (s *Session) Find(ctx context.Context, req pipeline.Request) (*pipeline.Result, error) {
	s.mu.Lock()
	req.Anchors = s.anchors
	s.mu.Unlock()

	res, err := s.runner.Run(ctx, req)
	if err != nil {
		return nil, err
	}

	latest := make(map[int64]types.EnrichedResult, len(res.Results))
	for _, r := range res.Results {
		latest[r.NodeID()] = r
	}

	s.mu.Lock()
	s.latest = latest
	s.updatedAt = time.Now()
	s.mu.Unlock()

	return res, nil
}

// MarkPositive promotes a node from the latest results to a positive anchor
func (s *Session) MarkPositive(ctx context.Context, nodeID int64, name string) (anchor.Anchor, error) {
	return s.mark(ctx, anchor.Positive, nodeID, name)
}

// MarkNegative promotes a node from the latest results to a negative anchor
func (s *Session) MarkNegative(ctx context.Context, nodeID int64, name string) (anchor.Anchor, error) {
	return s.mark(ctx, anchor.Negative, nodeID, name)
}

func (s *Session) mark(ctx context.Context, polarity anchor.Polarity, nodeID int64, name string) (anchor.Anchor, error) {
	s.mu.Lock()
	result, ok := s.latest[nodeID]
	s.mu.Unlock()
	if !ok {
		return anchor.Anchor{}, fmt.Errorf("%w: %d", ErrUnknownResult, nodeID)
	}

	embeddings, err := s.embeddings.GetEmbeddings(ctx, []int64{nodeID})
	if err != nil {
		return anchor.Anchor{}, fmt.Errorf("failed to load embedding for node %d: %w", nodeID, err)
	}
	if name == "" {
		name = fmt.Sprintf("node-%d", nodeID)
	}

	a, err := anchor.FromResult(name, result.FusedResult, embeddings)
	if err != nil {
		return anchor.Anchor{}, fmt.Errorf("%w: %v", ErrNoEmbedding, err)
	}

	s.mu.Lock()
	s.anchors = s.anchors.With(polarity, a)
	s.updatedAt = time.Now()
	s.mu.Unlock()

	return a, nil
}

// RemoveAnchor drops an anchor of either polarity, reporting whether it existed
func (s *Session) RemoveAnchor(anchorID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, removed := s.anchors.Without(anchorID)
	if removed {
		s.anchors = next
		s.updatedAt = time.Now()
	}
	return removed
}

// Anchors returns the current anchor set
func (s *Session) Anchors() anchor.Set {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.anchors
}

// Harvest keeps nodes from the latest results. Nodes already harvested are
// ignored; an ID that is not among the latest results fails the whole call.
func (s *Session) Harvest(nodeIDs ...int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range nodeIDs {
		if _, ok := s.latest[id]; !ok {
			return 0, fmt.Errorf("%w: %d", ErrUnknownResult, id)
		}
	}

	added := 0
	for _, id := range nodeIDs {
		if _, dup := s.kept[id]; dup {
			continue
		}
		s.kept[id] = struct{}{}
		s.harvested = append(s.harvested, s.latest[id])
		added++
	}
	if added > 0 {
		s.updatedAt = time.Now()
	}
	return added, nil
}

// Harvested returns the kept results in harvest order
func (s *Session) Harvested() []types.EnrichedResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]types.EnrichedResult, len(s.harvested))
	copy(out, s.harvested)
	return out
}

// UpdatedAt returns the time of the last change to the session
func (s *Session) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}
