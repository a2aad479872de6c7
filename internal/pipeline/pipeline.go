// Package pipeline composes the ranking stages into one call:
// hybrid search, anchor refinement, reranking and the quality gate.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/hybridrank/internal/anchor"
	"github.com/dshills/hybridrank/internal/metrics"
	"github.com/dshills/hybridrank/internal/quality"
	"github.com/dshills/hybridrank/internal/reranker"
	"github.com/dshills/hybridrank/internal/searcher"
	"github.com/dshills/hybridrank/pkg/types"
)

// Searcher runs the fused candidate search
type Searcher interface {
	Search(ctx context.Context, req searcher.SearchRequest) (*searcher.HybridSearchResult, error)
}

// Store resolves embeddings for refinement and parents for context expansion
type Store interface {
	quality.ParentFetcher
	GetEmbeddings(ctx context.Context, nodeIDs []int64) (map[int64][]float32, error)
}

// Request configures one pipeline run. Zero values select each stage's defaults.
type Request struct {
	Search searcher.SearchRequest

	// Anchors steer refinement; an empty set skips the stage
	Anchors anchor.Set
	Refine  anchor.Options
	// SearchNearAnchors uses the positive anchor centroid as the query
	// vector when the search request carries none.
	SearchNearAnchors bool

	Reranker       reranker.Kind
	RerankerConfig *reranker.Config // nil selects reranker.DefaultConfig
	Rerank         reranker.Options

	Quality quality.GateOptions
}

// Timings records how long each stage took
type Timings struct {
	Search  time.Duration
	Refine  time.Duration
	Rerank  time.Duration
	Quality time.Duration
	Total   time.Duration
}

// Result is the outcome of a pipeline run
type Result struct {
	Results []types.EnrichedResult

	Search     searcher.Stats
	Refinement *anchor.Stats       // nil when no anchors were applied
	Groups     map[string][]int64 // positive anchor ID -> node IDs, best first
	Reranker   string
	Rejected   int // results dropped by the quality gate
	Timings    Timings
}

// Pipeline wires the stages around an explicit searcher and store
type Pipeline struct {
	searcher Searcher
	store    Store
	gate     *quality.Gate
	logger   zerolog.Logger
	metrics  *metrics.Recorder
}

// New creates a pipeline. The recorder may be nil.
func New(s Searcher, store Store, logger zerolog.Logger, rec *metrics.Recorder) (*Pipeline, error) {
	if s == nil {
		return nil, errors.New("searcher is required")
	}
	if store == nil {
		return nil, errors.New("store is required")
	}
	logger = logger.With().Str("component", "pipeline").Logger()
	return &Pipeline{
		searcher: s,
		store:    store,
		gate:     quality.NewGate(store, logger),
		logger:   logger,
		metrics:  rec,
	}, nil
}

// Run executes search -> refine -> rerank -> quality gate
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	out := &Result{}

	rr, err := p.reranker(req)
	if err != nil {
		return nil, err
	}
	out.Reranker = rr.Name()

	searchReq := req.Search
	if req.SearchNearAnchors && len(searchReq.Vector) == 0 && len(req.Anchors.Positive) > 0 {
		centroid, err := req.Anchors.Centroid()
		if err != nil {
			return nil, fmt.Errorf("anchor centroid: %w", err)
		}
		searchReq.Vector = centroid
	}

	began := time.Now()
	found, err := p.searcher.Search(ctx, searchReq)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	out.Timings.Search = time.Since(began)
	out.Search = found.Stats
	results := found.Results

	if !req.Anchors.IsEmpty() && len(results) > 0 {
		began = time.Now()
		ref, err := p.refine(ctx, results, req)
		if err != nil {
			return nil, err
		}
		results = ref.Results
		out.Refinement = &ref.Stats
		out.Groups = groupIDs(ref.Groups)
		out.Timings.Refine = time.Since(began)
		p.metrics.ObserveStage(metrics.StageRefine, out.Timings.Refine)
		p.metrics.ObserveRemoved(metrics.StageRefine, ref.Stats.RemovedByNegative+ref.Stats.DroppedMissing)
	}

	began = time.Now()
	results = rr.Rerank(searchReq.Query, results, req.Rerank)
	out.Timings.Rerank = time.Since(began)
	p.metrics.ObserveStage(metrics.StageRerank, out.Timings.Rerank)

	began = time.Now()
	enriched, err := p.gate.Apply(ctx, results, req.Quality)
	if err != nil {
		return nil, fmt.Errorf("quality gate: %w", err)
	}
	out.Timings.Quality = time.Since(began)
	p.metrics.ObserveStage(metrics.StageQuality, out.Timings.Quality)

	out.Results = enriched
	out.Rejected = len(results) - countPassed(enriched)
	p.metrics.ObserveRemoved(metrics.StageQuality, out.Rejected)

	out.Timings.Total = time.Since(start)
	p.logger.Debug().
		Int("fused", len(found.Results)).
		Int("returned", len(out.Results)).
		Int("rejected", out.Rejected).
		Str("reranker", out.Reranker).
		Dur("search_time", out.Timings.Search).
		Dur("refine_time", out.Timings.Refine).
		Dur("rerank_time", out.Timings.Rerank).
		Dur("quality_time", out.Timings.Quality).
		Dur("total_time", out.Timings.Total).
		Msg("pipeline complete")

	return out, nil
}

func (p *Pipeline) reranker(req Request) (reranker.Reranker, error) {
	cfg := reranker.DefaultConfig()
	if req.RerankerConfig != nil {
		cfg = *req.RerankerConfig
	}
	return reranker.New(req.Reranker, cfg)
}

func (p *Pipeline) refine(ctx context.Context, results []types.FusedResult, req Request) (*anchor.Refinement, error) {
	nodeIDs := make([]int64, 0, len(results))
	for _, r := range results {
		if r.Node != nil {
			nodeIDs = append(nodeIDs, r.Node.ID)
		}
	}

	embeddings, err := p.store.GetEmbeddings(ctx, nodeIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load result embeddings: %w", err)
	}
	if missing := len(nodeIDs) - len(embeddings); missing > 0 {
		p.logger.Warn().Int("missing", missing).Msg("some results have no stored embedding")
	}

	ref, err := anchor.Refine(results, embeddings, req.Anchors, req.Refine)
	if err != nil {
		return nil, fmt.Errorf("refine: %w", err)
	}
	return ref, nil
}

func groupIDs(groups map[string][]types.FusedResult) map[string][]int64 {
	out := make(map[string][]int64, len(groups))
	for anchorID, results := range groups {
		nodeIDs := make([]int64, len(results))
		for i, r := range results {
			nodeIDs[i] = r.NodeID()
		}
		out[anchorID] = nodeIDs
	}
	return out
}

func countPassed(results []types.EnrichedResult) int {
	n := 0
	for _, r := range results {
		if r.Quality.PassedGate {
			n++
		}
	}
	return n
}
